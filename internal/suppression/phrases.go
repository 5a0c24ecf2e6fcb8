package suppression

import "strings"

// removalPhrases are the unsubscribe signals scanned for in reply text.
// Any hit suppresses the sender permanently.
var removalPhrases = []string{
	"unsubscribe",
	"remove me",
	"remove my",
	"stop emailing",
	"stop contacting",
	"opt out",
	"opt-out",
	"take me off",
	"don't email",
	"do not email",
	"do not contact",
	"don't contact",
	"no more emails",
	"stop sending",
	"not interested please remove",
	"please remove",
}

// ContainsRemovalRequest reports whether the reply text asks to be removed
// from the sequence.
func ContainsRemovalRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range removalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
