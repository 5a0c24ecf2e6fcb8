package objection

import "strings"

// Match is the result of scanning reply text against the knowledge base.
type Match struct {
	Category         string
	Pattern          string
	Confidence       float64
	Subject          string
	ResponseTemplate string
}

// Matched reports whether a knowledge-base entry resolved.
func (m Match) Matched() bool {
	return m.Category != CategoryUnknown
}

// MatchText scans the knowledge base in declaration order and returns the
// first entry with any pattern appearing as a case-insensitive substring of
// the text. First match wins; no match yields CategoryUnknown with zero
// confidence.
func MatchText(kb KB, text string) Match {
	lower := strings.ToLower(text)

	for _, entry := range kb {
		for _, pattern := range entry.Patterns {
			if pattern == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return Match{
					Category:         entry.Category,
					Pattern:          pattern,
					Confidence:       1,
					Subject:          entry.Subject,
					ResponseTemplate: entry.ResponseTemplate,
				}
			}
		}
	}

	return Match{Category: CategoryUnknown}
}
