// Package lint enforces information-control rules on outbound email. No
// message is dispatched without passing this check.
package lint

import (
	"fmt"
	"strings"
)

// MaxBrandsPerEmail caps how many brand names one email may reference.
const MaxBrandsPerEmail = 3

// forbiddenPhrases must never appear in outbound subject or body.
var forbiddenPhrases = []string{
	"cost basis",
	"invoice",
	"exclusivity",
	"exclusive deal",
	"full catalog",
	"complete catalog",
	"entire catalog",
	"detailed margin",
	"margin structure",
	"percent off",
	"% off retail",
	"wholesale price",
	"wholesale cost",
	"our cost",
	"your cost",
	"cost per unit",
	"direct authorized",
	"authorized distributor",
	"MAP violation",
	"below MAP",
	"grey market",
	"gray market",
	"diversion",
	"liquidation",
}

// Violation records one forbidden phrase hit.
type Violation struct {
	Phrase   string `json:"phrase"`
	Location string `json:"location"`
}

// Result is the outcome of linting one email.
type Result struct {
	OK                bool        `json:"ok"`
	Violations        []Violation `json:"violations,omitempty"`
	BrandCapViolation bool        `json:"brand_cap_violation,omitempty"`
}

// Error summarises a failed result for audit payloads and logs.
func (r Result) Error() string {
	if r.OK {
		return ""
	}
	parts := make([]string, 0, len(r.Violations)+1)
	for _, v := range r.Violations {
		parts = append(parts, fmt.Sprintf("%q in %s", v.Phrase, v.Location))
	}
	if r.BrandCapViolation {
		parts = append(parts, fmt.Sprintf("more than %d brands", MaxBrandsPerEmail))
	}
	return "lint: " + strings.Join(parts, ", ")
}

// Check scans subject and body for forbidden phrases and enforces the
// brand cap. Matching is case-insensitive substring.
func Check(subject, body string, brandCount int) Result {
	var violations []Violation
	subjectLower := strings.ToLower(subject)
	bodyLower := strings.ToLower(body)

	for _, phrase := range forbiddenPhrases {
		phraseLower := strings.ToLower(phrase)
		if strings.Contains(subjectLower, phraseLower) {
			violations = append(violations, Violation{Phrase: phrase, Location: "subject"})
		}
		if strings.Contains(bodyLower, phraseLower) {
			violations = append(violations, Violation{Phrase: phrase, Location: "body"})
		}
	}

	brandCap := brandCount > MaxBrandsPerEmail
	return Result{
		OK:                len(violations) == 0 && !brandCap,
		Violations:        violations,
		BrandCapViolation: brandCap,
	}
}
