// Package drafts produces outbound email copy: template rendering for
// approved objection responses and an AI provider for touch bodies and
// unmatched objections.
package drafts

import (
	"context"
	"errors"
)

// ErrDraftFailed marks a provider failure. The caller treats it as
// transient: the lead stays due and is retried on a later cycle.
var ErrDraftFailed = errors.New("draft generation failed")

// Draft is a generated email.
type Draft struct {
	Subject string
	Body    string
}

// LeadContext is what a provider may know about the lead.
type LeadContext struct {
	CompanyName string
	ContactName string
	Website     string
	Email       string
}

// Provider generates copy for a numbered touch with a leverage angle.
type Provider interface {
	Generate(ctx context.Context, lead LeadContext, touchNumber int, angle string) (Draft, error)
}
