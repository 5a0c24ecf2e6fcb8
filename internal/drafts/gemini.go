package drafts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"outreach_backend/platform/config"

	"google.golang.org/genai"
)

// GeminiProvider generates touch copy with the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	company string
	booking string
}

// NewGeminiProvider builds the provider from config. The identity config
// supplies the sender voice woven into every prompt.
func NewGeminiProvider(ctx context.Context, cfg config.DraftConfig, identity config.IdentityConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiProvider{
		client:  client,
		model:   cfg.GetDraftModel(),
		timeout: cfg.GetDraftTimeout(),
		company: identity.GetCompanyName(),
		booking: identity.GetBookingLink(),
	}, nil
}

// Generate produces a subject and body for the touch. A timeout or API
// error is wrapped as ErrDraftFailed so callers treat it as transient.
func (p *GeminiProvider) Generate(ctx context.Context, lead LeadContext, touchNumber int, angle string) (Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := p.buildPrompt(lead, touchNumber, angle)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrDraftFailed, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Draft{}, fmt.Errorf("%w: empty response", ErrDraftFailed)
	}

	subject, body := splitDraft(text)
	if p.booking != "" && !strings.Contains(body, p.booking) {
		body += "\n\n" + p.booking
	}
	return Draft{Subject: subject, Body: body}, nil
}

func (p *GeminiProvider) buildPrompt(lead LeadContext, touchNumber int, angle string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short cold outreach email (touch %d of 5) from %s to the retailer %s.\n", touchNumber, p.company, lead.CompanyName)
	if lead.ContactName != "" {
		fmt.Fprintf(&b, "Address the recipient as %s.\n", lead.ContactName)
	}
	if lead.Website != "" {
		fmt.Fprintf(&b, "Their storefront is %s.\n", lead.Website)
	}
	fmt.Fprintf(&b, "Lead with the %q angle. Keep it under 120 words, plain text, no pricing or catalog details.\n", angle)
	b.WriteString("Return the subject on the first line prefixed with 'Subject: ', then a blank line, then the body.")
	return b.String()
}

// splitDraft separates a "Subject: ..." first line from the body. Models
// that skip the prefix yield an empty subject and the caller falls back to
// a rendered default.
func splitDraft(text string) (subject, body string) {
	lines := strings.SplitN(text, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if strings.HasPrefix(strings.ToLower(first), "subject:") {
		subject = strings.TrimSpace(first[len("subject:"):])
		if len(lines) > 1 {
			body = strings.TrimSpace(lines[1])
		}
		return subject, body
	}
	return "", text
}
