package drafts

import (
	"context"
	"fmt"

	"outreach_backend/platform/config"
)

// angleOpeners frame the first line of a touch around the chosen leverage
// angle. Unknown angles fall back to the generic opener.
var angleOpeners = map[string]string{
	"expansion": "Saw that %s has been growing its range lately.",
	"alignment": "Your assortment at %s lines up well with what we carry.",
	"stability": "We work with stores like %s that want a supplier who picks up the phone.",
	"margin":    "Stores comparable to %s have found room to improve their numbers with us.",
	"novelty":   "A few lines we carry haven't reached stores like %s yet.",
}

// touchFrames give each follow-up its own register, from introduction to
// polite close-out. Placeholders: company, angle hook, booking link.
var touchFrames = []string{
	"I'm reaching out from %[1]s. %[2]s If it's worth a conversation, grab a slot here: %[3]s",
	"Following up on my earlier note from %[1]s. %[2]s Happy to keep it to fifteen minutes: %[3]s",
	"Quick nudge from %[1]s in case my last email got buried. %[2]s Booking link: %[3]s",
	"I'll keep this short. %[2]s Still happy to talk whenever suits you: %[3]s",
	"Last note from me at %[1]s. If the timing isn't right, no hard feelings. The door stays open: %[3]s",
}

// StaticProvider produces deterministic touch copy from the sender
// identity. It is the fallback when AI drafting is not configured and is
// also what keeps the pipeline testable without network calls.
type StaticProvider struct {
	company string
	booking string
}

func NewStaticProvider(identity config.IdentityConfig) *StaticProvider {
	return &StaticProvider{
		company: identity.GetCompanyName(),
		booking: identity.GetBookingLink(),
	}
}

func (p *StaticProvider) Generate(_ context.Context, lead LeadContext, touchNumber int, angle string) (Draft, error) {
	if touchNumber < 1 || touchNumber > len(touchFrames) {
		return Draft{}, fmt.Errorf("%w: no copy for touch %d", ErrDraftFailed, touchNumber)
	}

	target := lead.CompanyName
	if target == "" {
		target = "your store"
	}

	opener, ok := angleOpeners[angle]
	if !ok {
		opener = "We supply stores like %s and thought of you."
	}
	hook := fmt.Sprintf(opener, target)

	body := fmt.Sprintf(touchFrames[touchNumber-1], p.company, hook, p.booking)

	subject := fmt.Sprintf("%s x %s", p.company, target)
	if touchNumber > 1 {
		subject = "Re: " + subject
	}
	return Draft{Subject: subject, Body: body}, nil
}
