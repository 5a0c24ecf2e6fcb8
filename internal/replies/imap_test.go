package replies

import (
	"testing"
	"time"

	imap "github.com/BrianLeishman/go-imap"
)

func inboxEmail(messageID string, received time.Time) *imap.Email {
	return &imap.Email{
		MessageID: messageID,
		Subject:   "Re: Quick question",
		Received:  received,
		From:      imap.EmailAddresses{"owner@acmesurf.example": "Acme Surf"},
		To:        imap.EmailAddresses{"hello@outreach.example": ""},
		Text:      "We already have a supplier.",
	}
}

func TestToInboundEventUsesMessageID(t *testing.T) {
	email := inboxEmail("<abc@mail.acmesurf.example>", time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	event := toInboundEvent("INBOX", 41, email)

	if event.SourceEventID != "<abc@mail.acmesurf.example>" {
		t.Errorf("source id = %q, want the Message-ID header", event.SourceEventID)
	}
	if event.FromAddress != "owner@acmesurf.example" {
		t.Errorf("from = %q", event.FromAddress)
	}
}

// A message without a Message-ID header must still dedup across polls,
// and a reused UID must not collide with the message that held it before
// a mailbox reset.
func TestToInboundEventFallbackKeyStability(t *testing.T) {
	received := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first := toInboundEvent("INBOX", 41, inboxEmail("", received))
	redelivered := toInboundEvent("INBOX", 41, inboxEmail("", received))
	if first.SourceEventID != redelivered.SourceEventID {
		t.Errorf("same message produced different keys: %q vs %q", first.SourceEventID, redelivered.SourceEventID)
	}

	// Same UID, different message: a later arrival reusing UID 41.
	later := inboxEmail("", received.Add(48*time.Hour))
	later.Subject = "Totally unrelated"
	reused := toInboundEvent("INBOX", 41, later)
	if reused.SourceEventID == first.SourceEventID {
		t.Error("a reused UID must not inherit the previous message's key")
	}

	// Same UID in another folder is another message.
	otherFolder := toInboundEvent("Archive", 41, inboxEmail("", received))
	if otherFolder.SourceEventID == first.SourceEventID {
		t.Error("the fallback key must be folder-scoped")
	}
}
