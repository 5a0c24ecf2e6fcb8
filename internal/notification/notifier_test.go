package notification

import (
	"context"
	"strings"
	"sync"
	"testing"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outbound"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeGateway struct {
	mu    sync.Mutex
	sends []outbound.Message
}

func (f *fakeGateway) Send(_ context.Context, msg outbound.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, msg)
	return "msg-1", nil
}

type notifyCfg struct {
	address string
}

func (c notifyCfg) GetNotifyAddress() string { return c.address }

func TestLeadBookedNotifiesOperator(t *testing.T) {
	gateway := &fakeGateway{}
	bus := events.NewInMemoryBus(logger.New("development"))
	New(gateway, notifyCfg{address: "ops@outreach.example"}, logger.New("development")).RegisterHandlers(bus)

	err := bus.PublishSync(context.Background(), events.LeadBooked{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		Source:    "reply_intent",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(gateway.sends) != 1 {
		t.Fatalf("operator emails = %d, want 1", len(gateway.sends))
	}
	if gateway.sends[0].To != "ops@outreach.example" {
		t.Errorf("notice sent to %q, want the operator address", gateway.sends[0].To)
	}
	if !strings.Contains(gateway.sends[0].Subject, "booked") {
		t.Errorf("subject = %q, want it to mention the booking", gateway.sends[0].Subject)
	}
}

func TestDraftCreatedNotifiesOperator(t *testing.T) {
	gateway := &fakeGateway{}
	bus := events.NewInMemoryBus(logger.New("development"))
	New(gateway, notifyCfg{address: "ops@outreach.example"}, logger.New("development")).RegisterHandlers(bus)

	err := bus.PublishSync(context.Background(), events.DraftApprovalCreated{
		BaseEvent:         events.NewBaseEvent(),
		ApprovalID:        uuid.New(),
		LeadID:            uuid.New(),
		ObjectionCategory: "already_have_supplier",
		HasDraft:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(gateway.sends) != 1 {
		t.Fatalf("operator emails = %d, want 1", len(gateway.sends))
	}
	if !strings.Contains(gateway.sends[0].Body, "review queue") {
		t.Errorf("body = %q, want it to point at the review queue", gateway.sends[0].Body)
	}
}

func TestNoticeWithoutAddressOnlyLogs(t *testing.T) {
	gateway := &fakeGateway{}
	bus := events.NewInMemoryBus(logger.New("development"))
	New(gateway, notifyCfg{}, logger.New("development")).RegisterHandlers(bus)

	err := bus.PublishSync(context.Background(), events.LeadBooked{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		Source:    "manual",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(gateway.sends) != 0 {
		t.Errorf("operator emails = %d, want 0 without a configured address", len(gateway.sends))
	}
}
