// Package notification turns domain events into operator notices. A
// notice goes out as an email to the configured address, or as a log
// line when no address is set.
package notification

import (
	"context"
	"fmt"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outbound"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Notifier subscribes to the event bus and flags the moments that need a
// human: a booked meeting and a reply draft waiting for review.
type Notifier struct {
	gateway outbound.Gateway
	address string
	log     *logger.Logger
}

func New(gateway outbound.Gateway, cfg config.NotificationConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		gateway: gateway,
		address: cfg.GetNotifyAddress(),
		log:     log,
	}
}

// RegisterHandlers subscribes the notifier on the bus.
func (n *Notifier) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadBooked{}.EventName(), events.HandlerFunc(n.handleLeadBooked))
	bus.Subscribe(events.DraftApprovalCreated{}.EventName(), events.HandlerFunc(n.handleDraftCreated))
}

func (n *Notifier) handleLeadBooked(ctx context.Context, event events.Event) error {
	booked, ok := event.(events.LeadBooked)
	if !ok {
		return nil
	}
	return n.notify(ctx,
		"Meeting booked",
		fmt.Sprintf("Lead %s booked a meeting (source: %s).", booked.LeadID, booked.Source),
	)
}

func (n *Notifier) handleDraftCreated(ctx context.Context, event events.Event) error {
	created, ok := event.(events.DraftApprovalCreated)
	if !ok {
		return nil
	}
	subject := "Reply draft awaiting review"
	if !created.HasDraft {
		subject = "Reply needs a manual answer"
	}
	return n.notify(ctx, subject, fmt.Sprintf(
		"Lead %s replied (category: %s). Approval %s is waiting in the review queue.",
		created.LeadID, created.ObjectionCategory, created.ApprovalID,
	))
}

func (n *Notifier) notify(ctx context.Context, subject, body string) error {
	if n.address == "" {
		n.log.Info("operator_notice", "subject", subject)
		return nil
	}
	if _, err := n.gateway.Send(ctx, outbound.Message{
		To:      n.address,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("operator notice: %w", err)
	}
	return nil
}
