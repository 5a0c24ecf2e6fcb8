// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"outreach_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadCreated is published when a new lead enters the pipeline.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	Email       string    `json:"email"`
	CompanyName string    `json:"companyName"`
	Source      string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published on every state machine transition.
type LeadStatusChanged struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	OldStatus   string    `json:"oldStatus"`
	NewStatus   string    `json:"newStatus"`
	TouchNumber int       `json:"touchNumber"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// TouchDispatched is published after a confirmed outbound send.
type TouchDispatched struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	TouchNumber       int       `json:"touchNumber"`
	ProviderMessageID string    `json:"providerMessageId"`
}

func (e TouchDispatched) EventName() string { return "outbound.touch.dispatched" }

// ReplyReceived is published when an inbound event correlates to a lead.
type ReplyReceived struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	ReplyEventID   uuid.UUID `json:"replyEventId"`
	Classification string    `json:"classification"`
}

func (e ReplyReceived) EventName() string { return "replies.reply.received" }

// DraftApprovalCreated is published when a reply produces a draft awaiting
// human review.
type DraftApprovalCreated struct {
	BaseEvent
	ApprovalID        uuid.UUID `json:"approvalId"`
	LeadID            uuid.UUID `json:"leadId"`
	ObjectionCategory string    `json:"objectionCategory"`
	HasDraft          bool      `json:"hasDraft"`
}

func (e DraftApprovalCreated) EventName() string { return "approval.draft.created" }

// LeadSuppressed is published when an address lands on the suppression
// list and the lead leaves the sequence.
type LeadSuppressed struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Email  string    `json:"email"`
	Reason string    `json:"reason"`
}

func (e LeadSuppressed) EventName() string { return "suppression.lead.suppressed" }

// LeadBooked is published when a meeting is booked, from a reply signal or
// a manual action.
type LeadBooked struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Source string    `json:"source"` // "reply_intent" or "manual"
}

func (e LeadBooked) EventName() string { return "leads.lead.booked" }
