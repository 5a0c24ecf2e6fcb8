package replies

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/approval"
	"outreach_backend/internal/audit"
	"outreach_backend/internal/drafts"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/objection"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/internal/suppression"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// threadRefPrefix matches the reference the outbound gateway stamps on
// every touch.
const threadRefPrefix = "lead-"

// meetingPhrases signal booking intent. Checked before objection matching
// so "happy to book a call, though we already have a supplier" books.
var meetingPhrases = []string{
	"book a call",
	"book a meeting",
	"schedule a call",
	"schedule a meeting",
	"set up a call",
	"let's talk",
	"lets talk",
	"send me your calendar",
	"booked a slot",
	"booked a time",
}

// LeadResolver finds the lead an inbound message belongs to.
type LeadResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByEmail(ctx context.Context, email string) (domain.Lead, error)
}

// ReplyStore persists inbound events and their classification.
type ReplyStore interface {
	Record(ctx context.Context, params RecordParams) (ReplyEvent, error)
	Classify(ctx context.Context, id uuid.UUID, params ClassifyParams) error
}

// Transitioner is the lead state machine surface the correlator drives.
type Transitioner interface {
	Transition(ctx context.Context, leadID uuid.UUID, to domain.Status, params leads.TransitionParams) (domain.Lead, error)
	Suppress(ctx context.Context, leadID uuid.UUID, reason, actor, requestID string) (domain.Lead, error)
}

// Suppressor adds do-not-contact entries on unsubscribe replies.
type Suppressor interface {
	Add(ctx context.Context, email, domain, reason string) error
}

// ApprovalCreator opens draft approvals for objection replies.
type ApprovalCreator interface {
	Create(ctx context.Context, params approval.CreateParams) (approval.DraftApproval, error)
}

// Auditor appends to the audit ledger.
type Auditor interface {
	Append(ctx context.Context, params audit.AppendParams) error
}

// BookingScheduler enqueues the booking confirmation that follows a
// meeting-intent reply. Optional.
type BookingScheduler interface {
	ScheduleBookingConfirmation(ctx context.Context, leadID uuid.UUID) error
}

// InboundEvent is a normalized inbound message from any source (IMAP
// poller, provider webhook).
type InboundEvent struct {
	SourceEventID string
	FromAddress   string
	ToAddress     string
	ThreadRef     string
	Subject       string
	Body          string
	ReceivedAt    time.Time
}

// Outcome summarizes what Process did with one inbound event.
type Outcome struct {
	ReplyEventID      uuid.UUID
	LeadID            *uuid.UUID
	Classification    string
	ObjectionCategory string
	ApprovalID        *uuid.UUID
	Duplicate         bool
}

// Correlator matches inbound messages to leads and applies the reply
// decision order: unsubscribe, meeting intent, objection, general.
type Correlator struct {
	leadResolver LeadResolver
	replyStore   ReplyStore
	machine      Transitioner
	suppressions Suppressor
	approvals    ApprovalCreator
	auditLog     Auditor
	booking      BookingScheduler
	bus          events.Bus
	kb           objection.KB
	identity     config.IdentityConfig
	locks        *locks.KeyedMutex
	log          *logger.Logger
}

type CorrelatorParams struct {
	LeadResolver LeadResolver
	ReplyStore   ReplyStore
	Machine      Transitioner
	Suppressions Suppressor
	Approvals    ApprovalCreator
	AuditLog     Auditor
	Booking      BookingScheduler
	Bus          events.Bus
	KB           objection.KB
	Identity     config.IdentityConfig
	Locks        *locks.KeyedMutex
	Logger       *logger.Logger
}

func NewCorrelator(params CorrelatorParams) *Correlator {
	return &Correlator{
		leadResolver: params.LeadResolver,
		replyStore:   params.ReplyStore,
		machine:      params.Machine,
		suppressions: params.Suppressions,
		approvals:    params.Approvals,
		auditLog:     params.AuditLog,
		booking:      params.Booking,
		bus:          params.Bus,
		kb:           params.KB,
		identity:     params.Identity,
		locks:        params.Locks,
		log:          params.Logger,
	}
}

// Process ingests one inbound event. Duplicates and unmatched messages are
// recorded and acknowledged without touching any lead; a failure on one
// event never blocks the rest of a poll batch.
func (c *Correlator) Process(ctx context.Context, event InboundEvent) (Outcome, error) {
	lead, matched := c.resolveLead(ctx, event)

	var leadID *uuid.UUID
	if matched {
		id := lead.ID
		leadID = &id
	}

	recorded, err := c.replyStore.Record(ctx, RecordParams{
		LeadID:        leadID,
		SourceEventID: event.SourceEventID,
		FromAddress:   event.FromAddress,
		ToAddress:     event.ToAddress,
		ThreadRef:     event.ThreadRef,
		Subject:       event.Subject,
		Body:          event.Body,
		ReceivedAt:    event.ReceivedAt,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		c.audit(ctx, audit.EventReplyDuplicate, leadID, map[string]any{
			"source_event_id": event.SourceEventID,
		})
		return Outcome{LeadID: leadID, Duplicate: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("record reply event: %w", err)
	}

	if !matched {
		if err := c.replyStore.Classify(ctx, recorded.ID, ClassifyParams{Classification: ClassificationUnmatched}); err != nil {
			return Outcome{}, err
		}
		c.audit(ctx, audit.EventReplyUnmatched, nil, map[string]any{
			"source_event_id": event.SourceEventID,
			"from_address":    event.FromAddress,
		})
		c.log.Warn("reply_unmatched", "source_event_id", event.SourceEventID, "from", event.FromAddress)
		return Outcome{ReplyEventID: recorded.ID, Classification: ClassificationUnmatched}, nil
	}

	unlock := c.locks.Lock(lead.ID)
	defer unlock()

	// Re-read under the lock so the decision sees the current status.
	lead, err = c.leadResolver.GetByID(ctx, lead.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reload lead %s: %w", lead.ID, err)
	}

	outcome, err := c.classify(ctx, lead, recorded, event)
	if err != nil {
		return Outcome{}, err
	}

	if err := c.replyStore.Classify(ctx, recorded.ID, ClassifyParams{
		Classification:    outcome.Classification,
		ObjectionCategory: outcome.ObjectionCategory,
		MatchConfidence:   outcome.matchConfidence,
	}); err != nil {
		return Outcome{}, err
	}

	c.audit(ctx, audit.EventReplyReceived, leadID, map[string]any{
		"reply_event_id": recorded.ID.String(),
		"classification": outcome.Classification,
	})
	if c.bus != nil {
		c.bus.Publish(ctx, events.ReplyReceived{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			ReplyEventID:   recorded.ID,
			Classification: outcome.Classification,
		})
	}

	result := Outcome{
		ReplyEventID:      recorded.ID,
		LeadID:            leadID,
		Classification:    outcome.Classification,
		ObjectionCategory: outcome.ObjectionCategory,
		ApprovalID:        outcome.ApprovalID,
	}
	return result, nil
}

type classification struct {
	Classification    string
	ObjectionCategory string
	ApprovalID        *uuid.UUID
	matchConfidence   float64
}

// classify applies the decision order under the per-lead lock.
func (c *Correlator) classify(ctx context.Context, lead domain.Lead, recorded ReplyEvent, event InboundEvent) (classification, error) {
	text := event.Subject + "\n" + event.Body

	if suppression.ContainsRemovalRequest(text) {
		if err := c.suppressions.Add(ctx, lead.Email, "", suppression.ReasonUnsubscribe); err != nil {
			return classification{}, fmt.Errorf("add suppression: %w", err)
		}
		if !domain.IsTerminal(lead.Status) {
			if _, err := c.machine.Suppress(ctx, lead.ID, suppression.ReasonUnsubscribe, audit.ActorSystem, ""); err != nil {
				return classification{}, fmt.Errorf("suppress lead: %w", err)
			}
		}
		c.audit(ctx, audit.EventLeadSuppressed, &lead.ID, map[string]any{
			"email":  lead.Email,
			"reason": suppression.ReasonUnsubscribe,
		})
		c.log.Info("reply_unsubscribe", "lead_id", lead.ID.String())
		return classification{Classification: ClassificationUnsubscribe}, nil
	}

	if containsMeetingIntent(text) {
		booked, err := c.bookFromReply(ctx, lead, recorded.ID)
		if err != nil {
			return classification{}, err
		}
		if booked {
			return classification{Classification: ClassificationMeeting}, nil
		}
		// Intent detected but the status does not allow booking yet (for
		// example a second enthusiastic reply after booking). Record the
		// signal without forcing a transition.
		return classification{Classification: ClassificationMeeting}, nil
	}

	match := objection.MatchText(c.kb, text)
	if match.Matched() {
		approvalID, err := c.openApproval(ctx, lead, recorded.ID, match)
		if err != nil {
			return classification{}, err
		}
		if err := c.transitionToReplied(ctx, lead, recorded.ID); err != nil {
			return classification{}, err
		}
		c.audit(ctx, audit.EventObjectionMatched, &lead.ID, map[string]any{
			"reply_event_id": recorded.ID.String(),
			"category":       match.Category,
			"pattern":        match.Pattern,
		})
		return classification{
			Classification:    ClassificationObjection,
			ObjectionCategory: match.Category,
			ApprovalID:        approvalID,
			matchConfidence:   match.Confidence,
		}, nil
	}

	// General reply: route to a human with no pre-filled draft.
	approvalID, err := c.openApproval(ctx, lead, recorded.ID, objection.Match{Category: objection.CategoryUnknown})
	if err != nil {
		return classification{}, err
	}
	if err := c.transitionToReplied(ctx, lead, recorded.ID); err != nil {
		return classification{}, err
	}
	return classification{
		Classification:    ClassificationGeneral,
		ObjectionCategory: objection.CategoryUnknown,
		ApprovalID:        approvalID,
	}, nil
}

// bookFromReply moves the lead to booked when its status permits and
// schedules the confirmation email. Returns false when the transition is
// not allowed from the current status.
func (c *Correlator) bookFromReply(ctx context.Context, lead domain.Lead, replyEventID uuid.UUID) (bool, error) {
	// booked is reachable from replied and objection_handled; a reply to a
	// touch lands in replied first.
	if lead.Status == domain.StatusTouchSent {
		if _, err := c.machine.Transition(ctx, lead.ID, domain.StatusReplied, leads.TransitionParams{
			Actor:   audit.ActorSystem,
			Reason:  "inbound reply",
			Payload: map[string]any{"reply_event_id": replyEventID.String()},
		}); err != nil {
			return false, fmt.Errorf("transition to replied: %w", err)
		}
		lead.Status = domain.StatusReplied
	}

	if !domain.CanTransition(lead.Status, domain.StatusBooked, lead.CurrentTouchNumber) {
		c.log.Warn("booking_intent_ignored", "lead_id", lead.ID.String(), "status", string(lead.Status))
		return false, nil
	}

	if _, err := c.machine.Transition(ctx, lead.ID, domain.StatusBooked, leads.TransitionParams{
		Actor:   audit.ActorSystem,
		Reason:  "meeting intent in reply",
		Payload: map[string]any{"reply_event_id": replyEventID.String()},
	}); err != nil {
		return false, fmt.Errorf("transition to booked: %w", err)
	}

	c.audit(ctx, audit.EventLeadBooked, &lead.ID, map[string]any{
		"reply_event_id": replyEventID.String(),
		"source":         "reply_intent",
	})
	if c.bus != nil {
		c.bus.Publish(ctx, events.LeadBooked{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Source:    "reply_intent",
		})
	}

	if c.booking != nil {
		if err := c.booking.ScheduleBookingConfirmation(ctx, lead.ID); err != nil {
			// The lead is booked either way; the confirmation can be
			// resent manually.
			c.log.Error("booking_confirmation_enqueue_failed", "lead_id", lead.ID.String(), "error", err.Error())
		}
	}
	c.log.Info("lead_booked", "lead_id", lead.ID.String(), "source", "reply_intent")
	return true, nil
}

// openApproval renders the draft for a matched objection and opens the
// approval. A lead with a pending approval keeps it; the new reply is
// still recorded.
func (c *Correlator) openApproval(ctx context.Context, lead domain.Lead, replyEventID uuid.UUID, match objection.Match) (*uuid.UUID, error) {
	vars := drafts.Vars{
		CompanyName: lead.CompanyName,
		BrandNames:  c.identity.GetBrandNames(),
		BookingLink: c.identity.GetBookingLink(),
	}

	var body *string
	if match.ResponseTemplate != "" {
		rendered := drafts.Render(match.ResponseTemplate, vars)
		body = &rendered
	}

	created, err := c.approvals.Create(ctx, approval.CreateParams{
		LeadID:            lead.ID,
		ReplyEventID:      replyEventID,
		ObjectionCategory: match.Category,
		DraftSubject:      drafts.RenderSubject(match.Subject, vars),
		DraftBody:         body,
	})
	if errors.Is(err, approval.ErrPendingExists) {
		c.log.Warn("approval_already_pending", "lead_id", lead.ID.String())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create draft approval: %w", err)
	}

	c.audit(ctx, audit.EventDraftCreated, &lead.ID, map[string]any{
		"approval_id":    created.ID.String(),
		"reply_event_id": replyEventID.String(),
		"category":       match.Category,
		"has_draft":      body != nil,
	})
	if c.bus != nil {
		c.bus.Publish(ctx, events.DraftApprovalCreated{
			BaseEvent:         events.NewBaseEvent(),
			ApprovalID:        created.ID,
			LeadID:            lead.ID,
			ObjectionCategory: match.Category,
			HasDraft:          body != nil,
		})
	}
	id := created.ID
	return &id, nil
}

func (c *Correlator) transitionToReplied(ctx context.Context, lead domain.Lead, replyEventID uuid.UUID) error {
	if lead.Status == domain.StatusReplied {
		return nil
	}
	if !domain.CanTransition(lead.Status, domain.StatusReplied, lead.CurrentTouchNumber) {
		c.log.Warn("reply_transition_skipped", "lead_id", lead.ID.String(), "status", string(lead.Status))
		return nil
	}
	_, err := c.machine.Transition(ctx, lead.ID, domain.StatusReplied, leads.TransitionParams{
		Actor:   audit.ActorSystem,
		Reason:  "inbound reply",
		Payload: map[string]any{"reply_event_id": replyEventID.String()},
	})
	if err != nil {
		return fmt.Errorf("transition to replied: %w", err)
	}
	return nil
}

// resolveLead tries the thread reference first, then the sender address.
func (c *Correlator) resolveLead(ctx context.Context, event InboundEvent) (domain.Lead, bool) {
	if id, ok := parseThreadRef(event.ThreadRef); ok {
		lead, err := c.leadResolver.GetByID(ctx, id)
		if err == nil {
			return lead, true
		}
		c.log.Warn("thread_ref_dangling", "thread_ref", event.ThreadRef)
	}

	lead, err := c.leadResolver.GetByEmail(ctx, event.FromAddress)
	if err == nil {
		return lead, true
	}
	return domain.Lead{}, false
}

func parseThreadRef(ref string) (uuid.UUID, bool) {
	if !strings.HasPrefix(ref, threadRefPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(ref, threadRefPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func containsMeetingIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range meetingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func (c *Correlator) audit(ctx context.Context, event string, leadID *uuid.UUID, payload map[string]any) {
	err := c.auditLog.Append(ctx, audit.AppendParams{
		Event:   event,
		LeadID:  leadID,
		Actor:   audit.ActorSystem,
		Payload: payload,
	})
	if err != nil {
		c.log.Error("audit_append_failed", "event", event, "error", err.Error())
	}
}
