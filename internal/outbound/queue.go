package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/audit"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/lint"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// SuppressionChecker answers whether an address is on the do-not-contact
// list.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// TouchStore persists touch and reply dispatch attempts.
type TouchStore interface {
	CreatePending(ctx context.Context, params CreateTouchParams) (Touch, error)
	HasLiveTouch(ctx context.Context, leadID uuid.UUID, touchNumber int) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CreatePendingReply(ctx context.Context, replyEventID, leadID uuid.UUID) (ReplySend, error)
	MarkReplySent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	MarkReplyFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// BudgetCounter is the shared daily send budget.
type BudgetCounter interface {
	Reserve(ctx context.Context, now time.Time) error
	Release(ctx context.Context, now time.Time) error
}

// Transitioner is the state machine surface the queue needs after a
// confirmed send.
type Transitioner interface {
	Transition(ctx context.Context, leadID uuid.UUID, to domain.Status, params leads.TransitionParams) (domain.Lead, error)
}

// Auditor appends ledger entries.
type Auditor interface {
	Append(ctx context.Context, params audit.AppendParams) error
}

// Clock lets tests pin the admission time.
type Clock func() time.Time

// Queue is the rate-limited send queue. Admission order is fixed:
// lint, suppression, idempotency, daily budget; only then is the gateway
// called. A gateway failure releases the budget.
type Queue struct {
	suppression SuppressionChecker
	touches     TouchStore
	counter     BudgetCounter
	gateway     Gateway
	machine     Transitioner
	auditLog    Auditor
	log         *logger.Logger
	now         Clock
}

func NewQueue(
	suppression SuppressionChecker,
	touches TouchStore,
	counter BudgetCounter,
	gateway Gateway,
	machine Transitioner,
	auditLog Auditor,
	log *logger.Logger,
) *Queue {
	return &Queue{
		suppression: suppression,
		touches:     touches,
		counter:     counter,
		gateway:     gateway,
		machine:     machine,
		auditLog:    auditLog,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the admission clock, for tests.
func (q *Queue) WithClock(clock Clock) *Queue {
	q.now = clock
	return q
}

// TouchRequest is a numbered sequence send.
type TouchRequest struct {
	Lead        domain.Lead
	TouchNumber int
	Subject     string
	Body        string
	// NextActionAt is applied to the lead after a confirmed send: the due
	// time of the next touch, or of the lost check after the final one.
	NextActionAt *time.Time
}

// SendTouch admits and dispatches one sequence touch, then advances the
// state machine. Expected rejections come back as the sentinel errors in
// this package; the caller decides which are no-ops.
func (q *Queue) SendTouch(ctx context.Context, req TouchRequest) error {
	leadID := req.Lead.ID
	now := q.now()

	if result := lint.Check(req.Subject, req.Body, 0); !result.OK {
		q.appendAudit(ctx, audit.EventLintRejected, leadID, map[string]any{
			"touch_number": req.TouchNumber,
			"violations":   result.Violations,
		})
		return fmt.Errorf("%w: %s", ErrLintRejected, result.Error())
	}

	suppressed, err := q.suppression.IsSuppressed(ctx, req.Lead.Email)
	if err != nil {
		return fmt.Errorf("suppression check: %w", err)
	}
	if suppressed {
		q.appendAudit(ctx, audit.EventSendSuppressed, leadID, map[string]any{
			"touch_number": req.TouchNumber,
			"destination":  req.Lead.Email,
		})
		return ErrSuppressed
	}

	live, err := q.touches.HasLiveTouch(ctx, leadID, req.TouchNumber)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if live {
		q.appendAudit(ctx, audit.EventSendDuplicate, leadID, map[string]any{
			"touch_number": req.TouchNumber,
		})
		return ErrDuplicateTouch
	}

	if err := q.counter.Reserve(ctx, now); err != nil {
		if errors.Is(err, ErrRateLimited) {
			q.appendAudit(ctx, audit.EventSendRateLimited, leadID, map[string]any{
				"touch_number": req.TouchNumber,
			})
		}
		return err
	}

	touch, err := q.touches.CreatePending(ctx, CreateTouchParams{
		LeadID:      leadID,
		TouchNumber: req.TouchNumber,
		Subject:     req.Subject,
		Body:        req.Body,
	})
	if err != nil {
		q.releaseBudget(ctx, now)
		if errors.Is(err, ErrDuplicateTouch) {
			q.appendAudit(ctx, audit.EventSendDuplicate, leadID, map[string]any{
				"touch_number": req.TouchNumber,
			})
		}
		return err
	}

	messageID, sendErr := q.gateway.Send(ctx, Message{
		To:        req.Lead.Email,
		Subject:   req.Subject,
		Body:      req.Body,
		ThreadRef: ThreadRef(leadID),
	})
	if sendErr != nil {
		// Failed dispatch: free the touch slot and the budget so the
		// lead is retried by natural rescheduling.
		if err := q.touches.MarkFailed(ctx, touch.ID, sendErr.Error()); err != nil {
			q.log.DatabaseError("mark touch failed", err)
		}
		q.releaseBudget(ctx, now)
		q.appendAudit(ctx, audit.EventTouchFailed, leadID, map[string]any{
			"touch_number": req.TouchNumber,
			"error":        sendErr.Error(),
		})
		q.log.SendEvent("touch_dispatch", leadID.String(), false, sendErr.Error())
		return fmt.Errorf("%w: %v", ErrSendFailed, sendErr)
	}

	sentAt := q.now()
	if err := q.touches.MarkSent(ctx, touch.ID, messageID, sentAt); err != nil {
		q.log.DatabaseError("mark touch sent", err)
	}

	if _, err := q.machine.Transition(ctx, leadID, domain.StatusTouchSent, leads.TransitionParams{
		NextActionAt: req.NextActionAt,
		Payload:      map[string]any{"provider_message_id": messageID},
	}); err != nil {
		// The message is out; the state divergence is surfaced, not
		// hidden behind a rollback that cannot unsend it.
		q.log.Error("transition_after_send_failed", "lead_id", leadID.String(), "error", err.Error())
		return err
	}

	q.appendAudit(ctx, audit.EventTouchSent, leadID, map[string]any{
		"touch_number":        req.TouchNumber,
		"provider_message_id": messageID,
	})
	q.log.SendEvent("touch_dispatch", leadID.String(), true, "")
	return nil
}

// ReplyRequest is a human-approved response to an inbound reply. It
// bypasses touch numbering and timing but keeps the suppression and lint
// gates. A zero ReplyEventID (booking confirmations) skips the
// reply-event idempotency record.
type ReplyRequest struct {
	Lead         domain.Lead
	Subject      string
	Body         string
	ReplyEventID uuid.UUID
	Attachments  []Attachment
}

// SendReply dispatches an approved reply. Each reply event dispatches at
// most once: a pending record is claimed before the gateway is called, so
// a redelivered task after a crash or a failed confirmation write returns
// ErrDuplicateReply instead of a second email.
func (q *Queue) SendReply(ctx context.Context, req ReplyRequest) error {
	leadID := req.Lead.ID

	if result := lint.Check(req.Subject, req.Body, 0); !result.OK {
		q.appendAudit(ctx, audit.EventLintRejected, leadID, map[string]any{
			"reply_event_id": req.ReplyEventID.String(),
			"violations":     result.Violations,
		})
		return fmt.Errorf("%w: %s", ErrLintRejected, result.Error())
	}

	suppressed, err := q.suppression.IsSuppressed(ctx, req.Lead.Email)
	if err != nil {
		return fmt.Errorf("suppression check: %w", err)
	}
	if suppressed {
		q.appendAudit(ctx, audit.EventSendSuppressed, leadID, map[string]any{
			"reply_event_id": req.ReplyEventID.String(),
			"destination":    req.Lead.Email,
		})
		return ErrSuppressed
	}

	var record ReplySend
	tracked := req.ReplyEventID != uuid.Nil
	if tracked {
		record, err = q.touches.CreatePendingReply(ctx, req.ReplyEventID, leadID)
		if errors.Is(err, ErrDuplicateReply) {
			q.appendAudit(ctx, audit.EventSendDuplicate, leadID, map[string]any{
				"reply_event_id": req.ReplyEventID.String(),
			})
			return ErrDuplicateReply
		}
		if err != nil {
			return fmt.Errorf("record reply send: %w", err)
		}
	}

	messageID, sendErr := q.gateway.Send(ctx, Message{
		To:          req.Lead.Email,
		Subject:     req.Subject,
		Body:        req.Body,
		ThreadRef:   ThreadRef(leadID),
		Attachments: req.Attachments,
	})
	if sendErr != nil {
		if tracked {
			if err := q.touches.MarkReplyFailed(ctx, record.ID, sendErr.Error()); err != nil {
				q.log.DatabaseError("mark reply send failed", err)
			}
		}
		q.log.SendEvent("reply_dispatch", leadID.String(), false, sendErr.Error())
		return fmt.Errorf("%w: %v", ErrSendFailed, sendErr)
	}

	if tracked {
		if err := q.touches.MarkReplySent(ctx, record.ID, messageID, q.now()); err != nil {
			q.log.DatabaseError("mark reply send sent", err)
		}
	}

	q.appendAudit(ctx, audit.EventReplySent, leadID, map[string]any{
		"reply_event_id":      req.ReplyEventID.String(),
		"provider_message_id": messageID,
	})
	q.log.SendEvent("reply_dispatch", leadID.String(), true, "")
	return nil
}

func (q *Queue) releaseBudget(ctx context.Context, now time.Time) {
	if err := q.counter.Release(ctx, now); err != nil {
		q.log.Error("release_send_budget_failed", "error", err.Error())
	}
}

func (q *Queue) appendAudit(ctx context.Context, event string, leadID uuid.UUID, payload map[string]any) {
	err := q.auditLog.Append(ctx, audit.AppendParams{
		Event:   event,
		LeadID:  &leadID,
		Payload: payload,
	})
	if err != nil {
		q.log.DatabaseError("append audit", err)
	}
}
