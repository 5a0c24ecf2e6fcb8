package approval

import (
	"context"
	"fmt"

	"outreach_backend/internal/audit"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// DecisionStore is the repository surface the service needs.
type DecisionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (DraftApproval, error)
	ListPending(ctx context.Context, limit int) ([]DraftApproval, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, subject string, body *string) error
	Decide(ctx context.Context, id uuid.UUID, status, decidedBy string) (DraftApproval, error)
}

// Enqueuer hands approved drafts to the dispatch queue.
type Enqueuer interface {
	EnqueueReplySend(ctx context.Context, approvalID uuid.UUID) error
}

// Auditor appends ledger entries.
type Auditor interface {
	Append(ctx context.Context, params audit.AppendParams) error
}

// Service drives operator decisions on drafted replies. No outbound reply
// leaves the system without passing through Approve.
type Service struct {
	store    DecisionStore
	tasks    Enqueuer
	auditLog Auditor
	log      *logger.Logger
}

func NewService(store DecisionStore, tasks Enqueuer, auditLog Auditor, log *logger.Logger) *Service {
	return &Service{store: store, tasks: tasks, auditLog: auditLog, log: log}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (DraftApproval, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListPending(ctx context.Context, limit int) ([]DraftApproval, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListPending(ctx, limit)
}

// ApproveParams carries the operator decision. Subject and Body, when
// set, replace the drafted copy before dispatch.
type ApproveParams struct {
	DecidedBy string
	Subject   *string
	Body      *string
}

// Approve marks a pending draft approved and queues its dispatch. A
// second approval of the same record fails with ErrInvalidApprovalState
// and queues nothing.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, params ApproveParams) (DraftApproval, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return DraftApproval{}, err
	}

	subject := current.DraftSubject
	if params.Subject != nil {
		subject = *params.Subject
	}
	body := current.DraftBody
	if params.Body != nil {
		body = params.Body
	}
	if body == nil || *body == "" {
		return DraftApproval{}, fmt.Errorf("approval %s has no draft body", id)
	}

	if params.Subject != nil || params.Body != nil {
		if err := s.store.UpdateDraft(ctx, id, subject, body); err != nil {
			return DraftApproval{}, err
		}
	}

	record, err := s.store.Decide(ctx, id, StatusApproved, params.DecidedBy)
	if err != nil {
		return DraftApproval{}, err
	}

	s.audit(ctx, audit.EventDraftApproved, record, params.DecidedBy)

	if err := s.tasks.EnqueueReplySend(ctx, record.ID); err != nil {
		// The approval stands; dispatch can be re-queued from the ledger.
		s.log.Error("reply_send_enqueue_failed", "approval_id", record.ID.String(), "error", err.Error())
		return record, fmt.Errorf("enqueue reply send: %w", err)
	}

	s.log.Info("draft_approved", "approval_id", record.ID.String(), "decided_by", params.DecidedBy)
	return record, nil
}

// Reject marks a pending draft rejected. The lead stays where it is; the
// conversation returns to manual handling.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, decidedBy string) (DraftApproval, error) {
	record, err := s.store.Decide(ctx, id, StatusRejected, decidedBy)
	if err != nil {
		return DraftApproval{}, err
	}

	s.audit(ctx, audit.EventDraftRejected, record, decidedBy)
	s.log.Info("draft_rejected", "approval_id", record.ID.String(), "decided_by", decidedBy)
	return record, nil
}

func (s *Service) audit(ctx context.Context, event string, record DraftApproval, actor string) {
	err := s.auditLog.Append(ctx, audit.AppendParams{
		Event:  event,
		LeadID: &record.LeadID,
		Actor:  actor,
		Payload: map[string]any{
			"approval_id":    record.ID.String(),
			"reply_event_id": record.ReplyEventID.String(),
			"category":       record.ObjectionCategory,
		},
	})
	if err != nil {
		s.log.DatabaseError("append audit", err)
	}
}
