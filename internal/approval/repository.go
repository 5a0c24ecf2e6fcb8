// Package approval is the human-in-the-loop gate: every drafted reply
// waits here until an operator approves or rejects it.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("draft approval not found")
	// ErrInvalidApprovalState rejects a decision on a non-pending record,
	// including double approval.
	ErrInvalidApprovalState = errors.New("invalid approval state")
	// ErrPendingExists enforces at most one pending approval per lead.
	ErrPendingExists = errors.New("lead already has a pending draft approval")
)

// Approval statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusSent     = "sent"
)

// DraftApproval is one drafted reply awaiting human action. A nil
// DraftBody means no template matched and a draft still needs writing.
type DraftApproval struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	ReplyEventID      uuid.UUID
	ObjectionCategory string
	DraftSubject      string
	DraftBody         *string
	Status            string
	DecidedBy         string
	DecidedAt         *time.Time
	CreatedAt         time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const approvalColumns = `id, lead_id, reply_event_id, objection_category, draft_subject,
	draft_body, status, decided_by, decided_at, created_at`

func scanApproval(row pgx.Row) (DraftApproval, error) {
	var a DraftApproval
	err := row.Scan(
		&a.ID, &a.LeadID, &a.ReplyEventID, &a.ObjectionCategory, &a.DraftSubject,
		&a.DraftBody, &a.Status, &a.DecidedBy, &a.DecidedAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return DraftApproval{}, ErrNotFound
	}
	if err != nil {
		return DraftApproval{}, err
	}
	return a, nil
}

type CreateParams struct {
	LeadID            uuid.UUID
	ReplyEventID      uuid.UUID
	ObjectionCategory string
	DraftSubject      string
	DraftBody         *string
}

// Create inserts a pending approval. A lead may hold only one pending
// approval at a time, and each reply event produces at most one.
func (r *Repository) Create(ctx context.Context, params CreateParams) (DraftApproval, error) {
	pending, err := r.HasPending(ctx, params.LeadID)
	if err != nil {
		return DraftApproval{}, err
	}
	if pending {
		return DraftApproval{}, ErrPendingExists
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO draft_approvals (lead_id, reply_event_id, objection_category, draft_subject, draft_body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reply_event_id) DO NOTHING
		RETURNING `+approvalColumns+`
	`, params.LeadID, params.ReplyEventID, params.ObjectionCategory, params.DraftSubject, params.DraftBody)

	approval, err := scanApproval(row)
	if errors.Is(err, ErrNotFound) {
		// The reply event already produced an approval.
		return r.GetByReplyEvent(ctx, params.ReplyEventID)
	}
	return approval, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (DraftApproval, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM draft_approvals WHERE id = $1`, id)
	return scanApproval(row)
}

func (r *Repository) GetByReplyEvent(ctx context.Context, replyEventID uuid.UUID) (DraftApproval, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM draft_approvals WHERE reply_event_id = $1`, replyEventID)
	return scanApproval(row)
}

// HasPending reports whether the lead has a pending approval.
func (r *Repository) HasPending(ctx context.Context, leadID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM draft_approvals WHERE lead_id = $1 AND status = $2)
	`, leadID, StatusPending).Scan(&exists)
	return exists, err
}

// ListPending returns pending approvals, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]DraftApproval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+approvalColumns+`
		FROM draft_approvals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	approvals := make([]DraftApproval, 0)
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// UpdateDraft replaces the draft copy on a pending approval, for operator
// edits before the decision.
func (r *Repository) UpdateDraft(ctx context.Context, id uuid.UUID, subject string, body *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE draft_approvals
		SET draft_subject = $2, draft_body = $3
		WHERE id = $1 AND status = $4
	`, id, subject, body, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidApprovalState
	}
	return nil
}

// Decide flips a pending approval to approved or rejected. The status
// predicate in the update is the idempotency gate: deciding a non-pending
// record returns ErrInvalidApprovalState.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status, decidedBy string) (DraftApproval, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE draft_approvals
		SET status = $2, decided_by = $3, decided_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+approvalColumns+`
	`, id, status, decidedBy, StatusPending)

	approval, err := scanApproval(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return DraftApproval{}, ErrInvalidApprovalState
		}
		return DraftApproval{}, ErrNotFound
	}
	return approval, err
}

// MarkSent records that the approved draft was dispatched.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE draft_approvals SET status = $2 WHERE id = $1 AND status = $3
	`, id, StatusSent, StatusApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidApprovalState
	}
	return nil
}
