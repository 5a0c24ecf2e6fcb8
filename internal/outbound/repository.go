package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("touch not found")

// Touch delivery statuses.
const (
	TouchStatusPending = "pending"
	TouchStatusSent    = "sent"
	TouchStatusFailed  = "failed"
)

// Touch is one outbound message attempt. Sent touches are immutable.
type Touch struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	TouchNumber       int
	Status            string
	Subject           string
	Body              string
	ProviderMessageID string
	FailureReason     string
	SentAt            *time.Time
	CreatedAt         time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateTouchParams struct {
	LeadID      uuid.UUID
	TouchNumber int
	Subject     string
	Body        string
}

// CreatePending inserts a pending touch. The partial unique index on
// (lead_id, touch_number) for non-failed rows makes this the idempotency
// gate: a second live attempt returns ErrDuplicateTouch.
func (r *Repository) CreatePending(ctx context.Context, params CreateTouchParams) (Touch, error) {
	var touch Touch
	err := r.pool.QueryRow(ctx, `
		INSERT INTO touches (lead_id, touch_number, status, subject, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING id, lead_id, touch_number, status, subject, body, provider_message_id, failure_reason, sent_at, created_at
	`, params.LeadID, params.TouchNumber, TouchStatusPending, params.Subject, params.Body).Scan(
		&touch.ID, &touch.LeadID, &touch.TouchNumber, &touch.Status, &touch.Subject,
		&touch.Body, &touch.ProviderMessageID, &touch.FailureReason, &touch.SentAt, &touch.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Touch{}, ErrDuplicateTouch
	}
	if err != nil {
		return Touch{}, err
	}
	return touch, nil
}

// HasLiveTouch reports whether a non-failed touch exists for the pair.
func (r *Repository) HasLiveTouch(ctx context.Context, leadID uuid.UUID, touchNumber int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM touches
			WHERE lead_id = $1 AND touch_number = $2 AND status <> $3
		)
	`, leadID, touchNumber, TouchStatusFailed).Scan(&exists)
	return exists, err
}

// MarkSent records a confirmed delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE touches
		SET status = $2, provider_message_id = $3, sent_at = $4
		WHERE id = $1 AND status = $5
	`, id, TouchStatusSent, providerMessageID, sentAt, TouchStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a gateway failure, freeing the (lead, touch number)
// slot for a retry on a later cycle.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE touches
		SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = $4
	`, id, TouchStatusFailed, reason, TouchStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplySend is one dispatch attempt for an approved reply, keyed by the
// inbound reply event it answers.
type ReplySend struct {
	ID                uuid.UUID
	ReplyEventID      uuid.UUID
	LeadID            uuid.UUID
	Status            string
	ProviderMessageID string
	FailureReason     string
	SentAt            *time.Time
	CreatedAt         time.Time
}

// CreatePendingReply inserts a pending reply send. The partial unique
// index on reply_event_id for non-failed rows makes this the idempotency
// gate: a redelivered dispatch returns ErrDuplicateReply.
func (r *Repository) CreatePendingReply(ctx context.Context, replyEventID, leadID uuid.UUID) (ReplySend, error) {
	var send ReplySend
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reply_sends (reply_event_id, lead_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, reply_event_id, lead_id, status, provider_message_id, failure_reason, sent_at, created_at
	`, replyEventID, leadID, TouchStatusPending).Scan(
		&send.ID, &send.ReplyEventID, &send.LeadID, &send.Status,
		&send.ProviderMessageID, &send.FailureReason, &send.SentAt, &send.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReplySend{}, ErrDuplicateReply
	}
	if err != nil {
		return ReplySend{}, err
	}
	return send, nil
}

// MarkReplySent records a confirmed reply delivery.
func (r *Repository) MarkReplySent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reply_sends
		SET status = $2, provider_message_id = $3, sent_at = $4
		WHERE id = $1 AND status = $5
	`, id, TouchStatusSent, providerMessageID, sentAt, TouchStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReplyFailed records a reply gateway failure, freeing the reply
// event for a retried dispatch.
func (r *Repository) MarkReplyFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reply_sends
		SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = $4
	`, id, TouchStatusFailed, reason, TouchStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailStalePending fails pending rows older than the cutoff, in both the
// touch and reply-send tables. A pending row only outlives its dispatch
// when the process died in between; until it is failed, the idempotency
// gates treat it as live and block the lead's retry.
func (r *Repository) FailStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	touches, err := r.pool.Exec(ctx, `
		UPDATE touches
		SET status = $1, failure_reason = 'stale pending attempt'
		WHERE status = $2 AND created_at < $3
	`, TouchStatusFailed, TouchStatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	replies, err := r.pool.Exec(ctx, `
		UPDATE reply_sends
		SET status = $1, failure_reason = 'stale pending attempt'
		WHERE status = $2 AND created_at < $3
	`, TouchStatusFailed, TouchStatusPending, cutoff)
	if err != nil {
		return touches.RowsAffected(), err
	}
	return touches.RowsAffected() + replies.RowsAffected(), nil
}

// LastSent returns the most recent sent touch for a lead.
func (r *Repository) LastSent(ctx context.Context, leadID uuid.UUID) (Touch, error) {
	var touch Touch
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, touch_number, status, subject, body, provider_message_id, failure_reason, sent_at, created_at
		FROM touches
		WHERE lead_id = $1 AND status = $2
		ORDER BY touch_number DESC
		LIMIT 1
	`, leadID, TouchStatusSent).Scan(
		&touch.ID, &touch.LeadID, &touch.TouchNumber, &touch.Status, &touch.Subject,
		&touch.Body, &touch.ProviderMessageID, &touch.FailureReason, &touch.SentAt, &touch.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Touch{}, ErrNotFound
	}
	if err != nil {
		return Touch{}, err
	}
	return touch, nil
}
