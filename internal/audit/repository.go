// Package audit provides the append-only audit ledger. Entries are never
// updated or deleted; the ledger is the source of truth for reconstructing
// lead history.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types recorded in the ledger.
const (
	EventLeadCreated      = "lead.created"
	EventStatusChanged    = "lead.status_changed"
	EventTouchSent        = "touch.sent"
	EventTouchFailed      = "touch.failed"
	EventSendSuppressed   = "send.suppressed"
	EventSendRateLimited  = "send.rate_limited"
	EventSendDuplicate    = "send.duplicate"
	EventReplyReceived    = "reply.received"
	EventReplyUnmatched   = "reply.unmatched"
	EventReplyDuplicate   = "reply.duplicate"
	EventObjectionMatched = "reply.objection_matched"
	EventDraftCreated     = "draft.created"
	EventDraftApproved    = "draft.approved"
	EventDraftRejected    = "draft.rejected"
	EventReplySent        = "reply.sent"
	EventLeadSuppressed   = "lead.suppressed"
	EventLeadBooked       = "lead.booked"
	EventLintRejected     = "send.lint_rejected"
)

// ActorSystem is the default actor for machine-initiated entries.
const ActorSystem = "system"

type Entry struct {
	ID        uuid.UUID
	Event     string
	LeadID    *uuid.UUID
	Actor     string
	RequestID string
	Payload   map[string]any
	CreatedAt time.Time
}

type AppendParams struct {
	Event     string
	LeadID    *uuid.UUID
	Actor     string
	RequestID string
	Payload   map[string]any
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Append(ctx context.Context, params AppendParams) error {
	payload, actor, err := marshalParams(params)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (event, lead_id, actor, request_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, params.Event, params.LeadID, actor, params.RequestID, payload)
	return err
}

// AppendTx appends inside the caller's transaction. The state machine uses
// this so a transition and its audit entry commit or roll back together.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, params AppendParams) error {
	payload, actor, err := marshalParams(params)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (event, lead_id, actor, request_id, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, params.Event, params.LeadID, actor, params.RequestID, payload)
	return err
}

// ListByLead returns a lead's audit trail, oldest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event, lead_id, actor, request_id, payload, created_at
		FROM audit_log
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Event, &entry.LeadID, &entry.Actor, &entry.RequestID, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Payload); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func marshalParams(params AppendParams) ([]byte, string, error) {
	actor := params.Actor
	if actor == "" {
		actor = ActorSystem
	}
	if params.Payload == nil {
		return []byte("{}"), actor, nil
	}
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return nil, "", err
	}
	return payload, actor, nil
}
