// Package replies ingests inbound messages, correlates them to leads and
// routes them through classification into the state machine.
package replies

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("reply event not found")
	// ErrDuplicateEvent marks an inbound event whose source identifier was
	// already recorded. Duplicates are acknowledged, never reprocessed.
	ErrDuplicateEvent = errors.New("duplicate reply event")
)

// Reply classifications.
const (
	ClassificationUnmatched   = "unmatched"
	ClassificationUnsubscribe = "unsubscribe"
	ClassificationMeeting     = "meeting_intent"
	ClassificationObjection   = "objection"
	ClassificationGeneral     = "general"
)

// ReplyEvent is one recorded inbound message. LeadID is nil when the
// message could not be correlated to any lead.
type ReplyEvent struct {
	ID                uuid.UUID
	LeadID            *uuid.UUID
	SourceEventID     string
	FromAddress       string
	ToAddress         string
	ThreadRef         string
	Subject           string
	Body              string
	Classification    string
	ObjectionCategory string
	MatchConfidence   float64
	ReceivedAt        time.Time
	CreatedAt         time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const replyColumns = `id, lead_id, source_event_id, from_address, to_address, thread_ref,
	subject, body, classification, objection_category, match_confidence, received_at, created_at`

func scanReply(row pgx.Row) (ReplyEvent, error) {
	var r ReplyEvent
	err := row.Scan(
		&r.ID, &r.LeadID, &r.SourceEventID, &r.FromAddress, &r.ToAddress, &r.ThreadRef,
		&r.Subject, &r.Body, &r.Classification, &r.ObjectionCategory, &r.MatchConfidence,
		&r.ReceivedAt, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReplyEvent{}, ErrNotFound
	}
	if err != nil {
		return ReplyEvent{}, err
	}
	return r, nil
}

type RecordParams struct {
	LeadID        *uuid.UUID
	SourceEventID string
	FromAddress   string
	ToAddress     string
	ThreadRef     string
	Subject       string
	Body          string
	ReceivedAt    time.Time
}

// Record inserts the raw inbound event. The unique index on the source
// event id is the dedup gate: a second insert with the same id returns
// ErrDuplicateEvent.
func (r *Repository) Record(ctx context.Context, params RecordParams) (ReplyEvent, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO reply_events (lead_id, source_event_id, from_address, to_address, thread_ref, subject, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_event_id) DO NOTHING
		RETURNING `+replyColumns+`
	`, params.LeadID, params.SourceEventID, params.FromAddress, params.ToAddress,
		params.ThreadRef, params.Subject, params.Body, params.ReceivedAt)

	reply, err := scanReply(row)
	if errors.Is(err, ErrNotFound) {
		return ReplyEvent{}, ErrDuplicateEvent
	}
	return reply, err
}

type ClassifyParams struct {
	Classification    string
	ObjectionCategory string
	MatchConfidence   float64
}

// Classify stores the classification outcome for a recorded event.
func (r *Repository) Classify(ctx context.Context, id uuid.UUID, params ClassifyParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reply_events
		SET classification = $2, objection_category = $3, match_confidence = $4
		WHERE id = $1
	`, id, params.Classification, params.ObjectionCategory, params.MatchConfidence)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (ReplyEvent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+replyColumns+` FROM reply_events WHERE id = $1`, id)
	return scanReply(row)
}

// ListByLead returns a lead's reply history, newest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]ReplyEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+replyColumns+`
		FROM reply_events
		WHERE lead_id = $1
		ORDER BY received_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]ReplyEvent, 0)
	for rows.Next() {
		reply, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, reply)
	}
	return events, rows.Err()
}
