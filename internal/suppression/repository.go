// Package suppression maintains the permanent do-not-contact list. Entries
// block lead intake, send admission and reply-driven follow-ups until
// explicitly removed.
package suppression

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("suppression entry not found")

// Suppression reasons.
const (
	ReasonUnsubscribe = "unsubscribe"
	ReasonBounce      = "bounce"
	ReasonComplaint   = "complaint"
	ReasonManual      = "manual"
)

type Entry struct {
	ID        uuid.UUID
	Email     string
	Domain    string
	Reason    string
	CreatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Add inserts a suppression entry. Re-suppressing an address is a no-op so
// the operation is safe to repeat from webhooks and manual admin calls.
func (r *Repository) Add(ctx context.Context, email, domain, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO suppression_list (email, domain, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, strings.ToLower(strings.TrimSpace(email)), strings.ToLower(strings.TrimSpace(domain)), reason)
	return err
}

// IsSuppressed checks the address and its domain against the list.
func (r *Repository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	domain := emailDomain(email)

	var suppressed bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM suppression_list
			WHERE (email <> '' AND lower(email) = $1)
			   OR (domain <> '' AND lower(domain) = $2)
		)
	`, email, domain).Scan(&suppressed)
	return suppressed, err
}

// GetByEmail returns the entry matching the exact address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Entry, error) {
	var entry Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, domain, reason, created_at
		FROM suppression_list
		WHERE email <> '' AND lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&entry.ID, &entry.Email, &entry.Domain, &entry.Reason, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Remove deletes an entry, lifting the block.
func (r *Repository) Remove(ctx context.Context, email string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM suppression_list WHERE email <> '' AND lower(email) = lower($1)
	`, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
		return email[at+1:]
	}
	return ""
}
