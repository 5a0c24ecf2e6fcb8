package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"outreach_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, email, company_name, contact_name, phone, website, source,
	leverage_angle, status, current_touch_number, next_action_at, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(
		&lead.ID, &lead.Email, &lead.CompanyName, &lead.ContactName, &lead.Phone,
		&lead.Website, &lead.Source, &lead.LeverageAngle, &lead.Status,
		&lead.CurrentTouchNumber, &lead.NextActionAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

type CreateLeadParams struct {
	Email         string
	CompanyName   string
	ContactName   string
	Phone         string
	Website       string
	Source        string
	LeverageAngle string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (email, company_name, contact_name, phone, website, source, leverage_angle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+leadColumns+`
	`,
		strings.ToLower(strings.TrimSpace(params.Email)), params.CompanyName, params.ContactName,
		params.Phone, params.Website, params.Source, params.LeverageAngle,
	)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email))
	return scanLead(row)
}

// GetByIDTx reads a lead inside a transaction, locking the row so the state
// machine can apply a guarded transition without racing a concurrent writer.
func (r *Repository) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Lead, error) {
	row := tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id)
	return scanLead(row)
}

// ListDue returns non-terminal leads whose next_action_at has elapsed.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE next_action_at IS NOT NULL AND next_action_at <= $1
		ORDER BY next_action_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

type UpdateStateParams struct {
	Status             domain.Status
	CurrentTouchNumber int
	NextActionAt       *time.Time
}

// UpdateStateTx writes the machine-owned fields inside the caller's
// transaction so the status change and its audit entry commit together.
func (r *Repository) UpdateStateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, params UpdateStateParams) error {
	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET status = $2, current_touch_number = $3, next_action_at = $4, updated_at = now()
		WHERE id = $1
	`, id, params.Status, params.CurrentTouchNumber, params.NextActionAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateNextActionAt reschedules a lead without touching its status.
func (r *Repository) UpdateNextActionAt(ctx context.Context, id uuid.UUID, nextActionAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET next_action_at = $2, updated_at = now() WHERE id = $1
	`, id, nextActionAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns the number of leads per status for pipeline stats.
func (r *Repository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
