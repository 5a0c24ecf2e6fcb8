// Package leads hosts the lead state machine, the single writer of lead
// status, touch number and next action time.
package leads

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/internal/audit"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalChecker reports whether a lead has a reply draft awaiting human
// action. Touch advancement is blocked while one is pending.
type ApprovalChecker interface {
	HasPending(ctx context.Context, leadID uuid.UUID) (bool, error)
}

// Machine applies guarded status transitions. Every transition and its
// audit entry commit in one transaction.
type Machine struct {
	pool     *pgxpool.Pool
	repo     *repository.Repository
	auditLog *audit.Repository
	approval ApprovalChecker
	log      *logger.Logger
}

func NewMachine(pool *pgxpool.Pool, repo *repository.Repository, auditLog *audit.Repository, approval ApprovalChecker, log *logger.Logger) *Machine {
	return &Machine{
		pool:     pool,
		repo:     repo,
		auditLog: auditLog,
		approval: approval,
		log:      log,
	}
}

// TransitionParams carries the context of a transition request.
type TransitionParams struct {
	// NextActionAt schedules the next orchestrator action. Ignored for
	// terminal targets, which always clear it.
	NextActionAt *time.Time
	Actor        string
	RequestID    string
	Reason       string
	// Payload is merged into the audit entry.
	Payload map[string]any
}

// Transition moves a lead to the target status. The lead row is locked for
// the duration so concurrent scheduled sends and inbound replies serialize
// at the database even if in-process locks are bypassed.
func (m *Machine) Transition(ctx context.Context, leadID uuid.UUID, to domain.Status, params TransitionParams) (domain.Lead, error) {
	if to == domain.StatusTouchSent && m.approval != nil {
		pending, err := m.approval.HasPending(ctx, leadID)
		if err != nil {
			return domain.Lead{}, fmt.Errorf("check pending approval: %w", err)
		}
		if pending {
			return domain.Lead{}, fmt.Errorf("%w: lead %s has a pending draft approval", domain.ErrInvalidTransition, leadID)
		}
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback(ctx)

	lead, err := m.repo.GetByIDTx(ctx, tx, leadID)
	if err != nil {
		return domain.Lead{}, err
	}

	if !domain.CanTransition(lead.Status, to, lead.CurrentTouchNumber) {
		m.log.Warn("invalid_transition",
			"lead_id", leadID.String(),
			"from", string(lead.Status),
			"to", string(to),
			"touch_number", lead.CurrentTouchNumber,
		)
		return domain.Lead{}, fmt.Errorf("%w: %s -> %s (touch %d)", domain.ErrInvalidTransition, lead.Status, to, lead.CurrentTouchNumber)
	}

	touchNumber := lead.CurrentTouchNumber
	if to == domain.StatusTouchSent {
		touchNumber++
	}

	nextActionAt := params.NextActionAt
	if domain.IsTerminal(to) {
		nextActionAt = nil
	}

	update := repository.UpdateStateParams{
		Status:             to,
		CurrentTouchNumber: touchNumber,
		NextActionAt:       nextActionAt,
	}
	if err := m.repo.UpdateStateTx(ctx, tx, leadID, update); err != nil {
		return domain.Lead{}, err
	}

	payload := map[string]any{
		"from":         string(lead.Status),
		"to":           string(to),
		"touch_number": touchNumber,
	}
	if params.Reason != "" {
		payload["reason"] = params.Reason
	}
	for key, value := range params.Payload {
		payload[key] = value
	}

	err = m.auditLog.AppendTx(ctx, tx, audit.AppendParams{
		Event:     audit.EventStatusChanged,
		LeadID:    &leadID,
		Actor:     params.Actor,
		RequestID: params.RequestID,
		Payload:   payload,
	})
	if err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}

	lead.Status = to
	lead.CurrentTouchNumber = touchNumber
	lead.NextActionAt = nextActionAt

	m.log.Info("lead_transition",
		"lead_id", leadID.String(),
		"from", payload["from"],
		"to", string(to),
		"touch_number", touchNumber,
	)
	return lead, nil
}

// Suppress moves the lead to suppressed regardless of its current
// non-terminal status and clears its schedule.
func (m *Machine) Suppress(ctx context.Context, leadID uuid.UUID, reason, actor, requestID string) (domain.Lead, error) {
	return m.Transition(ctx, leadID, domain.StatusSuppressed, TransitionParams{
		Actor:     actor,
		RequestID: requestID,
		Reason:    reason,
	})
}
