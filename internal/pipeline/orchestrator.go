// Package pipeline is the polling orchestrator: every cycle it collects
// due leads and routes each one through the sequence scheduler into the
// send queue or a lost transition.
package pipeline

import (
	"context"
	"errors"
	"time"

	"outreach_backend/internal/drafts"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/outbound"
	"outreach_backend/internal/sequence"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// batchSize bounds one polling cycle. Leads left over stay due and are
// picked up next cycle.
const batchSize = 100

// LeadSource lists due leads and reloads them under the lock.
type LeadSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// TouchSender admits and dispatches a sequence touch.
type TouchSender interface {
	SendTouch(ctx context.Context, req outbound.TouchRequest) error
}

// Transitioner marks exhausted leads lost.
type Transitioner interface {
	Transition(ctx context.Context, leadID uuid.UUID, to domain.Status, params leads.TransitionParams) (domain.Lead, error)
}

// Clock lets tests pin the cycle time.
type Clock func() time.Time

// Orchestrator runs the polling loop. Failures are isolated per lead; a
// cycle never aborts because one lead misbehaved.
type Orchestrator struct {
	source    LeadSource
	scheduler *sequence.Scheduler
	provider  drafts.Provider
	sender    TouchSender
	machine   Transitioner
	locks     *locks.KeyedMutex
	log       *logger.Logger
	interval  time.Duration
	workers   int
	now       Clock
}

type OrchestratorParams struct {
	Source    LeadSource
	Scheduler *sequence.Scheduler
	Provider  drafts.Provider
	Sender    TouchSender
	Machine   Transitioner
	Locks     *locks.KeyedMutex
	Logger    *logger.Logger
}

func NewOrchestrator(cfg config.SchedulerConfig, params OrchestratorParams) *Orchestrator {
	workers := cfg.GetWorkerCount()
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		source:    params.Source,
		scheduler: params.Scheduler,
		provider:  params.Provider,
		sender:    params.Sender,
		machine:   params.Machine,
		locks:     params.Locks,
		log:       params.Logger,
		interval:  cfg.GetPollInterval(),
		workers:   workers,
		now:       time.Now,
	}
}

// WithClock overrides the cycle clock, for tests.
func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	o.now = clock
	return o
}

// Run polls until the context is cancelled. The in-flight cycle drains
// before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.log.Info("pipeline_started", "interval", o.interval.String(), "workers", o.workers)

	for {
		o.Cycle(ctx)

		select {
		case <-ctx.Done():
			o.log.Info("pipeline_stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle processes one batch of due leads with a bounded worker pool.
func (o *Orchestrator) Cycle(ctx context.Context) {
	now := o.now()

	due, err := o.source.ListDue(ctx, now, batchSize)
	if err != nil {
		o.log.DatabaseError("list due leads", err)
		return
	}
	if len(due) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)

	for _, lead := range due {
		leadID := lead.ID
		group.Go(func() error {
			if err := o.processLead(groupCtx, leadID, now); err != nil {
				o.log.Error("lead_cycle_failed", "lead_id", leadID.String(), "error", err.Error())
			}
			// Per-lead isolation: never fail the group.
			return nil
		})
	}
	_ = group.Wait()
}

// processLead re-plans under the per-lead lock so a reply that landed
// between listing and locking wins.
func (o *Orchestrator) processLead(ctx context.Context, leadID uuid.UUID, now time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Draft generation is slow and touches no lead state, so it happens
	// before the lock using a provisional plan.
	lead, err := o.source.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	action := o.scheduler.Plan(lead, now)
	if action.Kind == sequence.ActionNone || action.Kind == sequence.ActionDefer {
		return nil
	}

	var draft drafts.Draft
	if action.Kind == sequence.ActionSendTouch {
		draft, err = o.provider.Generate(ctx, drafts.LeadContext{
			CompanyName: lead.CompanyName,
			ContactName: lead.ContactName,
			Website:     lead.Website,
			Email:       lead.Email,
		}, action.TouchNumber, lead.LeverageAngle)
		if err != nil {
			// Transient: the lead stays due for the next cycle.
			return err
		}
	}

	unlock := o.locks.Lock(leadID)
	defer unlock()

	lead, err = o.source.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	confirmed := o.scheduler.Plan(lead, now)
	if confirmed.Kind != action.Kind || confirmed.TouchNumber != action.TouchNumber {
		// The lead moved while the draft was being generated.
		return nil
	}

	switch confirmed.Kind {
	case sequence.ActionSendTouch:
		return o.dispatchTouch(ctx, lead, confirmed.TouchNumber, draft)
	case sequence.ActionMarkLost:
		return o.markLost(ctx, lead)
	default:
		return nil
	}
}

func (o *Orchestrator) dispatchTouch(ctx context.Context, lead domain.Lead, touchNumber int, draft drafts.Draft) error {
	// The final touch gets the exhaustion checkpoint as its due time, so
	// ListDue keeps returning the lead and a later cycle marks it lost.
	nextActionAt := o.scheduler.AfterSend(touchNumber, o.now())

	err := o.sender.SendTouch(ctx, outbound.TouchRequest{
		Lead:         lead,
		TouchNumber:  touchNumber,
		Subject:      draft.Subject,
		Body:         draft.Body,
		NextActionAt: &nextActionAt,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, outbound.ErrDuplicateTouch):
		// Another worker won the race; nothing to do.
		return nil
	case errors.Is(err, outbound.ErrRateLimited):
		// Budget exhausted for today; the lead stays due.
		return nil
	case errors.Is(err, outbound.ErrSuppressed):
		_, serr := o.machine.Transition(ctx, lead.ID, domain.StatusSuppressed, leads.TransitionParams{
			Reason: "suppressed at send admission",
		})
		return serr
	default:
		return err
	}
}

func (o *Orchestrator) markLost(ctx context.Context, lead domain.Lead) error {
	_, err := o.machine.Transition(ctx, lead.ID, domain.StatusLost, leads.TransitionParams{
		Reason:  "sequence exhausted without reply",
		Payload: map[string]any{"touches_sent": lead.CurrentTouchNumber},
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil
	}
	return err
}
