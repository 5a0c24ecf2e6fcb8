// Package service holds lead intake and operator actions on the pipeline.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"outreach_backend/internal/audit"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"

	"github.com/google/uuid"
)

// SuppressionList gates intake against the do-not-contact list and
// records manual suppressions on it.
type SuppressionList interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, email, domain, reason string) error
}

// BookingScheduler queues the booking confirmation email.
type BookingScheduler interface {
	ScheduleBookingConfirmation(ctx context.Context, leadID uuid.UUID) error
}

type Service struct {
	repo        *repository.Repository
	machine     *leads.Machine
	suppression SuppressionList
	auditLog    *audit.Repository
	booking     BookingScheduler
	bus         events.Bus
	log         *logger.Logger
}

func New(
	repo *repository.Repository,
	machine *leads.Machine,
	suppression SuppressionList,
	auditLog *audit.Repository,
	booking BookingScheduler,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:        repo,
		machine:     machine,
		suppression: suppression,
		auditLog:    auditLog,
		booking:     booking,
		bus:         bus,
		log:         log,
	}
}

// IntakeParams is a new lead entering the pipeline.
type IntakeParams struct {
	Email         string
	CompanyName   string
	ContactName   string
	Phone         string
	Website       string
	Source        string
	LeverageAngle string
	Actor         string
	RequestID     string
}

// Intake creates a lead in status new. Suppressed addresses are refused;
// an existing lead with the same email is a conflict, not a second row.
func (s *Service) Intake(ctx context.Context, params IntakeParams) (domain.Lead, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))

	suppressed, err := s.suppression.IsSuppressed(ctx, email)
	if err != nil {
		return domain.Lead{}, err
	}
	if suppressed {
		return domain.Lead{}, apperr.Conflict("address is on the do-not-contact list")
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return domain.Lead{}, apperr.Conflict("a lead with this email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, err
	}

	angle := params.LeverageAngle
	if angle != "" && !domain.IsKnownAngle(angle) {
		return domain.Lead{}, apperr.Validation("unknown leverage angle: " + angle)
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		Email:         email,
		CompanyName:   strings.TrimSpace(params.CompanyName),
		ContactName:   strings.TrimSpace(params.ContactName),
		Phone:         phone.NormalizeE164(params.Phone),
		Website:       strings.TrimSpace(params.Website),
		Source:        params.Source,
		LeverageAngle: angle,
	})
	if err != nil {
		return domain.Lead{}, err
	}

	if err := s.auditLog.Append(ctx, audit.AppendParams{
		Event:     audit.EventLeadCreated,
		LeadID:    &lead.ID,
		Actor:     params.Actor,
		RequestID: params.RequestID,
		Payload: map[string]any{
			"email":  lead.Email,
			"source": lead.Source,
		},
	}); err != nil {
		s.log.DatabaseError("append audit", err)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			Email:       lead.Email,
			CompanyName: lead.CompanyName,
			Source:      lead.Source,
		})
	}

	s.log.Info("lead_created", "lead_id", lead.ID.String(), "source", lead.Source)
	return lead, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

// Qualify moves a lead into the sequence and makes its first touch due
// immediately.
func (s *Service) Qualify(ctx context.Context, id uuid.UUID, actor, requestID string) (domain.Lead, error) {
	now := time.Now().UTC()
	lead, err := s.machine.Transition(ctx, id, domain.StatusQualified, leads.TransitionParams{
		NextActionAt: &now,
		Actor:        actor,
		RequestID:    requestID,
	})
	return lead, mapTransitionErr(err)
}

// Disqualify removes a lead before any touch goes out.
func (s *Service) Disqualify(ctx context.Context, id uuid.UUID, reason, actor, requestID string) (domain.Lead, error) {
	lead, err := s.machine.Transition(ctx, id, domain.StatusDisqualified, leads.TransitionParams{
		Actor:     actor,
		RequestID: requestID,
		Reason:    reason,
	})
	return lead, mapTransitionErr(err)
}

// Book records a manually arranged meeting and queues the confirmation.
func (s *Service) Book(ctx context.Context, id uuid.UUID, actor, requestID string) (domain.Lead, error) {
	lead, err := s.machine.Transition(ctx, id, domain.StatusBooked, leads.TransitionParams{
		Actor:     actor,
		RequestID: requestID,
		Reason:    "manual booking",
	})
	if err != nil {
		return domain.Lead{}, mapTransitionErr(err)
	}

	if err := s.auditLog.Append(ctx, audit.AppendParams{
		Event:     audit.EventLeadBooked,
		LeadID:    &lead.ID,
		Actor:     actor,
		RequestID: requestID,
		Payload:   map[string]any{"source": "manual"},
	}); err != nil {
		s.log.DatabaseError("append audit", err)
	}

	if s.booking != nil {
		if err := s.booking.ScheduleBookingConfirmation(ctx, lead.ID); err != nil {
			s.log.Error("booking_confirmation_enqueue_failed", "lead_id", lead.ID.String(), "error", err.Error())
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadBooked{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Source:    "manual",
		})
	}
	return lead, nil
}

// Suppress manually removes a lead from all outreach and puts its address
// on the do-not-contact list.
func (s *Service) Suppress(ctx context.Context, id uuid.UUID, reason, actor, requestID string) (domain.Lead, error) {
	if reason == "" {
		reason = "manual"
	}
	lead, err := s.machine.Suppress(ctx, id, reason, actor, requestID)
	if err != nil {
		return domain.Lead{}, mapTransitionErr(err)
	}

	if err := s.suppression.Add(ctx, lead.Email, "", reason); err != nil {
		s.log.DatabaseError("add suppression entry", err)
	}
	return lead, nil
}

// Stats returns lead counts per status.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByStatus(ctx)
}

// Timeline returns the lead's audit history, oldest first.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID) ([]audit.Entry, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.auditLog.ListByLead(ctx, id)
}

func mapTransitionErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperr.Wrap(apperr.KindConflict, "transition not allowed from current status", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("lead not found")
	default:
		return err
	}
}
