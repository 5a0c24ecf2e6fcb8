package scheduler

import (
	"context"
	"errors"
	"fmt"

	"outreach_backend/internal/approval"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/outbound"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	qrcode "github.com/skip2/go-qrcode"
)

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	approvals *approval.Repository
	leadRepo  *repository.Repository
	queue     *outbound.Queue
	machine   *leads.Machine
	identity  config.IdentityConfig
	locks     *locks.KeyedMutex
	log       *logger.Logger
}

type WorkerParams struct {
	Approvals *approval.Repository
	LeadRepo  *repository.Repository
	Queue     *outbound.Queue
	Machine   *leads.Machine
	Identity  config.IdentityConfig
	Locks     *locks.KeyedMutex
	Logger    *logger.Logger
}

func NewWorker(cfg config.QueueConfig, params WorkerParams) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		approvals: params.Approvals,
		leadRepo:  params.LeadRepo,
		queue:     params.Queue,
		machine:   params.Machine,
		identity:  params.Identity,
		locks:     params.Locks,
		log:       params.Logger,
	}

	mux.HandleFunc(TaskReplySend, w.handleReplySend)
	mux.HandleFunc(TaskBookingConfirmation, w.handleBookingConfirmation)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleReplySend dispatches an approved draft. Redelivery of this task
// is a no-op twice over: the approved->sent predicate in MarkSent, and
// the per-reply-event dispatch record inside SendReply.
func (w *Worker) handleReplySend(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReplySendPayload(task)
	if err != nil {
		return err
	}

	approvalID, err := uuid.Parse(payload.ApprovalID)
	if err != nil {
		return err
	}

	record, err := w.approvals.GetByID(ctx, approvalID)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			return nil
		}
		return err
	}

	if record.Status != approval.StatusApproved {
		w.log.Info("reply_send_skipped", "approval_id", approvalID.String(), "status", record.Status)
		return nil
	}
	if record.DraftBody == nil {
		w.log.Warn("reply_send_missing_body", "approval_id", approvalID.String())
		return nil
	}

	lead, err := w.leadRepo.GetByID(ctx, record.LeadID)
	if err != nil {
		return err
	}

	unlock := w.locks.Lock(lead.ID)
	defer unlock()

	err = w.queue.SendReply(ctx, outbound.ReplyRequest{
		Lead:         lead,
		Subject:      record.DraftSubject,
		Body:         *record.DraftBody,
		ReplyEventID: record.ReplyEventID,
	})
	switch {
	case errors.Is(err, outbound.ErrSuppressed):
		// The address went on the do-not-contact list after approval.
		w.log.Warn("reply_send_suppressed", "lead_id", lead.ID.String())
		return nil
	case errors.Is(err, outbound.ErrDuplicateReply):
		// A previous delivery already dispatched this reply event but may
		// have died before the bookkeeping below; finish it now.
		w.log.Info("reply_send_already_dispatched", "approval_id", approvalID.String())
	case err != nil:
		return err
	}

	if err := w.approvals.MarkSent(ctx, approvalID); err != nil && !errors.Is(err, approval.ErrInvalidApprovalState) {
		return err
	}

	if domain.CanTransition(lead.Status, domain.StatusObjectionHandled, lead.CurrentTouchNumber) {
		if _, err := w.machine.Transition(ctx, lead.ID, domain.StatusObjectionHandled, leads.TransitionParams{
			Reason:  "approved reply dispatched",
			Payload: map[string]any{"approval_id": approvalID.String()},
		}); err != nil {
			w.log.Error("transition_after_reply_failed", "lead_id", lead.ID.String(), "error", err.Error())
		}
	}
	return nil
}

// handleBookingConfirmation emails the booking link with a QR code to a
// freshly booked lead.
func (w *Worker) handleBookingConfirmation(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingConfirmationPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	lead, err := w.leadRepo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.Status != domain.StatusBooked {
		w.log.Info("booking_confirmation_skipped", "lead_id", leadID.String(), "status", string(lead.Status))
		return nil
	}

	bookingLink := w.identity.GetBookingLink()
	if bookingLink == "" {
		return nil
	}

	var attachments []outbound.Attachment
	if png, err := qrcode.Encode(bookingLink, qrcode.Medium, 256); err == nil {
		attachments = append(attachments, outbound.Attachment{
			FileName: "booking.png",
			Content:  png,
		})
	} else {
		w.log.Error("booking_qr_failed", "lead_id", leadID.String(), "error", err.Error())
	}

	body := fmt.Sprintf(
		"Great speaking with you.\n\nYou can confirm or adjust the meeting slot here: %s\n\nThe attached code opens the same page on a phone.\n\n%s",
		bookingLink,
		w.identity.GetCompanyName(),
	)

	err = w.queue.SendReply(ctx, outbound.ReplyRequest{
		Lead:        lead,
		Subject:     "Your meeting with " + w.identity.GetCompanyName(),
		Body:        body,
		Attachments: attachments,
	})
	if errors.Is(err, outbound.ErrSuppressed) {
		return nil
	}
	return err
}
