package replies

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	imap "github.com/BrianLeishman/go-imap"
)

// Processor consumes normalized inbound events.
type Processor interface {
	Process(ctx context.Context, event InboundEvent) (Outcome, error)
}

// MailboxPoller reads unseen messages from the outreach inbox and feeds
// them to the correlator. Messages are marked seen only after processing,
// so a crash mid-batch redelivers and the source-id dedup absorbs it.
type MailboxPoller struct {
	cfg       config.MailboxConfig
	processor Processor
	log       *logger.Logger
}

func NewMailboxPoller(cfg config.MailboxConfig, processor Processor, log *logger.Logger) *MailboxPoller {
	return &MailboxPoller{cfg: cfg, processor: processor, log: log}
}

// Run polls until the context is cancelled.
func (p *MailboxPoller) Run(ctx context.Context) error {
	if !p.cfg.IsMailboxEnabled() {
		p.log.Info("mailbox_poller_disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.cfg.GetIMAPPollInterval())
	defer ticker.Stop()

	p.log.Info("mailbox_poller_started",
		"host", p.cfg.GetIMAPHost(),
		"folder", p.cfg.GetIMAPFolder(),
		"interval", p.cfg.GetIMAPPollInterval().String(),
	)

	for {
		if err := p.pollOnce(ctx); err != nil {
			p.log.Error("mailbox_poll_failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			p.log.Info("mailbox_poller_stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce opens a fresh connection per cycle. IMAP servers drop idle
// connections faster than our poll interval, so reconnecting is cheaper
// than keeping one alive.
func (p *MailboxPoller) pollOnce(ctx context.Context) error {
	dialer, err := imap.New(
		p.cfg.GetIMAPUsername(),
		p.cfg.GetIMAPPassword(),
		p.cfg.GetIMAPHost(),
		p.cfg.GetIMAPPort(),
	)
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer dialer.Close()

	if err := dialer.SelectFolder(p.cfg.GetIMAPFolder()); err != nil {
		return fmt.Errorf("select folder %s: %w", p.cfg.GetIMAPFolder(), err)
	}

	uids, err := dialer.GetUIDs("UNSEEN")
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	emails, err := dialer.GetEmails(uids...)
	if err != nil {
		return fmt.Errorf("fetch emails: %w", err)
	}

	for uid, email := range emails {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if email == nil {
			continue
		}

		event := toInboundEvent(p.cfg.GetIMAPFolder(), uid, email)
		if _, err := p.processor.Process(ctx, event); err != nil {
			// Leave the message unseen so the next cycle retries it.
			p.log.Error("inbound_event_failed",
				"source_event_id", event.SourceEventID,
				"error", err.Error(),
			)
			continue
		}

		if err := dialer.MarkSeen(uid); err != nil {
			p.log.Error("mark_seen_failed", "uid", strconv.Itoa(uid), "error", err.Error())
		}
	}
	return nil
}

func toInboundEvent(folder string, uid int, email *imap.Email) InboundEvent {
	from := ""
	for address := range email.From {
		from = address
		break
	}
	to := ""
	for address := range email.To {
		to = address
		break
	}

	sourceID := email.MessageID
	if sourceID == "" {
		sourceID = fallbackSourceID(folder, uid, from, email.Subject, email.Received)
	}

	receivedAt := email.Received
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	body := email.Text
	if body == "" {
		body = email.HTML
	}

	return InboundEvent{
		SourceEventID: sourceID,
		FromAddress:   from,
		ToAddress:     to,
		Subject:       email.Subject,
		Body:          body,
		ReceivedAt:    receivedAt,
	}
}

// fallbackSourceID builds a dedup key for messages without a Message-ID
// header. A bare UID is not enough: UIDs are folder-scoped and reusable
// after a UIDVALIDITY reset, so the key also binds the folder, the
// sender, the subject and the server receive time.
func fallbackSourceID(folder string, uid int, from, subject string, received time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s\x00%d", folder, uid, from, subject, received.UTC().Unix())
	return "imap-" + hex.EncodeToString(h.Sum(nil))[:32]
}
