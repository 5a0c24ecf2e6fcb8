package outbound

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

// Attachment is an inline file on an outbound message.
type Attachment struct {
	FileName string
	Content  []byte
}

// Message is one outbound email handed to the gateway.
type Message struct {
	To          string
	Subject     string
	Body        string
	ThreadRef   string
	Attachments []Attachment
}

// Gateway delivers a message and returns the provider message id. A
// timeout is a delivery failure.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// threadRefHeader carries the lead correlation token on every outbound
// message so replies can be resolved without provider-side threading.
const threadRefHeader = "X-Outreach-Thread"

// SMTPGateway delivers via the configured SMTP server using go-mail. A
// fresh client per send keeps connection state out of the dispatcher.
type SMTPGateway struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func NewSMTPGateway(cfg config.SendConfig) *SMTPGateway {
	return &SMTPGateway{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetSendFromName(),
		fromEmail: cfg.GetSendFromAddress(),
	}
}

func (g *SMTPGateway) Send(ctx context.Context, msg Message) (string, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(g.fromName, g.fromEmail); err != nil {
		return "", fmt.Errorf("%w: from: %v", ErrSendFailed, err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("%w: to: %v", ErrSendFailed, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	m.SetMessageID()
	if msg.ThreadRef != "" {
		m.SetGenHeader(threadRefHeader, msg.ThreadRef)
	}

	for _, att := range msg.Attachments {
		m.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(g.host,
		gomail.WithPort(g.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(g.username),
		gomail.WithPassword(g.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: client: %v", ErrSendFailed, err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	messageID := m.GetMessageID()
	if messageID == "" {
		messageID = uuid.NewString()
	}
	return messageID, nil
}

// ThreadRef builds the correlation token embedded in outbound messages.
func ThreadRef(leadID uuid.UUID) string {
	return "lead-" + leadID.String()
}

// DryRunGateway logs messages instead of delivering them. Used when
// SEND_ENABLED is off so the rest of the pipeline behaves as in
// production, minus the actual email.
type DryRunGateway struct {
	log *logger.Logger
}

func NewDryRunGateway(log *logger.Logger) *DryRunGateway {
	return &DryRunGateway{log: log}
}

func (g *DryRunGateway) Send(_ context.Context, msg Message) (string, error) {
	messageID := "dry-run-" + uuid.NewString()
	g.log.Info("dry_run_send",
		"to", msg.To,
		"subject", msg.Subject,
		"thread_ref", msg.ThreadRef,
		"message_id", messageID,
	)
	return messageID, nil
}
