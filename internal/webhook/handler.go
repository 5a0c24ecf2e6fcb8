package webhook

import (
	"net/http"
	"time"

	"outreach_backend/internal/replies"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// InboundReplyRequest is the payload posted by the mail provider's
// inbound-parse hook for each reply received on the outreach mailbox.
type InboundReplyRequest struct {
	MessageID  string     `json:"messageId" validate:"required,max=500"`
	From       string     `json:"from" validate:"required,email"`
	To         string     `json:"to" validate:"omitempty,email"`
	ThreadRef  string     `json:"threadRef" validate:"omitempty,max=200"`
	Subject    string     `json:"subject" validate:"omitempty,max=1000"`
	Body       string     `json:"body" validate:"required"`
	ReceivedAt *time.Time `json:"receivedAt"`
}

type Handler struct {
	processor replies.Processor
	val       *validator.Validator
	log       *logger.Logger
}

func NewHandler(processor replies.Processor, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{processor: processor, val: val, log: log}
}

// HandleInboundReply accepts one inbound message and runs it through the
// correlator. Provider retries are safe: duplicates are detected by message
// id and acknowledged with 200 so the provider stops redelivering.
func (h *Handler) HandleInboundReply(c *gin.Context) {
	var req InboundReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}

	outcome, err := h.processor.Process(c.Request.Context(), replies.InboundEvent{
		SourceEventID: req.MessageID,
		FromAddress:   req.From,
		ToAddress:     req.To,
		ThreadRef:     req.ThreadRef,
		Subject:       req.Subject,
		Body:          req.Body,
		ReceivedAt:    receivedAt,
	})
	if err != nil {
		h.log.Error("inbound reply processing failed", "message_id", req.MessageID, "error", err.Error())
		httpkit.Error(c, http.StatusInternalServerError, "processing failed", nil)
		return
	}

	if outcome.Duplicate {
		httpkit.OK(c, gin.H{"status": "duplicate", "replyEventId": outcome.ReplyEventID})
		return
	}

	resp := gin.H{
		"status":         "accepted",
		"replyEventId":   outcome.ReplyEventID,
		"classification": outcome.Classification,
	}
	if outcome.LeadID != nil {
		resp["leadId"] = outcome.LeadID
	}
	if outcome.ObjectionCategory != "" {
		resp["objectionCategory"] = outcome.ObjectionCategory
	}
	if outcome.ApprovalID != nil {
		resp["approvalId"] = outcome.ApprovalID
	}
	httpkit.OK(c, resp)
}
