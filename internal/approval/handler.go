package approval

import (
	"errors"
	"net/http"
	"time"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApproveRequest struct {
	Subject *string `json:"subject" validate:"omitempty,max=300"`
	Body    *string `json:"body" validate:"omitempty,max=10000"`
}

type ApprovalResponse struct {
	ID                uuid.UUID  `json:"id"`
	LeadID            uuid.UUID  `json:"leadId"`
	ReplyEventID      uuid.UUID  `json:"replyEventId"`
	ObjectionCategory string     `json:"objectionCategory"`
	DraftSubject      string     `json:"draftSubject"`
	DraftBody         *string    `json:"draftBody"`
	Status            string     `json:"status"`
	DecidedBy         string     `json:"decidedBy,omitempty"`
	DecidedAt         *time.Time `json:"decidedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toResponse(a DraftApproval) ApprovalResponse {
	return ApprovalResponse{
		ID:                a.ID,
		LeadID:            a.LeadID,
		ReplyEventID:      a.ReplyEventID,
		ObjectionCategory: a.ObjectionCategory,
		DraftSubject:      a.DraftSubject,
		DraftBody:         a.DraftBody,
		Status:            a.Status,
		DecidedBy:         a.DecidedBy,
		DecidedAt:         a.DecidedAt,
		CreatedAt:         a.CreatedAt,
	}
}

type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) ListPending(c *gin.Context) {
	approvals, err := h.svc.ListPending(c.Request.Context(), 50)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toResponse(a))
	}
	httpkit.OK(c, out)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseApprovalID(c)
	if !ok {
		return
	}

	record, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, mapErr(err)) {
		return
	}
	httpkit.OK(c, toResponse(record))
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := parseApprovalID(c)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	record, err := h.svc.Approve(c.Request.Context(), id, ApproveParams{
		DecidedBy: decidedBy(c),
		Subject:   req.Subject,
		Body:      req.Body,
	})
	if httpkit.HandleError(c, mapErr(err)) {
		return
	}
	httpkit.OK(c, toResponse(record))
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := parseApprovalID(c)
	if !ok {
		return
	}

	record, err := h.svc.Reject(c.Request.Context(), id, decidedBy(c))
	if httpkit.HandleError(c, mapErr(err)) {
		return
	}
	httpkit.OK(c, toResponse(record))
}

func parseApprovalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decidedBy(c *gin.Context) string {
	if identity := httpkit.GetIdentity(c); identity.IsAuthenticated() {
		return identity.UserID().String()
	}
	return ""
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("draft approval not found")
	case errors.Is(err, ErrInvalidApprovalState):
		return apperr.Conflict("approval already decided")
	default:
		return err
	}
}

// Module is the approval bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(h *Handler) *Module {
	return &Module{handler: h}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "approval"
}

// RegisterRoutes mounts approval routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/approvals")
	group.GET("/pending", m.handler.ListPending)
	group.GET("/:id", m.handler.GetByID)
	group.POST("/:id/approve", m.handler.Approve)
	group.POST("/:id/reject", m.handler.Reject)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
