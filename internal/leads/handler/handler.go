package handler

import (
	"net/http"

	"outreach_backend/internal/leads/service"
	"outreach_backend/internal/leads/transport"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/timeline", h.Timeline)
	rg.POST("/:id/qualify", h.Qualify)
	rg.POST("/:id/disqualify", h.Disqualify)
	rg.POST("/:id/book", h.Book)
	rg.POST("/:id/suppress", h.Suppress)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Intake(c.Request.Context(), service.IntakeParams{
		Email:         req.Email,
		CompanyName:   req.CompanyName,
		ContactName:   req.ContactName,
		Phone:         req.Phone,
		Website:       req.Website,
		Source:        req.Source,
		LeverageAngle: req.LeverageAngle,
		Actor:         actor(c),
		RequestID:     requestID(c),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.FromDomain(lead))
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(lead))
}

func (h *Handler) Timeline(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entries, err := h.svc.Timeline(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.TimelineEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, transport.TimelineEntryResponse{
			ID:        entry.ID,
			Event:     entry.Event,
			Actor:     entry.Actor,
			RequestID: entry.RequestID,
			Payload:   entry.Payload,
			CreatedAt: entry.CreatedAt,
		})
	}
	httpkit.OK(c, out)
}

func (h *Handler) Qualify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Qualify(c.Request.Context(), id, actor(c), requestID(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(lead))
}

func (h *Handler) Disqualify(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.DisqualifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	lead, err := h.svc.Disqualify(c.Request.Context(), id, req.Reason, actor(c), requestID(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(lead))
}

func (h *Handler) Book(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Book(c.Request.Context(), id, actor(c), requestID(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(lead))
}

func (h *Handler) Suppress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SuppressRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.svc.Suppress(c.Request.Context(), id, req.Reason, actor(c), requestID(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromDomain(lead))
}

// Stats reports lead counts per status for the pipeline dashboard.
func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.svc.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"statuses": counts})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) string {
	if identity := httpkit.GetIdentity(c); identity.IsAuthenticated() {
		return identity.UserID().String()
	}
	return ""
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}
