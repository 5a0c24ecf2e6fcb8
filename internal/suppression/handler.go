package suppression

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

type AddRequest struct {
	Email  string `json:"email" validate:"omitempty,email"`
	Domain string `json:"domain" validate:"omitempty,fqdn"`
	Reason string `json:"reason" validate:"omitempty,oneof=unsubscribe bounce complaint manual"`
}

type EntryResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

type Handler struct {
	repo *Repository
	val  *validator.Validator
}

func NewHandler(repo *Repository, val *validator.Validator) *Handler {
	return &Handler{repo: repo, val: val}
}

func (h *Handler) Add(c *gin.Context) {
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}
	if req.Email == "" && req.Domain == "" {
		httpkit.Error(c, http.StatusBadRequest, "email or domain is required", nil)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = ReasonManual
	}

	if err := h.repo.Add(c.Request.Context(), req.Email, req.Domain, reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"status": "added"})
}

func (h *Handler) Check(c *gin.Context) {
	email := c.Param("email")

	suppressed, err := h.repo.IsSuppressed(c.Request.Context(), email)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := gin.H{"email": email, "suppressed": suppressed}
	if entry, err := h.repo.GetByEmail(c.Request.Context(), email); err == nil {
		// Domain-level blocks have no exact entry; only direct hits carry
		// the reason.
		resp["entry"] = EntryResponse{
			ID:        entry.ID,
			Email:     entry.Email,
			Domain:    entry.Domain,
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		}
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Remove(c *gin.Context) {
	email := c.Param("email")

	err := h.repo.Remove(c.Request.Context(), email)
	if errors.Is(err, ErrNotFound) {
		httpkit.HandleError(c, apperr.NotFound("suppression entry not found"))
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "removed"})
}

// Module is the suppression bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(h *Handler) *Module {
	return &Module{handler: h}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "suppression"
}

// RegisterRoutes mounts suppression admin routes on the protected group.
// Mutations require the admin role; checking an address does not.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/suppression")
	group.POST("", httpkit.RequireRole("admin"), m.handler.Add)
	group.GET("/:email", m.handler.Check)
	group.DELETE("/:email", httpkit.RequireRole("admin"), m.handler.Remove)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
