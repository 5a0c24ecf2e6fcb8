// Package webhook exposes the inbound reply ingestion endpoint used by
// mail providers that push replies instead of requiring IMAP polling.
package webhook

import (
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/replies"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(cfg config.WebhookConfig, processor replies.Processor, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(processor, val, log),
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// API key auth, no JWT
	group := ctx.V1.Group("/webhooks")
	group.Use(APIKeyAuthMiddleware(m.cfg))
	group.POST("/replies", m.handler.HandleInboundReply)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
