// Package transport defines the wire types for the leads HTTP API.
package transport

import (
	"time"

	"outreach_backend/internal/leads/domain"

	"github.com/google/uuid"
)

type CreateLeadRequest struct {
	Email         string `json:"email" validate:"required,email"`
	CompanyName   string `json:"companyName" validate:"required,min=2,max=200"`
	ContactName   string `json:"contactName" validate:"max=200"`
	Phone         string `json:"phone" validate:"max=32"`
	Website       string `json:"website" validate:"omitempty,url"`
	Source        string `json:"source" validate:"max=100"`
	LeverageAngle string `json:"leverageAngle" validate:"omitempty,oneof=expansion alignment stability margin novelty"`
}

type DisqualifyRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type SuppressRequest struct {
	Reason string `json:"reason" validate:"omitempty,oneof=unsubscribe bounce complaint manual"`
}

type LeadResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Email              string     `json:"email"`
	CompanyName        string     `json:"companyName"`
	ContactName        string     `json:"contactName,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	Website            string     `json:"website,omitempty"`
	Source             string     `json:"source,omitempty"`
	LeverageAngle      string     `json:"leverageAngle,omitempty"`
	Status             string     `json:"status"`
	CurrentTouchNumber int        `json:"currentTouchNumber"`
	NextActionAt       *time.Time `json:"nextActionAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func FromDomain(lead domain.Lead) LeadResponse {
	return LeadResponse{
		ID:                 lead.ID,
		Email:              lead.Email,
		CompanyName:        lead.CompanyName,
		ContactName:        lead.ContactName,
		Phone:              lead.Phone,
		Website:            lead.Website,
		Source:             lead.Source,
		LeverageAngle:      lead.LeverageAngle,
		Status:             string(lead.Status),
		CurrentTouchNumber: lead.CurrentTouchNumber,
		NextActionAt:       lead.NextActionAt,
		CreatedAt:          lead.CreatedAt,
		UpdatedAt:          lead.UpdatedAt,
	}
}

type TimelineEntryResponse struct {
	ID        uuid.UUID      `json:"id"`
	Event     string         `json:"event"`
	Actor     string         `json:"actor"`
	RequestID string         `json:"requestId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
