package alerts

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
)

// ItemInput describes one preparation item on a new alert.
type ItemInput struct {
	Name          string `json:"name" validate:"required,max=200"`
	TotalQuantity int    `json:"total_quantity" validate:"required,gt=0"`
	Unit          string `json:"unit,omitempty" validate:"omitempty,max=40"`
}

// CreateAlertRequest is the payload for raising an alert.
type CreateAlertRequest struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Description *string             `json:"description,omitempty"`
	Severity    enums.AlertSeverity `json:"severity" validate:"required"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Items       []ItemInput         `json:"items,omitempty" validate:"omitempty,dive"`
}

// AlertDTO is the transport shape for an alert.
type AlertDTO struct {
	ID          uuid.UUID           `json:"id"`
	ChannelID   uuid.UUID           `json:"channel_id"`
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	Severity    enums.AlertSeverity `json:"severity"`
	Status      enums.AlertStatus   `json:"status"`
	CreatedBy   uuid.UUID           `json:"created_by"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
	Items       []ItemDTO           `json:"items,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ItemDTO is a preparation item with its claim progress.
type ItemDTO struct {
	ID                uuid.UUID `json:"id"`
	AlertID           uuid.UUID `json:"alert_id"`
	Name              string    `json:"name"`
	TotalQuantity     int       `json:"total_quantity"`
	ClaimedQuantity   int       `json:"claimed_quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	Unit              string    `json:"unit"`
	CreatedAt         time.Time `json:"created_at"`
}

func alertToDTO(a models.Alert, items []ItemDTO) AlertDTO {
	return AlertDTO{
		ID:          a.ID,
		ChannelID:   a.ChannelID,
		Title:       a.Title,
		Description: a.Description,
		Severity:    a.Severity,
		Status:      a.Status,
		CreatedBy:   a.CreatedBy,
		ExpiresAt:   a.ExpiresAt,
		ResolvedAt:  a.ResolvedAt,
		Items:       items,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
