package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/enums"
)

// Alert is an emergency event raised inside a channel.
type Alert struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ChannelID   uuid.UUID           `gorm:"column:channel_id;type:uuid;not null;index"`
	Title       string              `gorm:"type:text;not null"`
	Description *string             `gorm:"type:text"`
	Severity    enums.AlertSeverity `gorm:"column:severity;type:text;not null"`
	Status      enums.AlertStatus   `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedBy   uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	ExpiresAt   *time.Time          `gorm:"column:expires_at"`
	ResolvedAt  *time.Time          `gorm:"column:resolved_at"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
