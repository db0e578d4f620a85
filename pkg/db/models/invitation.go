package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/enums"
)

// Invitation is a single-use token granting channel membership on acceptance.
type Invitation struct {
	ID         uuid.UUID              `gorm:"type:uuid;primaryKey"`
	ChannelID  uuid.UUID              `gorm:"column:channel_id;type:uuid;not null;index"`
	Email      string                 `gorm:"type:text;not null"`
	Token      string                 `gorm:"type:text;not null;uniqueIndex"`
	Role       enums.MemberRole       `gorm:"column:role;type:text;not null"`
	Status     enums.InvitationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	InvitedBy  uuid.UUID              `gorm:"column:invited_by;type:uuid;not null"`
	ExpiresAt  time.Time              `gorm:"column:expires_at;not null"`
	AcceptedAt *time.Time             `gorm:"column:accepted_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}
