package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/enums"
)

// ChannelMembership links a user with a channel and captures their role.
type ChannelMembership struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ChannelID       uuid.UUID        `gorm:"column:channel_id;type:uuid;not null;uniqueIndex:uniq_channel_memberships_channel_user,priority:1"`
	UserID          uuid.UUID        `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uniq_channel_memberships_channel_user,priority:2"`
	Role            enums.MemberRole `gorm:"column:role;type:text;not null"`
	InvitedByUserID *uuid.UUID       `gorm:"column:invited_by_user_id;type:uuid"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
