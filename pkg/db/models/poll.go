package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Poll is a wellness check posted to a channel.
type Poll struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChannelID uuid.UUID      `gorm:"column:channel_id;type:uuid;not null;index"`
	Question  string         `gorm:"type:text;not null"`
	Options   pq.StringArray `gorm:"column:options;type:text[];not null"`
	CreatedBy uuid.UUID      `gorm:"column:created_by;type:uuid;not null"`
	ClosesAt  *time.Time     `gorm:"column:closes_at"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// PollResponse stores one member's answer; re-answering updates in place.
type PollResponse struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PollID    uuid.UUID `gorm:"column:poll_id;type:uuid;not null;uniqueIndex:uniq_poll_responses_poll_user,priority:1"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uniq_poll_responses_poll_user,priority:2"`
	Option    string    `gorm:"column:selected_option;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
