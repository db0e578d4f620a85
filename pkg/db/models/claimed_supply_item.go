package models

import (
	"time"

	"github.com/google/uuid"
)

// ClaimedSupplyItem records one user's claim against a preparation item.
// The unique index on (preparation_item_id, user_id) is the storage-level
// guard that serializes concurrent claims; the application pre-check is
// only a fast path for friendly errors.
type ClaimedSupplyItem struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	PreparationItemID uuid.UUID `gorm:"column:preparation_item_id;type:uuid;not null;uniqueIndex:uniq_claims_item_user,priority:1"`
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uniq_claims_item_user,priority:2"`
	AlertID           uuid.UUID `gorm:"column:alert_id;type:uuid;not null;index"`
	ClaimedQuantity   int       `gorm:"column:claimed_quantity;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

// ClaimsItemUserConstraint is the unique constraint name referenced when
// classifying insert failures.
const ClaimsItemUserConstraint = "uniq_claims_item_user"
