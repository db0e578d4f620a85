package models

import (
	"time"

	"github.com/google/uuid"
)

// PreparationItem is one supply entry on an alert's preparation list.
// TotalQuantity is immutable after creation; no resize operation exists.
type PreparationItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AlertID       uuid.UUID `gorm:"column:alert_id;type:uuid;not null;index"`
	Name          string    `gorm:"type:text;not null"`
	TotalQuantity int       `gorm:"column:total_quantity;not null"`
	Unit          string    `gorm:"type:text;not null;default:'unit'"`
	CreatedBy     uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}
