package alerts

import (
	"context"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes alert and preparation item persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to the provided transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new alert.
func (r *Repository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(alert).Error
}

// CreateItem persists one preparation item.
func (r *Repository) CreateItem(ctx context.Context, item *models.PreparationItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// FindByID loads an alert by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListByChannel returns the channel's alerts newest first, optionally filtered by status.
func (r *Repository) ListByChannel(ctx context.Context, channelID uuid.UUID, status *enums.AlertStatus) ([]models.Alert, error) {
	query := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var rows []models.Alert
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Resolve marks an active alert resolved. Returns rows affected.
func (r *Repository) Resolve(ctx context.Context, alertID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ? AND status = ?", alertID, enums.AlertStatusActive).
		Updates(map[string]any{
			"status":      enums.AlertStatusResolved,
			"resolved_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

type itemWithClaimsRow struct {
	models.PreparationItem
	ClaimedQuantity int `gorm:"column:claimed_quantity"`
}

// ListItemsWithClaims returns the alert's items with the summed claimed quantity.
func (r *Repository) ListItemsWithClaims(ctx context.Context, alertID uuid.UUID) ([]ItemDTO, error) {
	var rows []itemWithClaimsRow
	err := r.db.WithContext(ctx).
		Model(&models.PreparationItem{}).
		Select("preparation_items.*, COALESCE(SUM(claimed_supply_items.claimed_quantity), 0) AS claimed_quantity").
		Joins("LEFT JOIN claimed_supply_items ON claimed_supply_items.preparation_item_id = preparation_items.id").
		Where("preparation_items.alert_id = ?", alertID).
		Group("preparation_items.id").
		Order("preparation_items.created_at, preparation_items.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	items := make([]ItemDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ItemDTO{
			ID:                row.PreparationItem.ID,
			AlertID:           row.AlertID,
			Name:              row.Name,
			TotalQuantity:     row.TotalQuantity,
			ClaimedQuantity:   row.ClaimedQuantity,
			RemainingQuantity: row.TotalQuantity - row.ClaimedQuantity,
			Unit:              row.Unit,
			CreatedAt:         row.PreparationItem.CreatedAt,
		})
	}
	return items, nil
}

// FindItem loads one preparation item by its UUID.
func (r *Repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.PreparationItem, error) {
	var item models.PreparationItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}
