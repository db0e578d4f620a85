package claims

import (
	"context"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes claim persistence operations.
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

// FindItem loads the preparation item without locking.
func (r *Repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.PreparationItem, error) {
	var item models.PreparationItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemForUpdate loads the preparation item holding a row lock for the
// duration of the transaction. SQLite serializes writers on its own, so the
// locking clause is only applied on Postgres.
func (r *Repository) ItemForUpdate(ctx context.Context, itemID uuid.UUID) (*models.PreparationItem, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item models.PreparationItem
	if err := query.First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindAlert loads the alert that owns a preparation item.
func (r *Repository) FindAlert(ctx context.Context, alertID uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", alertID).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ClaimedTotal sums the quantities already claimed against the item.
func (r *Repository) ClaimedTotal(ctx context.Context, itemID uuid.UUID) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.ClaimedSupplyItem{}).
		Select("COALESCE(SUM(claimed_quantity), 0)").
		Where("preparation_item_id = ?", itemID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// FindUserClaim returns the requesting user's claim on the item, if any.
func (r *Repository) FindUserClaim(ctx context.Context, itemID, userID uuid.UUID) (*models.ClaimedSupplyItem, error) {
	var claim models.ClaimedSupplyItem
	err := r.db.WithContext(ctx).
		Where("preparation_item_id = ? AND user_id = ?", itemID, userID).
		First(&claim).Error
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

// Insert persists a claim row. The unique index on (preparation_item_id,
// user_id) rejects a second claim by the same user.
func (r *Repository) Insert(ctx context.Context, claim *models.ClaimedSupplyItem) error {
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(claim).Error
}

// DeleteUserClaim removes the user's claim on the item. Returns rows affected.
func (r *Repository) DeleteUserClaim(ctx context.Context, itemID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("preparation_item_id = ? AND user_id = ?", itemID, userID).
		Delete(&models.ClaimedSupplyItem{})
	return result.RowsAffected, result.Error
}

type claimWithUserRow struct {
	models.ClaimedSupplyItem
	FullName string `gorm:"column:full_name"`
	Email    string `gorm:"column:email"`
}

// ClaimWithUser pairs a claim with the claimant's identity.
type ClaimWithUser struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FullName        string    `json:"full_name"`
	Email           string    `json:"email"`
	ClaimedQuantity int       `json:"claimed_quantity"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListForItem returns the item's claims joined with user metadata.
func (r *Repository) ListForItem(ctx context.Context, itemID uuid.UUID) ([]ClaimWithUser, error) {
	var rows []claimWithUserRow
	err := r.db.WithContext(ctx).
		Model(&models.ClaimedSupplyItem{}).
		Select("claimed_supply_items.*, users.full_name, users.email").
		Joins("JOIN users ON users.id = claimed_supply_items.user_id").
		Where("claimed_supply_items.preparation_item_id = ?", itemID).
		Order("claimed_supply_items.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ClaimWithUser, 0, len(rows))
	for _, row := range rows {
		out = append(out, ClaimWithUser{
			ID:              row.ClaimedSupplyItem.ID,
			UserID:          row.UserID,
			FullName:        row.FullName,
			Email:           row.Email,
			ClaimedQuantity: row.ClaimedQuantity,
			CreatedAt:       row.ClaimedSupplyItem.CreatedAt,
		})
	}
	return out, nil
}
