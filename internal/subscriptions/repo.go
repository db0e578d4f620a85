package subscriptions

import (
	"context"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists browser push subscriptions.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores a subscription, replacing the keys when the endpoint is
// already registered. Re-subscribing from the same browser rotates keys.
func (r *Repository) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.Assignments(map[string]any{
				"user_id": sub.UserID,
				"p256dh":  sub.P256DH,
				"auth":    sub.Auth,
			}),
		}).
		Create(sub).Error
}

// ListByUser returns the user's registered subscriptions.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ListByUserIDs loads subscriptions for a set of users in one query.
func (r *Repository) ListByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]models.PushSubscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var subs []models.PushSubscription
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// DeleteByEndpoint removes the user's subscription for the endpoint and
// reports whether a row was deleted.
func (r *Repository) DeleteByEndpoint(ctx context.Context, userID uuid.UUID, endpoint string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteByID removes a subscription regardless of owner. Used when a push
// endpoint reports the subscription gone.
func (r *Repository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.PushSubscription{}, "id = ?", id).Error
}
