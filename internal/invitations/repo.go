package invitations

import (
	"context"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes invitation persistence operations.
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

// Create persists a new invitation.
func (r *Repository) Create(ctx context.Context, invitation *models.Invitation) error {
	if invitation.ID == uuid.Nil {
		invitation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(invitation).Error
}

// FindByToken loads an invitation by its single-use token.
func (r *Repository) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&invitation).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// FindByID loads an invitation by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := r.db.WithContext(ctx).First(&invitation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// ListByChannel returns the channel's invitations newest first.
func (r *Repository) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]models.Invitation, error) {
	var rows []models.Invitation
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HasPendingForEmail reports whether a live invitation already exists for the
// email in the channel.
func (r *Repository) HasPendingForEmail(ctx context.Context, channelID uuid.UUID, email string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("channel_id = ? AND email = ? AND status = ? AND expires_at > ?",
			channelID, email, enums.InvitationStatusPending, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateStatus transitions a pending invitation. Returns rows affected so
// callers can detect a lost race on the same token.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.InvitationStatus, acceptedAt *time.Time) (int64, error) {
	values := map[string]any{"status": status}
	if acceptedAt != nil {
		values["accepted_at"] = *acceptedAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, enums.InvitationStatusPending).
		Updates(values)
	return result.RowsAffected, result.Error
}

// DeleteExpired purges pending invitations whose expiry has passed. Accepted
// and revoked rows stay for the channel's invitation history.
func (r *Repository) DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	result := conn.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.InvitationStatusPending, now).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
