package polls

import (
	"context"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes poll persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new poll.
func (r *Repository) Create(ctx context.Context, poll *models.Poll) error {
	if poll.ID == uuid.Nil {
		poll.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(poll).Error
}

// FindByID loads a poll by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	var poll models.Poll
	if err := r.db.WithContext(ctx).First(&poll, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &poll, nil
}

// ListByChannel returns the channel's polls newest first.
func (r *Repository) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]models.Poll, error) {
	var rows []models.Poll
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Respond upserts the member's answer. Re-answering replaces the previous
// selection in place, keyed on the (poll_id, user_id) unique index.
func (r *Repository) Respond(ctx context.Context, pollID, userID uuid.UUID, option string, now time.Time) error {
	response := &models.PollResponse{
		ID:        uuid.New(),
		PollID:    pollID,
		UserID:    userID,
		Option:    option,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"selected_option": option, "updated_at": now}),
		}).
		Create(response).Error
}

// FindUserResponse returns the member's current answer, if any.
func (r *Repository) FindUserResponse(ctx context.Context, pollID, userID uuid.UUID) (*models.PollResponse, error) {
	var response models.PollResponse
	err := r.db.WithContext(ctx).
		Where("poll_id = ? AND user_id = ?", pollID, userID).
		First(&response).Error
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// CountByOption aggregates responses per selected option.
func (r *Repository) CountByOption(ctx context.Context, pollID uuid.UUID) ([]OptionCount, error) {
	var rows []OptionCount
	err := r.db.WithContext(ctx).
		Model(&models.PollResponse{}).
		Select("selected_option AS option, COUNT(*) AS count").
		Where("poll_id = ?", pollID).
		Group("selected_option").
		Order("count DESC, option").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
