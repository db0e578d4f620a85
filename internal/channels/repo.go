package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes channel and membership persistence operations.
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

// Create persists a new channel.
func (r *Repository) Create(ctx context.Context, channel *models.Channel) error {
	if channel.ID == uuid.Nil {
		channel.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(channel).Error
}

// FindByID loads a channel by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

type channelWithRoleRow struct {
	models.Channel
	Role enums.MemberRole `gorm:"column:role"`
}

// ListForUser returns the channels a user belongs to with their role.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]ChannelWithRole, error) {
	var rows []channelWithRoleRow
	err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Select("channels.*, channel_memberships.role AS role").
		Joins("JOIN channel_memberships ON channel_memberships.channel_id = channels.id").
		Where("channel_memberships.user_id = ?", userID).
		Order("channels.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ChannelWithRole, 0, len(rows))
	for _, row := range rows {
		out = append(out, ChannelWithRole{Channel: row.Channel, Role: row.Role})
	}
	return out, nil
}

// Update applies the provided column values to a channel.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	values["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		Updates(values).Error
}

// Delete removes a channel; memberships cascade at the database level.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Channel{}, "id = ?", id).Error
}

// CreateMembership persists a new membership record.
func (r *Repository) CreateMembership(ctx context.Context, channelID, userID uuid.UUID, role enums.MemberRole, invitedBy *uuid.UUID) (*models.ChannelMembership, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid member role %q", role)
	}

	membership := &models.ChannelMembership{
		ID:              uuid.New(),
		ChannelID:       channelID,
		UserID:          userID,
		Role:            role,
		InvitedByUserID: invitedBy,
	}

	if err := r.db.WithContext(ctx).Create(membership).Error; err != nil {
		return nil, err
	}
	return membership, nil
}

// GetMembership retrieves a membership by user and channel.
func (r *Repository) GetMembership(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	var membership models.ChannelMembership
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// RemoveMembership deletes the membership row for the user in the channel.
func (r *Repository) RemoveMembership(ctx context.Context, channelID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Delete(&models.ChannelMembership{})
	return result.RowsAffected, result.Error
}

// UpdateMembershipRole changes the member's role within the channel.
func (r *Repository) UpdateMembershipRole(ctx context.Context, channelID, userID uuid.UUID, role enums.MemberRole) (int64, error) {
	if !role.IsValid() {
		return 0, fmt.Errorf("invalid member role %q", role)
	}
	result := r.db.WithContext(ctx).
		Model(&models.ChannelMembership{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		Update("role", role)
	return result.RowsAffected, result.Error
}

type memberRow struct {
	models.ChannelMembership
	Email       string     `gorm:"column:email"`
	FullName    string     `gorm:"column:full_name"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
}

// ListMembers returns memberships joined with user metadata.
func (r *Repository) ListMembers(ctx context.Context, channelID uuid.UUID) ([]MemberDTO, error) {
	var rows []memberRow
	err := r.db.WithContext(ctx).
		Model(&models.ChannelMembership{}).
		Select("channel_memberships.*, users.email, users.full_name, users.last_login_at").
		Joins("JOIN users ON users.id = channel_memberships.user_id").
		Where("channel_memberships.channel_id = ?", channelID).
		Order("channel_memberships.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	members := make([]MemberDTO, 0, len(rows))
	for _, row := range rows {
		members = append(members, MemberDTO{
			UserID:      row.UserID,
			Email:       row.Email,
			FullName:    row.FullName,
			Role:        row.Role,
			JoinedAt:    row.ChannelMembership.CreatedAt,
			LastLoginAt: row.LastLoginAt,
		})
	}
	return members, nil
}

// ListMemberIDs returns the user IDs of every channel member.
func (r *Repository) ListMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ChannelMembership{}).
		Where("channel_id = ?", channelID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UserHasRole reports whether the user holds one of the provided roles in the channel.
func (r *Repository) UserHasRole(ctx context.Context, channelID, userID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChannelMembership{}).
		Where("channel_id = ? AND user_id = ? AND role IN ?", channelID, userID, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
