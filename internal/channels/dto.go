package channels

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
)

// CreateChannelRequest is the payload for creating a channel.
type CreateChannelRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description,omitempty"`
}

// UpdateChannelRequest carries the mutable channel fields.
type UpdateChannelRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,max=120"`
	Description *string `json:"description,omitempty"`
}

// ChannelDTO is the transport shape for a channel.
type ChannelDTO struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	CreatedBy   uuid.UUID         `json:"created_by"`
	Role        *enums.MemberRole `json:"role,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MemberDTO pairs a membership with user metadata.
type MemberDTO struct {
	UserID      uuid.UUID        `json:"user_id"`
	Email       string           `json:"email"`
	FullName    string           `json:"full_name"`
	Role        enums.MemberRole `json:"role"`
	JoinedAt    time.Time        `json:"joined_at"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
}

// ChannelWithRole couples a channel row with the requesting user's role.
type ChannelWithRole struct {
	Channel models.Channel
	Role    enums.MemberRole
}

func channelToDTO(c models.Channel, role *enums.MemberRole) ChannelDTO {
	return ChannelDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		Role:        role,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
