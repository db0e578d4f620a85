package polls

import (
	"time"

	"github.com/google/uuid"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
)

// CreatePollRequest is the payload for posting a wellness poll.
type CreatePollRequest struct {
	Question string     `json:"question" validate:"required,max=300"`
	Options  []string   `json:"options" validate:"required,min=2,max=10,dive,required,max=100"`
	ClosesAt *time.Time `json:"closes_at,omitempty"`
}

// RespondRequest carries a member's selected option.
type RespondRequest struct {
	Option string `json:"option" validate:"required,max=100"`
}

// OptionCount is one aggregated result row.
type OptionCount struct {
	Option string `json:"option"`
	Count  int64  `json:"count"`
}

// PollDTO is the transport shape for a poll with aggregate results.
type PollDTO struct {
	ID             uuid.UUID     `json:"id"`
	ChannelID      uuid.UUID     `json:"channel_id"`
	Question       string        `json:"question"`
	Options        []string      `json:"options"`
	CreatedBy      uuid.UUID     `json:"created_by"`
	ClosesAt       *time.Time    `json:"closes_at,omitempty"`
	Results        []OptionCount `json:"results,omitempty"`
	TotalResponses int64         `json:"total_responses"`
	MyResponse     *string       `json:"my_response,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func pollToDTO(p models.Poll) PollDTO {
	return PollDTO{
		ID:        p.ID,
		ChannelID: p.ChannelID,
		Question:  p.Question,
		Options:   append([]string(nil), p.Options...),
		CreatedBy: p.CreatedBy,
		ClosesAt:  p.ClosesAt,
		CreatedAt: p.CreatedAt,
	}
}
