package messages

import (
	"context"
	"strings"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/whistl-app/whistl-backend/pkg/pagination"
	"github.com/google/uuid"
)

const maxMessageLength = 4000

// Service defines channel chat operations.
type Service interface {
	Post(ctx context.Context, params PostParams) (*MessageDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// PostParams carries a new chat message.
type PostParams struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	Body      string
}

// ListParams configures pagination for channel messages.
type ListParams struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	Limit     int
	Cursor    string
}

// MessageDTO is the transport shape for a chat message.
type MessageDTO struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ListResult wraps returned messages and the cursor for the next page.
type ListResult struct {
	Items  []MessageDTO `json:"items"`
	Cursor string       `json:"cursor"`
}

type membershipChecker interface {
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

type service struct {
	repo        *Repository
	memberships membershipChecker
}

// ServiceParams bundles the dependencies for the messages service.
type ServiceParams struct {
	Repo        *Repository
	Memberships membershipChecker
}

// NewService wires message dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "messages repository required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "membership checker required")
	}
	return &service{repo: params.Repo, memberships: params.Memberships}, nil
}

func (s *service) Post(ctx context.Context, params PostParams) (*MessageDTO, error) {
	body := strings.TrimSpace(params.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}
	if len(body) > maxMessageLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body too long")
	}

	if _, err := s.memberships.RequireMember(ctx, params.ChannelID, params.UserID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ChannelID: params.ChannelID,
		UserID:    params.UserID,
		Body:      body,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create message")
	}

	dto := toDTO(*message)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if _, err := s.memberships.RequireMember(ctx, params.ChannelID, params.UserID); err != nil {
		return nil, err
	}

	query := listMessagesParams{
		ChannelID: params.ChannelID,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	items := make([]MessageDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, toDTO(row))
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{Items: items, Cursor: cursor}, nil
}

func toDTO(m models.Message) MessageDTO {
	return MessageDTO{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		UserID:    m.UserID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
