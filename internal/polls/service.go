package polls

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Service defines wellness poll operations.
type Service interface {
	Create(ctx context.Context, userID, channelID uuid.UUID, req CreatePollRequest) (*PollDTO, error)
	List(ctx context.Context, userID, channelID uuid.UUID) ([]PollDTO, error)
	Get(ctx context.Context, userID, pollID uuid.UUID) (*PollDTO, error)
	Respond(ctx context.Context, userID, pollID uuid.UUID, req RespondRequest) (*PollDTO, error)
}

type membershipChecker interface {
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

// Notifier receives poll lifecycle events for fan-out delivery.
type Notifier interface {
	PollCreated(ctx context.Context, poll models.Poll)
}

type service struct {
	repo        *Repository
	memberships membershipChecker
	notifier    Notifier
}

// ServiceParams bundles the dependencies for the polls service.
type ServiceParams struct {
	Repo        *Repository
	Memberships membershipChecker
	Notifier    Notifier
}

// NewService wires poll dependencies. Notifier is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "polls repository required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "membership checker required")
	}
	return &service{
		repo:        params.Repo,
		memberships: params.Memberships,
		notifier:    params.Notifier,
	}, nil
}

func (s *service) Create(ctx context.Context, userID, channelID uuid.UUID, req CreatePollRequest) (*PollDTO, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "poll question is required")
	}

	options := make([]string, 0, len(req.Options))
	seen := map[string]bool{}
	for _, raw := range req.Options {
		option := strings.TrimSpace(raw)
		if option == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "poll options cannot be empty")
		}
		if seen[option] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "poll options must be distinct")
		}
		seen[option] = true
		options = append(options, option)
	}
	if len(options) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "polls need at least two options")
	}
	if req.ClosesAt != nil && req.ClosesAt.Before(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "closes_at must be in the future")
	}

	if _, err := s.memberships.RequireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}

	poll := &models.Poll{
		ChannelID: channelID,
		Question:  question,
		Options:   pq.StringArray(options),
		CreatedBy: userID,
		ClosesAt:  req.ClosesAt,
	}
	if err := s.repo.Create(ctx, poll); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create poll")
	}

	if s.notifier != nil {
		s.notifier.PollCreated(context.WithoutCancel(ctx), *poll)
	}

	dto := pollToDTO(*poll)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID, channelID uuid.UUID) ([]PollDTO, error) {
	if _, err := s.memberships.RequireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list polls")
	}

	out := make([]PollDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, pollToDTO(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, pollID uuid.UUID) (*PollDTO, error) {
	poll, err := s.loadPollForMember(ctx, userID, pollID)
	if err != nil {
		return nil, err
	}
	return s.loadDTO(ctx, *poll, userID)
}

func (s *service) Respond(ctx context.Context, userID, pollID uuid.UUID, req RespondRequest) (*PollDTO, error) {
	option := strings.TrimSpace(req.Option)
	if option == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "option is required")
	}

	poll, err := s.loadPollForMember(ctx, userID, pollID)
	if err != nil {
		return nil, err
	}
	if poll.ClosesAt != nil && poll.ClosesAt.Before(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "poll is closed")
	}
	if !containsOption(poll.Options, option) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "option is not part of this poll")
	}

	if err := s.repo.Respond(ctx, pollID, userID, option, time.Now().UTC()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record response")
	}

	return s.loadDTO(ctx, *poll, userID)
}

func (s *service) loadPollForMember(ctx context.Context, userID, pollID uuid.UUID) (*models.Poll, error) {
	poll, err := s.repo.FindByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "poll not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load poll")
	}
	if _, err := s.memberships.RequireMember(ctx, poll.ChannelID, userID); err != nil {
		return nil, err
	}
	return poll, nil
}

func (s *service) loadDTO(ctx context.Context, poll models.Poll, userID uuid.UUID) (*PollDTO, error) {
	dto := pollToDTO(poll)

	results, err := s.repo.CountByOption(ctx, poll.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate responses")
	}
	dto.Results = results
	for _, row := range results {
		dto.TotalResponses += row.Count
	}

	if response, err := s.repo.FindUserResponse(ctx, poll.ID, userID); err == nil {
		dto.MyResponse = &response.Option
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load own response")
	}

	return &dto, nil
}

func containsOption(options []string, option string) bool {
	for _, candidate := range options {
		if candidate == option {
			return true
		}
	}
	return false
}
