package channels

import (
	"context"
	"errors"
	"strings"

	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service defines channel management operations.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, req CreateChannelRequest) (*ChannelDTO, error)
	List(ctx context.Context, userID uuid.UUID) ([]ChannelDTO, error)
	Get(ctx context.Context, userID, channelID uuid.UUID) (*ChannelDTO, error)
	Update(ctx context.Context, userID, channelID uuid.UUID, req UpdateChannelRequest) (*ChannelDTO, error)
	Delete(ctx context.Context, userID, channelID uuid.UUID) error
	ListMembers(ctx context.Context, userID, channelID uuid.UUID) ([]MemberDTO, error)
	RemoveMember(ctx context.Context, userID, channelID, memberID uuid.UUID) error
	UpdateMemberRole(ctx context.Context, userID, channelID, memberID uuid.UUID, role enums.MemberRole) error
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

type service struct {
	db   *db.Client
	repo *Repository
}

// ServiceParams bundles the dependencies for the channels service.
type ServiceParams struct {
	DB   *db.Client
	Repo *Repository
}

// NewService wires channel dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channels repository required")
	}
	return &service{db: params.DB, repo: params.Repo}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, req CreateChannelRequest) (*ChannelDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel name is required")
	}

	channel := &models.Channel{
		Name:        name,
		Description: req.Description,
		CreatedBy:   userID,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, channel); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create channel")
		}
		if _, err := repo.CreateMembership(ctx, channel.ID, userID, enums.MemberRoleAdmin, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	role := enums.MemberRoleAdmin
	dto := channelToDTO(*channel, &role)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ChannelDTO, error) {
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list channels")
	}

	out := make([]ChannelDTO, 0, len(rows))
	for _, row := range rows {
		role := row.Role
		out = append(out, channelToDTO(row.Channel, &role))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, channelID uuid.UUID) (*ChannelDTO, error) {
	membership, err := s.RequireMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}

	channel, err := s.repo.FindByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "channel not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load channel")
	}

	role := membership.Role
	dto := channelToDTO(*channel, &role)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, userID, channelID uuid.UUID, req UpdateChannelRequest) (*ChannelDTO, error) {
	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "channel name cannot be empty")
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = *req.Description
	}

	if len(values) > 0 {
		if err := s.repo.Update(ctx, channelID, values); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update channel")
		}
	}

	return s.Get(ctx, userID, channelID)
}

func (s *service) Delete(ctx context.Context, userID, channelID uuid.UUID) error {
	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, channelID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete channel")
	}
	return nil
}

func (s *service) ListMembers(ctx context.Context, userID, channelID uuid.UUID) ([]MemberDTO, error) {
	if _, err := s.RequireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}

	members, err := s.repo.ListMembers(ctx, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	return members, nil
}

func (s *service) RemoveMember(ctx context.Context, userID, channelID, memberID uuid.UUID) error {
	// Members may leave on their own; removing anyone else requires admin.
	if userID != memberID {
		if err := s.requireAdmin(ctx, channelID, userID); err != nil {
			return err
		}
	} else if _, err := s.RequireMember(ctx, channelID, userID); err != nil {
		return err
	}

	removed, err := s.repo.RemoveMembership(ctx, channelID, memberID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	return nil
}

func (s *service) UpdateMemberRole(ctx context.Context, userID, channelID, memberID uuid.UUID, role enums.MemberRole) error {
	if !role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid member role")
	}
	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return err
	}

	updated, err := s.repo.UpdateMembershipRole(ctx, channelID, memberID, role)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member role")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	return nil
}

// RequireMember loads the caller's membership or fails with forbidden.
func (s *service) RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	membership, err := s.repo.GetMembership(ctx, channelID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a channel member")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership")
	}
	return membership, nil
}

func (s *service) requireAdmin(ctx context.Context, channelID, userID uuid.UUID) error {
	membership, err := s.RequireMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if membership.Role != enums.MemberRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "channel admin role required")
	}
	return nil
}
