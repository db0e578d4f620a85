package invitations

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/whistl-app/whistl-backend/internal/channels"
	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/whistl-app/whistl-backend/pkg/logger"
	"github.com/whistl-app/whistl-backend/pkg/mail"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	invitationTTL   = 7 * 24 * time.Hour
	tokenBytes      = 32
	defaultBaseLink = "https://app.whistl.example/invitations"
)

// InviteRequest is the payload for inviting someone to a channel.
type InviteRequest struct {
	Email string           `json:"email" validate:"required,email"`
	Role  enums.MemberRole `json:"role" validate:"required"`
}

// InvitationDTO is the transport shape for an invitation.
type InvitationDTO struct {
	ID         uuid.UUID              `json:"id"`
	ChannelID  uuid.UUID              `json:"channel_id"`
	Email      string                 `json:"email"`
	Role       enums.MemberRole       `json:"role"`
	Status     enums.InvitationStatus `json:"status"`
	InvitedBy  uuid.UUID              `json:"invited_by"`
	ExpiresAt  time.Time              `json:"expires_at"`
	AcceptedAt *time.Time             `json:"accepted_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AcceptResult reports the channel joined through an invitation.
type AcceptResult struct {
	ChannelID uuid.UUID        `json:"channel_id"`
	Role      enums.MemberRole `json:"role"`
}

// Service defines invitation lifecycle operations.
type Service interface {
	Invite(ctx context.Context, userID, channelID uuid.UUID, req InviteRequest) (*InvitationDTO, error)
	List(ctx context.Context, userID, channelID uuid.UUID) ([]InvitationDTO, error)
	Accept(ctx context.Context, userID uuid.UUID, token string) (*AcceptResult, error)
	Revoke(ctx context.Context, userID, channelID, invitationID uuid.UUID) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type membershipStore interface {
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

type service struct {
	db          *db.Client
	repo        *Repository
	channels    *channels.Repository
	memberships membershipStore
	users       userLookup
	mailer      mail.Sender
	logg        *logger.Logger
	baseLink    string
}

// ServiceParams bundles the dependencies for the invitations service.
type ServiceParams struct {
	DB          *db.Client
	Repo        *Repository
	Channels    *channels.Repository
	Memberships membershipStore
	Users       userLookup
	Mailer      mail.Sender
	Logger      *logger.Logger
	BaseLink    string
}

// NewService wires invitation dependencies. Mailer is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invitations repository required")
	}
	if params.Channels == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "channels repository required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "membership checker required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	baseLink := strings.TrimRight(strings.TrimSpace(params.BaseLink), "/")
	if baseLink == "" {
		baseLink = defaultBaseLink
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		channels:    params.Channels,
		memberships: params.Memberships,
		users:       params.Users,
		mailer:      params.Mailer,
		logg:        params.Logger,
		baseLink:    baseLink,
	}, nil
}

func (s *service) Invite(ctx context.Context, userID, channelID uuid.UUID, req InviteRequest) (*InvitationDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member role")
	}

	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pending, err := s.repo.HasPendingForEmail(ctx, channelID, email, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending invitations")
	}
	if pending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an invitation for this email is already pending")
	}

	token, err := newToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate invitation token")
	}

	invitation := &models.Invitation{
		ChannelID: channelID,
		Email:     email,
		Token:     token,
		Role:      req.Role,
		Status:    enums.InvitationStatusPending,
		InvitedBy: userID,
		ExpiresAt: now.Add(invitationTTL),
	}
	if err := s.repo.Create(ctx, invitation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invitation")
	}

	s.sendInviteEmail(ctx, invitation)

	dto := toDTO(*invitation)
	return &dto, nil
}

func (s *service) List(ctx context.Context, userID, channelID uuid.UUID) ([]InvitationDTO, error) {
	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invitations")
	}

	out := make([]InvitationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Accept(ctx context.Context, userID uuid.UUID, token string) (*AcceptResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invitation token is required")
	}

	invitation, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invitation")
	}

	now := time.Now().UTC()
	if invitation.Status != enums.InvitationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invitation is no longer pending")
	}
	if invitation.ExpiresAt.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invitation has expired")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !strings.EqualFold(user.Email, invitation.Email) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invitation was issued to a different email")
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.repo.WithTx(tx).UpdateStatus(ctx, invitation.ID, enums.InvitationStatusAccepted, &now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept invitation")
		}
		if updated == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "invitation is no longer pending")
		}

		if _, err := s.channels.WithTx(tx).CreateMembership(ctx, invitation.ChannelID, userID, invitation.Role, &invitation.InvitedBy); err != nil {
			if db.IsUniqueViolation(err, "uniq_channel_memberships_channel_user") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you are already a channel member")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &AcceptResult{ChannelID: invitation.ChannelID, Role: invitation.Role}, nil
}

func (s *service) Revoke(ctx context.Context, userID, channelID, invitationID uuid.UUID) error {
	if err := s.requireAdmin(ctx, channelID, userID); err != nil {
		return err
	}

	invitation, err := s.repo.FindByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invitation")
	}
	if invitation.ChannelID != channelID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "invitation not found")
	}

	updated, err := s.repo.UpdateStatus(ctx, invitationID, enums.InvitationStatusRevoked, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke invitation")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "invitation is no longer pending")
	}
	return nil
}

func (s *service) requireAdmin(ctx context.Context, channelID, userID uuid.UUID) error {
	membership, err := s.memberships.RequireMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if membership.Role != enums.MemberRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "channel admin role required")
	}
	return nil
}

func (s *service) sendInviteEmail(ctx context.Context, invitation *models.Invitation) {
	if s.mailer == nil {
		return
	}
	msg := mail.Message{
		To:      invitation.Email,
		Subject: "You have been invited to a whistl channel",
		Body: fmt.Sprintf(
			"You were invited to join an emergency coordination channel.\n\nAccept here: %s/%s\n\nThis invitation expires on %s.",
			s.baseLink, invitation.Token, invitation.ExpiresAt.Format(time.RFC1123),
		),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "invitation email delivery failed")
	}
}

func toDTO(i models.Invitation) InvitationDTO {
	return InvitationDTO{
		ID:         i.ID,
		ChannelID:  i.ChannelID,
		Email:      i.Email,
		Role:       i.Role,
		Status:     i.Status,
		InvitedBy:  i.InvitedBy,
		ExpiresAt:  i.ExpiresAt,
		AcceptedAt: i.AcceptedAt,
		CreatedAt:  i.CreatedAt,
	}
}

func newToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
