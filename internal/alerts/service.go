package alerts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service defines alert lifecycle operations.
type Service interface {
	Create(ctx context.Context, userID, channelID uuid.UUID, req CreateAlertRequest) (*AlertDTO, error)
	List(ctx context.Context, userID, channelID uuid.UUID, status *enums.AlertStatus) ([]AlertDTO, error)
	Get(ctx context.Context, userID, alertID uuid.UUID) (*AlertDTO, error)
	Resolve(ctx context.Context, userID, alertID uuid.UUID) (*AlertDTO, error)
	AddItem(ctx context.Context, userID, alertID uuid.UUID, input ItemInput) (*ItemDTO, error)
}

type membershipChecker interface {
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

// Notifier receives alert lifecycle events for fan-out delivery.
type Notifier interface {
	AlertCreated(ctx context.Context, alert models.Alert)
	AlertResolved(ctx context.Context, alert models.Alert)
}

type service struct {
	db          *db.Client
	repo        *Repository
	memberships membershipChecker
	notifier    Notifier
}

// ServiceParams bundles the dependencies for the alerts service.
type ServiceParams struct {
	DB          *db.Client
	Repo        *Repository
	Memberships membershipChecker
	Notifier    Notifier
}

// NewService wires alert dependencies. Notifier is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alerts repository required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "membership checker required")
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		memberships: params.Memberships,
		notifier:    params.Notifier,
	}, nil
}

func (s *service) Create(ctx context.Context, userID, channelID uuid.UUID, req CreateAlertRequest) (*AlertDTO, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert title is required")
	}
	if !req.Severity.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert severity")
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_at must be in the future")
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
		}
		if item.TotalQuantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
	}

	if _, err := s.memberships.RequireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}

	alert := &models.Alert{
		ChannelID:   channelID,
		Title:       title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      enums.AlertStatusActive,
		CreatedBy:   userID,
		ExpiresAt:   req.ExpiresAt,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, alert); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create alert")
		}
		for _, input := range req.Items {
			item := &models.PreparationItem{
				AlertID:       alert.ID,
				Name:          strings.TrimSpace(input.Name),
				TotalQuantity: input.TotalQuantity,
				Unit:          normalizeUnit(input.Unit),
				CreatedBy:     userID,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create preparation item")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.AlertCreated(context.WithoutCancel(ctx), *alert)
	}

	return s.loadDTO(ctx, *alert)
}

func (s *service) List(ctx context.Context, userID, channelID uuid.UUID, status *enums.AlertStatus) ([]AlertDTO, error) {
	if _, err := s.memberships.RequireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert status")
	}

	rows, err := s.repo.ListByChannel(ctx, channelID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alerts")
	}

	out := make([]AlertDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, alertToDTO(row, nil))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, alertID uuid.UUID) (*AlertDTO, error) {
	alert, err := s.loadAlertForMember(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	return s.loadDTO(ctx, *alert)
}

func (s *service) Resolve(ctx context.Context, userID, alertID uuid.UUID) (*AlertDTO, error) {
	alert, err := s.loadAlertForMember(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	if alert.CreatedBy != userID {
		isAdmin, err := s.isChannelAdmin(ctx, alert.ChannelID, userID)
		if err != nil {
			return nil, err
		}
		if !isAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the alert creator or a channel admin can resolve")
		}
	}

	now := time.Now().UTC()
	updated, err := s.repo.Resolve(ctx, alertID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve alert")
	}
	if updated == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "alert is already resolved")
	}

	alert.Status = enums.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.UpdatedAt = now

	if s.notifier != nil {
		s.notifier.AlertResolved(context.WithoutCancel(ctx), *alert)
	}

	return s.loadDTO(ctx, *alert)
}

func (s *service) AddItem(ctx context.Context, userID, alertID uuid.UUID, input ItemInput) (*ItemDTO, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required")
	}
	if input.TotalQuantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
	}

	alert, err := s.loadAlertForMember(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != enums.AlertStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "alert is resolved")
	}

	item := &models.PreparationItem{
		AlertID:       alertID,
		Name:          strings.TrimSpace(input.Name),
		TotalQuantity: input.TotalQuantity,
		Unit:          normalizeUnit(input.Unit),
		CreatedBy:     userID,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create preparation item")
	}

	return &ItemDTO{
		ID:                item.ID,
		AlertID:           item.AlertID,
		Name:              item.Name,
		TotalQuantity:     item.TotalQuantity,
		ClaimedQuantity:   0,
		RemainingQuantity: item.TotalQuantity,
		Unit:              item.Unit,
		CreatedAt:         item.CreatedAt,
	}, nil
}

func (s *service) loadAlertForMember(ctx context.Context, userID, alertID uuid.UUID) (*models.Alert, error) {
	alert, err := s.repo.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load alert")
	}
	if _, err := s.memberships.RequireMember(ctx, alert.ChannelID, userID); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *service) isChannelAdmin(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	membership, err := s.memberships.RequireMember(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	return membership.Role == enums.MemberRoleAdmin, nil
}

func (s *service) loadDTO(ctx context.Context, alert models.Alert) (*AlertDTO, error) {
	items, err := s.repo.ListItemsWithClaims(ctx, alert.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preparation items")
	}
	dto := alertToDTO(alert, items)
	return &dto, nil
}

func normalizeUnit(unit string) string {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" {
		return "unit"
	}
	return trimmed
}
