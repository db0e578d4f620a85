package claims

import (
	"context"
	"errors"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/whistl-app/whistl-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimRequest is the payload for claiming part of a preparation item.
type ClaimRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// ClaimParams identifies the item being claimed and by whom.
type ClaimParams struct {
	AlertID  uuid.UUID
	ItemID   uuid.UUID
	UserID   uuid.UUID
	Quantity int
}

// ClaimDTO is the transport shape for a persisted claim.
type ClaimDTO struct {
	ID                uuid.UUID `json:"id"`
	PreparationItemID uuid.UUID `json:"preparation_item_id"`
	AlertID           uuid.UUID `json:"alert_id"`
	UserID            uuid.UUID `json:"user_id"`
	ClaimedQuantity   int       `json:"claimed_quantity"`
	RemainingQuantity int       `json:"remaining_quantity"`
	CreatedAt         time.Time `json:"created_at"`
}

// Service resolves supply claims.
type Service interface {
	Claim(ctx context.Context, params ClaimParams) (*ClaimDTO, error)
	Release(ctx context.Context, userID, alertID, itemID uuid.UUID) error
	ListForItem(ctx context.Context, userID, alertID, itemID uuid.UUID) ([]ClaimWithUser, error)
}

type membershipChecker interface {
	RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error)
}

// Notifier receives claim events for fan-out delivery.
type Notifier interface {
	ItemClaimed(ctx context.Context, alert models.Alert, item models.PreparationItem, claim models.ClaimedSupplyItem)
}

type service struct {
	db          *db.Client
	repo        *Repository
	memberships membershipChecker
	notifier    Notifier
	metrics     *metrics.ClaimMetrics
}

// ServiceParams bundles the dependencies for the claims service.
type ServiceParams struct {
	DB          *db.Client
	Repo        *Repository
	Memberships membershipChecker
	Notifier    Notifier
	Metrics     *metrics.ClaimMetrics
}

// NewService wires claim dependencies. Notifier and Metrics are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "claims repository required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "membership checker required")
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		memberships: params.Memberships,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
	}, nil
}

// Claim runs the two-layer resolution: a fast pre-check outside the
// transaction for friendly errors, then a locked recheck plus insert whose
// unique constraint is the authoritative guard. A request that passes the
// pre-check but fails inside the transaction lost a race.
func (s *service) Claim(ctx context.Context, params ClaimParams) (*ClaimDTO, error) {
	started := time.Now()
	dto, err := s.claim(ctx, params)
	s.metrics.ObserveResolution(outcomeLabel(err), time.Since(started))
	return dto, err
}

func (s *service) claim(ctx context.Context, params ClaimParams) (*ClaimDTO, error) {
	if params.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	item, alert, err := s.loadItemForMember(ctx, params.UserID, params.AlertID, params.ItemID)
	if err != nil {
		return nil, err
	}
	if alert.Status != enums.AlertStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "alert is resolved")
	}
	if params.Quantity > item.TotalQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientQuantity, "requested quantity exceeds item total").
			WithDetails(map[string]int{"total_quantity": item.TotalQuantity})
	}

	// Layer one: optimistic pre-check without locks.
	if existing, err := s.repo.FindUserClaim(ctx, params.ItemID, params.UserID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyClaimed, "you already claimed this item").
			WithDetails(map[string]any{"existing_claim": existingClaimDetails(existing)})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing claim")
	}

	total, err := s.repo.ClaimedTotal(ctx, params.ItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum claimed quantity")
	}
	if total+params.Quantity > item.TotalQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientQuantity, "not enough quantity remaining").
			WithDetails(map[string]int{"remaining_quantity": item.TotalQuantity - total})
	}

	// Layer two: locked recheck and insert. The unique index backs the
	// one-claim-per-user rule even if both goroutines pass the pre-check.
	claim := &models.ClaimedSupplyItem{
		PreparationItemID: params.ItemID,
		UserID:            params.UserID,
		AlertID:           alert.ID,
		ClaimedQuantity:   params.Quantity,
	}
	var remaining int
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.ItemForUpdate(ctx, params.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "preparation item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock preparation item")
		}

		lockedTotal, err := repo.ClaimedTotal(ctx, params.ItemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recheck claimed quantity")
		}
		if lockedTotal+params.Quantity > locked.TotalQuantity {
			return pkgerrors.New(pkgerrors.CodeRaceLost, "another member claimed the remaining quantity first").
				WithDetails(map[string]int{"remaining_quantity": locked.TotalQuantity - lockedTotal})
		}

		if err := repo.Insert(ctx, claim); err != nil {
			if db.IsUniqueViolation(err, models.ClaimsItemUserConstraint) {
				return pkgerrors.New(pkgerrors.CodeRaceLost, "a concurrent claim by this user won the race")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert claim")
		}

		remaining = locked.TotalQuantity - lockedTotal - params.Quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ItemClaimed(context.WithoutCancel(ctx), *alert, *item, *claim)
	}

	return &ClaimDTO{
		ID:                claim.ID,
		PreparationItemID: claim.PreparationItemID,
		AlertID:           claim.AlertID,
		UserID:            claim.UserID,
		ClaimedQuantity:   claim.ClaimedQuantity,
		RemainingQuantity: remaining,
		CreatedAt:         claim.CreatedAt,
	}, nil
}

func (s *service) Release(ctx context.Context, userID, alertID, itemID uuid.UUID) error {
	if _, _, err := s.loadItemForMember(ctx, userID, alertID, itemID); err != nil {
		return err
	}

	removed, err := s.repo.DeleteUserClaim(ctx, itemID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete claim")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "claim not found")
	}
	return nil
}

func (s *service) ListForItem(ctx context.Context, userID, alertID, itemID uuid.UUID) ([]ClaimWithUser, error) {
	if _, _, err := s.loadItemForMember(ctx, userID, alertID, itemID); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListForItem(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list claims")
	}
	return rows, nil
}

func (s *service) loadItemForMember(ctx context.Context, userID, alertID, itemID uuid.UUID) (*models.PreparationItem, *models.Alert, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "preparation item not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load preparation item")
	}
	if item.AlertID != alertID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "preparation item not found")
	}

	alert, err := s.repo.FindAlert(ctx, item.AlertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load alert")
	}

	if _, err := s.memberships.RequireMember(ctx, alert.ChannelID, userID); err != nil {
		return nil, nil, err
	}
	return item, alert, nil
}

func existingClaimDetails(claim *models.ClaimedSupplyItem) map[string]any {
	if claim == nil {
		return nil
	}
	return map[string]any{
		"id":                  claim.ID,
		"preparation_item_id": claim.PreparationItemID,
		"alert_id":            claim.AlertID,
		"user_id":             claim.UserID,
		"claimed_quantity":    claim.ClaimedQuantity,
		"created_at":          claim.CreatedAt,
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "claimed"
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodeAlreadyClaimed:
		return "already_claimed"
	case pkgerrors.CodeInsufficientQuantity:
		return "insufficient_quantity"
	case pkgerrors.CodeRaceLost:
		return "race_lost"
	case pkgerrors.CodeNotFound:
		return "not_found"
	case pkgerrors.CodeValidation:
		return "invalid"
	default:
		return "error"
	}
}
