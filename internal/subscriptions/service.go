package subscriptions

import (
	"context"
	"strings"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
)

// SubscribeRequest carries the browser PushSubscription fields.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	P256DH   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required"`
}

// UnsubscribeRequest identifies the subscription to drop.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// SubscriptionDTO is the transport shape for a push subscription.
type SubscriptionDTO struct {
	ID        uuid.UUID `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}

// Service manages a user's web push subscriptions.
type Service interface {
	Subscribe(ctx context.Context, userID uuid.UUID, req SubscribeRequest) (*SubscriptionDTO, error)
	Unsubscribe(ctx context.Context, userID uuid.UUID, endpoint string) error
	List(ctx context.Context, userID uuid.UUID) ([]SubscriptionDTO, error)
}

type service struct {
	repo *Repository
}

// NewService wires subscription dependencies.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscriptions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Subscribe(ctx context.Context, userID uuid.UUID, req SubscribeRequest) (*SubscriptionDTO, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "endpoint is required")
	}
	if strings.TrimSpace(req.P256DH) == "" || strings.TrimSpace(req.Auth) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription keys are required")
	}

	sub := &models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256DH:   strings.TrimSpace(req.P256DH),
		Auth:     strings.TrimSpace(req.Auth),
	}
	if err := s.repo.Upsert(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store push subscription")
	}

	return &SubscriptionDTO{
		ID:        sub.ID,
		Endpoint:  sub.Endpoint,
		CreatedAt: sub.CreatedAt,
	}, nil
}

func (s *service) Unsubscribe(ctx context.Context, userID uuid.UUID, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint is required")
	}

	deleted, err := s.repo.DeleteByEndpoint(ctx, userID, endpoint)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete push subscription")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]SubscriptionDTO, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list push subscriptions")
	}

	out := make([]SubscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, SubscriptionDTO{
			ID:        sub.ID,
			Endpoint:  sub.Endpoint,
			CreatedAt: sub.CreatedAt,
		})
	}
	return out, nil
}
