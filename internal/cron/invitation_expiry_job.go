package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/logger"
	"gorm.io/gorm"
)

type InvitationExpiryJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository invitationsExpiryRepo
}

type invitationsExpiryRepo interface {
	DeleteExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

func NewInvitationExpiryJob(params InvitationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("invitations repository required")
	}
	return &invitationExpiryJob{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		now:  time.Now,
	}, nil
}

type invitationExpiryJob struct {
	logg *logger.Logger
	db   txRunner
	repo invitationsExpiryRepo
	now  func() time.Time
}

func (j *invitationExpiryJob) Name() string { return "invitation-expiry" }

// Run purges pending invitations whose token expiry has passed. Accepted and
// revoked rows are kept for the channel's invitation history.
func (j *invitationExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteExpired(ctx, tx, now)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("invitation expiry: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":        now,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "invitation expiry sweep complete")
	return nil
}
