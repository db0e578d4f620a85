package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/whistl-app/whistl-backend/pkg/logger"
	"github.com/whistl-app/whistl-backend/pkg/mail"
	"github.com/whistl-app/whistl-backend/pkg/metrics"
	"github.com/whistl-app/whistl-backend/pkg/push"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type memberLister interface {
	ListMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
}

type subscriptionStore interface {
	ListByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]models.PushSubscription, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

// Fanout delivers channel events to every member except the actor. In-app
// rows always land; web push and email ride along on a best-effort basis.
type Fanout struct {
	repo    Repository
	members memberLister
	subs    subscriptionStore
	users   userDirectory
	push    push.Sender
	mailer  mail.Sender
	logg    *logger.Logger
	metrics *metrics.NotificationMetrics
}

// FanoutParams bundles the fan-out dependencies. Push and Mailer are
// optional transports.
type FanoutParams struct {
	Repo    Repository
	Members memberLister
	Subs    subscriptionStore
	Users   userDirectory
	Push    push.Sender
	Mailer  mail.Sender
	Logger  *logger.Logger
	Metrics *metrics.NotificationMetrics
}

// NewFanout wires the notification dispatcher.
func NewFanout(params FanoutParams) (*Fanout, error) {
	if params.Repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if params.Members == nil {
		return nil, errors.New("channel member lister required")
	}
	return &Fanout{
		repo:    params.Repo,
		members: params.Members,
		subs:    params.Subs,
		users:   params.Users,
		push:    params.Push,
		mailer:  params.Mailer,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

type event struct {
	Type      enums.NotificationType
	Title     string
	Message   string
	Link      string
	SendEmail bool
}

// AlertCreated notifies channel members about a new alert. Critical alerts
// additionally go out over email.
func (f *Fanout) AlertCreated(ctx context.Context, alert models.Alert) {
	message := fmt.Sprintf("A %s alert was raised in your channel.", alert.Severity)
	if alert.Description != nil && *alert.Description != "" {
		message = *alert.Description
	}
	f.dispatch(ctx, alert.ChannelID, alert.CreatedBy, event{
		Type:      enums.NotificationTypeAlertCreated,
		Title:     "New alert: " + alert.Title,
		Message:   message,
		Link:      alertLink(alert.ID),
		SendEmail: alert.Severity == enums.AlertSeverityCritical,
	})
}

// AlertResolved notifies channel members that an alert was closed out.
func (f *Fanout) AlertResolved(ctx context.Context, alert models.Alert) {
	f.dispatch(ctx, alert.ChannelID, uuid.Nil, event{
		Type:    enums.NotificationTypeAlertResolved,
		Title:   "Alert resolved: " + alert.Title,
		Message: "The alert has been marked resolved.",
		Link:    alertLink(alert.ID),
	})
}

// ItemClaimed tells the channel a member took responsibility for supplies.
func (f *Fanout) ItemClaimed(ctx context.Context, alert models.Alert, item models.PreparationItem, claim models.ClaimedSupplyItem) {
	f.dispatch(ctx, alert.ChannelID, claim.UserID, event{
		Type:    enums.NotificationTypeItemClaimed,
		Title:   "Supplies claimed: " + item.Name,
		Message: fmt.Sprintf("%d %s of %s claimed for %q.", claim.ClaimedQuantity, item.Unit, item.Name, alert.Title),
		Link:    alertLink(alert.ID),
	})
}

// PollCreated asks channel members to check in on a new wellness poll.
func (f *Fanout) PollCreated(ctx context.Context, poll models.Poll) {
	f.dispatch(ctx, poll.ChannelID, poll.CreatedBy, event{
		Type:    enums.NotificationTypePollCreated,
		Title:   "New wellness poll",
		Message: poll.Question,
		Link:    "/polls/" + poll.ID.String(),
	})
}

func (f *Fanout) dispatch(ctx context.Context, channelID, actorID uuid.UUID, ev event) {
	memberIDs, err := f.members.ListMemberIDs(ctx, channelID)
	if err != nil {
		f.logError(ctx, "list channel members for notification", err)
		return
	}

	recipients := make([]uuid.UUID, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == actorID {
			continue
		}
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return
	}

	// Transports run in parallel; one slow or failing channel must not hold
	// up the others. Partial failures are gathered and logged, never returned
	// to the triggering request.
	transports := []func(context.Context, []uuid.UUID, event) error{
		f.deliverInApp,
		f.deliverPush,
		f.deliverEmail,
	}

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for _, deliver := range transports {
		wg.Add(1)
		go func(deliver func(context.Context, []uuid.UUID, event) error) {
			defer wg.Done()
			if err := deliver(ctx, recipients, ev); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(deliver)
	}
	wg.Wait()

	if errs != nil {
		f.logError(ctx, "notification fan-out incomplete", errs)
	}
}

func (f *Fanout) deliverInApp(ctx context.Context, recipients []uuid.UUID, ev event) error {
	var errs error
	for _, userID := range recipients {
		notification := &models.Notification{
			UserID:  userID,
			Type:    ev.Type,
			Title:   ev.Title,
			Message: ev.Message,
		}
		if ev.Link != "" {
			link := ev.Link
			notification.Link = &link
		}
		if err := f.repo.Create(ctx, notification); err != nil {
			errs = multierr.Append(errs, err)
			f.metrics.IncFailed("in_app")
			continue
		}
		f.metrics.IncDelivered("in_app")
	}
	return errs
}

func (f *Fanout) deliverPush(ctx context.Context, recipients []uuid.UUID, ev event) error {
	if f.push == nil || f.subs == nil {
		return nil
	}

	subs, err := f.subs.ListByUserIDs(ctx, recipients)
	if err != nil {
		return err
	}

	payload := push.Payload{
		Title:   ev.Title,
		Message: ev.Message,
		Link:    ev.Link,
	}

	var errs error
	for _, sub := range subs {
		target := push.Subscription{
			Endpoint: sub.Endpoint,
			P256DH:   sub.P256DH,
			Auth:     sub.Auth,
		}
		err := f.push.Send(ctx, target, payload)
		if errors.Is(err, push.ErrSubscriptionGone) {
			// Stale browser subscription; drop it so we stop retrying.
			if delErr := f.subs.DeleteByID(ctx, sub.ID); delErr != nil {
				errs = multierr.Append(errs, delErr)
			}
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			f.metrics.IncFailed("webpush")
			continue
		}
		f.metrics.IncDelivered("webpush")
	}
	return errs
}

func (f *Fanout) deliverEmail(ctx context.Context, recipients []uuid.UUID, ev event) error {
	if !ev.SendEmail || f.mailer == nil || f.users == nil {
		return nil
	}

	members, err := f.users.FindByIDs(ctx, recipients)
	if err != nil {
		return err
	}

	var errs error
	for _, member := range members {
		msg := mail.Message{
			To:      member.Email,
			Subject: ev.Title,
			Body:    ev.Message,
		}
		if err := f.mailer.Send(ctx, msg); err != nil {
			errs = multierr.Append(errs, err)
			f.metrics.IncFailed("email")
			continue
		}
		f.metrics.IncDelivered("email")
	}
	return errs
}

func (f *Fanout) logError(ctx context.Context, msg string, err error) {
	if f.logg == nil {
		return
	}
	f.logg.Error(ctx, msg, err)
}

func alertLink(id uuid.UUID) string {
	return "/alerts/" + id.String()
}
