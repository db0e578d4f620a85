package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/whistl-app/whistl-backend/pkg/mail"
	"github.com/whistl-app/whistl-backend/pkg/push"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type staticMembers struct {
	ids []uuid.UUID
}

func (s *staticMembers) ListMemberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	return s.ids, nil
}

type memorySubs struct {
	mu      sync.Mutex
	subs    []models.PushSubscription
	deleted []uuid.UUID
}

func (m *memorySubs) ListByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []models.PushSubscription
	for _, sub := range m.subs {
		if wanted[sub.UserID] {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (m *memorySubs) DeleteByID(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

type staticUsers struct {
	users []models.User
}

func (s *staticUsers) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.User
	for _, user := range s.users {
		if wanted[user.ID] {
			out = append(out, user)
		}
	}
	return out, nil
}

type recordingPush struct {
	mu           sync.Mutex
	sent         []push.Subscription
	goneEndpoint string
}

func (r *recordingPush) Send(ctx context.Context, sub push.Subscription, payload push.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.Endpoint == r.goneEndpoint {
		return push.ErrSubscriptionGone
	}
	r.sent = append(r.sent, sub)
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (r *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

type fanoutFixture struct {
	fanout *Fanout
	repo   Repository
	db     *gorm.DB
	subs   *memorySubs
	push   *recordingPush
	mailer *recordingMailer
	users  *staticUsers
}

func newFanoutFixture(t *testing.T, memberIDs []uuid.UUID) *fanoutFixture {
	t.Helper()

	dsn := "file:fanout_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepository(conn)
	subs := &memorySubs{}
	sender := &recordingPush{}
	mailer := &recordingMailer{}
	users := &staticUsers{}

	fanout, err := NewFanout(FanoutParams{
		Repo:    repo,
		Members: &staticMembers{ids: memberIDs},
		Subs:    subs,
		Users:   users,
		Push:    sender,
		Mailer:  mailer,
	})
	if err != nil {
		t.Fatalf("new fanout: %v", err)
	}

	return &fanoutFixture{
		fanout: fanout,
		repo:   repo,
		db:     conn,
		subs:   subs,
		push:   sender,
		mailer: mailer,
		users:  users,
	}
}

func countNotifications(t *testing.T, conn *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return count
}

func TestAlertCreatedSkipsActorAndWritesRows(t *testing.T) {
	actor := uuid.New()
	memberA := uuid.New()
	memberB := uuid.New()
	f := newFanoutFixture(t, []uuid.UUID{actor, memberA, memberB})

	alert := models.Alert{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Title:     "Flooding downtown",
		Severity:  enums.AlertSeverityWarning,
		CreatedBy: actor,
	}
	f.fanout.AlertCreated(context.Background(), alert)

	if got := countNotifications(t, f.db, actor); got != 0 {
		t.Fatalf("actor should not be notified, got %d rows", got)
	}
	for _, member := range []uuid.UUID{memberA, memberB} {
		if got := countNotifications(t, f.db, member); got != 1 {
			t.Fatalf("expected 1 row for member, got %d", got)
		}
	}

	var stored models.Notification
	if err := f.db.First(&stored, "user_id = ?", memberA).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if stored.Type != enums.NotificationTypeAlertCreated {
		t.Fatalf("unexpected type %s", stored.Type)
	}
	if stored.Link == nil || *stored.Link != "/alerts/"+alert.ID.String() {
		t.Fatalf("unexpected link %v", stored.Link)
	}
	if len(f.mailer.messages) != 0 {
		t.Fatalf("warning alert should not email, got %d messages", len(f.mailer.messages))
	}
}

func TestCriticalAlertSendsEmail(t *testing.T) {
	actor := uuid.New()
	member := uuid.New()
	f := newFanoutFixture(t, []uuid.UUID{actor, member})
	f.users.users = []models.User{{ID: member, Email: "member@example.com", FullName: "Member"}}

	alert := models.Alert{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Title:     "Gas leak",
		Severity:  enums.AlertSeverityCritical,
		CreatedBy: actor,
	}
	f.fanout.AlertCreated(context.Background(), alert)

	if len(f.mailer.messages) != 1 {
		t.Fatalf("expected 1 email, got %d", len(f.mailer.messages))
	}
	if f.mailer.messages[0].To != "member@example.com" {
		t.Fatalf("unexpected recipient %q", f.mailer.messages[0].To)
	}
}

func TestPushDeliveredAndGoneSubscriptionPruned(t *testing.T) {
	actor := uuid.New()
	member := uuid.New()
	f := newFanoutFixture(t, []uuid.UUID{actor, member})

	live := models.PushSubscription{ID: uuid.New(), UserID: member, Endpoint: "https://push.example/live"}
	stale := models.PushSubscription{ID: uuid.New(), UserID: member, Endpoint: "https://push.example/stale"}
	f.subs.subs = []models.PushSubscription{live, stale}
	f.push.goneEndpoint = stale.Endpoint

	item := models.PreparationItem{ID: uuid.New(), Name: "Water bottles", Unit: "unit", TotalQuantity: 10}
	alert := models.Alert{ID: uuid.New(), ChannelID: uuid.New(), Title: "Flooding", CreatedBy: member}
	claim := models.ClaimedSupplyItem{UserID: actor, ClaimedQuantity: 4}
	f.fanout.ItemClaimed(context.Background(), alert, item, claim)

	if len(f.push.sent) != 1 || f.push.sent[0].Endpoint != live.Endpoint {
		t.Fatalf("expected one push to live endpoint, got %+v", f.push.sent)
	}
	if len(f.subs.deleted) != 1 || f.subs.deleted[0] != stale.ID {
		t.Fatalf("expected stale subscription pruned, got %+v", f.subs.deleted)
	}
}

type rendezvousPush struct {
	started chan struct{}
	peer    chan struct{}
	err     error
}

func (r *rendezvousPush) Send(ctx context.Context, sub push.Subscription, payload push.Payload) error {
	close(r.started)
	select {
	case <-r.peer:
		return nil
	case <-time.After(2 * time.Second):
		r.err = errors.New("email transport never started")
		return r.err
	}
}

type rendezvousMailer struct {
	started chan struct{}
	peer    chan struct{}
	err     error
}

func (r *rendezvousMailer) Send(ctx context.Context, msg mail.Message) error {
	close(r.started)
	select {
	case <-r.peer:
		return nil
	case <-time.After(2 * time.Second):
		r.err = errors.New("push transport never started")
		return r.err
	}
}

func TestTransportsDispatchInParallel(t *testing.T) {
	actor := uuid.New()
	member := uuid.New()
	f := newFanoutFixture(t, []uuid.UUID{actor, member})

	pushStarted := make(chan struct{})
	emailStarted := make(chan struct{})
	sender := &rendezvousPush{started: pushStarted, peer: emailStarted}
	mailer := &rendezvousMailer{started: emailStarted, peer: pushStarted}

	f.subs.subs = []models.PushSubscription{{ID: uuid.New(), UserID: member, Endpoint: "https://push.example/live"}}
	f.users.users = []models.User{{ID: member, Email: "member@example.com", FullName: "Member"}}

	fanout, err := NewFanout(FanoutParams{
		Repo:    f.repo,
		Members: &staticMembers{ids: []uuid.UUID{actor, member}},
		Subs:    f.subs,
		Users:   f.users,
		Push:    sender,
		Mailer:  mailer,
	})
	if err != nil {
		t.Fatalf("new fanout: %v", err)
	}

	alert := models.Alert{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Title:     "Gas leak",
		Severity:  enums.AlertSeverityCritical,
		CreatedBy: actor,
	}
	fanout.AlertCreated(context.Background(), alert)

	if sender.err != nil {
		t.Fatalf("push transport: %v", sender.err)
	}
	if mailer.err != nil {
		t.Fatalf("email transport: %v", mailer.err)
	}
}

func TestPollCreatedNotifiesMembers(t *testing.T) {
	creator := uuid.New()
	member := uuid.New()
	f := newFanoutFixture(t, []uuid.UUID{creator, member})

	poll := models.Poll{
		ID:        uuid.New(),
		ChannelID: uuid.New(),
		Question:  "Is everyone safe?",
		CreatedBy: creator,
	}
	f.fanout.PollCreated(context.Background(), poll)

	if got := countNotifications(t, f.db, member); got != 1 {
		t.Fatalf("expected 1 row for member, got %d", got)
	}
	if got := countNotifications(t, f.db, creator); got != 0 {
		t.Fatalf("creator should not be notified, got %d", got)
	}

	var stored models.Notification
	if err := f.db.First(&stored, "user_id = ?", member).Error; err != nil {
		t.Fatalf("load notification: %v", err)
	}
	if stored.Type != enums.NotificationTypePollCreated {
		t.Fatalf("unexpected type %s", stored.Type)
	}
	if stored.Message != poll.Question {
		t.Fatalf("expected question in message, got %q", stored.Message)
	}
}
