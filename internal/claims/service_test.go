package claims

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	client  *db.Client
	svc     Service
	repo    *Repository
	channel *models.Channel
	alert   *models.Alert
	item    *models.PreparationItem
	members *memberSet
}

type memberSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]bool
}

func (m *memberSet) add(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = true
}

func (m *memberSet) RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ids[userID] {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a channel member")
	}
	return &models.ChannelMembership{
		ChannelID: channelID,
		UserID:    userID,
		Role:      enums.MemberRoleMember,
	}, nil
}

type captureNotifier struct {
	mu     sync.Mutex
	claims []models.ClaimedSupplyItem
}

func (c *captureNotifier) ItemClaimed(ctx context.Context, alert models.Alert, item models.PreparationItem, claim models.ClaimedSupplyItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims = append(c.claims, claim)
}

func newFixture(t *testing.T, totalQuantity int) (*fixture, *captureNotifier) {
	t.Helper()

	dsn := "file:claims_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	// One pooled connection serializes writers the way Postgres row locks do.
	sqlDB.SetMaxOpenConns(1)

	if err := conn.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.ChannelMembership{},
		&models.Alert{},
		&models.PreparationItem{},
		&models.ClaimedSupplyItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	creator := seedClaimUser(t, conn, "creator@example.com")
	channel := &models.Channel{ID: uuid.New(), Name: "Flood Response", CreatedBy: creator.ID}
	if err := conn.Create(channel).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	alert := &models.Alert{
		ID:        uuid.New(),
		ChannelID: channel.ID,
		Title:     "Water main break",
		Severity:  enums.AlertSeverityCritical,
		Status:    enums.AlertStatusActive,
		CreatedBy: creator.ID,
	}
	if err := conn.Create(alert).Error; err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	item := &models.PreparationItem{
		ID:            uuid.New(),
		AlertID:       alert.ID,
		Name:          "Bottled water",
		TotalQuantity: totalQuantity,
		Unit:          "case",
		CreatedBy:     creator.ID,
	}
	if err := conn.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}

	members := &memberSet{ids: map[uuid.UUID]bool{creator.ID: true}}
	notifier := &captureNotifier{}
	client := db.NewWithConn(conn)
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:          client,
		Repo:        repo,
		Memberships: members,
		Notifier:    notifier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &fixture{
		db:      conn,
		client:  client,
		svc:     svc,
		repo:    repo,
		channel: channel,
		alert:   alert,
		item:    item,
		members: members,
	}, notifier
}

func seedClaimUser(t *testing.T, conn *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Claim Tester",
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) newMember(t *testing.T, email string) *models.User {
	t.Helper()
	user := seedClaimUser(t, f.db, email)
	f.members.add(user.ID)
	return user
}

func errorCode(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	return typed.Code()
}

func TestClaimSucceedsAndReportsRemaining(t *testing.T) {
	f, notifier := newFixture(t, 5)
	user := f.newMember(t, "member@example.com")
	ctx := context.Background()

	dto, err := f.svc.Claim(ctx, ClaimParams{
		AlertID:  f.alert.ID,
		ItemID:   f.item.ID,
		UserID:   user.ID,
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if dto.ClaimedQuantity != 3 {
		t.Fatalf("expected claimed 3, got %d", dto.ClaimedQuantity)
	}
	if dto.RemainingQuantity != 2 {
		t.Fatalf("expected remaining 2, got %d", dto.RemainingQuantity)
	}
	if len(notifier.claims) != 1 {
		t.Fatalf("expected one claim notification, got %d", len(notifier.claims))
	}
}

func TestClaimSharesQuantityAcrossUsers(t *testing.T) {
	f, _ := newFixture(t, 5)
	first := f.newMember(t, "first@example.com")
	second := f.newMember(t, "second@example.com")
	ctx := context.Background()

	if _, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: first.ID, Quantity: 3}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	dto, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: second.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if dto.RemainingQuantity != 0 {
		t.Fatalf("expected remaining 0, got %d", dto.RemainingQuantity)
	}
}

func TestClaimRejectsSecondClaimBySameUser(t *testing.T) {
	f, _ := newFixture(t, 5)
	user := f.newMember(t, "member@example.com")
	ctx := context.Background()

	if _, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 1}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 1})
	if err == nil {
		t.Fatalf("expected second claim to fail")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeAlreadyClaimed {
		t.Fatalf("expected ALREADY_CLAIMED, got %s", code)
	}
}

func TestAlreadyClaimedCarriesExistingClaim(t *testing.T) {
	f, _ := newFixture(t, 5)
	user := f.newMember(t, "member@example.com")
	ctx := context.Background()

	first, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err = f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 1})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeAlreadyClaimed {
		t.Fatalf("expected ALREADY_CLAIMED, got %v", err)
	}

	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	existing, ok := details["existing_claim"].(map[string]any)
	if !ok {
		t.Fatalf("expected existing_claim in details, got %v", details)
	}
	if existing["id"] != first.ID {
		t.Fatalf("expected existing claim id %s, got %v", first.ID, existing["id"])
	}
	if existing["claimed_quantity"] != first.ClaimedQuantity {
		t.Fatalf("expected claimed quantity %d, got %v", first.ClaimedQuantity, existing["claimed_quantity"])
	}
}

func TestClaimRejectsInsufficientQuantity(t *testing.T) {
	f, _ := newFixture(t, 3)
	first := f.newMember(t, "first@example.com")
	second := f.newMember(t, "second@example.com")
	ctx := context.Background()

	if _, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: first.ID, Quantity: 2}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: second.ID, Quantity: 2})
	if err == nil {
		t.Fatalf("expected insufficient quantity")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeInsufficientQuantity {
		t.Fatalf("expected INSUFFICIENT_QUANTITY, got %s", code)
	}
}

func TestClaimRejectsZeroQuantity(t *testing.T) {
	f, _ := newFixture(t, 3)
	user := f.newMember(t, "member@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 0})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestClaimUnknownItemReturnsNotFound(t *testing.T) {
	f, _ := newFixture(t, 3)
	user := f.newMember(t, "member@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimParams{AlertID: f.alert.ID, ItemID: uuid.New(), UserID: user.ID, Quantity: 1})
	if err == nil {
		t.Fatalf("expected not found")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestClaimItemOnDifferentAlertReturnsNotFound(t *testing.T) {
	f, _ := newFixture(t, 3)
	user := f.newMember(t, "member@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimParams{AlertID: uuid.New(), ItemID: f.item.ID, UserID: user.ID, Quantity: 1})
	if err == nil {
		t.Fatalf("expected not found for mismatched alert")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestClaimRejectsNonMember(t *testing.T) {
	f, _ := newFixture(t, 3)
	outsider := seedClaimUser(t, f.db, "outsider@example.com")

	_, err := f.svc.Claim(context.Background(), ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: outsider.ID, Quantity: 1})
	if err == nil {
		t.Fatalf("expected forbidden")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %s", code)
	}
}

func TestClaimRejectsResolvedAlert(t *testing.T) {
	f, _ := newFixture(t, 3)
	user := f.newMember(t, "member@example.com")

	if err := f.db.Model(&models.Alert{}).Where("id = ?", f.alert.ID).
		Update("status", enums.AlertStatusResolved).Error; err != nil {
		t.Fatalf("resolve alert: %v", err)
	}

	_, err := f.svc.Claim(context.Background(), ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 1})
	if err == nil {
		t.Fatalf("expected conflict on resolved alert")
	}
	if code := errorCode(t, err); code != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestReleaseRemovesClaim(t *testing.T) {
	f, _ := newFixture(t, 3)
	user := f.newMember(t, "member@example.com")
	ctx := context.Background()

	if _, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: 2}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := f.svc.Release(ctx, user.ID, f.alert.ID, f.item.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	total, err := f.repo.ClaimedTotal(ctx, f.item.ID)
	if err != nil {
		t.Fatalf("claimed total: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total 0 after release, got %d", total)
	}

	if err := f.svc.Release(ctx, user.ID, f.alert.ID, f.item.ID); err == nil {
		t.Fatalf("expected not found releasing twice")
	}
}

func TestListForItemReturnsClaimants(t *testing.T) {
	f, _ := newFixture(t, 5)
	first := f.newMember(t, "first@example.com")
	second := f.newMember(t, "second@example.com")
	ctx := context.Background()

	for i, user := range []*models.User{first, second} {
		if _, err := f.svc.Claim(ctx, ClaimParams{AlertID: f.alert.ID, ItemID: f.item.ID, UserID: user.ID, Quantity: i + 1}); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}

	rows, err := f.svc.ListForItem(ctx, first.ID, f.alert.ID, f.item.ID)
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(rows))
	}
	if rows[0].Email == "" || rows[0].FullName == "" {
		t.Fatalf("expected user metadata on claim rows")
	}
}

func TestConcurrentClaimsNeverOverAllocate(t *testing.T) {
	const capacity = 3
	const contenders = 10

	f, notifier := newFixture(t, capacity)
	ctx := context.Background()

	users := make([]*models.User, 0, contenders)
	for i := 0; i < contenders; i++ {
		users = append(users, f.newMember(t, fmt.Sprintf("member%d@example.com", i)))
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i, user := range users {
		wg.Add(1)
		go func(idx int, userID uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Claim(ctx, ClaimParams{
				AlertID:  f.alert.ID,
				ItemID:   f.item.ID,
				UserID:   userID,
				Quantity: 1,
			})
			results[idx] = err
		}(i, user.ID)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil {
			t.Fatalf("unexpected untyped error: %v", err)
		}
		switch typed.Code() {
		case pkgerrors.CodeRaceLost, pkgerrors.CodeInsufficientQuantity:
		default:
			t.Fatalf("unexpected failure code %s: %v", typed.Code(), err)
		}
	}
	if successes != capacity {
		t.Fatalf("expected exactly %d winners, got %d", capacity, successes)
	}

	total, err := f.repo.ClaimedTotal(ctx, f.item.ID)
	if err != nil {
		t.Fatalf("claimed total: %v", err)
	}
	if total != capacity {
		t.Fatalf("expected %d claimed, got %d", capacity, total)
	}

	var count int64
	if err := f.db.Model(&models.ClaimedSupplyItem{}).
		Where("preparation_item_id = ?", f.item.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if count != capacity {
		t.Fatalf("expected %d claim rows, got %d", capacity, count)
	}
	if len(notifier.claims) != capacity {
		t.Fatalf("expected %d notifications, got %d", capacity, len(notifier.claims))
	}
}

func TestConcurrentDuplicateUserClaimsResolveToOne(t *testing.T) {
	f, _ := newFixture(t, 10)
	user := f.newMember(t, "member@example.com")
	ctx := context.Background()

	const attempts = 4
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := f.svc.Claim(ctx, ClaimParams{
				AlertID:  f.alert.ID,
				ItemID:   f.item.ID,
				UserID:   user.ID,
				Quantity: 2,
			})
			results[idx] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil {
			t.Fatalf("unexpected untyped error: %v", err)
		}
		switch typed.Code() {
		case pkgerrors.CodeAlreadyClaimed, pkgerrors.CodeRaceLost:
		default:
			t.Fatalf("unexpected failure code %s: %v", typed.Code(), err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", successes)
	}

	total, err := f.repo.ClaimedTotal(ctx, f.item.ID)
	if err != nil {
		t.Fatalf("claimed total: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected claimed total 2, got %d", total)
	}
}
