package messages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type allowList struct {
	members map[uuid.UUID]bool
}

func (a *allowList) RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	if !a.members[userID] {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a channel member")
	}
	return &models.ChannelMembership{ChannelID: channelID, UserID: userID, Role: enums.MemberRoleMember}, nil
}

func newMessageFixture(t *testing.T, memberIDs ...uuid.UUID) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:messages_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	members := map[uuid.UUID]bool{}
	for _, id := range memberIDs {
		members[id] = true
	}

	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Memberships: &allowList{members: members},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, conn
}

func TestPostTrimsAndStoresMessage(t *testing.T) {
	userID := uuid.New()
	svc, _ := newMessageFixture(t, userID)
	channelID := uuid.New()

	dto, err := svc.Post(context.Background(), PostParams{
		ChannelID: channelID,
		UserID:    userID,
		Body:      "  We need volunteers at the shelter.  ",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if dto.Body != "We need volunteers at the shelter." {
		t.Fatalf("expected trimmed body, got %q", dto.Body)
	}
	if dto.ID == uuid.Nil {
		t.Fatalf("expected assigned id")
	}
}

func TestPostValidation(t *testing.T) {
	userID := uuid.New()
	svc, _ := newMessageFixture(t, userID)
	channelID := uuid.New()

	cases := []struct {
		name string
		body string
	}{
		{"blank", "   "},
		{"too long", strings.Repeat("a", maxMessageLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Post(context.Background(), PostParams{ChannelID: channelID, UserID: userID, Body: tc.body})
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected VALIDATION, got %v", err)
			}
		})
	}
}

func TestPostRequiresMembership(t *testing.T) {
	svc, _ := newMessageFixture(t)

	_, err := svc.Post(context.Background(), PostParams{
		ChannelID: uuid.New(),
		UserID:    uuid.New(),
		Body:      "hello",
	})
	if err == nil {
		t.Fatalf("expected forbidden for non-member")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	userID := uuid.New()
	svc, conn := newMessageFixture(t, userID)
	channelID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		message := &models.Message{
			ID:        uuid.New(),
			ChannelID: channelID,
			UserID:    userID,
			Body:      "message",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := conn.Create(message).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	first, err := svc.List(context.Background(), ListParams{ChannelID: channelID, UserID: userID, Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(first.Items))
	}
	if first.Items[0].CreatedAt.Before(first.Items[1].CreatedAt) {
		t.Fatalf("expected newest first ordering")
	}
	if first.Cursor == "" {
		t.Fatalf("expected cursor for next page")
	}

	second, err := svc.List(context.Background(), ListParams{ChannelID: channelID, UserID: userID, Limit: 3, Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second.Items) != 2 {
		t.Fatalf("expected 2 remaining messages, got %d", len(second.Items))
	}
	if second.Cursor != "" {
		t.Fatalf("expected empty cursor on last page")
	}

	_, err = svc.List(context.Background(), ListParams{ChannelID: channelID, UserID: userID, Cursor: "not-base64"})
	if err == nil {
		t.Fatalf("expected invalid cursor error")
	}
}
