package polls

import (
	"context"
	"testing"
	"time"

	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type allowAll struct{}

func (allowAll) RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	return &models.ChannelMembership{ChannelID: channelID, UserID: userID, Role: enums.MemberRoleMember}, nil
}

func newTestService(t *testing.T) (Service, *Repository, uuid.UUID) {
	t.Helper()

	dsn := "file:polls_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Poll{}, &models.PollResponse{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo, Memberships: allowAll{}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo, uuid.New()
}

func TestCreatePollValidatesOptions(t *testing.T) {
	svc, _, channelID := newTestService(t)
	userID := uuid.New()
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreatePollRequest
	}{
		{"missing question", CreatePollRequest{Options: []string{"Safe", "Need help"}}},
		{"single option", CreatePollRequest{Question: "Are you safe?", Options: []string{"Safe"}}},
		{"duplicate options", CreatePollRequest{Question: "Are you safe?", Options: []string{"Safe", "Safe"}}},
		{"blank option", CreatePollRequest{Question: "Are you safe?", Options: []string{"Safe", "  "}}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, userID, channelID, tc.req); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Errorf("%s: expected VALIDATION_ERROR, got %v", tc.name, err)
		}
	}
}

func TestRespondAggregatesAndUpserts(t *testing.T) {
	svc, _, channelID := newTestService(t)
	creator := uuid.New()
	ctx := context.Background()

	poll, err := svc.Create(ctx, creator, channelID, CreatePollRequest{
		Question: "Are you safe?",
		Options:  []string{"Safe", "Need help", "No power"},
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	alice := uuid.New()
	bob := uuid.New()

	if _, err := svc.Respond(ctx, alice, poll.ID, RespondRequest{Option: "Safe"}); err != nil {
		t.Fatalf("alice responds: %v", err)
	}
	if _, err := svc.Respond(ctx, bob, poll.ID, RespondRequest{Option: "Need help"}); err != nil {
		t.Fatalf("bob responds: %v", err)
	}

	// Re-answering replaces the previous selection.
	result, err := svc.Respond(ctx, bob, poll.ID, RespondRequest{Option: "Safe"})
	if err != nil {
		t.Fatalf("bob re-responds: %v", err)
	}

	if result.TotalResponses != 2 {
		t.Fatalf("expected 2 responses, got %d", result.TotalResponses)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected a single bucket, got %+v", result.Results)
	}
	if result.Results[0].Option != "Safe" || result.Results[0].Count != 2 {
		t.Fatalf("unexpected aggregate: %+v", result.Results[0])
	}
	if result.MyResponse == nil || *result.MyResponse != "Safe" {
		t.Fatalf("expected my_response Safe, got %v", result.MyResponse)
	}
}

func TestRespondRejectsUnknownOption(t *testing.T) {
	svc, _, channelID := newTestService(t)
	creator := uuid.New()
	ctx := context.Background()

	poll, err := svc.Create(ctx, creator, channelID, CreatePollRequest{
		Question: "Are you safe?",
		Options:  []string{"Safe", "Need help"},
	})
	if err != nil {
		t.Fatalf("create poll: %v", err)
	}

	_, err = svc.Respond(ctx, uuid.New(), poll.ID, RespondRequest{Option: "Maybe"})
	if err == nil {
		t.Fatalf("expected validation error for unknown option")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRespondRejectsClosedPoll(t *testing.T) {
	svc, repo, channelID := newTestService(t)
	ctx := context.Background()

	closed := time.Now().UTC().Add(-time.Hour)
	poll := &models.Poll{
		ChannelID: channelID,
		Question:  "Are you safe?",
		Options:   pq.StringArray{"Safe", "Need help"},
		CreatedBy: uuid.New(),
		ClosesAt:  &closed,
	}
	if err := repo.Create(ctx, poll); err != nil {
		t.Fatalf("seed poll: %v", err)
	}

	_, err := svc.Respond(ctx, uuid.New(), poll.ID, RespondRequest{Option: "Safe"})
	if err == nil {
		t.Fatalf("expected conflict for closed poll")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestGetUnknownPollReturnsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New(), uuid.New())
	if err == nil {
		t.Fatalf("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
