package invitations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/whistl-app/whistl-backend/internal/channels"
	"github.com/whistl-app/whistl-backend/internal/users"
	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/db/models"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	pkgerrors "github.com/whistl-app/whistl-backend/pkg/errors"
	"github.com/whistl-app/whistl-backend/pkg/mail"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type roleMap struct {
	mu    sync.Mutex
	roles map[uuid.UUID]enums.MemberRole
}

func (r *roleMap) set(userID uuid.UUID, role enums.MemberRole) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[userID] = role
}

func (r *roleMap) RequireMember(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMembership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a channel member")
	}
	return &models.ChannelMembership{ChannelID: channelID, UserID: userID, Role: role}, nil
}

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (c *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

type inviteFixture struct {
	db      *gorm.DB
	svc     Service
	repo    *Repository
	roles   *roleMap
	mailer  *captureMailer
	channel *models.Channel
	admin   *models.User
}

func newInviteFixture(t *testing.T) *inviteFixture {
	t.Helper()

	dsn := "file:invitations_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Channel{},
		&models.ChannelMembership{},
		&models.Invitation{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	admin := seedInviteUser(t, conn, "admin@example.com")
	channel := &models.Channel{ID: uuid.New(), Name: "Flood Response", CreatedBy: admin.ID}
	if err := conn.Create(channel).Error; err != nil {
		t.Fatalf("seed channel: %v", err)
	}

	roles := &roleMap{roles: map[uuid.UUID]enums.MemberRole{admin.ID: enums.MemberRoleAdmin}}
	mailer := &captureMailer{}
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		DB:          db.NewWithConn(conn),
		Repo:        repo,
		Channels:    channels.NewRepository(conn),
		Memberships: roles,
		Users:       users.NewRepository(conn),
		Mailer:      mailer,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &inviteFixture{
		db:      conn,
		svc:     svc,
		repo:    repo,
		roles:   roles,
		mailer:  mailer,
		channel: channel,
		admin:   admin,
	}
}

func seedInviteUser(t *testing.T, conn *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Invite Tester",
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestInviteSendsEmailAndStoresInvitation(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{
		Email: "Newcomer@Example.com",
		Role:  enums.MemberRoleMember,
	})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if dto.Email != "newcomer@example.com" {
		t.Fatalf("expected lowercased email, got %q", dto.Email)
	}
	if dto.Status != enums.InvitationStatusPending {
		t.Fatalf("expected pending status, got %s", dto.Status)
	}
	if len(f.mailer.messages) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.messages))
	}
	if f.mailer.messages[0].To != "newcomer@example.com" {
		t.Fatalf("unexpected recipient %q", f.mailer.messages[0].To)
	}
}

func TestInviteRequiresAdmin(t *testing.T) {
	f := newInviteFixture(t)
	member := seedInviteUser(t, f.db, "member@example.com")
	f.roles.set(member.ID, enums.MemberRoleMember)

	_, err := f.svc.Invite(context.Background(), member.ID, f.channel.ID, InviteRequest{
		Email: "someone@example.com",
		Role:  enums.MemberRoleMember,
	})
	if err == nil {
		t.Fatalf("expected forbidden for non-admin")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestInviteRejectsDuplicatePending(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{Email: "dup@example.com", Role: enums.MemberRoleMember}); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	_, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{Email: "dup@example.com", Role: enums.MemberRoleMember})
	if err == nil {
		t.Fatalf("expected conflict for duplicate pending invite")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestAcceptCreatesMembership(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	invitee := seedInviteUser(t, f.db, "invitee@example.com")
	dto, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{Email: invitee.Email, Role: enums.MemberRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	stored, err := f.repo.FindByID(ctx, dto.ID)
	if err != nil {
		t.Fatalf("load invitation: %v", err)
	}

	result, err := f.svc.Accept(ctx, invitee.ID, stored.Token)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.ChannelID != f.channel.ID || result.Role != enums.MemberRoleMember {
		t.Fatalf("unexpected accept result: %+v", result)
	}

	membership, err := channels.NewRepository(f.db).GetMembership(ctx, f.channel.ID, invitee.ID)
	if err != nil {
		t.Fatalf("load membership: %v", err)
	}
	if membership.Role != enums.MemberRoleMember {
		t.Fatalf("expected member role, got %s", membership.Role)
	}

	// The token is single use.
	if _, err := f.svc.Accept(ctx, invitee.ID, stored.Token); err == nil {
		t.Fatalf("expected conflict accepting twice")
	}
}

func TestAcceptRejectsDifferentEmail(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	stranger := seedInviteUser(t, f.db, "stranger@example.com")
	dto, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{Email: "target@example.com", Role: enums.MemberRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	stored, err := f.repo.FindByID(ctx, dto.ID)
	if err != nil {
		t.Fatalf("load invitation: %v", err)
	}

	_, err = f.svc.Accept(ctx, stranger.ID, stored.Token)
	if err == nil {
		t.Fatalf("expected forbidden for mismatched email")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestAcceptRejectsExpiredInvitation(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	invitee := seedInviteUser(t, f.db, "late@example.com")
	invitation := &models.Invitation{
		ChannelID: f.channel.ID,
		Email:     invitee.Email,
		Token:     "expired-token",
		Role:      enums.MemberRoleMember,
		Status:    enums.InvitationStatusPending,
		InvitedBy: f.admin.ID,
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := f.repo.Create(ctx, invitation); err != nil {
		t.Fatalf("seed invitation: %v", err)
	}

	_, err := f.svc.Accept(ctx, invitee.ID, invitation.Token)
	if err == nil {
		t.Fatalf("expected conflict for expired invitation")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestRevokePendingInvitation(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Invite(ctx, f.admin.ID, f.channel.ID, InviteRequest{Email: "gone@example.com", Role: enums.MemberRoleMember})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	if err := f.svc.Revoke(ctx, f.admin.ID, f.channel.ID, dto.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	stored, err := f.repo.FindByID(ctx, dto.ID)
	if err != nil {
		t.Fatalf("load invitation: %v", err)
	}
	if stored.Status != enums.InvitationStatusRevoked {
		t.Fatalf("expected revoked status, got %s", stored.Status)
	}

	if err := f.svc.Revoke(ctx, f.admin.ID, f.channel.ID, dto.ID); err == nil {
		t.Fatalf("expected conflict revoking twice")
	}
}
