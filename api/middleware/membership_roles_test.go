package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/whistl-app/whistl-backend/pkg/enums"
)

type fakeMembershipChecker struct {
	hasRole   bool
	err       error
	channelID uuid.UUID
	userID    uuid.UUID
	roles     []enums.MemberRole
}

func (f *fakeMembershipChecker) UserHasRole(_ context.Context, channelID, userID uuid.UUID, roles ...enums.MemberRole) (bool, error) {
	f.channelID = channelID
	f.userID = userID
	f.roles = roles
	return f.hasRole, f.err
}

func channelRequest(t *testing.T, userID string, channelID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/channels/"+channelID+"/invitations", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("channelId", channelID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if userID != "" {
		ctx = WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func TestRequireChannelRolesAllowsMatchingRole(t *testing.T) {
	checker := &fakeMembershipChecker{hasRole: true}
	userID := uuid.New()
	channelID := uuid.New()

	var called bool
	handler := RequireChannelRoles(checker, nil, enums.MemberRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, channelRequest(t, userID.String(), channelID.String()))

	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, called)
	require.Equal(t, channelID, checker.channelID)
	require.Equal(t, userID, checker.userID)
	require.Equal(t, []enums.MemberRole{enums.MemberRoleAdmin}, checker.roles)
}

func TestRequireChannelRolesRejectsInsufficientRole(t *testing.T) {
	checker := &fakeMembershipChecker{hasRole: false}
	handler := RequireChannelRoles(checker, nil, enums.MemberRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, channelRequest(t, uuid.NewString(), uuid.NewString()))

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRequireChannelRolesRejectsMissingUserContext(t *testing.T) {
	checker := &fakeMembershipChecker{hasRole: true}
	handler := RequireChannelRoles(checker, nil, enums.MemberRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, channelRequest(t, "", uuid.NewString()))

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRequireChannelRolesRejectsMalformedChannelID(t *testing.T) {
	checker := &fakeMembershipChecker{hasRole: true}
	handler := RequireChannelRoles(checker, nil, enums.MemberRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, channelRequest(t, uuid.NewString(), "not-a-uuid"))

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
