package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whistl-app/whistl-backend/api/controllers"
	"github.com/whistl-app/whistl-backend/api/middleware"
	"github.com/whistl-app/whistl-backend/internal/alerts"
	"github.com/whistl-app/whistl-backend/internal/assistant"
	"github.com/whistl-app/whistl-backend/internal/auth"
	"github.com/whistl-app/whistl-backend/internal/channels"
	"github.com/whistl-app/whistl-backend/internal/claims"
	"github.com/whistl-app/whistl-backend/internal/invitations"
	"github.com/whistl-app/whistl-backend/internal/messages"
	"github.com/whistl-app/whistl-backend/internal/notifications"
	"github.com/whistl-app/whistl-backend/internal/polls"
	subscriptionsvc "github.com/whistl-app/whistl-backend/internal/subscriptions"
	"github.com/whistl-app/whistl-backend/pkg/auth/session"
	"github.com/whistl-app/whistl-backend/pkg/config"
	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/enums"
	"github.com/whistl-app/whistl-backend/pkg/logger"
	"github.com/whistl-app/whistl-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// RouterParams bundles everything the HTTP surface needs.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              db.Pinger
	Redis           *redis.Client
	Sessions        sessionManager
	Membership      middleware.MembershipChecker
	MetricsRegistry *prometheus.Registry

	Auth          auth.Service
	Channels      channels.Service
	Messages      messages.Service
	Alerts        alerts.Service
	Claims        claims.Service
	Polls         polls.Service
	Invitations   invitations.Service
	Notifications notifications.Service
	Subscriptions subscriptionsvc.Service
	Assistant     assistant.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	adminOnly := middleware.RequireChannelRoles(p.Membership, logg, enums.MemberRoleAdmin)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Post("/validate", controllers.PublicValidate(logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, p.Redis, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Sessions, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Sessions, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/channels", func(r chi.Router) {
			r.Post("/", controllers.ChannelCreate(p.Channels, logg))
			r.Get("/", controllers.ChannelList(p.Channels, logg))

			r.Route("/{channelId}", func(r chi.Router) {
				r.Get("/", controllers.ChannelGet(p.Channels, logg))
				r.Patch("/", controllers.ChannelUpdate(p.Channels, logg))
				r.Delete("/", controllers.ChannelDelete(p.Channels, logg))

				r.Route("/members", func(r chi.Router) {
					r.Get("/", controllers.ChannelMembers(p.Channels, logg))
					r.Delete("/{memberId}", controllers.ChannelMemberRemove(p.Channels, logg))
					r.With(adminOnly).Patch("/{memberId}/role", controllers.ChannelMemberRoleUpdate(p.Channels, logg))
				})

				r.Route("/messages", func(r chi.Router) {
					r.Post("/", controllers.MessagePost(p.Messages, logg))
					r.Get("/", controllers.MessageList(p.Messages, logg))
				})

				r.Route("/alerts", func(r chi.Router) {
					r.Post("/", controllers.AlertCreate(p.Alerts, logg))
					r.Get("/", controllers.AlertList(p.Alerts, logg))
				})

				r.Route("/polls", func(r chi.Router) {
					r.Post("/", controllers.PollCreate(p.Polls, logg))
					r.Get("/", controllers.PollList(p.Polls, logg))
				})

				r.Route("/invitations", func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/", controllers.InvitationCreate(p.Invitations, logg))
					r.Get("/", controllers.InvitationList(p.Invitations, logg))
					r.Delete("/{invitationId}", controllers.InvitationRevoke(p.Invitations, logg))
				})
			})
		})

		r.Route("/alerts/{alertId}", func(r chi.Router) {
			r.Get("/", controllers.AlertGet(p.Alerts, logg))
			r.Post("/resolve", controllers.AlertResolve(p.Alerts, logg))
			r.Post("/items", controllers.AlertItemAdd(p.Alerts, logg))

			r.Route("/items/{itemId}/claims", func(r chi.Router) {
				r.Post("/", controllers.ClaimCreate(p.Claims, logg))
				r.Delete("/", controllers.ClaimRelease(p.Claims, logg))
				r.Get("/", controllers.ClaimList(p.Claims, logg))
			})
		})

		r.Route("/polls/{pollId}", func(r chi.Router) {
			r.Get("/", controllers.PollGet(p.Polls, logg))
			r.Post("/responses", controllers.PollRespond(p.Polls, logg))
		})

		r.Post("/invitations/accept", controllers.InvitationAccept(p.Invitations, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationList(p.Notifications, logg))
			r.Get("/unread-count", controllers.NotificationUnreadCount(p.Notifications, logg))
			r.Post("/read-all", controllers.NotificationMarkAllRead(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.NotificationMarkRead(p.Notifications, logg))
		})

		r.Route("/push/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.PushSubscribe(p.Subscriptions, logg))
			r.Delete("/", controllers.PushUnsubscribe(p.Subscriptions, logg))
			r.Get("/", controllers.PushSubscriptionList(p.Subscriptions, logg))
		})

		if p.Assistant != nil {
			r.Post("/assistant/chat", controllers.AssistantChat(p.Assistant, logg))
		}
	})

	return r
}
