package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/whistl-app/whistl-backend/api/routes"
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
	"github.com/whistl-app/whistl-backend/internal/users"
	"github.com/whistl-app/whistl-backend/pkg/auth/session"
	"github.com/whistl-app/whistl-backend/pkg/config"
	"github.com/whistl-app/whistl-backend/pkg/db"
	"github.com/whistl-app/whistl-backend/pkg/logger"
	"github.com/whistl-app/whistl-backend/pkg/mail"
	"github.com/whistl-app/whistl-backend/pkg/metrics"
	"github.com/whistl-app/whistl-backend/pkg/migrate"
	"github.com/whistl-app/whistl-backend/pkg/push"
	"github.com/whistl-app/whistl-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	claimMetrics := metrics.NewClaimMetrics(registry)
	notificationMetrics := metrics.NewNotificationMetrics(registry)

	var mailer mail.Sender
	if client, mailErr := mail.NewClient(cfg.Mailgun); mailErr != nil {
		logg.Warn(context.Background(), "mailgun not configured, email delivery disabled")
	} else {
		mailer = client
	}

	var pusher push.Sender
	if client, pushErr := push.NewClient(cfg.WebPush); pushErr != nil {
		logg.Warn(context.Background(), "vapid keys not configured, web push disabled")
	} else {
		pusher = client
	}

	userRepo := users.NewRepository(dbClient.DB())
	channelRepo := channels.NewRepository(dbClient.DB())
	notificationRepo := notifications.NewRepository(dbClient.DB())
	subscriptionRepo := subscriptionsvc.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	channelService, err := channels.NewService(channels.ServiceParams{
		DB:   dbClient,
		Repo: channelRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create channels service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptionsvc.NewService(subscriptionRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	fanout, err := notifications.NewFanout(notifications.FanoutParams{
		Repo:    notificationRepo,
		Members: channelRepo,
		Subs:    subscriptionRepo,
		Users:   userRepo,
		Push:    pusher,
		Mailer:  mailer,
		Logger:  logg,
		Metrics: notificationMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification fan-out", err)
		os.Exit(1)
	}

	messageService, err := messages.NewService(messages.ServiceParams{
		Repo:        messages.NewRepository(dbClient.DB()),
		Memberships: channelService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create messages service", err)
		os.Exit(1)
	}

	alertService, err := alerts.NewService(alerts.ServiceParams{
		DB:          dbClient,
		Repo:        alerts.NewRepository(dbClient.DB()),
		Memberships: channelService,
		Notifier:    fanout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create alerts service", err)
		os.Exit(1)
	}

	claimService, err := claims.NewService(claims.ServiceParams{
		DB:          dbClient,
		Repo:        claims.NewRepository(dbClient.DB()),
		Memberships: channelService,
		Notifier:    fanout,
		Metrics:     claimMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create claims service", err)
		os.Exit(1)
	}

	pollService, err := polls.NewService(polls.ServiceParams{
		Repo:        polls.NewRepository(dbClient.DB()),
		Memberships: channelService,
		Notifier:    fanout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create polls service", err)
		os.Exit(1)
	}

	invitationService, err := invitations.NewService(invitations.ServiceParams{
		DB:          dbClient,
		Repo:        invitations.NewRepository(dbClient.DB()),
		Channels:    channelRepo,
		Memberships: channelService,
		Users:       userRepo,
		Mailer:      mailer,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create invitations service", err)
		os.Exit(1)
	}

	var assistantService assistant.Service
	if svc, assistantErr := assistant.NewService(cfg.Anthropic); assistantErr != nil {
		logg.Warn(context.Background(), "anthropic key not configured, assistant disabled")
	} else {
		assistantService = svc
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Sessions:        sessionManager,
			Membership:      channelRepo,
			MetricsRegistry: registry,
			Auth:            authService,
			Channels:        channelService,
			Messages:        messageService,
			Alerts:          alertService,
			Claims:          claimService,
			Polls:           pollService,
			Invitations:     invitationService,
			Notifications:   notificationService,
			Subscriptions:   subscriptionService,
			Assistant:       assistantService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
