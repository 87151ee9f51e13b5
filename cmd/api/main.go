package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/notify-relay/internal/application/dispatch"
	"github.com/notify-relay/internal/config"
	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/infrastructure/dynamo"
	jwtinfra "github.com/notify-relay/internal/infrastructure/jwt"
	"github.com/notify-relay/internal/infrastructure/sns"
	"github.com/notify-relay/internal/infrastructure/sqlite"
	"github.com/notify-relay/internal/infrastructure/webpush"
	transporthttp "github.com/notify-relay/internal/transport/http"
	"github.com/notify-relay/internal/transport/ws"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Info("no .env file found, reading from environment")
	}

	ctx := context.Background()

	subs, notifs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store unavailable", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// Without signing keys every authenticated route answers 401. Only /v1/ws
	// stays usable, trusting the user id declared in the auth frame.
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", "err", err)
	}

	webPush, err := webpush.NewFromConfig(cfg, logger)
	if err != nil {
		logger.Error("web push transport", "err", err)
		os.Exit(1)
	}

	// Native push via SNS (optional).
	var platform dispatch.Transport
	if cfg.SNSEnabled {
		if t, err := sns.NewFromConfig(ctx, cfg, logger); err == nil {
			platform = t
		} else {
			logger.Warn("SNS transport not available", "err", err)
		}
	}

	dispatcher := dispatch.NewDispatcher(subs, dispatch.NewRouter(webPush, platform, logger), dispatch.Options{
		Concurrency: cfg.PushConcurrency,
		SendTimeout: cfg.PushSendTimeout,
		Defaults: domain.PushDefaults{
			Icon:  cfg.PushIcon,
			Badge: cfg.PushBadge,
			Tag:   cfg.PushTag,
		},
		Logger: logger,
	})
	registry := ws.NewRegistry(logger)

	deps := &transporthttp.Deps{
		SubscriptionRepo: subs,
		NotificationRepo: notifs,
		PushKeys:         webPush,
		Notifier:         dispatch.NewNotifier(registry, dispatcher, logger),
		Registry:         registry,
		JWTProvider:      jwtProvider,
		Logger:           logger,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Shutdown does not track hijacked connections.
	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type subscriptionStore interface {
	transporthttp.SubscriptionRepository
	dispatch.SubscriptionStore
}

func openStore(ctx context.Context, cfg *config.Config) (subscriptionStore, transporthttp.NotificationRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() { _ = store.Close() }, nil
	case config.StoreDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		// Creates tables that don't exist yet.
		if err := dynamo.Bootstrap(ctx, client, cfg.DynamoTables); err != nil {
			slog.Warn("table bootstrap incomplete", "err", err)
		}
		return dynamo.NewSubscriptionRepo(client, cfg.DynamoTables.PushSubscriptions),
			dynamo.NewNotificationRepo(client, cfg.DynamoTables.Notifications),
			func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
