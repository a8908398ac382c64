package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeid-bot/internal/cache"
	"tradeid-bot/internal/config"
	"tradeid-bot/internal/convo"
	"tradeid-bot/internal/creds"
	"tradeid-bot/internal/handlers"
	"tradeid-bot/internal/httpserver"
	"tradeid-bot/internal/logging"
	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/nlu"
	"tradeid-bot/internal/payments"
	"tradeid-bot/internal/repo"
	"tradeid-bot/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	logger.Info("starting tradeid-bot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var repository repo.Repository
	if cfg.UsesPostgres() {
		repository, err = repo.NewPostgres(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	} else {
		repository, err = repo.NewSQLite(ctx, cfg.DatabaseURL, logger)
	}
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	resolver := nlu.New(nlu.Config{
		BaseURL: cfg.IntentBaseURL,
		APIKey:  cfg.IntentAPIKey,
		Model:   cfg.IntentModel,
		Timeout: cfg.IntentTimeout,
	}, logger, metricRegistry)

	engine := convo.New(repository, resolver, redisClient, metricRegistry, logger, convo.EngineConfig{
		MinDeposit: cfg.MinDepositAmount,
	})
	matcher := payments.New(repository, redisClient, metricRegistry, logger, cfg.MaxPaymentAmount)
	handoff := creds.New(repository, metricRegistry, logger, cfg.SupportContact)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, httpserver.Handlers{
		WhatsAppWebhook: handlers.NewConversationHandler(engine, cfg.WebhookSecret, logger, metricRegistry),
		PaymentWebhook:  handlers.NewPaymentHandler(matcher, cfg.WebhookSecret, logger, metricRegistry),
		Credentials:     handlers.NewCredentialHandler(handoff, logger, metricRegistry),
	}, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Redis:      redisClient,
	})

	go sweepExpiredClients(ctx, repository, cfg.ClientExpiry, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

// sweepExpiredClients periodically transitions stale non-terminal onboarding
// attempts to expired so the next inbound message starts a fresh record.
func sweepExpiredClients(ctx context.Context, repository repo.Repository, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repository.ExpireStaleClients(ctx, time.Now().Add(-ttl))
			if err != nil {
				logger.Warn("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired stale clients", "count", n)
			}
		}
	}
}
