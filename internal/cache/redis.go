package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client with logging helpers.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// New returns a Redis client based on provided configuration.
func New(cfg Config, logger *slog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger.With("component", "redis"),
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Once records key with SETNX semantics and reports whether this call was
// the first to do so. Used as the fast-path dedupe for provider callbacks;
// the database unique index stays the source of truth.
func (r *Redis) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Lock takes a best-effort advisory lock. It returns an unlock func and
// whether the lock was acquired; callers proceed either way since repository
// writes are single-shot full mutations.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		r.logger.Warn("redis lock failed", "key", key, "error", err)
		return func() {}, false
	}
	if !ok {
		return func() {}, false
	}
	return func() {
		if err := r.client.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			r.logger.Warn("redis unlock failed", "key", key, "error", err)
		}
	}, true
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	return r.client.Close()
}
