package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide settings, read once at startup and treated as
// immutable afterwards. Components receive values from here by constructor;
// nothing reads the environment mid-request.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// DatabaseURL is either a postgres:// / postgresql:// DSN or a path to
	// a local SQLite file.
	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// WebhookSecret signs inbound webhook bodies. It may be empty, in which
	// case every signature check fails (fail closed), never bypassed.
	WebhookSecret string

	IntentBaseURL string
	IntentAPIKey  string
	IntentModel   string
	IntentTimeout time.Duration

	SupportContact   string
	MinDepositAmount float64
	MaxPaymentAmount float64

	// ClientExpiry is how long a non-terminal onboarding attempt may sit
	// untouched before the sweeper transitions it to expired.
	ClientExpiry time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           envOr("APP_ENV", "development"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		HTTPListenAddr:   envOr("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   os.Getenv("PUBLIC_BASE_PATH"),
		MetricsNamespace: envOr("METRICS_NAMESPACE", "tradeid_bot"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: os.Getenv("DATABASE_SCHEMA"),

		RedisAddr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		RedisTLS:      envBool("REDIS_TLS", false),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		IntentBaseURL: envOr("INTENT_BASE_URL", "https://ai.gateway.lovable.dev/v1"),
		IntentAPIKey:  os.Getenv("INTENT_API_KEY"),
		IntentModel:   envOr("INTENT_MODEL", "google/gemini-2.5-flash"),
		IntentTimeout: envDuration("INTENT_TIMEOUT", 10*time.Second),

		SupportContact:   envOr("SUPPORT_CONTACT", "+91 99999 99999"),
		MinDepositAmount: envFloat("MIN_DEPOSIT_AMOUNT", 250),
		MaxPaymentAmount: envFloat("MAX_PAYMENT_AMOUNT", 1_000_000),

		ClientExpiry: envDuration("CLIENT_EXPIRY", 48*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookSecret == "" {
		// Not fatal: signature checks fail closed without it, but it is
		// almost certainly a deployment mistake worth flagging early.
		fmt.Fprintln(os.Stderr, "warning: WEBHOOK_SECRET is empty, all webhook signatures will be rejected")
	}

	return cfg, nil
}

// UsesPostgres reports whether DatabaseURL points at a Postgres server
// rather than a local SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if val == "" {
		return fallback
	}
	return val == "1" || val == "true" || val == "yes"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
