// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings shared by the server and the worker.
type Config struct {
	Env      string
	LogLevel string
	Port     string

	DatabaseURL      string
	DBMaxConns       int
	StatementTimeout time.Duration

	RedisAddr        string
	RedisPassword    string
	ForecastCacheTTL time.Duration

	NATSURL       string
	NATSSubjectNS string

	KafkaBrokers     []string
	KafkaOrdersTopic string
	KafkaGroupID     string

	SMTPAddr           string
	SMTPFrom           string
	AlertAdminEmails   []string
	AlertBroadcastRule string

	RiskSweepInterval      time.Duration
	SweepProductPause      time.Duration
	DailySweepHour         int
	OverstockHighWaterMark int64

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	CORSAllowedOrigins []string
}

// DefaultBroadcastRule selects alert-created events worth an email.
const DefaultBroadcastRule = `event.type == "alert.created" && event.risk_score >= 50.0`

// Load reads configuration. DATABASE_URL is required; everything else has a default.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("APP_PORT", "8080"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 25),
		StatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		ForecastCacheTTL: getEnvDuration("FORECAST_CACHE_TTL", 10*time.Minute),

		NATSURL:       os.Getenv("NATS_URL"),
		NATSSubjectNS: getEnv("NATS_SUBJECT_PREFIX", "inventory"),

		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaOrdersTopic: getEnv("KAFKA_ORDERS_TOPIC", "orders.created"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "stockledger"),

		SMTPAddr:           os.Getenv("SMTP_ADDR"),
		SMTPFrom:           getEnv("SMTP_FROM", "alerts@stockledger.local"),
		AlertAdminEmails:   getEnvList("ALERT_ADMIN_EMAILS"),
		AlertBroadcastRule: getEnv("ALERT_BROADCAST_RULE", DefaultBroadcastRule),

		RiskSweepInterval:      getEnvDuration("RISK_SWEEP_INTERVAL", time.Hour),
		SweepProductPause:      getEnvDuration("SWEEP_PRODUCT_PAUSE", 200*time.Millisecond),
		DailySweepHour:         getEnvInt("DAILY_SWEEP_HOUR", 0),
		OverstockHighWaterMark: int64(getEnvInt("OVERSTOCK_HIGH_WATER_MARK", 1000)),

		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 100),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DailySweepHour < 0 || c.DailySweepHour > 23 {
		return fmt.Errorf("DAILY_SWEEP_HOUR must be within 0..23, got %d", c.DailySweepHour)
	}
	if c.RiskSweepInterval <= 0 {
		return fmt.Errorf("RISK_SWEEP_INTERVAL must be positive")
	}
	if c.OverstockHighWaterMark <= 0 {
		return fmt.Errorf("OVERSTOCK_HIGH_WATER_MARK must be positive")
	}
	return nil
}

// IsDevelopment reports whether pretty console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
