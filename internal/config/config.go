package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the auth core. Values come from the
// environment; the defaults mirror the production constants (access 2h,
// refresh 7d, revocation marker 5m, cleanup retention 7d).
type Config struct {
	Profile  string
	HTTPAddr string

	DatabaseDriver string // postgres or sqlite
	DatabaseDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RevokedMarkerTTL time.Duration

	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	CleanupLockLease time.Duration

	StorageTimeout    time.Duration
	LockWaitTime      time.Duration
	LockLeaseTime     time.Duration
	IdempotencyWindow time.Duration

	ShutdownTimeout time.Duration

	OTELMetricsEnabled       bool
	OTELTracingEnabled       bool
	OTELLogsEnabled          bool
	OTELExporterOTLPEndpoint string
	OTELExporterOTLPInsecure bool
	OTELServiceName          string
	OTELEnvironment          string
}

func Load() (*Config, error) {
	cfg := &Config{
		Profile:  envString("APP_PROFILE", "dev"),
		HTTPAddr: envString("HTTP_ADDR", ":8080"),

		DatabaseDriver: envString("DB_DRIVER", "postgres"),
		DatabaseDSN:    envString("DB_DSN", ""),

		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		AccessTokenTTL:   envDuration("ACCESS_TOKEN_TTL", 2*time.Hour),
		RefreshTokenTTL:  envDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RevokedMarkerTTL: envDuration("REVOKED_MARKER_TTL", 5*time.Minute),

		CleanupRetention: envDuration("CLEANUP_RETENTION", 7*24*time.Hour),
		CleanupInterval:  envDuration("CLEANUP_INTERVAL", 24*time.Hour),
		CleanupLockLease: envDuration("CLEANUP_LOCK_LEASE", 5*time.Minute),

		StorageTimeout:    envDuration("STORAGE_TIMEOUT", 3*time.Second),
		LockWaitTime:      envDuration("LOCK_WAIT_TIME", 5*time.Second),
		LockLeaseTime:     envDuration("LOCK_LEASE_TIME", 30*time.Second),
		IdempotencyWindow: envDuration("IDEMPOTENCY_WINDOW", 10*time.Second),

		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		OTELMetricsEnabled:       envBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:       envBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:          envBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:          envString("OTEL_SERVICE_NAME", "collabtask-authcore"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "dev"),
	}

	if err := cfg.Validate(); err != nil {
		recordLoadEvent(context.Background(), cfg.Profile, "error", err)
		return nil, err
	}
	recordLoadEvent(context.Background(), cfg.Profile, "ok", nil)
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("validate config: unsupported DB_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == "" {
		return fmt.Errorf("validate config: DB_DSN is required for postgres")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("validate config: token TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("validate config: ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	if c.RevokedMarkerTTL <= 0 {
		return fmt.Errorf("validate config: REVOKED_MARKER_TTL must be positive")
	}
	if c.CleanupRetention <= 0 || c.CleanupInterval <= 0 {
		return fmt.Errorf("validate config: cleanup retention and interval must be positive")
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("validate config: STORAGE_TIMEOUT must be positive")
	}
	if c.LockLeaseTime <= 0 {
		return fmt.Errorf("validate config: LOCK_LEASE_TIME must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
