package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/collabtask/authcore/internal/app"
	"github.com/collabtask/authcore/internal/config"
	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/http/handler"
	"github.com/collabtask/authcore/internal/http/router"
	"github.com/collabtask/authcore/internal/observability"
	"github.com/collabtask/authcore/internal/repository"
	"github.com/collabtask/authcore/internal/schedule"
	"github.com/collabtask/authcore/internal/service"
	"github.com/collabtask/authcore/internal/tools/common"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{Use: "authcore", Short: "collabtask token lifecycle and ACL service"}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file to load before reading configuration")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return common.LoadEnvFile(envFile)
	}
	cmd.AddCommand(newServeCommand(), newCleanupCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the cleanup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)

			runtime, err := observability.InitRuntime(ctx, runtimeConfig(cfg), logger)
			if err != nil {
				return err
			}
			if h := runtime.LogHandler(); h != nil {
				logger = slog.New(h)
				slog.SetDefault(logger)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})

			deps, err := buildDependencies(cfg, db, redisClient, logger)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router.NewRouter(deps.router),
				ReadHeaderTimeout: 10 * time.Second,
			}
			a := app.New(cfg, logger, server, runtime, deps.cleanup)
			return a.Run(ctx)
		},
	}
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete token rows past the retention horizon and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			tokenRepo := repository.NewTokenRepository(db)
			tokens := service.NewTokenService(tokenRepo, service.NewNoopRevocationMarkerStore(),
				cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.RevokedMarkerTTL, cfg.CleanupRetention)
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StorageTimeout*10)
			defer cancel()
			count, err := tokens.Cleanup(ctx)
			if err != nil {
				return err
			}
			logger.Info("cleanup finished", "deleted", count)
			return nil
		},
	}
}

type dependencies struct {
	router  router.Dependencies
	cleanup *schedule.CleanupJob
}

func buildDependencies(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) (*dependencies, error) {
	if err := db.AutoMigrate(
		&domain.Token{},
		&domain.AclGrant{},
		&domain.PermissionDefinition{},
		&domain.AuditEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	tokenRepo := repository.NewTokenRepository(db)
	grantRepo := repository.NewAclGrantRepository(db)
	defRepo := repository.NewPermissionDefinitionRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	markers := service.NewRedisRevocationMarkerStore(redisClient, "")
	tokens := service.NewTokenService(tokenRepo, markers,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.RevokedMarkerTTL, cfg.CleanupRetention)
	acl := service.NewAclService(grantRepo, defRepo, auditRepo, service.NewOwnerResolverRegistry())
	locks := service.NewRedisLockManager(redisClient, "")
	guard := service.NewRedisIdempotencyGuard(redisClient, "")

	cleanup := schedule.NewCleanupJob(tokens, locks, cfg.CleanupInterval, cfg.CleanupLockLease, logger)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql db: %w", err)
	}

	return &dependencies{
		cleanup: cleanup,
		router: router.Dependencies{
			TokenHandler:      handler.NewTokenHandler(tokens),
			AclHandler:        handler.NewAclHandler(acl),
			TokenValidator:    tokens,
			Locks:             locks,
			Idempotency:       guard,
			LockWaitTime:      cfg.LockWaitTime,
			LockLeaseTime:     cfg.LockLeaseTime,
			IdempotencyWindow: cfg.IdempotencyWindow,
			EnableOTelHTTP:    cfg.OTELTracingEnabled,
			ReadinessChecks: []router.ReadinessCheck{
				{Name: "database", Check: func(ctx context.Context) error { return sqlDB.PingContext(ctx) }},
				{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			},
		},
	}, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DatabaseDriver {
	case "sqlite":
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			dsn = "file:authcore?mode=memory&cache=shared"
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return gorm.Open(postgres.Open(cfg.DatabaseDSN), gormCfg)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Profile == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func runtimeConfig(cfg *config.Config) observability.RuntimeConfig {
	return observability.RuntimeConfig{
		Metrics: observability.MetricsConfig{
			Enabled:     cfg.OTELMetricsEnabled,
			Endpoint:    cfg.OTELExporterOTLPEndpoint,
			Insecure:    cfg.OTELExporterOTLPInsecure,
			ServiceName: cfg.OTELServiceName,
			Environment: cfg.OTELEnvironment,
		},
		TracingEnabled: cfg.OTELTracingEnabled,
		LogsEnabled:    cfg.OTELLogsEnabled,
	}
}
