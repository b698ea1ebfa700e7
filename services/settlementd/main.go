package settlementd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	nodeconfig "invokeledger/config"
	"invokeledger/core/events"
	"invokeledger/native/common"
	"invokeledger/native/settlement"
	"invokeledger/observability/logging"
	telemetry "invokeledger/observability/otel"
	"invokeledger/services/settlementd/auth"
	"invokeledger/services/settlementd/config"
	settlemw "invokeledger/services/settlementd/middleware"
	"invokeledger/services/settlementd/models"
	"invokeledger/services/settlementd/server"
	"invokeledger/services/settlementd/store"
	"invokeledger/services/settlementd/stream"
	"invokeledger/storage"
)

// Main runs the settlement daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/settlementd/config.yaml", "path to settlementd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("INVOKELEDGER_ENV"))
	}
	logger := logging.SetupWithOptions("settlementd", env, logging.Options{
		Level: cfg.Logging.Level,
		File: logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		},
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "settlementd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	nodeCfg, err := nodeconfig.Load(cfg.SettlementPath)
	if err != nil {
		return fmt.Errorf("load settlement config: %w", err)
	}
	layout, err := nodeCfg.Settlement()
	if err != nil {
		return fmt.Errorf("settlement layout: %w", err)
	}

	kv, err := openStorage(nodeCfg)
	if err != nil {
		return fmt.Errorf("open settlement storage: %w", err)
	}
	defer kv.Close()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	registry := store.NewRegistry(db)
	archive, err := store.NewArchive(db, logger)
	if err != nil {
		return fmt.Errorf("open event archive: %w", err)
	}
	hub := stream.NewHub()
	archive.SetListener(hub.PublishRecord)

	pauses := common.NewPauseSet(nodeCfg.Paused...)
	module, err := settlement.New(layout, settlement.Deps{
		DB:       kv,
		Oracle:   registry,
		Registry: registry,
		Solvency: registry,
		Pauses:   pauses,
		Emitter:  events.Fanout{archive},
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build settlement module: %w", err)
	}

	idemStore, err := settlemw.NewIdempotencyStore(cfg.IdempotencyPath)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer func() { _ = idemStore.Close() }()

	if !cfg.Auth.IsEnabled() {
		logger.Warn("auth disabled: callers are taken from the "+auth.CallerHeader+" header and scope checks are skipped",
			slog.String("environment", cfg.Environment))
	}

	srv := server.New(server.Config{
		Module:   module,
		Registry: registry,
		Archive:  archive,
		Hub:      hub,
		Pauses:   pauses,
		Auth: auth.NewAuthenticator(auth.Config{
			Enabled:    cfg.Auth.IsEnabled(),
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		}, logger),
		RateLimiter: settlemw.NewRateLimiter(settlemw.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, logger),
		Idempotency: settlemw.NewIdempotency(idemStore, logger),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(srv.Handler(), "settlementd"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("settlementd listening",
			slog.String("listen_address", cfg.ListenAddress),
			slog.Bool("auth", cfg.Auth.IsEnabled()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStorage(cfg *nodeconfig.Config) (storage.Database, error) {
	if cfg.Backend == nodeconfig.BackendMemory {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(cfg.DataDir)
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	default:
		return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	}
}
