package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/shiftline/shiftline-sync-server/internal/api"
	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/db"
	"github.com/shiftline/shiftline-sync-server/internal/notify/engine"
	"github.com/shiftline/shiftline-sync-server/internal/notify/queue"
	"github.com/shiftline/shiftline-sync-server/internal/notify/source"
	"github.com/shiftline/shiftline-sync-server/internal/notify/tracking"
	pkgsync "github.com/shiftline/shiftline-sync-server/internal/sync"
	"github.com/shiftline/shiftline-sync-server/internal/telemetry"
	"github.com/shiftline/shiftline-sync-server/internal/versions"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync control API server",
	Long: `Start the sync control API server.

The server requires a configuration file (--config) that specifies:
- The source folder holding attendance record sets
- The mirror destination (shared folder or S3 bucket)
- Sync interval, throttle policy overrides and storage backend

The service starts in the Stopped phase; use POST /api/v0/control/start to
begin mirroring.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	address := viper.GetString("address")
	configPath := viper.GetString("config")

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Infof("Loaded configuration from %s (service: %s, source: %s)",
		configPath, cfg.GetServiceName(), cfg.Source.Path)

	if err := os.MkdirAll(cfg.GetDataDir(), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	// Open the database when the database storage backend is configured
	var database *db.DB
	if cfg.GetStorageType() == config.StorageTypeDatabase {
		database, err = db.Open(cfg.Storage.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		logger.Infof("Using database storage backend at %s", cfg.Storage.Database.Path)
	}

	policies, err := cfg.ThrottleTable()
	if err != nil {
		return fmt.Errorf("invalid throttle configuration: %w", err)
	}

	// Assemble the notification queue engine
	recordSource := source.NewFileSource(cfg.GetRecordsPath())
	throttleStore := tracking.NewStore(cfg, database)
	notifyQueue := queue.NewQueue(cfg, database)
	queueEngine := engine.New(recordSource, throttleStore, notifyQueue, policies)

	// Metrics are exported through the Prometheus registry behind /metrics
	registry := prometheus.NewRegistry()
	meterProvider, err := telemetry.NewMeterProvider(
		telemetry.WithMeterServiceName(cfg.GetServiceName()),
		telemetry.WithMeterServiceVersion(versions.GetVersionInfo().Version),
		telemetry.WithMetricsEnabled(cfg.Telemetry.Metrics.Enabled),
		telemetry.WithPrometheusRegistry(registry),
	)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}
	queueMetrics, err := telemetry.NewQueueMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create queue metrics: %w", err)
	}

	service := pkgsync.NewService(cfg, queueEngine,
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithQueueMetrics(queueMetrics),
	)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	}
	if cfg.Telemetry.Metrics.Enabled {
		serverOpts = append(serverOpts, api.WithMetricsRegistry(registry))
	}
	router := api.NewServer(service, notifyQueue, serverOpts...)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Infof("Shutting down server...")

		if err := service.Stop(); err != nil {
			logger.Errorf("Failed to stop sync service: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Infof("Server shutdown complete")
	return nil
}
