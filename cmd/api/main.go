package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonflow/internal/api"
	"salonflow/internal/availability"
	"salonflow/internal/changelog"
	"salonflow/internal/config"
	"salonflow/internal/database"
	"salonflow/internal/domain"
	"salonflow/internal/events"
	"salonflow/internal/logging"
	"salonflow/internal/metrics"
	"salonflow/internal/repository"
	"salonflow/internal/service"
	"salonflow/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	clientState := initClientState(cfg, &logger)

	bus := events.NewEventBus()
	changes := changelog.NewService(db, cfg.Booking.PollLimit, &logger)
	changes.SubscribeTo(bus)

	resolver := availability.NewResolver(db, &logger)
	appointments := service.NewAppointmentService(db, resolver, bus, &logger)
	blockedTimes := service.NewBlockedTimeService(db, bus, &logger)

	httpServer := api.NewHTTPServer(&cfg.API, appointments, blockedTimes, changes, clientState, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	retention := worker.NewRetentionWorker(
		changes,
		cfg.Booking.RetentionHours,
		cfg.Booking.CleanupSchedule,
		worker.RetryPolicy{},
		&logger,
	)
	go func() {
		if err := retention.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("retention worker failed to start")
		}
	}()

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

// initClientState wires poll-state tracking: redis when configured, with an
// in-memory fallback behind a failover wrapper so a redis outage degrades
// instead of failing requests.
func initClientState(cfg *config.Config, logger *zerolog.Logger) domain.ClientStateRepository {
	const stateTTL = 30 * 24 * time.Hour

	memory := repository.NewMemoryClientStateRepository(stateTTL)
	if cfg.Redis.Address == "" {
		return memory
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory poll state")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisClientStateRepository(redisClient, stateTTL)
	return repository.NewFailoverClientStateRepository(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
