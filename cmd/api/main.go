package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/project-intake/internal/api/router"
	"github.com/wolfman30/project-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/notify"
	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/internal/submissions"
	"github.com/wolfman30/project-intake/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.Info("starting project intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if a.worker != nil {
		go a.worker.Run(ctx)
		logger.Info("in-process follow-up worker started", "interval", cfg.FollowUpPollInterval.String())
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No write timeout: the progress websocket is long-lived.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// app is the wired API process.
type app struct {
	handler http.Handler
	worker  *notify.FollowUpWorker
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	intakeMetrics := metrics.NewIntakeMetrics(registry)

	awsCfg := bootstrap.BuildAWSConfig(ctx, cfg, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}
	pool := bootstrap.BuildDBPool(ctx, cfg, logger)
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	persistence := intake.NewPersistence(bootstrap.BuildDraftStore(redisClient, cfg, logger), intakeMetrics, logger)
	sessions := intake.NewRegistry(intake.SessionConfig{
		Persistence:     persistence,
		Uploader:        bootstrap.BuildUploader(awsCfg, cfg, logger),
		AutosaveDelay:   cfg.AutosaveDelay,
		SuggestionGrace: cfg.SuggestionGrace,
		Metrics:         intakeMetrics,
		Logger:          logger,
	}, cfg.SessionIdleTTL)

	followUps, inProcess := followUpStore(redisClient, logger)
	dispatcher := notify.NewDispatcher(bootstrap.BuildEmailSender(awsCfg, cfg, logger), followUps, cfg.TeamName, logger)
	if inProcess {
		a.worker = notify.NewFollowUpWorker(followUps, dispatcher, cfg.FollowUpPollInterval, cfg.FollowUpBatchSize, intakeMetrics, logger)
	}

	repo := bootstrap.BuildSubmissionRepository(pool)
	coordinator := intake.NewCoordinator(intake.CoordinatorConfig{
		Dispatcher:    dispatcher,
		TeamRecipient: cfg.TeamEmail,
		TeamName:      cfg.TeamName,
		FollowUpDelay: cfg.FollowUpDelay,
		Recorders:     bootstrap.BuildRecorders(repo, awsCfg, cfg, logger),
		Metrics:       intakeMetrics,
		Logger:        logger,
	})

	a.handler = router.New(&router.Config{
		Logger:             logger,
		IntakeHandler:      intake.NewHandler(sessions, coordinator, logger),
		SubmissionsHandler: submissions.NewHandler(repo, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		HealthChecks:       healthChecks(redisClient, pool),
	})
	return a, nil
}

// followUpStore returns the shared Redis queue, drained by
// cmd/followup-worker, or a process-local queue that this process drains.
func followUpStore(redisClient *redis.Client, logger *logging.Logger) (notify.FollowUpStore, bool) {
	if redisClient == nil {
		return notify.NewMemoryFollowUpQueue(), true
	}
	return notify.NewFollowUpQueue(redisClient, logger), false
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["database"] = pool.Ping
	}
	return checks
}
