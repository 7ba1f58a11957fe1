package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/project-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/notify"
	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("follow-up worker requires REDIS_ADDR")
		os.Exit(1)
	}
	defer redisClient.Close()

	awsCfg := bootstrap.BuildAWSConfig(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	m := metrics.NewIntakeMetrics(registry)

	queue := notify.NewFollowUpQueue(redisClient, logger)
	dispatcher := notify.NewDispatcher(bootstrap.BuildEmailSender(awsCfg, cfg, logger), queue, cfg.TeamName, logger)
	worker := notify.NewFollowUpWorker(queue, dispatcher, cfg.FollowUpPollInterval, cfg.FollowUpBatchSize, m, logger)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	logger.Info("follow-up worker started", "interval", cfg.FollowUpPollInterval.String(), "batch_size", cfg.FollowUpBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down follow-up worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-done:
		logger.Info("follow-up worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("follow-up worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
