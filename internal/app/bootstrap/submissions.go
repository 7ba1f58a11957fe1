package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/submissions"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// BuildDBPool opens the Postgres pool, or returns nil when no database is
// configured or reachable.
func BuildDBPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *pgxpool.Pool {
	if cfg == nil || cfg.DatabaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("database not reachable; submissions kept in memory", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildSubmissionRepository returns the Postgres repository when pool is set.
func BuildSubmissionRepository(pool *pgxpool.Pool) submissions.Repository {
	if pool == nil {
		return submissions.NewInMemoryRepository()
	}
	return submissions.NewPostgresRepository(pool)
}

// BuildRecorders returns the post-submission hooks: the repository recorder
// and, when a queue URL is configured, the SQS handoff.
func BuildRecorders(repo submissions.Repository, awsCfg *aws.Config, cfg *appconfig.Config, logger *logging.Logger) []intake.Recorder {
	recorders := []intake.Recorder{submissions.NewRecorder(repo)}
	if awsCfg != nil && cfg.SubmissionQueueURL != "" {
		recorders = append(recorders, submissions.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), cfg.SubmissionQueueURL))
		logger.Info("submission handoff enabled", "queue_url", cfg.SubmissionQueueURL)
	}
	return recorders
}
