// Package bootstrap builds the service dependencies shared by the binaries
// from configuration, falling back to in-process implementations when an
// external backend is not configured.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/drafts"
	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/uploads"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDraftStore returns the Redis draft store, or an in-memory store when
// Redis is unavailable so autosave keeps working within one process.
func BuildDraftStore(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) intake.DraftStore {
	if redisClient == nil {
		logger.Warn("redis not configured; drafts kept in memory")
		return drafts.NewMemoryStore()
	}
	return drafts.NewRedisStore(redisClient, cfg.DraftTTL)
}

// BuildUploader returns the S3 uploader when a bucket is configured and the
// simulated uploader otherwise.
func BuildUploader(awsCfg *aws.Config, cfg *appconfig.Config, logger *logging.Logger) intake.Uploader {
	simulated := intake.NewSimulatedUploader(cfg.UploadTickInterval, cfg.UploadMaxStepPercent)
	if awsCfg == nil || strings.TrimSpace(cfg.AttachmentsBucket) == "" {
		logger.Info("attachment bucket not configured; using simulated uploads")
		return simulated
	}
	logger.Info("attachments stored in s3", "bucket", cfg.AttachmentsBucket)
	return uploads.NewS3Uploader(newS3Client(*awsCfg, cfg), cfg.AttachmentsBucket, simulated, logger)
}

// newS3Client uses path-style addressing when an endpoint override
// (LocalStack) is configured.
func newS3Client(awsCfg aws.Config, cfg *appconfig.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
}
