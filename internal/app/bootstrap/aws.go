package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// awsConsumers lists the components configured to use AWS: the attachment
// bucket, the SES sender and the submission queue.
func awsConsumers(cfg *appconfig.Config) []string {
	var out []string
	if strings.TrimSpace(cfg.AttachmentsBucket) != "" {
		out = append(out, "s3")
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" && (cfg.EmailProvider == "ses" || cfg.EmailProvider == "auto" || cfg.EmailProvider == "") {
		out = append(out, "ses")
	}
	if strings.TrimSpace(cfg.SubmissionQueueURL) != "" {
		out = append(out, "sqs")
	}
	return out
}

// BuildAWSConfig loads the SDK configuration when at least one component
// needs AWS. It returns nil when none does or loading fails; callers then
// fall back to their local implementations. AWS_ENDPOINT_OVERRIDE points
// every client at one endpoint (LocalStack).
func BuildAWSConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if logger == nil {
		logger = logging.Default()
	}
	consumers := awsConsumers(cfg)
	if len(consumers) == 0 {
		logger.Debug("no aws consumers configured; skipping aws config")
		return nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Warn("aws config unavailable; falling back to local implementations", "consumers", consumers, "error", err)
		return nil
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	logger.Info("aws config loaded", "region", awsCfg.Region, "consumers", consumers, "endpoint_override", cfg.AWSEndpointOverride != "")
	return &awsCfg
}
