package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/drafts"
	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/internal/notify"
	"github.com/wolfman30/project-intake/internal/submissions"
	"github.com/wolfman30/project-intake/internal/uploads"
	"github.com/wolfman30/project-intake/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	_ = client.Close()
}

func TestBuildDraftStore(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{DraftTTL: time.Hour}

	_, isMemory := BuildDraftStore(nil, cfg, logger).(*drafts.MemoryStore)
	assert.True(t, isMemory)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()
	_, isRedis := BuildDraftStore(client, cfg, logger).(*drafts.RedisStore)
	assert.True(t, isRedis)
}

func TestBuildUploader(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{UploadTickInterval: time.Millisecond, UploadMaxStepPercent: 30}

	_, simulated := BuildUploader(nil, cfg, logger).(*intake.SimulatedUploader)
	assert.True(t, simulated)

	cfg.AttachmentsBucket = "intake-attachments"
	_, isS3 := BuildUploader(&aws.Config{Region: "us-east-1"}, cfg, logger).(*uploads.S3Uploader)
	assert.True(t, isS3)
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")

	_, stub := BuildEmailSender(nil, &appconfig.Config{EmailProvider: "auto"}, logger).(*notify.StubEmailSender)
	assert.True(t, stub)

	_, sg := BuildEmailSender(nil, &appconfig.Config{EmailProvider: "auto", SendGridAPIKey: "k"}, logger).(*notify.SendGridSender)
	assert.True(t, sg)

	_, smtp := BuildEmailSender(nil, &appconfig.Config{EmailProvider: "smtp", SMTPHost: "localhost", SendGridAPIKey: "k"}, logger).(*notify.SMTPSender)
	assert.True(t, smtp)

	_, forcedStub := BuildEmailSender(nil, &appconfig.Config{EmailProvider: "stub", SendGridAPIKey: "k"}, logger).(*notify.StubEmailSender)
	assert.True(t, forcedStub)
}

func TestBuildRecorders(t *testing.T) {
	logger := logging.New("error")
	repo := BuildSubmissionRepository(nil)
	_, inMemory := repo.(*submissions.InMemoryRepository)
	assert.True(t, inMemory)

	assert.Len(t, BuildRecorders(repo, nil, &appconfig.Config{SubmissionQueueURL: "q"}, logger), 1)
	assert.Len(t, BuildRecorders(repo, &aws.Config{Region: "us-east-1"}, &appconfig.Config{SubmissionQueueURL: "q"}, logger), 2)
}

func TestBuildAWSConfig(t *testing.T) {
	logger := logging.New("error")
	ctx := context.Background()

	assert.Nil(t, BuildAWSConfig(ctx, &appconfig.Config{AWSRegion: "us-east-1"}, logger), "no consumer, no config")

	cfg := &appconfig.Config{
		AWSRegion:           "eu-west-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
		AttachmentsBucket:   "intake-attachments",
		SubmissionQueueURL:  "http://localhost:4566/000000000000/submissions",
	}
	awsCfg := BuildAWSConfig(ctx, cfg, logger)
	require.NotNil(t, awsCfg)
	assert.Equal(t, "eu-west-1", awsCfg.Region)
	require.NotNil(t, awsCfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *awsCfg.BaseEndpoint)

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
}

func TestAWSConsumers(t *testing.T) {
	assert.Empty(t, awsConsumers(&appconfig.Config{EmailProvider: "sendgrid", SESFromEmail: "a@b.co"}))
	assert.Equal(t, []string{"ses"}, awsConsumers(&appconfig.Config{EmailProvider: "auto", SESFromEmail: "a@b.co"}))
	assert.Equal(t, []string{"s3", "sqs"}, awsConsumers(&appconfig.Config{AttachmentsBucket: "b", SubmissionQueueURL: "q"}))
}
