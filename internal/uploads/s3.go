// Package uploads stores intake attachments in S3.
package uploads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/project-intake/internal/intake"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// S3API is the subset of the S3 client used by S3Uploader.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader uploads attachment content to a bucket, reporting progress as
// the body is read. Attachments registered without content go to fallback.
type S3Uploader struct {
	client   S3API
	bucket   string
	fallback intake.Uploader
	logger   *logging.Logger
}

// NewS3Uploader creates an uploader for bucket.
func NewS3Uploader(client S3API, bucket string, fallback intake.Uploader, logger *logging.Logger) *S3Uploader {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Uploader{client: client, bucket: bucket, fallback: fallback, logger: logger}
}

// ObjectKey returns the key an attachment is stored under.
func ObjectKey(sessionID string, att intake.Attachment) string {
	return path.Join("attachments", sessionID, att.ID, path.Base(att.Name))
}

// Upload reads content fully and puts it to S3.
func (u *S3Uploader) Upload(ctx context.Context, sessionID string, att intake.Attachment, content io.Reader, progress func(float64)) error {
	if content == nil {
		if u.fallback == nil {
			progress(100)
			return nil
		}
		return u.fallback.Upload(ctx, sessionID, att, nil, progress)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("uploads: read content: %w", err)
	}
	body := &progressReader{Reader: bytes.NewReader(data), total: int64(len(data)), report: progress}

	key := ObjectKey(sessionID, att)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(att.MIMEType),
		Metadata: map[string]string{
			"session-id":    sessionID,
			"original-name": att.Name,
		},
	})
	if err != nil {
		return fmt.Errorf("uploads: s3 put %s: %w", key, err)
	}
	progress(100)
	u.logger.Info("attachment stored", "session_id", sessionID, "attachment_id", att.ID, "s3_key", key, "size", len(data))
	return nil
}

// progressReader reports the share of the body consumed. The SDK may seek
// back and re-read; callers keep progress monotonic.
type progressReader struct {
	*bytes.Reader
	total  int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	if n > 0 && p.total > 0 {
		read := p.total - int64(p.Reader.Len())
		// Hold back the final percent until S3 acknowledges the object.
		p.report(float64(read) / float64(p.total) * 99)
	}
	return n, err
}

var _ intake.Uploader = (*S3Uploader)(nil)
