package uploads

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/project-intake/internal/intake"
)

type fakeS3 struct {
	mu    sync.Mutex
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.input = in
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

type recordingUploader struct{ called bool }

func (r *recordingUploader) Upload(_ context.Context, _ string, _ intake.Attachment, _ io.Reader, progress func(float64)) error {
	r.called = true
	progress(100)
	return nil
}

func TestS3UploaderPutsObjectWithProgress(t *testing.T) {
	client := &fakeS3{}
	u := NewS3Uploader(client, "intake-bucket", nil, nil)
	att := intake.Attachment{ID: "att-1", Name: "brief.pdf", MIMEType: "application/pdf"}

	var seen []float64
	err := u.Upload(context.Background(), "sess-1", att, strings.NewReader("pdf-bytes"), func(p float64) {
		seen = append(seen, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "intake-bucket", aws.ToString(client.input.Bucket))
	assert.Equal(t, "attachments/sess-1/att-1/brief.pdf", aws.ToString(client.input.Key))
	assert.Equal(t, "application/pdf", aws.ToString(client.input.ContentType))
	assert.Equal(t, "pdf-bytes", client.body)
	require.NotEmpty(t, seen)
	assert.Equal(t, 100.0, seen[len(seen)-1])
	for _, p := range seen[:len(seen)-1] {
		assert.Less(t, p, 100.0)
	}
}

func TestS3UploaderError(t *testing.T) {
	u := NewS3Uploader(&fakeS3{err: errors.New("denied")}, "b", nil, nil)
	err := u.Upload(context.Background(), "s", intake.Attachment{ID: "a", Name: "x.png"}, strings.NewReader("x"), func(float64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestS3UploaderMetadataOnlyUsesFallback(t *testing.T) {
	fallback := &recordingUploader{}
	client := &fakeS3{}
	u := NewS3Uploader(client, "b", fallback, nil)
	var last float64
	err := u.Upload(context.Background(), "s", intake.Attachment{ID: "a", Name: "notes.txt"}, nil, func(p float64) { last = p })
	require.NoError(t, err)
	assert.True(t, fallback.called)
	assert.Nil(t, client.input)
	assert.Equal(t, 100.0, last)
}

func TestObjectKeyStripsDirectories(t *testing.T) {
	key := ObjectKey("s", intake.Attachment{ID: "a", Name: "../../etc/passwd"})
	assert.Equal(t, "attachments/s/a/passwd", key)
}
