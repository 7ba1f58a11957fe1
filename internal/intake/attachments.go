package intake

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"
)

// MaxAttachmentBytes is the largest accepted file (10MB).
const MaxAttachmentBytes int64 = 10 * 1024 * 1024

var allowedMIMETypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"application/pdf":    {},
	"text/plain":         {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// FileInfo describes a file offered for intake. Content is optional and is
// only handed to the Uploader; it never becomes part of the draft.
type FileInfo struct {
	Name         string
	SizeBytes    int64
	MIMEType     string
	LastModified int64
	Content      io.Reader
}

// CheckAttachment applies the acceptance policy. It returns nil or an
// *AttachmentPolicyError naming the file.
func CheckAttachment(f FileInfo) error {
	if f.SizeBytes > MaxAttachmentBytes {
		return &AttachmentPolicyError{
			Name:    f.Name,
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("File %s is too large. Maximum size is 10MB.", f.Name),
		}
	}
	if _, ok := allowedMIMETypes[normalizeMIME(f.MIMEType)]; !ok {
		return &AttachmentPolicyError{
			Name:    f.Name,
			Reason:  ReasonUnsupported,
			Message: fmt.Sprintf("File %s has an unsupported format.", f.Name),
		}
	}
	return nil
}

func normalizeMIME(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Uploader moves one attachment to its destination, reporting progress in
// percent. Implementations must return when ctx is cancelled.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, att Attachment, content io.Reader, progress func(pct float64)) error
}

// SimulatedUploader advances progress by a random step on every tick until
// it reaches 100. It stands in until a real upload backend is configured.
type SimulatedUploader struct {
	Interval time.Duration
	MaxStep  float64
	rand     func() float64
}

// NewSimulatedUploader returns an uploader ticking every interval with
// increments of up to maxStep percentage points.
func NewSimulatedUploader(interval time.Duration, maxStep float64) *SimulatedUploader {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if maxStep <= 0 {
		maxStep = 30
	}
	return &SimulatedUploader{Interval: interval, MaxStep: maxStep, rand: rand.Float64}
}

// Upload ignores content and emits synthetic progress.
func (u *SimulatedUploader) Upload(ctx context.Context, _ string, _ Attachment, _ io.Reader, progress func(float64)) error {
	ticker := time.NewTicker(u.Interval)
	defer ticker.Stop()

	pct := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pct += u.rand() * u.MaxStep
			if pct >= 100 {
				progress(100)
				return nil
			}
			progress(pct)
		}
	}
}

var _ Uploader = (*SimulatedUploader)(nil)
