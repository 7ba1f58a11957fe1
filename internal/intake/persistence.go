package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/project-intake/internal/observability/metrics"
	"github.com/wolfman30/project-intake/pkg/logging"
)

// DraftStore is the client-side persistent key-value store holding one
// serialized draft per key.
type DraftStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Record is the persisted shape of a draft. It carries attachment metadata
// only, never file content.
type Record struct {
	Form            map[string]string  `json:"form"`
	CurrentStep     int                `json:"currentStep"`
	SelectedService string             `json:"selectedService"`
	Attachments     []RecordAttachment `json:"attachments"`
	Timestamp       time.Time          `json:"timestamp"`
}

// RecordAttachment is the metadata kept for an attachment in a Record.
type RecordAttachment struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
}

// NewRecord serializes the persistable parts of d.
func NewRecord(d *Draft, at time.Time) Record {
	rec := Record{
		Form:            make(map[string]string, len(AllFields)),
		CurrentStep:     int(d.CurrentStep),
		SelectedService: d.SelectedService,
		Attachments:     make([]RecordAttachment, 0, len(d.Attachments)),
		Timestamp:       at.UTC(),
	}
	for _, f := range AllFields {
		rec.Form[string(f)] = d.Field(f)
	}
	for _, a := range d.Attachments {
		rec.Attachments = append(rec.Attachments, RecordAttachment{
			Name:         a.Name,
			Size:         a.SizeBytes,
			Type:         a.MIMEType,
			LastModified: a.LastModified,
		})
	}
	return rec
}

// Persistence saves, restores and clears draft records.
type Persistence struct {
	store   DraftStore
	logger  *logging.Logger
	metrics *metrics.IntakeMetrics
	now     func() time.Time
}

// NewPersistence wraps store. A nil store disables persistence; every call
// then behaves as if the store were unavailable.
func NewPersistence(store DraftStore, m *metrics.IntakeMetrics, logger *logging.Logger) *Persistence {
	if logger == nil {
		logger = logging.Default()
	}
	return &Persistence{store: store, logger: logger, metrics: m, now: time.Now}
}

// Save writes d under key and returns the record timestamp.
func (p *Persistence) Save(ctx context.Context, key string, d *Draft) (time.Time, error) {
	if p == nil || p.store == nil {
		return time.Time{}, ErrPersistenceUnavailable
	}
	rec := NewRecord(d, p.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return time.Time{}, fmt.Errorf("intake: marshal draft: %w", err)
	}
	if err := p.store.Save(ctx, key, data); err != nil {
		p.metrics.ObserveDraftSave("error")
		return time.Time{}, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	p.metrics.ObserveDraftSave("ok")
	return rec.Timestamp, nil
}

// Restore loads the record under key. It returns nil, nil when no record
// exists or the stored record cannot be decoded.
func (p *Persistence) Restore(ctx context.Context, key string) (*Record, error) {
	if p == nil || p.store == nil {
		return nil, ErrPersistenceUnavailable
	}
	data, err := p.store.Load(ctx, key)
	if errors.Is(err, ErrDraftNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		p.logger.Warn("discarding unreadable draft record", "key", key, "error", err)
		return nil, nil
	}
	return &rec, nil
}

// Clear removes the record under key.
func (p *Persistence) Clear(ctx context.Context, key string) error {
	if p == nil || p.store == nil {
		return ErrPersistenceUnavailable
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// Autosaver debounces saves: every Schedule call restarts the delay, so
// only the state after a pause is written.
type Autosaver struct {
	delay time.Duration
	save  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewAutosaver returns a debouncer that calls save once delay has passed
// since the latest Schedule.
func NewAutosaver(delay time.Duration, save func()) *Autosaver {
	return &Autosaver{delay: delay, save: save}
}

// Schedule cancels any pending save and starts a new delay.
func (a *Autosaver) Schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()
	a.save()
}

// Cancel drops a pending save without disabling future ones.
func (a *Autosaver) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Pending reports whether a save is scheduled.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Stop cancels any pending save and ignores later Schedule calls.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
