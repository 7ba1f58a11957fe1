package intake

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/wolfman30/project-intake/pkg/logging"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
	err   error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

var errStoreDown = errors.New("quota exceeded")

// manualUploader reports progress only when the test pushes it.
type manualUploader struct {
	mu        sync.Mutex
	progress  map[string]func(float64)
	cancelled map[string]bool
}

func newManualUploader() *manualUploader {
	return &manualUploader{progress: map[string]func(float64){}, cancelled: map[string]bool{}}
}

func (u *manualUploader) Upload(ctx context.Context, _ string, att Attachment, _ io.Reader, progress func(float64)) error {
	u.mu.Lock()
	u.progress[att.ID] = progress
	u.mu.Unlock()
	<-ctx.Done()
	u.mu.Lock()
	u.cancelled[att.ID] = true
	u.mu.Unlock()
	return ctx.Err()
}

func (u *manualUploader) push(id string, pct float64) bool {
	u.mu.Lock()
	fn, ok := u.progress[id]
	u.mu.Unlock()
	if ok {
		fn(pct)
	}
	return ok
}

func (u *manualUploader) started(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.progress[id]
	return ok
}

func (u *manualUploader) wasCancelled(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled[id]
}

func testLogger() *logging.Logger { return logging.New("error") }

func newTestSession(store DraftStore, opts ...func(*SessionConfig)) *Session {
	cfg := SessionConfig{
		Persistence:     NewPersistence(store, nil, testLogger()),
		Uploader:        newManualUploader(),
		AutosaveDelay:   20 * time.Millisecond,
		SuggestionGrace: 20 * time.Millisecond,
		NoticeTTL:       time.Minute,
		Logger:          testLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewSession("sess-1", "client-1", cfg)
}

// fillToFinalStep completes every step and advances s to the last one.
func fillToFinalStep(s *Session) error {
	if err := s.SelectService("web-development"); err != nil {
		return err
	}
	values := map[Field]string{
		FieldMessage:  "We need a storefront with online booking.",
		FieldName:     "Jane Doe",
		FieldEmail:    "jane@example.com",
		FieldTimeline: "1-3-months",
		FieldBudget:   "4m-8m",
	}
	for f, v := range values {
		if err := s.SetField(f, v); err != nil {
			return err
		}
	}
	for s.Snapshot().CurrentStep < LastStep {
		if _, err := s.Next(); err != nil {
			return err
		}
	}
	return nil
}

// gatedStore holds every Save until release is closed.
type gatedStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{memStore: newMemStore(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedStore) Save(ctx context.Context, key string, data []byte) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.memStore.Save(ctx, key, data)
}

func (s *Session) currentSaveGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveGen
}
