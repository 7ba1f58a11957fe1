package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/wolfman30/project-intake/pkg/logging"
)

// DefaultSessionTTL is how long an idle session stays in memory.
const DefaultSessionTTL = 2 * time.Hour

// Registry holds live sessions and expires idle ones.
type Registry struct {
	cache  *gocache.Cache
	cfg    SessionConfig
	logger *logging.Logger
}

// NewRegistry creates a registry whose sessions share cfg.
func NewRegistry(cfg SessionConfig, idleTTL time.Duration) *Registry {
	cfg = cfg.withDefaults()
	if idleTTL <= 0 {
		idleTTL = DefaultSessionTTL
	}
	c := gocache.New(idleTTL, idleTTL/2)
	c.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(*Session); ok {
			s.Close()
		}
	})
	return &Registry{cache: c, cfg: cfg, logger: cfg.Logger}
}

// Open starts a session for clientKey and restores its saved draft.
// It reports whether a draft was restored.
func (r *Registry) Open(ctx context.Context, clientKey string) (*Session, bool) {
	s := NewSession(uuid.NewString(), clientKey, r.cfg)
	restored := s.Restore(ctx)
	r.cache.Set(s.ID(), s, gocache.DefaultExpiration)
	r.logger.Info("intake session opened", "session_id", s.ID(), "restored", restored)
	return s, restored
}

// Get returns a live session and extends its idle deadline.
func (r *Registry) Get(id string) (*Session, error) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := v.(*Session)
	r.cache.Set(id, s, gocache.DefaultExpiration)
	return s, nil
}

// Close ends a session and releases its timers.
func (r *Registry) Close(id string) {
	r.cache.Delete(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
