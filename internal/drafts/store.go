// Package drafts provides DraftStore implementations for intake autosave.
package drafts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/project-intake/internal/intake"
)

const keyPrefix = "intake:draft:"

// RedisStore keeps one draft record per client key in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store whose records expire after ttl of
// inactivity. A zero ttl keeps records until cleared.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(clientKey string) string {
	return keyPrefix + clientKey
}

// Load returns the record bytes or intake.ErrDraftNotFound.
func (s *RedisStore) Load(ctx context.Context, clientKey string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(clientKey)).Bytes()
	if err == redis.Nil {
		return nil, intake.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("drafts: get: %w", err)
	}
	return data, nil
}

// Save overwrites the record.
func (s *RedisStore) Save(ctx context.Context, clientKey string, data []byte) error {
	if err := s.client.Set(ctx, s.key(clientKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("drafts: set: %w", err)
	}
	return nil
}

// Delete removes the record; deleting a missing record is not an error.
func (s *RedisStore) Delete(ctx context.Context, clientKey string) error {
	if err := s.client.Del(ctx, s.key(clientKey)).Err(); err != nil {
		return fmt.Errorf("drafts: delete: %w", err)
	}
	return nil
}

// MemoryStore is an in-process DraftStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load returns a copy of the record or intake.ErrDraftNotFound.
func (s *MemoryStore) Load(_ context.Context, clientKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[clientKey]
	if !ok {
		return nil, intake.ErrDraftNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save stores a copy of data.
func (s *MemoryStore) Save(_ context.Context, clientKey string, data []byte) error {
	s.mu.Lock()
	s.records[clientKey] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

// Delete removes the record.
func (s *MemoryStore) Delete(_ context.Context, clientKey string) error {
	s.mu.Lock()
	delete(s.records, clientKey)
	s.mu.Unlock()
	return nil
}

var (
	_ intake.DraftStore = (*RedisStore)(nil)
	_ intake.DraftStore = (*MemoryStore)(nil)
)
