package repo

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("key not found")

// Store is the key-value surface the auth session persists into. It plays
// the part browser storage plays for a single-page app.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Scoped prefixes every key, so many sessions can share one backend.
func Scoped(s Store, prefix string) Store {
	return &scoped{Store: s, prefix: prefix}
}

type scoped struct {
	Store
	prefix string
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.Store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.Store.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.Store.Remove(ctx, s.prefix+key)
}

// Close is a no-op; the shared backend is owned by whoever created it.
func (s *scoped) Close() error {
	return nil
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
