package memory

import (
	"context"
	"sync"
	"time"

	"github.com/snapworth/snapworth/internal/domain/kv"
)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store is an in-process kv.Store used when no durable backend is configured
// and in tests. Injected like any other backend, never referenced as a
// global.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]entry
	counters map[string]int64
}

func New() *Store {
	return &Store{
		entries:  make(map[string]entry),
		counters: make(map[string]int64),
	}
}

var _ kv.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	// copy so callers cannot mutate the stored slice
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	e := entry{value: v}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

func (s *Store) Increment(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	s.counters[key] += n
	v := s.counters[key]
	s.mu.Unlock()
	return v, nil
}

// Sweep drops expired entries; callers may run it on a ticker.
func (s *Store) Sweep() {
	now := time.Now()
	s.mu.Lock()
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}
