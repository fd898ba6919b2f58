package idempotency

import (
	"context"
	"sync"
)

// memoryStore is a development-only in-memory idempotency store. State is
// lost on restart and does not work across multiple instances.
type memoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{seen: make(map[string]struct{})}
}

func (s *memoryStore) Check(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true, nil
	}
	s.seen[key] = struct{}{}
	return false, nil
}

// NewMemory returns the in-memory store directly. Used in tests.
func NewMemory() Store {
	return newMemoryStore()
}
