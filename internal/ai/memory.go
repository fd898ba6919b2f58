package ai

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests.
type MemoryStore struct {
	mu        sync.Mutex
	summaries map[string]Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{summaries: make(map[string]Summary)}
}

func memKey(userID, videoID uuid.UUID) string {
	return userID.String() + "/" + videoID.String()
}

func (s *MemoryStore) Get(_ context.Context, userID, videoID uuid.UUID) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[memKey(userID, videoID)]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return sum, nil
}

func (s *MemoryStore) Save(_ context.Context, sum Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[memKey(sum.UserID, sum.VideoID)] = sum
	return nil
}

var _ Store = (*MemoryStore)(nil)
