package notes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// Cursors are positional indexes rather than keysets; fine for the
// volumes tests use.
type MemoryStore struct {
	mu    sync.Mutex
	notes []Note
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Create(_ context.Context, p CreateParams) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := Note{
		ID:            uuid.New(),
		UserID:        p.UserID,
		VideoID:       p.VideoID,
		Body:          p.Body,
		AnchorSeconds: p.AnchorSeconds,
		CreatedAt:     time.Now().UTC(),
	}
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *MemoryStore) ListByVideo(_ context.Context, userID, videoID uuid.UUID, limit int, cursor string) ([]Note, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	s.mu.Lock()
	var all []Note
	for _, n := range s.notes {
		if n.UserID == userID && n.VideoID == videoID {
			all = append(all, n)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})

	start := 0
	if cursor != "" {
		for i, n := range all {
			if n.ID.String() == cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(all) {
		return nil, "", nil
	}
	end := start + limit
	var next string
	if end < len(all) {
		next = all[end-1].ID.String()
	} else {
		end = len(all)
	}
	return all[start:end], next, nil
}

func (s *MemoryStore) UpdateBody(_ context.Context, noteID, userID uuid.UUID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes {
		if n.ID == noteID && n.UserID == userID {
			now := time.Now().UTC()
			s.notes[i].Body = body
			s.notes[i].UpdatedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Delete(_ context.Context, noteID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes {
		if n.ID == noteID && n.UserID == userID {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
