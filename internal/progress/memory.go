package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]map[uuid.UUID]Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.rows[rec.UserID]
	if user == nil {
		user = make(map[uuid.UUID]Record)
		s.rows[rec.UserID] = user
	}
	if cur, ok := user[rec.VideoID]; ok {
		if rec.ClientTsMs < cur.ClientTsMs {
			return cur, nil
		}
		if rec.WatchTimeSeconds < cur.WatchTimeSeconds {
			rec.WatchTimeSeconds = cur.WatchTimeSeconds
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	user[rec.VideoID] = rec
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, userID, videoID uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[userID][videoID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListByVideos(_ context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, id := range videoIDs {
		if rec, ok := s.rows[userID][id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, userID uuid.UUID, limit int, cursor *Cursor) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	s.mu.Lock()
	all := make([]Record, 0, len(s.rows[userID]))
	for _, rec := range s.rows[userID] {
		all = append(all, rec)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].VideoID.String() > all[j].VideoID.String()
	})

	var out []Record
	for _, rec := range all {
		if cursor != nil {
			after := rec.UpdatedAt.After(cursor.UpdatedAt) ||
				(rec.UpdatedAt.Equal(cursor.UpdatedAt) && rec.VideoID.String() >= cursor.VideoID.String())
			if after {
				continue
			}
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
