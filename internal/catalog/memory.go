package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	playlists map[uuid.UUID]Playlist
	videos    map[uuid.UUID][]Video
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		playlists: make(map[uuid.UUID]Playlist),
		videos:    make(map[uuid.UUID][]Video),
	}
}

func (s *MemoryStore) CreatePlaylist(_ context.Context, p CreatePlaylistParams) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	pl := Playlist{
		ID:          uuid.New(),
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Description: p.Description,
		SourceURL:   p.SourceURL,
		Visibility:  VisibilityPrivate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.playlists[pl.ID] = pl
	return pl, nil
}

func (s *MemoryStore) GetPlaylist(_ context.Context, id uuid.UUID) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.playlists[id]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	pl.VideoCount = len(s.videos[id])
	return pl, nil
}

func (s *MemoryStore) ListPlaylistsByOwner(_ context.Context, ownerID uuid.UUID) ([]Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Playlist
	for _, pl := range s.playlists {
		if pl.OwnerID == ownerID {
			pl.VideoCount = len(s.videos[pl.ID])
			out = append(out, pl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdatePlaylist(_ context.Context, id, ownerID uuid.UUID, p UpdatePlaylistParams) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.playlists[id]
	if !ok {
		return Playlist{}, ErrNotFound
	}
	if pl.OwnerID != ownerID {
		return Playlist{}, ErrForbidden
	}
	if p.Title != nil {
		pl.Title = *p.Title
	}
	if p.Description != nil {
		pl.Description = *p.Description
	}
	if p.Visibility != nil {
		pl.Visibility = *p.Visibility
	}
	pl.UpdatedAt = time.Now().UTC()
	s.playlists[id] = pl
	pl.VideoCount = len(s.videos[id])
	return pl, nil
}

func (s *MemoryStore) DeletePlaylist(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.playlists[id]
	if !ok || pl.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.playlists, id)
	delete(s.videos, id)
	return nil
}

func (s *MemoryStore) ListVideos(_ context.Context, playlistID uuid.UUID) ([]Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vids := make([]Video, len(s.videos[playlistID]))
	copy(vids, s.videos[playlistID])
	sort.Slice(vids, func(i, j int) bool { return vids[i].Position < vids[j].Position })
	return vids, nil
}

func (s *MemoryStore) GetVideo(_ context.Context, id uuid.UUID) (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vids := range s.videos {
		for _, v := range vids {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return Video{}, ErrNotFound
}

func (s *MemoryStore) UpsertVideos(ctx context.Context, playlistID uuid.UUID, videos []VideoInput) ([]Video, error) {
	s.mu.Lock()
	if _, ok := s.playlists[playlistID]; !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	existing := make(map[string]int)
	for i, v := range s.videos[playlistID] {
		existing[v.ExternalID] = i
	}
	for _, in := range videos {
		if i, ok := existing[in.ExternalID]; ok {
			v := s.videos[playlistID][i]
			v.Title = in.Title
			v.Description = in.Description
			v.ThumbnailURL = in.ThumbnailURL
			v.DurationSeconds = in.DurationSeconds
			v.Position = in.Position
			s.videos[playlistID][i] = v
			continue
		}
		s.videos[playlistID] = append(s.videos[playlistID], Video{
			ID:              uuid.New(),
			PlaylistID:      playlistID,
			ExternalID:      in.ExternalID,
			Title:           in.Title,
			Description:     in.Description,
			ThumbnailURL:    in.ThumbnailURL,
			DurationSeconds: in.DurationSeconds,
			Position:        in.Position,
			CreatedAt:       time.Now().UTC(),
		})
	}
	pl := s.playlists[playlistID]
	pl.UpdatedAt = time.Now().UTC()
	s.playlists[playlistID] = pl
	s.mu.Unlock()
	return s.ListVideos(ctx, playlistID)
}

func (s *MemoryStore) SaveOrder(_ context.Context, playlistID, ownerID uuid.UUID, orderedVideoIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.playlists[playlistID]
	if !ok {
		return ErrNotFound
	}
	if pl.OwnerID != ownerID {
		return ErrForbidden
	}
	vids := s.videos[playlistID]
	if len(vids) != len(orderedVideoIDs) {
		return ErrConflict
	}
	byID := make(map[uuid.UUID]int, len(vids))
	for i, v := range vids {
		byID[v.ID] = i
	}
	for pos, id := range orderedVideoIDs {
		i, ok := byID[id]
		if !ok {
			return ErrConflict
		}
		vids[i].Position = pos
	}
	pl.UpdatedAt = time.Now().UTC()
	s.playlists[playlistID] = pl
	return nil
}
