// Package catalog persists playlists and their videos. Video positions
// are the canonical order; playback sessions may reorder their own view,
// and an explicit save-order call rewrites the canonical positions here.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("catalog: not found")
	ErrForbidden = errors.New("catalog: not owner")
	ErrConflict  = errors.New("catalog: conflict")
)

const (
	VisibilityPrivate = "private"
	// VisibilityLink playlists are readable by anyone holding a signed
	// share link.
	VisibilityLink = "link"
)

type Playlist struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	// SourceURL is the YouTube playlist this was imported from, empty
	// for hand-built playlists.
	SourceURL  string    `json:"source_url,omitempty"`
	Visibility string    `json:"visibility"`
	VideoCount int       `json:"video_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Video struct {
	ID         uuid.UUID `json:"id"`
	PlaylistID uuid.UUID `json:"playlist_id"`
	// ExternalID is the YouTube video ID used by the embedded player.
	ExternalID      string    `json:"external_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	Position        int       `json:"position"`
	CreatedAt       time.Time `json:"created_at"`
}

type CreatePlaylistParams struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	SourceURL   string
}

type UpdatePlaylistParams struct {
	Title       *string
	Description *string
	Visibility  *string
}

// VideoInput carries imported video data for upserts keyed by the
// external (YouTube) ID.
type VideoInput struct {
	ExternalID      string
	Title           string
	Description     string
	ThumbnailURL    string
	DurationSeconds int
	Position        int
}

// Store defines playlist and video persistence.
type Store interface {
	CreatePlaylist(ctx context.Context, p CreatePlaylistParams) (Playlist, error)
	GetPlaylist(ctx context.Context, id uuid.UUID) (Playlist, error)
	ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Playlist, error)
	// UpdatePlaylist applies the non-nil fields; only the owner may.
	UpdatePlaylist(ctx context.Context, id, ownerID uuid.UUID, p UpdatePlaylistParams) (Playlist, error)
	DeletePlaylist(ctx context.Context, id, ownerID uuid.UUID) error

	// ListVideos returns the playlist's videos in canonical order.
	ListVideos(ctx context.Context, playlistID uuid.UUID) ([]Video, error)
	GetVideo(ctx context.Context, id uuid.UUID) (Video, error)
	// UpsertVideos merges imported videos into the playlist by external
	// ID: existing rows keep their UUID (and with it any progress rows
	// referencing it), new rows are appended. Returns the playlist's
	// videos in canonical order afterwards.
	UpsertVideos(ctx context.Context, playlistID uuid.UUID, videos []VideoInput) ([]Video, error)
	// SaveOrder rewrites canonical positions to the given video ID
	// sequence, which must be a permutation of the playlist's videos.
	SaveOrder(ctx context.Context, playlistID, ownerID uuid.UUID, orderedVideoIDs []uuid.UUID) error
}
