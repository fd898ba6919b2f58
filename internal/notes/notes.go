// Package notes stores per-user study notes attached to videos. A note
// can carry a playhead anchor so the UI can jump to the moment it was
// written about.
package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound covers both a missing note and a note owned by someone
// else; callers cannot distinguish them, on purpose.
var ErrNotFound = errors.New("notes: not found")

type Note struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	VideoID uuid.UUID `json:"video_id"`
	Body    string    `json:"body"`
	// AnchorSeconds is the playhead the note refers to; nil for notes
	// about the video as a whole.
	AnchorSeconds *int       `json:"anchor_seconds,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type CreateParams struct {
	UserID        uuid.UUID
	VideoID       uuid.UUID
	Body          string
	AnchorSeconds *int
}

// Store defines note persistence. Listings are keyset-paginated with an
// opaque cursor.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Note, error)
	// ListByVideo returns the user's notes for a video, newest first,
	// plus a cursor for the next page ("" when exhausted).
	ListByVideo(ctx context.Context, userID, videoID uuid.UUID, limit int, cursor string) ([]Note, string, error)
	UpdateBody(ctx context.Context, noteID, userID uuid.UUID, body string) error
	Delete(ctx context.Context, noteID, userID uuid.UUID) error
}
