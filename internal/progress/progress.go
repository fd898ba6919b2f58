// Package progress persists per-user video watch progress. Writes arrive
// from two directions: synchronous flushes out of live playback sessions,
// and the progress.upsert JetStream consumer that drains events reported
// by clients without an open session (e.g. the beacon a closing tab
// fires). Both paths converge on the same stale-write-guarded upsert.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no progress row exists for the pair.
var ErrNotFound = errors.New("progress: not found")

// Record is one (user, video) progress row.
type Record struct {
	UserID           uuid.UUID
	VideoID          uuid.UUID
	WatchTimeSeconds int
	DurationSeconds  int
	Completed        bool
	// ClientTsMs is the client's wall clock at the time of the write.
	// The upsert refuses writes whose client timestamp is older than the
	// stored one, so delayed retries cannot clobber newer progress.
	ClientTsMs int64
	UpdatedAt  time.Time
}

// Percentage derives the watched share for display. Completed rows
// always read 100.
func (r Record) Percentage() float64 {
	if r.Completed {
		return 100
	}
	if r.DurationSeconds <= 0 {
		return 0
	}
	w := r.WatchTimeSeconds
	if w < 0 {
		w = 0
	}
	pct := float64(w) / float64(r.DurationSeconds) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Cursor is the decoded keyset-pagination cursor for recency listings.
type Cursor struct {
	UpdatedAt time.Time
	VideoID   uuid.UUID
}

// Store defines persistence for watch progress.
type Store interface {
	// Upsert inserts or updates a row, ignoring stale writes
	// (client_ts_ms <= existing). Returns the current, possibly
	// unchanged, record.
	Upsert(ctx context.Context, r Record) (Record, error)
	// Get returns one row or ErrNotFound.
	Get(ctx context.Context, userID, videoID uuid.UUID) (Record, error)
	// ListByVideos returns the user's rows for the given videos, in no
	// particular order. Videos without a row are simply absent.
	ListByVideos(ctx context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]Record, error)
	// ListRecent returns up to limit rows ordered by updated_at DESC,
	// the continue-watching feed. cursor, if non-nil, is an exclusive
	// lower bound.
	ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *Cursor) ([]Record, error)
}
