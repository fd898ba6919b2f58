package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/studytube/internal/playback"
)

// SessionAdapter lets live playback sessions flush into the progress
// store. It satisfies playback.ProgressStore, translating the session's
// string IDs and stamping each write with the server clock as the
// client timestamp, since session flushes are authoritative "now"
// writes.
type SessionAdapter struct {
	store Store
	now   func() time.Time
}

func NewSessionAdapter(store Store) *SessionAdapter {
	return &SessionAdapter{store: store, now: time.Now}
}

func (a *SessionAdapter) Exists(ctx context.Context, userID, videoID string) (bool, error) {
	uid, vid, err := parseIDs(userID, videoID)
	if err != nil {
		return false, err
	}
	_, err = a.store.Get(ctx, uid, vid)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *SessionAdapter) Insert(ctx context.Context, userID string, rec playback.Record) error {
	return a.write(ctx, userID, rec)
}

func (a *SessionAdapter) Update(ctx context.Context, userID string, rec playback.Record) error {
	return a.write(ctx, userID, rec)
}

// Insert and update are the same statement here: the upsert resolves row
// existence itself, and the stale-write guard keeps it safe either way.
func (a *SessionAdapter) write(ctx context.Context, userID string, rec playback.Record) error {
	uid, vid, err := parseIDs(userID, rec.VideoID)
	if err != nil {
		return err
	}
	_, err = a.store.Upsert(ctx, Record{
		UserID:           uid,
		VideoID:          vid,
		WatchTimeSeconds: rec.WatchTimeSeconds,
		DurationSeconds:  rec.DurationSeconds,
		Completed:        rec.Completed,
		ClientTsMs:       a.now().UnixMilli(),
	})
	return err
}

func parseIDs(userID, videoID string) (uuid.UUID, uuid.UUID, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse user id: %w", err)
	}
	vid, err := uuid.Parse(videoID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse video id: %w", err)
	}
	return uid, vid, nil
}
