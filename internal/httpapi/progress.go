package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/platform/api"
	"github.com/example/studytube/internal/progress"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 50
)

type progressEntry struct {
	VideoID          string  `json:"video_id"`
	PlaylistID       string  `json:"playlist_id,omitempty"`
	Title            string  `json:"title,omitempty"`
	ThumbnailURL     string  `json:"thumbnail_url,omitempty"`
	WatchTimeSeconds int     `json:"watch_time_seconds"`
	DurationSeconds  int     `json:"duration_seconds"`
	Percentage       float64 `json:"percentage"`
	Completed        bool    `json:"completed"`
	UpdatedAt        string  `json:"updated_at"`
}

// encodeCursor packs the keyset position into an opaque token.
func encodeCursor(c progress.Cursor) string {
	raw := c.UpdatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.VideoID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (*progress.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, errors.New("decode cursor: malformed token")
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	vid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return &progress.Cursor{UpdatedAt: ts, VideoID: vid}, nil
}

// ContinueWatching lists the user's most recently touched videos,
// enriched with catalog metadata, newest first with keyset pagination.
func ContinueWatching(store progress.Store, cat catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}

		limit := defaultRecentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.BadRequest(w, "VALIDATION", "limit must be a positive integer", rid, nil)
				return
			}
			if n > maxRecentLimit {
				n = maxRecentLimit
			}
			limit = n
		}

		var cursor *progress.Cursor
		if token := r.URL.Query().Get("cursor"); token != "" {
			c, err := decodeCursor(token)
			if err != nil {
				api.BadRequest(w, "INVALID_CURSOR", "Malformed pagination cursor", rid, nil)
				return
			}
			cursor = c
		}

		rows, err := store.ListRecent(r.Context(), userID, limit, cursor)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		entries := make([]progressEntry, 0, len(rows))
		for _, row := range rows {
			e := progressEntry{
				VideoID:          row.VideoID.String(),
				WatchTimeSeconds: row.WatchTimeSeconds,
				DurationSeconds:  row.DurationSeconds,
				Percentage:       row.Percentage(),
				Completed:        row.Completed,
				UpdatedAt:        row.UpdatedAt.UTC().Format(time.RFC3339),
			}
			// A video deleted from the catalog still has a progress row;
			// return it bare rather than dropping the entry.
			if v, err := cat.GetVideo(r.Context(), row.VideoID); err == nil {
				e.PlaylistID = v.PlaylistID.String()
				e.Title = v.Title
				e.ThumbnailURL = v.ThumbnailURL
			}
			entries = append(entries, e)
		}

		resp := map[string]any{"items": entries}
		if len(rows) == limit {
			last := rows[len(rows)-1]
			resp["next_cursor"] = encodeCursor(progress.Cursor{
				UpdatedAt: last.UpdatedAt,
				VideoID:   last.VideoID,
			})
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// PlaylistProgress returns the user's rows for every video in a playlist.
func PlaylistProgress(store progress.Store, cat catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		playlistID, ok := pathUUID(w, r, rid, "playlist_id")
		if !ok {
			return
		}
		pl, err := cat.GetPlaylist(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		if pl.OwnerID != userID {
			api.NotFound(w, "NOT_FOUND", "Playlist or video not found", rid)
			return
		}
		videos, err := cat.ListVideos(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(videos))
		for _, v := range videos {
			ids = append(ids, v.ID)
		}
		rows, err := store.ListByVideos(r.Context(), userID, ids)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		byVideo := make(map[uuid.UUID]progress.Record, len(rows))
		for _, row := range rows {
			byVideo[row.VideoID] = row
		}

		entries := make([]progressEntry, 0, len(videos))
		for _, v := range videos {
			e := progressEntry{
				VideoID:         v.ID.String(),
				PlaylistID:      v.PlaylistID.String(),
				Title:           v.Title,
				ThumbnailURL:    v.ThumbnailURL,
				DurationSeconds: v.DurationSeconds,
			}
			if row, ok := byVideo[v.ID]; ok {
				e.WatchTimeSeconds = row.WatchTimeSeconds
				if row.DurationSeconds > 0 {
					e.DurationSeconds = row.DurationSeconds
				}
				e.Percentage = row.Percentage()
				e.Completed = row.Completed
				e.UpdatedAt = row.UpdatedAt.UTC().Format(time.RFC3339)
			}
			entries = append(entries, e)
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
	}
}

type beaconRequest struct {
	VideoID          uuid.UUID `json:"video_id"`
	WatchTimeSeconds int       `json:"watch_time_seconds"`
	DurationSeconds  int       `json:"duration_seconds"`
	Completed        bool      `json:"completed"`
	ClientTsMs       int64     `json:"client_ts_ms"`
}

// Beacon accepts the closing tab's final progress report and publishes
// it for the asynchronous upsert worker. The 202 promises at-least-once
// delivery, not a committed row.
func Beacon(js nats.JetStreamContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		var req beaconRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.VideoID == uuid.Nil {
			api.BadRequest(w, "VALIDATION", "video_id is required", rid, nil)
			return
		}
		if req.WatchTimeSeconds < 0 || req.DurationSeconds < 0 {
			api.BadRequest(w, "VALIDATION", "watch time and duration must be non-negative", rid, nil)
			return
		}
		if req.ClientTsMs <= 0 {
			req.ClientTsMs = time.Now().UnixMilli()
		}
		ev := progress.UpsertEvent{
			EventID:          uuid.NewString(),
			UserID:           userID.String(),
			VideoID:          req.VideoID.String(),
			WatchTimeSeconds: req.WatchTimeSeconds,
			DurationSeconds:  req.DurationSeconds,
			Completed:        req.Completed,
			ClientTsMs:       req.ClientTsMs,
			CreatedAt:        time.Now().UTC().Format(time.RFC3339),
		}
		if err := progress.PublishUpsert(js, ev); err != nil {
			api.WriteError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Progress queue unavailable", rid, nil)
			return
		}
		api.WriteJSON(w, http.StatusAccepted, map[string]any{"event_id": ev.EventID})
	}
}
