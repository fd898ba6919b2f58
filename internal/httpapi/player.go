package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/platform/analytics"
	"github.com/example/studytube/internal/platform/api"
	"github.com/example/studytube/internal/playback"
	"github.com/example/studytube/internal/player"
	"github.com/example/studytube/internal/progress"
)

// PlayerHandlers serves the player session surface backed by the session
// manager.
type PlayerHandlers struct {
	Manager   *player.Manager
	Catalog   catalog.Store
	Progress  progress.Store
	Analytics *analytics.Publisher
}

type openSessionRequest struct {
	PlaylistID uuid.UUID `json:"playlist_id"`
	StartIndex int       `json:"start_index"`
	Autoplay   *bool     `json:"autoplay"`
}

type sessionEventRequest struct {
	Kind       string  `json:"kind"`
	Generation uint64  `json:"generation"`
	State      string  `json:"state"`
	Seconds    float64 `json:"seconds"`
}

type statusReportRequest struct {
	Generation      uint64  `json:"generation"`
	CurrentTime     float64 `json:"current_time"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type autoplayRequest struct {
	Enabled bool `json:"enabled"`
}

type toggleCompleteRequest struct {
	VideoID string `json:"video_id"`
}

type queueItemResponse struct {
	VideoID         string  `json:"video_id"`
	ExternalID      string  `json:"external_id"`
	Title           string  `json:"title"`
	DurationSeconds int     `json:"duration_seconds"`
	Position        int     `json:"position"`
	Percentage      float64 `json:"percentage"`
	Completed       bool    `json:"completed"`
	Active          bool    `json:"active"`
}

type snapshotResponse struct {
	SessionID  string              `json:"session_id"`
	PlaylistID string              `json:"playlist_id"`
	Phase      string              `json:"phase"`
	Index      int                 `json:"index"`
	Generation uint64              `json:"generation"`
	Playing    bool                `json:"playing"`
	Autoplay   bool                `json:"autoplay"`
	Shuffled   bool                `json:"shuffled"`
	Items      []queueItemResponse `json:"items"`
}

func renderSnapshot(snap playback.Snapshot) snapshotResponse {
	items := make([]queueItemResponse, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, queueItemResponse{
			VideoID:         it.ID,
			ExternalID:      it.ExternalID,
			Title:           it.Title,
			DurationSeconds: it.DurationSeconds,
			Position:        it.Position,
			Percentage:      it.Percentage,
			Completed:       it.Completed,
			Active:          it.Active,
		})
	}
	return snapshotResponse{
		SessionID:  snap.SessionID,
		PlaylistID: snap.PlaylistID,
		Phase:      snap.Phase.String(),
		Index:      snap.Index,
		Generation: snap.Generation,
		Playing:    snap.Playing,
		Autoplay:   snap.Autoplay,
		Shuffled:   snap.Shuffled,
		Items:      items,
	}
}

func writePlayerError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, player.ErrSessionNotFound):
		api.NotFound(w, "SESSION_NOT_FOUND", "Player session not found", rid)
	case errors.Is(err, player.ErrNotOwner):
		api.Forbidden(w, "FORBIDDEN", "Not the session owner", rid)
	case errors.Is(err, playback.ErrSessionClosed):
		api.WriteError(w, http.StatusGone, "SESSION_CLOSED", "Player session is closed", rid, nil)
	default:
		api.Internal(w, rid)
	}
}

// session resolves the handle for the authenticated caller.
func (h *PlayerHandlers) session(w http.ResponseWriter, r *http.Request, rid string) (*player.Handle, bool) {
	userID, ok := requireUser(w, r, rid)
	if !ok {
		return nil, false
	}
	sessionID := strings.TrimSpace(pathParam(r, "session_id"))
	handle, err := h.Manager.Get(sessionID, userID.String())
	if err != nil {
		writePlayerError(w, rid, err)
		return nil, false
	}
	return handle, true
}

// Open loads the playlist, seeds stored progress, and registers a new
// session.
func (h *PlayerHandlers) Open(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	userID, ok := requireUser(w, r, rid)
	if !ok {
		return
	}
	var req openSessionRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}

	pl, err := h.Catalog.GetPlaylist(r.Context(), req.PlaylistID)
	if err != nil {
		writeCatalogError(w, rid, err)
		return
	}
	if pl.OwnerID != userID {
		api.NotFound(w, "NOT_FOUND", "Playlist or video not found", rid)
		return
	}
	videos, err := h.Catalog.ListVideos(r.Context(), req.PlaylistID)
	if err != nil {
		writeCatalogError(w, rid, err)
		return
	}
	if len(videos) == 0 {
		api.Conflict(w, "EMPTY_PLAYLIST", "Playlist has no videos", rid, nil)
		return
	}

	refs := make([]playback.VideoRef, 0, len(videos))
	ids := make([]uuid.UUID, 0, len(videos))
	for _, v := range videos {
		refs = append(refs, playback.VideoRef{
			ID:              v.ID.String(),
			ExternalID:      v.ExternalID,
			Title:           v.Title,
			DurationSeconds: v.DurationSeconds,
			Position:        v.Position,
		})
		ids = append(ids, v.ID)
	}

	rows, err := h.Progress.ListByVideos(r.Context(), userID, ids)
	if err != nil {
		api.Internal(w, rid)
		return
	}
	seed := make([]playback.Record, 0, len(rows))
	for _, row := range rows {
		seed = append(seed, playback.Record{
			VideoID:          row.VideoID.String(),
			WatchTimeSeconds: row.WatchTimeSeconds,
			DurationSeconds:  row.DurationSeconds,
			Completed:        row.Completed,
		})
	}

	autoplay := true
	if req.Autoplay != nil {
		autoplay = *req.Autoplay
	}
	handle, err := h.Manager.Open(player.OpenParams{
		UserID:     userID.String(),
		PlaylistID: pl.ID.String(),
		Videos:     refs,
		Seed:       seed,
		StartIndex: req.StartIndex,
		Autoplay:   autoplay,
	})
	if err != nil {
		api.Internal(w, rid)
		return
	}

	h.Analytics.Publish(analytics.SubjectSessionStarted, "session_started", userID.String(), map[string]any{
		"playlist_id": pl.ID.String(),
		"video_count": len(videos),
	})
	api.WriteJSON(w, http.StatusCreated, renderSnapshot(handle.Session.Snapshot()))
}

// Snapshot returns the session read model.
func (h *PlayerHandlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, renderSnapshot(handle.Session.Snapshot()))
}

// Event ingests a player notification from the browser.
func (h *PlayerHandlers) Event(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var req sessionEventRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}

	ev := playback.Event{Generation: req.Generation}
	switch req.Kind {
	case "capability_ready":
		handle.Remote.MarkCapable()
		ev.Kind = playback.EventCapabilityReady
	case "ready":
		ev.Kind = playback.EventReady
	case "state_changed":
		ev.Kind = playback.EventStateChanged
		state, ok := parsePlayerState(req.State)
		if !ok {
			api.BadRequest(w, "VALIDATION", "Unknown player state", rid, map[string]any{"state": req.State})
			return
		}
		ev.State = state
	case "ended":
		ev.Kind = playback.EventEnded
		ev.State = playback.StateEnded
	default:
		api.BadRequest(w, "VALIDATION", "Unknown event kind", rid, map[string]any{"kind": req.Kind})
		return
	}

	wasCompleted := activeCompleted(handle)
	if err := handle.Session.HandleEvent(r.Context(), ev, time.Now()); err != nil {
		writePlayerError(w, rid, err)
		return
	}
	if ev.Kind == playback.EventEnded && !wasCompleted {
		h.Analytics.Publish(analytics.SubjectVideoCompleted, "video_completed", handle.UserID, map[string]any{
			"playlist_id": handle.Session.PlaylistID,
		})
	}
	api.WriteJSON(w, http.StatusOK, renderSnapshot(handle.Session.Snapshot()))
}

func activeCompleted(handle *player.Handle) bool {
	snap := handle.Session.Snapshot()
	for _, it := range snap.Items {
		if it.Active {
			return it.Completed
		}
	}
	return false
}

func parsePlayerState(s string) (playback.PlayerState, bool) {
	switch s {
	case "playing":
		return playback.StatePlaying, true
	case "paused":
		return playback.StatePaused, true
	case "buffering":
		return playback.StateBuffering, true
	case "ended":
		return playback.StateEnded, true
	case "unstarted", "":
		return playback.StateUnstarted, true
	default:
		return playback.StateUnstarted, false
	}
}

// Status ingests the browser's periodic time report.
func (h *PlayerHandlers) Status(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var req statusReportRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}
	handle.Remote.ApplyStatus(player.StatusReport{
		Generation:      req.Generation,
		CurrentTime:     req.CurrentTime,
		DurationSeconds: req.DurationSeconds,
	})
	handle.Session.Touch(time.Now())
	w.WriteHeader(http.StatusNoContent)
}

// Directives drains the pending player directives for the polling client.
func (h *PlayerHandlers) Directives(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	handle.Session.Touch(time.Now())
	directives := handle.Remote.Drain()
	if directives == nil {
		directives = []player.Directive{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"directives": directives})
}

// Next advances to the next video; at the tail it is a no-op.
func (h *PlayerHandlers) Next(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(s *playback.Session) (bool, error) { return s.Next() })
}

// Previous steps back; at the head it is a no-op.
func (h *PlayerHandlers) Previous(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(s *playback.Session) (bool, error) { return s.Previous() })
}

func (h *PlayerHandlers) step(w http.ResponseWriter, r *http.Request, fn func(*playback.Session) (bool, error)) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	moved, err := fn(handle.Session)
	if err != nil {
		writePlayerError(w, rid, err)
		return
	}
	resp := struct {
		Moved bool `json:"moved"`
		snapshotResponse
	}{moved, renderSnapshot(handle.Session.Snapshot())}
	api.WriteJSON(w, http.StatusOK, resp)
}

// Shuffle toggles between shuffled and canonical order.
func (h *PlayerHandlers) Shuffle(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	if err := handle.Session.ToggleShuffle(); err != nil {
		writePlayerError(w, rid, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, renderSnapshot(handle.Session.Snapshot()))
}

// Move reorders the session queue.
func (h *PlayerHandlers) Move(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}
	if err := handle.Session.Move(req.From, req.To); err != nil {
		if errors.Is(err, playback.ErrSessionClosed) {
			writePlayerError(w, rid, err)
			return
		}
		api.BadRequest(w, "INVALID_MOVE", err.Error(), rid, nil)
		return
	}
	api.WriteJSON(w, http.StatusOK, renderSnapshot(handle.Session.Snapshot()))
}

// Autoplay sets the auto-advance flag.
func (h *PlayerHandlers) Autoplay(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var req autoplayRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}
	if err := handle.Session.SetAutoplay(req.Enabled); err != nil {
		writePlayerError(w, rid, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, renderSnapshot(handle.Session.Snapshot()))
}

// ToggleComplete flips manual completion for the given (or active) video.
func (h *PlayerHandlers) ToggleComplete(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	var req toggleCompleteRequest
	if !decodeJSON(w, r, rid, &req) {
		return
	}
	rec, err := handle.Session.ToggleComplete(r.Context(), strings.TrimSpace(req.VideoID), time.Now())
	if err != nil {
		switch {
		case errors.Is(err, playback.ErrSessionClosed):
			writePlayerError(w, rid, err)
		case errors.Is(err, playback.ErrVideoNotInQueue), errors.Is(err, playback.ErrNoActiveVideo):
			api.BadRequest(w, "INVALID_VIDEO", err.Error(), rid, nil)
		default:
			// The toggle applied to the ledger but the flush failed,
			// same failure mode as an explicit save.
			api.WriteError(w, http.StatusBadGateway, "SAVE_FAILED", "Progress save failed", rid, nil)
		}
		return
	}
	resp := struct {
		VideoID   string `json:"video_id"`
		Completed bool   `json:"completed"`
		snapshotResponse
	}{rec.VideoID, rec.Completed, renderSnapshot(handle.Session.Snapshot())}
	api.WriteJSON(w, http.StatusOK, resp)
}

// Save forces an immediate progress flush for the active video.
func (h *PlayerHandlers) Save(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	handle, ok := h.session(w, r, rid)
	if !ok {
		return
	}
	if err := handle.Session.SaveNow(r.Context()); err != nil {
		switch {
		case errors.Is(err, playback.ErrSessionClosed):
			writePlayerError(w, rid, err)
		case errors.Is(err, playback.ErrNoActiveVideo):
			api.BadRequest(w, "INVALID_VIDEO", err.Error(), rid, nil)
		default:
			api.WriteError(w, http.StatusBadGateway, "SAVE_FAILED", "Progress save failed", rid, nil)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close flushes and tears down the session.
func (h *PlayerHandlers) Close(w http.ResponseWriter, r *http.Request) {
	rid := requestID(r)
	userID, ok := requireUser(w, r, rid)
	if !ok {
		return
	}
	sessionID := strings.TrimSpace(pathParam(r, "session_id"))
	if err := h.Manager.Close(r.Context(), sessionID, userID.String()); err != nil {
		writePlayerError(w, rid, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
