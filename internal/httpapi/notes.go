package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/example/studytube/internal/notes"
	"github.com/example/studytube/internal/platform/api"
)

const (
	maxNoteBodyChars = 10000
	defaultNoteLimit = 20
	maxNoteLimit     = 100
)

type createNoteRequest struct {
	Body          string `json:"body"`
	AnchorSeconds *int   `json:"anchor_seconds"`
}

type updateNoteRequest struct {
	Body string `json:"body"`
}

func validateNoteBody(body string) (string, string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "body is required"
	}
	if utf8.RuneCountInString(body) > maxNoteBodyChars {
		return "", "body exceeds the maximum length"
	}
	return body, ""
}

// CreateNote attaches a note to a video, optionally anchored to a
// playhead second.
func CreateNote(store notes.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		videoID, ok := pathUUID(w, r, rid, "video_id")
		if !ok {
			return
		}
		var req createNoteRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		body, msg := validateNoteBody(req.Body)
		if msg != "" {
			api.BadRequest(w, "VALIDATION", msg, rid, map[string]any{"field": "body"})
			return
		}
		if req.AnchorSeconds != nil && *req.AnchorSeconds < 0 {
			api.BadRequest(w, "VALIDATION", "anchor_seconds must be non-negative", rid, map[string]any{"field": "anchor_seconds"})
			return
		}
		note, err := store.Create(r.Context(), notes.CreateParams{
			UserID:        userID,
			VideoID:       videoID,
			Body:          body,
			AnchorSeconds: req.AnchorSeconds,
		})
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, note)
	}
}

// ListNotes pages through the user's notes for a video, newest first.
func ListNotes(store notes.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		videoID, ok := pathUUID(w, r, rid, "video_id")
		if !ok {
			return
		}
		limit := defaultNoteLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.BadRequest(w, "VALIDATION", "limit must be a positive integer", rid, nil)
				return
			}
			if n > maxNoteLimit {
				n = maxNoteLimit
			}
			limit = n
		}
		items, next, err := store.ListByVideo(r.Context(), userID, videoID, limit, r.URL.Query().Get("cursor"))
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if items == nil {
			items = []notes.Note{}
		}
		resp := map[string]any{"items": items}
		if next != "" {
			resp["next_cursor"] = next
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// UpdateNote rewrites a note's body. Only the owner sees the note at all.
func UpdateNote(store notes.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		noteID, ok := pathUUID(w, r, rid, "note_id")
		if !ok {
			return
		}
		var req updateNoteRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		body, msg := validateNoteBody(req.Body)
		if msg != "" {
			api.BadRequest(w, "VALIDATION", msg, rid, map[string]any{"field": "body"})
			return
		}
		if err := store.UpdateBody(r.Context(), noteID, userID, body); err != nil {
			if errors.Is(err, notes.ErrNotFound) {
				api.NotFound(w, "NOTE_NOT_FOUND", "Note not found", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteNote(store notes.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		noteID, ok := pathUUID(w, r, rid, "note_id")
		if !ok {
			return
		}
		if err := store.Delete(r.Context(), noteID, userID); err != nil {
			if errors.Is(err, notes.ErrNotFound) {
				api.NotFound(w, "NOTE_NOT_FOUND", "Note not found", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
