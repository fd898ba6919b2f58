package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/importer"
	"github.com/example/studytube/internal/platform/api"
	"github.com/example/studytube/internal/platform/signing"
)

type createPlaylistRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
}

type updatePlaylistRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
}

type saveOrderRequest struct {
	VideoIDs []uuid.UUID `json:"video_ids"`
}

type playlistResponse struct {
	Playlist catalog.Playlist `json:"playlist"`
	Videos   []catalog.Video  `json:"videos,omitempty"`
}

func writeCatalogError(w http.ResponseWriter, rid string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "Playlist or video not found", rid)
	case errors.Is(err, catalog.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", "Not the playlist owner", rid)
	case errors.Is(err, catalog.ErrConflict):
		api.Conflict(w, "CONFLICT", "Conflicting playlist change", rid, nil)
	default:
		api.Internal(w, rid)
	}
}

// CreatePlaylist creates the playlist row and, when a YouTube source URL is
// given, enqueues the import job.
func CreatePlaylist(store catalog.Store, js nats.JetStreamContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		var req createPlaylistRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.SourceURL) == "" {
			api.BadRequest(w, "VALIDATION", "Either title or source_url is required", rid, nil)
			return
		}
		if req.SourceURL != "" {
			if _, err := importer.ResolvePlaylistID(req.SourceURL); err != nil {
				api.BadRequest(w, "INVALID_SOURCE_URL", "Cannot resolve a YouTube playlist from source_url", rid, nil)
				return
			}
		}

		pl, err := store.CreatePlaylist(r.Context(), catalog.CreatePlaylistParams{
			OwnerID:     userID,
			Title:       strings.TrimSpace(req.Title),
			Description: strings.TrimSpace(req.Description),
			SourceURL:   strings.TrimSpace(req.SourceURL),
		})
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}

		if pl.SourceURL != "" && js != nil {
			if err := importer.Enqueue(js, importer.Job{
				PlaylistID: pl.ID,
				OwnerID:    userID,
				SourceURL:  pl.SourceURL,
			}); err != nil {
				// The row exists; the client can retry the import later.
				api.WriteJSON(w, http.StatusAccepted, playlistResponse{Playlist: pl})
				return
			}
		}
		api.WriteJSON(w, http.StatusCreated, playlistResponse{Playlist: pl})
	}
}

func ListPlaylists(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		playlists, err := store.ListPlaylistsByOwner(r.Context(), userID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
	}
}

func GetPlaylist(store catalog.Store) http.HandlerFunc {
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
		pl, err := store.GetPlaylist(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		if pl.OwnerID != userID {
			api.NotFound(w, "NOT_FOUND", "Playlist or video not found", rid)
			return
		}
		videos, err := store.ListVideos(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, playlistResponse{Playlist: pl, Videos: videos})
	}
}

func UpdatePlaylist(store catalog.Store) http.HandlerFunc {
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
		var req updatePlaylistRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if req.Visibility != nil {
			v := strings.TrimSpace(*req.Visibility)
			if v != catalog.VisibilityPrivate && v != catalog.VisibilityLink {
				api.BadRequest(w, "VALIDATION", "visibility must be private or link", rid, nil)
				return
			}
			req.Visibility = &v
		}
		pl, err := store.UpdatePlaylist(r.Context(), playlistID, userID, catalog.UpdatePlaylistParams{
			Title:       req.Title,
			Description: req.Description,
			Visibility:  req.Visibility,
		})
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, playlistResponse{Playlist: pl})
	}
}

func DeletePlaylist(store catalog.Store) http.HandlerFunc {
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
		if err := store.DeletePlaylist(r.Context(), playlistID, userID); err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SaveOrder rewrites the playlist's canonical order.
func SaveOrder(store catalog.Store) http.HandlerFunc {
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
		var req saveOrderRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if len(req.VideoIDs) == 0 {
			api.BadRequest(w, "VALIDATION", "video_ids is required", rid, nil)
			return
		}
		if err := store.SaveOrder(r.Context(), playlistID, userID, req.VideoIDs); err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		videos, err := store.ListVideos(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"videos": videos})
	}
}

const maxShareTTL = 30 * 24 * time.Hour

// SharePlaylist issues an HMAC-signed share URL and flips the playlist to
// link visibility.
func SharePlaylist(store catalog.Store, signer *signing.Signer, shareBaseURL string) http.HandlerFunc {
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

		ttl := 7 * 24 * time.Hour
		if raw := strings.TrimSpace(r.URL.Query().Get("ttl_hours")); raw != "" {
			hours, err := strconv.Atoi(raw)
			if err != nil || hours <= 0 || time.Duration(hours)*time.Hour > maxShareTTL {
				api.BadRequest(w, "VALIDATION", "ttl_hours must be between 1 and 720", rid, nil)
				return
			}
			ttl = time.Duration(hours) * time.Hour
		}

		visibility := catalog.VisibilityLink
		pl, err := store.UpdatePlaylist(r.Context(), playlistID, userID, catalog.UpdatePlaylistParams{
			Visibility: &visibility,
		})
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}

		exp := time.Now().Add(ttl)
		signed := signer.Sign("playlist:"+pl.ID.String(), userID.String(), exp)
		shareURL, err := signing.BuildShareURL(shareBaseURL, signed)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"share_url":  shareURL,
			"expires_at": exp.UTC().Format(time.RFC3339),
		})
	}
}

// SharedPlaylist serves a playlist through a signed link, no login needed.
func SharedPlaylist(store catalog.Store, signer *signing.Signer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		resource, uid, exp, sig, err := signing.ExtractSigned(r.URL.Query())
		if err != nil {
			api.BadRequest(w, "INVALID_LINK", "Malformed share link", rid, nil)
			return
		}
		if !signer.Verify(resource, uid, exp, sig) {
			api.Forbidden(w, "LINK_EXPIRED", "Share link is invalid or expired", rid)
			return
		}
		idStr, ok := strings.CutPrefix(resource, "playlist:")
		if !ok {
			api.BadRequest(w, "INVALID_LINK", "Malformed share link", rid, nil)
			return
		}
		playlistID, err := uuid.Parse(idStr)
		if err != nil {
			api.BadRequest(w, "INVALID_LINK", "Malformed share link", rid, nil)
			return
		}

		pl, err := store.GetPlaylist(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		// A revoked share (visibility back to private) invalidates
		// outstanding links even before they expire.
		if pl.Visibility != catalog.VisibilityLink {
			api.Forbidden(w, "LINK_REVOKED", "Sharing is disabled for this playlist", rid)
			return
		}
		videos, err := store.ListVideos(r.Context(), playlistID)
		if err != nil {
			writeCatalogError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, playlistResponse{Playlist: pl, Videos: videos})
	}
}
