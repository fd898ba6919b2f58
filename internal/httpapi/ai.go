package httpapi

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/example/studytube/internal/ai"
	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/platform/api"
)

type summarizeRequest struct {
	Force bool `json:"force"`
}

// Summarize generates (or returns the stored) AI summary for a video.
func Summarize(svc *ai.Service) http.HandlerFunc {
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
		var req summarizeRequest
		if r.ContentLength > 0 {
			if !decodeJSON(w, r, rid, &req) {
				return
			}
		}
		summary, err := svc.Summarize(r.Context(), userID, videoID, req.Force)
		if err != nil {
			switch {
			case errors.Is(err, catalog.ErrNotFound):
				api.NotFound(w, "VIDEO_NOT_FOUND", "Video not found", rid)
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				api.WriteError(w, http.StatusServiceUnavailable, "AI_UNAVAILABLE", "Summary service temporarily unavailable", rid, nil)
			default:
				api.WriteError(w, http.StatusBadGateway, "AI_FAILED", "Summary generation failed", rid, nil)
			}
			return
		}
		api.WriteJSON(w, http.StatusOK, summary)
	}
}

// GetSummary returns the stored summary without generating one.
func GetSummary(svc *ai.Service) http.HandlerFunc {
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
		summary, err := svc.Get(r.Context(), userID, videoID)
		if err != nil {
			if errors.Is(err, ai.ErrNotFound) {
				api.NotFound(w, "SUMMARY_NOT_FOUND", "No summary for this video yet", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, summary)
	}
}
