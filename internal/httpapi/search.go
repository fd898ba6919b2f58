package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/example/studytube/internal/platform/analytics"
	"github.com/example/studytube/internal/platform/api"
	"github.com/example/studytube/internal/search"
)

// SearchVideos runs a full-text query over the user's indexed videos.
func SearchVideos(svc *search.Service, events *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		userID, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				api.BadRequest(w, "VALIDATION", "limit must be an integer", rid, nil)
				return
			}
			limit = n
		}
		result, err := svc.SearchVideos(r.Context(), query, limit)
		if err != nil {
			api.WriteError(w, http.StatusBadGateway, "SEARCH_FAILED", "Search backend unavailable", rid, nil)
			return
		}
		if query != "" {
			events.Publish(analytics.SubjectSearchPerformed, "search", userID.String(), map[string]any{
				"query_length":  len(query),
				"results_count": result.Total,
			})
		}
		api.WriteJSON(w, http.StatusOK, result)
	}
}
