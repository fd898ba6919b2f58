package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/studytube/internal/platform/api"
	"github.com/example/studytube/internal/platform/auth"
	"github.com/example/studytube/internal/platform/httpserver"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON
// into dst. On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// requireUser pulls the authenticated user id from context, writing a 401
// when missing.
func requireUser(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(uid)
	if err != nil {
		api.Unauthorized(w, "AUTH_INVALID", "Invalid auth subject", rid)
		return uuid.Nil, false
	}
	return parsed, true
}

// pathUUID parses a chi URL parameter as a UUID, writing a 400 when
// malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, rid, name string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(pathParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		api.BadRequest(w, "INVALID_ID", "Invalid "+name, rid, nil)
		return uuid.Nil, false
	}
	return id, true
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func requestID(r *http.Request) string {
	return httpserver.RequestIDFromContext(r.Context())
}
