package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/example/studytube/internal/auth"
	"github.com/example/studytube/internal/platform/api"
	platformauth "github.com/example/studytube/internal/platform/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func clientInfo(r *http.Request) auth.ClientInfo {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return auth.ClientInfo{
		UserAgent: r.UserAgent(),
		IP:        net.ParseIP(host),
	}
}

// writeAuthError maps auth service errors onto the HTTP envelope.
func writeAuthError(w http.ResponseWriter, rid string, err error) {
	var verr auth.ValidationError
	switch {
	case errors.As(err, &verr):
		api.BadRequest(w, "VALIDATION", verr.Reason, rid, map[string]any{"field": verr.Field})
	case errors.Is(err, auth.ErrConflict):
		api.Conflict(w, "ACCOUNT_EXISTS", "Email or username already in use", rid, nil)
	case errors.Is(err, auth.ErrUnauthorized):
		api.Unauthorized(w, "INVALID_CREDENTIALS", "Invalid credentials", rid)
	case errors.Is(err, auth.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "Account not found", rid)
	default:
		api.Internal(w, rid)
	}
}

func Register(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		var req registerRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		pair, err := svc.Register(r.Context(), req.Email, req.Username, req.Password, clientInfo(r))
		if err != nil {
			writeAuthError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, pair)
	}
}

func Login(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		var req loginRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		pair, err := svc.Login(r.Context(), req.Login, req.Password, clientInfo(r))
		if err != nil {
			writeAuthError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, pair)
	}
}

func Refresh(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		var req refreshRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		pair, err := svc.Refresh(r.Context(), req.RefreshToken, clientInfo(r))
		if err != nil {
			writeAuthError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, pair)
	}
}

func Logout(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		var req refreshRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if err := svc.Logout(r.Context(), req.RefreshToken); err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Me(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := requestID(r)
		uid, ok := platformauth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		user, err := svc.Me(r.Context(), uid)
		if err != nil {
			writeAuthError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, user)
	}
}
