package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/studytube/internal/platform/analytics"
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("auth: invalid %s: %s", e.Field, e.Reason)
}

// TokenPair is the result of a successful register, login or refresh.
type TokenPair struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ClientInfo carries the request metadata stored with refresh sessions.
type ClientInfo struct {
	UserAgent string
	IP        net.IP
}

// Service implements the account operations over a Store.
type Service struct {
	Store  Store
	Tokens Tokens
	// BootstrapAdminUsername, when it matches a registering username,
	// promotes that account to admin immediately. Lets a fresh install
	// get its first admin without manual SQL.
	BootstrapAdminUsername string
	Analytics              *analytics.Publisher
}

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)
)

func (s *Service) Register(ctx context.Context, email, username, password string, client ClientInfo) (TokenPair, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	if !emailRe.MatchString(email) {
		return TokenPair{}, ValidationError{Field: "email", Reason: "invalid"}
	}
	if !usernameRe.MatchString(username) {
		return TokenPair{}, ValidationError{Field: "username", Reason: "3-32 letters, digits or underscore"}
	}
	if len(password) < 8 {
		return TokenPair{}, ValidationError{Field: "password", Reason: "min length 8"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.Store.CreateUser(ctx, CreateUserParams{Email: email, Username: username, PasswordHash: string(hash)})
	if err != nil {
		return TokenPair{}, err
	}

	if s.BootstrapAdminUsername != "" && strings.EqualFold(s.BootstrapAdminUsername, u.Username) {
		if id, perr := uuid.Parse(u.ID); perr == nil {
			if rerr := s.Store.SetUserRole(ctx, id, RoleAdmin); rerr == nil {
				u.Role = RoleAdmin
			}
		}
	}

	pair, err := s.issueTokens(ctx, u, client)
	if err != nil {
		return TokenPair{}, err
	}
	s.Analytics.Publish(analytics.SubjectAuthRegistered, "auth_registered", u.ID, nil)
	return pair, nil
}

func (s *Service) Login(ctx context.Context, login, password string, client ClientInfo) (TokenPair, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return TokenPair{}, ErrUnauthorized
	}

	row, err := s.Store.FindUserByLogin(ctx, login)
	if err != nil {
		// Not-found collapses into unauthorized so login probing cannot
		// distinguish unknown accounts from wrong passwords.
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, ErrUnauthorized
	}

	pair, err := s.issueTokens(ctx, row.User, client)
	if err != nil {
		return TokenPair{}, err
	}
	s.Analytics.Publish(analytics.SubjectAuthLoggedIn, "auth_logged_in", row.User.ID, nil)
	return pair, nil
}

// Refresh rotates a refresh session: the old token is revoked and linked
// to its replacement, so a replayed old token is detectably invalid.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string, client ClientInfo) (TokenPair, error) {
	raw := strings.TrimSpace(rawRefreshToken)
	if raw == "" {
		return TokenPair{}, ErrUnauthorized
	}

	sess, err := s.Store.GetRefreshSessionByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	now := time.Now().UTC()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) {
		return TokenPair{}, ErrUnauthorized
	}

	u, err := s.Store.GetUserByID(ctx, sess.UserID.String())
	if err != nil {
		return TokenPair{}, err
	}

	access, exp, err := s.Tokens.NewAccessToken(u.ID, u.Role, now)
	if err != nil {
		return TokenPair{}, err
	}
	newRaw, newHash, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	newID := uuid.New()
	if err := s.Store.ReplaceRefreshSession(ctx, sess.ID, newID, now); err != nil {
		return TokenPair{}, err
	}
	if err := s.Store.CreateRefreshSession(ctx, CreateRefreshSessionParams{
		SessionID: newID,
		UserID:    sess.UserID,
		TokenHash: newHash,
		ExpiresAt: now.Add(s.Tokens.RefreshTokenTTL),
		UserAgent: client.UserAgent,
		IP:        client.IP,
		Now:       now,
	}); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		User:         u,
		AccessToken:  access,
		RefreshToken: newRaw,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

// Logout revokes the refresh session for the given raw token. Unknown
// tokens are a no-op: logging out twice is fine.
func (s *Service) Logout(ctx context.Context, rawRefreshToken string) error {
	raw := strings.TrimSpace(rawRefreshToken)
	if raw == "" {
		return nil
	}
	sess, err := s.Store.GetRefreshSessionByHash(ctx, HashRefreshToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.RevokeRefreshSession(ctx, sess.ID, time.Now().UTC())
}

// Me returns the account for an authenticated user ID.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	return s.Store.GetUserByID(ctx, userID)
}

func (s *Service) issueTokens(ctx context.Context, u User, client ClientInfo) (TokenPair, error) {
	now := time.Now().UTC()
	access, exp, err := s.Tokens.NewAccessToken(u.ID, u.Role, now)
	if err != nil {
		return TokenPair{}, err
	}
	raw, hash, err := NewRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	uid, err := uuid.Parse(u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("parse user id: %w", err)
	}
	if err := s.Store.CreateRefreshSession(ctx, CreateRefreshSessionParams{
		SessionID: uuid.New(),
		UserID:    uid,
		TokenHash: hash,
		ExpiresAt: now.Add(s.Tokens.RefreshTokenTTL),
		UserAgent: client.UserAgent,
		IP:        client.IP,
		Now:       now,
	}); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		User:         u,
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}
