// Package auth implements account registration, login and refresh-token
// session management for the learning platform.
package auth

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConflict     = errors.New("auth: conflict")
	ErrNotFound     = errors.New("auth: not found")
	ErrUnauthorized = errors.New("auth: unauthorized")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRow pairs a user with their password hash for login checks.
type UserRow struct {
	User         User
	PasswordHash string
}

type CreateUserParams struct {
	Email        string
	Username     string
	PasswordHash string
}

// RefreshSession is one issued refresh token, stored hashed.
type RefreshSession struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type CreateRefreshSessionParams struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UserAgent string
	IP        net.IP
	Now       time.Time
}

// Store defines account and refresh-session persistence.
type Store interface {
	CreateUser(ctx context.Context, p CreateUserParams) (User, error)
	FindUserByLogin(ctx context.Context, login string) (UserRow, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	SetUserRole(ctx context.Context, userID uuid.UUID, role string) error

	CreateRefreshSession(ctx context.Context, p CreateRefreshSessionParams) error
	GetRefreshSessionByHash(ctx context.Context, tokenHash string) (RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID uuid.UUID, now time.Time) error
	ReplaceRefreshSession(ctx context.Context, oldID, newID uuid.UUID, now time.Time) error
}
