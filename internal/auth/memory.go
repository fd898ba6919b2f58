package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]UserRow
	sessions map[string]RefreshSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]UserRow),
		sessions: make(map[string]RefreshSession),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, p CreateUserParams) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if strings.EqualFold(row.User.Email, p.Email) || strings.EqualFold(row.User.Username, p.Username) {
			return User{}, ErrConflict
		}
	}
	u := User{
		ID:        uuid.NewString(),
		Email:     p.Email,
		Username:  p.Username,
		Role:      RoleUser,
		CreatedAt: time.Now().UTC(),
	}
	s.users[u.ID] = UserRow{User: u, PasswordHash: p.PasswordHash}
	return u, nil
}

func (s *MemoryStore) FindUserByLogin(_ context.Context, login string) (UserRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if strings.EqualFold(row.User.Email, login) || strings.EqualFold(row.User.Username, login) {
			return row, nil
		}
	}
	return UserRow{}, ErrNotFound
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return row.User, nil
}

func (s *MemoryStore) SetUserRole(_ context.Context, userID uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[userID.String()]
	if !ok {
		return ErrNotFound
	}
	row.User.Role = role
	s.users[userID.String()] = row
	return nil
}

func (s *MemoryStore) CreateRefreshSession(_ context.Context, p CreateRefreshSessionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.TokenHash]; ok {
		return ErrConflict
	}
	s.sessions[p.TokenHash] = RefreshSession{
		ID:        p.SessionID,
		UserID:    p.UserID,
		TokenHash: p.TokenHash,
		ExpiresAt: p.ExpiresAt,
	}
	return nil
}

func (s *MemoryStore) GetRefreshSessionByHash(_ context.Context, tokenHash string) (RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return RefreshSession{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, sessionID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, sess := range s.sessions {
		if sess.ID == sessionID && sess.RevokedAt == nil {
			t := now
			sess.RevokedAt = &t
			s.sessions[hash] = sess
		}
	}
	return nil
}

func (s *MemoryStore) ReplaceRefreshSession(_ context.Context, oldID, _ uuid.UUID, now time.Time) error {
	return s.RevokeRefreshSession(context.Background(), oldID, now)
}
