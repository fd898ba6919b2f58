package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/playback"
)

var (
	ErrSessionNotFound = errors.New("player: session not found")
	ErrNotOwner        = errors.New("player: session belongs to another user")
)

const (
	defaultTickInterval = 5 * time.Second
	defaultIdleAfter    = 30 * time.Minute
)

// Handle pairs a playback session with its remote player mirror.
type Handle struct {
	ID      string
	UserID  string
	Session *playback.Session
	Remote  *RemotePlayer
}

// ManagerConfig tunes the session manager. Zero values get defaults.
type ManagerConfig struct {
	Store        playback.ProgressStore
	TickInterval time.Duration
	// IdleAfter is how long a session may go without client contact
	// before the manager closes it.
	IdleAfter time.Duration
	Log       *zap.Logger
}

// Manager owns every open playback session in the process. It runs the
// shared tick loop that drives periodic progress flushes and auto
// advances, and it reaps sessions whose browser tab went away.
type Manager struct {
	store     playback.ProgressStore
	tick      time.Duration
	idleAfter time.Duration
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Handle
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = defaultIdleAfter
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Manager{
		store:     cfg.Store,
		tick:      cfg.TickInterval,
		idleAfter: cfg.IdleAfter,
		log:       cfg.Log,
		sessions:  make(map[string]*Handle),
	}
}

// OpenParams describes a new session: the playlist's videos in canonical
// order plus the user's persisted progress for them.
type OpenParams struct {
	UserID     string
	PlaylistID string
	Videos     []playback.VideoRef
	Seed       []playback.Record
	StartIndex int
	Autoplay   bool
}

// Open creates a session with a fresh remote player and registers it.
func (m *Manager) Open(p OpenParams) (*Handle, error) {
	remote := NewRemotePlayer()
	id := uuid.NewString()
	sess, err := playback.NewSession(playback.SessionConfig{
		SessionID:  id,
		UserID:     p.UserID,
		PlaylistID: p.PlaylistID,
		Videos:     p.Videos,
		Seed:       p.Seed,
		Store:      m.store,
		Player:     remote,
		Sequencer:  playback.SequencerConfig{Autoplay: p.Autoplay},
		StartIndex: p.StartIndex,
		Log:        m.log.With(zap.String("session_id", id)),
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{ID: id, UserID: p.UserID, Session: sess, Remote: remote}
	m.mu.Lock()
	m.sessions[id] = h
	m.mu.Unlock()

	m.log.Info("playback session opened",
		zap.String("session_id", id),
		zap.String("user_id", p.UserID),
		zap.String("playlist_id", p.PlaylistID),
		zap.Int("videos", len(p.Videos)))
	return h, nil
}

// Get returns the session handle, enforcing ownership.
func (m *Manager) Get(sessionID, userID string) (*Handle, error) {
	m.mu.Lock()
	h, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if h.UserID != userID {
		return nil, ErrNotOwner
	}
	return h, nil
}

// Close flushes and tears down one session.
func (m *Manager) Close(ctx context.Context, sessionID, userID string) error {
	h, err := m.Get(sessionID, userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	h.Session.Close(ctx)
	m.log.Info("playback session closed", zap.String("session_id", sessionID))
	return nil
}

// Len reports how many sessions are open.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run drives the shared tick loop until ctx is canceled, then closes
// every remaining session so progress is flushed on shutdown.
func (m *Manager) Run(ctx context.Context) error {
	t := time.NewTicker(m.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return ctx.Err()
		case now := <-t.C:
			m.tickAll(ctx, now)
		}
	}
}

func (m *Manager) tickAll(ctx context.Context, now time.Time) {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		if now.Sub(h.Session.LastActive()) > m.idleAfter {
			m.mu.Lock()
			delete(m.sessions, h.ID)
			m.mu.Unlock()
			h.Session.Close(ctx)
			m.log.Info("idle playback session reaped", zap.String("session_id", h.ID))
			continue
		}
		h.Session.Tick(ctx, now)
	}
}

func (m *Manager) closeAll() {
	// Shutdown path: ctx is already canceled, so flushes run under a
	// short fresh deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.sessions = make(map[string]*Handle)
	m.mu.Unlock()

	for _, h := range handles {
		h.Session.Close(ctx)
	}
}
