package player

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/studytube/internal/playback"
)

type memProgressStore struct {
	rows map[string]playback.Record
}

func newMemProgressStore() *memProgressStore {
	return &memProgressStore{rows: make(map[string]playback.Record)}
}

func (s *memProgressStore) key(userID, videoID string) string {
	return userID + "/" + videoID
}

func (s *memProgressStore) Exists(_ context.Context, userID, videoID string) (bool, error) {
	_, ok := s.rows[s.key(userID, videoID)]
	return ok, nil
}

func (s *memProgressStore) Insert(_ context.Context, userID string, rec playback.Record) error {
	s.rows[s.key(userID, rec.VideoID)] = rec
	return nil
}

func (s *memProgressStore) Update(_ context.Context, userID string, rec playback.Record) error {
	s.rows[s.key(userID, rec.VideoID)] = rec
	return nil
}

func managerVideos(n int) []playback.VideoRef {
	out := make([]playback.VideoRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, playback.VideoRef{
			ID:              fmt.Sprintf("vid-%d", i),
			ExternalID:      fmt.Sprintf("yt-%d", i),
			DurationSeconds: 300,
			Position:        i,
		})
	}
	return out
}

func openTestSession(t *testing.T, m *Manager, userID string) *Handle {
	t.Helper()
	h, err := m.Open(OpenParams{
		UserID:     userID,
		PlaylistID: "pl-1",
		Videos:     managerVideos(3),
		Autoplay:   true,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return h
}

func TestManager_OpenAndGet(t *testing.T) {
	m := NewManager(ManagerConfig{Store: newMemProgressStore()})
	h := openTestSession(t, m, "user-1")

	got, err := m.Get(h.ID, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != h {
		t.Fatal("expected the same handle back")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 open session, got %d", m.Len())
	}
}

func TestManager_GetUnknownSession(t *testing.T) {
	m := NewManager(ManagerConfig{Store: newMemProgressStore()})
	if _, err := m.Get("nope", "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_GetEnforcesOwnership(t *testing.T) {
	m := NewManager(ManagerConfig{Store: newMemProgressStore()})
	h := openTestSession(t, m, "user-1")

	if _, err := m.Get(h.ID, "user-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	m := NewManager(ManagerConfig{Store: newMemProgressStore()})
	h := openTestSession(t, m, "user-1")

	if err := m.Close(context.Background(), h.ID, "user-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected 0 sessions, got %d", m.Len())
	}
	if _, err := m.Get(h.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after close, got %v", err)
	}
	if _, err := h.Session.Next(); !errors.Is(err, playback.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}

func TestManager_IdleReaping(t *testing.T) {
	m := NewManager(ManagerConfig{
		Store:     newMemProgressStore(),
		IdleAfter: time.Minute,
	})
	stale := openTestSession(t, m, "user-1")
	fresh := openTestSession(t, m, "user-2")

	later := time.Now().Add(2 * time.Minute)
	fresh.Session.Touch(later)
	m.tickAll(context.Background(), later)

	if m.Len() != 1 {
		t.Fatalf("expected 1 surviving session, got %d", m.Len())
	}
	if _, err := m.Get(stale.ID, "user-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected stale session reaped, got %v", err)
	}
	if _, err := m.Get(fresh.ID, "user-2"); err != nil {
		t.Fatalf("expected fresh session kept: %v", err)
	}
}

func TestManager_SessionFlowThroughRemote(t *testing.T) {
	store := newMemProgressStore()
	m := NewManager(ManagerConfig{Store: store})
	h := openTestSession(t, m, "user-1")
	ctx := context.Background()

	// No capability yet: the session is still waiting to load.
	if h.Session.Snapshot().Phase != playback.PhaseLoading {
		t.Fatalf("expected loading, got %s", h.Session.Snapshot().Phase)
	}

	// Client announces its player, the deferred load fires and a load
	// directive becomes available to drain.
	h.Remote.MarkCapable()
	if err := h.Session.HandleEvent(ctx, playback.Event{Kind: playback.EventCapabilityReady}, time.Now()); err != nil {
		t.Fatalf("capability event: %v", err)
	}
	ds := h.Remote.Drain()
	if len(ds) != 1 || ds[0].Kind != DirectiveLoad || ds[0].ExternalID != "yt-0" {
		t.Fatalf("expected load directive for yt-0, got %v", ds)
	}

	gen := h.Session.Snapshot().Generation
	if err := h.Session.HandleEvent(ctx, playback.Event{Generation: gen, Kind: playback.EventStateChanged, State: playback.StatePlaying}, time.Now()); err != nil {
		t.Fatalf("state event: %v", err)
	}
	h.Remote.ApplyStatus(StatusReport{Generation: gen, CurrentTime: 60, DurationSeconds: 300})
	h.Session.Tick(ctx, time.Now())

	if got := store.rows["user-1/vid-0"].WatchTimeSeconds; got != 60 {
		t.Fatalf("expected 60s flushed through the remote mirror, got %d", got)
	}
}

// outageProgressStore fails the first N inserts, then recovers.
type outageProgressStore struct {
	*memProgressStore
	outages int
}

func (s *outageProgressStore) Insert(ctx context.Context, userID string, rec playback.Record) error {
	if s.outages > 0 {
		s.outages--
		return errors.New("progress store unavailable")
	}
	return s.memProgressStore.Insert(ctx, userID, rec)
}

func TestManager_RunCancelFlushesOpenSessions(t *testing.T) {
	store := &outageProgressStore{memProgressStore: newMemProgressStore(), outages: 1}
	m := NewManager(ManagerConfig{Store: store, TickInterval: time.Hour})
	h := openTestSession(t, m, "user-1")
	ctx := context.Background()

	h.Remote.MarkCapable()
	if err := h.Session.HandleEvent(ctx, playback.Event{Kind: playback.EventCapabilityReady}, time.Now()); err != nil {
		t.Fatalf("capability event: %v", err)
	}
	gen := h.Session.Snapshot().Generation
	if err := h.Session.HandleEvent(ctx, playback.Event{Generation: gen, Kind: playback.EventStateChanged, State: playback.StatePlaying}, time.Now()); err != nil {
		t.Fatalf("state event: %v", err)
	}
	h.Remote.ApplyStatus(StatusReport{Generation: gen, CurrentTime: 42, DurationSeconds: 300})

	// The periodic flush hits the store outage, leaving the ledger
	// ahead of the store.
	h.Session.Tick(ctx, time.Now())
	if _, ok := store.rows["user-1/vid-0"]; ok {
		t.Fatal("expected the tick flush to fail")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(runCtx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	if got := store.rows["user-1/vid-0"].WatchTimeSeconds; got != 42 {
		t.Fatalf("expected the shutdown flush to persist 42s, got %d", got)
	}
	if m.Len() != 0 {
		t.Fatalf("expected no open sessions after shutdown, got %d", m.Len())
	}
	if _, err := h.Session.Next(); !errors.Is(err, playback.ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}
