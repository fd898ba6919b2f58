package playback

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("playback: session closed")
	// ErrNoActiveVideo is returned by video-targeted operations when the
	// queue has no active entry.
	ErrNoActiveVideo = errors.New("playback: no active video")
	// ErrVideoNotInQueue is returned when an explicit video id does not
	// belong to the session queue.
	ErrVideoNotInQueue = errors.New("playback: video not in queue")
)

// SessionConfig assembles a Session.
type SessionConfig struct {
	SessionID  string
	UserID     string
	PlaylistID string
	// Videos in canonical order.
	Videos []VideoRef
	// Seed holds the persisted progress records for this user+playlist.
	Seed  []Record
	Store ProgressStore
	// Player is the single adapter handle owner for this session.
	Player    Player
	Sequencer SequencerConfig
	// StartIndex selects the initial video (clamped into range).
	StartIndex int
	// Rand drives shuffles; defaults to a time-seeded source.
	Rand *rand.Rand
	Log  *zap.Logger
}

// Session is one open player view: it owns the queue, the ledger, the
// synchronizer, the sequencer and the single player handle, and it
// serializes every mutation. External callers (HTTP handlers, tickers)
// may call it from any goroutine; internally everything runs under one
// lock, which is the Go rendition of the single-threaded event loop the
// progress machine assumes.
type Session struct {
	ID         string
	UserID     string
	PlaylistID string

	mu     sync.Mutex
	ledger *Ledger
	syncer *Syncer
	seq    *Sequencer
	player Player
	rng    *rand.Rand
	log    *zap.Logger

	lastActive time.Time
	closed     bool
}

// NewSession seeds the ledger, builds the queue in canonical order and
// loads the starting video.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ledger := NewLedger()
	durations := make(map[string]int, len(cfg.Videos))
	for _, v := range cfg.Videos {
		durations[v.ID] = v.DurationSeconds
	}
	ledger.Seed(cfg.Seed, durations)

	syncer := NewSyncer(cfg.Store, ledger, cfg.UserID, cfg.Log)
	queue := NewQueue(cfg.Videos)
	cfg.Sequencer.Log = cfg.Log
	seq := NewSequencer(queue, ledger, syncer, cfg.Player, cfg.Sequencer)

	s := &Session{
		ID:         cfg.SessionID,
		UserID:     cfg.UserID,
		PlaylistID: cfg.PlaylistID,
		ledger:     ledger,
		syncer:     syncer,
		seq:        seq,
		player:     cfg.Player,
		rng:        cfg.Rand,
		log:        cfg.Log,
		lastActive: time.Now(),
	}
	if err := seq.Start(cfg.StartIndex); err != nil {
		return nil, err
	}
	return s, nil
}

// HandleEvent feeds one player event into the sequencer.
func (s *Session) HandleEvent(ctx context.Context, ev Event, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.lastActive = now
	s.seq.HandleEvent(ctx, ev, now)
	return nil
}

// Tick drives the periodic flush and any pending auto-advance.
func (s *Session) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq.Tick(ctx, now)
}

// Next advances to the following video; false means the playlist is
// complete and nothing changed.
func (s *Session) Next() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	return s.seq.Next()
}

// Previous moves back one video; false means already at the start.
func (s *Session) Previous() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	return s.seq.Previous()
}

// ToggleShuffle flips the session order between shuffled and canonical.
func (s *Session) ToggleShuffle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.seq.ToggleShuffle(s.rng)
	return nil
}

// Move applies a drag-and-drop reorder to the session queue.
func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.seq.Move(from, to)
}

// SetAutoplay flips advance-on-end.
func (s *Session) SetAutoplay(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.seq.SetAutoplay(on)
	return nil
}

// ToggleComplete is the manual mark-complete button for the given video
// (or the active one when videoID is empty). It is user-initiated, so
// the flush error surfaces.
func (s *Session) ToggleComplete(ctx context.Context, videoID string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrSessionClosed
	}

	var target VideoRef
	if videoID == "" {
		v, ok := s.seq.Current()
		if !ok {
			return Record{}, ErrNoActiveVideo
		}
		target = v
	} else {
		i := s.seq.Queue().IndexOf(videoID)
		if i < 0 {
			return Record{}, ErrVideoNotInQueue
		}
		target, _ = s.seq.Queue().At(i)
	}

	rec := s.ledger.ToggleComplete(target.ID, target.DurationSeconds, now)
	if err := s.syncer.Flush(ctx, target.ID); err != nil {
		return rec, err
	}
	return rec, nil
}

// SaveNow flushes the active video's progress. User-initiated: the
// caller gets the error so the UI can tell the user to retry.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	v, ok := s.seq.Current()
	if !ok {
		return ErrNoActiveVideo
	}
	return s.syncer.Flush(ctx, v.ID)
}

// Progress reads the ledger entry for one video. Never fails; unknown
// videos read as 0%.
func (s *Session) Progress(videoID string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(videoID)
}

// Touch records client contact without any state change, e.g. a bare
// playhead report. Keeps the idle reaper away from live sessions.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActive) {
		s.lastActive = now
	}
}

// LastActive reports when the session last saw a user or player event.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close flushes the active video and destroys the player handle. Safe to
// call more than once; every exit path of the owning view ends here.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if v, ok := s.seq.Current(); ok {
		s.syncer.TickFlush(ctx, v.ID)
	}
	s.player.Destroy()
}

// QueueItem is one row of a session snapshot.
type QueueItem struct {
	VideoRef
	Percentage float64
	Completed  bool
	Active     bool
}

// Snapshot is the read model the API returns after every session call.
type Snapshot struct {
	SessionID  string
	PlaylistID string
	Phase      Phase
	Index      int
	Generation uint64
	Playing    bool
	Autoplay   bool
	Shuffled   bool
	Items      []QueueItem
}

// Snapshot renders the session state for the API layer.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.seq.Queue().Items()
	out := Snapshot{
		SessionID:  s.ID,
		PlaylistID: s.PlaylistID,
		Phase:      s.seq.Phase(),
		Index:      s.seq.Index(),
		Generation: s.seq.Generation(),
		Playing:    s.seq.Playing(),
		Autoplay:   s.seq.Autoplay(),
		Shuffled:   s.seq.Queue().Shuffled(),
		Items:      make([]QueueItem, 0, len(items)),
	}
	for i, v := range items {
		rec := s.ledger.Get(v.ID)
		out.Items = append(out.Items, QueueItem{
			VideoRef:   v,
			Percentage: rec.Percentage,
			Completed:  rec.Completed,
			Active:     i == out.Index,
		})
	}
	return out
}
