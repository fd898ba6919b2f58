package playback

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Phase is the sequencer's lifecycle state.
type Phase int

const (
	// PhaseIdle: no playlist loaded.
	PhaseIdle Phase = iota
	// PhaseLoading: waiting for the player capability or a deferred load.
	PhaseLoading
	// PhaseReady: a video is current and loaded into the player.
	PhaseReady
	// PhaseAutoAdvancing: a video just ended with autoplay on; the
	// sequencer advances once the grace delay elapses.
	PhaseAutoAdvancing
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseAutoAdvancing:
		return "auto_advancing"
	default:
		return "idle"
	}
}

const (
	defaultGraceDelay       = 2 * time.Second
	defaultResumeMinSeconds = 5
)

// SequencerConfig tunes a Sequencer. Zero values get defaults.
type SequencerConfig struct {
	Autoplay         bool
	GraceDelay       time.Duration
	ResumeMinSeconds int
	Log              *zap.Logger
}

// Sequencer owns which video is current and every transition between
// videos: next/previous, advance-on-end, shuffle, resume-from-offset.
// It is driven by player events and periodic ticks, all arriving on the
// session's single thread of control.
type Sequencer struct {
	queue  *Queue
	ledger *Ledger
	syncer *Syncer
	player Player
	log    *zap.Logger

	phase      Phase
	index      int
	generation uint64

	autoplay   bool
	graceDelay time.Duration
	resumeMin  int

	// resumeSeeked is the one-shot guard: at most one resume seek per
	// load, so a second ready event (e.g. a quality change) cannot fight
	// a user-initiated scrub.
	resumeSeeked bool
	capabilityUp bool
	pendingLoad  bool
	playing      bool
	advanceAt    time.Time
}

func NewSequencer(queue *Queue, ledger *Ledger, syncer *Syncer, player Player, cfg SequencerConfig) *Sequencer {
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = defaultGraceDelay
	}
	if cfg.ResumeMinSeconds <= 0 {
		cfg.ResumeMinSeconds = defaultResumeMinSeconds
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Sequencer{
		queue:      queue,
		ledger:     ledger,
		syncer:     syncer,
		player:     player,
		log:        cfg.Log,
		phase:      PhaseIdle,
		autoplay:   cfg.Autoplay,
		graceDelay: cfg.GraceDelay,
		resumeMin:  cfg.ResumeMinSeconds,
	}
}

func (s *Sequencer) Phase() Phase        { return s.phase }
func (s *Sequencer) Index() int          { return s.index }
func (s *Sequencer) Generation() uint64  { return s.generation }
func (s *Sequencer) Playing() bool       { return s.playing }
func (s *Sequencer) Autoplay() bool      { return s.autoplay }
func (s *Sequencer) SetAutoplay(on bool) { s.autoplay = on }
func (s *Sequencer) Queue() *Queue       { return s.queue }

// Current returns the active video.
func (s *Sequencer) Current() (VideoRef, bool) {
	return s.queue.At(s.index)
}

// Start loads the video at startIndex (clamped into range) and leaves
// the sequencer Ready, or Loading if the player capability is not up yet.
func (s *Sequencer) Start(startIndex int) error {
	if s.queue.Len() == 0 {
		s.phase = PhaseIdle
		return errors.New("playback: empty queue")
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= s.queue.Len() {
		startIndex = s.queue.Len() - 1
	}
	s.index = startIndex
	s.phase = PhaseLoading
	return s.loadCurrent()
}

// loadCurrent binds the player to the active video under a fresh load
// generation. A not-ready capability defers the load instead of failing.
func (s *Sequencer) loadCurrent() error {
	v, ok := s.queue.At(s.index)
	if !ok {
		return errors.New("playback: active index out of range")
	}
	s.generation++
	s.resumeSeeked = false
	s.playing = false
	s.advanceAt = time.Time{}

	if err := s.player.Load(v.ExternalID, s.generation); err != nil {
		if errors.Is(err, ErrPlayerNotReady) {
			s.log.Debug("player not ready, deferring load",
				zap.String("video_id", v.ID), zap.Uint64("generation", s.generation))
			s.pendingLoad = true
			s.phase = PhaseLoading
			return nil
		}
		return err
	}
	s.pendingLoad = false
	s.phase = PhaseReady
	return nil
}

// Next advances to the following video. At the end of the queue it is a
// no-op and reports false ("playlist complete"); it never wraps around.
// On a hard load failure the index is restored so the caller is not
// stranded on a blank slot.
func (s *Sequencer) Next() (bool, error) {
	if s.index >= s.queue.Len()-1 {
		return false, nil
	}
	prev := s.index
	s.index++
	if err := s.loadCurrent(); err != nil {
		s.index = prev
		s.phase = PhaseReady
		return false, err
	}
	return true, nil
}

// Previous moves back one video; a no-op at index 0.
func (s *Sequencer) Previous() (bool, error) {
	if s.index <= 0 {
		return false, nil
	}
	prev := s.index
	s.index--
	if err := s.loadCurrent(); err != nil {
		s.index = prev
		s.phase = PhaseReady
		return false, err
	}
	return true, nil
}

// HandleEvent applies one player event. Events tagged with a superseded
// load generation come from a destroyed handle and are dropped.
func (s *Sequencer) HandleEvent(ctx context.Context, ev Event, now time.Time) {
	if ev.Kind == EventCapabilityReady {
		s.capabilityUp = true
		if s.pendingLoad {
			if err := s.loadCurrent(); err != nil {
				s.log.Warn("deferred load failed", zap.Error(err))
			}
		}
		return
	}
	if ev.Generation != s.generation {
		s.log.Debug("dropping stale player event",
			zap.Uint64("event_generation", ev.Generation),
			zap.Uint64("current_generation", s.generation))
		return
	}

	switch ev.Kind {
	case EventReady:
		if s.phase == PhaseLoading {
			s.phase = PhaseReady
		}
		s.maybeResumeSeek()
	case EventStateChanged:
		s.playing = ev.State == StatePlaying
	case EventEnded:
		s.handleEnded(ctx, now)
	}
}

// maybeResumeSeek issues the one-shot resume-from-offset seek: only on
// the first ready event of a load, only when the stored progress is
// worth resuming, and never for an already-completed video.
func (s *Sequencer) maybeResumeSeek() {
	if s.resumeSeeked {
		return
	}
	s.resumeSeeked = true

	v, ok := s.queue.At(s.index)
	if !ok {
		return
	}
	rec := s.ledger.Get(v.ID)
	if rec.Completed || rec.WatchTimeSeconds < s.resumeMin {
		return
	}
	if err := s.player.SeekTo(float64(rec.WatchTimeSeconds)); err != nil {
		s.log.Warn("resume seek failed", zap.String("video_id", v.ID), zap.Error(err))
	}
}

// handleEnded always marks the finished video complete, regardless of
// the autoplay setting, and flushes the completion immediately so an
// in-flight smaller tick cannot undercut it. With autoplay on and a next
// video available it schedules the advance after the grace delay.
func (s *Sequencer) handleEnded(ctx context.Context, now time.Time) {
	v, ok := s.queue.At(s.index)
	if !ok {
		return
	}
	s.playing = false
	s.ledger.SetCompleted(v.ID, v.DurationSeconds, now)
	s.syncer.TickFlush(ctx, v.ID)

	if s.autoplay && s.index < s.queue.Len()-1 {
		s.phase = PhaseAutoAdvancing
		s.advanceAt = now.Add(s.graceDelay)
	}
}

// Tick drives time-based behavior: the pending auto-advance, and the
// periodic progress update + flush while playing. The player's time
// being unavailable is a legitimate transient state and skips the tick.
func (s *Sequencer) Tick(ctx context.Context, now time.Time) {
	if s.phase == PhaseAutoAdvancing && !s.advanceAt.IsZero() && !now.Before(s.advanceAt) {
		s.advanceAt = time.Time{}
		s.phase = PhaseReady
		if _, err := s.Next(); err != nil {
			s.log.Warn("auto-advance failed", zap.Error(err))
		}
		return
	}

	if !s.playing {
		return
	}
	v, ok := s.queue.At(s.index)
	if !ok {
		return
	}
	t, ok := s.player.CurrentTime()
	if !ok {
		return
	}
	dur := v.DurationSeconds
	if d, ok := s.player.Duration(); ok && d > 0 {
		dur = int(d)
	}
	s.ledger.Update(v.ID, int(t), dur, now)
	s.syncer.TickFlush(ctx, v.ID)
}

// ToggleShuffle flips between the shuffled session order and the exact
// canonical order. The active video keeps its identity: its index is
// recomputed in the new order, never reset to 0.
func (s *Sequencer) ToggleShuffle(rng *rand.Rand) {
	v, ok := s.queue.At(s.index)
	if s.queue.Shuffled() {
		s.queue.Restore()
	} else {
		s.queue.Shuffle(rng)
	}
	if ok {
		if i := s.queue.IndexOf(v.ID); i >= 0 {
			s.index = i
		}
	}
}

// Move applies a drag-and-drop reorder to the session queue, keeping the
// active video's identity.
func (s *Sequencer) Move(from, to int) error {
	v, ok := s.queue.At(s.index)
	if err := s.queue.Move(from, to); err != nil {
		return err
	}
	if ok {
		if i := s.queue.IndexOf(v.ID); i >= 0 {
			s.index = i
		}
	}
	return nil
}
