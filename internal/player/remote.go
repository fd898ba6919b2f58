// Package player bridges browser-embedded media players to server-side
// playback sessions. The browser owns the real player; the server keeps a
// RemotePlayer mirror per session, queues directives (load, seek) for the
// client to execute, and folds the client's generation-tagged status
// reports back into the session.
package player

import (
	"sync"
	"time"

	"github.com/example/studytube/internal/playback"
)

// DirectiveKind names a command queued for the browser player.
type DirectiveKind string

const (
	DirectiveLoad    DirectiveKind = "load"
	DirectiveSeek    DirectiveKind = "seek"
	DirectiveDestroy DirectiveKind = "destroy"
)

// Directive is one command for the client to execute, tagged with the
// load generation it belongs to. The client echoes the generation back
// on every event so the session can discard reports from handles it has
// already replaced.
type Directive struct {
	Kind       DirectiveKind `json:"kind"`
	ExternalID string        `json:"external_id,omitempty"`
	Generation uint64        `json:"generation"`
	Seconds    float64       `json:"seconds,omitempty"`
}

// StatusReport is the client's periodic playhead report.
type StatusReport struct {
	Generation      uint64  `json:"generation"`
	CurrentTime     float64 `json:"current_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	ReportedAt      time.Time
}

// statusTTL bounds how long a playhead report stays usable. A browser
// tab that stopped reporting must not keep feeding a frozen time into
// the progress ticks.
const statusTTL = 30 * time.Second

// RemotePlayer implements playback.Player over a directive queue. It is
// safe for concurrent use: the session goroutine calls the Player
// methods while HTTP handlers deliver client reports.
type RemotePlayer struct {
	mu sync.Mutex

	capable    bool
	generation uint64
	directives []Directive

	status    StatusReport
	hasStatus bool

	now func() time.Time
}

func NewRemotePlayer() *RemotePlayer {
	return &RemotePlayer{now: time.Now}
}

// Load queues a load directive under the given generation. Until the
// client has announced its player capability, loads are rejected with
// ErrPlayerNotReady so the sequencer defers them.
func (p *RemotePlayer) Load(externalID string, generation uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.capable {
		return playback.ErrPlayerNotReady
	}
	p.generation = generation
	p.hasStatus = false
	// Directives for the superseded handle are pointless now.
	p.directives = p.directives[:0]
	p.directives = append(p.directives, Directive{
		Kind:       DirectiveLoad,
		ExternalID: externalID,
		Generation: generation,
	})
	return nil
}

// SeekTo queues a seek against the current handle.
func (p *RemotePlayer) SeekTo(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.directives = append(p.directives, Directive{
		Kind:       DirectiveSeek,
		Generation: p.generation,
		Seconds:    seconds,
	})
	return nil
}

// CurrentTime returns the client's last reported playhead, if it belongs
// to the current handle and is fresh enough.
func (p *RemotePlayer) CurrentTime() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.statusUsable() {
		return 0, false
	}
	return p.status.CurrentTime, true
}

// Duration returns the client-reported duration for the current handle.
func (p *RemotePlayer) Duration() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.statusUsable() || p.status.DurationSeconds <= 0 {
		return 0, false
	}
	return p.status.DurationSeconds, true
}

func (p *RemotePlayer) statusUsable() bool {
	if !p.hasStatus || p.status.Generation != p.generation {
		return false
	}
	return p.now().Sub(p.status.ReportedAt) <= statusTTL
}

// Destroy queues a final teardown directive for the client.
func (p *RemotePlayer) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasStatus = false
	p.directives = append(p.directives, Directive{
		Kind:       DirectiveDestroy,
		Generation: p.generation,
	})
}

// MarkCapable records that the client's player capability finished
// initializing. Called once per session before any load can succeed.
func (p *RemotePlayer) MarkCapable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capable = true
}

// ApplyStatus folds a client playhead report into the mirror. Reports
// tagged with a superseded generation are dropped.
func (p *RemotePlayer) ApplyStatus(rep StatusReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rep.Generation != p.generation {
		return
	}
	if rep.ReportedAt.IsZero() {
		rep.ReportedAt = p.now()
	}
	p.status = rep
	p.hasStatus = true
}

// Drain returns the queued directives and clears the queue. The client
// polls this after every report.
func (p *RemotePlayer) Drain() []Directive {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.directives) == 0 {
		return nil
	}
	out := make([]Directive, len(p.directives))
	copy(out, p.directives)
	p.directives = p.directives[:0]
	return out
}
