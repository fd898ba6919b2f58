package playback

import "errors"

// ErrPlayerNotReady is returned by Player.Load while the underlying
// player capability has not finished initializing. It is a transient
// condition, not a fault: the sequencer defers the load and retries when
// the capability-ready signal arrives.
var ErrPlayerNotReady = errors.New("playback: player capability not ready")

// PlayerState mirrors the state values reported by the embedded player.
type PlayerState int

const (
	StateUnstarted PlayerState = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateEnded
)

func (s PlayerState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	default:
		return "unstarted"
	}
}

// EventKind enumerates the logical player events the sequencer reacts to.
type EventKind int

const (
	// EventCapabilityReady signals that the underlying player capability
	// finished initializing. It is global to the session, not tied to a
	// load generation.
	EventCapabilityReady EventKind = iota
	// EventReady fires when a loaded video becomes playable.
	EventReady
	EventStateChanged
	EventEnded
)

// Event is a player notification tagged with the load generation that
// produced it. Events whose generation is older than the session's
// current one come from a destroyed handle and are discarded.
type Event struct {
	Generation uint64
	Kind       EventKind
	State      PlayerState
}

// Player abstracts one embedded media player bound to a session.
//
// The generation argument to Load identifies the handle: exactly one
// handle is alive at a time, and Load releases the previous one before
// binding the new video. Time queries return ok=false until the handle
// reaches a ready state; callers treat that as a legitimate transient
// condition and skip the tick rather than erroring.
type Player interface {
	Load(externalID string, generation uint64) error
	CurrentTime() (seconds float64, ok bool)
	Duration() (seconds float64, ok bool)
	SeekTo(seconds float64) error
	Destroy()
}
