// Package playback implements the per-session video progress state machine:
// an in-memory progress ledger reconciled against persisted records, a
// persistence synchronizer, and a playback sequencer over an orderable
// queue. All mutation happens on the owning session's single logical
// thread of control; none of these types are safe for concurrent use.
package playback

// Derived is the display form of a progress record.
type Derived struct {
	Percentage float64
	Completed  bool
}

// Derive computes the watched percentage and completion flag for a video.
// It never fails: a completed record always reads 100%, a non-positive
// duration reads 0% (guards divide-by-zero), and negative watch time is
// treated as 0. The percentage is clamped to [0, 100].
func Derive(watchTimeSeconds, durationSeconds int, completed bool) Derived {
	if completed {
		return Derived{Percentage: 100, Completed: true}
	}
	if durationSeconds <= 0 {
		return Derived{Percentage: 0, Completed: false}
	}
	if watchTimeSeconds < 0 {
		watchTimeSeconds = 0
	}
	pct := float64(watchTimeSeconds) / float64(durationSeconds) * 100
	if pct > 100 {
		pct = 100
	}
	return Derived{Percentage: pct, Completed: false}
}
