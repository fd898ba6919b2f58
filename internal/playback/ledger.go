package playback

import "time"

// Record is one (user, video) progress entry as the session sees it.
// Percentage and Completed are always consistent with the deriver.
type Record struct {
	VideoID          string
	WatchTimeSeconds int
	DurationSeconds  int
	Completed        bool
	Percentage       float64
	LastWatchedAt    time.Time
}

// Ledger is the in-memory, authoritative-for-display map of video
// progress for one session. It is seeded once from the store when the
// playlist opens and mutated only from the session's thread of control.
// Persistence failures never show up here; the synchronizer retries them
// while the ledger keeps serving the latest value.
type Ledger struct {
	records map[string]Record
	// known marks videos whose store row identity has been resolved,
	// so the synchronizer can skip the existence check on later flushes.
	known map[string]bool
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]Record),
		known:   make(map[string]bool),
	}
}

// Seed installs records loaded from the store. Seeded videos are marked
// as known: a row exists for them, so flushes go straight to update.
func (l *Ledger) Seed(recs []Record, durations map[string]int) {
	for _, r := range recs {
		r.DurationSeconds = durations[r.VideoID]
		d := Derive(r.WatchTimeSeconds, r.DurationSeconds, r.Completed)
		r.Percentage = d.Percentage
		r.Completed = d.Completed
		l.records[r.VideoID] = r
		l.known[r.VideoID] = true
	}
}

// Get never fails: a video without a record yields a zero record so the
// caller can render "0% watched" for never-touched videos.
func (l *Ledger) Get(videoID string) Record {
	if r, ok := l.records[videoID]; ok {
		return r
	}
	return Record{VideoID: videoID}
}

// Update merges a new watch time into the record and recomputes the
// derived fields. Watch time only moves forward: a smaller value (a
// backwards seek, or a stale tick racing a mark-complete) never undercuts
// the stored one.
func (l *Ledger) Update(videoID string, watchTimeSeconds, durationSeconds int, now time.Time) Record {
	r := l.Get(videoID)
	if watchTimeSeconds > r.WatchTimeSeconds {
		r.WatchTimeSeconds = watchTimeSeconds
	}
	if durationSeconds > 0 {
		r.DurationSeconds = durationSeconds
	}
	r.LastWatchedAt = now
	d := Derive(r.WatchTimeSeconds, durationSeconds, r.Completed)
	r.Percentage = d.Percentage
	r.Completed = d.Completed
	l.records[videoID] = r
	return r
}

// SetCompleted force-marks a video complete, snapping watch time to the
// full duration so the percentage reads 100 immediately. Idempotent;
// used by the video-ended path.
func (l *Ledger) SetCompleted(videoID string, durationSeconds int, now time.Time) Record {
	r := l.Get(videoID)
	r.Completed = true
	if durationSeconds > 0 {
		r.DurationSeconds = durationSeconds
		if r.WatchTimeSeconds < durationSeconds {
			r.WatchTimeSeconds = durationSeconds
		}
	}
	r.LastWatchedAt = now
	d := Derive(r.WatchTimeSeconds, durationSeconds, true)
	r.Percentage = d.Percentage
	l.records[videoID] = r
	return r
}

// ToggleComplete implements the manual mark-complete button: completing
// an incomplete video snaps watch time to the full duration; completing
// an already-complete one marks it incomplete again, preserving the
// watch time (boolean-only toggle).
func (l *Ledger) ToggleComplete(videoID string, durationSeconds int, now time.Time) Record {
	r := l.Get(videoID)
	if r.Completed {
		r.Completed = false
		if durationSeconds > 0 {
			r.DurationSeconds = durationSeconds
		}
		r.LastWatchedAt = now
		d := Derive(r.WatchTimeSeconds, durationSeconds, false)
		r.Percentage = d.Percentage
		l.records[videoID] = r
		return r
	}
	return l.SetCompleted(videoID, durationSeconds, now)
}

// Known reports whether the store row identity for videoID has been
// resolved this session.
func (l *Ledger) Known(videoID string) bool { return l.known[videoID] }

// SetKnown records that a store row exists for videoID.
func (l *Ledger) SetKnown(videoID string) { l.known[videoID] = true }

// Records returns a copy of all entries, for snapshots.
func (l *Ledger) Records() []Record {
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	return out
}
