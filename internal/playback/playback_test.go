package playback

import (
	"context"
	"fmt"
	"time"
)

// fakePlayer records every call so tests can assert on load generations,
// seeks and teardown.
type fakePlayer struct {
	capabilityDown bool
	loadErr        error

	loadedExternalID string
	loadedGeneration uint64
	loadCount        int

	currentTime float64
	duration    float64
	hasTime     bool

	seeks     []float64
	destroyed int
}

func (p *fakePlayer) Load(externalID string, generation uint64) error {
	if p.capabilityDown {
		return ErrPlayerNotReady
	}
	if p.loadErr != nil {
		return p.loadErr
	}
	p.loadedExternalID = externalID
	p.loadedGeneration = generation
	p.loadCount++
	return nil
}

func (p *fakePlayer) CurrentTime() (float64, bool) { return p.currentTime, p.hasTime }
func (p *fakePlayer) Duration() (float64, bool)    { return p.duration, p.duration > 0 }
func (p *fakePlayer) SeekTo(seconds float64) error {
	p.seeks = append(p.seeks, seconds)
	return nil
}
func (p *fakePlayer) Destroy() { p.destroyed++ }

// fakeStore is an in-memory ProgressStore with call counters and
// injectable failures.
type fakeStore struct {
	rows map[string]Record

	existsCalls int
	inserts     int
	updates     int

	existsErr error
	writeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]Record)}
}

func storeKey(userID, videoID string) string {
	return fmt.Sprintf("%s/%s", userID, videoID)
}

func (s *fakeStore) Exists(_ context.Context, userID, videoID string) (bool, error) {
	s.existsCalls++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.rows[storeKey(userID, videoID)]
	return ok, nil
}

func (s *fakeStore) Insert(_ context.Context, userID string, rec Record) error {
	s.inserts++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.rows[storeKey(userID, rec.VideoID)] = rec
	return nil
}

func (s *fakeStore) Update(_ context.Context, userID string, rec Record) error {
	s.updates++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.rows[storeKey(userID, rec.VideoID)] = rec
	return nil
}

func testVideos(n int) []VideoRef {
	out := make([]VideoRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, VideoRef{
			ID:              fmt.Sprintf("vid-%d", i),
			ExternalID:      fmt.Sprintf("yt-%d", i),
			Title:           fmt.Sprintf("Lesson %d", i+1),
			DurationSeconds: 300,
			Position:        i,
		})
	}
	return out
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
