package playback

import (
	"context"
	"errors"
	"testing"
)

func newTestSyncer(store ProgressStore) (*Syncer, *Ledger) {
	l := NewLedger()
	return NewSyncer(store, l, "user-1", nil), l
}

func TestSyncer_FirstFlushInserts(t *testing.T) {
	store := newFakeStore()
	s, l := newTestSyncer(store)
	l.Update("vid-0", 42, 300, testNow)

	if err := s.Flush(context.Background(), "vid-0"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if store.existsCalls != 1 || store.inserts != 1 || store.updates != 0 {
		t.Fatalf("want 1 exists / 1 insert / 0 updates, got %d/%d/%d",
			store.existsCalls, store.inserts, store.updates)
	}
	got := store.rows[storeKey("user-1", "vid-0")]
	if got.WatchTimeSeconds != 42 {
		t.Fatalf("persisted watch time: want 42, got %d", got.WatchTimeSeconds)
	}
}

func TestSyncer_LaterFlushesSkipExistenceCheck(t *testing.T) {
	store := newFakeStore()
	s, l := newTestSyncer(store)
	l.Update("vid-0", 10, 300, testNow)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Flush(ctx, "vid-0"); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
	if store.existsCalls != 1 {
		t.Fatalf("expected exactly one existence check, got %d", store.existsCalls)
	}
	if store.inserts != 1 || store.updates != 2 {
		t.Fatalf("want 1 insert / 2 updates, got %d/%d", store.inserts, store.updates)
	}
}

func TestSyncer_SeededVideoGoesStraightToUpdate(t *testing.T) {
	store := newFakeStore()
	store.rows[storeKey("user-1", "vid-0")] = Record{VideoID: "vid-0", WatchTimeSeconds: 60}

	l := NewLedger()
	l.Seed([]Record{{VideoID: "vid-0", WatchTimeSeconds: 60}}, map[string]int{"vid-0": 300})
	s := NewSyncer(store, l, "user-1", nil)

	l.Update("vid-0", 90, 300, testNow)
	if err := s.Flush(context.Background(), "vid-0"); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if store.existsCalls != 0 {
		t.Fatalf("expected no existence check for seeded video, got %d", store.existsCalls)
	}
	if store.updates != 1 {
		t.Fatalf("expected one update, got %d", store.updates)
	}
}

func TestSyncer_FlushSurfacesErrors(t *testing.T) {
	store := newFakeStore()
	store.existsErr = errors.New("pg down")
	s, l := newTestSyncer(store)
	l.Update("vid-0", 10, 300, testNow)

	if err := s.Flush(context.Background(), "vid-0"); err == nil {
		t.Fatal("expected existence check error to surface")
	}
	if l.Known("vid-0") {
		t.Fatal("failed flush must not mark the row identity resolved")
	}
}

func TestSyncer_TickFlushSkipsBelowThreshold(t *testing.T) {
	store := newFakeStore()
	s, l := newTestSyncer(store)
	l.Update("vid-0", 2, 300, testNow)

	s.TickFlush(context.Background(), "vid-0")
	if store.existsCalls != 0 || store.inserts != 0 || store.updates != 0 {
		t.Fatalf("expected no store calls below threshold, got %d/%d/%d",
			store.existsCalls, store.inserts, store.updates)
	}
}

func TestSyncer_TickFlushWritesCompletedRegardlessOfWatchTime(t *testing.T) {
	store := newFakeStore()
	s, l := newTestSyncer(store)
	l.ToggleComplete("vid-0", 0, testNow) // unknown duration: watch time stays 0

	s.TickFlush(context.Background(), "vid-0")
	if store.inserts != 1 {
		t.Fatalf("expected completed record persisted, got %d inserts", store.inserts)
	}
}

func TestSyncer_TickFlushSwallowsFailures(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("pg down")
	s, l := newTestSyncer(store)
	l.Update("vid-0", 50, 300, testNow)

	// Must not panic and must not poison later flushes.
	s.TickFlush(context.Background(), "vid-0")

	store.writeErr = nil
	if err := s.Flush(context.Background(), "vid-0"); err != nil {
		t.Fatalf("flush after recovery: %v", err)
	}
	if got := store.rows[storeKey("user-1", "vid-0")].WatchTimeSeconds; got != 50 {
		t.Fatalf("expected retried flush to persist 50, got %d", got)
	}
}

func TestSyncer_LedgerStaysAuthoritativeOnFailure(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("pg down")
	s, l := newTestSyncer(store)
	l.Update("vid-0", 150, 300, testNow)

	s.TickFlush(context.Background(), "vid-0")
	if got := l.Get("vid-0"); got.WatchTimeSeconds != 150 || got.Percentage != 50 {
		t.Fatalf("ledger must keep serving latest value after failed flush, got %+v", got)
	}
}
