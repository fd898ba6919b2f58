package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/studytube/internal/playback"
)

var (
	testUser  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testVideo = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, testUser, testVideo); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec, err := s.Upsert(ctx, Record{
		UserID: testUser, VideoID: testVideo,
		WatchTimeSeconds: 60, DurationSeconds: 300, ClientTsMs: 1000,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.WatchTimeSeconds != 60 {
		t.Fatalf("want 60, got %d", rec.WatchTimeSeconds)
	}

	got, err := s.Get(ctx, testUser, testVideo)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WatchTimeSeconds != 60 || got.DurationSeconds != 300 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestMemoryStore_StaleWriteIgnored(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, Record{UserID: testUser, VideoID: testVideo, WatchTimeSeconds: 120, ClientTsMs: 2000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A delayed retry with an older client timestamp must not win.
	rec, err := s.Upsert(ctx, Record{UserID: testUser, VideoID: testVideo, WatchTimeSeconds: 30, ClientTsMs: 1000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.WatchTimeSeconds != 120 {
		t.Fatalf("stale write clobbered progress: got %d", rec.WatchTimeSeconds)
	}
}

func TestMemoryStore_WatchTimeNeverDecreases(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Upsert(ctx, Record{UserID: testUser, VideoID: testVideo, WatchTimeSeconds: 200, ClientTsMs: 1000}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A newer write with a smaller watch time (backwards seek) keeps the max.
	rec, err := s.Upsert(ctx, Record{UserID: testUser, VideoID: testVideo, WatchTimeSeconds: 50, ClientTsMs: 2000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.WatchTimeSeconds != 200 {
		t.Fatalf("want 200, got %d", rec.WatchTimeSeconds)
	}
}

func TestRecord_Percentage(t *testing.T) {
	cases := []struct {
		rec  Record
		want float64
	}{
		{Record{WatchTimeSeconds: 150, DurationSeconds: 300}, 50},
		{Record{WatchTimeSeconds: 10, DurationSeconds: 300, Completed: true}, 100},
		{Record{WatchTimeSeconds: 100, DurationSeconds: 0}, 0},
		{Record{WatchTimeSeconds: 500, DurationSeconds: 300}, 100},
		{Record{WatchTimeSeconds: -5, DurationSeconds: 300}, 0},
	}
	for i, tc := range cases {
		if got := tc.rec.Percentage(); got != tc.want {
			t.Fatalf("case %d: want %v, got %v", i, tc.want, got)
		}
	}
}

func TestMemoryStore_ListRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		if _, err := s.Upsert(ctx, Record{UserID: testUser, VideoID: ids[i], WatchTimeSeconds: 10 * (i + 1), ClientTsMs: int64(i)}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	recs, err := s.ListRecent(ctx, testUser, 2, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2, got %d", len(recs))
	}
	if recs[0].VideoID != ids[2] {
		t.Fatalf("expected most recent first, got %s", recs[0].VideoID)
	}

	cur := &Cursor{UpdatedAt: recs[1].UpdatedAt, VideoID: recs[1].VideoID}
	rest, err := s.ListRecent(ctx, testUser, 2, cur)
	if err != nil {
		t.Fatalf("list with cursor: %v", err)
	}
	if len(rest) != 1 || rest[0].VideoID != ids[0] {
		t.Fatalf("unexpected page: %+v", rest)
	}
}

func TestSessionAdapter_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	a := NewSessionAdapter(store)
	ctx := context.Background()

	ok, err := a.Exists(ctx, testUser.String(), testVideo.String())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("expected no row yet")
	}

	err = a.Insert(ctx, testUser.String(), playback.Record{
		VideoID:          testVideo.String(),
		WatchTimeSeconds: 45,
		DurationSeconds:  300,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err = a.Exists(ctx, testUser.String(), testVideo.String())
	if err != nil || !ok {
		t.Fatalf("expected row after insert: ok=%v err=%v", ok, err)
	}

	err = a.Update(ctx, testUser.String(), playback.Record{
		VideoID:          testVideo.String(),
		WatchTimeSeconds: 90,
		DurationSeconds:  300,
		Completed:        false,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := store.Get(ctx, testUser, testVideo)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.WatchTimeSeconds != 90 || rec.DurationSeconds != 300 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSessionAdapter_RejectsBadIDs(t *testing.T) {
	a := NewSessionAdapter(NewMemoryStore())
	if _, err := a.Exists(context.Background(), "not-a-uuid", testVideo.String()); err == nil {
		t.Fatal("expected error for malformed user id")
	}
	if err := a.Insert(context.Background(), testUser.String(), playback.Record{VideoID: "nope"}); err == nil {
		t.Fatal("expected error for malformed video id")
	}
}
