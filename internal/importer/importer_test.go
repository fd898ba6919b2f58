package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/catalog"
)

type fakeFetcher struct {
	meta   PlaylistMeta
	videos []catalog.VideoInput
	err    error
	calls  int
}

func (f *fakeFetcher) FetchPlaylist(_ context.Context, playlistID string) (PlaylistMeta, []catalog.VideoInput, error) {
	f.calls++
	if f.err != nil {
		return PlaylistMeta{}, nil, f.err
	}
	meta := f.meta
	meta.ExternalID = playlistID
	return meta, f.videos, nil
}

func courseInputs() []catalog.VideoInput {
	return []catalog.VideoInput{
		{ExternalID: "yt-a", Title: "Intro", DurationSeconds: 300, Position: 0},
		{ExternalID: "yt-b", Title: "Basics", DurationSeconds: 600, Position: 1},
		{ExternalID: "yt-c", Title: "Advanced", DurationSeconds: 900, Position: 2},
	}
}

func TestResolvePlaylistID(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/playlist?list=PLabc123def456ghi", "PLabc123def456ghi", false},
		{"https://youtube.com/watch?v=xyz&list=PLabc123def456ghi", "PLabc123def456ghi", false},
		{"PLabc123def456ghi", "PLabc123def456ghi", false},
		{"https://www.youtube.com/watch?v=xyz", "", true},
		{"not a url at all", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ResolvePlaylistID(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidPlaylistURL) {
				t.Fatalf("ResolvePlaylistID(%q) err = %v, want ErrInvalidPlaylistURL", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ResolvePlaylistID(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ResolvePlaylistID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestImportPlaylist_UpsertsVideosInOrder(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	pl, err := store.CreatePlaylist(ctx, catalog.CreatePlaylistParams{
		OwnerID:   ownerID,
		Title:     "Go course",
		SourceURL: "https://www.youtube.com/playlist?list=PLabc123def456ghi",
	})
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}

	im := &Importer{
		Catalog: store,
		Fetcher: &fakeFetcher{videos: courseInputs()},
		Log:     zap.NewNop(),
	}
	job := Job{PlaylistID: pl.ID, OwnerID: ownerID, SourceURL: pl.SourceURL}
	if err := im.ImportPlaylist(ctx, job); err != nil {
		t.Fatalf("import: %v", err)
	}

	videos, err := store.ListVideos(ctx, pl.ID)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("len(videos) = %d, want 3", len(videos))
	}
	for i, want := range []string{"yt-a", "yt-b", "yt-c"} {
		if videos[i].ExternalID != want || videos[i].Position != i {
			t.Fatalf("videos[%d] = %s at %d, want %s at %d", i, videos[i].ExternalID, videos[i].Position, want, i)
		}
	}
}

func TestImportPlaylist_ReimportKeepsVideoIDs(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	pl, _ := store.CreatePlaylist(ctx, catalog.CreatePlaylistParams{
		OwnerID:   ownerID,
		Title:     "Go course",
		SourceURL: "PLabc123def456ghi",
	})

	fetcher := &fakeFetcher{videos: courseInputs()}
	im := &Importer{Catalog: store, Fetcher: fetcher, Log: zap.NewNop()}
	job := Job{PlaylistID: pl.ID, OwnerID: ownerID, SourceURL: pl.SourceURL}

	if err := im.ImportPlaylist(ctx, job); err != nil {
		t.Fatalf("first import: %v", err)
	}
	before, _ := store.ListVideos(ctx, pl.ID)

	// Second import: one new video appended, titles refreshed.
	fetcher.videos = append(courseInputs(), catalog.VideoInput{
		ExternalID: "yt-d", Title: "Bonus", DurationSeconds: 120, Position: 3,
	})
	fetcher.videos[0].Title = "Intro (remastered)"
	if err := im.ImportPlaylist(ctx, job); err != nil {
		t.Fatalf("second import: %v", err)
	}

	after, _ := store.ListVideos(ctx, pl.ID)
	if len(after) != 4 {
		t.Fatalf("len(after) = %d, want 4", len(after))
	}
	if after[0].ID != before[0].ID {
		t.Fatal("re-import changed an existing video's ID")
	}
	if after[0].Title != "Intro (remastered)" {
		t.Fatalf("title = %q, want refreshed title", after[0].Title)
	}
	if after[3].ExternalID != "yt-d" {
		t.Fatalf("appended video = %s, want yt-d", after[3].ExternalID)
	}
}

func TestImportPlaylist_FillsBlankTitleFromYouTube(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	pl, _ := store.CreatePlaylist(ctx, catalog.CreatePlaylistParams{
		OwnerID:   ownerID,
		SourceURL: "PLabc123def456ghi",
	})

	im := &Importer{
		Catalog: store,
		Fetcher: &fakeFetcher{
			meta:   PlaylistMeta{Title: "Ultimate Go", Description: "From YouTube"},
			videos: courseInputs(),
		},
		Log: zap.NewNop(),
	}
	job := Job{PlaylistID: pl.ID, OwnerID: ownerID, SourceURL: pl.SourceURL}
	if err := im.ImportPlaylist(ctx, job); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, _ := store.GetPlaylist(ctx, pl.ID)
	if got.Title != "Ultimate Go" || got.Description != "From YouTube" {
		t.Fatalf("playlist meta = %q / %q, want YouTube meta", got.Title, got.Description)
	}
}

func TestImportPlaylist_KeepsUserTitle(t *testing.T) {
	store := catalog.NewMemoryStore()
	ctx := context.Background()
	ownerID := uuid.New()

	pl, _ := store.CreatePlaylist(ctx, catalog.CreatePlaylistParams{
		OwnerID:   ownerID,
		Title:     "My custom name",
		SourceURL: "PLabc123def456ghi",
	})

	im := &Importer{
		Catalog: store,
		Fetcher: &fakeFetcher{meta: PlaylistMeta{Title: "Ultimate Go"}, videos: courseInputs()},
		Log:     zap.NewNop(),
	}
	job := Job{PlaylistID: pl.ID, OwnerID: ownerID, SourceURL: pl.SourceURL}
	if err := im.ImportPlaylist(ctx, job); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, _ := store.GetPlaylist(ctx, pl.ID)
	if got.Title != "My custom name" {
		t.Fatalf("title = %q, want user title preserved", got.Title)
	}
}

func TestImportPlaylist_BadURLNotRetried(t *testing.T) {
	im := &Importer{
		Catalog: catalog.NewMemoryStore(),
		Fetcher: &fakeFetcher{},
		Log:     zap.NewNop(),
	}
	err := im.ImportPlaylist(context.Background(), Job{
		PlaylistID: uuid.New(),
		OwnerID:    uuid.New(),
		SourceURL:  "https://example.com/nope",
	})
	if !errors.Is(err, ErrInvalidPlaylistURL) {
		t.Fatalf("err = %v, want ErrInvalidPlaylistURL", err)
	}
}

func TestImportPlaylist_FetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("quota exceeded")
	im := &Importer{
		Catalog: catalog.NewMemoryStore(),
		Fetcher: &fakeFetcher{err: fetchErr},
		Log:     zap.NewNop(),
	}
	err := im.ImportPlaylist(context.Background(), Job{
		PlaylistID: uuid.New(),
		OwnerID:    uuid.New(),
		SourceURL:  "PLabc123def456ghi",
	})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want wrapped fetch error", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		attempt uint64
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{7, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempt); got != c.want {
			t.Fatalf("backoffDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
