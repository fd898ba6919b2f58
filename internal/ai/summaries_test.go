package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/notes"
)

type fakeCompleter struct {
	calls   int
	text    string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func newSummaryFixture(t *testing.T) (*Service, *fakeCompleter, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	cat := catalog.NewMemoryStore()
	userID := uuid.New()

	pl, err := cat.CreatePlaylist(ctx, catalog.CreatePlaylistParams{OwnerID: userID, Title: "Go course"})
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	videos, err := cat.UpsertVideos(ctx, pl.ID, []catalog.VideoInput{{
		ExternalID:      "yt-1",
		Title:           "Channels in depth",
		Description:     "Buffered and unbuffered channels.",
		DurationSeconds: 1800,
		Position:        0,
	}})
	if err != nil {
		t.Fatalf("upsert videos: %v", err)
	}

	completer := &fakeCompleter{text: "Channels connect goroutines."}
	svc := &Service{
		Store:     NewMemoryStore(),
		Completer: completer,
		Catalog:   cat,
		Notes:     notes.NewMemoryStore(),
		Model:     "tutor-1",
		Log:       zap.NewNop(),
	}
	return svc, completer, userID, videos[0].ID
}

func TestSummarize_GeneratesAndPersists(t *testing.T) {
	svc, _, userID, videoID := newSummaryFixture(t)
	ctx := context.Background()

	sum, err := svc.Summarize(ctx, userID, videoID, false)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Body != "Channels connect goroutines." || sum.Model != "tutor-1" {
		t.Fatalf("summary = %+v", sum)
	}

	stored, err := svc.Get(ctx, userID, videoID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Body != sum.Body {
		t.Fatalf("stored body = %q", stored.Body)
	}
}

func TestSummarize_ReusesStoredSummary(t *testing.T) {
	svc, completer, userID, videoID := newSummaryFixture(t)
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, userID, videoID, false); err != nil {
		t.Fatalf("first summarize: %v", err)
	}
	if _, err := svc.Summarize(ctx, userID, videoID, false); err != nil {
		t.Fatalf("second summarize: %v", err)
	}
	if completer.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", completer.calls)
	}
}

func TestSummarize_ForceRegenerates(t *testing.T) {
	svc, completer, userID, videoID := newSummaryFixture(t)
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, userID, videoID, false); err != nil {
		t.Fatalf("first summarize: %v", err)
	}
	completer.text = "Updated summary."
	sum, err := svc.Summarize(ctx, userID, videoID, true)
	if err != nil {
		t.Fatalf("forced summarize: %v", err)
	}
	if sum.Body != "Updated summary." {
		t.Fatalf("body = %q", sum.Body)
	}
	if completer.calls != 2 {
		t.Fatalf("completer calls = %d, want 2", completer.calls)
	}
}

func TestSummarize_PromptIncludesVideoAndNotes(t *testing.T) {
	svc, completer, userID, videoID := newSummaryFixture(t)
	ctx := context.Background()

	anchor := 125
	if _, err := svc.Notes.Create(ctx, notes.CreateParams{
		UserID:        userID,
		VideoID:       videoID,
		Body:          "select statement demo",
		AnchorSeconds: &anchor,
	}); err != nil {
		t.Fatalf("create note: %v", err)
	}

	if _, err := svc.Summarize(ctx, userID, videoID, false); err != nil {
		t.Fatalf("summarize: %v", err)
	}
	prompt := completer.prompts[0]
	for _, want := range []string{"Channels in depth", "30 minutes", "[02:05] select statement demo"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSummarize_GatewayErrorPropagates(t *testing.T) {
	svc, completer, userID, videoID := newSummaryFixture(t)
	completer.err = errors.New("gateway down")

	_, err := svc.Summarize(context.Background(), userID, videoID, false)
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if _, err := svc.Get(context.Background(), userID, videoID); !errors.Is(err, ErrNotFound) {
		t.Fatal("failed generation should not persist a summary")
	}
}

func TestSummarize_UnknownVideo(t *testing.T) {
	svc, _, userID, _ := newSummaryFixture(t)

	_, err := svc.Summarize(context.Background(), userID, uuid.New(), false)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want catalog.ErrNotFound", err)
	}
}
