package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/cache"
	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/notes"
	"github.com/example/studytube/internal/platform/analytics"
)

// ErrNotFound is returned when no summary exists yet.
var ErrNotFound = errors.New("ai: summary not found")

// Summary is a generated study summary for one user's view of a video.
// It is user-scoped because the prompt folds in the user's own notes.
type Summary struct {
	UserID    uuid.UUID `json:"user_id"`
	VideoID   uuid.UUID `json:"video_id"`
	Body      string    `json:"body"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists generated summaries.
type Store interface {
	Get(ctx context.Context, userID, videoID uuid.UUID) (Summary, error)
	Save(ctx context.Context, s Summary) error
}

// Completer is the port into the LLM gateway.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service generates and serves video summaries.
type Service struct {
	Store     Store
	Completer Completer
	Catalog   catalog.Store
	Notes     notes.Store
	Cache     *cache.RedisCache
	Model     string
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

func summaryCacheKey(userID, videoID uuid.UUID) string {
	return "ai:summary:" + userID.String() + ":" + videoID.String()
}

// Summarize returns the user's summary for the video, generating and
// persisting one if none exists. force regenerates even when a summary is
// already stored.
func (s *Service) Summarize(ctx context.Context, userID, videoID uuid.UUID, force bool) (Summary, error) {
	if !force {
		var cached Summary
		if hit, err := s.Cache.Get(ctx, summaryCacheKey(userID, videoID), &cached); err == nil && hit {
			return cached, nil
		}
		stored, err := s.Store.Get(ctx, userID, videoID)
		if err == nil {
			_ = s.Cache.Set(ctx, summaryCacheKey(userID, videoID), stored)
			return stored, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Summary{}, err
		}
	}

	prompt, err := s.buildPrompt(ctx, userID, videoID)
	if err != nil {
		return Summary{}, err
	}

	body, err := s.Completer.Complete(ctx, prompt)
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}

	summary := Summary{
		UserID:    userID,
		VideoID:   videoID,
		Body:      body,
		Model:     s.Model,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.Save(ctx, summary); err != nil {
		return Summary{}, fmt.Errorf("save summary: %w", err)
	}
	_ = s.Cache.Set(ctx, summaryCacheKey(userID, videoID), summary)

	if s.Log != nil {
		s.Log.Info("summary generated",
			zap.String("user_id", userID.String()),
			zap.String("video_id", videoID.String()))
	}
	s.Analytics.Publish(analytics.SubjectSummaryGenerated, "summary_generated", userID.String(), map[string]any{
		"video_id": videoID.String(),
	})
	return summary, nil
}

// Get returns the stored summary without generating.
func (s *Service) Get(ctx context.Context, userID, videoID uuid.UUID) (Summary, error) {
	return s.Store.Get(ctx, userID, videoID)
}

// buildPrompt folds the video metadata and the user's notes into the
// generation prompt.
func (s *Service) buildPrompt(ctx context.Context, userID, videoID uuid.UUID) (string, error) {
	video, err := s.Catalog.GetVideo(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("load video: %w", err)
	}

	var b strings.Builder
	b.WriteString("Summarize this lecture video for a student reviewing it later.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", video.Title)
	if video.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration: %d minutes\n", video.DurationSeconds/60)
	}
	if video.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", video.Description)
	}

	userNotes, _, err := s.Notes.ListByVideo(ctx, userID, videoID, 50, "")
	if err != nil {
		return "", fmt.Errorf("load notes: %w", err)
	}
	if len(userNotes) > 0 {
		b.WriteString("\nThe student's own notes, newest first:\n")
		for _, n := range userNotes {
			if n.AnchorSeconds != nil {
				fmt.Fprintf(&b, "- [%02d:%02d] %s\n", *n.AnchorSeconds/60, *n.AnchorSeconds%60, n.Body)
			} else {
				fmt.Fprintf(&b, "- %s\n", n.Body)
			}
		}
	}
	b.WriteString("\nProduce a concise summary with key takeaways.")
	return b.String(), nil
}
