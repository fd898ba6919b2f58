// Package search indexes catalog videos in Meilisearch and serves the
// video search surface.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/studytube/internal/search/meili"
)

const indexName = "videos"

// VideoDoc is the search document for one catalog video.
type VideoDoc struct {
	VideoID         string `json:"video_id"`
	PlaylistID      string `json:"playlist_id"`
	PlaylistTitle   string `json:"playlist_title"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
	Position        int    `json:"position"`
}

// Searcher is the port for querying the search backend.
type Searcher interface {
	Search(ctx context.Context, index string, payload any) (meili.SearchResponse, error)
}

// Service answers video search queries.
type Service struct {
	Searcher Searcher
}

// Result is a page of search hits.
type Result struct {
	Videos []VideoDoc `json:"videos"`
	Total  int        `json:"total"`
}

// SearchVideos runs a full-text query over indexed videos.
func (s *Service) SearchVideos(ctx context.Context, query string, limit int) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Videos: []VideoDoc{}}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	resp, err := s.Searcher.Search(ctx, indexName, map[string]any{
		"q":     query,
		"limit": limit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("search videos: %w", err)
	}

	out := Result{Videos: make([]VideoDoc, 0, len(resp.Hits)), Total: resp.EstimatedTotalHits}
	for _, hit := range resp.Hits {
		var doc VideoDoc
		if err := json.Unmarshal(hit, &doc); err != nil {
			return Result{}, fmt.Errorf("decode hit: %w", err)
		}
		out.Videos = append(out.Videos, doc)
	}
	return out, nil
}
