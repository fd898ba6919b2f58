package importer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/example/studytube/internal/catalog"
)

// ErrInvalidPlaylistURL is returned when no playlist ID can be extracted
// from user input.
var ErrInvalidPlaylistURL = errors.New("importer: cannot resolve playlist id")

var playlistIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{13,}$`)

// PlaylistMeta is the playlist-level metadata fetched from YouTube.
type PlaylistMeta struct {
	ExternalID  string
	Title       string
	Description string
}

// Fetcher resolves a YouTube playlist into catalog video inputs, in
// playlist order.
type Fetcher interface {
	FetchPlaylist(ctx context.Context, playlistID string) (PlaylistMeta, []catalog.VideoInput, error)
}

// YouTubeClient fetches playlists via the YouTube Data API v3.
type YouTubeClient struct {
	service *youtube.Service
}

// NewYouTubeClient creates a client authenticated by API key.
func NewYouTubeClient(ctx context.Context, apiKey string) (*YouTubeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("importer: api key required")
	}
	service, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeClient{service: service}, nil
}

// ResolvePlaylistID extracts a playlist ID from a YouTube URL or accepts a
// bare ID.
func ResolvePlaylistID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidPlaylistURL
	}
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		if id := u.Query().Get("list"); id != "" && playlistIDRegex.MatchString(id) {
			return id, nil
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidPlaylistURL, input)
	}
	if playlistIDRegex.MatchString(input) {
		return input, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlaylistURL, input)
}

// FetchPlaylist pages through the playlist items and resolves per-video
// durations, returning videos in playlist order.
func (c *YouTubeClient) FetchPlaylist(ctx context.Context, playlistID string) (PlaylistMeta, []catalog.VideoInput, error) {
	meta, err := c.fetchMeta(ctx, playlistID)
	if err != nil {
		return PlaylistMeta{}, nil, err
	}

	var videos []catalog.VideoInput
	pageToken := ""
	for {
		resp, err := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(50).
			PageToken(pageToken).
			Context(ctx).
			Do()
		if err != nil {
			return PlaylistMeta{}, nil, fmt.Errorf("list playlist items: %w", err)
		}

		for _, item := range resp.Items {
			if item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
				continue
			}
			v := catalog.VideoInput{
				ExternalID: item.ContentDetails.VideoId,
				Position:   len(videos),
			}
			if item.Snippet != nil {
				v.Title = item.Snippet.Title
				v.Description = item.Snippet.Description
				if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Medium != nil {
					v.ThumbnailURL = item.Snippet.Thumbnails.Medium.Url
				}
			}
			// Deleted and privated videos surface with placeholder titles.
			if v.Title == "Deleted video" || v.Title == "Private video" {
				continue
			}
			videos = append(videos, v)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if err := c.fillDurations(ctx, videos); err != nil {
		return PlaylistMeta{}, nil, err
	}
	// Skipped placeholders may have left position gaps.
	for i := range videos {
		videos[i].Position = i
	}
	return meta, videos, nil
}

func (c *YouTubeClient) fetchMeta(ctx context.Context, playlistID string) (PlaylistMeta, error) {
	resp, err := c.service.Playlists.List([]string{"snippet"}).
		Id(playlistID).
		Context(ctx).
		Do()
	if err != nil {
		return PlaylistMeta{}, fmt.Errorf("get playlist: %w", err)
	}
	if len(resp.Items) == 0 {
		return PlaylistMeta{}, fmt.Errorf("importer: playlist %q not found", playlistID)
	}
	meta := PlaylistMeta{ExternalID: playlistID}
	if sn := resp.Items[0].Snippet; sn != nil {
		meta.Title = sn.Title
		meta.Description = sn.Description
	}
	return meta, nil
}

// fillDurations resolves contentDetails.duration for the videos in batches
// of 50, the videos.list maximum.
func (c *YouTubeClient) fillDurations(ctx context.Context, videos []catalog.VideoInput) error {
	byExternalID := make(map[string]int, len(videos))
	ids := make([]string, 0, len(videos))
	for i, v := range videos {
		byExternalID[v.ExternalID] = i
		ids = append(ids, v.ExternalID)
	}

	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}
		resp, err := c.service.Videos.List([]string{"contentDetails"}).
			Id(ids[start:end]...).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("list video details: %w", err)
		}
		for _, item := range resp.Items {
			i, ok := byExternalID[item.Id]
			if !ok || item.ContentDetails == nil {
				continue
			}
			secs, err := parseISODuration(item.ContentDetails.Duration)
			if err != nil {
				// Live streams report P0D or nothing; keep zero.
				continue
			}
			videos[i].DurationSeconds = secs
		}
	}
	return nil
}
