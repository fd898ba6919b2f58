// Package importer resolves YouTube playlists into the catalog. The API
// enqueues import jobs on JetStream; the worker in cmd/importer consumes
// them, fetches playlist items and durations from the YouTube Data API,
// and upserts the videos in canonical order.
package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/platform/analytics"
)

// SubjectImportPlaylist is the JetStream subject for playlist import jobs.
const SubjectImportPlaylist = "import.playlist"

// Job is the payload of an import.playlist message.
type Job struct {
	PlaylistID uuid.UUID `json:"playlist_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	SourceURL  string    `json:"source_url"`
}

// Enqueue publishes an import job. Called by the API after creating the
// playlist row.
func Enqueue(js nats.JetStreamContext, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal import job: %w", err)
	}
	if _, err := js.Publish(SubjectImportPlaylist, data); err != nil {
		return fmt.Errorf("publish import job: %w", err)
	}
	return nil
}

// Importer executes import jobs against the catalog.
type Importer struct {
	Catalog   catalog.Store
	Fetcher   Fetcher
	Analytics *analytics.Publisher
	Log       *zap.Logger
}

// ImportPlaylist fetches the job's playlist from YouTube and merges its
// videos into the catalog. Re-imports preserve existing video UUIDs, so
// progress rows survive.
func (im *Importer) ImportPlaylist(ctx context.Context, job Job) error {
	externalID, err := ResolvePlaylistID(job.SourceURL)
	if err != nil {
		return err
	}

	meta, inputs, err := im.Fetcher.FetchPlaylist(ctx, externalID)
	if err != nil {
		return fmt.Errorf("fetch playlist %s: %w", externalID, err)
	}

	pl, err := im.Catalog.GetPlaylist(ctx, job.PlaylistID)
	if err != nil {
		return fmt.Errorf("load playlist %s: %w", job.PlaylistID, err)
	}

	// Fill in title/description from YouTube when the user left them blank.
	if pl.Title == "" && meta.Title != "" {
		title := meta.Title
		desc := meta.Description
		if _, err := im.Catalog.UpdatePlaylist(ctx, job.PlaylistID, job.OwnerID, catalog.UpdatePlaylistParams{
			Title:       &title,
			Description: &desc,
		}); err != nil {
			return fmt.Errorf("update playlist meta: %w", err)
		}
	}

	videos, err := im.Catalog.UpsertVideos(ctx, job.PlaylistID, inputs)
	if err != nil {
		return fmt.Errorf("upsert videos: %w", err)
	}

	im.Log.Info("playlist imported",
		zap.String("playlist_id", job.PlaylistID.String()),
		zap.String("external_id", externalID),
		zap.Int("videos", len(videos)))

	im.Analytics.Publish(analytics.SubjectPlaylistImported, "playlist_imported", job.OwnerID.String(), map[string]any{
		"playlist_id": job.PlaylistID.String(),
		"external_id": externalID,
		"video_count": len(videos),
	})
	return nil
}
