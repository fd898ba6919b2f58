package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/search/meili"
)

const catalogSubject = "catalog.playlist.updated"

// Indexer keeps the videos index in sync with the catalog by consuming
// outbox events from the CATALOG_EVENTS stream.
type Indexer struct {
	Catalog catalog.Store
	Meili   *meili.Client
	Log     *zap.Logger
	NATS    *nats.Conn
}

type eventPayload struct {
	PlaylistID string `json:"playlist_id"`
}

func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	if err := ix.Meili.EnsureIndex(ctx, indexName, "video_id"); err != nil {
		return err
	}
	settings := map[string]any{
		"searchableAttributes": []string{"title", "description", "playlist_title"},
		"filterableAttributes": []string{"playlist_id", "duration_seconds"},
		"sortableAttributes":   []string{"position"},
	}
	return ix.Meili.UpdateSettings(ctx, indexName, settings)
}

func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.EnsureIndex(ctx); err != nil {
		return err
	}
	js, err := ix.NATS.JetStream()
	if err != nil {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "CATALOG_EVENTS",
		Subjects: []string{"catalog.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}

	sub, err := js.PullSubscribe(catalogSubject, "search_indexer")
	if err != nil {
		return err
	}

	ix.Log.Info("search indexer started", zap.String("subject", catalogSubject))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, m := range msgs {
			if err := ix.handleMsg(ctx, m); err != nil {
				ix.Log.Warn("index event failed", zap.Error(err))
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

func (ix *Indexer) handleMsg(ctx context.Context, msg *nats.Msg) error {
	var payload eventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return err
	}
	playlistID, err := uuid.Parse(payload.PlaylistID)
	if err != nil {
		return err
	}
	return ix.IndexPlaylist(ctx, playlistID)
}

// IndexPlaylist rebuilds the documents for one playlist's videos.
func (ix *Indexer) IndexPlaylist(ctx context.Context, playlistID uuid.UUID) error {
	pl, err := ix.Catalog.GetPlaylist(ctx, playlistID)
	if errors.Is(err, catalog.ErrNotFound) {
		// Deleted between event and processing; its documents age out on
		// the next reindex of whatever replaces it.
		ix.Log.Debug("playlist gone, skipping index", zap.String("playlist_id", playlistID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	videos, err := ix.Catalog.ListVideos(ctx, playlistID)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return nil
	}

	docs := make([]VideoDoc, 0, len(videos))
	for _, v := range videos {
		docs = append(docs, VideoDoc{
			VideoID:         v.ID.String(),
			PlaylistID:      pl.ID.String(),
			PlaylistTitle:   pl.Title,
			Title:           v.Title,
			Description:     v.Description,
			ThumbnailURL:    v.ThumbnailURL,
			DurationSeconds: v.DurationSeconds,
			Position:        v.Position,
		})
	}
	return ix.Meili.AddDocuments(ctx, indexName, docs)
}
