package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventPlaylistUpdated = "catalog.playlist.updated"

// PostgresStore is the production Postgres-backed implementation. Writes
// that should reach the search indexer also insert a catalog_outbox row
// in the same transaction; the outbox publisher relays them to
// JetStream.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePlaylist(ctx context.Context, p CreatePlaylistParams) (Playlist, error) {
	id := uuid.New()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Playlist{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var out Playlist
	err = tx.QueryRow(ctx, `
INSERT INTO playlists (id, owner_id, title, description, source_url, visibility, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING id, owner_id, title, description, source_url, visibility, created_at, updated_at`,
		id, p.OwnerID, p.Title, p.Description, p.SourceURL, VisibilityPrivate, now,
	).Scan(&out.ID, &out.OwnerID, &out.Title, &out.Description, &out.SourceURL,
		&out.Visibility, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Playlist{}, fmt.Errorf("insert playlist: %w", err)
	}
	if err := insertOutboxEvent(ctx, tx, eventPlaylistUpdated, map[string]any{"playlist_id": id.String()}); err != nil {
		return Playlist{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Playlist{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetPlaylist(ctx context.Context, id uuid.UUID) (Playlist, error) {
	const q = `
SELECT p.id, p.owner_id, p.title, p.description, p.source_url, p.visibility, p.created_at, p.updated_at,
       (SELECT count(*) FROM videos v WHERE v.playlist_id = p.id)
FROM playlists p WHERE p.id = $1`
	var out Playlist
	err := s.db.QueryRow(ctx, q, id).Scan(&out.ID, &out.OwnerID, &out.Title, &out.Description,
		&out.SourceURL, &out.Visibility, &out.CreatedAt, &out.UpdatedAt, &out.VideoCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Playlist{}, ErrNotFound
		}
		return Playlist{}, fmt.Errorf("get playlist: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPlaylistsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Playlist, error) {
	const q = `
SELECT p.id, p.owner_id, p.title, p.description, p.source_url, p.visibility, p.created_at, p.updated_at,
       (SELECT count(*) FROM videos v WHERE v.playlist_id = p.id)
FROM playlists p WHERE p.owner_id = $1
ORDER BY p.updated_at DESC`
	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	var out []Playlist
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.SourceURL,
			&p.Visibility, &p.CreatedAt, &p.UpdatedAt, &p.VideoCount); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdatePlaylist(ctx context.Context, id, ownerID uuid.UUID, p UpdatePlaylistParams) (Playlist, error) {
	cur, err := s.GetPlaylist(ctx, id)
	if err != nil {
		return Playlist{}, err
	}
	if cur.OwnerID != ownerID {
		return Playlist{}, ErrForbidden
	}
	if p.Title != nil {
		cur.Title = *p.Title
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	if p.Visibility != nil {
		cur.Visibility = *p.Visibility
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Playlist{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
UPDATE playlists SET title = $2, description = $3, visibility = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at`,
		id, cur.Title, cur.Description, cur.Visibility,
	).Scan(&cur.UpdatedAt)
	if err != nil {
		return Playlist{}, fmt.Errorf("update playlist: %w", err)
	}
	if err := insertOutboxEvent(ctx, tx, eventPlaylistUpdated, map[string]any{"playlist_id": id.String()}); err != nil {
		return Playlist{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Playlist{}, fmt.Errorf("commit: %w", err)
	}
	return cur, nil
}

func (s *PostgresStore) DeletePlaylist(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListVideos(ctx context.Context, playlistID uuid.UUID) ([]Video, error) {
	const q = `
SELECT id, playlist_id, external_id, title, description, thumbnail_url, duration_seconds, position, created_at
FROM videos WHERE playlist_id = $1 ORDER BY position ASC`
	rows, err := s.db.Query(ctx, q, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func (s *PostgresStore) GetVideo(ctx context.Context, id uuid.UUID) (Video, error) {
	const q = `
SELECT id, playlist_id, external_id, title, description, thumbnail_url, duration_seconds, position, created_at
FROM videos WHERE id = $1`
	var v Video
	err := s.db.QueryRow(ctx, q, id).Scan(&v.ID, &v.PlaylistID, &v.ExternalID, &v.Title,
		&v.Description, &v.ThumbnailURL, &v.DurationSeconds, &v.Position, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Video{}, ErrNotFound
		}
		return Video{}, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpsertVideos(ctx context.Context, playlistID uuid.UUID, videos []VideoInput) ([]Video, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, v := range videos {
		if _, err := tx.Exec(ctx, `
INSERT INTO videos (id, playlist_id, external_id, title, description, thumbnail_url, duration_seconds, position, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (playlist_id, external_id)
DO UPDATE SET
  title            = EXCLUDED.title,
  description      = EXCLUDED.description,
  thumbnail_url    = EXCLUDED.thumbnail_url,
  duration_seconds = EXCLUDED.duration_seconds,
  position         = EXCLUDED.position`,
			uuid.New(), playlistID, v.ExternalID, v.Title, v.Description,
			v.ThumbnailURL, v.DurationSeconds, v.Position, now,
		); err != nil {
			return nil, fmt.Errorf("upsert video %s: %w", v.ExternalID, err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = now() WHERE id = $1`, playlistID); err != nil {
		return nil, fmt.Errorf("touch playlist: %w", err)
	}
	if err := insertOutboxEvent(ctx, tx, eventPlaylistUpdated, map[string]any{"playlist_id": playlistID.String()}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.ListVideos(ctx, playlistID)
}

func (s *PostgresStore) SaveOrder(ctx context.Context, playlistID, ownerID uuid.UUID, orderedVideoIDs []uuid.UUID) error {
	pl, err := s.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	if pl.OwnerID != ownerID {
		return ErrForbidden
	}
	if pl.VideoCount != len(orderedVideoIDs) {
		return ErrConflict
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, id := range orderedVideoIDs {
		tag, err := tx.Exec(ctx,
			`UPDATE videos SET position = $3 WHERE id = $1 AND playlist_id = $2`,
			id, playlistID, i)
		if err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Not a permutation of this playlist's videos.
			return ErrConflict
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE playlists SET updated_at = now() WHERE id = $1`, playlistID); err != nil {
		return fmt.Errorf("touch playlist: %w", err)
	}
	return tx.Commit(ctx)
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO catalog_outbox (id, event_type, payload, created_at) VALUES ($1, $2, $3, now())`,
		uuid.New(), eventType, data); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func scanVideos(rows pgx.Rows) ([]Video, error) {
	var out []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.PlaylistID, &v.ExternalID, &v.Title, &v.Description,
			&v.ThumbnailURL, &v.DurationSeconds, &v.Position, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
