package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Postgres-backed implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	const q = `
INSERT INTO video_progress (user_id, video_id, watch_time_seconds, duration_seconds, completed, client_ts_ms, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  watch_time_seconds = GREATEST(video_progress.watch_time_seconds, EXCLUDED.watch_time_seconds),
  duration_seconds   = EXCLUDED.duration_seconds,
  completed          = EXCLUDED.completed,
  client_ts_ms       = EXCLUDED.client_ts_ms,
  updated_at         = EXCLUDED.updated_at
WHERE video_progress.client_ts_ms <= EXCLUDED.client_ts_ms
RETURNING watch_time_seconds, duration_seconds, completed, client_ts_ms, updated_at`

	out := Record{UserID: rec.UserID, VideoID: rec.VideoID}
	err := s.pool.QueryRow(ctx, q,
		rec.UserID, rec.VideoID, rec.WatchTimeSeconds, rec.DurationSeconds,
		rec.Completed, rec.ClientTsMs, time.Now().UTC(),
	).Scan(&out.WatchTimeSeconds, &out.DurationSeconds, &out.Completed, &out.ClientTsMs, &out.UpdatedAt)
	if err != nil {
		// The WHERE clause blocked a stale write; return current state.
		if errors.Is(err, pgx.ErrNoRows) {
			return s.Get(ctx, rec.UserID, rec.VideoID)
		}
		return Record{}, fmt.Errorf("upsert progress: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID, videoID uuid.UUID) (Record, error) {
	const q = `SELECT watch_time_seconds, duration_seconds, completed, client_ts_ms, updated_at
	           FROM video_progress WHERE user_id = $1 AND video_id = $2`
	out := Record{UserID: userID, VideoID: videoID}
	err := s.pool.QueryRow(ctx, q, userID, videoID).
		Scan(&out.WatchTimeSeconds, &out.DurationSeconds, &out.Completed, &out.ClientTsMs, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get progress: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByVideos(ctx context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]Record, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}
	const q = `SELECT video_id, watch_time_seconds, duration_seconds, completed, client_ts_ms, updated_at
	           FROM video_progress WHERE user_id = $1 AND video_id = ANY($2)`
	rows, err := s.pool.Query(ctx, q, userID, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, userID)
}

func (s *PostgresStore) ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *Cursor) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `SELECT video_id, watch_time_seconds, duration_seconds, completed, client_ts_ms, updated_at
	      FROM video_progress WHERE user_id = $1`
	args := []any{userID}
	if cursor != nil {
		q += " AND (updated_at, video_id) < ($2, $3)"
		args = append(args, cursor.UpdatedAt, cursor.VideoID)
	}
	q += " ORDER BY updated_at DESC, video_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent progress: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows, userID)
}

func scanRecords(rows pgx.Rows, userID uuid.UUID) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec := Record{UserID: userID}
		if err := rows.Scan(&rec.VideoID, &rec.WatchTimeSeconds, &rec.DurationSeconds,
			&rec.Completed, &rec.ClientTsMs, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
