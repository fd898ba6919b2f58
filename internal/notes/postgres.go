package notes

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists notes in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p CreateParams) (Note, error) {
	const q = `INSERT INTO notes (id, user_id, video_id, body, anchor_seconds)
	           VALUES ($1, $2, $3, $4, $5)
	           RETURNING id, user_id, video_id, body, anchor_seconds, created_at, updated_at`
	var out Note
	err := s.pool.QueryRow(ctx, q, uuid.New(), p.UserID, p.VideoID, p.Body, p.AnchorSeconds).
		Scan(&out.ID, &out.UserID, &out.VideoID, &out.Body, &out.AnchorSeconds, &out.CreatedAt, &out.UpdatedAt)
	return out, err
}

func (s *PostgresStore) ListByVideo(ctx context.Context, userID, videoID uuid.UUID, limit int, cursor string) ([]Note, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var q string
	var args []any
	if cursor == "" {
		q = `SELECT id, user_id, video_id, body, anchor_seconds, created_at, updated_at
		     FROM notes
		     WHERE user_id = $1 AND video_id = $2
		     ORDER BY created_at DESC, id DESC
		     LIMIT $3`
		args = []any{userID, videoID, limit + 1}
	} else {
		curTime, curID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		q = `SELECT id, user_id, video_id, body, anchor_seconds, created_at, updated_at
		     FROM notes
		     WHERE user_id = $1 AND video_id = $2
		       AND (created_at, id) < ($4, $5)
		     ORDER BY created_at DESC, id DESC
		     LIMIT $3`
		args = []any{userID, videoID, limit + 1, curTime, curID}
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.VideoID, &n.Body, &n.AnchorSeconds, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID.String())
	}
	return out, next, nil
}

func (s *PostgresStore) UpdateBody(ctx context.Context, noteID, userID uuid.UUID, body string) error {
	const q = `UPDATE notes SET body = $1, updated_at = now() WHERE id = $2 AND user_id = $3`
	tag, err := s.pool.Exec(ctx, q, body, noteID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, noteID, userID uuid.UUID) error {
	const q = `DELETE FROM notes WHERE id = $1 AND user_id = $2`
	tag, err := s.pool.Exec(ctx, q, noteID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", t.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("malformed cursor")
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos), parts[1], nil
}
