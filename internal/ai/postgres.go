package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists summaries in the video_summaries table.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) PostgresStore {
	return PostgresStore{DB: db}
}

func (s PostgresStore) Get(ctx context.Context, userID, videoID uuid.UUID) (Summary, error) {
	const q = `SELECT user_id, video_id, body, model, created_at
	           FROM video_summaries
	           WHERE user_id = $1 AND video_id = $2`
	var out Summary
	err := s.DB.QueryRow(ctx, q, userID, videoID).
		Scan(&out.UserID, &out.VideoID, &out.Body, &out.Model, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("get summary: %w", err)
	}
	return out, nil
}

func (s PostgresStore) Save(ctx context.Context, sum Summary) error {
	const q = `INSERT INTO video_summaries (user_id, video_id, body, model, created_at)
	           VALUES ($1, $2, $3, $4, $5)
	           ON CONFLICT (user_id, video_id) DO UPDATE SET
	             body       = EXCLUDED.body,
	             model      = EXCLUDED.model,
	             created_at = EXCLUDED.created_at`
	_, err := s.DB.Exec(ctx, q, sum.UserID, sum.VideoID, sum.Body, sum.Model, sum.CreatedAt)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

var _ Store = PostgresStore{}
