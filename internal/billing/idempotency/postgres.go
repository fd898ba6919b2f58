package idempotency

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	dsn string
	// pool is lazily initialised on first Check call.
	pool *pgxpool.Pool
}

func newPostgresStore(dsn string) *postgresStore {
	return &postgresStore{dsn: dsn}
}

func (s *postgresStore) ensurePool(ctx context.Context) error {
	if s.pool != nil {
		return nil
	}
	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return err
	}
	s.pool = pool
	return nil
}

// Check uses INSERT ... ON CONFLICT to atomically deduplicate. The
// idempotency_keys table must exist (see migrations).
func (s *postgresStore) Check(ctx context.Context, key string) (bool, error) {
	if err := s.ensurePool(ctx); err != nil {
		return false, err
	}

	const q = `INSERT INTO idempotency_keys (key, created_at)
	           VALUES ($1, now())
	           ON CONFLICT (key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, q, key)
	if err != nil {
		return false, err
	}
	// RowsAffected == 0 means the row already existed (duplicate).
	return tag.RowsAffected() == 0, nil
}
