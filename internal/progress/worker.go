package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// UpsertEvent is the payload clients publish on progress.upsert when no
// live session carries their progress, e.g. the beacon a closing tab
// fires.
type UpsertEvent struct {
	EventID          string `json:"event_id"`
	UserID           string `json:"user_id"`
	VideoID          string `json:"video_id"`
	WatchTimeSeconds int    `json:"watch_time_seconds"`
	DurationSeconds  int    `json:"duration_seconds"`
	Completed        bool   `json:"completed"`
	ClientTsMs       int64  `json:"client_ts_ms"`
	CreatedAt        string `json:"created_at"`
}

// SubjectUpsert carries UpsertEvent payloads. The API's beacon endpoint
// publishes here and the worker consumes it.
const SubjectUpsert = "progress.upsert"

const upsertDurable = "progress_upsert"

// EnsureStream creates or widens the PROGRESS stream. Both the API
// binary (beacon publisher) and the worker host call this on startup;
// the analytics stream sources from it, so it must exist first.
func EnsureStream(js nats.JetStreamContext) error {
	info, err := js.StreamInfo("PROGRESS")
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == "progress.>" {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{"progress.>"}
		_, err := js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "PROGRESS",
		Subjects: []string{"progress.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

// PublishUpsert puts an event on the upsert subject with the event ID as
// the message ID, so JetStream dedupes publisher retries.
func PublishUpsert(js nats.JetStreamContext, ev UpsertEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal upsert event: %w", err)
	}
	if _, err := js.Publish(SubjectUpsert, payload, nats.MsgId(ev.EventID)); err != nil {
		return fmt.Errorf("publish upsert event: %w", err)
	}
	return nil
}

// WorkerConfig tunes the consumer. Zero values get defaults.
type WorkerConfig struct {
	BatchSize     int
	BatchInterval time.Duration
}

// Worker drains progress.upsert and applies idempotent, stale-guarded
// upserts. Each batch runs in one transaction; processed_events dedupes
// redelivered messages across restarts.
type Worker struct {
	js   nats.JetStreamContext
	pool *pgxpool.Pool
	log  *zap.Logger

	batchSize     int
	batchInterval time.Duration
}

func NewWorker(js nats.JetStreamContext, pool *pgxpool.Pool, log *zap.Logger, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 2 * time.Second
	}
	return &Worker{
		js:            js,
		pool:          pool,
		log:           log,
		batchSize:     cfg.BatchSize,
		batchInterval: cfg.BatchInterval,
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.js.PullSubscribe(SubjectUpsert, upsertDurable)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(w.batchSize, nats.MaxWait(w.batchInterval))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("progress fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		w.applyBatch(ctx, msgs)
	}
}

func (w *Worker) applyBatch(ctx context.Context, msgs []*nats.Msg) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.log.Error("progress batch begin failed", zap.Error(err))
		nakAll(msgs, w.log)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range msgs {
		var ev UpsertEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			// Poison message: ack it away instead of redelivering forever.
			w.log.Warn("dropping malformed progress event", zap.Error(err))
			continue
		}

		fresh, err := markProcessed(ctx, tx, ev.EventID, m.Data)
		if err != nil {
			w.log.Error("progress dedupe failed", zap.Error(err), zap.String("event_id", ev.EventID))
			nakAll(msgs, w.log)
			return
		}
		if !fresh {
			continue
		}

		if err := applyUpsert(ctx, tx, ev); err != nil {
			w.log.Error("progress upsert failed", zap.Error(err),
				zap.String("user_id", ev.UserID), zap.String("video_id", ev.VideoID))
			nakAll(msgs, w.log)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		w.log.Error("progress batch commit failed", zap.Error(err))
		nakAll(msgs, w.log)
		return
	}
	for _, m := range msgs {
		if err := m.Ack(); err != nil {
			w.log.Warn("progress ack failed", zap.Error(err))
		}
	}
}

// markProcessed records the event ID; false means it was seen before.
func markProcessed(ctx context.Context, tx pgx.Tx, eventID string, payload []byte) (bool, error) {
	const q = `INSERT INTO processed_events (event_id, subject, payload, created_at)
	           VALUES ($1, $2, $3, now()) ON CONFLICT (event_id) DO NOTHING`
	tag, err := tx.Exec(ctx, q, eventID, SubjectUpsert, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func applyUpsert(ctx context.Context, tx pgx.Tx, ev UpsertEvent) error {
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
WHERE video_progress.client_ts_ms <= EXCLUDED.client_ts_ms`
	_, err := tx.Exec(ctx, q,
		ev.UserID, ev.VideoID, ev.WatchTimeSeconds, ev.DurationSeconds,
		ev.Completed, ev.ClientTsMs, time.Now().UTC())
	return err
}

func nakAll(msgs []*nats.Msg, log *zap.Logger) {
	for _, m := range msgs {
		if err := m.Nak(); err != nil {
			log.Warn("progress nak failed", zap.Error(err))
		}
	}
}
