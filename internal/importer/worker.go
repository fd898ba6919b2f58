package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	streamName  = "IMPORT_JOBS"
	durableName = "import_playlist"
	dlqSubject  = "import.dlq"
)

// Worker consumes import.playlist jobs from JetStream.
type Worker struct {
	Log      *zap.Logger
	JS       nats.JetStreamContext
	Importer *Importer

	MaxDeliver int
}

func NewWorker(log *zap.Logger, nc *nats.Conn, im *Importer) (*Worker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Worker{Log: log, JS: js, Importer: im, MaxDeliver: 5}, nil
}

// EnsureStream creates or widens the IMPORT_JOBS stream.
func (w *Worker) EnsureStream() error {
	info, err := w.JS.StreamInfo(streamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == "import.>" {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{"import.>"}
		_, err := w.JS.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = w.JS.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"import.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.EnsureStream(); err != nil {
		return err
	}

	sub, err := w.JS.PullSubscribe(SubjectImportPlaylist, durableName)
	if err != nil {
		return err
	}

	w.Log.Info("import consumer started", zap.String("subject", SubjectImportPlaylist))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) {
	md, _ := m.Metadata()
	numDelivered := uint64(1)
	if md != nil {
		numDelivered = md.NumDelivered
	}

	if w.MaxDeliver > 0 && int(numDelivered) > w.MaxDeliver {
		_ = w.publishDLQ(m.Data, fmt.Sprintf("max deliveries exceeded: %d", numDelivered))
		_ = m.Ack()
		return
	}

	var job Job
	if err := json.Unmarshal(m.Data, &job); err != nil {
		w.Log.Warn("bad import payload", zap.Error(err))
		_ = m.Ack()
		return
	}
	if job.PlaylistID == uuid.Nil || job.SourceURL == "" {
		w.Log.Warn("incomplete import job", zap.String("payload", string(m.Data)))
		_ = m.Ack()
		return
	}

	if err := w.Importer.ImportPlaylist(ctx, job); err != nil {
		// Unresolvable URLs never succeed on retry.
		if errors.Is(err, ErrInvalidPlaylistURL) {
			w.Log.Warn("unresolvable playlist url", zap.String("url", job.SourceURL), zap.Error(err))
			_ = m.Ack()
			return
		}
		w.Log.Warn("import failed",
			zap.String("playlist_id", job.PlaylistID.String()),
			zap.Uint64("attempt", numDelivered),
			zap.Error(err))
		_ = m.NakWithDelay(backoffDelay(numDelivered))
		return
	}
	_ = m.Ack()
}

func (w *Worker) publishDLQ(data []byte, reason string) error {
	msg := map[string]any{"subject": SubjectImportPlaylist, "reason": reason, "payload": json.RawMessage(data)}
	b, _ := json.Marshal(msg)
	_, err := w.JS.Publish(dlqSubject, b)
	return err
}
