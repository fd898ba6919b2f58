package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	analyticsStream   = "ANALYTICS"
	analyticsConsumer = "analytics_processor"
)

// Consumer wraps a JetStream pull subscription and dispatches messages.
type Consumer struct {
	sub        *nats.Subscription
	dispatcher *Dispatcher
	batchSize  int
	maxWait    time.Duration
	log        *zap.Logger
}

// NewConsumer creates the ANALYTICS stream (sourcing the PROGRESS stream's
// beacon subject alongside its own analytics.> subjects) and returns a
// Consumer ready to Run.
func NewConsumer(nc *nats.Conn, d *Dispatcher, batchSize int, maxWait time.Duration, log *zap.Logger) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}

	ensureStream(js, log)

	sub, err := js.PullSubscribe(">", analyticsConsumer, nats.BindStream(analyticsStream))
	if err != nil {
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = 50
	}
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	return &Consumer{
		sub:        sub,
		dispatcher: d,
		batchSize:  batchSize,
		maxWait:    maxWait,
		log:        log,
	}, nil
}

// Run processes messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.maxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Error("analytics consumer: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			c.dispatcher.Dispatch(msg)
			if err := msg.Ack(); err != nil {
				c.log.Warn("analytics consumer: ack", zap.Error(err))
			}
		}
	}
}

// ensureStream creates or updates the ANALYTICS stream so this consumer is
// the single read point for all business events.
func ensureStream(js nats.JetStreamContext, log *zap.Logger) {
	cfg := &nats.StreamConfig{
		Name:      analyticsStream,
		Subjects:  []string{"analytics.>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
		Sources: []*nats.StreamSource{
			{Name: "PROGRESS", FilterSubject: "progress.upsert"},
		},
	}

	_, err := js.AddStream(cfg)
	if err == nil {
		log.Info("analytics: stream created", zap.String("stream", analyticsStream))
		return
	}

	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		if _, updateErr := js.UpdateStream(cfg); updateErr != nil {
			log.Warn("analytics: stream update failed (may already be up to date)", zap.Error(updateErr))
		}
	}
}
