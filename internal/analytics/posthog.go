// Package analytics consumes business events from JetStream and forwards
// them to PostHog. It backs the cmd/analytics binary.
package analytics

import (
	"time"

	ph "github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

// Capturer is the sink for analytics captures. *PostHogClient implements
// it; tests use a fake.
type Capturer interface {
	Capture(distinctID, event string, props map[string]any)
	Identify(userID string, traits map[string]any)
}

// PostHogClient wraps posthog-go for server-side capture.
type PostHogClient struct {
	ph  ph.Client
	log *zap.Logger
}

// NewPostHogClient creates a client. apiKey is the project API key; host is
// the PostHog endpoint (cloud or self-hosted).
func NewPostHogClient(apiKey, host string, flushInterval time.Duration, batchSize int, log *zap.Logger) (*PostHogClient, error) {
	client, err := ph.NewWithConfig(apiKey, ph.Config{
		Endpoint:  host,
		BatchSize: batchSize,
		Interval:  flushInterval,
		Logger:    &zapLogger{log: log},
	})
	if err != nil {
		return nil, err
	}
	return &PostHogClient{ph: client, log: log}, nil
}

// Capture sends a single event. distinctID is the user id, or an anonymous
// id for unauthenticated events.
func (c *PostHogClient) Capture(distinctID, event string, props map[string]any) {
	if c == nil || c.ph == nil {
		return
	}
	p := ph.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	if err := c.ph.Enqueue(ph.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: p,
	}); err != nil {
		c.log.Warn("posthog: enqueue failed", zap.String("event", event), zap.Error(err))
	}
}

// Identify links a user id to known traits (called on registration).
func (c *PostHogClient) Identify(userID string, traits map[string]any) {
	if c == nil || c.ph == nil {
		return
	}
	p := ph.NewProperties()
	for k, v := range traits {
		p.Set(k, v)
	}
	if err := c.ph.Enqueue(ph.Identify{
		DistinctId: userID,
		Properties: p,
	}); err != nil {
		c.log.Warn("posthog: identify failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Close flushes buffered events and shuts down the client.
func (c *PostHogClient) Close() error {
	if c == nil || c.ph == nil {
		return nil
	}
	return c.ph.Close()
}

// zapLogger adapts zap to posthog-go's Logger interface.
type zapLogger struct {
	log *zap.Logger
}

func (z *zapLogger) Debugf(format string, args ...any) { z.log.Sugar().Debugf(format, args...) }
func (z *zapLogger) Logf(format string, args ...any)   { z.log.Sugar().Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.log.Sugar().Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.log.Sugar().Errorf(format, args...) }
