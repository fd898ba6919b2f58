package analytics

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// envelope matches the canonical event the API publishes on analytics.*
// subjects (internal/platform/analytics).
type envelope struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// progressEvent matches the beacon payload on progress.upsert, re-sourced
// from the PROGRESS stream.
type progressEvent struct {
	UserID           string `json:"user_id"`
	VideoID          string `json:"video_id"`
	WatchTimeSeconds int    `json:"watch_time_seconds"`
	DurationSeconds  int    `json:"duration_seconds"`
	Completed        bool   `json:"completed"`
}

// Dispatcher routes incoming NATS messages to the correct PostHog call.
type Dispatcher struct {
	ph  Capturer
	log *zap.Logger
}

func NewDispatcher(ph Capturer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{ph: ph, log: log}
}

// Dispatch routes msg by subject. Unknown subjects are logged and dropped;
// the caller still Acks them to avoid replay.
func (d *Dispatcher) Dispatch(msg *nats.Msg) {
	switch msg.Subject {
	case "analytics.auth.registered":
		d.handleRegistered(msg)
	case "analytics.auth.logged_in":
		d.capture(msg, "user_logged_in")
	case "analytics.player.session_started":
		d.capture(msg, "session_started")
	case "analytics.player.video_completed":
		d.capture(msg, "video_completed")
	case "analytics.catalog.playlist_imported":
		d.capture(msg, "playlist_imported")
	case "analytics.ai.summary_generated":
		d.capture(msg, "summary_generated")
	case "analytics.search.performed":
		d.handleSearch(msg)
	case "analytics.billing.payment_submitted":
		d.capture(msg, "payment_submitted")
	case "analytics.billing.subscription_state":
		d.capture(msg, "subscription_state")
	case "progress.upsert":
		d.handleProgressBeacon(msg)
	default:
		d.log.Debug("analytics: unhandled subject", zap.String("subject", msg.Subject))
	}
}

// capture forwards an envelope's properties as-is under the given event name.
func (d *Dispatcher) capture(msg *nats.Msg, event string) {
	var ev envelope
	if !d.unmarshal(msg, &ev) {
		return
	}
	distinctID := ev.UserID
	if distinctID == "" {
		distinctID = "anonymous"
	}
	d.ph.Capture(distinctID, event, ev.Properties)
}

func (d *Dispatcher) handleRegistered(msg *nats.Msg) {
	var ev envelope
	if !d.unmarshal(msg, &ev) {
		return
	}
	if ev.UserID == "" {
		return
	}
	traits := map[string]any{"created_at": ev.OccurredAt}
	if username, ok := ev.Properties["username"]; ok {
		traits["username"] = username
	}
	d.ph.Identify(ev.UserID, traits)
	d.ph.Capture(ev.UserID, "user_registered", ev.Properties)
}

func (d *Dispatcher) handleSearch(msg *nats.Msg) {
	var ev envelope
	if !d.unmarshal(msg, &ev) {
		return
	}
	distinctID := ev.UserID
	if distinctID == "" {
		distinctID = "anonymous"
	}
	props := ev.Properties
	if props == nil {
		props = map[string]any{}
	}
	if count, ok := props["results_count"].(float64); ok {
		props["has_results"] = count > 0
	}
	d.ph.Capture(distinctID, "search_performed", props)
}

// handleProgressBeacon only tracks completions; forwarding every progress
// tick would flood PostHog.
func (d *Dispatcher) handleProgressBeacon(msg *nats.Msg) {
	var ev progressEvent
	if !d.unmarshal(msg, &ev) {
		return
	}
	if !ev.Completed || ev.UserID == "" {
		return
	}
	d.ph.Capture(ev.UserID, "video_completed", map[string]any{
		"video_id":         ev.VideoID,
		"duration_seconds": ev.DurationSeconds,
		"source":           "beacon",
	})
}

func (d *Dispatcher) unmarshal(msg *nats.Msg, dst any) bool {
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		d.log.Error("analytics: unmarshal message",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return false
	}
	return true
}
