package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func fastConfig() ClientConfig {
	return ClientConfig{MaxRetries: 2, RetryBaseDelay: time.Millisecond}
}

func TestComplete_ReturnsText(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "Key takeaways: goroutines."})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", ClientConfig{Model: "tutor-1"})
	text, err := c.Complete(context.Background(), "summarize this")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Key takeaways: goroutines." {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "tutor-1" || gotReq.Prompt != "summarize this" {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "ok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", fastConfig())
	text, err := c.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "ok" {
		t.Fatalf("text = %q", text)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestComplete_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", fastConfig())
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// Initial attempt plus MaxRetries.
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestComplete_EmptyCompletionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "   "})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", fastConfig())
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestComplete_BreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ai-gateway",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})
	c := NewClient(srv.URL, "", fastConfig(), WithCircuitBreaker(cb))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Complete(ctx, "p"); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}
	if _, err := c.Complete(ctx, "p"); err != gobreaker.ErrOpenState {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
}
