package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/analytics"
	"github.com/example/studytube/internal/platform/config"
	"github.com/example/studytube/internal/platform/httpserver"
	"github.com/example/studytube/internal/platform/logging"
	"github.com/example/studytube/internal/platform/natsconn"
	"github.com/example/studytube/internal/platform/run"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	apiKey := strings.TrimSpace(os.Getenv("POSTHOG_API_KEY"))
	if apiKey == "" {
		log.Error("POSTHOG_API_KEY is required")
		run.Exit(1)
	}
	host := strings.TrimSpace(os.Getenv("POSTHOG_HOST"))
	if host == "" {
		host = "https://app.posthog.com"
	}

	ph, err := analytics.NewPostHogClient(apiKey, host, 5*time.Second, 50, log)
	if err != nil {
		log.Error("init posthog client", zap.Error(err))
		run.Exit(1)
	}
	defer func() { _ = ph.Close() }()

	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	defer nc.Close()

	consumer, err := analytics.NewConsumer(nc, analytics.NewDispatcher(ph, log), 0, 0, log)
	if err != nil {
		log.Error("consumer init", zap.Error(err))
		run.Exit(1)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r)
	srv := httpserver.New(httpserver.Options{
		Addr:        cfg.HTTP.Addr,
		ServiceName: cfg.ServiceName,
		Logger:      log,
		Router:      r,
	})
	go func() {
		if err := srv.Start(log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server stopped", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		log.Info("analytics consumer running")
		consumer.Run(ctx)
		return nil
	})
	runner.Shutdown(5*time.Second, srv.Shutdown)
	run.Exit(code)
}
