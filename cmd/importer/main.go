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

	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/importer"
	platformanalytics "github.com/example/studytube/internal/platform/analytics"
	"github.com/example/studytube/internal/platform/config"
	"github.com/example/studytube/internal/platform/db"
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

	apiKey := strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY"))
	if apiKey == "" {
		log.Error("YOUTUBE_API_KEY is required")
		run.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx)
	if err != nil {
		log.Error("open database", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		run.Exit(1)
	}

	fetcher, err := importer.NewYouTubeClient(ctx, apiKey)
	if err != nil {
		log.Error("init youtube client", zap.Error(err))
		run.Exit(1)
	}

	imp := &importer.Importer{
		Catalog:   catalog.NewPostgresStore(pool),
		Fetcher:   fetcher,
		Analytics: platformanalytics.New(js, log),
		Log:       log,
	}
	wrk, err := importer.NewWorker(log, nc, imp)
	if err != nil {
		log.Error("worker init", zap.Error(err))
		run.Exit(1)
	}

	// Health endpoints only; the importer has no API surface.
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})
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
		log.Info("importer consuming", zap.String("subject", importer.SubjectImportPlaylist))
		err := wrk.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	runner.Shutdown(5*time.Second, srv.Shutdown)
	run.Exit(code)
}
