package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/studytube/internal/ai"
	"github.com/example/studytube/internal/auth"
	"github.com/example/studytube/internal/billing"
	"github.com/example/studytube/internal/billing/idempotency"
	"github.com/example/studytube/internal/cache"
	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/httpapi"
	"github.com/example/studytube/internal/notes"
	platformanalytics "github.com/example/studytube/internal/platform/analytics"
	platformauth "github.com/example/studytube/internal/platform/auth"
	"github.com/example/studytube/internal/platform/config"
	"github.com/example/studytube/internal/platform/db"
	"github.com/example/studytube/internal/platform/httpserver"
	"github.com/example/studytube/internal/platform/logging"
	"github.com/example/studytube/internal/platform/natsconn"
	"github.com/example/studytube/internal/platform/run"
	"github.com/example/studytube/internal/platform/signing"
	"github.com/example/studytube/internal/player"
	"github.com/example/studytube/internal/progress"
	"github.com/example/studytube/internal/search"
	"github.com/example/studytube/internal/search/meili"
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

	apiCfg, err := loadAPIConfig()
	if err != nil {
		log.Error("load api config", zap.Error(err))
		run.Exit(1)
	}

	// Background workers live on this context; it is cancelled on
	// shutdown so the session manager can flush open sessions.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pool, err := db.Open(workerCtx)
	if err != nil {
		log.Error("open database", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	nc, err := natsconn.Connect(natsconn.Options{URL: apiCfg.NATSURL})
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
	if err := progress.EnsureStream(js); err != nil {
		log.Error("ensure progress stream", zap.Error(err))
		run.Exit(1)
	}

	events := platformanalytics.New(js, log)

	authSvc := &auth.Service{
		Store: auth.PostgresStore{DB: pool},
		Tokens: auth.Tokens{
			Secret:          apiCfg.JWTSecret,
			AccessTokenTTL:  apiCfg.AccessTokenTTL,
			RefreshTokenTTL: apiCfg.RefreshTokenTTL,
		},
		BootstrapAdminUsername: apiCfg.BootstrapAdminUsername,
		Analytics:              events,
	}

	catalogStore := catalog.NewPostgresStore(pool)
	progressStore := progress.NewPostgresStore(pool)
	notesStore := notes.NewPostgresStore(pool)

	idem, err := idempotency.NewStore(apiCfg.RedisURL, os.Getenv("DATABASE_URL"), 24*time.Hour, apiCfg.Production)
	if err != nil {
		log.Error("init idempotency store", zap.Error(err))
		run.Exit(1)
	}
	billingSvc := &billing.Service{
		Store:     billing.NewPostgresStore(pool),
		Idem:      idem,
		Analytics: events,
		Log:       log,
	}

	var aiSvc *ai.Service
	if apiCfg.AIBaseURL != "" {
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ai-gateway",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("circuit-breaker state change",
					zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		var summaryCache *cache.RedisCache
		if apiCfg.RedisURL != "" {
			summaryCache, err = cache.NewRedisCache(apiCfg.RedisURL, time.Hour)
			if err != nil {
				log.Warn("summary cache disabled", zap.Error(err))
			}
		}
		client := ai.NewClient(apiCfg.AIBaseURL, apiCfg.AIAPIKey,
			ai.ClientConfig{Model: apiCfg.AIModel},
			ai.WithCircuitBreaker(cb), ai.WithLogger(log))
		aiSvc = &ai.Service{
			Store:     ai.NewPostgresStore(pool),
			Completer: client,
			Catalog:   catalogStore,
			Notes:     notesStore,
			Cache:     summaryCache,
			Model:     apiCfg.AIModel,
			Analytics: events,
			Log:       log,
		}
	} else {
		log.Info("AI gateway not configured, summary routes disabled")
	}

	var searchSvc *search.Service
	if apiCfg.MeiliURL != "" {
		mc := meili.New(apiCfg.MeiliURL, apiCfg.MeiliAPIKey)
		searchSvc = &search.Service{Searcher: mc}
		indexer := &search.Indexer{Catalog: catalogStore, Meili: mc, Log: log, NATS: nc}
		go func() {
			if err := indexer.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				log.Error("search indexer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("Meilisearch not configured, search routes disabled")
	}

	manager := player.NewManager(player.ManagerConfig{
		Store: progress.NewSessionAdapter(progressStore),
		Log:   log,
	})
	managerDone := make(chan struct{})
	go func() {
		defer close(managerDone)
		if err := manager.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error("player manager stopped", zap.Error(err))
		}
	}()

	outbox := catalog.NewOutboxPublisher(log, pool, js)
	go func() {
		if err := outbox.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error("outbox publisher stopped", zap.Error(err))
		}
	}()

	upsertWorker := progress.NewWorker(js, pool, log, progress.WorkerConfig{})
	go func() {
		if err := upsertWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Error("progress worker stopped", zap.Error(err))
		}
	}()

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})
	httpapi.Mount(r, httpapi.Deps{
		Auth:         authSvc,
		Verifier:     platformauth.JWTVerifier{Secret: apiCfg.JWTSecret},
		Catalog:      catalogStore,
		Progress:     progressStore,
		Notes:        notesStore,
		Player:       manager,
		Billing:      billingSvc,
		AI:           aiSvc,
		Search:       searchSvc,
		JetStream:    js,
		Analytics:    events,
		ShareSigner:  &signing.Signer{Secret: apiCfg.ShareSecret},
		ShareBaseURL: apiCfg.ShareBaseURL,
	})

	srv := httpserver.New(httpserver.Options{
		Addr:        cfg.HTTP.Addr,
		ServiceName: cfg.ServiceName,
		Logger:      log,
		Router:      r,
	})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		log.Info("api listening", zap.String("addr", cfg.HTTP.Addr))
		err := srv.Start(log)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	runner.Shutdown(10*time.Second, srv.Shutdown)

	// Stop the workers and wait for the manager to close every open
	// playback session, flushing their progress.
	stopWorkers()
	select {
	case <-managerDone:
	case <-time.After(10 * time.Second):
		log.Warn("timed out waiting for playback sessions to flush")
	}
	run.Exit(code)
}
