package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gitea.kood.tech/petrkubec/dev-radar/backend/events"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
	"gitea.kood.tech/petrkubec/dev-radar/backend/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("dev radar stopped")
	}
	log.Info().Msg("dev radar stopped")
}

func run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracing")
		}
	}()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := newServer(cfg, deps)

	g, gctx := errgroup.WithContext(ctx)

	consume, err := srv.feed.start(gctx)
	if err != nil {
		return fmt.Errorf("subscribe to creation feed: %w", err)
	}
	g.Go(consume)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info().
			Int("port", cfg.Port).
			Str("geo_backend", cfg.GeoBackend).
			Str("creation_feed", cfg.CreationFeed).
			Bool("auto_update_on_pan", cfg.AutoUpdateOnPan).
			Msg("starting dev radar")
		if cfg.isDevelopment() {
			log.Info().Msgf("GraphQL playground available at http://localhost:%d/playground", cfg.Port)
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildDeps connects the store, search backend and creation feed selected by cfg.
func buildDeps(ctx context.Context, cfg Config) (serverDeps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (serverDeps, func(), error) {
		cleanup()
		return serverDeps{}, func() {}, err
	}

	deps := serverDeps{checks: map[string]healthCheck{}}

	memory := radar.NewMemoryIndex()
	deps.store = memory
	deps.backend = memory

	if cfg.DatabaseURL != "" && cfg.GeoBackend != backendMemory {
		db, err := openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { db.Close() })

		pg := storage.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("migrate database: %w", err))
		}
		deps.store = pg
		deps.backend = pg
		deps.checks["postgres"] = db.PingContext
	}

	if cfg.GeoBackend == backendTypesense {
		ts := storage.NewTypesense(cfg.TypesenseURL, cfg.TypesenseAPIKey)
		if err := withRetry(ctx, defaultRetry, "typesense", ts.Ping); err != nil {
			return fail(err)
		}
		if err := ts.InitSchema(ctx); err != nil {
			return fail(fmt.Errorf("init typesense schema: %w", err))
		}
		indexed := storage.NewIndexed(deps.store, ts)
		if n, err := indexed.Reindex(ctx); err != nil {
			log.Warn().Err(err).Msg("typesense reindex failed")
		} else {
			log.Info().Int("devs", n).Msg("typesense index rebuilt")
		}
		deps.store = indexed
		deps.backend = ts
		deps.checks["typesense"] = ts.Ping
	}

	switch cfg.CreationFeed {
	case feedRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		if err := withRetry(ctx, defaultRetry, "redis", ping); err != nil {
			client.Close()
			return fail(err)
		}
		bus := events.NewRedisBus(client)
		closers = append(closers, func() { bus.Close() })
		deps.bus = bus
		deps.checks["redis"] = ping
	case feedPostgres:
		listener, err := storage.NewCreationListener(cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("listen for dev creations: %w", err))
		}
		deps.listener = listener
	default:
		bus := events.NewLocalBus()
		closers = append(closers, func() { bus.Close() })
		deps.bus = bus
	}

	return deps, cleanup, nil
}
