package main

import (
	"context"
	"net/http"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gitea.kood.tech/petrkubec/dev-radar/backend/events"
	"gitea.kood.tech/petrkubec/dev-radar/backend/graph"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
	"gitea.kood.tech/petrkubec/dev-radar/backend/storage"
)

// serverDeps are the backends chosen at startup.
type serverDeps struct {
	store   radar.Store
	backend radar.Backend

	// Exactly one of bus and listener is set.
	bus      events.Bus
	listener *storage.CreationListener

	checks map[string]healthCheck
}

type server struct {
	cfg      Config
	deps     serverDeps
	limits   radiusLimits
	geo      *radar.GeoIndex
	registry *radar.SessionRegistry
	notifier *radar.Notifier
	tokens   *sessionTokens
	metrics  *Metrics
	graphql  *handler.Server
	feed     creationFeed
}

func newServer(cfg Config, deps serverDeps) *server {
	s := &server{
		cfg:     cfg,
		deps:    deps,
		limits:  radiusLimits{Default: cfg.DefaultRadiusMeters, Max: cfg.MaxRadiusMeters},
		geo:     radar.NewGeoIndex(deps.backend),
		tokens:  newSessionTokens(cfg.SessionTokenSecret, cfg.SessionTokenTTL),
		metrics: newMetrics(),
	}
	s.registry = radar.NewSessionRegistry(
		radar.WithDefaultRadius(cfg.DefaultRadiusMeters),
		radar.WithGeohashPrecision(cfg.GeohashPrecision),
	)
	s.notifier = radar.NewNotifier(s.registry, s.metrics.observePass)

	resolver := graph.NewResolver(s.geo, deps.store, s.limits.resolve, func(ctx context.Context, id string) (radar.Record, error) {
		return loadDev(ctx, deps.store, id)
	})
	s.graphql = newGraphQLServer(resolver, s.metrics)

	if deps.listener != nil {
		s.feed = newPostgresFeed(deps.listener, deps.store, s.notifier, s.metrics)
	} else {
		s.feed = &busFeed{bus: deps.bus, source: cfg.CreationFeed, notifier: s.notifier, metrics: s.metrics}
	}
	return s
}

// publish is nil when the database announces inserts itself.
func (s *server) publish() publishFunc {
	if s.deps.bus == nil {
		return nil
	}
	return func(ctx context.Context, rec radar.Record) error {
		return s.deps.bus.Publish(ctx, rec)
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceRequests)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(withCORS(s.cfg.AllowedOrigins))

	r.Get("/health", healthHandler(s.registry, s.deps.checks))
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Get("/search", searchHandler(s.geo, s.limits, s.metrics))
	r.Get("/ws", liveHandler(liveOptions{
		registry:        s.registry,
		tokens:          s.tokens,
		limits:          s.limits,
		autoUpdateOnPan: s.cfg.AutoUpdateOnPan,
		allowedOrigins:  s.cfg.AllowedOrigins,
		metrics:         s.metrics,
	}))
	r.Post("/sessions/{id}/region", regionHandler(s.registry, s.tokens, s.limits))

	r.Route("/devs", func(r chi.Router) {
		r.Post("/", createDevHandler(s.deps.store, s.publish()))
		r.Get("/", listDevsHandler(s.deps.store))
		r.Get("/{id}", getDevHandler(s.deps.store))
	})

	r.Group(func(r chi.Router) {
		r.Use(DataLoaderMiddleware(s.deps.store))
		r.Method(http.MethodPost, "/graphql", s.graphql)
		r.Method(http.MethodGet, "/graphql", s.graphql)
	})

	// GraphQL playground for development only
	if s.cfg.isDevelopment() {
		r.Handle("/playground", playground.Handler("Dev Radar GraphQL", "/graphql"))
	}
	return r
}
