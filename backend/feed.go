package main

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"

	"gitea.kood.tech/petrkubec/dev-radar/backend/events"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
	"gitea.kood.tech/petrkubec/dev-radar/backend/storage"
)

// creationFeed delivers every created dev to the notifier exactly once per instance.
type creationFeed interface {
	// start subscribes and returns the loop that consumes the feed until ctx is done.
	start(ctx context.Context) (func() error, error)
}

// busFeed consumes a local or Redis bus.
type busFeed struct {
	bus      events.Bus
	source   string
	notifier *radar.Notifier
	metrics  *Metrics
}

func (f *busFeed) start(ctx context.Context) (func() error, error) {
	created, err := f.bus.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return func() error {
		for rec := range created {
			f.metrics.CreationEvents.WithLabelValues(f.source).Inc()
			f.notifier.RecordCreated(ctx, rec)
		}
		return nil
	}, nil
}

// postgresFeed consumes devs_created notifications. Ids arriving close together are loaded
// in one query.
type postgresFeed struct {
	listener *storage.CreationListener
	loader   *dataloader.Loader[string, radar.Record]
	notifier *radar.Notifier
	metrics  *Metrics
}

func newPostgresFeed(listener *storage.CreationListener, store radar.Store, notifier *radar.Notifier, metrics *Metrics) *postgresFeed {
	return &postgresFeed{
		listener: listener,
		loader:   newDevLoader(store, dataloader.WithCache[string, radar.Record](&dataloader.NoCache[string, radar.Record]{})),
		notifier: notifier,
		metrics:  metrics,
	}
}

func (f *postgresFeed) start(ctx context.Context) (func() error, error) {
	return func() error {
		return f.listener.Run(ctx, f.created)
	}, nil
}

func (f *postgresFeed) created(ctx context.Context, id string) {
	f.metrics.CreationEvents.WithLabelValues(feedPostgres).Inc()
	thunk := f.loader.Load(ctx, id)
	go func() {
		rec, err := thunk()
		if err != nil {
			log.Warn().Err(err).Str("dev_id", id).Msg("failed to load notified dev")
			return
		}
		f.notifier.RecordCreated(ctx, rec)
	}()
}
