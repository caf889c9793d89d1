package main

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

const loaderWait = 16 * time.Millisecond

// DataLoaders holds all the dataloaders for the application
type DataLoaders struct {
	DevLoader *dataloader.Loader[string, radar.Record]
}

// NewDataLoaders creates request scoped dataloaders over store
func NewDataLoaders(store radar.Store) *DataLoaders {
	return &DataLoaders{DevLoader: newDevLoader(store)}
}

// newDevLoader batches dev lookups by id. Extra options are appended to the defaults.
func newDevLoader(store radar.Store, opts ...dataloader.Option[string, radar.Record]) *dataloader.Loader[string, radar.Record] {
	opts = append([]dataloader.Option[string, radar.Record]{
		dataloader.WithWait[string, radar.Record](loaderWait),
	}, opts...)
	return dataloader.NewBatchedLoader(devBatchFn(store), opts...)
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// devBatchFn resolves one batch of ids with a single GetByIDs call. Results follow key order.
func devBatchFn(store radar.Store) dataloader.BatchFunc[string, radar.Record] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[radar.Record] {
		results := make([]*dataloader.Result[radar.Record], len(keys))

		recs, err := store.GetByIDs(ctx, keys)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result[radar.Record]{Error: err}
			}
			return results
		}

		byID := make(map[string]radar.Record, len(recs))
		for _, rec := range recs {
			byID[rec.ID] = rec
		}
		for i, key := range keys {
			if rec, ok := byID[key]; ok {
				results[i] = &dataloader.Result[radar.Record]{Data: rec}
			} else {
				results[i] = &dataloader.Result[radar.Record]{Error: radar.NotFound("dev %s not found", key)}
			}
		}
		return results
	}
}

// loadDev goes through the request's loader when there is one.
func loadDev(ctx context.Context, store radar.Store, id string) (radar.Record, error) {
	if dl := GetDataLoadersFromContext(ctx); dl != nil {
		return dl.DevLoader.Load(ctx, id)()
	}
	return store.Get(ctx, id)
}
