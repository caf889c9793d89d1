package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// DataLoaderMiddleware creates middleware that injects dataloaders into the request context
func DataLoaderMiddleware(store radar.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// New loaders per request so cached records never outlive it.
			ctx := WithDataLoaders(r.Context(), NewDataLoaders(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
