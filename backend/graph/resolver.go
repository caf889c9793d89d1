package graph

import (
	"context"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// This file will not be regenerated automatically.
//
// It serves as dependency injection for your app, add any dependencies you require
// here.

// RadiusFunc resolves the search radius from a visible region, an explicit radius or the
// server default. Zero arguments mean absent.
type RadiusFunc func(center radar.Point, latDelta, lonDelta, radius float64) (float64, error)

// LoadFunc fetches one record, usually through the request's dataloader.
type LoadFunc func(ctx context.Context, id string) (radar.Record, error)

type Resolver struct {
	geo    *radar.GeoIndex
	store  radar.Store
	radius RadiusFunc
	load   LoadFunc
}

// NewResolver creates a new resolver with dependencies. A nil load falls back to store.Get.
func NewResolver(geo *radar.GeoIndex, store radar.Store, radius RadiusFunc, load LoadFunc) *Resolver {
	if load == nil {
		load = store.Get
	}
	return &Resolver{geo: geo, store: store, radius: radius, load: load}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
