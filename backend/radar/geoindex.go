package radar

import (
	"context"
	"math"
	"sort"
)

// Backend is a datastore that can answer radius queries over record locations.
//
// Implementations must treat the radius boundary as inclusive, apply the tag filter with OR
// semantics (an empty set accepts every record) and should return results nearest first.
type Backend interface {
	Nearby(ctx context.Context, center Point, radiusMeters float64, tags TagSet) ([]Record, error)
}

// GeoIndex validates radius queries and delegates them to a Backend.
type GeoIndex struct {
	backend Backend
}

// NewGeoIndex wraps backend.
func NewGeoIndex(backend Backend) *GeoIndex {
	return &GeoIndex{backend: backend}
}

// Query returns the records within radiusMeters of center whose techs intersect tags.
func (g *GeoIndex) Query(ctx context.Context, center Point, radiusMeters float64, tags []string) ([]Record, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateRadius(radiusMeters); err != nil {
		return nil, err
	}

	recs, err := g.backend.Nearby(ctx, center, radiusMeters, NewTagSet(tags))
	if err != nil {
		if KindOf(err) != "" {
			return nil, err
		}
		return nil, Transient("geo index query failed", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// ValidateRadius rejects non-positive and non-finite radii.
func ValidateRadius(radiusMeters float64) error {
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) || radiusMeters <= 0 {
		return InvalidArgument("radius must be a positive number of meters, got %v", radiusMeters)
	}
	return nil
}

// FilterNearby keeps the candidates within radiusMeters of center that pass the tag filter and
// sorts them nearest first. Backends that prefilter coarsely (bounding boxes, search engines)
// finish with it.
func FilterNearby(candidates []Record, center Point, radiusMeters float64, tags TagSet) []Record {
	type hit struct {
		rec  Record
		dist float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, rec := range candidates {
		if !tags.Accepts(rec.Techs) {
			continue
		}
		d := Distance(center, rec.Location)
		if d > radiusMeters {
			continue
		}
		hits = append(hits, hit{rec: rec, dist: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist == hits[j].dist {
			return hits[i].rec.ID < hits[j].rec.ID
		}
		return hits[i].dist < hits[j].dist
	})

	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}
