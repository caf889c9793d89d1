package radar

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

// Sessions whose radius exceeds this share of their cell's smaller side are kept in the wide
// list, so a 3x3 block of cells around a record always covers every bucketed session that can
// reach it.
const bucketRadiusShare = 0.5

const maxBucketLatitude = 80.0

// bucketIndex maps geohash cells to the sessions centered in them. Callers hold the registry
// lock.
type bucketIndex struct {
	precision uint
	cells     map[string]map[string]struct{}
	wide      map[string]struct{}
	placement map[string]string
}

func newBucketIndex(precision uint) *bucketIndex {
	if precision > 12 {
		precision = 12
	}
	return &bucketIndex{
		precision: precision,
		cells:     make(map[string]map[string]struct{}),
		wide:      make(map[string]struct{}),
		placement: make(map[string]string),
	}
}

func (b *bucketIndex) place(s Session) {
	b.remove(s.ConnectionID)

	cell, ok := b.cellFor(s)
	if !ok {
		b.wide[s.ConnectionID] = struct{}{}
		b.placement[s.ConnectionID] = ""
		return
	}
	ids, exists := b.cells[cell]
	if !exists {
		ids = make(map[string]struct{})
		b.cells[cell] = ids
	}
	ids[s.ConnectionID] = struct{}{}
	b.placement[s.ConnectionID] = cell
}

func (b *bucketIndex) remove(id string) {
	cell, ok := b.placement[id]
	if !ok {
		return
	}
	delete(b.placement, id)
	if cell == "" {
		delete(b.wide, id)
		return
	}
	if ids := b.cells[cell]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(b.cells, cell)
		}
	}
}

// candidates returns the ids of sessions in the cell of p, its eight neighbors and the wide list.
func (b *bucketIndex) candidates(p Point) map[string]struct{} {
	out := make(map[string]struct{}, len(b.wide))
	for id := range b.wide {
		out[id] = struct{}{}
	}
	cell := geohash.EncodeWithPrecision(p.Latitude, p.Longitude, b.precision)
	for _, c := range append(geohash.Neighbors(cell), cell) {
		for id := range b.cells[c] {
			out[id] = struct{}{}
		}
	}
	return out
}

// cellFor returns the cell a session is bucketed under, or false when it belongs in the wide
// list.
func (b *bucketIndex) cellFor(s Session) (string, bool) {
	if math.Abs(s.Center.Latitude) > maxBucketLatitude {
		return "", false
	}
	cell := geohash.EncodeWithPrecision(s.Center.Latitude, s.Center.Longitude, b.precision)
	box := geohash.BoundingBox(cell)

	latSpan := box.MaxLat - box.MinLat
	lngSpan := box.MaxLng - box.MinLng
	if box.MinLng-lngSpan < -180 || box.MaxLng+lngSpan > 180 {
		return "", false
	}
	if box.MinLat-latSpan < -90 || box.MaxLat+latSpan > 90 {
		return "", false
	}

	// The neighbor rows reach one cell further toward the pole, where cells are narrowest.
	edgeLat := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat)) + latSpan
	if edgeLat >= 90 {
		return "", false
	}
	height := Distance(Point{Latitude: box.MinLat, Longitude: box.MinLng}, Point{Latitude: box.MaxLat, Longitude: box.MinLng})
	width := Distance(Point{Latitude: edgeLat, Longitude: box.MinLng}, Point{Latitude: edgeLat, Longitude: box.MaxLng})
	if s.RadiusMeters > bucketRadiusShare*math.Min(height, width) {
		return "", false
	}
	return cell, true
}
