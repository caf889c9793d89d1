package model

import "gitea.kood.tech/petrkubec/dev-radar/backend/radar"

// Dev is a developer as served over GraphQL.
type Dev struct {
	radar.Record

	// Distance in meters from the search center. Nil outside searchDevs.
	Distance *float64
}

// NewDevs wraps records, measuring each one's distance from center when center is set.
func NewDevs(recs []radar.Record, center *radar.Point) []*Dev {
	out := make([]*Dev, len(recs))
	for i, rec := range recs {
		d := &Dev{Record: rec}
		if center != nil {
			dist := radar.Distance(*center, rec.Location)
			d.Distance = &dist
		}
		out[i] = d
	}
	return out
}
