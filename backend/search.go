package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

type searchResponse struct {
	Devs []radar.Record `json:"devs"`
}

// searchHandler answers GET /search with every dev inside the requested circle.
func searchHandler(geo *radar.GeoIndex, limits radiusLimits, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		center, err := parsePointParams(q)
		if err != nil {
			metrics.searchOutcome(err)
			writeRadarError(w, r, err)
			return
		}
		radius, err := limits.fromQuery(q, center)
		if err != nil {
			metrics.searchOutcome(err)
			writeRadarError(w, r, err)
			return
		}

		devs, err := geo.Query(r.Context(), center, radius, parseTechsParam(q))
		metrics.searchOutcome(err)
		if err != nil {
			writeRadarError(w, r, err)
			return
		}
		if devs == nil {
			devs = []radar.Record{}
		}
		writeJSON(w, http.StatusOK, searchResponse{Devs: devs})
	}
}
