package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRadarError maps the error kind to a status code.
func writeRadarError(w http.ResponseWriter, r *http.Request, err error) {
	var re *radar.Error
	if !errors.As(err, &re) {
		loggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	switch re.Kind {
	case radar.KindInvalidArgument:
		writeError(w, http.StatusBadRequest, re.Message)
	case radar.KindNotFound:
		writeError(w, http.StatusNotFound, re.Message)
	default:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("datastore unavailable")
		writeError(w, http.StatusServiceUnavailable, re.Message)
	}
}

// --- Query parsing ---

// parseFloatParam reads a required float query parameter.
func parseFloatParam(q url.Values, name string) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, radar.InvalidArgument("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, radar.InvalidArgument("%s must be a number", name)
	}
	return v, nil
}

// parseOptionalFloat reads an optional float query parameter; absent means 0.
func parseOptionalFloat(q url.Values, name string) (float64, error) {
	if strings.TrimSpace(q.Get(name)) == "" {
		return 0, nil
	}
	return parseFloatParam(q, name)
}

// parsePointParams reads latitude and longitude.
func parsePointParams(q url.Values) (radar.Point, error) {
	lat, err := parseFloatParam(q, "latitude")
	if err != nil {
		return radar.Point{}, err
	}
	lon, err := parseFloatParam(q, "longitude")
	if err != nil {
		return radar.Point{}, err
	}
	return radar.NewPoint(lat, lon)
}

// parseTechsParam accepts "techs=a,b" as well as repeated techs parameters.
func parseTechsParam(q url.Values) []string {
	return radar.ParseTechs(strings.Join(q["techs"], ","))
}

// radiusLimits resolves the radius of a query the way the map client expects: visible region
// first, then an explicit radius, then the default. The result is capped at max.
type radiusLimits struct {
	Default float64
	Max     float64
}

func (l radiusLimits) resolve(center radar.Point, latDelta, lonDelta, radius float64) (float64, error) {
	switch {
	case latDelta != 0 || lonDelta != 0:
		radius = radar.RadiusFromDeltas(center, latDelta, lonDelta)
		// A region pinned to a pole collapses to a point, up to rounding.
		if radius < 1 {
			radius = l.Default
		}
	case radius < 0:
		return 0, radar.InvalidArgument("radius must be positive")
	case radius == 0:
		radius = l.Default
	}
	if err := radar.ValidateRadius(radius); err != nil {
		return 0, err
	}
	if l.Max > 0 && radius > l.Max {
		radius = l.Max
	}
	return radius, nil
}

// fromQuery reads latitudeDelta, longitudeDelta and radius.
func (l radiusLimits) fromQuery(q url.Values, center radar.Point) (float64, error) {
	latDelta, err := parseOptionalFloat(q, "latitudeDelta")
	if err != nil {
		return 0, err
	}
	lonDelta, err := parseOptionalFloat(q, "longitudeDelta")
	if err != nil {
		return 0, err
	}
	radius, err := parseOptionalFloat(q, "radius")
	if err != nil {
		return 0, err
	}
	return l.resolve(center, latDelta, lonDelta, radius)
}
