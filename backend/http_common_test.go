package main

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

func TestRadiusLimitsResolve(t *testing.T) {
	limits := radiusLimits{Default: 10000, Max: 200000}
	center := radar.Point{Latitude: 0, Longitude: 0}

	t.Run("Default when nothing is given", func(t *testing.T) {
		r, err := limits.resolve(center, 0, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 10000.0, r)
	})

	t.Run("Explicit radius", func(t *testing.T) {
		r, err := limits.resolve(center, 0, 0, 750)
		require.NoError(t, err)
		assert.Equal(t, 750.0, r)
	})

	t.Run("Deltas take precedence over radius", func(t *testing.T) {
		r, err := limits.resolve(center, 0.1, 0.1, 750)
		require.NoError(t, err)
		assert.InDelta(t, radar.RadiusFromDeltas(center, 0.1, 0.1), r, 1e-9)
	})

	t.Run("Degenerate region at a pole falls back to default", func(t *testing.T) {
		north := radar.Point{Latitude: 90, Longitude: 10}
		r, err := limits.resolve(north, 0.5, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 10000.0, r)

		r, err = limits.resolve(north, 0, 40, 0)
		require.NoError(t, err)
		assert.Equal(t, 10000.0, r)

		south := radar.Point{Latitude: -90}
		r, err = limits.resolve(south, 0.5, 0, 0)
		require.NoError(t, err)
		assert.Greater(t, r, 0.0)
	})

	t.Run("Capped at max", func(t *testing.T) {
		r, err := limits.resolve(center, 0, 0, 1e7)
		require.NoError(t, err)
		assert.Equal(t, 200000.0, r)
	})

	t.Run("Rejects negative and non-finite", func(t *testing.T) {
		for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
			_, err := limits.resolve(center, 0, 0, bad)
			assert.True(t, radar.IsKind(err, radar.KindInvalidArgument), "%v", bad)
		}
	})
}

func TestRadiusLimitsFromQuery(t *testing.T) {
	limits := radiusLimits{Default: 10000, Max: 200000}

	r, err := limits.fromQuery(url.Values{"radius": {"1200"}}, radar.Point{})
	require.NoError(t, err)
	assert.Equal(t, 1200.0, r)

	_, err = limits.fromQuery(url.Values{"latitudeDelta": {"wide"}}, radar.Point{})
	assert.True(t, radar.IsKind(err, radar.KindInvalidArgument))
}

func TestParsePointParams(t *testing.T) {
	p, err := parsePointParams(url.Values{"latitude": {" 59.4 "}, "longitude": {"24.7"}})
	require.NoError(t, err)
	assert.Equal(t, radar.Point{Latitude: 59.4, Longitude: 24.7}, p)

	for name, q := range map[string]url.Values{
		"missing latitude":  {"longitude": {"1"}},
		"missing longitude": {"latitude": {"1"}},
		"not a number":      {"latitude": {"north"}, "longitude": {"1"}},
		"out of range":      {"latitude": {"0"}, "longitude": {"181"}},
	} {
		_, err := parsePointParams(q)
		assert.True(t, radar.IsKind(err, radar.KindInvalidArgument), name)
	}
}

func TestParseTechsParam(t *testing.T) {
	assert.Equal(t, []string{"node", "Go"}, parseTechsParam(url.Values{"techs": {"node, Go,,node"}}))
	assert.Equal(t, []string{"node", "go"}, parseTechsParam(url.Values{"techs": {"node", "go"}}))
	assert.Empty(t, parseTechsParam(url.Values{}))
}

func TestWriteRadarError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{radar.InvalidArgument("bad latitude"), http.StatusBadRequest, `{"error":"bad latitude"}`},
		{radar.NotFound("dev x not found"), http.StatusNotFound, `{"error":"dev x not found"}`},
		{radar.Transient("database unavailable", errors.New("dial tcp")), http.StatusServiceUnavailable, `{"error":"database unavailable"}`},
		{errors.New("boom"), http.StatusInternalServerError, `{"error":"internal_error"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeRadarError(rec, httptest.NewRequest(http.MethodGet, "/search", nil), tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.JSONEq(t, tc.body, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestTechsField(t *testing.T) {
	var msg criteriaMessage
	require.NoError(t, json.Unmarshal([]byte(`{"techs":"go, rust"}`), &msg))
	assert.Equal(t, techsField{"go", "rust"}, msg.Techs)

	require.NoError(t, json.Unmarshal([]byte(`{"techs":["go"," Rust ","GO"]}`), &msg))
	assert.Equal(t, techsField{"go", "Rust"}, msg.Techs)

	assert.Error(t, json.Unmarshal([]byte(`{"techs":42}`), &msg))
}
