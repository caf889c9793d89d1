package radar

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	t.Run("zero for the same point", func(t *testing.T) {
		p := Point{Latitude: 59.437, Longitude: 24.7536}
		assert.Equal(t, 0.0, Distance(p, p))
	})

	t.Run("one degree of longitude on the equator", func(t *testing.T) {
		d := Distance(Point{}, Point{Longitude: 1})
		assert.InDelta(t, EarthRadiusMeters*math.Pi/180, d, 1e-6)
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Point{Latitude: 60.1699, Longitude: 24.9384}
		b := Point{Latitude: 61.4991, Longitude: 23.7871}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
		assert.InDelta(t, 160_000, Distance(a, b), 2_000)
	})

	t.Run("antipodes", func(t *testing.T) {
		d := Distance(Point{Latitude: 0, Longitude: 0}, Point{Latitude: 0, Longitude: 180})
		assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1e-3)
	})
}

func TestPointValidate(t *testing.T) {
	valid := []Point{
		{Latitude: 90, Longitude: 180},
		{Latitude: -90, Longitude: -180},
		{},
	}
	for _, p := range valid {
		assert.NoError(t, p.Validate(), "%+v", p)
	}

	invalid := []Point{
		{Latitude: 90.0001},
		{Longitude: -180.5},
		{Latitude: math.NaN()},
		{Longitude: math.Inf(1)},
	}
	for _, p := range invalid {
		err := p.Validate()
		require.Error(t, err, "%+v", p)
		assert.True(t, IsKind(err, KindInvalidArgument))
	}
}

func TestPointJSON(t *testing.T) {
	p := Point{Latitude: -23.5505, Longitude: -46.6333}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[-46.6333,-23.5505]}`, string(data))

	var back Point
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)

	err = json.Unmarshal([]byte(`{"type":"LineString","coordinates":[0,0]}`), &back)
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestRadiusFromDeltas(t *testing.T) {
	center := Point{Latitude: 0, Longitude: 0}
	r := RadiusFromDeltas(center, 0.04, 0.04)
	assert.InDelta(t, Distance(center, Point{Latitude: 0.02, Longitude: 0.02}), r, 1e-9)

	assert.Equal(t, 0.0, RadiusFromDeltas(center, 0, 0))
	assert.Equal(t, r, RadiusFromDeltas(center, -0.04, -0.04))
}

func TestBoundingBox(t *testing.T) {
	center := Point{Latitude: 45, Longitude: 10}
	radius := 50_000.0

	minLat, maxLat, minLon, maxLon, ok := BoundingBox(center, radius)
	require.True(t, ok)

	// Points on the circle in the four cardinal directions lie inside the box.
	edges := []Point{
		{Latitude: center.Latitude + radius/EarthRadiusMeters*180/math.Pi, Longitude: center.Longitude},
		{Latitude: center.Latitude - radius/EarthRadiusMeters*180/math.Pi, Longitude: center.Longitude},
	}
	for _, e := range edges {
		assert.GreaterOrEqual(t, e.Latitude, minLat-1e-9)
		assert.LessOrEqual(t, e.Latitude, maxLat+1e-9)
	}
	east := Point{Latitude: center.Latitude, Longitude: maxLon}
	assert.GreaterOrEqual(t, Distance(center, east), radius)
	west := Point{Latitude: center.Latitude, Longitude: minLon}
	assert.GreaterOrEqual(t, Distance(center, west), radius)

	t.Run("wraps the antimeridian", func(t *testing.T) {
		_, _, minLon, maxLon, ok := BoundingBox(Point{Latitude: 0, Longitude: 179.9}, 50_000)
		assert.False(t, ok)
		assert.Equal(t, -180.0, minLon)
		assert.Equal(t, 180.0, maxLon)
	})

	t.Run("reaches a pole", func(t *testing.T) {
		_, maxLat, _, _, ok := BoundingBox(Point{Latitude: 89.9, Longitude: 0}, 50_000)
		assert.False(t, ok)
		assert.Equal(t, 90.0, maxLat)
	})
}
