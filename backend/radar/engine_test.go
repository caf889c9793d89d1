package radar

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devAt(id string, lat, lon float64, techs ...string) Record {
	return Record{ID: id, Techs: techs, Location: Point{Latitude: lat, Longitude: lon}}
}

func TestMatchEngineNodeNearOrigin(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("s1", Point{}, 1000, []string{"node"}, nil))
	engine := NewMatchEngine(reg)

	assert.Equal(t, []string{"s1"}, engine.OnRecordCreated(devAt("d1", 0, 0.005, "node")))
	assert.Empty(t, engine.OnRecordCreated(devAt("d2", 0, 0.02, "node")))
	assert.Empty(t, engine.OnRecordCreated(devAt("d3", 0, 0.005, "python")))
}

func TestMatchEngineEmptyFilter(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("s1", Point{Latitude: 10, Longitude: 10}, 500, nil, nil))
	engine := NewMatchEngine(reg)

	assert.Equal(t, []string{"s1"}, engine.OnRecordCreated(devAt("d1", 10, 10, "python")))
	assert.Equal(t, []string{"s1"}, engine.OnRecordCreated(devAt("d2", 10, 10)))
}

func TestMatchEngineRecordWithoutTechs(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("filtered", Point{}, 1000, []string{"go"}, nil))
	require.NoError(t, reg.Register("open", Point{}, 1000, nil, nil))

	got := NewMatchEngine(reg).OnRecordCreated(devAt("d1", 0, 0))
	assert.Equal(t, []string{"open"}, got)
}

func TestMatchEngineInclusiveBoundary(t *testing.T) {
	reg := NewSessionRegistry()
	center := Point{Latitude: 45, Longitude: 7}
	rec := devAt("d1", 45.01, 7.01, "go")
	exact := Distance(center, rec.Location)

	require.NoError(t, reg.Register("edge", center, exact, nil, nil))
	require.NoError(t, reg.Register("short", center, exact-0.01, nil, nil))

	assert.Equal(t, []string{"edge"}, NewMatchEngine(reg).OnRecordCreated(rec))
}

func TestMatchEngineAfterUnregister(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("s1", Point{}, 1000, nil, nil))
	reg.Unregister("s1")

	assert.Empty(t, NewMatchEngine(reg).OnRecordCreated(devAt("d1", 0, 0)))
}

func TestMatchEngineFollowsUpdate(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("s1", Point{}, 1000, nil, nil))
	engine := NewMatchEngine(reg)
	rec := devAt("d1", 20, 20)

	assert.Empty(t, engine.OnRecordCreated(rec))
	require.NoError(t, reg.Update("s1", Point{Latitude: 20, Longitude: 20}, 0, nil))
	assert.Equal(t, []string{"s1"}, engine.OnRecordCreated(rec))
}

// naiveMatches is the reference: every active session checked directly.
func naiveMatches(reg *SessionRegistry, rec Record) []string {
	ids := []string{}
	for s := range reg.ListActive() {
		if Distance(s.Center, rec.Location) <= s.RadiusMeters && s.Tags.Accepts(rec.Techs) {
			ids = append(ids, s.ConnectionID)
		}
	}
	sort.Strings(ids)
	return ids
}

func TestMatchEngineBucketedEqualsNaive(t *testing.T) {
	techs := []string{"go", "rust", "node", "python"}
	regions := []struct {
		name             string
		lat, lon, spread float64
	}{
		{"mid latitude", 48, 11, 2},
		{"equator", 0, 0, 1},
		{"antimeridian", 0, 179.5, 1},
		{"high north", 82, 20, 3},
	}

	for _, precision := range []uint{3, 4, 5, 6} {
		for _, region := range regions {
			t.Run(fmt.Sprintf("%s/precision %d", region.name, precision), func(t *testing.T) {
				rng := rand.New(rand.NewSource(int64(precision)*1000 + int64(len(region.name))))
				bucketed := NewSessionRegistry(WithGeohashPrecision(precision))
				plain := NewSessionRegistry()

				for i := 0; i < 300; i++ {
					id := fmt.Sprintf("s%03d", i)
					center := randomPoint(rng, region.lat, region.lon, region.spread)
					radius := 50 * math.Exp(rng.Float64()*math.Log(1200))
					var tags []string
					if rng.Intn(3) > 0 {
						tags = []string{techs[rng.Intn(len(techs))]}
					}
					require.NoError(t, bucketed.Register(id, center, radius, tags, nil))
					require.NoError(t, plain.Register(id, center, radius, tags, nil))
				}

				bucketedEngine := NewMatchEngine(bucketed)
				plainEngine := NewMatchEngine(plain)
				for i := 0; i < 200; i++ {
					p := randomPoint(rng, region.lat, region.lon, region.spread)
					rec := Record{ID: fmt.Sprintf("d%d", i), Location: p, Techs: []string{techs[rng.Intn(len(techs))]}}

					want := naiveMatches(plain, rec)
					assert.Equal(t, want, plainEngine.OnRecordCreated(rec))
					assert.Equal(t, want, bucketedEngine.OnRecordCreated(rec), "record %+v", rec.Location)
				}
			})
		}
	}
}

func randomPoint(rng *rand.Rand, lat, lon, spread float64) Point {
	p := Point{
		Latitude:  lat + (rng.Float64()*2-1)*spread,
		Longitude: lon + (rng.Float64()*2-1)*spread,
	}
	if p.Longitude > 180 {
		p.Longitude -= 360
	}
	if p.Longitude < -180 {
		p.Longitude += 360
	}
	return p
}

func TestBucketIndexPlacement(t *testing.T) {
	b := newBucketIndex(5)

	small := Session{ConnectionID: "small", Center: Point{Latitude: 48, Longitude: 11}, RadiusMeters: 100}
	huge := Session{ConnectionID: "huge", Center: Point{Latitude: 48, Longitude: 11}, RadiusMeters: 100_000}
	polar := Session{ConnectionID: "polar", Center: Point{Latitude: 85, Longitude: 0}, RadiusMeters: 10}

	b.place(small)
	b.place(huge)
	b.place(polar)

	assert.NotEmpty(t, b.placement["small"])
	assert.Contains(t, b.wide, "huge")
	assert.Contains(t, b.wide, "polar")

	near := b.candidates(Point{Latitude: 48, Longitude: 11})
	assert.Contains(t, near, "small")
	assert.Contains(t, near, "huge")

	far := b.candidates(Point{Latitude: -30, Longitude: 100})
	assert.NotContains(t, far, "small")
	assert.Contains(t, far, "huge")

	b.remove("small")
	b.remove("huge")
	b.remove("missing")
	assert.Empty(t, b.cells)
	assert.NotContains(t, b.wide, "huge")
}
