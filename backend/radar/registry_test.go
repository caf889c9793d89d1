package radar

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	reg := NewSessionRegistry()
	center := Point{Latitude: 10, Longitude: 10}

	require.NoError(t, reg.Register("a", center, 500, []string{"go"}, nil))
	require.NoError(t, reg.Register("a", center, 500, []string{"go"}, nil))

	assert.Equal(t, 1, reg.Len())
	s, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", s.ConnectionID)
	assert.Equal(t, center, s.Center)
	assert.Equal(t, 500.0, s.RadiusMeters)
	assert.True(t, s.Tags.Equal(NewTagSet([]string{"go"})))
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg := NewSessionRegistry()

	err := reg.Register("", Point{}, 100, nil, nil)
	assert.True(t, IsKind(err, KindInvalidArgument))

	err = reg.Register("a", Point{Latitude: 91}, 100, nil, nil)
	assert.True(t, IsKind(err, KindInvalidArgument))

	assert.Equal(t, 0, reg.Len())
}

func TestRegistryDefaultRadius(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("a", Point{}, 0, nil, nil))
	s, _ := reg.Get("a")
	assert.Equal(t, DefaultRadiusMeters, s.RadiusMeters)

	custom := NewSessionRegistry(WithDefaultRadius(2500))
	require.NoError(t, custom.Register("a", Point{}, -1, nil, nil))
	s, _ = custom.Get("a")
	assert.Equal(t, 2500.0, s.RadiusMeters)
	assert.Equal(t, 2500.0, custom.DefaultRadius())
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewSessionRegistry()
	require.NoError(t, reg.Register("a", Point{}, 100, nil, nil))

	reg.Unregister("a")
	reg.Unregister("a")
	reg.Unregister("never-registered")

	assert.Equal(t, 0, reg.Len())
	_, ok := reg.Get("a")
	assert.False(t, ok)
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewSessionRegistry()
	ch := &recordingChannel{}
	require.NoError(t, reg.Register("a", Point{}, 700, []string{"go"}, ch))

	t.Run("keeps radius and channel when radius is not given", func(t *testing.T) {
		moved := Point{Latitude: 1, Longitude: 1}
		require.NoError(t, reg.Update("a", moved, 0, []string{"rust"}))

		s, ok := reg.Get("a")
		require.True(t, ok)
		assert.Equal(t, moved, s.Center)
		assert.Equal(t, 700.0, s.RadiusMeters)
		assert.True(t, s.Tags.Equal(NewTagSet([]string{"rust"})))

		got, ok := reg.Channel("a")
		require.True(t, ok)
		assert.Same(t, ch, got)
	})

	t.Run("replaces radius when given", func(t *testing.T) {
		require.NoError(t, reg.Update("a", Point{}, 1200, nil))
		s, _ := reg.Get("a")
		assert.Equal(t, 1200.0, s.RadiusMeters)
		assert.True(t, s.Tags.Empty())
	})

	t.Run("repeated updates converge", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, reg.Update("a", Point{Latitude: 5}, 300, []string{"go"}))
		}
		s, _ := reg.Get("a")
		assert.Equal(t, Point{Latitude: 5}, s.Center)
		assert.Equal(t, 300.0, s.RadiusMeters)
	})

	t.Run("unknown id registers without a channel", func(t *testing.T) {
		require.NoError(t, reg.Update("b", Point{}, 0, nil))
		s, ok := reg.Get("b")
		require.True(t, ok)
		assert.Equal(t, DefaultRadiusMeters, s.RadiusMeters)
		_, ok = reg.Channel("b")
		assert.False(t, ok)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		err := reg.Update("a", Point{Longitude: 200}, 0, nil)
		assert.True(t, IsKind(err, KindInvalidArgument))
	})
}

func TestRegistryUpdateExisting(t *testing.T) {
	reg := NewSessionRegistry()
	ch := &recordingChannel{}
	require.NoError(t, reg.Register("a", Point{}, 700, []string{"go"}, ch))

	t.Run("updates a live session", func(t *testing.T) {
		s, ok, err := reg.UpdateExisting("a", Point{Latitude: 2}, 0, []string{"rust"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Point{Latitude: 2}, s.Center)
		assert.Equal(t, 700.0, s.RadiusMeters)

		got, _ := reg.Get("a")
		assert.Equal(t, s.Center, got.Center)
		assert.True(t, got.Tags.Has("rust"))
		bound, ok := reg.Channel("a")
		require.True(t, ok)
		assert.Same(t, ch, bound)
	})

	t.Run("does not register an unknown id", func(t *testing.T) {
		_, ok, err := reg.UpdateExisting("gone", Point{}, 500, nil)
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok = reg.Get("gone")
		assert.False(t, ok)
	})

	t.Run("does not resurrect after unregister", func(t *testing.T) {
		reg.Unregister("a")
		_, ok, err := reg.UpdateExisting("a", Point{}, 0, nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, reg.Len())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, _, err := reg.UpdateExisting("a", Point{Latitude: 95}, 0, nil)
		assert.True(t, IsKind(err, KindInvalidArgument))
	})
}

func TestRegistryListActive(t *testing.T) {
	reg := NewSessionRegistry()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(id, Point{}, 100, nil, nil))
	}

	var ids []string
	for s := range reg.ListActive() {
		ids = append(ids, s.ConnectionID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	t.Run("restartable", func(t *testing.T) {
		seq := reg.ListActive()
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
	})

	t.Run("lock is released while iterating", func(t *testing.T) {
		for s := range reg.ListActive() {
			reg.Unregister(s.ConnectionID)
			require.NoError(t, reg.Register(s.ConnectionID+"2", Point{}, 100, nil, nil))
		}
		var after []string
		for s := range reg.ListActive() {
			after = append(after, s.ConnectionID)
		}
		assert.Equal(t, []string{"a2", "b2", "c2"}, after)
	})

	t.Run("early break", func(t *testing.T) {
		n := 0
		for range reg.ListActive() {
			n++
			break
		}
		assert.Equal(t, 1, n)
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewSessionRegistry(WithGeohashPrecision(5))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i%10)
				p := Point{Latitude: float64(i%20) / 10, Longitude: float64(w) / 10}
				_ = reg.Register(id, p, 1000, []string{"go"}, nil)
				_ = reg.Update(id, p, 0, nil)
				for s := range reg.Candidates(p) {
					_ = s.Tags.Accepts([]string{"go"})
				}
				if i%3 == 0 {
					reg.Unregister(id)
				}
			}
		}(w)
	}
	wg.Wait()

	n := 0
	for range reg.ListActive() {
		n++
	}
	assert.Equal(t, reg.Len(), n)
}
