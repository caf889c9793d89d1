package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

func TestNearbyFilter(t *testing.T) {
	center := radar.Point{Latitude: -23.5, Longitude: -46.6}

	assert.Equal(t, "location:(-23.500000, -46.600000, 10.100000 km)",
		nearbyFilter(center, 10000, radar.TagSet{}))

	assert.Equal(t, "location:(-23.500000, -46.600000, 1.010000 km) && tech_keys:=[`node.js`,`react`]",
		nearbyFilter(center, 1000, radar.NewTagSet([]string{"React", "Node.js"})))
}

func TestDevDocumentRoundTrip(t *testing.T) {
	rec := radar.Record{
		ID: "d1",
		Profile: radar.Profile{
			GithubUsername: "octocat",
			Name:           "Mona",
			AvatarURL:      "https://avatars/1",
			Bio:            "hi",
		},
		Techs:     []string{"Go", "Rust"},
		Location:  radar.Point{Latitude: 59.4, Longitude: 24.7},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}

	doc := devDocument(rec)
	assert.Equal(t, []string{"go", "rust"}, doc["tech_keys"])
	assert.Equal(t, []float64{59.4, 24.7}, doc["location"])

	// Documents come back from the JSON API with generic types.
	decoded := map[string]any{
		"id":              "d1",
		"github_username": "octocat",
		"name":            "Mona",
		"avatar_url":      "https://avatars/1",
		"bio":             "hi",
		"techs":           []any{"Go", "Rust"},
		"tech_keys":       []any{"go", "rust"},
		"location":        []any{59.4, 24.7},
		"created_at":      float64(1700000000),
	}
	back, ok := recordFromDocument(decoded)
	require.True(t, ok)
	assert.Equal(t, rec, back)
}

func TestRecordFromDocumentRejectsMalformed(t *testing.T) {
	for _, doc := range []map[string]any{
		{"location": []any{1.0, 2.0}},
		{"id": "x"},
		{"id": "x", "location": []any{1.0}},
		{"id": "x", "location": []any{"1", 2.0}},
	} {
		_, ok := recordFromDocument(doc)
		assert.False(t, ok, "%v", doc)
	}
}

// fakeDocuments serves canned result pages and records what it was asked for.
type fakeDocuments struct {
	pages     [][]map[string]any
	found     *int
	searchErr error
	upsertErr error

	requested []int
	filters   []string
	upserted  []map[string]any
}

func (f *fakeDocuments) Search(_ context.Context, params *api.SearchCollectionParams) (*api.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	page := *params.Page
	f.requested = append(f.requested, page)
	f.filters = append(f.filters, *params.FilterBy)

	hits := []api.SearchResultHit{}
	if page <= len(f.pages) {
		for _, doc := range f.pages[page-1] {
			hits = append(hits, api.SearchResultHit{Document: &doc})
		}
	}
	return &api.SearchResult{Hits: &hits, Found: f.found, Page: pointer.Int(page)}, nil
}

func (f *fakeDocuments) Upsert(_ context.Context, document any) (map[string]any, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	doc := document.(map[string]any)
	f.upserted = append(f.upserted, doc)
	return doc, nil
}

func newFakeTypesense(docs *fakeDocuments) *Typesense {
	return &Typesense{collection: devsCollection, documents: docs}
}

// geoDoc builds a search hit at longitude lon on the equator.
func geoDoc(id string, lon float64, techs ...string) map[string]any {
	anyTechs := make([]any, len(techs))
	for i, t := range techs {
		anyTechs[i] = t
	}
	return map[string]any{
		"id":              id,
		"github_username": id,
		"techs":           anyTechs,
		"location":        []any{0.0, lon},
		"created_at":      float64(1700000000),
	}
}

func fullPage(prefix string) []map[string]any {
	page := make([]map[string]any, typesensePerPage)
	for i := range page {
		page[i] = geoDoc(fmt.Sprintf("%s-%03d", prefix, i), float64(i)*1e-6, "go")
	}
	return page
}

func TestTypesenseNearby(t *testing.T) {
	ctx := context.Background()
	center := radar.Point{}

	t.Run("Reads every page", func(t *testing.T) {
		docs := &fakeDocuments{
			pages: [][]map[string]any{
				fullPage("a"),
				{geoDoc("b-1", 0.001, "go"), geoDoc("b-2", 0.002, "Go")},
			},
			found: pointer.Int(typesensePerPage + 2),
		}
		got, err := newFakeTypesense(docs).Nearby(ctx, center, 1000, radar.NewTagSet([]string{"go"}))
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, docs.requested)
		assert.Len(t, got, typesensePerPage+2)
		assert.Equal(t, "a-000", got[0].ID)
		assert.Equal(t, "b-2", got[len(got)-1].ID)
	})

	t.Run("Stops when the total is reached", func(t *testing.T) {
		docs := &fakeDocuments{
			pages: [][]map[string]any{fullPage("a"), fullPage("never")},
			found: pointer.Int(typesensePerPage),
		}
		got, err := newFakeTypesense(docs).Nearby(ctx, center, 1000, radar.TagSet{})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, docs.requested)
		assert.Len(t, got, typesensePerPage)
	})

	t.Run("Short page ends the scan without a total", func(t *testing.T) {
		docs := &fakeDocuments{pages: [][]map[string]any{{geoDoc("only", 0.001)}}}
		got, err := newFakeTypesense(docs).Nearby(ctx, center, 1000, radar.TagSet{})
		require.NoError(t, err)
		assert.Equal(t, []int{1}, docs.requested)
		require.Len(t, got, 1)
		assert.Equal(t, "only", got[0].ID)
	})

	t.Run("Exact radius and tags decide the boundary", func(t *testing.T) {
		docs := &fakeDocuments{pages: [][]map[string]any{{
			// About 1006 m away: inside the padded filter, outside the exact radius.
			geoDoc("padded", 0.00905, "go"),
			geoDoc("inside", 0.0089, "go"),
			geoDoc("wrong-tech", 0.001, "rust"),
			{"id": "broken"},
		}}}
		got, err := newFakeTypesense(docs).Nearby(ctx, center, 1000, radar.NewTagSet([]string{"go"}))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "inside", got[0].ID)
		assert.Equal(t, "location:(0.000000, 0.000000, 1.010000 km) && tech_keys:=[`go`]", docs.filters[0])
	})

	t.Run("Search failure is transient", func(t *testing.T) {
		docs := &fakeDocuments{searchErr: errors.New("connection refused")}
		_, err := newFakeTypesense(docs).Nearby(ctx, center, 1000, radar.TagSet{})
		assert.True(t, radar.IsKind(err, radar.KindTransient))
	})
}

type failingStore struct {
	radar.Store
}

func (failingStore) Create(context.Context, radar.Record) (radar.Record, error) {
	return radar.Record{}, radar.Transient("failed to create dev", errors.New("connection reset"))
}

func TestIndexedCreate(t *testing.T) {
	ctx := context.Background()
	newRec := func(name string) radar.Record {
		return radar.Record{
			Profile:  radar.Profile{GithubUsername: name, Name: name},
			Techs:    []string{"Go"},
			Location: radar.Point{Latitude: 59.4, Longitude: 24.7},
		}
	}

	t.Run("Stores then indexes", func(t *testing.T) {
		docs := &fakeDocuments{}
		store := radar.NewMemoryIndex()
		indexed := NewIndexed(store, newFakeTypesense(docs))

		created, err := indexed.Create(ctx, newRec("octocat"))
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		stored, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "octocat", stored.GithubUsername)

		require.Len(t, docs.upserted, 1)
		assert.Equal(t, created.ID, docs.upserted[0]["id"])
		assert.Equal(t, []string{"go"}, docs.upserted[0]["tech_keys"])
	})

	t.Run("Index failure keeps the record", func(t *testing.T) {
		docs := &fakeDocuments{upsertErr: errors.New("typesense down")}
		store := radar.NewMemoryIndex()
		indexed := NewIndexed(store, newFakeTypesense(docs))

		created, err := indexed.Create(ctx, newRec("mona"))
		require.NoError(t, err)
		_, err = store.Get(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("Store failure is not indexed", func(t *testing.T) {
		docs := &fakeDocuments{}
		indexed := NewIndexed(failingStore{Store: radar.NewMemoryIndex()}, newFakeTypesense(docs))

		_, err := indexed.Create(ctx, newRec("ghost"))
		assert.True(t, radar.IsKind(err, radar.KindTransient))
		assert.Empty(t, docs.upserted)
	})

	t.Run("Reindex loads every stored record", func(t *testing.T) {
		store := radar.NewMemoryIndex()
		for _, name := range []string{"a", "b", "c"} {
			_, err := store.Create(ctx, newRec(name))
			require.NoError(t, err)
		}
		docs := &fakeDocuments{}
		n, err := NewIndexed(store, newFakeTypesense(docs)).Reindex(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Len(t, docs.upserted, 3)
	})
}
