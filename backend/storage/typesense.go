package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

const (
	devsCollection = "devs"

	// Typesense measures distance on its own sphere; widen the filter slightly and let the exact
	// check decide the boundary.
	typesenseRadiusPadding = 1.01

	typesensePerPage = 250
)

// documentIndex is the part of the Typesense documents API the backend searches and writes.
type documentIndex interface {
	Search(ctx context.Context, params *api.SearchCollectionParams) (*api.SearchResult, error)
	Upsert(ctx context.Context, document any) (map[string]any, error)
}

// Typesense is a geo search backend over a devs collection.
type Typesense struct {
	client     *typesense.Client
	collection string
	documents  documentIndex
}

var _ radar.Backend = (*Typesense)(nil)

// NewTypesense connects to a Typesense server.
func NewTypesense(serverURL, apiKey string) *Typesense {
	client := typesense.NewClient(
		typesense.WithServer(serverURL),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	return &Typesense{
		client:     client,
		collection: devsCollection,
		documents:  client.Collection(devsCollection).Documents(),
	}
}

// Ping checks that the server is healthy.
func (t *Typesense) Ping(ctx context.Context) error {
	ok, err := t.client.Health(ctx, 2*time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("typesense is not healthy")
	}
	return nil
}

// InitSchema creates the devs collection when it does not exist.
func (t *Typesense) InitSchema(ctx context.Context) error {
	if _, err := t.client.Collection(t.collection).Retrieve(ctx); err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: t.collection,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "github_username", Type: "string"},
			{Name: "name", Type: "string"},
			{Name: "avatar_url", Type: "string", Index: pointer.False()},
			{Name: "bio", Type: "string", Index: pointer.False()},
			{Name: "techs", Type: "string[]"},
			{Name: "tech_keys", Type: "string[]", Facet: pointer.True()},
			{Name: "location", Type: "geopoint"},
			{Name: "created_at", Type: "int64"},
		},
		DefaultSortingField: pointer.String("created_at"),
	}
	if _, err := t.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("failed to create typesense collection: %w", err)
	}
	return nil
}

// Index upserts rec into the collection.
func (t *Typesense) Index(ctx context.Context, rec radar.Record) error {
	if _, err := t.documents.Upsert(ctx, devDocument(rec)); err != nil {
		return radar.Transient("failed to index dev", err)
	}
	return nil
}

// Nearby implements radar.Backend with a geopoint radius filter. Result pages are fetched
// until a short page or the reported total ends the scan.
func (t *Typesense) Nearby(ctx context.Context, center radar.Point, radiusMeters float64, tags radar.TagSet) ([]radar.Record, error) {
	params := &api.SearchCollectionParams{
		Q:        pointer.String("*"),
		QueryBy:  pointer.String("github_username"),
		FilterBy: pointer.String(nearbyFilter(center, radiusMeters, tags)),
		SortBy:   pointer.String(fmt.Sprintf("location(%f, %f):asc", center.Latitude, center.Longitude)),
		PerPage:  pointer.Int(typesensePerPage),
	}

	candidates := []radar.Record{}
	seen := 0
	for page := 1; ; page++ {
		params.Page = pointer.Int(page)
		result, err := t.documents.Search(ctx, params)
		if err != nil {
			return nil, radar.Transient("typesense search failed", err)
		}

		var hits []api.SearchResultHit
		if result.Hits != nil {
			hits = *result.Hits
		}
		for _, hit := range hits {
			if hit.Document == nil {
				continue
			}
			rec, ok := recordFromDocument(*hit.Document)
			if !ok {
				log.Warn().Interface("document", *hit.Document).Msg("skipping malformed typesense document")
				continue
			}
			candidates = append(candidates, rec)
		}

		seen += len(hits)
		if len(hits) < typesensePerPage || (result.Found != nil && seen >= *result.Found) {
			break
		}
	}
	return radar.FilterNearby(candidates, center, radiusMeters, tags), nil
}

func nearbyFilter(center radar.Point, radiusMeters float64, tags radar.TagSet) string {
	km := radiusMeters * typesenseRadiusPadding / 1000
	filter := fmt.Sprintf("location:(%f, %f, %f km)", center.Latitude, center.Longitude, km)
	if tags.Empty() {
		return filter
	}
	quoted := make([]string, 0, tags.Len())
	for _, k := range tags.Keys() {
		quoted = append(quoted, "`"+strings.ReplaceAll(k, "`", "")+"`")
	}
	return filter + " && tech_keys:=[" + strings.Join(quoted, ",") + "]"
}

func devDocument(rec radar.Record) map[string]any {
	return map[string]any{
		"id":              rec.ID,
		"github_username": rec.GithubUsername,
		"name":            rec.Name,
		"avatar_url":      rec.AvatarURL,
		"bio":             rec.Bio,
		"techs":           rec.Techs,
		"tech_keys":       radar.TagKeys(rec.Techs),
		"location":        []float64{rec.Location.Latitude, rec.Location.Longitude},
		"created_at":      rec.CreatedAt.Unix(),
	}
}

func recordFromDocument(doc map[string]any) (radar.Record, bool) {
	id, _ := doc["id"].(string)
	loc, ok := doc["location"].([]any)
	if id == "" || !ok || len(loc) != 2 {
		return radar.Record{}, false
	}
	lat, latOK := loc[0].(float64)
	lon, lonOK := loc[1].(float64)
	if !latOK || !lonOK {
		return radar.Record{}, false
	}

	rec := radar.Record{
		ID:       id,
		Techs:    []string{},
		Location: radar.Point{Latitude: lat, Longitude: lon},
	}
	rec.GithubUsername, _ = doc["github_username"].(string)
	rec.Name, _ = doc["name"].(string)
	rec.AvatarURL, _ = doc["avatar_url"].(string)
	rec.Bio, _ = doc["bio"].(string)
	if techs, ok := doc["techs"].([]any); ok {
		for _, t := range techs {
			if s, ok := t.(string); ok {
				rec.Techs = append(rec.Techs, s)
			}
		}
	}
	if created, ok := doc["created_at"].(float64); ok {
		rec.CreatedAt = time.Unix(int64(created), 0).UTC()
	}
	return rec, true
}

// Indexed writes records to a Store and mirrors every creation into a search index.
type Indexed struct {
	radar.Store
	index *Typesense
}

// NewIndexed wraps store so creations are also indexed in ts.
func NewIndexed(store radar.Store, ts *Typesense) *Indexed {
	return &Indexed{Store: store, index: ts}
}

// Create stores rec and then indexes it. An indexing failure is logged; the record stays created.
func (i *Indexed) Create(ctx context.Context, rec radar.Record) (radar.Record, error) {
	created, err := i.Store.Create(ctx, rec)
	if err != nil {
		return radar.Record{}, err
	}
	if err := i.index.Index(ctx, created); err != nil {
		log.Warn().Err(err).Str("dev_id", created.ID).Msg("failed to index dev in typesense")
	}
	return created, nil
}

// Reindex loads every stored record into the search index.
func (i *Indexed) Reindex(ctx context.Context) (int, error) {
	recs, err := i.Store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := i.index.Index(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}
