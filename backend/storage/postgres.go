// Package storage holds the datastore backends behind the radar core: PostgreSQL for records and
// radius queries, a LISTEN/NOTIFY creation listener, and a Typesense geo index.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

//go:embed schema.sql
var schemaSQL string

const devsTable = "devs"

var devColumns = []any{
	"id", "github_username", "name", "avatar_url", "bio",
	"techs", "latitude", "longitude", "created_at",
}

// Postgres stores developers in the devs table.
type Postgres struct {
	db  *sql.DB
	gq  *goqu.Database
	now func() time.Time
}

var (
	_ radar.Store   = (*Postgres)(nil)
	_ radar.Backend = (*Postgres)(nil)
)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:  db,
		gq:  goqu.New("postgres", db),
		now: time.Now,
	}
}

// Migrate creates the devs table, its indexes and the creation notify trigger.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return radar.Transient("failed to migrate devs schema", err)
	}
	return nil
}

// Create inserts rec, assigning an id and creation time when missing.
func (p *Postgres) Create(ctx context.Context, rec radar.Record) (radar.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now().UTC()
	}
	rec.Techs = radar.NormalizeTechs(rec.Techs)

	query, args, err := p.gq.Insert(devsTable).Prepared(true).Rows(goqu.Record{
		"id":              rec.ID,
		"github_username": rec.GithubUsername,
		"name":            rec.Name,
		"avatar_url":      rec.AvatarURL,
		"bio":             rec.Bio,
		"techs":           pq.Array(rec.Techs),
		"tech_keys":       pq.Array(radar.TagKeys(rec.Techs)),
		"latitude":        rec.Location.Latitude,
		"longitude":       rec.Location.Longitude,
		"created_at":      rec.CreatedAt,
	}).ToSQL()
	if err != nil {
		return radar.Record{}, err
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return radar.Record{}, radar.Transient("failed to create dev", err)
	}
	return rec, nil
}

// Get returns the dev with id.
func (p *Postgres) Get(ctx context.Context, id string) (radar.Record, error) {
	query, args, err := p.gq.Select(devColumns...).From(devsTable).Prepared(true).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return radar.Record{}, err
	}

	rec, err := scanDev(p.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return radar.Record{}, radar.NotFound("dev %s not found", id)
	}
	if err != nil {
		return radar.Record{}, radar.Transient("failed to get dev", err)
	}
	return rec, nil
}

// GetByIDs returns the devs for ids that exist, in no particular order.
func (p *Postgres) GetByIDs(ctx context.Context, ids []string) ([]radar.Record, error) {
	if len(ids) == 0 {
		return []radar.Record{}, nil
	}
	query, args, err := p.gq.Select(devColumns...).From(devsTable).Prepared(true).
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return nil, err
	}
	return p.queryDevs(ctx, query, args)
}

// List returns every dev, oldest first.
func (p *Postgres) List(ctx context.Context) ([]radar.Record, error) {
	query, args, err := p.gq.Select(devColumns...).From(devsTable).Prepared(true).
		Order(goqu.I("created_at").Asc(), goqu.I("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	return p.queryDevs(ctx, query, args)
}

// Nearby prefilters on a bounding box and tag overlap in SQL, then applies the exact great-circle
// check and sorts nearest first.
func (p *Postgres) Nearby(ctx context.Context, center radar.Point, radiusMeters float64, tags radar.TagSet) ([]radar.Record, error) {
	ds := p.gq.Select(devColumns...).From(devsTable).Prepared(true)

	minLat, maxLat, minLon, maxLon, ok := radar.BoundingBox(center, radiusMeters)
	ds = ds.Where(goqu.C("latitude").Between(goqu.Range(minLat, maxLat)))
	if ok {
		ds = ds.Where(goqu.C("longitude").Between(goqu.Range(minLon, maxLon)))
	}
	if !tags.Empty() {
		ds = ds.Where(goqu.L("tech_keys && ?", pq.Array(tags.Keys())))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	candidates, err := p.queryDevs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return radar.FilterNearby(candidates, center, radiusMeters, tags), nil
}

func (p *Postgres) queryDevs(ctx context.Context, query string, args []any) ([]radar.Record, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, radar.Transient("failed to query devs", err)
	}
	defer rows.Close()

	out := []radar.Record{}
	for rows.Next() {
		rec, err := scanDev(rows)
		if err != nil {
			return nil, radar.Transient("failed to scan dev", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, radar.Transient("failed to read devs", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDev(row rowScanner) (radar.Record, error) {
	var rec radar.Record
	err := row.Scan(
		&rec.ID,
		&rec.GithubUsername,
		&rec.Name,
		&rec.AvatarURL,
		&rec.Bio,
		pq.Array(&rec.Techs),
		&rec.Location.Latitude,
		&rec.Location.Longitude,
		&rec.CreatedAt,
	)
	if rec.Techs == nil {
		rec.Techs = []string{}
	}
	return rec, err
}
