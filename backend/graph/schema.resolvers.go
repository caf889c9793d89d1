package graph

// This file will be automatically regenerated based on the schema, any resolver implementations
// will be copied through when generating and any unknown code will be moved to the end.
// Code generated by github.com/99designs/gqlgen version v0.17.81

import (
	"context"
	"strings"
	"time"

	"gitea.kood.tech/petrkubec/dev-radar/backend/graph/model"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// CreatedAt is the resolver for the createdAt field.
func (r *devResolver) CreatedAt(ctx context.Context, obj *model.Dev) (string, error) {
	return obj.CreatedAt.UTC().Format(time.RFC3339), nil
}

// Type is the resolver for the type field.
func (r *geoPointResolver) Type(ctx context.Context, obj *radar.Point) (string, error) {
	return "Point", nil
}

// Coordinates is the resolver for the coordinates field.
func (r *geoPointResolver) Coordinates(ctx context.Context, obj *radar.Point) ([]float64, error) {
	return []float64{obj.Longitude, obj.Latitude}, nil
}

// SearchDevs is the resolver for the searchDevs field.
func (r *queryResolver) SearchDevs(ctx context.Context, latitude float64, longitude float64, techs []string, radius *float64, latitudeDelta *float64, longitudeDelta *float64) ([]*model.Dev, error) {
	center, err := radar.NewPoint(latitude, longitude)
	if err != nil {
		return nil, err
	}
	meters, err := r.radius(center, deref(latitudeDelta), deref(longitudeDelta), deref(radius))
	if err != nil {
		return nil, err
	}
	recs, err := r.geo.Query(ctx, center, meters, radar.ParseTechs(strings.Join(techs, ",")))
	if err != nil {
		return nil, err
	}
	return model.NewDevs(recs, &center), nil
}

// Dev is the resolver for the dev field.
func (r *queryResolver) Dev(ctx context.Context, id string) (*model.Dev, error) {
	rec, err := r.load(ctx, id)
	if radar.IsKind(err, radar.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Dev{Record: rec}, nil
}

// Devs is the resolver for the devs field.
func (r *queryResolver) Devs(ctx context.Context) ([]*model.Dev, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return model.NewDevs(recs, nil), nil
}

// Dev returns DevResolver implementation.
func (r *Resolver) Dev() DevResolver { return &devResolver{r} }

// GeoPoint returns GeoPointResolver implementation.
func (r *Resolver) GeoPoint() GeoPointResolver { return &geoPointResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

type devResolver struct{ *Resolver }
type geoPointResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
