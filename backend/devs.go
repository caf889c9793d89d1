package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

type createDevRequest struct {
	GithubUsername string     `json:"github_username"`
	Name           string     `json:"name"`
	AvatarURL      string     `json:"avatar_url"`
	Bio            string     `json:"bio"`
	Techs          techsField `json:"techs"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
}

func (req createDevRequest) record() (radar.Record, error) {
	username := strings.TrimSpace(req.GithubUsername)
	if username == "" {
		return radar.Record{}, radar.InvalidArgument("github_username is required")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return radar.Record{}, radar.InvalidArgument("latitude and longitude are required")
	}
	loc, err := radar.NewPoint(*req.Latitude, *req.Longitude)
	if err != nil {
		return radar.Record{}, err
	}
	return radar.Record{
		Profile: radar.Profile{
			GithubUsername: username,
			Name:           strings.TrimSpace(req.Name),
			AvatarURL:      strings.TrimSpace(req.AvatarURL),
			Bio:            req.Bio,
		},
		Techs:    req.Techs,
		Location: loc,
	}, nil
}

// publishFunc announces a stored record to the creation feed. Nil when the database announces
// inserts itself.
type publishFunc func(ctx context.Context, rec radar.Record) error

// createDevHandler handles POST /devs. A failed publish is logged; the dev is stored either way.
func createDevHandler(store radar.Store, publish publishFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDevRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		rec, err := req.record()
		if err != nil {
			writeRadarError(w, r, err)
			return
		}

		created, err := store.Create(r.Context(), rec)
		if err != nil {
			writeRadarError(w, r, err)
			return
		}

		if publish != nil {
			if err := publish(r.Context(), created); err != nil {
				loggerFromContext(r.Context()).Warn().Err(err).Str("dev_id", created.ID).Msg("failed to publish creation event")
			}
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func listDevsHandler(store radar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		devs, err := store.List(r.Context())
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

func getDevHandler(store radar.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeRadarError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
