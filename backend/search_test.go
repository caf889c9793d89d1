package main

import (
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchHandler(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t,
		dev("near-node", 0, 0.001, "Node", "React"),
		dev("mid-go", 0, 0.005, "Go"),
		dev("far-node", 0, 0.2, "node"),
	)

	t.Run("Tag filter within default radius", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/search?latitude=0&longitude=0&techs=node", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		got := decode[searchResponse](t, body)
		assert.Equal(t, []string{"near-node"}, devIDs(got.Devs))
	})

	t.Run("Empty techs matches everything in range", func(t *testing.T) {
		_, body := env.do(t, http.MethodGet, "/search?latitude=0&longitude=0&techs=", "")
		got := decode[searchResponse](t, body)
		assert.Equal(t, []string{"near-node", "mid-go"}, devIDs(got.Devs))
	})

	t.Run("Explicit radius", func(t *testing.T) {
		_, body := env.do(t, http.MethodGet, "/search?latitude=0&longitude=0&techs=node,go&radius=500", "")
		got := decode[searchResponse](t, body)
		assert.Equal(t, []string{"near-node"}, devIDs(got.Devs))
	})

	t.Run("Region deltas widen the search", func(t *testing.T) {
		_, body := env.do(t, http.MethodGet, "/search?latitude=0&longitude=0&latitudeDelta=0.5&longitudeDelta=0.5", "")
		got := decode[searchResponse](t, body)
		assert.Equal(t, []string{"near-node", "mid-go", "far-node"}, devIDs(got.Devs))
	})

	t.Run("No matches is an empty list", func(t *testing.T) {
		_, body := env.do(t, http.MethodGet, "/search?latitude=50&longitude=50", "")
		assert.JSONEq(t, `{"devs":[]}`, string(body))
	})

	t.Run("Invalid coordinates", func(t *testing.T) {
		for _, q := range []string{
			"/search?longitude=0",
			"/search?latitude=abc&longitude=0",
			"/search?latitude=91&longitude=0",
			"/search?latitude=0&longitude=0&radius=-5",
		} {
			resp, body := env.do(t, http.MethodGet, q, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
			assert.Contains(t, string(body), `"error"`)
		}
	})

	assert.Equal(t, float64(5), testutil.ToFloat64(env.srv.metrics.Searches.WithLabelValues("ok")))
	assert.Equal(t, float64(4), testutil.ToFloat64(env.srv.metrics.Searches.WithLabelValues("invalid")))
}
