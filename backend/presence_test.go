package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

func TestHealthHandler(t *testing.T) {
	registry := radar.NewSessionRegistry()
	require.NoError(t, registry.Register("s1", radar.Point{}, 1000, nil, &sink{}))

	t.Run("Healthy", func(t *testing.T) {
		h := healthHandler(registry, map[string]healthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rec, body := serve(t, h, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","live_sessions":1,"checks":{"postgres":"ok"}}`, body)
	})

	t.Run("Degraded", func(t *testing.T) {
		h := healthHandler(registry, map[string]healthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec, body := serve(t, h, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		got := decode[healthReport](t, []byte(body))
		assert.Equal(t, "degraded", got.Status)
		assert.Equal(t, "ok", got.Checks["postgres"])
		assert.Equal(t, "connection refused", got.Checks["redis"])
	})

	t.Run("No dependencies", func(t *testing.T) {
		rec, body := serve(t, healthHandler(registry, nil), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","live_sessions":1}`, body)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/search?latitude=0&longitude=0", "")

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.True(t, strings.Contains(text, `devradar_searches_total{outcome="ok"} 1`), text)
	assert.Contains(t, text, "devradar_live_sessions 0")
}
