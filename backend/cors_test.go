package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("Allowed origin", func(t *testing.T) {
		h := withCORS([]string{"http://localhost:5173"})(next)
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("Foreign origin gets no allow header", func(t *testing.T) {
		h := withCORS([]string{"http://localhost:5173"})(next)
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Wildcard echoes the origin", func(t *testing.T) {
		h := withCORS([]string{"*"})(next)
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Preflight short-circuits", func(t *testing.T) {
		h := withCORS([]string{"http://localhost:5173"})(next)
		req := httptest.NewRequest(http.MethodOptions, "/devs", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:5173"}
	assert.True(t, originAllowed(allowed, ""))
	assert.True(t, originAllowed(allowed, "http://localhost:5173"))
	assert.False(t, originAllowed(allowed, "http://localhost:9999"))
	assert.True(t, originAllowed([]string{"*"}, "http://localhost:9999"))
}

func TestRouterAnswersPreflight(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodOptions, "/sessions/abc/region", "", "Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
