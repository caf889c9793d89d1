package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/dev-radar/backend/events"
	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

func testConfig() Config {
	return Config{
		Port:                8080,
		Env:                 "test",
		LogLevel:            "disabled",
		GeoBackend:          backendMemory,
		CreationFeed:        feedLocal,
		DefaultRadiusMeters: radar.DefaultRadiusMeters,
		MaxRadiusMeters:     200000,
		SessionTokenSecret:  []byte("test-secret-key-for-testing"),
		SessionTokenTTL:     time.Hour,
		AllowedOrigins:      []string{"http://localhost:5173"},
	}
}

type testEnv struct {
	srv   *server
	http  *httptest.Server
	store *radar.MemoryIndex
}

// newTestEnv starts an in-memory server with a running local creation feed.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	store := radar.NewMemoryIndex()
	bus := events.NewLocalBus()
	srv := newServer(cfg, serverDeps{store: store, backend: store, bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	consume, err := srv.feed.start(ctx)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consume()
	}()

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = bus.Close()
		<-done
	})
	return &testEnv{srv: srv, http: ts, store: store}
}

func (e *testEnv) seed(t *testing.T, recs ...radar.Record) {
	t.Helper()
	for _, rec := range recs {
		_, err := e.store.Create(context.Background(), rec)
		require.NoError(t, err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body string, header ...string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func dev(id string, lat, lon float64, techs ...string) radar.Record {
	return radar.Record{
		ID:       id,
		Profile:  radar.Profile{GithubUsername: id, Name: strings.ToUpper(id)},
		Techs:    techs,
		Location: radar.Point{Latitude: lat, Longitude: lon},
	}
}

func devIDs(recs []radar.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// serve runs one request straight through h.
func serve(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, rec.Body.String()
}
