package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

func TestSessionTokens(t *testing.T) {
	tokens := newSessionTokens([]byte("secret-a"), time.Hour)

	t.Run("Round trip", func(t *testing.T) {
		tok, err := tokens.issue("conn-1")
		require.NoError(t, err)
		id, err := tokens.connectionID(tok)
		require.NoError(t, err)
		assert.Equal(t, "conn-1", id)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		tok, err := newSessionTokens([]byte("secret-b"), time.Hour).issue("conn-1")
		require.NoError(t, err)
		_, err = tokens.connectionID(tok)
		assert.ErrorIs(t, err, errInvalidSessionToken)
	})

	t.Run("Expired", func(t *testing.T) {
		old := newSessionTokens([]byte("secret-a"), time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.issue("conn-1")
		require.NoError(t, err)
		_, err = tokens.connectionID(tok)
		assert.ErrorIs(t, err, errInvalidSessionToken)
	})

	t.Run("Unsigned token", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:  sessionTokenIssuer,
			Subject: "conn-1",
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.connectionID(tok)
		assert.ErrorIs(t, err, errInvalidSessionToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tokens.connectionID("not-a-token")
		assert.ErrorIs(t, err, errInvalidSessionToken)
	})
}

func TestRegionHandler(t *testing.T) {
	env := newTestEnv(t)
	_, info := dialLive(t, env, "latitude=0&longitude=0&techs=go")
	path := "/sessions/" + info.ConnectionID + "/region"
	body := `{"latitude":48.85,"longitude":2.35,"radius":2500,"techs":["Rust"]}`

	t.Run("Missing token", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, path, body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Invalid token", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, path, body, "Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Token for another session", func(t *testing.T) {
		other, err := env.srv.tokens.issue("someone-else")
		require.NoError(t, err)
		resp, _ := env.do(t, http.MethodPost, path, body, "Authorization", "Bearer "+other)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Unknown session", func(t *testing.T) {
		ghost, err := env.srv.tokens.issue("ghost")
		require.NoError(t, err)
		resp, _ := env.do(t, http.MethodPost, "/sessions/ghost/region", body, "Authorization", "Bearer "+ghost)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Invalid criteria", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, path, `{"latitude":0}`, "Authorization", "Bearer "+info.Token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Updates the session", func(t *testing.T) {
		resp, data := env.do(t, http.MethodPost, path, body, "Authorization", "Bearer "+info.Token)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

		got := decode[sessionInfo](t, data)
		assert.Equal(t, 2500.0, got.RadiusMeters)
		assert.Equal(t, []string{"rust"}, got.Techs)

		session, ok := env.srv.registry.Get(info.ConnectionID)
		require.True(t, ok)
		assert.Equal(t, radar.Point{Latitude: 48.85, Longitude: 2.35}, session.Center)
		assert.True(t, session.Tags.Has("rust"))
		assert.False(t, session.Tags.Has("go"))
	})
}

// disconnectingBody unregisters the session on its first read, like a client whose socket
// closes while its region update is still being uploaded.
type disconnectingBody struct {
	io.Reader
	once func()
}

func (b *disconnectingBody) Read(p []byte) (int, error) {
	if b.once != nil {
		b.once()
		b.once = nil
	}
	return b.Reader.Read(p)
}

func TestRegionHandlerDisconnectDuringRead(t *testing.T) {
	registry := radar.NewSessionRegistry()
	tokens := newSessionTokens([]byte("secret"), time.Hour)
	require.NoError(t, registry.Register("conn-1", radar.Point{}, 1000, []string{"go"}, nil))
	tok, err := tokens.issue("conn-1")
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Post("/sessions/{id}/region", regionHandler(registry, tokens, radiusLimits{Default: 1000, Max: 50000}))

	body := &disconnectingBody{
		Reader: strings.NewReader(`{"latitude":1,"longitude":1,"techs":["rust"]}`),
		once:   func() { registry.Unregister("conn-1") },
	}
	req := httptest.NewRequest(http.MethodPost, "/sessions/conn-1/region", body)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, ok := registry.Get("conn-1")
	assert.False(t, ok, "a disconnected session must stay gone")
	assert.Equal(t, 0, registry.Len())
}
