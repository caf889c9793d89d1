package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialLive(t *testing.T, env *testEnv, query string) (*websocket.Conn, sessionInfo) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	evt := readEvent(t, conn)
	require.Equal(t, radar.EventInfo, evt.Type)
	info := decode[sessionInfo](t, evt.Data)
	require.NotEmpty(t, info.ConnectionID)
	return conn, info
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt wireEvent
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

// expectSilence fails if an event arrives within d. The connection is unusable afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	var evt wireEvent
	err := conn.ReadJSON(&evt)
	assert.Error(t, err, "unexpected event %s %s", evt.Type, evt.Data)
}

func TestLiveSessionReceivesNewDevs(t *testing.T) {
	env := newTestEnv(t)

	conn, info := dialLive(t, env, "latitude=0&longitude=0&techs=node&radius=1000")
	assert.NotEmpty(t, info.Token)
	assert.Equal(t, 1000.0, info.RadiusMeters)
	assert.Equal(t, []string{"node"}, info.Techs)
	assert.Equal(t, 1, env.srv.registry.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.metrics.LiveSessions))

	resp, body := env.do(t, http.MethodPost, "/devs",
		`{"github_username":"inside","techs":"Node","latitude":0,"longitude":0.005}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	evt := readEvent(t, conn)
	require.Equal(t, radar.EventNewDevs, evt.Type)
	rec := decode[radar.Record](t, evt.Data)
	assert.Equal(t, "inside", rec.GithubUsername)

	// Out of range and wrong tech: neither is delivered.
	env.do(t, http.MethodPost, "/devs", `{"github_username":"far","techs":"node","latitude":0,"longitude":0.02}`)
	env.do(t, http.MethodPost, "/devs", `{"github_username":"python","techs":"python","latitude":0,"longitude":0}`)
	expectSilence(t, conn, 300*time.Millisecond)
}

func TestLiveSearchMessageUpdatesSession(t *testing.T) {
	env := newTestEnv(t)
	conn, info := dialLive(t, env, "latitude=0&longitude=0&techs=node")
	assert.Equal(t, radar.DefaultRadiusMeters, info.RadiusMeters)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "search", "latitude": 10, "longitude": 10, "techs": "", "radius": 500,
	}))
	evt := readEvent(t, conn)
	require.Equal(t, radar.EventInfo, evt.Type)
	updated := decode[sessionInfo](t, evt.Data)
	require.NotNil(t, updated.Updated)
	assert.True(t, *updated.Updated)
	assert.Equal(t, 500.0, updated.RadiusMeters)
	assert.Empty(t, updated.Techs)

	session, ok := env.srv.registry.Get(info.ConnectionID)
	require.True(t, ok)
	assert.Equal(t, radar.Point{Latitude: 10, Longitude: 10}, session.Center)

	// Empty filter at the new center matches any techs.
	env.do(t, http.MethodPost, "/devs", `{"github_username":"py","techs":"python","latitude":10,"longitude":10}`)
	evt = readEvent(t, conn)
	assert.Equal(t, radar.EventNewDevs, evt.Type)
}

func TestLiveRegionMessage(t *testing.T) {
	region := map[string]any{
		"type": "region", "latitude": 20, "longitude": 20, "latitudeDelta": 0.1, "longitudeDelta": 0.1,
	}

	t.Run("Ignored by default", func(t *testing.T) {
		env := newTestEnv(t)
		conn, info := dialLive(t, env, "latitude=0&longitude=0")

		require.NoError(t, conn.WriteJSON(region))
		evt := readEvent(t, conn)
		require.Equal(t, radar.EventInfo, evt.Type)
		ack := decode[sessionInfo](t, evt.Data)
		require.NotNil(t, ack.Updated)
		assert.False(t, *ack.Updated)

		session, _ := env.srv.registry.Get(info.ConnectionID)
		assert.Equal(t, radar.Point{}, session.Center)
	})

	t.Run("Followed with auto update on pan", func(t *testing.T) {
		env := newTestEnv(t, func(c *Config) { c.AutoUpdateOnPan = true })
		conn, info := dialLive(t, env, "latitude=0&longitude=0")

		require.NoError(t, conn.WriteJSON(region))
		evt := readEvent(t, conn)
		ack := decode[sessionInfo](t, evt.Data)
		require.NotNil(t, ack.Updated)
		assert.True(t, *ack.Updated)

		session, _ := env.srv.registry.Get(info.ConnectionID)
		assert.Equal(t, radar.Point{Latitude: 20, Longitude: 20}, session.Center)
		assert.InDelta(t, radar.RadiusFromDeltas(session.Center, 0.1, 0.1), session.RadiusMeters, 1e-6)
	})
}

func TestLiveBadMessages(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := dialLive(t, env, "latitude=0&longitude=0")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, radar.EventError, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	assert.Equal(t, radar.EventError, readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "search", "latitude": 95, "longitude": 0}))
	assert.Equal(t, radar.EventError, readEvent(t, conn).Type)
}

func TestLiveRejectsInvalidCriteria(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?latitude=0"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, env.srv.registry.Len())
}

func TestLiveRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?latitude=0&longitude=0"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLiveDisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t)
	conn, info := dialLive(t, env, "latitude=0&longitude=0")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		_, ok := env.srv.registry.Get(info.ConnectionID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.srv.metrics.LiveSessions) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A creation after the disconnect finds nobody to notify.
	resp, _ := env.do(t, http.MethodPost, "/devs", `{"github_username":"late","latitude":0,"longitude":0}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestLiveClientSend(t *testing.T) {
	c := newLiveClient("c1", nil)
	for i := 0; i < liveSendBuffer; i++ {
		require.NoError(t, c.Send(radar.Event{Type: radar.EventInfo}))
	}
	assert.ErrorIs(t, c.Send(radar.Event{Type: radar.EventInfo}), errSendBufferFull)

	c.close()
	c.close()
	assert.ErrorIs(t, c.Send(radar.Event{Type: radar.EventInfo}), radar.ErrChannelClosed)
}
