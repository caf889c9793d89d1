package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

const (
	liveSendBuffer   = 16
	livePongWait     = 60 * time.Second
	livePingInterval = 30 * time.Second
	liveWriteWait    = 10 * time.Second
	liveReadLimit    = 1 << 16
)

// Client message types.
const (
	messageSearch = "search"
	messageRegion = "region"
)

var errSendBufferFull = errors.New("live client send buffer full")

// liveClient is one websocket connection. It is the radar.Channel its session is bound to.
type liveClient struct {
	id   string
	conn *websocket.Conn
	send chan radar.Event

	done      chan struct{}
	closeOnce sync.Once
}

func newLiveClient(id string, conn *websocket.Conn) *liveClient {
	return &liveClient{
		id:   id,
		conn: conn,
		send: make(chan radar.Event, liveSendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues evt without blocking. It never panics after the client is closed.
func (c *liveClient) Send(evt radar.Event) error {
	select {
	case <-c.done:
		return radar.ErrChannelClosed
	default:
	}
	select {
	case c.send <- evt:
		return nil
	case <-c.done:
		return radar.ErrChannelClosed
	default:
		return errSendBufferFull
	}
}

func (c *liveClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// criteriaMessage is a client's search criteria, sent over the socket or to the region endpoint.
type criteriaMessage struct {
	Type           string     `json:"type"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	LatitudeDelta  float64    `json:"latitudeDelta"`
	LongitudeDelta float64    `json:"longitudeDelta"`
	Radius         float64    `json:"radius"`
	Techs          techsField `json:"techs"`
}

// techsField accepts "a, b" as well as ["a", "b"].
type techsField []string

func (t *techsField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = radar.ParseTechs(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = radar.NormalizeTechs(list)
	return nil
}

// applyCriteria replaces the center and tags of session id. The radius is kept unless the
// message carries a region or an explicit radius. A session that is gone is NOT_FOUND.
func applyCriteria(registry *radar.SessionRegistry, limits radiusLimits, id string, msg criteriaMessage) (radar.Session, error) {
	if msg.Latitude == nil || msg.Longitude == nil {
		return radar.Session{}, radar.InvalidArgument("latitude and longitude are required")
	}
	center, err := radar.NewPoint(*msg.Latitude, *msg.Longitude)
	if err != nil {
		return radar.Session{}, err
	}

	var radius float64
	if msg.LatitudeDelta != 0 || msg.LongitudeDelta != 0 || msg.Radius != 0 {
		radius, err = limits.resolve(center, msg.LatitudeDelta, msg.LongitudeDelta, msg.Radius)
		if err != nil {
			return radar.Session{}, err
		}
	}
	session, ok, err := registry.UpdateExisting(id, center, radius, msg.Techs)
	if err != nil {
		return radar.Session{}, err
	}
	if !ok {
		return radar.Session{}, radar.NotFound("session not found")
	}
	return session, nil
}

type sessionInfo struct {
	ConnectionID string   `json:"connection_id"`
	Token        string   `json:"token,omitempty"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radius"`
	Techs        []string `json:"techs"`
	Updated      *bool    `json:"updated,omitempty"`
}

func sessionView(s radar.Session) sessionInfo {
	return sessionInfo{
		ConnectionID: s.ConnectionID,
		Latitude:     s.Center.Latitude,
		Longitude:    s.Center.Longitude,
		RadiusMeters: s.RadiusMeters,
		Techs:        s.Tags.Keys(),
	}
}

type liveOptions struct {
	registry        *radar.SessionRegistry
	tokens          *sessionTokens
	limits          radiusLimits
	autoUpdateOnPan bool
	allowedOrigins  []string
	metrics         *Metrics
}

// liveHandler upgrades GET /ws to a live session. The query carries the initial criteria.
func liveHandler(opts liveOptions) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(opts.allowedOrigins, r.Header.Get("Origin"))
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		center, err := parsePointParams(q)
		if err != nil {
			writeRadarError(w, r, err)
			return
		}
		radius, err := opts.limits.fromQuery(q, center)
		if err != nil {
			writeRadarError(w, r, err)
			return
		}
		techs := parseTechsParam(q)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := newLiveClient(uuid.NewString(), conn)
		if err := opts.registry.Register(client.id, center, radius, techs, client); err != nil {
			_ = conn.WriteJSON(radar.Event{Type: radar.EventError, Data: err.Error()})
			conn.Close()
			return
		}
		opts.metrics.LiveSessions.Inc()
		log.Debug().Str("connection_id", client.id).Float64("radius", radius).Msg("live session connected")

		info := sessionInfo{ConnectionID: client.id}
		if token, err := opts.tokens.issue(client.id); err == nil {
			info.Token = token
		} else {
			log.Error().Err(err).Msg("failed to sign session token")
		}
		if s, ok := opts.registry.Get(client.id); ok {
			view := sessionView(s)
			view.Token = info.Token
			info = view
		}
		_ = client.Send(radar.Event{Type: radar.EventInfo, Data: info})

		go liveWriter(client)
		liveReader(client, opts)
	}
}

func liveReader(c *liveClient, opts liveOptions) {
	defer func() {
		opts.registry.Unregister(c.id)
		c.close()
		c.conn.Close()
		opts.metrics.LiveSessions.Dec()
		log.Debug().Str("connection_id", c.id).Msg("live session disconnected")
	}()

	c.conn.SetReadLimit(liveReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg criteriaMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = c.Send(radar.Event{Type: radar.EventError, Data: "invalid message format"})
			continue
		}
		opts.metrics.ClientMessages.WithLabelValues(msg.Type).Inc()

		switch msg.Type {
		case messageSearch:
			c.reply(applyCriteria(opts.registry, opts.limits, c.id, msg))
		case messageRegion:
			if !opts.autoUpdateOnPan {
				updated := false
				_ = c.Send(radar.Event{Type: radar.EventInfo, Data: sessionInfo{ConnectionID: c.id, Updated: &updated}})
				continue
			}
			c.reply(applyCriteria(opts.registry, opts.limits, c.id, msg))
		default:
			_ = c.Send(radar.Event{Type: radar.EventError, Data: "unknown message type"})
		}
	}
}

func (c *liveClient) reply(s radar.Session, err error) {
	if err != nil {
		_ = c.Send(radar.Event{Type: radar.EventError, Data: err.Error()})
		return
	}
	updated := true
	view := sessionView(s)
	view.Updated = &updated
	_ = c.Send(radar.Event{Type: radar.EventInfo, Data: view})
}

func liveWriter(c *liveClient) {
	ticker := time.NewTicker(livePingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
