package storage

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// CreatedChannel is the NOTIFY channel the devs insert trigger publishes new ids on.
const CreatedChannel = "devs_created"

const listenerPingInterval = 90 * time.Second

// CreationListener receives the ids of newly inserted devs over LISTEN/NOTIFY.
type CreationListener struct {
	listener *pq.Listener
}

// NewCreationListener opens a dedicated listening connection to dsn.
func NewCreationListener(dsn string) (*CreationListener, error) {
	l := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			log.Warn().Err(err).Str("channel", CreatedChannel).Msg("postgres listener lost connection")
		case pq.ListenerEventReconnected:
			log.Info().Str("channel", CreatedChannel).Msg("postgres listener reconnected")
		}
	})
	if err := l.Listen(CreatedChannel); err != nil {
		l.Close()
		return nil, err
	}
	return &CreationListener{listener: l}, nil
}

// Run calls onCreated with every id notified until ctx is done. Notifications sent while the
// connection was down are lost.
func (c *CreationListener) Run(ctx context.Context, onCreated func(ctx context.Context, id string)) error {
	defer c.listener.Close()

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-c.listener.Notify:
			// nil after a reconnect
			if n == nil || n.Extra == "" {
				continue
			}
			onCreated(ctx, n.Extra)
		case <-ticker.C:
			go func() {
				if err := c.listener.Ping(); err != nil {
					log.Warn().Err(err).Msg("postgres listener ping failed")
				}
			}()
		}
	}
}
