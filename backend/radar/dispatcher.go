package radar

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// DispatchResult counts what happened to each targeted connection.
type DispatchResult struct {
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// NotificationDispatcher pushes newDevs events to live channels.
type NotificationDispatcher struct {
	registry *SessionRegistry
}

// NewNotificationDispatcher creates a dispatcher that resolves channels through registry.
func NewNotificationDispatcher(registry *SessionRegistry) *NotificationDispatcher {
	return &NotificationDispatcher{registry: registry}
}

// Dispatch sends a newDevs event carrying rec to every id. Connections that are gone or closed
// are skipped; send errors are logged and counted but never stop the remaining deliveries.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, ids []string, rec Record) DispatchResult {
	var res DispatchResult
	evt := Event{Type: EventNewDevs, Data: rec}

	for _, id := range ids {
		ch, ok := d.registry.Channel(id)
		if !ok {
			res.Skipped++
			continue
		}
		if err := ch.Send(evt); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				res.Skipped++
				continue
			}
			res.Failed++
			log.Warn().Err(err).
				Str("connection_id", id).
				Str("dev_id", rec.ID).
				Msg("newDevs delivery failed")
			continue
		}
		res.Delivered++
	}
	return res
}
