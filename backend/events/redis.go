package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// CreatedChannel is the Redis pub/sub channel creation events travel on.
const CreatedChannel = "devs:created"

// RedisBus fans creation events out to every instance through Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus publishes and subscribes on CreatedChannel.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, channel: CreatedChannel}
}

// createdMessage keeps the creation time that the public Record JSON omits.
type createdMessage struct {
	Record    radar.Record `json:"record"`
	CreatedAt int64        `json:"created_at"`
}

func (b *RedisBus) Publish(ctx context.Context, rec radar.Record) error {
	data, err := json.Marshal(createdMessage{Record: rec, CreatedAt: rec.CreatedAt.UnixMilli()})
	if err != nil {
		return fmt.Errorf("failed to marshal creation event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return radar.Transient("failed to publish creation event", err)
	}
	return nil
}

// Subscribe waits until Redis confirms the subscription before returning.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan radar.Record, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, radar.Transient("failed to subscribe to creation events", err)
	}

	out := make(chan radar.Record, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m createdMessage
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("discarding malformed creation event")
					continue
				}
				rec := m.Record
				if m.CreatedAt > 0 {
					rec.CreatedAt = time.UnixMilli(m.CreatedAt).UTC()
				}
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
