// Package events carries dev creation events from the instance that stored a record to every
// instance holding live sessions.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

const subscriberBuffer = 100

// Bus publishes created records to all subscribers.
type Bus interface {
	Publish(ctx context.Context, rec radar.Record) error

	// Subscribe returns a channel of created records. It is closed once ctx is done or the bus
	// is closed.
	Subscribe(ctx context.Context) (<-chan radar.Record, error)

	Close() error
}

// LocalBus is an in-process Bus for single instance deployments.
type LocalBus struct {
	mu          sync.RWMutex
	subscribers map[chan radar.Record]struct{}
	closed      bool
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subscribers: make(map[chan radar.Record]struct{})}
}

// Publish hands rec to every subscriber. A subscriber whose buffer is full misses the event.
func (b *LocalBus) Publish(ctx context.Context, rec radar.Record) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- rec:
		default:
			log.Warn().Str("dev_id", rec.ID).Msg("local bus subscriber full, dropping creation event")
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan radar.Record, error) {
	ch := make(chan radar.Record, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *LocalBus) remove(ch chan radar.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Close closes every subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	return nil
}
