package radar

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "gitea.kood.tech/petrkubec/dev-radar/backend/radar"

// PassObserver receives the outcome of every match and dispatch pass. Metrics hook in here.
type PassObserver func(rec Record, matched []string, res DispatchResult, elapsed time.Duration)

// Notifier runs the match and dispatch pass for each created record.
type Notifier struct {
	engine     *MatchEngine
	dispatcher *NotificationDispatcher
	observe    PassObserver
}

// NewNotifier wires an engine and dispatcher over registry. observe may be nil.
func NewNotifier(registry *SessionRegistry, observe PassObserver) *Notifier {
	return &Notifier{
		engine:     NewMatchEngine(registry),
		dispatcher: NewNotificationDispatcher(registry),
		observe:    observe,
	}
}

// RecordCreated notifies every live session rec falls inside.
func (n *Notifier) RecordCreated(ctx context.Context, rec Record) ([]string, DispatchResult) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "radar.RecordCreated")
	defer span.End()

	start := time.Now()
	matched := n.engine.OnRecordCreated(rec)
	res := n.dispatcher.Dispatch(ctx, matched, rec)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.String("dev.id", rec.ID),
		attribute.Int("radar.matched", len(matched)),
		attribute.Int("radar.delivered", res.Delivered),
		attribute.Int("radar.skipped", res.Skipped),
		attribute.Int("radar.failed", res.Failed),
	)

	log.Debug().
		Str("dev_id", rec.ID).
		Int("matched", len(matched)).
		Int("delivered", res.Delivered).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("elapsed", elapsed).
		Msg("newDevs pass")

	if n.observe != nil {
		n.observe(rec, matched, res, elapsed)
	}
	return matched, res
}
