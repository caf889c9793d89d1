package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// retryConfig controls exponential backoff for startup connections.
type retryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

var defaultRetry = retryConfig{
	MaxAttempts:  10,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Factor:       2,
}

// withRetry calls fn until it succeeds, attempts run out or ctx is done.
func withRetry(ctx context.Context, cfg retryConfig, service string, fn func(ctx context.Context) error) error {
	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		log.Warn().Err(lastErr).
			Str("service", service).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("connection attempt failed")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted after %d attempts: %w", service, attempt, lastErr)
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("%s: max retry attempts (%d) exceeded: %w", service, cfg.MaxAttempts, lastErr)
}

// openDB opens the Postgres pool and waits until the server answers.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	err = withRetry(ctx, defaultRetry, "postgres", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("database connection established")
	return db, nil
}
