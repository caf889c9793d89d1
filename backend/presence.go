package main

import (
	"context"
	"net/http"
	"sort"
	"time"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

const healthCheckTimeout = 2 * time.Second

// healthCheck reports whether one dependency answers.
type healthCheck func(ctx context.Context) error

type healthReport struct {
	Status       string            `json:"status"`
	LiveSessions int               `json:"live_sessions"`
	Checks       map[string]string `json:"checks,omitempty"`
}

// healthHandler answers GET /health with the live session count and the state of every
// dependency. Any failing check turns the status into 503.
func healthHandler(registry *radar.SessionRegistry, checks map[string]healthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok", LiveSessions: registry.Len()}
		if len(names) > 0 {
			report.Checks = make(map[string]string, len(names))
		}

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				report.Status = "degraded"
				report.Checks[name] = err.Error()
				loggerFromContext(r.Context()).Warn().Err(err).Str("check", name).Msg("health check failed")
				continue
			}
			report.Checks[name] = "ok"
		}

		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}
