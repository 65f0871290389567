package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/dtn-gateway/internal/gateway"
	"github.com/rickgao/dtn-gateway/internal/version"
)

// healthDeps are the components reported on /health. Any may be nil.
type healthDeps struct {
	feeds    func() []gateway.FeedStats
	sessions func() int
	db       *pgxpool.Pool
	nats     func() bool
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps, metrics http.Handler, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]interface{}),
		}

		// Upstream feeds: degraded unless every feed is streaming
		if deps.feeds != nil {
			feeds := deps.feeds()
			health.Components["feeds"] = feeds
			for _, f := range feeds {
				if f.State != "streaming" {
					health.Status = "degraded"
				}
			}
		}

		if deps.sessions != nil {
			health.Components["websocket"] = map[string]interface{}{
				"sessions": deps.sessions(),
			}
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		if deps.nats != nil {
			if deps.nats() {
				health.Components["nats"] = "connected"
			} else {
				health.Components["nats"] = "disconnected"
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	if metrics != nil {
		mux.Handle(metricsPath, metrics)
	}

	return mux
}
