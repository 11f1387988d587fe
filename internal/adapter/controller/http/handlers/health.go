package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/haoyusec/threatlens/internal/config"
)

var startTime = time.Now()

// Pinger tests connectivity to a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Environment string            `json:"environment"`
	Timestamp   time.Time         `json:"timestamp"`
	Checks      map[string]string `json:"checks"`
}

// HealthCheck returns a handler for the health check endpoint
func HealthCheck(cfg *config.Config, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"api": "ok",
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				checks["clickhouse"] = err.Error()
			} else {
				checks["clickhouse"] = "ok"
			}
		}

		status := "healthy"
		for _, check := range checks {
			if check != "ok" {
				status = "degraded"
				break
			}
		}

		JSONResponse(w, http.StatusOK, HealthResponse{
			Status:      status,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			Environment: cfg.App.Env,
			Timestamp:   time.Now().UTC(),
			Checks:      checks,
		})
	}
}
