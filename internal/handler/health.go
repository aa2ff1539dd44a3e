package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
)

type breakerStates interface {
	States() map[string]resilience.State
}

type HealthHandler struct {
	db       *sql.DB
	breakers breakerStates
}

func NewHealthHandler(db *sql.DB, breakers breakerStates) *HealthHandler {
	return &HealthHandler{db: db, breakers: breakers}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness only fails on the database. An open breaker degrades side effects
// but webhooks are still applied, so it is reported without failing the probe.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	checks := map[string]string{"database": dbStatus}
	if h.breakers != nil {
		for name, state := range h.breakers.States() {
			checks[name] = string(state)
			if state != resilience.StateClosed && overallStatus == "ok" {
				overallStatus = "degraded"
			}
		}
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
