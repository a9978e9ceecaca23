package handlers

import (
	"net/http"
	"time"

	"github.com/eventsphere/server/internal/jobs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthCheck is the /healthz response body.
type HealthCheck struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	GitCommit string           `json:"git_commit,omitempty"`
	Checks    map[string]bool  `json:"checks"`
	Jobs      []jobs.JobRecord `json:"jobs,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// HealthChecker verifies the database connection and reports the latest
// maintenance job outcomes.
type HealthChecker struct {
	pool    *pgxpool.Pool
	tracker *jobs.StatusTracker
	version string
	commit  string
}

func NewHealthChecker(pool *pgxpool.Pool, tracker *jobs.StatusTracker, version, commit string) *HealthChecker {
	return &HealthChecker{
		pool:    pool,
		tracker: tracker,
		version: version,
		commit:  commit,
	}
}

// Health handles GET /healthz. A failed job run degrades the report but does
// not fail it; only a dead database makes the endpoint report unhealthy.
func (h *HealthChecker) Health(w http.ResponseWriter, r *http.Request) {
	check := HealthCheck{
		Status:    "healthy",
		Version:   h.version,
		GitCommit: h.commit,
		Checks:    map[string]bool{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if h.pool != nil {
		if err := h.pool.Ping(r.Context()); err != nil {
			check.Status = "unhealthy"
			check.Checks["database"] = false
			status = http.StatusServiceUnavailable
		} else {
			check.Checks["database"] = true
		}
	}

	if h.tracker != nil {
		check.Jobs = h.tracker.Snapshot()
		for _, rec := range check.Jobs {
			if rec.LastOutcome == jobs.OutcomeFailed && check.Status == "healthy" {
				check.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, check)
}

// Ready handles GET /readyz.
func (h *HealthChecker) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pool != nil {
		if err := h.pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
