package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse reports liveness plus per-backend connectivity
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Backends  map[string]string `json:"backends"`
}

// handleHealth answers GET /health. The graph store is required; the
// ledger and Redis are optional, so a cache outage only degrades.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	backends := make(map[string]string)
	healthy := true
	degraded := false

	if s.backend != nil {
		if _, err := s.backend.ReadRows(ctx, "RETURN 1 AS ok", nil); err != nil {
			backends["graph"] = err.Error()
			healthy = false
		} else {
			backends["graph"] = "ok"
		}
	} else {
		backends["graph"] = "disabled"
		healthy = false
	}

	if s.store != nil {
		if _, err := s.store.ListIngestRuns(ctx, 1); err != nil {
			backends["ledger"] = err.Error()
			degraded = true
		} else {
			backends["ledger"] = "ok"
		}
	} else {
		backends["ledger"] = "disabled"
	}

	if s.redis != nil {
		if err := s.redis.HealthCheck(ctx); err != nil {
			backends["redis"] = err.Error()
			degraded = true
		} else {
			backends["redis"] = "ok"
		}
	} else {
		backends["redis"] = "disabled"
	}

	status := "healthy"
	code := http.StatusOK
	switch {
	case !healthy:
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	WriteJSON(w, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Backends:  backends,
	}, code)
}
