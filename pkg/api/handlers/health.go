package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/taskregistry"
)

// HealthCheckTimeout is the maximum time allowed for health check
// operations, so a slow datastore can't block a liveness/readiness probe
// indefinitely.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: is the server process running?
//   - Readiness probe: is the task registry loaded and the datastore reachable?
type HealthHandler struct {
	store    datastore.Store
	registry *taskregistry.Registry
}

// NewHealthHandler creates a new health handler. store and registry may
// be nil, in which case readiness returns unhealthy.
func NewHealthHandler(store datastore.Store, registry *taskregistry.Registry) *HealthHandler {
	return &HealthHandler{store: store, registry: registry}
}

// Liveness handles GET /health - simple liveness probe.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dapagg",
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK once the task registry has loaded and the datastore
// responds to a trivial round trip. Returns 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	if _, err := h.store.ListAllTasks(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("datastore unreachable: "+err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"tasks": h.registry.Len(),
	}))
}
