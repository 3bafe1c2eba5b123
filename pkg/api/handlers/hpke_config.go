package handlers

import (
	"net/http"

	"github.com/marmos91/dapagg/pkg/coreerr"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskregistry"
	"github.com/marmos91/dapagg/pkg/wire"
)

// HpkeConfigHandler serves GET /hpke_config (§6.1): unauthenticated, and
// answerable entirely from the live task registry.
type HpkeConfigHandler struct {
	registry *taskregistry.Registry
}

func NewHpkeConfigHandler(registry *taskregistry.Registry) *HpkeConfigHandler {
	return &HpkeConfigHandler{registry: registry}
}

// Get handles GET /hpke_config?task_id=<unpadded-base64url>.
func (h *HpkeConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("task_id")
	if raw == "" {
		writeProblem(w, coreerr.UnrecognizedMessage("missing task_id query parameter"), r.URL.Path)
		return
	}
	taskID, err := ids.ParseTaskID(raw)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("malformed task id: %v", err), r.URL.Path)
		return
	}

	params, _, ok := h.registry.Lookup(taskID)
	if !ok {
		writeProblem(w, coreerr.UnrecognizedTask(taskID.String()), r.URL.Path)
		return
	}

	encoded, err := wire.EncodeHpkeConfig(wire.FromHpkeConfig(params.Recipient.Config()))
	if err != nil {
		writeProblem(w, coreerr.Internal(err), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}
