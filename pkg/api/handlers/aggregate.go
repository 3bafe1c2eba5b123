package handlers

import (
	"io"
	"net/http"

	"github.com/marmos91/dapagg/pkg/auth"
	"github.com/marmos91/dapagg/pkg/coreerr"
	"github.com/marmos91/dapagg/pkg/engine"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/taskregistry"
	"github.com/marmos91/dapagg/pkg/wire"
)

// AggregateHandler serves POST /aggregate (§6.1): the Helper-side
// aggregate-init/aggregate-continue path, multiplexed onto one route
// and authenticated by the HMAC-SHA256 envelope described in §4.7 — the
// task id must be peeked out of the envelope's payload prefix before
// the per-task key needed to verify the tag is known.
type AggregateHandler struct {
	engine   *engine.Engine
	registry *taskregistry.Registry
	authr    auth.AggregateAuthenticator
}

func NewAggregateHandler(e *engine.Engine, registry *taskregistry.Registry) *AggregateHandler {
	return &AggregateHandler{engine: e, registry: registry}
}

func (h *AggregateHandler) Post(w http.ResponseWriter, r *http.Request) {
	envelope, err := io.ReadAll(r.Body)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("reading request body: %v", err), r.URL.Path)
		return
	}

	taskID, err := auth.PeekTaskID(envelope)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("decoding envelope task id: %v", err), r.URL.Path)
		return
	}

	params, _, ok := h.registry.Lookup(taskID)
	if !ok {
		writeProblem(w, coreerr.UnrecognizedTask(taskID.String()), r.URL.Path)
		return
	}
	if params.Role != taskparams.RoleHelper {
		writeProblem(w, coreerr.NotFound("task is not served in the helper role here"), r.URL.Path)
		return
	}

	payload, err := h.authr.Verify(envelope, params.AggregatorAuthKey)
	if err != nil {
		writeProblem(w, coreerr.InvalidHmac(taskID.String()), r.URL.Path)
		return
	}

	req, err := wire.DecodeAggregateReq(payload)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("decoding aggregate request: %v", err), r.URL.Path)
		return
	}

	var resp wire.AggregateResp
	switch req.Kind {
	case wire.AggregateReqInit:
		resp, err = h.engine.HandleAggregateInit(r.Context(), req)
	case wire.AggregateReqContinue:
		resp, err = h.engine.HandleAggregateContinue(r.Context(), req)
	default:
		err = coreerr.UnrecognizedMessage("unknown aggregate request kind %d", req.Kind)
	}
	if err != nil {
		writeProblem(w, err, r.URL.Path)
		return
	}

	encoded, err := wire.EncodeAggregateResp(resp)
	if err != nil {
		writeProblem(w, coreerr.Internal(err), r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.authr.Sign(encoded, params.AggregatorAuthKey))
}
