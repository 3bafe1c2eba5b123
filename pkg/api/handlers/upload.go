package handlers

import (
	"io"
	"net/http"

	"github.com/marmos91/dapagg/pkg/coreerr"
	"github.com/marmos91/dapagg/pkg/engine"
	"github.com/marmos91/dapagg/pkg/wire"
)

// UploadHandler serves POST /upload (§6.1): the Leader-side report
// ingestion path. A task served in the Helper role here surfaces as
// coreerr.KindNotFound -> 404, via Engine.lookupTask's role check.
type UploadHandler struct {
	engine *engine.Engine
}

func NewUploadHandler(e *engine.Engine) *UploadHandler {
	return &UploadHandler{engine: e}
}

func (h *UploadHandler) Post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("reading request body: %v", err), r.URL.Path)
		return
	}

	report, err := wire.DecodeReport(body)
	if err != nil {
		writeProblem(w, coreerr.UnrecognizedMessage("decoding report: %v", err), r.URL.Path)
		return
	}

	if err := h.engine.HandleUpload(r.Context(), report); err != nil {
		writeProblem(w, err, r.URL.Path)
		return
	}

	w.WriteHeader(http.StatusOK)
}
