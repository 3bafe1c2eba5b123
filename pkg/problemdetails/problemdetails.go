// Package problemdetails translates coreerr.Kind values into RFC 7807
// application/problem+json documents, per the aggregator's error-kind to
// (type URI, title, status) mapping.
package problemdetails

import (
	"encoding/json"
	"net/http"

	"github.com/marmos91/dapagg/pkg/coreerr"
)

const typeBase = "https://dapagg.example/errors/"

// Document is the application/problem+json body shape.
type Document struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TaskID   string `json:"taskid,omitempty"`
}

type mapping struct {
	uriSuffix string
	title     string
	status    int
}

var kindMappings = map[coreerr.Kind]mapping{
	coreerr.KindUnrecognizedMessage: {"unrecognizedMessage", "unrecognized message", http.StatusBadRequest},
	coreerr.KindUnrecognizedTask:    {"unrecognizedTask", "unrecognized task", http.StatusNotFound},
	coreerr.KindOutdatedHpkeConfig:  {"outdatedConfig", "outdated hpke config", http.StatusBadRequest},
	coreerr.KindStaleReport:         {"staleReport", "stale report", http.StatusBadRequest},
	coreerr.KindInvalidHmac:         {"invalidHmac", "invalid hmac", http.StatusBadRequest},
	coreerr.KindReportFromFuture:    {"reportTooEarly", "report from the future", http.StatusBadRequest},
	coreerr.KindNotFound:            {"", "not found", http.StatusNotFound},
	coreerr.KindInternal:            {"", "internal server error", http.StatusInternalServerError},
	coreerr.KindDatastore:           {"", "internal server error", http.StatusInternalServerError},
	coreerr.KindVdaf:                {"", "internal server error", http.StatusInternalServerError},
	coreerr.KindInvalidConfiguration: {"", "internal server error", http.StatusInternalServerError},
}

// FromError builds the problem document and status code for err. Unknown
// error kinds (including plain errors not wrapping a *CoreError) fall
// back to a generic internal-error document so detail is never leaked.
func FromError(err error, instance string) (Document, int) {
	ce, ok := coreerr.As(err)
	if !ok {
		return Document{Title: "internal server error", Status: http.StatusInternalServerError, Instance: instance}, http.StatusInternalServerError
	}

	m, ok := kindMappings[ce.Kind]
	if !ok {
		m = mapping{"", "internal server error", http.StatusInternalServerError}
	}

	doc := Document{
		Title:    m.title,
		Status:   m.status,
		Instance: instance,
		TaskID:   ce.TaskID,
	}
	if m.uriSuffix != "" {
		doc.Type = typeBase + m.uriSuffix
	}
	// Server-attributable failures never serialize their cause; the
	// detail field is reserved for client-attributable errors.
	if m.status < http.StatusInternalServerError {
		doc.Detail = ce.Message
	}
	return doc, m.status
}

// Write encodes doc as application/problem+json to w with the given
// status code.
func Write(w http.ResponseWriter, doc Document, status int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}
