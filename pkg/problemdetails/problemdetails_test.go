package problemdetails

import (
	"errors"
	"net/http"
	"testing"

	"github.com/marmos91/dapagg/pkg/coreerr"
)

func TestFromErrorKnownKind(t *testing.T) {
	err := coreerr.StaleReport("abc123")
	doc, status := FromError(err, "/upload")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if doc.Type != typeBase+"staleReport" {
		t.Fatalf("unexpected type uri: %s", doc.Type)
	}
	if doc.TaskID != "abc123" {
		t.Fatalf("expected task id to round trip, got %q", doc.TaskID)
	}
}

func TestFromErrorServerFailureHidesDetail(t *testing.T) {
	err := coreerr.Internal(errors.New("sensitive database detail"))
	doc, status := FromError(err, "/aggregate")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if doc.Detail != "" {
		t.Fatalf("expected no detail leaked for a 500, got %q", doc.Detail)
	}
}

func TestFromErrorNonCoreErrorFallsBackToInternal(t *testing.T) {
	_, status := FromError(errors.New("boom"), "/x")
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500 fallback, got %d", status)
	}
}

func TestReportFromTheFutureHasURI(t *testing.T) {
	doc, status := FromError(coreerr.ReportFromTheFuture("t"), "/upload")
	if doc.Type != typeBase+"reportTooEarly" {
		t.Fatalf("expected reportTooEarly type uri, got %q", doc.Type)
	}
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}
