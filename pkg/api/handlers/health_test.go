package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/taskregistry"
)

// fakeStore is the minimal datastore.Store needed to exercise readiness.
type fakeStore struct {
	tasks []taskparams.TaskParameters
	err   error
}

func (f *fakeStore) RunTx(ctx context.Context, name string, fn func(ctx context.Context, tx datastore.Tx) error) error {
	return fn(ctx, nil)
}
func (f *fakeStore) ListAllTasks(ctx context.Context) ([]taskparams.TaskParameters, error) {
	return f.tasks, f.err
}
func (f *fakeStore) Close() error { return nil }

func TestLivenessReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp Wrapper
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
}

func TestReadinessNotInitializedReturns503(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestReadinessHealthyStoreReturnsOK(t *testing.T) {
	store := &fakeStore{}
	reg := taskregistry.New(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	handler := NewHealthHandler(store, reg)
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}

// Wrapper mirrors api.Response's JSON shape without importing pkg/api,
// keeping this test scoped to the handler package.
type Wrapper struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}
