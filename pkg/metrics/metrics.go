// Package metrics defines the aggregator's observability surface.
//
// Implementations are optional - pass nil to disable metrics collection
// with zero overhead, matching the rest of the codebase's pattern of
// interface-shaped, swappable subsystems.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry installs the Prometheus registry used by metrics
// implementations created via the prometheus subpackage. Call once during
// startup before constructing any Reporter.
func InitRegistry(reg *prometheus.Registry) {
	mu.Lock()
	defer mu.Unlock()
	registry = reg
	enabled = reg != nil
}

// IsEnabled reports whether a registry has been installed.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// GetRegistry returns the installed registry, or nil if none was installed.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reporter records observability signals for the upload and aggregate
// code paths. Handlers and the engine accept a Reporter and must treat a
// nil Reporter as a no-op sink.
type Reporter interface {
	// RecordUpload records the outcome of a report upload.
	//
	// Parameters:
	//   - taskID: base64url task id the report was uploaded against
	//   - outcome: "accepted", "rejected", "duplicate"
	RecordUpload(taskID string, outcome string)

	// RecordAggregateInit records an aggregate-init round.
	//
	// Parameters:
	//   - taskID: base64url task id
	//   - vdaf: VDAF selector name
	//   - reportCount: number of report shares in the request
	//   - duration seconds elapsed processing the round
	RecordAggregateInit(taskID string, vdaf string, reportCount int, durationSeconds float64)

	// RecordAggregateContinue records an aggregate-continue round.
	//
	// Parameters:
	//   - taskID: base64url task id
	//   - outcome: final transition kind observed for the job ("continued", "finished", "failed")
	RecordAggregateContinue(taskID string, outcome string)

	// RecordReplay records a rejected replayed nonce or aggregation job.
	RecordReplay(taskID string)

	// RecordHPKEFailure records an HPKE open failure for an uploaded report.
	RecordHPKEFailure(taskID string)

	// SetTaskCount updates the current number of tasks in the registry.
	SetTaskCount(n int)
}
