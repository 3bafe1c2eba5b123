package logger

import "log/slog"

// Standard field keys for structured logging across the aggregator.
// Use these keys consistently so log aggregation/querying stays uniform
// between the upload path, the aggregate path, and the admin surface.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Request identity
	KeyRequestID = "request_id"
	KeyRoute     = "route" // "upload", "aggregate_init", "aggregate_continue", "hpke_config"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyClientIP  = "client_ip"

	// DAP identifiers
	KeyTaskID           = "task_id"
	KeyAggregationJobID = "aggregation_job_id"
	KeyNonceTime        = "nonce_time"
	KeyRole             = "role" // "leader", "helper"
	KeyVDAF             = "vdaf"

	// Aggregation outcome
	KeyReportCount  = "report_count"
	KeyOutcome      = "outcome" // transition kind: continued, finished, failed
	KeyJobState     = "job_state"
	KeyTransitionOf = "transition_error"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyStatus     = "status"
	KeyBytes      = "bytes"
	KeyError      = "error"
	KeyErrorKind  = "error_kind"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// Route returns a slog.Attr for the logical route name.
func Route(name string) slog.Attr {
	return slog.String(KeyRoute, name)
}

// TaskID returns a slog.Attr for a base64url-encoded task id.
func TaskID(id string) slog.Attr {
	return slog.String(KeyTaskID, id)
}

// AggregationJobID returns a slog.Attr for a base64url-encoded aggregation job id.
func AggregationJobID(id string) slog.Attr {
	return slog.String(KeyAggregationJobID, id)
}

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Role returns a slog.Attr for the aggregator role (leader/helper).
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// VDAF returns a slog.Attr for the VDAF selector name.
func VDAF(name string) slog.Attr {
	return slog.String(KeyVDAF, name)
}

// ReportCount returns a slog.Attr for a number of reports processed.
func ReportCount(n int) slog.Attr {
	return slog.Int(KeyReportCount, n)
}

// JobState returns a slog.Attr for an aggregation job's state.
func JobState(state string) slog.Attr {
	return slog.String(KeyJobState, state)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero Attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorKind returns a slog.Attr for a core error kind.
func ErrorKind(kind string) slog.Attr {
	return slog.String(KeyErrorKind, kind)
}

// Status returns a slog.Attr for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}
