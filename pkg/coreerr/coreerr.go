// Package coreerr defines the aggregation engine's value-typed error
// taxonomy. Every expected failure mode of the upload and aggregate paths
// is represented as a Kind on a CoreError rather than an ad-hoc error
// string, so the HTTP adapter and the problem-details encoder can switch
// on Kind without string matching.
package coreerr

import "fmt"

// Kind discriminates the error taxonomy named in the aggregator's error
// handling design: client-attributable (400-class), missing-resource
// (404), and server-attributable (500) failures.
type Kind string

const (
	KindUnrecognizedMessage Kind = "unrecognized_message"
	KindUnrecognizedTask    Kind = "unrecognized_task"
	KindOutdatedHpkeConfig  Kind = "outdated_hpke_config"
	KindStaleReport         Kind = "stale_report"
	KindInvalidHmac         Kind = "invalid_hmac"
	KindReportFromFuture    Kind = "report_from_the_future"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
	KindDatastore           Kind = "datastore"
	KindVdaf                Kind = "vdaf"
	KindInvalidConfiguration Kind = "invalid_configuration"
)

// CoreError is the error type returned by every core operation that can
// fail in a way the HTTP adapter must translate into a response.
type CoreError struct {
	Kind    Kind
	Message string
	TaskID  string // base64url task id, when the failure is task-scoped
	cause   error
}

func (e *CoreError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: %s (task=%s)", e.Kind, e.Message, e.TaskID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.cause
}

// New builds a CoreError with no task scope and no wrapped cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap builds a CoreError that carries an underlying cause, used when a
// server-attributable failure originates from a collaborator (datastore,
// VDAF library) and must be logged with its original detail.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, cause: cause}
}

// WithTask returns a copy of the error scoped to the given task id.
func (e *CoreError) WithTask(taskID string) *CoreError {
	clone := *e
	clone.TaskID = taskID
	return &clone
}

func UnrecognizedMessage(format string, args ...any) *CoreError {
	return New(KindUnrecognizedMessage, fmt.Sprintf(format, args...))
}

func UnrecognizedTask(taskID string) *CoreError {
	return New(KindUnrecognizedTask, "no task with this id").WithTask(taskID)
}

func OutdatedHpkeConfig(taskID string) *CoreError {
	return New(KindOutdatedHpkeConfig, "report's hpke config id does not match the aggregator's current config").WithTask(taskID)
}

func StaleReport(taskID string) *CoreError {
	return New(KindStaleReport, "a report with this (task_id, nonce) already exists").WithTask(taskID)
}

func InvalidHmac(taskID string) *CoreError {
	return New(KindInvalidHmac, "request envelope failed hmac verification").WithTask(taskID)
}

func ReportFromTheFuture(taskID string) *CoreError {
	return New(KindReportFromFuture, "report nonce time exceeds tolerable clock skew").WithTask(taskID)
}

func NotFound(message string) *CoreError {
	return New(KindNotFound, message)
}

func Internal(cause error) *CoreError {
	return Wrap(KindInternal, "internal error", cause)
}

func Datastore(cause error) *CoreError {
	return Wrap(KindDatastore, "datastore operation failed", cause)
}

func Vdaf(cause error) *CoreError {
	return Wrap(KindVdaf, "vdaf operation failed", cause)
}

func InvalidConfiguration(message string) *CoreError {
	return New(KindInvalidConfiguration, message)
}

// As reports whether err is a *CoreError and, if so, returns it.
func As(err error) (*CoreError, bool) {
	ce, ok := err.(*CoreError)
	return ce, ok
}
