// Package datastore defines the transactional persistence contract the
// aggregation engine is built against: atomic multi-row operations with
// well-defined conflict semantics, and an at-most-once replay check on
// (task_id, nonce). The concrete implementation lives in the postgres
// subpackage; the engine only ever depends on this package's
// interfaces, so tests can substitute an in-memory Store.
package datastore

import (
	"context"
	"time"

	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/wire"
)

// ErrorKind discriminates the datastore's own error taxonomy, distinct
// from coreerr.Kind: these are storage-layer outcomes that the engine
// maps onto its own error kinds at the transaction boundary.
type ErrorKind string

const (
	ErrNotFound            ErrorKind = "not_found"
	ErrMutationTargetNotFound ErrorKind = "mutation_target_not_found"
	ErrConflict            ErrorKind = "conflict"
	ErrUser                ErrorKind = "user"
	ErrTransient           ErrorKind = "transient"
)

// StoreError is the error type every Store and Transaction method
// returns on failure.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error // underlying cause, when there is one; for ErrUser, the core error that caused rollback
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + string(e.Kind)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// JobState is the lifecycle state of an AggregationJob.
type JobState string

const (
	JobInProgress JobState = "in_progress"
	JobFinished   JobState = "finished"
	JobAbandoned  JobState = "abandoned"
)

// ReportAggregationState discriminates a ReportAggregation's current
// position in the per-report VDAF preparation state machine.
type ReportAggregationState string

const (
	ReportAggStart    ReportAggregationState = "start"
	ReportAggWaiting  ReportAggregationState = "waiting"
	ReportAggFinished ReportAggregationState = "finished"
	ReportAggFailed   ReportAggregationState = "failed"
)

// StoredClientReport is a Report persisted keyed by (task_id, nonce).
type StoredClientReport struct {
	TaskID     ids.TaskID
	Nonce      ids.Nonce
	Extensions []wire.Extension
	Shares     [2]wire.HpkeCiphertext
	CreatedAt  time.Time
}

// AggregationJob is a batch of report shares processed together
// through the VDAF protocol.
type AggregationJob struct {
	TaskID           ids.TaskID
	AggregationJobID ids.AggregationJobID
	AggParam         []byte
	State            JobState
	CreatedAt        time.Time
}

// ReportAggregation is per-report state within an aggregation job.
type ReportAggregation struct {
	AggregationJobID ids.AggregationJobID
	ClientReportID   int64 // the row identity put_report_share returns
	Nonce            ids.Nonce
	Ord              int
	State            ReportAggregationState

	// PrepStep is set when State == ReportAggWaiting: the VDAF-encoded
	// next prepare state to resume from on the following continue round.
	PrepStep []byte

	// OutputShare is set when State == ReportAggFinished.
	OutputShare []byte

	// TransitionError is set when State == ReportAggFailed.
	TransitionError uint8
}

// TaskMetrics summarizes a task's report and report-aggregation counts.
type TaskMetrics struct {
	ReportCount            int64
	ReportAggregationCount int64
}

// Tx is the set of typed row operations the core performs inside a
// single transaction. All multi-row invariants the engine relies on
// (the replay check, the atomic job + report-aggregations insert) are
// enforced by running the relevant operations through one Tx.
type Tx interface {
	GetClientReportByTaskIDAndNonce(ctx context.Context, taskID ids.TaskID, nonce ids.Nonce) (*StoredClientReport, error)
	PutClientReport(ctx context.Context, report StoredClientReport) error

	// PutReportShare is idempotent on (task_id, nonce): a second insert
	// of the same key returns the existing row's identity rather than
	// erroring.
	PutReportShare(ctx context.Context, taskID ids.TaskID, share wire.ReportShare) (int64, error)

	PutAggregationJob(ctx context.Context, job AggregationJob) error
	PutReportAggregation(ctx context.Context, ra ReportAggregation) error

	GetAggregationJob(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID) (*AggregationJob, error)
	GetReportAggregations(ctx context.Context, jobID ids.AggregationJobID) ([]ReportAggregation, error)
	UpdateAggregationJobState(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID, state JobState) error
	UpdateReportAggregation(ctx context.Context, ra ReportAggregation) error

	GetTask(ctx context.Context, taskID ids.TaskID) (*taskparams.TaskParameters, error)
	GetTaskIDs(ctx context.Context, lowerBound *ids.TaskID, limit int) ([]ids.TaskID, error)
	GetTaskMetrics(ctx context.Context, taskID ids.TaskID) (*TaskMetrics, error)
	PutTask(ctx context.Context, task taskparams.TaskParameters) error
	DeleteTask(ctx context.Context, taskID ids.TaskID) error
}

// Store runs a function under a single serializable transaction: on
// return, either all of f's writes commit or none do.
type Store interface {
	RunTx(ctx context.Context, name string, f func(ctx context.Context, tx Tx) error) error

	// ListAllTasks is used once at startup (and by a live registry
	// refresh) to load every task without per-task round trips.
	ListAllTasks(ctx context.Context) ([]taskparams.TaskParameters, error)

	Close() error
}
