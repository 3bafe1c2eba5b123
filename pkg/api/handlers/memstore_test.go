package handlers

import (
	"context"
	"fmt"

	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/wire"
)

// memStore is a minimal in-memory datastore.Store exercising the
// engine's transaction boundary, mirroring the engine package's own
// test fixture so handler tests can drive a real *engine.Engine
// end-to-end instead of re-testing engine logic through a stub.
type memStore struct {
	tasks              map[ids.TaskID]taskparams.TaskParameters
	clientReports      map[string]datastore.StoredClientReport
	reportShares       map[string]int64
	nextShareID        int64
	aggregationJobs    map[string]datastore.AggregationJob
	reportAggregations map[string][]datastore.ReportAggregation
}

func newMemStore(tasks ...taskparams.TaskParameters) *memStore {
	m := &memStore{
		tasks:              make(map[ids.TaskID]taskparams.TaskParameters),
		clientReports:      make(map[string]datastore.StoredClientReport),
		reportShares:       make(map[string]int64),
		aggregationJobs:    make(map[string]datastore.AggregationJob),
		reportAggregations: make(map[string][]datastore.ReportAggregation),
	}
	for _, t := range tasks {
		m.tasks[t.TaskID] = t
	}
	return m
}

func memReportKey(taskID ids.TaskID, nonce ids.Nonce) string {
	return taskID.String() + "/" + fmt.Sprintf("%d:%d", nonce.Time, nonce.Rand)
}

func memJobKey(jobID ids.AggregationJobID) string { return jobID.String() }

func (m *memStore) RunTx(ctx context.Context, name string, f func(ctx context.Context, tx datastore.Tx) error) error {
	return f(ctx, &memTx{m})
}
func (m *memStore) ListAllTasks(ctx context.Context) ([]taskparams.TaskParameters, error) {
	var out []taskparams.TaskParameters
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (m *memStore) Close() error { return nil }

type memTx struct{ s *memStore }

func (t *memTx) GetClientReportByTaskIDAndNonce(ctx context.Context, taskID ids.TaskID, nonce ids.Nonce) (*datastore.StoredClientReport, error) {
	r, ok := t.s.clientReports[memReportKey(taskID, nonce)]
	if !ok {
		return nil, &datastore.StoreError{Kind: datastore.ErrNotFound, Op: "get"}
	}
	return &r, nil
}
func (t *memTx) PutClientReport(ctx context.Context, report datastore.StoredClientReport) error {
	t.s.clientReports[memReportKey(report.TaskID, report.Nonce)] = report
	return nil
}
func (t *memTx) PutReportShare(ctx context.Context, taskID ids.TaskID, share wire.ReportShare) (int64, error) {
	k := memReportKey(taskID, share.Nonce)
	if id, ok := t.s.reportShares[k]; ok {
		return id, nil
	}
	t.s.nextShareID++
	id := t.s.nextShareID
	t.s.reportShares[k] = id
	return id, nil
}
func (t *memTx) PutAggregationJob(ctx context.Context, job datastore.AggregationJob) error {
	t.s.aggregationJobs[memJobKey(job.AggregationJobID)] = job
	return nil
}
func (t *memTx) PutReportAggregation(ctx context.Context, ra datastore.ReportAggregation) error {
	k := memJobKey(ra.AggregationJobID)
	t.s.reportAggregations[k] = append(t.s.reportAggregations[k], ra)
	return nil
}
func (t *memTx) GetAggregationJob(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID) (*datastore.AggregationJob, error) {
	j, ok := t.s.aggregationJobs[memJobKey(jobID)]
	if !ok {
		return nil, &datastore.StoreError{Kind: datastore.ErrNotFound, Op: "get"}
	}
	return &j, nil
}
func (t *memTx) GetReportAggregations(ctx context.Context, jobID ids.AggregationJobID) ([]datastore.ReportAggregation, error) {
	return append([]datastore.ReportAggregation{}, t.s.reportAggregations[memJobKey(jobID)]...), nil
}
func (t *memTx) UpdateAggregationJobState(ctx context.Context, taskID ids.TaskID, jobID ids.AggregationJobID, state datastore.JobState) error {
	j := t.s.aggregationJobs[memJobKey(jobID)]
	j.State = state
	t.s.aggregationJobs[memJobKey(jobID)] = j
	return nil
}
func (t *memTx) UpdateReportAggregation(ctx context.Context, ra datastore.ReportAggregation) error {
	list := t.s.reportAggregations[memJobKey(ra.AggregationJobID)]
	for i, existing := range list {
		if existing.ClientReportID == ra.ClientReportID {
			list[i] = ra
		}
	}
	return nil
}
func (t *memTx) GetTask(ctx context.Context, taskID ids.TaskID) (*taskparams.TaskParameters, error) {
	task, ok := t.s.tasks[taskID]
	if !ok {
		return nil, &datastore.StoreError{Kind: datastore.ErrNotFound, Op: "get"}
	}
	return &task, nil
}
func (t *memTx) GetTaskIDs(ctx context.Context, lowerBound *ids.TaskID, limit int) ([]ids.TaskID, error) {
	return nil, nil
}
func (t *memTx) GetTaskMetrics(ctx context.Context, taskID ids.TaskID) (*datastore.TaskMetrics, error) {
	if _, ok := t.s.tasks[taskID]; !ok {
		return nil, &datastore.StoreError{Kind: datastore.ErrNotFound, Op: "get_metrics"}
	}
	return &datastore.TaskMetrics{}, nil
}
func (t *memTx) PutTask(ctx context.Context, task taskparams.TaskParameters) error {
	t.s.tasks[task.TaskID] = task
	return nil
}
func (t *memTx) DeleteTask(ctx context.Context, taskID ids.TaskID) error {
	delete(t.s.tasks, taskID)
	return nil
}
