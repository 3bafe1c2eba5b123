// Package engine implements the protocol state machine: upload
// validation on the Leader side, and aggregate-init/aggregate-continue
// processing on the Helper side. It is the one place HTTP request
// shapes, the task registry, the VDAF interface, and the datastore
// transaction boundary all meet.
package engine

import (
	"context"
	"fmt"

	"github.com/marmos91/dapagg/pkg/clock"
	"github.com/marmos91/dapagg/pkg/coreerr"
	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/metrics"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/taskregistry"
	"github.com/marmos91/dapagg/pkg/vdaf"
	"github.com/marmos91/dapagg/pkg/wire"
)

// Engine ties the task registry, datastore, and clock together to
// implement the upload and aggregate request flows. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	store    datastore.Store
	registry *taskregistry.Registry
	clock    clock.Clock
	metrics  metrics.Reporter
}

// New builds an Engine. metrics may be nil, in which case no metrics
// are recorded.
func New(store datastore.Store, registry *taskregistry.Registry, clk clock.Clock, m metrics.Reporter) *Engine {
	return &Engine{store: store, registry: registry, clock: clk, metrics: m}
}

func (e *Engine) lookupTask(taskID ids.TaskID, wantRole taskparams.Role) (taskparams.TaskParameters, vdaf.VDAF, error) {
	params, v, ok := e.registry.Lookup(taskID)
	if !ok {
		return taskparams.TaskParameters{}, nil, coreerr.UnrecognizedTask(taskID.String())
	}
	if params.Role != wantRole {
		return taskparams.TaskParameters{}, nil, coreerr.NotFound(fmt.Sprintf("task %s is not served in the %s role here", taskID, wantRole))
	}
	return params, v, nil
}

// HandleUpload implements §4.6.1: the Leader-side report ingestion
// path. A nil return, including on a silently-dropped undecryptable
// report, means "respond 200 empty".
func (e *Engine) HandleUpload(ctx context.Context, report wire.Report) error {
	task, _, err := e.lookupTask(report.TaskID, taskparams.RoleLeader)
	if err != nil {
		return err
	}

	if report.EncryptedInputShares[0].ConfigID != task.Recipient.Config().ID {
		e.recordHpkeFailure(task.TaskID)
		return coreerr.OutdatedHpkeConfig(task.TaskID.String())
	}

	now := uint64(e.clock.Now().Unix())
	if report.Nonce.Time > now+uint64(task.TolerableClockSkew.Seconds()) {
		return coreerr.ReportFromTheFuture(task.TaskID.String())
	}

	aad := wire.AssociatedData(report.Nonce, report.Extensions)
	if _, err := task.Recipient.Open(hpkeCiphertextOf(report.EncryptedInputShares[0]), aad); err != nil {
		// Do not leak decryptability to the client: accept and drop.
		e.recordHpkeFailure(task.TaskID)
		return nil
	}

	err = e.store.RunTx(ctx, "upload", func(ctx context.Context, tx datastore.Tx) error {
		existing, err := tx.GetClientReportByTaskIDAndNonce(ctx, task.TaskID, report.Nonce)
		if err == nil && existing != nil {
			if e.metrics != nil {
				e.metrics.RecordReplay(task.TaskID.String())
			}
			return coreerr.StaleReport(task.TaskID.String())
		}
		if err != nil {
			if se, ok := err.(*datastore.StoreError); !ok || se.Kind != datastore.ErrNotFound {
				return coreerr.Datastore(err)
			}
		}
		return tx.PutClientReport(ctx, datastore.StoredClientReport{
			TaskID:     task.TaskID,
			Nonce:      report.Nonce,
			Extensions: report.Extensions,
			Shares:     [2]wire.HpkeCiphertext{report.EncryptedInputShares[0], report.EncryptedInputShares[1]},
		})
	})
	if err != nil {
		if _, ok := coreerr.As(err); ok {
			return err
		}
		return coreerr.Datastore(err)
	}
	if e.metrics != nil {
		e.metrics.RecordUpload(task.TaskID.String(), "accepted")
	}
	return nil
}

// HandleAggregateInit implements §4.6.3.
func (e *Engine) HandleAggregateInit(ctx context.Context, req wire.AggregateReq) (wire.AggregateResp, error) {
	start := e.clock.Now()
	task, v, err := e.lookupTask(req.TaskID, taskparams.RoleHelper)
	if err != nil {
		return wire.AggregateResp{}, err
	}

	if err := checkDistinctNonces(req.ReportShares); err != nil {
		return wire.AggregateResp{}, err
	}

	aggParam, err := v.DecodeAggParam(req.AggParam)
	if err != nil {
		return wire.AggregateResp{}, coreerr.UnrecognizedMessage("invalid aggregation parameter: %v", err)
	}

	outcomes := make([]shareOutcome, len(req.ReportShares))
	var sawContinue, sawFinish bool
	for i, rs := range req.ReportShares {
		outcome := processInitShare(task, v, aggParam, rs)
		outcomes[i] = outcome
		switch outcome.transition.Kind {
		case wire.TransitionContinued:
			sawContinue = true
		case wire.TransitionFinished:
			sawFinish = true
		}
	}
	if sawContinue && sawFinish {
		return wire.AggregateResp{}, coreerr.Internal(fmt.Errorf("vdaf %s produced both Continue and Finish outcomes within one aggregate_init", v.Name()))
	}

	jobState := datastore.JobFinished
	if sawContinue {
		jobState = datastore.JobInProgress
	}

	err = e.store.RunTx(ctx, "aggregate_init", func(ctx context.Context, tx datastore.Tx) error {
		if err := tx.PutAggregationJob(ctx, datastore.AggregationJob{
			TaskID: task.TaskID, AggregationJobID: req.JobID, AggParam: req.AggParam, State: jobState,
		}); err != nil {
			return coreerr.Datastore(err)
		}
		for i, outcome := range outcomes {
			reportID, err := tx.PutReportShare(ctx, task.TaskID, outcome.share)
			if err != nil {
				return coreerr.Datastore(err)
			}
			if err := tx.PutReportAggregation(ctx, datastore.ReportAggregation{
				AggregationJobID: req.JobID,
				ClientReportID:   reportID,
				Nonce:            outcome.share.Nonce,
				Ord:              i,
				State:            outcome.raState,
				PrepStep:         outcome.prepStep,
				OutputShare:      outcome.outputShare,
				TransitionError:  outcome.transitionErr,
			}); err != nil {
				return coreerr.Datastore(err)
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := coreerr.As(err); ok {
			return wire.AggregateResp{}, err
		}
		return wire.AggregateResp{}, coreerr.Datastore(err)
	}

	if e.metrics != nil {
		e.metrics.RecordAggregateInit(task.TaskID.String(), v.Name(), len(req.ReportShares), e.clock.Now().Sub(start).Seconds())
	}

	transitions := make([]wire.Transition, len(outcomes))
	for i, o := range outcomes {
		transitions[i] = o.transition
	}
	return wire.AggregateResp{Transitions: transitions}, nil
}

// HandleAggregateContinue implements §4.6.4, fully (not reserved).
func (e *Engine) HandleAggregateContinue(ctx context.Context, req wire.AggregateReq) (wire.AggregateResp, error) {
	task, v, err := e.lookupTask(req.TaskID, taskparams.RoleHelper)
	if err != nil {
		return wire.AggregateResp{}, err
	}

	var transitions []wire.Transition
	err = e.store.RunTx(ctx, "aggregate_continue", func(ctx context.Context, tx datastore.Tx) error {
		job, err := tx.GetAggregationJob(ctx, task.TaskID, req.JobID)
		if err != nil {
			return coreerr.Datastore(err)
		}
		existing, err := tx.GetReportAggregations(ctx, req.JobID)
		if err != nil {
			return coreerr.Datastore(err)
		}

		aggParam, err := v.DecodeAggParam(job.AggParam)
		if err != nil {
			return coreerr.Internal(fmt.Errorf("re-decoding persisted aggregation parameter: %w", err))
		}

		byNonce := make(map[ids.Nonce]datastore.ReportAggregation, len(existing))
		for _, ra := range existing {
			byNonce[ra.Nonce] = ra
		}

		updates := make([]datastore.ReportAggregation, len(req.Transitions))
		transitions = make([]wire.Transition, len(req.Transitions))
		for i, in := range req.Transitions {
			ra, ok := byNonce[in.Nonce]
			if !ok || ra.State != datastore.ReportAggWaiting {
				return coreerr.UnrecognizedMessage("no waiting report aggregation for nonce %v", in.Nonce)
			}

			result, stepErr := v.PrepareStep(aggParam, ra.PrepStep, in.Payload)
			if stepErr != nil {
				result = vdaf.StepResult{Kind: vdaf.StepFail, Err: stepErr}
			}
			updated, transition := applyStepResult(in.Nonce, ra, result)
			updates[i] = updated
			transitions[i] = transition
		}

		updatedByNonce := make(map[ids.Nonce]datastore.ReportAggregation, len(updates))
		for _, u := range updates {
			updatedByNonce[u.Nonce] = u
		}
		stillWaiting := false
		for nonce, ra := range byNonce {
			if u, ok := updatedByNonce[nonce]; ok {
				ra = u
			}
			if ra.State == datastore.ReportAggWaiting {
				stillWaiting = true
			}
		}
		jobState := datastore.JobFinished
		if stillWaiting {
			jobState = datastore.JobInProgress
		}

		for _, u := range updates {
			if err := tx.UpdateReportAggregation(ctx, u); err != nil {
				return coreerr.Datastore(err)
			}
		}
		return tx.UpdateAggregationJobState(ctx, task.TaskID, req.JobID, jobState)
	})
	if err != nil {
		if _, ok := coreerr.As(err); ok {
			return wire.AggregateResp{}, err
		}
		return wire.AggregateResp{}, coreerr.Datastore(err)
	}

	if e.metrics != nil {
		e.metrics.RecordAggregateContinue(task.TaskID.String(), "ok")
	}
	return wire.AggregateResp{Transitions: transitions}, nil
}

func (e *Engine) recordHpkeFailure(taskID ids.TaskID) {
	if e.metrics != nil {
		e.metrics.RecordHPKEFailure(taskID.String())
	}
}

type shareOutcome struct {
	share           wire.ReportShare
	transition      wire.Transition
	raState         datastore.ReportAggregationState
	prepStep        []byte
	outputShare     []byte
	transitionErr   uint8
}

func hpkeCiphertextOf(c wire.HpkeCiphertext) hpke.Ciphertext {
	return hpke.Ciphertext{ConfigID: c.ConfigID, Enc: c.Enc, Payload: c.Payload}
}

// checkDistinctNonces enforces the aggregate_init duplicate-nonce guard.
func checkDistinctNonces(shares []wire.ReportShare) error {
	seen := make(map[ids.Nonce]struct{}, len(shares))
	for _, s := range shares {
		if _, dup := seen[s.Nonce]; dup {
			return coreerr.UnrecognizedMessage("duplicate nonce")
		}
		seen[s.Nonce] = struct{}{}
	}
	return nil
}

// processInitShare runs the four-step per-share pipeline from §4.6.3
// and maps the outcome onto both an outbound Transition and the state
// to persist. It never returns an error: every failure mode is folded
// into a per-report TransitionFailed outcome so the rest of the job can
// proceed.
func processInitShare(task taskparams.TaskParameters, v vdaf.VDAF, aggParam []byte, rs wire.ReportShare) shareOutcome {
	share := wire.ReportShare{Nonce: rs.Nonce, Extensions: rs.Extensions, EncryptedInputShare: rs.EncryptedInputShare}

	aad := wire.AssociatedData(rs.Nonce, rs.Extensions)
	plaintext, err := task.Recipient.Open(hpkeCiphertextOf(rs.EncryptedInputShare), aad)
	if err != nil {
		return failedOutcome(share, wire.TransitionErrorHpkeDecryptError)
	}

	state, err := v.PrepareInit(task.VdafVerifyKey, aggParam, rs.Nonce, plaintext)
	if err != nil {
		return failedOutcome(share, wire.TransitionErrorVdafPrepError)
	}

	result, err := v.PrepareStep(aggParam, state, nil)
	if err != nil {
		return failedOutcome(share, wire.TransitionErrorVdafPrepError)
	}
	return outcomeFromStep(share, rs.Nonce, result)
}

func outcomeFromStep(share wire.ReportShare, nonce ids.Nonce, result vdaf.StepResult) shareOutcome {
	switch result.Kind {
	case vdaf.StepContinue:
		return shareOutcome{
			share:      share,
			transition: wire.Transition{Nonce: nonce, Kind: wire.TransitionContinued, Payload: result.Outgoing},
			raState:    datastore.ReportAggWaiting,
			prepStep:   result.NextState,
		}
	case vdaf.StepFinish:
		return shareOutcome{
			share:       share,
			transition:  wire.Transition{Nonce: nonce, Kind: wire.TransitionFinished},
			raState:     datastore.ReportAggFinished,
			outputShare: result.OutputShare,
		}
	default:
		return failedOutcome(share, wire.TransitionErrorVdafPrepError)
	}
}

func failedOutcome(share wire.ReportShare, reason wire.TransitionError) shareOutcome {
	return shareOutcome{
		share:         share,
		transition:    wire.Transition{Nonce: share.Nonce, Kind: wire.TransitionFailed, Error: uint8(reason)},
		raState:       datastore.ReportAggFailed,
		transitionErr: uint8(reason),
	}
}

// applyStepResult maps one aggregate_continue round's VDAF outcome onto
// the updated persisted row and its outbound Transition.
func applyStepResult(nonce ids.Nonce, ra datastore.ReportAggregation, result vdaf.StepResult) (datastore.ReportAggregation, wire.Transition) {
	switch result.Kind {
	case vdaf.StepContinue:
		ra.State = datastore.ReportAggWaiting
		ra.PrepStep = result.NextState
		return ra, wire.Transition{Nonce: nonce, Kind: wire.TransitionContinued, Payload: result.Outgoing}
	case vdaf.StepFinish:
		ra.State = datastore.ReportAggFinished
		ra.OutputShare = result.OutputShare
		ra.PrepStep = nil
		return ra, wire.Transition{Nonce: nonce, Kind: wire.TransitionFinished}
	default:
		ra.State = datastore.ReportAggFailed
		ra.TransitionError = uint8(wire.TransitionErrorVdafPrepError)
		ra.PrepStep = nil
		return ra, wire.Transition{Nonce: nonce, Kind: wire.TransitionFailed, Error: uint8(wire.TransitionErrorVdafPrepError)}
	}
}
