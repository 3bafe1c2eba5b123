package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/dapagg/pkg/auth"
	"github.com/marmos91/dapagg/pkg/clock"
	"github.com/marmos91/dapagg/pkg/engine"
	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/taskparams"
	"github.com/marmos91/dapagg/pkg/taskregistry"
	"github.com/marmos91/dapagg/pkg/vdaf"
	"github.com/marmos91/dapagg/pkg/wire"
)

func newHelperTask(t *testing.T) taskparams.TaskParameters {
	t.Helper()
	taskID, err := ids.NewTaskID()
	if err != nil {
		t.Fatalf("NewTaskID: %v", err)
	}
	recipient, err := hpke.GenerateKeyPair(1)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return taskparams.TaskParameters{
		TaskID:            taskID,
		Role:              taskparams.RoleHelper,
		Vdaf:              taskparams.VdafSelector{Kind: taskparams.KindPrio3Count},
		Recipient:         recipient,
		AggregatorAuthKey: []byte("aggregator-auth-key-0000000000!!"),
		VdafVerifyKey:     []byte("verify-key-verify-key-0000000000"),
	}
}

func sealedShareFor(t *testing.T, task taskparams.TaskParameters, nonce ids.Nonce, share uint64) wire.ReportShare {
	t.Helper()
	tag := vdaf.Prio3ChecksumTag("prio3count", task.VdafVerifyKey)
	inputShare := vdaf.EncodeInputShare([]uint64{share}, tag)
	aad := wire.AssociatedData(nonce, nil)
	ct, err := hpke.Seal(task.Recipient.Config(), inputShare, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return wire.ReportShare{
		Nonce:               nonce,
		EncryptedInputShare: wire.HpkeCiphertext{ConfigID: ct.ConfigID, Enc: ct.Enc, Payload: ct.Payload},
	}
}

func newAggregateTestEngine(t *testing.T, tasks ...taskparams.TaskParameters) *engine.Engine {
	t.Helper()
	store := newMemStore(tasks...)
	reg := taskregistry.New(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return engine.New(store, reg, clock.NewFixed(time.Unix(1_700_000_000, 0)), nil)
}

func envelopeFor(t *testing.T, req wire.AggregateReq, key []byte) []byte {
	t.Helper()
	payload, err := wire.EncodeAggregateReq(req)
	if err != nil {
		t.Fatalf("EncodeAggregateReq: %v", err)
	}
	return auth.AggregateAuthenticator{}.Sign(payload, key)
}

func TestAggregatePost_HappyPathEmptyBatch(t *testing.T) {
	task := newHelperTask(t)
	store := newMemStore(task)
	reg := taskregistry.New(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	eng := engine.New(store, reg, clock.NewFixed(time.Unix(1_700_000_000, 0)), nil)
	handler := NewAggregateHandler(eng, reg)

	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}
	req := wire.AggregateReq{
		Kind:   wire.AggregateReqInit,
		TaskID: task.TaskID,
		JobID:  jobID,
	}
	envelope := envelopeFor(t, req, task.AggregatorAuthKey)

	httpReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	handler.Post(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("expected content type application/octet-stream, got %q", ct)
	}

	_, err = auth.AggregateAuthenticator{}.Verify(w.Body.Bytes(), task.AggregatorAuthKey)
	if err != nil {
		t.Fatalf("response envelope failed to verify: %v", err)
	}
}

func TestAggregatePost_BadTag(t *testing.T) {
	task := newHelperTask(t)
	eng := newAggregateTestEngine(t, task)
	reg := taskregistry.New(newMemStore(task))
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	handler := NewAggregateHandler(eng, reg)

	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}
	req := wire.AggregateReq{Kind: wire.AggregateReqInit, TaskID: task.TaskID, JobID: jobID}
	envelope := envelopeFor(t, req, []byte("the-wrong-key-the-wrong-key-000!"))

	httpReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	handler.Post(w, httpReq)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAggregatePost_UnknownTask(t *testing.T) {
	eng := newAggregateTestEngine(t)
	reg := taskregistry.New(newMemStore())
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	handler := NewAggregateHandler(eng, reg)

	unknownTask, err := ids.NewTaskID()
	if err != nil {
		t.Fatalf("NewTaskID: %v", err)
	}
	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}
	req := wire.AggregateReq{Kind: wire.AggregateReqInit, TaskID: unknownTask, JobID: jobID}
	envelope := envelopeFor(t, req, []byte("some-key-some-key-some-key-0000!"))

	httpReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	handler.Post(w, httpReq)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestAggregatePost_InitThenContinueRoundTrip(t *testing.T) {
	task := newHelperTask(t)
	eng := newAggregateTestEngine(t, task)
	reg := taskregistry.New(newMemStore(task))
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	handler := NewAggregateHandler(eng, reg)

	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}
	nonce := ids.Nonce{Time: 1, Rand: 1}

	initReq := wire.AggregateReq{
		Kind:         wire.AggregateReqInit,
		TaskID:       task.TaskID,
		JobID:        jobID,
		ReportShares: []wire.ReportShare{sealedShareFor(t, task, nonce, 1)},
	}
	initEnvelope := envelopeFor(t, initReq, task.AggregatorAuthKey)

	initHTTPReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(initEnvelope))
	initW := httptest.NewRecorder()
	handler.Post(initW, initHTTPReq)
	if initW.Code != http.StatusOK {
		t.Fatalf("init: expected status %d, got %d: %s", http.StatusOK, initW.Code, initW.Body.String())
	}

	initPayload, err := auth.AggregateAuthenticator{}.Verify(initW.Body.Bytes(), task.AggregatorAuthKey)
	if err != nil {
		t.Fatalf("init response envelope failed to verify: %v", err)
	}
	initResp, err := wire.DecodeAggregateResp(initPayload)
	if err != nil {
		t.Fatalf("DecodeAggregateResp: %v", err)
	}
	if len(initResp.Transitions) != 1 || initResp.Transitions[0].Kind != wire.TransitionContinued {
		t.Fatalf("expected the report to continue after init, got %+v", initResp.Transitions)
	}

	continueReq := wire.AggregateReq{
		Kind:   wire.AggregateReqContinue,
		TaskID: task.TaskID,
		JobID:  jobID,
		Transitions: []wire.Transition{
			{Nonce: nonce, Payload: initResp.Transitions[0].Payload},
		},
	}
	continueEnvelope := envelopeFor(t, continueReq, task.AggregatorAuthKey)

	continueHTTPReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(continueEnvelope))
	continueW := httptest.NewRecorder()
	handler.Post(continueW, continueHTTPReq)
	if continueW.Code != http.StatusOK {
		t.Fatalf("continue: expected status %d, got %d: %s", http.StatusOK, continueW.Code, continueW.Body.String())
	}

	continuePayload, err := auth.AggregateAuthenticator{}.Verify(continueW.Body.Bytes(), task.AggregatorAuthKey)
	if err != nil {
		t.Fatalf("continue response envelope failed to verify: %v", err)
	}
	continueResp, err := wire.DecodeAggregateResp(continuePayload)
	if err != nil {
		t.Fatalf("DecodeAggregateResp: %v", err)
	}
	if len(continueResp.Transitions) != 1 || continueResp.Transitions[0].Kind != wire.TransitionFinished {
		t.Fatalf("expected the report to finish after continue, got %+v", continueResp.Transitions)
	}
}

func TestAggregatePost_LeaderRoleTaskRejected(t *testing.T) {
	task := newHelperTask(t)
	task.Role = taskparams.RoleLeader
	store := newMemStore(task)
	reg := taskregistry.New(store)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	eng := engine.New(store, reg, clock.NewFixed(time.Unix(1_700_000_000, 0)), nil)
	handler := NewAggregateHandler(eng, reg)

	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatalf("NewAggregationJobID: %v", err)
	}
	req := wire.AggregateReq{Kind: wire.AggregateReqInit, TaskID: task.TaskID, JobID: jobID}
	envelope := envelopeFor(t, req, task.AggregatorAuthKey)

	httpReq := httptest.NewRequest(http.MethodPost, "/aggregate", bytes.NewReader(envelope))
	w := httptest.NewRecorder()

	handler.Post(w, httpReq)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
