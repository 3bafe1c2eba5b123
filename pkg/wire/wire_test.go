package wire

import (
	"reflect"
	"testing"

	"github.com/marmos91/dapagg/pkg/ids"
)

func sampleReport(t *testing.T) Report {
	t.Helper()
	taskID, err := ids.NewTaskID()
	if err != nil {
		t.Fatalf("NewTaskID: %v", err)
	}
	return Report{
		TaskID: taskID,
		Nonce:  ids.Nonce{Time: 1234, Rand: 5678},
		Extensions: []Extension{
			{Type: 1, Data: []byte("ext-a")},
		},
		EncryptedInputShares: [2]HpkeCiphertext{
			{ConfigID: 1, Enc: []byte("enc0"), Payload: []byte("payload0")},
			{ConfigID: 1, Enc: []byte("enc1"), Payload: []byte("payload1")},
		},
	}
}

func TestReportRoundTrip(t *testing.T) {
	r := sampleReport(t)
	b, err := EncodeReport(r)
	if err != nil {
		t.Fatalf("EncodeReport: %v", err)
	}
	got, err := DecodeReport(b)
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, r)
	}
}

func TestDecodeReportRejectsTrailingBytes(t *testing.T) {
	r := sampleReport(t)
	b, _ := EncodeReport(r)
	b = append(b, 0xFF)
	if _, err := DecodeReport(b); err == nil {
		t.Fatal("expected error decoding report with trailing byte")
	}
}

func TestDecodeReportRejectsTruncated(t *testing.T) {
	r := sampleReport(t)
	b, _ := EncodeReport(r)
	if _, err := DecodeReport(b[:len(b)-4]); err == nil {
		t.Fatal("expected error decoding truncated report")
	}
}

func TestAggregateReqInitRoundTrip(t *testing.T) {
	taskID, _ := ids.NewTaskID()
	jobID, _ := ids.NewAggregationJobID()

	req := AggregateReq{
		Kind:     AggregateReqInit,
		TaskID:   taskID,
		JobID:    jobID,
		AggParam: []byte("agg-param"),
		ReportShares: []ReportShare{
			{
				Nonce:               ids.Nonce{Time: 1, Rand: 2},
				Extensions:          nil,
				EncryptedInputShare: HpkeCiphertext{ConfigID: 1, Enc: []byte("e"), Payload: []byte("p")},
			},
			{
				Nonce:               ids.Nonce{Time: 3, Rand: 4},
				Extensions:          []Extension{{Type: 9, Data: []byte("x")}},
				EncryptedInputShare: HpkeCiphertext{ConfigID: 1, Enc: []byte("e2"), Payload: []byte("p2")},
			},
		},
	}

	b, err := EncodeAggregateReq(req)
	if err != nil {
		t.Fatalf("EncodeAggregateReq: %v", err)
	}
	got, err := DecodeAggregateReq(b)
	if err != nil {
		t.Fatalf("DecodeAggregateReq: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, req)
	}
}

func TestAggregateReqContinueRoundTrip(t *testing.T) {
	taskID, _ := ids.NewTaskID()
	jobID, _ := ids.NewAggregationJobID()

	req := AggregateReq{
		Kind:   AggregateReqContinue,
		TaskID: taskID,
		JobID:  jobID,
		Transitions: []Transition{
			{Nonce: ids.Nonce{Time: 1, Rand: 1}, Kind: TransitionContinued, Payload: []byte("msg")},
			{Nonce: ids.Nonce{Time: 2, Rand: 2}, Kind: TransitionFinished},
			{Nonce: ids.Nonce{Time: 3, Rand: 3}, Kind: TransitionFailed, Error: 7},
		},
	}

	b, err := EncodeAggregateReq(req)
	if err != nil {
		t.Fatalf("EncodeAggregateReq: %v", err)
	}
	got, err := DecodeAggregateReq(b)
	if err != nil {
		t.Fatalf("DecodeAggregateReq: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, req)
	}
}

func TestAggregateRespRoundTrip(t *testing.T) {
	resp := AggregateResp{
		Transitions: []Transition{
			{Nonce: ids.Nonce{Time: 1, Rand: 1}, Kind: TransitionContinued, Payload: []byte("m1")},
			{Nonce: ids.Nonce{Time: 2, Rand: 2}, Kind: TransitionFailed, Error: 3},
		},
	}
	b, err := EncodeAggregateResp(resp)
	if err != nil {
		t.Fatalf("EncodeAggregateResp: %v", err)
	}
	got, err := DecodeAggregateResp(b)
	if err != nil {
		t.Fatalf("DecodeAggregateResp: %v", err)
	}
	if !reflect.DeepEqual(got, resp) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, resp)
	}
}

func TestAssociatedDataIsDeterministic(t *testing.T) {
	nonce := ids.Nonce{Time: 42, Rand: 99}
	exts := []Extension{{Type: 1, Data: []byte("a")}}

	a := AssociatedData(nonce, exts)
	b := AssociatedData(nonce, exts)
	if string(a) != string(b) {
		t.Fatal("expected identical associated data for identical inputs")
	}

	other := AssociatedData(ids.Nonce{Time: 42, Rand: 100}, exts)
	if string(a) == string(other) {
		t.Fatal("expected different associated data for a different nonce")
	}
}

func TestHpkeConfigRoundTrip(t *testing.T) {
	c := HpkeConfigWire{ID: 3, KemID: 0x20, KdfID: 1, AeadID: 2, PublicKey: []byte("pubkey-bytes")}
	b, err := EncodeHpkeConfig(c)
	if err != nil {
		t.Fatalf("EncodeHpkeConfig: %v", err)
	}
	got, err := DecodeHpkeConfig(b)
	if err != nil {
		t.Fatalf("DecodeHpkeConfig: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, c)
	}
}
