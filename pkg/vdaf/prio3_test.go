package vdaf

import (
	"bytes"
	"testing"

	"github.com/marmos91/dapagg/pkg/ids"
)

func TestPrio3CountHappyPath(t *testing.T) {
	v := NewPrio3Count()
	verifyKey := []byte("leader-verify-key")
	tag := Prio3ChecksumTag("prio3count", verifyKey)

	leaderShare := EncodeInputShare([]uint64{1}, tag)
	helperShare := EncodeInputShare([]uint64{0}, tag)

	aggParam, err := v.DecodeAggParam(nil)
	if err != nil {
		t.Fatalf("DecodeAggParam: %v", err)
	}

	leaderState, err := v.PrepareInit(verifyKey, aggParam, ids.Nonce{Time: 1}, leaderShare)
	if err != nil {
		t.Fatalf("PrepareInit(leader): %v", err)
	}
	helperState, err := v.PrepareInit(verifyKey, aggParam, ids.Nonce{Time: 1}, helperShare)
	if err != nil {
		t.Fatalf("PrepareInit(helper): %v", err)
	}

	leaderRound1, err := v.PrepareStep(aggParam, leaderState, nil)
	if err != nil || leaderRound1.Kind != StepContinue {
		t.Fatalf("leader round 1: result=%+v err=%v", leaderRound1, err)
	}
	helperRound1, err := v.PrepareStep(aggParam, helperState, nil)
	if err != nil || helperRound1.Kind != StepContinue {
		t.Fatalf("helper round 1: result=%+v err=%v", helperRound1, err)
	}

	leaderFinal, err := v.PrepareStep(aggParam, leaderRound1.NextState, helperRound1.Outgoing)
	if err != nil || leaderFinal.Kind != StepFinish {
		t.Fatalf("leader round 2: result=%+v err=%v", leaderFinal, err)
	}
	helperFinal, err := v.PrepareStep(aggParam, helperRound1.NextState, leaderRound1.Outgoing)
	if err != nil || helperFinal.Kind != StepFinish {
		t.Fatalf("helper round 2: result=%+v err=%v", helperFinal, err)
	}

	if !bytes.Equal(leaderFinal.OutputShare, helperFinal.OutputShare) {
		t.Fatalf("output shares diverge: leader=%x helper=%x", leaderFinal.OutputShare, helperFinal.OutputShare)
	}
}

func TestPrio3RejectsWrongInputShareLength(t *testing.T) {
	v := NewPrio3Count()
	if _, err := v.PrepareInit([]byte("k"), nil, ids.Nonce{}, []byte("too-short")); err == nil {
		t.Fatal("expected error for wrong-length input share")
	}
}

func TestPrio3DecodeAggParamRejectsNonEmpty(t *testing.T) {
	v := NewPrio3Sum(16)
	if _, err := v.DecodeAggParam([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding non-empty aggregation parameter")
	}
}

func TestPrio3BadChecksumFails(t *testing.T) {
	v := NewPrio3Count()
	verifyKey := []byte("key")
	share := EncodeInputShare([]uint64{1}, Prio3ChecksumTag("prio3count", verifyKey))
	// Corrupt the checksum half of the limb.
	share[15] ^= 0xFF

	state, err := v.PrepareInit(verifyKey, nil, ids.Nonce{}, share)
	if err != nil {
		t.Fatalf("PrepareInit: %v", err)
	}
	result, err := v.PrepareStep(nil, state, nil)
	if err != nil {
		t.Fatalf("PrepareStep: %v", err)
	}
	if result.Kind != StepFail {
		t.Fatalf("expected StepFail on checksum mismatch, got %+v", result)
	}
}

func TestPrio3HistogramMultiLimb(t *testing.T) {
	v := NewPrio3Histogram(4)
	verifyKey := []byte("k")
	tag := Prio3ChecksumTag("prio3histogram", verifyKey)

	leaderShare := EncodeInputShare([]uint64{1, 0, 0, 0}, tag)
	helperShare := EncodeInputShare([]uint64{0, 0, 0, 0}, tag)

	leaderState, _ := v.PrepareInit(verifyKey, nil, ids.Nonce{}, leaderShare)
	helperState, _ := v.PrepareInit(verifyKey, nil, ids.Nonce{}, helperShare)

	leaderR1, _ := v.PrepareStep(nil, leaderState, nil)
	helperR1, _ := v.PrepareStep(nil, helperState, nil)

	leaderFinal, err := v.PrepareStep(nil, leaderR1.NextState, helperR1.Outgoing)
	if err != nil || leaderFinal.Kind != StepFinish {
		t.Fatalf("leader final: %+v err=%v", leaderFinal, err)
	}
	if len(leaderFinal.OutputShare) != 4*8 {
		t.Fatalf("expected 32-byte output for 4 buckets, got %d", len(leaderFinal.OutputShare))
	}
}
