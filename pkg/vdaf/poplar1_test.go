package vdaf

import (
	"testing"

	"github.com/marmos91/dapagg/pkg/ids"
)

func TestPoplar1MultiRound(t *testing.T) {
	v := NewPoplar1(8)
	aggParam, err := v.DecodeAggParam(EncodePoplar1AggParam(3))
	if err != nil {
		t.Fatalf("DecodeAggParam: %v", err)
	}

	leaderShare := make([]byte, 16)
	helperShare := make([]byte, 16)
	leaderShare[7] = 0xAB
	helperShare[7] = 0xCD

	leaderState, err := v.PrepareInit(nil, aggParam, ids.Nonce{}, leaderShare)
	if err != nil {
		t.Fatalf("PrepareInit(leader): %v", err)
	}
	helperState, err := v.PrepareInit(nil, aggParam, ids.Nonce{}, helperShare)
	if err != nil {
		t.Fatalf("PrepareInit(helper): %v", err)
	}

	leaderStep, err := v.PrepareStep(aggParam, leaderState, nil)
	if err != nil || leaderStep.Kind != StepContinue {
		t.Fatalf("leader init step: %+v err=%v", leaderStep, err)
	}
	helperStep, err := v.PrepareStep(aggParam, helperState, nil)
	if err != nil || helperStep.Kind != StepContinue {
		t.Fatalf("helper init step: %+v err=%v", helperStep, err)
	}

	rounds := 0
	for leaderStep.Kind == StepContinue {
		rounds++
		if rounds > 10 {
			t.Fatal("too many rounds, likely non-terminating")
		}
		nextLeader, err := v.PrepareStep(aggParam, leaderStep.NextState, helperStep.Outgoing)
		if err != nil {
			t.Fatalf("leader round %d: %v", rounds, err)
		}
		nextHelper, err := v.PrepareStep(aggParam, helperStep.NextState, leaderStep.Outgoing)
		if err != nil {
			t.Fatalf("helper round %d: %v", rounds, err)
		}
		leaderStep, helperStep = nextLeader, nextHelper
	}

	if leaderStep.Kind != StepFinish || helperStep.Kind != StepFinish {
		t.Fatalf("expected both sides to finish, got leader=%+v helper=%+v", leaderStep, helperStep)
	}
	if rounds != 3 {
		t.Fatalf("expected exactly 3 continuation rounds for target level 3, got %d", rounds)
	}
}

func TestPoplar1RejectsBadAggParamLength(t *testing.T) {
	v := NewPoplar1(8)
	if _, err := v.DecodeAggParam([]byte{1}); err == nil {
		t.Fatal("expected error for truncated aggregation parameter")
	}
}

func TestPoplar1RejectsLevelBeyondBitLength(t *testing.T) {
	v := NewPoplar1(4)
	if _, err := v.DecodeAggParam(EncodePoplar1AggParam(10)); err == nil {
		t.Fatal("expected error for level beyond bit length")
	}
}
