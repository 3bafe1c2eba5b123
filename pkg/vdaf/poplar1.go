package vdaf

import (
	"encoding/binary"

	"github.com/marmos91/dapagg/pkg/ids"
)

// poplar1 is a simplified stand-in for the Poplar1 VDAF: it runs one
// preparation round per bit of the IDPF prefix tree, so the engine's
// Waiting(prep_step)/Continue path is exercised across genuinely many
// rounds rather than the single round Prio3 variants use.
type poplar1 struct {
	bitLength uint16
}

// NewPoplar1 returns a Poplar1 VDAF evaluating an IDPF-shaped secret
// share over bitLength levels.
func NewPoplar1(bitLength uint16) VDAF {
	return &poplar1{bitLength: bitLength}
}

func (p *poplar1) Name() string { return "poplar1" }

// poplar1AggParam carries the prefix-tree level this aggregation round
// targets. Real Poplar1 aggregation parameters also carry the candidate
// prefix set; this engine tracks only the level, sufficient to drive the
// per-level round structure.
type poplar1AggParam struct {
	level uint16
}

func (p *poplar1) DecodeAggParam(raw []byte) ([]byte, error) {
	if len(raw) != 2 {
		return nil, prepError("poplar1 aggregation parameter has wrong length: got %d bytes, want 2", len(raw))
	}
	level := binary.BigEndian.Uint16(raw)
	if level > p.bitLength {
		return nil, prepError("poplar1 aggregation parameter level %d exceeds bit length %d", level, p.bitLength)
	}
	return raw, nil
}

// poplar1State is the per-report prepare state: the current tree level
// and the running seed/value shares accumulated so far.
type poplar1State struct {
	level      uint16
	seedShare  uint64
	valueShare uint64
}

func (p *poplar1) PrepareInit(verifyKey []byte, aggParam []byte, nonce ids.Nonce, inputShare []byte) ([]byte, error) {
	if len(inputShare) != 16 {
		return nil, prepError("poplar1 input share has wrong length: got %d bytes, want 16", len(inputShare))
	}
	st := poplar1State{
		level:      0,
		seedShare:  binary.BigEndian.Uint64(inputShare[0:8]),
		valueShare: binary.BigEndian.Uint64(inputShare[8:16]),
	}
	return encodePoplarState(st), nil
}

func (p *poplar1) PrepareStep(aggParam []byte, state []byte, incoming []byte) (StepResult, error) {
	st, err := decodePoplarState(state)
	if err != nil {
		return StepResult{}, err
	}
	targetLevel := binary.BigEndian.Uint16(aggParam)

	if incoming == nil {
		// First round at this level: derive a correction word from the
		// current seed and expose it to the peer.
		outgoing := make([]byte, 8)
		binary.BigEndian.PutUint64(outgoing, st.seedShare^levelPad(st.level))
		return StepResult{Kind: StepContinue, NextState: encodePoplarState(st), Outgoing: outgoing}, nil
	}

	if len(incoming) != 8 {
		return StepResult{}, prepError("poplar1 incoming prepare message has wrong length: got %d bytes, want 8", len(incoming))
	}
	peerCorrection := binary.BigEndian.Uint64(incoming)

	// Fold the peer's correction word into our running seed for this
	// level, advance the level, and either finish (we've reached the
	// target level) or continue to the next level's round.
	st.seedShare ^= peerCorrection
	st.level++

	if st.level >= targetLevel || st.level >= p.bitLength {
		output := make([]byte, 16)
		binary.BigEndian.PutUint64(output[0:8], st.seedShare)
		binary.BigEndian.PutUint64(output[8:16], st.valueShare)
		return StepResult{Kind: StepFinish, OutputShare: output}, nil
	}

	outgoing := make([]byte, 8)
	binary.BigEndian.PutUint64(outgoing, st.seedShare^levelPad(st.level))
	return StepResult{Kind: StepContinue, NextState: encodePoplarState(st), Outgoing: outgoing}, nil
}

// levelPad derives a level-dependent pad so each round's correction word
// differs from the last even when the seed is unchanged.
func levelPad(level uint16) uint64 {
	return uint64(level)*0x9E3779B97F4A7C15 + 1
}

func encodePoplarState(st poplar1State) []byte {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint16(buf[0:2], st.level)
	binary.BigEndian.PutUint64(buf[2:10], st.seedShare)
	binary.BigEndian.PutUint64(buf[10:18], st.valueShare)
	return buf
}

func decodePoplarState(b []byte) (poplar1State, error) {
	if len(b) != 18 {
		return poplar1State{}, prepError("corrupt poplar1 prepare state: got %d bytes, want 18", len(b))
	}
	return poplar1State{
		level:      binary.BigEndian.Uint16(b[0:2]),
		seedShare:  binary.BigEndian.Uint64(b[2:10]),
		valueShare: binary.BigEndian.Uint64(b[10:18]),
	}, nil
}

// EncodePoplar1AggParam encodes the level-targeting aggregation
// parameter Poplar1 rounds are driven by.
func EncodePoplar1AggParam(level uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, level)
	return buf
}
