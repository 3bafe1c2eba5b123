// Package vdaf implements the VDAF-polymorphic dispatch layer: a closed
// set of Verifiable Distributed Aggregation Functions sharing one
// prepare/step interface, so the engine's protocol state machine never
// needs to know which concrete VDAF it is driving.
//
// The cryptographic internals here are a simplified stand-in for the
// real Prio3 / Poplar1 constructions - additive secret sharing with a
// checksum binding rather than a zero-knowledge proof system - built to
// exercise the same round structure and failure modes a real VDAF would,
// not to provide cryptographic soundness.
package vdaf

import (
	"fmt"

	"github.com/marmos91/dapagg/pkg/ids"
)

// StepKind discriminates the three outcomes of one VDAF preparation
// step, mirroring the protocol-level Transition kinds.
type StepKind uint8

const (
	StepContinue StepKind = iota
	StepFinish
	StepFail
)

// StepResult is the outcome of one call to VDAF.PrepareStep.
type StepResult struct {
	Kind StepKind

	// NextState is the encoded state to persist as Waiting(next_step)
	// when Kind == StepContinue.
	NextState []byte

	// Outgoing is the encoded prepare message to send to the peer
	// aggregator when Kind == StepContinue.
	Outgoing []byte

	// OutputShare is the encoded per-report output share when
	// Kind == StepFinish.
	OutputShare []byte

	// Err explains a StepFail outcome. The engine maps it to
	// TransitionError::VdafPrepError without surfacing Err's text to
	// the wire.
	Err error
}

// VDAF is the uniform surface every supported VDAF variant implements.
// Implementations are monomorphic; polymorphism lives one level up, at
// the Dispatch tagged union, matching the protocol's entry-points-only
// dispatch design.
type VDAF interface {
	// Name identifies the VDAF for logging and metrics labels.
	Name() string

	// DecodeAggParam validates and normalizes the wire-encoded
	// aggregation parameter for this VDAF. Every Prio3 variant requires
	// it to be empty.
	DecodeAggParam(raw []byte) ([]byte, error)

	// PrepareInit builds the initial preparation state from a decoded
	// input share. It performs no network or VDAF-protocol rounds by
	// itself; the first round happens in the immediately following
	// PrepareStep(state, nil) call.
	PrepareInit(verifyKey []byte, aggParam []byte, nonce ids.Nonce, inputShare []byte) ([]byte, error)

	// PrepareStep advances one round. incoming is nil for the very
	// first step (called right after PrepareInit) and carries the
	// peer's prepare message on every subsequent round.
	PrepareStep(aggParam []byte, state []byte, incoming []byte) (StepResult, error)
}

// ErrVdafPrep is a sentinel wrapped by every VDAF-internal preparation
// failure, so the engine can recognize the class of error without
// depending on a specific variant's error type.
var ErrVdafPrep = fmt.Errorf("vdaf: preparation failed")

func prepError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVdafPrep, fmt.Sprintf(format, args...))
}
