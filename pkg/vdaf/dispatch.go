package vdaf

import (
	"fmt"

	"github.com/marmos91/dapagg/pkg/taskparams"
)

// FromSelector constructs the concrete VDAF a task's selector names.
// This is the one place the tagged variant in taskparams.VdafSelector
// is resolved into a monomorphic VDAF implementation; everything above
// this boundary is VDAF-agnostic.
func FromSelector(sel taskparams.VdafSelector) (VDAF, error) {
	switch sel.Kind {
	case taskparams.KindPrio3Count:
		return NewPrio3Count(), nil
	case taskparams.KindPrio3Sum:
		return NewPrio3Sum(sel.Bits), nil
	case taskparams.KindPrio3Histogram:
		return NewPrio3Histogram(sel.Buckets), nil
	case taskparams.KindPrio3SumVec:
		return NewPrio3SumVec(sel.VectorLength, sel.Bits), nil
	case taskparams.KindPoplar1:
		return NewPoplar1(sel.BitLength), nil
	default:
		return nil, fmt.Errorf("vdaf: unsupported selector kind %q", sel.Kind)
	}
}
