// Package clock provides a mockable wall-clock source. Core logic must
// depend on this interface rather than calling time.Now() directly so
// that clock-skew checks are deterministic under test.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time. Use only at application
// entry points (cmd/*).
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns a fixed time.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T
}

// FuncClock wraps a function as a Clock, useful for tests that need
// time to advance across calls.
type FuncClock func() time.Time

func (f FuncClock) Now() time.Time {
	return f()
}

// NewReal returns a Clock backed by the real system time.
func NewReal() Clock {
	return RealClock{}
}

// NewFixed returns a Clock that always returns t.
func NewFixed(t time.Time) Clock {
	return FixedClock{T: t}
}

// NewFunc returns a Clock backed by a custom function.
func NewFunc(f func() time.Time) Clock {
	return FuncClock(f)
}

var (
	_ Clock = RealClock{}
	_ Clock = FixedClock{}
	_ Clock = FuncClock(nil)
)
