// Package taskparams defines the immutable per-task configuration the
// aggregator needs to serve upload and aggregate requests for a task.
package taskparams

import (
	"fmt"
	"time"

	"github.com/marmos91/dapagg/pkg/hpke"
	"github.com/marmos91/dapagg/pkg/ids"
)

// Role is which of the two cooperating aggregators this process plays
// for a given task.
type Role string

const (
	RoleLeader Role = "leader"
	RoleHelper Role = "helper"
)

// VdafSelector names a supported VDAF and its static parameters. Which
// fields beyond Kind are meaningful depends on Kind.
type VdafSelector struct {
	Kind Kind

	// Prio3Sum / Prio3SumVec
	Bits uint8

	// Prio3Histogram
	Buckets uint32

	// Prio3SumVec
	VectorLength uint32

	// Poplar1
	BitLength uint16
}

// Kind enumerates the VDAFs the engine can dispatch to.
type Kind string

const (
	KindPrio3Count     Kind = "prio3count"
	KindPrio3Sum       Kind = "prio3sum"
	KindPrio3Histogram Kind = "prio3histogram"
	KindPrio3SumVec    Kind = "prio3sumvec"
	KindPoplar1        Kind = "poplar1"
)

// TaskParameters is the immutable configuration for one task served by
// this aggregator process.
type TaskParameters struct {
	TaskID ids.TaskID

	// LeaderEndpoint and HelperEndpoint are the two aggregators'
	// externally reachable base URLs, leader first.
	LeaderEndpoint string
	HelperEndpoint string

	Vdaf               VdafSelector
	Role               Role
	VdafVerifyKey      []byte
	MinBatchSize       uint64
	MaxBatchLifetime   time.Duration
	BatchDuration      time.Duration
	TolerableClockSkew time.Duration

	CollectorHpkeConfig hpke.Config

	// AggregatorAuthKey is the shared HMAC-SHA256 key authenticating the
	// aggregate endpoint envelope for this task.
	AggregatorAuthKey []byte

	// Recipient decrypts ciphertexts addressed to this aggregator for
	// this task.
	Recipient hpke.Recipient

	CreatedAt time.Time
}

// Validate enforces the invariants construction must not violate: a
// recognized role and a non-negative clock skew.
func (p *TaskParameters) Validate() error {
	if p.Role != RoleLeader && p.Role != RoleHelper {
		return fmt.Errorf("task %s: role must be leader or helper, got %q", p.TaskID, p.Role)
	}
	if p.TolerableClockSkew < 0 {
		return fmt.Errorf("task %s: tolerable_clock_skew must be non-negative, got %s", p.TaskID, p.TolerableClockSkew)
	}
	return nil
}
