// Package ids defines the opaque identifiers that key the aggregator's
// data model: task ids, aggregation job ids, hpke config ids, and the
// client-report nonce. All of them serialize to unpadded URL-safe
// base64 at the wire and HTTP boundary.
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// TaskID is an opaque 32-byte task identifier.
type TaskID [32]byte

// AggregationJobID is an opaque 16-byte aggregation job identifier.
type AggregationJobID [16]byte

// HpkeConfigID identifies one of an aggregator's HPKE configurations.
type HpkeConfigID byte

// Nonce uniquely identifies a client report within a task.
type Nonce struct {
	Time uint64 // seconds since the Unix epoch
	Rand uint64 // 64 bits of randomness
}

var b64 = base64.RawURLEncoding

// NewTaskID generates a random task id.
func NewTaskID() (TaskID, error) {
	var id TaskID
	if _, err := rand.Read(id[:]); err != nil {
		return TaskID{}, fmt.Errorf("generating task id: %w", err)
	}
	return id, nil
}

// NewAggregationJobID generates a random aggregation job id.
func NewAggregationJobID() (AggregationJobID, error) {
	var id AggregationJobID
	if _, err := rand.Read(id[:]); err != nil {
		return AggregationJobID{}, fmt.Errorf("generating aggregation job id: %w", err)
	}
	return id, nil
}

// NewNonce generates a fresh nonce for the given wall-clock time.
func NewNonce(nowUnix uint64) (Nonce, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return Nonce{}, fmt.Errorf("generating nonce randomness: %w", err)
	}
	return Nonce{Time: nowUnix, Rand: binary.BigEndian.Uint64(buf[:])}, nil
}

// String returns the unpadded URL-safe base64 encoding of the task id.
func (t TaskID) String() string {
	return b64.EncodeToString(t[:])
}

// ParseTaskID decodes an unpadded URL-safe base64 task id.
func ParseTaskID(s string) (TaskID, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return TaskID{}, fmt.Errorf("decoding task id: %w", err)
	}
	if len(b) != 32 {
		return TaskID{}, fmt.Errorf("task id has wrong length: got %d bytes, want 32", len(b))
	}
	var t TaskID
	copy(t[:], b)
	return t, nil
}

// String returns the unpadded URL-safe base64 encoding of the job id.
func (j AggregationJobID) String() string {
	return b64.EncodeToString(j[:])
}

// ParseAggregationJobID decodes an unpadded URL-safe base64 job id.
func ParseAggregationJobID(s string) (AggregationJobID, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return AggregationJobID{}, fmt.Errorf("decoding aggregation job id: %w", err)
	}
	if len(b) != 16 {
		return AggregationJobID{}, fmt.Errorf("aggregation job id has wrong length: got %d bytes, want 16", len(b))
	}
	var j AggregationJobID
	copy(j[:], b)
	return j, nil
}

// Less reports whether n sorts strictly before other, ordering first by
// time and then by rand.
func (n Nonce) Less(other Nonce) bool {
	if n.Time != other.Time {
		return n.Time < other.Time
	}
	return n.Rand < other.Rand
}

// Equal reports whether two nonces are identical.
func (n Nonce) Equal(other Nonce) bool {
	return n.Time == other.Time && n.Rand == other.Rand
}
