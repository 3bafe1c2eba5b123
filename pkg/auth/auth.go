// Package auth implements the two authentication modes at the HTTP
// boundary: a constant-time shared-secret check on admin endpoints, and
// an HMAC-SHA256 signed envelope on the aggregate endpoint.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/marmos91/dapagg/pkg/ids"
)

const tagSize = sha256.Size

// AdminAuthenticator checks the Authorization header on administrative
// routes against a configured set of secrets, comparing in constant
// time so the response latency cannot leak how many leading bytes of a
// guess matched.
type AdminAuthenticator struct {
	secrets [][]byte
}

// NewAdminAuthenticator builds an authenticator from the configured set
// of valid shared secrets. Any one of them authenticates a request.
func NewAdminAuthenticator(secrets []string) *AdminAuthenticator {
	a := &AdminAuthenticator{secrets: make([][]byte, len(secrets))}
	for i, s := range secrets {
		a.secrets[i] = []byte(s)
	}
	return a
}

// Authenticate checks the raw value of an `Authorization: Basic <token>`
// header, returning true if token matches any configured secret.
func (a *AdminAuthenticator) Authenticate(header string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := []byte(strings.TrimPrefix(header, prefix))

	// Every secret is compared, win or lose, so the number of configured
	// secrets doesn't itself leak through early-exit timing.
	ok := false
	for _, secret := range a.secrets {
		if len(token) == len(secret) && subtle.ConstantTimeCompare(token, secret) == 1 {
			ok = true
		}
	}
	return ok
}

// taskIDOffset and taskIDLength locate the task id within an encoded
// AggregateReq payload: one kind byte followed by the 32-byte task id,
// per pkg/wire's layout. The HMAC key is looked up by task id before
// the envelope's tag is verified, so this offset must track wire.go.
const (
	taskIDOffset = 1
	taskIDLength = 32
)

var (
	// ErrEnvelopeTooShort is returned when a body is too small to
	// contain a task id and an HMAC tag.
	ErrEnvelopeTooShort = errors.New("auth: envelope shorter than task id prefix plus hmac tag")
	// ErrTagMismatch is returned when an envelope's HMAC tag does not
	// match its payload.
	ErrTagMismatch = errors.New("auth: hmac tag mismatch")
)

// PeekTaskID reads the task id out of an aggregate envelope's payload
// prefix without verifying the tag, so the caller can look up the
// per-task key needed to verify it.
func PeekTaskID(envelope []byte) (ids.TaskID, error) {
	if len(envelope) < taskIDOffset+taskIDLength+tagSize {
		return ids.TaskID{}, ErrEnvelopeTooShort
	}
	var taskID ids.TaskID
	copy(taskID[:], envelope[taskIDOffset:taskIDOffset+taskIDLength])
	return taskID, nil
}

// AggregateAuthenticator verifies and produces the HMAC-SHA256 envelope
// used on the aggregate endpoint: `payload || tag`, keyed by the task's
// aggregator_auth_key.
type AggregateAuthenticator struct{}

// Verify splits envelope into its payload and tag, recomputes the tag
// over payload under key, and returns the payload on a match.
func (AggregateAuthenticator) Verify(envelope, key []byte) ([]byte, error) {
	if len(envelope) < tagSize {
		return nil, ErrEnvelopeTooShort
	}
	split := len(envelope) - tagSize
	payload, tag := envelope[:split], envelope[split:]

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, ErrTagMismatch
	}
	return payload, nil
}

// Sign appends an HMAC-SHA256 tag over payload, computed under key.
func (AggregateAuthenticator) Sign(payload, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	tag := mac.Sum(nil)
	return append(append([]byte{}, payload...), tag...)
}

