package auth

import (
	"testing"

	"github.com/marmos91/dapagg/pkg/ids"
	"github.com/marmos91/dapagg/pkg/wire"
)

func TestAdminAuthenticatorAcceptsConfiguredSecret(t *testing.T) {
	a := NewAdminAuthenticator([]string{"s3cret-one", "s3cret-two"})
	if !a.Authenticate("Basic s3cret-two") {
		t.Fatal("expected second configured secret to authenticate")
	}
	if a.Authenticate("Basic wrong") {
		t.Fatal("expected wrong secret to be rejected")
	}
	if a.Authenticate("s3cret-one") {
		t.Fatal("expected missing Basic prefix to be rejected")
	}
}

func TestAggregateAuthenticatorRoundTrip(t *testing.T) {
	var authr AggregateAuthenticator
	key := []byte("0123456789abcdef0123456789abcdef")
	payload := []byte("hello aggregate request")

	envelope := authr.Sign(payload, key)
	got, err := authr.Verify(envelope, key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestAggregateAuthenticatorRejectsTamperedByte(t *testing.T) {
	var authr AggregateAuthenticator
	key := []byte("key")
	envelope := authr.Sign([]byte("payload"), key)
	envelope[0] ^= 0xFF

	if _, err := authr.Verify(envelope, key); err != ErrTagMismatch {
		t.Fatalf("expected ErrTagMismatch, got %v", err)
	}
}

func TestAggregateAuthenticatorRejectsWrongKey(t *testing.T) {
	var authr AggregateAuthenticator
	envelope := authr.Sign([]byte("payload"), []byte("right-key"))
	if _, err := authr.Verify(envelope, []byte("wrong-key")); err != ErrTagMismatch {
		t.Fatalf("expected ErrTagMismatch, got %v", err)
	}
}

func TestPeekTaskIDMatchesEncodedReq(t *testing.T) {
	taskID, err := ids.NewTaskID()
	if err != nil {
		t.Fatal(err)
	}
	jobID, err := ids.NewAggregationJobID()
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := wire.EncodeAggregateReq(wire.AggregateReq{
		Kind:   wire.AggregateReqInit,
		TaskID: taskID,
		JobID:  jobID,
	})
	if err != nil {
		t.Fatalf("EncodeAggregateReq: %v", err)
	}

	var authr AggregateAuthenticator
	envelope := authr.Sign(encoded, []byte("key"))

	got, err := PeekTaskID(envelope)
	if err != nil {
		t.Fatalf("PeekTaskID: %v", err)
	}
	if got != taskID {
		t.Fatalf("task id mismatch: got %s want %s", got, taskID)
	}
}

func TestPeekTaskIDTooShort(t *testing.T) {
	if _, err := PeekTaskID([]byte("short")); err != ErrEnvelopeTooShort {
		t.Fatalf("expected ErrEnvelopeTooShort, got %v", err)
	}
}
