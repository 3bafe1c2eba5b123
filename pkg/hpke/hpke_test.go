package hpke

import (
	"bytes"
	"testing"

	"github.com/marmos91/dapagg/pkg/ids"
)

func TestSealOpenRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(ids.HpkeConfigID(1))
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	plaintext := []byte("input share bytes")
	aad := []byte("nonce+extensions")

	ct, err := Seal(kp.Config(), plaintext, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := kp.Open(ct, aad)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestOpenWrongAadFails(t *testing.T) {
	kp, _ := GenerateKeyPair(ids.HpkeConfigID(1))
	ct, _ := Seal(kp.Config(), []byte("secret"), []byte("aad-a"))

	if _, err := kp.Open(ct, []byte("aad-b")); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt on aad mismatch, got %v", err)
	}
}

func TestOpenWrongConfigIDFails(t *testing.T) {
	kp, _ := GenerateKeyPair(ids.HpkeConfigID(1))
	ct, _ := Seal(kp.Config(), []byte("secret"), nil)
	ct.ConfigID = ids.HpkeConfigID(2)

	if _, err := kp.Open(ct, nil); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt on config id mismatch, got %v", err)
	}
}

func TestOpenTamperedPayloadFails(t *testing.T) {
	kp, _ := GenerateKeyPair(ids.HpkeConfigID(1))
	ct, _ := Seal(kp.Config(), []byte("secret"), nil)
	ct.Payload[0] ^= 0xFF

	if _, err := kp.Open(ct, nil); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt on tampered payload, got %v", err)
	}
}

func TestDifferentRecipientsCannotOpenEachOther(t *testing.T) {
	kp1, _ := GenerateKeyPair(ids.HpkeConfigID(1))
	kp2, _ := GenerateKeyPair(ids.HpkeConfigID(1))

	ct, _ := Seal(kp1.Config(), []byte("secret"), nil)
	if _, err := kp2.Open(ct, nil); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt when opening with the wrong private key, got %v", err)
	}
}
