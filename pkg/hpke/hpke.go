// Package hpke implements the aggregator's HPKE recipient and sender
// surface: DHKEM(X25519, HKDF-SHA256) key encapsulation, HKDF-SHA256 key
// derivation, and AES-256-GCM sealing, in the single-shot "base mode"
// shape used to encrypt client report input shares end to end. It is a
// simplified, non-RFC9180-certified construction of the same primitive
// family, not a general-purpose HPKE library.
package hpke

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/marmos91/dapagg/pkg/ids"
)

// Algorithm identifiers, mirroring the DAP wire encoding of an HpkeConfig.
const (
	KemX25519HkdfSha256 uint16 = 0x0020
	KdfHkdfSha256        uint16 = 0x0001
	AeadAes256Gcm        uint16 = 0x0002
)

var suiteID = []byte("dap-hpke-v1")

// Config is the public, wire-visible half of an aggregator's HPKE
// configuration, published at GET /hpke_config.
type Config struct {
	ID        ids.HpkeConfigID
	KemID     uint16
	KdfID     uint16
	AeadID    uint16
	PublicKey []byte
}

// Ciphertext is the wire-visible envelope a client addresses to one
// aggregator's HPKE config.
type Ciphertext struct {
	ConfigID ids.HpkeConfigID
	Enc      []byte // KEM encapsulated key
	Payload  []byte // AEAD-sealed plaintext, tag included
}

// ErrDecrypt is returned by Recipient.Open on any decryption failure.
// Callers on the upload path must treat it as "drop the report silently",
// never surface its detail to the client.
var ErrDecrypt = errors.New("hpke: decryption failed")

// Recipient decrypts ciphertexts addressed to one HPKE configuration.
type Recipient interface {
	Config() Config
	Open(ct Ciphertext, aad []byte) ([]byte, error)
}

// KeyPair holds an X25519 key pair and the published Config wrapping its
// public half.
type KeyPair struct {
	private *ecdh.PrivateKey
	config  Config
}

// GenerateKeyPair creates a fresh X25519 key pair under the given config
// id, using the standard DAP-default algorithm suite.
func GenerateKeyPair(id ids.HpkeConfigID) (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating hpke keypair: %w", err)
	}
	return &KeyPair{
		private: priv,
		config: Config{
			ID:        id,
			KemID:     KemX25519HkdfSha256,
			KdfID:     KdfHkdfSha256,
			AeadID:    AeadAes256Gcm,
			PublicKey: priv.PublicKey().Bytes(),
		},
	}, nil
}

// Config returns the public HPKE configuration.
func (k *KeyPair) Config() Config {
	return k.config
}

// PrivateKeyBytes returns the raw X25519 private scalar, for persistence
// by the datastore layer. The returned bytes must be handled with the
// same care as any other key material.
func (k *KeyPair) PrivateKeyBytes() []byte {
	return k.private.Bytes()
}

// LoadKeyPair reconstructs a KeyPair from a raw X25519 private scalar
// and its published Config, as read back from storage.
func LoadKeyPair(private []byte, config Config) (*KeyPair, error) {
	priv, err := ecdh.X25519().NewPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("loading hpke private key: %w", err)
	}
	return &KeyPair{private: priv, config: config}, nil
}

// Open decrypts ct using the recipient's private key, returning
// ErrDecrypt (never a more specific error) on any failure so callers
// can't distinguish failure modes from timing or error detail.
func (k *KeyPair) Open(ct Ciphertext, aad []byte) ([]byte, error) {
	if ct.ConfigID != k.config.ID {
		return nil, ErrDecrypt
	}

	ephPub, err := ecdh.X25519().NewPublicKey(ct.Enc)
	if err != nil {
		return nil, ErrDecrypt
	}
	dh, err := k.private.ECDH(ephPub)
	if err != nil {
		return nil, ErrDecrypt
	}

	key, nonce, err := deriveKeyNonce(dh, ct.Enc, k.config.PublicKey)
	if err != nil {
		return nil, ErrDecrypt
	}

	aead, err := newAead(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(ct.Payload) < aead.NonceSize()+1 {
		return nil, ErrDecrypt
	}

	plaintext, err := aead.Open(nil, nonce, ct.Payload, aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Seal encrypts plaintext to the given recipient config, generating a
// fresh ephemeral key pair per call. It is the client-side counterpart
// to Recipient.Open, used by tests and by any component constructing
// reports against a published Config.
func Seal(recipient Config, plaintext, aad []byte) (Ciphertext, error) {
	recipientPub, err := ecdh.X25519().NewPublicKey(recipient.PublicKey)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("invalid recipient public key: %w", err)
	}

	ephPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("generating ephemeral key: %w", err)
	}
	dh, err := ephPriv.ECDH(recipientPub)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("ecdh: %w", err)
	}

	enc := ephPriv.PublicKey().Bytes()
	key, nonce, err := deriveKeyNonce(dh, enc, recipient.PublicKey)
	if err != nil {
		return Ciphertext{}, err
	}

	aeadCipher, err := newAead(key)
	if err != nil {
		return Ciphertext{}, err
	}

	payload := aeadCipher.Seal(nil, nonce, plaintext, aad)
	return Ciphertext{ConfigID: recipient.ID, Enc: enc, Payload: payload}, nil
}

// deriveKeyNonce runs the DHKEM extract/expand step followed by the
// key-schedule expand step, producing the AEAD key and base nonce.
func deriveKeyNonce(dh, enc, recipientPub []byte) (key, nonce []byte, err error) {
	kemContext := append(append([]byte{}, enc...), recipientPub...)
	eaePrk := hkdf.Extract(sha256.New, dh, nil)
	sharedSecret := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, eaePrk, append([]byte("shared_secret:"), kemContext...)), sharedSecret); err != nil {
		return nil, nil, err
	}

	secret := hkdf.Extract(sha256.New, sharedSecret, suiteID)

	key = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, secret, []byte("key")), key); err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, 12)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, secret, []byte("base_nonce")), nonce); err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

func newAead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var _ Recipient = (*KeyPair)(nil)
