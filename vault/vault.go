// Package vault defines the capability surface the Noise_XX handshake engine
// consumes for all primitive cryptographic operations and secret storage.
//
// The engine never touches raw key bytes for secret material: every key,
// chaining value, or derived output is referenced by an opaque Handle. A
// Vault implementation owns the actual bytes and is responsible for
// generating, importing, deriving, and deleting them on request.
package vault

import (
	"errors"
	"fmt"
)

// Handle is an opaque identifier for a secret held inside a Vault. It is
// never a key byte sequence; callers pass it back to the Vault to perform
// operations on the secret it names.
type Handle string

// SecretType distinguishes the kinds of secret material a Vault can hold.
type SecretType int

const (
	// X25519 identifies a Curve25519 private scalar paired with its public point.
	X25519 SecretType = iota
	// AES256 identifies a 32-byte AES-256 key, usable only with AEAD operations.
	AES256
	// Buffer identifies an opaque byte string of a fixed length, not usable
	// for AEAD or ECDH. The Noise chaining key (ck) is stored as a Buffer so
	// it can be used directly as HKDF salt without being mistaken for an AES key.
	Buffer
)

func (t SecretType) String() string {
	switch t {
	case X25519:
		return "X25519"
	case AES256:
		return "AES256"
	case Buffer:
		return "Buffer"
	default:
		return fmt.Sprintf("SecretType(%d)", int(t))
	}
}

// Attributes describes the type (and, for Buffer, the length) of a secret to
// import or derive.
type Attributes struct {
	Type   SecretType
	Length int // only meaningful for Buffer; X25519 and AES256 are always 32 bytes
}

// AES256Attributes returns the attributes for a 32-byte AES-256 key.
func AES256Attributes() Attributes { return Attributes{Type: AES256, Length: 32} }

// X25519Attributes returns the attributes for an X25519 key pair.
func X25519Attributes() Attributes { return Attributes{Type: X25519, Length: 32} }

// BufferAttributes returns the attributes for an opaque byte buffer of the given length.
func BufferAttributes(length int) Attributes { return Attributes{Type: Buffer, Length: length} }

// Sizes fixed by the algorithm suite (spec §6).
const (
	PublicKeySize = 32
	AEADKeySize   = 32
	DigestSize    = 32
	AEADTagSize   = 16
	AEADNonceSize = 12
)

var (
	// ErrHandleNotFound indicates an operation referenced a handle the vault
	// does not (or no longer) hold.
	ErrHandleNotFound = errors.New("vault: handle not found")
	// ErrWrongSecretType indicates an operation was attempted against a
	// handle whose secret type does not support it (e.g. ECDH on an AES key).
	ErrWrongSecretType = errors.New("vault: wrong secret type for operation")
	// ErrAuthenticationFailed indicates an AEAD tag mismatch on decrypt.
	ErrAuthenticationFailed = errors.New("vault: AEAD authentication failed")
	// ErrInvalidKeyMaterial indicates imported or supplied key bytes are malformed.
	ErrInvalidKeyMaterial = errors.New("vault: invalid key material")
)

// Vault is the capability set the handshake engine consumes for every
// primitive crypto operation and secret lifecycle event. Implementations
// must be safe for concurrent use: the same Vault instance may back many
// concurrently in-flight handshake engines.
//
// Every method may block (see the engine's single-threaded cooperative
// scheduling model); the engine treats each call as an atomic suspension
// point and does not pipeline calls.
type Vault interface {
	// GenerateEphemeral creates a new key pair of the given type and returns
	// a handle to it. Only X25519 is meaningful for ephemeral generation.
	GenerateEphemeral(t SecretType) (Handle, error)

	// GetPublic returns the 32-byte public point for an X25519 handle.
	GetPublic(h Handle) ([PublicKeySize]byte, error)

	// ImportEphemeral stores attrs-typed secret bytes under a new handle and
	// returns it. Used to seed k/ck at initialize time and to import
	// externally-supplied static/ephemeral key material.
	ImportEphemeral(content []byte, attrs Attributes) (Handle, error)

	// ECDH computes a Diffie-Hellman shared secret between a local X25519
	// handle and a remote 32-byte public point, returning a new handle
	// (typed Buffer) to the raw shared secret.
	ECDH(local Handle, remotePublic [PublicKeySize]byte) (Handle, error)

	// HKDFSHA256 runs HKDF-SHA256 with the given salt handle, info, and
	// optional IKM handle, producing one handle per requested output
	// attribute, in order. ikm may be nil (the finalization step derives
	// traffic keys with no DH input).
	HKDFSHA256(salt Handle, info []byte, ikm *Handle, outputs []Attributes) ([]Handle, error)

	// AEADEncrypt performs AES-256-GCM encryption under the key named by k,
	// returning ciphertext with the 16-byte tag appended.
	AEADEncrypt(k Handle, nonce [AEADNonceSize]byte, aad, plaintext []byte) ([]byte, error)

	// AEADDecrypt performs AES-256-GCM decryption and tag verification under
	// the key named by k. Returns ErrAuthenticationFailed on tag mismatch.
	AEADDecrypt(k Handle, nonce [AEADNonceSize]byte, aad, ciphertextWithTag []byte) ([]byte, error)

	// DeleteSecret releases the handle and the secret bytes it names. Safe
	// to call on an already-deleted handle (no-op).
	DeleteSecret(h Handle) error
}
