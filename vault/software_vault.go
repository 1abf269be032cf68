package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/vaultnoise/noisexx/crypto"
)

// secret is the internal record a SoftwareVault keeps for a handle. Only one
// of priv/pub (for X25519) or raw (for AES256/Buffer) is populated,
// depending on typ.
type secret struct {
	typ  SecretType
	priv [32]byte // X25519 private scalar
	pub  [32]byte // X25519 public point
	raw  []byte   // AES256 key bytes or Buffer content
}

// SoftwareVault is an in-memory Vault implementation backing handles with
// plain Go byte slices guarded by a mutex. It is the reference
// implementation used by the engine's tests and the demo session manager;
// a production deployment could swap in an HSM- or KMS-backed Vault behind
// the same interface.
type SoftwareVault struct {
	mu      sync.Mutex
	secrets map[Handle]*secret
	logger  *crypto.LoggerHelper
}

// NewSoftwareVault creates an empty in-memory vault.
func NewSoftwareVault() *SoftwareVault {
	return &SoftwareVault{
		secrets: make(map[Handle]*secret),
		logger:  crypto.NewLogger("SoftwareVault"),
	}
}

func newHandle() Handle {
	var b [16]byte
	// crypto/rand is the only acceptable entropy source for handle ids;
	// collisions would alias unrelated secrets.
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read failing indicates a broken host RNG; there is no safe
		// fallback, so panic rather than silently reuse a zero handle.
		panic(fmt.Sprintf("vault: failed to generate handle: %v", err))
	}
	return Handle(hex.EncodeToString(b[:]))
}

func (v *SoftwareVault) store(s *secret) Handle {
	h := newHandle()
	v.mu.Lock()
	v.secrets[h] = s
	v.mu.Unlock()
	return h
}

func (v *SoftwareVault) lookup(h Handle) (*secret, error) {
	v.mu.Lock()
	s, ok := v.secrets[h]
	v.mu.Unlock()
	if !ok {
		return nil, ErrHandleNotFound
	}
	return s, nil
}

// GenerateEphemeral implements Vault.
func (v *SoftwareVault) GenerateEphemeral(t SecretType) (Handle, error) {
	log := v.logger.WithField("operation", "generate_ephemeral").WithField("type", t.String())
	if t != X25519 {
		log.Warn("unsupported secret type for ephemeral generation")
		return "", fmt.Errorf("%w: ephemeral generation only supports X25519", ErrWrongSecretType)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("vault: failed to generate ephemeral key pair: %w", err)
	}

	h := v.store(&secret{typ: X25519, priv: kp.Private, pub: kp.Public})
	crypto.ZeroBytes(kp.Private[:])
	log.Debug("generated ephemeral X25519 key pair")
	return h, nil
}

// GetPublic implements Vault.
func (v *SoftwareVault) GetPublic(h Handle) ([PublicKeySize]byte, error) {
	s, err := v.lookup(h)
	if err != nil {
		return [PublicKeySize]byte{}, err
	}
	if s.typ != X25519 {
		return [PublicKeySize]byte{}, fmt.Errorf("%w: get_public requires X25519", ErrWrongSecretType)
	}
	return s.pub, nil
}

// ImportEphemeral implements Vault.
func (v *SoftwareVault) ImportEphemeral(content []byte, attrs Attributes) (Handle, error) {
	log := v.logger.WithField("operation", "import_ephemeral").WithField("type", attrs.Type.String())

	switch attrs.Type {
	case X25519:
		if len(content) != 32 {
			return "", fmt.Errorf("%w: X25519 secret must be 32 bytes, got %d", ErrInvalidKeyMaterial, len(content))
		}
		var priv [32]byte
		copy(priv[:], content)
		kp, err := crypto.FromSecretKey(priv)
		crypto.ZeroBytes(priv[:])
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		h := v.store(&secret{typ: X25519, priv: kp.Private, pub: kp.Public})
		log.Debug("imported X25519 secret")
		return h, nil
	case AES256:
		if len(content) != AEADKeySize {
			return "", fmt.Errorf("%w: AES256 secret must be %d bytes, got %d", ErrInvalidKeyMaterial, AEADKeySize, len(content))
		}
		raw := make([]byte, len(content))
		copy(raw, content)
		h := v.store(&secret{typ: AES256, raw: raw})
		log.Debug("imported AES256 secret")
		return h, nil
	case Buffer:
		if attrs.Length > 0 && len(content) != attrs.Length {
			return "", fmt.Errorf("%w: buffer secret must be %d bytes, got %d", ErrInvalidKeyMaterial, attrs.Length, len(content))
		}
		raw := make([]byte, len(content))
		copy(raw, content)
		h := v.store(&secret{typ: Buffer, raw: raw})
		log.Debug("imported buffer secret")
		return h, nil
	default:
		return "", fmt.Errorf("%w: unknown secret type %s", ErrInvalidKeyMaterial, attrs.Type)
	}
}

// ECDH implements Vault.
func (v *SoftwareVault) ECDH(local Handle, remotePublic [PublicKeySize]byte) (Handle, error) {
	s, err := v.lookup(local)
	if err != nil {
		return "", err
	}
	if s.typ != X25519 {
		return "", fmt.Errorf("%w: ECDH requires an X25519 handle", ErrWrongSecretType)
	}

	shared, err := crypto.DeriveSharedSecret(remotePublic, s.priv)
	if err != nil {
		return "", fmt.Errorf("vault: ECDH failed: %w", err)
	}

	h := v.store(&secret{typ: Buffer, raw: append([]byte(nil), shared[:]...)})
	crypto.ZeroBytes(shared[:])
	v.logger.WithField("operation", "ec_diffie_hellman").Debug("computed shared secret")
	return h, nil
}

// HKDFSHA256 implements Vault.
func (v *SoftwareVault) HKDFSHA256(salt Handle, info []byte, ikm *Handle, outputs []Attributes) ([]Handle, error) {
	saltSecret, err := v.lookup(salt)
	if err != nil {
		return nil, fmt.Errorf("hkdf salt: %w", err)
	}

	var ikmBytes []byte
	if ikm != nil {
		ikmSecret, err := v.lookup(*ikm)
		if err != nil {
			return nil, fmt.Errorf("hkdf ikm: %w", err)
		}
		ikmBytes = ikmSecret.raw
	}

	reader := hkdf.New(sha256.New, ikmBytes, saltSecret.raw, info)

	handles := make([]Handle, 0, len(outputs))
	for _, out := range outputs {
		n := out.Length
		if n == 0 {
			n = 32
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(reader, buf); err != nil {
			// Roll back any handles already produced in this call.
			for _, h := range handles {
				_ = v.DeleteSecret(h)
			}
			return nil, fmt.Errorf("vault: HKDF expansion failed: %w", err)
		}

		var h Handle
		switch out.Type {
		case AES256:
			h = v.store(&secret{typ: AES256, raw: buf})
		case Buffer:
			h = v.store(&secret{typ: Buffer, raw: buf})
		default:
			return nil, fmt.Errorf("%w: HKDF output type %s unsupported", ErrWrongSecretType, out.Type)
		}
		handles = append(handles, h)
	}

	v.logger.WithField("operation", "hkdf_sha256").WithField("outputs", len(outputs)).Debug("derived keys")
	return handles, nil
}

// AEADEncrypt implements Vault.
func (v *SoftwareVault) AEADEncrypt(k Handle, nonce [AEADNonceSize]byte, aad, plaintext []byte) ([]byte, error) {
	s, err := v.lookup(k)
	if err != nil {
		return nil, err
	}
	if s.typ != AES256 {
		return nil, fmt.Errorf("%w: AEAD requires an AES256 handle", ErrWrongSecretType)
	}

	gcm, err := newGCM(s.raw)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, aad), nil
}

// AEADDecrypt implements Vault.
func (v *SoftwareVault) AEADDecrypt(k Handle, nonce [AEADNonceSize]byte, aad, ciphertextWithTag []byte) ([]byte, error) {
	s, err := v.lookup(k)
	if err != nil {
		return nil, err
	}
	if s.typ != AES256 {
		return nil, fmt.Errorf("%w: AEAD requires an AES256 handle", ErrWrongSecretType)
	}

	gcm, err := newGCM(s.raw)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce[:], ciphertextWithTag, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// DeleteSecret implements Vault.
func (v *SoftwareVault) DeleteSecret(h Handle) error {
	v.mu.Lock()
	s, ok := v.secrets[h]
	if ok {
		delete(v.secrets, h)
	}
	v.mu.Unlock()
	if !ok {
		return nil
	}
	crypto.ZeroBytes(s.priv[:])
	crypto.ZeroBytes(s.pub[:])
	if s.raw != nil {
		crypto.ZeroBytes(s.raw)
	}
	v.logger.WithField("operation", "delete_secret").Debug("deleted secret")
	return nil
}

// Has reports whether a handle is still resident, for tests asserting the
// lifecycle invariants in spec.md §8 (item 6).
func (v *SoftwareVault) Has(h Handle) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.secrets[h]
	return ok
}

// PeekBuffer returns the raw content of a Buffer-typed secret, for tests
// that need to assert on ck's content directly (spec.md §8, Scenario C).
// It is not part of the Vault interface: production callers never read
// secret bytes out of band.
func (v *SoftwareVault) PeekBuffer(h Handle) ([]byte, error) {
	s, err := v.lookup(h)
	if err != nil {
		return nil, err
	}
	if s.typ != Buffer {
		return nil, fmt.Errorf("%w: PeekBuffer requires a Buffer handle", ErrWrongSecretType)
	}
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out, nil
}

var _ Vault = (*SoftwareVault)(nil)
