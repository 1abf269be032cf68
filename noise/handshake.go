// Package noise implements the core Noise_XX_25519_AESGCM_SHA256 handshake
// engine: the cryptographic state machine that drives the three Noise_XX
// wire messages and, on success, yields a pair of AES-256 traffic keys.
//
// The engine delegates every primitive key operation — X25519 generation,
// ECDH, HKDF-SHA256, AES-256-GCM, and SHA-256 — to a vault.Vault
// collaborator. It never sees raw key bytes for secret material; every key
// it manipulates is a vault.Handle. This mirrors the design of Ockam's
// vault-backed Noise_XX implementation, which this package is a Go
// transliteration of.
package noise

import (
	"fmt"

	"github.com/vaultnoise/noisexx/vault"
)

const (
	keySize          = vault.PublicKeySize
	encryptedKeySize = keySize + vault.AEADTagSize
)

// Engine drives one in-flight Noise_XX handshake for one role. It is not
// safe for concurrent use: the driver assumes program-order execution on a
// single logical task (spec.md §5).
type Engine struct {
	vault vault.Vault
	role  Role
	state handshakeState
}

// New allocates an ephemeral X25519 key pair via vault and constructs an
// Engine bound to the given local static key handle. The caller owns
// staticKey's lifetime; the engine never deletes it.
func New(v vault.Vault, staticKey vault.Handle, role Role) (*Engine, error) {
	ephemeral, err := v.GenerateEphemeral(vault.X25519)
	if err != nil {
		return nil, fmt.Errorf("noise: failed to generate ephemeral key: %w", err)
	}

	e := &Engine{
		vault: v,
		role:  role,
		state: handshakeState{
			s:  &staticKey,
			e:  &ephemeral,
			st: statusInitial,
		},
	}
	return e, nil
}

// fail transitions the engine to its terminal failed state and wraps err.
// Every subsequent operation on the engine returns ErrEngineFailed.
func (e *Engine) fail(err error) error {
	e.state.st = statusFailed
	return err
}

func (e *Engine) checkAlive() error {
	if e.state.st == statusFailed {
		return ErrEngineFailed
	}
	return nil
}

// Initialize seeds the transcript hash and symmetric state:
//
//	h  = SHA256(protocolName)
//	k  = import(zero-filled 32-byte AES-256 key)
//	ck = import(protocolName, as a 32-byte buffer)
//	n  = 0
func (e *Engine) Initialize() error {
	if err := e.checkAlive(); err != nil {
		return err
	}

	zeroKey := make([]byte, vault.AEADKeySize)
	k, err := e.vault.ImportEphemeral(zeroKey, vault.AES256Attributes())
	if err != nil {
		return e.fail(fmt.Errorf("noise: failed to import initial k: %w", err))
	}

	ck, err := e.vault.ImportEphemeral(protocolName[:], vault.BufferAttributes(32))
	if err != nil {
		return e.fail(fmt.Errorf("noise: failed to import initial ck: %w", err))
	}

	e.state.k = &k
	e.state.ck = &ck
	e.state.n = 0
	e.state.h = sha256Sum(protocolName[:])
	return nil
}

// EncodeMessage1 returns e.pub ‖ payload, mixing both into the transcript.
func (e *Engine) EncodeMessage1(payload []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	ePub, err := e.localEphemeralPublic()
	if err != nil {
		return nil, e.fail(err)
	}
	e.mixHash(ePub[:])

	message := make([]byte, 0, keySize+len(payload))
	message = append(message, ePub[:]...)
	message = append(message, payload...)
	e.mixHash(payload)

	return message, nil
}

// DecodeMessage1 reads the ephemeral public key and payload out of msg.
func (e *Engine) DecodeMessage1(msg []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	key, err := readStart(msg, keySize)
	if err != nil {
		return nil, e.fail(err)
	}
	var re [32]byte
	copy(re[:], key)
	e.state.re = &re
	e.mixHash(re[:])

	payload, err := readEnd(msg, keySize)
	if err != nil {
		return nil, e.fail(err)
	}
	e.mixHash(payload)

	return payload, nil
}

// EncodeMessage2 builds e.pub ‖ AEAD(s.pub) ‖ AEAD(payload), rotating (ck,
// k) via HKDF between the two ciphertexts as mandated by Noise_XX.
func (e *Engine) EncodeMessage2(payload []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	ePub, err := e.localEphemeralPublic()
	if err != nil {
		return nil, e.fail(err)
	}
	e.mixHash(ePub[:])
	message := make([]byte, 0, keySize+encryptedKeySize+len(payload)+vault.AEADTagSize)
	message = append(message, ePub[:]...)

	if err := e.rotateDH(e.state.e, e.state.re); err != nil {
		return nil, e.fail(err)
	}

	sPub, err := e.localStaticPublic()
	if err != nil {
		return nil, e.fail(err)
	}
	encS, err := e.encryptAndHash(sPub[:])
	if err != nil {
		return nil, e.fail(err)
	}
	message = append(message, encS...)

	if err := e.rotateDH(e.state.s, e.state.re); err != nil {
		return nil, e.fail(err)
	}

	encPayload, err := e.encryptAndHash(payload)
	if err != nil {
		return nil, e.fail(err)
	}
	message = append(message, encPayload...)

	return message, nil
}

// DecodeMessage2 is the inverse of EncodeMessage2.
func (e *Engine) DecodeMessage2(msg []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	key, err := readStart(msg, keySize)
	if err != nil {
		return nil, e.fail(err)
	}
	var re [32]byte
	copy(re[:], key)
	e.state.re = &re
	e.mixHash(re[:])

	if err := e.rotateDH(e.state.e, e.state.re); err != nil {
		return nil, e.fail(err)
	}

	encS, err := readMiddle(msg, keySize, encryptedKeySize)
	if err != nil {
		return nil, e.fail(err)
	}
	rsBytes, err := e.hashAndDecrypt(encS)
	if err != nil {
		return nil, e.fail(err)
	}
	var rs [32]byte
	copy(rs[:], rsBytes)
	e.state.rs = &rs

	if err := e.rotateDH(e.state.e, e.state.rs); err != nil {
		return nil, e.fail(err)
	}

	encPayload, err := readEnd(msg, keySize+encryptedKeySize)
	if err != nil {
		return nil, e.fail(err)
	}
	payload, err := e.hashAndDecrypt(encPayload)
	if err != nil {
		return nil, e.fail(err)
	}

	return payload, nil
}

// EncodeMessage3 builds AEAD(s.pub) ‖ AEAD(payload) with an interleaved
// HKDF rotation, and is the final message an initiator sends.
func (e *Engine) EncodeMessage3(payload []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	sPub, err := e.localStaticPublic()
	if err != nil {
		return nil, e.fail(err)
	}
	encS, err := e.encryptAndHash(sPub[:])
	if err != nil {
		return nil, e.fail(err)
	}
	message := make([]byte, 0, encryptedKeySize+len(payload)+vault.AEADTagSize)
	message = append(message, encS...)

	if err := e.rotateDH(e.state.s, e.state.re); err != nil {
		return nil, e.fail(err)
	}

	encPayload, err := e.encryptAndHash(payload)
	if err != nil {
		return nil, e.fail(err)
	}
	message = append(message, encPayload...)

	return message, nil
}

// DecodeMessage3 is the inverse of EncodeMessage3.
func (e *Engine) DecodeMessage3(msg []byte) ([]byte, error) {
	if err := e.checkAlive(); err != nil {
		return nil, err
	}

	encS, err := readStart(msg, encryptedKeySize)
	if err != nil {
		return nil, e.fail(err)
	}
	rsBytes, err := e.hashAndDecrypt(encS)
	if err != nil {
		return nil, e.fail(err)
	}
	var rs [32]byte
	copy(rs[:], rsBytes)
	e.state.rs = &rs

	if err := e.rotateDH(e.state.e, e.state.rs); err != nil {
		return nil, e.fail(err)
	}

	encPayload, err := readEnd(msg, encryptedKeySize)
	if err != nil {
		return nil, e.fail(err)
	}
	payload, err := e.hashAndDecrypt(encPayload)
	if err != nil {
		return nil, e.fail(err)
	}

	return payload, nil
}

// Finalize derives the two traffic keys from the final ck (HKDF, empty
// salt semantics preserved by using ck itself as salt, no IKM, two AES256
// outputs), assigns them per role, transitions to Ready, and deletes e, k,
// and ck.
func (e *Engine) Finalize(role Role) error {
	if err := e.checkAlive(); err != nil {
		return err
	}

	ck, err := e.state.ckHandle()
	if err != nil {
		return e.fail(err)
	}

	outputs, err := e.vault.HKDFSHA256(ck, nil, nil, []vault.Attributes{
		vault.AES256Attributes(),
		vault.AES256Attributes(),
	})
	if err != nil {
		return e.fail(fmt.Errorf("noise: final HKDF failed: %w", err))
	}
	if len(outputs) != 2 {
		return e.fail(ErrHKDFArityMismatch)
	}
	k1, k2 := outputs[0], outputs[1]

	var keys handshakeKeys
	if role == Initiator {
		keys = handshakeKeys{encryptionKey: k2, decryptionKey: k1}
	} else {
		keys = handshakeKeys{encryptionKey: k1, decryptionKey: k2}
	}

	oldCK, err := e.state.takeCK()
	if err != nil {
		return e.fail(err)
	}
	if err := e.vault.DeleteSecret(oldCK); err != nil {
		return e.fail(fmt.Errorf("noise: failed to delete final ck: %w", err))
	}

	oldK, err := e.state.takeK()
	if err != nil {
		return e.fail(err)
	}
	if err := e.vault.DeleteSecret(oldK); err != nil {
		return e.fail(fmt.Errorf("noise: failed to delete final k: %w", err))
	}

	oldE, err := e.state.takeE()
	if err != nil {
		return e.fail(err)
	}
	if err := e.vault.DeleteSecret(oldE); err != nil {
		return e.fail(fmt.Errorf("noise: failed to delete ephemeral key: %w", err))
	}

	e.state.keys = keys
	e.state.st = statusReady
	return nil
}

// HandshakeKeys returns the derived (encryption, decryption) traffic key
// handles if the engine has reached Ready, and false otherwise.
func (e *Engine) HandshakeKeys() (encryption, decryption vault.Handle, ok bool) {
	if e.state.st != statusReady {
		return "", "", false
	}
	return e.state.keys.encryptionKey, e.state.keys.decryptionKey, true
}

// Role returns the engine's configured role.
func (e *Engine) Role() Role { return e.role }

// Abort releases every vault handle the engine still owns (ephemeral e,
// current k, current ck) on a best-effort basis and transitions to the
// terminal failed state. It is safe to call at any point before Finalize,
// for a caller that abandons a handshake mid-flight (spec.md §5).
func (e *Engine) Abort() {
	if h, err := e.state.eHandle(); err == nil {
		_ = e.vault.DeleteSecret(h)
	}
	if h, err := e.state.kHandle(); err == nil {
		_ = e.vault.DeleteSecret(h)
	}
	if h, err := e.state.ckHandle(); err == nil {
		_ = e.vault.DeleteSecret(h)
	}
	e.state.st = statusFailed
}

// rotateDH computes DH(local, remotePublic) and feeds it through hkdfRotate.
func (e *Engine) rotateDH(local *vault.Handle, remotePublic *[32]byte) error {
	if local == nil || remotePublic == nil {
		return ErrMissingState
	}
	dh, err := e.vault.ECDH(*local, *remotePublic)
	if err != nil {
		return fmt.Errorf("noise: ECDH failed: %w", err)
	}
	return e.hkdfRotate(dh)
}

func (e *Engine) localEphemeralPublic() ([32]byte, error) {
	h, err := e.state.eHandle()
	if err != nil {
		return [32]byte{}, err
	}
	return e.vault.GetPublic(h)
}

func (e *Engine) localStaticPublic() ([32]byte, error) {
	h, err := e.state.sHandle()
	if err != nil {
		return [32]byte{}, err
	}
	return e.vault.GetPublic(h)
}

// readStart returns the first length bytes of message.
func readStart(message []byte, length int) ([]byte, error) {
	if len(message) < length {
		return nil, ErrMessageLenMismatch
	}
	return message[:length], nil
}

// readEnd returns the bytes of message after the first dropLength bytes.
func readEnd(message []byte, dropLength int) ([]byte, error) {
	if len(message) < dropLength {
		return nil, ErrMessageLenMismatch
	}
	return message[dropLength:], nil
}

// readMiddle returns length bytes of message after the first dropLength bytes.
func readMiddle(message []byte, dropLength, length int) ([]byte, error) {
	if len(message) < dropLength+length {
		return nil, ErrMessageLenMismatch
	}
	return message[dropLength : dropLength+length], nil
}
