package noise

import "errors"

// Sentinel errors for the handshake driver's flat error taxonomy. Every
// failure is fatal: the engine transitions to a terminal failed state and
// the caller must discard it (see Engine.fail).
var (
	// ErrMessageLenMismatch indicates a decode_* call received a buffer
	// shorter than its required fixed-layout prefix.
	ErrMessageLenMismatch = errors.New("noise: message too short for expected layout")

	// ErrAuthenticationFailed indicates the vault rejected an AEAD tag
	// during hash_and_decrypt.
	ErrAuthenticationFailed = errors.New("noise: AEAD authentication failed")

	// ErrMissingState indicates an operation required a handshake state
	// slot (s, e, k, ck, re, rs) that was not present. This is a
	// programming error: misordered API use or a prior failure.
	ErrMissingState = errors.New("noise: required handshake state missing")

	// ErrHKDFArityMismatch indicates the vault returned a different number
	// of output handles than requested.
	ErrHKDFArityMismatch = errors.New("noise: HKDF returned unexpected output count")

	// ErrEngineFailed indicates the engine already transitioned to a
	// terminal failed state; no further operations are permitted.
	ErrEngineFailed = errors.New("noise: engine is in a terminal failed state")

	// ErrOutOfOrder names a step invoked out of the Noise_XX sequence for
	// the engine's role. No Engine method returns it: the engine does not
	// track which steps have run, so a step called out of sequence either
	// fails on a missing state slot (ErrMissingState), fails AEAD
	// verification, or proceeds.
	ErrOutOfOrder = errors.New("noise: handshake step invoked out of order")

	// ErrNotReady names the state before Finalize has completed. No Engine
	// method returns it: HandshakeKeys reports that case through its ok
	// result.
	ErrNotReady = errors.New("noise: handshake has not reached the ready state")
)
