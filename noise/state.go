package noise

import "github.com/vaultnoise/noisexx/vault"

// Role identifies which side of the Noise_XX exchange an Engine plays. It
// determines which derived traffic key is used for sending vs. receiving at
// finalization; it does not otherwise affect message construction.
type Role uint8

const (
	// Initiator sends message 1 and 3, receives message 2.
	Initiator Role = iota
	// Responder receives message 1 and 3, sends message 2.
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// status is the Engine's lifecycle state (spec.md §3, §4.5).
type status uint8

const (
	statusInitial status = iota
	statusAwaitingFinalize
	statusReady
	statusFailed
)

// handshakeKeys holds the two derived AES-256 traffic keys once the engine
// reaches the Ready state.
type handshakeKeys struct {
	encryptionKey vault.Handle
	decryptionKey vault.Handle
}

// handshakeState is the structured set of protocol variables the Noise_XX
// driver mutates across the three round trips. Every secret field is a
// vault.Handle, never raw key bytes — only the public values (re, rs) and
// the running transcript hash (h) are held as plain bytes in memory.
type handshakeState struct {
	s  *vault.Handle // local static key handle; caller-owned, never deleted by the engine
	e  *vault.Handle // local ephemeral key handle; deleted at finalize
	rs *[32]byte     // remote static public key
	re *[32]byte     // remote ephemeral public key

	k  *vault.Handle // current AEAD key handle; rotated by HKDF, deleted at finalize
	ck *vault.Handle // current chaining key handle; rotated by HKDF, deleted at finalize
	h  [32]byte      // running transcript hash
	n  uint64        // AEAD invocation counter, resets to 0 on every HKDF rotation

	st   status
	keys handshakeKeys
}

func (hs *handshakeState) sHandle() (vault.Handle, error) {
	if hs.s == nil {
		return "", ErrMissingState
	}
	return *hs.s, nil
}

func (hs *handshakeState) eHandle() (vault.Handle, error) {
	if hs.e == nil {
		return "", ErrMissingState
	}
	return *hs.e, nil
}

func (hs *handshakeState) kHandle() (vault.Handle, error) {
	if hs.k == nil {
		return "", ErrMissingState
	}
	return *hs.k, nil
}

func (hs *handshakeState) ckHandle() (vault.Handle, error) {
	if hs.ck == nil {
		return "", ErrMissingState
	}
	return *hs.ck, nil
}

// takeK clears the k slot and returns the handle it held, or ErrMissingState
// if it was never set. Used by the HKDF rotation to hand the superseded
// handle to the vault for deletion.
func (hs *handshakeState) takeK() (vault.Handle, error) {
	h, err := hs.kHandle()
	if err != nil {
		return "", err
	}
	hs.k = nil
	return h, nil
}

// takeCK is the ck analogue of takeK.
func (hs *handshakeState) takeCK() (vault.Handle, error) {
	h, err := hs.ckHandle()
	if err != nil {
		return "", err
	}
	hs.ck = nil
	return h, nil
}

// takeE is the e analogue of takeK, used once at finalize.
func (hs *handshakeState) takeE() (vault.Handle, error) {
	h, err := hs.eHandle()
	if err != nil {
		return "", err
	}
	hs.e = nil
	return h, nil
}
