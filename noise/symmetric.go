package noise

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vaultnoise/noisexx/vault"
)

// protocolName is the fixed 32-byte algorithm label: the 28-byte ASCII name
// "Noise_XX_25519_AESGCM_SHA256" zero-padded to 32 bytes. It seeds both the
// initial chaining key and the initial transcript hash, and must remain
// bit-exact for interoperability (spec.md §6).
var protocolName = [32]byte{
	'N', 'o', 'i', 's', 'e', '_', 'X', 'X', '_', '2', '5', '5', '1', '9', '_',
	'A', 'E', 'S', 'G', 'C', 'M', '_', 'S', 'H', 'A', '2', '5', '6',
	// remaining 4 bytes are the zero-value default
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// mixHash extends the running transcript hash: h <- SHA256(h || data). It
// never fails and never suspends.
func (e *Engine) mixHash(data []byte) {
	buf := make([]byte, 0, 32+len(data))
	buf = append(buf, e.state.h[:]...)
	buf = append(buf, data...)
	e.state.h = sha256Sum(buf)
}

// nonceFor builds the 12-byte AEAD nonce: 4 zero bytes followed by the
// big-endian encoding of n in the low 8 bytes.
func nonceFor(n uint64) [vault.AEADNonceSize]byte {
	var nonce [vault.AEADNonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], n)
	return nonce
}

// hkdfRotate performs the HKDF step mandated after every DH: ck, k are
// re-derived from the current ck (as salt) and the DH output dh (as IKM),
// with no info string and two outputs {Buffer(32), AES256}. The superseded
// ck, k, and the DH handle are deleted from the vault; n resets to 0.
func (e *Engine) hkdfRotate(dh vault.Handle) error {
	ck, err := e.state.ckHandle()
	if err != nil {
		return err
	}

	outputs, err := e.vault.HKDFSHA256(ck, nil, &dh, []vault.Attributes{
		vault.BufferAttributes(32),
		vault.AES256Attributes(),
	})
	if err != nil {
		return fmt.Errorf("noise: HKDF rotation failed: %w", err)
	}
	if len(outputs) != 2 {
		return ErrHKDFArityMismatch
	}
	newCK, newK := outputs[0], outputs[1]

	// The DH output is never needed again.
	if err := e.vault.DeleteSecret(dh); err != nil {
		return fmt.Errorf("noise: failed to delete DH secret: %w", err)
	}

	oldCK, err := e.state.takeCK()
	if err != nil {
		return err
	}
	e.state.ck = &newCK
	if err := e.vault.DeleteSecret(oldCK); err != nil {
		return fmt.Errorf("noise: failed to delete superseded ck: %w", err)
	}

	oldK, err := e.state.takeK()
	if err != nil {
		return err
	}
	e.state.k = &newK
	if err := e.vault.DeleteSecret(oldK); err != nil {
		return fmt.Errorf("noise: failed to delete superseded k: %w", err)
	}

	e.state.n = 0
	return nil
}

// encryptAndHash is the `encrypt_and_hash` primitive: it AEAD-encrypts p
// under the current (k, nonce(n), h), folds the ciphertext into the
// transcript hash, and increments n.
func (e *Engine) encryptAndHash(p []byte) ([]byte, error) {
	k, err := e.state.kHandle()
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(e.state.n)
	c, err := e.vault.AEADEncrypt(k, nonce, e.state.h[:], p)
	if err != nil {
		return nil, fmt.Errorf("noise: AEAD encrypt failed: %w", err)
	}
	e.mixHash(c)
	e.state.n++
	return c, nil
}

// hashAndDecrypt is the `hash_and_decrypt` primitive, the inverse of
// encryptAndHash. On tag failure it returns ErrAuthenticationFailed without
// advancing n or the transcript; any other vault error is wrapped with %w.
func (e *Engine) hashAndDecrypt(c []byte) ([]byte, error) {
	k, err := e.state.kHandle()
	if err != nil {
		return nil, err
	}
	nonce := nonceFor(e.state.n)
	p, err := e.vault.AEADDecrypt(k, nonce, e.state.h[:], c)
	if err != nil {
		if errors.Is(err, vault.ErrAuthenticationFailed) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("noise: AEAD decrypt failed: %w", err)
	}
	e.mixHash(c)
	e.state.n++
	return p, nil
}
