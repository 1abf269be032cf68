// Package noise implements a vault-backed Noise_XX_25519_AESGCM_SHA256
// handshake: X25519 for Diffie-Hellman, AES-256-GCM for AEAD, SHA-256 for
// hashing and HKDF. The three wire messages authenticate both parties and
// leave each side holding a pair of AES-256 traffic keys.
//
// Engine holds no raw secret bytes directly; every key it touches lives
// behind a vault.Handle supplied by a vault.Vault collaborator, which
// performs the actual scalar multiplication, key derivation, and AEAD
// sealing. This split keeps the protocol state machine auditable
// independent of how or where keys are stored.
package noise
