// Package crypto provides the key-material primitives the vault package
// builds on: X25519 key pair generation, raw ECDH, secure memory wiping,
// structured logging, encrypted at-rest key storage, handshake replay
// protection, and an injectable time source for deterministic tests.
//
// # Key Generation and ECDH
//
//	keyPair, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keyPair)
//
//	shared, err := crypto.DeriveSharedSecret(peerPublicKey, keyPair.Private)
//
// # Secure Memory Handling
//
// Sensitive byte slices should be wiped after use:
//
//	defer crypto.SecureWipe(sensitiveData)
//
// [SecureWipe] uses crypto/subtle's constant-time XOR so the compiler
// cannot optimize the wipe away.
//
// # Encrypted At-Rest Storage
//
// EncryptedKeyStore persists key material under PBKDF2-derived AES-256-GCM
// encryption:
//
//	store, _ := crypto.NewEncryptedKeyStore("/path/to/data", []byte("passphrase"))
//	store.WriteEncrypted("static.key", staticKeyBytes)
//	key, _ := store.ReadEncrypted("static.key")
//
// # Replay Protection
//
// NonceStore tracks used handshake nonces across restarts:
//
//	ns, _ := crypto.NewNonceStore("/path/to/data")
//	if ns.CheckAndStore(nonce, timestamp) {
//	    // fresh, proceed
//	}
//
// # Deterministic Testing
//
// Time-dependent components accept an injectable TimeProvider:
//
//	mockTime := crypto.NewMockTimeProvider(time.Unix(1000, 0))
//	ns, _ := crypto.NewNonceStoreWithTimeProvider(dataDir, mockTime)
//
// # Thread Safety
//
// NonceStore is safe for concurrent use; the pure key-generation and ECDH
// functions are inherently thread-safe. EncryptedKeyStore does no locking:
// RotateKey and Close rewrite its key in place while reads and writes use it.
package crypto
