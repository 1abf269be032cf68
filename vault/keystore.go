package vault

import (
	"errors"
	"fmt"
	"os"

	"github.com/vaultnoise/noisexx/crypto"
)

// staticKeyFile is the filename under which the long-lived static private
// key is persisted, encrypted at rest by crypto.EncryptedKeyStore.
const staticKeyFile = "static.key"

// StaticKeyStore persists a Noise_XX static identity key across process
// restarts, encrypted at rest with crypto.EncryptedKeyStore's PBKDF2/AES-256-GCM
// scheme. On each Load it imports the recovered private scalar into a Vault
// and returns a fresh handle — the vault, not the store, is the source of
// truth for the handle's lifetime once loaded.
type StaticKeyStore struct {
	backing *crypto.EncryptedKeyStore
}

// ErrNoStaticKey indicates the store has no persisted key and the caller
// must generate and save one.
var ErrNoStaticKey = errors.New("vault: no static key present in store")

// NewStaticKeyStore opens (or initializes) encrypted storage under dataDir,
// protected by masterPassword.
func NewStaticKeyStore(dataDir string, masterPassword []byte) (*StaticKeyStore, error) {
	backing, err := crypto.NewEncryptedKeyStore(dataDir, masterPassword)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open static key store: %w", err)
	}
	return &StaticKeyStore{backing: backing}, nil
}

// Load reads the persisted static private key and imports it into v,
// returning the resulting handle. Returns ErrNoStaticKey if none is stored.
func (s *StaticKeyStore) Load(v Vault) (Handle, error) {
	raw, err := s.backing.ReadEncrypted(staticKeyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoStaticKey
		}
		return "", fmt.Errorf("vault: failed to read persisted static key: %w", err)
	}
	defer crypto.SecureWipe(raw)

	h, err := v.ImportEphemeral(raw, X25519Attributes())
	if err != nil {
		return "", fmt.Errorf("vault: failed to import persisted static key: %w", err)
	}
	return h, nil
}

// GenerateAndSave creates a new random static key, persists it, imports it
// into v, and returns the resulting handle.
func (s *StaticKeyStore) GenerateAndSave(v Vault) (Handle, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", fmt.Errorf("vault: failed to generate static key: %w", err)
	}
	defer crypto.ZeroBytes(kp.Private[:])

	if err := s.backing.WriteEncrypted(staticKeyFile, kp.Private[:]); err != nil {
		return "", fmt.Errorf("vault: failed to persist static key: %w", err)
	}

	h, err := v.ImportEphemeral(kp.Private[:], X25519Attributes())
	if err != nil {
		return "", fmt.Errorf("vault: failed to import generated static key: %w", err)
	}
	return h, nil
}

// LoadOrGenerate loads the persisted static key, generating and saving one
// on first use.
func (s *StaticKeyStore) LoadOrGenerate(v Vault) (Handle, error) {
	h, err := s.Load(v)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrNoStaticKey) {
		return "", err
	}
	return s.GenerateAndSave(v)
}

// Close releases the underlying encrypted store's in-memory key.
func (s *StaticKeyStore) Close() error {
	return s.backing.Close()
}
