package session

import (
	"fmt"
	"time"

	"github.com/vaultnoise/noisexx/crypto"
)

// HandshakeReplayWindow is how long after admission a message-1 ephemeral
// public key stays in the replay store before it may be dropped; it equals
// the expiry crypto.NonceStore gives every entry.
const HandshakeReplayWindow = 6 * time.Minute

// ReplayGuard rejects a replayed Noise_XX message 1 by remembering the
// initiator's ephemeral public key for at least HandshakeReplayWindow;
// expired keys are removed by the store's periodic cleanup. It is a thin
// domain-specific wrapper over crypto.NonceStore, which does the actual
// persistence and expiry bookkeeping.
type ReplayGuard struct {
	store *crypto.NonceStore
}

// NewReplayGuard opens (or creates) persistent replay-detection state under
// dataDir.
func NewReplayGuard(dataDir string) (*ReplayGuard, error) {
	store, err := crypto.NewNonceStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("session: failed to open replay guard: %w", err)
	}
	return &ReplayGuard{store: store}, nil
}

// Admit reports whether the given message-1 ephemeral public key is fresh.
// A false return means a session manager must reject the handshake attempt
// outright, without invoking the engine.
func (g *ReplayGuard) Admit(ephemeralPublic [32]byte, now time.Time) bool {
	return g.store.CheckAndStore(ephemeralPublic, now.Unix())
}

// Close flushes replay state to disk and stops its background cleanup.
func (g *ReplayGuard) Close() error {
	return g.store.Close()
}
