package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultnoise/noisexx/crypto"
	"github.com/vaultnoise/noisexx/noise"
	"github.com/vaultnoise/noisexx/vault"
)

func newTestManagers(t *testing.T) (*Manager, *Manager, vault.Vault) {
	t.Helper()
	v := vault.NewSoftwareVault()

	initStatic, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)
	respStatic, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)

	initMgr := NewManagerWithTimeouts(v, initStatic, time.Hour, time.Hour, time.Hour)
	respMgr := NewManagerWithTimeouts(v, respStatic, time.Hour, time.Hour, time.Hour)
	t.Cleanup(func() {
		initMgr.Close()
		respMgr.Close()
	})
	return initMgr, respMgr, v
}

func TestManager_StartAndCompleteHandshake(t *testing.T) {
	initMgr, respMgr, v := newTestManagers(t)

	initPeer, err := initMgr.Start("responder", noise.Initiator)
	require.NoError(t, err)
	respPeer, err := respMgr.Start("initiator", noise.Responder)
	require.NoError(t, err)

	msg1, err := initPeer.Engine().EncodeMessage1(nil)
	require.NoError(t, err)
	_, err = respPeer.Engine().DecodeMessage1(msg1)
	require.NoError(t, err)

	msg2, err := respPeer.Engine().EncodeMessage2(nil)
	require.NoError(t, err)
	_, err = initPeer.Engine().DecodeMessage2(msg2)
	require.NoError(t, err)

	msg3, err := initPeer.Engine().EncodeMessage3(nil)
	require.NoError(t, err)
	_, err = respPeer.Engine().DecodeMessage3(msg3)
	require.NoError(t, err)

	require.NoError(t, initPeer.Engine().Finalize(noise.Initiator))
	require.NoError(t, respPeer.Engine().Finalize(noise.Responder))
	initMgr.Complete(initPeer.ID)
	respMgr.Complete(respPeer.ID)

	initEnc, _, ok := initPeer.Keys()
	require.True(t, ok)
	_, respDec, ok := respPeer.Keys()
	require.True(t, ok)

	// Each side holds its own vault handles, so the keys are compared by
	// what they produce under identical inputs, not by handle id.
	var nonce [vault.AEADNonceSize]byte
	c1, err := v.AEADEncrypt(initEnc, nonce, nil, []byte("same plaintext"))
	require.NoError(t, err)
	c2, err := v.AEADEncrypt(respDec, nonce, nil, []byte("same plaintext"))
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestManager_StartReplacesPriorSessionForSameAddr(t *testing.T) {
	initMgr, _, _ := newTestManagers(t)

	first, err := initMgr.Start("peer-a", noise.Initiator)
	require.NoError(t, err)
	second, err := initMgr.Start("peer-a", noise.Initiator)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	_, stillThere := initMgr.Get(first.ID)
	assert.False(t, stillThere, "starting a new session for the same address must evict the old one")

	byAddr, ok := initMgr.GetByAddr("peer-a")
	require.True(t, ok)
	assert.Equal(t, second.ID, byAddr.ID)
}

func TestManager_SweepReclaimsStaleHandshakes(t *testing.T) {
	v := vault.NewSoftwareVault()
	staticKey, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)

	clock := crypto.NewMockTimeProvider(time.Unix(1000, 0))
	mgr := NewManagerWithClock(v, staticKey, time.Minute, time.Hour, time.Hour, clock)
	t.Cleanup(mgr.Close)

	peer, err := mgr.Start("stale-peer", noise.Initiator)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	mgr.sweep()

	_, ok := mgr.Get(peer.ID)
	assert.False(t, ok, "an incomplete handshake past its timeout must be reclaimed")
}

func TestManager_DecodeMessage1RejectsReplayedEphemeral(t *testing.T) {
	v := vault.NewSoftwareVault()
	initStatic, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)
	respStatic, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)

	replay, err := NewReplayGuard(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { replay.Close() })

	initMgr := NewManagerWithTimeouts(v, initStatic, time.Hour, time.Hour, time.Hour)
	respMgr := NewManagerWithReplayGuard(v, respStatic, time.Hour, time.Hour, time.Hour, nil, replay)
	t.Cleanup(func() {
		initMgr.Close()
		respMgr.Close()
	})

	initPeer, err := initMgr.Start("responder", noise.Initiator)
	require.NoError(t, err)
	msg1, err := initPeer.Engine().EncodeMessage1(nil)
	require.NoError(t, err)

	firstPeer, err := respMgr.Start("initiator", noise.Responder)
	require.NoError(t, err)
	_, err = respMgr.DecodeMessage1(firstPeer.ID, msg1)
	require.NoError(t, err, "first use of a fresh ephemeral key must be admitted")

	secondPeer, err := respMgr.Start("initiator-2", noise.Responder)
	require.NoError(t, err)
	_, err = respMgr.DecodeMessage1(secondPeer.ID, msg1)
	assert.ErrorIs(t, err, ErrReplayedHandshake, "a replayed ephemeral key must be rejected before reaching the engine")
}

func TestManager_RemoveAbortsInFlightEngine(t *testing.T) {
	v := vault.NewSoftwareVault()
	staticKey, err := v.GenerateEphemeral(vault.X25519)
	require.NoError(t, err)

	mgr := NewManagerWithTimeouts(v, staticKey, time.Hour, time.Hour, time.Hour)
	t.Cleanup(mgr.Close)

	peer, err := mgr.Start("peer", noise.Initiator)
	require.NoError(t, err)

	mgr.Remove(peer.ID)
	_, ok := mgr.Get(peer.ID)
	assert.False(t, ok)
}
