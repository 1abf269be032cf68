package noise

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultnoise/noisexx/vault"
)

// seedKey returns a 32-byte sequence starting at `start`, matching the
// seed-vector convention in spec.md §8 (e.g. "00..1f" means bytes 0x00..0x1f).
func seedKey(start byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

// newFixedEngine builds an Engine whose ephemeral key is the given fixed
// bytes rather than randomly generated, for reproducing the spec's seed
// vectors exactly. It bypasses New's GenerateEphemeral call by constructing
// the Engine directly — acceptable here because the test lives in package
// noise.
func newFixedEngine(t *testing.T, v vault.Vault, staticSeed, ephemeralSeed []byte, role Role) *Engine {
	t.Helper()

	staticHandle, err := v.ImportEphemeral(staticSeed, vault.X25519Attributes())
	require.NoError(t, err)

	ephemeralHandle, err := v.ImportEphemeral(ephemeralSeed, vault.X25519Attributes())
	require.NoError(t, err)

	e := &Engine{
		vault: v,
		role:  role,
		state: handshakeState{
			s:  &staticHandle,
			e:  &ephemeralHandle,
			st: statusInitial,
		},
	}
	require.NoError(t, e.Initialize())
	return e
}

func runHandshake(t *testing.T, initPayloads, respPayloads [3][]byte) (msg1, msg2, msg3 []byte, init, resp *Engine) {
	t.Helper()
	v := vault.NewSoftwareVault()

	init = newFixedEngine(t, v, seedKey(0x00), seedKey(0x20), Initiator)
	resp = newFixedEngine(t, v, seedKey(0x01), seedKey(0x41), Responder)

	var err error
	msg1, err = init.EncodeMessage1(initPayloads[0])
	require.NoError(t, err)
	_, err = resp.DecodeMessage1(msg1)
	require.NoError(t, err)

	msg2, err = resp.EncodeMessage2(respPayloads[1])
	require.NoError(t, err)
	_, err = init.DecodeMessage2(msg2)
	require.NoError(t, err)

	msg3, err = init.EncodeMessage3(initPayloads[2])
	require.NoError(t, err)
	_, err = resp.DecodeMessage3(msg3)
	require.NoError(t, err)

	require.NoError(t, init.Finalize(Initiator))
	require.NoError(t, resp.Finalize(Responder))

	return msg1, msg2, msg3, init, resp
}

func TestScenarioA_EmptyPayloads(t *testing.T) {
	empty := [3][]byte{nil, nil, nil}
	msg1, msg2, msg3, _, _ := runHandshake(t, empty, empty)

	assert.Equal(t, "358072d6365880d1aeea329adf9121383851ed21a28e3b75e965d0d2cd166254", hex.EncodeToString(msg1))
	assert.Equal(t, "64b101b1d0be5a8704bd078f9895001fc03e8e9f9522f188dd128d9846d484665393019dbd6f438795da206db0886610b26108e424142c2e9b5fd1f7ea70cde8767ce62d7e3c0e9bcefe4ab872c0505b9e824df091b74ffe10a2b32809cab21f", hex.EncodeToString(msg2))
	assert.Equal(t, "e610eadc4b00c17708bf223f29a66f02342fbedf6c0044736544b9271821ae40e70144cecd9d265dffdc5bb8e051c3f83db32a425e04d8f510c58a43325fbc56", hex.EncodeToString(msg3))
}

func TestScenarioB_PayloadedMessages(t *testing.T) {
	initPayloads := [3][]byte{[]byte("test_msg_0"), nil, []byte("test_msg_2")}
	respPayloads := [3][]byte{nil, []byte("test_msg_1"), nil}
	msg1, msg2, msg3, _, _ := runHandshake(t, initPayloads, respPayloads)

	assert.Equal(t, "358072d6365880d1aeea329adf9121383851ed21a28e3b75e965d0d2cd166254746573745f6d73675f30", hex.EncodeToString(msg1))
	assert.Equal(t, "64b101b1d0be5a8704bd078f9895001fc03e8e9f9522f188dd128d9846d484665393019dbd6f438795da206db0886610b26108e424142c2e9b5fd1f7ea70cde8c9f29dcec8d3ab554f4a5330657867fe4917917195c8cf360e08d6dc5f71baf875ec6e3bfc7afda4c9c2", hex.EncodeToString(msg2))
	assert.Equal(t, "e610eadc4b00c17708bf223f29a66f02342fbedf6c0044736544b9271821ae40232c55cd96d1350af861f6a04978f7d5e070c07602c6b84d25a331242a71c50ae31dd4c164267fd48bd2", hex.EncodeToString(msg3))
}

func TestScenarioC_PostInitializeTranscript(t *testing.T) {
	v := vault.NewSoftwareVault()
	e := newFixedEngine(t, v, seedKey(0x00), seedKey(0x20), Initiator)

	wantH, err := hex.DecodeString("5df72b67b965add1168f0a6c756df21c204f7e64fc682be6a3ab4b682c8db64b")
	require.NoError(t, err)
	assert.Equal(t, wantH, e.state.h[:])
	assert.Equal(t, uint64(0), e.state.n)

	ckHandle, err := e.state.ckHandle()
	require.NoError(t, err)
	ckContent, err := v.PeekBuffer(ckHandle)
	require.NoError(t, err)
	assert.Equal(t, protocolName[:], ckContent)
}

func TestScenarioD_TruncatedMessage1(t *testing.T) {
	v := vault.NewSoftwareVault()
	resp := newFixedEngine(t, v, seedKey(0x01), seedKey(0x41), Responder)

	full, err := hex.DecodeString("358072d6365880d1aeea329adf9121383851ed21a28e3b75e965d0d2cd166254")
	require.NoError(t, err)
	truncated := full[:31]

	_, err = resp.DecodeMessage1(truncated)
	assert.ErrorIs(t, err, ErrMessageLenMismatch)

	_, err = resp.DecodeMessage1(full)
	assert.ErrorIs(t, err, ErrEngineFailed)
}

func TestScenarioE_TamperedAEAD(t *testing.T) {
	v := vault.NewSoftwareVault()
	init := newFixedEngine(t, v, seedKey(0x00), seedKey(0x20), Initiator)
	resp := newFixedEngine(t, v, seedKey(0x01), seedKey(0x41), Responder)

	msg1, err := init.EncodeMessage1(nil)
	require.NoError(t, err)
	_, err = resp.DecodeMessage1(msg1)
	require.NoError(t, err)

	msg2, err := resp.EncodeMessage2(nil)
	require.NoError(t, err)
	tampered := append([]byte(nil), msg2...)
	tampered[len(tampered)-1] ^= 0xff

	_, err = init.DecodeMessage2(tampered)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = init.DecodeMessage2(msg2)
	assert.ErrorIs(t, err, ErrEngineFailed)
}

func TestScenarioF_MatchedTrafficKeys(t *testing.T) {
	empty := [3][]byte{nil, nil, nil}
	_, _, _, init, resp := runHandshake(t, empty, empty)

	initEnc, initDec, ok := init.HandshakeKeys()
	require.True(t, ok)
	respEnc, respDec, ok := resp.HandshakeKeys()
	require.True(t, ok)

	v := init.vault
	nonce := [vault.AEADNonceSize]byte{}
	plaintext := []byte("same plaintext")

	c1, err := v.AEADEncrypt(initEnc, nonce, nil, plaintext)
	require.NoError(t, err)
	c2, err := v.AEADEncrypt(respDec, nonce, nil, plaintext)
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "initiator encryption key must match responder decryption key")

	c3, err := v.AEADEncrypt(respEnc, nonce, nil, plaintext)
	require.NoError(t, err)
	c4, err := v.AEADEncrypt(initDec, nonce, nil, plaintext)
	require.NoError(t, err)
	assert.Equal(t, c3, c4, "responder encryption key must match initiator decryption key")
}

func TestRoundTrip_ArbitraryPayloads(t *testing.T) {
	initPayloads := [3][]byte{[]byte("hello"), nil, []byte("goodbye")}
	respPayloads := [3][]byte{nil, []byte("world"), nil}
	runHandshake(t, initPayloads, respPayloads)
}

func TestFinalize_DeletesHandshakeHandles(t *testing.T) {
	v := vault.NewSoftwareVault()
	init := newFixedEngine(t, v, seedKey(0x00), seedKey(0x20), Initiator)
	resp := newFixedEngine(t, v, seedKey(0x01), seedKey(0x41), Responder)

	eHandle, _ := init.state.eHandle()
	kHandle, _ := init.state.kHandle()
	ckHandle, _ := init.state.ckHandle()

	msg1, err := init.EncodeMessage1(nil)
	require.NoError(t, err)
	_, err = resp.DecodeMessage1(msg1)
	require.NoError(t, err)
	msg2, err := resp.EncodeMessage2(nil)
	require.NoError(t, err)
	_, err = init.DecodeMessage2(msg2)
	require.NoError(t, err)
	msg3, err := init.EncodeMessage3(nil)
	require.NoError(t, err)
	_, err = resp.DecodeMessage3(msg3)
	require.NoError(t, err)

	finalK, _ := init.state.kHandle()
	finalCK, _ := init.state.ckHandle()

	require.NoError(t, init.Finalize(Initiator))

	assert.False(t, v.Has(eHandle))
	assert.False(t, v.Has(kHandle))
	assert.False(t, v.Has(ckHandle))
	assert.False(t, v.Has(finalK))
	assert.False(t, v.Has(finalCK))

	sHandle, err := init.state.sHandle()
	require.NoError(t, err)
	assert.True(t, v.Has(sHandle), "static key must survive finalize")
}

func TestNonceCounter_ResetsOnRotation(t *testing.T) {
	v := vault.NewSoftwareVault()
	init := newFixedEngine(t, v, seedKey(0x00), seedKey(0x20), Initiator)
	resp := newFixedEngine(t, v, seedKey(0x01), seedKey(0x41), Responder)

	assert.Equal(t, uint64(0), init.state.n)

	msg1, err := init.EncodeMessage1(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), init.state.n, "message 1 performs no AEAD calls")

	_, err = resp.DecodeMessage1(msg1)
	require.NoError(t, err)

	msg2, err := resp.EncodeMessage2(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.state.n, "the second rotation resets n, so only the payload encrypt after it is counted")

	_, err = init.DecodeMessage2(msg2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), init.state.n)
}
