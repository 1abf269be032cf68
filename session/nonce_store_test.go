package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayGuard_RejectsRepeatedEphemeral(t *testing.T) {
	guard, err := NewReplayGuard(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	var ephemeral [32]byte
	copy(ephemeral[:], []byte("initiator ephemeral public key!"))
	now := time.Now()

	assert.True(t, guard.Admit(ephemeral, now), "first use must be admitted")
	assert.False(t, guard.Admit(ephemeral, now), "replayed ephemeral must be rejected")
}

func TestReplayGuard_DistinctKeysAreIndependent(t *testing.T) {
	guard, err := NewReplayGuard(t.TempDir())
	require.NoError(t, err)
	defer guard.Close()

	var a, b [32]byte
	copy(a[:], []byte("ephemeral-a"))
	copy(b[:], []byte("ephemeral-b"))
	now := time.Now()

	assert.True(t, guard.Admit(a, now))
	assert.True(t, guard.Admit(b, now))
}
