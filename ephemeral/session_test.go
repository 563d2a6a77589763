package ephemeral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync-go/secsync/crypto"
	"github.com/secsync-go/secsync/message"
)

func TestSessionCounterIncrements(t *testing.T) {
	s, err := NewSession()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), s.Next())
	assert.Equal(t, uint32(1), s.Next())
	assert.Equal(t, uint32(2), s.Next())
}

// handshake drives the full initialize -> proofAndRequestProof ->
// proof exchange between two managers and leaves both sides proven for
// each other, mirroring what the sync actor does over the wire.
func handshake(t *testing.T, a, b *Manager, aKP, bKP crypto.KeyPair) {
	t.Helper()

	// A sends initialize to B.
	resB := b.Process(aKP.Public, "a", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralInitialize,
		SessionID:      a.Local.ID,
		SessionCounter: a.Local.Next(),
	})
	require.Equal(t, ActionSendProofAndRequest, resB.Action)
	require.Equal(t, a.Local.ID, resB.RespondTo)

	// B replies with proofAndRequestProof addressed to A's session.
	bProofBody, err := b.ProofBody(resB.RespondTo)
	require.NoError(t, err)
	resA := a.Process(bKP.Public, "b", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralProofAndRequestProof,
		SessionID:      b.Local.ID,
		SessionCounter: b.Local.Next(),
		Body:           bProofBody,
	})
	require.NoError(t, resA.Err)
	require.Equal(t, ActionSendProof, resA.Action)
	require.Equal(t, b.Local.ID, resA.RespondTo)

	// A replies with its own proof, completing the handshake.
	aProofBody, err := a.ProofBody(resA.RespondTo)
	require.NoError(t, err)
	resB2 := b.Process(aKP.Public, "a", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralProof,
		SessionID:      a.Local.ID,
		SessionCounter: a.Local.Next(),
		Body:           aProofBody,
	})
	require.NoError(t, resB2.Err)
	require.Equal(t, ActionNone, resB2.Action)
}

func TestHandshakeThenContentDelivered(t *testing.T) {
	aKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	a, err := NewManager(aKP)
	require.NoError(t, err)
	b, err := NewManager(bKP)
	require.NoError(t, err)

	handshake(t, a, b, aKP, bKP)

	res := b.Process(aKP.Public, "a", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralContent,
		SessionID:      a.Local.ID,
		SessionCounter: a.Local.Next(),
		Body:           []byte("cursor"),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, ActionApply, res.Action)
}

func TestContentBeforeHandshakeIsRejected(t *testing.T) {
	aKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b, err := NewManager(func() crypto.KeyPair { kp, _ := crypto.GenerateKeyPair(); return kp }())
	require.NoError(t, err)

	localA, err := NewSession()
	require.NoError(t, err)

	res := b.Process(aKP.Public, "a", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralContent,
		SessionID:      localA.ID,
		SessionCounter: 0,
	})
	require.Error(t, res.Err)
	code, ok := message.CodeOf(res.Err)
	require.True(t, ok)
	assert.Equal(t, message.ErrEphemeralNoValidSession, code)
	assert.Equal(t, ActionSendProofAndRequest, res.Action)
}

func TestReplayedCounterRejected(t *testing.T) {
	aKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	a, err := NewManager(aKP)
	require.NoError(t, err)
	b, err := NewManager(bKP)
	require.NoError(t, err)

	handshake(t, a, b, aKP, bKP)

	counter := a.Local.Next()
	first := message.DecryptedEphemeralMessage{
		Type:           message.EphemeralContent,
		SessionID:      a.Local.ID,
		SessionCounter: counter,
		Body:           []byte("first"),
	}
	res := b.Process(aKP.Public, "a", first)
	require.NoError(t, res.Err)
	assert.Equal(t, ActionApply, res.Action)

	res = b.Process(aKP.Public, "a", first)
	require.Error(t, res.Err)
	code, ok := message.CodeOf(res.Err)
	require.True(t, ok)
	assert.Equal(t, message.ErrEphemeralReplay, code)
}

func TestManagerResetClearsRemoteSessions(t *testing.T) {
	aKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	bKP, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	a, err := NewManager(aKP)
	require.NoError(t, err)
	b, err := NewManager(bKP)
	require.NoError(t, err)

	handshake(t, a, b, aKP, bKP)

	require.NoError(t, b.Reset())

	res := b.Process(aKP.Public, "a", message.DecryptedEphemeralMessage{
		Type:           message.EphemeralContent,
		SessionID:      a.Local.ID,
		SessionCounter: a.Local.Next(),
	})
	require.Error(t, res.Err)
}
