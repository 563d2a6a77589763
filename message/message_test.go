package message

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secsync-go/secsync/crypto"
)

func decodeB64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSnapshotCreateVerifyRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	snap, err := CreateSnapshot(CreateSnapshotParams{
		Content:        []byte("doc state v1"),
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	plaintext, err := VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:      snap,
		Key:           key,
		ExpectedDocID: "doc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("doc state v1"), plaintext)
}

func TestSnapshotRejectsWrongDocID(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	snap, err := CreateSnapshot(CreateSnapshotParams{
		Content:        []byte("doc state"),
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	_, err = VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:      snap,
		Key:           key,
		ExpectedDocID: "doc-2",
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrSnapshotDocIDMismatch, code)
}

func TestSnapshotRejectsTamperedSignature(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	snap, err := CreateSnapshot(CreateSnapshotParams{
		Content:        []byte("doc state"),
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)
	snap.Signature = snap.Signature[:len(snap.Signature)-2] + "aa"

	_, err = VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:      snap,
		Key:           key,
		ExpectedDocID: "doc-1",
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrSnapshotSignatureInvalid, code)
}

func TestSnapshotParentChainVerification(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	first, err := CreateSnapshot(CreateSnapshotParams{
		Content:        []byte("v1"),
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	firstCiphertext, err := decodeB64(first.Ciphertext)
	require.NoError(t, err)

	second, err := CreateSnapshot(CreateSnapshotParams{
		Content:                  []byte("v2"),
		DocID:                    "doc-1",
		ParentSnapshotID:         first.PublicData.SnapshotID,
		ParentSnapshotCiphertext: firstCiphertext,
		Key:                      key,
		SigningKeyPair:           kp,
	})
	require.NoError(t, err)

	plaintext, err := VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:                 second,
		Key:                      key,
		ExpectedDocID:            "doc-1",
		ParentSnapshotCiphertext: firstCiphertext,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), plaintext)

	_, err = VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:                 second,
		Key:                      key,
		ExpectedDocID:            "doc-1",
		ParentSnapshotCiphertext: []byte("wrong parent ciphertext"),
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrSnapshotParentProofMismatch, code)
}

func TestSnapshotRejectsMissedUpdates(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	snap, err := CreateSnapshot(CreateSnapshotParams{
		Content: []byte("v2"),
		DocID:   "doc-1",
		ParentSnapshotUpdateClocks: map[string]int{
			"author-a": 2,
		},
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	_, err = VerifyAndDecryptSnapshot(VerifySnapshotParams{
		Snapshot:      snap,
		Key:           key,
		ExpectedDocID: "doc-1",
		LocallyObservedClocks: map[string]int{
			"author-a": 5,
		},
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrSnapshotMissedUpdates, code)
}

func TestUpdateCreateVerifyRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	upd, err := CreateUpdate(CreateUpdateParams{
		Content:       []byte("delta-1"),
		DocID:         "doc-1",
		RefSnapshotID: "snap-1",
		Clock:         0,
		Key:           key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	plaintext, clock, ignored, err := VerifyAndDecryptUpdate(VerifyUpdateParams{
		Update:                     upd,
		Key:                        key,
		ExpectedDocID:              "doc-1",
		ActiveSnapshotID:           "snap-1",
		CurrentClock:               -1,
		SkipIfCurrentClockIsHigher: true,
	})
	require.NoError(t, err)
	assert.False(t, ignored)
	assert.Equal(t, 0, clock)
	assert.Equal(t, []byte("delta-1"), plaintext)
}

func TestUpdateRejectsWrongSnapshot(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	upd, err := CreateUpdate(CreateUpdateParams{
		Content:       []byte("delta-1"),
		DocID:         "doc-1",
		RefSnapshotID: "snap-1",
		Clock:         0,
		Key:           key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	_, _, _, err = VerifyAndDecryptUpdate(VerifyUpdateParams{
		Update:           upd,
		Key:              key,
		ExpectedDocID:    "doc-1",
		ActiveSnapshotID: "snap-2",
		CurrentClock:     -1,
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrUpdateWrongSnapshot, code)
}

func TestUpdateClockMonotonicity(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	mk := func(clock int) Update {
		upd, err := CreateUpdate(CreateUpdateParams{
			Content:       []byte("delta"),
			DocID:         "doc-1",
			RefSnapshotID: "snap-1",
			Clock:         clock,
			Key:           key,
			SigningKeyPair: kp,
		})
		require.NoError(t, err)
		return upd
	}

	// Out-of-order (clock 2 before clock 1 applied) is an error.
	_, _, _, err = VerifyAndDecryptUpdate(VerifyUpdateParams{
		Update:           mk(2),
		Key:              key,
		ExpectedDocID:    "doc-1",
		ActiveSnapshotID: "snap-1",
		CurrentClock:     0,
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrUpdateClockMismatch, code)

	// A duplicate of an already-applied clock is silently ignored when
	// asked to be.
	_, newClock, ignored, err := VerifyAndDecryptUpdate(VerifyUpdateParams{
		Update:                     mk(0),
		Key:                        key,
		ExpectedDocID:              "doc-1",
		ActiveSnapshotID:           "snap-1",
		CurrentClock:               0,
		SkipIfCurrentClockIsHigher: true,
	})
	require.NoError(t, err)
	assert.True(t, ignored)
	assert.Equal(t, 0, newClock)
}

func TestEphemeralMessageRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	sessionID := crypto.MustNewID()

	msg, err := CreateEphemeralMessage(CreateEphemeralMessageParams{
		Type:           EphemeralContent,
		SessionID:      sessionID,
		SessionCounter: 7,
		Body:           []byte("cursor-position"),
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	decoded, err := VerifyAndDecryptEphemeralMessage(msg, key, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, EphemeralContent, decoded.Type)
	assert.Equal(t, sessionID, decoded.SessionID)
	assert.Equal(t, uint32(7), decoded.SessionCounter)
	assert.Equal(t, []byte("cursor-position"), decoded.Body)
}

func TestEphemeralMessageRejectsWrongDocID(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	key := testKey(t)

	msg, err := CreateEphemeralMessage(CreateEphemeralMessageParams{
		Type:           EphemeralInitialize,
		SessionID:      crypto.MustNewID(),
		SessionCounter: 0,
		DocID:          "doc-1",
		Key:            key,
		SigningKeyPair: kp,
	})
	require.NoError(t, err)

	_, err = VerifyAndDecryptEphemeralMessage(msg, key, "doc-2")
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrEphemeralDocIDMismatch, code)
}
