package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]interface{}{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]interface{}{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestCanonicalizeNoWhitespace(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{
		"nested": map[string]interface{}{"x": []interface{}{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(out), " ")
	assert.NotContains(t, string(out), "\n")
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte("Hello World")
	ad := []byte(`{"docId":"doc1"}`)

	ciphertext, nonce, err := Seal(key, plaintext, ad)
	require.NoError(t, err)

	got, err := Open(key, ciphertext, nonce, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := make([]byte, KeySize)
	ciphertext, nonce, err := Seal(key, []byte("msg"), []byte("ad"))
	require.NoError(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xFF

	_, err = Open(key, tampered, nonce, []byte("ad"))
	assert.Error(t, err)
}

func TestOpenRejectsTamperedAD(t *testing.T) {
	key := make([]byte, KeySize)
	ciphertext, nonce, err := Seal(key, []byte("msg"), []byte("ad"))
	require.NoError(t, err)

	_, err = Open(key, ciphertext, nonce, []byte("different-ad"))
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("sign me")
	sig := kp.Sign(msg)
	assert.NoError(t, Verify(kp.Public, msg, sig))

	sig[0] ^= 0xFF
	assert.ErrorIs(t, Verify(kp.Public, msg, sig), ErrInvalidSignature)
}

func TestParentSnapshotProofChain(t *testing.T) {
	root, err := ParentSnapshotProof([]byte("genesis-ciphertext"), nil)
	require.NoError(t, err)

	next, err := ParentSnapshotProof([]byte("snapshot-1-ciphertext"), root)
	require.NoError(t, err)
	assert.Len(t, next, HashSize)

	tamperedRoot, err := ParentSnapshotProof([]byte("genesis-ciphertext-tampered"), nil)
	require.NoError(t, err)
	tamperedNext, err := ParentSnapshotProof([]byte("snapshot-1-ciphertext"), tamperedRoot)
	require.NoError(t, err)
	assert.NotEqual(t, next, tamperedNext)
}

func TestNewIDIsURLSafeAnd32Chars(t *testing.T) {
	id, err := NewID()
	require.NoError(t, err)
	assert.Len(t, id, 32) // 24 bytes -> 32 base64url chars, no padding
	assert.NotContains(t, id, "+")
	assert.NotContains(t, id, "/")
	assert.NotContains(t, id, "=")
}
