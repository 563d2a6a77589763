package crypto

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the length of a parent-snapshot proof.
const HashSize = blake2b.Size256

// ParentSnapshotProof computes hash(parentSnapshotCiphertext ||
// grandParentSnapshotProof), the hash-chain commitment spec.md §3/§8
// (invariant 3) requires each snapshot to carry. BLAKE2b-256 is the choice
// spec.md §9 Open Question 2 proposes absent contrary evidence from the
// retrieval pack; see DESIGN.md.
func ParentSnapshotProof(parentCiphertext, grandParentProof []byte) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("parent snapshot proof: %w", err)
	}
	h.Write(parentCiphertext)
	h.Write(grandParentProof)
	return h.Sum(nil), nil
}
