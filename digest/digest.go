// Package digest defines the authenticated dictionary's public digest: an
// ordered list of per-tree commitments a verifier pins and checks proofs
// against.
package digest

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/alinush/go-aad/hashing"
)

// Entry is one forest tree's triple of commitments: its accumulated-tree
// root accumulator, its frontier root accumulator, and its Merkle-overlay
// root hash.
type Entry struct {
	AccAT       bn254.G1Affine
	AccFrontier bn254.G1Affine
	MerkleHash  hashing.MerkleHash
}

// Digest is the ordered list of tree entries a dictionary publishes,
// largest tree first, matching the forest's own root ordering.
type Digest []Entry

// Equal reports whether d and other have the same entries in the same
// order.
func (d Digest) Equal(other Digest) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		a, b := d[i], other[i]
		if !a.AccAT.Equal(&b.AccAT) {
			return false
		}
		if !a.AccFrontier.Equal(&b.AccFrontier) {
			return false
		}
		if !a.MerkleHash.Equal(b.MerkleHash) {
			return false
		}
	}
	return true
}
