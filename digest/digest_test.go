package digest

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/alinush/go-aad/hashing"
)

func scaledG1(k int64) bn254.G1Affine {
	_, _, g1, _ := bn254.Generators()
	var out bn254.G1Affine
	out.ScalarMultiplication(&g1, big.NewInt(k))
	return out
}

func TestDigestEqualSameEntries(t *testing.T) {
	e := Entry{AccAT: scaledG1(3), AccFrontier: scaledG1(5), MerkleHash: hashing.Dummy}
	a := Digest{e}
	b := Digest{e}
	if !a.Equal(b) {
		t.Fatalf("Equal(a, b) = false for identical digests")
	}
}

func TestDigestEqualDifferentLength(t *testing.T) {
	e := Entry{AccAT: scaledG1(3), MerkleHash: hashing.Empty}
	a := Digest{e}
	b := Digest{e, e}
	if a.Equal(b) {
		t.Fatalf("Equal(a, b) = true for digests of different length")
	}
}

func TestDigestEqualDetectsAccATMismatch(t *testing.T) {
	a := Digest{{AccAT: scaledG1(3), MerkleHash: hashing.Empty}}
	b := Digest{{AccAT: scaledG1(7), MerkleHash: hashing.Empty}}
	if a.Equal(b) {
		t.Fatalf("Equal(a, b) = true for different AccAT values")
	}
}

func TestDigestEqualDetectsMerkleHashMismatch(t *testing.T) {
	a := Digest{{AccAT: scaledG1(3), MerkleHash: hashing.Empty}}
	b := Digest{{AccAT: scaledG1(3), MerkleHash: hashing.Dummy}}
	if a.Equal(b) {
		t.Fatalf("Equal(a, b) = true for different MerkleHash values")
	}
}
