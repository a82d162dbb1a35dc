// Package hashing implements the fixed hash functions the authenticated
// dictionary uses to turn keys, values, and append indices into bit strings
// and field elements, plus the Merkle node hash used by the overlay proofs.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/bitstring"
)

// KeyHashBits is the width of H_K(k).
const KeyHashBits = 256

// ValueHashBits is the width of H_V(v, i).
const ValueHashBits = 256

// KeyValueHashBits is the width of H_KV(k, v, i); this is also the
// accumulated tree's fixed depth (4*lambda for lambda=128).
const KeyValueHashBits = KeyHashBits + ValueHashBits

// HashKey computes H_K(k) = SHA-256(k) as a 256-bit BitString.
func HashKey(k []byte) bitstring.BitString {
	sum := sha256.Sum256(k)
	return bitstring.FromHashBytes(sum[:])
}

// HashValue computes H_V(v, i) = SHA-256( SHA-256(v) || SHA-256(dec(i)) ) as
// a 256-bit BitString.
func HashValue(v []byte, idx int) bitstring.BitString {
	hv := sha256.Sum256(v)
	hi := sha256.Sum256([]byte(strconv.Itoa(idx)))
	combined := make([]byte, 0, len(hv)+len(hi))
	combined = append(combined, hv[:]...)
	combined = append(combined, hi[:]...)
	sum := sha256.Sum256(combined)
	return bitstring.FromHashBytes(sum[:])
}

// HashKeyValue computes H_KV(k, v, i) = H_K(k) || H_V(v, i), 512 bits. This
// is the accumulated-tree path for the (k, v) pair appended at index i.
func HashKeyValue(k, v []byte, idx int) bitstring.BitString {
	return bitstring.Concat(HashKey(k), HashValue(v, idx))
}

// HashToField computes hashToField(b): the SHA-256 digest of b's rendering
// as literal ASCII '0'/'1' characters, with the last hex nibble of the
// digest dropped, interpreted as a base-p field element.
func HashToField(b bitstring.BitString) fr.Element {
	sum := sha256.Sum256([]byte(b.String()))
	hexDigest := hex.EncodeToString(sum[:])
	hexDigest = hexDigest[:len(hexDigest)-1] // drop the last nibble
	n := new(big.Int)
	n.SetString(hexDigest, 16)
	var el fr.Element
	el.SetBigInt(n)
	return el
}

// HashToFieldBatch applies HashToField to every element of bs, in order.
func HashToFieldBatch(bs []bitstring.BitString) []fr.Element {
	out := make([]fr.Element, len(bs))
	for i, b := range bs {
		out[i] = HashToField(b)
	}
	return out
}

// MerkleHash is a 32-byte node hash. The zero value is "unset": it must be
// distinguished from the all-zero and all-ones sentinel hashes used for
// empty/dummy children, which are represented by the Empty and Dummy values
// below.
type MerkleHash struct {
	set bool
	h   [32]byte
}

// IsUnset reports whether h carries no value yet.
func (h MerkleHash) IsUnset() bool { return !h.set }

// Bytes returns the 32-byte digest. Panics if h is unset; callers must check
// IsUnset first.
func (h MerkleHash) Bytes() [32]byte {
	if !h.set {
		panic("hashing: Bytes() on unset MerkleHash")
	}
	return h.h
}

// Equal reports whether a and b carry the same state and, if set, the same
// bytes.
func (a MerkleHash) Equal(b MerkleHash) bool {
	return a.set == b.set && a.h == b.h
}

// NewMerkleHash wraps an explicit 32-byte digest as a set MerkleHash.
func NewMerkleHash(b [32]byte) MerkleHash {
	return MerkleHash{set: true, h: b}
}

// Empty is the all-zero sentinel hash, distinct from an unset hash.
var Empty = NewMerkleHash([32]byte{})

// Dummy is the all-ones sentinel hash used by simulate mode.
var Dummy = NewMerkleHash(func() [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = 0xFF
	}
	return b
}())

// g1Hex renders a G1 element as lowercase hex of its compressed encoding.
func g1Hex(acc bn254.G1Affine) string {
	b := acc.Bytes()
	return hex.EncodeToString(b[:])
}

// ComputeMerkleHash computes MerkleHash(acc, left, right) = SHA-256( left ||
// hex(acc) || right ). left and right must already be set; leaves use Empty
// for both children.
func ComputeMerkleHash(acc bn254.G1Affine, left, right MerkleHash) MerkleHash {
	lb := left.Bytes()
	rb := right.Bytes()
	buf := make([]byte, 0, len(lb)+2*hex.EncodedLen(len(acc.Bytes()))+len(rb))
	buf = append(buf, lb[:]...)
	buf = append(buf, []byte(g1Hex(acc))...)
	buf = append(buf, rb[:]...)
	sum := sha256.Sum256(buf)
	return NewMerkleHash(sum)
}

// ComputeLeafHash computes the Merkle hash of a leaf node: MerkleHash(acc,
// Empty, Empty).
func ComputeLeafHash(acc bn254.G1Affine) MerkleHash {
	return ComputeMerkleHash(acc, Empty, Empty)
}
