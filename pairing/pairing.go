// Package pairing collects small bilinear-pairing helpers shared by the
// commitment, accumulator, frontier, and proof-verification packages. It is
// a thin convenience layer over github.com/consensys/gnark-crypto/ecc/bn254;
// it does not reimplement pairing, field, or curve arithmetic.
package pairing

import "github.com/consensys/gnark-crypto/ecc/bn254"

// Equal reports whether e(a1, b1) == e(a2, b2), by checking that the product
// e(a1, b1) * e(a2, -b2) is the GT identity.
func Equal(a1 bn254.G1Affine, b1 bn254.G2Affine, a2 bn254.G1Affine, b2 bn254.G2Affine) (bool, error) {
	var negB2 bn254.G2Affine
	negB2.Neg(&b2)
	return bn254.PairingCheck(
		[]bn254.G1Affine{a1, a2},
		[]bn254.G2Affine{b1, negB2},
	)
}

// EqualThree reports whether e(a1,b1) == e(a2,b2) == e(a3,b3), i.e. all
// three pairings agree, by checking e(a1,b1)*e(a2,-b2) == 1 and
// e(a1,b1)*e(a3,-b3) == 1.
func EqualThree(a1 bn254.G1Affine, b1 bn254.G2Affine, a2 bn254.G1Affine, b2 bn254.G2Affine, a3 bn254.G1Affine, b3 bn254.G2Affine) (bool, error) {
	ok1, err := Equal(a1, b1, a2, b2)
	if err != nil || !ok1 {
		return false, err
	}
	return Equal(a1, b1, a3, b3)
}

// EqualProduct reports whether e(a1,b1)*e(a2,b2) == e(a3,b3), by checking
// that e(a1,b1)*e(a2,b2)*e(a3,-b3) is the GT identity.
func EqualProduct(a1 bn254.G1Affine, b1 bn254.G2Affine, a2 bn254.G1Affine, b2 bn254.G2Affine, a3 bn254.G1Affine, b3 bn254.G2Affine) (bool, error) {
	var negB3 bn254.G2Affine
	negB3.Neg(&b3)
	return bn254.PairingCheck(
		[]bn254.G1Affine{a1, a2, a3},
		[]bn254.G2Affine{b1, b2, negB3},
	)
}
