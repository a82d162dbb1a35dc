// Package polyops specifies the polynomial-kernel contracts the authenticated
// dictionary builds on: multiplication, exact division, from-roots
// interpolation, and the extended Euclidean algorithm. Coefficients are
// ordered low-degree first (index i holds the coefficient of x^i), matching
// gnark-crypto's own polynomial convention. The reference implementation
// treats fast kernels (NTT multiplication, NTL-backed division/EEA) as
// swappable internals; this package specifies the same contracts with
// direct, schoolbook implementations, which is sufficient for correctness.
// Degrees are not bounded by 4*128: a single leaf's accumulated-tree
// polynomial has 513 roots, and merged trees' polynomials grow with every
// merge.
package polyops

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrNotExactDivision is returned by ExactQuotient when the divisor does not
// divide the dividend exactly.
var ErrNotExactDivision = errors.New("polyops: division is not exact")

// Trim removes trailing zero coefficients, returning the canonical
// representation of p. The zero polynomial trims to length 0.
func Trim(p []fr.Element) []fr.Element {
	n := len(p)
	for n > 0 && p[n-1].IsZero() {
		n--
	}
	return p[:n]
}

// Degree returns the degree of p, or -1 for the zero polynomial.
func Degree(p []fr.Element) int {
	t := Trim(p)
	return len(t) - 1
}

// IsZero reports whether p is the zero polynomial.
func IsZero(p []fr.Element) bool {
	return len(Trim(p)) == 0
}

// Equal reports whether a and b represent the same polynomial once trailing
// zero coefficients are ignored.
func Equal(a, b []fr.Element) bool {
	ta, tb := Trim(a), Trim(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if !ta[i].Equal(&tb[i]) {
			return false
		}
	}
	return true
}

// Multiply computes the coefficient-slice product of a and b via schoolbook
// convolution.
func Multiply(a, b []fr.Element) []fr.Element {
	a, b = Trim(a), Trim(b)
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make([]fr.Element, len(a)+len(b)-1)
	var tmp fr.Element
	for i, ai := range a {
		if ai.IsZero() {
			continue
		}
		for j, bj := range b {
			tmp.Mul(&ai, &bj)
			out[i+j].Add(&out[i+j], &tmp)
		}
	}
	return Trim(out)
}

// Divide computes q, r such that a = q*b + r with deg(r) < deg(b), via
// schoolbook long division. b must not be the zero polynomial.
func Divide(a, b []fr.Element) (q, r []fr.Element, err error) {
	b = Trim(b)
	if len(b) == 0 {
		return nil, nil, errors.New("polyops: division by zero polynomial")
	}
	rem := make([]fr.Element, len(Trim(a)))
	copy(rem, Trim(a))

	degB := len(b) - 1
	var lead fr.Element
	lead.Inverse(&b[degB])

	if len(rem)-1 < degB {
		return nil, Trim(rem), nil
	}

	quot := make([]fr.Element, len(rem)-degB)
	var coeff, tmp fr.Element
	for deg := len(rem) - 1; deg >= degB; deg-- {
		if rem[deg].IsZero() {
			continue
		}
		coeff.Mul(&rem[deg], &lead)
		quot[deg-degB] = coeff
		for j := 0; j <= degB; j++ {
			tmp.Mul(&coeff, &b[j])
			rem[deg-degB+j].Sub(&rem[deg-degB+j], &tmp)
		}
	}
	return Trim(quot), Trim(rem), nil
}

// ExactQuotient computes a/b, requiring a zero remainder. It is used for
// parent/child append-only subset witnesses, where a non-exact division is a
// protocol violation rather than an expected outcome.
func ExactQuotient(a, b []fr.Element) ([]fr.Element, error) {
	q, r, err := Divide(a, b)
	if err != nil {
		return nil, err
	}
	if !IsZero(r) {
		return nil, ErrNotExactDivision
	}
	return q, nil
}

// FromRoots builds the monic polynomial whose roots are exactly the given
// field elements: prod_i (x - roots[i]).
func FromRoots(roots []fr.Element) []fr.Element {
	poly := []fr.Element{fr.NewElement(1)}
	for _, root := range roots {
		var negRoot fr.Element
		negRoot.Neg(&root)
		factor := []fr.Element{negRoot, fr.NewElement(1)}
		poly = Multiply(poly, factor)
	}
	return poly
}

// ExtendedGCD computes x, y, gcd such that a*x + b*y = gcd, via the
// polynomial extended Euclidean algorithm. gcd is returned in monic form,
// with x and y scaled accordingly.
func ExtendedGCD(a, b []fr.Element) (x, y, gcd []fr.Element, err error) {
	r0, r1 := append([]fr.Element(nil), Trim(a)...), append([]fr.Element(nil), Trim(b)...)
	s0, s1 := []fr.Element{fr.NewElement(1)}, []fr.Element(nil)
	t0, t1 := []fr.Element(nil), []fr.Element{fr.NewElement(1)}

	for !IsZero(r1) {
		q, r, derr := Divide(r0, r1)
		if derr != nil {
			return nil, nil, nil, derr
		}
		r0, r1 = r1, r
		s0, s1 = s1, subPoly(s0, Multiply(q, s1))
		t0, t1 = t1, subPoly(t0, Multiply(q, t1))
	}

	if IsZero(r0) {
		return nil, nil, nil, errors.New("polyops: gcd is zero")
	}

	// Normalize so gcd is monic.
	lead := r0[len(r0)-1]
	var inv fr.Element
	inv.Inverse(&lead)
	gcd = scalePoly(r0, inv)
	x = scalePoly(s0, inv)
	y = scalePoly(t0, inv)
	return x, y, gcd, nil
}

func subPoly(a, b []fr.Element) []fr.Element {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		var av, bv fr.Element
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i].Sub(&av, &bv)
	}
	return Trim(out)
}

func scalePoly(p []fr.Element, s fr.Element) []fr.Element {
	out := make([]fr.Element, len(p))
	for i, c := range p {
		out[i].Mul(&c, &s)
	}
	return Trim(out)
}
