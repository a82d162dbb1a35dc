// Package polycommit commits polynomials to the q-SDH-style public
// parameters via multi-exponentiation: g1^{p(s)}, its tau-scaled twin
// g1^{tau*p(s)} (extractable), and g2^{p(s)}. The multi-exponentiation
// itself, including its internal worker-pool parallelism, is delegated to
// github.com/consensys/gnark-crypto/ecc/bn254's MultiExp; this package only
// selects the right base vector and fans independent commitments of the same
// polynomial out across goroutines with golang.org/x/sync/errgroup.
package polycommit

import (
	"errors"
	"runtime"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/sync/errgroup"

	"github.com/alinush/go-aad/params"
)

// ErrDegreeTooHigh is returned when a polynomial's degree exceeds the
// public parameters' q, the classic "parameter-insufficient" condition.
var ErrDegreeTooHigh = errors.New("polycommit: polynomial degree exceeds q")

func multiExpConfig() ecc.MultiExpConfig {
	return ecc.MultiExpConfig{NbTasks: runtime.NumCPU()}
}

// CheckDegree reports ErrDegreeTooHigh if poly's degree exceeds pp.Q.
func CheckDegree(pp *params.PublicParameters, poly []fr.Element) error {
	if len(poly) == 0 {
		return nil
	}
	if len(poly)-1 > pp.Q {
		return ErrDegreeTooHigh
	}
	return nil
}

// MultiExpG1 computes sum_i bases[i]*exps[i] in G1.
func MultiExpG1(bases []bn254.G1Affine, exps []fr.Element) (bn254.G1Affine, error) {
	var res bn254.G1Affine
	if len(exps) == 0 {
		return res, nil
	}
	if _, err := res.MultiExp(bases[:len(exps)], exps, multiExpConfig()); err != nil {
		return bn254.G1Affine{}, err
	}
	return res, nil
}

// MultiExpG2 computes sum_i bases[i]*exps[i] in G2.
func MultiExpG2(bases []bn254.G2Affine, exps []fr.Element) (bn254.G2Affine, error) {
	var res bn254.G2Affine
	if len(exps) == 0 {
		return res, nil
	}
	if _, err := res.MultiExp(bases[:len(exps)], exps, multiExpConfig()); err != nil {
		return bn254.G2Affine{}, err
	}
	return res, nil
}

// CommitG1 computes g1^{p(s)} (extractable=false) or g1^{tau*p(s)}
// (extractable=true).
func CommitG1(pp *params.PublicParameters, poly []fr.Element, extractable bool) (bn254.G1Affine, error) {
	if err := CheckDegree(pp, poly); err != nil {
		return bn254.G1Affine{}, err
	}
	bases := pp.G1SI
	if extractable {
		bases = pp.G1TauSI
	}
	return MultiExpG1(bases, poly)
}

// CommitG2 computes g2^{p(s)}. Extractable G2 commitments (g2^{tau*p(s)})
// are not supported: the reference trapdoor never stores g2^{tau*s^i} for
// i>0, only g2^tau itself (see DESIGN.md).
func CommitG2(pp *params.PublicParameters, poly []fr.Element) (bn254.G2Affine, error) {
	if err := CheckDegree(pp, poly); err != nil {
		return bn254.G2Affine{}, err
	}
	return MultiExpG2(pp.G2SI, poly)
}

// Commitment bundles the commitments produced for one polynomial.
type Commitment struct {
	G1    bn254.G1Affine
	G1Ext bn254.G1Affine
	G2    bn254.G2Affine
}

// CommitAll computes, concurrently, whichever of (G1, extractable G1, G2)
// the caller asks for: up to three independent group elements committing to
// the same polynomial. aad uses it for each accumulated tree's G1 and
// extractable-G1 commitments; the frontier calls CommitG1/CommitG2 directly.
func CommitAll(pp *params.PublicParameters, poly []fr.Element, wantG1Ext, wantG2 bool) (Commitment, error) {
	if err := CheckDegree(pp, poly); err != nil {
		return Commitment{}, err
	}

	var out Commitment
	var g errgroup.Group

	g.Go(func() error {
		c, err := CommitG1(pp, poly, false)
		out.G1 = c
		return err
	})
	if wantG1Ext {
		g.Go(func() error {
			c, err := CommitG1(pp, poly, true)
			out.G1Ext = c
			return err
		})
	}
	if wantG2 {
		g.Go(func() error {
			c, err := CommitG2(pp, poly)
			out.G2 = c
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Commitment{}, err
	}
	return out, nil
}
