// Package params implements the q-SDH-style public parameters loaded from a
// trusted-setup trapdoor file: the typed container (s, tau, q, g1^{s^i},
// g1^{tau s^i}, g2^{s^i}, g2^tau) and its streaming file loader. Generating
// the trapdoor (the ceremony itself) is out of scope; this package only
// loads parameters that already exist on disk.
package params

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/log"
	"github.com/alinush/go-aad/pairing"
)

var logger = log.Module("params")

var (
	// ErrTrapdoorTruncated is returned when the trapdoor file has fewer than
	// the four required tokens.
	ErrTrapdoorTruncated = errors.New("params: trapdoor file truncated")
	// ErrCrossCheckFailed is returned when the trapdoor file's stored g2^tau
	// does not match tau * g2.
	ErrCrossCheckFailed = errors.New("params: g2^tau cross-check failed")
	// ErrChunkTruncated is returned when fewer than q+1 parameter records
	// could be read from the chunk files.
	ErrChunkTruncated = errors.New("params: chunk files truncated before q+1 records")
	// ErrValidationFailed is returned in validate mode when a record fails
	// its spot-check against the trapdoor.
	ErrValidationFailed = errors.New("params: record failed validation spot-check")
)

// PublicParameters is the read-only, shareable q-SDH-style parameter set.
// Once loaded it never changes and may be shared across AAD instances.
type PublicParameters struct {
	Q       int
	S       fr.Element
	Tau     fr.Element
	G1SI    []bn254.G1Affine // g1^{s^i}, i = 0..Q
	G1TauSI []bn254.G1Affine // g1^{tau*s^i}, i = 0..Q
	G2SI    []bn254.G2Affine // g2^{s^i}, i = 0..Q
	G2Tau   bn254.G2Affine   // g2^tau
}

// G1ToS returns g1^s.
func (p *PublicParameters) G1ToS() bn254.G1Affine { return p.G1SI[1] }

// G1ToTau returns g1^tau.
func (p *PublicParameters) G1ToTau() bn254.G1Affine { return p.G1TauSI[0] }

// G2ToS returns g2^s.
func (p *PublicParameters) G2ToS() bn254.G2Affine { return p.G2SI[1] }

// G2ToTau returns g2^tau. Note that g2^{tau*s^i} for i>0 is never stored:
// extractable G2 commitments are explicitly unsupported (see DESIGN.md).
func (p *PublicParameters) G2ToTau() bn254.G2Affine { return p.G2Tau }

// NewForTesting builds a PublicParameters directly from a known (s, tau)
// pair, without a trapdoor file round-trip. The reference implementation's
// generate(...) serves the same purpose for its own test fixtures; real
// callers must use Load with a ceremony-produced trapdoor instead.
func NewForTesting(q int, s, tau fr.Element) (*PublicParameters, error) {
	if q < 0 {
		return nil, fmt.Errorf("params: negative q")
	}
	_, _, g1Gen, g2Gen := bn254.Generators()

	pp := &PublicParameters{
		Q:       q,
		S:       s,
		Tau:     tau,
		G1SI:    make([]bn254.G1Affine, q+1),
		G1TauSI: make([]bn254.G1Affine, q+1),
		G2SI:    make([]bn254.G2Affine, q+1),
	}

	var tauBig big.Int
	tau.BigInt(&tauBig)
	pp.G2Tau.ScalarMultiplication(&g2Gen, &tauBig)

	var sPow fr.Element
	sPow.SetOne()
	for i := 0; i <= q; i++ {
		var sPowBig big.Int
		sPow.BigInt(&sPowBig)
		pp.G1SI[i].ScalarMultiplication(&g1Gen, &sPowBig)
		pp.G2SI[i].ScalarMultiplication(&g2Gen, &sPowBig)

		var tauSPow fr.Element
		tauSPow.Mul(&tau, &sPow)
		var tauSPowBig big.Int
		tauSPow.BigInt(&tauSPowBig)
		pp.G1TauSI[i].ScalarMultiplication(&g1Gen, &tauSPowBig)

		sPow.Mul(&sPow, &s)
	}
	return pp, nil
}

// Load reads a trapdoor file and its associated chunk files
// (<trapdoorPath>-0, <trapdoorPath>-1, ...) and builds a PublicParameters.
// When validate is true, every record is additionally spot-checked against
// the trapdoor's s, tau.
func Load(trapdoorPath string, validate bool) (*PublicParameters, error) {
	s, tau, q, g2tau, err := loadTrapdoor(trapdoorPath)
	if err != nil {
		return nil, err
	}

	_, _, g1Gen, g2Gen := bn254.Generators()

	var tauBig big.Int
	tau.BigInt(&tauBig)
	var expectG2Tau bn254.G2Affine
	expectG2Tau.ScalarMultiplication(&g2Gen, &tauBig)
	if !expectG2Tau.Equal(&g2tau) {
		logger.Error("g2^tau cross-check failed", "trapdoor", trapdoorPath)
		return nil, ErrCrossCheckFailed
	}

	pp := &PublicParameters{
		Q:       q,
		S:       s,
		Tau:     tau,
		G1SI:    make([]bn254.G1Affine, 0, q+1),
		G1TauSI: make([]bn254.G1Affine, 0, q+1),
		G2SI:    make([]bn254.G2Affine, 0, q+1),
		G2Tau:   g2tau,
	}

	var sPow fr.Element
	sPow.SetOne()

	for chunkIdx := 0; len(pp.G1SI) <= q; chunkIdx++ {
		chunkPath := fmt.Sprintf("%s-%d", trapdoorPath, chunkIdx)
		f, err := os.Open(chunkPath)
		if err != nil {
			logger.Error("chunk file missing before q+1 records", "path", chunkPath, "have", len(pp.G1SI), "want", q+1)
			return nil, ErrChunkTruncated
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 1024), 1<<20)

		for len(pp.G1SI) <= q {
			g1si, ok1 := nextHexG1(scanner)
			if !ok1 {
				break
			}
			g1tausi, ok2 := nextHexG1(scanner)
			if !ok2 {
				f.Close()
				return nil, ErrChunkTruncated
			}
			g2si, ok3 := nextHexG2(scanner)
			if !ok3 {
				f.Close()
				return nil, ErrChunkTruncated
			}

			i := len(pp.G1SI)
			if validate {
				if err := validateRecord(i, g1si, g1tausi, g2si, g1Gen, g2Gen, sPow, tau, g2tau); err != nil {
					f.Close()
					return nil, err
				}
			}

			pp.G1SI = append(pp.G1SI, g1si)
			pp.G1TauSI = append(pp.G1TauSI, g1tausi)
			pp.G2SI = append(pp.G2SI, g2si)
			sPow.Mul(&sPow, &s)
		}
		f.Close()
	}

	if len(pp.G1SI) != q+1 {
		return nil, ErrChunkTruncated
	}
	return pp, nil
}

func validateRecord(i int, g1si, g1tausi bn254.G1Affine, g2si bn254.G2Affine, g1Gen bn254.G1Affine, g2Gen bn254.G2Affine, sPow fr.Element, tau fr.Element, g2tau bn254.G2Affine) error {
	var sPowBig big.Int
	sPow.BigInt(&sPowBig)

	var expectG1si, expectG1tausi bn254.G1Affine
	expectG1si.ScalarMultiplication(&g1Gen, &sPowBig)
	if !expectG1si.Equal(&g1si) {
		logger.Warn("record failed spot-check", "i", i, "field", "g1si")
		return ErrValidationFailed
	}

	var tauSPow fr.Element
	tauSPow.Mul(&tau, &sPow)
	var tauSPowBig big.Int
	tauSPow.BigInt(&tauSPowBig)
	expectG1tausi.ScalarMultiplication(&g1Gen, &tauSPowBig)
	if !expectG1tausi.Equal(&g1tausi) {
		logger.Warn("record failed spot-check", "i", i, "field", "g1tausi")
		return ErrValidationFailed
	}

	var expectG2si bn254.G2Affine
	expectG2si.ScalarMultiplication(&g2Gen, &sPowBig)
	if !expectG2si.Equal(&g2si) {
		logger.Warn("record failed spot-check", "i", i, "field", "g2si")
		return ErrValidationFailed
	}

	ok, err := pairing.Equal(g1si, g2tau, g1tausi, g2Gen)
	if err != nil {
		return fmt.Errorf("params: pairing check: %w", err)
	}
	if !ok {
		logger.Warn("record failed pairing spot-check", "i", i)
		return ErrValidationFailed
	}
	return nil
}

func loadTrapdoor(path string) (s, tau fr.Element, q int, g2tau bn254.G2Affine, err error) {
	f, ferr := os.Open(path)
	if ferr != nil {
		err = fmt.Errorf("params: opening trapdoor file: %w", ferr)
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	tokens := make([]string, 0, 4)
	for scanner.Scan() && len(tokens) < 4 {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if len(tokens) != 4 {
		err = ErrTrapdoorTruncated
		return
	}

	sBytes, derr := hex.DecodeString(tokens[0])
	if derr != nil {
		err = fmt.Errorf("params: decoding s: %w", derr)
		return
	}
	s.SetBytes(sBytes)

	tauBytes, derr := hex.DecodeString(tokens[1])
	if derr != nil {
		err = fmt.Errorf("params: decoding tau: %w", derr)
		return
	}
	tau.SetBytes(tauBytes)

	var qVal int
	if _, serr := fmt.Sscanf(tokens[2], "%d", &qVal); serr != nil {
		err = fmt.Errorf("params: decoding q: %w", serr)
		return
	}
	q = qVal

	g2tauBytes, derr := hex.DecodeString(tokens[3])
	if derr != nil {
		err = fmt.Errorf("params: decoding g2tau: %w", derr)
		return
	}
	if _, serr := g2tau.SetBytes(g2tauBytes); serr != nil {
		err = fmt.Errorf("params: parsing g2tau: %w", serr)
		return
	}
	return
}

func nextHexG1(scanner *bufio.Scanner) (bn254.G1Affine, bool) {
	var out bn254.G1Affine
	if !scanner.Scan() {
		return out, false
	}
	b, err := hex.DecodeString(scanner.Text())
	if err != nil {
		return out, false
	}
	if _, err := out.SetBytes(b); err != nil {
		return out, false
	}
	return out, true
}

func nextHexG2(scanner *bufio.Scanner) (bn254.G2Affine, bool) {
	var out bn254.G2Affine
	if !scanner.Scan() {
		return out, false
	}
	b, err := hex.DecodeString(scanner.Text())
	if err != nil {
		return out, false
	}
	if _, err := out.SetBytes(b); err != nil {
		return out, false
	}
	return out, true
}

// WriteTrapdoor writes a trapdoor file in the format Load expects. It exists
// to let tests and callers that already possess (s, tau, g2tau) round-trip
// through the real file format instead of only exercising NewForTesting.
func WriteTrapdoor(path string, s, tau fr.Element, q int, g2tau bn254.G2Affine) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sBytes := s.Bytes()
	tauBytes := tau.Bytes()
	g2tauBytes := g2tau.Bytes()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, hex.EncodeToString(sBytes[:]))
	fmt.Fprintln(w, hex.EncodeToString(tauBytes[:]))
	fmt.Fprintln(w, q)
	fmt.Fprintln(w, hex.EncodeToString(g2tauBytes[:]))
	return w.Flush()
}

// WriteChunk writes a single chunk file (<path>-<chunkIdx>) containing the
// given records' (g1si, g1tausi, g2si) triples.
func WriteChunk(path string, chunkIdx int, g1si, g1tausi []bn254.G1Affine, g2si []bn254.G2Affine) error {
	if len(g1si) != len(g1tausi) || len(g1si) != len(g2si) {
		return fmt.Errorf("params: mismatched record slice lengths")
	}
	f, err := os.Create(fmt.Sprintf("%s-%d", path, chunkIdx))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i := range g1si {
		b1 := g1si[i].Bytes()
		b2 := g1tausi[i].Bytes()
		b3 := g2si[i].Bytes()
		fmt.Fprintln(w, hex.EncodeToString(b1[:]))
		fmt.Fprintln(w, hex.EncodeToString(b2[:]))
		fmt.Fprintln(w, hex.EncodeToString(b3[:]))
	}
	return w.Flush()
}
