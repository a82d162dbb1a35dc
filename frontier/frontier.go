// Package frontier implements the completeness accumulator: a tree over the
// prefixes a dictionary has deliberately NOT produced (missing key prefixes
// and missing per-key value prefixes), committed the same way the
// accumulated tree is, so that a verifier can be convinced no value was
// silently omitted from a membership proof.
//
// Internally the frontier is built bottom-up as a forest of small leaf
// trees (one per AddMissingKeyPrefix/AddMissingValuesPrefixes call), then
// flattened into a single tree by Finalize. Lookups from a prefix or key
// hash back to its leaf are done via linear scan rather than a hash map --
// the reference implementation found hash maps too slow here and switched
// to flat vectors, and this port keeps that choice.
package frontier

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/bintree"
	"github.com/alinush/go-aad/bitstring"
	"github.com/alinush/go-aad/hashing"
	"github.com/alinush/go-aad/pairing"
	"github.com/alinush/go-aad/params"
	"github.com/alinush/go-aad/polycommit"
	"github.com/alinush/go-aad/polyops"
)

var (
	// ErrAlreadyFinalized is returned by Finalize when called more than once.
	ErrAlreadyFinalized = errors.New("frontier: already finalized")
	// ErrNotFinalized is returned by operations that require Finalize to
	// have run first.
	ErrNotFinalized = errors.New("frontier: not finalized")
	// ErrEmptyFrontier is returned by Finalize when no leaves were ever
	// added.
	ErrEmptyFrontier = errors.New("frontier: empty, nothing to finalize")
	// ErrUnknownPrefix is returned when a missing-key-prefix lookup misses.
	ErrUnknownPrefix = errors.New("frontier: unknown missing key prefix")
	// ErrUnknownKey is returned when a key-hash lookup misses.
	ErrUnknownKey = errors.New("frontier: unknown key hash")
	// ErrConsistencyCheckFailed is returned when a node's G1/G2 commitments
	// to the same polynomial disagree under pairing.
	ErrConsistencyCheckFailed = errors.New("frontier: G1/G2 commitment consistency check failed")
	// ErrExtractabilityCheckFailed is returned when a node's extractable
	// commitment disagrees with its ordinary one under pairing.
	ErrExtractabilityCheckFailed = errors.New("frontier: extractability check failed")
)

type nodeData struct {
	Acc1    bn254.G1Affine
	ExtAcc1 bn254.G1Affine
	Acc2    bn254.G2Affine
	Poly    []fr.Element
}

type prefixLeafEntry struct {
	prefix bitstring.BitString
	leaf   *bintree.Node[nodeData]
}

type keyLeavesEntry struct {
	keyHash bitstring.BitString
	leaves  []*bintree.Node[nodeData]
}

// Frontier accumulates missing key and value prefixes into a single
// commitment tree.
type Frontier struct {
	pp       *params.PublicParameters
	simulate bool
	g1One    bn254.G1Affine
	g2One    bn254.G2Affine

	lowerTrees *bintree.Forest[nodeData]
	upperTree  *bintree.Node[nodeData]

	keyPrefixToLeaf      []prefixLeafEntry
	keyToAccumulatorLeaf []keyLeavesEntry
}

// New creates an empty frontier committing against pp. Passing a nil pp
// puts the frontier in simulate mode: leaves carry no real polynomial and
// commitments are never computed, only used for benchmarking tree shape and
// proof size, never for verification.
func New(pp *params.PublicParameters) *Frontier {
	f := &Frontier{pp: pp, simulate: pp == nil}
	if !f.simulate {
		f.g1One = pp.G1SI[0]
		f.g2One = pp.G2SI[0]
	}
	f.lowerTrees = bintree.NewForest(f.mergeFunc)
	return f
}

func (f *Frontier) mergeFunc(left, right *bintree.Node[nodeData], isLastMerge bool) nodeData {
	if f.simulate {
		return nodeData{}
	}
	parentPoly := polyops.Multiply(left.Data.Poly, right.Data.Poly)
	if err := f.commitToPolynomial(&left.Data, left.IsLeaf(), false); err != nil {
		panic(err) // internal invariant: construction-time commitment failure is unrecoverable here
	}
	if err := f.commitToPolynomial(&right.Data, right.IsLeaf(), false); err != nil {
		panic(err)
	}
	return nodeData{Poly: parentPoly}
}

// commitToPolynomial computes d.Acc1 (and, for non-leaves, d.ExtAcc1 and,
// for non-roots, d.Acc2), checking pairing consistency, then clears d.Poly
// unless isRoot.
func (f *Frontier) commitToPolynomial(d *nodeData, isLeaf, isRoot bool) error {
	if f.simulate {
		return nil
	}
	acc1, err := polycommit.CommitG1(f.pp, d.Poly, false)
	if err != nil {
		return err
	}
	d.Acc1 = acc1

	if !isLeaf {
		ext, err := polycommit.CommitG1(f.pp, d.Poly, true)
		if err != nil {
			return err
		}
		d.ExtAcc1 = ext

		if !isRoot {
			acc2, err := polycommit.CommitG2(f.pp, d.Poly)
			if err != nil {
				return err
			}
			d.Acc2 = acc2

			ok, err := pairing.Equal(d.Acc1, f.g2One, f.g1One, d.Acc2)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConsistencyCheckFailed
			}
		}

		ok, err := pairing.Equal(d.Acc1, f.pp.G2ToTau(), d.ExtAcc1, f.g2One)
		if err != nil {
			return err
		}
		if !ok {
			return ErrExtractabilityCheckFailed
		}
	}

	if !isRoot {
		d.Poly = nil
	}
	return nil
}

// AddMissingKeyPrefix registers a single missing key prefix, committing to
// the degree-1 polynomial (x - hashToField(prefix)).
func (f *Frontier) AddMissingKeyPrefix(prefix bitstring.BitString) {
	var data nodeData
	if !f.simulate {
		el := hashing.HashToField(prefix)
		var negEl fr.Element
		negEl.Neg(&el)
		data.Poly = []fr.Element{negEl, fr.NewElement(1)}
	}
	leaf := bintree.NewNode(data)
	f.lowerTrees.AppendLeaf(leaf)
	f.keyPrefixToLeaf = append(f.keyPrefixToLeaf, prefixLeafEntry{prefix: prefix, leaf: leaf})
}

// AddMissingValuesPrefixes registers a batch of missing value prefixes for
// keyHash, committing to their characteristic polynomial in one leaf.
func (f *Frontier) AddMissingValuesPrefixes(keyHash bitstring.BitString, prefixes []bitstring.BitString) {
	var data nodeData
	if !f.simulate {
		hashes := hashing.HashToFieldBatch(prefixes)
		data.Poly = polyops.FromRoots(hashes)
	}
	leaf := bintree.NewNode(data)
	f.lowerTrees.AppendLeaf(leaf)

	for i := range f.keyToAccumulatorLeaf {
		if f.keyToAccumulatorLeaf[i].keyHash.Equal(keyHash) {
			f.keyToAccumulatorLeaf[i].leaves = append(f.keyToAccumulatorLeaf[i].leaves, leaf)
			return
		}
	}
	f.keyToAccumulatorLeaf = append(f.keyToAccumulatorLeaf, keyLeavesEntry{
		keyHash: keyHash,
		leaves:  []*bintree.Node[nodeData]{leaf},
	})
}

// Finalize flattens the leaf forest into a single tree and commits to every
// internal node's polynomial, bottom-up. It may be called only once.
func (f *Frontier) Finalize() error {
	if f.upperTree != nil {
		return ErrAlreadyFinalized
	}
	root := f.lowerTrees.MergeAllRoots()
	if root == nil {
		return ErrEmptyFrontier
	}
	f.upperTree = root

	if !f.simulate {
		if err := f.commitToPolynomial(&root.Data, root.IsLeaf(), true); err != nil {
			return err
		}
		if err := f.assertFinalized(root.Child(0)); err != nil {
			return err
		}
		if err := f.assertFinalized(root.Child(1)); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frontier) assertFinalized(node *bintree.Node[nodeData]) error {
	if node == nil {
		return nil
	}
	if node.Data.Poly != nil {
		return errors.New("frontier: internal invariant violated: polynomial not cleared after commit")
	}
	if !node.IsLeaf() {
		left, right := node.Child(0), node.Child(1)
		if left == nil || right == nil {
			return bintree.ErrProtocolViolation
		}
		if !left.IsLeaf() && !right.IsLeaf() {
			ok, err := pairing.EqualThree(
				node.Data.Acc1, f.g2One,
				left.Data.Acc1, right.Data.Acc2,
				right.Data.Acc1, left.Data.Acc2,
			)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConsistencyCheckFailed
			}
			if !node.IsRoot() {
				ok, err := pairing.EqualThree(
					f.g1One, node.Data.Acc2,
					left.Data.Acc1, right.Data.Acc2,
					right.Data.Acc1, left.Data.Acc2,
				)
				if err != nil {
					return err
				}
				if !ok {
					return ErrConsistencyCheckFailed
				}
			}
		}
	}
	if err := f.assertFinalized(node.Child(0)); err != nil {
		return err
	}
	return f.assertFinalized(node.Child(1))
}

// RootAcc returns the finalized root's G1 accumulator.
func (f *Frontier) RootAcc() (bn254.G1Affine, error) {
	if f.upperTree == nil {
		return bn254.G1Affine{}, ErrNotFinalized
	}
	return f.upperTree.Data.Acc1, nil
}

// RootPoly returns the finalized root's characteristic polynomial, retained
// (unlike every other node's) because EEA against the accumulated tree's
// polynomial needs it.
func (f *Frontier) RootPoly() ([]fr.Element, error) {
	if f.upperTree == nil {
		return nil, ErrNotFinalized
	}
	return f.upperTree.Data.Poly, nil
}

// Size returns the number of nodes in the finalized tree.
func (f *Frontier) Size() (int, error) {
	if f.upperTree == nil {
		return 0, ErrNotFinalized
	}
	count := 0
	f.upperTree.PreorderTraverse(func(*bintree.Node[nodeData]) { count++ })
	return count, nil
}

// NumLeaves returns the number of leaves ever added.
func (f *Frontier) NumLeaves() int { return f.lowerTrees.Count() }

// Kind tags the role a node plays in a frontier proof, driving which
// accumulators survive pruning.
type Kind int

const (
	KindUnknown Kind = iota
	KindLeaf
	KindSiblingLeaf
	KindSiblingNonLeaf
	KindOnPath
	KindRoot
)

// ProofData is the payload of a frontier proof tree: a node tagged with its
// Kind and whichever of (G1, extractable G1, G2) survives pruning.
type ProofData struct {
	Kind Kind
	g1   *bn254.G1Affine
	g1e  *bn254.G1Affine
	g2   *bn254.G2Affine
}

func (p *ProofData) HasG1() bool    { return p.g1 != nil }
func (p *ProofData) HasG1Ext() bool { return p.g1e != nil }
func (p *ProofData) HasG2() bool    { return p.g2 != nil }

func (p *ProofData) G1() bn254.G1Affine    { return *p.g1 }
func (p *ProofData) G1Ext() bn254.G1Affine { return *p.g1e }
func (p *ProofData) G2() bn254.G2Affine    { return *p.g2 }

func (p *ProofData) SetG1(v bn254.G1Affine)    { p.g1 = &v }
func (p *ProofData) SetG1Ext(v bn254.G1Affine) { p.g1e = &v }
func (p *ProofData) SetG2(v bn254.G2Affine)    { p.g2 = &v }

func (p *ProofData) ResetG1()    { p.g1 = nil }
func (p *ProofData) ResetG1Ext() { p.g1e = nil }
func (p *ProofData) ResetG2()    { p.g2 = nil }

func randomG1() bn254.G1Affine {
	var s fr.Element
	_, _ = s.SetRandom()
	_, _, g1Gen, _ := bn254.Generators()
	var sBig big.Int
	s.BigInt(&sBig)
	var out bn254.G1Affine
	out.ScalarMultiplication(&g1Gen, &sBig)
	return out
}

func randomG2() bn254.G2Affine {
	var s fr.Element
	_, _ = s.SetRandom()
	_, _, _, g2Gen := bn254.Generators()
	var sBig big.Int
	s.BigInt(&sBig)
	var out bn254.G2Affine
	out.ScalarMultiplication(&g2Gen, &sBig)
	return out
}

func (f *Frontier) getPrefixLeaf(prefix bitstring.BitString) (*bintree.Node[nodeData], error) {
	for _, e := range f.keyPrefixToLeaf {
		if e.prefix.Equal(prefix) {
			return e.leaf, nil
		}
	}
	return nil, ErrUnknownPrefix
}

func (f *Frontier) getKeyLeaves(keyHash bitstring.BitString) ([]*bintree.Node[nodeData], error) {
	for _, e := range f.keyToAccumulatorLeaf {
		if e.keyHash.Equal(keyHash) {
			return e.leaves, nil
		}
	}
	return nil, ErrUnknownKey
}

func (f *Frontier) frontierCopier() func(src *bintree.Node[nodeData], dst *bintree.Node[ProofData], isSibling bool) {
	return func(src *bintree.Node[nodeData], dst *bintree.Node[ProofData], isSibling bool) {
		if src.IsRoot() {
			dst.Data.Kind = KindRoot
			return
		}

		isLeaf := src.IsLeaf()
		g1, g1ext, g2 := src.Data.Acc1, src.Data.ExtAcc1, src.Data.Acc2
		if f.simulate {
			g1, g1ext, g2 = randomG1(), randomG1(), randomG2()
		}

		if isSibling {
			if isLeaf {
				if dst.Data.Kind == KindUnknown {
					dst.Data.Kind = KindSiblingLeaf
					dst.Data.SetG1(g1)
					dst.Data.ResetG1Ext()
					dst.Data.ResetG2()
				}
			} else if dst.Data.Kind == KindUnknown {
				dst.Data.Kind = KindSiblingNonLeaf
				dst.Data.SetG1(g1)
				dst.Data.SetG1Ext(g1ext)
				dst.Data.SetG2(g2)
			}
		} else {
			if isLeaf {
				dst.Data.Kind = KindLeaf
				dst.Data.ResetG1()
				dst.Data.ResetG1Ext()
				dst.Data.ResetG2()
			} else {
				dst.Data.Kind = KindOnPath
				if !dst.Data.HasG1() {
					dst.Data.SetG1(g1)
				}
				if !dst.Data.HasG1Ext() {
					dst.Data.SetG1Ext(g1ext)
				}
				if !dst.Data.HasG2() {
					dst.Data.SetG2(g2)
				}
			}
		}
	}
}

// pruneFrontierProof drops accumulators a verifier can reconstruct or does
// not need, given each node's and its sibling's Kind.
func pruneFrontierProof(root *bintree.Node[ProofData]) {
	root.PreorderTraverse(func(node *bintree.Node[ProofData]) {
		switch node.Data.Kind {
		case KindRoot, KindLeaf:
			// carries no accumulators by construction
		case KindOnPath:
			sibling := node.Sibling()
			parent := node.Parent()
			switch sibling.Data.Kind {
			case KindLeaf:
				node.Data.ResetG2()
				parent.Data.ResetG1Ext()
			case KindSiblingLeaf:
				// keep G1, G1ext, G2: sibling can't be reconstructed
			case KindSiblingNonLeaf:
				node.Data.ResetG2()
			case KindOnPath:
				if sibling.Data.HasG2() {
					node.Data.ResetG2()
				}
				parent.Data.ResetG1Ext()
			}
		case KindSiblingLeaf:
			node.Data.ResetG2()
			node.Data.ResetG1Ext()
		case KindSiblingNonLeaf:
			node.Data.ResetG1()
			node.Data.ResetG1Ext()
		}
	})
}

// GetFrontierProof returns a frontier membership proof for prefix: either a
// missing key prefix (isInsertedKey=false) or the hash of a key that does
// have values, whose missing-value-prefix leaves all get folded into one
// proof tree (isInsertedKey=true).
func (f *Frontier) GetFrontierProof(prefix bitstring.BitString, isInsertedKey bool) (*bintree.Node[ProofData], error) {
	if f.upperTree == nil {
		return nil, ErrNotFinalized
	}

	var leaves []*bintree.Node[nodeData]
	if isInsertedKey {
		ls, err := f.getKeyLeaves(prefix)
		if err != nil {
			return nil, err
		}
		leaves = ls
	} else {
		leaf, err := f.getPrefixLeaf(prefix)
		if err != nil {
			return nil, err
		}
		leaves = []*bintree.Node[nodeData]{leaf}
	}
	if len(leaves) == 0 {
		return nil, ErrUnknownPrefix
	}

	proofRoot := bintree.NewNode(ProofData{})
	copier := f.frontierCopier()
	for _, leaf := range leaves {
		bintree.CopyPathToRoot(leaf, proofRoot, copier)
	}
	pruneFrontierProof(proofRoot)
	return proofRoot, nil
}
