// Package aad implements the authenticated dictionary itself: an
// append-only forest of accumulated trees, indexed by key, with an optional
// frontier computed at each merge for completeness proofs. This is the
// orchestration layer sitting on top of accumtree, frontier, bintree, and
// polycommit/polyops -- the same layering the reference implementation's
// AADS.h uses over AccumulatedTree.h, Frontier.h, and BinaryTree.h.
package aad

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/accumtree"
	"github.com/alinush/go-aad/bintree"
	"github.com/alinush/go-aad/bitstring"
	"github.com/alinush/go-aad/digest"
	"github.com/alinush/go-aad/frontier"
	"github.com/alinush/go-aad/hashing"
	"github.com/alinush/go-aad/log"
	"github.com/alinush/go-aad/pairing"
	"github.com/alinush/go-aad/params"
	"github.com/alinush/go-aad/polycommit"
	"github.com/alinush/go-aad/polyops"
	"github.com/alinush/go-aad/proof"
)

var logger = log.Module("aad")

// SecParam is the security parameter lambda. The accumulated tree's fixed
// depth is 4*SecParam (256 bits of key hash, 256 bits of value hash).
const SecParam = 128

// TreeDepth is the accumulated tree's fixed maximum depth, hashing.KeyValueHashBits.
const TreeDepth = hashing.KeyValueHashBits

var (
	// ErrInvalidBatchSize is returned by SetBatchSize for non-positive sizes.
	ErrInvalidBatchSize = errors.New("aad: batch size must be positive")
	// ErrKeyNotFound is returned by GetValues and OccurrenceCount-adjacent
	// lookups for a key that was never appended.
	ErrKeyNotFound = errors.New("aad: key not found")
	// ErrLeafIndexOutOfRange is returned by GetKeyByLeafNo.
	ErrLeafIndexOutOfRange = errors.New("aad: leaf index out of range")
	// ErrVersionOutOfRange is returned by GetDigestAt and AppendOnlyProof.
	ErrVersionOutOfRange = errors.New("aad: version out of range")
)

// data is the forest node payload, shared by leaves and internal nodes. Leaf
// fields (Key, Value, LeafNo) are zero on internal nodes; AT/Poly/Frontier/X/Y
// are cleared on non-root nodes once their parent has been committed, mirroring
// the reference implementation's freeAfterMerge().
type data struct {
	Size       int
	MerkleHash hashing.MerkleHash
	Acc        bn254.G1Affine // commitment to this subtree's AT characteristic polynomial
	ExtAcc     bn254.G1Affine // tau-scaled twin, extractability witness
	// SubsetProof is this node's append-only witness against its parent:
	// g2^{quotient(s)} where quotient = parentPoly / thisPoly.
	SubsetProof bn254.G2Affine

	// X, Y are the Bezout coefficients (as G2 commitments) proving the AT's
	// characteristic polynomial and the frontier's root polynomial are
	// coprime, i.e. that every frontier prefix is genuinely missing from the
	// AT. Only populated on roots where a frontier was computed.
	X, Y *bn254.G2Affine

	AccPoly  []fr.Element // kept only on current roots, for the next merge's division
	AT       *accumtree.AccumulatedTree
	Frontier *frontier.Frontier

	IsLeaf bool
	Key    []byte
	Value  []byte
	LeafNo int
}

// AAD is the append-only authenticated dictionary: a forest of accumulated
// trees indexed by key, each root carrying an AT commitment and, once its
// batch fills, a frontier completeness commitment.
type AAD struct {
	pp        *params.PublicParameters
	simulate  bool
	batchSize int
	g1One     bn254.G1Affine
	g2One     bn254.G2Affine
	forest    *bintree.IndexedForest[string, data]
}

// New creates an empty dictionary using pp for all commitments. A nil pp
// puts the dictionary in simulate mode: commitments are replaced by cheap
// dummy group elements, useful for benchmarking the non-cryptographic
// bookkeeping in isolation.
func New(pp *params.PublicParameters) *AAD {
	_, _, g1Gen, g2Gen := bn254.Generators()
	a := &AAD{pp: pp, simulate: pp == nil, batchSize: 1, g1One: g1Gen, g2One: g2Gen}
	a.forest = bintree.NewIndexedForest[string, data](a.mergeFunc)
	return a
}

// SetBatchSize controls how eagerly frontiers are computed: a batch size of
// 1 computes a frontier at every other leaf append (matching the reference
// implementation's default), while larger batch sizes defer frontier
// computation until a last merge joins two subtrees of at least
// 2^floor(log2(batchSize)) leaves each, trading per-append latency for
// fewer, larger commitments.
func (a *AAD) SetBatchSize(size int) error {
	if size <= 0 {
		return ErrInvalidBatchSize
	}
	a.batchSize = size
	return nil
}

// Size returns the total number of (key, value) pairs ever appended.
func (a *AAD) Size() int { return a.forest.Count() }

// Keys returns every key ever appended, in first-append order.
func (a *AAD) Keys() [][]byte {
	keys := a.forest.Keys()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

// OccurrenceCount returns how many values have been appended under key.
func (a *AAD) OccurrenceCount(key []byte) int {
	return a.forest.OccurrenceCount(string(key))
}

// GetValues returns every value appended under key, in append order.
func (a *AAD) GetValues(key []byte) ([][]byte, error) {
	leaves := a.forest.Leaves(string(key))
	if len(leaves) == 0 {
		return nil, ErrKeyNotFound
	}
	out := make([][]byte, len(leaves))
	for i, l := range leaves {
		out[i] = l.Data.Value
	}
	return out, nil
}

// GetKeyByLeafNo returns the key stored at global append index i.
func (a *AAD) GetKeyByLeafNo(i int) ([]byte, error) {
	_, leaf, err := a.forest.TreeAndLeaf(i)
	if err != nil {
		return nil, ErrLeafIndexOutOfRange
	}
	return leaf.Data.Key, nil
}

// GetRootATs returns, for every current forest tree largest-first, the AT
// root accumulator carried at that tree's root node.
func (a *AAD) GetRootATs() []bn254.G1Affine {
	roots := a.forest.Roots()
	out := make([]bn254.G1Affine, len(roots))
	for i, r := range roots {
		out[i] = r.Data.Acc
	}
	return out
}

// ForestSizes returns the leaf count of every current forest tree,
// largest-first -- the same shape as GetRootATs.
func (a *AAD) ForestSizes() []int {
	return a.forest.Sizes()
}

// Append records a new (key, value) pair, growing the forest and cascading
// any merges the balanced-append protocol requires.
func (a *AAD) Append(key, value []byte) error {
	leafNo := a.forest.Count()
	d, err := a.newLeafData(key, value, leafNo)
	if err != nil {
		return err
	}
	a.forest.AppendLeaf(d, string(key))
	return nil
}

// GetDigest returns the public digest as of the dictionary's current state:
// one entry per forest tree, largest first.
func (a *AAD) GetDigest() digest.Digest {
	roots := a.forest.Roots()
	return a.digestFromRoots(roots)
}

// GetDigestAt returns the public digest as of the state immediately after
// the version'th append (1-based).
func (a *AAD) GetDigestAt(version int) (digest.Digest, error) {
	roots, err := a.forest.OldRoots(version)
	if err != nil {
		return nil, ErrVersionOutOfRange
	}
	return a.digestFromRoots(roots), nil
}

func (a *AAD) digestFromRoots(roots []*bintree.Node[data]) digest.Digest {
	d := make(digest.Digest, len(roots))
	for i, r := range roots {
		entry := digest.Entry{AccAT: r.Data.Acc, MerkleHash: r.Data.MerkleHash}
		if r.Data.Frontier != nil {
			if acc, err := r.Data.Frontier.RootAcc(); err == nil {
				entry.AccFrontier = acc
			}
		}
		d[i] = entry
	}
	return d
}

func log2Floor(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// newLeafData builds the payload for a freshly appended (key, value) leaf:
// a single-path accumulated tree, its polynomial commitment, and -- on even
// leaf indices when batchSize is 1 -- an immediate frontier.
func (a *AAD) newLeafData(key, value []byte, leafNo int) (data, error) {
	path := hashing.HashKeyValue(key, value, leafNo)
	at := accumtree.NewFromPath(TreeDepth, path)

	computeFrontier := a.batchSize == 1 && leafNo%2 == 0
	d, err := a.newInternalData(at, 1, computeFrontier)
	if err != nil {
		return data{}, err
	}
	d.IsLeaf = true
	d.Key = key
	d.Value = value
	d.LeafNo = leafNo

	if a.simulate {
		d.MerkleHash = hashing.Dummy
	} else {
		d.MerkleHash = hashing.ComputeLeafHash(d.Acc)
	}
	return d, nil
}

// newInternalData commits to at's characteristic polynomial and, if
// requested, builds a frontier over at's current gaps.
func (a *AAD) newInternalData(at *accumtree.AccumulatedTree, size int, computeFrontier bool) (data, error) {
	d := data{Size: size, AT: at}

	if a.simulate {
		d.Acc = randomG1()
		d.ExtAcc = randomG1()
	} else {
		prefixes := at.Prefixes()
		poly := polyops.FromRoots(hashing.HashToFieldBatch(prefixes))
		c, err := polycommit.CommitAll(a.pp, poly, true, false)
		if err != nil {
			return data{}, err
		}
		d.AccPoly = poly
		d.Acc = c.G1
		d.ExtAcc = c.G1Ext

		ok, err := pairing.Equal(d.Acc, a.pp.G2ToTau(), d.ExtAcc, a.g2One)
		if err != nil {
			return data{}, err
		}
		if !ok {
			return data{}, ErrExtractabilityCheckFailed
		}
	}

	if computeFrontier {
		front, err := a.buildFrontier(at)
		if err != nil {
			return data{}, err
		}
		d.Frontier = front

		if !a.simulate {
			if err := a.commitBezoutCoefficients(&d); err != nil {
				return data{}, err
			}
		}
	}
	return d, nil
}

// commitBezoutCoefficients proves the AT's accumulated prefixes and the
// frontier's accumulated missing prefixes are disjoint: since both
// polynomials are squarefree and coprime whenever no root is shared, the
// extended Euclidean algorithm producing x*atPoly + y*frontierPoly = 1
// exists only when the two sets of roots never overlap. Committing x and y
// to G2 lets a verifier check this without learning either polynomial. The
// committed coefficients are then asserted in the exponent, the same
// disjointness pairing check a verifier would run, so a bug upstream of the
// polynomial-level gcd (e.g. a mismatched acc_AT/acc_F pairing) is caught at
// construction time rather than silently shipped in the digest.
func (a *AAD) commitBezoutCoefficients(d *data) error {
	frontierPoly, err := d.Frontier.RootPoly()
	if err != nil {
		return err
	}
	x, y, gcd, err := polyops.ExtendedGCD(d.AccPoly, frontierPoly)
	if err != nil {
		return err
	}
	if polyops.Degree(gcd) != 0 {
		return ErrNotDisjoint
	}

	gx, err := polycommit.CommitG2(a.pp, x)
	if err != nil {
		return err
	}
	gy, err := polycommit.CommitG2(a.pp, y)
	if err != nil {
		return err
	}

	accF, err := d.Frontier.RootAcc()
	if err != nil {
		return err
	}
	ok, err := pairing.EqualProduct(d.Acc, gx, accF, gy, a.g1One, a.g2One)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotDisjoint
	}

	d.X = &gx
	d.Y = &gy
	return nil
}

// ErrNotDisjoint signals that a freshly built AT and its frontier share a
// root -- the frontier claimed a prefix as missing that the AT actually
// accumulated, an internal invariant violation.
var ErrNotDisjoint = errors.New("aad: accumulated tree and frontier are not disjoint")

// buildFrontier constructs the completeness accumulator for at's current
// gaps: every missing key prefix in the upper half, and, below each present
// key, every missing value prefix in sorted chunks of at most 4*SecParam
// prefixes.
func (a *AAD) buildFrontier(at *accumtree.AccumulatedTree) (*frontier.Frontier, error) {
	f := frontier.New(a.pp)

	upper, lowerRoots := at.UpperFrontier()
	for _, prefix := range upper {
		f.AddMissingKeyPrefix(prefix)
	}

	chunkSize := SecParam * 4
	for _, root := range lowerRoots {
		keyHash := root.Label()
		lower := at.LowerFrontier(keyHash, root)
		sortBitStrings(lower)
		for start := 0; start < len(lower); start += chunkSize {
			end := start + chunkSize
			if end > len(lower) {
				end = len(lower)
			}
			f.AddMissingValuesPrefixes(keyHash, lower[start:end])
		}
	}

	if err := f.Finalize(); err != nil {
		return nil, err
	}
	return f, nil
}

func sortBitStrings(bs []bitstring.BitString) {
	for i := 1; i < len(bs); i++ {
		for j := i; j > 0 && bs[j].Less(bs[j-1]); j-- {
			bs[j], bs[j-1] = bs[j-1], bs[j]
		}
	}
}

// ErrExtractabilityCheckFailed signals that a freshly computed commitment
// failed its own extractability pairing check -- an internal invariant
// violation, not an expected runtime condition.
var ErrExtractabilityCheckFailed = errors.New("aad: extractability check failed on fresh commitment")

// ErrSubsetProofFailed signals a non-exact polynomial division when
// computing a child's append-only witness against its parent -- the child's
// roots were not actually a subset of the parent's, an internal invariant
// violation.
var ErrSubsetProofFailed = errors.New("aad: child AT polynomial does not divide parent's")

// mergeFunc implements the forest's merge step: merge the two children's
// accumulated trees, optionally compute a frontier over the merged tree,
// commit the append-only subset witnesses binding each child to the new
// parent, and compute the Merkle overlay hash.
func (a *AAD) mergeFunc(left, right *bintree.Node[data], isLastMerge bool) data {
	parentSize := left.Data.Size + right.Data.Size
	parentLevel := log2Floor(left.Data.Size) + 1
	haveFullBatch := parentLevel-1 >= log2Floor(a.batchSize)
	computeFrontier := isLastMerge && haveFullBatch

	mergedAT, err := accumtree.Merge(left.Data.AT, right.Data.AT)
	if err != nil {
		logger.Error("merge failed", "err", err)
		panic(err)
	}

	parent, err := a.newInternalData(mergedAT, parentSize, computeFrontier)
	if err != nil {
		logger.Error("commit failed during merge", "err", err)
		panic(err)
	}

	if !a.simulate {
		if err := a.computeSubsetProof(&left.Data, &parent); err != nil {
			panic(err)
		}
		if err := a.computeSubsetProof(&right.Data, &parent); err != nil {
			panic(err)
		}
		parent.MerkleHash = hashing.ComputeMerkleHash(parent.Acc, left.Data.MerkleHash, right.Data.MerkleHash)
	} else {
		left.Data.SubsetProof = randomG2()
		right.Data.SubsetProof = randomG2()
		parent.MerkleHash = hashing.Dummy
	}

	freeAfterMerge(&left.Data)
	freeAfterMerge(&right.Data)
	return parent
}

// computeSubsetProof computes child's append-only witness against parent:
// g2^{quotient(s)} where quotient = parentPoly / childPoly, the witness a
// verifier uses to check that every root accumulated in child is still
// accumulated in parent.
func (a *AAD) computeSubsetProof(child, parent *data) error {
	quotient, err := polyops.ExactQuotient(parent.AccPoly, child.AccPoly)
	if err != nil {
		return ErrSubsetProofFailed
	}
	proof, err := polycommit.CommitG2(a.pp, quotient)
	if err != nil {
		return err
	}
	child.SubsetProof = proof

	ok, err := pairing.Equal(parent.Acc, a.g2One, child.Acc, child.SubsetProof)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSubsetProofFailed
	}
	return nil
}

// freeAfterMerge drops the fields only a current root needs, once a node
// has acquired a parent and is no longer one: its live AT (already
// consumed/merged away), its characteristic polynomial, its frontier, and
// any Bezout coefficients.
func freeAfterMerge(d *data) {
	d.AT = nil
	d.AccPoly = nil
	d.Frontier = nil
	d.X = nil
	d.Y = nil
}

func randomG1() bn254.G1Affine {
	var k fr.Element
	_, _ = k.SetRandom()
	_, _, g1Gen, _ := bn254.Generators()
	var kBig big.Int
	k.BigInt(&kBig)
	var out bn254.G1Affine
	out.ScalarMultiplication(&g1Gen, &kBig)
	return out
}

// membershipCopier builds the Merkle-overlay copier used by
// CompleteMembershipProof: roots and untouched siblings are pruned down to
// their bare essentials, and on-path leaves/ancestors carry what a verifier
// needs to recompute hashes and check subset proofs from scratch.
func membershipCopier() func(src *bintree.Node[data], dst *bintree.Node[proof.MerkleData], isSibling bool) {
	return func(src *bintree.Node[data], dst *bintree.Node[proof.MerkleData], isSibling bool) {
		if src == nil {
			return
		}
		if isSibling {
			// A node already copied as a leaf or on-path keeps that role.
			if dst.Data.Kind != proof.KindUnknown {
				return
			}
			dst.Data.Kind = proof.KindSibling
			dst.Data.MerkleHash = src.Data.MerkleHash
			return
		}
		if src.Data.IsLeaf {
			dst.Data.Kind = proof.KindLeaf
			dst.Data.IsLeafRecord = true
			dst.Data.Key = src.Data.Key
			dst.Data.Value = src.Data.Value
			dst.Data.LeafNo = src.Data.LeafNo
			dst.Data.SetSubsetProof(src.Data.SubsetProof)
			return
		}
		if src.IsRoot() {
			dst.Data.Kind = proof.KindRoot
			return
		}
		dst.Data.Kind = proof.KindOnPath
		dst.Data.SetAcc(src.Data.Acc)
		dst.Data.SetSubsetProof(src.Data.SubsetProof)
	}
}

// CompleteMembershipProof builds a proof of every value recorded under key,
// across every current forest tree, together with a completeness witness
// (a frontier proof) in each tree: either that key's values are covered by
// a lower-frontier chunk, or, where key never reached that tree, that some
// prefix of its hash is a genuinely missing upper-frontier node.
func (a *AAD) CompleteMembershipProof(key []byte) (*proof.MembershipProof, error) {
	roots := a.forest.Roots()
	keyHash := hashing.HashKey(key)
	leaves := a.forest.Leaves(string(key))

	leavesByRoot := make(map[*bintree.Node[data]][]*bintree.Node[data], len(roots))
	for _, l := range leaves {
		r := l.Root()
		leavesByRoot[r] = append(leavesByRoot[r], l)
	}

	copier := membershipCopier()
	trees := make([]*bintree.Node[proof.MerkleData], len(roots))
	frontierProofs := make([]*bintree.Node[frontier.ProofData], len(roots))

	for i, root := range roots {
		inTree := leavesByRoot[root]
		if len(inTree) == 0 {
			if root.Data.AT == nil {
				return nil, errors.New("aad: forest root missing its accumulated tree")
			}
			_, _, missingPrefix := root.Data.AT.Contains(keyHash)
			if root.Data.Frontier == nil {
				return nil, ErrMissingFrontierProof
			}
			fp, err := root.Data.Frontier.GetFrontierProof(missingPrefix, false)
			if err != nil {
				return nil, err
			}
			frontierProofs[i] = fp
			continue
		}

		proofTree := bintree.NewNode(proof.MerkleData{})
		for _, leaf := range inTree {
			bintree.CopyPathToRoot(leaf, proofTree, copier)
		}
		trees[i] = proofTree

		if root.Data.Frontier == nil {
			return nil, ErrMissingFrontierProof
		}
		fp, err := root.Data.Frontier.GetFrontierProof(keyHash, true)
		if err != nil {
			return nil, err
		}
		frontierProofs[i] = fp
	}

	return &proof.MembershipProof{Trees: trees, FrontierProofs: frontierProofs}, nil
}

// ErrMissingFrontierProof is returned by CompleteMembershipProof when a
// queried forest root has not yet had a frontier computed for it -- which
// can happen transiently with batch sizes greater than 1, where frontier
// computation is deferred until a merge produces a sufficiently tall
// subtree (see SetBatchSize).
var ErrMissingFrontierProof = errors.New("aad: forest root has no frontier yet")

// appendOnlyCopier builds the copier for AppendOnlyProof: paths from the
// current roots down to each historical root are kept, tagging the
// historical roots themselves so a verifier can check them against the old
// digest instead of recomputing them.
func appendOnlyCopier(oldRoots []*bintree.Node[data]) func(src *bintree.Node[data], dst *bintree.Node[proof.MerkleData], isSibling bool) {
	oldRootSet := make(map[*bintree.Node[data]]bool, len(oldRoots))
	for _, r := range oldRoots {
		oldRootSet[r] = true
	}
	return func(src *bintree.Node[data], dst *bintree.Node[proof.MerkleData], isSibling bool) {
		if src == nil {
			return
		}
		if isSibling {
			// A node already copied as an old root or on-path keeps that role.
			if dst.Data.Kind != proof.KindUnknown {
				return
			}
			dst.Data.Kind = proof.KindSibling
			dst.Data.MerkleHash = src.Data.MerkleHash
			return
		}
		// An old root that happens to still be a current root (its tree
		// never merged again after oldVersion) must be tagged KindOldRoot,
		// not KindRoot: checked before IsRoot so VerifyAppendOnly sees its
		// accumulator and can match it against the old digest.
		if oldRootSet[src] {
			dst.Data.Kind = proof.KindOldRoot
			dst.Data.SetAcc(src.Data.Acc)
			dst.Data.SetSubsetProof(src.Data.SubsetProof)
			return
		}
		if src.IsRoot() {
			dst.Data.Kind = proof.KindRoot
			return
		}
		dst.Data.Kind = proof.KindOnPath
		dst.Data.SetAcc(src.Data.Acc)
		dst.Data.SetSubsetProof(src.Data.SubsetProof)
	}
}

// AppendOnlyProof builds a proof that every root accumulated as of
// oldVersion is still accumulated into the dictionary's current roots.
func (a *AAD) AppendOnlyProof(oldVersion int) (*proof.AppendOnlyProof, error) {
	oldRoots, err := a.forest.OldRoots(oldVersion)
	if err != nil {
		return nil, ErrVersionOutOfRange
	}
	currentRoots := a.forest.Roots()
	trees := bintree.CopyMerklePaths(currentRoots, oldRoots, appendOnlyCopier(oldRoots))
	return &proof.AppendOnlyProof{Trees: trees}, nil
}

func randomG2() bn254.G2Affine {
	var k fr.Element
	_, _ = k.SetRandom()
	_, _, _, g2Gen := bn254.Generators()
	var kBig big.Int
	k.BigInt(&kBig)
	var out bn254.G2Affine
	out.ScalarMultiplication(&g2Gen, &kBig)
	return out
}
