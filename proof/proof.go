// Package proof implements the two proof types an authenticated dictionary
// issues against a published digest: a membership proof (a key's values,
// together with a completeness witness that no further value was
// withheld) and an append-only proof (that every root the dictionary
// published at an earlier version is still accumulated into its current
// roots). Both are built as pruned Merkle-overlay subtrees -- the same
// copy-path-to-root-then-prune shape the frontier package uses for its own
// proofs -- and verified by re-deriving leaf accumulators and hashes
// bottom-up and checking pairings at every step. Untouched siblings' Merkle
// hashes are taken from the proof as carried, and frontier-proof leaves are
// not recomputed by the verifier.
package proof

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/alinush/go-aad/accumtree"
	"github.com/alinush/go-aad/bintree"
	"github.com/alinush/go-aad/digest"
	"github.com/alinush/go-aad/frontier"
	"github.com/alinush/go-aad/hashing"
	"github.com/alinush/go-aad/pairing"
	"github.com/alinush/go-aad/params"
	"github.com/alinush/go-aad/polycommit"
	"github.com/alinush/go-aad/polyops"
)

var (
	// ErrKeyMismatch is returned by VerifyMembership when a proof's leaf
	// claims a different key than the one being verified.
	ErrKeyMismatch = errors.New("proof: leaf key does not match queried key")
	// ErrMerkleRootMismatch is returned when a recomputed Merkle root does
	// not match the one published in the digest.
	ErrMerkleRootMismatch = errors.New("proof: recomputed Merkle root does not match digest")
	// ErrSubsetProofInvalid is returned when a node's append-only witness
	// fails its pairing check against its parent.
	ErrSubsetProofInvalid = errors.New("proof: subset proof failed pairing check")
	// ErrFrontierInvalid is returned when a frontier proof fails its
	// internal pairing checks.
	ErrFrontierInvalid = errors.New("proof: frontier proof failed pairing check")
	// ErrDigestLengthMismatch is returned when a proof's tree count does not
	// match the digest it is being checked against.
	ErrDigestLengthMismatch = errors.New("proof: proof and digest have different tree counts")
	ErrOldRootMismatch      = errors.New("proof: old root accumulator does not match old digest")
	ErrMissingFrontierProof = errors.New("proof: tree has no frontier proof to check completeness")
)

// Kind tags what role a Merkle-overlay proof node plays, mirroring the
// frontier proof's own Kind tagging.
type Kind int

const (
	KindUnknown Kind = iota
	KindLeaf            // a real (key, value) leaf, with leafData populated
	KindSibling         // an untouched sibling pruned down to just its Merkle hash
	KindOnPath          // an ancestor of a touched leaf, carrying its subset proof
	KindOldRoot         // a historical root being proven still-accumulated (append-only proofs only)
	KindRoot            // the root of the proof subtree
)

// MerkleData is the payload of one node in a membership or append-only
// proof's Merkle-overlay subtree.
type MerkleData struct {
	Kind Kind

	acc         *bn254.G1Affine
	subsetProof *bn254.G2Affine

	MerkleHash hashing.MerkleHash

	IsLeafRecord bool
	Key          []byte
	Value        []byte
	LeafNo       int
}

func (d *MerkleData) HasAcc() bool { return d.acc != nil }
func (d *MerkleData) Acc() bn254.G1Affine {
	return *d.acc
}
func (d *MerkleData) SetAcc(v bn254.G1Affine) { d.acc = &v }

func (d *MerkleData) HasSubsetProof() bool { return d.subsetProof != nil }
func (d *MerkleData) SubsetProof() bn254.G2Affine {
	return *d.subsetProof
}
func (d *MerkleData) SetSubsetProof(v bn254.G2Affine) { d.subsetProof = &v }

// MembershipProof proves which values are recorded under a key across every
// forest tree, plus -- for trees where the key is absent -- that its
// absence is genuine (a missing-prefix witness in that tree's frontier).
type MembershipProof struct {
	Trees          []*bintree.Node[MerkleData]
	FrontierProofs []*bintree.Node[frontier.ProofData]
}

// AppendOnlyProof proves that every root accumulated as of an earlier
// version is still accumulated into the dictionary's current roots.
type AppendOnlyProof struct {
	Trees []*bintree.Node[MerkleData]
}

func g2Generator() bn254.G2Affine {
	_, _, _, g2 := bn254.Generators()
	return g2
}

func g1Generator() bn254.G1Affine {
	_, _, g1, _ := bn254.Generators()
	return g1
}

// recomputeLeafAcc rebuilds the accumulator a leaf's (key, value, leafNo)
// triple should commit to, the way a verifier independently re-derives it
// rather than trusting the prover's copy.
func recomputeLeafAcc(pp *params.PublicParameters, key, value []byte, leafNo int) (bn254.G1Affine, error) {
	path := hashing.HashKeyValue(key, value, leafNo)
	at := accumtree.NewFromPath(hashing.KeyValueHashBits, path)
	poly := polyops.FromRoots(hashing.HashToFieldBatch(at.Prefixes()))
	return polycommit.CommitG1(pp, poly, false)
}

// VerifyMembership checks proof against digest for the given key. It takes
// no expected values: the values are the ones the proof's leaves carry, and
// no check is made that they form any particular set.
func VerifyMembership(pp *params.PublicParameters, proof *MembershipProof, key []byte, digest digest.Digest) (bool, error) {
	if len(proof.Trees) != len(digest) || len(proof.FrontierProofs) != len(digest) {
		return false, ErrDigestLengthMismatch
	}

	for i, tree := range proof.Trees {
		entry := digest[i]

		if tree == nil {
			// Key absent from this forest tree: completeness rests entirely
			// on the frontier proof below.
		} else {
			// Seed every internal/root node's accumulator from the digest;
			// leaf accumulators (possibly including the tree root itself,
			// when the tree has exactly one leaf) are overwritten below by
			// independent recomputation.
			tree.Data.SetAcc(entry.AccAT)

			leaves := collectLeaves(tree)
			for _, leaf := range leaves {
				if string(leaf.Data.Key) != string(key) {
					return false, ErrKeyMismatch
				}
				acc, err := recomputeLeafAcc(pp, leaf.Data.Key, leaf.Data.Value, leaf.Data.LeafNo)
				if err != nil {
					return false, err
				}
				leaf.Data.SetAcc(acc)
			}

			if err := computeMerkleHashes(tree); err != nil {
				return false, err
			}
			if !tree.Data.MerkleHash.Equal(entry.MerkleHash) {
				return false, ErrMerkleRootMismatch
			}

			ok, err := verifySubsetProofs(tree)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, ErrSubsetProofInvalid
			}
		}

		frontierRoot := proof.FrontierProofs[i]
		if frontierRoot == nil {
			return false, ErrMissingFrontierProof
		}
		frontierRoot.Data.SetG1(entry.AccFrontier)
		ok, err := VerifyFrontierProof(frontierRoot, pp)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrFrontierInvalid
		}
	}
	return true, nil
}

func collectLeaves(root *bintree.Node[MerkleData]) []*bintree.Node[MerkleData] {
	var out []*bintree.Node[MerkleData]
	root.PreorderTraverse(func(n *bintree.Node[MerkleData]) {
		if n.Data.Kind == KindLeaf && n.Data.IsLeafRecord {
			out = append(out, n)
		}
	})
	return out
}

// computeMerkleHashes fills in MerkleHash bottom-up for every node on the
// proof path, trusting only leaf accumulators (just recomputed) and
// untouched-sibling hashes (carried in the proof, unverifiable on their
// own -- their integrity rides on the subset-proof pairing check instead).
func computeMerkleHashes(node *bintree.Node[MerkleData]) error {
	if node == nil {
		return nil
	}
	if node.Data.Kind == KindLeaf {
		if !node.Data.HasAcc() {
			return errors.New("proof: leaf missing accumulator")
		}
		node.Data.MerkleHash = hashing.ComputeLeafHash(node.Data.Acc())
		return nil
	}
	if node.Data.Kind == KindSibling {
		return nil // MerkleHash already carried from the prover
	}
	left, right := node.Child(0), node.Child(1)
	if err := computeMerkleHashes(left); err != nil {
		return err
	}
	if err := computeMerkleHashes(right); err != nil {
		return err
	}
	if !node.Data.HasAcc() {
		return errors.New("proof: internal node missing accumulator")
	}
	node.Data.MerkleHash = hashing.ComputeMerkleHash(node.Data.Acc(), left.Data.MerkleHash, right.Data.MerkleHash)
	return nil
}

// verifySubsetProofs recursively checks that every child's accumulator is
// genuinely subsumed by its parent's: e(parentAcc, g2one) == e(childAcc,
// childSubsetProof).
func verifySubsetProofs(node *bintree.Node[MerkleData]) (bool, error) {
	if node == nil || node.Data.Kind == KindLeaf {
		return true, nil
	}
	g2One := g2Generator()
	for _, bit := range [2]byte{0, 1} {
		child := node.Child(bit)
		if child == nil {
			continue
		}
		if child.Data.Kind == KindSibling && !child.Data.HasAcc() {
			continue
		}
		if !child.Data.HasSubsetProof() {
			return false, nil
		}
		ok, err := pairing.Equal(node.Data.Acc(), g2One, child.Data.Acc(), child.Data.SubsetProof())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if child.Data.Kind != KindLeaf && child.Data.Kind != KindSibling {
			ok, err := verifySubsetProofs(child)
			if err != nil || !ok {
				return ok, err
			}
		}
	}
	return true, nil
}

// VerifyFrontierProof recursively checks a frontier proof's internal
// consistency: every non-leaf node's accumulator matches the pairing of its
// children's accumulators, one of which must carry a G2 commitment. A node
// whose two children are both leaves is not pairing-checked, and leaf
// commitments are not recomputed.
func VerifyFrontierProof(root *bintree.Node[frontier.ProofData], pp *params.PublicParameters) (bool, error) {
	if root.IsLeaf() {
		return true, nil
	}

	left, right := root.Child(0), root.Child(1)
	if left == nil || right == nil {
		return false, errors.New("proof: frontier node missing a child")
	}

	g1One, g2One := g1Generator(), g2Generator()

	if !root.Data.HasG1() {
		return false, errors.New("proof: frontier node missing accumulator")
	}

	var acc1 bn254.G1Affine
	var acc2 bn254.G2Affine
	skipPairingCheck := false
	switch {
	case left.Data.HasG2():
		if !right.Data.HasG1() {
			return false, nil
		}
		acc1, acc2 = right.Data.G1(), left.Data.G2()
	case right.Data.HasG2():
		if !left.Data.HasG1() {
			return false, nil
		}
		acc1, acc2 = left.Data.G1(), right.Data.G2()
	default:
		// Neither child carries a G2 commitment: leaf nodes never commit G2,
		// so this is only valid when both children are leaves -- the same
		// configuration the frontier's own construction-time consistency
		// check (assertFinalized) skips, since poly_parent = poly_left *
		// poly_right has no pairing-checkable witness at this level without
		// a G2 side.
		isLeafKind := func(k frontier.Kind) bool { return k == frontier.KindLeaf || k == frontier.KindSiblingLeaf }
		if !isLeafKind(left.Data.Kind) || !isLeafKind(right.Data.Kind) {
			return false, errors.New("proof: frontier node missing a G2 commitment")
		}
		skipPairingCheck = true
	}

	if !skipPairingCheck {
		ok, err := pairing.Equal(root.Data.G1(), g2One, acc1, acc2)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if root.Data.Kind != frontier.KindLeaf && root.Data.HasG1() && root.Data.HasG2() {
		ok, err := pairing.Equal(root.Data.G1(), g2One, g1One, root.Data.G2())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	l, err := VerifyFrontierProof(left, pp)
	if err != nil || !l {
		return l, err
	}
	return VerifyFrontierProof(right, pp)
}

// VerifyAppendOnly checks that oldDigest's roots are all still accumulated
// into newDigest's roots, via proof's subset-proof chains from each old
// root up to its corresponding current tree root.
func VerifyAppendOnly(proof *AppendOnlyProof, oldDigest, newDigest digest.Digest) (bool, error) {
	if len(proof.Trees) != len(newDigest) {
		return false, ErrDigestLengthMismatch
	}

	oldByAcc := make(map[bn254.G1Affine]bool, len(oldDigest))
	for _, e := range oldDigest {
		oldByAcc[e.AccAT] = true
	}

	found := make(map[bn254.G1Affine]bool, len(oldDigest))
	for i, tree := range proof.Trees {
		if tree == nil {
			continue
		}
		tree.Data.SetAcc(newDigest[i].AccAT)

		var markOld func(n *bintree.Node[MerkleData])
		markOld = func(n *bintree.Node[MerkleData]) {
			if n == nil {
				return
			}
			if n.Data.Kind == KindOldRoot && n.Data.HasAcc() {
				found[n.Data.Acc()] = true
			}
			markOld(n.Child(0))
			markOld(n.Child(1))
		}
		markOld(tree)

		ok, err := verifySubsetProofsAppendOnly(tree)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	for acc := range oldByAcc {
		if !found[acc] {
			return false, nil
		}
	}
	return true, nil
}

// verifySubsetProofsAppendOnly is verifySubsetProofs generalized to stop
// descending at KindOldRoot nodes (whose own accumulator is itself the
// fact being proven, not a node the verifier recomputes further).
func verifySubsetProofsAppendOnly(node *bintree.Node[MerkleData]) (bool, error) {
	if node == nil || node.Data.Kind == KindOldRoot {
		return true, nil
	}
	g2One := g2Generator()
	for _, bit := range [2]byte{0, 1} {
		child := node.Child(bit)
		if child == nil {
			continue
		}
		if child.Data.Kind == KindSibling && !child.Data.HasAcc() {
			continue
		}
		if !child.Data.HasAcc() || !child.Data.HasSubsetProof() {
			return false, nil
		}
		ok, err := pairing.Equal(node.Data.Acc(), g2One, child.Data.Acc(), child.Data.SubsetProof())
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		ok, err = verifySubsetProofsAppendOnly(child)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}
