// Package accumtree implements the accumulated tree: a fixed-depth binary
// prefix trie over bit-string hashes, used both to record which hash
// prefixes a dictionary has ever produced and, via polycommit, to commit to
// the characteristic polynomial of those prefixes. The tree itself carries
// no per-node payload -- struct{} -- since the accumulation happens at the
// polynomial-commitment layer, not in the tree.
package accumtree

import (
	"errors"

	"github.com/alinush/go-aad/bintree"
	"github.com/alinush/go-aad/bitstring"
)

// ErrMaxDepthMismatch is returned by Merge when the two trees were built
// with different maxDepth values.
var ErrMaxDepthMismatch = errors.New("accumtree: maxDepth mismatch")

// ErrKeyNotFound is returned by LowerFrontierForKey when the given hash has
// no corresponding path in the tree.
var ErrKeyNotFound = errors.New("accumtree: hash not found in tree")

type leafData = struct{}

// AccumulatedTree is a fixed-depth prefix trie over bit-string hashes.
type AccumulatedTree struct {
	root     *bintree.Node[leafData]
	maxDepth int
}

// New creates an empty accumulated tree with the given maximum prefix depth.
func New(maxDepth int) *AccumulatedTree {
	return &AccumulatedTree{root: bintree.NewNode(leafData{}), maxDepth: maxDepth}
}

// NewFromPath creates a tree and immediately appends path to it.
func NewFromPath(maxDepth int, path bitstring.BitString) *AccumulatedTree {
	at := New(maxDepth)
	at.Append(path)
	return at
}

// Append inserts every prefix of path into the tree, creating any missing
// nodes along the way. Calling Append twice with overlapping prefixes is
// safe: existing nodes are reused.
func (at *AccumulatedTree) Append(path bitstring.BitString) {
	parent := at.root
	for i := 0; i < path.Len(); i++ {
		bit := path.Bit(i)
		child := parent.Child(bit)
		if child == nil {
			child = bintree.NewNode(leafData{})
			parent.SetChild(child, bit)
		}
		parent = child
	}
}

// Size returns the total number of nodes in the tree, including the root.
func (at *AccumulatedTree) Size() int {
	count := 0
	at.root.PreorderTraverse(func(*bintree.Node[leafData]) { count++ })
	return count
}

// Prefixes returns every prefix (including the empty root prefix) currently
// in the tree, in preorder. Used to build the tree's characteristic
// polynomial before committing to it.
func (at *AccumulatedTree) Prefixes() []bitstring.BitString {
	var out []bitstring.BitString
	at.root.PreorderTraverse(func(n *bintree.Node[leafData]) {
		out = append(out, n.Label())
	})
	return out
}

// Contains reports whether hash's full path exists in the tree. If it does
// not, it also returns the node reached before the walk stopped and the
// label of the first missing prefix -- the non-membership witness.
func (at *AccumulatedTree) Contains(hash bitstring.BitString) (found bool, node *bintree.Node[leafData], missingPrefix bitstring.BitString) {
	return at.root.FindNode(hash)
}

func getFrontierHelper(node *bintree.Node[leafData], label bitstring.BitString, frontier *[]bitstring.BitString, lowerRoots *[]*bintree.Node[leafData], levelsLeft int, includeLowerRoots bool) {
	leftLabel := label.Appended(0)
	rightLabel := label.Appended(1)

	if left := node.Child(0); left != nil {
		getFrontierHelper(left, leftLabel, frontier, lowerRoots, levelsLeft-1, includeLowerRoots)
	} else if levelsLeft > 0 {
		*frontier = append(*frontier, leftLabel)
	}

	if right := node.Child(1); right != nil {
		getFrontierHelper(right, rightLabel, frontier, lowerRoots, levelsLeft-1, includeLowerRoots)
	} else if levelsLeft > 0 {
		*frontier = append(*frontier, rightLabel)
	}

	if includeLowerRoots && levelsLeft == 0 {
		*lowerRoots = append(*lowerRoots, node)
	}
}

// FullFrontier returns every missing prefix below the tree's current
// leaves, down to maxDepth.
func (at *AccumulatedTree) FullFrontier() []bitstring.BitString {
	var frontier []bitstring.BitString
	var lowerRoots []*bintree.Node[leafData]
	getFrontierHelper(at.root, bitstring.Empty(), &frontier, &lowerRoots, at.maxDepth, false)
	return frontier
}

// UpperFrontier returns the missing prefixes in the top half of the tree
// (down to maxDepth/2) together with the nodes at exactly that depth, which
// serve as the roots of the lower subtrees LowerFrontier descends into.
func (at *AccumulatedTree) UpperFrontier() (frontier []bitstring.BitString, lowerRoots []*bintree.Node[leafData]) {
	getFrontierHelper(at.root, bitstring.Empty(), &frontier, &lowerRoots, at.maxDepth/2, true)
	return frontier, lowerRoots
}

// LowerFrontier returns the missing prefixes below lowerRoot, a node
// labeled nodeLabel, down to the tree's maxDepth.
func (at *AccumulatedTree) LowerFrontier(nodeLabel bitstring.BitString, lowerRoot *bintree.Node[leafData]) []bitstring.BitString {
	var frontier []bitstring.BitString
	var dummy []*bintree.Node[leafData]
	getFrontierHelper(lowerRoot, nodeLabel, &frontier, &dummy, at.maxDepth-nodeLabel.Len(), false)
	return frontier
}

// LowerFrontierForKey locates hashOfKey in the tree and returns the missing
// prefixes below it -- the frontier nodes needed to prove completeness of
// membership for every value recorded under that key.
func (at *AccumulatedTree) LowerFrontierForKey(hashOfKey bitstring.BitString) ([]bitstring.BitString, error) {
	found, node, _ := at.root.FindNode(hashOfKey)
	if !found {
		return nil, ErrKeyNotFound
	}
	return at.LowerFrontier(hashOfKey, node), nil
}

func mergeTreesHelper(dest, src *bintree.Node[leafData]) {
	for _, bit := range [2]byte{1, 0} {
		destChild := dest.Child(bit)
		srcChild := src.Child(bit)
		switch {
		case destChild == nil && srcChild != nil:
			src.DisownChild(bit)
			dest.SetChild(srcChild, bit)
		case destChild != nil && srcChild != nil:
			mergeTreesHelper(destChild, srcChild)
		}
	}
}

// Merge restitches right's tree into left's, mutating and returning left.
// right must not be used afterwards.
func Merge(left, right *AccumulatedTree) (*AccumulatedTree, error) {
	if left.maxDepth != right.maxDepth {
		return nil, ErrMaxDepthMismatch
	}
	mergeTreesHelper(left.root, right.root)
	return left, nil
}
