// Package bintree implements the owned binary node graph shared by the
// accumulated tree, the frontier, the append-only forest, and the
// Merkle-overlay proof trees: a generic Node[T] with exclusive child
// ownership and a non-owning parent back-reference, a Forest[T] implementing
// the balanced-merge append protocol and historical-root recovery, and an
// IndexedForest[K,T] layering a key-to-leaves index on top for the
// dictionary's per-key leaf lookups.
package bintree

import (
	"errors"

	"github.com/alinush/go-aad/bitstring"
)

// ErrEmptyForest names the empty-forest condition; no function in this
// package returns it.
var ErrEmptyForest = errors.New("bintree: forest is empty")

// ErrVersionOutOfRange is returned by OldRoots for v <= 0 or v > count.
var ErrVersionOutOfRange = errors.New("bintree: version out of range")

// ErrProtocolViolation signals forest/tree state that should be unreachable
// under correct use: a missing child during traversal, an unbalanced size
// table, or similar internal-invariant breaks.
var ErrProtocolViolation = errors.New("bintree: protocol violation")

// Node is a binary tree node owning up to two children, generic over a
// payload type T. The zero value is not usable; construct with NewNode.
type Node[T any] struct {
	left, right *Node[T]
	parent      *Node[T]
	bit         byte // which child of parent this node is; meaningless at the root

	Data T
}

// NewNode allocates a node carrying data, with no children or parent.
func NewNode[T any](data T) *Node[T] {
	return &Node[T]{Data: data}
}

// IsRoot reports whether n has no parent.
func (n *Node[T]) IsRoot() bool { return n.parent == nil }

// IsLeaf reports whether n has no children.
func (n *Node[T]) IsLeaf() bool { return n.left == nil && n.right == nil }

// HasTwoChildren reports whether both children are present.
func (n *Node[T]) HasTwoChildren() bool { return n.left != nil && n.right != nil }

// HasChild reports whether the child in direction bit (0=left, 1=right) is
// present.
func (n *Node[T]) HasChild(bit byte) bool { return n.Child(bit) != nil }

// Child returns the child in direction bit (0=left, 1=right), or nil.
func (n *Node[T]) Child(bit byte) *Node[T] {
	if bit == 0 {
		return n.left
	}
	return n.right
}

// Parent returns n's parent, or nil at the root.
func (n *Node[T]) Parent() *Node[T] { return n.parent }

// SetChild attaches child as n's child in direction bit, taking ownership:
// child's parent pointer is rewritten to n. Passing nil detaches without
// reparenting (use DisownChild to detach while keeping the detached node).
func (n *Node[T]) SetChild(child *Node[T], bit byte) {
	if bit == 0 {
		n.left = child
	} else {
		n.right = child
	}
	if child != nil {
		child.parent = n
		child.bit = bit
	}
}

// DisownChild detaches and returns the child in direction bit, clearing its
// parent pointer. Returns nil if there was no such child.
func (n *Node[T]) DisownChild(bit byte) *Node[T] {
	c := n.Child(bit)
	if bit == 0 {
		n.left = nil
	} else {
		n.right = nil
	}
	if c != nil {
		c.parent = nil
	}
	return c
}

// Bit reports which child of its parent n is. Fails at the root.
func (n *Node[T]) Bit() (byte, error) {
	if n.parent == nil {
		return 0, errors.New("bintree: root has no bit")
	}
	return n.bit, nil
}

// Sibling returns n's sibling under its parent, or nil at the root.
func (n *Node[T]) Sibling() *Node[T] {
	if n.parent == nil {
		return nil
	}
	if n.bit == 0 {
		return n.parent.right
	}
	return n.parent.left
}

// Root walks up to and returns the root of n's tree.
func (n *Node[T]) Root() *Node[T] {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Height returns the number of edges from n up to the root.
func (n *Node[T]) Height() int {
	h := 0
	for cur := n; cur.parent != nil; cur = cur.parent {
		h++
	}
	return h
}

// Label reconstructs n's path from the root as a BitString.
func (n *Node[T]) Label() bitstring.BitString {
	var bits []byte
	for cur := n; cur.parent != nil; cur = cur.parent {
		bits = append(bits, cur.bit)
	}
	for i, j := 0, len(bits)-1; i < j; i, j = i+1, j-1 {
		bits[i], bits[j] = bits[j], bits[i]
	}
	return bitstring.FromBits(bits...)
}

// FindNode walks down from n (treated as a root) following bs's bits,
// stopping at the first missing child. It returns whether the full path
// existed, the last node actually visited, and -- when the walk stopped
// early -- the label of the missing child.
func (n *Node[T]) FindNode(bs bitstring.BitString) (found bool, last *Node[T], missingPrefix bitstring.BitString) {
	cur := n
	for i := 0; i < bs.Len(); i++ {
		bit := bs.Bit(i)
		child := cur.Child(bit)
		if child == nil {
			return false, cur, bs.Prefix(i + 1)
		}
		cur = child
	}
	return true, cur, bitstring.Empty()
}

// PreorderTraverse visits n and its descendants root-left-right.
func (n *Node[T]) PreorderTraverse(fn func(*Node[T])) {
	if n == nil {
		return
	}
	fn(n)
	n.left.PreorderTraverse(fn)
	n.right.PreorderTraverse(fn)
}

// InorderTraverse visits n and its descendants left-root-right.
func (n *Node[T]) InorderTraverse(fn func(*Node[T])) {
	if n == nil {
		return
	}
	n.left.InorderTraverse(fn)
	fn(n)
	n.right.InorderTraverse(fn)
}

// CopyPathToRoot copies the path from leaf up to its tree's root into dest,
// creating destination nodes as needed, invoking copier on every node
// touched. The root is always reported on-path (isSibling=false); for every
// bit along leaf's label, copier is invoked for the on-path child first and
// the sibling second -- callers that compute pruning rules based on which
// neighbor is already populated depend on that order.
func CopyPathToRoot[S, D any](leaf *Node[S], dest *Node[D], copier func(src *Node[S], dst *Node[D], isSibling bool)) {
	label := leaf.Label()
	root := leaf.Root()

	copier(root, dest, false)

	srcCur, dstCur := root, dest
	for i := 0; i < label.Len(); i++ {
		bit := label.Bit(i)
		sibBit := byte(1 - bit)

		child := srcCur.Child(bit)
		sibling := srcCur.Child(sibBit)

		childDest := dstCur.Child(bit)
		if childDest == nil {
			var zero D
			childDest = NewNode(zero)
			dstCur.SetChild(childDest, bit)
		}
		siblingDest := dstCur.Child(sibBit)
		if siblingDest == nil {
			var zero D
			siblingDest = NewNode(zero)
			dstCur.SetChild(siblingDest, sibBit)
		}

		copier(child, childDest, false)
		copier(sibling, siblingDest, true)

		srcCur, dstCur = child, childDest
	}
}

// CopyMerklePaths builds, for every tree in roots, the union of source-to-
// root paths for the nodes in that tree appearing in nodes. The result has
// one entry per root, in the same order, nil where no node in nodes belongs
// to that tree.
func CopyMerklePaths[T, M any](roots []*Node[T], nodes []*Node[T], copier func(src *Node[T], dst *Node[M], isSibling bool)) []*Node[M] {
	rootIndex := make(map[*Node[T]]int, len(roots))
	for i, r := range roots {
		rootIndex[r] = i
	}

	out := make([]*Node[M], len(roots))
	for _, n := range nodes {
		idx, ok := rootIndex[n.Root()]
		if !ok {
			continue
		}
		if out[idx] == nil {
			var zero M
			out[idx] = NewNode(zero)
		}
		CopyPathToRoot(n, out[idx], copier)
	}
	return out
}

// MergeFunc computes a parent's payload from its two about-to-be-merged
// children. isLastMerge reports whether this is the final merge triggered
// by the append that caused it (no further cascade will immediately follow).
type MergeFunc[T any] func(left, right *Node[T], isLastMerge bool) T

// Forest is an ordered list of trees of strictly decreasing, power-of-two
// sizes, implementing the append-then-cascade-merge protocol.
type Forest[T any] struct {
	sizes []int
	roots []*Node[T]
	count int
	merge MergeFunc[T]
}

// NewForest creates an empty forest using merge to combine equal-sized
// trailing trees.
func NewForest[T any](merge MergeFunc[T]) *Forest[T] {
	return &Forest[T]{merge: merge}
}

// Count returns the total number of leaves ever appended.
func (f *Forest[T]) Count() int { return f.count }

// NumTrees returns the number of trees currently in the forest.
func (f *Forest[T]) NumTrees() int { return len(f.roots) }

// Roots returns the current tree roots, largest first.
func (f *Forest[T]) Roots() []*Node[T] {
	out := make([]*Node[T], len(f.roots))
	copy(out, f.roots)
	return out
}

// Sizes returns the current tree sizes, largest first.
func (f *Forest[T]) Sizes() []int {
	out := make([]int, len(f.sizes))
	copy(out, f.sizes)
	return out
}

// AppendLeaf appends leaf as a new size-1 tree and runs the merge cascade,
// returning leaf's global append index.
func (f *Forest[T]) AppendLeaf(leaf *Node[T]) int {
	idx := f.count
	f.sizes = append(f.sizes, 1)
	f.roots = append(f.roots, leaf)
	f.count++
	f.cascadeMerges()
	return idx
}

func (f *Forest[T]) cascadeMerges() {
	for len(f.sizes) >= 2 && f.sizes[len(f.sizes)-1] == f.sizes[len(f.sizes)-2] {
		n := len(f.sizes)
		leftSize, rightSize := f.sizes[n-2], f.sizes[n-1]
		leftRoot, rightRoot := f.roots[n-2], f.roots[n-1]
		newSize := leftSize + rightSize

		isLastMerge := true
		if n-3 >= 0 && f.sizes[n-3] == newSize {
			isLastMerge = false
		}

		data := f.merge(leftRoot, rightRoot, isLastMerge)
		parent := NewNode(data)
		parent.SetChild(leftRoot, 0)
		parent.SetChild(rightRoot, 1)

		f.sizes = f.sizes[:n-2]
		f.roots = f.roots[:n-2]
		f.sizes = append(f.sizes, newSize)
		f.roots = append(f.roots, parent)
	}
}

// MergeAllRoots merges every current tree into a single tree, regardless of
// size balance, right-to-left. Used by the frontier to flatten its internal
// leaf forest into one tree before committing. Returns nil on an empty
// forest.
func (f *Forest[T]) MergeAllRoots() *Node[T] {
	for len(f.roots) > 1 {
		n := len(f.roots)
		leftRoot, rightRoot := f.roots[n-2], f.roots[n-1]
		leftSize, rightSize := f.sizes[n-2], f.sizes[n-1]

		data := f.merge(leftRoot, rightRoot, len(f.roots) == 2)
		parent := NewNode(data)
		parent.SetChild(leftRoot, 0)
		parent.SetChild(rightRoot, 1)

		f.roots = f.roots[:n-2]
		f.sizes = f.sizes[:n-2]
		f.roots = append(f.roots, parent)
		f.sizes = append(f.sizes, leftSize+rightSize)
	}
	if len(f.roots) == 0 {
		return nil
	}
	return f.roots[0]
}

func log2Floor(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

func largestPowerOfTwoLE(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// TreeAndLeaf returns the tree root and the leaf node at 0-based global
// append index leafIndex.
func (f *Forest[T]) TreeAndLeaf(leafIndex int) (tree *Node[T], leaf *Node[T], err error) {
	if leafIndex < 0 || leafIndex >= f.count {
		return nil, nil, ErrProtocolViolation
	}
	base := 0
	for i, size := range f.sizes {
		if leafIndex < base+size {
			local := leafIndex - base
			numBits := log2Floor(size)
			path := bitstring.FromUint(uint64(local), numBits)
			found, node, _ := f.roots[i].FindNode(path)
			if !found {
				return nil, nil, ErrProtocolViolation
			}
			return f.roots[i], node, nil
		}
		base += size
	}
	return nil, nil, ErrProtocolViolation
}

// OldRoots returns the ordered list of historical subtree roots (largest
// first) representing the forest exactly as it stood after the first
// version appends. version must be in [1, Count()].
func (f *Forest[T]) OldRoots(version int) ([]*Node[T], error) {
	if version <= 0 || version > f.count {
		return nil, ErrVersionOutOfRange
	}
	var out []*Node[T]
	leafBase := 0
	remaining := version
	for remaining > 0 {
		size := largestPowerOfTwoLE(remaining)
		_, leaf, err := f.TreeAndLeaf(leafBase)
		if err != nil {
			return nil, err
		}
		sub := leaf
		for i := 0; i < log2Floor(size); i++ {
			if sub.parent == nil {
				return nil, ErrProtocolViolation
			}
			sub = sub.parent
		}
		out = append(out, sub)
		leafBase += size
		remaining -= size
	}
	return out, nil
}

// IndexedForest layers a per-key leaf index over a Forest, preserving
// append order within each key's leaf list.
type IndexedForest[K comparable, T any] struct {
	*Forest[T]
	keyToLeaves map[K][]*Node[T]
	keyOrder    []K
}

// NewIndexedForest creates an empty indexed forest.
func NewIndexedForest[K comparable, T any](merge MergeFunc[T]) *IndexedForest[K, T] {
	return &IndexedForest[K, T]{
		Forest:      NewForest(merge),
		keyToLeaves: make(map[K][]*Node[T]),
	}
}

// AppendLeaf appends a new leaf carrying data, indexed under key, and
// returns its global append index.
func (f *IndexedForest[K, T]) AppendLeaf(data T, key K) int {
	leaf := NewNode(data)
	idx := f.Forest.AppendLeaf(leaf)
	if _, ok := f.keyToLeaves[key]; !ok {
		f.keyOrder = append(f.keyOrder, key)
	}
	f.keyToLeaves[key] = append(f.keyToLeaves[key], leaf)
	return idx
}

// Leaves returns the leaves registered under key, in append order.
func (f *IndexedForest[K, T]) Leaves(key K) []*Node[T] {
	return f.keyToLeaves[key]
}

// OccurrenceCount returns the number of leaves registered under key.
func (f *IndexedForest[K, T]) OccurrenceCount(key K) int {
	return len(f.keyToLeaves[key])
}

// Keys returns every key that has ever been appended, in first-append order.
func (f *IndexedForest[K, T]) Keys() []K {
	out := make([]K, len(f.keyOrder))
	copy(out, f.keyOrder)
	return out
}
