// node/node.go
// Package node defines the immutable, content-addressed node representation
// that every AVL+ tree algorithm operates over. A Node is built once by its
// constructor, which is the only moment at which its digest is computed; the
// digest is cached on the instance and never recomputed, and none of a
// node's fields are ever mutated after construction. Children of an inner
// node are referenced by digest so that loading them from a backing store
// (rather than holding them in memory) is a detail the store, not the node,
// is responsible for.
package node

import "avlmerkle/hash"

// Kind discriminates the three node variants.
type Kind int8

const (
	KindEmpty Kind = iota
	KindLeaf
	KindInner
)

// Node is a tagged union over empty/leaf/inner. The zero value is not a
// valid node; use Empty, NewLeaf, or NewInner.
type Node struct {
	kind   Kind
	digest hash.Digest

	// key is the node's BST key: the leaf's own key, or (for an inner
	// node) the minimum key of its right subtree.
	key []byte

	// leaf-only fields.
	value []byte

	// inner-only fields. left/right are digests: the store materializes
	// the referenced nodes on demand (see the store package).
	height int8
	size   int64
	left   hash.Digest
	right  hash.Digest

	version int64
}

// Empty returns the singleton-like empty node. Its digest is H(∅).
func Empty(h hash.Hasher) Node {
	return Node{kind: KindEmpty, digest: emptyDigest(h)}
}

func emptyDigest(h hash.Hasher) hash.Digest {
	return h.Digest(nil)
}

// NewLeaf constructs a leaf node, precomputing its digest from key, value,
// and version.
func NewLeaf(h hash.Hasher, key, value []byte, version int64) Node {
	valueDigest := h.Digest(value)
	return Node{
		kind:    KindLeaf,
		key:     key,
		value:   value,
		version: version,
		digest:  h.LeafDigest(key, valueDigest, version),
	}
}

// NewInner constructs an inner node over two already-built children,
// precomputing height, size, and digest. key must equal the minimum key of
// the right subtree (the AVL+ convention); callers (the algorithms in
// package avl) are responsible for passing the correct boundary key.
func NewInner(h hash.Hasher, key []byte, left, right Node, version int64) Node {
	height := 1 + max8(left.Height(), right.Height())
	size := left.Size() + right.Size()
	return Node{
		kind:    KindInner,
		key:     key,
		height:  height,
		size:    size,
		left:    left.Digest(),
		right:   right.Digest(),
		version: version,
		digest:  h.InnerDigest(height, size, left.Digest(), right.Digest(), version),
	}
}

// NewInnerFromDigests builds an inner node when only the children's digests
// (and their height/size) are known, e.g. when reconstructing a node loaded
// lazily from a persistent store. Unlike NewInner it does not require the
// child Node values themselves.
func NewInnerFromDigests(h hash.Hasher, key []byte, leftHeight, rightHeight int8, leftSize, rightSize int64, left, right hash.Digest, version int64) Node {
	height := 1 + max8(leftHeight, rightHeight)
	size := leftSize + rightSize
	return Node{
		kind:    KindInner,
		key:     key,
		height:  height,
		size:    size,
		left:    left,
		right:   right,
		version: version,
		digest:  h.InnerDigest(height, size, left, right, version),
	}
}

func max8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}

// Kind reports which variant n is.
func (n Node) Kind() Kind { return n.kind }

// IsEmpty reports whether n is the empty node.
func (n Node) IsEmpty() bool { return n.kind == KindEmpty }

// IsLeaf reports whether n is a leaf.
func (n Node) IsLeaf() bool { return n.kind == KindLeaf }

// IsInner reports whether n is an inner node.
func (n Node) IsInner() bool { return n.kind == KindInner }

// Digest returns the precomputed digest. Constant-time.
func (n Node) Digest() hash.Digest { return n.digest }

// Key returns the node's key. Undefined for the empty node.
func (n Node) Key() []byte { return n.key }

// Value returns the leaf's value. Panics if n is not a leaf.
func (n Node) Value() []byte {
	if n.kind != KindLeaf {
		panic("node: Value called on non-leaf node")
	}
	return n.value
}

// Height returns the node's height: 0 for empty and leaf, else
// 1+max(left.height,right.height).
func (n Node) Height() int8 {
	if n.kind == KindInner {
		return n.height
	}
	return 0
}

// Size returns the node's subtree size: 0 for empty, 1 for leaf, else
// left.size+right.size.
func (n Node) Size() int64 {
	switch n.kind {
	case KindLeaf:
		return 1
	case KindInner:
		return n.size
	default:
		return 0
	}
}

// Version returns the version at which n was created. Undefined for the
// empty node.
func (n Node) Version() int64 { return n.version }

// Left returns the digest of the left child. Panics if n is not inner.
func (n Node) Left() hash.Digest {
	if n.kind != KindInner {
		panic("node: Left called on non-inner node")
	}
	return n.left
}

// Right returns the digest of the right child. Panics if n is not inner.
func (n Node) Right() hash.Digest {
	if n.kind != KindInner {
		panic("node: Right called on non-inner node")
	}
	return n.right
}

// Balance returns left.height-right.height, 0 for non-inner nodes.
// Computing it requires the caller to supply the materialized children
// since Node itself only carries child digests.
func Balance(left, right Node) int {
	return int(left.Height()) - int(right.Height())
}
