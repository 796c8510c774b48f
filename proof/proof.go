// proof/proof.go
// Package proof implements Merkle inclusion, exclusion, and range proofs
// over an AVL+ tree. A proof carries just enough of the tree's shape and
// sibling digests to let a verifier, holding only a trusted root digest,
// recompute that root from the proof's leaves and confirm the leaves (or
// their absence) belong to it.
package proof

import (
	"sync"

	"avlmerkle/hash"
)

// Side records which side of an ancestor a sibling digest sits on, as seen
// walking from a leaf up toward the root.
type Side int8

const (
	// SideLeft means the sibling is on the left: the path descended into
	// the right child, so the leaf-ward value being folded is the right
	// operand of InnerDigest.
	SideLeft Side = iota
	// SideRight means the sibling is on the right: the path descended
	// into the left child.
	SideRight
)

// ProofLeaf is a leaf as carried in a proof: enough to recompute its
// digest, not its full value.
type ProofLeaf struct {
	Key         []byte
	ValueDigest hash.Digest
	Version     int64
}

// Digest returns the leaf's digest under h.
func (l ProofLeaf) Digest(h hash.Hasher) hash.Digest {
	return h.LeafDigest(l.Key, l.ValueDigest, l.Version)
}

// ProofInner is one step of a root-ward path: the shape and sibling digest
// of one ancestor. A path to a leaf is an ordered sequence of ProofInner
// records running from the leaf's immediate parent (first) to the root
// itself (last).
//
// SiblingDigest is the zero digest at a divergence point in a RangeProof's
// left_path: the entry's sibling is not transmitted because the verifier
// recomputes it from a later leaf's own inner path instead (see
// computeRoot). A single-leaf proof never has a zero SiblingDigest at a
// non-terminal step.
type ProofInner struct {
	Height        int8
	Size          int64
	Version       int64
	Side          Side
	SiblingDigest hash.Digest
}

// RangeProof certifies the contents of a key interval [start, end) — or,
// for a single-key lookup, a single leaf or the gap around a missing key —
// under a root digest.
//
// left_path is the path to the leaf that is either the queried start, or
// (if start itself is absent) the largest leaf with key <= start. For each
// subsequent leaf, inner_paths holds the partial path from the point where
// it diverges from the previous leaf's path down to itself; by
// construction len(inner_paths) == len(leaves)-1.
type RangeProof struct {
	LeftPath   []ProofInner
	InnerPaths [][]ProofInner
	Leaves     []ProofLeaf

	hasher hash.Hasher

	once      sync.Once
	root      hash.Digest
	treeEnd   bool
	leftIndex int64
	err       error
}

// New builds a RangeProof. Derived attributes (root digest, tree_end,
// left_index) are computed lazily on first access and cached.
func New(h hash.Hasher, leftPath []ProofInner, innerPaths [][]ProofInner, leaves []ProofLeaf) *RangeProof {
	return &RangeProof{
		hasher:     h,
		LeftPath:   leftPath,
		InnerPaths: innerPaths,
		Leaves:     leaves,
	}
}

func (p *RangeProof) derive() {
	p.once.Do(func() {
		p.root, p.err = computeRoot(p.hasher, p.LeftPath, p.InnerPaths, p.Leaves)
		if p.err != nil {
			return
		}
		p.treeEnd = computeTreeEnd(p.LeftPath, p.InnerPaths)
		p.leftIndex = computeLeftIndex(p.LeftPath)
	})
}

// RootDigest returns the root digest re-derived from the proof's contents,
// or an error if the proof is malformed (empty, or leaf/path counts don't
// line up).
func (p *RangeProof) RootDigest() (hash.Digest, error) {
	p.derive()
	return p.root, p.err
}

// TreeEnd reports whether the last leaf in the proof is the rightmost leaf
// of the whole tree, i.e. the proof was not truncated by a range limit.
func (p *RangeProof) TreeEnd() (bool, error) {
	p.derive()
	return p.treeEnd, p.err
}

// LeftIndex returns the in-order index of the first leaf, or -1 if
// left_path is empty (the tree is a single leaf). A proof with no leaves at
// all yields ErrEmptyProof instead.
func (p *RangeProof) LeftIndex() (int64, error) {
	p.derive()
	if p.err != nil {
		return 0, p.err
	}
	return p.leftIndex, nil
}

func computeTreeEnd(leftPath []ProofInner, innerPaths [][]ProofInner) bool {
	segment := leftPath
	if len(innerPaths) > 0 {
		segment = innerPaths[len(innerPaths)-1]
	}
	for _, step := range segment {
		if step.Side == SideRight {
			return false
		}
	}
	return true
}

func computeLeftIndex(leftPath []ProofInner) int64 {
	if len(leftPath) == 0 {
		return -1
	}
	var index, mySize int64 = 0, 1
	for _, step := range leftPath {
		siblingSize := step.Size - mySize
		if step.Side == SideLeft {
			index += siblingSize
		}
		mySize = step.Size
	}
	return index
}
