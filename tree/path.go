// tree/path.go
package tree

import (
	"bytes"

	"avlmerkle/hash"
	"avlmerkle/node"
	"avlmerkle/proof"
)

// fullPath descends from root to key's leaf, returning the path in
// root-adjacent-first order (the order it's naturally built in) along with
// the leaf landed on. Callers that need proof.ProofInner's own
// leaf-adjacent-first convention reverse the result themselves (see
// reversed); buildSegment prepends its ancestor steps to this output, so
// its own result stays in the same descent order.
func fullPath(l node.Loader, root node.Node, key []byte) ([]proof.ProofInner, node.Node, error) {
	var path []proof.ProofInner
	n := root
	for n.IsInner() {
		left, err := n.LoadLeft(l)
		if err != nil {
			return nil, node.Node{}, err
		}
		right, err := n.LoadRight(l)
		if err != nil {
			return nil, node.Node{}, err
		}
		step := proof.ProofInner{Height: n.Height(), Size: n.Size(), Version: n.Version()}
		if bytes.Compare(key, n.Key()) < 0 {
			step.Side = proof.SideRight
			step.SiblingDigest = right.Digest()
			n = left
		} else {
			step.Side = proof.SideLeft
			step.SiblingDigest = left.Digest()
			n = right
		}
		path = append(path, step)
	}
	return path, n, nil
}

// reversed returns path leaf-adjacent first, the ordering ProofInner's
// documentation and proof.computeRoot both require.
func reversed(path []proof.ProofInner) []proof.ProofInner {
	out := make([]proof.ProofInner, len(path))
	for i, step := range path {
		out[len(path)-1-i] = step
	}
	return out
}

func leafOf(h hash.Hasher, n node.Node) proof.ProofLeaf {
	return proof.ProofLeaf{Key: n.Key(), ValueDigest: h.Digest(n.Value()), Version: n.Version()}
}

// floorPath descends to the leaf a plain BST lookup of key would land on:
// key itself if present, otherwise the largest leaf with key <= target
// (the "floor"). Returns found=false only when target precedes every leaf
// in the tree (the landing leaf turns out to be the tree's global
// minimum, which is strictly greater than target) or the tree is empty.
//
// This works because AVL+ descent always turns left when key is less than
// the current inner node's key (the minimum of its right subtree); bottoming
// out at a leaf whose key still exceeds target can only happen if every
// turn taken was forced by that same inequality, i.e. target is below the
// whole tree's minimum.
func floorPath(l node.Loader, root node.Node, key []byte) ([]proof.ProofInner, node.Node, bool, error) {
	if root.IsEmpty() {
		return nil, node.Node{}, false, nil
	}
	path, leaf, err := fullPath(l, root, key)
	if err != nil {
		return nil, node.Node{}, false, err
	}
	if bytes.Compare(leaf.Key(), key) > 0 {
		return path, node.Node{}, false, nil
	}
	return path, leaf, true, nil
}

// buildRangeProof builds the proof for an ascending, already-verified-present
// list of leaf keys by descending the tree once, splitting the key set at
// every branch the way the keys themselves split. This tracks the genuine
// nested structure of pairwise lowest-common-ancestors directly from the
// tree, rather than reconstructing it by comparing independently-built
// per-key paths (whose divergence points don't vary monotonically with key
// order across arbitrarily shaped subtrees).
func buildRangeProof(l node.Loader, root node.Node, h hash.Hasher, keys [][]byte) (*proof.RangeProof, error) {
	n := len(keys)
	leaves := make([]node.Node, n)
	innerPaths := make([][]proof.ProofInner, n-1)

	raw, err := buildSegment(l, root, keys, 0, leaves, innerPaths)
	if err != nil {
		return nil, err
	}

	proofLeaves := make([]proof.ProofLeaf, n)
	for i, lf := range leaves {
		proofLeaves[i] = leafOf(h, lf)
	}
	return proof.New(h, reversed(raw), innerPaths, proofLeaves), nil
}

// buildSegment returns the root-adjacent-first path from n down to
// keys[0] — the continuing key of this subset, tracked globally at
// leaves[globalIndex]. Every other key in keys gets its own leaf recorded
// at its global index, and, for each point where the key set splits across
// n's two children, the "other" side's self-contained path is registered
// into innerPaths at the index of its first global leaf minus one (the
// position proof.computeRoot's sequential idx consumption expects it at).
func buildSegment(l node.Loader, n node.Node, keys [][]byte, globalIndex int, leaves []node.Node, innerPaths [][]proof.ProofInner) ([]proof.ProofInner, error) {
	if len(keys) == 1 {
		path, leaf, err := fullPath(l, n, keys[0])
		if err != nil {
			return nil, err
		}
		leaves[globalIndex] = leaf
		return path, nil
	}

	left, err := n.LoadLeft(l)
	if err != nil {
		return nil, err
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return nil, err
	}

	var leftKeys, rightKeys [][]byte
	for _, k := range keys {
		if bytes.Compare(k, n.Key()) < 0 {
			leftKeys = append(leftKeys, k)
		} else {
			rightKeys = append(rightKeys, k)
		}
	}

	step := proof.ProofInner{Height: n.Height(), Size: n.Size(), Version: n.Version()}

	switch {
	case len(rightKeys) == 0:
		sub, err := buildSegment(l, left, keys, globalIndex, leaves, innerPaths)
		if err != nil {
			return nil, err
		}
		step.Side = proof.SideRight
		step.SiblingDigest = right.Digest()
		return append([]proof.ProofInner{step}, sub...), nil

	case len(leftKeys) == 0:
		sub, err := buildSegment(l, right, keys, globalIndex, leaves, innerPaths)
		if err != nil {
			return nil, err
		}
		step.Side = proof.SideLeft
		step.SiblingDigest = left.Digest()
		return append([]proof.ProofInner{step}, sub...), nil

	default:
		leftPart, err := buildSegment(l, left, leftKeys, globalIndex, leaves, innerPaths)
		if err != nil {
			return nil, err
		}
		rightGlobalIndex := globalIndex + len(leftKeys)
		rightPart, err := buildSegment(l, right, rightKeys, rightGlobalIndex, leaves, innerPaths)
		if err != nil {
			return nil, err
		}
		innerPaths[rightGlobalIndex-1] = reversed(rightPart)

		step.Side = proof.SideRight
		step.SiblingDigest = hash.Digest{}
		return append([]proof.ProofInner{step}, leftPart...), nil
	}
}
