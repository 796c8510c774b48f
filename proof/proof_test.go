// proof/proof_test.go
package proof

import (
	"bytes"
	"testing"

	"avlmerkle/avl"
	"avlmerkle/hash"
	"avlmerkle/node"
)

// testLoader is the same write-through map loader pattern used by the avl
// package's own tests: a digest-keyed cache fed by avl.Changes after every
// mutation.
type testLoader struct {
	nodes map[hash.Digest]node.Node
}

func newTestLoader() *testLoader {
	return &testLoader{nodes: make(map[hash.Digest]node.Node)}
}

func (l *testLoader) Load(d hash.Digest) (node.Node, error) {
	n, ok := l.nodes[d]
	if !ok {
		return node.Node{}, errNotFound{d}
	}
	return n, nil
}

type errNotFound struct{ d hash.Digest }

func (e errNotFound) Error() string { return "proof test: digest not found" }

func (l *testLoader) set(h hash.Hasher, root node.Node, key, value []byte, version int64) node.Node {
	changes := avl.NewChanges()
	newRoot, _, err := avl.Set(h, l, root, key, value, version, changes)
	if err != nil {
		panic(err)
	}
	for _, n := range changes.Created() {
		l.nodes[n.Digest()] = n
	}
	return newRoot
}

// pathTo walks root down to key's leaf, recording a root-to-leaf sequence
// of ProofInner entries, then reverses it so the result runs leaf-adjacent
// first as ProofInner's own convention requires. Mirrors what a real
// proof-construction routine (living in the store/tree packages) would do.
func pathTo(l node.Loader, root node.Node, key []byte) ([]ProofInner, node.Node) {
	var path []ProofInner
	n := root
	for n.IsInner() {
		left, err := n.LoadLeft(l)
		if err != nil {
			panic(err)
		}
		right, err := n.LoadRight(l)
		if err != nil {
			panic(err)
		}
		step := ProofInner{Height: n.Height(), Size: n.Size(), Version: n.Version()}
		if bytes.Compare(key, n.Key()) < 0 {
			step.Side = SideRight
			step.SiblingDigest = right.Digest()
			n = left
		} else {
			step.Side = SideLeft
			step.SiblingDigest = left.Digest()
			n = right
		}
		path = append(path, step)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, n
}

func leafOf(n node.Node, h hash.Hasher) ProofLeaf {
	return ProofLeaf{Key: n.Key(), ValueDigest: h.Digest(n.Value()), Version: n.Version()}
}

func TestRecomputeSingleLeafMatchesTreeRoot(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newTestLoader()
	root := node.Empty(h)
	for _, k := range []string{"a", "b"} {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}

	for _, k := range []string{"a", "b"} {
		path, leaf := pathTo(l, root, []byte(k))
		got := recompute(h, leaf.Digest(), path)
		if got != root.Digest() {
			t.Fatalf("recompute(%q) = %x, want %x", k, got, root.Digest())
		}
	}
}

func buildTenLeafTree(t *testing.T) (hash.Hasher, *testLoader, node.Node) {
	t.Helper()
	h := hash.NewSHA256Hasher()
	l := newTestLoader()
	root := node.Empty(h)
	for i := byte(0); i < 10; i++ {
		root = l.set(h, root, []byte{i}, []byte{i}, 1)
	}
	return h, l, root
}

func singleLeafProof(h hash.Hasher, l node.Loader, root node.Node, key []byte) *RangeProof {
	path, leafNode := pathTo(l, root, key)
	leaf := leafOf(leafNode, h)
	return New(h, path, nil, []ProofLeaf{leaf})
}

func TestVerifyItemSucceedsForExistingKey(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := singleLeafProof(h, l, root, []byte{4})

	ok, err := p.Verify(root.Digest())
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
	if err := p.VerifyItem(root.Digest(), []byte{4}, []byte{4}); err != nil {
		t.Fatalf("VerifyItem: %v", err)
	}
}

func TestVerifyItemFailsOnWrongValue(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := singleLeafProof(h, l, root, []byte{4})

	err := p.VerifyItem(root.Digest(), []byte{4}, []byte{9})
	if _, ok := err.(*ValueDigestMismatchError); !ok {
		t.Fatalf("expected ValueDigestMismatchError, got %v (%T)", err, err)
	}
}

func TestVerifyItemFailsOnKeyNotInProof(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := singleLeafProof(h, l, root, []byte{4})

	err := p.VerifyItem(root.Digest(), []byte{7}, []byte{7})
	if _, ok := err.(*KeyNotInProofError); !ok {
		t.Fatalf("expected KeyNotInProofError, got %v (%T)", err, err)
	}
}

func TestVerifyFailsOnRootMismatch(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := singleLeafProof(h, l, root, []byte{4})

	other := h.Digest([]byte("not the root"))
	ok, err := p.Verify(other)
	if err != nil {
		t.Fatalf("Verify: unexpected error %v", err)
	}
	if ok {
		t.Fatal("Verify must fail against an unrelated root digest")
	}
}

func TestVerifyAbsenceDisprovedWhenKeyPresent(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := singleLeafProof(h, l, root, []byte{4})

	err := p.VerifyAbsence(root.Digest(), []byte{4})
	if _, ok := err.(*AbsenceDisprovedError); !ok {
		t.Fatalf("expected AbsenceDisprovedError, got %v (%T)", err, err)
	}
}

func TestVerifyAbsenceForTrailingKeyRequiresTreeEnd(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	// Proof of the tree's last leaf (key 9): its path is rightmost, so
	// absence of a key past it (e.g. 10) is provable from this single
	// leaf's proof alone.
	p := singleLeafProof(h, l, root, []byte{9})

	treeEnd, err := p.TreeEnd()
	if err != nil || !treeEnd {
		t.Fatalf("expected tree_end=true for the rightmost leaf's proof, got %v err=%v", treeEnd, err)
	}

	if err := p.VerifyAbsence(root.Digest(), []byte{10}); err != nil {
		t.Fatalf("VerifyAbsence(10): %v", err)
	}
}

func TestVerifyAbsenceForLeadingKeyRequiresLeftmost(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	// Proof of the tree's first leaf (key 0): its path is leftmost, so
	// absence of a key before it is provable.
	p := singleLeafProof(h, l, root, []byte{0})

	idx, err := p.LeftIndex()
	if err != nil || idx != 0 {
		t.Fatalf("expected left_index=0 for the leftmost leaf's proof, got %d err=%v", idx, err)
	}

	negativeKey := []byte{} // empty key sorts before any non-empty key
	if err := p.VerifyAbsence(root.Digest(), negativeKey); err != nil {
		t.Fatalf("VerifyAbsence(empty key): %v", err)
	}
}

func TestVerifyAbsenceFailsWhenProofNeitherBracketsNorReachesEdge(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	// A lone proof of key 3 neither brackets key 4 (no second leaf to
	// form a gap) nor reaches the tree's rightmost edge, so it proves
	// nothing about key 4's absence.
	p := singleLeafProof(h, l, root, []byte{3})

	err := p.VerifyAbsence(root.Digest(), []byte{4})
	if _, ok := err.(*AbsenceNotProvenError); !ok {
		t.Fatalf("expected AbsenceNotProvenError, got %v (%T)", err, err)
	}
}

// twoLeafRangeProof builds a proof over two adjacent leaves by using
// left_path for the first and a genuine diverging inner_path for the
// second, mirroring what iterate_range's proof construction produces.
func twoLeafRangeProof(t *testing.T, h hash.Hasher, l node.Loader, root node.Node, key1, key2 []byte) *RangeProof {
	t.Helper()
	leftPath, leaf1 := pathTo(l, root, key1)
	fullPath2, leaf2 := pathTo(l, root, key2)

	// Find the divergence point: the longest common suffix (root-adjacent
	// entries) shared between the two full paths of adjacent leaves.
	i, j := len(leftPath)-1, len(fullPath2)-1
	for i >= 0 && j >= 0 && leftPath[i] == fullPath2[j] {
		i--
		j--
	}
	// leftPath[i] is the divergence step (its sibling is leaf2's subtree,
	// so we zero it out per the sentinel convention) and fullPath2[:j], the
	// steps below that same node on leaf2's side, is leaf2's own private
	// inner_path; fullPath2[j] is the divergence node itself.
	leftPath[i].SiblingDigest = hash.Digest{}
	innerPath2 := append([]ProofInner{}, fullPath2[:j]...)

	return New(h, leftPath, [][]ProofInner{innerPath2}, []ProofLeaf{leafOf(leaf1, h), leafOf(leaf2, h)})
}

func TestTwoLeafRangeProofRecomputesRoot(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	p := twoLeafRangeProof(t, h, l, root, []byte{4}, []byte{5})

	ok, err := p.Verify(root.Digest())
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
	if err := p.VerifyItem(root.Digest(), []byte{4}, []byte{4}); err != nil {
		t.Fatalf("VerifyItem(4): %v", err)
	}
	if err := p.VerifyItem(root.Digest(), []byte{5}, []byte{5}); err != nil {
		t.Fatalf("VerifyItem(5): %v", err)
	}
}

func TestTwoLeafRangeProofProvesInteriorGapAbsence(t *testing.T) {
	h, l, root := buildTenLeafTree(t)
	// Build a 10-key tree but remove key 4 so 3 and 5 become adjacent
	// leaves, then prove 4 is absent from the gap between them.
	changes := avl.NewChanges()
	newRoot, removed, _, err := avl.Remove(h, l, root, []byte{4}, 2, changes)
	if err != nil || !removed {
		t.Fatalf("Remove: removed=%v err=%v", removed, err)
	}
	for _, n := range changes.Created() {
		l.nodes[n.Digest()] = n
	}
	root = newRoot

	p := twoLeafRangeProof(t, h, l, root, []byte{3}, []byte{5})
	if err := p.VerifyAbsence(root.Digest(), []byte{4}); err != nil {
		t.Fatalf("VerifyAbsence(4) in gap: %v", err)
	}
}

func TestEmptyProofIsRejected(t *testing.T) {
	h := hash.NewSHA256Hasher()
	p := New(h, nil, nil, nil)
	if _, err := p.RootDigest(); err != ErrEmptyProof {
		t.Fatalf("expected ErrEmptyProof, got %v", err)
	}
}

func TestMalformedProofLeftoverLeavesRejected(t *testing.T) {
	h := hash.NewSHA256Hasher()
	leaves := []ProofLeaf{
		{Key: []byte("a"), ValueDigest: h.Digest([]byte("a")), Version: 1},
		{Key: []byte("b"), ValueDigest: h.Digest([]byte("b")), Version: 1},
	}
	// len(innerPaths) should be len(leaves)-1 == 1; supplying 0 is malformed.
	p := New(h, nil, nil, leaves)
	if _, err := p.RootDigest(); err != ErrMalformedProof {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}
