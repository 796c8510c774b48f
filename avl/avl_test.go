// avl/avl_test.go
package avl

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"avlmerkle/hash"
	"avlmerkle/node"
)

// mapLoader is an in-memory node.Loader backed by a digest-keyed map, used
// by every test in this package to materialize children.
type mapLoader struct {
	nodes map[hash.Digest]node.Node
}

func newMapLoader() *mapLoader {
	return &mapLoader{nodes: make(map[hash.Digest]node.Node)}
}

func (m *mapLoader) Load(d hash.Digest) (node.Node, error) {
	if n, ok := m.nodes[d]; ok {
		return n, nil
	}
	return node.Node{}, fmt.Errorf("avl test: digest %x not found", d)
}

// apply registers every node a mutation created, so later loads of the new
// root's descendants succeed. It stands in for a real node store's
// write-through cache.
func (m *mapLoader) apply(changes *Changes) {
	for _, n := range changes.Created() {
		m.nodes[n.Digest()] = n
	}
}

// set is a test-only convenience that runs avl.Set against l and applies
// the resulting changes to it in one step.
func (m *mapLoader) set(h hash.Hasher, root node.Node, key, value []byte, version int64) node.Node {
	changes := NewChanges()
	newRoot, _, err := Set(h, m, root, key, value, version, changes)
	if err != nil {
		panic(err)
	}
	m.apply(changes)
	return newRoot
}

func (m *mapLoader) remove(h hash.Hasher, root node.Node, key []byte, version int64) (node.Node, bool, []byte) {
	changes := NewChanges()
	newRoot, removed, value, err := Remove(h, m, root, key, version, changes)
	if err != nil {
		panic(err)
	}
	m.apply(changes)
	return newRoot, removed, value
}

// checkInvariants walks root and fails t if any AVL+ invariant is violated:
// height/size bookkeeping, balance factor within [-1,1], and BST ordering.
func checkInvariants(t *testing.T, l node.Loader, n node.Node) (minKey, maxKey []byte) {
	t.Helper()
	if n.IsEmpty() {
		return nil, nil
	}
	if n.IsLeaf() {
		return n.Key(), n.Key()
	}

	left, err := n.LoadLeft(l)
	if err != nil {
		t.Fatalf("load left: %v", err)
	}
	right, err := n.LoadRight(l)
	if err != nil {
		t.Fatalf("load right: %v", err)
	}

	if b := node.Balance(left, right); b < -1 || b > 1 {
		t.Fatalf("balance factor %d out of range at key %q", b, n.Key())
	}
	wantHeight := 1 + maxInt8(left.Height(), right.Height())
	if n.Height() != wantHeight {
		t.Fatalf("height mismatch: got %d want %d", n.Height(), wantHeight)
	}
	if n.Size() != left.Size()+right.Size() {
		t.Fatalf("size mismatch: got %d want %d", n.Size(), left.Size()+right.Size())
	}

	lMin, lMax := checkInvariants(t, l, left)
	rMin, rMax := checkInvariants(t, l, right)

	if !bytes.Equal(n.Key(), rMin) {
		t.Fatalf("inner key %q must equal right subtree minimum %q", n.Key(), rMin)
	}
	if lMax != nil && rMin != nil && bytes.Compare(lMax, rMin) >= 0 {
		t.Fatalf("BST order violated: left max %q >= right min %q", lMax, rMin)
	}

	if lMin != nil {
		return lMin, rMax
	}
	return rMin, rMax
}

func maxInt8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}

func TestSetAndGetRoundTrip(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	keys := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		keys = append(keys, fmt.Sprintf("key-%04d", i))
	}
	rand.New(rand.NewSource(1)).Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for _, k := range keys {
		root = l.set(h, root, []byte(k), []byte("v-"+k), 1)
	}

	checkInvariants(t, l, root)

	for _, k := range keys {
		_, value, found, err := Get(l, root, []byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if !found {
			t.Fatalf("key %q not found after Set", k)
		}
		if string(value) != "v-"+k {
			t.Fatalf("Get(%q) = %q, want %q", k, value, "v-"+k)
		}
	}

	if root.Size() != int64(len(keys)) {
		t.Fatalf("root size = %d, want %d", root.Size(), len(keys))
	}
}

func TestSetUpdatesExistingKeyInPlace(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	root = l.set(h, root, []byte("a"), []byte("1"), 1)

	changes := NewChanges()
	newRoot, updated, err := Set(h, l, root, []byte("a"), []byte("2"), 2, changes)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	l.apply(changes)
	if !updated {
		t.Fatal("expected updated=true when overwriting an existing key")
	}
	if len(changes.Orphaned()) != 1 || changes.Orphaned()[0] != root.Digest() {
		t.Fatalf("expected exactly the old leaf orphaned, got %v", changes.Orphaned())
	}
	if len(changes.Created()) != 1 {
		t.Fatalf("expected exactly one new leaf created, got %d", len(changes.Created()))
	}

	_, value, found, err := Get(l, newRoot, []byte("a"))
	if err != nil || !found || string(value) != "2" {
		t.Fatalf("Get after update: value=%q found=%v err=%v", value, found, err)
	}
}

func TestRemoveUnknownKeyIsNoop(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)
	root = l.set(h, root, []byte("a"), []byte("1"), 1)

	changes := NewChanges()
	newRoot, removed, value, err := Remove(h, l, root, []byte("missing"), 2, changes)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatal("expected removed=false for a key that was never set")
	}
	if value != nil {
		t.Fatalf("expected nil value, got %q", value)
	}
	if len(changes.Orphaned()) != 0 || len(changes.Created()) != 0 {
		t.Fatalf("expected no changes for a no-op remove, got %+v", changes)
	}
	if newRoot.Digest() != root.Digest() {
		t.Fatal("expected root unchanged on no-op remove")
	}
}

func TestRemoveAllConvergesToEmpty(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	n := 300
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, fmt.Sprintf("k%05d", i))
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for _, k := range keys {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}
	checkInvariants(t, l, root)

	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for i, k := range keys {
		newRoot, removed, value := l.remove(h, root, []byte(k), 2)
		if !removed {
			t.Fatalf("Remove(%q): expected removed=true", k)
		}
		if string(value) != k {
			t.Fatalf("Remove(%q): value=%q", k, value)
		}
		root = newRoot
		if !root.IsEmpty() {
			checkInvariants(t, l, root)
		}
		if root.Size() != int64(n-1-i) {
			t.Fatalf("after removing %d keys, size=%d want %d", i+1, root.Size(), n-1-i)
		}
	}
	if !root.IsEmpty() {
		t.Fatal("expected empty tree after removing every key")
	}
}

func TestRebuildKeyAfterRightSubtreeBoundaryRemoved(t *testing.T) {
	// Deleting the minimum key of a right subtree must update the
	// ancestor's boundary key to the new minimum.
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	for _, k := range []string{"b", "d", "f"} {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}
	checkInvariants(t, l, root)

	newRoot, removed, _ := l.remove(h, root, []byte("d"), 2)
	if !removed {
		t.Fatal("Remove(d): expected removed=true")
	}
	root = newRoot
	checkInvariants(t, l, root)

	for _, k := range []string{"b", "f"} {
		_, _, found, err := Get(l, root, []byte(k))
		if err != nil || !found {
			t.Fatalf("Get(%q) after removing d: found=%v err=%v", k, found, err)
		}
	}
	_, _, found, _ := Get(l, root, []byte("d"))
	if found {
		t.Fatal("d should no longer be present")
	}
}

func TestIterateAscendingAndDescending(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	keys := []string{"m", "a", "z", "f", "q", "b", "x"}
	for _, k := range keys {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var got []string
	if err := Iterate(l, root, true, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	}); err != nil {
		t.Fatalf("Iterate ascending: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(sorted) {
		t.Fatalf("ascending iterate = %v, want %v", got, sorted)
	}

	got = nil
	if err := Iterate(l, root, false, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	}); err != nil {
		t.Fatalf("Iterate descending: %v", err)
	}
	reversed := make([]string, len(sorted))
	for i, k := range sorted {
		reversed[len(sorted)-1-i] = k
	}
	if fmt.Sprint(got) != fmt.Sprint(reversed) {
		t.Fatalf("descending iterate = %v, want %v", got, reversed)
	}
}

func TestIterateRangeExclusiveAndInclusive(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}

	var got []string
	err := IterateRange(l, root, []byte("b"), []byte("d"), true, false, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	})
	if err != nil {
		t.Fatalf("IterateRange: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint([]string{"b", "c"}) {
		t.Fatalf("exclusive range = %v, want [b c]", got)
	}

	got = nil
	err = IterateRange(l, root, []byte("b"), []byte("d"), true, true, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	})
	if err != nil {
		t.Fatalf("IterateRange inclusive: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint([]string{"b", "c", "d"}) {
		t.Fatalf("inclusive range = %v, want [b c d]", got)
	}
}

func TestGetByIndexMatchesInOrderPosition(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	keys := []string{"d", "b", "a", "c", "e"}
	for _, k := range keys {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	for i, want := range sorted {
		key, value, err := GetByIndex(l, root, int64(i))
		if err != nil {
			t.Fatalf("GetByIndex(%d): %v", i, err)
		}
		if string(key) != want || string(value) != want {
			t.Fatalf("GetByIndex(%d) = %q, want %q", i, key, want)
		}
	}
}

func TestNextReturnsSmallestGreaterKey(t *testing.T) {
	h := hash.NewSHA256Hasher()
	l := newMapLoader()
	root := node.Empty(h)

	for _, k := range []string{"a", "c", "e", "g"} {
		root = l.set(h, root, []byte(k), []byte(k), 1)
	}

	next, found, err := Next(l, root, []byte("c"))
	if err != nil || !found || string(next) != "e" {
		t.Fatalf("Next(c) = %q found=%v err=%v, want e", next, found, err)
	}

	_, found, err = Next(l, root, []byte("g"))
	if err != nil || found {
		t.Fatalf("Next(g) should report not-found, got found=%v err=%v", found, err)
	}
}

func TestRotationsMaintainBalanceUnderSequentialInsertion(t *testing.T) {
	// Inserting strictly increasing keys forces a chain of single
	// rotations; inserting strictly decreasing keys forces the mirror.
	for _, desc := range []bool{false, true} {
		h := hash.NewSHA256Hasher()
		l := newMapLoader()
		root := node.Empty(h)
		for i := 0; i < 500; i++ {
			k := i
			if desc {
				k = 499 - i
			}
			root = l.set(h, root, []byte(fmt.Sprintf("%05d", k)), []byte("v"), 1)
		}
		checkInvariants(t, l, root)
	}
}
