// tree/tree.go
// Package tree implements the facade (spec §4.6): a thin delegating type
// binding a store.Store to the verbs a caller actually uses — set, remove,
// get, has, iterate, iterate_range, hash, working_hash, commit, rollback,
// plus the versioned and proof-carrying reads that distinguish this store
// from a plain key/value map. Every method here is a direct translation
// into store/avl operations; no additional state lives in a Tree.
//
// Grounded on the teacher's pkg/tree interface.go: a narrow Tree/Cursor
// contract in front of a pluggable backing implementation.
package tree

import (
	"errors"

	"avlmerkle/avl"
	"avlmerkle/hash"
	"avlmerkle/store"
)

// ErrEmptyTree is returned by a versioned read against a version whose root
// holds no leaves at all, when the caller asked for a proof: there is
// nothing to build a RangeProof around.
var ErrEmptyTree = errors.New("tree: version has no leaves")

// Tree is the facade in front of a store.Store.
type Tree struct {
	store  store.Store
	hasher hash.Hasher
}

// New wraps s behind the facade, using h to build and verify proofs.
func New(s store.Store, h hash.Hasher) *Tree {
	return &Tree{store: s, hasher: h}
}

// Set inserts or updates key in the working tree.
func (t *Tree) Set(key, value []byte) (updated bool, err error) {
	return t.store.Set(key, value)
}

// Remove deletes key from the working tree.
func (t *Tree) Remove(key []byte) (value []byte, removed bool, err error) {
	return t.store.Remove(key)
}

// Get reads key from the working tree.
func (t *Tree) Get(key []byte) (value []byte, found bool, err error) {
	_, value, found, err = t.store.Get(key)
	return value, found, err
}

// Has reports whether key exists in the working tree.
func (t *Tree) Has(key []byte) (bool, error) {
	return t.store.Has(key)
}

// Iterate walks every key in the working tree in key order.
func (t *Tree) Iterate(ascending bool, fn avl.VisitFunc) error {
	return avl.Iterate(t.store.Loader(), t.store.WorkingRoot(), ascending, fn)
}

// IterateRange walks keys in [start, end) (or [start, end] if inclusive) of
// the working tree.
func (t *Tree) IterateRange(start, end []byte, ascending, inclusive bool, fn avl.VisitFunc) error {
	return avl.IterateRange(t.store.Loader(), t.store.WorkingRoot(), start, end, ascending, inclusive, fn)
}

// Hash returns the digest of the last committed root.
func (t *Tree) Hash() hash.Digest {
	return t.store.Hash()
}

// WorkingHash returns the digest of the current (possibly uncommitted)
// working root.
func (t *Tree) WorkingHash() hash.Digest {
	return t.store.WorkingHash()
}

// Commit finalizes the working tree, returning its digest and the version
// it was committed under.
func (t *Tree) Commit() (hash.Digest, int64, error) {
	return t.store.Commit()
}

// Rollback discards every Set/Remove since the last Commit.
func (t *Tree) Rollback() error {
	return t.store.Rollback()
}

// DeleteVersion removes the newest committed version. Named after the
// facade's single delete_version verb (spec §4.6); the store itself
// exposes the narrower delete_last and delete_all(from) primitives this
// delegates to.
func (t *Tree) DeleteVersion() error {
	return t.store.DeleteLast()
}

// DeleteVersionsFrom removes every committed version >= from.
func (t *Tree) DeleteVersionsFrom(from int64) error {
	return t.store.DeleteAll(from)
}

