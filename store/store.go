// store/store.go
// Package store implements the node-store contract (spec §4.5): a
// versioned, working-tree-over-committed-roots lifecycle built on top of
// package avl's pure algorithms and package node's content-addressed
// representation. Two backings are provided: an in-memory map (Memory) and
// a SQL-backed one (SQL, see sql.go) sharing the exact same orphan
// accounting and commit/rollback semantics.
package store

import (
	"errors"
	"fmt"

	"avlmerkle/hash"
	"avlmerkle/node"
)

// ErrVersionMissing is returned by RootAt (and anything built on it) when
// the requested version was never committed or has been pruned.
var ErrVersionMissing = errors.New("store: version missing")

// ErrInvalidRange is returned by range queries where start >= end and both
// are present.
var ErrInvalidRange = errors.New("store: invalid range: start >= end")

// NodeNotFoundError is returned by a backing Loader when a digest it's
// asked to materialize isn't present. Surfaced as IOFailure-class by
// callers that treat the store as an external dependency.
type NodeNotFoundError struct {
	Digest hash.Digest
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("store: node %x not found", e.Digest)
}

// Store is the node-store contract every backing implementation satisfies.
// Mutation methods operate on the current working version only; nothing is
// durable (or assigned an immutable root digest) until Commit.
type Store interface {
	// RootAt returns the committed root at version, or ErrVersionMissing.
	RootAt(version int64) (node.Node, error)
	// Versions returns every committed version number, ascending.
	Versions() []int64
	// Version returns the current working version (the version a Commit
	// would assign to the root being built).
	Version() int64

	// Get, Has, GetByIndex, Next read the current working tree.
	Get(key []byte) (index int64, value []byte, found bool, err error)
	Has(key []byte) (bool, error)
	GetByIndex(index int64) (key, value []byte, err error)
	Next(key []byte) (nextKey []byte, found bool, err error)

	// Set inserts or updates a key in the working tree.
	Set(key, value []byte) (updated bool, err error)
	// Remove deletes a key from the working tree.
	Remove(key []byte) (value []byte, removed bool, err error)

	// Commit finalizes the working root under Version(), increments the
	// working version, and clears the orphan accumulator for the new
	// working version. Returns the finalized digest and the version it
	// was committed under.
	Commit() (hash.Digest, int64, error)
	// Rollback discards every Set/Remove since the last Commit.
	Rollback() error
	// DeleteLast removes the newest committed version.
	DeleteLast() error
	// DeleteAll removes every committed version >= from; the working
	// version becomes from.
	DeleteAll(from int64) error

	// Hash returns the digest of the last committed root.
	Hash() hash.Digest
	// WorkingHash returns the digest of the current (possibly
	// uncommitted) working root.
	WorkingHash() hash.Digest
	// WorkingRoot returns the materialized working root node itself, for
	// callers (package tree) that need to walk it directly rather than
	// just know its digest.
	WorkingRoot() node.Node

	// Loader exposes the store's node cache for callers (package tree,
	// package proof's construction helpers) that need to walk the tree
	// directly.
	Loader() node.Loader
}

// orphanSet accumulates the digests displaced in one committed version,
// keyed by the version in which they became unreachable.
type orphanSet map[int64][]hash.Digest

func (o orphanSet) record(version int64, d hash.Digest) {
	o[version] = append(o[version], d)
}
