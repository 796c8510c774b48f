// store/memory.go
package store

import (
	"sync"

	"avlmerkle/avl"
	"avlmerkle/hash"
	"avlmerkle/node"
)

// Memory is an in-memory Store: committed roots and every node ever built
// live in process memory for the life of the store. Grounded on the
// teacher's CowVersionedStore (versioned_store.go): a single mutex guards
// the version bookkeeping, while the node cache underneath is a plain
// content-addressed map (nodes are immutable once built, so sharing them
// across versions needs no copying).
//
// A Memory store is not safe for concurrent mutation (spec §5: single
// writer, single-threaded); concurrent read-only access to committed
// versions is safe because nodes, once published to the cache, are never
// mutated again.
type Memory struct {
	mu sync.RWMutex

	hasher hash.Hasher
	nodes  map[hash.Digest]node.Node

	roots    map[int64]node.Node
	versions []int64

	orphans orphanSet

	workingVersion int64
	workingRoot    node.Node
}

// NewMemory returns an empty store. Version 0 is pre-committed as the
// empty root, matching the spec's convention that version 0 denotes "no
// leaves yet" (see spec §8, scenario 6).
func NewMemory(h hash.Hasher) *Memory {
	empty := node.Empty(h)
	m := &Memory{
		hasher:         h,
		nodes:          make(map[hash.Digest]node.Node),
		roots:          map[int64]node.Node{0: empty},
		versions:       []int64{0},
		orphans:        make(orphanSet),
		workingVersion: 1,
		workingRoot:    empty,
	}
	return m
}

// Load implements node.Loader directly, so a Memory store can itself be
// passed wherever a Loader is expected.
func (m *Memory) Load(d hash.Digest) (node.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[d]
	if !ok {
		return node.Node{}, &NodeNotFoundError{Digest: d}
	}
	return n, nil
}

// Loader returns m itself.
func (m *Memory) Loader() node.Loader { return m }

// lockedLoader reads m.nodes for a caller that already holds m.mu.
type lockedLoader struct{ m *Memory }

func (l lockedLoader) Load(d hash.Digest) (node.Node, error) {
	if n, ok := l.m.nodes[d]; ok {
		return n, nil
	}
	return node.Node{}, &NodeNotFoundError{Digest: d}
}

func (m *Memory) RootAt(version int64) (node.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	root, ok := m.roots[version]
	if !ok {
		return node.Node{}, ErrVersionMissing
	}
	return root, nil
}

func (m *Memory) Versions() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, len(m.versions))
	copy(out, m.versions)
	return out
}

func (m *Memory) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workingVersion
}

func (m *Memory) Get(key []byte) (int64, []byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return avl.Get(m, m.workingRoot, key)
}

func (m *Memory) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return avl.Has(m, m.workingRoot, key)
}

func (m *Memory) GetByIndex(index int64) ([]byte, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return avl.GetByIndex(m, m.workingRoot, index)
}

func (m *Memory) Next(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return avl.Next(m, m.workingRoot, key)
}

func (m *Memory) Set(key, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := avl.NewChanges()
	newRoot, updated, err := avl.Set(m.hasher, lockedLoader{m}, m.workingRoot, key, value, m.workingVersion, changes)
	if err != nil {
		return false, err
	}
	m.apply(changes)
	m.workingRoot = newRoot
	return updated, nil
}

func (m *Memory) Remove(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changes := avl.NewChanges()
	newRoot, removed, value, err := avl.Remove(m.hasher, lockedLoader{m}, m.workingRoot, key, m.workingVersion, changes)
	if err != nil {
		return nil, false, err
	}
	if removed {
		m.apply(changes)
		m.workingRoot = newRoot
	}
	return value, removed, nil
}

// apply persists every created node and age-filters the displaced digests
// per the orphan accounting rule in spec §4.5: a node born before the
// current working version is recorded as a real orphan; a node born in
// this same working cycle is a transient and needs no record at all.
func (m *Memory) apply(changes *avl.Changes) {
	for _, n := range changes.Created() {
		m.nodes[n.Digest()] = n
	}
	for _, d := range changes.Orphaned() {
		if n, ok := m.nodes[d]; ok && n.Version() < m.workingVersion {
			m.orphans.record(m.workingVersion, d)
		}
	}
}

func (m *Memory) Commit() (hash.Digest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	committed := m.workingVersion
	m.roots[committed] = m.workingRoot
	m.versions = append(m.versions, committed)
	m.workingVersion++
	delete(m.orphans, m.workingVersion)
	return m.workingRoot.Digest(), committed, nil
}

func (m *Memory) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := m.lastCommittedLocked()
	m.workingRoot = last
	delete(m.orphans, m.workingVersion)
	return nil
}

func (m *Memory) DeleteLast() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.versions) <= 1 {
		return nil // only the synthetic empty version 0 remains; nothing to delete
	}
	latest := m.versions[len(m.versions)-1]
	delete(m.roots, latest)
	delete(m.orphans, latest)
	m.versions = m.versions[:len(m.versions)-1]

	// Resolves the spec's flagged ambiguity (§9): the working tree must
	// roll back to the new latest committed root, not be left pointing at
	// a root that no longer has a version.
	m.workingVersion = latest
	m.workingRoot = m.lastCommittedLocked()
	return nil
}

func (m *Memory) DeleteAll(from int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.versions[:0:0]
	for _, v := range m.versions {
		if v >= from {
			delete(m.roots, v)
			delete(m.orphans, v)
			continue
		}
		kept = append(kept, v)
	}
	m.versions = kept
	m.workingVersion = from
	m.workingRoot = m.lastCommittedLocked()
	return nil
}

// lastCommittedLocked returns the root of the highest committed version
// below the current working version. Caller must hold m.mu.
func (m *Memory) lastCommittedLocked() node.Node {
	best := int64(-1)
	for _, v := range m.versions {
		if v < m.workingVersion && v > best {
			best = v
		}
	}
	if best < 0 {
		return node.Empty(m.hasher)
	}
	return m.roots[best]
}

func (m *Memory) Hash() hash.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCommittedLocked().Digest()
}

func (m *Memory) WorkingHash() hash.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workingRoot.Digest()
}

func (m *Memory) WorkingRoot() node.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workingRoot
}

// Orphans returns the digests displaced across the given committed
// version's boundary. Exposed for pruning policies built on top of the
// store (spec §4.5: "the orphan map MUST be sufficient to answer which
// nodes can be safely deleted").
func (m *Memory) Orphans(version int64) []hash.Digest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hash.Digest, len(m.orphans[version]))
	copy(out, m.orphans[version])
	return out
}

var _ Store = (*Memory)(nil)
