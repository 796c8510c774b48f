// tree/versioned.go
package tree

import (
	"bytes"

	"avlmerkle/avl"
	"avlmerkle/proof"
	"avlmerkle/store"
)

// KV is a single key/value pair, as returned by a range read.
type KV struct {
	Key   []byte
	Value []byte
}

// GetVersioned reads key from the root committed at version.
func (t *Tree) GetVersioned(key []byte, version int64) (value []byte, found bool, err error) {
	root, err := t.store.RootAt(version)
	if err != nil {
		return nil, false, err
	}
	_, value, found, err = avl.Get(t.store.Loader(), root, key)
	return value, found, err
}

// GetVersionedWithProof reads key from the root committed at version and
// returns a RangeProof attesting either its presence (a single leaf
// matching key) or its absence (the leaves on either side of key, or the
// single leftmost or rightmost leaf when key lies outside the tree's keys,
// per the absence rules verified by RangeProof.VerifyAbsence).
func (t *Tree) GetVersionedWithProof(key []byte, version int64) (value []byte, found bool, p *proof.RangeProof, err error) {
	root, err := t.store.RootAt(version)
	if err != nil {
		return nil, false, nil, err
	}
	if root.IsEmpty() {
		return nil, false, nil, ErrEmptyTree
	}
	l := t.store.Loader()

	path, leaf, ok, err := floorPath(l, root, key)
	if err != nil {
		return nil, false, nil, err
	}
	if !ok {
		// key precedes every leaf: prove absence off the tree's actual
		// leftmost leaf instead, whose path is leftmost by construction.
		leftmostKey, _, err := avl.GetByIndex(l, root, 0)
		if err != nil {
			return nil, false, nil, err
		}
		path, leaf, err = fullPath(l, root, leftmostKey)
		if err != nil {
			return nil, false, nil, err
		}
	}

	p = proof.New(t.hasher, reversed(path), nil, []proof.ProofLeaf{leafOf(t.hasher, leaf)})
	found = bytes.Equal(leaf.Key(), key)
	if found {
		value = leaf.Value()
	} else if ok {
		next, hasNext, err := avl.Next(l, root, key)
		if err != nil {
			return nil, false, nil, err
		}
		if hasNext {
			if p, err = buildRangeProof(l, root, t.hasher, [][]byte{leaf.Key(), next}); err != nil {
				return nil, false, nil, err
			}
		}
	}
	return value, found, p, nil
}

// GetVersionedRangeWithProof reads up to limit keys in [start, end) from the
// root committed at version (limit <= 0 means unlimited), and returns a
// RangeProof covering exactly those leaves. If the range is empty, the
// proof instead attests the absence of the whole range via the leaves
// around it, the same way GetVersionedWithProof does for a single key.
// start >= end (both present) yields store.ErrInvalidRange.
func (t *Tree) GetVersionedRangeWithProof(start, end []byte, limit int, version int64) (entries []KV, p *proof.RangeProof, err error) {
	if start != nil && end != nil && bytes.Compare(start, end) >= 0 {
		return nil, nil, store.ErrInvalidRange
	}
	root, err := t.store.RootAt(version)
	if err != nil {
		return nil, nil, err
	}
	if root.IsEmpty() {
		return nil, nil, ErrEmptyTree
	}
	l := t.store.Loader()

	var keys [][]byte
	err = avl.IterateRange(l, root, start, end, true, false, func(k, v []byte) bool {
		keys = append(keys, append([]byte{}, k...))
		entries = append(entries, KV{Key: append([]byte{}, k...), Value: append([]byte{}, v...)})
		return limit > 0 && len(keys) >= limit
	})
	if err != nil {
		return nil, nil, err
	}

	if len(keys) == 0 {
		path, leaf, ok, err := floorPath(l, root, start)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			leftmostKey, _, err := avl.GetByIndex(l, root, 0)
			if err != nil {
				return nil, nil, err
			}
			path, leaf, err = fullPath(l, root, leftmostKey)
			if err != nil {
				return nil, nil, err
			}
		}
		p = proof.New(t.hasher, reversed(path), nil, []proof.ProofLeaf{leafOf(t.hasher, leaf)})
		if ok {
			next, hasNext, err := avl.Next(l, root, start)
			if err != nil {
				return nil, nil, err
			}
			if hasNext {
				if p, err = buildRangeProof(l, root, t.hasher, [][]byte{leaf.Key(), next}); err != nil {
					return nil, nil, err
				}
			}
		}
		return nil, p, nil
	}

	p, err = buildRangeProof(l, root, t.hasher, keys)
	if err != nil {
		return nil, nil, err
	}
	return entries, p, nil
}
