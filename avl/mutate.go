// avl/mutate.go
package avl

import (
	"bytes"

	"avlmerkle/hash"
	"avlmerkle/node"
)

// Changes accumulates the effects of one set/remove call: every node newly
// allocated and every node displaced. It is a write-only scratch buffer —
// callers create one per mutation, thread it through the recursion, then
// hand the result to the node store, which persists the created nodes and
// age-filters the orphaned digests into real orphan records (a node born in
// the same working version that is immediately displaced again is a
// same-version transient and never needs an orphan record at all; see the
// store package's orphan accounting).
type Changes struct {
	created []node.Node
	orphans []hash.Digest
}

// NewChanges returns an empty accumulator.
func NewChanges() *Changes {
	return &Changes{}
}

// create records n as newly allocated by this mutation and returns n
// unchanged, so constructor call sites can record-and-return in one line.
func (c *Changes) create(n node.Node) node.Node {
	c.created = append(c.created, n)
	return n
}

// orphan records a displaced node's digest.
func (c *Changes) orphan(d hash.Digest) {
	c.orphans = append(c.orphans, d)
}

// Created returns every node allocated during the mutation, in allocation
// order.
func (c *Changes) Created() []node.Node {
	return c.created
}

// Orphaned returns the digests of every node displaced during the mutation,
// in displacement order.
func (c *Changes) Orphaned() []hash.Digest {
	return c.orphans
}

// Set inserts or updates (key, value) under root at the given version,
// returning the new root and whether an existing key was updated in place
// (false means a new leaf was created, possibly changing the tree's shape).
func Set(h hash.Hasher, l node.Loader, root node.Node, key, value []byte, version int64, changes *Changes) (newRoot node.Node, updated bool, err error) {
	return recursiveSet(h, l, root, key, value, version, changes)
}

func recursiveSet(h hash.Hasher, l node.Loader, n node.Node, key, value []byte, version int64, changes *Changes) (node.Node, bool, error) {
	if n.IsEmpty() {
		return changes.create(node.NewLeaf(h, key, value, version)), false, nil
	}

	if n.IsLeaf() {
		switch bytes.Compare(key, n.Key()) {
		case 0:
			changes.orphan(n.Digest())
			return changes.create(node.NewLeaf(h, key, value, version)), true, nil
		case -1:
			newLeaf := changes.create(node.NewLeaf(h, key, value, version))
			return changes.create(node.NewInner(h, n.Key(), newLeaf, n, version)), false, nil
		default:
			newLeaf := changes.create(node.NewLeaf(h, key, value, version))
			return changes.create(node.NewInner(h, key, n, newLeaf, version)), false, nil
		}
	}

	changes.orphan(n.Digest())
	left, err := n.LoadLeft(l)
	if err != nil {
		return node.Node{}, false, err
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return node.Node{}, false, err
	}

	if bytes.Compare(key, n.Key()) < 0 {
		newLeft, updated, err := recursiveSet(h, l, left, key, value, version, changes)
		if err != nil {
			return node.Node{}, false, err
		}
		balanced, err := balance(h, l, n.Key(), newLeft, right, version, changes)
		return balanced, updated, err
	}
	newRight, updated, err := recursiveSet(h, l, right, key, value, version, changes)
	if err != nil {
		return node.Node{}, false, err
	}
	balanced, err := balance(h, l, n.Key(), left, newRight, version, changes)
	return balanced, updated, err
}

// Remove deletes key from root at the given version. If key was not present,
// removed is false, value is nil and newRoot is root unchanged.
func Remove(h hash.Hasher, l node.Loader, root node.Node, key []byte, version int64, changes *Changes) (newRoot node.Node, removed bool, value []byte, err error) {
	newRoot, found, value, err := recursiveRemove(h, l, root, key, version, changes)
	return newRoot, found, value, err
}

// recursiveRemove returns the subtree that should replace n (the empty node
// if n itself was the removed leaf), whether key was found under n, and the
// removed value. changes records every node allocated or displaced.
func recursiveRemove(h hash.Hasher, l node.Loader, n node.Node, key []byte, version int64, changes *Changes) (newSubtree node.Node, found bool, value []byte, err error) {
	if n.IsEmpty() {
		return n, false, nil, nil
	}

	if n.IsLeaf() {
		if bytes.Equal(n.Key(), key) {
			changes.orphan(n.Digest())
			return node.Empty(h), true, n.Value(), nil
		}
		return n, false, nil, nil
	}

	goLeft := bytes.Compare(key, n.Key()) < 0
	left, err := n.LoadLeft(l)
	if err != nil {
		return node.Node{}, false, nil, err
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return node.Node{}, false, nil, err
	}

	if goLeft {
		newLeft, found, val, err := recursiveRemove(h, l, left, key, version, changes)
		if err != nil || !found {
			return n, found, nil, err
		}
		changes.orphan(n.Digest())
		if newLeft.IsEmpty() {
			return right, true, val, nil
		}
		balanced, err := balance(h, l, n.Key(), newLeft, right, version, changes)
		return balanced, true, val, err
	}

	newRight, found, val, err := recursiveRemove(h, l, right, key, version, changes)
	if err != nil || !found {
		return n, found, nil, err
	}
	changes.orphan(n.Digest())
	if newRight.IsEmpty() {
		return left, true, val, nil
	}
	newKey, err := leftmostKey(l, newRight)
	if err != nil {
		return node.Node{}, false, nil, err
	}
	balanced, err := balance(h, l, newKey, left, newRight, version, changes)
	return balanced, true, val, err
}

func leftmostKey(l node.Loader, n node.Node) ([]byte, error) {
	for n.IsInner() {
		left, err := n.LoadLeft(l)
		if err != nil {
			return nil, err
		}
		n = left
	}
	return n.Key(), nil
}

// balance rebuilds the inner node (key, left, right) at version, rotating
// if the AVL invariant |left.height-right.height|<=1 would otherwise be
// violated. See the module-level rotate* helpers for the rotation cases.
func balance(h hash.Hasher, l node.Loader, key []byte, left, right node.Node, version int64, changes *Changes) (node.Node, error) {
	b := node.Balance(left, right)
	switch {
	case b > 1:
		ll, err := left.LoadLeft(l)
		if err != nil {
			return node.Node{}, err
		}
		lr, err := left.LoadRight(l)
		if err != nil {
			return node.Node{}, err
		}
		if node.Balance(ll, lr) >= 0 {
			return rotateRight(h, key, left, ll, lr, right, version, changes), nil
		}
		lrl, err := lr.LoadLeft(l)
		if err != nil {
			return node.Node{}, err
		}
		lrr, err := lr.LoadRight(l)
		if err != nil {
			return node.Node{}, err
		}
		return rotateLeftRight(h, key, left, ll, lr, lrl, lrr, right, version, changes), nil

	case b < -1:
		rl, err := right.LoadLeft(l)
		if err != nil {
			return node.Node{}, err
		}
		rr, err := right.LoadRight(l)
		if err != nil {
			return node.Node{}, err
		}
		if node.Balance(rl, rr) <= 0 {
			return rotateLeft(h, key, left, right, rl, rr, version, changes), nil
		}
		rll, err := rl.LoadLeft(l)
		if err != nil {
			return node.Node{}, err
		}
		rlr, err := rl.LoadRight(l)
		if err != nil {
			return node.Node{}, err
		}
		return rotateRightLeft(h, key, left, right, rl, rll, rlr, rr, version, changes), nil

	default:
		return changes.create(node.NewInner(h, key, left, right, version)), nil
	}
}

// rotateRight handles the Left-Left case: left is taller and itself
// left-heavy or balanced. Orphans the displaced `left` shell; allocates two
// new inner nodes.
func rotateRight(h hash.Hasher, key []byte, left, ll, lr, right node.Node, version int64, changes *Changes) node.Node {
	changes.orphan(left.Digest())
	newRight := changes.create(node.NewInner(h, key, lr, right, version))
	return changes.create(node.NewInner(h, left.Key(), ll, newRight, version))
}

// rotateLeft handles the Right-Right case, symmetric to rotateRight.
func rotateLeft(h hash.Hasher, key []byte, left, right, rl, rr node.Node, version int64, changes *Changes) node.Node {
	changes.orphan(right.Digest())
	newLeft := changes.create(node.NewInner(h, key, left, rl, version))
	return changes.create(node.NewInner(h, right.Key(), newLeft, rr, version))
}

// rotateLeftRight handles the Left-Right case: left-rotate around `left`,
// then right-rotate around the whole node. Orphans the displaced `left` and
// `lr` shells; allocates three new inner nodes.
func rotateLeftRight(h hash.Hasher, key []byte, left, ll, lr, lrl, lrr, right node.Node, version int64, changes *Changes) node.Node {
	changes.orphan(left.Digest())
	changes.orphan(lr.Digest())
	newLeft := changes.create(node.NewInner(h, left.Key(), ll, lrl, version))
	newRight := changes.create(node.NewInner(h, key, lrr, right, version))
	return changes.create(node.NewInner(h, lr.Key(), newLeft, newRight, version))
}

// rotateRightLeft handles the Right-Left case, symmetric to rotateLeftRight.
func rotateRightLeft(h hash.Hasher, key []byte, left, right, rl, rll, rlr, rr node.Node, version int64, changes *Changes) node.Node {
	changes.orphan(right.Digest())
	changes.orphan(rl.Digest())
	newLeft := changes.create(node.NewInner(h, key, left, rll, version))
	newRight := changes.create(node.NewInner(h, right.Key(), rlr, rr, version))
	return changes.create(node.NewInner(h, rl.Key(), newLeft, newRight, version))
}
