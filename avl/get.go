// avl/get.go
// Package avl implements the pure, allocation-minimal algorithms that make
// up an AVL+ tree: BST descent (get/has/next), traversal (iterate), and the
// invariant-preserving mutation algorithms (set/remove/balance). Every
// function is pure: given the same root and loader it returns the same
// answer, and mutation functions return a new root rather than touching any
// existing node. Children are referenced by digest, so any traversal that
// must descend into a child goes through the node.Loader the caller
// supplies — this is what lets a persistent backing store materialize
// nodes lazily (see the store package).
package avl

import (
	"bytes"

	"avlmerkle/node"
)

// Get searches for key under root. If found, index is its 0-based in-order
// position and value is its stored value. If not found, index is the
// position key would occupy were it inserted ("next index"), which callers
// use to build absence proofs.
func Get(l node.Loader, root node.Node, key []byte) (index int64, value []byte, found bool, err error) {
	return get(l, root, key)
}

func get(l node.Loader, n node.Node, key []byte) (index int64, value []byte, found bool, err error) {
	if n.IsEmpty() {
		return 0, nil, false, nil
	}
	if n.IsLeaf() {
		switch bytes.Compare(n.Key(), key) {
		case -1:
			return 1, nil, false, nil
		case 1:
			return 0, nil, false, nil
		default:
			return 0, n.Value(), true, nil
		}
	}

	if bytes.Compare(key, n.Key()) < 0 {
		left, err := n.LoadLeft(l)
		if err != nil {
			return 0, nil, false, err
		}
		return get(l, left, key)
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return 0, nil, false, err
	}
	index, value, found, err = get(l, right, key)
	index += n.Size() - right.Size()
	return index, value, found, err
}

// Has reports whether key is present under root.
func Has(l node.Loader, root node.Node, key []byte) (bool, error) {
	_, _, found, err := get(l, root, key)
	return found, err
}

// GetByIndex returns the key and value of the leaf at the given 0-based
// in-order position.
func GetByIndex(l node.Loader, root node.Node, index int64) (key, value []byte, err error) {
	if root.IsEmpty() || index < 0 || index >= root.Size() {
		return nil, nil, nil
	}
	return getByIndex(l, root, index)
}

func getByIndex(l node.Loader, n node.Node, index int64) (key, value []byte, err error) {
	if n.IsLeaf() {
		if index == 0 {
			return n.Key(), n.Value(), nil
		}
		return nil, nil, nil
	}
	left, err := n.LoadLeft(l)
	if err != nil {
		return nil, nil, err
	}
	if index < left.Size() {
		return getByIndex(l, left, index)
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return nil, nil, err
	}
	return getByIndex(l, right, index-left.Size())
}

// Next returns the smallest key strictly greater than key, or (nil, false)
// if none exists.
func Next(l node.Loader, root node.Node, key []byte) (nextKey []byte, found bool, err error) {
	return next(l, root, key, nil, false)
}

func next(l node.Loader, n node.Node, key, candidate []byte, haveCandidate bool) ([]byte, bool, error) {
	if n.IsEmpty() {
		return candidate, haveCandidate, nil
	}
	if n.IsLeaf() {
		if bytes.Compare(n.Key(), key) > 0 {
			return n.Key(), true, nil
		}
		return candidate, haveCandidate, nil
	}
	if bytes.Compare(key, n.Key()) < 0 {
		// n.Key() is a candidate successor (it's the minimum of the right
		// subtree, hence > every key that could cause us to descend left).
		left, err := n.LoadLeft(l)
		if err != nil {
			return nil, false, err
		}
		return next(l, left, key, n.Key(), true)
	}
	right, err := n.LoadRight(l)
	if err != nil {
		return nil, false, err
	}
	return next(l, right, key, candidate, haveCandidate)
}
