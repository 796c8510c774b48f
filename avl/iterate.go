// avl/iterate.go
package avl

import (
	"bytes"

	"avlmerkle/node"
)

// VisitFunc is called once per leaf during a traversal. Returning true
// aborts the traversal early.
type VisitFunc func(key, value []byte) (stop bool)

// Iterate performs an in-order (ascending=true) or reverse-in-order
// (ascending=false) traversal of root, calling fn for every leaf until fn
// returns true or the tree is exhausted.
func Iterate(l node.Loader, root node.Node, ascending bool, fn VisitFunc) error {
	_, err := iterate(l, root, ascending, fn)
	return err
}

func iterate(l node.Loader, n node.Node, ascending bool, fn VisitFunc) (stop bool, err error) {
	if n.IsEmpty() {
		return false, nil
	}
	if n.IsLeaf() {
		return fn(n.Key(), n.Value()), nil
	}

	loadFirst := n.LoadLeft
	loadSecond := n.LoadRight
	if !ascending {
		loadFirst = n.LoadRight
		loadSecond = n.LoadLeft
	}

	firstChild, err := loadFirst(l)
	if err != nil {
		return false, err
	}
	stop, err = iterate(l, firstChild, ascending, fn)
	if err != nil || stop {
		return stop, err
	}

	secondChild, err := loadSecond(l)
	if err != nil {
		return false, err
	}
	return iterate(l, secondChild, ascending, fn)
}

// IterateRange restricts Iterate to leaves with start <= key < end (or
// start <= key <= end when inclusive is true). Either bound may be nil to
// mean "unbounded in that direction".
func IterateRange(l node.Loader, root node.Node, start, end []byte, ascending, inclusive bool, fn VisitFunc) error {
	below := func(key []byte) bool {
		return start != nil && bytes.Compare(key, start) < 0
	}
	above := func(key []byte) bool {
		if end == nil {
			return false
		}
		cmp := bytes.Compare(key, end)
		if inclusive {
			return cmp > 0
		}
		return cmp >= 0
	}

	wrapped := func(key, value []byte) bool {
		if ascending {
			if above(key) {
				return true
			}
			if below(key) {
				return false
			}
		} else {
			if below(key) {
				return true
			}
			if above(key) {
				return false
			}
		}
		return fn(key, value)
	}
	return Iterate(l, root, ascending, wrapped)
}
