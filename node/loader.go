// node/loader.go
package node

import "avlmerkle/hash"

// Loader materializes a node given its digest. Inner nodes only carry their
// children's digests (see Node.Left/Right), so every traversal that needs to
// descend into a child goes through a Loader. An in-memory backing store can
// implement this as a plain map lookup; a persistent store may hit disk or a
// database and is expected to cache the result (see the store package's
// node cache).
type Loader interface {
	Load(d hash.Digest) (Node, error)
}

// LoadLeft materializes n's left child via l.
func (n Node) LoadLeft(l Loader) (Node, error) {
	return l.Load(n.Left())
}

// LoadRight materializes n's right child via l.
func (n Node) LoadRight(l Loader) (Node, error) {
	return l.Load(n.Right())
}
