// store/cache.go
package store

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"avlmerkle/hash"
	"avlmerkle/node"
)

// nodeCache memoizes a slower backing fetch behind node.Loader, using
// singleflight so concurrent requests for the same not-yet-cached digest
// share a single underlying fetch rather than racing duplicate reads. This
// is the "lazy value box" of spec §9: at-most-once evaluation and
// publication under concurrent access.
type nodeCache struct {
	fetch func(hash.Digest) (node.Node, error)

	mu    sync.RWMutex
	nodes map[hash.Digest]node.Node

	group singleflight.Group
}

func newNodeCache(fetch func(hash.Digest) (node.Node, error)) *nodeCache {
	return &nodeCache{fetch: fetch, nodes: make(map[hash.Digest]node.Node)}
}

// Load implements node.Loader.
func (c *nodeCache) Load(d hash.Digest) (node.Node, error) {
	c.mu.RLock()
	n, ok := c.nodes[d]
	c.mu.RUnlock()
	if ok {
		return n, nil
	}

	v, err, _ := c.group.Do(string(d.Bytes()), func() (interface{}, error) {
		n, err := c.fetch(d)
		if err != nil {
			return node.Node{}, err
		}
		c.mu.Lock()
		c.nodes[d] = n
		c.mu.Unlock()
		return n, nil
	})
	if err != nil {
		return node.Node{}, err
	}
	return v.(node.Node), nil
}

// publish inserts a node the caller just built, short-circuiting Load for
// subsequent lookups before it's durable in the backing store.
func (c *nodeCache) publish(n node.Node) {
	c.mu.Lock()
	c.nodes[n.Digest()] = n
	c.mu.Unlock()
}
