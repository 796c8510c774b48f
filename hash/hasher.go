// hash/hasher.go
// Package hash defines the digest discipline that binds the contents of a
// tree's nodes to a single root digest. A Hasher is a pure function table:
// it never retains state between calls and never mutates its arguments.
package hash

import (
	"crypto/sha256"

	"avlmerkle/internal/encoding"
)

// Size is the width in bytes of a digest produced by the default hasher.
const Size = sha256.Size

// Digest is a fixed-width content hash. The zero value is not a valid
// digest of anything; use SHA256Hasher.Empty for the digest of the empty tree.
type Digest [Size]byte

// IsZero reports whether d is the unset digest value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Bytes returns d as a byte slice. The caller must not mutate the result.
func (d Digest) Bytes() []byte {
	return d[:]
}

// Hasher computes the digests of empty trees, leaves, and inner nodes.
// Implementations must be pure and side-effect free: the same arguments
// always produce the same digest, so that re-hashing during verification
// reproduces exactly what was committed.
type Hasher interface {
	// Digest hashes an arbitrary byte string, e.g. a leaf's value.
	Digest(b []byte) Digest

	// LeafDigest computes the digest of a leaf carrying key, the digest of
	// value, and the version at which the leaf was created.
	LeafDigest(key []byte, valueDigest Digest, version int64) Digest

	// InnerDigest computes the digest of an inner node from its height,
	// subtree size, left/right child digests, and creation version.
	InnerDigest(height int8, size int64, left, right Digest, version int64) Digest
}

// SHA256Hasher is the default Hasher. Digests are 32 bytes, produced by
// hashing a canonical length-prefixed encoding of the node's fields.
type SHA256Hasher struct{}

// NewSHA256Hasher returns the default SHA-256 based Hasher.
func NewSHA256Hasher() SHA256Hasher {
	return SHA256Hasher{}
}

// Empty is the digest of the tree with no leaves: H(∅).
func (SHA256Hasher) Empty() Digest {
	return SHA256Hasher{}.Digest(nil)
}

func (SHA256Hasher) Digest(b []byte) Digest {
	return sha256.Sum256(b)
}

// LeafDigest encodes int8(0) || varint(1) || varint(version) ||
// length_prefixed(key) || length_prefixed(value_digest), then hashes it.
// The constant size=1 is encoded explicitly so the leaf preimage has the
// same shape as an inner node's (height, size, version, left, right).
func (h SHA256Hasher) LeafDigest(key []byte, valueDigest Digest, version int64) Digest {
	buf := make([]byte, 0, 1+10+10+10+len(key)+10+Size)
	buf = append(buf, 0)
	buf = appendVarint(buf, 1)
	buf = appendVersion(buf, version)
	buf = appendLengthPrefixed(buf, key)
	buf = appendLengthPrefixed(buf, valueDigest.Bytes())
	return h.Digest(buf)
}

// InnerDigest encodes int8(height) || varint(size) || varint(version) ||
// length_prefixed(left) || length_prefixed(right), then hashes it.
func (h SHA256Hasher) InnerDigest(height int8, size int64, left, right Digest, version int64) Digest {
	buf := make([]byte, 0, 1+10+10+10+Size+10+Size)
	buf = append(buf, byte(height))
	buf = appendVarint(buf, size)
	buf = appendVersion(buf, version)
	buf = appendLengthPrefixed(buf, left.Bytes())
	buf = appendLengthPrefixed(buf, right.Bytes())
	return h.Digest(buf)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [10]byte
	n := encoding.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// appendVersion encodes a version number. Negative versions are never
// produced by the store (versions start at 0 and only increase), but the
// preimage still follows the two's-complement-as-unsigned convention so an
// out-of-range value hashes deterministically rather than panicking.
func appendVersion(buf []byte, version int64) []byte {
	return appendVarint(buf, version)
}

func appendLengthPrefixed(buf, b []byte) []byte {
	var tmp [10]byte
	n := encoding.PutUvarint(tmp[:], uint64(len(b)))
	buf = append(buf, tmp[:n]...)
	return append(buf, b...)
}
