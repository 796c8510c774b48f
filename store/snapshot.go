// store/snapshot.go
// A snapshot index is a flat, memory-mapped file recording every committed
// version's root digest in commit order. SQL consults it in RootAt before
// falling back to a database/sql round trip (see store/sql.go), so it is a
// real read accelerator in front of the persistent backing of §4.5/§6, not
// just a standalone structure — the SQL backing remains the source of
// truth; this is a derived, rebuildable cache over it, kept up to date as
// SQL commits and deletes versions.
//
// Built on the memory-mapped file primitive in internal/pager.
package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"avlmerkle/hash"
	"avlmerkle/internal/pager"
)

const (
	snapshotHeaderSize = 8 // record count, big-endian uint64
	snapshotRecordSize = 8 + hash.Size
	snapshotInitialCap = 64 // records
)

// SnapshotIndex is an append-only, memory-mapped version -> root digest
// table. Versions are appended in increasing commit order, so Lookup can
// binary search directly over the mapped bytes instead of scanning.
type SnapshotIndex struct {
	mu    sync.RWMutex
	file  *pager.MmapFile
	count int64
}

// OpenSnapshotIndex opens or creates the index file at path.
func OpenSnapshotIndex(path string) (*SnapshotIndex, error) {
	f, err := pager.OpenMmapFile(path, snapshotHeaderSize+snapshotInitialCap*snapshotRecordSize)
	if err != nil {
		return nil, fmt.Errorf("store: open snapshot index: %w", err)
	}
	count := int64(binary.BigEndian.Uint64(f.Slice(0, 8)))
	return &SnapshotIndex{file: f, count: count}, nil
}

// Close unmaps and closes the backing file.
func (s *SnapshotIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Len reports how many versions are recorded.
func (s *SnapshotIndex) Len() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Append records version's root digest. Callers must append in increasing
// version order — Lookup's binary search assumes it.
func (s *SnapshotIndex) Append(version int64, digest hash.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := snapshotHeaderSize + s.count*snapshotRecordSize
	if err := s.file.EnsureCapacity(offset + snapshotRecordSize); err != nil {
		return fmt.Errorf("store: grow snapshot index: %w", err)
	}

	rec := s.file.Slice(int(offset), snapshotRecordSize)
	binary.BigEndian.PutUint64(rec[:8], uint64(version))
	copy(rec[8:], digest.Bytes())

	s.count++
	binary.BigEndian.PutUint64(s.file.Slice(0, 8), uint64(s.count))
	return s.file.Sync()
}

// Lookup returns the root digest recorded for version, or ok=false if no
// record matches.
func (s *SnapshotIndex) Lookup(version int64) (digest hash.Digest, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := int64(0), s.count-1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		offset := snapshotHeaderSize + mid*snapshotRecordSize
		rec := s.file.Slice(int(offset), snapshotRecordSize)
		if rec == nil {
			return hash.Digest{}, false, fmt.Errorf("store: snapshot index corrupt at record %d", mid)
		}
		v := int64(binary.BigEndian.Uint64(rec[:8]))
		switch {
		case v == version:
			var d hash.Digest
			copy(d[:], rec[8:])
			return d, true, nil
		case v < version:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return hash.Digest{}, false, nil
}

// TruncateFrom drops every recorded version >= from, keeping the index
// consistent with a DeleteLast/DeleteAll that just uncommitted those
// versions. It is a no-op if no recorded version reaches that far.
func (s *SnapshotIndex) TruncateFrom(from int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := int64(0), s.count
	for lo < hi {
		mid := lo + (hi-lo)/2
		offset := snapshotHeaderSize + mid*snapshotRecordSize
		rec := s.file.Slice(int(offset), snapshotRecordSize)
		if int64(binary.BigEndian.Uint64(rec[:8])) < from {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == s.count {
		return nil
	}
	s.count = lo
	binary.BigEndian.PutUint64(s.file.Slice(0, 8), uint64(s.count))
	return s.file.Sync()
}

// BuildSnapshotIndex replays every committed version of s, in order, into a
// fresh index file at path. Used to bootstrap the accelerator for a store
// that was populated before the index existed.
func BuildSnapshotIndex(path string, s Store) (*SnapshotIndex, error) {
	idx, err := OpenSnapshotIndex(path)
	if err != nil {
		return nil, err
	}
	for _, v := range s.Versions() {
		root, err := s.RootAt(v)
		if err != nil {
			idx.Close()
			return nil, fmt.Errorf("store: build snapshot index: root_at(%d): %w", v, err)
		}
		if err := idx.Append(v, root.Digest()); err != nil {
			idx.Close()
			return nil, err
		}
	}
	return idx, nil
}
