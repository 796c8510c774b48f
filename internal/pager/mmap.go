// internal/pager/mmap.go
// Package pager provides the memory-mapped file primitive backing
// store.SnapshotIndex (see store/snapshot.go): a single growable array of
// fixed-width records, not a paged database file. Adapted from the
// teacher's pkg/pager, which layers a page cache, a WAL, and a freelist on
// top of the same MmapFile primitive for a full page-structured database —
// none of which the snapshot index needs, since it only ever appends
// records and reads them back by offset.
package pager

// MmapFile provides memory-mapped file access.
// Platform-specific implementations are in mmap_unix.go and mmap_windows.go.
type MmapFile struct {
	file interface{} // *os.File on Unix, windows.Handle on Windows
	data []byte
	size int64
}

// Size returns the current file size.
func (m *MmapFile) Size() int64 {
	return m.size
}

// Slice returns a slice of the mapped memory at the given offset and length.
func (m *MmapFile) Slice(offset, length int) []byte {
	if offset+length > len(m.data) {
		return nil
	}
	return m.data[offset : offset+length]
}

// EnsureCapacity grows the mapped file, if needed, so it is at least
// required bytes long. The growth policy is the same one the teacher's
// Pager.Allocate uses when it runs out of room for a new page: grow by at
// least 10% of the current size, or to the exact amount required if that's
// larger, rather than remapping on every single small append.
func (m *MmapFile) EnsureCapacity(required int64) error {
	if required <= m.size {
		return nil
	}
	newSize := m.size + m.size/10
	if newSize < required {
		newSize = required
	}
	return m.Grow(newSize)
}
