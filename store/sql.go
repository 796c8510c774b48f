// store/sql.go
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"avlmerkle/avl"
	"avlmerkle/hash"
	"avlmerkle/node"
)

// schemaV1 is the persistent layout from spec §6: four tables, nodes keyed
// by their hex-encoded digest, foreign keys cascading on deletion.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS node (
	hash TEXT PRIMARY KEY,
	root_version INTEGER
);
CREATE TABLE IF NOT EXISTS leaf (
	hash TEXT PRIMARY KEY REFERENCES node(hash) ON DELETE CASCADE,
	key BLOB NOT NULL,
	value BLOB NOT NULL,
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS "inner" (
	hash TEXT PRIMARY KEY REFERENCES node(hash) ON DELETE CASCADE,
	key BLOB NOT NULL,
	height INTEGER NOT NULL,
	size INTEGER NOT NULL,
	left TEXT NOT NULL REFERENCES node(hash),
	right TEXT NOT NULL REFERENCES node(hash),
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS orphan (
	hash TEXT PRIMARY KEY REFERENCES node(hash) ON DELETE CASCADE,
	until INTEGER NOT NULL
);
`

// SQL is a SQL-backed Store matching the schema above (migration name
// "v1"). Inner rows only carry their children's digests; SQL.Load
// materializes a child on demand through a singleflight-deduplicated
// cache (see cache.go), so a tree far larger than memory can be walked
// node by node.
type SQL struct {
	db     *sql.DB
	hasher hash.Hasher
	cache  *nodeCache

	mu             sync.Mutex
	workingVersion int64
	workingRoot    node.Node
	orphans        orphanSet
	pending        []node.Node

	snapshot *SnapshotIndex
}

// AttachSnapshot wires idx as RootAt's fast path: an existing committed
// version's root digest resolves via idx's in-memory binary search instead
// of a query against the node table, and every subsequent Commit/DeleteLast/
// DeleteAll keeps idx in sync. Callers populate idx for a store that
// predates it with BuildSnapshotIndex.
func (s *SQL) AttachSnapshot(idx *SnapshotIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = idx
}

// OpenSQL runs the v1 migration (idempotent) against db and returns a
// store positioned at the latest committed version. A brand new database
// gets a synthetic version 0 (the empty root), matching Memory's
// convention.
func OpenSQL(db *sql.DB, h hash.Hasher) (*SQL, error) {
	if _, err := db.Exec(schemaV1); err != nil {
		return nil, fmt.Errorf("store: migration v1: %w", err)
	}

	s := &SQL{db: db, hasher: h, orphans: make(orphanSet)}
	s.cache = newNodeCache(s.fetchNode)

	latest, root, err := s.latestCommitted()
	if err != nil {
		return nil, err
	}
	s.workingVersion = latest + 1
	s.workingRoot = root
	s.cache.publish(root)
	return s, nil
}

func (s *SQL) latestCommitted() (int64, node.Node, error) {
	var hexHash string
	var version int64
	row := s.db.QueryRow(`SELECT hash, root_version FROM node WHERE root_version IS NOT NULL ORDER BY root_version DESC LIMIT 1`)
	switch err := row.Scan(&hexHash, &version); {
	case errors.Is(err, sql.ErrNoRows):
		empty := node.Empty(s.hasher)
		if err := s.persistRoot(empty, 0); err != nil {
			return 0, node.Node{}, err
		}
		return 0, empty, nil
	case err != nil:
		return 0, node.Node{}, fmt.Errorf("store: latest committed: %w", err)
	}
	d, err := decodeDigest(hexHash)
	if err != nil {
		return 0, node.Node{}, err
	}
	root, err := s.fetchNode(d)
	if err != nil {
		return 0, node.Node{}, err
	}
	return version, root, nil
}

// Load implements node.Loader via the cache.
func (s *SQL) Load(d hash.Digest) (node.Node, error) {
	return s.cache.Load(d)
}

func (s *SQL) Loader() node.Loader { return s }

func (s *SQL) fetchNode(d hash.Digest) (node.Node, error) {
	hexHash := hex.EncodeToString(d.Bytes())

	var key, value []byte
	var version int64
	err := s.db.QueryRow(`SELECT key, value, version FROM leaf WHERE hash = ?`, hexHash).Scan(&key, &value, &version)
	if err == nil {
		return node.NewLeaf(s.hasher, key, value, version), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return node.Node{}, fmt.Errorf("store: fetch leaf %x: %w", d, err)
	}

	var height int64
	var size int64
	var left, right string
	err = s.db.QueryRow(`SELECT key, height, size, left, right, version FROM "inner" WHERE hash = ?`, hexHash).
		Scan(&key, &height, &size, &left, &right, &version)
	if errors.Is(err, sql.ErrNoRows) {
		if d == s.hasher.Digest(nil) {
			return node.Empty(s.hasher), nil
		}
		return node.Node{}, &NodeNotFoundError{Digest: d}
	}
	if err != nil {
		return node.Node{}, fmt.Errorf("store: fetch inner %x: %w", d, err)
	}

	leftDigest, err := decodeDigest(left)
	if err != nil {
		return node.Node{}, err
	}
	rightDigest, err := decodeDigest(right)
	if err != nil {
		return node.Node{}, err
	}

	// The row already carries the node's own (aggregate) height and size,
	// so the split fed to NewInnerFromDigests only needs to sum/max to
	// those totals; it need not reflect the real children's values.
	n := node.NewInnerFromDigests(s.hasher, key, int8(height-1), 0, size, 0, leftDigest, rightDigest, version)
	if n.Digest() != d {
		return node.Node{}, fmt.Errorf("store: corrupt row for %x: digest mismatch", d)
	}
	return n, nil
}

func decodeDigest(hexHash string) (hash.Digest, error) {
	b, err := hex.DecodeString(hexHash)
	if err != nil {
		return hash.Digest{}, fmt.Errorf("store: decode digest %q: %w", hexHash, err)
	}
	var d hash.Digest
	if len(b) != len(d) {
		return hash.Digest{}, fmt.Errorf("store: digest %q has wrong length %d", hexHash, len(b))
	}
	copy(d[:], b)
	return d, nil
}

func (s *SQL) RootAt(version int64) (node.Node, error) {
	s.mu.Lock()
	idx := s.snapshot
	s.mu.Unlock()
	if idx != nil {
		if d, ok, err := idx.Lookup(version); err == nil && ok {
			return s.Load(d)
		}
	}

	var hexHash string
	row := s.db.QueryRow(`SELECT hash FROM node WHERE root_version = ?`, version)
	if err := row.Scan(&hexHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return node.Node{}, ErrVersionMissing
		}
		return node.Node{}, fmt.Errorf("store: root_at(%d): %w", version, err)
	}
	d, err := decodeDigest(hexHash)
	if err != nil {
		return node.Node{}, err
	}
	return s.Load(d)
}

func (s *SQL) Versions() []int64 {
	rows, err := s.db.Query(`SELECT root_version FROM node WHERE root_version IS NOT NULL ORDER BY root_version ASC`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if rows.Scan(&v) == nil {
			out = append(out, v)
		}
	}
	return out
}

func (s *SQL) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingVersion
}

func (s *SQL) Get(key []byte) (int64, []byte, bool, error) {
	s.mu.Lock()
	root := s.workingRoot
	s.mu.Unlock()
	return avl.Get(s, root, key)
}

func (s *SQL) Has(key []byte) (bool, error) {
	s.mu.Lock()
	root := s.workingRoot
	s.mu.Unlock()
	return avl.Has(s, root, key)
}

func (s *SQL) GetByIndex(index int64) ([]byte, []byte, error) {
	s.mu.Lock()
	root := s.workingRoot
	s.mu.Unlock()
	return avl.GetByIndex(s, root, index)
}

func (s *SQL) Next(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	root := s.workingRoot
	s.mu.Unlock()
	return avl.Next(s, root, key)
}

func (s *SQL) Set(key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := avl.NewChanges()
	newRoot, updated, err := avl.Set(s.hasher, s, s.workingRoot, key, value, s.workingVersion, changes)
	if err != nil {
		return false, err
	}
	s.stage(changes)
	s.workingRoot = newRoot
	return updated, nil
}

func (s *SQL) Remove(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes := avl.NewChanges()
	newRoot, removed, value, err := avl.Remove(s.hasher, s, s.workingRoot, key, s.workingVersion, changes)
	if err != nil {
		return nil, false, err
	}
	if removed {
		s.stage(changes)
		s.workingRoot = newRoot
	}
	return value, removed, nil
}

// stage publishes new nodes to the cache (so later calls in the same
// working cycle can see them before they're durable) and age-filters
// orphans exactly as Memory.apply does.
func (s *SQL) stage(changes *avl.Changes) {
	for _, n := range changes.Created() {
		s.cache.publish(n)
		s.pending = append(s.pending, n)
	}
	for _, d := range changes.Orphaned() {
		if n, err := s.cache.Load(d); err == nil && n.Version() < s.workingVersion {
			s.orphans.record(s.workingVersion, d)
		}
	}
}

func (s *SQL) Commit() (hash.Digest, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return hash.Digest{}, 0, fmt.Errorf("store: commit: %w", err)
	}
	defer tx.Rollback()

	for _, n := range s.pending {
		if err := insertNode(tx, n); err != nil {
			return hash.Digest{}, 0, err
		}
	}
	committed := s.workingVersion
	if _, err := tx.Exec(`UPDATE node SET root_version = ? WHERE hash = ?`, committed, hex.EncodeToString(s.workingRoot.Digest().Bytes())); err != nil {
		return hash.Digest{}, 0, fmt.Errorf("store: commit: mark root: %w", err)
	}
	for _, d := range s.orphans[committed] {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO orphan(hash, until) VALUES (?, ?)`, hex.EncodeToString(d.Bytes()), committed); err != nil {
			return hash.Digest{}, 0, fmt.Errorf("store: commit: record orphan: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return hash.Digest{}, 0, fmt.Errorf("store: commit: %w", err)
	}

	s.pending = nil
	delete(s.orphans, committed)
	s.workingVersion++
	if s.snapshot != nil {
		if err := s.snapshot.Append(committed, s.workingRoot.Digest()); err != nil {
			return hash.Digest{}, 0, fmt.Errorf("store: commit: update snapshot index: %w", err)
		}
	}
	return s.workingRoot.Digest(), committed, nil
}

func insertNode(tx *sql.Tx, n node.Node) error {
	hexHash := hex.EncodeToString(n.Digest().Bytes())
	if _, err := tx.Exec(`INSERT OR IGNORE INTO node(hash, root_version) VALUES (?, NULL)`, hexHash); err != nil {
		return fmt.Errorf("store: insert node %x: %w", n.Digest(), err)
	}
	if n.IsLeaf() {
		_, err := tx.Exec(`INSERT OR IGNORE INTO leaf(hash, key, value, version) VALUES (?, ?, ?, ?)`,
			hexHash, n.Key(), n.Value(), n.Version())
		if err != nil {
			return fmt.Errorf("store: insert leaf %x: %w", n.Digest(), err)
		}
		return nil
	}
	_, err := tx.Exec(`INSERT OR IGNORE INTO "inner"(hash, key, height, size, left, right, version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hexHash, n.Key(), n.Height(), n.Size(), hex.EncodeToString(n.Left().Bytes()), hex.EncodeToString(n.Right().Bytes()), n.Version())
	if err != nil {
		return fmt.Errorf("store: insert inner %x: %w", n.Digest(), err)
	}
	return nil
}

func (s *SQL) persistRoot(n node.Node, version int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertNode(tx, n); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE node SET root_version = ? WHERE hash = ?`, version, hex.EncodeToString(n.Digest().Bytes())); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	delete(s.orphans, s.workingVersion)

	root, err := s.lastCommittedLocked()
	if err != nil {
		return err
	}
	s.workingRoot = root
	return nil
}

func (s *SQL) lastCommittedLocked() (node.Node, error) {
	row := s.db.QueryRow(`SELECT hash FROM node WHERE root_version IS NOT NULL AND root_version < ? ORDER BY root_version DESC LIMIT 1`, s.workingVersion)
	var hexHash string
	if err := row.Scan(&hexHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return node.Empty(s.hasher), nil
		}
		return node.Node{}, fmt.Errorf("store: last committed: %w", err)
	}
	d, err := decodeDigest(hexHash)
	if err != nil {
		return node.Node{}, err
	}
	return s.Load(d)
}

func (s *SQL) DeleteLast() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT root_version FROM node WHERE root_version IS NOT NULL ORDER BY root_version DESC LIMIT 1`)
	var latest int64
	if err := row.Scan(&latest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("store: delete_last: %w", err)
	}
	if latest == 0 {
		return nil // never delete the synthetic empty version 0
	}
	if _, err := s.db.Exec(`UPDATE node SET root_version = NULL WHERE root_version = ?`, latest); err != nil {
		return fmt.Errorf("store: delete_last: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM orphan WHERE until = ?`, latest); err != nil {
		return fmt.Errorf("store: delete_last: clear orphans: %w", err)
	}
	if s.snapshot != nil {
		if err := s.snapshot.TruncateFrom(latest); err != nil {
			return fmt.Errorf("store: delete_last: update snapshot index: %w", err)
		}
	}

	s.workingVersion = latest
	root, err := s.lastCommittedLocked()
	if err != nil {
		return err
	}
	s.workingRoot = root
	return nil
}

func (s *SQL) DeleteAll(from int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`UPDATE node SET root_version = NULL WHERE root_version >= ?`, from); err != nil {
		return fmt.Errorf("store: delete_all: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM orphan WHERE until >= ?`, from); err != nil {
		return fmt.Errorf("store: delete_all: clear orphans: %w", err)
	}
	if s.snapshot != nil {
		if err := s.snapshot.TruncateFrom(from); err != nil {
			return fmt.Errorf("store: delete_all: update snapshot index: %w", err)
		}
	}

	s.workingVersion = from
	root, err := s.lastCommittedLocked()
	if err != nil {
		return err
	}
	s.workingRoot = root
	return nil
}

func (s *SQL) Hash() hash.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.lastCommittedLocked()
	if err != nil {
		return hash.Digest{}
	}
	return root.Digest()
}

func (s *SQL) WorkingHash() hash.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingRoot.Digest()
}

func (s *SQL) WorkingRoot() node.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingRoot
}

var _ Store = (*SQL)(nil)
