// Package storage persists the canonical resource inventory, sync
// snapshots, per-resource state diffs, and the unrecognized-resource
// ledger. Snapshots and state rows are append-only; resources are upserted
// by their natural key. One bbolt transaction is the logical unit of work
// for a provider sync.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// Bucket names in bbolt
var (
	bucketResources     = []byte("resources")
	bucketSnapshots     = []byte("snapshots")
	bucketSnapshotOrder = []byte("snapshot_order")
	bucketStates        = []byte("states")
	bucketStateIndex    = []byte("state_index")
	bucketUnrecognized  = []byte("unrecognized")
	bucketMeta          = []byte("meta")
)

var keySequence = []byte("sequence")

// Store is the bbolt-backed inventory store with an in-memory btree index
// of canonical resources for fast active-set queries.
type Store struct {
	mu sync.RWMutex

	index *btree.BTreeG[indexEntry]
	db    *bbolt.DB
	seq   uint64
	dir   string
}

type indexEntry struct {
	key      string
	resource types.Resource
}

// Open creates or opens the store in the given directory.
func Open(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "lasku.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			bucketResources, bucketSnapshots, bucketSnapshotOrder,
			bucketStates, bucketStateIndex, bucketUnrecognized, bucketMeta,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		index: btree.NewG[indexEntry](32, func(a, b indexEntry) bool {
			return a.key < b.key
		}),
		db:  db,
		dir: dir,
	}

	if err := s.loadSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats returns the resource count, current sequence and db size.
func (s *Store) Stats() (resourceCount int, currentSeq uint64, dbSizeBytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resourceCount = s.index.Len()
	currentSeq = s.seq
	if tx, err := s.db.Begin(false); err == nil {
		dbSizeBytes = tx.Size()
		_ = tx.Rollback()
	}
	return resourceCount, currentSeq, dbSizeBytes
}

func (s *Store) loadSequence() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keySequence); v != nil {
			s.seq = binary.BigEndian.Uint64(v)
		}
		return nil
	})
}

// rebuildIndex loads every canonical resource into the btree on open.
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(k, v []byte) error {
			var r types.Resource
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt resource row %q: %w", k, err)
			}
			s.index.ReplaceOrInsert(indexEntry{key: string(k), resource: r})
			return nil
		})
	})
}

// nextSeq must be called with s.mu held.
func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func seqBytes(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func putSequence(tx *bbolt.Tx, seq uint64) error {
	return tx.Bucket(bucketMeta).Put(keySequence, seqBytes(seq))
}
