package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// CreateSnapshot persists a new running snapshot and records its position
// in the provider's snapshot order.
func (s *Store) CreateSnapshot(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketSnapshots).Get([]byte(snap.ID)) != nil {
			return fmt.Errorf("snapshot %s already exists", snap.ID)
		}
		value, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketSnapshots).Put([]byte(snap.ID), value); err != nil {
			return err
		}
		orderKey := append([]byte(snap.ProviderID+"|"), seqBytes(seq)...)
		if err := tx.Bucket(bucketSnapshotOrder).Put(orderKey, []byte(snap.ID)); err != nil {
			return err
		}
		return putSequence(tx, seq)
	})
	if err != nil {
		s.seq--
		return fmt.Errorf("create snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// UpdateSnapshot overwrites a snapshot row. Only the owning orchestrator
// calls this, and only to transition a running snapshot to terminal.
func (s *Store) UpdateSnapshot(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return updateSnapshotTx(tx, snap)
	})
	if err != nil {
		return fmt.Errorf("update snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func updateSnapshotTx(tx *bbolt.Tx, snap types.Snapshot) error {
	bucket := tx.Bucket(bucketSnapshots)
	existing := bucket.Get([]byte(snap.ID))
	if existing == nil {
		return fmt.Errorf("snapshot %s does not exist", snap.ID)
	}
	var prev types.Snapshot
	if err := json.Unmarshal(existing, &prev); err != nil {
		return err
	}
	if prev.Status.Terminal() {
		return fmt.Errorf("snapshot %s is already terminal (%s)", snap.ID, prev.Status)
	}
	value, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(snap.ID), value)
}

// GetSnapshot returns one snapshot by ID, or nil when absent.
func (s *Store) GetSnapshot(id string) (*types.Snapshot, error) {
	var snap *types.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(id))
		if v == nil {
			return nil
		}
		snap = &types.Snapshot{}
		return json.Unmarshal(v, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns the provider's snapshots newest-first, up to limit
// (0 means all).
func (s *Store) ListSnapshots(providerID string, limit int) ([]types.Snapshot, error) {
	var out []types.Snapshot
	prefix := []byte(providerID + "|")

	err := s.db.View(func(tx *bbolt.Tx) error {
		order := tx.Bucket(bucketSnapshotOrder)
		snaps := tx.Bucket(bucketSnapshots)

		c := order.Cursor()
		// Seek to the last key within the provider's prefix range.
		end := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		k, id := c.Seek(end)
		if k == nil {
			k, id = c.Last()
		} else {
			k, id = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, id = c.Prev() {
			v := snaps.Get(id)
			if v == nil {
				continue
			}
			var snap types.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			out = append(out, snap)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", providerID, err)
	}
	return out, nil
}
