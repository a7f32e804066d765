package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// AppendState writes one immutable resource-state row. State rows are
// strictly ordered by the store sequence, which follows snapshot creation
// order under single-writer-per-provider discipline.
func (s *Store) AppendState(st types.ResourceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := appendStateTx(tx, st, seq); err != nil {
			return err
		}
		return putSequence(tx, seq)
	})
	if err != nil {
		s.seq--
		return fmt.Errorf("append state for %s: %w", st.ResourceID, err)
	}
	return nil
}

func appendStateTx(tx *bbolt.Tx, st types.ResourceState, seq uint64) error {
	value, err := json.Marshal(st)
	if err != nil {
		return err
	}
	stateKey := append([]byte(st.SnapshotID+"|"), seqBytes(seq)...)
	if err := tx.Bucket(bucketStates).Put(stateKey, value); err != nil {
		return err
	}

	resKey := types.ResourceKey{
		ProviderID:   st.ProviderID,
		ResourceID:   st.ResourceID,
		ResourceType: st.ResourceType,
	}
	indexKey := append([]byte(resKey.String()+"|"), seqBytes(seq)...)
	return tx.Bucket(bucketStateIndex).Put(indexKey, stateKey)
}

// StatesForSnapshot returns every state row written under one snapshot, in
// write order.
func (s *Store) StatesForSnapshot(snapshotID string) ([]types.ResourceState, error) {
	var out []types.ResourceState
	prefix := []byte(snapshotID + "|")

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketStates).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var st types.ResourceState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("states for snapshot %s: %w", snapshotID, err)
	}
	return out, nil
}

// StatesForResource returns one resource's state rows across snapshots, in
// sequence order (oldest first).
func (s *Store) StatesForResource(key types.ResourceKey) ([]types.ResourceState, error) {
	var out []types.ResourceState
	prefix := []byte(key.String() + "|")

	err := s.db.View(func(tx *bbolt.Tx) error {
		states := tx.Bucket(bucketStates)
		c := tx.Bucket(bucketStateIndex).Cursor()
		for k, stateKey := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, stateKey = c.Next() {
			v := states.Get(stateKey)
			if v == nil {
				continue
			}
			var st types.ResourceState
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("states for resource %s: %w", key, err)
	}
	return out, nil
}
