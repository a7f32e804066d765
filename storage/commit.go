package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// SyncBatch is everything one provider sync produced. Committed as a
// single bbolt transaction so a provider's cycle lands all-or-nothing.
type SyncBatch struct {
	Snapshot     types.Snapshot
	Resources    []types.Resource
	States       []types.ResourceState
	Unrecognized []types.UnrecognizedResource
}

// CommitSync upserts every canonical resource, appends every state and
// unrecognized row, and stores the terminal snapshot in one transaction.
func (s *Store) CommitSync(batch SyncBatch) error {
	if !batch.Snapshot.Status.Terminal() {
		return fmt.Errorf("commit sync: snapshot %s is not terminal", batch.Snapshot.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	startSeq := s.seq
	err := s.db.Update(func(tx *bbolt.Tx) error {
		resources := tx.Bucket(bucketResources)
		for _, r := range batch.Resources {
			value, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := resources.Put([]byte(r.Key().String()), value); err != nil {
				return err
			}
		}

		for _, st := range batch.States {
			s.seq++
			if err := appendStateTx(tx, st, s.seq); err != nil {
				return err
			}
		}
		for _, u := range batch.Unrecognized {
			s.seq++
			if err := appendUnrecognizedTx(tx, u, s.seq); err != nil {
				return err
			}
		}

		if err := updateSnapshotTx(tx, batch.Snapshot); err != nil {
			return err
		}
		return putSequence(tx, s.seq)
	})
	if err != nil {
		s.seq = startSeq
		return fmt.Errorf("commit sync %s: %w", batch.Snapshot.ID, err)
	}

	for _, r := range batch.Resources {
		s.index.ReplaceOrInsert(indexEntry{key: r.Key().String(), resource: r})
	}
	return nil
}
