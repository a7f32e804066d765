package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// AppendUnrecognized records one sighting of a billed object whose type
// could not be mapped. One row per sighting, never deduplicated.
func (s *Store) AppendUnrecognized(u types.UnrecognizedResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := appendUnrecognizedTx(tx, u, seq); err != nil {
			return err
		}
		return putSequence(tx, seq)
	})
	if err != nil {
		s.seq--
		return fmt.Errorf("append unrecognized %s: %w", u.ObjectID, err)
	}
	return nil
}

func appendUnrecognizedTx(tx *bbolt.Tx, u types.UnrecognizedResource, seq uint64) error {
	value, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketUnrecognized).Put(seqBytes(seq), value)
}

// UnrecognizedSince returns unrecognized sightings observed at or after
// the given time, oldest first.
func (s *Store) UnrecognizedSince(since time.Time) ([]types.UnrecognizedResource, error) {
	var out []types.UnrecognizedResource
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUnrecognized).ForEach(func(_, v []byte) error {
			var u types.UnrecognizedResource
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if !u.ObservedAt.Before(since) {
				out = append(out, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list unrecognized: %w", err)
	}
	return out, nil
}
