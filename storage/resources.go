package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/lasku/types"
)

// UpsertResource inserts or updates one canonical resource by its natural
// key. Returns true when the resource did not exist before.
func (s *Store) UpsertResource(r types.Resource) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key().String()
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketResources)
		created = bucket.Get([]byte(key)) == nil
		value, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return false, fmt.Errorf("upsert resource %s: %w", key, err)
	}

	s.index.ReplaceOrInsert(indexEntry{key: key, resource: r})
	return created, nil
}

// GetResource returns the canonical resource for the key, or nil when it
// has never been seen.
func (s *Store) GetResource(key types.ResourceKey) (*types.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.index.Get(indexEntry{key: key.String()}); ok {
		r := entry.resource
		return &r, nil
	}
	return nil, nil
}

// ActiveResources returns every active canonical resource for the
// provider, ordered by natural key.
func (s *Store) ActiveResources(providerID string) ([]types.Resource, error) {
	return s.resourcesByProvider(providerID, true)
}

// ResourcesByProvider returns every canonical resource for the provider,
// active or not.
func (s *Store) ResourcesByProvider(providerID string) ([]types.Resource, error) {
	return s.resourcesByProvider(providerID, false)
}

func (s *Store) resourcesByProvider(providerID string, activeOnly bool) ([]types.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := providerID + "|"
	var out []types.Resource
	s.index.AscendGreaterOrEqual(indexEntry{key: prefix}, func(entry indexEntry) bool {
		if !strings.HasPrefix(entry.key, prefix) {
			return false
		}
		if !activeOnly || entry.resource.IsActive {
			out = append(out, entry.resource)
		}
		return true
	})
	return out, nil
}
