package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotStatus is the lifecycle state of one sync run.
type SnapshotStatus string

const (
	SnapshotRunning        SnapshotStatus = "running"
	SnapshotSuccess        SnapshotStatus = "success"
	SnapshotError          SnapshotStatus = "error"
	SnapshotPartialSuccess SnapshotStatus = "partial_success"
)

// Terminal reports whether the status is final.
func (s SnapshotStatus) Terminal() bool {
	return s == SnapshotSuccess || s == SnapshotError || s == SnapshotPartialSuccess
}

// Snapshot records one run of the sync pipeline for one provider.
// Immutable once completed; only the owning orchestrator transitions it.
type Snapshot struct {
	ID           string             `json:"id"`
	ProviderID   string             `json:"provider_id"`
	Status       SnapshotStatus     `json:"status"`
	StartedAt    time.Time          `json:"started_at"`
	CompletedAt  time.Time          `json:"completed_at,omitempty"`
	Duration     time.Duration      `json:"duration,omitempty"`
	Created      int                `json:"created"`
	Updated      int                `json:"updated"`
	Unchanged    int                `json:"unchanged"`
	Deleted      int                `json:"deleted"`
	TotalCost    float64            `json:"total_cost"`
	TotalsByType map[string]float64 `json:"totals_by_type,omitempty"`
	SyncConfig   map[string]string  `json:"sync_config,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// NewSnapshot creates a running snapshot for the provider, recording the
// trigger reason in its sync config.
func NewSnapshot(providerID, providerType, trigger string) Snapshot {
	now := time.Now().UTC()
	return Snapshot{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Status:     SnapshotRunning,
		StartedAt:  now,
		SyncConfig: map[string]string{
			"provider_type": providerType,
			"trigger":       trigger,
			"started_at":    now.Format(time.RFC3339),
		},
	}
}

// MarkCompleted transitions the snapshot to a terminal status exactly once
// and computes its duration. A second transition is an error.
func (s *Snapshot) MarkCompleted(status SnapshotStatus, syncErr error) error {
	if s.Status != SnapshotRunning {
		return fmt.Errorf("snapshot %s already terminal (%s)", s.ID, s.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("snapshot %s: %q is not a terminal status", s.ID, status)
	}
	s.Status = status
	s.CompletedAt = time.Now().UTC()
	s.Duration = s.CompletedAt.Sub(s.StartedAt)
	if syncErr != nil {
		s.Error = syncErr.Error()
	}
	return nil
}

// AddTotal accumulates cost per canonical service onto the snapshot.
func (s *Snapshot) AddTotal(serviceName string, dailyCost float64) {
	if s.TotalsByType == nil {
		s.TotalsByType = make(map[string]float64)
	}
	s.TotalsByType[serviceName] += dailyCost
	s.TotalCost += dailyCost
}
