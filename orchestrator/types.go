package orchestrator

import (
	"time"

	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/types"
)

// ProviderSpec pairs a provider account with its plugin instance.
type ProviderSpec struct {
	ProviderID string
	Plugin     plugin.Plugin
}

// SyncReport is the per-provider outcome of one sync.
type SyncReport struct {
	ProviderID      string               `json:"provider_id"`
	SnapshotID      string               `json:"snapshot_id"`
	Status          types.SnapshotStatus `json:"status"`
	ResourcesSynced int                  `json:"resources_synced"`
	Created         int                  `json:"created"`
	Updated         int                  `json:"updated"`
	Unchanged       int                  `json:"unchanged"`
	Deleted         int                  `json:"deleted"`
	TotalCost       float64              `json:"total_cost"`
	Warnings        []string             `json:"warnings,omitempty"`
	Duration        time.Duration        `json:"duration"`
	Err             error                `json:"-"`
}

// DefaultConcurrency bounds the batch worker pool.
const DefaultConcurrency = 3
