package types

import (
	"encoding/json"
	"time"
)

// Canonical resource statuses. Provider statuses are normalized into these
// by the registry; anything unmapped passes through as-is.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusUnknown = "unknown"
)

// Well-known service names produced by taxonomy grouping.
const (
	ServiceCompute      = "compute"
	ServiceBlockStorage = "block_storage"
	ServiceFileStorage  = "file_storage"
	ServiceDatabase     = "managed_database"
	ServiceKubernetes   = "kubernetes_cluster"
	ServiceRegistry     = "container_registry"
	ServiceLoadBalancer = "load_balancer"
	ServiceReservedIP   = "reserved_ip"
	ServiceOther        = "other_service"
)

// Resource is the canonical current record for one provider-side object.
// Identity is the (ProviderID, ResourceID, ResourceType) triple.
type Resource struct {
	ProviderID   string          `json:"provider_id"`
	ResourceID   string          `json:"resource_id"`
	ResourceType string          `json:"resource_type"`
	Name         string          `json:"name"`
	ServiceName  string          `json:"service_name"`
	Region       string          `json:"region"`
	Status       string          `json:"status"`
	DailyCost    float64         `json:"daily_cost"`
	Currency     string          `json:"currency"`
	Tags         Tags            `json:"tags"`
	RawConfig    json.RawMessage `json:"raw_config,omitempty"`
	IsActive     bool            `json:"is_active"`
	FirstSeen    time.Time       `json:"first_seen"`
	LastSync     time.Time       `json:"last_sync"`
}

// ResourceKey is the natural key that makes upserts idempotent.
type ResourceKey struct {
	ProviderID   string
	ResourceID   string
	ResourceType string
}

// Key returns the resource's natural key.
func (r Resource) Key() ResourceKey {
	return ResourceKey{
		ProviderID:   r.ProviderID,
		ResourceID:   r.ResourceID,
		ResourceType: r.ResourceType,
	}
}

// String renders the key in its storage form.
func (k ResourceKey) String() string {
	return k.ProviderID + "|" + k.ResourceID + "|" + k.ResourceType
}

// Less orders keys for the in-memory index.
func (k ResourceKey) Less(than ResourceKey) bool {
	return k.String() < than.String()
}

// IsZero reports whether the resource is the empty previous-state marker
// used for newly created resources.
func (r Resource) IsZero() bool {
	return r.ProviderID == "" && r.ResourceID == "" && r.ResourceType == ""
}

// ProviderResource is a plugin's normalized output before it becomes a
// canonical Resource. It is transient and never persisted directly.
type ProviderResource struct {
	ResourceID   string          `json:"resource_id"`
	Name         string          `json:"name"`
	ResourceType string          `json:"resource_type"`
	ServiceName  string          `json:"service_name"`
	Region       string          `json:"region"`
	Status       string          `json:"status"`
	DailyCost    float64         `json:"daily_cost"`
	Currency     string          `json:"currency"`
	Tags         Tags            `json:"tags"`
	RawConfig    json.RawMessage `json:"raw_config,omitempty"`
}

// Canonical merges the provider resource into a canonical Resource for the
// given provider, carrying FirstSeen forward from prev when it exists.
func (p ProviderResource) Canonical(providerID string, prev *Resource, now time.Time) Resource {
	r := Resource{
		ProviderID:   providerID,
		ResourceID:   p.ResourceID,
		ResourceType: p.ResourceType,
		Name:         p.Name,
		ServiceName:  p.ServiceName,
		Region:       p.Region,
		Status:       p.Status,
		DailyCost:    p.DailyCost,
		Currency:     p.Currency,
		Tags:         p.Tags,
		RawConfig:    p.RawConfig,
		IsActive:     true,
		FirstSeen:    now,
		LastSync:     now,
	}
	if prev != nil && !prev.FirstSeen.IsZero() {
		r.FirstSeen = prev.FirstSeen
	}
	if r.Currency == "" && prev != nil {
		r.Currency = prev.Currency
	}
	return r
}

// UnrecognizedResource is one sighting of a billed object whose type could
// not be mapped or inferred. Never deduplicated across syncs.
type UnrecognizedResource struct {
	ProviderID string    `json:"provider_id"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	ObjectID   string    `json:"object_id"`
	ObjectName string    `json:"object_name"`
	RawType    string    `json:"raw_type"`
	MetricKeys []string  `json:"metric_keys,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}
