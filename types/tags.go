package types

import "strconv"

// Deactivation reasons recorded on resources that fell out of billing.
const (
	ReasonNoCurrentBilling = "no_current_billing"
)

// Cost sources, ordered by confidence. Every cost carries one so that
// downstream consumers can weight trust accordingly.
const (
	CostSourceProviderBilling = "provider_billing"
	CostSourceSKUTable        = "sku_table"
	CostSourceStaticTable     = "static_table"
	CostSourceFallback        = "fallback"
)

// Tags carries cross-provider resource metadata with explicit fields for
// the keys the engine itself reads and writes, plus a bounded Extra map for
// genuinely provider-specific data.
type Tags struct {
	// Standard infrastructure tags
	Name        string `json:"name,omitempty"`
	Environment string `json:"environment,omitempty"`
	Team        string `json:"team,omitempty"`
	Project     string `json:"project,omitempty"`
	CostCenter  string `json:"cost_center,omitempty"`

	// Reconciliation annotations
	CostSource         string   `json:"cost_source,omitempty"`
	EnrichmentFailed   bool     `json:"enrichment_failed,omitempty"`
	Orphan             bool     `json:"orphan,omitempty"`
	DeactivationReason string   `json:"deactivation_reason,omitempty"`
	AttachedVolumes    []string `json:"attached_volumes,omitempty"`
	UnifiedInto        string   `json:"unified_into,omitempty"`

	// Opportunistic performance enrichment
	CPUUtilPct float64 `json:"cpu_util_pct,omitempty"`
	RAMUtilPct float64 `json:"ram_util_pct,omitempty"`

	// Provider-specific enrichment that does not warrant schema fields
	Extra map[string]string `json:"extra,omitempty"`
}

// SetExtra records a provider-specific tag, allocating the map lazily.
func (t *Tags) SetExtra(key, value string) {
	if t.Extra == nil {
		t.Extra = make(map[string]string)
	}
	t.Extra[key] = value
}

// SetExtraFloat records a numeric provider-specific tag.
func (t *Tags) SetExtraFloat(key string, value float64) {
	t.SetExtra(key, strconv.FormatFloat(value, 'f', -1, 64))
}

// GetExtra returns a provider-specific tag value, or "" when absent.
func (t Tags) GetExtra(key string) string {
	if t.Extra == nil {
		return ""
	}
	return t.Extra[key]
}

// AddVolume appends a volume ID to the attached-volume list, skipping
// duplicates.
func (t *Tags) AddVolume(volumeID string) {
	for _, id := range t.AttachedVolumes {
		if id == volumeID {
			return
		}
	}
	t.AttachedVolumes = append(t.AttachedVolumes, volumeID)
}

// Merge overlays non-zero fields of other onto t. Extra keys from other win
// on conflict.
func (t *Tags) Merge(other Tags) {
	if other.Name != "" {
		t.Name = other.Name
	}
	if other.Environment != "" {
		t.Environment = other.Environment
	}
	if other.Team != "" {
		t.Team = other.Team
	}
	if other.Project != "" {
		t.Project = other.Project
	}
	if other.CostCenter != "" {
		t.CostCenter = other.CostCenter
	}
	if other.CostSource != "" {
		t.CostSource = other.CostSource
	}
	if other.EnrichmentFailed {
		t.EnrichmentFailed = true
	}
	if other.Orphan {
		t.Orphan = true
	}
	if other.DeactivationReason != "" {
		t.DeactivationReason = other.DeactivationReason
	}
	if other.UnifiedInto != "" {
		t.UnifiedInto = other.UnifiedInto
	}
	if other.CPUUtilPct != 0 {
		t.CPUUtilPct = other.CPUUtilPct
	}
	if other.RAMUtilPct != 0 {
		t.RAMUtilPct = other.RAMUtilPct
	}
	for _, v := range other.AttachedVolumes {
		t.AddVolume(v)
	}
	for k, v := range other.Extra {
		t.SetExtra(k, v)
	}
}
