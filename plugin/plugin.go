// Package plugin defines the provider plugin contract and the compile-time
// registry the orchestrator creates plugins from. A plugin owns everything
// provider-specific: credentials, endpoints, billing and inventory feeds,
// and resource mappings. Everything downstream of Sync speaks canonical
// types only.
package plugin

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/reconcile"
	"github.com/yairfalse/lasku/types"
)

// Credentials is the opaque credential set a plugin receives. Keys are
// plugin-defined; RequiredCredentials names the mandatory ones.
type Credentials map[string]string

// Get returns a credential value, or "" when absent.
func (c Credentials) Get(key string) string { return c[key] }

// History is the plugin's read-only view of prior sync state, needed for
// deactivation and unification against previously-active resources.
// Implemented by storage.Store.
type History interface {
	ActiveResources(providerID string) ([]types.Resource, error)
}

// Config wires one plugin instance for one provider account.
type Config struct {
	// ProviderID identifies the account, e.g. "cloud-prod".
	ProviderID  string
	Region      string
	Credentials Credentials
	History     History
	// Policy tunes the reconciliation run; zero values take defaults.
	Policy reconcile.Options
	Logger zerolog.Logger
}

// ConnectionResult reports a credential/reachability check.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// BillingReachable and InventoryReachable are probed separately:
	// billing down means the sync cannot run, inventory down only
	// degrades it.
	BillingReachable   bool `json:"billing_reachable"`
	InventoryReachable bool `json:"inventory_reachable"`
}

// Capabilities declares what a plugin can do, for introspection and
// operator tooling.
type Capabilities struct {
	HasBillingAPI   bool `json:"has_billing_api"`
	HasInventoryAPI bool `json:"has_inventory_api"`
	HasServerStats  bool `json:"has_server_stats"`
	HasAccountRate  bool `json:"has_account_rate"`
	SupportsVolumes bool `json:"supports_volumes"`
	SupportsSKUSync bool `json:"supports_sku_sync"`
}

// SyncResult is the full output of one plugin sync, consumed by the
// orchestrator for persistence.
type SyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Partial marks a degraded but usable sync; the snapshot finishes
	// as partial_success.
	Partial bool `json:"partial"`

	Resources     []types.ProviderResource     `json:"resources"`
	Deactivations []types.Resource             `json:"deactivations,omitempty"`
	Unrecognized  []types.UnrecognizedResource `json:"unrecognized,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`

	ResourcesSynced int     `json:"resources_synced"`
	TotalCost       float64 `json:"total_cost"`
}

// Plugin is the contract every provider integration implements.
type Plugin interface {
	// ProviderType returns the registry name, e.g. "openstack".
	ProviderType() string

	// RequiredCredentials names the credential keys that must be set.
	RequiredCredentials() []string

	// ValidateCredentials checks shape only, no network calls.
	ValidateCredentials(creds Credentials) bool

	// TestConnection verifies credentials against the live APIs.
	TestConnection(ctx context.Context) (ConnectionResult, error)

	// Sync runs the full billing-first reconciliation for this account.
	Sync(ctx context.Context) (SyncResult, error)

	// ResourceMappings exposes the raw-type to canonical-type table.
	ResourceMappings() map[string]string

	Capabilities() Capabilities
}

// FatalPluginError aborts the provider's sync before anything is written.
type FatalPluginError struct {
	PluginName string
	Err        error
}

func (e *FatalPluginError) Error() string {
	return fmt.Sprintf("plugin %s: fatal: %v", e.PluginName, e.Err)
}

func (e *FatalPluginError) Unwrap() error { return e.Err }
