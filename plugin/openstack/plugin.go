package openstack

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/pricing"
	"github.com/yairfalse/lasku/reconcile"
	"github.com/yairfalse/lasku/registry"
	"github.com/yairfalse/lasku/types"
)

// ProviderType is the registry name for this plugin.
const ProviderType = "openstack"

func init() {
	plugin.Register(ProviderType, func(cfg plugin.Config) (plugin.Plugin, error) {
		clients, err := connect(cfg)
		if err != nil {
			return nil, err
		}
		return New(cfg, clients), nil
	})
}

// connect builds live API clients for one account. The deployment binary
// installs a real transport via SetTransport; tests construct plugins
// directly through New with stub clients.
var connect = func(cfg plugin.Config) (Clients, error) {
	return Clients{}, errors.New("no API transport configured")
}

// SetTransport installs the client constructor used by the registry
// factory.
func SetTransport(f func(cfg plugin.Config) (Clients, error)) { connect = f }

// typeRules maps the provider's raw object types onto the canonical
// taxonomy.
var typeRules = map[string]registry.TypeMapping{
	"server":           {CanonicalType: "server", ServiceName: types.ServiceCompute},
	"storage":          {CanonicalType: "volume", ServiceName: types.ServiceBlockStorage},
	"volume":           {CanonicalType: "volume", ServiceName: types.ServiceBlockStorage},
	"ip_address":       {CanonicalType: "reserved_ip", ServiceName: types.ServiceReservedIP},
	"load_balancer":    {CanonicalType: "load_balancer", ServiceName: types.ServiceLoadBalancer},
	"managed_database": {CanonicalType: "database", ServiceName: types.ServiceDatabase},
	"kubernetes":       {CanonicalType: "kubernetes_cluster", ServiceName: types.ServiceKubernetes},
	"registry":         {CanonicalType: "registry", ServiceName: types.ServiceRegistry},
	"object_storage":   {CanonicalType: "bucket", ServiceName: types.ServiceFileStorage},
	"network_storage":  {CanonicalType: "file_share", ServiceName: types.ServiceFileStorage},
}

var statusRules = map[string]string{
	"started":   types.StatusRunning,
	"active":    types.StatusRunning,
	"running":   types.StatusRunning,
	"stopped":   types.StatusStopped,
	"shutoff":   types.StatusStopped,
	"suspended": types.StatusStopped,
	"shelved":   types.StatusStopped,
	"building":  types.StatusUnknown,
	"error":     types.StatusUnknown,
}

// Plugin syncs one account of an OpenStack-flavored cloud with a billing
// ledger.
type Plugin struct {
	cfg       plugin.Config
	clients   Clients
	tokens    *tokenCache
	mapper    *registry.Registry
	estimator *pricing.Estimator
	logger    zerolog.Logger
}

// New builds a plugin around injected API clients.
func New(cfg plugin.Config, clients Clients) *Plugin {
	logger := cfg.Logger.With().
		Str("plugin", ProviderType).
		Str("provider_id", cfg.ProviderID).
		Logger()

	mapper := registry.New(registry.WithLogger(logger))
	mapper.RegisterTypes(ProviderType, typeRules)
	mapper.RegisterStatuses(ProviderType, statusRules)

	return &Plugin{
		cfg:       cfg,
		clients:   clients,
		tokens:    newTokenCache(clients.Identity),
		mapper:    mapper,
		estimator: pricing.NewEstimator(),
		logger:    logger,
	}
}

func (p *Plugin) ProviderType() string { return ProviderType }

func (p *Plugin) RequiredCredentials() []string { return []string{"username", "api_key"} }

func (p *Plugin) ValidateCredentials(creds plugin.Credentials) bool {
	for _, key := range p.RequiredCredentials() {
		if creds.Get(key) == "" {
			return false
		}
	}
	return true
}

func (p *Plugin) ResourceMappings() map[string]string {
	out := make(map[string]string, len(typeRules))
	for raw, m := range typeRules {
		out[raw] = m.CanonicalType
	}
	return out
}

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		HasBillingAPI:   true,
		HasInventoryAPI: true,
		HasServerStats:  true,
		HasAccountRate:  true,
		SupportsVolumes: true,
	}
}

// TestConnection checks the identity and billing APIs separately: billing
// down means a sync cannot run at all, identity down only kills
// enrichment.
func (p *Plugin) TestConnection(ctx context.Context) (plugin.ConnectionResult, error) {
	token, err := p.tokens.get(ctx)
	if err != nil {
		return plugin.ConnectionResult{
			Success: false,
			Message: fmt.Sprintf("identity: %v", err),
		}, nil
	}

	feed := p.billingFeed()
	if _, err := feed.AccountDailyRate(ctx); err != nil {
		return plugin.ConnectionResult{
			Success:            false,
			InventoryReachable: token != "",
			Message:            fmt.Sprintf("billing: %v", err),
		}, nil
	}

	return plugin.ConnectionResult{
		Success:            true,
		BillingReachable:   true,
		InventoryReachable: true,
		Message:            "billing and inventory reachable",
	}, nil
}

// Sync runs the billing-first reconciliation and packages the result for
// the orchestrator.
func (p *Plugin) Sync(ctx context.Context) (plugin.SyncResult, error) {
	prevActive, err := p.prevActive()
	if err != nil {
		return plugin.SyncResult{Success: false, Message: err.Error()}, err
	}

	engine := reconcile.NewEngine(reconcile.EngineConfig{
		ProviderID:   p.cfg.ProviderID,
		ProviderType: ProviderType,
		Billing:      p.billingFeed(),
		Inventory:    &inventoryFeed{compute: p.clients.Compute, tokens: p.tokens, logger: p.logger},
		Mapper:       p.mapper,
		Estimator:    p.estimator,
		Options:      p.cfg.Policy,
		Logger:       p.logger,
	})

	res, err := engine.Run(ctx, prevActive)
	if err != nil {
		p.tokens.invalidate()
		return plugin.SyncResult{
			Success: false,
			Message: err.Error(),
			Errors:  []string{err.Error()},
		}, err
	}

	return packageResult(res), nil
}

func (p *Plugin) billingFeed() *billingFeed {
	return &billingFeed{endpoints: p.clients.Billing, tokens: p.tokens, logger: p.logger}
}

func (p *Plugin) prevActive() ([]types.Resource, error) {
	if p.cfg.History == nil {
		return nil, nil
	}
	prev, err := p.cfg.History.ActiveResources(p.cfg.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load active resources: %w", err)
	}
	return prev, nil
}

// packageResult translates the engine result into the plugin contract.
func packageResult(res *reconcile.Result) plugin.SyncResult {
	out := plugin.SyncResult{
		Success:         true,
		Partial:         res.Degraded,
		Resources:       res.Resources,
		Unrecognized:    res.Unrecognized,
		ResourcesSynced: len(res.Resources),
		TotalCost:       res.TotalCost,
	}
	for _, d := range res.Deactivations {
		out.Deactivations = append(out.Deactivations, d.Resource)
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %s", w.Kind, w.Message))
	}
	if res.Degraded {
		out.Message = "sync completed with degraded phases"
	} else {
		out.Message = "sync completed"
	}
	return out
}
