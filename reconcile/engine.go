// Package reconcile implements the billing-first reconciliation engine.
// The cost ledger decides what exists; the inventory API only enriches it.
// A billed resource that cannot be found in inventory is still produced,
// flagged degraded, never dropped.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/pricing"
	"github.com/yairfalse/lasku/registry"
	"github.com/yairfalse/lasku/types"
)

// EngineConfig wires one engine instance for one provider.
type EngineConfig struct {
	ProviderID   string
	ProviderType string
	Billing      BillingFeed
	Inventory    InventoryFeed
	Mapper       *registry.Registry
	Estimator    *pricing.Estimator
	Options      Options
	Logger       zerolog.Logger
}

// Engine runs the phased billing-first reconciliation for one provider.
type Engine struct {
	providerID   string
	providerType string
	billing      BillingFeed
	inventory    InventoryFeed
	mapper       *registry.Registry
	estimator    *pricing.Estimator
	opts         Options
	logger       zerolog.Logger
}

// NewEngine creates an engine. Billing is required; everything else has a
// usable default.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Mapper == nil {
		cfg.Mapper = registry.New()
	}
	if cfg.Estimator == nil {
		cfg.Estimator = pricing.NewEstimator()
	}
	return &Engine{
		providerID:   cfg.ProviderID,
		providerType: cfg.ProviderType,
		billing:      cfg.Billing,
		inventory:    cfg.Inventory,
		mapper:       cfg.Mapper,
		estimator:    cfg.Estimator,
		opts:         cfg.Options.withDefaults(),
		logger:       cfg.Logger,
	}
}

// Run executes phases 0-8 for one sync cycle. prevActive is the provider's
// currently-active canonical resource set from the previous cycle. Only a
// billing pull failure returns an error; every other failure degrades the
// result instead.
func (e *Engine) Run(ctx context.Context, prevActive []types.Resource) (*Result, error) {
	res := &Result{}

	enrich := e.probeInventory(ctx, res)

	objects, err := e.pullBilling(ctx)
	if err != nil {
		return nil, fmt.Errorf("billing pull: %w", err)
	}
	e.logger.Info().
		Int("billed_objects", len(objects)).
		Bool("enrichment", enrich).
		Msg("billing pulled")

	groups := e.classify(objects, res)

	servers := e.processServers(ctx, &groups, enrich, res)

	e.unifyVolumes(groups.volumes, servers, prevActive, res)

	e.processGeneric(groups.generic, res)

	if enrich {
		e.enrichStats(ctx, servers)
	}

	for _, srv := range servers {
		res.Resources = append(res.Resources, srv.res)
	}

	e.finalize(ctx, prevActive, res)
	return res, nil
}

// probeInventory is phase 0. A failed probe turns enrichment off for the
// whole run and records a persistent warning, nothing more.
func (e *Engine) probeInventory(ctx context.Context, res *Result) bool {
	if e.inventory == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	if err := e.inventory.Probe(probeCtx); err != nil {
		e.logger.Warn().Err(err).Msg("inventory auth probe failed, running billing-only")
		res.warn(Warning{
			Kind:    WarnAuthProbeFailed,
			Message: fmt.Sprintf("inventory credential unavailable: %v", err),
		})
		res.Degraded = true
		return false
	}
	return true
}

// pullBilling is phase 1: the authoritative current-activity set.
func (e *Engine) pullBilling(ctx context.Context) ([]billing.BilledObject, error) {
	pullCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	start, end := billing.Window(e.opts.Now().UTC(), e.opts.Window)
	records, err := e.billing.Pull(pullCtx, billing.Query{
		Start:       start,
		End:         end,
		GroupBy:     "object",
		Granularity: "hour",
	})
	if err != nil {
		return nil, err
	}
	return billing.Group(records), nil
}

// dailyCost normalizes a billed object's total value to the daily rate.
func (e *Engine) dailyCost(obj billing.BilledObject) float64 {
	frequency := obj.Frequency
	if frequency == "" {
		frequency = pricing.FrequencyRecurring
	}
	return pricing.NormalizeDaily(obj.TotalValue(), obj.Period, frequency)
}

func (e *Engine) key(resourceID, resourceType string) types.ResourceKey {
	return types.ResourceKey{
		ProviderID:   e.providerID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
	}
}
