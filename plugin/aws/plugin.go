// Package aws is the reference plugin for accounts without a wired cost
// ledger. Inventory comes from the EC2 API; the billing feed is
// synthesized from that inventory through the pricing estimator, so every
// cost it reports carries the lowest-confidence source tags.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/rs/zerolog"

	"github.com/yairfalse/lasku/plugin"
	"github.com/yairfalse/lasku/pricing"
	"github.com/yairfalse/lasku/reconcile"
	"github.com/yairfalse/lasku/registry"
	"github.com/yairfalse/lasku/types"
)

// ProviderType is the registry name for this plugin.
const ProviderType = "aws"

func init() {
	plugin.Register(ProviderType, func(cfg plugin.Config) (plugin.Plugin, error) {
		awsCfg, err := config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return New(cfg, ec2.NewFromConfig(awsCfg)), nil
	})
}

// EC2API is the slice of the EC2 client this plugin uses.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

var typeRules = map[string]registry.TypeMapping{
	"server": {CanonicalType: "server", ServiceName: types.ServiceCompute},
	"volume": {CanonicalType: "volume", ServiceName: types.ServiceBlockStorage},
}

var statusRules = map[string]string{
	"running":       types.StatusRunning,
	"pending":       types.StatusUnknown,
	"stopping":      types.StatusStopped,
	"stopped":       types.StatusStopped,
	"shutting-down": types.StatusStopped,
}

// Plugin syncs one AWS account from EC2 inventory alone.
type Plugin struct {
	cfg       plugin.Config
	client    EC2API
	mapper    *registry.Registry
	estimator *pricing.Estimator
	logger    zerolog.Logger
}

// New builds a plugin around an EC2 client.
func New(cfg plugin.Config, client EC2API) *Plugin {
	logger := cfg.Logger.With().
		Str("plugin", ProviderType).
		Str("provider_id", cfg.ProviderID).
		Logger()

	mapper := registry.New(registry.WithLogger(logger))
	mapper.RegisterTypes(ProviderType, typeRules)
	mapper.RegisterStatuses(ProviderType, statusRules)

	return &Plugin{
		cfg:       cfg,
		client:    client,
		mapper:    mapper,
		estimator: pricing.NewEstimator(),
		logger:    logger,
	}
}

func (p *Plugin) ProviderType() string { return ProviderType }

// RequiredCredentials is empty: the SDK resolves credentials through its
// default chain (env, shared config, instance role).
func (p *Plugin) RequiredCredentials() []string { return nil }

func (p *Plugin) ValidateCredentials(_ plugin.Credentials) bool { return true }

func (p *Plugin) ResourceMappings() map[string]string {
	out := make(map[string]string, len(typeRules))
	for raw, m := range typeRules {
		out[raw] = m.CanonicalType
	}
	return out
}

func (p *Plugin) Capabilities() plugin.Capabilities {
	return plugin.Capabilities{
		HasInventoryAPI: true,
		SupportsVolumes: true,
		// No ledger: billing is synthesized, so there is no
		// independent account rate to validate against.
	}
}

func (p *Plugin) TestConnection(ctx context.Context) (plugin.ConnectionResult, error) {
	_, err := p.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		MaxResults: awssdk.Int32(5),
	})
	if err != nil {
		return plugin.ConnectionResult{
			Success: false,
			Message: fmt.Sprintf("ec2: %v", err),
		}, nil
	}
	return plugin.ConnectionResult{
		Success:            true,
		BillingReachable:   true, // synthesized locally, always available
		InventoryReachable: true,
		Message:            "ec2 reachable",
	}, nil
}

// Sync runs the reconciliation over the synthesized ledger. Every cost is
// re-tagged with the estimator's source so consumers never mistake it for
// provider-reported billing.
func (p *Plugin) Sync(ctx context.Context) (plugin.SyncResult, error) {
	var prevActive []types.Resource
	if p.cfg.History != nil {
		var err error
		prevActive, err = p.cfg.History.ActiveResources(p.cfg.ProviderID)
		if err != nil {
			wrapped := fmt.Errorf("load active resources: %w", err)
			return plugin.SyncResult{Success: false, Message: wrapped.Error()}, wrapped
		}
	}

	feed := &syntheticLedger{
		client:    p.client,
		region:    p.cfg.Region,
		estimator: p.estimator,
		logger:    p.logger,
	}

	engine := reconcile.NewEngine(reconcile.EngineConfig{
		ProviderID:   p.cfg.ProviderID,
		ProviderType: ProviderType,
		Billing:      feed,
		Inventory:    &inventoryFeed{client: p.client},
		Mapper:       p.mapper,
		Estimator:    p.estimator,
		Options:      p.cfg.Policy,
		Logger:       p.logger,
	})

	res, err := engine.Run(ctx, prevActive)
	if err != nil {
		return plugin.SyncResult{
			Success: false,
			Message: err.Error(),
			Errors:  []string{err.Error()},
		}, err
	}

	feed.retagSources(res)
	return packageResult(res), nil
}

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
