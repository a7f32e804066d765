package reconcile

import (
	"context"
	"strconv"

	"github.com/yairfalse/lasku/pricing"
	"github.com/yairfalse/lasku/types"
)

// processGeneric is phases 5 and 6: file storage and every other
// recognized service go through one path — create the canonical resource,
// attach every billing metric as a tag, and fall back to the pricing
// estimator when the ledger carries no per-object cost.
func (e *Engine) processGeneric(objects []genericObject, res *Result) {
	for _, g := range objects {
		obj := g.obj

		cost := e.dailyCost(obj)
		source := types.CostSourceProviderBilling
		if cost == 0 {
			est := e.estimator.Estimate(e.estimateRequest(obj.Attributes))
			cost = est.DailyCost
			source = est.Source
		}

		r := types.ProviderResource{
			ResourceID:   obj.ID,
			Name:         obj.Name,
			ResourceType: g.mapping.CanonicalType,
			ServiceName:  g.mapping.ServiceName,
			Region:       obj.Region,
			Status:       types.StatusRunning,
			DailyCost:    cost,
			Tags: types.Tags{
				Name:       obj.Name,
				Project:    obj.Project,
				CostSource: source,
			},
		}
		for metric, value := range obj.Metrics {
			r.Tags.SetExtraFloat("metric_"+metric, value)
		}
		res.Resources = append(res.Resources, r)
	}
}

// estimateRequest builds a pricing request from whatever sizing detail the
// billing attributes carry.
func (e *Engine) estimateRequest(attrs map[string]string) pricing.Request {
	req := pricing.Request{
		Platform:    e.providerType,
		SKU:         attrs["sku"],
		StorageType: attrs["storage_type"],
		PublicIP:    attrs["public_ip"] == "true",
	}
	req.VCPUs = atoiOrZero(attrs["vcpus"])
	req.RAMMB = atoiOrZero(attrs["ram_mb"])
	req.StorageGB = atoiOrZero(attrs["storage_gb"])
	return req
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// enrichStats is phase 7: opportunistic CPU/RAM statistics, attached as
// tags only. Failure never fails the sync.
func (e *Engine) enrichStats(ctx context.Context, servers []*serverEntry) {
	for _, srv := range servers {
		if srv.detail == nil || srv.res.Status != types.StatusRunning {
			continue
		}

		statsCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		stats, err := e.inventory.ServerStats(statsCtx, srv.detail.ID)
		cancel()
		if err != nil {
			e.logger.Debug().Err(err).Str("server_id", srv.detail.ID).Msg("stats unavailable")
			continue
		}

		for key, value := range stats {
			switch key {
			case "cpu_util":
				srv.res.Tags.CPUUtilPct = value
			case "ram_util":
				srv.res.Tags.RAMUtilPct = value
			default:
				srv.res.Tags.SetExtraFloat("stat_"+key, value)
			}
		}
	}
}
