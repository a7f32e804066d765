package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/types"
)

// serverEntry tracks one billed server through enrichment and unification.
type serverEntry struct {
	obj    billing.BilledObject
	res    types.ProviderResource
	detail *ServerDetail // nil when enrichment missed
}

// processServers is phase 3 (compute enrichment) plus phase 3.5
// (orphan-volume extraction for vanished servers).
func (e *Engine) processServers(ctx context.Context, groups *classified, enrich bool, res *Result) []*serverEntry {
	entries := make([]*serverEntry, 0, len(groups.servers))

	for _, obj := range groups.servers {
		entry := &serverEntry{obj: obj, res: e.serverFromBilling(obj)}

		if enrich {
			entry.detail = e.lookupServer(ctx, obj, res)
		}

		if entry.detail != nil {
			e.applyDetail(entry)
		} else {
			// Billed but not found (or lookup unavailable): the ledger
			// says it costs money, so it stays, degraded.
			entry.res.Status = types.StatusRunning
			entry.res.Tags.EnrichmentFailed = true
			if enrich {
				res.warn(Warning{
					Kind:       WarnEnrichmentFailed,
					ResourceID: obj.ID,
					Message:    fmt.Sprintf("server %s billed but absent from inventory", obj.ID),
				})
				res.Degraded = true
				e.extractOrphanVolumes(entry, groups)
			}
		}

		entries = append(entries, entry)
	}
	return entries
}

// serverFromBilling builds the canonical server from ledger data alone.
func (e *Engine) serverFromBilling(obj billing.BilledObject) types.ProviderResource {
	r := types.ProviderResource{
		ResourceID:   obj.ID,
		Name:         obj.Name,
		ResourceType: "server",
		ServiceName:  types.ServiceCompute,
		Region:       obj.Region,
		Status:       types.StatusRunning,
		DailyCost:    e.dailyCost(obj),
		Tags:         types.Tags{Name: obj.Name, Project: obj.Project, CostSource: types.CostSourceProviderBilling},
	}
	for metric, value := range obj.Metrics {
		r.Tags.SetExtraFloat("metric_"+metric, value)
	}
	return r
}

// lookupServer tries the (project, region) hint carried by the billing
// record first and only falls back to the exhaustive cross-project search
// when the hint misses. Transient failures degrade, they never abort.
func (e *Engine) lookupServer(ctx context.Context, obj billing.BilledObject, res *Result) *ServerDetail {
	hinted := LookupHint{ObjectID: obj.ID, Name: obj.Name, Project: obj.Project, Region: obj.Region}
	exhaustive := LookupHint{ObjectID: obj.ID, Name: obj.Name, Exhaustive: true}

	detail, err := TryOrdered(ctx, []Attempt[*ServerDetail]{
		{Name: "hinted", Run: func(ctx context.Context) (*ServerDetail, error) {
			return e.findServer(ctx, hinted)
		}},
		{Name: "exhaustive", Run: func(ctx context.Context) (*ServerDetail, error) {
			return e.findServer(ctx, exhaustive)
		}},
	}, classifyLookup)
	if err != nil {
		e.logger.Warn().Err(err).Str("server_id", obj.ID).Msg("inventory lookup failed")
		res.warn(Warning{
			Kind:       WarnEnrichmentFailed,
			ResourceID: obj.ID,
			Message:    fmt.Sprintf("inventory lookup failed: %v", err),
		})
		res.Degraded = true
		return nil
	}
	return detail
}

// errNotFound is an internal marker so the hint miss moves on to the
// exhaustive attempt.
type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "server " + e.id + " not in hinted scope" }

func classifyLookup(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var nf *notFoundError
	if IsTransient(err) || errors.As(err, &nf) {
		return OutcomeRetryable
	}
	return OutcomePermanent
}

func (e *Engine) findServer(ctx context.Context, hint LookupHint) (*ServerDetail, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	detail, err := e.inventory.FindServer(callCtx, hint)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		if hint.Exhaustive {
			return nil, nil
		}
		return nil, &notFoundError{id: hint.ObjectID}
	}
	return detail, nil
}

// applyDetail overlays inventory detail onto the billing-built resource.
func (e *Engine) applyDetail(entry *serverEntry) {
	detail := entry.detail
	entry.res.Status = e.mapper.MapStatus(e.providerType, detail.Status)
	if detail.Region != "" {
		entry.res.Region = detail.Region
	}
	if detail.Name != "" {
		entry.res.Name = detail.Name
		entry.res.Tags.Name = detail.Name
	}
	entry.res.RawConfig = detail.Raw
	if detail.FlavorName != "" {
		entry.res.Tags.SetExtra("flavor", detail.FlavorName)
	}
	if detail.VCPUs > 0 {
		entry.res.Tags.SetExtraFloat("vcpus", float64(detail.VCPUs))
	}
	if detail.RAMMB > 0 {
		entry.res.Tags.SetExtraFloat("ram_mb", float64(detail.RAMMB))
	}
	for _, att := range detail.Attachments {
		entry.res.Tags.AddVolume(att.VolumeID)
	}
}

// extractOrphanVolumes is phase 3.5: a vanished server whose billing
// payload names attached volumes gets its cost pro-rated evenly across the
// server and those volumes, so storage never disappears into a zombie VM.
func (e *Engine) extractOrphanVolumes(entry *serverEntry, groups *classified) {
	rawList := entry.obj.Attributes["attached_volumes"]
	if rawList == "" {
		return
	}
	volumeIDs := splitList(rawList)
	if len(volumeIDs) == 0 {
		return
	}

	share := evenShare(entry.res.DailyCost, len(volumeIDs)+1)
	entry.res.DailyCost = share

	for _, volID := range volumeIDs {
		groups.volumes = append(groups.volumes, volumeCandidate{
			id:          volID,
			name:        volID,
			region:      entry.obj.Region,
			dailyCost:   share,
			synthesized: true,
		})
		entry.res.Tags.AddVolume(volID)
	}
	e.logger.Info().
		Str("server_id", entry.obj.ID).
		Int("volumes", len(volumeIDs)).
		Float64("share", share).
		Msg("extracted volume candidates from vanished server")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func evenShare(total float64, parts int) float64 {
	share := decimal.NewFromFloat(total).Div(decimal.NewFromInt(int64(parts)))
	f, _ := share.Round(6).Float64()
	return f
}
