package reconcile

import (
	"regexp"

	"github.com/yairfalse/lasku/types"
)

// diskNamePattern is the provider naming convention for server disks:
// disk-for-{ServerName} with an optional -#N ordinal.
var diskNamePattern = regexp.MustCompile(`^disk-for-(.+?)(?:-#\d+)?$`)

// unifyVolumes is phase 4. Each billed volume is folded into its parent
// server when a match exists; otherwise it becomes a standalone resource,
// flagged orphan when unattached and past the age threshold.
func (e *Engine) unifyVolumes(candidates []volumeCandidate, servers []*serverEntry, prevActive []types.Resource, res *Result) {
	byObjectID := make(map[string]*serverEntry, len(servers))
	byName := make(map[string]*serverEntry, len(servers))
	attachIndex := make(map[string]*serverEntry)
	for _, srv := range servers {
		byObjectID[srv.obj.ID] = srv
		if srv.res.Name != "" {
			byName[srv.res.Name] = srv
		}
		if srv.detail != nil {
			for _, att := range srv.detail.Attachments {
				attachIndex[att.VolumeID] = srv
			}
		}
	}

	prevVolumes := make(map[string]types.Resource)
	for _, prev := range prevActive {
		if prev.ResourceType == "volume" && prev.IsActive {
			prevVolumes[prev.ResourceID] = prev
		}
	}

	for _, c := range candidates {
		if parent := e.matchParent(c, byObjectID, byName, attachIndex); parent != nil {
			e.unifyInto(parent, c, prevVolumes, res)
			continue
		}
		res.Resources = append(res.Resources, e.standaloneVolume(c, attachIndex))
	}
}

// matchParent tries exact attachment first, naming convention second. The
// naming match deliberately works for detached volumes too: suspended and
// shelved instances keep their disks.
func (e *Engine) matchParent(c volumeCandidate, byObjectID, byName, attachIndex map[string]*serverEntry) *serverEntry {
	if c.synthesized {
		// Extracted from a vanished server; re-unifying would absorb
		// the storage cost right back.
		return nil
	}
	if srv, ok := attachIndex[c.id]; ok {
		return srv
	}
	if c.attachedTo != "" {
		if srv, ok := byObjectID[c.attachedTo]; ok {
			return srv
		}
	}
	if m := diskNamePattern.FindStringSubmatch(c.name); m != nil {
		if srv, ok := byName[m[1]]; ok {
			return srv
		}
	}
	return nil
}

// unifyInto adds the volume's cost and detail to the parent server. No
// standalone row is created; a standalone row from a prior cycle is
// deactivated.
func (e *Engine) unifyInto(parent *serverEntry, c volumeCandidate, prevVolumes map[string]types.Resource, res *Result) {
	parent.res.DailyCost += c.dailyCost
	parent.res.Tags.AddVolume(c.id)
	parent.res.Tags.SetExtraFloat("volume_"+c.id+"_daily_cost", c.dailyCost)
	for metric, value := range c.metrics {
		parent.res.Tags.SetExtraFloat("volume_"+c.id+"_"+metric, value)
	}

	if prev, ok := prevVolumes[c.id]; ok {
		deactivated := prev
		deactivated.IsActive = false
		deactivated.Tags.UnifiedInto = parent.obj.ID
		deactivated.Tags.DeactivationReason = "unified_into_server"
		res.Deactivations = append(res.Deactivations, Deactivation{
			Resource: deactivated,
			Reason:   "unified_into_server",
		})
	}

	e.logger.Debug().
		Str("volume_id", c.id).
		Str("server_id", parent.obj.ID).
		Float64("daily_cost", c.dailyCost).
		Msg("volume unified into server")
}

// standaloneVolume builds the canonical resource for an unmatched volume.
func (e *Engine) standaloneVolume(c volumeCandidate, attachIndex map[string]*serverEntry) types.ProviderResource {
	r := types.ProviderResource{
		ResourceID:   c.id,
		Name:         c.name,
		ResourceType: "volume",
		ServiceName:  types.ServiceBlockStorage,
		Region:       c.region,
		Status:       types.StatusRunning,
		DailyCost:    c.dailyCost,
		Tags:         types.Tags{Name: c.name, CostSource: types.CostSourceProviderBilling},
	}
	for metric, value := range c.metrics {
		r.Tags.SetExtraFloat("metric_"+metric, value)
	}
	if c.synthesized {
		r.Tags.EnrichmentFailed = true
		r.Tags.SetExtra("synthesized_from", "vanished_server")
	}

	unattached := c.attachedTo == ""
	if _, attached := attachIndex[c.id]; attached {
		unattached = false
	}
	if unattached && !c.createdAt.IsZero() {
		age := e.opts.Now().UTC().Sub(c.createdAt)
		if age > e.opts.OrphanAge {
			r.Tags.Orphan = true
		}
	}
	return r
}
