package reconcile

import (
	"strings"
	"time"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/registry"
	"github.com/yairfalse/lasku/types"
)

// classified buckets billed objects by canonical service.
type classified struct {
	servers []billing.BilledObject
	volumes []volumeCandidate
	generic []genericObject
}

type genericObject struct {
	obj     billing.BilledObject
	mapping registry.TypeMapping
}

// volumeCandidate is a billed or synthesized volume awaiting unification.
type volumeCandidate struct {
	id          string
	name        string
	region      string
	dailyCost   float64
	attachedTo  string // server object id from billing attributes, "" when unknown
	createdAt   time.Time
	metrics     map[string]float64
	synthesized bool // extracted from a vanished server, never re-unified
}

// classify is phase 2: table lookup first, metric-key inference second,
// unrecognized ledger row third. Nothing is dropped.
func (e *Engine) classify(objects []billing.BilledObject, res *Result) classified {
	var out classified
	now := e.opts.Now().UTC()

	for _, obj := range objects {
		mapping, ok := e.mapper.MapType(e.providerType, obj.RawType)
		if !ok {
			if inferred, found := inferMapping(obj.MetricKeys()); found {
				e.logger.Debug().
					Str("object_id", obj.ID).
					Str("raw_type", obj.RawType).
					Str("inferred", inferred.CanonicalType).
					Msg("billed object type inferred from metric keys")
				mapping = inferred
			} else {
				res.Unrecognized = append(res.Unrecognized, types.UnrecognizedResource{
					ProviderID: e.providerID,
					ObjectID:   obj.ID,
					ObjectName: obj.Name,
					RawType:    obj.RawType,
					MetricKeys: obj.MetricKeys(),
					ObservedAt: now,
				})
				mapping = registry.TypeMapping{
					CanonicalType: "unknown",
					ServiceName:   types.ServiceOther,
				}
			}
		}

		switch mapping.CanonicalType {
		case "server":
			out.servers = append(out.servers, obj)
		case "volume":
			out.volumes = append(out.volumes, e.volumeCandidate(obj))
		default:
			out.generic = append(out.generic, genericObject{obj: obj, mapping: mapping})
		}
	}
	return out
}

func (e *Engine) volumeCandidate(obj billing.BilledObject) volumeCandidate {
	c := volumeCandidate{
		id:         obj.ID,
		name:       obj.Name,
		region:     obj.Region,
		dailyCost:  e.dailyCost(obj),
		attachedTo: obj.Attributes["server_id"],
		metrics:    obj.Metrics,
	}
	if raw := obj.Attributes["created_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			c.createdAt = ts
		}
	}
	return c
}

// inference rules over metric key shapes, checked in order.
var inferenceRules = []struct {
	prefixes []string
	mapping  registry.TypeMapping
}{
	{[]string{"volume_", "disk_"}, registry.TypeMapping{CanonicalType: "volume", ServiceName: types.ServiceBlockStorage}},
	{[]string{"server_", "compute_", "cpu_"}, registry.TypeMapping{CanonicalType: "server", ServiceName: types.ServiceCompute}},
	{[]string{"ip_", "floating_"}, registry.TypeMapping{CanonicalType: "reserved_ip", ServiceName: types.ServiceReservedIP}},
	{[]string{"lb_", "listener_"}, registry.TypeMapping{CanonicalType: "load_balancer", ServiceName: types.ServiceLoadBalancer}},
	{[]string{"db_", "database_"}, registry.TypeMapping{CanonicalType: "database", ServiceName: types.ServiceDatabase}},
	{[]string{"k8s_", "cluster_", "node_"}, registry.TypeMapping{CanonicalType: "kubernetes_cluster", ServiceName: types.ServiceKubernetes}},
	{[]string{"registry_", "image_"}, registry.TypeMapping{CanonicalType: "registry", ServiceName: types.ServiceRegistry}},
	{[]string{"storage_", "file_", "bucket_"}, registry.TypeMapping{CanonicalType: "bucket", ServiceName: types.ServiceFileStorage}},
}

// inferMapping guesses a canonical type from the shape of the billing
// metric keys, e.g. volume_* metrics mean a volume.
func inferMapping(metricKeys []string) (registry.TypeMapping, bool) {
	for _, rule := range inferenceRules {
		for _, key := range metricKeys {
			for _, prefix := range rule.prefixes {
				if strings.HasPrefix(key, prefix) {
					return rule.mapping, true
				}
			}
		}
	}
	return registry.TypeMapping{}, false
}
