package registry

import "github.com/yairfalse/lasku/types"

// defaultTypeRules is the wildcard table: raw types most vendors agree on.
func defaultTypeRules() map[string]TypeMapping {
	return map[string]TypeMapping{
		"server":             {CanonicalType: "server", ServiceName: types.ServiceCompute},
		"instance":           {CanonicalType: "server", ServiceName: types.ServiceCompute},
		"vm":                 {CanonicalType: "server", ServiceName: types.ServiceCompute},
		"volume":             {CanonicalType: "volume", ServiceName: types.ServiceBlockStorage},
		"disk":               {CanonicalType: "volume", ServiceName: types.ServiceBlockStorage},
		"snapshot":           {CanonicalType: "volume_snapshot", ServiceName: types.ServiceBlockStorage},
		"bucket":             {CanonicalType: "bucket", ServiceName: types.ServiceFileStorage},
		"object_storage":     {CanonicalType: "bucket", ServiceName: types.ServiceFileStorage},
		"file_storage":       {CanonicalType: "file_share", ServiceName: types.ServiceFileStorage},
		"database":           {CanonicalType: "database", ServiceName: types.ServiceDatabase},
		"managed_database":   {CanonicalType: "database", ServiceName: types.ServiceDatabase},
		"kubernetes":         {CanonicalType: "kubernetes_cluster", ServiceName: types.ServiceKubernetes},
		"k8s_cluster":        {CanonicalType: "kubernetes_cluster", ServiceName: types.ServiceKubernetes},
		"container_registry": {CanonicalType: "registry", ServiceName: types.ServiceRegistry},
		"load_balancer":      {CanonicalType: "load_balancer", ServiceName: types.ServiceLoadBalancer},
		"loadbalancer":       {CanonicalType: "load_balancer", ServiceName: types.ServiceLoadBalancer},
		"floating_ip":        {CanonicalType: "reserved_ip", ServiceName: types.ServiceReservedIP},
		"reserved_ip":        {CanonicalType: "reserved_ip", ServiceName: types.ServiceReservedIP},
		"ip_address":         {CanonicalType: "reserved_ip", ServiceName: types.ServiceReservedIP},
	}
}

// defaultStatusRules is the wildcard status table.
func defaultStatusRules() map[string]string {
	return map[string]string{
		"running":    types.StatusRunning,
		"active":     types.StatusRunning,
		"available":  types.StatusRunning,
		"in-use":     types.StatusRunning,
		"started":    types.StatusRunning,
		"on":         types.StatusRunning,
		"shutoff":    types.StatusStopped,
		"stopped":    types.StatusStopped,
		"suspended":  types.StatusStopped,
		"shelved":    types.StatusStopped,
		"paused":     types.StatusStopped,
		"off":        types.StatusStopped,
		"terminated": types.StatusStopped,
	}
}
