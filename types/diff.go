package types

import (
	"bytes"
	"strconv"
)

// Change records one field's before/after values.
type Change struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// Fields in the fixed comparison set.
const (
	FieldName   = "name"
	FieldStatus = "status"
	FieldCost   = "cost"
	FieldRegion = "region"
	FieldConfig = "config"
	FieldActive = "is_active"
)

// ComputeChanges diffs two resource states over the fixed comparison set:
// name, status, cost, region, nested config, and the activity flag.
// An empty result means the resource is unchanged.
func ComputeChanges(prev, cur Resource) map[string]Change {
	changes := make(map[string]Change)

	if prev.Name != cur.Name {
		changes[FieldName] = Change{Previous: prev.Name, Current: cur.Name}
	}
	if prev.Status != cur.Status {
		changes[FieldStatus] = Change{Previous: prev.Status, Current: cur.Status}
	}
	if prev.DailyCost != cur.DailyCost {
		changes[FieldCost] = Change{
			Previous: formatCost(prev.DailyCost),
			Current:  formatCost(cur.DailyCost),
		}
	}
	if prev.Region != cur.Region {
		changes[FieldRegion] = Change{Previous: prev.Region, Current: cur.Region}
	}
	if !bytes.Equal(prev.RawConfig, cur.RawConfig) {
		changes[FieldConfig] = Change{
			Previous: string(prev.RawConfig),
			Current:  string(cur.RawConfig),
		}
	}
	if prev.IsActive != cur.IsActive {
		changes[FieldActive] = Change{
			Previous: strconv.FormatBool(prev.IsActive),
			Current:  strconv.FormatBool(cur.IsActive),
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

func formatCost(c float64) string {
	return strconv.FormatFloat(c, 'f', -1, 64)
}
