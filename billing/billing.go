// Package billing defines the vendor-agnostic billing query shape and the
// grouping of raw ledger records into billed objects. The billing ledger is
// the authoritative set of "what currently costs money"; everything else in
// the pipeline only enriches it.
package billing

import (
	"sort"
	"time"
)

// Query is the vendor-agnostic request against a provider's cost ledger.
type Query struct {
	ProviderKeys []string  `json:"provider_keys"`
	Start        time.Time `json:"start_time"`
	End          time.Time `json:"end_time"`
	GroupBy      string    `json:"group_by"`
	Granularity  string    `json:"period_granularity"`
}

// Object identifies the billed object a record belongs to.
type Object struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Project string `json:"project,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Metric identifies one billing line item (e.g. "server_core", "volume_gb").
type Metric struct {
	ID string `json:"id"`
}

// Record is one row of the billing ledger response.
type Record struct {
	Object     Object            `json:"object"`
	Metric     Metric            `json:"metric"`
	Value      float64           `json:"value"`
	Period     string            `json:"period"`
	Frequency  string            `json:"frequency,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// BilledObject is one billed object with all of its metrics folded in.
// It is the unit the reconciliation engine works on.
type BilledObject struct {
	ID         string
	Name       string
	RawType    string
	Project    string
	Region     string
	Period     string
	Frequency  string
	Metrics    map[string]float64
	Attributes map[string]string
}

// MetricKeys returns the object's metric IDs sorted for stable inference
// and logging.
func (b BilledObject) MetricKeys() []string {
	keys := make([]string, 0, len(b.Metrics))
	for k := range b.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalValue sums every metric's raw value.
func (b BilledObject) TotalValue() float64 {
	var total float64
	for _, v := range b.Metrics {
		total += v
	}
	return total
}

// Group folds raw ledger records into one BilledObject per object ID,
// summing repeated metrics and merging attributes. Order of the result is
// stable by object ID.
func Group(records []Record) []BilledObject {
	byID := make(map[string]*BilledObject)
	for _, rec := range records {
		obj, ok := byID[rec.Object.ID]
		if !ok {
			obj = &BilledObject{
				ID:         rec.Object.ID,
				Name:       rec.Object.Name,
				RawType:    rec.Object.Type,
				Project:    rec.Object.Project,
				Region:     rec.Object.Region,
				Period:     rec.Period,
				Frequency:  rec.Frequency,
				Metrics:    make(map[string]float64),
				Attributes: make(map[string]string),
			}
			byID[rec.Object.ID] = obj
		}
		obj.Metrics[rec.Metric.ID] += rec.Value
		for k, v := range rec.Attributes {
			obj.Attributes[k] = v
		}
		// Later records may carry detail the first one missed.
		if obj.Name == "" {
			obj.Name = rec.Object.Name
		}
		if obj.RawType == "" {
			obj.RawType = rec.Object.Type
		}
		if obj.Region == "" {
			obj.Region = rec.Object.Region
		}
		if obj.Project == "" {
			obj.Project = rec.Object.Project
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	objects := make([]BilledObject, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, *byID[id])
	}
	return objects
}

// Window returns the recent ledger window ending at now. A short window
// keeps objects that stopped incurring cost hours ago out of the active set.
func Window(now time.Time, length time.Duration) (time.Time, time.Time) {
	return now.Add(-length), now
}
