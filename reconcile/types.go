package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/types"
)

// BillingFeed is a provider's cost ledger. It is the ground truth for what
// currently exists and costs money.
type BillingFeed interface {
	// Pull queries the ledger for the given window, grouped by billed
	// object.
	Pull(ctx context.Context, q billing.Query) ([]billing.Record, error)

	// AccountDailyRate returns the provider's independently reported
	// account-level daily rate, used for totals validation.
	AccountDailyRate(ctx context.Context) (float64, error)
}

// InventoryFeed enriches billed objects with descriptive detail. Every
// method may fail without aborting the sync.
type InventoryFeed interface {
	// Probe obtains an inventory-API credential. Failure degrades
	// enrichment for the whole run but is never fatal.
	Probe(ctx context.Context) error

	// FindServer looks up inventory detail for a billed server. It
	// returns (nil, nil) when the server genuinely cannot be found.
	FindServer(ctx context.Context, hint LookupHint) (*ServerDetail, error)

	// ServerStats fetches CPU/RAM time-series statistics for one server.
	ServerStats(ctx context.Context, serverID string) (map[string]float64, error)
}

// LookupHint narrows an inventory search. The (project, region) hint from
// the billing record is tried first; Exhaustive requests the full
// cross-project, cross-region search.
type LookupHint struct {
	ObjectID   string
	Name       string
	Project    string
	Region     string
	Exhaustive bool
}

// VolumeAttachment links a volume to the server it is attached to.
type VolumeAttachment struct {
	VolumeID string
	Device   string
}

// ServerDetail is the inventory view of one compute instance.
type ServerDetail struct {
	ID          string
	Name        string
	Status      string
	Project     string
	Region      string
	FlavorName  string
	VCPUs       int
	RAMMB       int
	PublicIP    bool
	Attachments []VolumeAttachment
	Raw         json.RawMessage
}

// Options tunes one reconciliation run.
type Options struct {
	// Window is the billing ledger lookback. Objects that stopped
	// incurring cost before the window must not count as active.
	Window time.Duration
	// Tolerance is the accepted relative delta between summed resource
	// costs and the account-level rate.
	Tolerance float64
	// OrphanAge is how old an unattached volume must be to be flagged.
	OrphanAge time.Duration
	// CallTimeout bounds every provider API call.
	CallTimeout time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

// Defaults per sync policy.
const (
	DefaultWindow      = 2 * time.Hour
	DefaultTolerance   = 0.05
	DefaultOrphanAge   = 7 * 24 * time.Hour
	DefaultCallTimeout = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.OrphanAge <= 0 {
		o.OrphanAge = DefaultOrphanAge
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Warning kinds surfaced to operators.
const (
	WarnAuthProbeFailed    = "auth_probe_failed"
	WarnEnrichmentFailed   = "enrichment_failed"
	WarnValidationMismatch = "validation_mismatch"
	WarnAccountRateMissing = "account_rate_unavailable"
	WarnStatsUnavailable   = "stats_unavailable"
)

// Warning is a non-fatal degradation recorded on the run.
type Warning struct {
	Kind       string  `json:"kind"`
	ResourceID string  `json:"resource_id,omitempty"`
	Message    string  `json:"message"`
	Delta      float64 `json:"delta,omitempty"`
}

// Deactivation marks a previously-active resource that this cycle's
// billing no longer observes. Deactivated, never deleted.
type Deactivation struct {
	Resource types.Resource `json:"resource"`
	Reason   string         `json:"reason"`
}

// Result is the reconciled output of one provider sync.
type Result struct {
	Resources     []types.ProviderResource
	Deactivations []Deactivation
	Unrecognized  []types.UnrecognizedResource
	Warnings      []Warning
	TotalCost     float64
	// Degraded is true when any phase fell back to billing-only data.
	// The overall sync then finishes as partial success.
	Degraded bool
}

func (r *Result) warn(w Warning) {
	r.Warnings = append(r.Warnings, w)
}
