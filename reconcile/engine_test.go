package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lasku/billing"
	"github.com/yairfalse/lasku/types"
)

type fakeBilling struct {
	records []billing.Record
	pullErr error
	rate    float64
	rateErr error
}

func (f *fakeBilling) Pull(_ context.Context, _ billing.Query) ([]billing.Record, error) {
	return f.records, f.pullErr
}

func (f *fakeBilling) AccountDailyRate(_ context.Context) (float64, error) {
	return f.rate, f.rateErr
}

type fakeInventory struct {
	probeErr        error
	servers         map[string]*ServerDetail
	hintedMiss      map[string]bool
	stats           map[string]map[string]float64
	statsErr        error
	exhaustiveCalls int
}

func (f *fakeInventory) Probe(_ context.Context) error { return f.probeErr }

func (f *fakeInventory) FindServer(_ context.Context, hint LookupHint) (*ServerDetail, error) {
	if hint.Exhaustive {
		f.exhaustiveCalls++
		return f.servers[hint.ObjectID], nil
	}
	if f.hintedMiss[hint.ObjectID] {
		return nil, nil
	}
	return f.servers[hint.ObjectID], nil
}

func (f *fakeInventory) ServerStats(_ context.Context, serverID string) (map[string]float64, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats[serverID], nil
}

func serverRecord(id, name string, daily float64) billing.Record {
	return billing.Record{
		Object: billing.Object{ID: id, Name: name, Type: "server", Region: "fi-hel1", Project: "proj-1"},
		Metric: billing.Metric{ID: "server_core"},
		Value:  daily,
		Period: "daily",
	}
}

func volumeRecord(id, name string, daily float64, attrs map[string]string) billing.Record {
	return billing.Record{
		Object:     billing.Object{ID: id, Name: name, Type: "volume", Region: "fi-hel1"},
		Metric:     billing.Metric{ID: "volume_gb"},
		Value:      daily,
		Period:     "daily",
		Attributes: attrs,
	}
}

func newTestEngine(b BillingFeed, inv InventoryFeed) *Engine {
	return NewEngine(EngineConfig{
		ProviderID:   "prov-1",
		ProviderType: "openstack",
		Billing:      b,
		Inventory:    inv,
	})
}

func findResource(res *Result, id string) *types.ProviderResource {
	for i := range res.Resources {
		if res.Resources[i].ResourceID == id {
			return &res.Resources[i]
		}
	}
	return nil
}

func TestRun_BillingPullFailureIsFatal(t *testing.T) {
	e := newTestEngine(&fakeBilling{pullErr: errors.New("ledger down")}, &fakeInventory{})
	_, err := e.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "billing pull")
}

func TestRun_AuthProbeFailureIsNonFatal(t *testing.T) {
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-1", "web-1", 5.0)}, rate: 5.0}
	inv := &fakeInventory{probeErr: errors.New("token rejected")}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, res.Resources, 1)
	assert.True(t, res.Degraded)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnAuthProbeFailed, res.Warnings[0].Kind)

	// Billing-only resource: running, enrichment marked failed.
	srv := findResource(res, "srv-1")
	require.NotNil(t, srv)
	assert.Equal(t, types.StatusRunning, srv.Status)
	assert.True(t, srv.Tags.EnrichmentFailed)
}

func TestRun_DegradedEnrichment(t *testing.T) {
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-ghost", "ghost", 7.0)}, rate: 7.0}
	inv := &fakeInventory{servers: map[string]*ServerDetail{}} // nothing in inventory

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	srv := findResource(res, "srv-ghost")
	require.NotNil(t, srv, "billed but unfindable servers must still appear")
	assert.Equal(t, types.StatusRunning, srv.Status)
	assert.InDelta(t, 7.0, srv.DailyCost, 1e-9)
	assert.True(t, srv.Tags.EnrichmentFailed)
	assert.True(t, res.Degraded)
	assert.Positive(t, inv.exhaustiveCalls, "exhaustive search should have been tried")
}

func TestRun_HintMissFallsBackToExhaustive(t *testing.T) {
	detail := &ServerDetail{ID: "srv-1", Name: "web-1", Status: "shutoff", Region: "de-fra1", VCPUs: 2}
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-1", "web-1", 3.0)}, rate: 3.0}
	inv := &fakeInventory{
		servers:    map[string]*ServerDetail{"srv-1": detail},
		hintedMiss: map[string]bool{"srv-1": true},
	}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	srv := findResource(res, "srv-1")
	require.NotNil(t, srv)
	assert.Equal(t, 1, inv.exhaustiveCalls)
	assert.Equal(t, types.StatusStopped, srv.Status, "inventory status wins over billing assumption")
	assert.Equal(t, "de-fra1", srv.Region)
	assert.False(t, srv.Tags.EnrichmentFailed)
	assert.False(t, res.Degraded)
}

func TestRun_UnrecognizedType(t *testing.T) {
	rec := billing.Record{
		Object: billing.Object{ID: "obj-x", Name: "weird", Type: "quantum_teleporter"},
		Metric: billing.Metric{ID: "teleport_units"},
		Value:  1.0,
		Period: "daily",
	}
	b := &fakeBilling{records: []billing.Record{rec}, rate: 1.0}

	res, err := newTestEngine(b, &fakeInventory{}).Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, res.Unrecognized, 1)
	assert.Equal(t, "quantum_teleporter", res.Unrecognized[0].RawType)
	assert.Equal(t, []string{"teleport_units"}, res.Unrecognized[0].MetricKeys)

	// Bucketed as other_service, never dropped.
	obj := findResource(res, "obj-x")
	require.NotNil(t, obj)
	assert.Equal(t, types.ServiceOther, obj.ServiceName)
	assert.Equal(t, "unknown", obj.ResourceType)
}

func TestRun_TypeInferenceFromMetricKeys(t *testing.T) {
	rec := billing.Record{
		Object: billing.Object{ID: "vol-7", Name: "data-disk", Type: ""},
		Metric: billing.Metric{ID: "volume_gb_hours"},
		Value:  0.4,
		Period: "daily",
	}
	b := &fakeBilling{records: []billing.Record{rec}, rate: 0.4}

	res, err := newTestEngine(b, &fakeInventory{}).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, res.Unrecognized)
	vol := findResource(res, "vol-7")
	require.NotNil(t, vol)
	assert.Equal(t, "volume", vol.ResourceType)
	assert.Equal(t, types.ServiceBlockStorage, vol.ServiceName)
}

func TestRun_VolumeUnificationByName(t *testing.T) {
	detail := &ServerDetail{ID: "srv-1", Name: "Doreen", Status: "running"}
	b := &fakeBilling{
		records: []billing.Record{
			serverRecord("srv-1", "Doreen", 4.0),
			volumeRecord("vol-1", "disk-for-Doreen-#1", 0.5, nil),
		},
		rate: 4.5,
	}
	inv := &fakeInventory{servers: map[string]*ServerDetail{"srv-1": detail}}

	prior := types.Resource{
		ProviderID: "prov-1", ResourceID: "vol-1", ResourceType: "volume",
		Name: "disk-for-Doreen-#1", IsActive: true,
	}

	res, err := newTestEngine(b, inv).Run(context.Background(), []types.Resource{prior})
	require.NoError(t, err)

	// The volume's cost lands on the server; no standalone volume row.
	srv := findResource(res, "srv-1")
	require.NotNil(t, srv)
	assert.InDelta(t, 4.5, srv.DailyCost, 1e-9)
	assert.Contains(t, srv.Tags.AttachedVolumes, "vol-1")
	assert.Nil(t, findResource(res, "vol-1"))

	// The prior standalone row is deactivated, not left active.
	require.Len(t, res.Deactivations, 1)
	assert.Equal(t, "vol-1", res.Deactivations[0].Resource.ResourceID)
	assert.Equal(t, "unified_into_server", res.Deactivations[0].Reason)
	assert.False(t, res.Deactivations[0].Resource.IsActive)

	assert.False(t, res.Degraded)
	assert.Empty(t, res.Warnings)
}

func TestRun_VolumeUnificationByAttachment(t *testing.T) {
	detail := &ServerDetail{
		ID: "srv-1", Name: "api", Status: "running",
		Attachments: []VolumeAttachment{{VolumeID: "vol-9", Device: "/dev/vdb"}},
	}
	b := &fakeBilling{
		records: []billing.Record{
			serverRecord("srv-1", "api", 2.0),
			volumeRecord("vol-9", "some-random-name", 0.3, nil),
		},
		rate: 2.3,
	}
	inv := &fakeInventory{servers: map[string]*ServerDetail{"srv-1": detail}}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	srv := findResource(res, "srv-1")
	require.NotNil(t, srv)
	assert.InDelta(t, 2.3, srv.DailyCost, 1e-9)
	assert.Nil(t, findResource(res, "vol-9"))
}

func TestRun_OrphanVolume(t *testing.T) {
	old := time.Now().UTC().Add(-8 * 24 * time.Hour).Format(time.RFC3339)
	fresh := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	b := &fakeBilling{
		records: []billing.Record{
			volumeRecord("vol-old", "forgotten", 0.2, map[string]string{"created_at": old}),
			volumeRecord("vol-new", "scratch", 0.2, map[string]string{"created_at": fresh}),
		},
		rate: 0.4,
	}

	res, err := newTestEngine(b, &fakeInventory{}).Run(context.Background(), nil)
	require.NoError(t, err)

	orphan := findResource(res, "vol-old")
	require.NotNil(t, orphan)
	assert.True(t, orphan.Tags.Orphan)

	recent := findResource(res, "vol-new")
	require.NotNil(t, recent)
	assert.False(t, recent.Tags.Orphan, "young volumes are not orphans yet")
}

func TestRun_OrphanVolumeExtraction(t *testing.T) {
	rec := serverRecord("srv-gone", "vanished", 9.0)
	rec.Attributes = map[string]string{"attached_volumes": "vol-a,vol-b"}
	b := &fakeBilling{records: []billing.Record{rec}, rate: 9.0}
	inv := &fakeInventory{servers: map[string]*ServerDetail{}}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	// Cost pro-rated evenly: server and both volumes each carry a share.
	srv := findResource(res, "srv-gone")
	require.NotNil(t, srv)
	assert.InDelta(t, 3.0, srv.DailyCost, 1e-6)

	for _, id := range []string{"vol-a", "vol-b"} {
		vol := findResource(res, id)
		require.NotNil(t, vol, "storage must not be absorbed into the vanished server")
		assert.Equal(t, "volume", vol.ResourceType)
		assert.InDelta(t, 3.0, vol.DailyCost, 1e-6)
		assert.True(t, vol.Tags.EnrichmentFailed)
	}
	assert.InDelta(t, 9.0, res.TotalCost, 1e-6, "extraction conserves the total")
}

func TestRun_ToleranceValidation(t *testing.T) {
	records := []billing.Record{serverRecord("srv-1", "web-1", 97.0)}

	t.Run("within tolerance", func(t *testing.T) {
		b := &fakeBilling{records: records, rate: 100.0}
		res, err := newTestEngine(b, &fakeInventory{probeErr: nil, servers: map[string]*ServerDetail{
			"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"},
		}}).Run(context.Background(), nil)
		require.NoError(t, err)

		for _, w := range res.Warnings {
			assert.NotEqual(t, WarnValidationMismatch, w.Kind)
		}
		assert.False(t, res.Degraded)
	})

	t.Run("outside tolerance", func(t *testing.T) {
		b := &fakeBilling{records: records, rate: 80.0}
		res, err := newTestEngine(b, &fakeInventory{servers: map[string]*ServerDetail{
			"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"},
		}}).Run(context.Background(), nil)
		require.NoError(t, err)

		var mismatch *Warning
		for i := range res.Warnings {
			if res.Warnings[i].Kind == WarnValidationMismatch {
				mismatch = &res.Warnings[i]
			}
		}
		require.NotNil(t, mismatch, "97 vs 80 must be recorded as a mismatch")
		assert.InDelta(t, 0.2125, mismatch.Delta, 1e-4)
		assert.True(t, res.Degraded)
	})
}

func TestRun_DeactivatesUnobserved(t *testing.T) {
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-1", "web-1", 2.0)}, rate: 2.0}
	inv := &fakeInventory{servers: map[string]*ServerDetail{
		"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"},
	}}

	gone := types.Resource{
		ProviderID: "prov-1", ResourceID: "srv-2", ResourceType: "server",
		Name: "old-worker", IsActive: true, DailyCost: 1.0,
	}
	still := types.Resource{
		ProviderID: "prov-1", ResourceID: "srv-1", ResourceType: "server",
		Name: "web-1", IsActive: true, DailyCost: 2.0,
	}

	res, err := newTestEngine(b, inv).Run(context.Background(), []types.Resource{gone, still})
	require.NoError(t, err)

	require.Len(t, res.Deactivations, 1)
	d := res.Deactivations[0]
	assert.Equal(t, "srv-2", d.Resource.ResourceID)
	assert.Equal(t, types.ReasonNoCurrentBilling, d.Reason)
	assert.False(t, d.Resource.IsActive)
	assert.Equal(t, types.ReasonNoCurrentBilling, d.Resource.Tags.DeactivationReason)
}

func TestRun_StatsEnrichment(t *testing.T) {
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-1", "web-1", 2.0)}, rate: 2.0}
	inv := &fakeInventory{
		servers: map[string]*ServerDetail{"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"}},
		stats:   map[string]map[string]float64{"srv-1": {"cpu_util": 42.5, "ram_util": 61.0, "iops": 120}},
	}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	srv := findResource(res, "srv-1")
	require.NotNil(t, srv)
	assert.InDelta(t, 42.5, srv.Tags.CPUUtilPct, 1e-9)
	assert.InDelta(t, 61.0, srv.Tags.RAMUtilPct, 1e-9)
	assert.Equal(t, "120", srv.Tags.GetExtra("stat_iops"))
}

func TestRun_StatsFailureNeverFailsSync(t *testing.T) {
	b := &fakeBilling{records: []billing.Record{serverRecord("srv-1", "web-1", 2.0)}, rate: 2.0}
	inv := &fakeInventory{
		servers:  map[string]*ServerDetail{"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"}},
		statsErr: errors.New("metrics api down"),
	}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
}

func TestRun_AccountRateUnavailableDegrades(t *testing.T) {
	b := &fakeBilling{
		records: []billing.Record{serverRecord("srv-1", "web-1", 2.0)},
		rateErr: errors.New("rate endpoint down"),
	}
	inv := &fakeInventory{servers: map[string]*ServerDetail{
		"srv-1": {ID: "srv-1", Name: "web-1", Status: "running"},
	}}

	res, err := newTestEngine(b, inv).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnAccountRateMissing, res.Warnings[0].Kind)
}
