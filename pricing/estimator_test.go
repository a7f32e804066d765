package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/lasku/types"
)

func TestResolve_ProviderBillingWins(t *testing.T) {
	e := NewEstimator()
	rate := 9.99
	est := e.Resolve(Request{Platform: "openstack", SKU: "c2-r4"}, &rate)

	assert.Equal(t, types.CostSourceProviderBilling, est.Source)
	assert.InDelta(t, 9.99, est.DailyCost, 1e-9)
}

func TestEstimate_SyncedSKUBeatsStatic(t *testing.T) {
	e := NewEstimator()

	est := e.Estimate(Request{Platform: "openstack", SKU: "c2-r4"})
	assert.Equal(t, types.CostSourceStaticTable, est.Source)

	e.SyncSKUPrices("openstack", map[string]float64{"c2-r4": 2.10})
	est = e.Estimate(Request{Platform: "openstack", SKU: "c2-r4"})
	assert.Equal(t, types.CostSourceSKUTable, est.Source)
	assert.InDelta(t, 2.10, est.DailyCost, 1e-9)
}

func TestEstimate_RateCard(t *testing.T) {
	e := NewEstimator()
	est := e.Estimate(Request{
		Platform:  "openstack",
		VCPUs:     2,
		RAMMB:     4096,
		StorageGB: 100,
		PublicIP:  true,
	})

	// 2*0.60 + 4*0.15 + 100*0.0070 + 0.10
	assert.Equal(t, types.CostSourceStaticTable, est.Source)
	assert.InDelta(t, 2.60, est.DailyCost, 1e-4)
}

func TestEstimate_StorageTiers(t *testing.T) {
	e := NewEstimator()

	ssd := e.Estimate(Request{Platform: "openstack", StorageGB: 100, StorageType: "ssd"})
	hdd := e.Estimate(Request{Platform: "openstack", StorageGB: 100, StorageType: "hdd"})
	unknownTier := e.Estimate(Request{Platform: "openstack", StorageGB: 100, StorageType: "tape"})

	assert.InDelta(t, 0.90, ssd.DailyCost, 1e-4)
	assert.InDelta(t, 0.35, hdd.DailyCost, 1e-4)
	// Unknown tiers use the default rate.
	assert.InDelta(t, 0.70, unknownTier.DailyCost, 1e-4)
}

func TestEstimate_FallbackConstants(t *testing.T) {
	e := NewEstimator()
	est := e.Estimate(Request{Platform: "dimension-x", VCPUs: 1, RAMMB: 1024})

	assert.Equal(t, types.CostSourceFallback, est.Source)
	assert.InDelta(t, 1.00, est.DailyCost, 1e-4)
}

func TestEstimate_SKUBundlePlusExtras(t *testing.T) {
	e := NewEstimator()
	est := e.Estimate(Request{Platform: "aws", SKU: "t3.medium", StorageGB: 30, StorageType: "gp3", PublicIP: true})

	// 1.00 bundle + 30*0.0027 + 0.12
	assert.Equal(t, types.CostSourceStaticTable, est.Source)
	assert.InDelta(t, 1.201, est.DailyCost, 1e-4)
}
