package pricing

// RateCard holds per-unit daily rates for one platform. Storage rates are
// keyed by storage type with "" as the default tier.
type RateCard struct {
	VCPUDaily      float64
	RAMGBDaily     float64
	StorageGBDaily map[string]float64
	PublicIPDaily  float64
}

func (c RateCard) storageRate(storageType string) float64 {
	if rate, ok := c.StorageGBDaily[storageType]; ok {
		return rate
	}
	return c.StorageGBDaily[""]
}

// staticRateCards are the documented per-platform price tables. They sit
// below synchronized SKU prices and above the hardcoded fallback.
func staticRateCards() map[string]RateCard {
	return map[string]RateCard{
		"openstack": {
			VCPUDaily:  0.60,
			RAMGBDaily: 0.15,
			StorageGBDaily: map[string]float64{
				"":     0.0070,
				"ssd":  0.0090,
				"hdd":  0.0035,
				"nvme": 0.0120,
			},
			PublicIPDaily: 0.10,
		},
		"aws": {
			VCPUDaily:  1.00,
			RAMGBDaily: 0.25,
			StorageGBDaily: map[string]float64{
				"":    0.0033,
				"gp2": 0.0033,
				"gp3": 0.0027,
				"io1": 0.0042,
				"st1": 0.0015,
			},
			PublicIPDaily: 0.12,
		},
	}
}

// staticSKUPrices are documented flat daily prices for whole SKUs where the
// vendor publishes bundle pricing instead of per-unit rates.
func staticSKUPrices() map[skuKey]float64 {
	return map[skuKey]float64{
		{Platform: "openstack", SKU: "c1-r1"}:  0.80,
		{Platform: "openstack", SKU: "c2-r4"}:  1.90,
		{Platform: "openstack", SKU: "c4-r8"}:  3.70,
		{Platform: "openstack", SKU: "c8-r16"}: 7.20,
		{Platform: "aws", SKU: "t3.micro"}:     0.25,
		{Platform: "aws", SKU: "t3.small"}:     0.50,
		{Platform: "aws", SKU: "t3.medium"}:    1.00,
		{Platform: "aws", SKU: "m5.large"}:     2.30,
		{Platform: "aws", SKU: "m5.xlarge"}:    4.60,
	}
}

// fallbackRateCard is the lowest-confidence constant set, used when a
// platform has neither synced nor static prices.
var fallbackRateCard = RateCard{
	VCPUDaily:      0.80,
	RAMGBDaily:     0.20,
	StorageGBDaily: map[string]float64{"": 0.0050},
	PublicIPDaily:  0.10,
}
