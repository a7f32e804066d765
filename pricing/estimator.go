package pricing

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yairfalse/lasku/types"
)

type skuKey struct {
	Platform string
	SKU      string
}

// Request describes the resource whose cost should be estimated.
type Request struct {
	Platform    string
	SKU         string
	VCPUs       int
	RAMMB       int
	StorageGB   int
	StorageType string
	PublicIP    bool
}

// Estimate is a daily cost plus the source it was derived from, so that
// downstream consumers can weight trust accordingly.
type Estimate struct {
	DailyCost float64
	Source    string
}

// Estimator resolves daily costs through the precedence chain:
// provider-reported billing > synchronized SKU table > static tables >
// fallback constants.
type Estimator struct {
	mu        sync.RWMutex
	synced    map[skuKey]float64
	staticSKU map[skuKey]float64
	rateCards map[string]RateCard
	fallback  RateCard
}

// NewEstimator creates an estimator loaded with the static documented
// tables.
func NewEstimator() *Estimator {
	return &Estimator{
		synced:    make(map[skuKey]float64),
		staticSKU: staticSKUPrices(),
		rateCards: staticRateCards(),
		fallback:  fallbackRateCard,
	}
}

// SyncSKUPrices replaces the synchronized daily prices for one platform.
// Prices are daily rates keyed by SKU name.
func (e *Estimator) SyncSKUPrices(platform string, prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for sku, price := range prices {
		e.synced[skuKey{Platform: platform, SKU: sku}] = price
	}
}

// Resolve applies the full precedence chain. providerDaily, when non-nil,
// is the provider's own per-object daily rate and always wins.
func (e *Estimator) Resolve(req Request, providerDaily *float64) Estimate {
	if providerDaily != nil {
		return Estimate{DailyCost: *providerDaily, Source: types.CostSourceProviderBilling}
	}
	return e.Estimate(req)
}

// Estimate resolves a cost from the tables alone.
func (e *Estimator) Estimate(req Request) Estimate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	key := skuKey{Platform: req.Platform, SKU: req.SKU}
	if req.SKU != "" {
		if price, ok := e.synced[key]; ok {
			return Estimate{DailyCost: price, Source: types.CostSourceSKUTable}
		}
		if price, ok := e.staticSKU[key]; ok {
			return Estimate{DailyCost: addExtras(price, req, e.cardFor(req.Platform)), Source: types.CostSourceStaticTable}
		}
	}
	if card, ok := e.rateCards[req.Platform]; ok {
		return Estimate{DailyCost: fromRateCard(card, req), Source: types.CostSourceStaticTable}
	}
	return Estimate{DailyCost: fromRateCard(e.fallback, req), Source: types.CostSourceFallback}
}

func (e *Estimator) cardFor(platform string) RateCard {
	if card, ok := e.rateCards[platform]; ok {
		return card
	}
	return e.fallback
}

// fromRateCard computes vCPU + RAM + storage + IP from per-unit rates.
func fromRateCard(card RateCard, req Request) float64 {
	total := decimal.Zero
	total = total.Add(decimal.NewFromInt(int64(req.VCPUs)).Mul(decimal.NewFromFloat(card.VCPUDaily)))

	ramGB := decimal.NewFromInt(int64(req.RAMMB)).Div(decimal.NewFromInt(1024))
	total = total.Add(ramGB.Mul(decimal.NewFromFloat(card.RAMGBDaily)))

	total = total.Add(decimal.NewFromInt(int64(req.StorageGB)).Mul(decimal.NewFromFloat(card.storageRate(req.StorageType))))

	if req.PublicIP {
		total = total.Add(decimal.NewFromFloat(card.PublicIPDaily))
	}
	f, _ := total.Round(4).Float64()
	return f
}

// addExtras adds storage and IP on top of a flat SKU bundle price.
func addExtras(bundle float64, req Request, card RateCard) float64 {
	total := decimal.NewFromFloat(bundle)
	total = total.Add(decimal.NewFromInt(int64(req.StorageGB)).Mul(decimal.NewFromFloat(card.storageRate(req.StorageType))))
	if req.PublicIP {
		total = total.Add(decimal.NewFromFloat(card.PublicIPDaily))
	}
	f, _ := total.Round(4).Float64()
	return f
}
