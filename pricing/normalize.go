// Package pricing provides the cost normalization rules and the estimator
// used when a provider does not expose authoritative per-resource billing.
// All costs leaving this package are daily-equivalent rates.
package pricing

import "github.com/shopspring/decimal"

// Billing frequencies.
const (
	FrequencyOneTime    = "one-time"
	FrequencyUsageBased = "usage-based"
	FrequencyRecurring  = "recurring"
)

// Billing periods.
const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

var (
	daysPerMonth = decimal.NewFromInt(30)
	daysPerYear  = decimal.NewFromInt(365)
	hoursPerDay  = decimal.NewFromInt(24)
)

// NormalizeDaily converts any (cost, period, frequency) combination to the
// single comparable daily rate:
//
//	one-time        -> cost / 30 (spread over a month)
//	usage-based     -> cost unchanged (already a daily-equivalent rate)
//	period daily    -> unchanged
//	period monthly  -> / 30
//	period yearly   -> / 365
//	period hourly   -> * 24
//	unknown period  -> treated as monthly
func NormalizeDaily(cost float64, period, frequency string) float64 {
	d := decimal.NewFromFloat(cost)

	switch frequency {
	case FrequencyOneTime:
		return toFloat(d.Div(daysPerMonth))
	case FrequencyUsageBased:
		return cost
	}

	switch period {
	case PeriodDaily:
		return cost
	case PeriodHourly:
		return toFloat(d.Mul(hoursPerDay))
	case PeriodYearly:
		return toFloat(d.Div(daysPerYear))
	case PeriodMonthly:
		return toFloat(d.Div(daysPerMonth))
	default:
		return toFloat(d.Div(daysPerMonth))
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
