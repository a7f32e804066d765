package reconcile

import (
	"context"
	"fmt"
	"math"

	"github.com/yairfalse/lasku/types"
)

// finalize is phase 8: totals validation against the account-level rate,
// then deactivation of previously-active resources the ledger no longer
// observes.
func (e *Engine) finalize(ctx context.Context, prevActive []types.Resource, res *Result) {
	res.TotalCost = 0
	for _, r := range res.Resources {
		res.TotalCost += r.DailyCost
	}

	e.validateTotals(ctx, res)
	e.deactivateUnobserved(prevActive, res)
}

func (e *Engine) validateTotals(ctx context.Context, res *Result) {
	rateCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	rate, err := e.billing.AccountDailyRate(rateCtx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("account rate unavailable, skipping totals validation")
		res.warn(Warning{
			Kind:    WarnAccountRateMissing,
			Message: fmt.Sprintf("account daily rate unavailable: %v", err),
		})
		res.Degraded = true
		return
	}
	if rate <= 0 {
		return
	}

	delta := math.Abs(res.TotalCost-rate) / rate
	if delta <= e.opts.Tolerance {
		return
	}

	e.logger.Warn().
		Float64("reconciled_total", res.TotalCost).
		Float64("account_rate", rate).
		Float64("delta", delta).
		Msg("reconciled total outside tolerance")
	res.warn(Warning{
		Kind:    WarnValidationMismatch,
		Message: fmt.Sprintf("reconciled total %.4f vs account rate %.4f", res.TotalCost, rate),
		Delta:   delta,
	})
	res.Degraded = true
}

// deactivateUnobserved flags every previously-active resource that this
// cycle's billing pull did not see. Deactivated with a reason tag, never
// deleted.
func (e *Engine) deactivateUnobserved(prevActive []types.Resource, res *Result) {
	observed := make(map[types.ResourceKey]struct{}, len(res.Resources))
	for _, r := range res.Resources {
		observed[e.key(r.ResourceID, r.ResourceType)] = struct{}{}
	}
	already := make(map[types.ResourceKey]struct{}, len(res.Deactivations))
	for _, d := range res.Deactivations {
		already[d.Resource.Key()] = struct{}{}
	}

	for _, prev := range prevActive {
		if !prev.IsActive {
			continue
		}
		key := prev.Key()
		if _, ok := observed[key]; ok {
			continue
		}
		if _, ok := already[key]; ok {
			continue
		}

		deactivated := prev
		deactivated.IsActive = false
		deactivated.Tags.DeactivationReason = types.ReasonNoCurrentBilling
		res.Deactivations = append(res.Deactivations, Deactivation{
			Resource: deactivated,
			Reason:   types.ReasonNoCurrentBilling,
		})
		e.logger.Info().
			Str("resource_id", prev.ResourceID).
			Str("resource_type", prev.ResourceType).
			Msg("resource no longer billed, deactivating")
	}
}
