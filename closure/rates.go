package closure

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// RATE RESOLVER - Effective-dated hourly rates
// =============================================================================

// RateResolver answers "what did this employee earn per hour on day D".
//
// The rate in effect is the one with the greatest EffectiveFrom <= cutoff.
// Two rates with the same EffectiveFrom are ordered by insertion: the most
// recently added wins. The store applies both rules in one query.
type RateResolver struct {
	Rates generic.RateStore
}

func NewRateResolver(rates generic.RateStore) *RateResolver {
	return &RateResolver{Rates: rates}
}

// Resolve returns the rate in effect at cutoff. ok is false when the employee
// has no rate on or before cutoff; that is not an error and callers treat
// the rate as zero.
func (r *RateResolver) Resolve(ctx context.Context, employeeID generic.EmployeeID, cutoff generic.Date) (rate decimal.Decimal, ok bool, err error) {
	latest, err := r.Rates.LatestRate(ctx, employeeID, cutoff)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("resolve rate for %s at %s: %w", employeeID, cutoff, err)
	}
	if latest == nil {
		return decimal.Zero, false, nil
	}
	return latest.HourlyRate, true, nil
}

// RateOrZero is Resolve with the "no rate" case folded into zero.
func (r *RateResolver) RateOrZero(ctx context.Context, employeeID generic.EmployeeID, cutoff generic.Date) (decimal.Decimal, error) {
	rate, _, err := r.Resolve(ctx, employeeID, cutoff)
	return rate, err
}
