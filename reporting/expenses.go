package reporting

import (
	"context"
	"sort"

	"github.com/warp/backoffice/generic"
)

// percentagePlaces is the rounding of breakdown percentages.
const percentagePlaces = 4

// ExpenseAnalysis breaks the period's expenses down by category.
//
// Each category's amount is the negated signed sum of its movements; its
// percentage is that amount over the total magnitude of negative movements.
// A period without outflows yields an empty list.
func (e *Engine) ExpenseAnalysis(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) ([]CategoryBreakdown, error) {
	p, err := e.period(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	movements, err := e.movementsIn(ctx, tenantID, p)
	if err != nil {
		return nil, err
	}

	total := generic.SumOutflows(movements)
	if total.IsZero() {
		return []CategoryBreakdown{}, nil
	}

	names, err := e.categoryNames(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	breakdown := make([]CategoryBreakdown, 0)
	for id, sum := range generic.SumByCategory(movements) {
		amount := generic.Magnitude(sum)
		breakdown = append(breakdown, CategoryBreakdown{
			CategoryID: id,
			Name:       names[id],
			Amount:     amount,
			Percentage: amount.Div(total).Mul(hundred).Round(percentagePlaces),
		})
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if c := breakdown[i].Amount.Cmp(breakdown[j].Amount); c != 0 {
			return c > 0
		}
		return breakdown[i].Name < breakdown[j].Name
	})
	return breakdown, nil
}
