package reporting

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// PROFIT & LOSS
// =============================================================================

// ProfitAndLoss computes:
//
//	Revenue          = sum of sale totals
//	COGS             = sum over sold lines of product cost * quantity
//	GrossMargin      = Revenue - COGS
//	OperatingProfit  = GrossMargin + sum of signed movements
//
// OperatingExpenses and the per-category breakdown are positive magnitudes,
// so OperatingProfit = GrossMargin - OperatingExpenses always holds.
func (e *Engine) ProfitAndLoss(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) (PnLReport, error) {
	p, err := e.period(ctx, tenantID, from, to)
	if err != nil {
		return PnLReport{}, err
	}

	sales, err := e.salesIn(ctx, tenantID, p)
	if err != nil {
		return PnLReport{}, err
	}
	movements, err := e.movementsIn(ctx, tenantID, p)
	if err != nil {
		return PnLReport{}, err
	}

	cogs, err := e.costOfGoodsSold(ctx, tenantID, sales)
	if err != nil {
		return PnLReport{}, err
	}

	names, err := e.categoryNames(ctx, tenantID)
	if err != nil {
		return PnLReport{}, err
	}

	revenue := sumSales(sales)
	signedExpenses := generic.SumSigned(movements)
	grossMargin := revenue.Sub(cogs)

	var byCategory []CategoryAmount
	for id, sum := range generic.SumByCategory(movements) {
		byCategory = append(byCategory, CategoryAmount{CategoryID: id, Name: names[id], Amount: generic.Magnitude(sum)})
	}
	sortCategoryAmounts(byCategory)

	return PnLReport{
		TenantID:           tenantID,
		Period:             p,
		Revenue:            revenue,
		CostOfGoodsSold:    cogs,
		GrossMargin:        grossMargin,
		OperatingExpenses:  generic.Magnitude(signedExpenses),
		ExpensesByCategory: byCategory,
		OperatingProfit:    grossMargin.Add(signedExpenses),
	}, nil
}

// costOfGoodsSold prices each sold line at the product's current cost. Lines
// for products no longer in the catalog cost nothing.
func (e *Engine) costOfGoodsSold(ctx context.Context, tenantID generic.TenantID, sales []generic.Sale) (decimal.Decimal, error) {
	products, err := e.Inventory.ListProducts(ctx, tenantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list products for %s: %w", tenantID, err)
	}
	cost := make(map[generic.ProductID]decimal.Decimal, len(products))
	for _, p := range products {
		cost[p.ID] = p.Cost
	}

	total := decimal.Zero
	for _, s := range sales {
		for _, line := range s.Lines {
			total = total.Add(cost[line.ProductID].Mul(line.Quantity))
		}
	}
	return total, nil
}

// sortCategoryAmounts orders by amount descending, then name.
func sortCategoryAmounts(lines []CategoryAmount) {
	sort.Slice(lines, func(i, j int) bool {
		if c := lines[i].Amount.Cmp(lines[j].Amount); c != 0 {
			return c > 0
		}
		return lines[i].Name < lines[j].Name
	})
}
