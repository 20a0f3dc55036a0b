package reporting

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// CASH FLOW
// =============================================================================

// CashFlow reports money in (sales) and money out (negative movements).
// Non-negative movements appear in the drill-down but never count as
// outflows. Lines are sorted newest first.
func (e *Engine) CashFlow(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) (CashFlowReport, error) {
	p, err := e.period(ctx, tenantID, from, to)
	if err != nil {
		return CashFlowReport{}, err
	}

	sales, err := e.salesIn(ctx, tenantID, p)
	if err != nil {
		return CashFlowReport{}, err
	}
	movements, err := e.movementsIn(ctx, tenantID, p)
	if err != nil {
		return CashFlowReport{}, err
	}
	names, err := e.categoryNames(ctx, tenantID)
	if err != nil {
		return CashFlowReport{}, err
	}

	inflows := sumSales(sales)
	outflows := generic.SumOutflows(movements)

	// Lines carry only the day, so same-day sales are ordered here.
	sort.SliceStable(sales, func(i, j int) bool { return sales[i].At.After(sales[j].At) })

	lines := make([]CashFlowLine, 0, len(sales)+len(movements))
	for _, s := range sales {
		lines = append(lines, CashFlowLine{
			Date:        generic.DateOf(s.At),
			Kind:        CashFlowSale,
			Category:    SalesCategory,
			Description: "Sale #" + string(s.ID),
			Amount:      s.Total,
		})
	}
	for _, m := range movements {
		lines = append(lines, CashFlowLine{
			Date:        m.Date,
			Kind:        CashFlowExpense,
			Category:    names[m.CategoryID],
			Description: m.Description,
			Amount:      m.Amount,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Date.After(lines[j].Date) })

	return CashFlowReport{
		TenantID:       tenantID,
		Period:         p,
		OpeningBalance: decimal.Zero,
		Inflows:        inflows,
		Outflows:       outflows,
		ClosingBalance: inflows.Sub(outflows),
		Movements:      lines,
	}, nil
}
