package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// PAYROLL METRICS
// =============================================================================

// PayrollMetrics sums hours * rate over every employee and every month from
// month(from) to month(to). Rates are resolved at RateAnchorDay of each
// month, not at the closure's month end, so a rate that starts after the
// anchor is not reflected until the next month.
//
// The payroll-to-revenue ratio divides by revenue from StartOfDay(from)
// onward with no upper bound.
func (e *Engine) PayrollMetrics(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) (PayrollReport, error) {
	p, err := e.period(ctx, tenantID, from, to)
	if err != nil {
		return PayrollReport{}, err
	}

	employees, err := e.Directory.ListEmployees(ctx, tenantID)
	if err != nil {
		return PayrollReport{}, fmt.Errorf("list employees for %s: %w", tenantID, err)
	}

	report := PayrollReport{
		TenantID:            tenantID,
		Period:              p,
		TotalCost:           decimal.Zero,
		TotalHours:          decimal.Zero,
		AverageCostPerHour:  decimal.Zero,
		PayrollToRevenuePct: decimal.Zero,
	}

	first, last := p.Start.YearMonth(), p.End.YearMonth()
	for _, emp := range employees {
		rows, err := e.Hours.ListHours(ctx, emp.ID, first, last)
		if err != nil {
			return PayrollReport{}, fmt.Errorf("list hours for %s: %w", emp.ID, err)
		}
		if len(rows) == 0 {
			continue
		}

		line := EmployeePayroll{EmployeeID: emp.ID, Name: emp.Name, Hours: decimal.Zero, Cost: decimal.Zero}
		for _, h := range rows {
			rate, err := e.Rates.RateOrZero(ctx, emp.ID, e.rateAnchor(h.Period))
			if err != nil {
				return PayrollReport{}, err
			}
			line.Hours = line.Hours.Add(h.Hours)
			line.Cost = line.Cost.Add(h.Hours.Mul(rate))
		}

		report.TotalHours = report.TotalHours.Add(line.Hours)
		report.TotalCost = report.TotalCost.Add(line.Cost)
		report.Employees = append(report.Employees, line)
	}

	if !report.TotalHours.IsZero() {
		report.AverageCostPerHour = report.TotalCost.Div(report.TotalHours)
	}

	sales, err := e.Sales.ListSales(ctx, tenantID, p.From(), time.Time{})
	if err != nil {
		return PayrollReport{}, fmt.Errorf("list sales for %s since %s: %w", tenantID, p.Start, err)
	}
	if revenue := sumSales(sales); !revenue.IsZero() {
		report.PayrollToRevenuePct = report.TotalCost.Div(revenue).Mul(hundred)
	}

	return report, nil
}
