/*
Package reporting derives financial reports from the expense ledger, sales
and the inventory snapshot.

PURPOSE:
  Every report is computed on demand from facts; nothing is cached and
  nothing is written. A report computed while a closure is running may or
  may not include that closure's movements.

DATE RANGES:
  Reports take an inclusive [from, to] range of days.
  - Movements match when from <= Date <= to
  - Sales match when StartOfDay(from) <= At <= EndOfDay(to)
  - Payroll works by month: every month from month(from) to month(to)

SIGNS:
  Ledger amounts are signed (negative = outflow). Reports show expenses as
  positive magnitudes and keep signed sums for profit arithmetic.

DIVISION BY ZERO:
  Ratios and averages with a zero denominator are zero. The expense
  analysis of a period without outflows is an empty list.

UNKNOWN TENANTS:
  A report for a tenant that does not exist is a not-found error, never an
  empty report.

SEE ALSO:
  - pnl.go, payroll.go, cashflow.go, expenses.go, inventory.go
  - closure/rates.go: Rate resolution shared with payroll materialization
*/
package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
)

// DefaultRateAnchorDay is the day of month payroll metrics resolve rates
// at. Historical reports were computed with day 28, not the true month end.
const DefaultRateAnchorDay = 28

// TopProductsLimit caps the inventory valuation's top list.
const TopProductsLimit = 5

var hundred = decimal.NewFromInt(100)

// Engine computes reports. It never mutates state.
type Engine struct {
	Directory  generic.Directory
	Sales      generic.SalesSource
	Inventory  generic.InventorySource
	Categories generic.CategoryStore
	Movements  generic.MovementStore
	Hours      generic.HoursStore
	Rates      *closure.RateResolver
	Logger     *slog.Logger

	// RateAnchorDay is the day of month used to resolve payroll rates.
	// Zero means the last day of the month.
	RateAnchorDay int
}

// NewEngine wires a reporting engine over a single store.
func NewEngine(store generic.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Directory:     store,
		Sales:         store,
		Inventory:     store,
		Categories:    store,
		Movements:     store,
		Hours:         store,
		Rates:         closure.NewRateResolver(store),
		Logger:        logger,
		RateAnchorDay: DefaultRateAnchorDay,
	}
}

// period validates the range and the tenant.
func (e *Engine) period(ctx context.Context, tenantID generic.TenantID, from, to generic.Date) (generic.Period, error) {
	p, err := generic.NewPeriod(from, to)
	if err != nil {
		return generic.Period{}, fmt.Errorf("period %s..%s: %w", from, to, err)
	}
	if err := e.requireTenant(ctx, tenantID); err != nil {
		return generic.Period{}, err
	}
	return p, nil
}

func (e *Engine) requireTenant(ctx context.Context, tenantID generic.TenantID) error {
	tenant, err := e.Directory.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		e.Logger.Debug("report requested for unknown tenant", "tenant", tenantID)
		return generic.TenantNotFound(tenantID)
	}
	return nil
}

// rateAnchor returns the day of ym at which payroll metrics resolve rates.
func (e *Engine) rateAnchor(ym generic.YearMonth) generic.Date {
	if e.RateAnchorDay <= 0 {
		return ym.LastDay()
	}
	return ym.Day(e.RateAnchorDay)
}

// =============================================================================
// SHARED LOADERS
// =============================================================================

func (e *Engine) salesIn(ctx context.Context, tenantID generic.TenantID, p generic.Period) ([]generic.Sale, error) {
	sales, err := e.Sales.ListSales(ctx, tenantID, p.From(), p.To())
	if err != nil {
		return nil, fmt.Errorf("list sales for %s in %s: %w", tenantID, p, err)
	}
	return sales, nil
}

func (e *Engine) movementsIn(ctx context.Context, tenantID generic.TenantID, p generic.Period) ([]generic.ExpenseMovement, error) {
	movements, err := e.Movements.ListMovements(ctx, tenantID, p.Start, p.End)
	if err != nil {
		return nil, fmt.Errorf("list movements for %s in %s: %w", tenantID, p, err)
	}
	return movements, nil
}

// categoryNames maps every category of the tenant, inactive included:
// historical movements keep pointing at deactivated categories.
func (e *Engine) categoryNames(ctx context.Context, tenantID generic.TenantID) (map[generic.CategoryID]string, error) {
	categories, err := e.Categories.ListCategories(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("list categories for %s: %w", tenantID, err)
	}
	names := make(map[generic.CategoryID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

func sumSales(sales []generic.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.Total)
	}
	return total
}
