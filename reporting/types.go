package reporting

import (
	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// CategoryAmount is one line of the P&L expense breakdown. Amount is a
// positive magnitude.
type CategoryAmount struct {
	CategoryID generic.CategoryID
	Name       string
	Amount     decimal.Decimal
}

// PnLReport is the profit and loss statement for a period.
type PnLReport struct {
	TenantID           generic.TenantID
	Period             generic.Period
	Revenue            decimal.Decimal
	CostOfGoodsSold    decimal.Decimal
	GrossMargin        decimal.Decimal
	OperatingExpenses  decimal.Decimal // positive magnitude
	ExpensesByCategory []CategoryAmount
	OperatingProfit    decimal.Decimal
}

// EmployeePayroll is one employee's share of the payroll report.
type EmployeePayroll struct {
	EmployeeID generic.EmployeeID
	Name       string
	Hours      decimal.Decimal
	Cost       decimal.Decimal
}

// PayrollReport aggregates hours and cost over the months of a period.
type PayrollReport struct {
	TenantID            generic.TenantID
	Period              generic.Period
	TotalCost           decimal.Decimal
	TotalHours          decimal.Decimal
	AverageCostPerHour  decimal.Decimal
	PayrollToRevenuePct decimal.Decimal
	Employees           []EmployeePayroll
}

// CashFlowKind tells sales from expense movements in the drill-down.
type CashFlowKind string

const (
	CashFlowSale    CashFlowKind = "sale"
	CashFlowExpense CashFlowKind = "expense"
)

// SalesCategory is the synthetic category sales are listed under.
const SalesCategory = "Sales"

// CashFlowLine is one entry of the cash flow drill-down. Amount is signed.
type CashFlowLine struct {
	Date        generic.Date
	Kind        CashFlowKind
	Category    string
	Description string
	Amount      decimal.Decimal
}

// CashFlowReport has no carry-forward: OpeningBalance is always zero.
type CashFlowReport struct {
	TenantID       generic.TenantID
	Period         generic.Period
	OpeningBalance decimal.Decimal
	Inflows        decimal.Decimal
	Outflows       decimal.Decimal
	ClosingBalance decimal.Decimal
	Movements      []CashFlowLine
}

// CategoryBreakdown is one row of the expense analysis. Percentage is
// rounded to 4 decimal places.
type CategoryBreakdown struct {
	CategoryID generic.CategoryID
	Name       string
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

type ProductValue struct {
	ProductID generic.ProductID
	Name      string
	Quantity  decimal.Decimal
	UnitCost  decimal.Decimal
	Value     decimal.Decimal
}

// InventoryValuationReport is a point-in-time snapshot of active stock.
type InventoryValuationReport struct {
	TenantID     generic.TenantID
	TotalValue   decimal.Decimal
	ProductCount int
	TopProducts  []ProductValue
}
