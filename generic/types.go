/*
Package generic provides the shared vocabulary of the back-office engine.

PURPOSE:
  This package holds the types every other package speaks: money, typed
  identifiers, accounting dates, the expense ledger entities, the
  collaborator facts (tenants, branches, employees, sales, products) and the
  storage ports. It contains no closure or reporting logic of its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal, signed (positive = inflow, negative = outflow)
  - ExpenseMovement: An immutable, dated ledger entry
  - ExpenseTemplate / SalaryRate / HoursWorked: Inputs to month closure
  - MonthClosure: The terminal marker for a (tenant, month)
  - Tenant / Branch / Employee / Sale / Product: Read-only facts owned by
    external collaborators

DESIGN PRINCIPLES:
  1. Immutability: Movements are never updated; closure only appends
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing tenants and employees
  4. Partitioning: Every tenant-scoped entity carries its TenantID

SEE ALSO:
  - time.go: Date and YearMonth
  - store.go: Storage ports
  - ledger.go: Append-only movement ledger
*/
package generic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// ParseDecimal parses a stored decimal value.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// Magnitude returns the positive display value of a signed ledger sum.
func Magnitude(signed decimal.Decimal) decimal.Decimal { return signed.Neg() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type BranchID string
type EmployeeID string
type CategoryID string
type MovementID string
type TemplateID string
type RateID string
type ProductID string
type SaleID string

// NewID returns a random identifier for newly created rows.
func NewID() string { return uuid.NewString() }

// ClosureKey is the uniqueness key of a month closure: "{YYYY-MM}:{tenant}".
// Storage enforces it with a unique index; it is the only serialization
// point between concurrent closures.
func ClosureKey(tenantID TenantID, ym YearMonth) string {
	return fmt.Sprintf("%s:%s", ym, tenantID)
}

// =============================================================================
// EXPENSE LEDGER
// =============================================================================

// PayrollCategoryName is the system-managed category payroll costs post to.
const PayrollCategoryName = "Payroll"

// ExpenseCategory is a tenant-scoped label for movements.
type ExpenseCategory struct {
	ID        CategoryID
	TenantID  TenantID
	Name      string
	IsDefault bool // system-managed (e.g. Payroll)
	Active    bool // inactive categories are hidden, never deleted
}

type MovementSource string

const (
	SourceManual  MovementSource = "manual"
	SourceClosure MovementSource = "closure"
)

// ExpenseMovement is one signed, dated financial fact.
type ExpenseMovement struct {
	ID          MovementID
	TenantID    TenantID
	CategoryID  CategoryID
	EmployeeID  EmployeeID // set only for payroll-derived movements
	BranchID    BranchID
	Amount      decimal.Decimal
	Date        Date
	Description string
	Source      MovementSource
	CreatedAt   time.Time
}

// IsOutflow reports whether the movement takes money out.
func (m ExpenseMovement) IsOutflow() bool { return m.Amount.IsNegative() }

// ExpenseTemplate produces one movement per month it applies to.
type ExpenseTemplate struct {
	ID            TemplateID
	TenantID      TenantID
	CategoryID    CategoryID
	Amount        decimal.Decimal
	Recurring     bool
	EffectiveFrom Date
	Description   string
}

// AppliesTo reports whether the template materializes in the month ending at
// monthEnd: recurring templates apply from their effective month onward,
// one-shot templates only in the month containing EffectiveFrom.
func (t ExpenseTemplate) AppliesTo(monthEnd Date) bool {
	if t.EffectiveFrom.After(monthEnd) {
		return false
	}
	return t.Recurring || t.EffectiveFrom.YearMonth().Equal(monthEnd.YearMonth())
}

// SalaryRate is one point in an employee's hourly-rate time series.
type SalaryRate struct {
	ID            RateID
	EmployeeID    EmployeeID
	HourlyRate    decimal.Decimal
	EffectiveFrom Date
	Seq           int64 // insertion order; breaks ties on EffectiveFrom
}

// HoursWorked is the total hours an employee worked in a month.
type HoursWorked struct {
	EmployeeID EmployeeID
	Period     YearMonth
	Hours      decimal.Decimal
}

// MonthClosure marks a (tenant, month) as finalized. Terminal.
type MonthClosure struct {
	Key       string
	TenantID  TenantID
	Period    YearMonth
	ClosedAt  time.Time
	Movements int
}

// NewMonthClosure builds the marker for a tenant and month.
func NewMonthClosure(tenantID TenantID, ym YearMonth, closedAt time.Time, movements int) MonthClosure {
	return MonthClosure{
		Key:       ClosureKey(tenantID, ym),
		TenantID:  tenantID,
		Period:    ym,
		ClosedAt:  closedAt.UTC(),
		Movements: movements,
	}
}

// =============================================================================
// COLLABORATOR FACTS (read-only to the engine)
// =============================================================================

type Tenant struct {
	ID   TenantID
	Name string
}

// Branch is a store location. Seq records registration order.
type Branch struct {
	ID       BranchID
	TenantID TenantID
	Name     string
	Seq      int64
}

// Employee belongs to a tenant. Owners and administrators may have no branch.
type Employee struct {
	ID       EmployeeID
	TenantID TenantID
	Name     string
	BranchID BranchID // empty when unassigned
	IsOwner  bool
}

func (e Employee) HasBranch() bool { return e.BranchID != "" }

type Product struct {
	ID       ProductID
	TenantID TenantID
	Name     string
	Cost     decimal.Decimal
	Quantity decimal.Decimal
	Active   bool
}

// StockValue is cost * quantity on hand.
func (p Product) StockValue() decimal.Decimal { return p.Cost.Mul(p.Quantity) }

type Sale struct {
	ID       SaleID
	TenantID TenantID
	BranchID BranchID
	Total    decimal.Decimal
	At       time.Time
	Lines    []SaleLine
}

type SaleLine struct {
	ProductID ProductID
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}
