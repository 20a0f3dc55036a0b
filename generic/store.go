/*
store.go - Storage ports for the ledger, closure inputs and collaborator facts

PURPOSE:
  Defines the interface between the domain logic and the database.
  Each entity gets a small port with explicit query contracts
  (find-by-key, find-in-range, insert). Implementations exist for SQLite,
  PostgreSQL and in-memory storage; the engines only see these interfaces.

KEY INTERFACES:
  Directory:       Tenants, branches, employees (external collaborator)
  SalesSource:     Sales in a time range (external collaborator, read-only)
  InventorySource: Products with cost and quantity (external collaborator)
  CategoryStore / TemplateStore / RateStore / HoursStore: closure inputs
  MovementStore:   The expense ledger (append-only)
  ClosureStore:    Month closure markers
  TxStore:         Atomic "marker + movements" write

APPEND-ONLY CONTRACT:
  - MovementStore has no Update and no Delete
  - LedgerTx.InsertClosure fails with ErrMonthAlreadyClosed when the key
    exists; the check happens in storage (unique index), never as a
    separate read in application code

MISSING ROWS:
  Single-row lookups return (nil, nil) when the row does not exist. Callers
  decide whether absence is an error (tenant) or a normal case (hours).

SEE ALSO:
  - generic/store/memory.go: In-memory implementation for testing
  - store/sqlite/sqlite.go: SQLite implementation
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// COLLABORATOR PORTS (read-only to the engine)
// =============================================================================

// Directory resolves tenants and their people and places.
type Directory interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	GetTenant(ctx context.Context, id TenantID) (*Tenant, error)

	// ListBranches returns branches in registration order (first registered first).
	ListBranches(ctx context.Context, tenantID TenantID) ([]Branch, error)

	ListEmployees(ctx context.Context, tenantID TenantID) ([]Employee, error)
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
}

// SalesSource lists sales with from <= At <= to. A zero `to` is unbounded.
type SalesSource interface {
	ListSales(ctx context.Context, tenantID TenantID, from, to time.Time) ([]Sale, error)
}

// InventorySource lists every product of a tenant, active or not.
type InventorySource interface {
	ListProducts(ctx context.Context, tenantID TenantID) ([]Product, error)
}

// =============================================================================
// CLOSURE INPUT PORTS
// =============================================================================

type CategoryStore interface {
	GetCategory(ctx context.Context, id CategoryID) (*ExpenseCategory, error)

	// FindCategoryByName looks among active categories only.
	FindCategoryByName(ctx context.Context, tenantID TenantID, name string) (*ExpenseCategory, error)

	ListCategories(ctx context.Context, tenantID TenantID, includeInactive bool) ([]ExpenseCategory, error)

	// SaveCategory inserts a category. Returns ErrDuplicateCategory if an
	// active category with the same name exists for the tenant.
	SaveCategory(ctx context.Context, c ExpenseCategory) error

	DeactivateCategory(ctx context.Context, id CategoryID) error
}

type TemplateStore interface {
	ListTemplates(ctx context.Context, tenantID TenantID) ([]ExpenseTemplate, error)

	// ListTemplatesApplying returns templates with EffectiveFrom <= monthEnd
	// that are recurring or effective in monthEnd's month.
	ListTemplatesApplying(ctx context.Context, tenantID TenantID, monthEnd Date) ([]ExpenseTemplate, error)

	SaveTemplate(ctx context.Context, t ExpenseTemplate) error
}

type RateStore interface {
	// LatestRate returns the rate with the greatest EffectiveFrom <= cutoff,
	// highest Seq first on ties. (nil, nil) when none.
	LatestRate(ctx context.Context, employeeID EmployeeID, cutoff Date) (*SalaryRate, error)

	// AddRate inserts a rate and returns it with its assigned Seq.
	AddRate(ctx context.Context, r SalaryRate) (SalaryRate, error)

	ListRates(ctx context.Context, employeeID EmployeeID) ([]SalaryRate, error)
}

type HoursStore interface {
	GetHours(ctx context.Context, employeeID EmployeeID, ym YearMonth) (*HoursWorked, error)

	// ListHours returns rows with from <= Period <= to, oldest first.
	ListHours(ctx context.Context, employeeID EmployeeID, from, to YearMonth) ([]HoursWorked, error)

	// UpsertHours replaces the (employee, month) row.
	UpsertHours(ctx context.Context, h HoursWorked) error
}

// =============================================================================
// LEDGER PORTS
// =============================================================================

// MovementStore is APPEND-ONLY. No Update, No Delete.
type MovementStore interface {
	// ListMovements returns movements with from <= Date <= to, ordered by Date.
	ListMovements(ctx context.Context, tenantID TenantID, from, to Date) ([]ExpenseMovement, error)

	// AppendMovement persists a single (manual) movement.
	AppendMovement(ctx context.Context, m ExpenseMovement) error
}

type ClosureStore interface {
	GetClosure(ctx context.Context, key string) (*MonthClosure, error)
	ListClosures(ctx context.Context, tenantID TenantID) ([]MonthClosure, error)
}

// LedgerTx is the write view available inside TxStore.WithTx.
type LedgerTx interface {
	// InsertClosure writes the marker. Returns ErrMonthAlreadyClosed on a
	// unique-key violation.
	InsertClosure(ctx context.Context, c MonthClosure) error

	AppendMovements(ctx context.Context, movements []ExpenseMovement) error
}

// TxStore runs fn atomically. If fn returns error, every write is rolled back.
type TxStore interface {
	WithTx(ctx context.Context, fn func(LedgerTx) error) error
}

// =============================================================================
// FACT WRITERS (seeding and tests; collaborators own these in production)
// =============================================================================

type FactWriter interface {
	SaveTenant(ctx context.Context, t Tenant) error

	// SaveBranch inserts a branch; the store assigns Seq.
	SaveBranch(ctx context.Context, b Branch) error

	SaveEmployee(ctx context.Context, e Employee) error
	SaveProduct(ctx context.Context, p Product) error
	SaveSale(ctx context.Context, s Sale) error

	// Reset clears all data (dev/demo only).
	Reset(ctx context.Context) error
}

// Store is everything a backing database provides.
type Store interface {
	Directory
	SalesSource
	InventorySource
	CategoryStore
	TemplateStore
	RateStore
	HoursStore
	MovementStore
	ClosureStore
	TxStore
	FactWriter
}
