/*
ledger.go - Append-only expense ledger

PURPOSE:
  The Ledger is the immutable source of truth for expenses and other
  non-sale money movements. Closure appends payroll and template movements;
  operators append manual ones. Every report is derived by summing
  movements - there is no stored "total" that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete from this package. EVER.
  2. SIGNED: Positive = inflow, negative = outflow
  3. CATEGORIZED: Every movement references an existing category of its tenant

CORRECTIONS:
  A wrong movement is not edited. Post an opposite movement; both stay in
  the ledger and the net effect is the correction.

SEE ALSO:
  - store.go: Low-level persistence ports
  - closure/writer.go: Writes closure movements atomically with the marker
*/
package generic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Manual bookkeeping over the movement store
// =============================================================================

// Ledger validates and appends manual movements and manages categories.
type Ledger struct {
	Movements  MovementStore
	Categories CategoryStore

	// Now is overridable for tests.
	Now func() time.Time
}

func NewLedger(movements MovementStore, categories CategoryStore) *Ledger {
	return &Ledger{Movements: movements, Categories: categories, Now: time.Now}
}

// Append records a manual movement after checking its category.
func (l *Ledger) Append(ctx context.Context, m ExpenseMovement) (ExpenseMovement, error) {
	if m.TenantID == "" {
		return ExpenseMovement{}, fmt.Errorf("movement tenant is required: %w", ErrInvalidInput)
	}
	if m.Amount.IsZero() {
		return ExpenseMovement{}, fmt.Errorf("movement amount must be non-zero: %w", ErrInvalidAmount)
	}
	if m.Date.IsZero() {
		return ExpenseMovement{}, fmt.Errorf("movement date is required: %w", ErrInvalidInput)
	}

	if _, err := activeCategory(ctx, l.Categories, m.TenantID, m.CategoryID); err != nil {
		return ExpenseMovement{}, err
	}

	if m.ID == "" {
		m.ID = MovementID(NewID())
	}
	if m.Source == "" {
		m.Source = SourceManual
	}
	m.CreatedAt = l.Now().UTC()

	if err := l.Movements.AppendMovement(ctx, m); err != nil {
		return ExpenseMovement{}, fmt.Errorf("append movement: %w", err)
	}
	return m, nil
}

// activeCategory loads a category that must belong to tenantID and be active.
func activeCategory(ctx context.Context, categories CategoryStore, tenantID TenantID, id CategoryID) (*ExpenseCategory, error) {
	cat, err := categories.GetCategory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load category %s: %w", id, err)
	}
	if cat == nil || cat.TenantID != tenantID {
		return nil, &NotFoundError{Kind: "category", ID: string(id), Err: ErrCategoryNotFound}
	}
	if !cat.Active {
		return nil, fmt.Errorf("category %q: %w", cat.Name, ErrCategoryInactive)
	}
	return cat, nil
}

// MovementsIn returns the tenant's movements within the period. Read-only.
func (l *Ledger) MovementsIn(ctx context.Context, tenantID TenantID, p Period) ([]ExpenseMovement, error) {
	return l.Movements.ListMovements(ctx, tenantID, p.Start, p.End)
}

// CreateCategory adds a non-default, active category.
func (l *Ledger) CreateCategory(ctx context.Context, tenantID TenantID, name string) (ExpenseCategory, error) {
	return l.createCategory(ctx, tenantID, name, false)
}

// EnsureDefaultCategories creates the system-managed Payroll category when
// the tenant has no active one.
func (l *Ledger) EnsureDefaultCategories(ctx context.Context, tenantID TenantID) (ExpenseCategory, error) {
	existing, err := l.Categories.FindCategoryByName(ctx, tenantID, PayrollCategoryName)
	if err != nil {
		return ExpenseCategory{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	return l.createCategory(ctx, tenantID, PayrollCategoryName, true)
}

// DeactivateCategory hides a tenant's category. Movements that reference it
// keep it.
func (l *Ledger) DeactivateCategory(ctx context.Context, tenantID TenantID, id CategoryID) error {
	cat, err := l.Categories.GetCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("load category %s: %w", id, err)
	}
	if cat == nil || cat.TenantID != tenantID {
		return &NotFoundError{Kind: "category", ID: string(id), Err: ErrCategoryNotFound}
	}
	return l.Categories.DeactivateCategory(ctx, id)
}

func (l *Ledger) createCategory(ctx context.Context, tenantID TenantID, name string, isDefault bool) (ExpenseCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ExpenseCategory{}, fmt.Errorf("category name is required: %w", ErrInvalidInput)
	}
	cat := ExpenseCategory{
		ID:        CategoryID(NewID()),
		TenantID:  tenantID,
		Name:      name,
		IsDefault: isDefault,
		Active:    true,
	}
	if err := l.Categories.SaveCategory(ctx, cat); err != nil {
		return ExpenseCategory{}, err
	}
	return cat, nil
}

// =============================================================================
// AGGREGATION HELPERS
// =============================================================================

// SumSigned adds the signed amounts of all movements.
func SumSigned(movements []ExpenseMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Amount)
	}
	return total
}

// SumOutflows adds the magnitudes of negative movements only.
func SumOutflows(movements []ExpenseMovement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		if m.IsOutflow() {
			total = total.Add(m.Amount.Abs())
		}
	}
	return total
}

// SumByCategory groups signed amounts by category.
func SumByCategory(movements []ExpenseMovement) map[CategoryID]decimal.Decimal {
	sums := make(map[CategoryID]decimal.Decimal)
	for _, m := range movements {
		sums[m.CategoryID] = sums[m.CategoryID].Add(m.Amount)
	}
	return sums
}
