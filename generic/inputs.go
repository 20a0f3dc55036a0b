package generic

import (
	"context"
	"fmt"
)

// =============================================================================
// CLOSURE INPUTS - Templates, rates and hours
// =============================================================================

// Inputs validates and records what closure materializes from. Nothing here
// touches the ledger: templates, rates and hours only become movements when
// a month is closed.
type Inputs struct {
	Directory  Directory
	Categories CategoryStore
	Templates  TemplateStore
	Rates      RateStore
	Hours      HoursStore
}

// NewInputs wires Inputs over a single store.
func NewInputs(store Store) *Inputs {
	return &Inputs{Directory: store, Categories: store, Templates: store, Rates: store, Hours: store}
}

// AddTemplate stores a template. Its category must be active and belong to
// the same tenant.
func (in *Inputs) AddTemplate(ctx context.Context, t ExpenseTemplate) (ExpenseTemplate, error) {
	if t.TenantID == "" {
		return ExpenseTemplate{}, fmt.Errorf("template tenant is required: %w", ErrInvalidInput)
	}
	if t.Amount.IsZero() {
		return ExpenseTemplate{}, fmt.Errorf("template amount must be non-zero: %w", ErrInvalidAmount)
	}
	if t.EffectiveFrom.IsZero() {
		return ExpenseTemplate{}, fmt.Errorf("template effective date is required: %w", ErrInvalidInput)
	}
	if _, err := activeCategory(ctx, in.Categories, t.TenantID, t.CategoryID); err != nil {
		return ExpenseTemplate{}, err
	}

	if t.ID == "" {
		t.ID = TemplateID(NewID())
	}
	if err := in.Templates.SaveTemplate(ctx, t); err != nil {
		return ExpenseTemplate{}, fmt.Errorf("save template: %w", err)
	}
	return t, nil
}

// AddRate appends a point to the employee's rate history. Rates are never
// edited; a correction is a newer rate with the same EffectiveFrom.
func (in *Inputs) AddRate(ctx context.Context, r SalaryRate) (SalaryRate, error) {
	if r.HourlyRate.IsNegative() {
		return SalaryRate{}, fmt.Errorf("hourly rate %s is negative: %w", r.HourlyRate, ErrInvalidAmount)
	}
	if r.EffectiveFrom.IsZero() {
		return SalaryRate{}, fmt.Errorf("rate effective date is required: %w", ErrInvalidInput)
	}
	if err := in.requireEmployee(ctx, r.EmployeeID); err != nil {
		return SalaryRate{}, err
	}
	if r.ID == "" {
		r.ID = RateID(NewID())
	}
	saved, err := in.Rates.AddRate(ctx, r)
	if err != nil {
		return SalaryRate{}, fmt.Errorf("add rate: %w", err)
	}
	return saved, nil
}

// RecordHours replaces the employee's hours for the month.
func (in *Inputs) RecordHours(ctx context.Context, h HoursWorked) error {
	if h.Hours.IsNegative() {
		return fmt.Errorf("hours %s are negative: %w", h.Hours, ErrInvalidAmount)
	}
	if h.Period.IsZero() {
		return fmt.Errorf("hours month is required: %w", ErrInvalidInput)
	}
	if err := in.requireEmployee(ctx, h.EmployeeID); err != nil {
		return err
	}
	if err := in.Hours.UpsertHours(ctx, h); err != nil {
		return fmt.Errorf("record hours: %w", err)
	}
	return nil
}

func (in *Inputs) requireEmployee(ctx context.Context, id EmployeeID) error {
	emp, err := in.Directory.GetEmployee(ctx, id)
	if err != nil {
		return fmt.Errorf("load employee %s: %w", id, err)
	}
	if emp == nil {
		return &NotFoundError{Kind: "employee", ID: string(id), Err: ErrEmployeeNotFound}
	}
	return nil
}
