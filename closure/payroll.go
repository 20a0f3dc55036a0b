package closure

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// PAYROLL MATERIALIZER - Hours x rate, one movement per employee
// =============================================================================

// PayrollMaterializer computes the month's payroll outflows.
//
// Employees without an hours row for the month are skipped entirely: they
// are paid through templates. Employees with hours but no rate produce a
// zero movement so the hours stay visible in the ledger.
type PayrollMaterializer struct {
	Directory generic.Directory
	Hours     generic.HoursStore
	Rates     *RateResolver
}

func NewPayrollMaterializer(directory generic.Directory, hours generic.HoursStore, rates *RateResolver) *PayrollMaterializer {
	return &PayrollMaterializer{Directory: directory, Hours: hours, Rates: rates}
}

// PayrollDescription is the label of generated payroll movements.
func PayrollDescription(ym generic.YearMonth) string {
	return "Payroll " + ym.String()
}

// Materialize returns amount = -(hours * rate) per employee with hours in
// ym. The rate is resolved at the last day of the month. Employees without
// a branch (owners, administrators) are attached to fallbackBranch.
func (p *PayrollMaterializer) Materialize(ctx context.Context, tenantID generic.TenantID, ym generic.YearMonth, payrollCategory generic.CategoryID, fallbackBranch generic.BranchID, now time.Time) ([]generic.ExpenseMovement, error) {
	employees, err := p.Directory.ListEmployees(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list employees for %s: %w", tenantID, err)
	}

	monthEnd := ym.LastDay()
	var movements []generic.ExpenseMovement
	for _, emp := range employees {
		hours, err := p.Hours.GetHours(ctx, emp.ID, ym)
		if err != nil {
			return nil, fmt.Errorf("hours for %s in %s: %w", emp.ID, ym, err)
		}
		if hours == nil {
			continue
		}

		rate, err := p.Rates.RateOrZero(ctx, emp.ID, monthEnd)
		if err != nil {
			return nil, err
		}

		branch := emp.BranchID
		if !emp.HasBranch() {
			branch = fallbackBranch
		}

		movements = append(movements, generic.ExpenseMovement{
			ID:          generic.MovementID(generic.NewID()),
			TenantID:    tenantID,
			CategoryID:  payrollCategory,
			EmployeeID:  emp.ID,
			BranchID:    branch,
			Amount:      hours.Hours.Mul(rate).Neg(),
			Date:        monthEnd,
			Description: PayrollDescription(ym),
			Source:      generic.SourceClosure,
			CreatedAt:   now,
		})
	}
	return movements, nil
}
