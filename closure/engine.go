/*
Package closure implements month-end closure.

PURPOSE:
  Closing a month for a tenant materializes that month's payroll (hours x
  effective rate) and template expenses as ledger movements dated the last
  day of the month, then marks the month CLOSED. It is the only writer of
  generated movements.

STATE MACHINE (per tenant and month):
  OPEN -> CLOSED (terminal)

  CloseMonth on a CLOSED month is a silent no-op, not an error.

ALGORITHM:
  1. key = "{YYYY-MM}:{tenant}"; marker exists -> no-op
  2. Preconditions, checked before anything is materialized:
     - tenant exists                      (not found)
     - active "Payroll" category exists   (configuration error)
     - at least one branch                (configuration error)
  3. Materialize payroll and templates
  4. Writer.Write: marker + movements in one transaction

CONCURRENCY:
  The pre-check in step 1 is a fast path only. Two concurrent closures can
  both pass it; the unique closure key in storage lets exactly one commit.
  The loser sees ErrMonthAlreadyClosed and reports AlreadyClosed. Nothing
  it materialized is written.

RETRIES:
  A failed closure leaves no marker and no movements, so calling CloseMonth
  again regenerates everything from scratch. The engine never retries on
  its own.

SEE ALSO:
  - payroll.go, templates.go, rates.go: Materializers
  - writer.go: Atomic write
  - api/scheduler.go: The monthly caller of CloseAll
*/
package closure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/backoffice/generic"
)

// Result describes the outcome of closing one tenant's month.
type Result struct {
	TenantID      generic.TenantID
	Period        generic.YearMonth
	Key           string
	AlreadyClosed bool
	Movements     int
	Err           error // set by CloseAll only
}

// Engine orchestrates a closure.
type Engine struct {
	Directory  generic.Directory
	Categories generic.CategoryStore
	Markers    generic.ClosureStore
	Payroll    *PayrollMaterializer
	Templates  *TemplateMaterializer
	Writer     *Writer
	Logger     *slog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

// NewEngine wires an engine over a single store.
func NewEngine(store generic.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Directory:  store,
		Categories: store,
		Markers:    store,
		Payroll:    NewPayrollMaterializer(store, store, NewRateResolver(store)),
		Templates:  NewTemplateMaterializer(store),
		Writer:     NewWriter(store),
		Logger:     logger,
		Now:        time.Now,
	}
}

// =============================================================================
// CLOSE MONTH
// =============================================================================

// CloseMonth closes ym for a tenant. Idempotent.
func (e *Engine) CloseMonth(ctx context.Context, tenantID generic.TenantID, ym generic.YearMonth) (Result, error) {
	if ym.IsZero() || ym.Month < time.January || ym.Month > time.December {
		return Result{}, fmt.Errorf("close month %q: %w", ym, generic.ErrInvalidPeriod)
	}

	key := generic.ClosureKey(tenantID, ym)
	result := Result{TenantID: tenantID, Period: ym, Key: key}
	log := e.Logger.With("tenant", tenantID, "month", ym.String())

	existing, err := e.Markers.GetClosure(ctx, key)
	if err != nil {
		return result, fmt.Errorf("close month %s for %s: %w", ym, tenantID, err)
	}
	if existing != nil {
		log.Debug("month already closed", "closed_at", existing.ClosedAt)
		result.AlreadyClosed = true
		return result, nil
	}

	payrollCategory, fallbackBranch, err := e.checkPreconditions(ctx, tenantID, ym)
	if err != nil {
		log.Warn("closure refused", "error", err)
		return result, err
	}

	now := e.Now().UTC()
	payroll, err := e.Payroll.Materialize(ctx, tenantID, ym, payrollCategory, fallbackBranch, now)
	if err != nil {
		return result, fmt.Errorf("close month %s for %s: %w", ym, tenantID, err)
	}
	templates, err := e.Templates.Materialize(ctx, tenantID, ym, fallbackBranch, now)
	if err != nil {
		return result, fmt.Errorf("close month %s for %s: %w", ym, tenantID, err)
	}
	movements := append(payroll, templates...)

	closure := generic.NewMonthClosure(tenantID, ym, now, len(movements))
	if err := e.Writer.Write(ctx, closure, movements); err != nil {
		if errors.Is(err, generic.ErrMonthAlreadyClosed) {
			log.Info("month closed concurrently, discarding materialized movements", "discarded", len(movements))
			result.AlreadyClosed = true
			return result, nil
		}
		return result, fmt.Errorf("close month %s for %s: %w", ym, tenantID, err)
	}

	result.Movements = len(movements)
	log.Info("month closed", "movements", len(movements), "payroll", len(payroll), "templates", len(templates))
	return result, nil
}

// checkPreconditions returns the payroll category and the fallback branch
// (first registered).
func (e *Engine) checkPreconditions(ctx context.Context, tenantID generic.TenantID, ym generic.YearMonth) (generic.CategoryID, generic.BranchID, error) {
	tenant, err := e.Directory.GetTenant(ctx, tenantID)
	if err != nil {
		return "", "", fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if tenant == nil {
		return "", "", generic.TenantNotFound(tenantID)
	}

	payroll, err := e.Categories.FindCategoryByName(ctx, tenantID, generic.PayrollCategoryName)
	if err != nil {
		return "", "", fmt.Errorf("load payroll category for %s: %w", tenantID, err)
	}
	if payroll == nil {
		return "", "", &generic.ConfigurationError{TenantID: tenantID, Period: ym, Err: generic.ErrPayrollCategoryMissing}
	}

	branches, err := e.Directory.ListBranches(ctx, tenantID)
	if err != nil {
		return "", "", fmt.Errorf("load branches for %s: %w", tenantID, err)
	}
	if len(branches) == 0 {
		return "", "", &generic.ConfigurationError{TenantID: tenantID, Period: ym, Err: generic.ErrNoBranches}
	}

	return payroll.ID, branches[0].ID, nil
}

// =============================================================================
// BATCH & QUERIES
// =============================================================================

// CloseAll closes ym for every tenant. Tenants are independent: a failure
// is recorded in its Result and the joined error, and the loop continues.
func (e *Engine) CloseAll(ctx context.Context, ym generic.YearMonth) ([]Result, error) {
	tenants, err := e.Directory.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	results := make([]Result, 0, len(tenants))
	var errs []error
	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := e.CloseMonth(ctx, t.ID, ym)
		if err != nil {
			res.Err = err
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Closures lists the closed months of a tenant, oldest first.
func (e *Engine) Closures(ctx context.Context, tenantID generic.TenantID) ([]generic.MonthClosure, error) {
	tenant, err := e.Directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, generic.TenantNotFound(tenantID)
	}
	return e.Markers.ListClosures(ctx, tenantID)
}
