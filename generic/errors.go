/*
errors.go - Centralized error types for the back-office engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The closure and reporting packages return these (wrapped with context);
  the HTTP layer maps them to status codes.

ERROR CATEGORIES:
  1. Configuration errors - Tenant setup prevents closure (fatal, no partial apply)
  2. Not-found errors - Caller referenced something that does not exist
  3. Client errors - Invalid input (bad period, duplicate name, bad amount)
  4. Store errors - Uniqueness violations surfaced by storage

USAGE:
  if errors.Is(err, generic.ErrPayrollCategoryMissing) {
      // tenant must create the Payroll category before closing
  }

SEE ALSO:
  - closure/engine.go: Returns ConfigurationError
  - reporting/engine.go: Returns NotFoundError for unknown tenants
  - api/handlers.go: Maps errors to HTTP status
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTenantNotFound distinguishes "no such tenant" from "no data".
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrCategoryNotFound is returned when a referenced category doesn't exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryInactive is returned when posting to a deactivated category.
	ErrCategoryInactive = errors.New("category is inactive")

	// ErrPayrollCategoryMissing aborts closure: payroll has nowhere to post.
	ErrPayrollCategoryMissing = errors.New("payroll category not configured")

	// ErrNoBranches aborts closure: generated movements have nowhere to attach.
	ErrNoBranches = errors.New("tenant has no branches")

	// ErrMonthAlreadyClosed is returned by storage when the closure key
	// already exists. The closure engine turns it into a silent no-op.
	ErrMonthAlreadyClosed = errors.New("month already closed")

	// ErrDuplicateCategory is returned when an active category with the same
	// name already exists for the tenant.
	ErrDuplicateCategory = errors.New("duplicate active category name")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidAmount is returned for zero movements and negative rates/hours.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput covers missing names, IDs and other malformed input.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigurationError reports a tenant setup problem found before closure
// materialized anything.
type ConfigurationError struct {
	TenantID TenantID
	Period   YearMonth
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cannot close %s for tenant %s: %v", e.Period, e.TenantID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError names the missing thing.
type NotFoundError struct {
	Kind string // "tenant", "employee", "category"
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// TenantNotFound builds the not-found error for a tenant.
func TenantNotFound(id TenantID) error {
	return &NotFoundError{Kind: "tenant", ID: string(id), Err: ErrTenantNotFound}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError returns true if closure was refused because of tenant setup.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCategoryInactive)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
