/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry no
  json tags; everything the HTTP surface exposes is converted here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ENCODING:
  - Money and hours are decimal strings ("-1200.00" stays exact)
  - Dates are YYYY-MM-DD, months YYYY-MM, instants RFC3339

TYPES:
  Closure:    ClosureRequest, ClosureResultDTO, ClosureDTO
  Reports:    PnLDTO, PayrollReportDTO, CashFlowDTO, ExpenseBreakdownDTO,
              InventoryValuationDTO
  Ledger:     CategoryDTO, TemplateDTO, MovementDTO and their requests
  Payroll:    RateDTO, CreateRateRequest, HoursRequest, HoursDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest
  Scheduler:  SchedulerStatusDTO

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/reporting"
)

// =============================================================================
// CLOSURE
// =============================================================================

type ClosureRequest struct {
	Month string `json:"month"` // YYYY-MM
}

// ClosureResultDTO is the outcome of one close request.
type ClosureResultDTO struct {
	TenantID      string `json:"tenant_id"`
	Month         string `json:"month"`
	Key           string `json:"key"`
	AlreadyClosed bool   `json:"already_closed"`
	Movements     int    `json:"movements"`
	Error         string `json:"error,omitempty"`
}

type ClosureDTO struct {
	Key       string `json:"key"`
	TenantID  string `json:"tenant_id"`
	Month     string `json:"month"`
	ClosedAt  string `json:"closed_at"`
	Movements int    `json:"movements"`
}

func toClosureResultDTO(r closure.Result) ClosureResultDTO {
	dto := ClosureResultDTO{
		TenantID:      string(r.TenantID),
		Month:         r.Period.String(),
		Key:           r.Key,
		AlreadyClosed: r.AlreadyClosed,
		Movements:     r.Movements,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	return dto
}

func toClosureDTO(c generic.MonthClosure) ClosureDTO {
	return ClosureDTO{
		Key:       c.Key,
		TenantID:  string(c.TenantID),
		Month:     c.Period.String(),
		ClosedAt:  c.ClosedAt.Format(time.RFC3339),
		Movements: c.Movements,
	}
}

// =============================================================================
// REPORTS
// =============================================================================

type CategoryAmountDTO struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
}

type PnLDTO struct {
	TenantID           string              `json:"tenant_id"`
	From               string              `json:"from"`
	To                 string              `json:"to"`
	Revenue            string              `json:"revenue"`
	CostOfGoodsSold    string              `json:"cost_of_goods_sold"`
	GrossMargin        string              `json:"gross_margin"`
	OperatingExpenses  string              `json:"operating_expenses"`
	ExpensesByCategory []CategoryAmountDTO `json:"expenses_by_category"`
	OperatingProfit    string              `json:"operating_profit"`
}

func toPnLDTO(r reporting.PnLReport) PnLDTO {
	lines := make([]CategoryAmountDTO, len(r.ExpensesByCategory))
	for i, c := range r.ExpensesByCategory {
		lines[i] = CategoryAmountDTO{CategoryID: string(c.CategoryID), Name: c.Name, Amount: money(c.Amount)}
	}
	return PnLDTO{
		TenantID:           string(r.TenantID),
		From:               r.Period.Start.String(),
		To:                 r.Period.End.String(),
		Revenue:            money(r.Revenue),
		CostOfGoodsSold:    money(r.CostOfGoodsSold),
		GrossMargin:        money(r.GrossMargin),
		OperatingExpenses:  money(r.OperatingExpenses),
		ExpensesByCategory: lines,
		OperatingProfit:    money(r.OperatingProfit),
	}
}

type EmployeePayrollDTO struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Hours      string `json:"hours"`
	Cost       string `json:"cost"`
}

type PayrollReportDTO struct {
	TenantID            string               `json:"tenant_id"`
	From                string               `json:"from"`
	To                  string               `json:"to"`
	TotalCost           string               `json:"total_cost"`
	TotalHours          string               `json:"total_hours"`
	AverageCostPerHour  string               `json:"average_cost_per_hour"`
	PayrollToRevenuePct string               `json:"payroll_to_revenue_pct"`
	Employees           []EmployeePayrollDTO `json:"employees"`
}

func toPayrollReportDTO(r reporting.PayrollReport) PayrollReportDTO {
	employees := make([]EmployeePayrollDTO, len(r.Employees))
	for i, e := range r.Employees {
		employees[i] = EmployeePayrollDTO{
			EmployeeID: string(e.EmployeeID),
			Name:       e.Name,
			Hours:      e.Hours.String(),
			Cost:       money(e.Cost),
		}
	}
	return PayrollReportDTO{
		TenantID:            string(r.TenantID),
		From:                r.Period.Start.String(),
		To:                  r.Period.End.String(),
		TotalCost:           money(r.TotalCost),
		TotalHours:          r.TotalHours.String(),
		AverageCostPerHour:  money(r.AverageCostPerHour),
		PayrollToRevenuePct: r.PayrollToRevenuePct.StringFixed(2),
		Employees:           employees,
	}
}

type CashFlowLineDTO struct {
	Date        string `json:"date"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type CashFlowDTO struct {
	TenantID       string            `json:"tenant_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	OpeningBalance string            `json:"opening_balance"`
	Inflows        string            `json:"inflows"`
	Outflows       string            `json:"outflows"`
	ClosingBalance string            `json:"closing_balance"`
	Movements      []CashFlowLineDTO `json:"movements"`
}

func toCashFlowDTO(r reporting.CashFlowReport) CashFlowDTO {
	lines := make([]CashFlowLineDTO, len(r.Movements))
	for i, l := range r.Movements {
		lines[i] = CashFlowLineDTO{
			Date:        l.Date.String(),
			Kind:        string(l.Kind),
			Category:    l.Category,
			Description: l.Description,
			Amount:      money(l.Amount),
		}
	}
	return CashFlowDTO{
		TenantID:       string(r.TenantID),
		From:           r.Period.Start.String(),
		To:             r.Period.End.String(),
		OpeningBalance: money(r.OpeningBalance),
		Inflows:        money(r.Inflows),
		Outflows:       money(r.Outflows),
		ClosingBalance: money(r.ClosingBalance),
		Movements:      lines,
	}
}

type ExpenseBreakdownDTO struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Percentage string `json:"percentage"`
}

func toExpenseBreakdownDTOs(rows []reporting.CategoryBreakdown) []ExpenseBreakdownDTO {
	dtos := make([]ExpenseBreakdownDTO, len(rows))
	for i, r := range rows {
		dtos[i] = ExpenseBreakdownDTO{
			CategoryID: string(r.CategoryID),
			Name:       r.Name,
			Amount:     money(r.Amount),
			Percentage: r.Percentage.StringFixed(2),
		}
	}
	return dtos
}

type ProductValueDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	UnitCost  string `json:"unit_cost"`
	Value     string `json:"value"`
}

type InventoryValuationDTO struct {
	TenantID     string            `json:"tenant_id"`
	TotalValue   string            `json:"total_value"`
	ProductCount int               `json:"product_count"`
	TopProducts  []ProductValueDTO `json:"top_products"`
}

func toInventoryValuationDTO(r reporting.InventoryValuationReport) InventoryValuationDTO {
	top := make([]ProductValueDTO, len(r.TopProducts))
	for i, p := range r.TopProducts {
		top[i] = ProductValueDTO{
			ProductID: string(p.ProductID),
			Name:      p.Name,
			Quantity:  p.Quantity.String(),
			UnitCost:  money(p.UnitCost),
			Value:     money(p.Value),
		}
	}
	return InventoryValuationDTO{
		TenantID:     string(r.TenantID),
		TotalValue:   money(r.TotalValue),
		ProductCount: r.ProductCount,
		TopProducts:  top,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type CategoryDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Active    bool   `json:"active"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

func toCategoryDTO(c generic.ExpenseCategory) CategoryDTO {
	return CategoryDTO{ID: string(c.ID), Name: c.Name, IsDefault: c.IsDefault, Active: c.Active}
}

type TemplateDTO struct {
	ID            string `json:"id"`
	CategoryID    string `json:"category_id"`
	Amount        string `json:"amount"`
	Recurring     bool   `json:"recurring"`
	EffectiveFrom string `json:"effective_from"`
	Description   string `json:"description"`
}

// CreateTemplateRequest is the body of POST /templates. Amount is signed.
type CreateTemplateRequest struct {
	CategoryID    string `json:"category_id"`
	Amount        string `json:"amount"`
	Recurring     bool   `json:"recurring"`
	EffectiveFrom string `json:"effective_from"`
	Description   string `json:"description"`
}

func toTemplateDTO(t generic.ExpenseTemplate) TemplateDTO {
	return TemplateDTO{
		ID:            string(t.ID),
		CategoryID:    string(t.CategoryID),
		Amount:        money(t.Amount),
		Recurring:     t.Recurring,
		EffectiveFrom: t.EffectiveFrom.String(),
		Description:   t.Description,
	}
}

type MovementDTO struct {
	ID          string `json:"id"`
	CategoryID  string `json:"category_id"`
	EmployeeID  string `json:"employee_id,omitempty"`
	BranchID    string `json:"branch_id,omitempty"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Source      string `json:"source"`
	CreatedAt   string `json:"created_at"`
}

type CreateMovementRequest struct {
	CategoryID  string `json:"category_id"`
	BranchID    string `json:"branch_id"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func toMovementDTO(m generic.ExpenseMovement) MovementDTO {
	return MovementDTO{
		ID:          string(m.ID),
		CategoryID:  string(m.CategoryID),
		EmployeeID:  string(m.EmployeeID),
		BranchID:    string(m.BranchID),
		Amount:      money(m.Amount),
		Date:        m.Date.String(),
		Description: m.Description,
		Source:      string(m.Source),
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PAYROLL INPUTS
// =============================================================================

type CreateRateRequest struct {
	HourlyRate    string `json:"hourly_rate"`
	EffectiveFrom string `json:"effective_from"`
}

type RateDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	HourlyRate    string `json:"hourly_rate"`
	EffectiveFrom string `json:"effective_from"`
}

func toRateDTO(r generic.SalaryRate) RateDTO {
	return RateDTO{
		ID:            string(r.ID),
		EmployeeID:    string(r.EmployeeID),
		HourlyRate:    money(r.HourlyRate),
		EffectiveFrom: r.EffectiveFrom.String(),
	}
}

type HoursRequest struct {
	Hours string `json:"hours"`
}

type HoursDTO struct {
	EmployeeID string `json:"employee_id"`
	Month      string `json:"month"`
	Hours      string `json:"hours"`
}

// =============================================================================
// SCENARIOS & SCHEDULER
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type SchedulerStatusDTO struct {
	Enabled    bool               `json:"enabled"`
	Interval   string             `json:"interval"`
	DayOfMonth int                `json:"day_of_month"`
	LastRunAt  string             `json:"last_run_at,omitempty"`
	LastMonth  string             `json:"last_month,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	LastRun    []ClosureResultDTO `json:"last_run"`
	NextRunAt  string             `json:"next_run_at,omitempty"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// ReportDTO converts any reporting result to its wire form. Unknown values
// are returned unchanged.
func ReportDTO(report any) any {
	switch r := report.(type) {
	case reporting.PnLReport:
		return toPnLDTO(r)
	case reporting.PayrollReport:
		return toPayrollReportDTO(r)
	case reporting.CashFlowReport:
		return toCashFlowDTO(r)
	case []reporting.CategoryBreakdown:
		return toExpenseBreakdownDTOs(r)
	case reporting.InventoryValuationReport:
		return toInventoryValuationDTO(r)
	default:
		return report
	}
}
