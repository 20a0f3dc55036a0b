/*
handlers.go - HTTP API handlers for the back-office engine

PURPOSE:
  Exposes month closure, reports and the bookkeeping inputs they read via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Closure:
    POST   /api/tenants/{tenantID}/closures          Close a month (idempotent)
    GET    /api/tenants/{tenantID}/closures          List closed months

  Reports (from/to are inclusive YYYY-MM-DD):
    GET    /api/tenants/{tenantID}/reports/profit-and-loss
    GET    /api/tenants/{tenantID}/reports/payroll
    GET    /api/tenants/{tenantID}/reports/cash-flow
    GET    /api/tenants/{tenantID}/reports/expenses
    GET    /api/tenants/{tenantID}/reports/inventory

  Ledger:
    GET    /api/tenants/{tenantID}/categories        ?include_inactive=true
    POST   /api/tenants/{tenantID}/categories
    DELETE /api/tenants/{tenantID}/categories/{id}   Deactivate
    GET    /api/tenants/{tenantID}/templates
    POST   /api/tenants/{tenantID}/templates
    GET    /api/tenants/{tenantID}/movements         ?from=&to=
    POST   /api/tenants/{tenantID}/movements         Manual entry

  Payroll inputs:
    POST   /api/employees/{employeeID}/rates
    PUT    /api/employees/{employeeID}/hours/{month}

  Scenarios & scheduler:
    GET    /api/scenarios
    GET    /api/scenarios/current
    POST   /api/scenarios/load
    GET    /api/scheduler
    POST   /api/scheduler/run

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input shape (dates, decimals)
  3. Call domain logic (closure, reporting, ledger, inputs)
  4. Serialize response
  5. Map errors to status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (bad month, inverted range, zero amount)
  - 404: Unknown tenant, employee or category
  - 409: Duplicate active category name
  - 422: Tenant configuration prevents closure
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Tenant scoping is by path only.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background closure runs
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/reporting"
	"github.com/warp/backoffice/seed"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     generic.Store
	Ledger    *generic.Ledger
	Inputs    *generic.Inputs
	Closure   *closure.Engine
	Reports   *reporting.Engine
	Seeds     *seed.Loader
	Scheduler *ClosureScheduler // optional
	Logger    *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires every engine over the given store.
func NewHandler(store generic.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	closer := closure.NewEngine(store, logger)
	loader := seed.NewLoader(store, logger)
	loader.Closer = closer
	return &Handler{
		Store:   store,
		Ledger:  generic.NewLedger(store, store),
		Inputs:  generic.NewInputs(store),
		Closure: closer,
		Reports: reporting.NewEngine(store, logger),
		Seeds:   loader,
		Logger:  logger,
	}
}

// =============================================================================
// CLOSURE HANDLERS
// =============================================================================

// CloseMonth closes the requested month. Closing an already closed month
// returns 200 with already_closed set.
func (h *Handler) CloseMonth(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)

	var req ClosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	ym, err := generic.ParseYearMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
		return
	}

	result, err := h.Closure.CloseMonth(r.Context(), tenantID, ym)
	if err != nil {
		h.writeDomainError(w, "Failed to close month", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureResultDTO(result))
}

// ListClosures returns the tenant's closed months, oldest first.
func (h *Handler) ListClosures(w http.ResponseWriter, r *http.Request) {
	closures, err := h.Closure.Closures(r.Context(), tenantParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list closures", err)
		return
	}
	dtos := make([]ClosureDTO, len(closures))
	for i, c := range closures {
		dtos[i] = toClosureDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	report, err := h.Reports.ProfitAndLoss(r.Context(), tenantParam(r), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to compute profit and loss", err)
		return
	}
	writeJSON(w, http.StatusOK, toPnLDTO(report))
}

func (h *Handler) PayrollMetrics(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	report, err := h.Reports.PayrollMetrics(r.Context(), tenantParam(r), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to compute payroll metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollReportDTO(report))
}

func (h *Handler) CashFlow(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	report, err := h.Reports.CashFlow(r.Context(), tenantParam(r), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to compute cash flow", err)
		return
	}
	writeJSON(w, http.StatusOK, toCashFlowDTO(report))
}

// ExpenseAnalysis returns an empty array, never null, when nothing went out.
func (h *Handler) ExpenseAnalysis(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	rows, err := h.Reports.ExpenseAnalysis(r.Context(), tenantParam(r), from, to)
	if err != nil {
		h.writeDomainError(w, "Failed to analyse expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseBreakdownDTOs(rows))
}

func (h *Handler) InventoryValuation(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reports.InventoryValuation(r.Context(), tenantParam(r))
	if err != nil {
		h.writeDomainError(w, "Failed to value inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryValuationDTO(report))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	if !h.requireTenant(w, r, tenantID) {
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	cats, err := h.Store.ListCategories(r.Context(), tenantID, includeInactive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	if !h.requireTenant(w, r, tenantID) {
		return
	}

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	cat, err := h.Ledger.CreateCategory(r.Context(), tenantID, req.Name)
	if err != nil {
		h.writeDomainError(w, "Failed to create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(cat))
}

// DeactivateCategory soft-deletes a category. Historical movements keep it.
func (h *Handler) DeactivateCategory(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	id := generic.CategoryID(chi.URLParam(r, "id"))

	if err := h.Ledger.DeactivateCategory(r.Context(), tenantID, id); err != nil {
		h.writeDomainError(w, "Failed to deactivate category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	if !h.requireTenant(w, r, tenantID) {
		return
	}
	templates, err := h.Store.ListTemplates(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}
	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	if !h.requireTenant(w, r, tenantID) {
		return
	}

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	from, err := generic.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from, expected YYYY-MM-DD", err)
		return
	}

	tpl, err := h.Inputs.AddTemplate(r.Context(), generic.ExpenseTemplate{
		TenantID:      tenantID,
		CategoryID:    generic.CategoryID(req.CategoryID),
		Amount:        amount,
		Recurring:     req.Recurring,
		EffectiveFrom: from,
		Description:   req.Description,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create template", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateDTO(tpl))
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	p, err := generic.NewPeriod(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	if !h.requireTenant(w, r, tenantID) {
		return
	}

	movements, err := h.Ledger.MovementsIn(r.Context(), tenantID, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMovement records a manual ledger entry.
func (h *Handler) CreateMovement(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantParam(r)
	if !h.requireTenant(w, r, tenantID) {
		return
	}

	var req CreateMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}

	m, err := h.Ledger.Append(r.Context(), generic.ExpenseMovement{
		TenantID:    tenantID,
		CategoryID:  generic.CategoryID(req.CategoryID),
		BranchID:    generic.BranchID(req.BranchID),
		Amount:      amount,
		Date:        date,
		Description: req.Description,
		Source:      generic.SourceManual,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record movement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// =============================================================================
// PAYROLL INPUT HANDLERS
// =============================================================================

func (h *Handler) CreateRate(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "employeeID"))

	var req CreateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	rate, err := decimal.NewFromString(req.HourlyRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hourly_rate", err)
		return
	}
	from, err := generic.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from, expected YYYY-MM-DD", err)
		return
	}

	saved, err := h.Inputs.AddRate(r.Context(), generic.SalaryRate{
		EmployeeID:    employeeID,
		HourlyRate:    rate,
		EffectiveFrom: from,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to add rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRateDTO(saved))
}

// RecordHours replaces the employee's hours for the month in the path.
func (h *Handler) RecordHours(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "employeeID"))
	ym, err := generic.ParseYearMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month, expected YYYY-MM", err)
		return
	}

	var req HoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	hours, err := decimal.NewFromString(req.Hours)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hours", err)
		return
	}

	hw := generic.HoursWorked{EmployeeID: employeeID, Period: ym, Hours: hours}
	if err := h.Inputs.RecordHours(r.Context(), hw); err != nil {
		h.writeDomainError(w, "Failed to record hours", err)
		return
	}
	writeJSON(w, http.StatusOK, HoursDTO{EmployeeID: string(employeeID), Month: ym.String(), Hours: hours.String()})
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the built-in demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	infos, err := seed.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scenarios", err)
		return
	}
	dtos := make([]ScenarioDTO, len(infos))
	for i, info := range infos {
		dtos[i] = ScenarioDTO{ID: info.ID, Name: info.Name, Description: info.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last scenario loaded by this process.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and loads a demo scenario. Development only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	scenario, err := seed.Builtin(req.ScenarioID)
	if err != nil {
		if errors.Is(err, seed.ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read scenario", err)
		return
	}
	if err := h.Seeds.Load(r.Context(), scenario); err != nil {
		h.writeDomainError(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = scenario.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": scenario.ID,
	})
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusDTO{LastRun: []ClosureResultDTO{}})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// RunScheduler triggers a scheduler pass immediately.
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusConflict, "Scheduler not configured", nil)
		return
	}
	h.Scheduler.RunNow(r.Context())
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// =============================================================================
// HELPERS
// =============================================================================

func tenantParam(r *http.Request) generic.TenantID {
	return generic.TenantID(chi.URLParam(r, "tenantID"))
}

// requireTenant writes a 404 and returns false when the tenant is unknown.
func (h *Handler) requireTenant(w http.ResponseWriter, r *http.Request, tenantID generic.TenantID) bool {
	tenant, err := h.Store.GetTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tenant", err)
		return false
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", generic.TenantNotFound(tenantID))
		return false
	}
	return true
}

// parseRange reads the from and to query parameters. Both are required.
func parseRange(w http.ResponseWriter, r *http.Request) (generic.Date, generic.Date, bool) {
	q := r.URL.Query()
	from, err := generic.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from, expected YYYY-MM-DD", err)
		return generic.Date{}, generic.Date{}, false
	}
	to, err := generic.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to, expected YYYY-MM-DD", err)
		return generic.Date{}, generic.Date{}, false
	}
	return from, to, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrDuplicateCategory):
		return http.StatusConflict
	case generic.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(strings.ToLower(message), "error", err)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
