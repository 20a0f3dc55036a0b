/*
handlers_test.go - HTTP tests for the back-office API

Every test runs against a sqlite :memory: store loaded with the demo
scenario (t-coffee with January and February closed, t-bakery with January
closed) and exercises the router end to end.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/seed"
	"github.com/warp/backoffice/store/sqlite"
)

func setupTestServer(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	demo, err := seed.Builtin("demo")
	require.NoError(t, err)
	require.NoError(t, h.Seeds.Load(context.Background(), demo))

	return h, NewRouter(h, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func payrollCategoryID(t *testing.T, router http.Handler, tenant string) string {
	t.Helper()
	rec := do(t, router, http.MethodGet, "/api/tenants/"+tenant+"/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range decode[[]CategoryDTO](t, rec) {
		if c.Name == "Payroll" {
			return c.ID
		}
	}
	t.Fatalf("tenant %s has no payroll category", tenant)
	return ""
}

// =============================================================================
// CLOSURE
// =============================================================================

func TestCloseMonth_ClosesOnceThenNoOps(t *testing.T) {
	_, router := setupTestServer(t)

	// WHEN: March is closed for t-coffee
	rec := do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "2025-03"})

	// THEN: Three payroll movements plus the rent template are written
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[ClosureResultDTO](t, rec)
	assert.False(t, first.AlreadyClosed)
	assert.Equal(t, 4, first.Movements)
	assert.Equal(t, "2025-03:t-coffee", first.Key)

	// WHEN: It is closed again
	rec = do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "2025-03"})

	// THEN: Nothing is written
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ClosureResultDTO](t, rec)
	assert.True(t, second.AlreadyClosed)
	assert.Zero(t, second.Movements)

	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/closures", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	closures := decode[[]ClosureDTO](t, rec)
	require.Len(t, closures, 3)
	assert.Equal(t, "2025-03", closures[2].Month)
	assert.Equal(t, 4, closures[2].Movements)

	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/movements?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// 4 generated + the manual supplies entry
	assert.Len(t, decode[[]MovementDTO](t, rec), 5)
}

func TestCloseMonth_Errors(t *testing.T) {
	_, router := setupTestServer(t)

	t.Run("bad month", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "March"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("month out of range", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "2025-13"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/tenants/nobody/closures", ClosureRequest{Month: "2025-03"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/tenants/nobody/closures", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("payroll category deactivated", func(t *testing.T) {
		id := payrollCategoryID(t, router, "t-bakery")
		rec := do(t, router, http.MethodDelete, "/api/tenants/t-bakery/categories/"+id, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, router, http.MethodPost, "/api/tenants/t-bakery/closures", ClosureRequest{Month: "2025-02"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decode[ErrorResponse](t, rec)
		assert.Contains(t, body.Details, "payroll category not configured")

		// Refused closure leaves no marker
		rec = do(t, router, http.MethodGet, "/api/tenants/t-bakery/closures", nil)
		assert.Len(t, decode[[]ClosureDTO](t, rec), 1)
	})
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReports_ProfitAndLoss(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/reports/profit-and-loss?from=2025-02-01&to=2025-02-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pnl := decode[PnLDTO](t, rec)

	// Revenue 4100, COGS 80 beans at 12.50 + 100 syrup at 6.00
	assert.Equal(t, "4100.00", pnl.Revenue)
	assert.Equal(t, "1600.00", pnl.CostOfGoodsSold)
	assert.Equal(t, "2500.00", pnl.GrossMargin)
	// Payroll 1500 + 1200 + 1000, rent 1200 + deposit 500, electricity 165
	assert.Equal(t, "5565.00", pnl.OperatingExpenses)
	assert.Equal(t, "-3065.00", pnl.OperatingProfit)
	require.Len(t, pnl.ExpensesByCategory, 3)
	assert.Equal(t, "Payroll", pnl.ExpensesByCategory[0].Name)
	assert.Equal(t, "3700.00", pnl.ExpensesByCategory[0].Amount)
}

func TestReports_PayrollCashFlowExpenses(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/reports/payroll?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	payroll := decode[PayrollReportDTO](t, rec)
	// 160*10 + 120*12 + 40*25
	assert.Equal(t, "4040.00", payroll.TotalCost)
	assert.Equal(t, "320", payroll.TotalHours)
	assert.Len(t, payroll.Employees, 3)

	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/reports/cash-flow?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cash := decode[CashFlowDTO](t, rec)
	assert.Equal(t, "5000.00", cash.Inflows)
	// 4040 payroll + 1200 rent + 180 electricity
	assert.Equal(t, "5420.00", cash.Outflows)
	assert.Equal(t, "-420.00", cash.ClosingBalance)
	assert.Len(t, cash.Movements, 7)

	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/reports/expenses?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]ExpenseBreakdownDTO](t, rec)
	require.Len(t, rows, 3)
	assert.Equal(t, "Payroll", rows[0].Name)
}

func TestReports_ExpensesWithoutOutflowsIsEmptyArray(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/tenants/t-bakery/reports/expenses?from=2024-01-01&to=2024-01-31", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestReports_Inventory(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/reports/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inv := decode[InventoryValuationDTO](t, rec)

	// The inactive grinder is excluded
	assert.Equal(t, "807.00", inv.TotalValue)
	require.Len(t, inv.TopProducts, 5)
	assert.Equal(t, "p-beans", inv.TopProducts[0].ProductID)
}

func TestReports_Errors(t *testing.T) {
	_, router := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing from", "/api/tenants/t-coffee/reports/payroll?to=2025-01-31", http.StatusBadRequest},
		{"bad date", "/api/tenants/t-coffee/reports/cash-flow?from=01/01/2025&to=2025-01-31", http.StatusBadRequest},
		{"inverted range", "/api/tenants/t-coffee/reports/profit-and-loss?from=2025-02-01&to=2025-01-01", http.StatusBadRequest},
		{"unknown tenant", "/api/tenants/nobody/reports/expenses?from=2025-01-01&to=2025-01-31", http.StatusNotFound},
		{"unknown tenant inventory", "/api/tenants/nobody/reports/inventory", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestCategories_CreateDuplicateDeactivate(t *testing.T) {
	_, router := setupTestServer(t)
	path := "/api/tenants/t-coffee/categories"

	rec := do(t, router, http.MethodPost, path, CreateCategoryRequest{Name: "Marketing"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CategoryDTO](t, rec)
	assert.True(t, created.Active)
	assert.False(t, created.IsDefault)

	rec = do(t, router, http.MethodPost, path, CreateCategoryRequest{Name: "Marketing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, path, CreateCategoryRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, path+"/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, path, nil)
	for _, c := range decode[[]CategoryDTO](t, rec) {
		assert.NotEqual(t, "Marketing", c.Name)
	}
	rec = do(t, router, http.MethodGet, path+"?include_inactive=true", nil)
	names := []string{}
	for _, c := range decode[[]CategoryDTO](t, rec) {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "Marketing")

	// Categories of another tenant are not visible here
	rec = do(t, router, http.MethodDelete, "/api/tenants/t-bakery/categories/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/tenants/nobody/categories", CreateCategoryRequest{Name: "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMovements_ManualEntry(t *testing.T) {
	_, router := setupTestServer(t)
	path := "/api/tenants/t-coffee/movements"

	var utilities string
	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/categories", nil)
	for _, c := range decode[[]CategoryDTO](t, rec) {
		if c.Name == "Utilities" {
			utilities = c.ID
		}
	}
	require.NotEmpty(t, utilities)

	rec = do(t, router, http.MethodPost, path, CreateMovementRequest{
		CategoryID: utilities, BranchID: "b-main", Amount: "-75.50", Date: "2025-03-21", Description: "Water",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[MovementDTO](t, rec)
	assert.Equal(t, "manual", m.Source)
	assert.Equal(t, "-75.50", m.Amount)

	rec = do(t, router, http.MethodGet, path+"?from=2025-03-01&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]MovementDTO](t, rec), 2)

	t.Run("rejects", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, path, CreateMovementRequest{CategoryID: utilities, Amount: "0", Date: "2025-03-21"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, router, http.MethodPost, path, CreateMovementRequest{CategoryID: utilities, Amount: "ten", Date: "2025-03-21"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, router, http.MethodPost, path, CreateMovementRequest{CategoryID: "missing", Amount: "-1", Date: "2025-03-21"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, router, http.MethodGet, path+"?from=2025-03-31&to=2025-03-01", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTemplates_CreateAndList(t *testing.T) {
	_, router := setupTestServer(t)
	path := "/api/tenants/t-coffee/templates"

	var supplies string
	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/categories", nil)
	for _, c := range decode[[]CategoryDTO](t, rec) {
		if c.Name == "Supplies" {
			supplies = c.ID
		}
	}
	require.NotEmpty(t, supplies)

	rec = do(t, router, http.MethodPost, path, CreateTemplateRequest{
		CategoryID: supplies, Amount: "-60", Recurring: true, EffectiveFrom: "2025-03-01", Description: "Cleaning",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tpl := decode[TemplateDTO](t, rec)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, "-60.00", tpl.Amount)

	rec = do(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TemplateDTO](t, rec), 3)

	// The new template lands in the next closure
	rec = do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[ClosureResultDTO](t, rec).Movements)

	rec = do(t, router, http.MethodPost, path, CreateTemplateRequest{CategoryID: supplies, Amount: "0", EffectiveFrom: "2025-03-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYROLL INPUTS
// =============================================================================

func TestRatesAndHours_FeedClosure(t *testing.T) {
	_, router := setupTestServer(t)

	// GIVEN: Bob gets a raise and more hours in March
	rec := do(t, router, http.MethodPost, "/api/employees/e-bob/rates", CreateRateRequest{HourlyRate: "13", EffectiveFrom: "2025-03-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "13.00", decode[RateDTO](t, rec).HourlyRate)

	rec = do(t, router, http.MethodPut, "/api/employees/e-bob/hours/2025-03", HoursRequest{Hours: "120"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: March is closed
	rec = do(t, router, http.MethodPost, "/api/tenants/t-coffee/closures", ClosureRequest{Month: "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Bob's payroll uses the new rate and hours
	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/movements?from=2025-03-31&to=2025-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bob *MovementDTO
	for _, m := range decode[[]MovementDTO](t, rec) {
		if m.EmployeeID == "e-bob" {
			bob = &m
		}
	}
	require.NotNil(t, bob)
	assert.Equal(t, "-1560.00", bob.Amount)
	assert.Equal(t, "b-north", bob.BranchID)
	assert.Equal(t, "closure", bob.Source)
}

func TestRatesAndHours_Errors(t *testing.T) {
	_, router := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"rate unknown employee", http.MethodPost, "/api/employees/ghost/rates", CreateRateRequest{HourlyRate: "10", EffectiveFrom: "2025-01-01"}, http.StatusNotFound},
		{"negative rate", http.MethodPost, "/api/employees/e-bob/rates", CreateRateRequest{HourlyRate: "-1", EffectiveFrom: "2025-01-01"}, http.StatusBadRequest},
		{"rate bad date", http.MethodPost, "/api/employees/e-bob/rates", CreateRateRequest{HourlyRate: "10", EffectiveFrom: "soon"}, http.StatusBadRequest},
		{"hours unknown employee", http.MethodPut, "/api/employees/ghost/hours/2025-03", HoursRequest{Hours: "10"}, http.StatusNotFound},
		{"negative hours", http.MethodPut, "/api/employees/e-bob/hours/2025-03", HoursRequest{Hours: "-10"}, http.StatusBadRequest},
		{"bad month", http.MethodPut, "/api/employees/e-bob/hours/March", HoursRequest{Hours: "10"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// SCENARIOS & SCHEDULER
// =============================================================================

func TestScenarios_ListAndLoad(t *testing.T) {
	_, router := setupTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), 2)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "empty-tenant"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "empty-tenant", decode[map[string]string](t, rec)["scenario_id"])

	// The reset removed the demo tenants
	rec = do(t, router, http.MethodGet, "/api/tenants/t-coffee/closures", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/tenants/t-empty/closures", ClosureRequest{Month: "2025-01"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[ClosureResultDTO](t, rec).Movements)
}

func TestScheduler_ClosesPreviousMonthFromConfiguredDay(t *testing.T) {
	h, router := setupTestServer(t)

	now := time.Date(2025, time.April, 3, 8, 0, 0, 0, time.UTC)
	scheduler := NewClosureScheduler(h.Closure, h.Logger)
	scheduler.DayOfMonth = 5
	scheduler.Now = func() time.Time { return now }
	h.Scheduler = scheduler

	// WHEN: It runs before the configured day
	// THEN: Nothing is closed
	assert.False(t, scheduler.RunNow(context.Background()))
	rec := do(t, router, http.MethodGet, "/api/tenants/t-coffee/closures", nil)
	assert.Len(t, decode[[]ClosureDTO](t, rec), 2)

	// WHEN: It runs on the configured day
	now = time.Date(2025, time.April, 5, 8, 0, 0, 0, time.UTC)
	assert.True(t, scheduler.RunNow(context.Background()))

	// THEN: March is closed for every tenant
	rec = do(t, router, http.MethodGet, "/api/scheduler", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[SchedulerStatusDTO](t, rec)
	assert.Equal(t, "2025-03", status.LastMonth)
	assert.Empty(t, status.LastError)
	require.Len(t, status.LastRun, 2)
	for _, r := range status.LastRun {
		assert.False(t, r.AlreadyClosed, r.TenantID)
	}

	// WHEN: The next tick comes
	scheduler.RunNow(context.Background())

	// THEN: Every tenant is already closed
	for _, r := range scheduler.Status().LastRun {
		assert.True(t, r.AlreadyClosed, r.TenantID)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	h, _ := setupTestServer(t)
	scheduler := NewClosureScheduler(h.Closure, h.Logger)
	scheduler.Interval = time.Hour
	scheduler.Now = func() time.Time { return time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC) }

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return scheduler.Status().LastMonth == "2025-03" }, 2*time.Second, 10*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	disabled := NewClosureScheduler(h.Closure, h.Logger)
	disabled.Enabled = false
	disabled.Start(context.Background())
	disabled.Stop()
	assert.Empty(t, disabled.Status().NextRunAt)
}

func TestReportDTO_ConvertsEveryReport(t *testing.T) {
	h, _ := setupTestServer(t)
	ctx := context.Background()
	from, to := mustDate(t, "2025-01-01"), mustDate(t, "2025-01-31")

	pnl, err := h.Reports.ProfitAndLoss(ctx, "t-coffee", from, to)
	require.NoError(t, err)
	assert.IsType(t, PnLDTO{}, ReportDTO(pnl))

	rows, err := h.Reports.ExpenseAnalysis(ctx, "t-coffee", from, to)
	require.NoError(t, err)
	assert.IsType(t, []ExpenseBreakdownDTO{}, ReportDTO(rows))

	inv, err := h.Reports.InventoryValuation(ctx, "t-coffee")
	require.NoError(t, err)
	assert.IsType(t, InventoryValuationDTO{}, ReportDTO(inv))

	assert.Equal(t, "x", ReportDTO("x"))
}

func mustDate(t *testing.T, s string) generic.Date {
	t.Helper()
	d, err := generic.ParseDate(s)
	require.NoError(t, err)
	return d
}
