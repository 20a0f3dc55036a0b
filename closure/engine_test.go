package closure_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/generic/store"
	"github.com/warp/backoffice/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const tenant generic.TenantID = "t1"

type fixture struct {
	ctx     context.Context
	store   generic.Store
	engine  *closure.Engine
	payroll generic.ExpenseCategory
	rent    generic.ExpenseCategory
}

// newFixture seeds a tenant with two branches, the Payroll and Rent
// categories, a branch employee and an owner without a branch.
func newFixture(t *testing.T, s generic.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	ledger := generic.NewLedger(s, s)

	require.NoError(t, s.SaveTenant(ctx, generic.Tenant{ID: tenant, Name: "Corner Shop"}))
	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "main", TenantID: tenant, Name: "Main"}))
	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "north", TenantID: tenant, Name: "North"}))
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: "alice", TenantID: tenant, Name: "Alice", BranchID: "north"}))
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: "owner", TenantID: tenant, Name: "Owner", IsOwner: true}))

	payroll, err := ledger.EnsureDefaultCategories(ctx, tenant)
	require.NoError(t, err)
	rent, err := ledger.CreateCategory(ctx, tenant, "Rent")
	require.NoError(t, err)

	engine := closure.NewEngine(s, nil)
	engine.Now = func() time.Time { return time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC) }

	return &fixture{ctx: ctx, store: s, engine: engine, payroll: payroll, rent: rent}
}

func newMemoryFixture(t *testing.T) *fixture {
	return newFixture(t, store.NewMemory())
}

func (f *fixture) rate(t *testing.T, emp generic.EmployeeID, rate int64, from string) {
	t.Helper()
	_, err := f.store.AddRate(f.ctx, generic.SalaryRate{
		EmployeeID: emp, HourlyRate: decimal.NewFromInt(rate), EffectiveFrom: generic.MustParseDate(from),
	})
	require.NoError(t, err)
}

func (f *fixture) hours(t *testing.T, emp generic.EmployeeID, month string, hours int64) {
	t.Helper()
	require.NoError(t, f.store.UpsertHours(f.ctx, generic.HoursWorked{
		EmployeeID: emp, Period: generic.MustParseYearMonth(month), Hours: decimal.NewFromInt(hours),
	}))
}

func (f *fixture) movements(t *testing.T, month string) []generic.ExpenseMovement {
	t.Helper()
	ym := generic.MustParseYearMonth(month)
	ms, err := f.store.ListMovements(f.ctx, tenant, ym.FirstDay(), ym.LastDay())
	require.NoError(t, err)
	return ms
}

func (f *fixture) close(t *testing.T, month string) closure.Result {
	t.Helper()
	res, err := f.engine.CloseMonth(f.ctx, tenant, generic.MustParseYearMonth(month))
	require.NoError(t, err)
	return res
}

func amount(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func openSQLite(t *testing.T) generic.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestCloseMonth_PayrollUsesRateInEffectAtMonthEnd(t *testing.T) {
	f := newMemoryFixture(t)

	// GIVEN: rate 10.00 from January, 15.00 from March, 40 hours in Feb and Mar
	f.rate(t, "alice", 10, "2025-01-01")
	f.rate(t, "alice", 15, "2025-03-01")
	f.hours(t, "alice", "2025-02", 40)
	f.hours(t, "alice", "2025-03", 40)

	// WHEN: February and March are closed
	f.close(t, "2025-02")
	f.close(t, "2025-03")

	// THEN: February uses 10.00, March uses 15.00
	feb := f.movements(t, "2025-02")
	require.Len(t, feb, 1)
	assert.True(t, feb[0].Amount.Equal(amount("-400")), "got %s", feb[0].Amount)
	assert.Equal(t, generic.MustParseDate("2025-02-28"), feb[0].Date)
	assert.Equal(t, f.payroll.ID, feb[0].CategoryID)
	assert.Equal(t, generic.EmployeeID("alice"), feb[0].EmployeeID)
	assert.Equal(t, generic.BranchID("north"), feb[0].BranchID)
	assert.Equal(t, "Payroll 2025-02", feb[0].Description)
	assert.Equal(t, generic.SourceClosure, feb[0].Source)

	mar := f.movements(t, "2025-03")
	require.Len(t, mar, 1)
	assert.True(t, mar[0].Amount.Equal(amount("-600")), "got %s", mar[0].Amount)
}

func TestCloseMonth_PayrollKeepsFractionalPrecision(t *testing.T) {
	f := newFixture(t, openSQLite(t))

	// GIVEN: 7.125 hours at 10.3333
	_, err := f.store.AddRate(f.ctx, generic.SalaryRate{
		EmployeeID: "alice", HourlyRate: amount("10.3333"), EffectiveFrom: generic.MustParseDate("2025-01-01"),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertHours(f.ctx, generic.HoursWorked{
		EmployeeID: "alice", Period: generic.MustParseYearMonth("2025-06"), Hours: amount("7.125"),
	}))

	// WHEN
	f.close(t, "2025-06")

	// THEN: no rounding on the way in or out of storage
	ms := f.movements(t, "2025-06")
	require.Len(t, ms, 1)
	assert.Equal(t, "-73.6247625", ms[0].Amount.String())
}

func TestCloseMonth_OwnerWithoutBranchFallsBackToFirstBranch(t *testing.T) {
	f := newMemoryFixture(t)
	f.rate(t, "owner", 20, "2025-01-01")
	f.hours(t, "owner", "2025-02", 10)

	f.close(t, "2025-02")

	ms := f.movements(t, "2025-02")
	require.Len(t, ms, 1)
	assert.Equal(t, generic.BranchID("main"), ms[0].BranchID)
	assert.True(t, ms[0].Amount.Equal(amount("-200")))
}

func TestCloseMonth_EmployeesWithoutHoursAreSkipped(t *testing.T) {
	f := newMemoryFixture(t)
	f.rate(t, "alice", 10, "2025-01-01")

	res := f.close(t, "2025-02")

	assert.Equal(t, 0, res.Movements)
	assert.Empty(t, f.movements(t, "2025-02"))
}

func TestCloseMonth_HoursWithoutRateCostNothing(t *testing.T) {
	f := newMemoryFixture(t)
	f.hours(t, "alice", "2025-02", 40)
	// Rate starts after the month: not in effect at month end
	f.rate(t, "alice", 10, "2025-03-01")

	f.close(t, "2025-02")

	ms := f.movements(t, "2025-02")
	require.Len(t, ms, 1)
	assert.True(t, ms[0].Amount.IsZero())
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestCloseMonth_OneShotTemplateOnlyInItsMonth(t *testing.T) {
	f := newMemoryFixture(t)
	require.NoError(t, f.store.SaveTemplate(f.ctx, generic.ExpenseTemplate{
		ID: "deposit", TenantID: tenant, CategoryID: f.rent.ID, Amount: amount("-500"),
		Recurring: false, EffectiveFrom: generic.MustParseDate("2025-05-15"), Description: "Deposit",
	}))

	f.close(t, "2025-04")
	assert.Empty(t, f.movements(t, "2025-04"))

	f.close(t, "2025-05")
	may := f.movements(t, "2025-05")
	require.Len(t, may, 1)
	assert.True(t, may[0].Amount.Equal(amount("-500")))
	assert.Equal(t, generic.MustParseDate("2025-05-31"), may[0].Date)
	assert.Equal(t, f.rent.ID, may[0].CategoryID)
	assert.Equal(t, "Deposit", may[0].Description)
	assert.Empty(t, may[0].EmployeeID)
	assert.Equal(t, generic.BranchID("main"), may[0].BranchID)

	f.close(t, "2025-06")
	assert.Empty(t, f.movements(t, "2025-06"))
}

func TestCloseMonth_RecurringTemplateEveryMonthFromEffectiveDate(t *testing.T) {
	f := newMemoryFixture(t)
	require.NoError(t, f.store.SaveTemplate(f.ctx, generic.ExpenseTemplate{
		ID: "rent", TenantID: tenant, CategoryID: f.rent.ID, Amount: amount("-800"),
		Recurring: true, EffectiveFrom: generic.MustParseDate("2025-01-20"), Description: "Monthly rent",
	}))

	f.close(t, "2024-12")
	assert.Empty(t, f.movements(t, "2024-12"))

	for _, month := range []string{"2025-01", "2025-02", "2025-03"} {
		f.close(t, month)
		ms := f.movements(t, month)
		require.Len(t, ms, 1, month)
		assert.True(t, ms[0].Amount.Equal(amount("-800")))
	}
}

// =============================================================================
// IDEMPOTENCE & PRECONDITIONS
// =============================================================================

func TestCloseMonth_Idempotent(t *testing.T) {
	f := newMemoryFixture(t)
	f.rate(t, "alice", 10, "2025-01-01")
	f.hours(t, "alice", "2025-02", 40)

	first := f.close(t, "2025-02")
	second := f.close(t, "2025-02")

	assert.False(t, first.AlreadyClosed)
	assert.Equal(t, 1, first.Movements)
	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, "2025-02:t1", first.Key)
	assert.Len(t, f.movements(t, "2025-02"), 1)

	closures, err := f.engine.Closures(f.ctx, tenant)
	require.NoError(t, err)
	require.Len(t, closures, 1)
	assert.Equal(t, 1, closures[0].Movements)
}

func TestCloseMonth_Preconditions(t *testing.T) {
	t.Run("unknown tenant", func(t *testing.T) {
		f := newMemoryFixture(t)
		_, err := f.engine.CloseMonth(f.ctx, "ghost", generic.MustParseYearMonth("2025-02"))
		assert.ErrorIs(t, err, generic.ErrTenantNotFound)
		assert.True(t, generic.IsNotFound(err))
	})

	t.Run("payroll category missing", func(t *testing.T) {
		f := newMemoryFixture(t)
		f.rate(t, "alice", 10, "2025-01-01")
		f.hours(t, "alice", "2025-02", 40)
		require.NoError(t, f.store.DeactivateCategory(f.ctx, f.payroll.ID))

		_, err := f.engine.CloseMonth(f.ctx, tenant, generic.MustParseYearMonth("2025-02"))

		assert.ErrorIs(t, err, generic.ErrPayrollCategoryMissing)
		assert.True(t, generic.IsConfigurationError(err))
		assert.Empty(t, f.movements(t, "2025-02"))
		marker, err := f.store.GetClosure(f.ctx, generic.ClosureKey(tenant, generic.MustParseYearMonth("2025-02")))
		require.NoError(t, err)
		assert.Nil(t, marker, "a refused closure must leave the month open")
	})

	t.Run("no branches", func(t *testing.T) {
		s := store.NewMemory()
		ctx := context.Background()
		require.NoError(t, s.SaveTenant(ctx, generic.Tenant{ID: tenant}))
		_, err := generic.NewLedger(s, s).EnsureDefaultCategories(ctx, tenant)
		require.NoError(t, err)

		_, err = closure.NewEngine(s, nil).CloseMonth(ctx, tenant, generic.MustParseYearMonth("2025-02"))

		assert.ErrorIs(t, err, generic.ErrNoBranches)
		var cfgErr *generic.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, tenant, cfgErr.TenantID)
	})

	t.Run("zero month", func(t *testing.T) {
		f := newMemoryFixture(t)
		_, err := f.engine.CloseMonth(f.ctx, tenant, generic.YearMonth{})
		assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
	})
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// blindMarkers hides existing markers so every caller gets past the
// engine's fast-path check and reaches storage.
type blindMarkers struct {
	generic.ClosureStore
}

func (blindMarkers) GetClosure(context.Context, string) (*generic.MonthClosure, error) {
	return nil, nil
}

func TestCloseMonth_ConcurrentCallsCloseOnce(t *testing.T) {
	backends := map[string]func(t *testing.T) generic.Store{
		"memory": func(t *testing.T) generic.Store { return store.NewMemory() },
		"sqlite": openSQLite,
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, open(t))
			f.rate(t, "alice", 10, "2025-01-01")
			f.hours(t, "alice", "2025-02", 40)
			require.NoError(t, f.store.SaveTemplate(f.ctx, generic.ExpenseTemplate{
				ID: "rent", TenantID: tenant, CategoryID: f.rent.ID, Amount: amount("-800"),
				Recurring: true, EffectiveFrom: generic.MustParseDate("2025-01-01"),
			}))
			f.engine.Markers = blindMarkers{ClosureStore: f.store}

			const callers = 6
			var wg sync.WaitGroup
			results := make([]closure.Result, callers)
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = f.engine.CloseMonth(f.ctx, tenant, generic.MustParseYearMonth("2025-02"))
				}(i)
			}
			wg.Wait()

			closed := 0
			for i := range results {
				require.NoError(t, errs[i])
				if !results[i].AlreadyClosed {
					closed++
				}
			}
			assert.Equal(t, 1, closed)
			assert.Len(t, f.movements(t, "2025-02"), 2, "payroll + rent, exactly once")

			closures, err := f.store.ListClosures(f.ctx, tenant)
			require.NoError(t, err)
			assert.Len(t, closures, 1)
		})
	}
}

// =============================================================================
// CLOSE ALL
// =============================================================================

func TestCloseAll_TenantsAreIndependent(t *testing.T) {
	f := newMemoryFixture(t)
	f.rate(t, "alice", 10, "2025-01-01")
	f.hours(t, "alice", "2025-02", 40)

	// A second tenant without a Payroll category
	require.NoError(t, f.store.SaveTenant(f.ctx, generic.Tenant{ID: "t2", Name: "Broken"}))
	require.NoError(t, f.store.SaveBranch(f.ctx, generic.Branch{ID: "t2-main", TenantID: "t2"}))

	results, err := f.engine.CloseAll(f.ctx, generic.MustParseYearMonth("2025-02"))

	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrPayrollCategoryMissing)
	require.Len(t, results, 2)

	byTenant := map[generic.TenantID]closure.Result{}
	for _, r := range results {
		byTenant[r.TenantID] = r
	}
	assert.NoError(t, byTenant[tenant].Err)
	assert.Equal(t, 1, byTenant[tenant].Movements)
	assert.ErrorIs(t, byTenant["t2"].Err, generic.ErrPayrollCategoryMissing)
}

// =============================================================================
// WRITER
// =============================================================================

type failingAppends struct {
	*store.Memory
}

func (f failingAppends) WithTx(ctx context.Context, fn func(generic.LedgerTx) error) error {
	return f.Memory.WithTx(ctx, func(tx generic.LedgerTx) error {
		return fn(failingTx{LedgerTx: tx})
	})
}

type failingTx struct {
	generic.LedgerTx
}

func (failingTx) AppendMovements(context.Context, []generic.ExpenseMovement) error {
	return errors.New("disk full")
}

func TestWriter_FailedAppendLeavesMonthOpen(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	w := closure.NewWriter(failingAppends{Memory: mem})
	ym := generic.MustParseYearMonth("2025-02")

	err := w.Write(ctx, generic.NewMonthClosure(tenant, ym, time.Now(), 1), []generic.ExpenseMovement{{
		ID: "m1", TenantID: tenant, Amount: amount("-1"), Date: ym.LastDay(),
	}})
	require.Error(t, err)

	marker, err := mem.GetClosure(ctx, generic.ClosureKey(tenant, ym))
	require.NoError(t, err)
	assert.Nil(t, marker)
}
