package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/store/postgres"
)

func setupTestDB(t *testing.T) *postgres.Store {
	_ = godotenv.Load("../../.env")

	// A dedicated database: Reset truncates every table.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := postgres.New(ctx, dbURL)
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgres_ConcurrentClosure_OneWinner(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	ym := generic.MustParseYearMonth("2025-03")

	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.WithTx(ctx, func(tx generic.LedgerTx) error {
				if err := tx.InsertClosure(ctx, generic.NewMonthClosure("t1", ym, time.Now(), 1)); err != nil {
					return err
				}
				return tx.AppendMovements(ctx, []generic.ExpenseMovement{{
					ID: generic.MovementID(generic.NewID()), TenantID: "t1", CategoryID: "payroll",
					Amount: decimal.NewFromInt(-100), Date: ym.LastDay(), Source: generic.SourceClosure,
				}})
			})
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrMonthAlreadyClosed)
	}
	assert.Equal(t, 1, wins)

	movements, err := s.ListMovements(ctx, "t1", ym.FirstDay(), ym.LastDay())
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestPostgres_DecimalRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertHours(ctx, generic.HoursWorked{
		EmployeeID: "e1", Period: generic.MustParseYearMonth("2025-02"), Hours: decimal.RequireFromString("159.5"),
	}))
	h, err := s.GetHours(ctx, "e1", generic.MustParseYearMonth("2025-02"))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Hours.Equal(decimal.RequireFromString("159.5")))

	r, err := s.AddRate(ctx, generic.SalaryRate{
		EmployeeID: "e1", HourlyRate: decimal.RequireFromString("12.3456"), EffectiveFrom: generic.MustParseDate("2025-01-01"),
	})
	require.NoError(t, err)
	assert.Positive(t, r.Seq)

	latest, err := s.LatestRate(ctx, "e1", generic.MustParseDate("2025-02-28"))
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.HourlyRate.Equal(decimal.RequireFromString("12.3456")))
}

func TestPostgres_DecimalsKeepTheirScale(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	ym := generic.MustParseYearMonth("2025-06")

	// GIVEN: hours and a rate with more decimals than cents
	require.NoError(t, s.SaveTenant(ctx, generic.Tenant{ID: "t1", Name: "Shop"}))
	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "b1", TenantID: "t1", Name: "Main"}))
	require.NoError(t, s.SaveEmployee(ctx, generic.Employee{ID: "e1", TenantID: "t1", Name: "Alice", BranchID: "b1"}))
	_, err := generic.NewLedger(s, s).EnsureDefaultCategories(ctx, "t1")
	require.NoError(t, err)
	_, err = s.AddRate(ctx, generic.SalaryRate{
		EmployeeID: "e1", HourlyRate: decimal.RequireFromString("10.3333"), EffectiveFrom: generic.MustParseDate("2025-01-01"),
	})
	require.NoError(t, err)
	require.NoError(t, s.UpsertHours(ctx, generic.HoursWorked{
		EmployeeID: "e1", Period: ym, Hours: decimal.RequireFromString("7.125"),
	}))

	h, err := s.GetHours(ctx, "e1", ym)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "7.125", h.Hours.String())

	// WHEN: the month is closed
	_, err = closure.NewEngine(s, nil).CloseMonth(ctx, "t1", ym)
	require.NoError(t, err)

	// THEN: the payroll movement is exactly -(hours * rate)
	movements, err := s.ListMovements(ctx, "t1", ym.FirstDay(), ym.LastDay())
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].Amount.Equal(decimal.RequireFromString("-73.6247625")), "got %s", movements[0].Amount)
}

func TestPostgres_CategoryUniqueness(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c1", TenantID: "t1", Name: "Rent", Active: true}))
	err := s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c2", TenantID: "t1", Name: "RENT", Active: true})
	assert.ErrorIs(t, err, generic.ErrDuplicateCategory)
}
