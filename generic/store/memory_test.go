package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/generic/store"
)

func movement(tenant generic.TenantID, date string, amount int64) generic.ExpenseMovement {
	return generic.ExpenseMovement{
		ID:         generic.MovementID(generic.NewID()),
		TenantID:   tenant,
		CategoryID: "cat",
		Amount:     decimal.NewFromInt(amount),
		Date:       generic.MustParseDate(date),
		Source:     generic.SourceClosure,
	}
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	ym := generic.MustParseYearMonth("2025-02")

	// WHEN: the transaction fails after writing both marker and movements
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.LedgerTx) error {
		require.NoError(t, tx.InsertClosure(ctx, generic.NewMonthClosure("t1", ym, time.Now(), 1)))
		require.NoError(t, tx.AppendMovements(ctx, []generic.ExpenseMovement{movement("t1", "2025-02-28", -10)}))
		return boom
	})

	// THEN: nothing is visible
	require.ErrorIs(t, err, boom)
	closure, err := s.GetClosure(ctx, generic.ClosureKey("t1", ym))
	require.NoError(t, err)
	assert.Nil(t, closure)

	movements, err := s.ListMovements(ctx, "t1", generic.MustParseDate("2025-01-01"), generic.MustParseDate("2025-12-31"))
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestMemory_InsertClosure_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := generic.NewMonthClosure("t1", generic.MustParseYearMonth("2025-02"), time.Now(), 0)

	require.NoError(t, s.WithTx(ctx, func(tx generic.LedgerTx) error { return tx.InsertClosure(ctx, c) }))

	err := s.WithTx(ctx, func(tx generic.LedgerTx) error { return tx.InsertClosure(ctx, c) })
	assert.ErrorIs(t, err, generic.ErrMonthAlreadyClosed)
}

func TestMemory_ConcurrentClosureKey_OneWinner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	ym := generic.MustParseYearMonth("2025-03")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, dups := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx generic.LedgerTx) error {
				if err := tx.InsertClosure(ctx, generic.NewMonthClosure("t1", ym, time.Now(), 1)); err != nil {
					return err
				}
				return tx.AppendMovements(ctx, []generic.ExpenseMovement{movement("t1", "2025-03-31", -5)})
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, generic.ErrMonthAlreadyClosed) {
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, dups)
	movements, err := s.ListMovements(ctx, "t1", ym.FirstDay(), ym.LastDay())
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestMemory_LatestRate_TieBrokenByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	jan := generic.MustParseDate("2025-01-01")

	_, err := s.AddRate(ctx, generic.SalaryRate{EmployeeID: "e1", HourlyRate: decimal.NewFromInt(10), EffectiveFrom: jan})
	require.NoError(t, err)
	_, err = s.AddRate(ctx, generic.SalaryRate{EmployeeID: "e1", HourlyRate: decimal.NewFromInt(12), EffectiveFrom: jan})
	require.NoError(t, err)
	_, err = s.AddRate(ctx, generic.SalaryRate{EmployeeID: "e1", HourlyRate: decimal.NewFromInt(99), EffectiveFrom: generic.MustParseDate("2025-03-01")})
	require.NoError(t, err)

	rate, err := s.LatestRate(ctx, "e1", generic.MustParseDate("2025-02-28"))
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.HourlyRate.Equal(decimal.NewFromInt(12)))

	none, err := s.LatestRate(ctx, "e1", generic.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemory_SaveCategory_UniqueAmongActive(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c1", TenantID: "t1", Name: "Rent", Active: true}))
	err := s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c2", TenantID: "t1", Name: "rent", Active: true})
	assert.ErrorIs(t, err, generic.ErrDuplicateCategory)

	// Another tenant may reuse the name
	require.NoError(t, s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c3", TenantID: "t2", Name: "Rent", Active: true}))

	// Once deactivated, the name is free again
	require.NoError(t, s.DeactivateCategory(ctx, "c1"))
	require.NoError(t, s.SaveCategory(ctx, generic.ExpenseCategory{ID: "c2", TenantID: "t1", Name: "Rent", Active: true}))

	active, err := s.ListCategories(ctx, "t1", false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, err := s.ListCategories(ctx, "t1", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemory_ListSales_UnboundedUpperBound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	at := func(v string) time.Time {
		ts, err := time.Parse(time.RFC3339, v)
		require.NoError(t, err)
		return ts
	}
	require.NoError(t, s.SaveSale(ctx, generic.Sale{ID: "s1", TenantID: "t1", Total: decimal.NewFromInt(10), At: at("2025-01-15T10:00:00Z")}))
	require.NoError(t, s.SaveSale(ctx, generic.Sale{ID: "s2", TenantID: "t1", Total: decimal.NewFromInt(20), At: at("2025-06-15T10:00:00Z")}))
	require.NoError(t, s.SaveSale(ctx, generic.Sale{ID: "s3", TenantID: "t2", Total: decimal.NewFromInt(30), At: at("2025-06-15T10:00:00Z")}))

	bounded, err := s.ListSales(ctx, "t1", at("2025-01-01T00:00:00Z"), at("2025-01-31T23:59:59Z"))
	require.NoError(t, err)
	assert.Len(t, bounded, 1)

	unbounded, err := s.ListSales(ctx, "t1", at("2025-01-01T00:00:00Z"), time.Time{})
	require.NoError(t, err)
	assert.Len(t, unbounded, 2)
}

func TestMemory_BranchesInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "z-main", TenantID: "t1", Name: "Main"}))
	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "a-second", TenantID: "t1", Name: "Second"}))
	require.NoError(t, s.SaveBranch(ctx, generic.Branch{ID: "z-main", TenantID: "t1", Name: "Main (renamed)"}))

	branches, err := s.ListBranches(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, generic.BranchID("z-main"), branches[0].ID)
	assert.Equal(t, "Main (renamed)", branches[0].Name)
	assert.Less(t, branches[0].Seq, branches[1].Seq)
}
