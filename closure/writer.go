package closure

import (
	"context"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// CLOSURE LEDGER WRITER - Marker and movements, all or nothing
// =============================================================================

// Writer persists a closure atomically.
type Writer struct {
	Tx generic.TxStore
}

func NewWriter(tx generic.TxStore) *Writer {
	return &Writer{Tx: tx}
}

// Write inserts the closure marker and appends the movements in a single
// transaction. The marker goes first so a losing concurrent closure fails
// on the unique key before writing anything. Returns
// generic.ErrMonthAlreadyClosed in that case.
func (w *Writer) Write(ctx context.Context, closure generic.MonthClosure, movements []generic.ExpenseMovement) error {
	return w.Tx.WithTx(ctx, func(tx generic.LedgerTx) error {
		if err := tx.InsertClosure(ctx, closure); err != nil {
			return err
		}
		if len(movements) == 0 {
			return nil
		}
		return tx.AppendMovements(ctx, movements)
	})
}
