package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/backoffice/closure"
	"github.com/warp/backoffice/generic"
)

func closeMonthCmd() *cobra.Command {
	var (
		tenant string
		month  string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "close-month",
		Short: "Close an accounting month",
		Long: `Close materializes payroll and template expenses for the month and marks it
closed. Closing a month twice is a no-op. Without --month the previous
calendar month is closed.`,
		Example: `  backoffice close-month --tenant t-coffee --month 2025-03
  backoffice close-month --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (tenant != "") {
				return fmt.Errorf("specify exactly one of --tenant or --all")
			}

			ym := generic.DateOf(time.Now()).YearMonth().Previous()
			if month != "" {
				parsed, err := generic.ParseYearMonth(month)
				if err != nil {
					return err
				}
				ym = parsed
			}

			store, cleanup, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			engine := closure.NewEngine(store, logger)

			if all {
				results, err := engine.CloseAll(cmd.Context(), ym)
				for _, r := range results {
					printResult(r)
				}
				return err
			}

			result, err := engine.CloseMonth(cmd.Context(), generic.TenantID(tenant), ym)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID")
	cmd.Flags().StringVar(&month, "month", "", "month to close (YYYY-MM, default: previous month)")
	cmd.Flags().BoolVar(&all, "all", false, "close the month for every tenant")
	return cmd
}

func printResult(r closure.Result) {
	switch {
	case r.Err != nil:
		fmt.Fprintf(os.Stdout, "%-20s %s  FAILED  %v\n", r.TenantID, r.Period, r.Err)
	case r.AlreadyClosed:
		fmt.Fprintf(os.Stdout, "%-20s %s  already closed\n", r.TenantID, r.Period)
	default:
		fmt.Fprintf(os.Stdout, "%-20s %s  closed, %d movements\n", r.TenantID, r.Period, r.Movements)
	}
}
