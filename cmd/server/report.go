package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/backoffice/api"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/reporting"
)

var reportKinds = []string{"pnl", "payroll", "cash-flow", "expenses", "inventory"}

func reportCmd() *cobra.Command {
	var tenant, from, to string

	cmd := &cobra.Command{
		Use:       "report <kind>",
		Short:     "Print a report as JSON",
		Long:      "Kinds: " + strings.Join(reportKinds, ", ") + ". Dates are inclusive YYYY-MM-DD; inventory ignores them.",
		Example:   "  backoffice report pnl --tenant t-coffee --from 2025-01-01 --to 2025-03-31",
		Args:      cobra.ExactArgs(1),
		ValidArgs: reportKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			kind := args[0]

			var start, end generic.Date
			if kind != "inventory" {
				var err error
				if start, err = generic.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				if end, err = generic.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			store, cleanup, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			engine := reporting.NewEngine(store, logger)
			engine.RateAnchorDay = cfg.Reporting.RateAnchorDay

			report, err := runReport(cmd.Context(), engine, kind, generic.TenantID(tenant), start, end)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID")
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	return cmd
}

func runReport(ctx context.Context, e *reporting.Engine, kind string, tenant generic.TenantID, from, to generic.Date) (any, error) {
	switch kind {
	case "pnl":
		r, err := e.ProfitAndLoss(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return api.ReportDTO(r), nil
	case "payroll":
		r, err := e.PayrollMetrics(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return api.ReportDTO(r), nil
	case "cash-flow":
		r, err := e.CashFlow(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return api.ReportDTO(r), nil
	case "expenses":
		r, err := e.ExpenseAnalysis(ctx, tenant, from, to)
		if err != nil {
			return nil, err
		}
		return api.ReportDTO(r), nil
	case "inventory":
		r, err := e.InventoryValuation(ctx, tenant)
		if err != nil {
			return nil, err
		}
		return api.ReportDTO(r), nil
	default:
		return nil, fmt.Errorf("unknown report %q (%s)", kind, strings.Join(reportKinds, ", "))
	}
}
