/*
main.go - Application entry point

PURPOSE:
  The backoffice command: serves the HTTP API with the closure scheduler,
  and offers one-shot commands for closing months, printing reports and
  loading scenarios against the configured store.

COMMANDS:
  serve          HTTP API + closure scheduler
  close-month    Close one tenant's month, or every tenant's (--all)
  report         Print a report as JSON
  seed           Load a built-in or file scenario (resets the store)
  version        Print version information

CONFIGURATION:
  --config picks a YAML file (default ./backoffice.yaml if present).
  Every key can be overridden with BACKOFFICE_* variables, e.g.
  BACKOFFICE_DATABASE_DRIVER=postgres BACKOFFICE_DATABASE_URL=postgres://...

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the root context is cancelled:
  1. The scheduler stops after its in-flight run
  2. The server stops accepting connections and drains (30s timeout)
  3. The store is closed

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/backoffice/config"
	"github.com/warp/backoffice/generic"
	"github.com/warp/backoffice/generic/store"
	"github.com/warp/backoffice/store/postgres"
	"github.com/warp/backoffice/store/sqlite"
)

var (
	cfgFile string
	version = "dev"

	// cfg and logger are set by initConfig before any command runs.
	cfg    config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "backoffice",
		Short: "Month-end closure and reporting for retail back offices",
		Long: `backoffice closes accounting months (payroll and recurring expenses become
ledger movements exactly once per tenant and month) and computes P&L,
payroll, cash flow, expense and inventory reports from the ledger.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./backoffice.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add commands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(closeMonthCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	// Set up signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = config.SetupLogging(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

// openStore opens the configured backend. The returned cleanup closes it.
func openStore(ctx context.Context) (generic.Store, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database %s: %w", cfg.Database.Path, err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}, nil
	case "memory":
		slog.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "backoffice %s\n", version)
		},
	}
}
