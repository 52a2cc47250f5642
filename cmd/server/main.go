/*
main.go - Application entry point

PURPOSE:
  The clubledger binary. Loads configuration (.env + environment), sets up
  logging, and dispatches to a cobra subcommand.

COMMANDS:
  serve     Run the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  seed      Create default revenue types and accounts
  cashbook  Print or export the cashbook for a date range
  token     Issue a bearer token for a user and role

ENVIRONMENT:
  HTTP_PORT, DATABASE_PATH, JWT_SECRET, CORS_ALLOWED_ORIGINS,
  LEDGER_LEGACY_OUTBOUND_REDEBIT, BALANCE_CHECK_INTERVAL, LOG_LEVEL,
  LOG_FORMAT, LOG_OUTPUT
  See config/config.go for defaults.

EXAMPLES:
  # Run with an in-memory database
  clubledger serve --db :memory: --port 9000

  # Export last month's M-Pesa cashbook
  clubledger cashbook --account 3 --start 2024-05-01 --end 2024-05-31 --xlsx may.xlsx

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/warp/club-ledger/config"
	"github.com/warp/club-ledger/ledger"
	"github.com/warp/club-ledger/logger"
	"github.com/warp/club-ledger/store/sqlite"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every subcommand needs after PersistentPreRunE.
type app struct {
	cfg       *config.Config
	logCloser io.Closer

	dbPath string // --db, overrides DATABASE_PATH
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "clubledger",
		Short:         "Club membership and financial ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			closer, err := logger.Setup(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if a.dbPath != "" {
				cfg.DatabasePath = a.dbPath
			}
			a.cfg = cfg
			a.logCloser = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $DATABASE_PATH)")

	root.AddCommand(
		newServeCmd(a),
		newSeedCmd(a),
		newCashbookCmd(a),
		newTokenCmd(a),
	)
	return root
}

// openLedger opens the configured database and builds the service on it.
// The caller closes the returned store.
func (a *app) openLedger() (*ledger.Service, *sqlite.Store, error) {
	store, err := sqlite.New(a.cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", a.cfg.DatabasePath, err)
	}
	l := logger.WithComponent("ledger")
	svc := ledger.NewService(store, ledger.Options{
		LegacyOutboundRedebit: a.cfg.LegacyOutboundRedebit,
		Logger:                &l,
	})
	if svc.LegacyOutboundRedebit() {
		log.Warn().Msg("legacy outbound re-debit mode is on; outbound edits double-debit")
	}
	return svc, store, nil
}
