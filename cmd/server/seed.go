package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/club-ledger/ledger"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create default revenue types and accounts",
		Long: `Creates the default revenue types (Registration Fee, Monthly Dues, ...)
and accounts (Main Cash, Equity Bank, M-Pesa). Existing entries with the
same name are left alone, so running it twice is harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := ledger.WithActor(cmd.Context(), ledger.SystemActor)
			result, err := svc.Seed(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range result.RevenueTypes {
				fmt.Fprintf(out, "created revenue type %q\n", name)
			}
			for _, name := range result.Accounts {
				fmt.Fprintf(out, "created account %q\n", name)
			}
			if len(result.RevenueTypes)+len(result.Accounts) == 0 {
				fmt.Fprintln(out, "nothing to do")
			}
			return nil
		},
	}
}
