package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/club-ledger/ledger"
	"github.com/warp/club-ledger/report"
)

func newCashbookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cashbook",
		Short: "Print or export the cashbook",
		Example: `  clubledger cashbook
  clubledger cashbook --account 1 --start 2024-01-01 --end 2024-03-31
  clubledger cashbook --start 2024-01-01 --end 2024-01-31 --xlsx january.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, _ := cmd.Flags().GetInt64("account")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			xlsxPath, _ := cmd.Flags().GetString("xlsx")

			var q ledger.CashbookQuery
			if accountID > 0 {
				id := ledger.AccountID(accountID)
				q.AccountID = &id
			}
			var err error
			if q.Start, err = optionalDate(start); err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if q.End, err = optionalDate(end); err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			svc, store, err := a.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := svc.Cashbook(cmd.Context(), q)
			if err != nil {
				return err
			}
			if xlsxPath == "" {
				return printCashbook(cmd.OutOrStdout(), book)
			}

			f, err := os.Create(xlsxPath)
			if err != nil {
				return err
			}
			if err := report.WriteCashbook(f, book); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d entries)\n", xlsxPath, len(book.Entries))
			return nil
		},
	}
	cmd.Flags().Int64("account", 0, "Account id (default: all accounts)")
	cmd.Flags().String("start", "", "Start date YYYY-MM-DD (default: first of this month)")
	cmd.Flags().String("end", "", "End date YYYY-MM-DD (default: today)")
	cmd.Flags().String("xlsx", "", "Write an Excel workbook to this path instead of printing")
	return cmd
}

func optionalDate(s string) (*ledger.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func printCashbook(w io.Writer, book *ledger.Cashbook) error {
	fmt.Fprintf(w, "Cashbook %s\n\n", book.Range)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tDescription\tReference\tReceipt\tPayment\tBalance\t")
	for _, e := range book.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			e.Date, e.Description, e.Reference,
			nullAmount(e.Receipt), nullAmount(e.Payment),
			e.Balance.StringFixed(ledger.MoneyPlaces))
	}
	fmt.Fprintf(tw, "\tClosing Balance\t\t%s\t%s\t%s\t\n",
		book.TotalReceipts.StringFixed(ledger.MoneyPlaces),
		book.TotalPayments.StringFixed(ledger.MoneyPlaces),
		book.ClosingBalance.StringFixed(ledger.MoneyPlaces))
	return tw.Flush()
}

func nullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(ledger.MoneyPlaces)
}
