// Package report renders ledger reports as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/club-ledger/ledger"
	"github.com/xuri/excelize/v2"
)

// CashbookSheet is the worksheet name used for cashbook exports.
const CashbookSheet = "Cashbook"

// ContentTypeXLSX is the MIME type of the exported workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var cashbookHeaders = []string{"Date", "Type", "Description", "Reference", "Receipt", "Payment", "Balance"}

var entryLabels = map[ledger.EntryType]string{
	ledger.EntryOpening: "Opening Balance",
	ledger.EntryReceipt: "Receipt",
	ledger.EntryPayment: "Payment",
}

// CashbookFilename names the export after its range, e.g.
// cashbook_2024-01-01_2024-01-31.xlsx.
func CashbookFilename(book *ledger.Cashbook) string {
	return fmt.Sprintf("cashbook_%s_%s.xlsx", book.Range.Start, book.Range.End)
}

// WriteCashbook writes book as an xlsx workbook to w. The sheet holds a
// header row, one row per entry (opening entry first) and a closing row
// with the period totals.
func WriteCashbook(w io.Writer, book *ledger.Cashbook) error {
	f, err := CashbookWorkbook(book)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// CashbookWorkbook builds the workbook without writing it.
func CashbookWorkbook(book *ledger.Cashbook) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", CashbookSheet); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		f.Close()
		return nil, err
	}

	set := func(col, row int, value any) {
		if err != nil {
			return
		}
		var cell string
		if cell, err = excelize.CoordinatesToCellName(col, row); err != nil {
			return
		}
		err = f.SetCellValue(CashbookSheet, cell, value)
	}

	for i, h := range cashbookHeaders {
		set(i+1, 1, h)
	}

	row := 2
	for _, e := range book.Entries {
		set(1, row, e.Date.String())
		set(2, row, entryLabels[e.Type])
		set(3, row, e.Description)
		set(4, row, e.Reference)
		if e.Receipt.Valid {
			set(5, row, money(e.Receipt.Decimal))
		}
		if e.Payment.Valid {
			set(6, row, money(e.Payment.Decimal))
		}
		set(7, row, money(e.Balance))
		row++
	}

	set(1, row, book.Range.End.String())
	set(2, row, "Closing Balance")
	set(5, row, money(book.TotalReceipts))
	set(6, row, money(book.TotalPayments))
	set(7, row, money(book.ClosingBalance))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fill cashbook sheet: %w", err)
	}

	last, _ := excelize.CoordinatesToCellName(len(cashbookHeaders), 1)
	styles := []struct {
		from, to string
		style    int
	}{
		{"A1", last, headerStyle},
		{"E2", fmt.Sprintf("G%d", row), moneyStyle},
		{fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row), headerStyle},
	}
	for _, s := range styles {
		if err := f.SetCellStyle(CashbookSheet, s.from, s.to, s.style); err != nil {
			f.Close()
			return nil, err
		}
	}

	widths := map[string]float64{"A": 12, "B": 16, "C": 40, "D": 28, "E": 14, "F": 14, "G": 14}
	for col, width := range widths {
		if err := f.SetColWidth(CashbookSheet, col, col, width); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// money converts to float for the cell; the sheet formats two decimals.
func money(d decimal.Decimal) float64 {
	return d.Round(ledger.MoneyPlaces).InexactFloat64()
}
