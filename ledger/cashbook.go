/*
cashbook.go - Cashbook reconstruction from payment history

PURPOSE:
  Rebuilds opening balance, running balance and closing balance for a date
  range by replaying payments. Account.Balance is never read here, so a
  drifted stored balance can't leak into the report.

ALGORITHM:
  1. Range defaults to first of the current month through today
  2. Opening = sum(inbound before Start) - sum(outbound before Start)
  3. Payments inside [Start, End] merged, ordered by Date, then CreatedAt
     (recording order across both tables), then receipts before payments,
     then ID. IDs come from two separate sequences and are only compared
     within one kind
  4. Synthetic opening entry, then one entry per payment with the running
     balance
  5. Closing = Opening + TotalReceipts - TotalPayments, computed apart from
     the walk; a mismatch is ErrInconsistentCashbook

EDGE CASES:
  - No payments in range: only the opening entry, closing == opening
  - Start after End: treated as an empty range (opening entry only)

SCOPE:
  CashbookQuery.AccountID restricts everything (opening included) to one
  account. Without it the cashbook covers all accounts.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryOpening EntryType = "opening_balance"
	EntryReceipt EntryType = "receipt"
	EntryPayment EntryType = "payment"
)

// CashbookEntry is one row of the cashbook. Exactly one of Receipt and
// Payment is valid, neither for the opening entry.
type CashbookEntry struct {
	Date        Date
	Type        EntryType
	Description string
	Reference   string
	PaymentID   PaymentID
	AccountID   AccountID
	Receipt     decimal.NullDecimal
	Payment     decimal.NullDecimal
	Balance     decimal.Decimal
	CreatedAt   time.Time
}

type Cashbook struct {
	Range          DateRange
	AccountID      *AccountID
	OpeningBalance decimal.Decimal
	Entries        []CashbookEntry
	TotalReceipts  decimal.Decimal
	TotalPayments  decimal.Decimal
	ClosingBalance decimal.Decimal
}

// CashbookQuery selects the cashbook. Nil Start/End use the current month
// to date.
type CashbookQuery struct {
	AccountID *AccountID
	Start     *Date
	End       *Date
}

// Cashbook reconstructs the cashbook for q.
func (s *Service) Cashbook(ctx context.Context, q CashbookQuery) (*Cashbook, error) {
	rng := CurrentMonthToDate(s.now())
	if q.Start != nil {
		rng.Start = *q.Start
	}
	if q.End != nil {
		rng.End = *q.End
	}
	if q.AccountID != nil {
		if _, err := s.GetAccount(ctx, *q.AccountID); err != nil {
			return nil, err
		}
	}

	opening, err := s.openingBalance(ctx, q.AccountID, rng.Start)
	if err != nil {
		return nil, err
	}

	var inbound []InboundPayment
	var outbound []OutboundPayment
	if !rng.IsEmpty() {
		filter := PaymentFilter{AccountID: q.AccountID, From: &rng.Start, To: &rng.End}
		if inbound, err = s.store.ListInbound(ctx, filter); err != nil {
			return nil, fmt.Errorf("list inbound payments: %w", err)
		}
		if outbound, err = s.store.ListOutbound(ctx, filter); err != nil {
			return nil, fmt.Errorf("list outbound payments: %w", err)
		}
	}

	revenueTypes, err := s.store.ListRevenueTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list revenue types: %w", err)
	}
	names := make(map[RevenueTypeID]string, len(revenueTypes))
	for _, rt := range revenueTypes {
		names[rt.ID] = rt.Name
	}

	return BuildCashbook(rng, q.AccountID, opening, inbound, outbound, names)
}

// openingBalance sums everything dated strictly before start.
func (s *Service) openingBalance(ctx context.Context, account *AccountID, start Date) (decimal.Decimal, error) {
	before := start.AddDays(-1)
	filter := PaymentFilter{AccountID: account, To: &before}

	inbound, err := s.store.ListInbound(ctx, filter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list inbound payments: %w", err)
	}
	outbound, err := s.store.ListOutbound(ctx, filter)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list outbound payments: %w", err)
	}

	total := decimal.Zero
	for _, p := range inbound {
		total = total.Add(p.Amount)
	}
	for _, p := range outbound {
		total = total.Sub(p.Amount)
	}
	return total, nil
}

// BuildCashbook merges payments already restricted to rng and walks them
// from opening. Payments outside rng are ignored. revenueTypes names
// inbound entries and may be nil.
func BuildCashbook(
	rng DateRange,
	account *AccountID,
	opening decimal.Decimal,
	inbound []InboundPayment,
	outbound []OutboundPayment,
	revenueTypes map[RevenueTypeID]string,
) (*Cashbook, error) {
	entries := make([]CashbookEntry, 0, len(inbound)+len(outbound))
	if !rng.IsEmpty() {
		for _, p := range inbound {
			if !rng.Contains(p.Date) {
				continue
			}
			desc := p.PayerName
			if name, ok := revenueTypes[p.RevenueTypeID]; ok && name != "" {
				desc = name + " - " + p.PayerName
			}
			entries = append(entries, CashbookEntry{
				Date:        p.Date,
				Type:        EntryReceipt,
				Description: desc,
				Reference:   p.ReceiptNumber,
				PaymentID:   p.ID,
				AccountID:   p.AccountID,
				Receipt:     decimal.NewNullDecimal(p.Amount),
				CreatedAt:   p.CreatedAt,
			})
		}
		for _, p := range outbound {
			if !rng.Contains(p.Date) {
				continue
			}
			desc := p.Reason
			if p.PayeeName != "" {
				desc = p.Reason + " - " + p.PayeeName
			}
			ref := p.ReceiptNumber
			if p.InvoiceRef != "" {
				ref = p.ReceiptNumber + " / " + p.InvoiceRef
			}
			entries = append(entries, CashbookEntry{
				Date:        p.Date,
				Type:        EntryPayment,
				Description: desc,
				Reference:   ref,
				PaymentID:   p.ID,
				AccountID:   p.AccountID,
				Payment:     decimal.NewNullDecimal(p.Amount),
				CreatedAt:   p.CreatedAt,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Type != b.Type {
			return a.Type == EntryReceipt
		}
		return a.PaymentID < b.PaymentID
	})

	book := &Cashbook{
		Range:          rng,
		AccountID:      account,
		OpeningBalance: opening,
		Entries:        make([]CashbookEntry, 0, len(entries)+1),
		TotalReceipts:  decimal.Zero,
		TotalPayments:  decimal.Zero,
	}
	book.Entries = append(book.Entries, CashbookEntry{
		Date:        rng.Start,
		Type:        EntryOpening,
		Description: "Opening Balance",
		Balance:     opening,
	})

	running := opening
	for _, e := range entries {
		if e.Receipt.Valid {
			running = running.Add(e.Receipt.Decimal)
			book.TotalReceipts = book.TotalReceipts.Add(e.Receipt.Decimal)
		} else {
			running = running.Sub(e.Payment.Decimal)
			book.TotalPayments = book.TotalPayments.Add(e.Payment.Decimal)
		}
		e.Balance = running
		book.Entries = append(book.Entries, e)
	}

	book.ClosingBalance = opening.Add(book.TotalReceipts).Sub(book.TotalPayments)
	if !book.ClosingBalance.Equal(running) {
		return nil, fmt.Errorf("%w: walk %s, totals %s", ErrInconsistentCashbook,
			running.StringFixed(MoneyPlaces), book.ClosingBalance.StringFixed(MoneyPlaces))
	}
	return book, nil
}
