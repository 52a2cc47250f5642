package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT BALANCES - Stored balance next to the one derived from history
// =============================================================================

// AccountBalance reports one account. Drift is Stored - Derived and is
// zero unless payments or balances were changed around the Service (or
// legacy outbound mode double-debited an edit).
type AccountBalance struct {
	Account Account
	Stored  decimal.Decimal
	Derived decimal.Decimal
	Drift   decimal.Decimal
}

type BalanceSheet struct {
	Accounts []AccountBalance
	// TotalActive sums the stored balance of active accounts.
	TotalActive decimal.Decimal
}

// HasDrift reports whether any account's stored balance disagrees with
// its payment history.
func (b *BalanceSheet) HasDrift() bool {
	for _, a := range b.Accounts {
		if !a.Drift.IsZero() {
			return true
		}
	}
	return false
}

// AccountBalances lists every account with stored and derived balances.
func (s *Service) AccountBalances(ctx context.Context) (*BalanceSheet, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	inbound, err := s.store.ListInbound(ctx, PaymentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list inbound payments: %w", err)
	}
	outbound, err := s.store.ListOutbound(ctx, PaymentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list outbound payments: %w", err)
	}

	derived := make(map[AccountID]decimal.Decimal, len(accounts))
	for _, p := range inbound {
		derived[p.AccountID] = derived[p.AccountID].Add(p.Amount)
	}
	for _, p := range outbound {
		derived[p.AccountID] = derived[p.AccountID].Sub(p.Amount)
	}

	sheet := &BalanceSheet{
		Accounts:    make([]AccountBalance, 0, len(accounts)),
		TotalActive: decimal.Zero,
	}
	for _, a := range accounts {
		d := derived[a.ID]
		sheet.Accounts = append(sheet.Accounts, AccountBalance{
			Account: a,
			Stored:  a.Balance,
			Derived: d,
			Drift:   a.Balance.Sub(d),
		})
		if a.Active {
			sheet.TotalActive = sheet.TotalActive.Add(a.Balance)
		}
	}
	return sheet, nil
}
