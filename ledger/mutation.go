/*
mutation.go - Balance mutation rule

PURPOSE:
  Keeps Account.Balance equal to the net effect of the payments that
  reference it. The rule is split in two halves:
    1. Pure functions that turn (old payment, new payment) into a list of
       per-account deltas. No storage, easy to test exhaustively.
    2. applyChanges, which loads each account inside the current atomic
       unit, adds the delta and writes it back.

INBOUND SAVE:
  new                    -> +amount on account
  existing, same account -> +(new - old) when nonzero
  existing, moved        -> -old on old account, +new on new account

INBOUND DELETE:
  -amount on account

OUTBOUND (mirror of inbound, signs inverted):
  new                    -> -amount
  existing, same account -> -(new - old) when nonzero
  existing, moved        -> +old on old account, -new on new account
  delete                 -> +amount

LEGACY OUTBOUND MODE:
  Options.LegacyOutboundRedebit reproduces the historical behaviour where
  every outbound save subtracts the full amount again and delete leaves
  the balance alone. Editing an outbound payment in this mode
  double-debits the account; it exists only for compatibility with data
  produced that way.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceChange is one account adjustment produced by the rule.
type BalanceChange struct {
	AccountID AccountID
	Delta     decimal.Decimal
}

// InboundSaveChanges returns the adjustments for saving p. old is nil for
// a new payment.
func InboundSaveChanges(old *InboundPayment, p InboundPayment) []BalanceChange {
	if old == nil {
		return []BalanceChange{{AccountID: p.AccountID, Delta: p.Amount}}
	}
	return transferOrDelta(old.AccountID, old.Amount, p.AccountID, p.Amount)
}

// InboundDeleteChanges returns the adjustments for deleting p.
func InboundDeleteChanges(p InboundPayment) []BalanceChange {
	return []BalanceChange{{AccountID: p.AccountID, Delta: p.Amount.Neg()}}
}

// OutboundSaveChanges returns the adjustments for saving p. old is nil for
// a new payment.
func OutboundSaveChanges(old *OutboundPayment, p OutboundPayment, legacy bool) []BalanceChange {
	if old == nil || legacy {
		return []BalanceChange{{AccountID: p.AccountID, Delta: p.Amount.Neg()}}
	}
	return negate(transferOrDelta(old.AccountID, old.Amount, p.AccountID, p.Amount))
}

// OutboundDeleteChanges returns the adjustments for deleting p.
func OutboundDeleteChanges(p OutboundPayment, legacy bool) []BalanceChange {
	if legacy {
		return nil
	}
	return []BalanceChange{{AccountID: p.AccountID, Delta: p.Amount}}
}

// transferOrDelta expresses an inbound-signed edit: the whole old amount
// leaves the old account when the account changes, otherwise only the
// difference is applied.
func transferOrDelta(oldAccount AccountID, oldAmount decimal.Decimal, newAccount AccountID, newAmount decimal.Decimal) []BalanceChange {
	if oldAccount != newAccount {
		return []BalanceChange{
			{AccountID: oldAccount, Delta: oldAmount.Neg()},
			{AccountID: newAccount, Delta: newAmount},
		}
	}
	diff := newAmount.Sub(oldAmount)
	if diff.IsZero() {
		return nil
	}
	return []BalanceChange{{AccountID: newAccount, Delta: diff}}
}

func negate(changes []BalanceChange) []BalanceChange {
	for i := range changes {
		changes[i].Delta = changes[i].Delta.Neg()
	}
	return changes
}

// applyChanges writes each change to its account and returns the
// resulting balances. Must run inside WithTx.
func applyChanges(ctx context.Context, st Store, changes []BalanceChange) (map[AccountID]decimal.Decimal, error) {
	balances := make(map[AccountID]decimal.Decimal, len(changes))
	for _, c := range changes {
		acct, err := st.GetAccount(ctx, c.AccountID)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, &NotFoundError{Kind: ObjectAccount, ID: int64(c.AccountID)}
		}
		acct.Balance = acct.Balance.Add(c.Delta)
		if err := st.UpdateAccount(ctx, *acct); err != nil {
			return nil, err
		}
		balances[acct.ID] = acct.Balance
	}
	return balances, nil
}

// checkDebits is the advisory insufficient-balance pre-check: every
// negative change must be covered by the account's current balance.
func checkDebits(ctx context.Context, st Store, changes []BalanceChange) error {
	for _, c := range changes {
		if !c.Delta.IsNegative() {
			continue
		}
		acct, err := st.GetAccount(ctx, c.AccountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return &NotFoundError{Kind: ObjectAccount, ID: int64(c.AccountID)}
		}
		requested := c.Delta.Neg()
		if acct.Balance.LessThan(requested) {
			return &InsufficientBalanceError{
				AccountID: acct.ID,
				Available: acct.Balance,
				Requested: requested,
			}
		}
	}
	return nil
}
