/*
Package ledger provides the balance-maintenance core of the club ledger.

PURPOSE:
  This package owns the only rules in the system with real invariants:
  how account balances move when payment records are created, updated or
  deleted, how receipt numbers are assigned, and how a cashbook (opening
  balance, running balance, closing balance) is rebuilt from payment
  history. Everything else (forms, routing, auth) calls in through Service.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a pool of money (cash drawer, bank account, mobile wallet)
  - InboundPayment / OutboundPayment: money into / out of an Account
  - Party: tagged variant for "linked member/supplier" vs "manual name"
  - Member, Supplier, RevenueType: reference data payments point at

DESIGN PRINCIPLES:
  1. Precision: amounts are decimal.Decimal with two decimal places
  2. Atomicity: a payment row and its account balance change are written
     in one store transaction (see store.go)
  3. Derivation: the cashbook never reads Account.Balance, it replays
     payments, so stored balance drift is visible instead of hidden

USAGE:
  svc := ledger.NewService(store, ledger.Options{})
  receipt, err := svc.RecordInboundPayment(ctx, ledger.InboundInput{
      Payer:     ledger.Linked{ID: int64(memberID)},
      Amount:    decimal.NewFromInt(1000),
      Date:      ledger.NewDate(2024, time.January, 15),
      Method:    ledger.MethodCash,
      AccountID: cashID,
  })

SEE ALSO:
  - mutation.go: balance mutation rule
  - receipt.go: receipt number generator
  - cashbook.go: cashbook reconstructor
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type MemberID int64
type SupplierID int64
type RevenueTypeID int64
type PaymentID int64

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

// MustParseDecimal parses s, returning zero for malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// hasMoneyPrecision reports whether d fits in MoneyPlaces decimals.
func hasMoneyPrecision(d decimal.Decimal) bool {
	return d.Round(MoneyPlaces).Equal(d)
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountCash   AccountType = "cash"
	AccountBank   AccountType = "bank"
	AccountMobile AccountType = "mobile"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountMobile:
		return true
	}
	return false
}

// Account holds a balance adjusted only by payment mutations.
//
// INVARIANT: Balance == sum(inbound) - sum(outbound) applied to it, as long
// as every mutation went through Service. AccountBalances reports drift.
type Account struct {
	ID            AccountID
	Name          string
	Type          AccountType
	AccountNumber string
	BankName      string
	Balance       decimal.Decimal
	Active        bool
}

// =============================================================================
// PAYMENT METHOD
// =============================================================================

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodBank   PaymentMethod = "bank"
	MethodMobile PaymentMethod = "mobile"
	MethodCheque PaymentMethod = "cheque"
)

// ValidInbound reports whether m is accepted for money received.
func (m PaymentMethod) ValidInbound() bool {
	switch m {
	case MethodCash, MethodBank, MethodMobile, MethodCheque:
		return true
	}
	return false
}

// ValidOutbound reports whether m is accepted for money paid out.
// Mobile money is receive-only.
func (m PaymentMethod) ValidOutbound() bool {
	switch m {
	case MethodCash, MethodBank, MethodCheque:
		return true
	}
	return false
}

// =============================================================================
// PARTY - Linked reference or manual name, never both
// =============================================================================

// Party identifies who paid (inbound) or who was paid (outbound).
// It is a closed variant: either Linked or Manual.
type Party interface {
	isParty()
}

// Linked points at a stored Member (inbound) or Supplier (outbound).
type Linked struct {
	ID int64
}

// Manual is a free-text counterparty with no stored record.
type Manual struct {
	Name    string
	Contact string
	Email   string
}

func (Linked) isParty() {}
func (Manual) isParty() {}

// =============================================================================
// REFERENCE DATA
// =============================================================================

type Club string

const (
	ClubRotaract Club = "rotaract"
	ClubRotary   Club = "rotary"
	ClubOther    Club = "other"
)

func (c Club) Valid() bool {
	switch c {
	case ClubRotaract, ClubRotary, ClubOther:
		return true
	}
	return false
}

type Member struct {
	ID            MemberID
	Name          string
	RID           string
	Contact       string
	Email         string
	Residence     string
	Club          Club
	OtherClubName string
	BuddyGroup    string
	CreatedAt     time.Time
	CreatedBy     string
}

// DisplayName mirrors how members are listed on receipts.
func (m Member) DisplayName() string {
	if m.Club == ClubOther && m.OtherClubName != "" {
		return m.Name + " (" + m.RID + ") - " + m.OtherClubName
	}
	return m.Name + " (" + m.RID + ")"
}

type Supplier struct {
	ID           SupplierID
	Name         string
	Contact      string
	Email        string
	Address      string
	BankDetails  string
	SupplierCode string
	CreatedAt    time.Time
	CreatedBy    string
}

type RevenueType struct {
	ID            RevenueTypeID
	Name          string
	Description   string
	DefaultAmount decimal.Decimal
	Active        bool
}

// =============================================================================
// PAYMENTS
// =============================================================================

// InboundPayment is money received into an Account (dues, fees, donations).
type InboundPayment struct {
	ID            PaymentID
	Payer         Party
	PayerName     string // display name; the member's name when Payer is Linked
	RevenueTypeID RevenueTypeID
	Amount        decimal.Decimal
	Date          Date
	Method        PaymentMethod
	AccountID     AccountID
	ReceiptNumber string
	Notes         string
	CreatedAt     time.Time
	CreatedBy     string
}

// OutboundPayment is money paid out of an Account (expenses).
type OutboundPayment struct {
	ID              PaymentID
	Payee           Party
	PayeeName       string
	Reason          string
	ExpenseCategory string
	InvoiceRef      string // optional, unique when set
	Amount          decimal.Decimal
	Date            Date
	Method          PaymentMethod
	AccountID       AccountID
	ReceiptNumber   string
	CreatedAt       time.Time
	CreatedBy       string
}

// Receipt is what a caller gets back after recording a payment.
type Receipt struct {
	PaymentID     PaymentID
	ReceiptNumber string
	AccountID     AccountID
	Amount        decimal.Decimal
	Balance       decimal.Decimal // account balance after the mutation
}
