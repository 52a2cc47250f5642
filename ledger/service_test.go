/*
service_test.go - Behaviour of ledger.Service over the in-memory store

Tests for:
- The worked payment scenarios (record, edit, move, delete, cashbook)
- Validation and storage failures leaving state untouched
- Outbound balance modes (default delta vs legacy re-debit)
- Member registration with a fee as one unit
- Derived vs stored balances, seed, audit trail
*/
package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-ledger/ledger"
	"github.com/warp/club-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var fixedNow = time.Date(2024, time.February, 10, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc   *ledger.Service
	mem   *store.Memory
	ctx   context.Context
	x, y  ledger.AccountID
	dues  ledger.RevenueTypeID
	spare ledger.RevenueTypeID
}

func newFixture(t *testing.T, legacy bool) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return newFixtureOn(t, mem, mem, legacy)
}

// newFixtureOn builds the service on st and seeds it through st; mem is
// used for direct inspection.
func newFixtureOn(t *testing.T, st ledger.TxStore, mem *store.Memory, legacy bool) *fixture {
	t.Helper()
	f := &fixture{
		svc: ledger.NewService(st, ledger.Options{
			LegacyOutboundRedebit: legacy,
			Now:                   func() time.Time { return fixedNow },
		}),
		mem: mem,
		ctx: ledger.WithActor(context.Background(), "treasurer@club"),
	}

	x, err := f.svc.CreateAccount(f.ctx, ledger.AccountInput{Name: "Main Cash", Type: ledger.AccountCash})
	require.NoError(t, err)
	y, err := f.svc.CreateAccount(f.ctx, ledger.AccountInput{Name: "Equity Bank", Type: ledger.AccountBank, AccountNumber: "0123", BankName: "Equity"})
	require.NoError(t, err)
	dues, err := f.svc.CreateRevenueType(f.ctx, ledger.RevenueTypeInput{Name: "Monthly Dues", DefaultAmount: dec("500")})
	require.NoError(t, err)
	spare, err := f.svc.CreateRevenueType(f.ctx, ledger.RevenueTypeInput{Name: "Donation"})
	require.NoError(t, err)

	f.x, f.y, f.dues, f.spare = x.ID, y.ID, dues.ID, spare.ID
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func (f *fixture) balance(t *testing.T, id ledger.AccountID) decimal.Decimal {
	t.Helper()
	acct, err := f.svc.GetAccount(f.ctx, id)
	require.NoError(t, err)
	return acct.Balance
}

func (f *fixture) assertBalance(t *testing.T, id ledger.AccountID, want string) {
	t.Helper()
	got := f.balance(t, id)
	assert.True(t, got.Equal(dec(want)), "account %d: want %s, got %s", id, want, got.StringFixed(2))
}

func (f *fixture) inbound(amount string, date ledger.Date, account ledger.AccountID) ledger.InboundInput {
	return ledger.InboundInput{
		Payer:         ledger.Manual{Name: "Walk-in"},
		RevenueTypeID: f.dues,
		Amount:        dec(amount),
		Date:          date,
		Method:        ledger.MethodCash,
		AccountID:     account,
	}
}

func (f *fixture) outbound(amount string, date ledger.Date, account ledger.AccountID) ledger.OutboundInput {
	return ledger.OutboundInput{
		Payee:           ledger.Manual{Name: "Printer Co"},
		Reason:          "Flyers",
		ExpenseCategory: "Printing",
		Amount:          dec(amount),
		Date:            date,
		Method:          ledger.MethodCash,
		AccountID:       account,
	}
}

// assertNoDrift checks stored balances against payment history.
func (f *fixture) assertNoDrift(t *testing.T) {
	t.Helper()
	sheet, err := f.svc.AccountBalances(f.ctx)
	require.NoError(t, err)
	for _, a := range sheet.Accounts {
		assert.True(t, a.Drift.IsZero(), "account %s drifted: stored %s derived %s", a.Account.Name, a.Stored, a.Derived)
	}
}

func jan(day int) ledger.Date { return ledger.NewDate(2024, time.January, day) }

// =============================================================================
// WORKED SCENARIOS
// =============================================================================

func TestScenarios_RecordEditMoveDeleteCashbook(t *testing.T) {
	f := newFixture(t, false)

	// Scenario A: two receipts in January on X
	first, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(15), f.x))
	require.NoError(t, err)
	assert.Equal(t, "RC-202401-0001", first.ReceiptNumber)
	assert.True(t, first.Balance.Equal(dec("1000")))
	f.assertBalance(t, f.x, "1000")

	second, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("500", jan(20), f.x))
	require.NoError(t, err)
	assert.Equal(t, "RC-202401-0002", second.ReceiptNumber)
	f.assertBalance(t, f.x, "1500")

	// Scenario B: raise the first payment to 1200
	updated, err := f.svc.UpdateInboundPayment(f.ctx, first.PaymentID, ledger.InboundUpdate{Amount: ptr(dec("1200"))})
	require.NoError(t, err)
	assert.Equal(t, "RC-202401-0001", updated.ReceiptNumber, "receipt number unchanged by edits")
	f.assertBalance(t, f.x, "1700")

	// Scenario C: move the 500 payment to Y
	_, err = f.svc.UpdateInboundPayment(f.ctx, second.PaymentID, ledger.InboundUpdate{AccountID: ptr(f.y)})
	require.NoError(t, err)
	f.assertBalance(t, f.x, "1200")
	f.assertBalance(t, f.y, "500")

	// Scenario D: delete the 1200 payment
	require.NoError(t, f.svc.DeleteInboundPayment(f.ctx, first.PaymentID))
	f.assertBalance(t, f.x, "0")

	// Scenario E: the January cashbook shows the one remaining receipt
	book, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{Start: ptr(jan(1)), End: ptr(jan(31))})
	require.NoError(t, err)
	assert.True(t, book.OpeningBalance.IsZero())
	require.Len(t, book.Entries, 2)
	assert.Equal(t, ledger.EntryReceipt, book.Entries[1].Type)
	assert.True(t, book.Entries[1].Receipt.Decimal.Equal(dec("500")))
	assert.True(t, book.ClosingBalance.Equal(dec("500")))

	// Scoped to Y it is the same; scoped to X it is empty
	bookY, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{AccountID: ptr(f.y), Start: ptr(jan(1)), End: ptr(jan(31))})
	require.NoError(t, err)
	assert.True(t, bookY.ClosingBalance.Equal(dec("500")))
	bookX, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{AccountID: ptr(f.x), Start: ptr(jan(1)), End: ptr(jan(31))})
	require.NoError(t, err)
	assert.Len(t, bookX.Entries, 1)
	assert.True(t, bookX.ClosingBalance.IsZero())

	f.assertNoDrift(t)
}

func TestReceiptNumber_KeptWhenDateMovesMonth(t *testing.T) {
	f := newFixture(t, false)
	r, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", jan(31), f.x))
	require.NoError(t, err)

	p, err := f.svc.UpdateInboundPayment(f.ctx, r.PaymentID, ledger.InboundUpdate{Date: ptr(ledger.NewDate(2024, time.February, 1))})
	require.NoError(t, err)
	assert.Equal(t, "RC-202401-0001", p.ReceiptNumber)

	// A new February payment starts February's sequence
	feb, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", ledger.NewDate(2024, time.February, 2), f.x))
	require.NoError(t, err)
	assert.Equal(t, "RC-202402-0001", feb.ReceiptNumber)
}

func TestReceiptNumber_OutboundHasOwnSequence(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(2), f.x))
	require.NoError(t, err)

	r, err := f.svc.RecordOutboundPayment(f.ctx, f.outbound("100", jan(3), f.x))
	require.NoError(t, err)
	assert.Equal(t, "PY-202401-0001", r.ReceiptNumber)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRecordInbound_ValidationLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name  string
		in    func(f *fixture) ledger.InboundInput
		field string
	}{
		{"zero amount", func(f *fixture) ledger.InboundInput { return f.inbound("0", jan(1), f.x) }, "amount"},
		{"negative amount", func(f *fixture) ledger.InboundInput { return f.inbound("-5", jan(1), f.x) }, "amount"},
		{"three decimals", func(f *fixture) ledger.InboundInput { return f.inbound("1.005", jan(1), f.x) }, "amount"},
		{"missing date", func(f *fixture) ledger.InboundInput { return f.inbound("10", ledger.Date{}, f.x) }, "payment_date"},
		{"missing account", func(f *fixture) ledger.InboundInput { return f.inbound("10", jan(1), 0) }, "account_id"},
		{"unknown account", func(f *fixture) ledger.InboundInput { return f.inbound("10", jan(1), 99) }, "account_id"},
		{"no payer", func(f *fixture) ledger.InboundInput {
			in := f.inbound("10", jan(1), f.x)
			in.Payer = nil
			return in
		}, "payer"},
		{"blank manual payer", func(f *fixture) ledger.InboundInput {
			in := f.inbound("10", jan(1), f.x)
			in.Payer = ledger.Manual{Name: "  "}
			return in
		}, "payer_name"},
		{"bad method", func(f *fixture) ledger.InboundInput {
			in := f.inbound("10", jan(1), f.x)
			in.Method = "barter"
			return in
		}, "payment_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)

			_, err := f.svc.RecordInboundPayment(f.ctx, tt.in(f))

			require.ErrorIs(t, err, ledger.ErrValidation)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, len(verr.Fields))
			for i, fe := range verr.Fields {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.field)

			payments, err := f.svc.ListInboundPayments(f.ctx, ledger.PaymentFilter{})
			require.NoError(t, err)
			assert.Empty(t, payments)
			f.assertBalance(t, f.x, "0")
		})
	}
}

func TestRecordInbound_InactiveAccountRejected(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.SetAccountActive(f.ctx, f.x, false)
	require.NoError(t, err)

	_, err = f.svc.RecordInboundPayment(f.ctx, f.inbound("10", jan(1), f.x))

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecordInbound_UnknownMemberIsNotFound(t *testing.T) {
	f := newFixture(t, false)
	in := f.inbound("10", jan(1), f.x)
	in.Payer = ledger.Linked{ID: 42}

	_, err := f.svc.RecordInboundPayment(f.ctx, in)

	assert.ErrorIs(t, err, ledger.ErrNotFound)
	f.assertBalance(t, f.x, "0")
}

func TestRecordInbound_UnknownRevenueTypeIsNotFound(t *testing.T) {
	f := newFixture(t, false)
	in := f.inbound("10", jan(1), f.x)
	in.RevenueTypeID = 77

	_, err := f.svc.RecordInboundPayment(f.ctx, in)

	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRecordOutbound_MobileNotAllowed(t *testing.T) {
	f := newFixture(t, false)
	in := f.outbound("10", jan(1), f.x)
	in.Method = ledger.MethodMobile

	_, err := f.svc.RecordOutboundPayment(f.ctx, in)

	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestRecordOutbound_InsufficientBalance(t *testing.T) {
	// GIVEN: X holds 100
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", jan(1), f.x))
	require.NoError(t, err)

	// WHEN: paying out 150
	_, err = f.svc.RecordOutboundPayment(f.ctx, f.outbound("150", jan(2), f.x))

	// THEN: rejected with the shortage, nothing written
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.True(t, ledger.IsClientError(err))
	var short *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.True(t, short.Available.Equal(dec("100")))
	assert.True(t, short.Requested.Equal(dec("150")))

	out, err := f.svc.ListOutboundPayments(f.ctx, ledger.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, out)
	f.assertBalance(t, f.x, "100")
}

func TestRecordOutbound_DuplicateInvoiceRef(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)

	in := f.outbound("100", jan(2), f.x)
	in.InvoiceRef = "INV-001"
	_, err = f.svc.RecordOutboundPayment(f.ctx, in)
	require.NoError(t, err)

	_, err = f.svc.RecordOutboundPayment(f.ctx, in)

	assert.ErrorIs(t, err, ledger.ErrUniqueness)
	var uerr *ledger.UniquenessError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "invoice_ref", uerr.Field)
	f.assertBalance(t, f.x, "900")
}

func TestUpdateOutbound_KeepsOwnInvoiceRef(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)
	in := f.outbound("100", jan(2), f.x)
	in.InvoiceRef = "INV-001"
	r, err := f.svc.RecordOutboundPayment(f.ctx, in)
	require.NoError(t, err)

	_, err = f.svc.UpdateOutboundPayment(f.ctx, r.PaymentID, ledger.OutboundUpdate{InvoiceRef: ptr("INV-001"), Reason: ptr("Posters")})

	assert.NoError(t, err)
}

// =============================================================================
// OUTBOUND BALANCE MODES
// =============================================================================

func TestOutbound_DefaultModeAppliesDelta(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)

	r, err := f.svc.RecordOutboundPayment(f.ctx, f.outbound("300", jan(2), f.x))
	require.NoError(t, err)
	f.assertBalance(t, f.x, "700")

	_, err = f.svc.UpdateOutboundPayment(f.ctx, r.PaymentID, ledger.OutboundUpdate{Amount: ptr(dec("350"))})
	require.NoError(t, err)
	f.assertBalance(t, f.x, "650")

	_, err = f.svc.UpdateOutboundPayment(f.ctx, r.PaymentID, ledger.OutboundUpdate{AccountID: ptr(f.y)})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance, "Y is empty")

	require.NoError(t, f.svc.DeleteOutboundPayment(f.ctx, r.PaymentID))
	f.assertBalance(t, f.x, "1000")
	f.assertNoDrift(t)
}

func TestOutbound_LegacyModeDoubleDebitsEdits(t *testing.T) {
	// GIVEN: legacy mode, X holds 1000 and a 300 payment has been made
	f := newFixture(t, true)
	require.True(t, f.svc.LegacyOutboundRedebit())
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)
	r, err := f.svc.RecordOutboundPayment(f.ctx, f.outbound("300", jan(2), f.x))
	require.NoError(t, err)
	f.assertBalance(t, f.x, "700")

	// WHEN: editing only the reason
	_, err = f.svc.UpdateOutboundPayment(f.ctx, r.PaymentID, ledger.OutboundUpdate{Reason: ptr("Posters")})
	require.NoError(t, err)

	// THEN: the amount is debited a second time
	f.assertBalance(t, f.x, "400")

	// AND: deleting does not credit anything back
	require.NoError(t, f.svc.DeleteOutboundPayment(f.ctx, r.PaymentID))
	f.assertBalance(t, f.x, "400")

	sheet, err := f.svc.AccountBalances(f.ctx)
	require.NoError(t, err)
	assert.True(t, sheet.HasDrift(), "legacy edits leave the stored balance behind the history")
}

func TestRecordOutbound_NewSupplierCreatedInSameUnit(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)

	in := f.outbound("200", jan(2), f.x)
	in.Payee = ledger.NewSupplier{SupplierInput: ledger.SupplierInput{Name: "Hall Hire Ltd", Contact: "0700", SupplierCode: "SUP-1"}}
	r, err := f.svc.RecordOutboundPayment(f.ctx, in)
	require.NoError(t, err)

	suppliers, err := f.svc.ListSuppliers(f.ctx)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)

	p, err := f.svc.GetOutboundPayment(f.ctx, r.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Linked{ID: int64(suppliers[0].ID)}, p.Payee)
	assert.Equal(t, "Hall Hire Ltd", p.PayeeName)

	// A second payment to a supplier with the same code fails as a whole
	in.Amount = dec("10")
	_, err = f.svc.RecordOutboundPayment(f.ctx, in)
	assert.ErrorIs(t, err, ledger.ErrUniqueness)
	f.assertBalance(t, f.x, "800")
}

// =============================================================================
// ATOMICITY
// =============================================================================

var errDisk = errors.New("disk full")

// failingStore wraps the memory store and fails one Store method inside
// atomic units.
type failingStore struct {
	*store.Memory
	failOn string
}

func (s *failingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return s.Memory.WithTx(ctx, func(st ledger.Store) error {
		return fn(&failingTx{Store: st, failOn: s.failOn})
	})
}

type failingTx struct {
	ledger.Store
	failOn string
}

func (s *failingTx) UpdateAccount(ctx context.Context, a ledger.Account) error {
	if s.failOn == "UpdateAccount" {
		return errDisk
	}
	return s.Store.UpdateAccount(ctx, a)
}

func (s *failingTx) CreateInbound(ctx context.Context, p *ledger.InboundPayment) error {
	if s.failOn == "CreateInbound" {
		return errDisk
	}
	return s.Store.CreateInbound(ctx, p)
}

func (s *failingTx) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	if s.failOn == "AppendAudit" {
		return errDisk
	}
	return s.Store.AppendAudit(ctx, e)
}

func TestRecordInbound_StorageFailureRollsBack(t *testing.T) {
	for _, failOn := range []string{"UpdateAccount", "AppendAudit"} {
		t.Run(failOn, func(t *testing.T) {
			// GIVEN: a store that fails mid-unit
			mem := store.NewMemory()
			fs := &failingStore{Memory: mem}
			f := newFixtureOn(t, fs, mem, false)
			fs.failOn = failOn

			// WHEN: recording a payment
			_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("250", jan(5), f.x))

			// THEN: a generic failure, and neither the row nor the balance changed
			require.ErrorIs(t, err, ledger.ErrOperationFailed)
			assert.False(t, ledger.IsClientError(err))

			payments, err := mem.ListInbound(f.ctx, ledger.PaymentFilter{})
			require.NoError(t, err)
			assert.Empty(t, payments)
			acct, err := mem.GetAccount(f.ctx, f.x)
			require.NoError(t, err)
			assert.True(t, acct.Balance.IsZero())
		})
	}
}

func TestRegisterMember_WithFee(t *testing.T) {
	f := newFixture(t, false)

	member, receipt, err := f.svc.RegisterMember(f.ctx, ledger.MemberInput{
		Name: "Jane Doe", RID: "R-100", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi",
	}, &ledger.RegistrationFee{
		RevenueTypeID: f.dues, Amount: dec("1000"), Date: jan(3), Method: ledger.MethodMobile, AccountID: f.y,
	})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, ledger.ClubRotaract, member.Club, "club defaults to rotaract")
	assert.Equal(t, "RC-202401-0001", receipt.ReceiptNumber)
	f.assertBalance(t, f.y, "1000")

	p, err := f.svc.GetInboundPayment(f.ctx, receipt.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Linked{ID: int64(member.ID)}, p.Payer)
	assert.Equal(t, "Jane Doe", p.PayerName)
	assert.Equal(t, "treasurer@club", p.CreatedBy)
}

func TestRegisterMember_FeeFailureCreatesNeither(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.SetAccountActive(f.ctx, f.y, false)
	require.NoError(t, err)

	// WHEN: the fee targets an inactive account
	_, _, err = f.svc.RegisterMember(f.ctx, ledger.MemberInput{
		Name: "Jane Doe", RID: "R-100", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi",
	}, &ledger.RegistrationFee{
		RevenueTypeID: f.dues, Amount: dec("1000"), Date: jan(3), Method: ledger.MethodCash, AccountID: f.y,
	})

	// THEN: no member and no payment
	require.ErrorIs(t, err, ledger.ErrValidation)
	members, err := f.svc.ListMembers(f.ctx, ledger.MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)
	payments, err := f.svc.ListInboundPayments(f.ctx, ledger.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRegisterMember_StorageFailureCreatesNeither(t *testing.T) {
	mem := store.NewMemory()
	fs := &failingStore{Memory: mem}
	f := newFixtureOn(t, fs, mem, false)
	fs.failOn = "CreateInbound"

	_, _, err := f.svc.RegisterMember(f.ctx, ledger.MemberInput{
		Name: "Jane Doe", RID: "R-100", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi",
	}, &ledger.RegistrationFee{
		RevenueTypeID: f.dues, Amount: dec("1000"), Date: jan(3), Method: ledger.MethodCash, AccountID: f.x,
	})

	require.ErrorIs(t, err, ledger.ErrOperationFailed)
	members, err := mem.ListMembers(f.ctx, ledger.MemberFilter{})
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCreateMember_Validation(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.CreateMember(f.ctx, ledger.MemberInput{Name: "X", RID: "R", Contact: "1", Email: "not-an-email", Residence: "Y", Club: "chess"})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["club"])
}

func TestCreateMember_DuplicateEmail(t *testing.T) {
	f := newFixture(t, false)
	in := ledger.MemberInput{Name: "Jane", RID: "R-1", Contact: "1", Email: "jane@example.com", Residence: "Nairobi"}
	_, err := f.svc.CreateMember(f.ctx, in)
	require.NoError(t, err)

	in.RID = "R-2"
	in.Email = "JANE@example.com"
	_, err = f.svc.CreateMember(f.ctx, in)

	assert.ErrorIs(t, err, ledger.ErrUniqueness)
}

func TestDeleteMember_KeepsPaymentsAsManualPayer(t *testing.T) {
	f := newFixture(t, false)
	member, err := f.svc.CreateMember(f.ctx, ledger.MemberInput{Name: "Jane", RID: "R-1", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi"})
	require.NoError(t, err)
	in := f.inbound("500", jan(4), f.x)
	in.Payer = ledger.Linked{ID: int64(member.ID)}
	r, err := f.svc.RecordInboundPayment(f.ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMember(f.ctx, member.ID))

	_, err = f.svc.GetMember(f.ctx, member.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	p, err := f.svc.GetInboundPayment(f.ctx, r.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Manual{Name: "Jane", Contact: "0711", Email: "jane@example.com"}, p.Payer)
	f.assertBalance(t, f.x, "500")
}

// =============================================================================
// BALANCES, SEED, AUDIT
// =============================================================================

func TestAccountBalances_NoDriftAfterMixedOperations(t *testing.T) {
	f := newFixture(t, false)
	a, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("1000", jan(1), f.x))
	require.NoError(t, err)
	_, err = f.svc.RecordInboundPayment(f.ctx, f.inbound("250.25", jan(2), f.y))
	require.NoError(t, err)
	o, err := f.svc.RecordOutboundPayment(f.ctx, f.outbound("99.99", jan(3), f.x))
	require.NoError(t, err)
	_, err = f.svc.UpdateInboundPayment(f.ctx, a.PaymentID, ledger.InboundUpdate{Amount: ptr(dec("900")), AccountID: ptr(f.y)})
	require.NoError(t, err)
	_, err = f.svc.UpdateOutboundPayment(f.ctx, o.PaymentID, ledger.OutboundUpdate{AccountID: ptr(f.y), Amount: ptr(dec("100"))})
	require.NoError(t, err)

	sheet, err := f.svc.AccountBalances(f.ctx)
	require.NoError(t, err)
	assert.False(t, sheet.HasDrift())
	assert.True(t, sheet.TotalActive.Equal(dec("1050.25")))
	f.assertBalance(t, f.x, "0")
	f.assertBalance(t, f.y, "1050.25")
}

func TestCashbook_DefaultsToCurrentMonth(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", jan(20), f.x))
	require.NoError(t, err)
	_, err = f.svc.RecordInboundPayment(f.ctx, f.inbound("40", ledger.NewDate(2024, time.February, 5), f.x))
	require.NoError(t, err)
	_, err = f.svc.RecordInboundPayment(f.ctx, f.inbound("7", ledger.NewDate(2024, time.February, 11), f.x))
	require.NoError(t, err)

	book, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{})
	require.NoError(t, err)

	// fixedNow is 2024-02-10: January is opening, the 11th is in the future
	assert.Equal(t, "2024-02-01", book.Range.Start.String())
	assert.Equal(t, "2024-02-10", book.Range.End.String())
	assert.True(t, book.OpeningBalance.Equal(dec("100")))
	assert.Len(t, book.Entries, 2)
	assert.True(t, book.ClosingBalance.Equal(dec("140")))
}

func TestCashbook_UnknownAccount(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{AccountID: ptr(ledger.AccountID(99))})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCashbook_ReversedRangeIsEmpty(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", jan(15), f.x))
	require.NoError(t, err)

	book, err := f.svc.Cashbook(f.ctx, ledger.CashbookQuery{Start: ptr(jan(31)), End: ptr(jan(1))})
	require.NoError(t, err)

	assert.Len(t, book.Entries, 1)
	assert.True(t, book.ClosingBalance.Equal(book.OpeningBalance))
}

func TestSeed_Idempotent(t *testing.T) {
	svc := ledger.NewService(store.NewMemory(), ledger.Options{})
	ctx := context.Background()

	first, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Len(t, first.RevenueTypes, len(ledger.DefaultRevenueTypes))
	assert.Len(t, first.Accounts, len(ledger.DefaultAccounts))

	second, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.RevenueTypes)
	assert.Empty(t, second.Accounts)

	types, err := svc.ListRevenueTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(ledger.DefaultRevenueTypes))
}

func TestAuditLog_RecordsActorAndAction(t *testing.T) {
	f := newFixture(t, false)
	r, err := f.svc.RecordInboundPayment(f.ctx, f.inbound("100", jan(1), f.x))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteInboundPayment(f.ctx, r.PaymentID))

	id := int64(r.PaymentID)
	entries, err := f.svc.AuditLog(f.ctx, ledger.AuditFilter{ObjectType: ledger.ObjectInboundPayment, ObjectID: &id})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, ledger.AuditDelete, entries[0].Action, "newest first")
	assert.Equal(t, ledger.AuditCreate, entries[1].Action)
	assert.Equal(t, "treasurer@club", entries[1].Actor)
	assert.Contains(t, entries[1].Description, "RC-202401-0001")
	assert.NotEmpty(t, entries[1].ID)
}

func TestAuditLog_FailedOperationWritesNothing(t *testing.T) {
	f := newFixture(t, false)
	before, err := f.svc.AuditLog(f.ctx, ledger.AuditFilter{})
	require.NoError(t, err)

	_, err = f.svc.RecordOutboundPayment(f.ctx, f.outbound("10", jan(1), f.x))
	require.Error(t, err)

	after, err := f.svc.AuditLog(f.ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}
