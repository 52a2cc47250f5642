package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(t *testing.T, store *Store) *ledger.Service {
	t.Helper()
	return ledger.NewService(store, ledger.Options{
		Now: func() time.Time { return time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC) },
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func jan(d int) ledger.Date { return ledger.NewDate(2024, time.January, d) }

func TestStore_PaymentLifecycle(t *testing.T) {
	// GIVEN: a seeded SQLite ledger
	ctx := ledger.WithActor(context.Background(), "alice")
	store := newTestStore(t)
	svc := newTestService(t, store)
	_, err := svc.Seed(ctx)
	require.NoError(t, err)

	accounts, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	cash := accounts[0].ID
	types, err := svc.ListRevenueTypes(ctx)
	require.NoError(t, err)

	member, err := svc.CreateMember(ctx, ledger.MemberInput{
		Name: "Jane Doe", RID: "R-1", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi",
	})
	require.NoError(t, err)

	// WHEN: recording, editing and paying out
	r1, err := svc.RecordInboundPayment(ctx, ledger.InboundInput{
		Payer: ledger.Linked{ID: int64(member.ID)}, RevenueTypeID: types[0].ID,
		Amount: dec("1000"), Date: jan(15), Method: ledger.MethodCash, AccountID: cash,
	})
	require.NoError(t, err)
	r2, err := svc.RecordInboundPayment(ctx, ledger.InboundInput{
		Payer: ledger.Manual{Name: "Guest", Email: "g@example.com"}, RevenueTypeID: types[0].ID,
		Amount: dec("500.50"), Date: jan(16), Method: ledger.MethodCheque, AccountID: cash,
	})
	require.NoError(t, err)
	amount := dec("1200")
	_, err = svc.UpdateInboundPayment(ctx, r1.PaymentID, ledger.InboundUpdate{Amount: &amount})
	require.NoError(t, err)
	out, err := svc.RecordOutboundPayment(ctx, ledger.OutboundInput{
		Payee:  ledger.NewSupplier{SupplierInput: ledger.SupplierInput{Name: "Venue", Contact: "0722", SupplierCode: "S-1"}},
		Reason: "Hall hire", ExpenseCategory: "Events", InvoiceRef: "INV-7",
		Amount: dec("300"), Date: jan(20), Method: ledger.MethodBank, AccountID: cash,
	})
	require.NoError(t, err)

	// THEN: numbers, balances and rows persist as expected
	assert.Equal(t, "RC-202401-0001", r1.ReceiptNumber)
	assert.Equal(t, "RC-202401-0002", r2.ReceiptNumber)
	assert.Equal(t, "PY-202401-0001", out.ReceiptNumber)

	acct, err := svc.GetAccount(ctx, cash)
	require.NoError(t, err)
	assert.Equal(t, "1400.50", acct.Balance.StringFixed(2))

	p, err := svc.GetInboundPayment(ctx, r2.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Manual{Name: "Guest", Email: "g@example.com"}, p.Payer)
	assert.Equal(t, "2024-01-16", p.Date.String())
	assert.Equal(t, "alice", p.CreatedBy)

	o, err := svc.GetOutboundPayment(ctx, out.PaymentID)
	require.NoError(t, err)
	assert.IsType(t, ledger.Linked{}, o.Payee)
	assert.Equal(t, "Venue", o.PayeeName)
	assert.Equal(t, "INV-7", o.InvoiceRef)

	sheet, err := svc.AccountBalances(ctx)
	require.NoError(t, err)
	assert.False(t, sheet.HasDrift())

	book, err := svc.Cashbook(ctx, ledger.CashbookQuery{AccountID: &cash})
	require.NoError(t, err)
	assert.Len(t, book.Entries, 4)
	assert.Equal(t, "1400.50", book.ClosingBalance.StringFixed(2))
}

func TestStore_UniqueViolationsMapToLedgerErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.CreateMember(ctx, &ledger.Member{Name: "A", RID: "R1", Email: "a@example.com", Club: ledger.ClubRotaract}))

	err := store.CreateMember(ctx, &ledger.Member{Name: "B", RID: "R2", Email: "A@EXAMPLE.COM", Club: ledger.ClubRotaract})
	var uerr *ledger.UniquenessError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "email", uerr.Field)

	err = store.CreateMember(ctx, &ledger.Member{Name: "C", RID: "R1", Email: "c@example.com", Club: ledger.ClubRotaract})
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "rid", uerr.Field)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acct := ledger.Account{Name: "Cash", Type: ledger.AccountCash, Balance: decimal.Zero, Active: true}
	require.NoError(t, store.CreateAccount(ctx, &acct))

	err := store.WithTx(ctx, func(st ledger.Store) error {
		acct.Balance = dec("99")
		if err := st.UpdateAccount(ctx, acct); err != nil {
			return err
		}
		return &ledger.NotFoundError{Kind: "test", ID: 1}
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestStore_DeleteMemberKeepsPayments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := newTestService(t, store)
	_, err := svc.Seed(ctx)
	require.NoError(t, err)
	accounts, err := svc.ListAccounts(ctx)
	require.NoError(t, err)
	types, err := svc.ListRevenueTypes(ctx)
	require.NoError(t, err)

	member, receipt, err := svc.RegisterMember(ctx, ledger.MemberInput{
		Name: "Jane Doe", RID: "R-1", Contact: "0711", Email: "jane@example.com", Residence: "Nairobi",
	}, &ledger.RegistrationFee{
		RevenueTypeID: types[0].ID, Amount: dec("1000"), Date: jan(3), Method: ledger.MethodCash, AccountID: accounts[0].ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMember(ctx, member.ID))

	p, err := svc.GetInboundPayment(ctx, receipt.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Manual{Name: "Jane Doe", Contact: "0711", Email: "jane@example.com"}, p.Payer)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := New(path)
	require.NoError(t, err)
	acct := ledger.Account{Name: "Cash", Type: ledger.AccountCash, Balance: dec("12.34"), Active: true}
	require.NoError(t, store.CreateAccount(ctx, &acct))
	require.NoError(t, store.Close())

	store, err = New(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "12.34", got.Balance.StringFixed(2))
}

func TestStore_LastReceiptNumber(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	acct := ledger.Account{Name: "Cash", Type: ledger.AccountCash, Balance: decimal.Zero, Active: true}
	require.NoError(t, store.CreateAccount(ctx, &acct))
	rt := ledger.RevenueType{Name: "Dues", DefaultAmount: decimal.Zero, Active: true}
	require.NoError(t, store.CreateRevenueType(ctx, &rt))

	for _, n := range []string{"RC-202401-0003", "RC-202401-0001"} {
		require.NoError(t, store.CreateInbound(ctx, &ledger.InboundPayment{
			Payer: ledger.Manual{Name: "x"}, PayerName: "x", RevenueTypeID: rt.ID, Amount: dec("1"),
			Date: jan(1), Method: ledger.MethodCash, AccountID: acct.ID, ReceiptNumber: n,
		}))
	}

	last, ok, err := store.LastReceiptNumber(ctx, ledger.KindInbound, "RC-202401-")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "RC-202401-0001", last)

	next, err := ledger.NextReceiptNumber(ctx, store, ledger.KindInbound, jan(9))
	require.NoError(t, err)
	assert.Equal(t, "RC-202401-0002", next)
}

func TestStore_TimestampsKeepSubSecondPrecision(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	created := time.Date(2024, time.January, 31, 10, 0, 0, 250_000_000, time.UTC)

	m := ledger.Member{Name: "Jane", RID: "R-9", Contact: "0711", Email: "jane@example.com",
		Residence: "Nairobi", Club: ledger.ClubRotaract, CreatedAt: created}
	require.NoError(t, store.CreateMember(ctx, &m))

	got, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.CreatedAt.Equal(created), "got %s", got.CreatedAt)
}
