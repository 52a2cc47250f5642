/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists accounts, payments, reference data and the audit log with
  database/sql and mattn/go-sqlite3. Every payment mutation runs in one
  SQL transaction through WithTx, so the payment row and the account
  balance are committed together or not at all.

KEY TABLES:
  accounts:          Money pools with their stored balance
  members:           Payers (rid and email unique)
  suppliers:         Payees (supplier_code unique)
  revenue_types:     Inbound categories with default amounts
  inbound_payments:  Money in (receipt_number unique)
  outbound_payments: Money out (receipt_number unique, invoice_ref unique when set)
  audit_log:         Who changed what, newest last

STORAGE FORMATS:
  Amounts:    TEXT decimal strings ("1500.00"), summed in Go with decimal
  Dates:      TEXT YYYY-MM-DD, so lexical order is date order
  Timestamps: TEXT RFC3339 UTC with fractional seconds (cashbook ties
              on one day break on created_at)
  IDs:        INTEGER AUTOINCREMENT, never reused, so id order is
              insertion order (the receipt generator relies on this)

CONCURRENCY:
  The pool is limited to one connection and WithTx holds a mutex, so
  atomic units are serialized and the balance read-modify-write inside a
  unit can't interleave with another unit. This also lets ":memory:"
  databases work across calls.

USAGE:
  store, err := sqlite.New("./clubledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, ledger.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/club-ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.TxStore using SQLite.
type Store struct {
	rows
	db *sql.DB
	mu sync.Mutex
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{rows: rows{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_number TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0.00',
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		rid TEXT NOT NULL UNIQUE,
		contact TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		residence TEXT NOT NULL,
		club TEXT NOT NULL,
		other_club_name TEXT NOT NULL DEFAULT '',
		buddy_group TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_members_name ON members(name);

	CREATE TABLE IF NOT EXISTS suppliers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		contact TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		bank_details TEXT NOT NULL DEFAULT '',
		supplier_code TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS revenue_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount_default TEXT NOT NULL DEFAULT '0.00',
		is_active INTEGER NOT NULL DEFAULT 1
	);

	-- Money in. payer_member_id NULL means a manual payer.
	CREATE TABLE IF NOT EXISTS inbound_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payer_member_id INTEGER REFERENCES members(id) ON DELETE SET NULL,
		payer_name TEXT NOT NULL,
		payer_contact TEXT NOT NULL DEFAULT '',
		payer_email TEXT NOT NULL DEFAULT '',
		revenue_type_id INTEGER NOT NULL REFERENCES revenue_types(id),
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		receipt_number TEXT NOT NULL UNIQUE,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_inbound_account_date
		ON inbound_payments(account_id, payment_date, id);
	CREATE INDEX IF NOT EXISTS idx_inbound_date
		ON inbound_payments(payment_date, id);
	CREATE INDEX IF NOT EXISTS idx_inbound_member
		ON inbound_payments(payer_member_id) WHERE payer_member_id IS NOT NULL;

	-- Money out. payee_supplier_id NULL means a manual payee.
	-- invoice_ref is NULL when not given, so the UNIQUE only binds real refs.
	CREATE TABLE IF NOT EXISTS outbound_payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payee_supplier_id INTEGER REFERENCES suppliers(id) ON DELETE SET NULL,
		payee_name TEXT NOT NULL,
		payee_contact TEXT NOT NULL DEFAULT '',
		payee_email TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		expense_category TEXT NOT NULL,
		invoice_ref TEXT UNIQUE,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		receipt_number TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_outbound_account_date
		ON outbound_payments(account_id, payment_date, id);
	CREATE INDEX IF NOT EXISTS idx_outbound_date
		ON outbound_payments(payment_date, id);
	CREATE INDEX IF NOT EXISTS idx_outbound_supplier
		ON outbound_payments(payee_supplier_id) WHERE payee_supplier_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_object ON audit_log(object_type, object_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&rows{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rows implements ledger.Store on top of a querier. The Store uses it with
// the pool, WithTx with the open transaction.
type rows struct {
	q querier
}

var _ ledger.Store = (*rows)(nil)

// =============================================================================
// ACCOUNTS
// =============================================================================

func (r *rows) CreateAccount(ctx context.Context, a *ledger.Account) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (name, account_type, account_number, bank_name, balance, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Name, a.Type, a.AccountNumber, a.BankName, formatAmount(a.Balance), a.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = ledger.AccountID(id)
	return nil
}

const accountColumns = `id, name, account_type, account_number, bank_name, balance, is_active`

func (r *rows) GetAccount(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *rows) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rs, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.Account
	for rs.Next() {
		a, err := scanAccount(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rs.Err()
}

func (r *rows) UpdateAccount(ctx context.Context, a ledger.Account) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, account_type = ?, account_number = ?, bank_name = ?, balance = ?, is_active = ?
		WHERE id = ?`,
		a.Name, a.Type, a.AccountNumber, a.BankName, formatAmount(a.Balance), a.Active, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, ledger.ObjectAccount, int64(a.ID))
}

func scanAccount(sc scanner) (ledger.Account, error) {
	var (
		a       ledger.Account
		balance string
	)
	if err := sc.Scan(&a.ID, &a.Name, &a.Type, &a.AccountNumber, &a.BankName, &balance, &a.Active); err != nil {
		return ledger.Account{}, err
	}
	a.Balance = ledger.MustParseDecimal(balance)
	return a, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (r *rows) CreateMember(ctx context.Context, m *ledger.Member) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO members
		(name, rid, contact, email, residence, club, other_club_name, buddy_group, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.RID, m.Contact, m.Email, m.Residence, m.Club, m.OtherClubName, m.BuddyGroup,
		formatTime(m.CreatedAt), m.CreatedBy,
	)
	if err != nil {
		if uerr := uniqueness(err, map[string]string{"members.rid": m.RID, "members.email": m.Email}); uerr != nil {
			return uerr
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = ledger.MemberID(id)
	return nil
}

const memberColumns = `id, name, rid, contact, email, residence, club, other_club_name, buddy_group, created_at, created_by`

func (r *rows) GetMember(ctx context.Context, id ledger.MemberID) (*ledger.Member, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *rows) ListMembers(ctx context.Context, f ledger.MemberFilter) ([]ledger.Member, error) {
	var (
		where []string
		args  []any
	)
	if f.Name != "" {
		where = append(where, `name LIKE '%' || ? || '%'`)
		args = append(args, f.Name)
	}
	if f.RID != "" {
		where = append(where, `rid LIKE '%' || ? || '%'`)
		args = append(args, f.RID)
	}
	if f.BuddyGroup != "" {
		where = append(where, `buddy_group LIKE '%' || ? || '%'`)
		args = append(args, f.BuddyGroup)
	}
	if f.Club != "" {
		where = append(where, `club = ?`)
		args = append(args, f.Club)
	}

	rs, err := r.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members`+whereClause(where)+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.Member
	for rs.Next() {
		m, err := scanMember(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rs.Err()
}

func (r *rows) DeleteMember(ctx context.Context, id ledger.MemberID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

func (r *rows) UnlinkMemberPayments(ctx context.Context, id ledger.MemberID) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE inbound_payments SET
			payer_contact = COALESCE((SELECT contact FROM members WHERE id = ?), payer_contact),
			payer_email = COALESCE((SELECT email FROM members WHERE id = ?), payer_email),
			payer_member_id = NULL
		WHERE payer_member_id = ?`, id, id, id)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink member payments: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanMember(sc scanner) (ledger.Member, error) {
	var (
		m         ledger.Member
		createdAt string
	)
	if err := sc.Scan(&m.ID, &m.Name, &m.RID, &m.Contact, &m.Email, &m.Residence, &m.Club,
		&m.OtherClubName, &m.BuddyGroup, &createdAt, &m.CreatedBy); err != nil {
		return ledger.Member{}, err
	}
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// =============================================================================
// SUPPLIERS
// =============================================================================

func (r *rows) CreateSupplier(ctx context.Context, s *ledger.Supplier) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO suppliers
		(name, contact, email, address, bank_details, supplier_code, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Contact, s.Email, s.Address, s.BankDetails, s.SupplierCode,
		formatTime(s.CreatedAt), s.CreatedBy,
	)
	if err != nil {
		if uerr := uniqueness(err, map[string]string{"suppliers.supplier_code": s.SupplierCode}); uerr != nil {
			return uerr
		}
		return fmt.Errorf("failed to create supplier: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = ledger.SupplierID(id)
	return nil
}

const supplierColumns = `id, name, contact, email, address, bank_details, supplier_code, created_at, created_by`

func (r *rows) GetSupplier(ctx context.Context, id ledger.SupplierID) (*ledger.Supplier, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`, id)
	s, err := scanSupplier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *rows) ListSuppliers(ctx context.Context) ([]ledger.Supplier, error) {
	rs, err := r.q.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.Supplier
	for rs.Next() {
		s, err := scanSupplier(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rs.Err()
}

func scanSupplier(sc scanner) (ledger.Supplier, error) {
	var (
		s         ledger.Supplier
		createdAt string
	)
	if err := sc.Scan(&s.ID, &s.Name, &s.Contact, &s.Email, &s.Address, &s.BankDetails,
		&s.SupplierCode, &createdAt, &s.CreatedBy); err != nil {
		return ledger.Supplier{}, err
	}
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}

// =============================================================================
// REVENUE TYPES
// =============================================================================

func (r *rows) CreateRevenueType(ctx context.Context, rt *ledger.RevenueType) error {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO revenue_types (name, description, amount_default, is_active)
		VALUES (?, ?, ?, ?)`,
		rt.Name, rt.Description, formatAmount(rt.DefaultAmount), rt.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create revenue type: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = ledger.RevenueTypeID(id)
	return nil
}

const revenueTypeColumns = `id, name, description, amount_default, is_active`

func (r *rows) GetRevenueType(ctx context.Context, id ledger.RevenueTypeID) (*ledger.RevenueType, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+revenueTypeColumns+` FROM revenue_types WHERE id = ?`, id)
	rt, err := scanRevenueType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *rows) ListRevenueTypes(ctx context.Context) ([]ledger.RevenueType, error) {
	rs, err := r.q.QueryContext(ctx, `SELECT `+revenueTypeColumns+` FROM revenue_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.RevenueType
	for rs.Next() {
		rt, err := scanRevenueType(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rs.Err()
}

func scanRevenueType(sc scanner) (ledger.RevenueType, error) {
	var (
		rt     ledger.RevenueType
		amount string
	)
	if err := sc.Scan(&rt.ID, &rt.Name, &rt.Description, &amount, &rt.Active); err != nil {
		return ledger.RevenueType{}, err
	}
	rt.DefaultAmount = ledger.MustParseDecimal(amount)
	return rt, nil
}

// =============================================================================
// INBOUND PAYMENTS
// =============================================================================

func (r *rows) CreateInbound(ctx context.Context, p *ledger.InboundPayment) error {
	memberID, contact, email := partyColumns(p.Payer)
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO inbound_payments
		(payer_member_id, payer_name, payer_contact, payer_email, revenue_type_id, amount,
		 payment_date, payment_method, account_id, receipt_number, notes, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		memberID, p.PayerName, contact, email, p.RevenueTypeID, formatAmount(p.Amount),
		p.Date.String(), p.Method, p.AccountID, p.ReceiptNumber, p.Notes,
		formatTime(p.CreatedAt), p.CreatedBy,
	)
	if err != nil {
		if uerr := uniqueness(err, map[string]string{"inbound_payments.receipt_number": p.ReceiptNumber}); uerr != nil {
			return uerr
		}
		return fmt.Errorf("failed to create inbound payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = ledger.PaymentID(id)
	return nil
}

const inboundColumns = `id, payer_member_id, payer_name, payer_contact, payer_email, revenue_type_id,
	amount, payment_date, payment_method, account_id, receipt_number, notes, created_at, created_by`

func (r *rows) GetInbound(ctx context.Context, id ledger.PaymentID) (*ledger.InboundPayment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+inboundColumns+` FROM inbound_payments WHERE id = ?`, id)
	p, err := scanInbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateInbound rewrites every column except receipt_number and the
// creation metadata.
func (r *rows) UpdateInbound(ctx context.Context, p ledger.InboundPayment) error {
	memberID, contact, email := partyColumns(p.Payer)
	res, err := r.q.ExecContext(ctx, `
		UPDATE inbound_payments
		SET payer_member_id = ?, payer_name = ?, payer_contact = ?, payer_email = ?,
		    revenue_type_id = ?, amount = ?, payment_date = ?, payment_method = ?,
		    account_id = ?, notes = ?
		WHERE id = ?`,
		memberID, p.PayerName, contact, email, p.RevenueTypeID, formatAmount(p.Amount),
		p.Date.String(), p.Method, p.AccountID, p.Notes, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update inbound payment: %w", err)
	}
	return requireRow(res, ledger.ObjectInboundPayment, int64(p.ID))
}

func (r *rows) DeleteInbound(ctx context.Context, id ledger.PaymentID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM inbound_payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete inbound payment: %w", err)
	}
	return nil
}

func (r *rows) ListInbound(ctx context.Context, f ledger.PaymentFilter) ([]ledger.InboundPayment, error) {
	where, args := paymentWhere(f)
	if f.MemberID != nil {
		where = append(where, `payer_member_id = ?`)
		args = append(args, *f.MemberID)
	}
	if f.SupplierID != nil {
		return nil, nil
	}

	rs, err := r.q.QueryContext(ctx,
		`SELECT `+inboundColumns+` FROM inbound_payments`+whereClause(where)+` ORDER BY payment_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.InboundPayment
	for rs.Next() {
		p, err := scanInbound(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rs.Err()
}

func scanInbound(sc scanner) (ledger.InboundPayment, error) {
	var (
		p                                   ledger.InboundPayment
		memberID                            sql.NullInt64
		contact, email, amount, date, at string
	)
	if err := sc.Scan(&p.ID, &memberID, &p.PayerName, &contact, &email, &p.RevenueTypeID,
		&amount, &date, &p.Method, &p.AccountID, &p.ReceiptNumber, &p.Notes, &at, &p.CreatedBy); err != nil {
		return ledger.InboundPayment{}, err
	}
	p.Payer = partyFromColumns(memberID, p.PayerName, contact, email)
	p.Amount = ledger.MustParseDecimal(amount)
	d, err := ledger.ParseDate(date)
	if err != nil {
		return ledger.InboundPayment{}, err
	}
	p.Date = d
	p.CreatedAt = parseTime(at)
	return p, nil
}

// =============================================================================
// OUTBOUND PAYMENTS
// =============================================================================

func (r *rows) CreateOutbound(ctx context.Context, p *ledger.OutboundPayment) error {
	supplierID, contact, email := partyColumns(p.Payee)
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO outbound_payments
		(payee_supplier_id, payee_name, payee_contact, payee_email, reason, expense_category,
		 invoice_ref, amount, payment_date, payment_method, account_id, receipt_number,
		 created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		supplierID, p.PayeeName, contact, email, p.Reason, p.ExpenseCategory,
		nullString(p.InvoiceRef), formatAmount(p.Amount), p.Date.String(), p.Method,
		p.AccountID, p.ReceiptNumber, formatTime(p.CreatedAt), p.CreatedBy,
	)
	if err != nil {
		if uerr := uniqueness(err, map[string]string{
			"outbound_payments.receipt_number": p.ReceiptNumber,
			"outbound_payments.invoice_ref":    p.InvoiceRef,
		}); uerr != nil {
			return uerr
		}
		return fmt.Errorf("failed to create outbound payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = ledger.PaymentID(id)
	return nil
}

const outboundColumns = `id, payee_supplier_id, payee_name, payee_contact, payee_email, reason,
	expense_category, invoice_ref, amount, payment_date, payment_method, account_id,
	receipt_number, created_at, created_by`

func (r *rows) GetOutbound(ctx context.Context, id ledger.PaymentID) (*ledger.OutboundPayment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+outboundColumns+` FROM outbound_payments WHERE id = ?`, id)
	p, err := scanOutbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *rows) UpdateOutbound(ctx context.Context, p ledger.OutboundPayment) error {
	supplierID, contact, email := partyColumns(p.Payee)
	res, err := r.q.ExecContext(ctx, `
		UPDATE outbound_payments
		SET payee_supplier_id = ?, payee_name = ?, payee_contact = ?, payee_email = ?,
		    reason = ?, expense_category = ?, invoice_ref = ?, amount = ?, payment_date = ?,
		    payment_method = ?, account_id = ?
		WHERE id = ?`,
		supplierID, p.PayeeName, contact, email, p.Reason, p.ExpenseCategory,
		nullString(p.InvoiceRef), formatAmount(p.Amount), p.Date.String(), p.Method,
		p.AccountID, p.ID,
	)
	if err != nil {
		if uerr := uniqueness(err, map[string]string{"outbound_payments.invoice_ref": p.InvoiceRef}); uerr != nil {
			return uerr
		}
		return fmt.Errorf("failed to update outbound payment: %w", err)
	}
	return requireRow(res, ledger.ObjectOutboundPayment, int64(p.ID))
}

func (r *rows) DeleteOutbound(ctx context.Context, id ledger.PaymentID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM outbound_payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete outbound payment: %w", err)
	}
	return nil
}

func (r *rows) ListOutbound(ctx context.Context, f ledger.PaymentFilter) ([]ledger.OutboundPayment, error) {
	where, args := paymentWhere(f)
	if f.SupplierID != nil {
		where = append(where, `payee_supplier_id = ?`)
		args = append(args, *f.SupplierID)
	}
	if f.MemberID != nil {
		return nil, nil
	}

	rs, err := r.q.QueryContext(ctx,
		`SELECT `+outboundColumns+` FROM outbound_payments`+whereClause(where)+` ORDER BY payment_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.OutboundPayment
	for rs.Next() {
		p, err := scanOutbound(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rs.Err()
}

func (r *rows) InvoiceRefExists(ctx context.Context, ref string, exclude ledger.PaymentID) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_payments WHERE invoice_ref = ? AND id != ?`, ref, exclude,
	).Scan(&n)
	return n > 0, err
}

func scanOutbound(sc scanner) (ledger.OutboundPayment, error) {
	var (
		p                                ledger.OutboundPayment
		supplierID                       sql.NullInt64
		invoiceRef                       sql.NullString
		contact, email, amount, date, at string
	)
	if err := sc.Scan(&p.ID, &supplierID, &p.PayeeName, &contact, &email, &p.Reason,
		&p.ExpenseCategory, &invoiceRef, &amount, &date, &p.Method, &p.AccountID,
		&p.ReceiptNumber, &at, &p.CreatedBy); err != nil {
		return ledger.OutboundPayment{}, err
	}
	p.Payee = partyFromColumns(supplierID, p.PayeeName, contact, email)
	p.InvoiceRef = invoiceRef.String
	p.Amount = ledger.MustParseDecimal(amount)
	d, err := ledger.ParseDate(date)
	if err != nil {
		return ledger.OutboundPayment{}, err
	}
	p.Date = d
	p.CreatedAt = parseTime(at)
	return p, nil
}

// =============================================================================
// RECEIPT SEQUENCE (ledger.ReceiptSequence interface)
// =============================================================================

func paymentTable(kind ledger.PaymentKind) string {
	if kind == ledger.KindOutbound {
		return "outbound_payments"
	}
	return "inbound_payments"
}

// LastReceiptNumber looks at the most recently inserted row with the
// prefix only. Numbers are not parsed here.
func (r *rows) LastReceiptNumber(ctx context.Context, kind ledger.PaymentKind, prefix string) (string, bool, error) {
	var number string
	err := r.q.QueryRowContext(ctx,
		`SELECT receipt_number FROM `+paymentTable(kind)+`
		 WHERE substr(receipt_number, 1, length(?)) = ?
		 ORDER BY id DESC LIMIT 1`, prefix, prefix,
	).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return number, true, nil
}

func (r *rows) ReceiptNumberExists(ctx context.Context, kind ledger.PaymentKind, number string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+paymentTable(kind)+` WHERE receipt_number = ?`, number,
	).Scan(&n)
	return n > 0, err
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (r *rows) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor, action, object_type, object_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.Actor, e.Action, e.ObjectType, e.ObjectID, e.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *rows) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ObjectType != "" {
		where = append(where, `object_type = ?`)
		args = append(args, f.ObjectType)
	}
	if f.ObjectID != nil {
		where = append(where, `object_id = ?`)
		args = append(args, *f.ObjectID)
	}
	if f.Actor != "" {
		where = append(where, `actor = ?`)
		args = append(args, f.Actor)
	}
	if len(f.Actions) > 0 {
		placeholders := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			placeholders[i] = "?"
			args = append(args, a)
		}
		where = append(where, `action IN (`+strings.Join(placeholders, ", ")+`)`)
	}

	query := `SELECT id, timestamp, actor, action, object_type, object_id, description
		FROM audit_log` + whereClause(where) + ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rs, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []ledger.AuditEntry
	for rs.Next() {
		var (
			e  ledger.AuditEntry
			ts string
		)
		if err := rs.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.ObjectType, &e.ObjectID, &e.Description); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	return out, rs.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func paymentWhere(f ledger.PaymentFilter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if f.AccountID != nil {
		where = append(where, `account_id = ?`)
		args = append(args, *f.AccountID)
	}
	if f.From != nil {
		where = append(where, `payment_date >= ?`)
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, `payment_date <= ?`)
		args = append(args, f.To.String())
	}
	return where, args
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

// partyColumns splits a Party into (linked id, contact, email).
func partyColumns(p ledger.Party) (sql.NullInt64, string, string) {
	switch p := p.(type) {
	case ledger.Linked:
		return sql.NullInt64{Int64: p.ID, Valid: true}, "", ""
	case ledger.Manual:
		return sql.NullInt64{}, p.Contact, p.Email
	}
	return sql.NullInt64{}, "", ""
}

func partyFromColumns(id sql.NullInt64, name, contact, email string) ledger.Party {
	if id.Valid {
		return ledger.Linked{ID: id.Int64}
	}
	return ledger.Manual{Name: name, Contact: contact, Email: email}
}

func requireRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ledger.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// uniqueness maps a UNIQUE constraint failure to *ledger.UniquenessError.
// columns maps "table.column" (as SQLite reports it) to the offered value.
// Returns nil for any other error.
func uniqueness(err error, columns map[string]string) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	msg := sqliteErr.Error()
	for column, value := range columns {
		if strings.Contains(msg, column) {
			return &ledger.UniquenessError{Field: column[strings.Index(column, ".")+1:], Value: value}
		}
	}
	return &ledger.UniquenessError{Field: "unknown", Value: msg}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(ledger.MoneyPlaces)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
