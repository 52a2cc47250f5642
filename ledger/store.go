/*
store.go - Persistence interface for accounts, payments and reference data

PURPOSE:
  Defines the boundary between the ledger rules and the database. The
  rules in mutation.go never talk to SQL; they call a Store obtained from
  TxStore.WithTx so that a payment row and the balance of the account it
  references are committed together or not at all.

KEY INTERFACES:
  Store:           Row-level reads and writes
  TxStore:         Atomic unit (WithTx) on top of Store
  ReceiptSequence: The two queries the receipt generator needs

MISSING ROWS:
  Get* methods return (nil, nil) when the row doesn't exist. The Service
  turns that into a NotFoundError with the right kind.

UNIQUENESS:
  Create* methods return *UniquenessError when a unique column (member
  RID/email, supplier code, invoice reference, receipt number) collides.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via database/sql
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: Uses TxStore for every mutation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// PaymentFilter narrows payment listings. Nil fields don't filter.
// Results are ordered by (Date, ID) ascending.
type PaymentFilter struct {
	AccountID  *AccountID
	MemberID   *MemberID   // inbound only
	SupplierID *SupplierID // outbound only
	From       *Date       // inclusive
	To         *Date       // inclusive
}

// MemberFilter mirrors the member search form: substring matches on name,
// RID and buddy group, exact match on club.
type MemberFilter struct {
	Name       string
	RID        string
	Club       Club
	BuddyGroup string
}

// =============================================================================
// STORE - Row access used inside and outside atomic units
// =============================================================================

type Store interface {
	ReceiptSequence

	// Accounts
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccount(ctx context.Context, a Account) error

	// Members
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)
	ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error)
	DeleteMember(ctx context.Context, id MemberID) error
	// UnlinkMemberPayments turns Linked payers of id into Manual payers that
	// keep the stored name and the member's contact and email. Call it before
	// DeleteMember. Returns the number of payments touched.
	UnlinkMemberPayments(ctx context.Context, id MemberID) (int, error)

	// Suppliers
	CreateSupplier(ctx context.Context, s *Supplier) error
	GetSupplier(ctx context.Context, id SupplierID) (*Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	// Revenue types
	CreateRevenueType(ctx context.Context, rt *RevenueType) error
	GetRevenueType(ctx context.Context, id RevenueTypeID) (*RevenueType, error)
	ListRevenueTypes(ctx context.Context) ([]RevenueType, error)

	// Inbound payments
	CreateInbound(ctx context.Context, p *InboundPayment) error
	GetInbound(ctx context.Context, id PaymentID) (*InboundPayment, error)
	UpdateInbound(ctx context.Context, p InboundPayment) error
	DeleteInbound(ctx context.Context, id PaymentID) error
	ListInbound(ctx context.Context, filter PaymentFilter) ([]InboundPayment, error)

	// Outbound payments
	CreateOutbound(ctx context.Context, p *OutboundPayment) error
	GetOutbound(ctx context.Context, id PaymentID) (*OutboundPayment, error)
	UpdateOutbound(ctx context.Context, p OutboundPayment) error
	DeleteOutbound(ctx context.Context, id PaymentID) error
	ListOutbound(ctx context.Context, filter PaymentFilter) ([]OutboundPayment, error)
	// InvoiceRefExists ignores the payment with id exclude (0 = none).
	InvoiceRefExists(ctx context.Context, ref string, exclude PaymentID) (bool, error)

	// Audit
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// ReceiptSequence is what NextReceiptNumber needs from storage.
type ReceiptSequence interface {
	// LastReceiptNumber returns the receipt number of the most recently
	// inserted payment of kind whose receipt starts with prefix.
	LastReceiptNumber(ctx context.Context, kind PaymentKind, prefix string) (string, bool, error)

	// ReceiptNumberExists checks for an exact receipt number of kind.
	ReceiptNumberExists(ctx context.Context, kind PaymentKind, number string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic unit for one payment mutation
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Atomic units are serialized, so the read-modify-write of an account
	// balance inside fn cannot interleave with another unit.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who did what when, written inside the same atomic unit
// =============================================================================

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	Actor       string
	Action      AuditAction
	ObjectType  string
	ObjectID    int64
	Description string
}

type AuditFilter struct {
	ObjectType string
	ObjectID   *int64
	Actor      string
	Actions    []AuditAction
	Limit      int // 0 = no limit; newest first
}
