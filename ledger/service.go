/*
service.go - Entry point for every ledger operation

PURPOSE:
  Service is the narrow interface the request layer calls into. It owns
  validation and runs every mutation as one TxStore.WithTx atomic unit:
  payment row, account balance(s) and audit entry are committed together.

FLOW FOR A MUTATION:
  1. Validate input fields (no store access)          -> ValidationError
  2. WithTx:
     a. Resolve references (account, member, ...)     -> NotFound / Validation
     b. Assign receipt number (new payments only)
     c. Write the row
     d. Apply balance changes (mutation.go)
     e. Append audit entry
  3. Any non-domain error from 2 is reported as ErrOperationFailed; the
     unit has rolled back so nothing from it is visible.

AUTHORIZATION:
  Not here. The api package checks access.Allowed before calling in.

SEE ALSO:
  - payments.go: inbound/outbound payment operations
  - cashbook.go: cashbook reconstruction
  - balances.go: account balance report
*/
package ledger

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

type Options struct {
	// LegacyOutboundRedebit makes every outbound save subtract the full
	// amount (including edits) and leaves balances alone on outbound delete.
	LegacyOutboundRedebit bool

	// Now overrides the clock used for cashbook defaults and timestamps.
	Now func() time.Time

	// Logger receives mutation and failure logs. Nil disables logging.
	Logger *zerolog.Logger
}

type Service struct {
	store  TxStore
	legacy bool
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(store TxStore, opts Options) *Service {
	s := &Service{
		store:  store,
		legacy: opts.LegacyOutboundRedebit,
		now:    opts.Now,
		log:    zerolog.Nop(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	return s
}

// LegacyOutboundRedebit reports whether the compatibility mode is on.
func (s *Service) LegacyOutboundRedebit() bool {
	return s.legacy
}

// atomically runs fn in one transaction. Domain errors pass through
// unchanged; anything else becomes ErrOperationFailed.
func (s *Service) atomically(ctx context.Context, op string, fn func(Store) error) error {
	err := s.store.WithTx(ctx, fn)
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	s.log.Error().Err(err).Str("op", op).Str("actor", ActorFrom(ctx)).Msg("atomic unit rolled back")
	return operationFailed(op, err)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountInput struct {
	Name          string
	Type          AccountType
	AccountNumber string
	BankName      string
}

func (in AccountInput) validate() error {
	v := &ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		v.Add("name", "name is required")
	}
	if !in.Type.Valid() {
		v.Add("account_type", "account type must be cash, bank or mobile")
	}
	return v.Err()
}

// CreateAccount adds an active account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (*Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	acct := Account{
		Name:          strings.TrimSpace(in.Name),
		Type:          in.Type,
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		BankName:      strings.TrimSpace(in.BankName),
		Balance:       decimal.Zero,
		Active:        true,
	}
	err := s.atomically(ctx, "create account", func(st Store) error {
		if err := st.CreateAccount(ctx, &acct); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditCreate, ObjectAccount, int64(acct.ID), "Created account %s (%s)", acct.Name, acct.Type)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *Service) GetAccount(ctx context.Context, id AccountID) (*Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, &NotFoundError{Kind: ObjectAccount, ID: int64(id)}
	}
	return acct, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.store.ListAccounts(ctx)
}

// SetAccountActive activates or deactivates an account. Accounts are never
// deleted; a deactivated account keeps its history but takes no new
// payments.
func (s *Service) SetAccountActive(ctx context.Context, id AccountID, active bool) (*Account, error) {
	var out Account
	err := s.atomically(ctx, "set account active", func(st Store) error {
		acct, err := st.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if acct == nil {
			return &NotFoundError{Kind: ObjectAccount, ID: int64(id)}
		}
		acct.Active = active
		if err := st.UpdateAccount(ctx, *acct); err != nil {
			return err
		}
		out = *acct
		state := "Deactivated"
		if active {
			state = "Activated"
		}
		return s.audit(ctx, st, AuditUpdate, ObjectAccount, int64(id), "%s account %s", state, acct.Name)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// usableAccount loads an account that may take new payments.
func usableAccount(ctx context.Context, st Store, id AccountID) (*Account, error) {
	if id == 0 {
		return nil, Invalid("account_id", "account is required")
	}
	acct, err := st.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, Invalid("account_id", "account does not exist")
	}
	if !acct.Active {
		return nil, Invalid("account_id", "account is inactive")
	}
	return acct, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

type MemberInput struct {
	Name          string
	RID           string
	Contact       string
	Email         string
	Residence     string
	Club          Club
	OtherClubName string
	BuddyGroup    string
}

// RegistrationFee is the optional payment taken when a member registers.
type RegistrationFee struct {
	RevenueTypeID RevenueTypeID
	Amount        decimal.Decimal
	Date          Date
	Method        PaymentMethod
	AccountID     AccountID
	Notes         string
}

func (in *MemberInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.RID = strings.TrimSpace(in.RID)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Email = strings.TrimSpace(in.Email)
	in.Residence = strings.TrimSpace(in.Residence)
	in.OtherClubName = strings.TrimSpace(in.OtherClubName)
	in.BuddyGroup = strings.TrimSpace(in.BuddyGroup)
	if in.Club == "" {
		in.Club = ClubRotaract
	}
}

func (in MemberInput) validate() *ValidationError {
	v := &ValidationError{}
	if in.Name == "" {
		v.Add("name", "name is required")
	}
	if in.RID == "" {
		v.Add("rid", "RID is required")
	}
	if in.Contact == "" {
		v.Add("contact", "contact is required")
	}
	if in.Email == "" {
		v.Add("email", "email is required")
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		v.Add("email", "email is not a valid address")
	}
	if in.Residence == "" {
		v.Add("residence", "residence is required")
	}
	if !in.Club.Valid() {
		v.Add("club", "club must be rotaract, rotary or other")
	}
	return v
}

// validate checks the fee fields. Every field is required once a fee is
// present.
func (f RegistrationFee) validate(v *ValidationError) {
	if f.RevenueTypeID == 0 {
		v.Add("registration_fee.revenue_type_id", "revenue type is required")
	}
	validateAmount(v, "registration_fee.amount", f.Amount)
	if f.Date.IsZero() {
		v.Add("registration_fee.date", "payment date is required")
	}
	if !f.Method.ValidInbound() {
		v.Add("registration_fee.payment_method", "payment method is required")
	}
	if f.AccountID == 0 {
		v.Add("registration_fee.account_id", "account is required")
	}
}

// CreateMember registers a member without a fee.
func (s *Service) CreateMember(ctx context.Context, in MemberInput) (*Member, error) {
	m, _, err := s.RegisterMember(ctx, in, nil)
	return m, err
}

// RegisterMember creates a member and, when fee is set, the registration
// fee payment linked to them. Both rows are written in one atomic unit.
func (s *Service) RegisterMember(ctx context.Context, in MemberInput, fee *RegistrationFee) (*Member, *Receipt, error) {
	in.normalize()
	v := in.validate()
	if fee != nil {
		fee.validate(v)
	}
	if err := v.Err(); err != nil {
		return nil, nil, err
	}

	member := Member{
		Name:          in.Name,
		RID:           in.RID,
		Contact:       in.Contact,
		Email:         in.Email,
		Residence:     in.Residence,
		Club:          in.Club,
		OtherClubName: in.OtherClubName,
		BuddyGroup:    in.BuddyGroup,
		CreatedAt:     s.now().UTC(),
		CreatedBy:     ActorFrom(ctx),
	}
	var receipt *Receipt

	err := s.atomically(ctx, "register member", func(st Store) error {
		if err := st.CreateMember(ctx, &member); err != nil {
			return err
		}
		if err := s.audit(ctx, st, AuditCreate, ObjectMember, int64(member.ID), "Created member %s", member.Name); err != nil {
			return err
		}
		if fee == nil {
			return nil
		}
		r, err := s.recordInbound(ctx, st, InboundInput{
			Payer:         Linked{ID: int64(member.ID)},
			RevenueTypeID: fee.RevenueTypeID,
			Amount:        fee.Amount,
			Date:          fee.Date,
			Method:        fee.Method,
			AccountID:     fee.AccountID,
			Notes:         fee.Notes,
		})
		if err != nil {
			return err
		}
		receipt = &r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.Debug().Int64("member_id", int64(member.ID)).Bool("fee", fee != nil).Msg("member registered")
	return &member, receipt, nil
}

func (s *Service) GetMember(ctx context.Context, id MemberID) (*Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &NotFoundError{Kind: ObjectMember, ID: int64(id)}
	}
	return m, nil
}

func (s *Service) ListMembers(ctx context.Context, filter MemberFilter) ([]Member, error) {
	return s.store.ListMembers(ctx, filter)
}

// DeleteMember removes a member. Their payments stay, with the payer
// turned into a manual payer carrying the member's name, contact and email.
func (s *Service) DeleteMember(ctx context.Context, id MemberID) error {
	return s.atomically(ctx, "delete member", func(st Store) error {
		m, err := st.GetMember(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return &NotFoundError{Kind: ObjectMember, ID: int64(id)}
		}
		n, err := st.UnlinkMemberPayments(ctx, id)
		if err != nil {
			return err
		}
		if err := st.DeleteMember(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditDelete, ObjectMember, int64(id), "Deleted member %s (%d payments unlinked)", m.Name, n)
	})
}

// =============================================================================
// SUPPLIERS
// =============================================================================

type SupplierInput struct {
	Name         string
	Contact      string
	Email        string
	Address      string
	BankDetails  string
	SupplierCode string
}

func (in *SupplierInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Contact = strings.TrimSpace(in.Contact)
	in.Email = strings.TrimSpace(in.Email)
	in.Address = strings.TrimSpace(in.Address)
	in.BankDetails = strings.TrimSpace(in.BankDetails)
	in.SupplierCode = strings.TrimSpace(in.SupplierCode)
}

// validate reports problems under prefix (empty for a standalone supplier,
// "new_supplier." when created alongside a payment).
func (in SupplierInput) validate(v *ValidationError, prefix string) {
	if in.Name == "" {
		v.Add(prefix+"name", "supplier name is required")
	}
	if in.Contact == "" {
		v.Add(prefix+"contact", "supplier contact is required")
	}
	if in.SupplierCode == "" {
		v.Add(prefix+"supplier_code", "supplier code is required")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			v.Add(prefix+"email", "email is not a valid address")
		}
	}
}

func (s *Service) newSupplier(ctx context.Context, in SupplierInput) Supplier {
	return Supplier{
		Name:         in.Name,
		Contact:      in.Contact,
		Email:        in.Email,
		Address:      in.Address,
		BankDetails:  in.BankDetails,
		SupplierCode: in.SupplierCode,
		CreatedAt:    s.now().UTC(),
		CreatedBy:    ActorFrom(ctx),
	}
}

func (s *Service) CreateSupplier(ctx context.Context, in SupplierInput) (*Supplier, error) {
	in.normalize()
	v := &ValidationError{}
	in.validate(v, "")
	if err := v.Err(); err != nil {
		return nil, err
	}
	sup := s.newSupplier(ctx, in)
	err := s.atomically(ctx, "create supplier", func(st Store) error {
		if err := st.CreateSupplier(ctx, &sup); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditCreate, ObjectSupplier, int64(sup.ID), "Created supplier %s", sup.Name)
	})
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Service) GetSupplier(ctx context.Context, id SupplierID) (*Supplier, error) {
	sup, err := s.store.GetSupplier(ctx, id)
	if err != nil {
		return nil, err
	}
	if sup == nil {
		return nil, &NotFoundError{Kind: ObjectSupplier, ID: int64(id)}
	}
	return sup, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.store.ListSuppliers(ctx)
}

// =============================================================================
// REVENUE TYPES
// =============================================================================

type RevenueTypeInput struct {
	Name          string
	Description   string
	DefaultAmount decimal.Decimal
}

func (s *Service) CreateRevenueType(ctx context.Context, in RevenueTypeInput) (*RevenueType, error) {
	v := &ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		v.Add("name", "name is required")
	}
	if in.DefaultAmount.IsNegative() {
		v.Add("amount_default", "default amount cannot be negative")
	} else if !hasMoneyPrecision(in.DefaultAmount) {
		v.Add("amount_default", "default amount has more than two decimal places")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	rt := RevenueType{
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		DefaultAmount: in.DefaultAmount,
		Active:        true,
	}
	err := s.atomically(ctx, "create revenue type", func(st Store) error {
		if err := st.CreateRevenueType(ctx, &rt); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditCreate, ObjectRevenueType, int64(rt.ID), "Created revenue type %s", rt.Name)
	})
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *Service) ListRevenueTypes(ctx context.Context) ([]RevenueType, error) {
	return s.store.ListRevenueTypes(ctx)
}

// =============================================================================
// SHARED VALIDATION
// =============================================================================

func validateAmount(v *ValidationError, field string, amount decimal.Decimal) {
	switch {
	case !amount.IsPositive():
		v.Add(field, "amount must be greater than zero")
	case !hasMoneyPrecision(amount):
		v.Add(field, "amount has more than two decimal places")
	}
}
