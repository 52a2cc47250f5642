/*
payments.go - Recording, editing and removing payments

PURPOSE:
  The six payment mutations (record/update/delete for inbound and
  outbound). Each one validates its input, then inside one atomic unit
  resolves references, writes the row, applies the balance mutation rule
  and appends an audit entry.

PARTIES:
  Inbound payer:  Linked{member ID} | Manual{name, contact, email}
  Outbound payee: Linked{supplier ID} | Manual{...} | NewSupplier{...}

  NewSupplier only exists on input: the supplier is created inside the
  same unit and the stored payment carries Linked{new supplier ID}.

RECEIPT NUMBERS:
  Assigned once, inside the unit, right before the insert. Updates keep
  the original number even when the date moves to another month.

INSUFFICIENT BALANCE:
  Outbound record/update check every debit against the account's current
  balance first. The check is advisory: it reads the same row the unit
  is about to change, so it is consistent inside the unit, but it does
  not make overdrafts impossible for data imported around the Service.
*/
package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// NewSupplier asks RecordOutboundPayment or UpdateOutboundPayment to
// create the payee as a supplier and link the payment to it.
type NewSupplier struct {
	SupplierInput
}

func (NewSupplier) isParty() {}

// =============================================================================
// INBOUND
// =============================================================================

type InboundInput struct {
	Payer         Party
	RevenueTypeID RevenueTypeID
	Amount        decimal.Decimal
	Date          Date
	Method        PaymentMethod
	AccountID     AccountID
	Notes         string
}

func (in InboundInput) validate() error {
	v := &ValidationError{}
	validatePayer(v, in.Payer)
	if in.RevenueTypeID == 0 {
		v.Add("revenue_type_id", "revenue type is required")
	}
	validateAmount(v, "amount", in.Amount)
	if in.Date.IsZero() {
		v.Add("payment_date", "payment date is required")
	}
	if !in.Method.ValidInbound() {
		v.Add("payment_method", "payment method must be cash, bank, mobile or cheque")
	}
	if in.AccountID == 0 {
		v.Add("account_id", "account is required")
	}
	return v.Err()
}

// InboundUpdate changes the fields that are set. Nil means unchanged.
type InboundUpdate struct {
	Payer         Party
	RevenueTypeID *RevenueTypeID
	Amount        *decimal.Decimal
	Date          *Date
	Method        *PaymentMethod
	AccountID     *AccountID
	Notes         *string
}

func (u InboundUpdate) validate() error {
	v := &ValidationError{}
	if u.Payer != nil {
		validatePayer(v, u.Payer)
	}
	if u.RevenueTypeID != nil && *u.RevenueTypeID == 0 {
		v.Add("revenue_type_id", "revenue type is required")
	}
	if u.Amount != nil {
		validateAmount(v, "amount", *u.Amount)
	}
	if u.Date != nil && u.Date.IsZero() {
		v.Add("payment_date", "payment date is required")
	}
	if u.Method != nil && !u.Method.ValidInbound() {
		v.Add("payment_method", "payment method must be cash, bank, mobile or cheque")
	}
	if u.AccountID != nil && *u.AccountID == 0 {
		v.Add("account_id", "account is required")
	}
	return v.Err()
}

func validatePayer(v *ValidationError, p Party) {
	switch p := p.(type) {
	case nil:
		v.Add("payer", "either a member or a payer name is required")
	case Linked:
		if p.ID <= 0 {
			v.Add("payer_member_id", "member is required")
		}
	case Manual:
		if strings.TrimSpace(p.Name) == "" {
			v.Add("payer_name", "payer name is required")
		}
	default:
		v.Add("payer", "payer must be a member or a manual name")
	}
}

// resolvePayer checks a Linked member exists and returns the display name
// to store with the payment.
func resolvePayer(ctx context.Context, st Store, p Party) (Party, string, error) {
	switch p := p.(type) {
	case Linked:
		m, err := st.GetMember(ctx, MemberID(p.ID))
		if err != nil {
			return nil, "", err
		}
		if m == nil {
			return nil, "", &NotFoundError{Kind: ObjectMember, ID: p.ID}
		}
		return p, m.Name, nil
	case Manual:
		p.Name = strings.TrimSpace(p.Name)
		p.Contact = strings.TrimSpace(p.Contact)
		p.Email = strings.TrimSpace(p.Email)
		return p, p.Name, nil
	}
	return nil, "", Invalid("payer", "payer must be a member or a manual name")
}

func requireRevenueType(ctx context.Context, st Store, id RevenueTypeID) error {
	rt, err := st.GetRevenueType(ctx, id)
	if err != nil {
		return err
	}
	if rt == nil {
		return &NotFoundError{Kind: ObjectRevenueType, ID: int64(id)}
	}
	if !rt.Active {
		return Invalid("revenue_type_id", "revenue type is inactive")
	}
	return nil
}

// RecordInboundPayment stores money received and credits the account.
func (s *Service) RecordInboundPayment(ctx context.Context, in InboundInput) (Receipt, error) {
	if err := in.validate(); err != nil {
		return Receipt{}, err
	}
	var receipt Receipt
	err := s.atomically(ctx, "record inbound payment", func(st Store) error {
		r, err := s.recordInbound(ctx, st, in)
		receipt = r
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// recordInbound is the in-unit part of RecordInboundPayment, shared with
// RegisterMember. in must already be validated.
func (s *Service) recordInbound(ctx context.Context, st Store, in InboundInput) (Receipt, error) {
	acct, err := usableAccount(ctx, st, in.AccountID)
	if err != nil {
		return Receipt{}, err
	}
	if err := requireRevenueType(ctx, st, in.RevenueTypeID); err != nil {
		return Receipt{}, err
	}
	payer, payerName, err := resolvePayer(ctx, st, in.Payer)
	if err != nil {
		return Receipt{}, err
	}

	p := InboundPayment{
		Payer:         payer,
		PayerName:     payerName,
		RevenueTypeID: in.RevenueTypeID,
		Amount:        in.Amount,
		Date:          in.Date,
		Method:        in.Method,
		AccountID:     acct.ID,
		Notes:         strings.TrimSpace(in.Notes),
		CreatedAt:     s.now().UTC(),
		CreatedBy:     ActorFrom(ctx),
	}
	if p.ReceiptNumber, err = AssignReceipt(ctx, st, KindInbound, p.Date, p.ReceiptNumber); err != nil {
		return Receipt{}, err
	}
	if err := st.CreateInbound(ctx, &p); err != nil {
		return Receipt{}, err
	}
	balances, err := applyChanges(ctx, st, InboundSaveChanges(nil, p))
	if err != nil {
		return Receipt{}, err
	}
	if err := s.audit(ctx, st, AuditCreate, ObjectInboundPayment, int64(p.ID),
		"Recorded payment %s of %s from %s", p.ReceiptNumber, p.Amount.StringFixed(MoneyPlaces), p.PayerName); err != nil {
		return Receipt{}, err
	}

	s.log.Debug().
		Str("receipt", p.ReceiptNumber).
		Int64("account_id", int64(acct.ID)).
		Str("amount", p.Amount.StringFixed(MoneyPlaces)).
		Msg("inbound payment recorded")

	return Receipt{
		PaymentID:     p.ID,
		ReceiptNumber: p.ReceiptNumber,
		AccountID:     acct.ID,
		Amount:        p.Amount,
		Balance:       balances[acct.ID],
	}, nil
}

// UpdateInboundPayment edits a payment. Moving it to another account
// transfers the whole amount; otherwise only the amount delta is applied.
func (s *Service) UpdateInboundPayment(ctx context.Context, id PaymentID, u InboundUpdate) (*InboundPayment, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	var out InboundPayment
	err := s.atomically(ctx, "update inbound payment", func(st Store) error {
		old, err := st.GetInbound(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: ObjectInboundPayment, ID: int64(id)}
		}

		p := *old
		if u.AccountID != nil && *u.AccountID != old.AccountID {
			if _, err := usableAccount(ctx, st, *u.AccountID); err != nil {
				return err
			}
			p.AccountID = *u.AccountID
		}
		if u.RevenueTypeID != nil && *u.RevenueTypeID != old.RevenueTypeID {
			if err := requireRevenueType(ctx, st, *u.RevenueTypeID); err != nil {
				return err
			}
			p.RevenueTypeID = *u.RevenueTypeID
		}
		if u.Payer != nil {
			if p.Payer, p.PayerName, err = resolvePayer(ctx, st, u.Payer); err != nil {
				return err
			}
		}
		if u.Amount != nil {
			p.Amount = *u.Amount
		}
		if u.Date != nil {
			p.Date = *u.Date
		}
		if u.Method != nil {
			p.Method = *u.Method
		}
		if u.Notes != nil {
			p.Notes = strings.TrimSpace(*u.Notes)
		}

		if err := st.UpdateInbound(ctx, p); err != nil {
			return err
		}
		if _, err := applyChanges(ctx, st, InboundSaveChanges(old, p)); err != nil {
			return err
		}
		out = p
		return s.audit(ctx, st, AuditUpdate, ObjectInboundPayment, int64(p.ID),
			"Updated payment %s: %s -> %s", p.ReceiptNumber, old.Amount.StringFixed(MoneyPlaces), p.Amount.StringFixed(MoneyPlaces))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInboundPayment removes a payment and debits its amount back.
func (s *Service) DeleteInboundPayment(ctx context.Context, id PaymentID) error {
	return s.atomically(ctx, "delete inbound payment", func(st Store) error {
		old, err := st.GetInbound(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: ObjectInboundPayment, ID: int64(id)}
		}
		if err := st.DeleteInbound(ctx, id); err != nil {
			return err
		}
		if _, err := applyChanges(ctx, st, InboundDeleteChanges(*old)); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditDelete, ObjectInboundPayment, int64(id),
			"Deleted payment %s of %s", old.ReceiptNumber, old.Amount.StringFixed(MoneyPlaces))
	})
}

func (s *Service) GetInboundPayment(ctx context.Context, id PaymentID) (*InboundPayment, error) {
	p, err := s.store.GetInbound(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: ObjectInboundPayment, ID: int64(id)}
	}
	return p, nil
}

func (s *Service) ListInboundPayments(ctx context.Context, filter PaymentFilter) ([]InboundPayment, error) {
	return s.store.ListInbound(ctx, filter)
}

// =============================================================================
// OUTBOUND
// =============================================================================

type OutboundInput struct {
	Payee           Party
	Reason          string
	ExpenseCategory string
	InvoiceRef      string
	Amount          decimal.Decimal
	Date            Date
	Method          PaymentMethod
	AccountID       AccountID
}

func (in OutboundInput) validate() error {
	v := &ValidationError{}
	validatePayee(v, in.Payee)
	if strings.TrimSpace(in.Reason) == "" {
		v.Add("reason", "reason is required")
	}
	if strings.TrimSpace(in.ExpenseCategory) == "" {
		v.Add("expense_category", "expense category is required")
	}
	validateAmount(v, "amount", in.Amount)
	if in.Date.IsZero() {
		v.Add("payment_date", "payment date is required")
	}
	if !in.Method.ValidOutbound() {
		v.Add("payment_method", "payment method must be cash, bank or cheque")
	}
	if in.AccountID == 0 {
		v.Add("account_id", "account is required")
	}
	return v.Err()
}

type OutboundUpdate struct {
	Payee           Party
	Reason          *string
	ExpenseCategory *string
	InvoiceRef      *string
	Amount          *decimal.Decimal
	Date            *Date
	Method          *PaymentMethod
	AccountID       *AccountID
}

func (u OutboundUpdate) validate() error {
	v := &ValidationError{}
	if u.Payee != nil {
		validatePayee(v, u.Payee)
	}
	if u.Reason != nil && strings.TrimSpace(*u.Reason) == "" {
		v.Add("reason", "reason is required")
	}
	if u.ExpenseCategory != nil && strings.TrimSpace(*u.ExpenseCategory) == "" {
		v.Add("expense_category", "expense category is required")
	}
	if u.Amount != nil {
		validateAmount(v, "amount", *u.Amount)
	}
	if u.Date != nil && u.Date.IsZero() {
		v.Add("payment_date", "payment date is required")
	}
	if u.Method != nil && !u.Method.ValidOutbound() {
		v.Add("payment_method", "payment method must be cash, bank or cheque")
	}
	if u.AccountID != nil && *u.AccountID == 0 {
		v.Add("account_id", "account is required")
	}
	return v.Err()
}

func validatePayee(v *ValidationError, p Party) {
	switch p := p.(type) {
	case nil:
		v.Add("payee", "either a supplier, a payee name or new supplier details are required")
	case Linked:
		if p.ID <= 0 {
			v.Add("supplier_id", "supplier is required")
		}
	case Manual:
		if strings.TrimSpace(p.Name) == "" {
			v.Add("payee_name", "payee name is required")
		}
	case NewSupplier:
		p.normalize()
		p.validate(v, "new_supplier.")
	default:
		v.Add("payee", "payee must be a supplier, a manual name or a new supplier")
	}
}

// resolvePayee checks a Linked supplier exists, creates a NewSupplier and
// returns the party and display name to store.
func (s *Service) resolvePayee(ctx context.Context, st Store, p Party) (Party, string, error) {
	switch p := p.(type) {
	case Linked:
		sup, err := st.GetSupplier(ctx, SupplierID(p.ID))
		if err != nil {
			return nil, "", err
		}
		if sup == nil {
			return nil, "", &NotFoundError{Kind: ObjectSupplier, ID: p.ID}
		}
		return p, sup.Name, nil
	case Manual:
		p.Name = strings.TrimSpace(p.Name)
		p.Contact = strings.TrimSpace(p.Contact)
		p.Email = strings.TrimSpace(p.Email)
		return p, p.Name, nil
	case NewSupplier:
		p.normalize()
		sup := s.newSupplier(ctx, p.SupplierInput)
		if err := st.CreateSupplier(ctx, &sup); err != nil {
			return nil, "", err
		}
		if err := s.audit(ctx, st, AuditCreate, ObjectSupplier, int64(sup.ID), "Created supplier %s", sup.Name); err != nil {
			return nil, "", err
		}
		return Linked{ID: int64(sup.ID)}, sup.Name, nil
	}
	return nil, "", Invalid("payee", "payee must be a supplier, a manual name or a new supplier")
}

func requireFreeInvoiceRef(ctx context.Context, st Store, ref string, exclude PaymentID) error {
	if ref == "" {
		return nil
	}
	taken, err := st.InvoiceRefExists(ctx, ref, exclude)
	if err != nil {
		return err
	}
	if taken {
		return &UniquenessError{Field: "invoice_ref", Value: ref}
	}
	return nil
}

// RecordOutboundPayment stores money paid out and debits the account.
func (s *Service) RecordOutboundPayment(ctx context.Context, in OutboundInput) (Receipt, error) {
	if err := in.validate(); err != nil {
		return Receipt{}, err
	}
	var receipt Receipt
	err := s.atomically(ctx, "record outbound payment", func(st Store) error {
		acct, err := usableAccount(ctx, st, in.AccountID)
		if err != nil {
			return err
		}
		p := OutboundPayment{
			Reason:          strings.TrimSpace(in.Reason),
			ExpenseCategory: strings.TrimSpace(in.ExpenseCategory),
			InvoiceRef:      strings.TrimSpace(in.InvoiceRef),
			Amount:          in.Amount,
			Date:            in.Date,
			Method:          in.Method,
			AccountID:       acct.ID,
			CreatedAt:       s.now().UTC(),
			CreatedBy:       ActorFrom(ctx),
		}
		changes := OutboundSaveChanges(nil, p, s.legacy)
		if err := checkDebits(ctx, st, changes); err != nil {
			return err
		}
		if err := requireFreeInvoiceRef(ctx, st, p.InvoiceRef, 0); err != nil {
			return err
		}
		if p.Payee, p.PayeeName, err = s.resolvePayee(ctx, st, in.Payee); err != nil {
			return err
		}
		if p.ReceiptNumber, err = AssignReceipt(ctx, st, KindOutbound, p.Date, p.ReceiptNumber); err != nil {
			return err
		}
		if err := st.CreateOutbound(ctx, &p); err != nil {
			return err
		}
		balances, err := applyChanges(ctx, st, changes)
		if err != nil {
			return err
		}
		receipt = Receipt{
			PaymentID:     p.ID,
			ReceiptNumber: p.ReceiptNumber,
			AccountID:     acct.ID,
			Amount:        p.Amount,
			Balance:       balances[acct.ID],
		}
		return s.audit(ctx, st, AuditCreate, ObjectOutboundPayment, int64(p.ID),
			"Recorded payment %s of %s to %s", p.ReceiptNumber, p.Amount.StringFixed(MoneyPlaces), p.PayeeName)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.log.Debug().
		Str("receipt", receipt.ReceiptNumber).
		Int64("account_id", int64(receipt.AccountID)).
		Str("amount", receipt.Amount.StringFixed(MoneyPlaces)).
		Msg("outbound payment recorded")
	return receipt, nil
}

// UpdateOutboundPayment edits a payment. By default this mirrors inbound
// updates with signs inverted; in legacy mode every save debits the full
// amount again.
func (s *Service) UpdateOutboundPayment(ctx context.Context, id PaymentID, u OutboundUpdate) (*OutboundPayment, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	var out OutboundPayment
	err := s.atomically(ctx, "update outbound payment", func(st Store) error {
		old, err := st.GetOutbound(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: ObjectOutboundPayment, ID: int64(id)}
		}

		p := *old
		if u.AccountID != nil && *u.AccountID != old.AccountID {
			if _, err := usableAccount(ctx, st, *u.AccountID); err != nil {
				return err
			}
			p.AccountID = *u.AccountID
		}
		if u.Amount != nil {
			p.Amount = *u.Amount
		}
		changes := OutboundSaveChanges(old, p, s.legacy)
		if err := checkDebits(ctx, st, changes); err != nil {
			return err
		}
		if u.InvoiceRef != nil {
			p.InvoiceRef = strings.TrimSpace(*u.InvoiceRef)
			if p.InvoiceRef != old.InvoiceRef {
				if err := requireFreeInvoiceRef(ctx, st, p.InvoiceRef, id); err != nil {
					return err
				}
			}
		}
		if u.Payee != nil {
			if p.Payee, p.PayeeName, err = s.resolvePayee(ctx, st, u.Payee); err != nil {
				return err
			}
		}
		if u.Reason != nil {
			p.Reason = strings.TrimSpace(*u.Reason)
		}
		if u.ExpenseCategory != nil {
			p.ExpenseCategory = strings.TrimSpace(*u.ExpenseCategory)
		}
		if u.Date != nil {
			p.Date = *u.Date
		}
		if u.Method != nil {
			p.Method = *u.Method
		}

		if err := st.UpdateOutbound(ctx, p); err != nil {
			return err
		}
		if _, err := applyChanges(ctx, st, changes); err != nil {
			return err
		}
		out = p
		return s.audit(ctx, st, AuditUpdate, ObjectOutboundPayment, int64(p.ID),
			"Updated payment %s: %s -> %s", p.ReceiptNumber, old.Amount.StringFixed(MoneyPlaces), p.Amount.StringFixed(MoneyPlaces))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOutboundPayment removes a payment and credits its amount back
// (legacy mode leaves the balance alone).
func (s *Service) DeleteOutboundPayment(ctx context.Context, id PaymentID) error {
	return s.atomically(ctx, "delete outbound payment", func(st Store) error {
		old, err := st.GetOutbound(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return &NotFoundError{Kind: ObjectOutboundPayment, ID: int64(id)}
		}
		if err := st.DeleteOutbound(ctx, id); err != nil {
			return err
		}
		if _, err := applyChanges(ctx, st, OutboundDeleteChanges(*old, s.legacy)); err != nil {
			return err
		}
		return s.audit(ctx, st, AuditDelete, ObjectOutboundPayment, int64(id),
			"Deleted payment %s of %s", old.ReceiptNumber, old.Amount.StringFixed(MoneyPlaces))
	})
}

func (s *Service) GetOutboundPayment(ctx context.Context, id PaymentID) (*OutboundPayment, error) {
	p, err := s.store.GetOutbound(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: ObjectOutboundPayment, ID: int64(id)}
	}
	return p, nil
}

func (s *Service) ListOutboundPayments(ctx context.Context, filter PaymentFilter) ([]OutboundPayment, error) {
	return s.store.ListOutbound(ctx, filter)
}
