/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, kept apart from the ledger types so field
  names and formats can evolve without touching the core.

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Amounts: strings with two decimals in responses ("1500.00"); requests
           accept a JSON number or a numeric string
  Dates:   "YYYY-MM-DD"

PARTIES:
  Requests carry the payer/payee as separate optional fields, as the web
  forms send them. payer()/payee() turn them into the ledger's Party
  variant and reject both-set as a validation error.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/club-ledger/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	AccountType   string `json:"account_type"`
	AccountNumber string `json:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	Balance       string `json:"balance"`
	IsActive      bool   `json:"is_active"`
}

type CreateAccountRequest struct {
	Name          string `json:"name"`
	AccountType   string `json:"account_type"`
	AccountNumber string `json:"account_number"`
	BankName      string `json:"bank_name"`
}

type SetAccountActiveRequest struct {
	IsActive bool `json:"is_active"`
}

type AccountBalanceDTO struct {
	Account AccountDTO `json:"account"`
	Stored  string     `json:"stored_balance"`
	Derived string     `json:"derived_balance"`
	Drift   string     `json:"drift"`
}

type BalanceSheetDTO struct {
	Accounts    []AccountBalanceDTO `json:"accounts"`
	TotalActive string              `json:"total_active_balance"`
	HasDrift    bool                `json:"has_drift"`
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:            int64(a.ID),
		Name:          a.Name,
		AccountType:   string(a.Type),
		AccountNumber: a.AccountNumber,
		BankName:      a.BankName,
		Balance:       money(a.Balance),
		IsActive:      a.Active,
	}
}

func toBalanceSheetDTO(b *ledger.BalanceSheet) BalanceSheetDTO {
	dto := BalanceSheetDTO{
		Accounts:    make([]AccountBalanceDTO, len(b.Accounts)),
		TotalActive: money(b.TotalActive),
		HasDrift:    b.HasDrift(),
	}
	for i, a := range b.Accounts {
		dto.Accounts[i] = AccountBalanceDTO{
			Account: toAccountDTO(a.Account),
			Stored:  money(a.Stored),
			Derived: money(a.Derived),
			Drift:   money(a.Drift),
		}
	}
	return dto
}

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	RID           string `json:"rid"`
	Contact       string `json:"contact"`
	Email         string `json:"email"`
	Residence     string `json:"residence"`
	Club          string `json:"club"`
	OtherClubName string `json:"other_club_name,omitempty"`
	BuddyGroup    string `json:"buddy_group,omitempty"`
	DisplayName   string `json:"display_name"`
	CreatedAt     string `json:"created_at,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
}

type CreateMemberRequest struct {
	Name            string                  `json:"name"`
	RID             string                  `json:"rid"`
	Contact         string                  `json:"contact"`
	Email           string                  `json:"email"`
	Residence       string                  `json:"residence"`
	Club            string                  `json:"club"`
	OtherClubName   string                  `json:"other_club_name"`
	BuddyGroup      string                  `json:"buddy_group"`
	RegistrationFee *RegistrationFeeRequest `json:"registration_fee,omitempty"`
}

type RegistrationFeeRequest struct {
	RevenueTypeID int64           `json:"revenue_type_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   ledger.Date     `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	AccountID     int64           `json:"account_id"`
	Notes         string          `json:"notes"`
}

type RegisterMemberResponse struct {
	Member  MemberDTO   `json:"member"`
	Receipt *ReceiptDTO `json:"receipt,omitempty"`
}

type MemberDetailDTO struct {
	Member    MemberDTO           `json:"member"`
	Payments  []InboundPaymentDTO `json:"payments"`
	TotalPaid string              `json:"total_paid"`
}

func (req CreateMemberRequest) toInput() (ledger.MemberInput, *ledger.RegistrationFee) {
	in := ledger.MemberInput{
		Name:          req.Name,
		RID:           req.RID,
		Contact:       req.Contact,
		Email:         req.Email,
		Residence:     req.Residence,
		Club:          ledger.Club(strings.ToLower(req.Club)),
		OtherClubName: req.OtherClubName,
		BuddyGroup:    req.BuddyGroup,
	}
	if req.RegistrationFee == nil {
		return in, nil
	}
	f := req.RegistrationFee
	return in, &ledger.RegistrationFee{
		RevenueTypeID: ledger.RevenueTypeID(f.RevenueTypeID),
		Amount:        f.Amount,
		Date:          f.PaymentDate,
		Method:        ledger.PaymentMethod(f.PaymentMethod),
		AccountID:     ledger.AccountID(f.AccountID),
		Notes:         f.Notes,
	}
}

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		ID:            int64(m.ID),
		Name:          m.Name,
		RID:           m.RID,
		Contact:       m.Contact,
		Email:         m.Email,
		Residence:     m.Residence,
		Club:          string(m.Club),
		OtherClubName: m.OtherClubName,
		BuddyGroup:    m.BuddyGroup,
		DisplayName:   m.DisplayName(),
		CreatedAt:     timestamp(m.CreatedAt),
		CreatedBy:     m.CreatedBy,
	}
}

// =============================================================================
// SUPPLIERS AND REVENUE TYPES
// =============================================================================

type SupplierDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	BankDetails  string `json:"bank_details,omitempty"`
	SupplierCode string `json:"supplier_id"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type CreateSupplierRequest struct {
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Email        string `json:"email"`
	Address      string `json:"address"`
	BankDetails  string `json:"bank_details"`
	SupplierCode string `json:"supplier_id"`
}

func (req CreateSupplierRequest) toInput() ledger.SupplierInput {
	return ledger.SupplierInput{
		Name:         req.Name,
		Contact:      req.Contact,
		Email:        req.Email,
		Address:      req.Address,
		BankDetails:  req.BankDetails,
		SupplierCode: req.SupplierCode,
	}
}

func toSupplierDTO(s ledger.Supplier) SupplierDTO {
	return SupplierDTO{
		ID:           int64(s.ID),
		Name:         s.Name,
		Contact:      s.Contact,
		Email:        s.Email,
		Address:      s.Address,
		BankDetails:  s.BankDetails,
		SupplierCode: s.SupplierCode,
		CreatedAt:    timestamp(s.CreatedAt),
	}
}

type RevenueTypeDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	DefaultAmount string `json:"amount_default"`
	IsActive      bool   `json:"is_active"`
}

type CreateRevenueTypeRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	DefaultAmount decimal.Decimal `json:"amount_default"`
}

func toRevenueTypeDTO(rt ledger.RevenueType) RevenueTypeDTO {
	return RevenueTypeDTO{
		ID:            int64(rt.ID),
		Name:          rt.Name,
		Description:   rt.Description,
		DefaultAmount: money(rt.DefaultAmount),
		IsActive:      rt.Active,
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type ReceiptDTO struct {
	PaymentID     int64  `json:"payment_id"`
	ReceiptNumber string `json:"receipt_number"`
	AccountID     int64  `json:"account_id"`
	Amount        string `json:"amount"`
	Balance       string `json:"account_balance"`
}

func toReceiptDTO(r ledger.Receipt) ReceiptDTO {
	return ReceiptDTO{
		PaymentID:     int64(r.PaymentID),
		ReceiptNumber: r.ReceiptNumber,
		AccountID:     int64(r.AccountID),
		Amount:        money(r.Amount),
		Balance:       money(r.Balance),
	}
}

type InboundPaymentDTO struct {
	ID            int64  `json:"id"`
	PayerMemberID *int64 `json:"payer_member_id"`
	PayerName     string `json:"payer_name"`
	PayerContact  string `json:"payer_contact,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`
	RevenueTypeID int64  `json:"revenue_type_id"`
	Amount        string `json:"amount"`
	PaymentDate   string `json:"payment_date"`
	PaymentMethod string `json:"payment_method"`
	AccountID     int64  `json:"account_id"`
	ReceiptNumber string `json:"receipt_number"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
}

// InboundPaymentRequest is used for both create and update. On update,
// omitted fields are left unchanged.
type InboundPaymentRequest struct {
	PayerMemberID *int64                `json:"payer_member_id"`
	PayerName     string                `json:"payer_name"`
	PayerContact  string                `json:"payer_contact"`
	PayerEmail    string                `json:"payer_email"`
	RevenueTypeID *int64                `json:"revenue_type_id"`
	Amount        *decimal.Decimal      `json:"amount"`
	PaymentDate   *ledger.Date          `json:"payment_date"`
	PaymentMethod *ledger.PaymentMethod `json:"payment_method"`
	AccountID     *int64                `json:"account_id"`
	Notes         *string               `json:"notes"`
}

func (req InboundPaymentRequest) payer() (ledger.Party, error) {
	name := strings.TrimSpace(req.PayerName)
	switch {
	case req.PayerMemberID != nil && name != "":
		return nil, ledger.Invalid("payer", "choose a member or enter a payer name, not both")
	case req.PayerMemberID != nil:
		return ledger.Linked{ID: *req.PayerMemberID}, nil
	case name != "":
		return ledger.Manual{Name: name, Contact: req.PayerContact, Email: req.PayerEmail}, nil
	}
	return nil, nil
}

func (req InboundPaymentRequest) toInput() (ledger.InboundInput, error) {
	payer, err := req.payer()
	if err != nil {
		return ledger.InboundInput{}, err
	}
	in := ledger.InboundInput{Payer: payer}
	if req.RevenueTypeID != nil {
		in.RevenueTypeID = ledger.RevenueTypeID(*req.RevenueTypeID)
	}
	if req.Amount != nil {
		in.Amount = *req.Amount
	}
	if req.PaymentDate != nil {
		in.Date = *req.PaymentDate
	}
	if req.PaymentMethod != nil {
		in.Method = *req.PaymentMethod
	}
	if req.AccountID != nil {
		in.AccountID = ledger.AccountID(*req.AccountID)
	}
	if req.Notes != nil {
		in.Notes = *req.Notes
	}
	return in, nil
}

func (req InboundPaymentRequest) toUpdate() (ledger.InboundUpdate, error) {
	payer, err := req.payer()
	if err != nil {
		return ledger.InboundUpdate{}, err
	}
	u := ledger.InboundUpdate{
		Payer:  payer,
		Amount: req.Amount,
		Date:   req.PaymentDate,
		Method: req.PaymentMethod,
		Notes:  req.Notes,
	}
	if req.RevenueTypeID != nil {
		id := ledger.RevenueTypeID(*req.RevenueTypeID)
		u.RevenueTypeID = &id
	}
	if req.AccountID != nil {
		id := ledger.AccountID(*req.AccountID)
		u.AccountID = &id
	}
	return u, nil
}

func toInboundDTO(p ledger.InboundPayment) InboundPaymentDTO {
	dto := InboundPaymentDTO{
		ID:            int64(p.ID),
		PayerName:     p.PayerName,
		RevenueTypeID: int64(p.RevenueTypeID),
		Amount:        money(p.Amount),
		PaymentDate:   p.Date.String(),
		PaymentMethod: string(p.Method),
		AccountID:     int64(p.AccountID),
		ReceiptNumber: p.ReceiptNumber,
		Notes:         p.Notes,
		CreatedAt:     timestamp(p.CreatedAt),
		CreatedBy:     p.CreatedBy,
	}
	switch payer := p.Payer.(type) {
	case ledger.Linked:
		id := payer.ID
		dto.PayerMemberID = &id
	case ledger.Manual:
		dto.PayerContact = payer.Contact
		dto.PayerEmail = payer.Email
	}
	return dto
}

type OutboundPaymentDTO struct {
	ID              int64  `json:"id"`
	SupplierID      *int64 `json:"supplier_id"`
	PayeeName       string `json:"payee_name"`
	PayeeContact    string `json:"payee_contact,omitempty"`
	PayeeEmail      string `json:"payee_email,omitempty"`
	Reason          string `json:"reason"`
	ExpenseCategory string `json:"expense_category"`
	InvoiceRef      string `json:"invoice_number,omitempty"`
	Amount          string `json:"amount"`
	PaymentDate     string `json:"payment_date"`
	PaymentMethod   string `json:"payment_method"`
	AccountID       int64  `json:"account_id"`
	ReceiptNumber   string `json:"receipt_number"`
	CreatedAt       string `json:"created_at,omitempty"`
	CreatedBy       string `json:"created_by,omitempty"`
}

// OutboundPaymentRequest is used for both create and update. At most one
// of SupplierID, PayeeName and NewSupplier may be set.
type OutboundPaymentRequest struct {
	SupplierID      *int64                 `json:"supplier_id"`
	PayeeName       string                 `json:"payee_name"`
	PayeeContact    string                 `json:"payee_contact"`
	PayeeEmail      string                 `json:"payee_email"`
	NewSupplier     *CreateSupplierRequest `json:"new_supplier"`
	Reason          *string                `json:"reason"`
	ExpenseCategory *string                `json:"expense_category"`
	InvoiceRef      *string                `json:"invoice_number"`
	Amount          *decimal.Decimal       `json:"amount"`
	PaymentDate     *ledger.Date           `json:"payment_date"`
	PaymentMethod   *ledger.PaymentMethod  `json:"payment_method"`
	AccountID       *int64                 `json:"account_id"`
}

func (req OutboundPaymentRequest) payee() (ledger.Party, error) {
	name := strings.TrimSpace(req.PayeeName)
	set := 0
	if req.SupplierID != nil {
		set++
	}
	if name != "" {
		set++
	}
	if req.NewSupplier != nil {
		set++
	}
	if set > 1 {
		return nil, ledger.Invalid("payee", "choose one of an existing supplier, a payee name or new supplier details")
	}
	switch {
	case req.SupplierID != nil:
		return ledger.Linked{ID: *req.SupplierID}, nil
	case name != "":
		return ledger.Manual{Name: name, Contact: req.PayeeContact, Email: req.PayeeEmail}, nil
	case req.NewSupplier != nil:
		return ledger.NewSupplier{SupplierInput: req.NewSupplier.toInput()}, nil
	}
	return nil, nil
}

func (req OutboundPaymentRequest) toInput() (ledger.OutboundInput, error) {
	payee, err := req.payee()
	if err != nil {
		return ledger.OutboundInput{}, err
	}
	in := ledger.OutboundInput{Payee: payee}
	if req.Reason != nil {
		in.Reason = *req.Reason
	}
	if req.ExpenseCategory != nil {
		in.ExpenseCategory = *req.ExpenseCategory
	}
	if req.InvoiceRef != nil {
		in.InvoiceRef = *req.InvoiceRef
	}
	if req.Amount != nil {
		in.Amount = *req.Amount
	}
	if req.PaymentDate != nil {
		in.Date = *req.PaymentDate
	}
	if req.PaymentMethod != nil {
		in.Method = *req.PaymentMethod
	}
	if req.AccountID != nil {
		in.AccountID = ledger.AccountID(*req.AccountID)
	}
	return in, nil
}

func (req OutboundPaymentRequest) toUpdate() (ledger.OutboundUpdate, error) {
	payee, err := req.payee()
	if err != nil {
		return ledger.OutboundUpdate{}, err
	}
	u := ledger.OutboundUpdate{
		Payee:           payee,
		Reason:          req.Reason,
		ExpenseCategory: req.ExpenseCategory,
		InvoiceRef:      req.InvoiceRef,
		Amount:          req.Amount,
		Date:            req.PaymentDate,
		Method:          req.PaymentMethod,
	}
	if req.AccountID != nil {
		id := ledger.AccountID(*req.AccountID)
		u.AccountID = &id
	}
	return u, nil
}

func toOutboundDTO(p ledger.OutboundPayment) OutboundPaymentDTO {
	dto := OutboundPaymentDTO{
		ID:              int64(p.ID),
		PayeeName:       p.PayeeName,
		Reason:          p.Reason,
		ExpenseCategory: p.ExpenseCategory,
		InvoiceRef:      p.InvoiceRef,
		Amount:          money(p.Amount),
		PaymentDate:     p.Date.String(),
		PaymentMethod:   string(p.Method),
		AccountID:       int64(p.AccountID),
		ReceiptNumber:   p.ReceiptNumber,
		CreatedAt:       timestamp(p.CreatedAt),
		CreatedBy:       p.CreatedBy,
	}
	switch payee := p.Payee.(type) {
	case ledger.Linked:
		id := payee.ID
		dto.SupplierID = &id
	case ledger.Manual:
		dto.PayeeContact = payee.Contact
		dto.PayeeEmail = payee.Email
	}
	return dto
}

// =============================================================================
// CASHBOOK
// =============================================================================

type CashbookEntryDTO struct {
	Date        string  `json:"date"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Reference   string  `json:"reference,omitempty"`
	PaymentID   int64   `json:"payment_id,omitempty"`
	Receipt     *string `json:"receipt"`
	Payment     *string `json:"payment"`
	Balance     string  `json:"balance"`
}

type CashbookDTO struct {
	Start          string             `json:"start_date"`
	End            string             `json:"end_date"`
	AccountID      *int64             `json:"account_id"`
	OpeningBalance string             `json:"opening_balance"`
	Entries        []CashbookEntryDTO `json:"entries"`
	TotalReceipts  string             `json:"total_receipts"`
	TotalPayments  string             `json:"total_payments"`
	ClosingBalance string             `json:"closing_balance"`
}

func toCashbookDTO(b *ledger.Cashbook) CashbookDTO {
	dto := CashbookDTO{
		Start:          b.Range.Start.String(),
		End:            b.Range.End.String(),
		OpeningBalance: money(b.OpeningBalance),
		Entries:        make([]CashbookEntryDTO, len(b.Entries)),
		TotalReceipts:  money(b.TotalReceipts),
		TotalPayments:  money(b.TotalPayments),
		ClosingBalance: money(b.ClosingBalance),
	}
	if b.AccountID != nil {
		id := int64(*b.AccountID)
		dto.AccountID = &id
	}
	for i, e := range b.Entries {
		dto.Entries[i] = CashbookEntryDTO{
			Date:        e.Date.String(),
			Type:        string(e.Type),
			Description: e.Description,
			Reference:   e.Reference,
			PaymentID:   int64(e.PaymentID),
			Receipt:     nullMoney(e.Receipt),
			Payment:     nullMoney(e.Payment),
			Balance:     money(e.Balance),
		}
	}
	return dto
}

// =============================================================================
// AUDIT AND SEED
// =============================================================================

type AuditEntryDTO struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Actor       string `json:"actor"`
	Action      string `json:"action"`
	ObjectType  string `json:"object_type"`
	ObjectID    int64  `json:"object_id"`
	Description string `json:"description"`
}

func toAuditDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          e.ID,
		Timestamp:   timestamp(e.Timestamp),
		Actor:       e.Actor,
		Action:      string(e.Action),
		ObjectType:  e.ObjectType,
		ObjectID:    e.ObjectID,
		Description: e.Description,
	}
}

type SeedResponse struct {
	RevenueTypes []string `json:"created_revenue_types"`
	Accounts     []string `json:"created_accounts"`
}

// =============================================================================
// FORMATTING
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(ledger.MoneyPlaces)
}

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := money(d.Decimal)
	return &s
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
