/*
handlers.go - HTTP API handlers for the club ledger

PURPOSE:
  Exposes the ledger service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to ledger.Service. No ledger rule
  lives here: handlers only translate.

ENDPOINTS:
  Accounts:
    GET    /api/accounts               Balance sheet (stored vs derived)
    POST   /api/accounts               Create account
    GET    /api/accounts/{id}          Get account
    PUT    /api/accounts/{id}/active   Activate / deactivate

  Members:
    GET    /api/members                Search members
    POST   /api/members                Register member (+ optional fee)
    GET    /api/members/{id}           Member with payment history
    DELETE /api/members/{id}           Delete member, keep payments

  Suppliers / Revenue types:
    GET    /api/suppliers              List suppliers
    POST   /api/suppliers              Create supplier
    GET    /api/revenue-types          List revenue types
    POST   /api/revenue-types          Create revenue type

  Payments:
    GET    /api/payments/in            List inbound payments
    POST   /api/payments/in            Record inbound payment
    GET    /api/payments/in/{id}       Get inbound payment
    PUT    /api/payments/in/{id}       Update inbound payment
    DELETE /api/payments/in/{id}       Delete inbound payment
    (same five under /api/payments/out)

  Reports:
    GET    /api/cashbook               Cashbook as JSON
    GET    /api/cashbook/export        Cashbook as .xlsx
    GET    /api/audit-logs             Audit log, newest first

  Admin:
    POST   /api/admin/seed             Create default revenue types/accounts

ERROR HANDLING:
  Ledger errors map to HTTP status in fail():
  - 400: ledger.ErrValidation, ledger.ErrInsufficientBalance
  - 404: ledger.ErrNotFound
  - 409: ledger.ErrUniqueness
  - 500: everything else; details are logged, not returned

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Authentication and Require(op)
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/club-ledger/ledger"
	"github.com/warp/club-ledger/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Log     zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, Log: log}
}

// Health reports liveness. It is mounted outside /api and needs no token.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ListAccounts returns every account with stored and derived balances.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.Service.AccountBalances(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSheetDTO(sheet))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	acc, err := h.Service.CreateAccount(r.Context(), ledger.AccountInput{
		Name:          req.Name,
		Type:          ledger.AccountType(req.AccountType),
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
	})
	if err != nil {
		h.fail(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(*acc))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := h.Service.GetAccount(r.Context(), ledger.AccountID(id))
	if err != nil {
		h.fail(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acc))
}

func (h *Handler) SetAccountActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetAccountActiveRequest
	if !decode(w, r, &req) {
		return
	}
	acc, err := h.Service.SetAccountActive(r.Context(), ledger.AccountID(id), req.IsActive)
	if err != nil {
		h.fail(w, r, "Failed to update account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acc))
}

// =============================================================================
// MEMBERS
// =============================================================================

// ListMembers supports ?name=&rid=&club=&buddy_group= filters.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	members, err := h.Service.ListMembers(r.Context(), ledger.MemberFilter{
		Name:       q.Get("name"),
		RID:        q.Get("rid"),
		Club:       ledger.Club(strings.ToLower(q.Get("club"))),
		BuddyGroup: q.Get("buddy_group"),
	})
	if err != nil {
		h.fail(w, r, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterMember creates a member and, when registration_fee is present,
// records the fee in the same atomic unit.
func (h *Handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	in, fee := req.toInput()
	member, receipt, err := h.Service.RegisterMember(r.Context(), in, fee)
	if err != nil {
		h.fail(w, r, "Failed to register member", err)
		return
	}
	resp := RegisterMemberResponse{Member: toMemberDTO(*member)}
	if receipt != nil {
		dto := toReceiptDTO(*receipt)
		resp.Receipt = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetMember returns the member with their inbound payment history.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	member, err := h.Service.GetMember(r.Context(), ledger.MemberID(id))
	if err != nil {
		h.fail(w, r, "Failed to get member", err)
		return
	}
	memberID := member.ID
	payments, err := h.Service.ListInboundPayments(r.Context(), ledger.PaymentFilter{MemberID: &memberID})
	if err != nil {
		h.fail(w, r, "Failed to list member payments", err)
		return
	}

	resp := MemberDetailDTO{
		Member:   toMemberDTO(*member),
		Payments: make([]InboundPaymentDTO, len(payments)),
	}
	total := decimal.Zero
	for i, p := range payments {
		resp.Payments[i] = toInboundDTO(p)
		total = total.Add(p.Amount)
	}
	resp.TotalPaid = money(total)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteMember(r.Context(), ledger.MemberID(id)); err != nil {
		h.fail(w, r, "Failed to delete member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SUPPLIERS AND REVENUE TYPES
// =============================================================================

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Service.ListSuppliers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list suppliers", err)
		return
	}
	dtos := make([]SupplierDTO, len(suppliers))
	for i, s := range suppliers {
		dtos[i] = toSupplierDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreateSupplierRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.Service.CreateSupplier(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, "Failed to create supplier", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSupplierDTO(*s))
}

func (h *Handler) ListRevenueTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListRevenueTypes(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list revenue types", err)
		return
	}
	dtos := make([]RevenueTypeDTO, len(types))
	for i, rt := range types {
		dtos[i] = toRevenueTypeDTO(rt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRevenueType(w http.ResponseWriter, r *http.Request) {
	var req CreateRevenueTypeRequest
	if !decode(w, r, &req) {
		return
	}
	rt, err := h.Service.CreateRevenueType(r.Context(), ledger.RevenueTypeInput{
		Name:          req.Name,
		Description:   req.Description,
		DefaultAmount: req.DefaultAmount,
	})
	if err != nil {
		h.fail(w, r, "Failed to create revenue type", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRevenueTypeDTO(*rt))
}

// =============================================================================
// INBOUND PAYMENTS
// =============================================================================

// ListInboundPayments supports ?account_id=&member_id=&from=&to=.
func (h *Handler) ListInboundPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := paymentFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid filter", err)
		return
	}
	payments, err := h.Service.ListInboundPayments(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list payments", err)
		return
	}
	dtos := make([]InboundPaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toInboundDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordInboundPayment(w http.ResponseWriter, r *http.Request) {
	var req InboundPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	receipt, err := h.Service.RecordInboundPayment(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

func (h *Handler) GetInboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetInboundPayment(r.Context(), ledger.PaymentID(id))
	if err != nil {
		h.fail(w, r, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInboundDTO(*p))
}

func (h *Handler) UpdateInboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req InboundPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := req.toUpdate()
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	p, err := h.Service.UpdateInboundPayment(r.Context(), ledger.PaymentID(id), u)
	if err != nil {
		h.fail(w, r, "Failed to update payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toInboundDTO(*p))
}

func (h *Handler) DeleteInboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteInboundPayment(r.Context(), ledger.PaymentID(id)); err != nil {
		h.fail(w, r, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OUTBOUND PAYMENTS
// =============================================================================

// ListOutboundPayments supports ?account_id=&supplier_id=&from=&to=.
func (h *Handler) ListOutboundPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := paymentFilter(r)
	if err != nil {
		h.fail(w, r, "Invalid filter", err)
		return
	}
	payments, err := h.Service.ListOutboundPayments(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list payments", err)
		return
	}
	dtos := make([]OutboundPaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toOutboundDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordOutboundPayment(w http.ResponseWriter, r *http.Request) {
	var req OutboundPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	receipt, err := h.Service.RecordOutboundPayment(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

func (h *Handler) GetOutboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Service.GetOutboundPayment(r.Context(), ledger.PaymentID(id))
	if err != nil {
		h.fail(w, r, "Failed to get payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboundDTO(*p))
}

func (h *Handler) UpdateOutboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OutboundPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := req.toUpdate()
	if err != nil {
		h.fail(w, r, "Invalid payment", err)
		return
	}
	p, err := h.Service.UpdateOutboundPayment(r.Context(), ledger.PaymentID(id), u)
	if err != nil {
		h.fail(w, r, "Failed to update payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboundDTO(*p))
}

func (h *Handler) DeleteOutboundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteOutboundPayment(r.Context(), ledger.PaymentID(id)); err != nil {
		h.fail(w, r, "Failed to delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPORTS
// =============================================================================

// GetCashbook supports ?account_id=&start=&end=. Missing dates default to
// the current month to date.
func (h *Handler) GetCashbook(w http.ResponseWriter, r *http.Request) {
	book, ok := h.cashbook(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCashbookDTO(book))
}

// ExportCashbook streams the same cashbook as an Excel workbook.
func (h *Handler) ExportCashbook(w http.ResponseWriter, r *http.Request) {
	book, ok := h.cashbook(w, r)
	if !ok {
		return
	}
	f, err := report.CashbookWorkbook(book)
	if err != nil {
		h.fail(w, r, "Failed to build workbook", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.CashbookFilename(book)))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		h.Log.Error().Err(err).Msg("write cashbook export")
	}
}

func (h *Handler) cashbook(w http.ResponseWriter, r *http.Request) (*ledger.Cashbook, bool) {
	q := r.URL.Query()
	var query ledger.CashbookQuery
	v := &ledger.ValidationError{}
	if id, ok := queryInt(v, q.Get("account_id"), "account_id"); ok {
		acc := ledger.AccountID(id)
		query.AccountID = &acc
	}
	query.Start = queryDate(v, q.Get("start"), "start")
	query.End = queryDate(v, q.Get("end"), "end")
	if err := v.Err(); err != nil {
		h.fail(w, r, "Invalid cashbook query", err)
		return nil, false
	}

	book, err := h.Service.Cashbook(r.Context(), query)
	if err != nil {
		h.fail(w, r, "Failed to build cashbook", err)
		return nil, false
	}
	return book, true
}

// ListAuditLogs supports ?object_type=&object_id=&actor=&action=&limit=.
// action may repeat.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := &ledger.ValidationError{}
	filter := ledger.AuditFilter{
		ObjectType: q.Get("object_type"),
		Actor:      q.Get("actor"),
	}
	if id, ok := queryInt(v, q.Get("object_id"), "object_id"); ok {
		filter.ObjectID = &id
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, ledger.AuditAction(a))
	}
	if limit, ok := queryInt(v, q.Get("limit"), "limit"); ok {
		filter.Limit = int(limit)
	}
	if err := v.Err(); err != nil {
		h.fail(w, r, "Invalid audit query", err)
		return
	}

	entries, err := h.Service.AuditLog(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to read audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN
// =============================================================================

// Seed creates default revenue types and accounts. Safe to call twice.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Seed(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to seed", err)
		return
	}
	resp := SeedResponse{RevenueTypes: result.RevenueTypes, Accounts: result.Accounts}
	if resp.RevenueTypes == nil {
		resp.RevenueTypes = []string{}
	}
	if resp.Accounts == nil {
		resp.Accounts = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a ledger error to its HTTP status. Internal errors are logged
// with the request id and returned without details.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		requestLogger(r, h.Log).Error().Err(err).Msg(message)
		writeError(w, status, message, nil)
		return
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			resp.Fields = append(resp.Fields, FieldErrorDTO{Field: f.Field, Message: f.Message})
		}
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func paymentFilter(r *http.Request) (ledger.PaymentFilter, error) {
	q := r.URL.Query()
	v := &ledger.ValidationError{}
	var filter ledger.PaymentFilter
	if id, ok := queryInt(v, q.Get("account_id"), "account_id"); ok {
		acc := ledger.AccountID(id)
		filter.AccountID = &acc
	}
	if id, ok := queryInt(v, q.Get("member_id"), "member_id"); ok {
		m := ledger.MemberID(id)
		filter.MemberID = &m
	}
	if id, ok := queryInt(v, q.Get("supplier_id"), "supplier_id"); ok {
		s := ledger.SupplierID(id)
		filter.SupplierID = &s
	}
	filter.From = queryDate(v, q.Get("from"), "from")
	filter.To = queryDate(v, q.Get("to"), "to")
	return filter, v.Err()
}

func queryInt(v *ledger.ValidationError, raw, field string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		v.Add(field, "must be an integer")
		return 0, false
	}
	return n, true
}

func queryDate(v *ledger.ValidationError, raw, field string) *ledger.Date {
	if raw == "" {
		return nil
	}
	d, err := ledger.ParseDate(raw)
	if err != nil {
		v.Add(field, "must be a date (YYYY-MM-DD)")
		return nil
	}
	return &d
}
