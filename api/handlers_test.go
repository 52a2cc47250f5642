/*
handlers_test.go - HTTP behaviour of the API over the in-memory store

Tests for:
- Authentication (401) and the role matrix (403)
- Recording and editing payments through JSON
- Validation errors with per-field details
- Cashbook JSON and the xlsx export
- Drift report and seed
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/club-ledger/access"
	"github.com/warp/club-ledger/ledger"
	"github.com/warp/club-ledger/ledger/store"
	"github.com/warp/club-ledger/report"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var apiNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	router  http.Handler
	svc     *ledger.Service
	auth    *Authenticator
	account ledger.AccountID
	dues    ledger.RevenueTypeID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	svc := ledger.NewService(store.NewMemory(), ledger.Options{Now: func() time.Time { return apiNow }})
	ctx := ledger.WithActor(context.Background(), "setup")

	acc, err := svc.CreateAccount(ctx, ledger.AccountInput{Name: "Main Cash", Type: ledger.AccountCash})
	require.NoError(t, err)
	dues, err := svc.CreateRevenueType(ctx, ledger.RevenueTypeInput{Name: "Monthly Dues"})
	require.NoError(t, err)

	auth := NewAuthenticator(testSecret)
	auth.now = func() time.Time { return apiNow }
	log := zerolog.Nop()
	monitor := NewDriftMonitor(svc, log)

	return &apiFixture{
		router:  NewRouter(NewHandler(svc, log), auth, monitor, []string{"http://localhost:3000"}),
		svc:     svc,
		auth:    auth,
		account: acc.ID,
		dues:    dues.ID,
	}
}

func (f *apiFixture) token(t *testing.T, role access.Role) string {
	t.Helper()
	tok, err := f.auth.IssueToken(string(role)+"@club", role, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends body (marshalled when not nil) as role. An empty role sends no
// Authorization header.
func (f *apiFixture) do(t *testing.T, role access.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, role))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *apiFixture) inboundBody(amount, date string) map[string]any {
	return map[string]any{
		"payer_name":      "John",
		"revenue_type_id": f.dues,
		"amount":          amount,
		"payment_date":    date,
		"payment_method":  "cash",
		"account_id":      f.account,
	}
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealth_NoToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "", http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, "", http.MethodGet, "/api/accounts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ExpiredToken(t *testing.T) {
	f := newAPIFixture(t)
	tok, err := f.auth.IssueToken("old@club", access.RoleAdmin, time.Minute)
	require.NoError(t, err)
	f.auth.now = func() time.Time { return apiNow.Add(time.Hour) }

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_RoleMatrix(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		role   access.Role
		method string
		path   string
		want   int
	}{
		{"viewer reads accounts", access.RoleViewer, http.MethodGet, "/api/accounts", http.StatusOK},
		{"viewer cannot record", access.RoleViewer, http.MethodPost, "/api/payments/in", http.StatusForbidden},
		{"registrar cannot record", access.RoleRegistrar, http.MethodPost, "/api/payments/out", http.StatusForbidden},
		{"treasurer cannot read audit", access.RoleTreasurer, http.MethodGet, "/api/audit-logs", http.StatusForbidden},
		{"treasurer cannot seed", access.RoleTreasurer, http.MethodPost, "/api/admin/seed", http.StatusForbidden},
		{"treasurer cannot delete member", access.RoleTreasurer, http.MethodDelete, "/api/members/1", http.StatusForbidden},
		{"admin reads audit", access.RoleAdmin, http.MethodGet, "/api/audit-logs", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.role, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordInboundPayment_ReturnsReceipt(t *testing.T) {
	// GIVEN: An account with zero balance
	f := newAPIFixture(t)

	// WHEN: The treasurer records a payment
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("1000.00", "2024-03-05"))

	// THEN: A receipt with the new balance comes back
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	receipt := decodeBody[ReceiptDTO](t, rec)
	assert.Equal(t, "RC-202403-0001", receipt.ReceiptNumber)
	assert.Equal(t, "1000.00", receipt.Amount)
	assert.Equal(t, "1000.00", receipt.Balance)

	// AND: The payment is readable with the treasurer as creator
	rec = f.do(t, access.RoleViewer, http.MethodGet, fmt.Sprintf("/api/payments/in/%d", receipt.PaymentID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[InboundPaymentDTO](t, rec)
	assert.Equal(t, "John", p.PayerName)
	assert.Equal(t, "2024-03-05", p.PaymentDate)
	assert.Equal(t, "treasurer@club", p.CreatedBy)
}

func TestRecordInboundPayment_ValidationFields(t *testing.T) {
	f := newAPIFixture(t)
	body := f.inboundBody("-5", "2024-03-05")
	body["payment_method"] = "barter"

	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	fields := map[string]bool{}
	for _, fe := range resp.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["amount"], resp.Fields)
	assert.True(t, fields["payment_method"], resp.Fields)

	sheet, err := f.svc.AccountBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, sheet.Accounts[0].Stored.IsZero())
}

func TestRecordInboundPayment_BothPayers(t *testing.T) {
	f := newAPIFixture(t)
	body := f.inboundBody("10", "2024-03-05")
	body["payer_member_id"] = 1

	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "payer", resp.Fields[0].Field)
}

func TestRecordInboundPayment_BadBody(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/in", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+f.token(t, access.RoleTreasurer))
	rec := httptest.NewRecorder()

	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateInboundPayment_PartialBody(t *testing.T) {
	// GIVEN: A recorded payment of 1000
	f := newAPIFixture(t)
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("1000", "2024-03-05"))
	require.Equal(t, http.StatusCreated, rec.Code)
	receipt := decodeBody[ReceiptDTO](t, rec)

	// WHEN: Only the amount is sent
	rec = f.do(t, access.RoleTreasurer, http.MethodPut, fmt.Sprintf("/api/payments/in/%d", receipt.PaymentID), map[string]any{"amount": "1200"})

	// THEN: The amount changes and everything else stays
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decodeBody[InboundPaymentDTO](t, rec)
	assert.Equal(t, "1200.00", p.Amount)
	assert.Equal(t, "John", p.PayerName)
	assert.Equal(t, receipt.ReceiptNumber, p.ReceiptNumber)

	acc, err := f.svc.GetAccount(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, "1200.00", money(acc.Balance))
}

func TestPayment_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, access.RoleViewer, http.MethodGet, "/api/payments/in/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, access.RoleTreasurer, http.MethodDelete, "/api/payments/out/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, access.RoleViewer, http.MethodGet, "/api/payments/in/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordOutboundPayment_InsufficientBalance(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/out", map[string]any{
		"payee_name":       "Printer Co",
		"reason":           "Flyers",
		"expense_category": "Printing",
		"amount":           "50",
		"payment_date":     "2024-03-05",
		"payment_method":   "cash",
		"account_id":       f.account,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "insufficient balance")
}

// =============================================================================
// REPORTS
// =============================================================================

func TestGetCashbook_RunningBalance(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("300", "2024-03-02"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/out", map[string]any{
		"payee_name":       "Printer Co",
		"reason":           "Flyers",
		"expense_category": "Printing",
		"amount":           "120.50",
		"payment_date":     "2024-03-04",
		"payment_method":   "cash",
		"account_id":       f.account,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Missing dates default to the month to date.
	rec = f.do(t, access.RoleViewer, http.MethodGet, fmt.Sprintf("/api/cashbook?account_id=%d", f.account), nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	book := decodeBody[CashbookDTO](t, rec)
	assert.Equal(t, "2024-03-01", book.Start)
	assert.Equal(t, "2024-03-15", book.End)
	assert.Equal(t, "0.00", book.OpeningBalance)
	require.Len(t, book.Entries, 3)
	assert.Equal(t, "opening_balance", book.Entries[0].Type)
	assert.Equal(t, "300.00", book.Entries[1].Balance)
	assert.Nil(t, book.Entries[1].Payment)
	assert.Equal(t, "179.50", book.Entries[2].Balance)
	require.NotNil(t, book.Entries[2].Payment)
	assert.Equal(t, "120.50", *book.Entries[2].Payment)
	assert.Equal(t, "179.50", book.ClosingBalance)
}

func TestGetCashbook_BadQuery(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, access.RoleViewer, http.MethodGet, "/api/cashbook?start=yesterday&account_id=x", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Len(t, resp.Fields, 2)
}

func TestExportCashbook_Workbook(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("300", "2024-03-02"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, access.RoleViewer, http.MethodGet, "/api/cashbook/export?start=2024-03-01&end=2024-03-31", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	// xlsx files are zip archives.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestDriftReport_Clean(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("300", "2024-03-02"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, access.RoleViewer, http.MethodGet, "/api/accounts/drift", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[DriftReportDTO](t, rec)
	require.NotNil(t, resp.Report)
	assert.False(t, resp.Report.HasDrift)
	assert.NotEmpty(t, resp.CheckedAt)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestSeed_SecondCallCreatesNothing(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, access.RoleAdmin, http.MethodPost, "/api/admin/seed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[SeedResponse](t, rec)
	assert.NotEmpty(t, first.RevenueTypes)

	rec = f.do(t, access.RoleAdmin, http.MethodPost, "/api/admin/seed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"created_revenue_types":[],"created_accounts":[]}`, rec.Body.String())
}

func TestAuditLogs_RecordsActor(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, access.RoleTreasurer, http.MethodPost, "/api/payments/in", f.inboundBody("300", "2024-03-02"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, access.RoleAdmin, http.MethodGet, "/api/audit-logs?actor=treasurer@club", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]AuditEntryDTO](t, rec)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, "treasurer@club", e.Actor)
	}
}
