// Package store provides an in-memory ledger.TxStore for tests and local
// development.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/club-ledger/ledger"
)

// =============================================================================
// MEMORY DATA - Plain maps, no locking. Callers hold Memory.mu.
// =============================================================================

type memoryData struct {
	accounts     map[ledger.AccountID]ledger.Account
	members      map[ledger.MemberID]ledger.Member
	suppliers    map[ledger.SupplierID]ledger.Supplier
	revenueTypes map[ledger.RevenueTypeID]ledger.RevenueType
	inbound      map[ledger.PaymentID]ledger.InboundPayment
	outbound     map[ledger.PaymentID]ledger.OutboundPayment
	audit        []ledger.AuditEntry

	// Last assigned id per table. Never reused after a delete.
	accountSeq, memberSeq, supplierSeq, revenueTypeSeq, inboundSeq, outboundSeq int64
}

var _ ledger.Store = (*memoryData)(nil)

func newMemoryData() *memoryData {
	return &memoryData{
		accounts:     make(map[ledger.AccountID]ledger.Account),
		members:      make(map[ledger.MemberID]ledger.Member),
		suppliers:    make(map[ledger.SupplierID]ledger.Supplier),
		revenueTypes: make(map[ledger.RevenueTypeID]ledger.RevenueType),
		inbound:      make(map[ledger.PaymentID]ledger.InboundPayment),
		outbound:     make(map[ledger.PaymentID]ledger.OutboundPayment),
	}
}

func (d *memoryData) clone() *memoryData {
	c := *d
	c.accounts = copyMap(d.accounts)
	c.members = copyMap(d.members)
	c.suppliers = copyMap(d.suppliers)
	c.revenueTypes = copyMap(d.revenueTypes)
	c.inbound = copyMap(d.inbound)
	c.outbound = copyMap(d.outbound)
	c.audit = append([]ledger.AuditEntry(nil), d.audit...)
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Accounts

func (d *memoryData) CreateAccount(_ context.Context, a *ledger.Account) error {
	d.accountSeq++
	a.ID = ledger.AccountID(d.accountSeq)
	d.accounts[a.ID] = *a
	return nil
}

func (d *memoryData) GetAccount(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (d *memoryData) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(d.accounts))
	for _, a := range d.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memoryData) UpdateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := d.accounts[a.ID]; !ok {
		return &ledger.NotFoundError{Kind: ledger.ObjectAccount, ID: int64(a.ID)}
	}
	d.accounts[a.ID] = a
	return nil
}

// Members

func (d *memoryData) CreateMember(_ context.Context, m *ledger.Member) error {
	for _, existing := range d.members {
		if existing.RID == m.RID {
			return &ledger.UniquenessError{Field: "rid", Value: m.RID}
		}
		if strings.EqualFold(existing.Email, m.Email) {
			return &ledger.UniquenessError{Field: "email", Value: m.Email}
		}
	}
	d.memberSeq++
	m.ID = ledger.MemberID(d.memberSeq)
	d.members[m.ID] = *m
	return nil
}

func (d *memoryData) GetMember(_ context.Context, id ledger.MemberID) (*ledger.Member, error) {
	m, ok := d.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *memoryData) ListMembers(_ context.Context, f ledger.MemberFilter) ([]ledger.Member, error) {
	var out []ledger.Member
	for _, m := range d.members {
		if !containsFold(m.Name, f.Name) || !containsFold(m.RID, f.RID) || !containsFold(m.BuddyGroup, f.BuddyGroup) {
			continue
		}
		if f.Club != "" && m.Club != f.Club {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *memoryData) DeleteMember(_ context.Context, id ledger.MemberID) error {
	delete(d.members, id)
	return nil
}

func (d *memoryData) UnlinkMemberPayments(_ context.Context, id ledger.MemberID) (int, error) {
	n := 0
	member := d.members[id]
	for pid, p := range d.inbound {
		if l, ok := p.Payer.(ledger.Linked); ok && l.ID == int64(id) {
			p.Payer = ledger.Manual{Name: p.PayerName, Contact: member.Contact, Email: member.Email}
			d.inbound[pid] = p
			n++
		}
	}
	return n, nil
}

// Suppliers

func (d *memoryData) CreateSupplier(_ context.Context, s *ledger.Supplier) error {
	for _, existing := range d.suppliers {
		if existing.SupplierCode == s.SupplierCode {
			return &ledger.UniquenessError{Field: "supplier_code", Value: s.SupplierCode}
		}
	}
	d.supplierSeq++
	s.ID = ledger.SupplierID(d.supplierSeq)
	d.suppliers[s.ID] = *s
	return nil
}

func (d *memoryData) GetSupplier(_ context.Context, id ledger.SupplierID) (*ledger.Supplier, error) {
	s, ok := d.suppliers[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (d *memoryData) ListSuppliers(_ context.Context) ([]ledger.Supplier, error) {
	out := make([]ledger.Supplier, 0, len(d.suppliers))
	for _, s := range d.suppliers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Revenue types

func (d *memoryData) CreateRevenueType(_ context.Context, rt *ledger.RevenueType) error {
	d.revenueTypeSeq++
	rt.ID = ledger.RevenueTypeID(d.revenueTypeSeq)
	d.revenueTypes[rt.ID] = *rt
	return nil
}

func (d *memoryData) GetRevenueType(_ context.Context, id ledger.RevenueTypeID) (*ledger.RevenueType, error) {
	rt, ok := d.revenueTypes[id]
	if !ok {
		return nil, nil
	}
	return &rt, nil
}

func (d *memoryData) ListRevenueTypes(_ context.Context) ([]ledger.RevenueType, error) {
	out := make([]ledger.RevenueType, 0, len(d.revenueTypes))
	for _, rt := range d.revenueTypes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Inbound payments

func (d *memoryData) CreateInbound(_ context.Context, p *ledger.InboundPayment) error {
	for _, existing := range d.inbound {
		if existing.ReceiptNumber == p.ReceiptNumber {
			return &ledger.UniquenessError{Field: "receipt_number", Value: p.ReceiptNumber}
		}
	}
	d.inboundSeq++
	p.ID = ledger.PaymentID(d.inboundSeq)
	d.inbound[p.ID] = *p
	return nil
}

func (d *memoryData) GetInbound(_ context.Context, id ledger.PaymentID) (*ledger.InboundPayment, error) {
	p, ok := d.inbound[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *memoryData) UpdateInbound(_ context.Context, p ledger.InboundPayment) error {
	if _, ok := d.inbound[p.ID]; !ok {
		return &ledger.NotFoundError{Kind: ledger.ObjectInboundPayment, ID: int64(p.ID)}
	}
	d.inbound[p.ID] = p
	return nil
}

func (d *memoryData) DeleteInbound(_ context.Context, id ledger.PaymentID) error {
	delete(d.inbound, id)
	return nil
}

func (d *memoryData) ListInbound(_ context.Context, f ledger.PaymentFilter) ([]ledger.InboundPayment, error) {
	var out []ledger.InboundPayment
	for _, p := range d.inbound {
		if !matchCommon(f, p.AccountID, p.Date) {
			continue
		}
		if f.SupplierID != nil {
			continue
		}
		if f.MemberID != nil {
			l, ok := p.Payer.(ledger.Linked)
			if !ok || l.ID != int64(*f.MemberID) {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Outbound payments

func (d *memoryData) CreateOutbound(_ context.Context, p *ledger.OutboundPayment) error {
	for _, existing := range d.outbound {
		if existing.ReceiptNumber == p.ReceiptNumber {
			return &ledger.UniquenessError{Field: "receipt_number", Value: p.ReceiptNumber}
		}
		if p.InvoiceRef != "" && existing.InvoiceRef == p.InvoiceRef {
			return &ledger.UniquenessError{Field: "invoice_ref", Value: p.InvoiceRef}
		}
	}
	d.outboundSeq++
	p.ID = ledger.PaymentID(d.outboundSeq)
	d.outbound[p.ID] = *p
	return nil
}

func (d *memoryData) GetOutbound(_ context.Context, id ledger.PaymentID) (*ledger.OutboundPayment, error) {
	p, ok := d.outbound[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *memoryData) UpdateOutbound(_ context.Context, p ledger.OutboundPayment) error {
	if _, ok := d.outbound[p.ID]; !ok {
		return &ledger.NotFoundError{Kind: ledger.ObjectOutboundPayment, ID: int64(p.ID)}
	}
	if p.InvoiceRef != "" {
		for id, existing := range d.outbound {
			if id != p.ID && existing.InvoiceRef == p.InvoiceRef {
				return &ledger.UniquenessError{Field: "invoice_ref", Value: p.InvoiceRef}
			}
		}
	}
	d.outbound[p.ID] = p
	return nil
}

func (d *memoryData) DeleteOutbound(_ context.Context, id ledger.PaymentID) error {
	delete(d.outbound, id)
	return nil
}

func (d *memoryData) ListOutbound(_ context.Context, f ledger.PaymentFilter) ([]ledger.OutboundPayment, error) {
	var out []ledger.OutboundPayment
	for _, p := range d.outbound {
		if !matchCommon(f, p.AccountID, p.Date) {
			continue
		}
		if f.MemberID != nil {
			continue
		}
		if f.SupplierID != nil {
			l, ok := p.Payee.(ledger.Linked)
			if !ok || l.ID != int64(*f.SupplierID) {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *memoryData) InvoiceRefExists(_ context.Context, ref string, exclude ledger.PaymentID) (bool, error) {
	for id, p := range d.outbound {
		if id != exclude && p.InvoiceRef == ref {
			return true, nil
		}
	}
	return false, nil
}

// Receipt sequence

func (d *memoryData) LastReceiptNumber(_ context.Context, kind ledger.PaymentKind, prefix string) (string, bool, error) {
	var bestID ledger.PaymentID
	best := ""
	consider := func(id ledger.PaymentID, number string) {
		if strings.HasPrefix(number, prefix) && id > bestID {
			bestID, best = id, number
		}
	}
	if kind == ledger.KindOutbound {
		for id, p := range d.outbound {
			consider(id, p.ReceiptNumber)
		}
	} else {
		for id, p := range d.inbound {
			consider(id, p.ReceiptNumber)
		}
	}
	return best, best != "", nil
}

func (d *memoryData) ReceiptNumberExists(_ context.Context, kind ledger.PaymentKind, number string) (bool, error) {
	if kind == ledger.KindOutbound {
		for _, p := range d.outbound {
			if p.ReceiptNumber == number {
				return true, nil
			}
		}
		return false, nil
	}
	for _, p := range d.inbound {
		if p.ReceiptNumber == number {
			return true, nil
		}
	}
	return false, nil
}

// Audit

func (d *memoryData) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	d.audit = append(d.audit, e)
	return nil
}

func (d *memoryData) QueryAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var out []ledger.AuditEntry
	for i := len(d.audit) - 1; i >= 0; i-- {
		e := d.audit[i]
		if f.ObjectType != "" && e.ObjectType != f.ObjectType {
			continue
		}
		if f.ObjectID != nil && e.ObjectID != *f.ObjectID {
			continue
		}
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		if len(f.Actions) > 0 && !hasAction(f.Actions, e.Action) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func matchCommon(f ledger.PaymentFilter, account ledger.AccountID, date ledger.Date) bool {
	if f.AccountID != nil && account != *f.AccountID {
		return false
	}
	if f.From != nil && date.Before(*f.From) {
		return false
	}
	if f.To != nil && date.After(*f.To) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasAction(actions []ledger.AuditAction, a ledger.AuditAction) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

// =============================================================================
// MEMORY STORE - Locked access to memoryData
// =============================================================================

// Memory is a ledger.TxStore backed by maps. Reads take the read lock,
// writes and atomic units take the write lock, so units are serialized.
type Memory struct {
	mu   sync.RWMutex
	data *memoryData
}

var _ ledger.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: newMemoryData()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.data.clone()
	if err := fn(m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(d *memoryData)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.data)
}

func (m *Memory) write(fn func(d *memoryData)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.data)
}

func (m *Memory) CreateAccount(ctx context.Context, a *ledger.Account) (err error) {
	m.write(func(d *memoryData) { err = d.CreateAccount(ctx, a) })
	return
}

func (m *Memory) GetAccount(ctx context.Context, id ledger.AccountID) (a *ledger.Account, err error) {
	m.read(func(d *memoryData) { a, err = d.GetAccount(ctx, id) })
	return
}

func (m *Memory) ListAccounts(ctx context.Context) (out []ledger.Account, err error) {
	m.read(func(d *memoryData) { out, err = d.ListAccounts(ctx) })
	return
}

func (m *Memory) UpdateAccount(ctx context.Context, a ledger.Account) (err error) {
	m.write(func(d *memoryData) { err = d.UpdateAccount(ctx, a) })
	return
}

func (m *Memory) CreateMember(ctx context.Context, mem *ledger.Member) (err error) {
	m.write(func(d *memoryData) { err = d.CreateMember(ctx, mem) })
	return
}

func (m *Memory) GetMember(ctx context.Context, id ledger.MemberID) (mem *ledger.Member, err error) {
	m.read(func(d *memoryData) { mem, err = d.GetMember(ctx, id) })
	return
}

func (m *Memory) ListMembers(ctx context.Context, f ledger.MemberFilter) (out []ledger.Member, err error) {
	m.read(func(d *memoryData) { out, err = d.ListMembers(ctx, f) })
	return
}

func (m *Memory) DeleteMember(ctx context.Context, id ledger.MemberID) (err error) {
	m.write(func(d *memoryData) { err = d.DeleteMember(ctx, id) })
	return
}

func (m *Memory) UnlinkMemberPayments(ctx context.Context, id ledger.MemberID) (n int, err error) {
	m.write(func(d *memoryData) { n, err = d.UnlinkMemberPayments(ctx, id) })
	return
}

func (m *Memory) CreateSupplier(ctx context.Context, s *ledger.Supplier) (err error) {
	m.write(func(d *memoryData) { err = d.CreateSupplier(ctx, s) })
	return
}

func (m *Memory) GetSupplier(ctx context.Context, id ledger.SupplierID) (s *ledger.Supplier, err error) {
	m.read(func(d *memoryData) { s, err = d.GetSupplier(ctx, id) })
	return
}

func (m *Memory) ListSuppliers(ctx context.Context) (out []ledger.Supplier, err error) {
	m.read(func(d *memoryData) { out, err = d.ListSuppliers(ctx) })
	return
}

func (m *Memory) CreateRevenueType(ctx context.Context, rt *ledger.RevenueType) (err error) {
	m.write(func(d *memoryData) { err = d.CreateRevenueType(ctx, rt) })
	return
}

func (m *Memory) GetRevenueType(ctx context.Context, id ledger.RevenueTypeID) (rt *ledger.RevenueType, err error) {
	m.read(func(d *memoryData) { rt, err = d.GetRevenueType(ctx, id) })
	return
}

func (m *Memory) ListRevenueTypes(ctx context.Context) (out []ledger.RevenueType, err error) {
	m.read(func(d *memoryData) { out, err = d.ListRevenueTypes(ctx) })
	return
}

func (m *Memory) CreateInbound(ctx context.Context, p *ledger.InboundPayment) (err error) {
	m.write(func(d *memoryData) { err = d.CreateInbound(ctx, p) })
	return
}

func (m *Memory) GetInbound(ctx context.Context, id ledger.PaymentID) (p *ledger.InboundPayment, err error) {
	m.read(func(d *memoryData) { p, err = d.GetInbound(ctx, id) })
	return
}

func (m *Memory) UpdateInbound(ctx context.Context, p ledger.InboundPayment) (err error) {
	m.write(func(d *memoryData) { err = d.UpdateInbound(ctx, p) })
	return
}

func (m *Memory) DeleteInbound(ctx context.Context, id ledger.PaymentID) (err error) {
	m.write(func(d *memoryData) { err = d.DeleteInbound(ctx, id) })
	return
}

func (m *Memory) ListInbound(ctx context.Context, f ledger.PaymentFilter) (out []ledger.InboundPayment, err error) {
	m.read(func(d *memoryData) { out, err = d.ListInbound(ctx, f) })
	return
}

func (m *Memory) CreateOutbound(ctx context.Context, p *ledger.OutboundPayment) (err error) {
	m.write(func(d *memoryData) { err = d.CreateOutbound(ctx, p) })
	return
}

func (m *Memory) GetOutbound(ctx context.Context, id ledger.PaymentID) (p *ledger.OutboundPayment, err error) {
	m.read(func(d *memoryData) { p, err = d.GetOutbound(ctx, id) })
	return
}

func (m *Memory) UpdateOutbound(ctx context.Context, p ledger.OutboundPayment) (err error) {
	m.write(func(d *memoryData) { err = d.UpdateOutbound(ctx, p) })
	return
}

func (m *Memory) DeleteOutbound(ctx context.Context, id ledger.PaymentID) (err error) {
	m.write(func(d *memoryData) { err = d.DeleteOutbound(ctx, id) })
	return
}

func (m *Memory) ListOutbound(ctx context.Context, f ledger.PaymentFilter) (out []ledger.OutboundPayment, err error) {
	m.read(func(d *memoryData) { out, err = d.ListOutbound(ctx, f) })
	return
}

func (m *Memory) InvoiceRefExists(ctx context.Context, ref string, exclude ledger.PaymentID) (ok bool, err error) {
	m.read(func(d *memoryData) { ok, err = d.InvoiceRefExists(ctx, ref, exclude) })
	return
}

func (m *Memory) LastReceiptNumber(ctx context.Context, kind ledger.PaymentKind, prefix string) (number string, ok bool, err error) {
	m.read(func(d *memoryData) { number, ok, err = d.LastReceiptNumber(ctx, kind, prefix) })
	return
}

func (m *Memory) ReceiptNumberExists(ctx context.Context, kind ledger.PaymentKind, number string) (ok bool, err error) {
	m.read(func(d *memoryData) { ok, err = d.ReceiptNumberExists(ctx, kind, number) })
	return
}

func (m *Memory) AppendAudit(ctx context.Context, e ledger.AuditEntry) (err error) {
	m.write(func(d *memoryData) { err = d.AppendAudit(ctx, e) })
	return
}

func (m *Memory) QueryAudit(ctx context.Context, f ledger.AuditFilter) (out []ledger.AuditEntry, err error) {
	m.read(func(d *memoryData) { out, err = d.QueryAudit(ctx, f) })
	return
}
