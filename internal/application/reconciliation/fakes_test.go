package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Capability checker mock
// =============================================================================

type MockCapabilityChecker struct {
	mock.Mock
}

func (m *MockCapabilityChecker) HasCapability(ctx context.Context, subject uuid.UUID, action string) bool {
	args := m.Called(ctx, subject, action)
	return args.Bool(0)
}

var allCapabilities = []domain.Capability{
	domain.CapabilityAllocate,
	domain.CapabilityVoid,
	domain.CapabilityRefund,
	domain.CapabilityVoidOld,
	domain.CapabilityRefundOld,
}

// grantOnly returns a checker that grants exactly the listed capabilities
func grantOnly(capabilities ...domain.Capability) *MockCapabilityChecker {
	granted := make(map[domain.Capability]bool, len(capabilities))
	for _, c := range capabilities {
		granted[c] = true
	}
	m := new(MockCapabilityChecker)
	for _, c := range allCapabilities {
		m.On("HasCapability", mock.Anything, mock.Anything, c.String()).Return(granted[c]).Maybe()
	}
	return m
}

// =============================================================================
// Recording audit sink and idempotency store
// =============================================================================

type recordingAuditSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingAuditSink) Record(_ context.Context, event domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAuditSink) last() domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recordingAuditSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type memoryIdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string][]byte
	reserved map[string]bool
	releases int
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{entries: make(map[string][]byte), reserved: make(map[string]bool)}
}

func (s *memoryIdempotencyStore) Seen(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *memoryIdempotencyStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.entries[key]; done || s.reserved[key] {
		return false, nil
	}
	s.reserved[key] = true
	return true, nil
}

func (s *memoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, key)
	s.releases++
	return nil
}

func (s *memoryIdempotencyStore) Remember(_ context.Context, key string, result []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, key)
	if _, ok := s.entries[key]; !ok {
		s.entries[key] = result
	}
	return nil
}

func (s *memoryIdempotencyStore) Close() error { return nil }

// =============================================================================
// In-memory ledger
// =============================================================================

// memoryLedger keeps committed copies of every aggregate. A unit of work
// stages its writes and only publishes them when fn succeeds.
type memoryLedger struct {
	mu          sync.Mutex
	payments    map[uuid.UUID]*domain.Payment
	invoices    map[uuid.UUID]*domain.Invoice
	allocations []*domain.Allocation
	refunds     []*domain.Refund
	reversals   []*domain.Reversal

	failInvoiceSave error
	transactions    int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		payments: make(map[uuid.UUID]*domain.Payment),
		invoices: make(map[uuid.UUID]*domain.Invoice),
	}
}

func (l *memoryLedger) addPayment(p *domain.Payment) {
	l.payments[p.ID] = clonePayment(p)
}

func (l *memoryLedger) addInvoice(inv *domain.Invoice) {
	l.invoices[inv.ID] = cloneInvoice(inv)
}

func (l *memoryLedger) payment(id uuid.UUID) *domain.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return clonePayment(l.payments[id])
}

func (l *memoryLedger) invoice(id uuid.UUID) *domain.Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneInvoice(l.invoices[id])
}

func (l *memoryLedger) Do(ctx context.Context, fn func(ctx context.Context, ledger domain.Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions++

	tx := &memoryTx{
		parent:   l,
		payments: make(map[uuid.UUID]*domain.Payment),
		invoices: make(map[uuid.UUID]*domain.Invoice),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, p := range tx.payments {
		l.payments[id] = p
	}
	for id, inv := range tx.invoices {
		l.invoices[id] = inv
	}
	l.allocations = append(l.allocations, tx.allocations...)
	l.refunds = append(l.refunds, tx.refunds...)
	l.reversals = append(l.reversals, tx.reversals...)
	return nil
}

func (l *memoryLedger) Reader() domain.Ledger {
	return &memoryTx{parent: l, readOnly: true}
}

type memoryTx struct {
	parent      *memoryLedger
	readOnly    bool
	payments    map[uuid.UUID]*domain.Payment
	invoices    map[uuid.UUID]*domain.Invoice
	allocations []*domain.Allocation
	refunds     []*domain.Refund
	reversals   []*domain.Reversal
}

func (t *memoryTx) Payments() domain.PaymentRepository       { return memoryPayments{t} }
func (t *memoryTx) Invoices() domain.InvoiceRepository       { return memoryInvoices{t} }
func (t *memoryTx) Allocations() domain.AllocationRepository { return memoryAllocations{t} }
func (t *memoryTx) Refunds() domain.RefundRepository         { return memoryRefunds{t} }
func (t *memoryTx) Reversals() domain.ReversalRepository     { return memoryReversals{t} }

type memoryPayments struct{ tx *memoryTx }

func (r memoryPayments) FindByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	if r.tx.readOnly {
		r.tx.parent.mu.Lock()
		defer r.tx.parent.mu.Unlock()
	}
	return clonePayment(r.tx.parent.payments[id]), nil
}

func (r memoryPayments) FindForUpdate(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	return clonePayment(r.tx.parent.payments[id]), nil
}

func (r memoryPayments) Save(_ context.Context, p *domain.Payment) error {
	stored, ok := r.tx.parent.payments[p.ID]
	if !ok || stored.Version != p.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.tx.payments[p.ID] = clonePayment(p)
	return nil
}

type memoryInvoices struct{ tx *memoryTx }

func (r memoryInvoices) FindByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Invoice, error) {
	if r.tx.readOnly {
		r.tx.parent.mu.Lock()
		defer r.tx.parent.mu.Unlock()
	}
	return r.find(ids), nil
}

func (r memoryInvoices) FindForUpdate(_ context.Context, ids []uuid.UUID) ([]*domain.Invoice, error) {
	return r.find(domain.SortInvoiceIDs(ids)), nil
}

func (r memoryInvoices) find(ids []uuid.UUID) []*domain.Invoice {
	out := make([]*domain.Invoice, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if inv, ok := r.tx.parent.invoices[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, cloneInvoice(inv))
		}
	}
	return out
}

func (r memoryInvoices) FindOpenForCustomer(_ context.Context, companyID, customerID uuid.UUID, asOf time.Time) ([]*domain.Invoice, error) {
	ids := make([]uuid.UUID, 0)
	for id, inv := range r.tx.parent.invoices {
		if inv.CompanyID == companyID && inv.CustomerID == customerID &&
			inv.Status.IsOpen() && !inv.IssueDate.After(asOf) {
			ids = append(ids, id)
		}
	}
	return r.find(domain.SortInvoiceIDs(ids)), nil
}

func (r memoryInvoices) Save(_ context.Context, inv *domain.Invoice) error {
	if r.tx.parent.failInvoiceSave != nil {
		return r.tx.parent.failInvoiceSave
	}
	stored, ok := r.tx.parent.invoices[inv.ID]
	if !ok || stored.Version != inv.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.tx.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

type memoryAllocations struct{ tx *memoryTx }

func (r memoryAllocations) CreateBatch(_ context.Context, allocations []*domain.Allocation) error {
	r.tx.allocations = append(r.tx.allocations, allocations...)
	return nil
}

type memoryRefunds struct{ tx *memoryTx }

func (r memoryRefunds) CreateBatch(_ context.Context, refunds []*domain.Refund) error {
	r.tx.refunds = append(r.tx.refunds, refunds...)
	return nil
}

type memoryReversals struct{ tx *memoryTx }

func (r memoryReversals) Create(_ context.Context, reversal *domain.Reversal) error {
	for _, existing := range r.tx.parent.reversals {
		if existing.PaymentID == reversal.PaymentID {
			return errors.New("duplicate reversal")
		}
	}
	r.tx.reversals = append(r.tx.reversals, reversal)
	return nil
}

func clonePayment(p *domain.Payment) *domain.Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.Allocations = append([]domain.Allocation(nil), p.Allocations...)
	c.Refunds = append([]domain.Refund(nil), p.Refunds...)
	if p.Reversal != nil {
		r := *p.Reversal
		c.Reversal = &r
	}
	c.ClearDomainEvents()
	return &c
}

func cloneInvoice(inv *domain.Invoice) *domain.Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.ClearDomainEvents()
	return &c
}
