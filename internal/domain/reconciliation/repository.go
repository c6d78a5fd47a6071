package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentRepository loads and saves payments with their allocations,
// refunds and reversal. Finders return nil, nil when the payment does not exist.
type PaymentRepository interface {
	// FindByID reads a payment without locking it
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindForUpdate reads a payment and holds a row lock until the
	// surrounding transaction ends
	FindForUpdate(ctx context.Context, id uuid.UUID) (*Payment, error)

	// Save persists status, remaining amount and version. It fails with a
	// concurrency conflict if the stored version moved on.
	Save(ctx context.Context, payment *Payment) error
}

// InvoiceRepository loads and saves invoices
type InvoiceRepository interface {
	// FindByIDs reads invoices without locking them
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*Invoice, error)

	// FindForUpdate locks the given invoices in ascending id order
	FindForUpdate(ctx context.Context, ids []uuid.UUID) ([]*Invoice, error)

	// FindOpenForCustomer locks the open invoices of a customer issued on or
	// before asOf
	FindOpenForCustomer(ctx context.Context, companyID, customerID uuid.UUID, asOf time.Time) ([]*Invoice, error)

	// Save persists total paid, status and version with an optimistic check
	Save(ctx context.Context, invoice *Invoice) error
}

// AllocationRepository writes allocation rows
type AllocationRepository interface {
	CreateBatch(ctx context.Context, allocations []*Allocation) error
}

// RefundRepository writes refund rows
type RefundRepository interface {
	CreateBatch(ctx context.Context, refunds []*Refund) error
}

// ReversalRepository writes reversal rows
type ReversalRepository interface {
	Create(ctx context.Context, reversal *Reversal) error
}

// Ledger groups the repositories bound to one transaction
type Ledger interface {
	Payments() PaymentRepository
	Invoices() InvoiceRepository
	Allocations() AllocationRepository
	Refunds() RefundRepository
	Reversals() ReversalRepository
}

// UnitOfWork runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error

	// Reader returns a ledger for reads outside any transaction
	Reader() Ledger
}
