package persistence

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"gorm.io/gorm"
)

// GormUnitOfWork runs reconciliation commands in a GORM transaction
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn with a ledger bound to one transaction. The transaction commits
// when fn returns nil and rolls back otherwise, including on panic.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, ledger reconciliation.Ledger) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormLedger(tx))
	})
}

// Reader returns a ledger that reads outside any transaction
func (u *GormUnitOfWork) Reader() reconciliation.Ledger {
	return NewGormLedger(u.db)
}

// GormLedger groups the repositories bound to one *gorm.DB
type GormLedger struct {
	payments    *GormPaymentRepository
	invoices    *GormInvoiceRepository
	allocations *GormAllocationRepository
	refunds     *GormRefundRepository
	reversals   *GormReversalRepository
}

// NewGormLedger creates a ledger over db, which may be a transaction
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{
		payments:    NewGormPaymentRepository(db),
		invoices:    NewGormInvoiceRepository(db),
		allocations: NewGormAllocationRepository(db),
		refunds:     NewGormRefundRepository(db),
		reversals:   NewGormReversalRepository(db),
	}
}

// Payments returns the payment repository
func (l *GormLedger) Payments() reconciliation.PaymentRepository { return l.payments }

// Invoices returns the invoice repository
func (l *GormLedger) Invoices() reconciliation.InvoiceRepository { return l.invoices }

// Allocations returns the allocation repository
func (l *GormLedger) Allocations() reconciliation.AllocationRepository { return l.allocations }

// Refunds returns the refund repository
func (l *GormLedger) Refunds() reconciliation.RefundRepository { return l.refunds }

// Reversals returns the reversal repository
func (l *GormLedger) Reversals() reconciliation.ReversalRepository { return l.reversals }

// PaymentStore exposes the concrete payment repository, which can also
// create payments
func (l *GormLedger) PaymentStore() *GormPaymentRepository { return l.payments }

// InvoiceStore exposes the concrete invoice repository, which can also
// create invoices
func (l *GormLedger) InvoiceStore() *GormInvoiceRepository { return l.invoices }

var (
	_ reconciliation.UnitOfWork = (*GormUnitOfWork)(nil)
	_ reconciliation.Ledger     = (*GormLedger)(nil)
)
