package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate is SELECT ... FOR UPDATE. Dialects without row locks ignore it.
var lockForUpdate = clause.Locking{Strength: "UPDATE"}

// GormPaymentRepository implements reconciliation.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID reads a payment with its allocations, refunds and reversal
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Payment, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// FindForUpdate reads a payment and locks its row for the rest of the transaction
func (r *GormPaymentRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*reconciliation.Payment, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(lockForUpdate), id)
}

func (r *GormPaymentRepository) find(ctx context.Context, query *gorm.DB, id uuid.UUID) (*reconciliation.Payment, error) {
	var model models.PaymentModel
	err := query.
		Preload("Allocations", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, invoice_number ASC, id ASC")
		}).
		Preload("Refunds", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	payment := model.ToDomain()

	var reversal models.ReversalModel
	err = r.db.WithContext(ctx).Where("payment_id = ?", id).First(&reversal).Error
	switch {
	case err == nil:
		payment.Reversal = reversal.ToDomain()
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return payment, nil
}

// Create inserts a new payment. Child rows are not written.
func (r *GormPaymentRepository) Create(ctx context.Context, payment *reconciliation.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(model).Error
}

// Save persists status, remaining amount and version with an optimistic check
func (r *GormPaymentRepository) Save(ctx context.Context, payment *reconciliation.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", payment.ID, payment.Version-1).
		Updates(map[string]interface{}{
			"status":           model.Status,
			"remaining_amount": model.RemainingAmount,
			"reversal_id":      model.ReversalID,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", payment.PaymentNumber, shared.ErrConcurrencyConflict)
	}
	return nil
}

// GormInvoiceRepository implements reconciliation.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByIDs reads invoices without locking them
func (r *GormInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*reconciliation.Invoice, error) {
	if len(ids) == 0 {
		return []*reconciliation.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindForUpdate locks the given invoices in ascending id order
func (r *GormInvoiceRepository) FindForUpdate(ctx context.Context, ids []uuid.UUID) ([]*reconciliation.Invoice, error) {
	if len(ids) == 0 {
		return []*reconciliation.Invoice{}, nil
	}
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Clauses(lockForUpdate).
		Where("id IN ?", uniqueIDs(ids)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// FindOpenForCustomer locks the sent and partially paid invoices of a
// customer issued on or before asOf
func (r *GormInvoiceRepository) FindOpenForCustomer(
	ctx context.Context,
	companyID, customerID uuid.UUID,
	asOf time.Time,
) ([]*reconciliation.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Clauses(lockForUpdate).
		Where("company_id = ? AND customer_id = ?", companyID, customerID).
		Where("status IN ?", []reconciliation.InvoiceStatus{
			reconciliation.InvoiceStatusSent,
			reconciliation.InvoiceStatusPartial,
		}).
		Where("issue_date <= ?", reconciliation.DateOf(asOf)).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return invoicesToDomain(rows), nil
}

// Create inserts a new invoice
func (r *GormInvoiceRepository) Create(ctx context.Context, invoice *reconciliation.Invoice) error {
	return r.db.WithContext(ctx).Create(models.InvoiceModelFromDomain(invoice)).Error
}

// Save persists total paid, status and version with an optimistic check
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *reconciliation.Invoice) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(map[string]interface{}{
			"total_paid": invoice.TotalPaid,
			"status":     invoice.Status,
			"version":    invoice.Version,
			"updated_at": invoice.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("invoice %s: %w", invoice.InvoiceNumber, shared.ErrConcurrencyConflict)
	}
	return nil
}

func invoicesToDomain(rows []models.InvoiceModel) []*reconciliation.Invoice {
	out := make([]*reconciliation.Invoice, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GormAllocationRepository writes allocation rows
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// CreateBatch inserts allocations in one statement
func (r *GormAllocationRepository) CreateBatch(ctx context.Context, allocations []*reconciliation.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	rows := make([]*models.AllocationModel, len(allocations))
	for i, a := range allocations {
		rows[i] = models.AllocationModelFromDomain(a)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// GormRefundRepository writes refund rows
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// CreateBatch inserts refunds in one statement
func (r *GormRefundRepository) CreateBatch(ctx context.Context, refunds []*reconciliation.Refund) error {
	if len(refunds) == 0 {
		return nil
	}
	rows := make([]*models.RefundModel, len(refunds))
	for i, ref := range refunds {
		rows[i] = models.RefundModelFromDomain(ref)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// GormReversalRepository writes reversal rows
type GormReversalRepository struct {
	db *gorm.DB
}

// NewGormReversalRepository creates a new GormReversalRepository
func NewGormReversalRepository(db *gorm.DB) *GormReversalRepository {
	return &GormReversalRepository{db: db}
}

// Create inserts the reversal. The unique index on payment_id rejects a
// second reversal for the same payment.
func (r *GormReversalRepository) Create(ctx context.Context, reversal *reconciliation.Reversal) error {
	return r.db.WithContext(ctx).Create(models.ReversalModelFromDomain(reversal)).Error
}
