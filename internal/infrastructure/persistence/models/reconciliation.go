package models

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for the Payment aggregate root.
// Allocations and refunds are loaded with it; the reversal is read separately.
type PaymentModel struct {
	CompanyAggregateModel
	CustomerID      uuid.UUID                    `gorm:"type:uuid;not null;index"`
	PaymentNumber   string                       `gorm:"type:varchar(50);not null;index"`
	Amount          decimal.Decimal              `gorm:"type:decimal(18,4);not null"`
	Currency        string                       `gorm:"type:varchar(3);not null;default:'USD'"`
	Status          reconciliation.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	PaymentDate     time.Time                    `gorm:"type:date;not null"`
	PaymentMethod   reconciliation.PaymentMethod `gorm:"type:varchar(30);not null"`
	Reference       string                       `gorm:"type:varchar(100)"`
	RemainingAmount decimal.Decimal              `gorm:"type:decimal(18,4);not null"`
	ReversalID      *uuid.UUID                   `gorm:"type:uuid"`
	Allocations     []AllocationModel            `gorm:"foreignKey:PaymentID"`
	Refunds         []RefundModel                `gorm:"foreignKey:PaymentID"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *reconciliation.Payment {
	p := &reconciliation.Payment{
		CompanyAggregateRoot: m.ToDomainCompanyAggregateRoot(),
		CustomerID:           m.CustomerID,
		PaymentNumber:        m.PaymentNumber,
		Amount:               m.Amount,
		Currency:             valueobject.Currency(m.Currency),
		Status:               m.Status,
		PaymentDate:          reconciliation.DateOf(m.PaymentDate),
		PaymentMethod:        m.PaymentMethod,
		Reference:            m.Reference,
		Allocations:          make([]reconciliation.Allocation, 0, len(m.Allocations)),
		Refunds:              make([]reconciliation.Refund, 0, len(m.Refunds)),
	}
	for i := range m.Allocations {
		p.Allocations = append(p.Allocations, m.Allocations[i].ToDomain())
	}
	for i := range m.Refunds {
		p.Refunds = append(p.Refunds, m.Refunds[i].ToDomain())
	}
	return p
}

// FromDomain populates the persistence model from a domain Payment. Child
// rows are written by their own repositories and are not copied.
func (m *PaymentModel) FromDomain(p *reconciliation.Payment) {
	m.FromDomainCompanyAggregateRoot(p.CompanyAggregateRoot)
	m.CustomerID = p.CustomerID
	m.PaymentNumber = p.PaymentNumber
	m.Amount = p.Amount
	m.Currency = string(p.Currency)
	m.Status = p.Status
	m.PaymentDate = p.PaymentDate
	m.PaymentMethod = p.PaymentMethod
	m.Reference = p.Reference
	m.RemainingAmount = p.RemainingAmount()
	m.ReversalID = nil
	if p.Reversal != nil {
		id := p.Reversal.ID
		m.ReversalID = &id
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *reconciliation.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// InvoiceModel is the persistence model for the Invoice aggregate root
type InvoiceModel struct {
	CompanyAggregateModel
	CustomerID    uuid.UUID                    `gorm:"type:uuid;not null;index:idx_invoice_customer_status,priority:1"`
	InvoiceNumber string                       `gorm:"type:varchar(50);not null"`
	IssueDate     time.Time                    `gorm:"type:date;not null"`
	DueDate       *time.Time                   `gorm:"type:date"`
	Status        reconciliation.InvoiceStatus `gorm:"type:varchar(20);not null;index:idx_invoice_customer_status,priority:2"`
	TotalAmount   decimal.Decimal              `gorm:"type:decimal(18,4);not null"`
	TotalPaid     decimal.Decimal              `gorm:"type:decimal(18,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *reconciliation.Invoice {
	inv := &reconciliation.Invoice{
		CompanyAggregateRoot: m.ToDomainCompanyAggregateRoot(),
		CustomerID:           m.CustomerID,
		InvoiceNumber:        m.InvoiceNumber,
		IssueDate:            reconciliation.DateOf(m.IssueDate),
		Status:               m.Status,
		TotalAmount:          m.TotalAmount,
		TotalPaid:            m.TotalPaid,
	}
	if m.DueDate != nil {
		inv.DueDate = reconciliation.DateOf(*m.DueDate)
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *reconciliation.Invoice) {
	m.FromDomainCompanyAggregateRoot(inv.CompanyAggregateRoot)
	m.CustomerID = inv.CustomerID
	m.InvoiceNumber = inv.InvoiceNumber
	m.IssueDate = inv.IssueDate
	m.DueDate = nil
	if !inv.DueDate.IsZero() {
		due := inv.DueDate
		m.DueDate = &due
	}
	m.Status = inv.Status
	m.TotalAmount = inv.TotalAmount
	m.TotalPaid = inv.TotalPaid
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *reconciliation.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// AllocationModel is one payment-to-invoice allocation row. Rows are never
// updated after insert.
type AllocationModel struct {
	ID             uuid.UUID                       `gorm:"type:uuid;primary_key"`
	CompanyID      uuid.UUID                       `gorm:"type:uuid;not null;index"`
	PaymentID      uuid.UUID                       `gorm:"type:uuid;not null;index:idx_allocation_payment_invoice,priority:1"`
	InvoiceID      uuid.UUID                       `gorm:"type:uuid;not null;index:idx_allocation_payment_invoice,priority:2"`
	InvoiceNumber  string                          `gorm:"type:varchar(50);not null"`
	Amount         decimal.Decimal                 `gorm:"type:decimal(18,4);not null"`
	AllocationDate time.Time                       `gorm:"type:date;not null"`
	Method         reconciliation.AllocationMethod `gorm:"type:varchar(20);not null"`
	Notes          string                          `gorm:"type:text"`
	CreatedBy      uuid.UUID                       `gorm:"type:uuid;not null"`
	CreatedAt      time.Time                       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the row to a domain Allocation
func (m *AllocationModel) ToDomain() reconciliation.Allocation {
	return reconciliation.Allocation{
		ID:             m.ID,
		CompanyID:      m.CompanyID,
		PaymentID:      m.PaymentID,
		InvoiceID:      m.InvoiceID,
		InvoiceNumber:  m.InvoiceNumber,
		Amount:         m.Amount,
		AllocationDate: reconciliation.DateOf(m.AllocationDate),
		Method:         m.Method,
		Notes:          m.Notes,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
}

// AllocationModelFromDomain creates a row from a domain Allocation
func AllocationModelFromDomain(a *reconciliation.Allocation) *AllocationModel {
	return &AllocationModel{
		ID:             a.ID,
		CompanyID:      a.CompanyID,
		PaymentID:      a.PaymentID,
		InvoiceID:      a.InvoiceID,
		InvoiceNumber:  a.InvoiceNumber,
		Amount:         a.Amount,
		AllocationDate: a.AllocationDate,
		Method:         a.Method,
		Notes:          a.Notes,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt,
	}
}

// RefundModel is one refund row
type RefundModel struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primary_key"`
	CompanyID       uuid.UUID                   `gorm:"type:uuid;not null;index"`
	PaymentID       uuid.UUID                   `gorm:"type:uuid;not null;index:idx_refund_payment_invoice,priority:1"`
	InvoiceID       *uuid.UUID                  `gorm:"type:uuid;index:idx_refund_payment_invoice,priority:2"`
	Amount          decimal.Decimal             `gorm:"type:decimal(18,4);not null"`
	RefundDate      time.Time                   `gorm:"type:date;not null"`
	Method          reconciliation.RefundMethod `gorm:"type:varchar(20);not null"`
	Reason          string                      `gorm:"type:varchar(500);not null"`
	ReferenceNumber string                      `gorm:"type:varchar(100)"`
	CheckNumber     string                      `gorm:"type:varchar(50)"`
	BankAccountID   *uuid.UUID                  `gorm:"type:uuid"`
	Notes           string                      `gorm:"type:text"`
	CreatedBy       uuid.UUID                   `gorm:"type:uuid;not null"`
	CreatedAt       time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "payment_refunds"
}

// ToDomain converts the row to a domain Refund
func (m *RefundModel) ToDomain() reconciliation.Refund {
	return reconciliation.Refund{
		ID:              m.ID,
		CompanyID:       m.CompanyID,
		PaymentID:       m.PaymentID,
		InvoiceID:       m.InvoiceID,
		Amount:          m.Amount,
		RefundDate:      reconciliation.DateOf(m.RefundDate),
		Method:          m.Method,
		Reason:          m.Reason,
		ReferenceNumber: m.ReferenceNumber,
		CheckNumber:     m.CheckNumber,
		BankAccountID:   m.BankAccountID,
		Notes:           m.Notes,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
	}
}

// RefundModelFromDomain creates a row from a domain Refund
func RefundModelFromDomain(r *reconciliation.Refund) *RefundModel {
	return &RefundModel{
		ID:              r.ID,
		CompanyID:       r.CompanyID,
		PaymentID:       r.PaymentID,
		InvoiceID:       r.InvoiceID,
		Amount:          r.Amount,
		RefundDate:      r.RefundDate,
		Method:          r.Method,
		Reason:          r.Reason,
		ReferenceNumber: r.ReferenceNumber,
		CheckNumber:     r.CheckNumber,
		BankAccountID:   r.BankAccountID,
		Notes:           r.Notes,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
	}
}

// ReversalModel is the single reversing row of a voided payment
type ReversalModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	CompanyID uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Reason    string          `gorm:"type:varchar(500);not null"`
	VoidDate  time.Time       `gorm:"type:date;not null"`
	CreatedBy uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReversalModel) TableName() string {
	return "payment_reversals"
}

// ToDomain converts the row to a domain Reversal
func (m *ReversalModel) ToDomain() *reconciliation.Reversal {
	return &reconciliation.Reversal{
		ID:        m.ID,
		CompanyID: m.CompanyID,
		PaymentID: m.PaymentID,
		Amount:    m.Amount,
		Reason:    m.Reason,
		VoidDate:  reconciliation.DateOf(m.VoidDate),
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}

// ReversalModelFromDomain creates a row from a domain Reversal
func ReversalModelFromDomain(r *reconciliation.Reversal) *ReversalModel {
	return &ReversalModel{
		ID:        r.ID,
		CompanyID: r.CompanyID,
		PaymentID: r.PaymentID,
		Amount:    r.Amount,
		Reason:    r.Reason,
		VoidDate:  r.VoidDate,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
	}
}

// ReconciliationModels lists the models in dependency order for AutoMigrate
func ReconciliationModels() []any {
	return []any{
		&PaymentModel{},
		&InvoiceModel{},
		&AllocationModel{},
		&RefundModel{},
		&ReversalModel{},
	}
}
