package reconciliation

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypePayment = "Payment"

// Event type constants
const (
	EventTypePaymentAllocated = "PaymentAllocated"
	EventTypePaymentVoided    = "PaymentVoided"
	EventTypePaymentRefunded  = "PaymentRefunded"
)

// PaymentAllocatedEvent is raised when allocations are written for a payment
type PaymentAllocatedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber   string          `json:"payment_number"`
	InvoiceIDs      []uuid.UUID     `json:"invoice_ids"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// NewPaymentAllocatedEvent creates a PaymentAllocatedEvent
func NewPaymentAllocatedEvent(p *Payment, allocations []*Allocation, at time.Time) *PaymentAllocatedEvent {
	ids := make([]uuid.UUID, 0, len(allocations))
	total := decimal.Zero
	for _, a := range allocations {
		ids = append(ids, a.InvoiceID)
		total = total.Add(a.Amount)
	}
	return &PaymentAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentAllocated, AggregateTypePayment, p.ID, p.CompanyID, at),
		PaymentNumber:   p.PaymentNumber,
		InvoiceIDs:      ids,
		Amount:          total,
		RemainingAmount: p.RemainingAmount(),
	}
}

// PaymentVoidedEvent is raised when a payment is reversed
type PaymentVoidedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber string          `json:"payment_number"`
	ReversalID    uuid.UUID       `json:"reversal_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

// NewPaymentVoidedEvent creates a PaymentVoidedEvent
func NewPaymentVoidedEvent(p *Payment, r *Reversal, at time.Time) *PaymentVoidedEvent {
	return &PaymentVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentVoided, AggregateTypePayment, p.ID, p.CompanyID, at),
		PaymentNumber:   p.PaymentNumber,
		ReversalID:      r.ID,
		Amount:          r.Amount,
		Reason:          r.Reason,
	}
}

// PaymentRefundedEvent is raised when refunds are written for a payment
type PaymentRefundedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber string          `json:"payment_number"`
	RefundIDs     []uuid.UUID     `json:"refund_ids"`
	Amount        decimal.Decimal `json:"amount"`
	Method        RefundMethod    `json:"method"`
}

// NewPaymentRefundedEvent creates a PaymentRefundedEvent
func NewPaymentRefundedEvent(p *Payment, refunds []*Refund, at time.Time) *PaymentRefundedEvent {
	ids := make([]uuid.UUID, 0, len(refunds))
	total := decimal.Zero
	var method RefundMethod
	for _, r := range refunds {
		ids = append(ids, r.ID)
		total = total.Add(r.Amount)
		method = r.Method
	}
	return &PaymentRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRefunded, AggregateTypePayment, p.ID, p.CompanyID, at),
		PaymentNumber:   p.PaymentNumber,
		RefundIDs:       ids,
		Amount:          total,
		Method:          method,
	}
}
