package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommandContext identifies who is acting, for which company, and under
// which idempotency key
type CommandContext struct {
	CompanyID      uuid.UUID `json:"company_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	IdempotencyKey string    `json:"idempotency_key" validate:"max=255"`
}

// AllocationInput is one manual allocation entry
type AllocationInput struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	Amount         decimal.Decimal `json:"amount"`
	AllocationDate *time.Time      `json:"allocation_date,omitempty"`
	Notes          string          `json:"notes" validate:"max=1000"`
}

// AllocatePaymentCommand allocates a payment against invoices
type AllocatePaymentCommand struct {
	PaymentID        uuid.UUID         `json:"payment_id"`
	Allocations      []AllocationInput `json:"allocations" validate:"omitempty,max=500,dive"`
	AutoAllocate     bool              `json:"auto_allocate"`
	AllocationMethod string            `json:"allocation_method" validate:"omitempty,oneof=manual fifo lifo pro_rata"`
	Notes            string            `json:"notes" validate:"max=1000"`
}

// VoidPaymentCommand reverses an unallocated payment
type VoidPaymentCommand struct {
	PaymentID uuid.UUID `json:"payment_id"`
	VoidDate  time.Time `json:"void_date"`
	Reason    string    `json:"reason" validate:"required,max=500"`
}

// RefundAllocationInput ties part of a refund to one invoice
type RefundAllocationInput struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// RefundPaymentCommand returns money from an allocated payment
type RefundPaymentCommand struct {
	PaymentID       uuid.UUID               `json:"payment_id"`
	RefundAmount    decimal.Decimal         `json:"refund_amount"`
	RefundDate      time.Time               `json:"refund_date"`
	RefundMethod    string                  `json:"refund_method" validate:"required,oneof=original cash check bank_transfer credit_card credit_note"`
	Reason          string                  `json:"reason" validate:"required,max=500"`
	ReferenceNumber string                  `json:"reference_number" validate:"max=100"`
	CheckNumber     string                  `json:"check_number" validate:"max=50"`
	BankAccountID   *uuid.UUID              `json:"bank_account_id,omitempty"`
	Notes           string                  `json:"notes" validate:"max=2000"`
	Allocations     []RefundAllocationInput `json:"allocations" validate:"omitempty,max=500,dive"`
}
