package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refund returns money from an allocated payment. When InvoiceID is set the
// refund reduces what that invoice has been paid.
type Refund struct {
	ID              uuid.UUID       `json:"id"`
	CompanyID       uuid.UUID       `json:"company_id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	InvoiceID       *uuid.UUID      `json:"invoice_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	RefundDate      time.Time       `json:"refund_date"`
	Method          RefundMethod    `json:"method"`
	Reason          string          `json:"reason"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	CheckNumber     string          `json:"check_number,omitempty"`
	BankAccountID   *uuid.UUID      `json:"bank_account_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IsTiedTo reports whether the refund reduces the given invoice
func (r *Refund) IsTiedTo(invoiceID uuid.UUID) bool {
	return r.InvoiceID != nil && *r.InvoiceID == invoiceID
}
