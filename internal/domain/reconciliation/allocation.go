package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation applies part of a payment to one invoice. It is immutable once
// created; only a refund against the same pairing can reduce its effect.
type Allocation struct {
	ID             uuid.UUID        `json:"id"`
	CompanyID      uuid.UUID        `json:"company_id"`
	PaymentID      uuid.UUID        `json:"payment_id"`
	InvoiceID      uuid.UUID        `json:"invoice_id"`
	InvoiceNumber  string           `json:"invoice_number"` // Denormalized for display
	Amount         decimal.Decimal  `json:"amount"`
	AllocationDate time.Time        `json:"allocation_date"`
	Method         AllocationMethod `json:"method"`
	Notes          string           `json:"notes,omitempty"`
	CreatedBy      uuid.UUID        `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
}

// newAllocation builds an allocation row from a validated proposal
func newAllocation(ctx Context, payment *Payment, invoice *Invoice, p ProposedAllocation, method AllocationMethod) *Allocation {
	return &Allocation{
		ID:             uuid.New(),
		CompanyID:      payment.CompanyID,
		PaymentID:      payment.ID,
		InvoiceID:      invoice.ID,
		InvoiceNumber:  invoice.InvoiceNumber,
		Amount:         p.Amount,
		AllocationDate: DateOf(p.AllocationDate),
		Method:         method,
		Notes:          p.Notes,
		CreatedBy:      ctx.ActorID,
		CreatedAt:      ctx.Now,
	}
}
