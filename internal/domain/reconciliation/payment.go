package reconciliation

import (
	"sort"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the aggregate root for money received from a customer.
// Allocations, refunds and the optional reversal are loaded with it so that
// every derived balance is computed from the same locked snapshot.
type Payment struct {
	shared.CompanyAggregateRoot
	CustomerID    uuid.UUID            `json:"customer_id"`
	PaymentNumber string               `json:"payment_number"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      valueobject.Currency `json:"currency"`
	Status        PaymentStatus        `json:"status"`
	PaymentDate   time.Time            `json:"payment_date"`
	PaymentMethod PaymentMethod        `json:"payment_method"`
	Reference     string               `json:"reference,omitempty"` // Bank txn or check number
	Allocations   []Allocation         `json:"allocations"`
	Refunds       []Refund             `json:"refunds"`
	Reversal      *Reversal            `json:"reversal,omitempty"`
}

// NewPayment creates a completed payment. Capture happens upstream; this
// constructor exists for importers and tests.
func NewPayment(
	companyID, customerID uuid.UUID,
	paymentNumber string,
	amount valueobject.Money,
	method PaymentMethod,
	paymentDate time.Time,
) (*Payment, error) {
	if companyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COMPANY", "Company ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if !IsValidPaymentNumber(paymentNumber) {
		return nil, shared.NewDomainError("INVALID_PAYMENT_NUMBER", "Payment number must look like PAY-YYYYMMDD-NNNN")
	}
	if !amount.Amount().IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", "Payment method is not valid")
	}
	if paymentDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_DATE", "Payment date is required")
	}

	return &Payment{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID, time.Now()),
		CustomerID:           customerID,
		PaymentNumber:        paymentNumber,
		Amount:               amount.Amount(),
		Currency:             amount.Currency(),
		Status:               PaymentStatusCompleted,
		PaymentDate:          DateOf(paymentDate),
		PaymentMethod:        method,
		Allocations:          make([]Allocation, 0),
		Refunds:              make([]Refund, 0),
	}, nil
}

// AllocatedAmount returns the gross sum of all allocations
func (p *Payment) AllocatedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// RefundedAmount returns the sum of all refunds
func (p *Payment) RefundedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.Refunds {
		total = total.Add(r.Amount)
	}
	return total
}

// RemainingAmount is amount minus gross allocations. Refunded money has left
// the company and does not return to the payment.
func (p *Payment) RemainingAmount() decimal.Decimal {
	return p.Amount.Sub(p.AllocatedAmount())
}

// NetApplied is what the payment still settles on invoices after refunds
func (p *Payment) NetApplied() decimal.Decimal {
	return p.AllocatedAmount().Sub(p.RefundedAmount())
}

// PaidTo returns the gross amount this payment allocated to an invoice
func (p *Payment) PaidTo(invoiceID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		if a.InvoiceID == invoiceID {
			total = total.Add(a.Amount)
		}
	}
	return total
}

// RefundedFrom returns what has been refunded against an invoice pairing
func (p *Payment) RefundedFrom(invoiceID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.Refunds {
		if r.IsTiedTo(invoiceID) {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// AvailableToRefund returns paid minus already refunded for a pairing
func (p *Payment) AvailableToRefund(invoiceID uuid.UUID) decimal.Decimal {
	return p.PaidTo(invoiceID).Sub(p.RefundedFrom(invoiceID))
}

// Pairing summarises one payment-to-invoice relationship
type Pairing struct {
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	Paid            decimal.Decimal `json:"paid"`
	Refunded        decimal.Decimal `json:"refunded"`
	Available       decimal.Decimal `json:"available"`
	FirstAllocation time.Time       `json:"first_allocation"`
}

// Pairings lists every invoice this payment paid, oldest allocation first
func (p *Payment) Pairings() []Pairing {
	index := make(map[uuid.UUID]int)
	pairings := make([]Pairing, 0)
	for _, a := range p.Allocations {
		i, ok := index[a.InvoiceID]
		if !ok {
			index[a.InvoiceID] = len(pairings)
			pairings = append(pairings, Pairing{
				InvoiceID:       a.InvoiceID,
				InvoiceNumber:   a.InvoiceNumber,
				Paid:            decimal.Zero,
				FirstAllocation: a.CreatedAt,
			})
			i = len(pairings) - 1
		}
		pairings[i].Paid = pairings[i].Paid.Add(a.Amount)
		if a.CreatedAt.Before(pairings[i].FirstAllocation) {
			pairings[i].FirstAllocation = a.CreatedAt
		}
	}
	for i := range pairings {
		pairings[i].Refunded = p.RefundedFrom(pairings[i].InvoiceID)
		pairings[i].Available = pairings[i].Paid.Sub(pairings[i].Refunded)
	}
	sort.SliceStable(pairings, func(i, j int) bool {
		return pairings[i].FirstAllocation.Before(pairings[j].FirstAllocation)
	})
	return pairings
}

// PairedInvoiceIDs returns the invoices this payment has been allocated to
func (p *Payment) PairedInvoiceIDs() []uuid.UUID {
	pairings := p.Pairings()
	ids := make([]uuid.UUID, len(pairings))
	for i, pr := range pairings {
		ids[i] = pr.InvoiceID
	}
	return ids
}

// IsReversed returns true once a reversal exists
func (p *Payment) IsReversed() bool {
	return p.Reversal != nil
}

// CanBeAllocated is true for a completed, unreversed payment with money left
func (p *Payment) CanBeAllocated() bool {
	return p.Status.CanAllocate() && !p.IsReversed() && !valueobject.IsNegligible(p.RemainingAmount())
}

// CanBeVoided is true only for a payment that was never allocated or refunded
func (p *Payment) CanBeVoided() bool {
	return p.Status.CanVoid() && !p.IsReversed() && len(p.Allocations) == 0 && len(p.Refunds) == 0
}

// CanBeRefunded is true once the payment has been allocated and not reversed
func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusCompleted && !p.IsReversed() && len(p.Allocations) > 0
}

// AgeInDays returns the number of calendar days between payment date and now
func (p *Payment) AgeInDays(now time.Time) int {
	return daysBetween(p.PaymentDate, now)
}

// recordAllocations appends new allocations and bumps the version
func (p *Payment) recordAllocations(ctx Context, allocations []*Allocation) {
	for _, a := range allocations {
		p.Allocations = append(p.Allocations, *a)
	}
	p.Touch(ctx.Now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentAllocatedEvent(p, allocations, ctx.Now))
}

// recordRefunds appends new refunds and bumps the version
func (p *Payment) recordRefunds(ctx Context, refunds []*Refund) {
	for _, r := range refunds {
		p.Refunds = append(p.Refunds, *r)
	}
	p.Touch(ctx.Now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentRefundedEvent(p, refunds, ctx.Now))
}

// markVoided links the reversal and moves the payment to its terminal state
func (p *Payment) markVoided(ctx Context, reversal *Reversal) {
	p.Reversal = reversal
	p.Status = PaymentStatusVoided
	p.Touch(ctx.Now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentVoidedEvent(p, reversal, ctx.Now))
}
