package reconciliation

import (
	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceBalance is an invoice's position after a command
type InvoiceBalance struct {
	InvoiceID     uuid.UUID            `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	TotalPaid     decimal.Decimal      `json:"total_paid"`
	Outstanding   decimal.Decimal      `json:"outstanding"`
	Status        domain.InvoiceStatus `json:"status"`
}

// AllocationResult is returned by AllocatePayment
type AllocationResult struct {
	PaymentID       uuid.UUID               `json:"payment_id"`
	PaymentNumber   string                  `json:"payment_number"`
	Method          domain.AllocationMethod `json:"method"`
	Allocations     []domain.Allocation     `json:"allocations"`
	TotalAllocated  decimal.Decimal         `json:"total_allocated"`
	RemainingAmount decimal.Decimal         `json:"remaining_amount"`
	Invoices        []InvoiceBalance        `json:"invoices"`
}

// RefundResult is returned by RefundPayment
type RefundResult struct {
	PaymentID     uuid.UUID        `json:"payment_id"`
	PaymentNumber string           `json:"payment_number"`
	Refunds       []domain.Refund  `json:"refunds"`
	TotalRefunded decimal.Decimal  `json:"total_refunded"`
	Invoices      []InvoiceBalance `json:"invoices"`
}

// PaymentSummary is a read-only view of a payment's reconciliation state
type PaymentSummary struct {
	PaymentID      uuid.UUID            `json:"payment_id"`
	PaymentNumber  string               `json:"payment_number"`
	Status         domain.PaymentStatus `json:"status"`
	Currency       string               `json:"currency"`
	Amount         decimal.Decimal      `json:"amount"`
	Allocated      decimal.Decimal      `json:"allocated"`
	Refunded       decimal.Decimal      `json:"refunded"`
	Remaining      decimal.Decimal      `json:"remaining"`
	NetApplied     decimal.Decimal      `json:"net_applied"`
	Invoices       []SummaryLine        `json:"invoices"`
	Reversal       *domain.Reversal     `json:"reversal,omitempty"`
	CanBeAllocated bool                 `json:"can_be_allocated"`
	CanBeVoided    bool                 `json:"can_be_voided"`
	CanBeRefunded  bool                 `json:"can_be_refunded"`
}

// SummaryLine is one payment-to-invoice pairing in a summary
type SummaryLine struct {
	InvoiceID         uuid.UUID            `json:"invoice_id"`
	InvoiceNumber     string               `json:"invoice_number"`
	InvoiceStatus     domain.InvoiceStatus `json:"invoice_status,omitempty"`
	Paid              decimal.Decimal      `json:"paid"`
	Refunded          decimal.Decimal      `json:"refunded"`
	AvailableToRefund decimal.Decimal      `json:"available_to_refund"`
}

func invoiceBalances(invoices []*domain.Invoice) []InvoiceBalance {
	out := make([]InvoiceBalance, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, InvoiceBalance{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			TotalAmount:   inv.TotalAmount,
			TotalPaid:     inv.TotalPaid,
			Outstanding:   inv.Outstanding(),
			Status:        inv.Status,
		})
	}
	return out
}

func toAllocationResult(req domain.AllocationRequest, out *domain.AllocationOutcome) *AllocationResult {
	allocations := make([]domain.Allocation, 0, len(out.Allocations))
	for _, a := range out.Allocations {
		allocations = append(allocations, *a)
	}
	return &AllocationResult{
		PaymentID:       out.Payment.ID,
		PaymentNumber:   out.Payment.PaymentNumber,
		Method:          req.EffectiveMethod(),
		Allocations:     allocations,
		TotalAllocated:  out.TotalAllocated(),
		RemainingAmount: out.Payment.RemainingAmount(),
		Invoices:        invoiceBalances(out.Invoices),
	}
}

func toRefundResult(out *domain.RefundOutcome) *RefundResult {
	refunds := make([]domain.Refund, 0, len(out.Refunds))
	for _, r := range out.Refunds {
		refunds = append(refunds, *r)
	}
	return &RefundResult{
		PaymentID:     out.Payment.ID,
		PaymentNumber: out.Payment.PaymentNumber,
		Refunds:       refunds,
		TotalRefunded: out.TotalRefunded(),
		Invoices:      invoiceBalances(out.Invoices),
	}
}

func toPaymentSummary(p *domain.Payment, invoices []*domain.Invoice) *PaymentSummary {
	statuses := make(map[uuid.UUID]domain.InvoiceStatus, len(invoices))
	for _, inv := range invoices {
		statuses[inv.ID] = inv.Status
	}
	pairings := p.Pairings()
	lines := make([]SummaryLine, 0, len(pairings))
	for _, pr := range pairings {
		lines = append(lines, SummaryLine{
			InvoiceID:         pr.InvoiceID,
			InvoiceNumber:     pr.InvoiceNumber,
			InvoiceStatus:     statuses[pr.InvoiceID],
			Paid:              pr.Paid,
			Refunded:          pr.Refunded,
			AvailableToRefund: pr.Available,
		})
	}
	return &PaymentSummary{
		PaymentID:      p.ID,
		PaymentNumber:  p.PaymentNumber,
		Status:         p.Status,
		Currency:       string(p.Currency),
		Amount:         p.Amount,
		Allocated:      p.AllocatedAmount(),
		Refunded:       p.RefundedAmount(),
		Remaining:      p.RemainingAmount(),
		NetApplied:     p.NetApplied(),
		Invoices:       lines,
		Reversal:       p.Reversal,
		CanBeAllocated: p.CanBeAllocated(),
		CanBeVoided:    p.CanBeVoided(),
		CanBeRefunded:  p.CanBeRefunded(),
	}
}
