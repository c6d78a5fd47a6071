package reconciliation

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundLine ties part of a refund to one invoice the payment paid
type RefundLine struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// RefundRequest describes a refund command. When Lines is empty the refund
// is spread over the payment's pairings, oldest allocation first.
type RefundRequest struct {
	Amount          decimal.Decimal
	Lines           []RefundLine
	RefundDate      time.Time
	Method          RefundMethod
	Reason          string
	ReferenceNumber string
	CheckNumber     string
	BankAccountID   *uuid.UUID
	Notes           string
}

// InvoiceIDs returns the invoices the refund will touch for payment
func (r RefundRequest) InvoiceIDs(payment *Payment) []uuid.UUID {
	if len(r.Lines) == 0 {
		return payment.PairedInvoiceIDs()
	}
	ids := make([]uuid.UUID, 0, len(r.Lines))
	for _, l := range r.Lines {
		ids = append(ids, l.InvoiceID)
	}
	return ids
}

// RefundOutcome is the mutation produced by a successful refund
type RefundOutcome struct {
	Payment  *Payment
	Refunds  []*Refund
	Invoices []*Invoice
}

// TotalRefunded returns the sum of the new refunds
func (o *RefundOutcome) TotalRefunded() decimal.Decimal {
	total := decimal.Zero
	for _, r := range o.Refunds {
		total = total.Add(r.Amount)
	}
	return total
}

// RefundEngine returns money from allocated payments
type RefundEngine struct {
	tiedGate   *Gate
	spreadGate *Gate
}

// NewRefundEngine creates a refund engine
func NewRefundEngine() *RefundEngine {
	payment := Stage{Name: "payment", Checks: []Check{CheckNotReversed, CheckRefundable}}
	elevation := Stage{Name: "elevation", Checks: []Check{CheckPaymentAge(CapabilityRefundOld, "refunding")}}
	return &RefundEngine{
		tiedGate: NewGate(
			payment,
			Stage{Name: "request", Checks: []Check{
				CheckReason, CheckEffectiveDate, CheckRefundMethod,
				CheckNoDuplicateInvoices, CheckPositiveAmounts, CheckTotalRefundable,
			}},
			Stage{Name: "pairings", Checks: []Check{CheckPairedWithPayment}},
			Stage{Name: "balances", Checks: []Check{CheckWithinRefundable, CheckSumMatchesTarget}},
			elevation,
		),
		spreadGate: NewGate(
			payment,
			Stage{Name: "request", Checks: []Check{
				CheckReason, CheckEffectiveDate, CheckRefundMethod, CheckTotalRefundable,
			}},
			elevation,
		),
	}
}

// Refund validates req against the locked payment and the invoices it paid
// and applies the refund. Each affected pairing yields one refund row.
func (e *RefundEngine) Refund(ctx Context, payment *Payment, invoices []*Invoice, req RefundRequest) (*RefundOutcome, error) {
	if err := ensureOwned(ctx, payment, invoices); err != nil {
		return nil, err
	}

	in := &GateInput{
		Ctx:           ctx,
		Payment:       payment,
		Invoices:      indexInvoices(invoices),
		LinePrefix:    "allocations",
		Target:        req.Amount,
		TargetField:   "refund_amount",
		Date:          req.RefundDate,
		DateField:     "refund_date",
		Reason:        req.Reason,
		RefundMethod:  req.Method,
		CheckNumber:   req.CheckNumber,
		BankAccountID: req.BankAccountID,
	}

	lines := req.Lines
	gate := e.tiedGate
	if len(lines) == 0 {
		gate = e.spreadGate
	} else {
		in.Lines = make([]GateLine, len(lines))
		for i, l := range lines {
			in.Lines[i] = GateLine{Index: i, InvoiceID: l.InvoiceID, Amount: l.Amount}
		}
	}
	if err := gate.Evaluate(in); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		lines = spread(payment, req.Amount)
	}

	return e.apply(ctx, payment, in.Invoices, lines, req)
}

// spread distributes amount over pairings oldest allocation first, capping
// each pairing at what is still refundable
func spread(payment *Payment, amount decimal.Decimal) []RefundLine {
	lines := make([]RefundLine, 0)
	left := amount
	for _, pr := range payment.Pairings() {
		if !left.IsPositive() {
			break
		}
		if !pr.Available.IsPositive() {
			continue
		}
		take := decimal.Min(left, pr.Available)
		lines = append(lines, RefundLine{InvoiceID: pr.InvoiceID, Amount: take})
		left = left.Sub(take)
	}
	return lines
}

func (e *RefundEngine) apply(
	ctx Context,
	payment *Payment,
	invoices map[uuid.UUID]*Invoice,
	lines []RefundLine,
	req RefundRequest,
) (*RefundOutcome, error) {
	method := req.Method.Resolve(payment.PaymentMethod)
	refunds := make([]*Refund, 0, len(lines))
	touched := make([]*Invoice, 0, len(lines))
	for _, l := range lines {
		inv, ok := invoices[l.InvoiceID]
		if !ok {
			return nil, shared.NewDomainError("INVOICE_NOT_LOADED", fmt.Sprintf("Invoice %s was not loaded for refund", l.InvoiceID))
		}
		if err := inv.reversePayment(l.Amount, ctx.Now); err != nil {
			return nil, fmt.Errorf("apply refund to invoice %s: %w", inv.InvoiceNumber, err)
		}
		invoiceID := inv.ID
		refunds = append(refunds, &Refund{
			ID:              uuid.New(),
			CompanyID:       payment.CompanyID,
			PaymentID:       payment.ID,
			InvoiceID:       &invoiceID,
			Amount:          l.Amount,
			RefundDate:      DateOf(req.RefundDate),
			Method:          method,
			Reason:          strings.TrimSpace(req.Reason),
			ReferenceNumber: req.ReferenceNumber,
			CheckNumber:     req.CheckNumber,
			BankAccountID:   req.BankAccountID,
			Notes:           req.Notes,
			CreatedBy:       ctx.ActorID,
			CreatedAt:       ctx.Now,
		})
		touched = append(touched, inv)
	}
	payment.recordRefunds(ctx, refunds)
	sortInvoices(touched)

	return &RefundOutcome{Payment: payment, Refunds: refunds, Invoices: touched}, nil
}
