package reconciliation

import (
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the receivable side of reconciliation. TotalPaid is maintained
// by the engines as allocations minus refunds tied to the invoice.
type Invoice struct {
	shared.CompanyAggregateRoot
	CustomerID    uuid.UUID       `json:"customer_id"`
	InvoiceNumber string          `json:"invoice_number"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Status        InvoiceStatus   `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
}

// NewInvoice creates an issued invoice in sent status
func NewInvoice(
	companyID, customerID uuid.UUID,
	invoiceNumber string,
	total decimal.Decimal,
	issueDate, dueDate time.Time,
) (*Invoice, error) {
	if companyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COMPANY", "Company ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if !total.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Total amount must be positive")
	}
	if issueDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_ISSUE_DATE", "Issue date is required")
	}
	if !dueDate.IsZero() && DateOf(dueDate).Before(DateOf(issueDate)) {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Due date cannot be before issue date")
	}

	return &Invoice{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID, time.Now()),
		CustomerID:           customerID,
		InvoiceNumber:        invoiceNumber,
		IssueDate:            DateOf(issueDate),
		DueDate:              DateOf(dueDate),
		Status:               InvoiceStatusSent,
		TotalAmount:          valueobject.NormalizeAmount(total),
		TotalPaid:            decimal.Zero,
	}, nil
}

// Outstanding returns what is still owed, never below zero
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.TotalAmount.Sub(i.TotalPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// CanReceivePayment returns true for sent or partially paid invoices
func (i *Invoice) CanReceivePayment() bool {
	return i.Status.IsOpen()
}

// applyPayment raises TotalPaid and recomputes status
func (i *Invoice) applyPayment(amount decimal.Decimal, at time.Time) error {
	if !i.CanReceivePayment() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply payment to invoice in %s status", i.Status))
	}
	if amount.GreaterThan(i.Outstanding()) {
		return shared.NewDomainError("EXCEEDS_OUTSTANDING", fmt.Sprintf("Amount %s exceeds outstanding %s on invoice %s",
			amount.StringFixed(2), i.Outstanding().StringFixed(2), i.InvoiceNumber))
	}
	i.TotalPaid = i.TotalPaid.Add(amount)
	i.recomputeStatus()
	i.Touch(at)
	i.IncrementVersion()
	return nil
}

// reversePayment lowers TotalPaid after a refund and recomputes status
func (i *Invoice) reversePayment(amount decimal.Decimal, at time.Time) error {
	if !i.Status.IsLedgerManaged() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot refund against invoice in %s status", i.Status))
	}
	if amount.GreaterThan(i.TotalPaid) {
		return shared.NewDomainError("EXCEEDS_PAID", fmt.Sprintf("Refund %s exceeds amount paid %s on invoice %s",
			amount.StringFixed(2), i.TotalPaid.StringFixed(2), i.InvoiceNumber))
	}
	i.TotalPaid = i.TotalPaid.Sub(amount)
	i.recomputeStatus()
	i.Touch(at)
	i.IncrementVersion()
	return nil
}

func (i *Invoice) recomputeStatus() {
	switch {
	case valueobject.IsNegligible(i.TotalPaid):
		i.Status = InvoiceStatusSent
	case valueobject.WithinTolerance(i.TotalPaid, i.TotalAmount) || i.TotalPaid.GreaterThan(i.TotalAmount):
		i.Status = InvoiceStatusPaid
	default:
		i.Status = InvoiceStatusPartial
	}
}
