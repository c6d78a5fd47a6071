package reconciliation

import (
	"fmt"
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Violation codes
const (
	CodeRequired           = "required"
	CodeInvalidStatus      = "invalid_status"
	CodeNothingRemaining   = "nothing_remaining"
	CodeReversed           = "reversed"
	CodeHasAllocations     = "has_allocations"
	CodeHasRefunds         = "has_refunds"
	CodeNotAllocated       = "not_allocated"
	CodeCapabilityRequired = "capability_required"
	CodeDuplicateInvoice   = "duplicate_invoice"
	CodeNotPositive        = "not_positive"
	CodeInvoiceNotFound    = "invoice_not_found"
	CodeInvoiceNotOpen     = "invoice_not_open"
	CodeExceedsOutstanding = "exceeds_outstanding"
	CodeExceedsAvailable   = "exceeds_available"
	CodeNotPaidByPayment   = "not_paid_by_payment"
	CodeSumMismatch        = "sum_mismatch"
	CodeDateBeforeIssue    = "date_before_issue"
	CodeDateAfterPayment   = "date_after_payment"
	CodeDateBeforePayment  = "date_before_payment"
	CodeDateInFuture       = "date_in_future"
	CodeInvalidMethod      = "invalid_method"
	CodeMethodIncompatible = "method_incompatible"
)

const paymentField = "payment"

func violation(field, code, format string, args ...any) shared.Violation {
	return shared.NewViolation(field, code, fmt.Sprintf(format, args...))
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CheckPaymentCompleted rejects payments that are not completed
var CheckPaymentCompleted = Check{
	Name: "payment_completed",
	Run: func(in *GateInput) []shared.Violation {
		if !in.Payment.Status.CanAllocate() {
			return []shared.Violation{violation(paymentField, CodeInvalidStatus,
				"Payment %s is %s; only completed payments can be allocated", in.Payment.PaymentNumber, in.Payment.Status)}
		}
		return nil
	},
}

// CheckNotReversed rejects payments that already have a reversal
var CheckNotReversed = Check{
	Name: "not_reversed",
	Run: func(in *GateInput) []shared.Violation {
		if in.Payment.IsReversed() {
			return []shared.Violation{violation(paymentField, CodeReversed,
				"Payment %s has already been voided", in.Payment.PaymentNumber)}
		}
		return nil
	},
}

// CheckHasRemaining rejects payments with nothing left to allocate
var CheckHasRemaining = Check{
	Name: "has_remaining",
	Run: func(in *GateInput) []shared.Violation {
		if valueobject.IsNegligible(in.Payment.RemainingAmount()) {
			return []shared.Violation{violation(paymentField, CodeNothingRemaining,
				"Payment %s has no remaining amount to allocate", in.Payment.PaymentNumber)}
		}
		return nil
	},
}

// CheckVoidable enforces that a void only applies to a payment that was
// never allocated or refunded
var CheckVoidable = Check{
	Name: "voidable",
	Run: func(in *GateInput) []shared.Violation {
		p := in.Payment
		var out []shared.Violation
		if n := len(p.Allocations); n > 0 {
			out = append(out, violation(paymentField, CodeHasAllocations,
				"Cannot void payment %s: it has %d allocation(s); refund them instead", p.PaymentNumber, n))
		}
		if n := len(p.Refunds); n > 0 {
			out = append(out, violation(paymentField, CodeHasRefunds,
				"Cannot void payment %s: it has %d refund(s)", p.PaymentNumber, n))
		}
		if !p.IsReversed() && !p.Status.CanVoid() {
			out = append(out, violation(paymentField, CodeInvalidStatus,
				"Cannot void payment %s in %s status", p.PaymentNumber, p.Status))
		}
		return out
	},
}

// CheckRefundable requires at least one allocation on the payment
var CheckRefundable = Check{
	Name: "refundable",
	Run: func(in *GateInput) []shared.Violation {
		p := in.Payment
		if len(p.Allocations) == 0 {
			return []shared.Violation{violation(paymentField, CodeNotAllocated,
				"Payment %s has not been allocated; void it instead", p.PaymentNumber)}
		}
		if p.Status != PaymentStatusCompleted {
			return []shared.Violation{violation(paymentField, CodeInvalidStatus,
				"Cannot refund payment %s in %s status", p.PaymentNumber, p.Status)}
		}
		return nil
	},
}

// CheckPaymentAge requires capability for payments older than the
// configured threshold
func CheckPaymentAge(capability Capability, action string) Check {
	return Check{
		Name: "payment_age",
		Run: func(in *GateInput) []shared.Violation {
			age := in.Payment.AgeInDays(in.Ctx.Now)
			if age > in.Ctx.OldPaymentDays && !in.Ctx.Has(capability) {
				return []shared.Violation{violation(paymentField, CodeCapabilityRequired,
					"Payment is %d days old; %s payments older than %d days requires %s",
					age, action, in.Ctx.OldPaymentDays, capability)}
			}
			return nil
		},
	}
}

// CheckReason requires a non-blank reason
var CheckReason = Check{
	Name: "reason",
	Run: func(in *GateInput) []shared.Violation {
		if strings.TrimSpace(in.Reason) == "" {
			return []shared.Violation{violation("reason", CodeRequired, "Reason is required")}
		}
		return nil
	},
}

// CheckEffectiveDate requires payment_date <= date <= today
var CheckEffectiveDate = Check{
	Name: "effective_date",
	Run: func(in *GateInput) []shared.Violation {
		if in.Date.IsZero() {
			return []shared.Violation{violation(in.DateField, CodeRequired, "Date is required")}
		}
		date := DateOf(in.Date)
		if date.Before(in.Payment.PaymentDate) {
			return []shared.Violation{violation(in.DateField, CodeDateBeforePayment,
				"Date %s is before payment date %s", date.Format(dateLayout), in.Payment.PaymentDate.Format(dateLayout))}
		}
		if date.After(in.Ctx.Today()) {
			return []shared.Violation{violation(in.DateField, CodeDateInFuture,
				"Date %s is in the future", date.Format(dateLayout))}
		}
		return nil
	},
}

// CheckLinesPresent requires at least one line
var CheckLinesPresent = Check{
	Name: "lines_present",
	Run: func(in *GateInput) []shared.Violation {
		if len(in.Lines) == 0 {
			return []shared.Violation{violation(in.LinePrefix, CodeRequired, "At least one entry is required")}
		}
		return nil
	},
}

// CheckNoDuplicateInvoices rejects two lines referencing the same invoice
var CheckNoDuplicateInvoices = Check{
	Name: "no_duplicate_invoices",
	Run: func(in *GateInput) []shared.Violation {
		seen := make(map[uuid.UUID]int, len(in.Lines))
		var out []shared.Violation
		for _, line := range in.Lines {
			if first, ok := seen[line.InvoiceID]; ok {
				out = append(out, violation(in.LineField(line.Index, "invoice_id"), CodeDuplicateInvoice,
					"Invoice %s is already referenced by entry %d", line.InvoiceID, first))
				continue
			}
			seen[line.InvoiceID] = line.Index
		}
		return out
	},
}

// CheckPositiveAmounts requires every line amount to be positive
var CheckPositiveAmounts = Check{
	Name: "positive_amounts",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			if !line.Amount.IsPositive() {
				out = append(out, violation(in.LineField(line.Index, "amount"), CodeNotPositive,
					"Amount must be greater than zero"))
			}
		}
		return out
	},
}

// CheckInvoicesOpen requires every referenced invoice to exist and accept payment
var CheckInvoicesOpen = Check{
	Name: "invoices_open",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			inv, ok := in.Invoices[line.InvoiceID]
			if !ok {
				out = append(out, violation(in.LineField(line.Index, "invoice_id"), CodeInvoiceNotFound,
					"Invoice %s was not found", line.InvoiceID))
				continue
			}
			if !inv.CanReceivePayment() {
				out = append(out, violation(in.LineField(line.Index, "invoice_id"), CodeInvoiceNotOpen,
					"Invoice %s is %s and cannot receive payment", inv.InvoiceNumber, inv.Status))
			}
		}
		return out
	},
}

// CheckWithinOutstanding caps each line at its invoice's outstanding balance
var CheckWithinOutstanding = Check{
	Name: "within_outstanding",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			inv := in.Invoices[line.InvoiceID]
			if line.Amount.GreaterThan(inv.Outstanding()) {
				out = append(out, violation(in.LineField(line.Index, "amount"), CodeExceedsOutstanding,
					"Amount %s exceeds outstanding balance %s of invoice %s",
					fixed(line.Amount), fixed(inv.Outstanding()), inv.InvoiceNumber))
			}
		}
		return out
	},
}

// CheckAllocationDates requires issue_date <= allocation_date <= payment_date
var CheckAllocationDates = Check{
	Name: "allocation_dates",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			inv := in.Invoices[line.InvoiceID]
			date := DateOf(line.Date)
			field := in.LineField(line.Index, "allocation_date")
			if date.Before(inv.IssueDate) {
				out = append(out, violation(field, CodeDateBeforeIssue,
					"Allocation date %s is before invoice %s issue date %s",
					date.Format(dateLayout), inv.InvoiceNumber, inv.IssueDate.Format(dateLayout)))
			}
			if date.After(in.Payment.PaymentDate) {
				out = append(out, violation(field, CodeDateAfterPayment,
					"Allocation date %s is after payment date %s",
					date.Format(dateLayout), in.Payment.PaymentDate.Format(dateLayout)))
			}
		}
		return out
	},
}

// CheckSumMatchesTarget requires the lines to sum to Target within tolerance
var CheckSumMatchesTarget = Check{
	Name: "sum_matches_target",
	Run: func(in *GateInput) []shared.Violation {
		sum := decimal.Zero
		for _, line := range in.Lines {
			sum = sum.Add(line.Amount)
		}
		if !valueobject.WithinTolerance(sum, in.Target) {
			return []shared.Violation{violation(in.TargetField, CodeSumMismatch,
				"Entries total %s but must equal %s", fixed(sum), fixed(in.Target))}
		}
		return nil
	},
}

// CheckPairedWithPayment requires refund lines to reference invoices this
// payment actually paid
var CheckPairedWithPayment = Check{
	Name: "paired_with_payment",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			if !in.Payment.PaidTo(line.InvoiceID).IsPositive() {
				out = append(out, violation(in.LineField(line.Index, "invoice_id"), CodeNotPaidByPayment,
					"Invoice %s was not paid by payment %s", line.InvoiceID, in.Payment.PaymentNumber))
			}
		}
		return out
	},
}

// CheckWithinRefundable caps each refund line at paid minus already refunded
var CheckWithinRefundable = Check{
	Name: "within_refundable",
	Run: func(in *GateInput) []shared.Violation {
		var out []shared.Violation
		for _, line := range in.Lines {
			available := in.Payment.AvailableToRefund(line.InvoiceID)
			if line.Amount.GreaterThan(available) {
				out = append(out, violation(in.LineField(line.Index, "amount"), CodeExceedsAvailable,
					"Refund %s exceeds %s available on invoice %s", fixed(line.Amount), fixed(available), line.InvoiceID))
			}
		}
		return out
	},
}

// CheckTotalRefundable caps an untied refund at everything still refundable
var CheckTotalRefundable = Check{
	Name: "total_refundable",
	Run: func(in *GateInput) []shared.Violation {
		available := decimal.Zero
		for _, pr := range in.Payment.Pairings() {
			available = available.Add(pr.Available)
		}
		if !in.Target.IsPositive() {
			return []shared.Violation{violation(in.TargetField, CodeNotPositive, "Refund amount must be greater than zero")}
		}
		if in.Target.GreaterThan(available) {
			return []shared.Violation{violation(in.TargetField, CodeExceedsAvailable,
				"Refund amount %s exceeds %s available to refund", fixed(in.Target), fixed(available))}
		}
		return nil
	},
}

// CheckRefundMethod validates the refund method, its compatibility with the
// original payment method, and the details each method needs
var CheckRefundMethod = Check{
	Name: "refund_method",
	Run: func(in *GateInput) []shared.Violation {
		m := in.RefundMethod
		if !m.IsValid() {
			return []shared.Violation{violation("refund_method", CodeInvalidMethod, "Refund method %q is not valid", m)}
		}
		if !m.IsCompatibleWith(in.Payment.PaymentMethod) {
			return []shared.Violation{violation("refund_method", CodeMethodIncompatible,
				"Cannot refund a %s payment via %s", in.Payment.PaymentMethod, m)}
		}
		var out []shared.Violation
		switch m.Resolve(in.Payment.PaymentMethod) {
		case RefundMethodCheck:
			if strings.TrimSpace(in.CheckNumber) == "" {
				out = append(out, violation("check_number", CodeRequired, "Check number is required for check refunds"))
			}
		case RefundMethodBankTransfer:
			if in.BankAccountID == nil || *in.BankAccountID == uuid.Nil {
				out = append(out, violation("bank_account_id", CodeRequired, "Bank account is required for bank transfer refunds"))
			}
		}
		return out
	},
}

const dateLayout = "2006-01-02"
