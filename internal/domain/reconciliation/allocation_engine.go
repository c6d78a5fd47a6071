package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationEntry is one caller-supplied manual allocation
type AllocationEntry struct {
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	AllocationDate *time.Time // Defaults to the payment date
	Notes          string
}

// AllocationRequest describes how to allocate a payment
type AllocationRequest struct {
	Entries      []AllocationEntry
	AutoAllocate bool
	Method       AllocationMethod
	Notes        string // Applied to algorithmic allocations
}

// EffectiveMethod returns the method recorded on the resulting allocations
func (r AllocationRequest) EffectiveMethod() AllocationMethod {
	if !r.AutoAllocate {
		return AllocationMethodManual
	}
	return r.Method
}

// AllocationOutcome is the mutation produced by a successful allocation
type AllocationOutcome struct {
	Payment     *Payment
	Allocations []*Allocation
	Invoices    []*Invoice // Touched invoices in ascending id order
}

// TotalAllocated returns the sum of the new allocations
func (o *AllocationOutcome) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range o.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// AllocationEngine validates and applies payments against invoices
type AllocationEngine struct {
	paymentGate *Gate
	manualGate  *Gate
	autoGate    *Gate
}

// NewAllocationEngine creates an allocation engine
func NewAllocationEngine() *AllocationEngine {
	return &AllocationEngine{
		paymentGate: NewGate(
			Stage{Name: "payment", Checks: []Check{CheckNotReversed, CheckPaymentCompleted, CheckHasRemaining}},
		),
		manualGate: NewGate(
			Stage{Name: "request", Checks: []Check{CheckLinesPresent, CheckNoDuplicateInvoices, CheckPositiveAmounts}},
			Stage{Name: "invoices", Checks: []Check{CheckInvoicesOpen}},
			Stage{Name: "balances", Checks: []Check{CheckWithinOutstanding, CheckAllocationDates, CheckSumMatchesTarget}},
		),
		autoGate: NewGate(
			Stage{Name: "invoices", Checks: []Check{CheckNoDuplicateInvoices, CheckPositiveAmounts, CheckInvoicesOpen}},
			Stage{Name: "balances", Checks: []Check{CheckWithinOutstanding, CheckAllocationDates}},
		),
	}
}

// Allocate validates req against the locked payment and invoices and, when
// every rule holds, applies the allocations to them. On any violation the
// aggregates are left untouched.
func (e *AllocationEngine) Allocate(ctx Context, payment *Payment, invoices []*Invoice, req AllocationRequest) (*AllocationOutcome, error) {
	if err := ensureOwned(ctx, payment, invoices); err != nil {
		return nil, err
	}

	in := &GateInput{
		Ctx:        ctx,
		Payment:    payment,
		Invoices:   indexInvoices(invoices),
		LinePrefix: "allocations",
	}
	if err := e.paymentGate.Evaluate(in); err != nil {
		return nil, err
	}

	var proposals []ProposedAllocation
	if req.AutoAllocate {
		if !req.Method.IsAlgorithmic() {
			return nil, shared.NewValidationError(violation("allocation_method", CodeInvalidMethod,
				"Automatic allocation requires fifo, lifo or pro_rata, got %q", req.Method))
		}
		strategy, err := StrategyFor(req.Method)
		if err != nil {
			return nil, err
		}
		proposals = strategy(payment.RemainingAmount(), e.candidates(payment, invoices))
		if len(proposals) == 0 {
			return nil, shared.NewValidationError(violation("allocations", CodeRequired,
				"No open invoices for customer were issued on or before %s", payment.PaymentDate.Format(dateLayout)))
		}
		for i := range proposals {
			proposals[i].AllocationDate = payment.PaymentDate
			proposals[i].Notes = req.Notes
		}
	} else {
		if req.Method != "" && req.Method != AllocationMethodManual {
			return nil, shared.NewValidationError(violation("allocation_method", CodeInvalidMethod,
				"Allocation method %q requires auto_allocate", req.Method))
		}
		proposals = make([]ProposedAllocation, len(req.Entries))
		for i, entry := range req.Entries {
			date := payment.PaymentDate
			if entry.AllocationDate != nil {
				date = *entry.AllocationDate
			}
			proposals[i] = ProposedAllocation{
				InvoiceID:      entry.InvoiceID,
				Amount:         entry.Amount,
				AllocationDate: date,
				Notes:          entry.Notes,
			}
		}
	}

	in.Lines = linesFromProposals(proposals)
	gate := e.autoGate
	if !req.AutoAllocate {
		gate = e.manualGate
		in.Target = payment.RemainingAmount()
		in.TargetField = "allocations"
	}
	if err := gate.Evaluate(in); err != nil {
		return nil, err
	}

	return e.apply(ctx, payment, in.Invoices, proposals, req.EffectiveMethod())
}

// candidates returns the open invoices of the payment's customer issued on or
// before the payment date
func (e *AllocationEngine) candidates(payment *Payment, invoices []*Invoice) []Candidate {
	out := make([]Candidate, 0, len(invoices))
	for _, inv := range invoices {
		if inv.CustomerID != payment.CustomerID || !inv.CanReceivePayment() {
			continue
		}
		if inv.IssueDate.After(payment.PaymentDate) {
			continue
		}
		out = append(out, CandidateFromInvoice(inv))
	}
	return out
}

func (e *AllocationEngine) apply(
	ctx Context,
	payment *Payment,
	invoices map[uuid.UUID]*Invoice,
	proposals []ProposedAllocation,
	method AllocationMethod,
) (*AllocationOutcome, error) {
	allocations := make([]*Allocation, 0, len(proposals))
	touched := make([]*Invoice, 0, len(proposals))
	for _, p := range proposals {
		inv := invoices[p.InvoiceID]
		if err := inv.applyPayment(p.Amount, ctx.Now); err != nil {
			return nil, fmt.Errorf("apply allocation to invoice %s: %w", inv.InvoiceNumber, err)
		}
		allocations = append(allocations, newAllocation(ctx, payment, inv, p, method))
		touched = append(touched, inv)
	}
	payment.recordAllocations(ctx, allocations)
	sortInvoices(touched)

	return &AllocationOutcome{
		Payment:     payment,
		Allocations: allocations,
		Invoices:    touched,
	}, nil
}

// ensureOwned rejects any aggregate outside the caller's company
func ensureOwned(ctx Context, payment *Payment, invoices []*Invoice) error {
	if !payment.BelongsTo(ctx.CompanyID) {
		return shared.NewPolicyError(shared.PolicyCodeTenantMismatch, "",
			fmt.Sprintf("Payment %s does not belong to the current company", payment.ID))
	}
	for _, inv := range invoices {
		if !inv.BelongsTo(ctx.CompanyID) {
			return shared.NewPolicyError(shared.PolicyCodeTenantMismatch, "",
				fmt.Sprintf("Invoice %s does not belong to the current company", inv.ID))
		}
	}
	return nil
}

func indexInvoices(invoices []*Invoice) map[uuid.UUID]*Invoice {
	m := make(map[uuid.UUID]*Invoice, len(invoices))
	for _, inv := range invoices {
		m[inv.ID] = inv
	}
	return m
}

func linesFromProposals(proposals []ProposedAllocation) []GateLine {
	lines := make([]GateLine, len(proposals))
	for i, p := range proposals {
		lines[i] = GateLine{Index: i, InvoiceID: p.InvoiceID, Amount: p.Amount, Date: p.AllocationDate}
	}
	return lines
}

// SortInvoiceIDs orders ids ascending, the order in which rows are locked
func SortInvoiceIDs(ids []uuid.UUID) []uuid.UUID {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}

func sortInvoices(invoices []*Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		return invoices[i].ID.String() < invoices[j].ID.String()
	})
}
