package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Candidate is an open invoice offered to an allocation strategy
type Candidate struct {
	InvoiceID     uuid.UUID       // ID of the invoice
	InvoiceNumber string          // Tie-breaker and display
	IssueDate     time.Time       // Ordering key for fifo and lifo
	Outstanding   decimal.Decimal // Amount still owed
}

// CandidateFromInvoice builds a strategy candidate from an invoice snapshot
func CandidateFromInvoice(inv *Invoice) Candidate {
	return Candidate{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate,
		Outstanding:   inv.Outstanding(),
	}
}

// ProposedAllocation is an allocation the gate has not yet validated
type ProposedAllocation struct {
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	AllocationDate time.Time
	Notes          string
}

// Strategy computes proposals for a remaining amount over candidates. A
// strategy never allocates more than remaining or more than a candidate's
// outstanding balance; any leftover stays on the payment.
type Strategy func(remaining decimal.Decimal, candidates []Candidate) []ProposedAllocation

// StrategyFor returns the strategy function for an algorithmic method
func StrategyFor(method AllocationMethod) (Strategy, error) {
	switch method {
	case AllocationMethodFIFO:
		return FIFO, nil
	case AllocationMethodLIFO:
		return LIFO, nil
	case AllocationMethodProRata:
		return ProRata, nil
	case AllocationMethodManual:
		return nil, shared.NewDomainError("INVALID_METHOD", "Manual allocation requires explicit entries")
	}
	return nil, shared.NewDomainError("INVALID_METHOD", fmt.Sprintf("Unknown allocation method: %s", method))
}

// FIFO pays the oldest invoices first
func FIFO(remaining decimal.Decimal, candidates []Candidate) []ProposedAllocation {
	return sequential(remaining, ordered(candidates, false))
}

// LIFO pays the newest invoices first
func LIFO(remaining decimal.Decimal, candidates []Candidate) []ProposedAllocation {
	return sequential(remaining, ordered(candidates, true))
}

// ProRata splits remaining across candidates in proportion to their
// outstanding balances. The last candidate absorbs the rounding residue up to
// its own outstanding balance and any excess falls back to earlier ones. When
// remaining covers everything, each candidate is paid in full.
func ProRata(remaining decimal.Decimal, candidates []Candidate) []ProposedAllocation {
	open := make([]Candidate, 0, len(candidates))
	totalOutstanding := decimal.Zero
	for _, c := range candidates {
		if c.Outstanding.IsPositive() {
			open = append(open, c)
			totalOutstanding = totalOutstanding.Add(c.Outstanding)
		}
	}
	if len(open) == 0 || !remaining.IsPositive() {
		return nil
	}
	if remaining.GreaterThanOrEqual(totalOutstanding) {
		return sequential(totalOutstanding, open)
	}

	caps := make([]decimal.Decimal, len(open))
	for i, c := range open {
		caps[i] = c.Outstanding
	}
	shares, err := valueobject.SplitWithinCaps(remaining, caps)
	if err != nil {
		return nil
	}

	proposals := make([]ProposedAllocation, 0, len(open))
	for i, c := range open {
		if !shares[i].IsPositive() {
			continue
		}
		proposals = append(proposals, ProposedAllocation{InvoiceID: c.InvoiceID, Amount: shares[i]})
	}
	return proposals
}

// sequential fills candidates in order until remaining runs out
func sequential(remaining decimal.Decimal, candidates []Candidate) []ProposedAllocation {
	proposals := make([]ProposedAllocation, 0, len(candidates))
	left := remaining
	for _, c := range candidates {
		if !left.IsPositive() {
			break
		}
		if !c.Outstanding.IsPositive() {
			continue
		}
		amount := decimal.Min(left, c.Outstanding)
		proposals = append(proposals, ProposedAllocation{InvoiceID: c.InvoiceID, Amount: amount})
		left = left.Sub(amount)
	}
	return proposals
}

// ordered sorts a copy of candidates by issue date, then invoice number, then id
func ordered(candidates []Candidate, newestFirst bool) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.IssueDate.Equal(b.IssueDate) {
			if newestFirst {
				return a.IssueDate.After(b.IssueDate)
			}
			return a.IssueDate.Before(b.IssueDate)
		}
		if a.InvoiceNumber != b.InvoiceNumber {
			return a.InvoiceNumber < b.InvoiceNumber
		}
		return a.InvoiceID.String() < b.InvoiceID.String()
	})
	return sorted
}
