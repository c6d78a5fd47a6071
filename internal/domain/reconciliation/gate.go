package reconciliation

import (
	"strconv"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GateLine is one per-invoice entry of a command, in request order
type GateLine struct {
	Index     int
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Date      time.Time
}

// GateInput is the snapshot every check reads. It is built from rows locked
// inside the command's transaction.
type GateInput struct {
	Ctx      Context
	Payment  *Payment
	Invoices map[uuid.UUID]*Invoice
	Lines    []GateLine

	// LinePrefix names the request field holding Lines, e.g. "allocations"
	LinePrefix string

	// Target is the amount Lines must sum to, when the command fixes one
	Target      decimal.Decimal
	TargetField string

	// Date is the effective date of a void or refund
	Date      time.Time
	DateField string

	Reason        string
	RefundMethod  RefundMethod
	CheckNumber   string
	BankAccountID *uuid.UUID
}

// LineField returns the field path of a line attribute, e.g. allocations.0.amount
func (in *GateInput) LineField(index int, attr string) string {
	return in.LinePrefix + "." + strconv.Itoa(index) + "." + attr
}

// Check is a named business rule returning zero or more violations
type Check struct {
	Name string
	Run  func(in *GateInput) []shared.Violation
}

// Stage groups checks that can be evaluated independently of one another.
// Later stages assume earlier stages passed.
type Stage struct {
	Name   string
	Checks []Check
}

// Gate is an ordered pipeline of stages shared by the reconciliation engines
type Gate struct {
	stages []Stage
}

// NewGate creates a gate from ordered stages
func NewGate(stages ...Stage) *Gate {
	return &Gate{stages: stages}
}

// Evaluate runs every check of each stage in order. It stops after the
// first stage that produced violations and returns them as a
// *shared.ValidationError. A nil return means every check passed.
func (g *Gate) Evaluate(in *GateInput) error {
	for _, stage := range g.stages {
		var violations []shared.Violation
		for _, check := range stage.Checks {
			violations = append(violations, check.Run(in)...)
		}
		if len(violations) > 0 {
			return shared.NewValidationError(violations...)
		}
	}
	return nil
}

// CheckNames lists the checks in evaluation order, prefixed by stage name
func (g *Gate) CheckNames() []string {
	names := make([]string, 0)
	for _, stage := range g.stages {
		for _, check := range stage.Checks {
			names = append(names, stage.Name+"/"+check.Name)
		}
	}
	return names
}
