package reconciliation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// VoidRequest describes a void command
type VoidRequest struct {
	VoidDate time.Time
	Reason   string
}

// VoidEngine reverses payments that were never allocated or refunded
type VoidEngine struct {
	gate *Gate
}

// NewVoidEngine creates a void engine
func NewVoidEngine() *VoidEngine {
	return &VoidEngine{
		gate: NewGate(
			Stage{Name: "payment", Checks: []Check{CheckNotReversed, CheckVoidable}},
			Stage{Name: "request", Checks: []Check{CheckReason, CheckEffectiveDate}},
			Stage{Name: "elevation", Checks: []Check{CheckPaymentAge(CapabilityVoidOld, "voiding")}},
		),
	}
}

// Void creates the reversal for payment and moves it to voided. A second
// void always fails because the reversal already exists.
func (e *VoidEngine) Void(ctx Context, payment *Payment, req VoidRequest) (*Reversal, error) {
	if err := ensureOwned(ctx, payment, nil); err != nil {
		return nil, err
	}

	in := &GateInput{
		Ctx:       ctx,
		Payment:   payment,
		Date:      req.VoidDate,
		DateField: "void_date",
		Reason:    req.Reason,
	}
	if err := e.gate.Evaluate(in); err != nil {
		return nil, err
	}

	reversal := &Reversal{
		ID:        uuid.New(),
		CompanyID: payment.CompanyID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Reason:    strings.TrimSpace(req.Reason),
		VoidDate:  DateOf(req.VoidDate),
		CreatedBy: ctx.ActorID,
		CreatedAt: ctx.Now,
	}
	payment.markVoided(ctx, reversal)
	return reversal, nil
}
