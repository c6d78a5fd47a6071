package reconciliation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// newValidator returns a validator that reports json field names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath converts a validator namespace such as
// "RefundPaymentCommand.allocations[0].amount" to "allocations.0.amount"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

// structViolations runs struct-tag validation and maps failures to violations
func structViolations(v *validator.Validate, s any) []shared.Violation {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []shared.Violation{shared.NewViolation("", "invalid", err.Error())}
	}
	out := make([]shared.Violation, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, shared.NewViolation(fieldPath(e.Namespace()), e.Tag(), validationMessage(e)))
	}
	return out
}

// validationMessage returns a human-readable validation message
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must contain at most " + e.Param() + " entries"
	case "oneof":
		return "Must be one of: " + e.Param()
	default:
		return "Invalid value"
	}
}

// requireScale rejects amounts that carry more decimal places than the ledger
// stores. Trailing zeros are fine.
func requireScale(field string, amount decimal.Decimal) []shared.Violation {
	if amount.Equal(valueobject.NormalizeAmount(amount)) {
		return nil
	}
	return []shared.Violation{shared.NewViolation(field, "scale",
		fmt.Sprintf("Must have at most %d decimal places", valueobject.AmountScale))}
}

func requireID(field string, id uuid.UUID) []shared.Violation {
	if id == uuid.Nil {
		return []shared.Violation{shared.NewViolation(field, "required", "This field is required")}
	}
	return nil
}

// validateCommandContext rejects a context without company or actor
func validateCommandContext(v *validator.Validate, cc CommandContext) error {
	var violations []shared.Violation
	violations = append(violations, requireID("company_id", cc.CompanyID)...)
	violations = append(violations, requireID("actor_id", cc.ActorID)...)
	violations = append(violations, structViolations(v, cc)...)
	if len(violations) > 0 {
		return shared.NewValidationError(violations...)
	}
	return nil
}

func validateAllocate(v *validator.Validate, cmd AllocatePaymentCommand) error {
	violations := requireID("payment_id", cmd.PaymentID)
	violations = append(violations, structViolations(v, cmd)...)
	for i, a := range cmd.Allocations {
		violations = append(violations, requireID(linePath("allocations", i, "invoice_id"), a.InvoiceID)...)
		violations = append(violations, requireScale(linePath("allocations", i, "amount"), a.Amount)...)
	}
	if cmd.AutoAllocate && len(cmd.Allocations) > 0 {
		violations = append(violations, shared.NewViolation("allocations", "excluded_with",
			"Allocations must be empty when auto_allocate is set"))
	}
	if len(violations) > 0 {
		return shared.NewValidationError(violations...)
	}
	return nil
}

func validateVoid(v *validator.Validate, cmd VoidPaymentCommand) error {
	violations := requireID("payment_id", cmd.PaymentID)
	violations = append(violations, structViolations(v, cmd)...)
	if len(violations) > 0 {
		return shared.NewValidationError(violations...)
	}
	return nil
}

func validateRefund(v *validator.Validate, cmd RefundPaymentCommand) error {
	violations := requireID("payment_id", cmd.PaymentID)
	violations = append(violations, structViolations(v, cmd)...)
	if !cmd.RefundAmount.IsPositive() {
		violations = append(violations, shared.NewViolation("refund_amount", "gt", "Must be greater than 0"))
	}
	violations = append(violations, requireScale("refund_amount", cmd.RefundAmount)...)
	for i, a := range cmd.Allocations {
		violations = append(violations, requireID(linePath("allocations", i, "invoice_id"), a.InvoiceID)...)
		violations = append(violations, requireScale(linePath("allocations", i, "amount"), a.Amount)...)
	}
	if len(violations) > 0 {
		return shared.NewValidationError(violations...)
	}
	return nil
}

func linePath(prefix string, index int, attr string) string {
	return fmt.Sprintf("%s.%d.%s", prefix, index, attr)
}
