package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError(
		NewViolation("allocations.0.amount", "exceeds_outstanding", "too much"),
		NewViolation("allocations.0.amount", "not_positive", "must be positive"),
		NewViolation("reason", "required", "Reason is required"),
	)

	assert.Equal(t, "validation failed: allocations.0.amount: too much; allocations.0.amount: must be positive; reason: Reason is required", err.Error())
	assert.Equal(t, []string{"allocations.0.amount", "reason"}, err.Fields())
	assert.True(t, err.HasField("reason"))
	assert.False(t, err.HasField("refund_date"))
	assert.Equal(t, "validation failed", NewValidationError().Error())
}

func TestErrorClassification(t *testing.T) {
	validation := fmt.Errorf("allocate: %w", NewValidationError(NewViolation("f", "c", "m")))
	policy := fmt.Errorf("allocate: %w", NewPolicyError(PolicyCodeForbidden, "payments.allocate", "nope"))
	conflict := fmt.Errorf("save: %w", ErrConcurrencyConflict)

	assert.True(t, IsValidationError(validation))
	assert.False(t, IsPolicyError(validation))
	assert.True(t, IsPolicyError(policy))

	ve, ok := AsValidationError(validation)
	require.True(t, ok)
	assert.Len(t, ve.Violations, 1)

	_, ok = AsValidationError(policy)
	assert.False(t, ok)

	assert.Equal(t, "ok", ErrorClass(nil))
	assert.Equal(t, "validation", ErrorClass(validation))
	assert.Equal(t, "policy", ErrorClass(policy))
	assert.Equal(t, "conflict", ErrorClass(conflict))
	assert.Equal(t, "error", ErrorClass(errors.New("boom")))
}
