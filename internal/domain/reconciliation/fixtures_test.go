package reconciliation

import (
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testCompanyID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testCustomerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	testActorID    = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	testNow        = time.Date(2026, 3, 20, 15, 30, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testContext(granted ...Capability) Context {
	return NewContext(testCompanyID, testActorID, testNow, granted...)
}

func newTestPayment(t *testing.T, amount string, paymentDate time.Time) *Payment {
	t.Helper()
	money, err := valueobject.NewMoneyFromString(amount, valueobject.USD)
	require.NoError(t, err)
	p, err := NewPayment(testCompanyID, testCustomerID, FormatPaymentNumber(paymentDate, 1), money, PaymentMethodCheck, paymentDate)
	require.NoError(t, err)
	return p
}

func newTestInvoice(t *testing.T, number, total string, issued time.Time) *Invoice {
	t.Helper()
	inv, err := NewInvoice(testCompanyID, testCustomerID, number, dec(total), issued, issued.AddDate(0, 0, 30))
	require.NoError(t, err)
	return inv
}

func allocateWith(t *testing.T, p *Payment, invoices []*Invoice, req AllocationRequest) *AllocationOutcome {
	t.Helper()
	out, err := NewAllocationEngine().Allocate(testContext(), p, invoices, req)
	require.NoError(t, err)
	return out
}
