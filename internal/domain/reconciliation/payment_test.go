package reconciliation

import (
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	money, _ := valueobject.NewMoneyFromString("100", valueobject.USD)
	date := day(2026, 3, 1)

	t.Run("creates completed payment", func(t *testing.T) {
		p, err := NewPayment(testCompanyID, testCustomerID, "PAY-20260301-0001", money, PaymentMethodCash, date)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatusCompleted, p.Status)
		assert.Equal(t, 1, p.GetVersion())
		assert.True(t, p.RemainingAmount().Equal(dec("100")))
		assert.True(t, p.CanBeAllocated())
		assert.True(t, p.CanBeVoided())
		assert.False(t, p.CanBeRefunded())
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := NewPayment(uuid.Nil, testCustomerID, "PAY-20260301-0001", money, PaymentMethodCash, date)
		assert.Error(t, err)
		_, err = NewPayment(testCompanyID, testCustomerID, "P-1", money, PaymentMethodCash, date)
		assert.Error(t, err)
		_, err = NewPayment(testCompanyID, testCustomerID, "PAY-20260301-0001", valueobject.Zero(valueobject.USD), PaymentMethodCash, date)
		assert.Error(t, err)
		_, err = NewPayment(testCompanyID, testCustomerID, "PAY-20260301-0001", money, "barter", date)
		assert.Error(t, err)
		_, err = NewPayment(testCompanyID, testCustomerID, "PAY-20260301-0001", money, PaymentMethodCash, time.Time{})
		assert.Error(t, err)
	})
}

func TestPaymentBalances(t *testing.T) {
	p := newTestPayment(t, "300", day(2026, 3, 1))
	invA := uuid.New()
	invB := uuid.New()
	first := testNow.Add(-2 * time.Hour)
	p.Allocations = []Allocation{
		{InvoiceID: invB, Amount: dec("50"), CreatedAt: testNow},
		{InvoiceID: invA, Amount: dec("100"), CreatedAt: first},
		{InvoiceID: invA, Amount: dec("25"), CreatedAt: testNow},
	}
	p.Refunds = []Refund{{InvoiceID: &invA, Amount: dec("30")}}

	assert.True(t, p.AllocatedAmount().Equal(dec("175")))
	assert.True(t, p.RefundedAmount().Equal(dec("30")))
	assert.True(t, p.RemainingAmount().Equal(dec("125")), "refunds do not restore remaining")
	assert.True(t, p.NetApplied().Equal(dec("145")))
	assert.True(t, p.PaidTo(invA).Equal(dec("125")))
	assert.True(t, p.AvailableToRefund(invA).Equal(dec("95")))
	assert.True(t, p.AvailableToRefund(invB).Equal(dec("50")))

	pairings := p.Pairings()
	require.Len(t, pairings, 2)
	assert.Equal(t, invA, pairings[0].InvoiceID, "oldest allocation first")
	assert.Equal(t, []uuid.UUID{invA, invB}, p.PairedInvoiceIDs())

	assert.False(t, p.CanBeVoided())
	assert.True(t, p.CanBeRefunded())
}

func TestPaymentAge(t *testing.T) {
	p := newTestPayment(t, "10", day(2025, 12, 20))
	assert.Equal(t, 90, p.AgeInDays(testNow))
}

func TestPaymentNumber(t *testing.T) {
	n := FormatPaymentNumber(time.Date(2026, 1, 7, 23, 0, 0, 0, time.UTC), 42)
	assert.Equal(t, "PAY-20260107-0042", n)
	assert.True(t, IsValidPaymentNumber(n))
	assert.True(t, IsValidPaymentNumber("PAY-20260107-12345"))
	assert.False(t, IsValidPaymentNumber("PAY-20261307-0001"))
	assert.False(t, IsValidPaymentNumber("PAY-2026017-0001"))
	assert.False(t, IsValidPaymentNumber("INV-20260107-0001"))
}

func TestInvoiceStatusTransitions(t *testing.T) {
	inv := newTestInvoice(t, "INV-001", "100", day(2026, 1, 1))
	assert.Equal(t, InvoiceStatusSent, inv.Status)

	require.NoError(t, inv.applyPayment(dec("40"), testNow))
	assert.Equal(t, InvoiceStatusPartial, inv.Status)
	assert.True(t, inv.Outstanding().Equal(dec("60")))

	require.NoError(t, inv.applyPayment(dec("59.995"), testNow))
	assert.Equal(t, InvoiceStatusPaid, inv.Status, "within tolerance counts as paid")
	assert.False(t, inv.CanReceivePayment())

	assert.Error(t, inv.applyPayment(dec("1"), testNow))

	require.NoError(t, inv.reversePayment(dec("99.995"), testNow))
	assert.Equal(t, InvoiceStatusSent, inv.Status)
	assert.True(t, inv.TotalPaid.IsZero())
	assert.Equal(t, 4, inv.GetVersion())
}

func TestInvoiceRejectsOverpayment(t *testing.T) {
	inv := newTestInvoice(t, "INV-001", "100", day(2026, 1, 1))
	err := inv.applyPayment(dec("100.02"), testNow)
	assert.Error(t, err)
	assert.True(t, inv.TotalPaid.IsZero())
}
