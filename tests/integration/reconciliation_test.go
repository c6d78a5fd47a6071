package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	app "github.com/erp/reconciliation/internal/application/reconciliation"
	domain "github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/domain/shared/valueobject"
	"github.com/erp/reconciliation/internal/infrastructure/auth"
	"github.com/erp/reconciliation/internal/infrastructure/cache"
	"github.com/erp/reconciliation/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var clock = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

// ledgerSetup is one company's slice of a shared test database
type ledgerSetup struct {
	db         *TestDB
	svc        *app.Service
	companyID  uuid.UUID
	customerID uuid.UUID
	actorID    uuid.UUID
	seq        int
}

func newLedgerSetup(t *testing.T, db *TestDB) *ledgerSetup {
	t.Helper()
	caps, err := auth.NewStaticCapabilityChecker(map[string][]string{
		auth.Wildcard: {"payments.*"},
	})
	require.NoError(t, err)

	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })

	return &ledgerSetup{
		db: db,
		svc: app.NewService(db.Database.UnitOfWork(), caps,
			app.WithIdempotencyStore(store, time.Hour),
			app.WithLogger(zaptest.NewLogger(t)),
			app.WithClock(func() time.Time { return clock }),
		),
		companyID:  uuid.New(),
		customerID: uuid.New(),
		actorID:    uuid.New(),
	}
}

func (s *ledgerSetup) cc(key string) app.CommandContext {
	return app.CommandContext{CompanyID: s.companyID, ActorID: s.actorID, IdempotencyKey: key}
}

func (s *ledgerSetup) payment(t *testing.T, amount string, paid time.Time) *domain.Payment {
	t.Helper()
	s.seq++
	money, err := valueobject.NewMoneyFromString(amount, valueobject.USD)
	require.NoError(t, err)
	p, err := domain.NewPayment(s.companyID, s.customerID, domain.FormatPaymentNumber(paid, s.seq), money, domain.PaymentMethodBankTransfer, paid)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormPaymentRepository(s.db.DB).Create(context.Background(), p))
	return p
}

func (s *ledgerSetup) invoice(t *testing.T, number, total string, issued time.Time) *domain.Invoice {
	t.Helper()
	inv, err := domain.NewInvoice(s.companyID, s.customerID, number, decimal.RequireFromString(total), issued, issued.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormInvoiceRepository(s.db.DB).Create(context.Background(), inv))
	return inv
}

func (s *ledgerSetup) storedInvoice(t *testing.T, id uuid.UUID) *domain.Invoice {
	t.Helper()
	invs, err := persistence.NewGormInvoiceRepository(s.db.DB).FindByIDs(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	return invs[0]
}

func (s *ledgerSetup) storedPayment(t *testing.T, id uuid.UUID) *domain.Payment {
	t.Helper()
	p, err := persistence.NewGormPaymentRepository(s.db.DB).FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestReconciliation_PostgreSQL(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	t.Run("allocate refund and summarize", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		p := s.payment(t, "150.00", day(5, 1))
		older := s.invoice(t, "INV-100", "100.00", day(1, 10))
		newer := s.invoice(t, "INV-101", "100.00", day(2, 10))

		alloc, err := s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
			PaymentID:    p.ID,
			AutoAllocate: true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AllocationMethodFIFO, alloc.Method)
		assert.True(t, alloc.RemainingAmount.IsZero())
		assert.Equal(t, int64(2), db.CountRows("payment_allocations", p.ID))
		assert.Equal(t, domain.InvoiceStatusPaid, s.storedInvoice(t, older.ID).Status)
		assert.True(t, s.storedInvoice(t, newer.ID).TotalPaid.Equal(dec("50")))

		refund, err := s.svc.RefundPayment(ctx, s.cc(""), app.RefundPaymentCommand{
			PaymentID:    p.ID,
			RefundAmount: dec("30.00"),
			RefundMethod: "cash",
			Reason:       "Price adjustment",
			Allocations:  []app.RefundAllocationInput{{InvoiceID: older.ID, Amount: dec("30.00")}},
		})
		require.NoError(t, err)
		assert.True(t, refund.TotalRefunded.Equal(dec("30")))
		assert.Equal(t, int64(1), db.CountRows("payment_refunds", p.ID))

		stored := s.storedInvoice(t, older.ID)
		assert.True(t, stored.TotalPaid.Equal(dec("70")), stored.TotalPaid.String())
		assert.Equal(t, domain.InvoiceStatusPartial, stored.Status)

		summary, err := s.svc.GetPaymentSummary(ctx, s.cc(""), p.ID)
		require.NoError(t, err)
		assert.True(t, summary.Allocated.Equal(dec("150")))
		assert.True(t, summary.Refunded.Equal(dec("30")))
		assert.True(t, summary.Remaining.IsZero(), summary.Remaining.String())
		assert.True(t, summary.NetApplied.Equal(dec("120")))
		assert.Len(t, summary.Invoices, 2)
	})

	t.Run("void reverses an unallocated payment once", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		allocated := s.payment(t, "80.00", day(5, 2))
		unused := s.payment(t, "45.00", day(5, 2))
		inv := s.invoice(t, "INV-200", "80.00", day(4, 1))

		_, err := s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
			PaymentID:   allocated.ID,
			Allocations: []app.AllocationInput{{InvoiceID: inv.ID, Amount: dec("80.00")}},
		})
		require.NoError(t, err)

		_, err = s.svc.VoidPayment(ctx, s.cc(""), app.VoidPaymentCommand{PaymentID: allocated.ID, Reason: "Bounced check"})
		require.Error(t, err)
		assert.True(t, shared.IsValidationError(err), err.Error())
		assert.Equal(t, int64(0), db.CountRows("payment_reversals", allocated.ID))

		reversal, err := s.svc.VoidPayment(ctx, s.cc(""), app.VoidPaymentCommand{PaymentID: unused.ID, Reason: "Entered twice"})
		require.NoError(t, err)
		assert.True(t, reversal.Amount.Equal(dec("45")))
		assert.Equal(t, int64(1), db.CountRows("payment_reversals", unused.ID))

		stored := s.storedPayment(t, unused.ID)
		assert.Equal(t, domain.PaymentStatusVoided, stored.Status)
		require.NotNil(t, stored.Reversal)
		assert.Equal(t, reversal.ID, stored.Reversal.ID)

		_, err = s.svc.VoidPayment(ctx, s.cc(""), app.VoidPaymentCommand{PaymentID: unused.ID, Reason: "again"})
		require.Error(t, err)
		assert.Equal(t, int64(1), db.CountRows("payment_reversals", unused.ID))

		other := s.invoice(t, "INV-201", "45.00", day(4, 2))
		_, err = s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
			PaymentID:   unused.ID,
			Allocations: []app.AllocationInput{{InvoiceID: other.ID, Amount: dec("10.00")}},
		})
		require.Error(t, err)
		assert.True(t, s.storedInvoice(t, other.ID).TotalPaid.IsZero())
	})

	t.Run("idempotent retry writes once", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		p := s.payment(t, "100.00", day(5, 3))
		inv := s.invoice(t, "INV-300", "500.00", day(4, 1))
		cmd := app.AllocatePaymentCommand{
			PaymentID:   p.ID,
			Allocations: []app.AllocationInput{{InvoiceID: inv.ID, Amount: dec("60.00")}},
		}

		first, err := s.svc.AllocatePayment(ctx, s.cc("retry-1"), cmd)
		require.NoError(t, err)
		second, err := s.svc.AllocatePayment(ctx, s.cc("retry-1"), cmd)
		require.NoError(t, err)

		assert.Equal(t, first.Allocations[0].ID, second.Allocations[0].ID)
		assert.Equal(t, int64(1), db.CountRows("payment_allocations", p.ID))
		assert.True(t, s.storedInvoice(t, inv.ID).TotalPaid.Equal(dec("60")))
	})

	t.Run("rejection rolls back every write", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		p := s.payment(t, "100.00", day(5, 4))
		ok := s.invoice(t, "INV-400", "50.00", day(4, 1))
		tooSmall := s.invoice(t, "INV-401", "10.00", day(4, 2))

		_, err := s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
			PaymentID: p.ID,
			Allocations: []app.AllocationInput{
				{InvoiceID: ok.ID, Amount: dec("50.00")},
				{InvoiceID: tooSmall.ID, Amount: dec("20.00")},
			},
		})
		require.Error(t, err)
		assert.True(t, shared.IsValidationError(err), err.Error())

		assert.Equal(t, int64(0), db.CountRows("payment_allocations", p.ID))
		assert.True(t, s.storedInvoice(t, ok.ID).TotalPaid.IsZero())
		assert.True(t, s.storedPayment(t, p.ID).RemainingAmount().Equal(dec("100")))
	})

	t.Run("concurrent payments never overpay an invoice", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		inv := s.invoice(t, "INV-500", "100.00", day(4, 1))
		payments := []*domain.Payment{
			s.payment(t, "100.00", day(5, 5)),
			s.payment(t, "100.00", day(5, 5)),
			s.payment(t, "100.00", day(5, 5)),
		}

		errs := runConcurrently(len(payments), func(i int) error {
			_, err := s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
				PaymentID:   payments[i].ID,
				Allocations: []app.AllocationInput{{InvoiceID: inv.ID, Amount: dec("100.00")}},
			})
			return err
		})

		assert.Equal(t, 1, countNil(errs), "exactly one payment may settle the invoice")
		for _, err := range errs {
			if err != nil {
				assert.Contains(t, []string{"validation", "conflict"}, shared.ErrorClass(err), err.Error())
			}
		}
		stored := s.storedInvoice(t, inv.ID)
		assert.True(t, stored.TotalPaid.Equal(dec("100")), stored.TotalPaid.String())
		assert.Equal(t, domain.InvoiceStatusPaid, stored.Status)
	})

	t.Run("concurrent allocations never overdraw a payment", func(t *testing.T) {
		s := newLedgerSetup(t, db)
		p := s.payment(t, "100.00", day(5, 6))
		invoices := []*domain.Invoice{
			s.invoice(t, "INV-600", "100.00", day(4, 1)),
			s.invoice(t, "INV-601", "100.00", day(4, 2)),
		}

		errs := runConcurrently(len(invoices), func(i int) error {
			_, err := s.svc.AllocatePayment(ctx, s.cc(""), app.AllocatePaymentCommand{
				PaymentID:   p.ID,
				Allocations: []app.AllocationInput{{InvoiceID: invoices[i].ID, Amount: dec("80.00")}},
			})
			return err
		})

		assert.Equal(t, 1, countNil(errs))
		stored := s.storedPayment(t, p.ID)
		assert.True(t, stored.RemainingAmount().Equal(dec("20")), stored.RemainingAmount().String())
		assert.Equal(t, int64(1), db.CountRows("payment_allocations", p.ID))
	})
}

// runConcurrently starts n calls of fn together and returns their errors
func runConcurrently(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countNil(errs []error) int {
	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	return n
}
