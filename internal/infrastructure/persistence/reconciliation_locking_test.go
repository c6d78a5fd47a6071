package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/reconciliation/internal/domain/reconciliation"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockGormDB returns a postgres-dialect GORM DB backed by sqlmock
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestGormInvoiceRepository_FindForUpdateLocksRows(t *testing.T) {
	db, mock := newMockGormDB(t)
	repo := NewGormInvoiceRepository(db)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE \(?id IN \(\$1,\$2\) ORDER BY id ASC FOR UPDATE`).
		WithArgs(a, b).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_number", "status"}).
			AddRow(a.String(), "INV-1", "sent").
			AddRow(b.String(), "INV-2", "partial"))

	got, err := repo.FindForUpdate(context.Background(), []uuid.UUID{a, b, a})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvoiceRepository_FindOpenForCustomerLocksRows(t *testing.T) {
	db, mock := newMockGormDB(t)
	repo := NewGormInvoiceRepository(db)
	companyID, customerID := uuid.New(), uuid.New()
	asOf := time.Date(2026, 4, 10, 18, 45, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "invoices" WHERE .*company_id = \$1 AND customer_id = \$2.* AND status IN \(\$3,\$4\) AND issue_date <= \$5 ORDER BY id ASC FOR UPDATE`).
		WithArgs(companyID, customerID, reconciliation.InvoiceStatusSent, reconciliation.InvoiceStatusPartial,
			time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.FindOpenForCustomer(context.Background(), companyID, customerID, asOf)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPaymentRepository_SaveConflict(t *testing.T) {
	db, mock := newMockGormDB(t)
	repo := NewGormPaymentRepository(db)

	payment := &reconciliation.Payment{PaymentNumber: "PAY-20260402-0001"}
	payment.ID = uuid.New()
	payment.Version = 3

	mock.ExpectExec(`UPDATE "payments" SET .* WHERE \(?id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), payment)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Contains(t, err.Error(), "PAY-20260402-0001")
	assert.NoError(t, mock.ExpectationsWereMet())
}
