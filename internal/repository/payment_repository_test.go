package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

func paymentRow(id, status string, externalID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "booking_id", "user_id", "provider", "status", "amount_cents", "refunded_cents",
		"external_id", "paid_at", "refunded_at", "created_at", "updated_at",
	}).AddRow(id, "book-1", "user-1", model.ProviderPayme, status, uint64(1500), uint64(0), externalID, nil, nil, now, now)
}

func TestPaymentRepoCreateTxOmitsEmptyExternalID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	p := &model.Payment{ID: "pay-1", BookingID: "book-1", UserID: "user-1", Provider: model.ProviderPayme, Status: model.PaymentPending, AmountCents: 1500}
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.BookingID, p.UserID, p.Provider, p.Status, p.AmountCents, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateTx(context.Background(), tx, p))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepoGetByExternalIDTxNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM payments WHERE provider = \\? AND external_id = \\? FOR UPDATE").
		WithArgs(model.ProviderClick, "ext-1").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByExternalIDTx(context.Background(), tx, model.ProviderClick, "ext-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentRepoListAppliesAllFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	mock.ExpectQuery("SELECT .* FROM payments WHERE 1=1 AND booking_id = \\? AND provider = \\? AND status = \\? ORDER BY created_at DESC LIMIT 200").
		WithArgs("book-1", model.ProviderPayme, model.PaymentCompleted).
		WillReturnRows(paymentRow("pay-1", model.PaymentCompleted, "ext-1"))

	out, err := repo.List(context.Background(), ListFilter{BookingID: "book-1", Provider: model.ProviderPayme, Status: model.PaymentCompleted})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ext-1", out[0].ExternalID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepoRecordRefundTxAccumulates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	refundedAt := sql.NullTime{Time: time.Now(), Valid: true}
	mock.ExpectExec("UPDATE payments SET refunded_cents = refunded_cents \\+ \\?").
		WithArgs(uint64(500), refundedAt, "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.RecordRefundTx(context.Background(), tx, "pay-1", 500, refundedAt))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
