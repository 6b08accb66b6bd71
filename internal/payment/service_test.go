package payment

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

// newMock returns a fake *sql.DB plus its sqlmock controller and a closer,
// so each test can set up expectations before constructing a Service.
func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { _ = db.Close() }
}

// newServiceFromDB wires a Service against db, with a down (nil-backed) hold
// store and a discarding publisher — Confirm/Cancel/Refund only ever
// best-effort touch the hold store after their transaction already
// committed, so a fail-closed store does not change their return value.
func newServiceFromDB(db *sql.DB) *Service {
	return New(repository.NewPaymentRepo(db), repository.NewTxLogRepo(db), repository.NewBookingRepo(db),
		repository.NewSeatRepo(db), holdstore.New(nil), events.NopPublisher{}, nil, zap.NewNop())
}

func bookingRowFor(id, status, userID string, priceCents uint64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "session_id", "seat_id", "user_id", "status", "price_cents", "expires_at", "created_at", "updated_at"}).
		AddRow(id, "sess-1", "seat-1", userID, status, priceCents, now.Add(time.Minute), now, now)
}

func paymentRowFor(id, status, bookingID string, amount, refunded uint64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "booking_id", "user_id", "provider", "status", "amount_cents", "refunded_cents",
		"external_id", "paid_at", "refunded_at", "created_at", "updated_at",
	}).AddRow(id, bookingID, "user-1", model.ProviderPayme, status, amount, refunded, nil, nil, nil, now, now)
}

func seatRows2(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "session_id", "tariff_id", "row_label", "seat_number", "section", "pos_x", "pos_y", "status", "created_at", "updated_at"}).
		AddRow(id, "sess-1", nil, "A", 1, "orchestra", 0.0, 0.0, model.SeatReserved, now, now)
}

func TestCreateRejectsAmountMismatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? LIMIT 1").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingPending, "user-1", 1500))

	svc := newServiceFromDB(db)
	_, err := svc.Create(context.Background(), "book-1", "user-1", model.ProviderPayme, 1000)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "AMOUNT_MISMATCH", appErr.Code)
}

func TestCreateRejectsForeignUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? LIMIT 1").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingPending, "owner-user", 1500))

	svc := newServiceFromDB(db)
	_, err := svc.Create(context.Background(), "book-1", "intruder", model.ProviderPayme, 1500)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestCreateHappyPathInsertsPaymentAndTxLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? LIMIT 1").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingPending, "user-1", 1500))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tx_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	svc := newServiceFromDB(db)
	p, err := svc.Create(context.Background(), "book-1", "user-1", model.ProviderPayme, 1500)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmIsIdempotentWhenAlreadyCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentCompleted, "book-1", 1500, 0))
	mock.ExpectRollback()

	svc := newServiceFromDB(db)
	p, err := svc.Confirm(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmHappyPathTransitionsBookingSeatAndPayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentPending, "book-1", 1500, 0))
	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? FOR UPDATE").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingPending, "user-1", 1500))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(model.BookingConfirmed, "book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM seats WHERE id = \\? FOR UPDATE").
		WithArgs("seat-1").WillReturnRows(seatRows2("seat-1"))
	mock.ExpectExec("UPDATE seats SET status").
		WithArgs(model.SeatOccupied, "seat-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payments SET status = \\?, paid_at = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := newServiceFromDB(db)
	p, err := svc.Confirm(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	require.NotNil(t, p.PaidAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelConflictsWhenAlreadyCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentCompleted, "book-1", 1500, 0))
	mock.ExpectRollback()

	svc := newServiceFromDB(db)
	_, err := svc.Cancel(context.Background(), "pay-1")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "PAYMENT_ALREADY_COMPLETED", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailHappyPathTransitionsBookingSeatAndPayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentPending, "book-1", 1500, 0))
	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? FOR UPDATE").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingPending, "user-1", 1500))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(model.BookingCancelled, "book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM seats WHERE id = \\? FOR UPDATE").
		WithArgs("seat-1").WillReturnRows(seatRows2("seat-1"))
	mock.ExpectExec("UPDATE seats SET status").
		WithArgs(model.SeatAvailable, "seat-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payments SET status = \\?, updated_at").
		WithArgs(model.PaymentFailed, "pay-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := newServiceFromDB(db)
	p, err := svc.Fail(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailIsIdempotentWhenAlreadyFailed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentFailed, "book-1", 1500, 0))
	mock.ExpectRollback()

	svc := newServiceFromDB(db)
	p, err := svc.Fail(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailConflictsWhenAlreadyCompleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentCompleted, "book-1", 1500, 0))
	mock.ExpectRollback()

	svc := newServiceFromDB(db)
	_, err := svc.Fail(context.Background(), "pay-1")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "PAYMENT_ALREADY_COMPLETED", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundRejectsAmountExceedingBalance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentCompleted, "book-1", 1500, 0))
	mock.ExpectRollback()

	svc := newServiceFromDB(db)
	_, err := svc.Refund(context.Background(), "pay-1", 2000)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "REFUND_EXCEEDS_BALANCE", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundFullyRefundedCancelsNonTerminalBooking(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE id = \\? FOR UPDATE").
		WithArgs("pay-1").WillReturnRows(paymentRowFor("pay-1", model.PaymentCompleted, "book-1", 1500, 0))
	mock.ExpectExec("UPDATE payments SET refunded_cents = refunded_cents \\+ \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM bookings WHERE id = \\? FOR UPDATE").
		WithArgs("book-1").WillReturnRows(bookingRowFor("book-1", model.BookingConfirmed, "user-1", 1500))
	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(model.BookingCancelled, "book-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM seats WHERE id = \\? FOR UPDATE").
		WithArgs("seat-1").WillReturnRows(seatRows2("seat-1"))
	mock.ExpectExec("UPDATE seats SET status").
		WithArgs(model.SeatAvailable, "seat-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := newServiceFromDB(db)
	p, err := svc.Refund(context.Background(), "pay-1", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), p.RefundedCents)
	require.NoError(t, mock.ExpectationsWereMet())
}
