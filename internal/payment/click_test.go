package payment

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// TestClickCompleteGatewayDeclineFailsThePayment exercises the one branch of
// Click's Complete step where the gateway itself reports a negative error
// code: the payment should end up FAILED (not CANCELLED), and the booking
// and seat should unwind exactly as they do on a cooperative cancel.
func TestClickCompleteGatewayDeclineFailsThePayment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	h := NewClickHandler(newServiceFromDB(db), "secret", zap.NewNop())

	req := ClickCompleteRequest{
		ClickTransID:      555,
		ServiceID:         1,
		MerchantTransID:   "book-1",
		MerchantPrepareID: 42,
		Amount:            15.00,
		Action:            1,
		SignTime:          "2026-07-31 10:00:00",
		Error:             -9,
	}
	req.SignString = h.signComplete(req)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM payments WHERE provider = \\? AND external_id = \\? FOR UPDATE").
		WithArgs(model.ProviderClick, "555").
		WillReturnRows(paymentRowFor("pay-1", model.PaymentPending, "book-1", 1500, 0))
	mock.ExpectRollback()

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

	resp := h.Complete(context.Background(), req)
	assert.Equal(t, -9, resp.Error)
	assert.Equal(t, "rejected by Click", resp.ErrorNote)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestClickCompleteRejectsBadSignature never reaches the payment lookup.
func TestClickCompleteRejectsBadSignature(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	h := NewClickHandler(newServiceFromDB(db), "secret", zap.NewNop())
	req := ClickCompleteRequest{
		ClickTransID:    556,
		MerchantTransID: "book-2",
		SignTime:        time.Now().Format("2006-01-02 15:04:05"),
		SignString:      "not-a-real-signature",
	}

	mock.ExpectQuery("SELECT .* FROM payments WHERE booking_id = \\? ORDER BY created_at DESC LIMIT 1").
		WithArgs("book-2").WillReturnError(sqlmock.ErrCancelled)

	resp := h.Complete(context.Background(), req)
	assert.Equal(t, clickErrSignFailed, resp.Error)
	assert.Equal(t, "SIGN_CHECK_FAILED", resp.ErrorNote)
}
