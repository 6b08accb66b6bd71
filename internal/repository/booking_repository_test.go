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

func bookingRow(id, status string, expiresAt *time.Time) *sqlmock.Rows {
	now := time.Now()
	var e interface{}
	if expiresAt != nil {
		e = *expiresAt
	}
	return sqlmock.NewRows([]string{"id", "session_id", "seat_id", "user_id", "status", "price_cents", "expires_at", "created_at", "updated_at"}).
		AddRow(id, "sess-1", "seat-1", "user-1", status, uint64(1500), e, now, now)
}

func TestBookingRepoCreateTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	expires := time.Now().Add(5 * time.Minute)
	b := &model.Booking{ID: "book-1", SessionID: "sess-1", SeatID: "seat-1", UserID: "user-1", Status: model.BookingPending, PriceCents: 1500, ExpiresAt: &expires}
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(b.ID, b.SessionID, b.SeatID, b.UserID, b.Status, b.PriceCents, b.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateTx(context.Background(), tx, b))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepoGetNonTerminalBySeatTxReturnsNilWhenNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM bookings WHERE seat_id = \\? AND status IN").
		WithArgs("seat-1", model.BookingPending, model.BookingConfirmed).
		WillReturnError(sql.ErrNoRows)

	b, err := repo.GetNonTerminalBySeatTx(context.Background(), tx, "seat-1")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBookingRepoGetNonTerminalBySeatTxReturnsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM bookings WHERE seat_id = \\? AND status IN").
		WithArgs("seat-1", model.BookingPending, model.BookingConfirmed).
		WillReturnRows(bookingRow("book-1", model.BookingPending, nil))

	b, err := repo.GetNonTerminalBySeatTx(context.Background(), tx, "seat-1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "book-1", b.ID)
	assert.Nil(t, b.ExpiresAt)
}

func TestBookingRepoUpdateStatusTxNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec("UPDATE bookings SET status").
		WithArgs(model.BookingCancelled, "book-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatusTx(context.Background(), tx, "book-1", model.BookingCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingRepoListDuePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	now := time.Now()
	expires := now.Add(-time.Minute)
	mock.ExpectQuery("SELECT .* FROM bookings WHERE status = \\? AND expires_at <= \\? ORDER BY expires_at ASC LIMIT \\?").
		WithArgs(model.BookingPending, now, 50).
		WillReturnRows(bookingRow("book-1", model.BookingPending, &expires))

	out, err := repo.ListDuePending(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].ExpiresAt)
}

func TestBookingRepoListByUserOrdersNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewBookingRepo(db)
	mock.ExpectQuery("SELECT .* FROM bookings WHERE user_id = \\? ORDER BY created_at DESC").
		WithArgs("user-1").
		WillReturnRows(bookingRow("book-2", model.BookingConfirmed, nil).AddRow(
			"book-1", "sess-1", "seat-1", "user-1", model.BookingExpired, uint64(1500), nil, time.Now(), time.Now(),
		))

	out, err := repo.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "book-2", out[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
