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

func seatRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "session_id", "tariff_id", "row_label", "seat_number", "section", "pos_x", "pos_y", "status", "created_at", "updated_at"}).
		AddRow("seat-1", "sess-1", "tariff-1", "A", 1, "orchestra", 0.0, 0.0, model.SeatAvailable, now, now).
		AddRow("seat-2", "sess-1", nil, "A", 2, "orchestra", 1.0, 0.0, model.SeatAvailable, now, now)
}

func TestSeatRepoListBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectQuery("SELECT .* FROM seats WHERE session_id = \\? ORDER BY").
		WithArgs("sess-1").
		WillReturnRows(seatRows())

	seats, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, seats, 2)
	assert.Equal(t, "tariff-1", seats[0].TariffID)
	assert.Equal(t, "", seats[1].TariffID) // NULL tariff_id surfaces as ""
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectQuery("SELECT .* FROM seats WHERE id = \\? LIMIT 1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatRepoLockManyForUpdateTxRejectsEmptyIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = repo.LockManyForUpdateTx(context.Background(), tx, nil)
	assert.ErrorIs(t, err, ErrSeatIDsEmpty)
}

func TestSeatRepoLockManyForUpdateTxDetectsPartialMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "session_id", "tariff_id", "row_label", "seat_number", "section", "pos_x", "pos_y", "status", "created_at", "updated_at"}).
		AddRow("seat-1", "sess-1", nil, "A", 1, "orchestra", 0.0, 0.0, model.SeatAvailable, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM seats WHERE id IN").
		WillReturnRows(rows)

	out, err := repo.LockManyForUpdateTx(context.Background(), tx, []string{"seat-1", "seat-2"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, out, 1)
}

func TestSeatRepoUpdateStatusTxNotFoundWhenNoRowsAffected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec("UPDATE seats SET status").
		WithArgs(model.SeatOccupied, "seat-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatusTx(context.Background(), tx, "seat-1", model.SeatOccupied)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeatRepoCountBySessionAndStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSeatRepo(db)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM seats WHERE session_id = \\? AND status = \\?").
		WithArgs("sess-1", model.SeatAvailable).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	n, err := repo.CountBySessionAndStatus(context.Background(), "sess-1", model.SeatAvailable)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
