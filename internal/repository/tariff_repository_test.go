package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffRepoListBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTariffRepo(db)
	rows := sqlmock.NewRows([]string{"id", "session_id", "name", "price_cents"}).
		AddRow("tariff-1", "sess-1", "Standard", uint64(1000)).
		AddRow("tariff-2", "sess-1", "VIP", uint64(2500))
	mock.ExpectQuery("SELECT id, session_id, name, price_cents FROM tariffs WHERE session_id = \\? ORDER BY price_cents ASC").
		WithArgs("sess-1").
		WillReturnRows(rows)

	out, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Standard", out[0].Name)
	assert.Equal(t, uint64(2500), out[1].PriceCents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTariffRepoGetByIDTxNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTariffRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, session_id, name, price_cents FROM tariffs WHERE id = \\? LIMIT 1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByIDTx(context.Background(), tx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
