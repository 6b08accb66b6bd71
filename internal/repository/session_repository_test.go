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

func sessionRows(id, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "venue_id", "name", "starts_at", "ends_at", "status", "created_at", "updated_at"}).
		AddRow(id, "venue-1", "Opening Night", now.Add(time.Hour), now.Add(3*time.Hour), status, now, now)
}

func TestSessionRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionRepo(db)
	mock.ExpectQuery("SELECT .* FROM sessions WHERE id = \\? LIMIT 1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoListActiveFiltersByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionRepo(db)
	mock.ExpectQuery("SELECT .* FROM sessions WHERE status = \\? ORDER BY starts_at ASC").
		WithArgs(model.SessionActive).
		WillReturnRows(sessionRows("sess-1", model.SessionActive))

	out, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsActive())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepoMarkSoldOutTxOnlyFromActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionRepo(db)
	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)

	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(model.SessionSoldOut, "sess-1", model.SessionActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkSoldOutTx(context.Background(), tx, "sess-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
