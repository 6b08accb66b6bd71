package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// TxLogRepo provides durable access to the payment-protocol transaction
// log. Its unique index on idempotency_key is the mechanism that makes
// every gateway webhook handler idempotent (spec P6).
type TxLogRepo struct {
	db *sql.DB
}

// NewTxLogRepo constructs a TxLogRepo bound to the given database.
func NewTxLogRepo(db *sql.DB) *TxLogRepo { return &TxLogRepo{db: db} }

// InsertTx records one protocol step within tx. If a row with the same
// idempotency key already exists, it returns ErrDuplicateIdempotencyKey
// instead of a raw driver error so callers can branch on "replay" without
// depending on MySQL's error codes directly.
func (r *TxLogRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.TxLogEntry) error {
	const q = `INSERT INTO tx_log (id, payment_id, provider, type, status, external_id, request_payload, error_code, error_message, idempotency_key)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, e.ID, e.PaymentID, e.Provider, e.Type, e.Status, e.ExternalID, e.RequestPayload, e.ErrorCode, e.ErrorMessage, e.IdempotencyKey)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if isDuplicateKey(err, &mysqlErr) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-entry error,
// narrowed to the idempotency_key unique index by the caller's context.
func isDuplicateKey(err error, target **mysql.MySQLError) bool {
	me, ok := asMySQLError(err)
	if !ok {
		return false
	}
	*target = me
	return me.Number == 1062 && strings.Contains(me.Message, "idempotency_key")
}

func asMySQLError(err error) (*mysql.MySQLError, bool) {
	me, ok := err.(*mysql.MySQLError)
	return me, ok
}

// GetByIdempotencyKeyTx looks up a prior step by its idempotency key. No
// webhook handler calls it; they detect replays through GetByExternalIDTx
// and InsertTx's ErrDuplicateIdempotencyKey.
func (r *TxLogRepo) GetByIdempotencyKeyTx(ctx context.Context, tx *sql.Tx, key string) (*model.TxLogEntry, error) {
	const q = `SELECT id, payment_id, provider, type, status, external_id, request_payload, error_code, error_message, idempotency_key, created_at
	           FROM tx_log WHERE idempotency_key = ? LIMIT 1`
	var e model.TxLogEntry
	err := tx.QueryRowContext(ctx, q, key).Scan(
		&e.ID, &e.PaymentID, &e.Provider, &e.Type, &e.Status, &e.ExternalID, &e.RequestPayload, &e.ErrorCode, &e.ErrorMessage, &e.IdempotencyKey, &e.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListByPayment returns the full protocol history for one payment, newest
// last, for the GET /payments/:id/transactions audit endpoint.
func (r *TxLogRepo) ListByPayment(ctx context.Context, paymentID string) ([]model.TxLogEntry, error) {
	const q = `SELECT id, payment_id, provider, type, status, external_id, request_payload, error_code, error_message, idempotency_key, created_at
	           FROM tx_log WHERE payment_id = ? ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TxLogEntry
	for rows.Next() {
		var e model.TxLogEntry
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Provider, &e.Type, &e.Status, &e.ExternalID, &e.RequestPayload, &e.ErrorCode, &e.ErrorMessage, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
