package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// PaymentRepo provides durable access to payments, one row per gateway
// attempt against a booking (spec §3, §6).
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo constructs a PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// DB exposes the underlying handle for cross-repository transactions.
func (r *PaymentRepo) DB() *sql.DB { return r.db }

const paymentColumns = `id, booking_id, user_id, provider, status, amount_cents, refunded_cents, external_id, paid_at, refunded_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...interface{}) error }) (model.Payment, error) {
	var p model.Payment
	var externalID sql.NullString
	var paidAt, refundedAt sql.NullTime
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.Provider, &p.Status, &p.AmountCents, &p.RefundedCents,
		&externalID, &paidAt, &refundedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Payment{}, err
	}
	if externalID.Valid {
		p.ExternalID = externalID.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	return p, nil
}

// CreateTx inserts a new PENDING payment within tx (spec §4.3's payment
// state machine "CREATE" step). The id is allocated by the caller (a UUID
// in Service.Create), never parsed from a gateway-supplied string.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (id, booking_id, user_id, provider, status, amount_cents, refunded_cents, external_id)
	           VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	var externalID interface{}
	if p.ExternalID != "" {
		externalID = p.ExternalID
	}
	_, err := tx.ExecContext(ctx, q, p.ID, p.BookingID, p.UserID, p.Provider, p.Status, p.AmountCents, externalID)
	return err
}

// GetByID fetches a payment by id without locking.
func (r *PaymentRepo) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ? LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDTx locks and returns a payment within tx, for use before any
// status transition.
func (r *PaymentRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByExternalIDTx locks and returns the payment matching a gateway's
// external transaction id, used by webhook handlers that only receive the
// external id on later protocol steps (Payme's PerformTransaction, Click's
// Complete).
func (r *PaymentRepo) GetByExternalIDTx(ctx context.Context, tx *sql.Tx, provider, externalID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = ? AND external_id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, q, provider, externalID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByBookingID fetches the most recent payment attempt for a booking.
func (r *PaymentRepo) GetByBookingID(ctx context.Context, bookingID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ? ORDER BY created_at DESC LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, q, bookingID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListFilter narrows List by optional booking id, provider and status.
// Empty fields are not filtered on.
type ListFilter struct {
	BookingID string
	Provider  string
	Status    string
}

// List returns payments matching filter, newest first, for the admin
// GET /payments?... query endpoint.
func (r *PaymentRepo) List(ctx context.Context, filter ListFilter) ([]model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	var args []interface{}
	if filter.BookingID != "" {
		q += ` AND booking_id = ?`
		args = append(args, filter.BookingID)
	}
	if filter.Provider != "" {
		q += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, filter.Status)
	}
	q += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetExternalIDTx records the gateway transaction id once the gateway
// allocates one (Payme's CreateTransaction, Click's Prepare).
func (r *PaymentRepo) SetExternalIDTx(ctx context.Context, tx *sql.Tx, id, externalID string) error {
	const q = `UPDATE payments SET external_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, externalID, id)
	return err
}

// MarkCompletedTx transitions a payment to COMPLETED and stamps paid_at.
func (r *PaymentRepo) MarkCompletedTx(ctx context.Context, tx *sql.Tx, id string, paidAt sql.NullTime) error {
	const q = `UPDATE payments SET status = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, model.PaymentCompleted, paidAt, id)
	return err
}

// MarkFailedTx transitions a payment to FAILED.
func (r *PaymentRepo) MarkFailedTx(ctx context.Context, tx *sql.Tx, id string) error {
	const q = `UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, model.PaymentFailed, id)
	return err
}

// MarkCancelledTx transitions a payment to CANCELLED (Payme/Click
// cancel-before-completion path).
func (r *PaymentRepo) MarkCancelledTx(ctx context.Context, tx *sql.Tx, id string) error {
	const q = `UPDATE payments SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, model.PaymentCancelled, id)
	return err
}

// RecordRefundTx adds amountCents to refunded_cents and stamps refunded_at.
func (r *PaymentRepo) RecordRefundTx(ctx context.Context, tx *sql.Tx, id string, amountCents uint64, refundedAt sql.NullTime) error {
	const q = `UPDATE payments SET refunded_cents = refunded_cents + ?, refunded_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, amountCents, refundedAt, id)
	return err
}
