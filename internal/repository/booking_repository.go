package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// BookingRepo provides durable access to bookings. A booking's lifecycle
// is driven entirely through this repository's Tx-suffixed methods so
// every transition happens under the same row lock the Coordinator took
// on the seat (spec §5).
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so the Coordinator can open a single
// transaction spanning SeatRepo and BookingRepo calls.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, session_id, seat_id, user_id, status, price_cents, expires_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (model.Booking, error) {
	var b model.Booking
	var expiresAt sql.NullTime
	err := row.Scan(&b.ID, &b.SessionID, &b.SeatID, &b.UserID, &b.Status, &b.PriceCents, &expiresAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	return b, nil
}

// CreateTx inserts a new PENDING booking within tx. The caller must already
// hold the seat's row lock (spec §4.3 step 6 "reserve").
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (id, session_id, seat_id, user_id, status, price_cents, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, b.ID, b.SessionID, b.SeatID, b.UserID, b.Status, b.PriceCents, b.ExpiresAt)
	return err
}

// GetByID fetches a booking by id without locking.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? LIMIT 1`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetByIDTx locks and returns a booking within tx, used before a Confirm or
// Cancel transition to guarantee the read-modify-write is atomic.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetNonTerminalBySeatTx reports the live (PENDING or CONFIRMED) booking
// for a seat, if any. Used to enforce the one-non-terminal-booking-per-seat
// invariant (P1) independently of the seat's own status column, as a
// defense-in-depth check alongside the seat lock.
func (r *BookingRepo) GetNonTerminalBySeatTx(ctx context.Context, tx *sql.Tx, seatID string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE seat_id = ? AND status IN (?, ?) FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, q, seatID, model.BookingPending, model.BookingConfirmed))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// UpdateStatusTx transitions a booking's status within tx. expires_at is
// cleared on every call, whatever the new status.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	const q = `UPDATE bookings SET status = ?, expires_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDuePending returns PENDING bookings whose expires_at has passed, for
// the expiration engine's sweep (spec §4.4 step 1). Results are capped at
// limit per tick to bound worst-case tick duration.
func (r *BookingRepo) ListDuePending(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND expires_at <= ? ORDER BY expires_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, model.BookingPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListByUser returns a user's bookings, newest first, for a "my bookings"
// style read endpoint.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
