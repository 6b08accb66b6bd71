package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// SeatRepo provides catalog access to seats: their durable status and
// layout geometry. Seat status here is the durable projection the
// Coordinator reconciles against the Hold store's ephemeral state
// (spec §3 "ownership split").
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo bound to the given database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// DB exposes the underlying handle for cross-repository transactions.
func (r *SeatRepo) DB() *sql.DB { return r.db }

func scanSeat(row interface{ Scan(...interface{}) error }) (model.Seat, error) {
	var s model.Seat
	var tariffID sql.NullString
	err := row.Scan(&s.ID, &s.SessionID, &tariffID, &s.Row, &s.Number, &s.Section, &s.PosX, &s.PosY, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Seat{}, err
	}
	if tariffID.Valid {
		s.TariffID = tariffID.String
	}
	return s, nil
}

const seatColumns = `id, session_id, tariff_id, row_label, seat_number, section, pos_x, pos_y, status, created_at, updated_at`

// ListBySession returns every seat in a session's layout, ordered for
// stable client-side rendering (spec §4.1 "seat layout snapshot").
func (r *SeatRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE session_id = ? ORDER BY section ASC, row_label ASC, seat_number ASC`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID fetches a single seat without locking.
func (r *SeatRepo) GetByID(ctx context.Context, id string) (*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id = ? LIMIT 1`
	s, err := scanSeat(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LockForUpdateTx locks and returns a single seat row within tx, so the
// caller can validate and flip its status atomically with respect to any
// other transaction racing for the same seat (spec §5, grounded on the
// teacher's "SELECT ... FOR UPDATE" pattern in customer_reservation.go).
func (r *SeatRepo) LockForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id = ? FOR UPDATE`
	s, err := scanSeat(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// LockManyForUpdateTx locks a batch of seats in one round trip, in a
// deterministic order (ascending id) to avoid deadlocks between two
// transactions that both request overlapping seat sets in different
// orders (spec §5 "lock ordering").
func (r *SeatRepo) LockManyForUpdateTx(ctx context.Context, tx *sql.Tx, ids []string) ([]model.Seat, error) {
	if len(ids) == 0 {
		return nil, ErrSeatIDsEmpty
	}
	sorted := append([]string(nil), ids...)
	sortStrings(sorted)

	placeholders := make([]string, len(sorted))
	args := make([]interface{}, len(sorted))
	for i, id := range sorted {
		placeholders[i] = "?"
		args[i] = id
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id IN (` + strings.Join(placeholders, ",") + `) ORDER BY id ASC FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(sorted) {
		return out, ErrNotFound
	}
	return out, nil
}

// sortStrings is a tiny insertion sort so this file does not need a
// second import just for sort.Strings on small (single-request-sized) id
// batches.
func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

// UpdateStatusTx flips a seat's durable status within tx. The caller must
// already hold the row's lock via LockForUpdateTx/LockManyForUpdateTx.
func (r *SeatRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	const q = `UPDATE seats SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountBySessionAndStatus reports how many seats in a session currently
// carry a given status, used by session auto-transition to SOLD_OUT.
func (r *SeatRepo) CountBySessionAndStatus(ctx context.Context, sessionID, status string) (int, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE session_id = ? AND status = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, sessionID, status).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ErrSeatIDsEmpty is returned by batch operations invoked with no ids,
// matching the teacher's empty-slice-is-a-no-op convention but flagged as
// an error here because the Coordinator always has at least one seat.
var ErrSeatIDsEmpty = errors.New("no seat ids provided")
