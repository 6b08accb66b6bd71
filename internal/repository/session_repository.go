package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// SessionRepo provides read access to sessions. Session lifecycle
// (create/cancel/complete) is owned by an external scheduling system
// (spec §1 "External collaborators"); this repository only needs enough
// surface for the booking flow to validate a session is bookable.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// DB exposes the underlying handle so callers can start transactions that
// span multiple repositories, mirroring the teacher's ShowRepo.DB() pattern.
func (r *SessionRepo) DB() *sql.DB { return r.db }

// GetByID fetches a session by id. Returns ErrNotFound if no row matches.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	const q = `SELECT id, venue_id, name, starts_at, ends_at, status, created_at, updated_at
	           FROM sessions WHERE id = ? LIMIT 1`
	var s model.Session
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.VenueID, &s.Name, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByIDTx is the transactional variant, used by the Coordinator when a
// session's bookability must be checked under the same lock scope as the
// seats it guards.
func (r *SessionRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Session, error) {
	const q = `SELECT id, venue_id, name, starts_at, ends_at, status, created_at, updated_at
	           FROM sessions WHERE id = ? LIMIT 1`
	var s model.Session
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.VenueID, &s.Name, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListActive returns sessions currently open for booking, earliest start first.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	const q = `SELECT id, venue_id, name, starts_at, ends_at, status, created_at, updated_at
	           FROM sessions WHERE status = ? ORDER BY starts_at ASC`
	rows, err := r.db.QueryContext(ctx, q, model.SessionActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.VenueID, &s.Name, &s.StartsAt, &s.EndsAt, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkSoldOutTx flips a session to SOLD_OUT once its last AVAILABLE seat is
// reserved (spec supplemented feature: session auto-transition).
func (r *SessionRepo) MarkSoldOutTx(ctx context.Context, tx *sql.Tx, id string) error {
	const q = `UPDATE sessions SET status = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ? AND status = ?`
	_, err := tx.ExecContext(ctx, q, model.SessionSoldOut, id, model.SessionActive)
	return err
}
