package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// TariffRepo provides read access to session price tiers.
type TariffRepo struct {
	db *sql.DB
}

// NewTariffRepo constructs a TariffRepo bound to the given database.
func NewTariffRepo(db *sql.DB) *TariffRepo { return &TariffRepo{db: db} }

// ListBySession returns all tariffs defined for a session.
func (r *TariffRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Tariff, error) {
	const q = `SELECT id, session_id, name, price_cents FROM tariffs WHERE session_id = ? ORDER BY price_cents ASC`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tariff
	for rows.Next() {
		var t model.Tariff
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Name, &t.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetByIDTx fetches a tariff within tx, used to price a seat at reservation
// time (spec §4.3 step 5: "price is read from the seat's tariff").
func (r *TariffRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Tariff, error) {
	const q = `SELECT id, session_id, name, price_cents FROM tariffs WHERE id = ? LIMIT 1`
	var t model.Tariff
	err := tx.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.SessionID, &t.Name, &t.PriceCents)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
