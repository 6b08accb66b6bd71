package model

import "time"

// Seat statuses. The catalog is authoritative for status; holds (C2) layer
// a "selected by user X" decoration atop AVAILABLE and never appear here.
const (
	SeatAvailable = "AVAILABLE"
	SeatReserved  = "RESERVED"
	SeatOccupied  = "OCCUPIED"
	SeatDisabled  = "DISABLED"
	SeatHidden    = "HIDDEN"
)

// Seat is one bookable position owned by exactly one session.
//
// Fields:
//  ID        – UUID primary key.
//  SessionID – session this seat belongs to.
//  TariffID  – linked tariff, or "" if unlinked (price falls back to 0).
//  Row       – row label (e.g. "A").
//  Number    – seat number within the row.
//  Section   – optional section label (e.g. "orchestra", "balcony").
//  PosX/PosY – geometric position for the seat-map UI.
//  Status    – one of SeatAvailable/Reserved/Occupied/Disabled/Hidden.
type Seat struct {
	ID        string    // seats.id
	SessionID string    // seats.session_id
	TariffID  string    // seats.tariff_id (nullable in storage, "" means unlinked)
	Row       string    // seats.row_label
	Number    int       // seats.seat_number
	Section   string    // seats.section
	PosX      float64   // seats.pos_x
	PosY      float64   // seats.pos_y
	Status    string    // seats.status
	CreatedAt time.Time // seats.created_at
	UpdatedAt time.Time // seats.updated_at
}