package model

import "time"

// Booking statuses.
const (
	BookingPending   = "PENDING"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
	BookingExpired   = "EXPIRED"
)

// Cancel reasons accepted by Coordinator.Cancel (spec §4.3).
const (
	CancelManual        = "manual"
	CancelTimeout       = "timeout"
	CancelPaymentFailed = "payment_failed"
)

// Booking is a reservation of exactly one seat by one user. Invariant: a
// seat has at most one non-terminal booking (PENDING or CONFIRMED) at any
// instant (spec §3).
//
// Fields:
//  ID         – UUID primary key.
//  SessionID  – session the booking belongs to.
//  SeatID     – the single seat this booking reserves.
//  UserID     – the booking owner.
//  Status     – one of BookingPending/Confirmed/Cancelled/Expired.
//  PriceCents – price charged for this seat at reservation time.
//  ExpiresAt  – valid only while Status == BookingPending.
type Booking struct {
	ID         string     // bookings.id
	SessionID  string     // bookings.session_id
	SeatID     string     // bookings.seat_id
	UserID     string     // bookings.user_id
	Status     string     // bookings.status
	PriceCents uint64     // bookings.price_cents
	ExpiresAt  *time.Time // bookings.expires_at (nullable once non-pending)
	CreatedAt  time.Time  // bookings.created_at
	UpdatedAt  time.Time  // bookings.updated_at
}

// IsNonTerminal reports whether the booking still occupies the seat in the
// catalog's "at most one non-terminal booking per seat" sense.
func (b Booking) IsNonTerminal() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}
