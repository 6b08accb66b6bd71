// Package queue defines message payloads exchanged over the message broker
// (spec §9 design note: booking-lifecycle events published for downstream
// notification/audit consumers, decoupled from the in-process fan-out, C5).
package queue

// BookingLifecycleEvent is published on every booking state transition that
// matters to an external consumer (notification service, audit log,
// analytics). It carries enough information for a consumer to act without
// querying the primary database.
type BookingLifecycleEvent struct {
	Type        string   `json:"type"` // confirmed | cancelled | expired
	BookingID   string   `json:"booking_id"`
	SessionID   string   `json:"session_id"`
	UserID      string   `json:"user_id"`
	SeatIDs     []string `json:"seat_ids"`
	TotalCents  uint64   `json:"total_cents"`
	Reason      string   `json:"reason,omitempty"` // set for cancelled/expired
	OccurredAt  string   `json:"occurred_at"`       // RFC3339
}

// Lifecycle event type tags.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingExpired   = "expired"
)
