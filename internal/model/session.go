package model

import "time"

// Session statuses. Only ACTIVE sessions accept bookings.
const (
	SessionDraft     = "DRAFT"
	SessionActive    = "ACTIVE"
	SessionSoldOut   = "SOLD_OUT"
	SessionCancelled = "CANCELLED"
	SessionCompleted = "COMPLETED"
)

// Session is a scheduled event at a venue.  It owns the seats that are
// cloned from the venue schema when the session is created by the
// (external) venue/session CRUD collaborator.
//
// Fields:
//
//	ID       – UUID primary key.
//	VenueID  – reference to the venue (external collaborator's id).
//	Name     – display name of the event.
//	StartsAt – scheduled start time.
//	EndsAt   – scheduled end time.
//	Status   – one of SessionDraft/Active/SoldOut/Cancelled/Completed.
//
// The IsActive method reports Status == SessionActive.
type Session struct {
	ID        string    // sessions.id
	VenueID   string    // sessions.venue_id
	Name      string    // sessions.name
	StartsAt  time.Time // sessions.starts_at
	EndsAt    time.Time // sessions.ends_at
	Status    string    // sessions.status
	CreatedAt time.Time // sessions.created_at
	UpdatedAt time.Time // sessions.updated_at
}

// IsActive reports whether the session currently accepts bookings.
func (s Session) IsActive() bool { return s.Status == SessionActive }
