// Package events defines the server→client event payloads the Coordinator,
// Expiration engine, and Payment state machine hand to the Fan-out layer
// (spec §4.5). It exists as its own package so C3/C4/C6 can publish events
// without importing the Fan-out layer's connection/hub machinery.
package events

import "time"

// Type is one of the server→client event names enumerated in spec §4.5.
type Type string

const (
	SessionState     Type = "session_state"
	SeatSelected     Type = "seat_selected"
	SeatReserved     Type = "seat_reserved"
	SeatReleased     Type = "seat_released"
	BookingConfirmed Type = "booking_confirmed"
	SessionUpdated   Type = "session_updated"
	ErrorEvent       Type = "error"
	RateLimited      Type = "rate_limited"
)

// Audience selects which connections within a room should receive an
// event, per the broadcast policy in spec §4.5: "the server emits two
// variants when an action originates from a known caller".
type Audience string

const (
	// AudienceRoom delivers to every connection in the room, including the
	// originator. Used for engine-produced events that have no single
	// "you" recipient (expiration, refund).
	AudienceRoom Audience = "room"
	// AudienceOthers delivers to everyone in the room except the
	// originating connection, tagged "another_user".
	AudienceOthers Audience = "others"
	// AudienceSelf delivers only to the originating connection, tagged
	// "you".
	AudienceSelf Audience = "self"
)

// Envelope is one outbound event, scoped to a session room and addressed
// to a subset of that room's connections.
type Envelope struct {
	SessionID   string      `json:"-"`
	Type        Type        `json:"event"`
	Audience    Audience    `json:"-"`
	OriginConn  string      `json:"-"`
	Payload     interface{} `json:"data"`
	EmittedAt   time.Time   `json:"emittedAt"`
}

// SeatSelectedPayload is sent after a successful select.
type SeatSelectedPayload struct {
	SeatID    string    `json:"seatId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SeatReservedPayload is sent after a successful reserve.
type SeatReservedPayload struct {
	BookingID  string    `json:"bookingId"`
	SeatID     string    `json:"seatId"`
	UserID     string    `json:"userId"`
	PriceCents uint64    `json:"priceCents"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SeatReleasedPayload is sent whenever a hold is torn down, whatever the
// cause (manual release, timeout, cancel, disconnect, refund).
type SeatReleasedPayload struct {
	SeatID string `json:"seatId"`
	Reason string `json:"reason"`
}

// BookingConfirmedPayload is sent after a payment completes.
type BookingConfirmedPayload struct {
	BookingID string `json:"bookingId"`
	SeatID    string `json:"seatId"`
	UserID    string `json:"userId"`
}

// SessionUpdatedPayload carries the live viewer count after a join/leave.
type SessionUpdatedPayload struct {
	SessionID   string `json:"sessionId"`
	ViewerCount int64  `json:"viewerCount"`
}

// ErrorPayload mirrors the HTTP error envelope for WS delivery.
type ErrorPayload struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// RateLimitedPayload carries the retry-after hint from P7.
type RateLimitedPayload struct {
	Action     string `json:"action"`
	RetryAfter int64  `json:"retryAfter"`
}

// Publisher is implemented by the Fan-out layer (C5). The Coordinator,
// Expiration engine, and Payment state machine depend only on this
// interface, never on the hub's connection bookkeeping.
type Publisher interface {
	Publish(e Envelope)
}

// NopPublisher discards every event. Used where a caller has no fan-out
// wiring available (unit tests exercising C1-C3 logic in isolation).
type NopPublisher struct{}

func (NopPublisher) Publish(Envelope) {}
