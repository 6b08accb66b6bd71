// Package repository is the Catalog store (C1): durable session/seat/
// tariff/booking/payment state behind row-level locks, so that two
// concurrent reservation attempts on the same seat can never both
// succeed (spec §5, P1).
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a lookup by primary key yields no rows.
var ErrNotFound = errors.New("not found")

// ErrSeatNotAvailable names a seat whose catalog status is not AVAILABLE.
// No function in this package returns it.
var ErrSeatNotAvailable = errors.New("seat not available")

// ErrSeatHasNonTerminalBooking is returned when a seat already has a
// PENDING or CONFIRMED booking, enforcing the "at most one non-terminal
// booking per seat" invariant (spec §3, P1).
var ErrSeatHasNonTerminalBooking = errors.New("seat has a non-terminal booking")

// ErrDuplicateIdempotencyKey is returned when a tx_log insert collides on
// the (provider, operation, external-id) unique key, signalling a replayed
// webhook delivery (spec P6).
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
