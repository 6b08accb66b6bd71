// Package apperr defines the tagged-variant error type shared across the
// coordinator, payment state machine and transport surface. Design Note 9
// collapses what would be a class hierarchy of error types in other
// languages into one struct with an error Kind plus kind-specific optional
// fields, carrying its own HTTP status instead of relying on a subclass.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind enumerates the error categories from spec §7.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthorization Kind = "AUTHORIZATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindRateLimited   Kind = "RATE_LIMITED"
	KindProvider      Kind = "PROVIDER"
	KindInternal      Kind = "INTERNAL"
)

// Error is the single error type used throughout the core. Code is a
// machine-readable string (e.g. "SEAT_ALREADY_SELECTED"); Message is
// human-readable. RetryAfter, SeatID and CurrentStatus are populated only
// for the kinds that carry them (rate-limited and conflict respectively).
type Error struct {
	Kind          Kind
	Code          string
	Message       string
	HTTPStatus    int
	RetryAfter    int    // seconds; rate-limited only
	SeatID        string // conflict only, when the conflict names a seat
	CurrentStatus string // conflict only, the observed status that caused the conflict
	ProviderCode  int    // provider-specific only: Payme/Click numeric catalog code
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap attaches an underlying cause without changing the public code/message.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

func newErr(kind Kind, code, msg string, status int) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, HTTPStatus: status}
}

// Validation builds a malformed-payload / out-of-range error (HTTP 400).
func Validation(code, msg string) *Error {
	return newErr(KindValidation, code, msg, http.StatusBadRequest)
}

// Unauthorized builds a missing/invalid-token error (HTTP 401).
func Unauthorized(code, msg string) *Error {
	return newErr(KindAuthorization, code, msg, http.StatusUnauthorized)
}

// Forbidden builds an insufficient-role error (HTTP 403).
func Forbidden(code, msg string) *Error {
	return newErr(KindAuthorization, code, msg, http.StatusForbidden)
}

// NotFound builds a missing-entity error (HTTP 404).
func NotFound(code, msg string) *Error {
	return newErr(KindNotFound, code, msg, http.StatusNotFound)
}

// Conflict builds a state-conflict error (HTTP 409).
func Conflict(code, msg string) *Error {
	return newErr(KindConflict, code, msg, http.StatusConflict)
}

// ConflictSeat is Conflict with the offending seat id and its observed status attached.
func ConflictSeat(code, msg, seatID, currentStatus string) *Error {
	e := newErr(KindConflict, code, msg, http.StatusConflict)
	e.SeatID = seatID
	e.CurrentStatus = currentStatus
	return e
}

// RateLimited builds a rate-limit error (HTTP 429) carrying retryAfter seconds.
func RateLimited(retryAfter int) *Error {
	e := newErr(KindRateLimited, "RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

// Provider builds a gateway-specific error carrying the provider's numeric code.
func Provider(code string, providerCode int, msg string) *Error {
	e := newErr(KindProvider, code, msg, http.StatusOK) // gateway envelopes return 200 with an error body
	e.ProviderCode = providerCode
	return e
}

// Internal builds a catch-all internal error (HTTP 500). The message passed
// to callers outside the process should stay generic; detail belongs in logs.
func Internal(code string, cause error) *Error {
	e := newErr(KindInternal, code, "internal error", http.StatusInternalServerError)
	if cause != nil {
		return e.Wrap(cause)
	}
	return e
}

// As extracts an *Error from err, unwrapping as needed.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Envelope is the HTTP/WS JSON error body shape from spec §6.
type Envelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteHTTP converts err to the §6 JSON error envelope and writes it with
// the kind's HTTP status. Errors that aren't *Error are treated as
// internal/unexpected and masked behind a generic 500.
func WriteHTTP(c echo.Context, err error) error {
	e, ok := As(err)
	if !ok {
		return c.JSON(http.StatusInternalServerError, Envelope{Error: "internal error", Code: "INTERNAL_ERROR"})
	}
	var details any
	switch {
	case e.Kind == KindConflict && e.SeatID != "":
		details = map[string]string{"seatId": e.SeatID, "currentStatus": e.CurrentStatus}
	case e.Kind == KindRateLimited:
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
		details = map[string]int{"retryAfter": e.RetryAfter}
	}
	return c.JSON(e.HTTPStatus, Envelope{Error: e.Message, Code: e.Code, Details: details})
}

// ToWSError flattens err into the (code, message, details) triple the
// fan-out layer wraps into its own error event shape — the WS-side twin
// of WriteHTTP.
func ToWSError(err error) (code, message string, details any) {
	e, ok := As(err)
	if !ok {
		return "INTERNAL_ERROR", "internal error", nil
	}
	if e.Kind == KindConflict && e.SeatID != "" {
		details = map[string]string{"seatId": e.SeatID, "currentStatus": e.CurrentStatus}
	}
	return e.Code, e.Message, details
}
