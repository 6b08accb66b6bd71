package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionIsActive(t *testing.T) {
	assert.True(t, Session{Status: SessionActive}.IsActive())
	assert.False(t, Session{Status: SessionSoldOut}.IsActive())
	assert.False(t, Session{Status: SessionDraft}.IsActive())
}

func TestBookingIsNonTerminal(t *testing.T) {
	assert.True(t, Booking{Status: BookingPending}.IsNonTerminal())
	assert.True(t, Booking{Status: BookingConfirmed}.IsNonTerminal())
	assert.False(t, Booking{Status: BookingCancelled}.IsNonTerminal())
	assert.False(t, Booking{Status: BookingExpired}.IsNonTerminal())
}

func TestPaymentRefundable(t *testing.T) {
	p := Payment{AmountCents: 1000, RefundedCents: 0}
	assert.Equal(t, uint64(1000), p.Refundable())

	p.RefundedCents = 400
	assert.Equal(t, uint64(600), p.Refundable())

	p.RefundedCents = 1000
	assert.Equal(t, uint64(0), p.Refundable())

	// Over-refund (shouldn't happen, but must never underflow).
	p.RefundedCents = 1200
	assert.Equal(t, uint64(0), p.Refundable())
}

func TestIdempotencyKey(t *testing.T) {
	got := IdempotencyKey("payme", "PerformTransaction", "abc123")
	assert.Equal(t, "payme:PerformTransaction:abc123", got)
}

func TestTxLogEntryFieldsRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	e := TxLogEntry{ID: "1", PaymentID: "p1", Provider: ProviderClick, Type: TxPrepare, Status: TxStatusPending, CreatedAt: now}
	assert.Equal(t, "p1", e.PaymentID)
	assert.Equal(t, TxPrepare, e.Type)
}
