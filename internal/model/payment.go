package model

import "time"

// Payment providers.
const (
	ProviderPayme = "payme"
	ProviderClick = "click"
)

// Payment statuses.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentCancelled = "CANCELLED"
)

// Payment is an attempt to settle one booking via one gateway.
//
// Fields:
//  ID              – UUID primary key assigned at creation; it is not a
//                     monotonic integer, and no integer id per payment is
//                     stored.
//  BookingID       – the booking being paid for.
//  UserID          – the paying user.
//  Provider        – ProviderPayme or ProviderClick.
//  Status          – one of PaymentPending/Completed/Failed/Cancelled.
//  AmountCents     – the amount charged.
//  RefundedCents   – cumulative amount refunded so far.
//  ExternalID      – the gateway's transaction id, once known.
//  PaidAt          – set when Status transitions to Completed.
//  RefundedAt      – set on the most recent refund.
type Payment struct {
	ID            string     // payments.id
	BookingID     string     // payments.booking_id
	UserID        string     // payments.user_id
	Provider      string     // payments.provider
	Status        string     // payments.status
	AmountCents   uint64     // payments.amount_cents
	RefundedCents uint64     // payments.refunded_cents
	ExternalID    string     // payments.external_id
	PaidAt        *time.Time // payments.paid_at
	RefundedAt    *time.Time // payments.refunded_at
	CreatedAt     time.Time  // payments.created_at
	UpdatedAt     time.Time  // payments.updated_at
}

// Refundable returns the amount still available to refund.
func (p Payment) Refundable() uint64 {
	if p.RefundedCents >= p.AmountCents {
		return 0
	}
	return p.AmountCents - p.RefundedCents
}
