// Package payment implements the Payment state machine (C6): the shared
// confirm/cancel/refund transitions both gateway protocols drive, plus the
// Payme and Click protocol handlers themselves (spec §4.6).
package payment

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/queue"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
	"github.com/iliyamo/cinema-seat-reservation/internal/service"
)

// Service wires the Catalog store's payment-adjacent repositories together
// under the transition rules spec §4.6 describes. It never touches seat
// selection/reservation (that stays the Coordinator's job) — only the
// confirm/cancel/refund edges that run after a booking is already PENDING.
type Service struct {
	payments  *repository.PaymentRepo
	txlog     *repository.TxLogRepo
	bookings  *repository.BookingRepo
	seats     *repository.SeatRepo
	holds     *holdstore.Store
	pub       events.Publisher
	lifecycle *service.QueuePublisher
	log       *zap.Logger
}

// New constructs a Service. lifecycle may be nil, in which case
// booking-lifecycle events are not republished to the message broker.
func New(payments *repository.PaymentRepo, txlog *repository.TxLogRepo, bookings *repository.BookingRepo,
	seats *repository.SeatRepo, holds *holdstore.Store, pub events.Publisher, lifecycle *service.QueuePublisher, log *zap.Logger) *Service {
	return &Service{payments: payments, txlog: txlog, bookings: bookings, seats: seats, holds: holds, pub: pub, lifecycle: lifecycle, log: log}
}

// publishLifecycle best-effort republishes a booking transition driven by
// the payment machine to the message broker (spec §9 design note).
func (s *Service) publishLifecycle(evtType, bookingID, sessionID, userID, seatID, reason string) {
	if s.lifecycle == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.lifecycle.PublishBookingLifecycle(ctx, queue.BookingLifecycleEvent{
			Type: evtType, BookingID: bookingID, SessionID: sessionID, UserID: userID,
			SeatIDs: []string{seatID}, Reason: reason, OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}

// Create opens a new PENDING payment against a PENDING booking (spec §4.6
// "CREATE" step, shared by both providers before they diverge into their
// own protocols).
func (s *Service) Create(ctx context.Context, bookingID, userID, provider string, amountCents uint64) (*model.Payment, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if booking.UserID != userID {
		return nil, apperr.Forbidden("FORBIDDEN", "booking belongs to another user")
	}
	if booking.Status != model.BookingPending {
		return nil, apperr.Conflict("BOOKING_NOT_PENDING", "booking is not pending")
	}
	if amountCents != booking.PriceCents {
		return nil, apperr.Validation("AMOUNT_MISMATCH", "amount does not match booking price")
	}

	p := &model.Payment{ID: uuid.NewString(), BookingID: bookingID, UserID: userID, Provider: provider, Status: model.PaymentPending, AmountCents: amountCents}
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := s.payments.CreateTx(ctx, tx, p); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := s.txlog.InsertTx(ctx, tx, &model.TxLogEntry{
		ID: uuid.NewString(), PaymentID: p.ID, Provider: provider, Type: model.TxCreate, Status: model.TxStatusSuccess,
		IdempotencyKey: model.IdempotencyKey(provider, model.TxCreate, p.ID),
	}); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true
	return p, nil
}

// Confirm implements the shared "PerformTransaction"/"Complete" edge: the
// booking goes CONFIRMED, the seat goes OCCUPIED, and the payment goes
// COMPLETED. Idempotent — a payment already COMPLETED returns success
// without mutating anything again (spec P6, scenario 5).
func (s *Service) Confirm(ctx context.Context, paymentID string) (*model.Payment, error) {
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p, err := s.payments.GetByIDTx(ctx, tx, paymentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
		}
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if p.Status == model.PaymentCompleted {
		_ = tx.Rollback()
		committed = true
		return p, nil
	}
	if p.Status != model.PaymentPending {
		return nil, apperr.Conflict("PAYMENT_NOT_PENDING", "payment is not pending")
	}

	booking, err := s.bookings.GetByIDTx(ctx, tx, p.BookingID)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if booking.Status != model.BookingPending {
		return nil, apperr.Conflict("BOOKING_NOT_PENDING", "booking is no longer pending")
	}

	now := time.Now().UTC()
	if err := s.bookings.UpdateStatusTx(ctx, tx, booking.ID, model.BookingConfirmed); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if _, err := s.seats.LockForUpdateTx(ctx, tx, booking.SeatID); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := s.seats.UpdateStatusTx(ctx, tx, booking.SeatID, model.SeatOccupied); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := s.payments.MarkCompletedTx(ctx, tx, p.ID, sql.NullTime{Time: now, Valid: true}); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	_, _ = s.holds.Delete(ctx, holdstore.SeatKey(booking.SessionID, booking.SeatID))
	s.pub.Publish(events.Envelope{SessionID: booking.SessionID, Type: events.BookingConfirmed, Audience: events.AudienceRoom,
		Payload: events.BookingConfirmedPayload{BookingID: booking.ID, SeatID: booking.SeatID, UserID: booking.UserID}, EmittedAt: now})
	s.publishLifecycle(queue.BookingConfirmed, booking.ID, booking.SessionID, booking.UserID, booking.SeatID, "")

	p.Status = model.PaymentCompleted
	p.PaidAt = &now
	return p, nil
}

// Cancel implements the shared "CancelTransaction" edge: booking CANCELLED,
// seat AVAILABLE, payment CANCELLED. It takes no reason, and no tx log
// entry is written for the cancel, here or in the Payme caller.
func (s *Service) Cancel(ctx context.Context, paymentID string) (*model.Payment, error) {
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p, err := s.payments.GetByIDTx(ctx, tx, paymentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
		}
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if p.Status == model.PaymentCancelled {
		_ = tx.Rollback()
		committed = true
		return p, nil
	}
	if p.Status == model.PaymentCompleted {
		return nil, apperr.Conflict("PAYMENT_ALREADY_COMPLETED", "payment already completed")
	}

	booking, err := s.bookings.GetByIDTx(ctx, tx, p.BookingID)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if booking.Status == model.BookingPending {
		if err := s.bookings.UpdateStatusTx(ctx, tx, booking.ID, model.BookingCancelled); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if _, err := s.seats.LockForUpdateTx(ctx, tx, booking.SeatID); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if err := s.seats.UpdateStatusTx(ctx, tx, booking.SeatID, model.SeatAvailable); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
	}
	if err := s.payments.MarkCancelledTx(ctx, tx, p.ID); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	_, _ = s.holds.Delete(ctx, holdstore.SeatKey(booking.SessionID, booking.SeatID))
	s.pub.Publish(events.Envelope{SessionID: booking.SessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
		Payload: events.SeatReleasedPayload{SeatID: booking.SeatID, Reason: "payment_cancelled"}, EmittedAt: time.Now().UTC()})
	s.publishLifecycle(queue.BookingCancelled, booking.ID, booking.SessionID, booking.UserID, booking.SeatID, "payment_cancelled")

	p.Status = model.PaymentCancelled
	return p, nil
}

// Fail implements the FAILED edge: the gateway itself declined the
// transaction (bad signature aside — that never reaches the payment layer),
// as opposed to Cancel, which is a cooperative cancel-before-completion.
// Booking/seat unwind the same way Cancel does; only the payment's own
// terminal status differs, so downstream readers can tell "gateway
// rejected it" apart from "somebody cancelled it".
func (s *Service) Fail(ctx context.Context, paymentID string) (*model.Payment, error) {
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p, err := s.payments.GetByIDTx(ctx, tx, paymentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
		}
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if p.Status == model.PaymentFailed {
		_ = tx.Rollback()
		committed = true
		return p, nil
	}
	if p.Status == model.PaymentCompleted {
		return nil, apperr.Conflict("PAYMENT_ALREADY_COMPLETED", "payment already completed")
	}
	if p.Status == model.PaymentCancelled {
		return nil, apperr.Conflict("PAYMENT_ALREADY_CANCELLED", "payment already cancelled")
	}

	booking, err := s.bookings.GetByIDTx(ctx, tx, p.BookingID)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if booking.Status == model.BookingPending {
		if err := s.bookings.UpdateStatusTx(ctx, tx, booking.ID, model.BookingCancelled); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if _, err := s.seats.LockForUpdateTx(ctx, tx, booking.SeatID); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if err := s.seats.UpdateStatusTx(ctx, tx, booking.SeatID, model.SeatAvailable); err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
	}
	if err := s.payments.MarkFailedTx(ctx, tx, p.ID); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	_, _ = s.holds.Delete(ctx, holdstore.SeatKey(booking.SessionID, booking.SeatID))
	s.pub.Publish(events.Envelope{SessionID: booking.SessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
		Payload: events.SeatReleasedPayload{SeatID: booking.SeatID, Reason: "payment_failed"}, EmittedAt: time.Now().UTC()})
	s.publishLifecycle(queue.BookingCancelled, booking.ID, booking.SessionID, booking.UserID, booking.SeatID, "payment_failed")

	p.Status = model.PaymentFailed
	return p, nil
}

// Refund implements spec §4.6 "Refund": refundable = paid - already
// refunded; amount defaults to the full refundable balance; a full refund
// also cancels the booking and frees the seat.
func (s *Service) Refund(ctx context.Context, paymentID string, amountCents uint64) (*model.Payment, error) {
	tx, err := s.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	p, err := s.payments.GetByIDTx(ctx, tx, paymentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("PAYMENT_NOT_FOUND", "payment not found")
		}
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if p.Status != model.PaymentCompleted {
		return nil, apperr.Conflict("PAYMENT_NOT_COMPLETED", "only completed payments can be refunded")
	}
	refundable := p.Refundable()
	if amountCents == 0 {
		amountCents = refundable
	}
	if amountCents > refundable {
		return nil, apperr.Conflict("REFUND_EXCEEDS_BALANCE", "refund amount exceeds refundable balance")
	}

	now := time.Now().UTC()
	if err := s.payments.RecordRefundTx(ctx, tx, p.ID, amountCents, sql.NullTime{Time: now, Valid: true}); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}

	fullyRefunded := p.RefundedCents+amountCents >= p.AmountCents
	var booking *model.Booking
	if fullyRefunded {
		booking, err = s.bookings.GetByIDTx(ctx, tx, p.BookingID)
		if err != nil {
			return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if booking.IsNonTerminal() {
			if err := s.bookings.UpdateStatusTx(ctx, tx, booking.ID, model.BookingCancelled); err != nil {
				return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
			}
			if _, err := s.seats.LockForUpdateTx(ctx, tx, booking.SeatID); err != nil {
				return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
			}
			if err := s.seats.UpdateStatusTx(ctx, tx, booking.SeatID, model.SeatAvailable); err != nil {
				return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	p.RefundedCents += amountCents
	p.RefundedAt = &now

	if fullyRefunded && booking != nil {
		_, _ = s.holds.Delete(ctx, holdstore.SeatKey(booking.SessionID, booking.SeatID))
		s.pub.Publish(events.Envelope{SessionID: booking.SessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
			Payload: events.SeatReleasedPayload{SeatID: booking.SeatID, Reason: "refund"}, EmittedAt: now})
		s.publishLifecycle(queue.BookingCancelled, booking.ID, booking.SessionID, booking.UserID, booking.SeatID, "refund")
	}
	return p, nil
}

// ListFilter narrows List, re-exported from the repository layer so
// handlers don't need to import internal/repository directly.
type ListFilter = repository.ListFilter

// GetByID fetches one payment for the status-snapshot endpoint.
func (s *Service) GetByID(ctx context.Context, id string) (*model.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// List returns payments matching filter for the admin list endpoint.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]model.Payment, error) {
	return s.payments.List(ctx, filter)
}

// lookupByExternalID fetches a payment by its gateway-assigned external
// id, used by protocol steps that only receive the external id (Payme's
// Perform/Cancel/Check, Click's Complete).
func (s *Service) lookupByExternalID(ctx context.Context, provider, externalID string) (*model.Payment, error) {
	tx, err := s.payments.DB().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	defer func() { _ = tx.Rollback() }()
	p, err := s.payments.GetByExternalIDTx(ctx, tx, provider, externalID)
	if err != nil {
		return nil, err
	}
	return p, nil
}
