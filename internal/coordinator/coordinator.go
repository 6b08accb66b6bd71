// Package coordinator implements the Seat-state coordinator (C3): the
// authoritative, race-free transition engine for per-seat status and the
// short-lived holds that decorate it. It owns the select/release/reserve
// transitions; the Expiration engine and the payment Service apply their
// own booking/seat transitions through the repositories, not through it.
package coordinator

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/queue"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
	"github.com/iliyamo/cinema-seat-reservation/internal/service"
)

// Config carries the Coordinator's tunables, loaded from config.Config at
// startup (spec §6 "Configuration").
type Config struct {
	SelectionTTL       time.Duration
	ReservationTTL     time.Duration
	MaxSeatsPerBooking int
	RateLimitPerMinute int
	RateLimitWindow    time.Duration
}

// Coordinator wires the Catalog store (C1) and Hold store (C2) together
// under the locking discipline of spec §5, and publishes deltas to the
// Fan-out layer (C5) via events.Publisher.
type Coordinator struct {
	sessions  *repository.SessionRepo
	seats     *repository.SeatRepo
	tariffs   *repository.TariffRepo
	bookings  *repository.BookingRepo
	holds     *holdstore.Store
	pub       events.Publisher
	lifecycle *service.QueuePublisher
	cfg       Config
}

// New constructs a Coordinator. pub may be events.NopPublisher{} when no
// fan-out wiring is available (e.g. in unit tests exercising C1-C3 alone).
// lifecycle may be nil, in which case booking-lifecycle events are simply
// not published to the message broker.
func New(sessions *repository.SessionRepo, seats *repository.SeatRepo, tariffs *repository.TariffRepo,
	bookings *repository.BookingRepo, holds *holdstore.Store, pub events.Publisher, lifecycle *service.QueuePublisher, cfg Config) *Coordinator {
	return &Coordinator{sessions: sessions, seats: seats, tariffs: tariffs, bookings: bookings, holds: holds, pub: pub, lifecycle: lifecycle, cfg: cfg}
}

// publishLifecycle best-effort republishes a booking transition to the
// message broker for downstream notification/audit consumers, decoupled
// from the in-process fan-out this Coordinator also drives.
func (c *Coordinator) publishLifecycle(evtType, bookingID, sessionID, userID, seatID, reason string) {
	if c.lifecycle == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.lifecycle.PublishBookingLifecycle(ctx, queue.BookingLifecycleEvent{
			Type: evtType, BookingID: bookingID, SessionID: sessionID, UserID: userID,
			SeatIDs: []string{seatID}, Reason: reason, OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}

// SelectResult is returned by Select.
type SelectResult struct {
	ExpiresAt time.Time
}

// Select implements spec §4.3 "select". The happy path, the refresh path
// (same user retries), and the conflict path (another user already holds
// the seat) are all covered by the single setIfAbsent race.
func (c *Coordinator) Select(ctx context.Context, sessionID, seatID, userID, connID string) (SelectResult, error) {
	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == repository.ErrNotFound {
			return SelectResult{}, apperr.NotFound("SESSION_NOT_FOUND", "session not found")
		}
		return SelectResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if !session.IsActive() {
		return SelectResult{}, apperr.Conflict("SESSION_NOT_ACTIVE", "session is not accepting bookings")
	}

	seat, err := c.seats.GetByID(ctx, seatID)
	if err != nil {
		if err == repository.ErrNotFound {
			return SelectResult{}, apperr.NotFound("SEAT_NOT_FOUND", "seat not found")
		}
		return SelectResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if seat.SessionID != sessionID {
		return SelectResult{}, apperr.NotFound("SEAT_NOT_FOUND", "seat not found")
	}
	if seat.Status != model.SeatAvailable {
		return SelectResult{}, apperr.ConflictSeat("SEAT_NOT_AVAILABLE", "seat is not available", seatID, seat.Status)
	}

	key := holdstore.SeatKey(sessionID, seatID)
	takenAt := time.Now().UTC()
	hold := holdstore.Hold{UserID: userID, ConnectionID: connID, TakenAt: takenAt}

	won, err := c.holds.SetIfAbsent(ctx, key, hold, c.cfg.SelectionTTL)
	if err != nil {
		return SelectResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
	}
	if !won {
		existing, ok, err := c.holds.Get(ctx, key)
		if err != nil {
			return SelectResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
		}
		if !ok {
			// Lost the read race against the holder's own TTL expiry; retry
			// once by attempting the same setIfAbsent again.
			won, err = c.holds.SetIfAbsent(ctx, key, hold, c.cfg.SelectionTTL)
			if err != nil {
				return SelectResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
			}
			if !won {
				return SelectResult{}, apperr.ConflictSeat("SEAT_ALREADY_SELECTED", "seat is already selected", seatID, seat.Status)
			}
			return SelectResult{ExpiresAt: takenAt.Add(c.cfg.SelectionTTL)}, c.emitSelected(sessionID, seatID, userID, connID, takenAt)
		}
		if existing.UserID != userID {
			return SelectResult{}, apperr.ConflictSeat("SEAT_ALREADY_SELECTED", "seat is already selected", seatID, seat.Status)
		}
		// A same-user collision is treated as a refresh: the hold keeps its
		// owner and gets a new TakenAt, ConnectionID and TTL. The result is
		// the same as a fresh win, and nothing logs the collision.
		existing.TakenAt = takenAt
		existing.ConnectionID = connID
		if err := c.holds.SetWithTTL(ctx, key, existing, c.cfg.SelectionTTL); err != nil {
			return SelectResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
		}
		return SelectResult{ExpiresAt: takenAt.Add(c.cfg.SelectionTTL)}, c.emitSelected(sessionID, seatID, userID, connID, takenAt)
	}
	return SelectResult{ExpiresAt: takenAt.Add(c.cfg.SelectionTTL)}, c.emitSelected(sessionID, seatID, userID, connID, takenAt)
}

func (c *Coordinator) emitSelected(sessionID, seatID, userID, connID string, takenAt time.Time) error {
	payload := events.SeatSelectedPayload{SeatID: seatID, UserID: userID, ExpiresAt: takenAt.Add(c.cfg.SelectionTTL)}
	c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatSelected, Audience: events.AudienceOthers, OriginConn: connID, Payload: payload, EmittedAt: takenAt})
	c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatSelected, Audience: events.AudienceSelf, OriginConn: connID, Payload: payload, EmittedAt: takenAt})
	return nil
}

// Release implements spec §4.3 "release": delete a hold iff held by the
// same user. Idempotent — releasing an already-released or foreign hold
// simply reports false.
func (c *Coordinator) Release(ctx context.Context, sessionID, seatID, userID string) (bool, error) {
	key := holdstore.SeatKey(sessionID, seatID)
	hold, ok, err := c.holds.Get(ctx, key)
	if err != nil {
		return false, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
	}
	if !ok || hold.UserID != userID {
		return false, nil
	}
	deleted, err := c.holds.Delete(ctx, key)
	if err != nil {
		return false, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
	}
	if deleted {
		c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
			Payload: events.SeatReleasedPayload{SeatID: seatID, Reason: "manual"}, EmittedAt: time.Now().UTC()})
	}
	return deleted, nil
}

// ReserveResult is returned by Reserve.
type ReserveResult struct {
	BookingID  string
	BookingIDs []string
	Seats      []string
	TotalPrice uint64
	ExpiresAt  time.Time
}

// Reserve implements spec §4.3 "reserve". The reserve is all-or-nothing:
// if any seat is no longer AVAILABLE by the time the catalog transaction
// locks it, the whole reservation aborts (P2).
func (c *Coordinator) Reserve(ctx context.Context, sessionID string, seatIDs []string, userID, connID string) (ReserveResult, error) {
	if len(seatIDs) == 0 {
		return ReserveResult{}, apperr.Validation("VALIDATION_ERROR", "seatIds is required")
	}
	if len(seatIDs) > c.cfg.MaxSeatsPerBooking {
		return ReserveResult{}, apperr.Conflict("MAX_SEATS_EXCEEDED", "too many seats requested")
	}

	session, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ReserveResult{}, apperr.NotFound("SESSION_NOT_FOUND", "session not found")
		}
		return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if !session.IsActive() {
		return ReserveResult{}, apperr.Conflict("SESSION_NOT_ACTIVE", "session is not accepting bookings")
	}

	// Pre-check (step 3-4): load seats, verify session membership and
	// hold ownership before paying for a transaction. The catalog
	// transaction below re-verifies availability under lock regardless.
	seatByID := make(map[string]model.Seat, len(seatIDs))
	for _, sid := range seatIDs {
		seat, err := c.seats.GetByID(ctx, sid)
		if err != nil {
			if err == repository.ErrNotFound {
				return ReserveResult{}, apperr.NotFound("SEAT_NOT_FOUND", "seat not found")
			}
			return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if seat.SessionID != sessionID {
			return ReserveResult{}, apperr.NotFound("SEAT_NOT_FOUND", "seat not found")
		}
		if seat.Status != model.SeatAvailable {
			return ReserveResult{}, apperr.ConflictSeat("SEAT_NOT_AVAILABLE", "seat is not available", sid, seat.Status)
		}
		hold, ok, err := c.holds.Get(ctx, holdstore.SeatKey(sessionID, sid))
		if err != nil {
			return ReserveResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
		}
		if ok && hold.UserID != userID {
			return ReserveResult{}, apperr.ConflictSeat("SEAT_ALREADY_SELECTED", "seat is held by another user", sid, seat.Status)
		}
		seatByID[sid] = seat
	}

	priceBySeat := make(map[string]uint64, len(seatIDs))
	var total uint64
	for _, sid := range seatIDs {
		seat := seatByID[sid]
		if seat.TariffID == "" {
			priceBySeat[sid] = 0
			continue
		}
		tariff, err := c.tariffLookup(ctx, seat.TariffID)
		if err != nil {
			return ReserveResult{}, err
		}
		priceBySeat[sid] = tariff.PriceCents
		total += tariff.PriceCents
	}

	expiresAt := time.Now().UTC().Add(c.cfg.ReservationTTL)
	bookingIDBySeat := make(map[string]string, len(seatIDs))

	tx, err := c.seats.DB().BeginTx(ctx, nil)
	if err != nil {
		return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := c.seats.LockManyForUpdateTx(ctx, tx, seatIDs)
	if err != nil {
		if err == repository.ErrNotFound {
			return ReserveResult{}, apperr.NotFound("SEAT_NOT_FOUND", "seat not found")
		}
		return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	for _, seat := range locked {
		if seat.Status != model.SeatAvailable {
			return ReserveResult{}, apperr.ConflictSeat("SEAT_NOT_AVAILABLE", "seat is not available", seat.ID, seat.Status)
		}
		existing, err := c.bookings.GetNonTerminalBySeatTx(ctx, tx, seat.ID)
		if err != nil {
			return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if existing != nil {
			return ReserveResult{}, apperr.ConflictSeat("SEAT_NOT_AVAILABLE", "seat already has a booking", seat.ID, seat.Status)
		}
	}
	for _, seat := range locked {
		b := &model.Booking{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			SeatID:     seat.ID,
			UserID:     userID,
			Status:     model.BookingPending,
			PriceCents: priceBySeat[seat.ID],
			ExpiresAt:  &expiresAt,
		}
		if err := c.bookings.CreateTx(ctx, tx, b); err != nil {
			return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		if err := c.seats.UpdateStatusTx(ctx, tx, seat.ID, model.SeatReserved); err != nil {
			return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
		}
		bookingIDBySeat[seat.ID] = b.ID
	}

	if err := tx.Commit(); err != nil {
		return ReserveResult{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	bookingIDs := make([]string, len(seatIDs))
	for i, sid := range seatIDs {
		bookingIDs[i] = bookingIDBySeat[sid]
	}

	// Upgrade holds (step 7): bump TTL and attach the booking id so
	// cleanupConnection knows to preserve these on disconnect.
	for _, sid := range seatIDs {
		key := holdstore.SeatKey(sessionID, sid)
		hold := holdstore.Hold{UserID: userID, ConnectionID: connID, TakenAt: time.Now().UTC(), BookingID: bookingIDBySeat[sid]}
		if err := c.holds.SetWithTTL(ctx, key, hold, c.cfg.ReservationTTL); err != nil {
			// Best-effort: the catalog is already committed; a missing hold
			// only affects disconnect cleanup bookkeeping, not correctness.
			_ = err
		}
	}

	for _, sid := range seatIDs {
		payload := events.SeatReservedPayload{BookingID: bookingIDBySeat[sid], SeatID: sid, UserID: userID, PriceCents: priceBySeat[sid], ExpiresAt: expiresAt}
		c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatReserved, Audience: events.AudienceOthers, OriginConn: connID, Payload: payload, EmittedAt: time.Now().UTC()})
		c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatReserved, Audience: events.AudienceSelf, OriginConn: connID, Payload: payload, EmittedAt: time.Now().UTC()})
	}

	go c.maybeMarkSoldOut(sessionID)

	return ReserveResult{BookingID: bookingIDs[0], BookingIDs: bookingIDs, Seats: seatIDs, TotalPrice: total, ExpiresAt: expiresAt}, nil
}

func (c *Coordinator) tariffLookup(ctx context.Context, tariffID string) (model.Tariff, error) {
	tx, err := c.seats.DB().BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return model.Tariff{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	defer func() { _ = tx.Rollback() }()
	t, err := c.tariffs.GetByIDTx(ctx, tx, tariffID)
	if err != nil {
		return model.Tariff{}, apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	return *t, nil
}

// maybeMarkSoldOut flips the session to SOLD_OUT once no AVAILABLE seats
// remain (supplemented feature). Run in the background and best-effort:
// it never blocks the reserve response and a missed transition just means
// the session briefly still reports ACTIVE with zero availability.
func (c *Coordinator) maybeMarkSoldOut(sessionID string) {
	ctx := context.Background()
	n, err := c.seats.CountBySessionAndStatus(ctx, sessionID, model.SeatAvailable)
	if err != nil || n > 0 {
		return
	}
	tx, err := c.seats.DB().BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() { _ = tx.Rollback() }()
	if err := c.sessions.MarkSoldOutTx(ctx, tx, sessionID); err == nil {
		_ = tx.Commit()
	}
}

// Confirm implements spec §4.3 "confirm": PENDING→CONFIRMED, seat→OCCUPIED.
// Re-confirming an already-CONFIRMED booking by the same user succeeds
// idempotently; any other status is CONFLICT.
func (c *Coordinator) Confirm(ctx context.Context, bookingID, userID, paymentID string) error {
	tx, err := c.bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := c.bookings.GetByIDTx(ctx, tx, bookingID)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if b.UserID != userID {
		return apperr.Forbidden("FORBIDDEN", "booking belongs to another user")
	}
	if b.Status == model.BookingConfirmed {
		return nil // idempotent
	}
	if b.Status != model.BookingPending {
		return apperr.Conflict("CONFLICT", "booking is not pending")
	}

	if err := c.bookings.UpdateStatusTx(ctx, tx, bookingID, model.BookingConfirmed); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if _, err := c.seats.LockForUpdateTx(ctx, tx, b.SeatID); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := c.seats.UpdateStatusTx(ctx, tx, b.SeatID, model.SeatOccupied); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	_, _ = c.holds.Delete(ctx, holdstore.SeatKey(b.SessionID, b.SeatID))
	c.pub.Publish(events.Envelope{SessionID: b.SessionID, Type: events.BookingConfirmed, Audience: events.AudienceRoom,
		Payload: events.BookingConfirmedPayload{BookingID: bookingID, SeatID: b.SeatID, UserID: userID}, EmittedAt: time.Now().UTC()})
	c.publishLifecycle(queue.BookingConfirmed, bookingID, b.SessionID, userID, b.SeatID, "")
	return nil
}

// Cancel implements spec §4.3 "cancel".
func (c *Coordinator) Cancel(ctx context.Context, bookingID, userID, reason string) error {
	tx, err := c.bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := c.bookings.GetByIDTx(ctx, tx, bookingID)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
		}
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if b.UserID != userID {
		return apperr.Forbidden("FORBIDDEN", "booking belongs to another user")
	}
	if b.Status == model.BookingConfirmed {
		return apperr.Conflict("CONFLICT", "booking is already confirmed")
	}
	if !b.IsNonTerminal() {
		return apperr.Conflict("CONFLICT", "booking is already terminal")
	}

	if err := c.bookings.UpdateStatusTx(ctx, tx, bookingID, model.BookingCancelled); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if _, err := c.seats.LockForUpdateTx(ctx, tx, b.SeatID); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := c.seats.UpdateStatusTx(ctx, tx, b.SeatID, model.SeatAvailable); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal("CATALOG_UNAVAILABLE", err)
	}
	committed = true

	_, _ = c.holds.Delete(ctx, holdstore.SeatKey(b.SessionID, b.SeatID))
	c.pub.Publish(events.Envelope{SessionID: b.SessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
		Payload: events.SeatReleasedPayload{SeatID: b.SeatID, Reason: reason}, EmittedAt: time.Now().UTC()})
	c.publishLifecycle(queue.BookingCancelled, bookingID, b.SessionID, userID, b.SeatID, reason)
	return nil
}

// RateLimitResult is returned by RateLimitCheck.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter int64
}

// RateLimitCheck implements spec §4.3 "rateLimitCheck" (P7): increment
// then check, so the first request to cross the threshold is the one
// rejected.
func (c *Coordinator) RateLimitCheck(ctx context.Context, userID, action string) (RateLimitResult, error) {
	key := holdstore.RateKey(action, userID)
	n, ttlSeconds, err := c.holds.IncrementAndExpire(ctx, key, c.cfg.RateLimitWindow)
	if err != nil {
		return RateLimitResult{}, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
	}
	if n > int64(c.cfg.RateLimitPerMinute) {
		retryAfter := ttlSeconds
		if retryAfter <= 0 {
			retryAfter = int64(c.cfg.RateLimitWindow / time.Second)
		}
		return RateLimitResult{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return RateLimitResult{Allowed: true}, nil
}

// CleanupConnection implements spec §4.3 "cleanupConnection" (P5): delete
// every hold in the session owned by this connection that has not become
// a reservation. Booked holds (bookingId set) survive disconnect.
func (c *Coordinator) CleanupConnection(ctx context.Context, sessionID, connID string) (int, error) {
	keys, err := c.holds.ScanByPrefix(ctx, holdstore.SeatPrefix(sessionID))
	if err != nil {
		return 0, apperr.Internal("HOLD_STORE_UNAVAILABLE", err)
	}
	released := 0
	for _, key := range keys {
		hold, ok, err := c.holds.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		if hold.ConnectionID != connID || hold.BookingID != "" {
			continue
		}
		if deleted, _ := c.holds.Delete(ctx, key); deleted {
			released++
			seatID := seatIDFromKey(key)
			c.pub.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatReleased, Audience: events.AudienceRoom,
				Payload: events.SeatReleasedPayload{SeatID: seatID, Reason: "timeout"}, EmittedAt: time.Now().UTC()})
		}
	}
	return released, nil
}

// seatIDFromKey extracts the seat id suffix from a "seat:{sessionId}:{seatId}" key.
func seatIDFromKey(key string) string {
	// Two colons precede the seat id; find the second and slice past it.
	first := -1
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			if first == -1 {
				first = i
				continue
			}
			return key[i+1:]
		}
	}
	return ""
}
