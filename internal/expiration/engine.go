// Package expiration implements the Expiration engine (C4): a periodic
// scanner that finds expired pending bookings and orphaned holds, demotes
// them, and pushes release events to the Fan-out layer (spec §4.4).
package expiration

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
	"github.com/iliyamo/cinema-seat-reservation/internal/queue"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
	"github.com/iliyamo/cinema-seat-reservation/internal/service"
)

// Config carries the engine's tunables (spec §6).
type Config struct {
	TickInterval    time.Duration
	OrphanScanEvery int
	BatchSize       int
}

// Engine runs the periodic sweep described in spec §4.4. It is safe to run
// on multiple replicas: each demotion is its own small catalog transaction,
// so a second replica racing the same booking simply observes a status
// that is no longer PENDING and moves on (spec "failure model").
type Engine struct {
	bookings *repository.BookingRepo
	seats    *repository.SeatRepo
	sessions *repository.SessionRepo
	holds    *holdstore.Store
	pub      events.Publisher
	lifecycle *service.QueuePublisher
	log      *zap.Logger
	cfg      Config

	running atomic.Bool
	ticks   int
}

// New constructs an Engine. lifecycle may be nil, in which case expired
// bookings are not republished to the message broker.
func New(bookings *repository.BookingRepo, seats *repository.SeatRepo, sessions *repository.SessionRepo,
	holds *holdstore.Store, pub events.Publisher, lifecycle *service.QueuePublisher, log *zap.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Engine{bookings: bookings, seats: seats, sessions: sessions, holds: holds, pub: pub, lifecycle: lifecycle, log: log, cfg: cfg}
}

// Run blocks, ticking every cfg.TickInterval until ctx is cancelled. The
// reentrancy guard (a single atomic bool, per Design Note 9) skips a tick
// if the previous one is still running rather than letting ticks pile up.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("expiration tick skipped: previous tick still running")
		return
	}
	defer e.running.Store(false)

	start := time.Now()
	e.ticks++

	expired := e.expireDuePending(ctx)

	if e.cfg.OrphanScanEvery > 0 && e.ticks%e.cfg.OrphanScanEvery == 0 {
		e.scanOrphanHolds(ctx)
	}

	dur := time.Since(start)
	if dur > time.Second {
		e.log.Warn("expiration tick exceeded 1s", zap.Duration("duration", dur), zap.Int("expired", expired))
	} else {
		e.log.Debug("expiration tick complete", zap.Duration("duration", dur), zap.Int("expired", expired))
	}
}

// expireDuePending implements spec §4.4 step 1. Each demoted booking is its
// own transaction so one bad row can't stall the whole tick.
func (e *Engine) expireDuePending(ctx context.Context) int {
	now := time.Now().UTC()
	due, err := e.bookings.ListDuePending(ctx, now, e.cfg.BatchSize)
	if err != nil {
		e.log.Error("list due pending bookings failed", zap.Error(err))
		return 0
	}

	expired := 0
	for _, b := range due {
		if e.expireOne(ctx, b) {
			expired++
		}
	}
	return expired
}

func (e *Engine) expireOne(ctx context.Context, b model.Booking) bool {
	tx, err := e.bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		e.log.Error("begin tx failed", zap.Error(err), zap.String("bookingId", b.ID))
		return false
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := e.bookings.GetByIDTx(ctx, tx, b.ID)
	if err != nil {
		if err != repository.ErrNotFound {
			e.log.Error("lock booking failed", zap.Error(err), zap.String("bookingId", b.ID))
		}
		return false
	}
	// Another replica (or Cancel/Confirm) may have already moved this
	// booking off PENDING; skip without error, matching the idempotent
	// "second caller sees status already changed" contract.
	if locked.Status != model.BookingPending {
		return false
	}

	if err := e.bookings.UpdateStatusTx(ctx, tx, b.ID, model.BookingExpired); err != nil {
		e.log.Error("expire booking failed", zap.Error(err), zap.String("bookingId", b.ID))
		return false
	}
	if _, err := e.seats.LockForUpdateTx(ctx, tx, b.SeatID); err != nil {
		e.log.Error("lock seat failed", zap.Error(err), zap.String("seatId", b.SeatID))
		return false
	}
	if err := e.seats.UpdateStatusTx(ctx, tx, b.SeatID, model.SeatAvailable); err != nil {
		e.log.Error("release seat failed", zap.Error(err), zap.String("seatId", b.SeatID))
		return false
	}
	if err := tx.Commit(); err != nil {
		e.log.Error("commit expire failed", zap.Error(err), zap.String("bookingId", b.ID))
		return false
	}
	committed = true

	if _, err := e.holds.Delete(ctx, holdstore.SeatKey(b.SessionID, b.SeatID)); err != nil {
		e.log.Warn("delete hold after expire failed", zap.Error(err), zap.String("seatId", b.SeatID))
	}
	e.pub.Publish(events.Envelope{
		SessionID: b.SessionID,
		Type:      events.SeatReleased,
		Audience:  events.AudienceRoom,
		Payload:   events.SeatReleasedPayload{SeatID: b.SeatID, Reason: "timeout"},
		EmittedAt: time.Now().UTC(),
	})
	if e.lifecycle != nil {
		go func() {
			lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = e.lifecycle.PublishBookingLifecycle(lctx, queue.BookingLifecycleEvent{
				Type: queue.BookingExpired, BookingID: b.ID, SessionID: b.SessionID, UserID: b.UserID,
				SeatIDs: []string{b.SeatID}, Reason: "timeout", OccurredAt: time.Now().UTC().Format(time.RFC3339),
			})
		}()
	}
	return true
}

// scanOrphanHolds implements spec §4.4 step 2: at a lower frequency, scan
// each active session's hold keys and delete entries that lost their TTL
// (ttl == -1, meaning PERSIST was somehow applied or the key was rewritten
// without one).
func (e *Engine) scanOrphanHolds(ctx context.Context) {
	sessionsList, err := e.sessions.ListActive(ctx)
	if err != nil {
		e.log.Error("list active sessions for orphan scan failed", zap.Error(err))
		return
	}
	removed := 0
	for _, s := range sessionsList {
		keys, err := e.holds.ScanByPrefix(ctx, holdstore.SeatPrefix(s.ID))
		if err != nil {
			e.log.Error("scan holds by prefix failed", zap.Error(err), zap.String("sessionId", s.ID))
			continue
		}
		for _, key := range keys {
			ttl, err := e.holds.TTL(ctx, key)
			if err != nil {
				continue
			}
			if ttl == -1 {
				if _, err := e.holds.Delete(ctx, key); err == nil {
					removed++
				}
			}
		}
	}
	if removed > 0 {
		e.log.Info("orphan hold scan removed entries", zap.Int("removed", removed))
	}
}
