package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/apperr"
	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

var validate = validator.New()

// inboundMessage is the wire shape every client→server event arrives in
// (spec §4.5 "client events"). Data is decoded per-event below once Event
// is known.
type inboundMessage struct {
	Event string `json:"event"`
	Data  struct {
		SessionID string   `json:"sessionId" validate:"required,uuid4"`
		SeatID    string   `json:"seatId" validate:"omitempty,uuid4"`
		SeatIDs   []string `json:"seatIds" validate:"omitempty,dive,uuid4"`
	} `json:"data"`
}

const (
	eventJoinSession  = "join_session"
	eventLeaveSession = "leave_session"
	eventSelectSeat   = "select_seat"
	eventReserveSeats = "reserve_seats"
	eventReleaseSeats = "release_seats"
)

// dispatch routes one decoded client event to its handler. Every handler
// is responsible for its own rate-limit check and error reply; dispatch
// itself only validates the envelope shape.
func (h *Hub) dispatch(c *Connection, in inboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch in.Event {
	case eventJoinSession:
		h.handleJoin(ctx, c, in.Data.SessionID)
	case eventLeaveSession:
		h.handleLeave(c, in.Data.SessionID)
	case eventSelectSeat:
		h.handleSelect(ctx, c, in.Data.SessionID, in.Data.SeatID)
	case eventReserveSeats:
		h.handleReserve(ctx, c, in.Data.SessionID, in.Data.SeatIDs)
	case eventReleaseSeats:
		h.handleRelease(ctx, c, in.Data.SessionID, in.Data.SeatID)
	default:
		c.sendError("", "UNKNOWN_EVENT", "unrecognized event type", nil)
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Connection, sessionID string) {
	if sessionID == "" {
		c.sendError("", "VALIDATION_ERROR", "sessionId is required", nil)
		return
	}

	session, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if err == repository.ErrNotFound {
			h.replyErr(c, sessionID, apperr.NotFound("SESSION_NOT_FOUND", "session not found"))
			return
		}
		h.replyErr(c, sessionID, apperr.Internal("CATALOG_UNAVAILABLE", err))
		return
	}
	if !session.IsActive() {
		h.replyErr(c, sessionID, apperr.Conflict("SESSION_NOT_ACTIVE", "session is not accepting bookings"))
		return
	}

	c.mu.Lock()
	alreadyJoined := c.joined[sessionID]
	if !alreadyJoined {
		c.joined[sessionID] = true
	}
	c.mu.Unlock()
	if alreadyJoined {
		h.sendSnapshot(ctx, c, sessionID)
		return
	}

	h.joinSession(c, sessionID)
	if err := h.holds.SetAdd(ctx, holdstore.PresenceKey(sessionID), c.userID); err != nil {
		h.log.Warn("presence set add failed", zap.Error(err), zap.String("sessionId", sessionID))
	}
	h.broadcastViewerCount(ctx, sessionID)
	h.sendSnapshot(ctx, c, sessionID)
}

func (h *Hub) handleLeave(c *Connection, sessionID string) {
	if sessionID == "" {
		c.sendError("", "VALIDATION_ERROR", "sessionId is required", nil)
		return
	}
	c.mu.Lock()
	joined := c.joined[sessionID]
	delete(c.joined, sessionID)
	c.mu.Unlock()
	if !joined {
		return
	}

	h.leaveSession(c, sessionID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.holds.SetRemove(ctx, holdstore.PresenceKey(sessionID), c.userID); err != nil {
		h.log.Warn("presence set remove failed", zap.Error(err), zap.String("sessionId", sessionID))
	}
	if _, err := h.coordinator.CleanupConnection(ctx, sessionID, c.id); err != nil {
		h.log.Warn("cleanup connection on leave failed", zap.Error(err), zap.String("sessionId", sessionID))
	}
	h.broadcastViewerCount(ctx, sessionID)
}

func (h *Hub) handleSelect(ctx context.Context, c *Connection, sessionID, seatID string) {
	if sessionID == "" || seatID == "" {
		c.sendError(sessionID, "VALIDATION_ERROR", "sessionId and seatId are required", nil)
		return
	}
	if !h.checkRateLimit(ctx, c, sessionID, "select_seat") {
		return
	}
	if _, err := h.coordinator.Select(ctx, sessionID, seatID, c.userID, c.id); err != nil {
		h.replyErr(c, sessionID, err)
	}
}

func (h *Hub) handleRelease(ctx context.Context, c *Connection, sessionID, seatID string) {
	if sessionID == "" || seatID == "" {
		c.sendError(sessionID, "VALIDATION_ERROR", "sessionId and seatId are required", nil)
		return
	}
	if _, err := h.coordinator.Release(ctx, sessionID, seatID, c.userID); err != nil {
		h.replyErr(c, sessionID, err)
		return
	}
	h.Publish(events.Envelope{SessionID: sessionID, Type: events.SeatReleased, Audience: events.AudienceRoom, OriginConn: c.id,
		Payload: events.SeatReleasedPayload{SeatID: seatID, Reason: "manual"}, EmittedAt: time.Now().UTC()})
}

func (h *Hub) handleReserve(ctx context.Context, c *Connection, sessionID string, seatIDs []string) {
	if sessionID == "" || len(seatIDs) == 0 {
		c.sendError(sessionID, "VALIDATION_ERROR", "sessionId and at least one seatId are required", nil)
		return
	}
	if err := validate.Var(seatIDs, "max=10,dive,uuid4"); err != nil {
		c.sendError(sessionID, "VALIDATION_ERROR", "seatIds must be 1-10 valid ids", nil)
		return
	}
	if !h.checkRateLimit(ctx, c, sessionID, "reserve_seats") {
		return
	}
	if _, err := h.coordinator.Reserve(ctx, sessionID, seatIDs, c.userID, c.id); err != nil {
		h.replyErr(c, sessionID, err)
	}
}

func (h *Hub) checkRateLimit(ctx context.Context, c *Connection, sessionID, action string) bool {
	res, err := h.coordinator.RateLimitCheck(ctx, c.userID, action)
	if err != nil {
		h.replyErr(c, sessionID, err)
		return false
	}
	if !res.Allowed {
		body, _ := json.Marshal(outboundMessage{Event: string(events.RateLimited), Data: events.RateLimitedPayload{Action: action, RetryAfter: res.RetryAfter}})
		c.trySend(body)
		return false
	}
	return true
}

func (h *Hub) replyErr(c *Connection, sessionID string, err error) {
	code, message, details := apperr.ToWSError(err)
	c.sendError(sessionID, code, message, details)
}

func (h *Hub) broadcastViewerCount(ctx context.Context, sessionID string) {
	count := h.ViewerCount(ctx, sessionID)
	h.Publish(events.Envelope{SessionID: sessionID, Type: events.SessionUpdated, Audience: events.AudienceRoom,
		Payload: events.SessionUpdatedPayload{SessionID: sessionID, ViewerCount: count}, EmittedAt: time.Now().UTC()})
}
