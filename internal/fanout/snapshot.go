package fanout

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/model"
)

// SeatView is one seat's projection in a session_state snapshot: the
// catalog's durable status decorated with the Hold store's ephemeral
// selection state (spec §3 "ownership split" — C1 is authoritative for
// status, C2 decorates AVAILABLE with "selected by user X").
type SeatView struct {
	SeatID  string `json:"seatId"`
	Row     string `json:"row"`
	Number  int    `json:"number"`
	Section string `json:"section"`
	PosX    float64 `json:"posX"`
	PosY    float64 `json:"posY"`
	Status  string `json:"status"`
}

// Seat view statuses. AVAILABLE/RESERVED/OCCUPIED/DISABLED/HIDDEN mirror
// the catalog's durable model.Seat statuses directly; HELD_BY_YOU and
// HELD_BY_OTHER are synthesized here from a live hold and never stored.
const (
	ViewHeldByYou   = "HELD_BY_YOU"
	ViewHeldByOther = "HELD_BY_OTHER"
)

type sessionStatePayload struct {
	SessionID   string     `json:"sessionId"`
	ViewerCount int64      `json:"viewerCount"`
	Seats       []SeatView `json:"seats"`
}

// sendSnapshot builds and sends a full session_state event to one
// connection (on join or reconnect, per spec §6 "clients reconcile via
// session_state on reconnect").
func (h *Hub) sendSnapshot(ctx context.Context, c *Connection, sessionID string) {
	seats, err := h.seats.ListBySession(ctx, sessionID)
	if err != nil {
		h.log.Error("list seats for snapshot failed", zap.Error(err), zap.String("sessionId", sessionID))
		c.sendError(sessionID, "CATALOG_UNAVAILABLE", "could not load seat layout", nil)
		return
	}

	holdKeys, err := h.holds.ScanByPrefix(ctx, holdstore.SeatPrefix(sessionID))
	if err != nil {
		h.log.Warn("scan holds for snapshot failed", zap.Error(err), zap.String("sessionId", sessionID))
	}
	holdsBySeat := make(map[string]holdstore.Hold, len(holdKeys))
	for _, key := range holdKeys {
		hold, ok, err := h.holds.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		holdsBySeat[seatIDFromHoldKey(key)] = hold
	}

	views := make([]SeatView, 0, len(seats))
	for _, s := range seats {
		views = append(views, SeatView{
			SeatID:  s.ID,
			Row:     s.Row,
			Number:  s.Number,
			Section: s.Section,
			PosX:    s.PosX,
			PosY:    s.PosY,
			Status:  viewStatus(s, holdsBySeat[s.ID], c.userID),
		})
	}

	body, err := json.Marshal(outboundMessage{
		Event: "session_state",
		Data:  sessionStatePayload{SessionID: sessionID, ViewerCount: h.ViewerCount(ctx, sessionID), Seats: views},
	})
	if err != nil {
		h.log.Error("marshal session_state failed", zap.Error(err))
		return
	}
	c.trySend(body)
}

func viewStatus(s model.Seat, hold holdstore.Hold, userID string) string {
	if s.Status != model.SeatAvailable {
		return s.Status
	}
	if hold.UserID == "" {
		return model.SeatAvailable
	}
	if hold.UserID == userID {
		return ViewHeldByYou
	}
	return ViewHeldByOther
}

// seatIDFromHoldKey recovers the seat id from a "seat:{sessionId}:{seatId}"
// hold key (spec §4.2 key naming).
func seatIDFromHoldKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
