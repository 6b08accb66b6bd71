package fanout

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
)

// wireEnvelope is what actually crosses the hold store's pub/sub bus
// (spec §9 design note: "cross-worker propagation via a pub/sub bus on the
// hold store"). WorkerID lets a worker recognize and skip its own
// envelopes coming back through Redis, since it already delivered them to
// its local connections the instant Publish was called.
type wireEnvelope struct {
	WorkerID   string          `json:"workerId"`
	SessionID  string          `json:"sessionId"`
	Type       events.Type     `json:"type"`
	Audience   events.Audience `json:"audience"`
	OriginConn string          `json:"originConn"`
	Payload    json.RawMessage `json:"payload"`
	EmittedAt  time.Time       `json:"emittedAt"`
}

// publishRemote best-effort forwards an envelope to every other worker
// subscribed to this session's room. Local delivery (same worker) goes
// through the Hub's broadcast channel and does not wait on this.
func (h *Hub) publishRemote(e events.Envelope) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		h.log.Error("marshal envelope payload for remote fanout failed", zap.Error(err))
		return
	}
	wire := wireEnvelope{
		WorkerID:   h.workerID,
		SessionID:  e.SessionID,
		Type:       e.Type,
		Audience:   e.Audience,
		OriginConn: e.OriginConn,
		Payload:    payload,
		EmittedAt:  e.EmittedAt,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		h.log.Error("marshal wire envelope failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.holds.Publish(ctx, holdstore.SessionChannel(e.SessionID), body); err != nil {
		h.log.Warn("cross-worker publish failed, local connections in this worker still received it", zap.Error(err), zap.String("sessionId", e.SessionID))
	}
}

// subscribeRoom starts relaying remote envelopes for sessionID into this
// worker's local delivery path. Called when the room's first local
// connection joins; the returned stop func is invoked when the room's last
// local connection leaves.
func (h *Hub) subscribeRoom(sessionID string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	ps, err := h.holds.Subscribe(ctx, holdstore.SessionChannel(sessionID))
	if err != nil {
		h.log.Warn("room pub/sub subscribe failed, falling back to single-worker delivery", zap.Error(err), zap.String("sessionId", sessionID))
		cancel()
		return func() {}
	}

	go func() {
		ch := ps.Channel()
		for msg := range ch {
			var wire wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				continue
			}
			if wire.WorkerID == h.workerID {
				continue // already delivered locally by this worker
			}
			h.deliver(events.Envelope{
				SessionID:  wire.SessionID,
				Type:       wire.Type,
				Audience:   wire.Audience,
				OriginConn: wire.OriginConn,
				Payload:    wire.Payload,
				EmittedAt:  wire.EmittedAt,
			})
		}
	}()

	return func() {
		_ = ps.Close()
		cancel()
	}
}
