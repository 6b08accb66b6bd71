package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/events"
)

const (
	defaultReadLimit   = 512 * 1024
	defaultReadTimeout = 60 * time.Second
	defaultPingPeriod  = 30 * time.Second
	defaultWriteWait   = 10 * time.Second
)

// Connection is one authenticated duplex channel endpoint. Its read/write
// pump pair mirrors the teacher's realtime Hub client exactly: a buffered
// send channel decouples the hub's single-writer loop from a slow socket,
// and the read side only ever refreshes the deadline on pong — it never
// interprets inbound data except as client events.
type Connection struct {
	id    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	log   *zap.Logger

	userID string
	email  string
	role   string

	mu      sync.Mutex
	joined  map[string]bool
}

func newConnection(h *Hub, conn *websocket.Conn, userID, email, role string) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		log:    h.log,
		userID: userID,
		email:  email,
		role:   role,
		joined: make(map[string]bool),
	}
}

// trySend is the non-blocking enqueue every broadcast path uses; a
// connection that can't keep up is disconnected rather than left to back
// up the hub's single delivery goroutine (grounded on the teacher's
// slow-client eviction in realtime/hub.go).
func (c *Connection) trySend(body []byte) {
	select {
	case c.send <- body:
	default:
		c.log.Warn("dropping slow fanout connection", zap.String("connId", c.id), zap.String("userId", c.userID))
		go c.hub.evict(c)
	}
}

func (h *Hub) evict(c *Connection) {
	c.mu.Lock()
	sessions := make([]string, 0, len(c.joined))
	for sid := range c.joined {
		sessions = append(sessions, sid)
	}
	c.mu.Unlock()
	for _, sid := range sessions {
		h.handleLeave(c, sid)
	}
	_ = c.conn.Close()
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.evict(c)
	}()

	readTimeout := defaultReadTimeout
	if c.hub.cfg.PingInterval > 0 && c.hub.cfg.PingTimeout > 0 {
		readTimeout = c.hub.cfg.PingInterval + c.hub.cfg.PingTimeout
	}
	c.conn.SetReadLimit(defaultReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in inboundMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendError("", "BAD_REQUEST", "malformed event envelope", nil)
			continue
		}
		c.hub.dispatch(c, in)
	}
}

func (c *Connection) writePump() {
	pingPeriod := defaultPingPeriod
	if c.hub.cfg.PingInterval > 0 {
		pingPeriod = c.hub.cfg.PingInterval
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) sendError(sessionID, code, msg string, details interface{}) {
	body, err := json.Marshal(outboundMessage{
		Event: string(events.ErrorEvent),
		Data:  events.ErrorPayload{Error: msg, Code: code, Details: details},
	})
	if err != nil {
		return
	}
	c.trySend(body)
}
