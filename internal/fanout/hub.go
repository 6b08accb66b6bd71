// Package fanout implements the Fan-out layer (C5): a namespaced,
// authenticated, duplex channel endpoint with per-session rooms, presence
// tracking, and per-client rate limiting (spec §4.5). The connection
// bookkeeping here follows the teacher pack's gorilla/websocket hub
// pattern (mbd888-alancoin/internal/realtime/hub.go): a single Hub
// goroutine owns the room maps, clients talk to it over channels, and
// each client runs its own read/write pump goroutines.
package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-reservation/internal/coordinator"
	"github.com/iliyamo/cinema-seat-reservation/internal/events"
	"github.com/iliyamo/cinema-seat-reservation/internal/holdstore"
	"github.com/iliyamo/cinema-seat-reservation/internal/repository"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every connection this worker holds and every room (session)
// those connections have joined. Only the Hub goroutine mutates rooms; all
// other access goes through its channels, matching the teacher's
// single-writer pattern.
type Hub struct {
	coordinator *coordinator.Coordinator
	sessions    *repository.SessionRepo
	seats       *repository.SeatRepo
	holds       *holdstore.Store
	log         *zap.Logger
	cfg         Config
	workerID    string

	rooms      map[string]map[*Connection]bool
	roomStops  map[string]func()
	register   chan roomJoin
	unregister chan roomLeave
	broadcast  chan events.Envelope
	done       chan struct{}
	mu         sync.RWMutex
}

// Config carries the fan-out layer's tunables (spec §6).
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type roomJoin struct {
	sessionID string
	conn      *Connection
}

type roomLeave struct {
	sessionID string
	conn      *Connection
}

// NewHub constructs a Hub. Call Run in its own goroutine before serving
// any WebSocket upgrades.
func NewHub(coord *coordinator.Coordinator, sessions *repository.SessionRepo, seats *repository.SeatRepo, holds *holdstore.Store, log *zap.Logger, cfg Config) *Hub {
	return &Hub{
		coordinator: coord,
		sessions:    sessions,
		seats:       seats,
		holds:       holds,
		log:         log,
		cfg:         cfg,
		workerID:    uuid.NewString(),
		rooms:       make(map[string]map[*Connection]bool),
		roomStops:   make(map[string]func()),
		register:    make(chan roomJoin),
		unregister:  make(chan roomLeave),
		broadcast:   make(chan events.Envelope, 256),
		done:        make(chan struct{}),
	}
}

// SetCoordinator wires the Coordinator this Hub dispatches client actions
// to. Hub and Coordinator have a mutual dependency — the Coordinator
// publishes through the Hub, the Hub calls back into it for client-driven
// actions — so construction is two steps: NewHub, then SetCoordinator once
// the Coordinator exists. Must be called before Run/ServeHTTP.
func (h *Hub) SetCoordinator(coord *coordinator.Coordinator) {
	h.coordinator = coord
}

// joinSession registers conn into sessionID's room. It blocks until the
// Hub goroutine has processed the join, so callers can safely send a
// session_state snapshot immediately afterward knowing presence accounting
// is consistent.
func (h *Hub) joinSession(conn *Connection, sessionID string) {
	h.register <- roomJoin{sessionID: sessionID, conn: conn}
}

// leaveSession unregisters conn from sessionID's room.
func (h *Hub) leaveSession(conn *Connection, sessionID string) {
	h.unregister <- roomLeave{sessionID: sessionID, conn: conn}
}

// Run is the Hub's single-writer event loop.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.rooms {
				for c := range conns {
					close(c.send)
				}
			}
			for _, stop := range h.roomStops {
				stop()
			}
			h.rooms = make(map[string]map[*Connection]bool)
			h.roomStops = make(map[string]func())
			h.mu.Unlock()
			return

		case j := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[j.sessionID]
			if !ok {
				room = make(map[*Connection]bool)
				h.rooms[j.sessionID] = room
				h.roomStops[j.sessionID] = h.subscribeRoom(j.sessionID)
			}
			room[j.conn] = true
			h.mu.Unlock()

		case l := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[l.sessionID]; ok {
				delete(room, l.conn)
				if len(room) == 0 {
					delete(h.rooms, l.sessionID)
					if stop, ok := h.roomStops[l.sessionID]; ok {
						stop()
						delete(h.roomStops, l.sessionID)
					}
				}
			}
			h.mu.Unlock()

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// Publish implements events.Publisher. Coordinator/Expiration/Payment call
// this; it is non-blocking from their perspective (buffered channel) so a
// slow fan-out never stalls a catalog transaction.
func (h *Hub) Publish(e events.Envelope) {
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn("fanout broadcast channel full, dropping event", zap.String("sessionId", e.SessionID), zap.String("type", string(e.Type)))
	}
	go h.publishRemote(e)
}

func (h *Hub) deliver(env events.Envelope) {
	h.mu.RLock()
	room := h.rooms[env.SessionID]
	conns := make([]*Connection, 0, len(room))
	for c := range room {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	body, err := json.Marshal(outboundMessage{Event: string(env.Type), Data: env.Payload, Tag: audienceTag(env.Audience, "")})
	if err != nil {
		h.log.Error("marshal outbound event failed", zap.Error(err))
		return
	}
	selfBody, _ := json.Marshal(outboundMessage{Event: string(env.Type), Data: env.Payload, Tag: "you"})

	for _, c := range conns {
		switch env.Audience {
		case events.AudienceSelf:
			if c.id == env.OriginConn {
				c.trySend(selfBody)
			}
		case events.AudienceOthers:
			if c.id != env.OriginConn {
				c.trySend(body)
			}
		default: // AudienceRoom
			c.trySend(body)
		}
	}
}

func audienceTag(a events.Audience, fallback string) string {
	switch a {
	case events.AudienceOthers:
		return "another_user"
	case events.AudienceSelf:
		return "you"
	default:
		return fallback
	}
}

// outboundMessage is the wire shape for every server→client event.
type outboundMessage struct {
	Event string      `json:"event"`
	Tag   string      `json:"tag,omitempty"`
	Data  interface{} `json:"data"`
}

// ViewerCount returns the live presence count for a session, combining
// this worker's local room size is not enough across a multi-worker
// deployment, so it defers to the Hold store's presence set (spec §4.2
// "presence"), which every worker writes to on join/leave.
func (h *Hub) ViewerCount(ctx context.Context, sessionID string) int64 {
	n, err := h.holds.SetCardinality(ctx, holdstore.PresenceKey(sessionID))
	if err != nil {
		return 0
	}
	return n
}

// ServeHTTP upgrades an HTTP request to a WebSocket connection and starts
// the connection's read/write pumps. Authentication happens before this is
// called (handler layer); userID/email/role are already known.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, userID, email, role string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConnection(h, conn, userID, email, role)
	go c.writePump()
	go c.readPump()
}
