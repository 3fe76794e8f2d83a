// Package realtime keeps the live client sessions of this process and pushes
// events to them.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"social_platform/pkg/logger"
)

// Emitter is what the engines use to push events. Delivery is best effort:
// a user without a live session simply does not receive the event.
type Emitter interface {
	EmitToUser(ctx context.Context, userID uuid.UUID, event string, payload any)
	Broadcast(ctx context.Context, event string, payload any)
}

// Conn is one live transport session. Send must not block.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close(code int, reason string)
}

// Envelope is the wire format of every event frame.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func encode(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Payload: payload})
}

// Gateway is the process-wide registry userID -> live connections. A user
// may hold several connections at once (one per tab).
type Gateway struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]map[string]Conn
	closed bool
	log    logger.Logger
}

func NewGateway(log logger.Logger) *Gateway {
	return &Gateway{
		conns: make(map[uuid.UUID]map[string]Conn),
		log:   log,
	}
}

// Register tracks conn for userID and returns the func that undoes it. The
// caller defers the release so every disconnect path unregisters.
func (g *Gateway) Register(userID uuid.UUID, conn Conn) (release func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		conn.Close(websocket.CloseGoingAway, "server shutting down")
		return func() {}
	}
	set := g.conns[userID]
	if set == nil {
		set = make(map[string]Conn)
		g.conns[userID] = set
	}
	set[conn.ID()] = conn
	total := len(set)
	g.mu.Unlock()

	g.log.Debug("Connection registered", "user_id", userID, "conn_id", conn.ID(), "connections", total)

	var once sync.Once
	return func() {
		once.Do(func() { g.Unregister(userID, conn) })
	}
}

func (g *Gateway) Unregister(userID uuid.UUID, conn Conn) {
	g.mu.Lock()
	set := g.conns[userID]
	if set != nil {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(g.conns, userID)
		}
	}
	g.mu.Unlock()

	g.log.Debug("Connection unregistered", "user_id", userID, "conn_id", conn.ID())
}

func (g *Gateway) IsOnline(userID uuid.UUID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns[userID]) > 0
}

// Connections returns how many live connections userID has.
func (g *Gateway) Connections(userID uuid.UUID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns[userID])
}

func (g *Gateway) EmitToUser(_ context.Context, userID uuid.UUID, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		g.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	g.deliverToUser(userID, frame)
}

func (g *Gateway) Broadcast(_ context.Context, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		g.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	g.deliverToAll(frame)
}

// deliverToUser sends frame to every connection of userID and returns how
// many accepted it. Sends happen under the read lock, so an emit never sees
// a connection halfway through removal.
func (g *Gateway) deliverToUser(userID uuid.UUID, frame []byte) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	delivered := 0
	for _, conn := range g.conns[userID] {
		if err := conn.Send(frame); err != nil {
			g.log.Warn("Dropped event for slow connection", "user_id", userID, "conn_id", conn.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (g *Gateway) deliverToAll(frame []byte) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	delivered := 0
	for _, set := range g.conns {
		for _, conn := range set {
			if err := conn.Send(frame); err == nil {
				delivered++
			}
		}
	}
	return delivered
}

// Close disconnects every session and refuses new registrations.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]Conn, 0)
	for _, set := range g.conns {
		for _, conn := range set {
			conns = append(conns, conn)
		}
	}
	g.conns = make(map[uuid.UUID]map[string]Conn)
	g.closed = true
	g.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	}
	g.log.Info("Realtime gateway closed", "connections", len(conns))
}
