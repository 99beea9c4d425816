// Package rooms manages named broadcast rooms and per-connection outbound
// channels. Every connection joins a personal room after its join handshake
// and may join group rooms while the client has that conversation open.
package rooms

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

// Broadcaster publishes fire-and-forget events to rooms. It is constructed
// once at process start and injected into every component that pushes
// events; there is no global socket handle.
type Broadcaster interface {
	Publish(room string, event string, payload any)
	Broadcast(event string, payload any)
}

func UserRoom(userID string) string {
	return "user:" + userID
}

func GroupRoom(groupID string) string {
	return "group:" + groupID
}

const sendBuffer = 100

type connection struct {
	id     string
	userID string
	send   chan models.ServerEvent
	rooms  map[string]bool
}

type Router struct {
	mu    sync.RWMutex
	conns map[string]*connection
	rooms map[string]map[string]*connection
}

func NewRouter() *Router {
	return &Router{
		conns: make(map[string]*connection),
		rooms: make(map[string]map[string]*connection),
	}
}

// Connect registers a transport connection and returns its outbound event
// channel. The connection is in no rooms until it joins them; the channel is
// closed by Disconnect.
func (r *Router) Connect(connID string) <-chan models.ServerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &connection{
		id:    connID,
		send:  make(chan models.ServerEvent, sendBuffer),
		rooms: make(map[string]bool),
	}
	r.conns[connID] = c
	return c.send
}

// Disconnect removes the connection from every room and closes its channel.
// Room membership is not durable: a reconnecting client starts from scratch.
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	for room := range c.rooms {
		r.leaveLocked(c, room)
	}
	close(c.send)
	delete(r.conns, connID)
}

// JoinPersonal puts the connection into the user's personal room. Idempotent;
// required before any push-delivery guarantee applies to the connection.
func (r *Router) JoinPersonal(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	c.userID = userID
	r.joinLocked(c, UserRoom(userID))
}

// JoinGroup is client-driven and deliberately does not re-validate group
// membership; the REST layer enforces membership before any persisted
// history is returned. A rogue join only exposes live events.
func (r *Router) JoinGroup(connID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		r.joinLocked(c, GroupRoom(groupID))
	}
}

func (r *Router) LeaveGroup(connID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		r.leaveLocked(c, GroupRoom(groupID))
	}
}

func (r *Router) joinLocked(c *connection, room string) {
	if c.rooms[room] {
		return
	}
	c.rooms[room] = true
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*connection)
		r.rooms[room] = members
	}
	members[c.id] = c
}

func (r *Router) leaveLocked(c *connection, room string) {
	delete(c.rooms, room)
	if members, ok := r.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// UserConnected reports whether the user has at least one connection in
// their personal room.
func (r *Router) UserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[UserRoom(userID)]) > 0
}

// Publish delivers an event to every connection in the room. Delivery is
// best-effort: a connection with a full buffer drops the event rather than
// blocking the publisher.
func (r *Router) Publish(room string, event string, payload any) {
	ev, err := encodeEvent(event, payload)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rooms[room] {
		deliver(c, ev)
	}
}

// Broadcast delivers an event to every connection regardless of rooms.
// Presence transitions use this global fan-out.
func (r *Router) Broadcast(event string, payload any) {
	ev, err := encodeEvent(event, payload)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		deliver(c, ev)
	}
}

func encodeEvent(event string, payload any) (models.ServerEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.ServerEvent{}, err
	}
	return models.ServerEvent{Event: event, Payload: data}, nil
}

func deliver(c *connection, ev models.ServerEvent) {
	select {
	case c.send <- ev:
	default:
		slog.Warn("dropping event for slow connection", "conn_id", c.id, "user_id", c.userID, "event", ev.Event)
	}
}
