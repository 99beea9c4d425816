package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
)

// RealtimeConfig configures the realtime socket.
type RealtimeConfig struct {
	Token                string
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
}

type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// EventHandler is the generic event callback type.
type EventHandler func(event string, payload json.RawMessage)

type eventDispatcher struct {
	mu                sync.RWMutex
	generic           map[string][]EventHandler
	onNewMessage      []func(models.NewMessagePayload)
	onNewGroupMessage []func(models.NewGroupMessagePayload)
	onReaction        []func(models.ReactionPayload)
	onSeen            []func(models.SeenPayload)
	onTyping          []func(models.TypingPayload, bool)
	onGroupCreated    []func(models.GroupCreatedPayload)
	onPresence        []func(models.PresencePayload)
	onConnected       []func()
	onDisconnected    []func(reason string)
	onReconnecting    []func(attempt int, delay time.Duration)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{
		generic: make(map[string][]EventHandler),
	}
}

func (d *eventDispatcher) dispatch(ev models.ServerEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch ev.Event {
	case models.EventNewMessage:
		var p models.NewMessagePayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onNewMessage {
				go h(p)
			}
		}
	case models.EventNewGroupMessage:
		var p models.NewGroupMessagePayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onNewGroupMessage {
				go h(p)
			}
		}
	case models.EventMessageReaction:
		var p models.ReactionPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onReaction {
				go h(p)
			}
		}
	case models.EventMessageSeen:
		var p models.SeenPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onSeen {
				go h(p)
			}
		}
	case models.EventUserTyping, models.EventUserStoppedTyping:
		var p models.TypingPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			typing := ev.Event == models.EventUserTyping
			for _, h := range d.onTyping {
				go h(p, typing)
			}
		}
	case models.EventGroupCreated:
		var p models.GroupCreatedPayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onGroupCreated {
				go h(p)
			}
		}
	case models.EventUserOnline, models.EventUserOffline:
		var p models.PresencePayload
		if json.Unmarshal(ev.Payload, &p) == nil {
			for _, h := range d.onPresence {
				go h(p)
			}
		}
	}

	for _, h := range d.generic[ev.Event] {
		handler := h // capture
		go handler(ev.Event, ev.Payload)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// Realtime is the websocket client. On every (re)connect it re-runs the join
// handshake and rejoins previously joined group rooms, since the server
// forgets room membership on disconnect.
type Realtime struct {
	baseURL          string
	userID           string
	config           *RealtimeConfig
	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	groups           map[string]bool
	dispatcher       *eventDispatcher
	recon            *reconnector
	cancelFn         context.CancelFunc
}

func NewRealtime(baseURL, userID string, config RealtimeConfig) *Realtime {
	config.defaults()
	return &Realtime{
		baseURL:    baseURL,
		userID:     userID,
		config:     &config,
		state:      StateDisconnected,
		groups:     make(map[string]bool),
		dispatcher: newEventDispatcher(),
		recon:      newReconnector(&config),
	}
}

func (rt *Realtime) OnNewMessage(h func(models.NewMessagePayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onNewMessage = append(rt.dispatcher.onNewMessage, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnNewGroupMessage(h func(models.NewGroupMessagePayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onNewGroupMessage = append(rt.dispatcher.onNewGroupMessage, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnReaction(h func(models.ReactionPayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onReaction = append(rt.dispatcher.onReaction, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnSeen(h func(models.SeenPayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onSeen = append(rt.dispatcher.onSeen, h)
	rt.dispatcher.mu.Unlock()
}

// OnTyping fires for both typing and stopped-typing; the bool reports which.
func (rt *Realtime) OnTyping(h func(models.TypingPayload, bool)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onTyping = append(rt.dispatcher.onTyping, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnGroupCreated(h func(models.GroupCreatedPayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onGroupCreated = append(rt.dispatcher.onGroupCreated, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnPresence(h func(models.PresencePayload)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onPresence = append(rt.dispatcher.onPresence, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnDisconnected(h func(reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onReconnecting = append(rt.dispatcher.onReconnecting, h)
	rt.dispatcher.mu.Unlock()
}

// On registers a generic event handler.
func (rt *Realtime) On(event string, h EventHandler) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.generic[event] = append(rt.dispatcher.generic[event], h)
	rt.dispatcher.mu.Unlock()
}

func (rt *Realtime) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connect dials the socket, runs the join handshake and rejoins any group
// rooms joined before a previous disconnect.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	wsURL := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/api/realtime?token=" + rt.config.Token

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	groups := make([]string, 0, len(rt.groups))
	for g := range rt.groups {
		groups = append(groups, g)
	}
	rt.mu.Unlock()
	rt.recon.markConnected()

	if err := rt.send(models.ClientEvent{Type: models.ClientEventJoin, UserID: rt.userID}); err != nil {
		_ = conn.Close()
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.conn = nil
		rt.mu.Unlock()
		return fmt.Errorf("join handshake: %w", err)
	}
	for _, g := range groups {
		if err := rt.send(models.ClientEvent{Type: models.ClientEventJoinGroup, GroupID: g}); err != nil {
			break
		}
	}

	rt.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.cancelFn = cancel
	rt.mu.Unlock()

	go rt.readLoop(connCtx)
	return nil
}

// Disconnect closes the socket without triggering reconnection.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.dispatcher.emitDisconnected("client disconnect")
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// JoinGroup subscribes to a group's live events and remembers the room for
// rejoin after reconnect.
func (rt *Realtime) JoinGroup(groupID string) error {
	rt.mu.Lock()
	rt.groups[groupID] = true
	rt.mu.Unlock()
	return rt.send(models.ClientEvent{Type: models.ClientEventJoinGroup, GroupID: groupID})
}

func (rt *Realtime) LeaveGroup(groupID string) error {
	rt.mu.Lock()
	delete(rt.groups, groupID)
	rt.mu.Unlock()
	return rt.send(models.ClientEvent{Type: models.ClientEventLeaveGroup, GroupID: groupID})
}

func (rt *Realtime) Typing(conversationID string, isGroup bool) error {
	return rt.send(models.ClientEvent{
		Type:           models.ClientEventTyping,
		ConversationID: conversationID,
		IsGroup:        isGroup,
	})
}

func (rt *Realtime) StopTyping(conversationID string, isGroup bool) error {
	return rt.send(models.ClientEvent{
		Type:           models.ClientEventStopTyping,
		ConversationID: conversationID,
		IsGroup:        isGroup,
	})
}

func (rt *Realtime) send(ev models.ClientEvent) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteJSON(ev)
}

func (rt *Realtime) readLoop(ctx context.Context) {
	for {
		rt.mu.Lock()
		conn := rt.conn
		rt.mu.Unlock()
		if conn == nil {
			return
		}

		var ev models.ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.dispatcher.emitDisconnected(err.Error())
			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect(ctx)
			}
			return
		}

		rt.dispatcher.dispatch(ev)
	}
}

func (rt *Realtime) scheduleReconnect(ctx context.Context) {
	delay := rt.recon.nextDelay()
	rt.mu.Lock()
	rt.state = StateReconnecting
	rt.mu.Unlock()

	rt.dispatcher.emitReconnecting(rt.recon.attempt, delay)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	rt.mu.Lock()
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if err := rt.Connect(ctx); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect(ctx)
		}
	}
}
