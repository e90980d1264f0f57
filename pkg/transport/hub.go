// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/models"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// EventHandler receives every decoded event. It is called from the reading goroutine of the connection.
type EventHandler interface {
	HandleEvent(scope *envelope.Scope, event Event)
}

type client struct {
	connID string
	conn   *websocket.Conn
	send   chan []byte
	// closed is guarded by Hub.mu, send is only closed while holding it for writing.
	closed bool
}

func (c *client) close() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub owns the websocket connections and the game each one is subscribed to.
type Hub struct {
	handler  EventHandler
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	clients   map[string]*client
	sessions  map[string]map[string]struct{}
	sessionOf map[string]string
}

func NewHub(handler EventHandler) *Hub {
	return &Hub{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[string]*client),
		sessions:  make(map[string]map[string]struct{}),
		sessionOf: make(map[string]string),
	}
}

// SetHandler replaces the event handler. It must be called before the hub serves connections.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Subscribe routes the tick packets of the game to the connection, replacing any previous subscription.
func (h *Hub) Subscribe(connID, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(connID)
	members, ok := h.sessions[gameID]
	if !ok {
		members = make(map[string]struct{})
		h.sessions[gameID] = members
	}
	members[connID] = struct{}{}
	h.sessionOf[connID] = gameID
}

func (h *Hub) Unsubscribe(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(connID)
}

func (h *Hub) unsubscribeLocked(connID string) {
	gameID, ok := h.sessionOf[connID]
	if !ok {
		return
	}
	delete(h.sessionOf, connID)
	members := h.sessions[gameID]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.sessions, gameID)
	}
}

// SessionOf returns the game the connection is subscribed to.
func (h *Hub) SessionOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	gameID, ok := h.sessionOf[connID]
	return gameID, ok
}

// EmitToSession sends the packets to every connection subscribed to the game.
func (h *Hub) EmitToSession(gameID string, packets []models.TickPacket) {
	if len(packets) == 0 {
		return
	}
	frame, err := json.Marshal(Message{Type: MessageTick, Payload: TickMessage{GameID: gameID, Packets: packets}})
	if err != nil {
		logrus.Errorf("unable to encode tick message of game %s: %v", gameID, err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.sessions[gameID]))
	for connID := range h.sessions[gameID] {
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, frame)
	}
}

// EmitToConnection sends one message to a single connection.
func (h *Hub) EmitToConnection(connID string, msg interface{}) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("unable to encode message for connection %s: %v", connID, err)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.enqueue(c, frame)
}

// enqueue never blocks the caller. A client that cannot keep up is disconnected.
func (h *Hub) enqueue(c *client, frame []byte) {
	h.mu.RLock()
	if c.closed {
		h.mu.RUnlock()
		return
	}
	var full bool
	select {
	case c.send <- frame:
	default:
		full = true
	}
	h.mu.RUnlock()

	if full {
		logrus.Warnf("send buffer of connection %s is full, disconnecting", c.connID)
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.connID] = c
}

func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.connID]; !ok || current != c {
		return false
	}
	delete(h.clients, c.connID)
	h.unsubscribeLocked(c.connID)
	c.close()
	return true
}

// NumConnections returns the number of open connections.
func (h *Hub) NumConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		connID: utils.GenerateUUID(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
	h.register(c)

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	scope := envelope.NewRootScope(ctx, "transport.Connection", "")
	defer scope.Finish()
	scope.SetAttributes(envelope.ConnectionTag, c.connID)
	scope.Log = scope.Log.WithField("connID", c.connID)
	scope.Log.Info("connection opened")

	go h.writePump(c)
	h.EmitToConnection(c.connID, Message{Type: MessageWelcome, Payload: map[string]string{"connId": c.connID}})

	h.readPump(scope, c)

	if h.unregister(c) {
		scope.Log.Info("connection closed")
	}
	if h.handler != nil {
		h.handler.HandleEvent(scope, NewDisconnectEvent(c.connID))
	}
}

func (h *Hub) readPump(scope *envelope.Scope, c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				scope.Log.Warnf("unexpected close: %v", err)
			}
			return
		}

		event, err := Decode(c.connID, payload)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				scope.Log.Debugf("discarding message: %v", err)
			} else {
				scope.Log.Warnf("discarding message: %v", err)
			}
			continue
		}
		if h.handler != nil {
			h.handler.HandleEvent(scope, event)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logrus.Debugf("write to connection %s failed: %v", c.connID, err)
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
