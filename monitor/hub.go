// Package monitor streams broadcast-engine events to web clients over
// WebSocket, serving the role of the project's status dashboard.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/user/pulsebeacon/broadcast"
	"github.com/user/pulsebeacon/logger"
)

const logPrefix = "Monitor"

type message struct {
	Type    string             `json:"type"`
	Event   *broadcast.Event   `json:"event,omitempty"`
	Devices []broadcast.Device `json:"devices,omitempty"`
}

// Hub fans engine events out to connected WebSocket clients. Wire it up
// with engine.SetEventHook(hub.HandleEvent) and mount it on an HTTP mux.
type Hub struct {
	engine   *broadcast.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub creates a hub reporting on engine
func NewHub(engine *broadcast.Engine) *Hub {
	return &Hub{
		engine:   engine,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]bool),
	}
}

// HandleEvent pushes one engine event to every connected client, followed by
// the current connected-device roster so dashboards never need to replay
// history. Intended as the engine's event hook.
func (h *Hub) HandleEvent(event broadcast.Event) {
	payload, err := json.Marshal(message{
		Type:    "event",
		Event:   &event,
		Devices: h.engine.ConnectedDevices(),
	})
	if err != nil {
		logger.Error(logPrefix, "Failed to encode event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

// ClientCount returns the number of connected dashboard clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket, sends a device snapshot,
// and keeps the connection registered until the client goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(logPrefix, "WebSocket upgrade failed: %v", err)
		return
	}

	snapshot, err := json.Marshal(message{Type: "snapshot", Devices: h.engine.ConnectedDevices()})
	if err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
			conn.Close()
			return
		}
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	logger.Info(logPrefix, "Dashboard client connected: %s", conn.RemoteAddr())

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		logger.Info(logPrefix, "Dashboard client disconnected: %s", conn.RemoteAddr())
	}()

	// Drain until the client disconnects; inbound messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
