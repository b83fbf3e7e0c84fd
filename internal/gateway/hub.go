package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"devicehub-backend/internal/model"
)

// Event types pushed to subscribed clients.
const (
	EventPinUpdate          = "virtual_pin_update"
	EventDeviceConnected    = "device_connected"
	EventDeviceDisconnected = "device_disconnected"
	EventDeviceEvent        = "device_event"
)

// Event is one message fanned out to client connections.
type Event struct {
	Type      string            `json:"type"`
	DeviceID  int64             `json:"deviceId"`
	Pin       *int              `json:"pin,omitempty"`
	Value     string            `json:"value,omitempty"`
	DataType  model.PinDataType `json:"dataType,omitempty"`
	EventCode string            `json:"eventCode,omitempty"`
	Data      string            `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub fans out events to subscribed client connections. Subscription state
// lives on each connection; the hub just iterates and filters.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Conn]struct{}
}

// NewHub creates an empty broadcast hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Conn]struct{})}
}

// Add registers a client connection with the hub.
func (h *Hub) Add(conn *Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
}

// Remove drops a client connection from the hub.
func (h *Hub) Remove(conn *Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

// ClientCount returns the number of connected client sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers event to every subscribed client. A scopeDeviceID > 0
// restricts delivery to connections subscribed to that device; zero means all
// client connections. Delivery is best-effort and non-blocking per client: a
// slow subscriber drops its own oldest backlog and never stalls the rest.
func (h *Hub) Broadcast(event Event, scopeDeviceID int64) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal broadcast event %q: %v", event.Type, err)
		return
	}

	// Snapshot under the lock, deliver outside it.
	h.mu.RLock()
	clients := make([]*Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if scopeDeviceID != 0 && conn.subscription() != scopeDeviceID {
			continue
		}
		conn.enqueue(data)
	}
}

// CloseAll tears down every client connection. Called on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
