package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"devicehub-backend/config"
	"devicehub-backend/internal/model"
	"devicehub-backend/internal/store"
)

// Notifier receives device connectivity transitions. Implemented by the
// notification worker pool; nil disables push alerts.
type Notifier interface {
	DeviceOnline(deviceID int64)
	DeviceOffline(deviceID int64)
}

// Gateway accepts inbound socket connections from devices and browser
// clients, keeps their read/write loops alive, and owns the registry and the
// broadcast hub. It is constructed explicitly and injected wherever needed;
// there is no process-wide singleton.
type Gateway struct {
	cfg      config.GatewayConfig
	store    store.Store
	registry *Registry
	hub      *Hub
	notifier Notifier
	upgrader websocket.Upgrader
}

// New creates a gateway backed by the given store.
func New(cfg config.GatewayConfig, s store.Store, notifier Notifier) *Gateway {
	return &Gateway{
		cfg:      cfg,
		store:    s,
		registry: NewRegistry(),
		hub:      NewHub(),
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Device firmware sends no Origin header; browser origin
				// policy is enforced upstream.
				return true
			},
		},
	}
}

// Hub exposes the broadcast router to the ingest API.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Registry exposes the device connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Shutdown closes every live connection.
func (g *Gateway) Shutdown() {
	g.hub.CloseAll()
	g.registry.mu.Lock()
	for token, conn := range g.registry.conns {
		conn.Close()
		delete(g.registry.conns, token)
	}
	g.registry.mu.Unlock()
}

// HandleWS upgrades the HTTP connection and identifies the caller: a `token`
// query parameter makes it a device session, anything else a client session.
func (g *Gateway) HandleWS(c *gin.Context) {
	token := c.Query("token")

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	if token != "" {
		g.serveDevice(c.Request.Context(), ws, token, c.ClientIP())
	} else {
		g.serveClient(ws)
	}
}

// serveDevice runs the handshake and the read loop for a device connection.
func (g *Gateway) serveDevice(ctx context.Context, ws *websocket.Conn, token, ip string) {
	device, err := g.store.DeviceByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			err = ErrUnknownToken
		}
		// Unknown tokens are rejected outright: close, no retry, no session.
		log.Printf("handshake rejected for token %s: %v", MaskToken(token), err)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown token"),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}
	if device.Status == model.StatusDisabled {
		log.Printf("handshake rejected for disabled device %d (token %s)", device.ID, MaskToken(token))
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "device disabled"),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}

	conn := newDeviceConn(ws, token, device.ID, g.cfg.SendBufferSize)

	// Last writer wins on the token slot; the displaced socket is closed.
	if prev := g.registry.Register(conn); prev != nil {
		log.Printf("evicting stale connection for device %d (token %s)", device.ID, MaskToken(token))
		prev.Close()
	}

	now := time.Now().UTC()
	if err := g.store.MarkOnline(context.Background(), device.ID, ip, now); err != nil {
		log.Printf("failed to mark device %d online: %v", device.ID, err)
	}
	g.hub.Broadcast(Event{Type: EventDeviceConnected, DeviceID: device.ID}, 0)
	if g.notifier != nil {
		g.notifier.DeviceOnline(device.ID)
	}
	log.Printf("device %d connected (token %s, %d registered)", device.ID, MaskToken(token), g.registry.Count())

	go conn.writePump(g.pingInterval(), g.writeTimeout())
	g.deviceReadLoop(conn)
}

// deviceReadLoop decodes inbound frames and dispatches them sequentially,
// preserving per-connection ordering. It blocks until the connection dies.
func (g *Gateway) deviceReadLoop(conn *Conn) {
	defer g.closeDevice(conn)

	conn.ws.SetReadLimit(int64(g.cfg.MaxMessageBytes))
	deadline := g.pingInterval() + g.pongWait()
	conn.ws.SetReadDeadline(time.Now().Add(deadline))
	conn.ws.SetPongHandler(func(string) error {
		g.touch(conn)
		return conn.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("device %d read error: %v", conn.deviceID, err)
			}
			return
		}
		// Any inbound frame is liveness evidence.
		conn.ws.SetReadDeadline(time.Now().Add(deadline))
		g.touch(conn)
		g.handleDeviceFrame(conn, message)
	}
}

// closeDevice finishes the Closing->Closed transition for a device session.
// The device is marked OFFLINE only if this connection still owns the token
// slot: a replacement connection's status must not be clobbered.
func (g *Gateway) closeDevice(conn *Conn) {
	conn.Close()
	if !g.registry.Unregister(conn) {
		return // evicted by a newer connection; it owns the status now
	}

	if err := g.store.SetDeviceStatus(context.Background(), conn.deviceID, model.StatusOffline); err != nil {
		log.Printf("failed to mark device %d offline: %v", conn.deviceID, err)
	}
	g.hub.Broadcast(Event{Type: EventDeviceDisconnected, DeviceID: conn.deviceID}, 0)
	if g.notifier != nil {
		g.notifier.DeviceOffline(conn.deviceID)
	}
	log.Printf("device %d disconnected (token %s)", conn.deviceID, MaskToken(conn.token))
}

func (g *Gateway) touch(conn *Conn) {
	if err := g.store.TouchDevice(context.Background(), conn.deviceID, time.Now().UTC()); err != nil {
		log.Printf("failed to refresh lastPing for device %d: %v", conn.deviceID, err)
	}
}

// clientMessage is the tagged union of shapes a browser client may send.
// Unknown types get a structured error back, never a dropped connection.
type clientMessage struct {
	Type     string `json:"type"`
	DeviceID int64  `json:"deviceId"`
	Pin      *int   `json:"pin"`
	Value    any    `json:"value"`
}

type clientError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// serveClient runs the read loop for a browser client session.
func (g *Gateway) serveClient(ws *websocket.Conn) {
	conn := newClientConn(ws, uuid.NewString(), g.cfg.SendBufferSize)
	g.hub.Add(conn)
	log.Printf("client %s connected (%d clients)", conn.sessionID, g.hub.ClientCount())

	go conn.writePump(g.pingInterval(), g.writeTimeout())

	defer func() {
		conn.Close()
		g.hub.Remove(conn)
		log.Printf("client %s disconnected (%d clients)", conn.sessionID, g.hub.ClientCount())
	}()

	conn.ws.SetReadLimit(int64(g.cfg.MaxMessageBytes))
	deadline := g.pingInterval() + g.pongWait()
	conn.ws.SetReadDeadline(time.Now().Add(deadline))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		conn.ws.SetReadDeadline(time.Now().Add(deadline))
		g.handleClientMessage(conn, message)
	}
}

// handleClientMessage processes one JSON message from a client session.
func (g *Gateway) handleClientMessage(conn *Conn, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.sendClientError(conn, "invalid JSON message")
		return
	}

	switch msg.Type {
	case "subscribe":
		if msg.DeviceID <= 0 {
			g.sendClientError(conn, "subscribe requires a deviceId")
			return
		}
		conn.subscribe(msg.DeviceID)
	case "virtual_write":
		if msg.DeviceID <= 0 || msg.Pin == nil {
			g.sendClientError(conn, "virtual_write requires deviceId and pin")
			return
		}
		device, err := g.store.DeviceByID(context.Background(), msg.DeviceID)
		if err != nil {
			g.sendClientError(conn, "unknown device")
			return
		}
		if err := g.SendVirtualWrite(device.AuthToken, *msg.Pin, valueString(msg.Value)); err != nil {
			g.sendClientError(conn, "device not connected")
			return
		}
	default:
		g.sendClientError(conn, "unknown message type: "+msg.Type)
	}
}

func (g *Gateway) sendClientError(conn *Conn, message string) {
	data, err := json.Marshal(clientError{Type: "error", Error: message})
	if err != nil {
		return
	}
	conn.enqueue(data)
}

// valueString renders a JSON value the way the wire protocol expects it.
func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

func (g *Gateway) pingInterval() time.Duration {
	return time.Duration(g.cfg.PingIntervalSeconds) * time.Second
}

func (g *Gateway) pongWait() time.Duration {
	return time.Duration(g.cfg.PongTimeoutSeconds) * time.Second
}

func (g *Gateway) writeTimeout() time.Duration {
	return g.pongWait()
}
