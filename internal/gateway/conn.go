package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// connKind distinguishes the two identities a connection can own.
type connKind int

const (
	kindDevice connKind = iota
	kindClient
)

// Conn is one live socket connection. It owns exactly one identity: a device
// (token + deviceID) or a browser client (sessionID + optional subscription).
// Conns are ephemeral and never persisted.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	kind connKind

	// Device identity.
	token    string
	deviceID int64

	// Client identity.
	sessionID string

	// subscribedDeviceID scopes broadcasts for client connections; 0 means no
	// device-specific subscription. Guarded by mu.
	subscribedDeviceID int64
	mu                 sync.RWMutex

	// decodeErrors counts malformed frames dropped on this connection.
	decodeErrors atomic.Uint64

	// writeMu serializes socket writes: the write pump and direct command
	// writes must never interleave on the underlying websocket.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newDeviceConn(ws *websocket.Conn, token string, deviceID int64, sendBuffer int) *Conn {
	return &Conn{
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		kind:     kindDevice,
		token:    token,
		deviceID: deviceID,
		closed:   make(chan struct{}),
	}
}

func newClientConn(ws *websocket.Conn, sessionID string, sendBuffer int) *Conn {
	return &Conn{
		ws:        ws,
		send:      make(chan []byte, sendBuffer),
		kind:      kindClient,
		sessionID: sessionID,
		closed:    make(chan struct{}),
	}
}

// Close tears the connection down exactly once. The read and write pumps both
// funnel through here, as does eviction by a replacement connection.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// subscribe records the client's device subscription on the connection itself;
// the broadcast router holds no separate subscription table.
func (c *Conn) subscribe(deviceID int64) {
	c.mu.Lock()
	c.subscribedDeviceID = deviceID
	c.mu.Unlock()
}

func (c *Conn) subscription() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedDeviceID
}

// enqueue hands data to the write pump without ever blocking the caller. When
// the buffer is full the oldest pending message is dropped to make room: a
// slow client loses its own backlog, never anyone else's delivery.
func (c *Conn) enqueue(data []byte) bool {
	for {
		select {
		case <-c.closed:
			return false
		case c.send <- data:
			return true
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// writePump drains the send queue onto the socket. One per connection; it
// exits when the connection closes, taking the socket down with it.
func (c *Conn) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message, writeTimeout); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, writeTimeout); err != nil {
				return
			}
		}
	}
}

// write performs one serialized socket write.
func (c *Conn) write(messageType int, data []byte, writeTimeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// writeFrame writes an outbound protocol frame directly, bypassing the queue.
// Used by the protocol handler for fire-and-forget command delivery, where the
// caller wants to observe a transport error.
func (c *Conn) writeFrame(data []byte, writeTimeout time.Duration) error {
	if c.Closed() {
		return ErrDeviceNotConnected
	}
	if err := c.write(websocket.BinaryMessage, data, writeTimeout); err != nil {
		return ErrTransportFailed
	}
	return nil
}
