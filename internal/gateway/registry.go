package gateway

import "sync"

// Registry maps device auth tokens to their live connections. It is the only
// shared mutable structure in the gateway besides the hub's client set, and
// the single mutex keeps register/lookup/unregister atomic with respect to
// each other.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty device connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register installs conn as the live connection for its token and returns the
// connection it displaced, if any. Last writer wins: the caller is expected to
// close the displaced connection.
func (r *Registry) Register(conn *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[conn.token]
	r.conns[conn.token] = conn
	return prev
}

// Lookup returns the live connection for a token, if one exists.
func (r *Registry) Lookup(token string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[token]
	return conn, ok
}

// Unregister removes the token's registry entry, but only if the slot still
// holds conn. A stale connection unregistering after being evicted must not
// tear down its replacement.
func (r *Registry) Unregister(conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[conn.token]; ok && current == conn {
		delete(r.conns, conn.token)
		return true
	}
	return false
}

// Count returns the number of registered device connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// MaskToken redacts a device token for logging. Raw tokens never appear in
// log output.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
