// Package connections tracks every connected observer and multiplexes
// snapshot broadcasts to all of them concurrently. The manager is a
// server-wide singleton outliving any single race; it is the sole owner
// of the connection set.
package connections

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tortuga-racing/tortuga/pkg/log"
	"github.com/tortuga-racing/tortuga/pkg/messages"
	"github.com/tortuga-racing/tortuga/pkg/race/types"
)

// Transport is the write half of one observer connection. Implementations
// must be safe for the manager's per-connection serialization, not for
// arbitrary concurrent use.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// TransportError is a single send/receive failure. It is local to one
// connection and never propagates to other connections or the race loop.
type TransportError struct {
	ConnectionID string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on connection %s: %v", e.ConnectionID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Connection is one registered observer.
type Connection struct {
	ID          string
	ConnectedAt time.Time
	// Compressed marks a connection that negotiated zstd frames at
	// handshake time.
	Compressed bool

	transport Transport

	mu           sync.Mutex
	lastActivity time.Time
	sent         int64
	closed       bool
}

// send writes one frame. Sends on a single connection are serialized so a
// cleanup close can never interleave with a half-written frame.
func (c *Connection) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return &TransportError{ConnectionID: c.ID, Err: fmt.Errorf("connection closed")}
	}
	if err := c.transport.WriteMessage(data); err != nil {
		return &TransportError{ConnectionID: c.ID, Err: err}
	}
	c.sent++
	c.lastActivity = time.Now()
	return nil
}

// Touch refreshes the last-activity timestamp, e.g. on a received command.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent successful send or
// received command.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// SentCount returns the number of frames successfully sent.
func (c *Connection) SentCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// close marks the connection closed and closes the transport. It blocks
// until any in-flight send on this connection has completed.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if err := c.transport.Close(); err != nil {
		log.Trace("Failed to close transport for connection %s: %v", c.ID, err)
	}
}

// Manager owns the set of registered connections.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	// broadcastMu serializes broadcasts against each other so snapshot
	// ordering per connection follows tick order.
	broadcastMu sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
	}
}

// Connect registers a freshly accepted transport and returns its handle.
// It never blocks on other connections' state.
func (m *Manager) Connect(transport Transport, compressed bool) *Connection {
	now := time.Now()
	conn := &Connection{
		ID:           uuid.NewString(),
		ConnectedAt:  now,
		Compressed:   compressed,
		transport:    transport,
		lastActivity: now,
	}

	m.mu.Lock()
	m.connections[conn.ID] = conn
	m.mu.Unlock()

	log.Debug("Connection %s registered", conn.ID)
	return conn
}

// Disconnect removes a connection and closes its transport. It is
// idempotent and safe to call concurrently with cleanup and broadcasts;
// it reports whether the connection was still registered.
func (m *Manager) Disconnect(connectionID string) bool {
	m.mu.Lock()
	conn, ok := m.connections[connectionID]
	if ok {
		delete(m.connections, connectionID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	conn.close()
	log.Debug("Connection %s removed", connectionID)
	return true
}

// Get returns a registered connection by ID.
func (m *Manager) Get(connectionID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[connectionID]
	return conn, ok
}

// Count returns the number of registered connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SendTo attempts one send to one connection. A failure is returned, not
// thrown, and the connection is not removed; the caller decides whether
// failure implies disconnection.
func (m *Manager) SendTo(conn *Connection, data []byte) error {
	return conn.send(data)
}

// Broadcast concurrently delivers one payload to every registered
// connection. Failed connections are disconnected only after the fan-out
// completes, so one slow peer cannot delay the others and the iteration
// set stays stable for the whole call. Returns the number of connections
// reached.
func (m *Manager) Broadcast(data []byte) int {
	return m.fanOut(func(*Connection) []byte { return data })
}

// BroadcastSnapshot serializes a snapshot once (plus one zstd frame when
// any connection negotiated compression) and broadcasts it.
func (m *Manager) BroadcastSnapshot(snapshot *types.RaceSnapshot) int {
	plain, err := messages.SerializeSnapshot(snapshot)
	if err != nil {
		log.Error("Failed to serialize snapshot for broadcast: %v", err)
		return 0
	}

	var compressed []byte
	payloadFor := func(conn *Connection) []byte {
		if !conn.Compressed {
			return plain
		}
		if compressed == nil {
			b, err := messages.Compress(plain)
			if err != nil {
				log.Error("Failed to compress snapshot, sending plain: %v", err)
				return plain
			}
			compressed = b
		}
		return compressed
	}

	return m.fanOut(payloadFor)
}

// fanOut runs one serialized broadcast. The compressed payload is built
// before the goroutines start so payloadFor is never called concurrently.
func (m *Manager) fanOut(payloadFor func(*Connection) []byte) int {
	m.broadcastMu.Lock()
	defer m.broadcastMu.Unlock()

	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	payloads := make([][]byte, len(targets))
	for i, conn := range targets {
		payloads[i] = payloadFor(conn)
	}

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	reached := 0
	var failed []string

	for i, conn := range targets {
		wg.Add(1)
		go func(conn *Connection, data []byte) {
			defer wg.Done()
			if err := conn.send(data); err != nil {
				log.Debug("Broadcast send failed: %v", err)
				resultMu.Lock()
				failed = append(failed, conn.ID)
				resultMu.Unlock()
				return
			}
			resultMu.Lock()
			reached++
			resultMu.Unlock()
		}(conn, payloads[i])
	}
	wg.Wait()

	for _, connectionID := range failed {
		m.Disconnect(connectionID)
	}

	return reached
}

// CleanupZombies removes every connection whose last activity is older
// than the timeout and returns the number removed.
func (m *Manager) CleanupZombies(timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)

	m.mu.RLock()
	var stale []string
	for _, conn := range m.connections {
		if conn.LastActivity().Before(cutoff) {
			stale = append(stale, conn.ID)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, connectionID := range stale {
		if m.Disconnect(connectionID) {
			removed++
		}
	}
	return removed
}
