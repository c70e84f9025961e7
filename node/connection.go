package node

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

const (
	connectTimeout  = 10 * time.Second
	readTimeout     = 30 * time.Second
	writeTimeout    = 10 * time.Second
	heartbeatWrite  = 5 * time.Second
	idleTimeout     = 300 * time.Second
	heartbeatPeriod = 30 * time.Second
)

// peerConn is a cached outbound session to one peer. Its stream and
// activity fields are guarded individually so two peers can be serviced
// concurrently while the manager's map lock is only ever held briefly.
type peerConn struct {
	mu           sync.Mutex
	conn         net.Conn
	peerID       PeerID
	addr         string
	lastActivity time.Time
	active       bool
}

func (c *peerConn) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *peerConn) isIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity) >= idleTimeout
}

func (c *peerConn) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *peerConn) setInactive() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

// ConnectionManager owns the mapping of peer-id to cached outbound TCP
// session, the heartbeat sweeper, and the inbound dispatch loop for the
// chat socket. Grounded directly on connection_manager.rs.
type ConnectionManager struct {
	local PeerID
	bus   *Bus
	chat  *ChatChannel

	mu    sync.Mutex
	conns map[PeerID]*peerConn

	shutdownCh chan struct{}
	doneCh     chan struct{}
}

// NewConnectionManager constructs a manager for the given local peer-id.
// The chat channel is wired in after construction (see AttachChat, called
// from NewApp) since
// the two components need references to each other for inbound dispatch.
func NewConnectionManager(local PeerID, bus *Bus) *ConnectionManager {
	return &ConnectionManager{
		local:      local,
		bus:        bus,
		conns:      make(map[PeerID]*peerConn),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// AttachChat wires the chat channel used to route received messages.
func (m *ConnectionManager) AttachChat(chat *ChatChannel) {
	m.chat = chat
}

// StartHeartbeat launches the background sweep goroutine.
func (m *ConnectionManager) StartHeartbeat() {
	go m.heartbeatLoop()
}

// Shutdown signals the heartbeat loop to stop and closes every cached
// connection.
func (m *ConnectionManager) Shutdown() {
	close(m.shutdownCh)
	<-m.doneCh

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.conns {
		c.mu.Lock()
		c.conn.Close()
		c.mu.Unlock()
		delete(m.conns, id)
	}
}

// getOrCreate returns a cached, active, non-idle connection to peerID, or
// dials a fresh one with a 10s timeout.
func (m *ConnectionManager) getOrCreate(peerID PeerID, ip string, port int) (*peerConn, error) {
	m.mu.Lock()
	if c, ok := m.conns[peerID]; ok && c.isActive() && !c.isIdle() {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", ip, port)
	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, errNetwork(err, "dial %s", addr)
	}

	c := &peerConn{
		conn:         conn,
		peerID:       peerID,
		addr:         addr,
		lastActivity: time.Now(),
		active:       true,
	}

	m.mu.Lock()
	m.conns[peerID] = c
	m.mu.Unlock()

	return c, nil
}

// SendMessage writes a framed message envelope to peerID, dialing a fresh
// session if needed. Any write failure removes the connection from the
// cache and returns a network error; callers must not retry transparently.
func (m *ConnectionManager) SendMessage(peerID PeerID, msg Message, ip string, port int) error {
	c, err := m.getOrCreate(peerID, ip, port)
	if err != nil {
		return err
	}

	raw, err := marshalMessageEnvelope(msg)
	if err != nil {
		return errSerialization(err, "marshal message envelope")
	}

	if err := m.writeFramed(c, raw, writeTimeout); err != nil {
		m.removeConn(peerID, c)
		return errNetwork(err, "send message to %s", peerID)
	}

	c.touch()
	return nil
}

func (m *ConnectionManager) writeFramed(c *peerConn, raw []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	raw = append(raw, '\n')
	if _, err := c.conn.Write(raw); err != nil {
		return err
	}
	return nil
}

func (m *ConnectionManager) removeConn(peerID PeerID, c *peerConn) {
	c.setInactive()
	c.mu.Lock()
	c.conn.Close()
	c.mu.Unlock()

	m.mu.Lock()
	if existing, ok := m.conns[peerID]; ok && existing == c {
		delete(m.conns, peerID)
	}
	m.mu.Unlock()
}

// heartbeatLoop fires every 30s: any inactive or idle (>300s) connection
// is pruned; everything else gets a heartbeat write under a 5s timeout.
func (m *ConnectionManager) heartbeatLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.shutdownCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *ConnectionManager) sweep() {
	m.mu.Lock()
	snapshot := make(map[PeerID]*peerConn, len(m.conns))
	for id, c := range m.conns {
		snapshot[id] = c
	}
	m.mu.Unlock()

	var toRemove []PeerID
	for id, c := range snapshot {
		if !c.isActive() || c.isIdle() {
			toRemove = append(toRemove, id)
			continue
		}

		raw, err := marshalHeartbeat()
		if err != nil {
			toRemove = append(toRemove, id)
			continue
		}
		if err := m.writeFramed(c, raw, heartbeatWrite); err != nil {
			log.Printf("connection: heartbeat to %s failed: %v", id, err)
			toRemove = append(toRemove, id)
			continue
		}
		c.touch()
	}

	if len(toRemove) > 0 {
		m.mu.Lock()
		for _, id := range toRemove {
			if c, ok := m.conns[id]; ok {
				c.setInactive()
				c.mu.Lock()
				c.conn.Close()
				c.mu.Unlock()
				delete(m.conns, id)
			}
		}
		m.mu.Unlock()
	}
}

// HandleIncoming runs the read/dispatch loop for an accepted chat socket.
// It is invoked by the Chat Channel's listener for every accepted stream.
func (m *ConnectionManager) HandleIncoming(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		line, err := reader.ReadBytes('\n')
		if len(line) == 0 {
			return
		}
		if err != nil && len(line) == 0 {
			return
		}

		typ, err := envelopeType(line)
		if err != nil {
			log.Printf("connection: failed to decode envelope: %v", err)
			continue
		}

		switch typ {
		case envelopeHeartbeat:
			resp, err := marshalHeartbeatResponse()
			if err != nil {
				continue
			}
			resp = append(resp, '\n')
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.Write(resp)
		case envelopeHeartbeatResponse:
			log.Printf("connection: heartbeat_response received")
		case envelopeMessage:
			msg, err := decodeMessageEnvelope(line)
			if err != nil {
				log.Printf("connection: failed to decode message: %v", err)
				continue
			}
			if msg.RecipientID == m.local && m.chat != nil {
				m.chat.handleReceived(msg)
			}
		default:
			log.Printf("connection: unknown envelope type %q", typ)
		}

		if err != nil {
			return
		}
	}
}
