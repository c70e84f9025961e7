package node

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

// listenLoopback starts a raw TCP listener on an ephemeral port and returns
// its address alongside the listener itself.
func listenLoopback(t *testing.T) (string, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln.Addr().String(), ln
}

func TestConnectionManagerSendMessageDeliversEnvelope(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	addr, ln := listenLoopback(t)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		line, _ := reader.ReadBytes('\n')
		received <- line
	}()

	bus := NewBus()
	mgr := NewConnectionManager("user-local", bus)

	msg := Message{ID: "m1", SenderID: "user-local", RecipientID: "user-remote", Content: "hi"}
	if err := mgr.SendMessage("user-remote", msg, host, port); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case line := <-received:
		typ, err := envelopeType(line)
		if err != nil {
			t.Fatalf("envelopeType: %v", err)
		}
		if typ != envelopeMessage {
			t.Errorf("expected envelope type %q, got %q", envelopeMessage, typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message to arrive")
	}
}

func TestConnectionManagerSendMessageFailsOnUnreachablePeer(t *testing.T) {
	bus := NewBus()
	mgr := NewConnectionManager("user-local", bus)

	msg := Message{ID: "m1", SenderID: "user-local", RecipientID: "user-remote", Content: "hi"}
	err := mgr.SendMessage("user-remote", msg, "127.0.0.1", 1)
	if err == nil {
		t.Fatal("expected SendMessage to fail dialing an unreachable port")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindNetworkError {
		t.Errorf("expected KindNetworkError, got %v (ok=%v)", kind, ok)
	}
}

func TestPeerConnIdleAndActive(t *testing.T) {
	c := &peerConn{active: true, lastActivity: time.Now()}
	if c.isIdle() {
		t.Error("freshly touched connection should not be idle")
	}
	if !c.isActive() {
		t.Error("expected connection to be active")
	}

	c.setInactive()
	if c.isActive() {
		t.Error("expected connection to be inactive after setInactive")
	}

	c.lastActivity = time.Now().Add(-idleTimeout - time.Second)
	if !c.isIdle() {
		t.Error("expected connection past idleTimeout to be idle")
	}
}

func TestConnectionManagerSweepPrunesIdleConnections(t *testing.T) {
	bus := NewBus()
	mgr := NewConnectionManager("user-local", bus)

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := &peerConn{conn: client, peerID: "user-stale", active: true, lastActivity: time.Now().Add(-idleTimeout - time.Second)}
	mgr.mu.Lock()
	mgr.conns["user-stale"] = c
	mgr.mu.Unlock()

	mgr.sweep()

	mgr.mu.Lock()
	_, ok := mgr.conns["user-stale"]
	mgr.mu.Unlock()
	if ok {
		t.Error("expected sweep to prune the idle connection")
	}

	if _, err := client.Write([]byte("x")); err != io.ErrClosedPipe {
		t.Errorf("expected the pruned connection's underlying conn to be closed, write returned %v", err)
	}
}
