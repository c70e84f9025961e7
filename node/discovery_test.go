package node

import (
	"testing"
	"time"
)

func newTestDiscovery() *Discovery {
	local := PeerRecord{ID: "user-local", Name: "local-host", IP: "127.0.0.1"}
	return NewDiscovery(local, NewBus())
}

func TestDiscoveryUpsertAndListPeers(t *testing.T) {
	d := newTestDiscovery()

	d.mu.Lock()
	d.peers["user-a"] = PeerRecord{ID: "user-a", Name: "a", IP: "10.0.0.2", LastSeen: time.Now()}
	d.mu.Unlock()

	peers := d.ListPeers()
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}

	got, ok := d.GetPeer("user-a")
	if !ok {
		t.Fatal("expected GetPeer to find user-a")
	}
	if got.IP != "10.0.0.2" {
		t.Errorf("expected IP 10.0.0.2, got %s", got.IP)
	}

	if _, ok := d.GetPeer("user-missing"); ok {
		t.Error("did not expect GetPeer to find an unregistered peer")
	}
}

func TestDiscoveryCleanupStaleEvictsOldEntries(t *testing.T) {
	d := newTestDiscovery()

	d.mu.Lock()
	d.peers["user-fresh"] = PeerRecord{ID: "user-fresh", LastSeen: time.Now()}
	d.peers["user-stale"] = PeerRecord{ID: "user-stale", LastSeen: time.Now().Add(-peerTimeout - time.Second)}
	d.mu.Unlock()

	d.cleanupStale()

	if _, ok := d.GetPeer("user-stale"); ok {
		t.Error("expected stale peer to be evicted")
	}
	if _, ok := d.GetPeer("user-fresh"); !ok {
		t.Error("expected fresh peer to survive cleanup")
	}
}

func TestDiscoveryCleanupStaleNoopWhenNothingExpired(t *testing.T) {
	d := newTestDiscovery()

	d.mu.Lock()
	d.peers["user-fresh"] = PeerRecord{ID: "user-fresh", LastSeen: time.Now()}
	d.mu.Unlock()

	d.cleanupStale()

	if len(d.ListPeers()) != 1 {
		t.Error("expected cleanup to leave the single fresh peer untouched")
	}
}

func TestDiscoveryRefreshFailsWhenNotRunning(t *testing.T) {
	d := newTestDiscovery()

	err := d.Refresh()
	if err == nil {
		t.Fatal("expected Refresh to fail before Start is called")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindDiscoveryError {
		t.Errorf("expected KindDiscoveryError, got %v (ok=%v)", kind, ok)
	}
}

func TestDiscoveryStopIsIdempotentWhenNeverStarted(t *testing.T) {
	d := newTestDiscovery()
	if err := d.Stop(); err != nil {
		t.Errorf("expected Stop on a never-started Discovery to be a no-op, got %v", err)
	}
}

func TestDiscoveryInstanceName(t *testing.T) {
	d := newTestDiscovery()
	want := "ip-chat-user-local"
	if got := d.instanceName(); got != want {
		t.Errorf("instanceName() = %q, want %q", got, want)
	}
}
