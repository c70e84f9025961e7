package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/zeroconf/v2"
)

const (
	mdnsServiceType   = "_ip-chat._tcp"
	mdnsDomain        = "local."
	discoveryInterval = 30 * time.Second
	peerTimeout       = 600 * time.Second
	browseRoundWindow = 5 * time.Second
)

// Discovery advertises the local user on the LAN and maintains the peer
// directory by browsing for the same service type. It is the Go-native
// replacement for the mdns_sd-crate-backed NetworkDiscovery in the
// original implementation, rebuilt directly on top of zeroconf/v2 instead
// of a libp2p host.
type Discovery struct {
	local PeerRecord
	bus   *Bus

	mu      sync.Mutex
	peers   map[PeerID]PeerRecord
	running bool
	server  *zeroconf.Server

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDiscovery constructs a Discovery for the given local identity.
func NewDiscovery(local PeerRecord, bus *Bus) *Discovery {
	return &Discovery{
		local: local,
		bus:   bus,
		peers: make(map[PeerID]PeerRecord),
	}
}

// instanceName is the mDNS instance name advertised for this node.
func (d *Discovery) instanceName() string {
	return fmt.Sprintf("ip-chat-%s", d.local.ID)
}

// Start registers the local service and begins browsing for peers. It
// fails if discovery is already running.
func (d *Discovery) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errDiscovery("discovery already running")
	}
	d.mu.Unlock()

	server, err := d.registerWithRetry()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	d.mu.Lock()
	d.server = server
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.loop(ctx)

	log.Printf("discovery: started, advertising %s on port 8765", d.instanceName())
	return nil
}

// registerWithRetry attempts to create the mDNS advertisement up to three
// times with linear backoff (1s, 2s), matching the spec's retry budget
// for daemon-creation failures.
func (d *Discovery) registerWithRetry() (*zeroconf.Server, error) {
	txt, err := d.userTXT()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		server, err := zeroconf.Register(d.instanceName(), mdnsServiceType, mdnsDomain, 8765, txt, nil)
		if err == nil {
			return server, nil
		}
		lastErr = err
		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	return nil, errMdns(lastErr, "failed to register mDNS service after 3 attempts")
}

func (d *Discovery) userTXT() ([]string, error) {
	data, err := json.Marshal(d.local)
	if err != nil {
		return nil, errSerialization(err, "marshal local user record")
	}
	return []string{"user=" + string(data)}, nil
}

// loop runs a browse round at start and then, every 30s, a cleanup sweep
// followed by another browse round, until the context is cancelled.
// Refresh and Stop also write the directory from their callers' goroutines.
func (d *Discovery) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	d.runBrowseRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanupStale()
			d.runBrowseRound(ctx)
		}
	}
}

// runBrowseRound runs one bounded mDNS browse and upserts discovered
// peers, mirroring the ServiceResolved handling from the original
// implementation.
func (d *Discovery) runBrowseRound(parent context.Context) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		log.Printf("discovery: failed to create resolver: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(parent, browseRoundWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			d.handleResolved(entry)
		}
	}()

	if err := resolver.Browse(ctx, mdnsServiceType, mdnsDomain, entries); err != nil {
		if parent.Err() == nil {
			log.Printf("discovery: browse round error: %v", err)
		}
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Discovery) handleResolved(entry *zeroconf.ServiceEntry) {
	var userJSON string
	for _, rec := range entry.Text {
		if strings.HasPrefix(rec, "user=") {
			userJSON = strings.TrimPrefix(rec, "user=")
			break
		}
	}
	if userJSON == "" {
		return
	}

	var user PeerRecord
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		log.Printf("discovery: failed to parse TXT user record: %v", err)
		return
	}

	if user.ID == d.local.ID {
		return
	}

	if len(entry.AddrIPv4) > 0 {
		user.IP = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		user.IP = entry.AddrIPv6[0].String()
	}
	user.LastSeen = time.Now()

	d.mu.Lock()
	d.peers[user.ID] = user
	d.mu.Unlock()

	log.Printf("discovery: discovered peer %s at %s", user.ID, user.IP)
	d.bus.Emit(EventPeerDiscovered, user)
}

// cleanupStale drops directory entries older than the 600s peer-timeout.
func (d *Discovery) cleanupStale() {
	d.mu.Lock()
	before := len(d.peers)
	now := time.Now()
	for id, peer := range d.peers {
		if now.Sub(peer.LastSeen) >= peerTimeout {
			delete(d.peers, id)
		}
	}
	after := len(d.peers)
	d.mu.Unlock()

	if before != after {
		log.Printf("discovery: cleaned up %d stale peer(s)", before-after)
		d.bus.Emit(EventPeersUpdated, d.ListPeers())
	}
}

// Stop signals the loop to exit, unregisters the service, and clears the
// directory. Unregister failures are logged, never propagated, matching
// the original's Drop-time behavior.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	cancel := d.cancel
	done := d.done
	server := d.server
	d.server = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if server != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("discovery: warning: unregister panicked: %v", r)
				}
			}()
			server.Shutdown()
		}()
	}

	time.Sleep(100 * time.Millisecond)

	d.mu.Lock()
	d.peers = make(map[PeerID]PeerRecord)
	d.mu.Unlock()

	log.Printf("discovery: stopped")
	return nil
}

// ListPeers returns a snapshot of the current directory.
func (d *Discovery) ListPeers() []PeerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]PeerRecord, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	return out
}

// GetPeer looks up a single directory entry.
func (d *Discovery) GetPeer(id PeerID) (PeerRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	return p, ok
}

// Refresh forces an immediate browse round without tearing down the
// advertisement. Used by the peer-not-found retry path before a chat
// send gives up.
func (d *Discovery) Refresh() error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return errDiscovery("discovery not running")
	}
	d.runBrowseRound(context.Background())
	return nil
}

// BroadcastUserUpdate re-registers the service with an updated display
// name, following the original's unregister/sleep/register sequence.
func (d *Discovery) BroadcastUserUpdate(newName string) error {
	d.mu.Lock()
	running := d.running
	server := d.server
	d.mu.Unlock()

	if !running {
		return errDiscovery("discovery not running")
	}

	if server != nil {
		server.Shutdown()
	}
	time.Sleep(100 * time.Millisecond)

	d.local.Name = newName
	newServer, err := d.registerWithRetry()
	if err != nil {
		return errMdns(err, "failed to update service")
	}

	d.mu.Lock()
	d.server = newServer
	d.mu.Unlock()

	log.Printf("discovery: broadcast user update, name=%s", newName)
	d.bus.Emit(EventUserUpdated, d.local)
	return nil
}
