package node

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"
)

// LocalIdentity generates the local peer-id by hashing the hostname with
// blake2b-256 and rendering the first 4 bytes as lowercase hex, matching
// the "user-<hex>" form used throughout the wire protocol and mDNS
// instance names.
func LocalIdentity() (PeerRecord, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return PeerRecord{}, errIO(err, "resolve hostname")
	}

	sum := blake2b.Sum256([]byte(hostname))
	id := PeerID(fmt.Sprintf("user-%x", sum[:4]))

	ip, err := primaryIP()
	if err != nil {
		log.Printf("identity: %v, falling back to 127.0.0.1", err)
		ip = "127.0.0.1"
	}

	return PeerRecord{
		ID:       id,
		Name:     hostname,
		IP:       ip,
		LastSeen: time.Now(),
	}, nil
}

// primaryIP returns the first non-loopback IPv4 address bound to a live
// network interface, or an error if none is found.
func primaryIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("enumerate interfaces: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}

	return "", fmt.Errorf("no non-loopback IPv4 address found")
}
