package node

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Event names are a closed set; every emit call must use one of these.
const (
	EventPeerDiscovered       = "peer_discovered"
	EventPeersUpdated         = "peers_updated"
	EventMessageReceived      = "message_received"
	EventMessageSent          = "message_sent"
	EventMessagesRead         = "messages_read"
	EventUserUpdated          = "user_updated"
	EventFileTransferUpdate   = "file_transfer_update"
	EventFileTransfersUpdate  = "file_transfers_update"
)

// EventSink receives every emitted event. Implementations must not block
// the emitting goroutine for long; the Bus itself never blocks on a sink.
type EventSink func(name string, payload interface{})

// Bus is the process-wide event emitter described in the design notes: a
// single handle, initialized once, read-only for the rest of the process
// lifetime. Registering a sink after construction is the only mutation it
// allows, and it is expected to happen once during startup wiring.
type Bus struct {
	mu    sync.RWMutex
	sinks []EventSink
	nc    *nats.Conn
}

// NewBus constructs an event bus. If the NATS_URL environment variable is
// set, it also connects an optional NATS sink that republishes every event
// as JSON to subject "ipchat.events.<name>"; when unset, the bus still
// works, it just has no network sink, mirroring the graceful degradation
// this codebase's settlement publisher already uses for the same
// environment variable.
func NewBus() *Bus {
	b := &Bus{}

	url := os.Getenv("NATS_URL")
	if url == "" {
		log.Printf("events: NATS_URL not set, event bus has no network sink")
		return b
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("events: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("events: NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("events: NATS connection closed")
		}),
	)
	if err != nil {
		log.Printf("events: failed to connect to NATS at %s: %v, continuing without network sink", url, err)
		return b
	}

	b.nc = nc
	log.Printf("events: publishing to NATS at %s", url)
	return b
}

// Subscribe registers a callback sink (e.g. the CLI or a future UI)
// invoked for every emitted event.
func (b *Bus) Subscribe(sink EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Emit delivers an event to every registered sink, best-effort and
// non-blocking: a slow or panicking sink never stalls or crashes the
// caller's goroutine.
func (b *Bus) Emit(name string, payload interface{}) {
	b.mu.RLock()
	sinks := make([]EventSink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		go func(s EventSink) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("events: sink panicked: %v", r)
				}
			}()
			s(name, payload)
		}(sink)
	}

	if b.nc != nil {
		go b.publishNATS(name, payload)
	}
}

func (b *Bus) publishNATS(name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: failed to marshal payload for %s: %v", name, err)
		return
	}
	subject := "ipchat.events." + name
	if err := b.nc.Publish(subject, data); err != nil {
		log.Printf("events: failed to publish %s: %v", subject, err)
	}
}

// Close releases the NATS connection, if one was established.
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
