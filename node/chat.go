package node

import (
	"log"
	"net"
	"sort"
	"sync"
	"time"
)

const chatPort = 8765

// ChatChannel owns the per-conversation message store and the chat
// listening socket. The local user's own id is a valid bucket key: it
// holds the local send-history.
type ChatChannel struct {
	local PeerID
	bus   *Bus
	conns *ConnectionManager

	mu       sync.Mutex
	messages map[PeerID][]Message

	listener net.Listener
}

// NewChatChannel constructs a ChatChannel for the given local identity.
func NewChatChannel(local PeerID, bus *Bus, conns *ConnectionManager) *ChatChannel {
	return &ChatChannel{
		local:    local,
		bus:      bus,
		conns:    conns,
		messages: make(map[PeerID][]Message),
	}
}

// Listen binds 0.0.0.0:8765 and starts the accept loop. Each accepted
// stream is handed to the connection manager's inbound dispatcher.
func (c *ChatChannel) Listen() error {
	ln, err := net.Listen("tcp", ":8765")
	if err != nil {
		return errNetwork(err, "bind chat listener on port %d", chatPort)
	}
	c.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("chat: listener closed: %v", err)
				return
			}
			go c.conns.HandleIncoming(conn)
		}
	}()

	log.Printf("chat: listening on 0.0.0.0:%d", chatPort)
	return nil
}

// Close stops accepting new chat connections.
func (c *ChatChannel) Close() error {
	if c.listener != nil {
		return c.listener.Close()
	}
	return nil
}

// Send constructs a message, appends it to the local send-history bucket
// before attempting delivery, and invokes the connection manager. The
// local copy survives a delivery failure; see design notes.
func (c *ChatChannel) Send(peerID PeerID, content, peerIP string) (Message, error) {
	msg := Message{
		ID:          newMessageID(),
		SenderID:    c.local,
		RecipientID: peerID,
		Content:     content,
		Timestamp:   time.Now(),
		Read:        false,
	}

	c.mu.Lock()
	c.messages[c.local] = append(c.messages[c.local], msg)
	c.mu.Unlock()

	if err := c.conns.SendMessage(peerID, msg, peerIP, chatPort); err != nil {
		return msg, err
	}

	c.bus.Emit(EventMessageSent, msg)
	return msg, nil
}

// GetForPeer returns the conversation with peerID: outbound messages the
// local user addressed to peerID, plus inbound messages from peerID
// addressed to the local user, sorted by timestamp ascending.
func (c *ChatChannel) GetForPeer(peerID PeerID) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Message
	for _, m := range c.messages[c.local] {
		if m.RecipientID == peerID {
			out = append(out, m)
		}
	}
	for _, m := range c.messages[peerID] {
		if m.RecipientID == c.local {
			out = append(out, m)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// GetAll concatenates every bucket, sorted by timestamp.
func (c *ChatChannel) GetAll() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Message
	for _, bucket := range c.messages {
		out = append(out, bucket...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MarkRead flips read=true on every message in peerID's bucket addressed
// to the local user. A missing bucket is not an error.
func (c *ChatChannel) MarkRead(peerID PeerID) {
	c.mu.Lock()
	bucket := c.messages[peerID]
	for i := range bucket {
		if bucket[i].RecipientID == c.local {
			bucket[i].Read = true
		}
	}
	c.mu.Unlock()

	c.bus.Emit(EventMessagesRead, peerID)
}

// handleReceived is invoked by the connection manager's dispatcher for
// every inbound "message" envelope whose recipient-id already matched the
// local user. It appends to the sender-id bucket and emits
// message_received.
func (c *ChatChannel) handleReceived(msg Message) {
	if msg.RecipientID != c.local {
		return
	}

	c.mu.Lock()
	c.messages[msg.SenderID] = append(c.messages[msg.SenderID], msg)
	c.mu.Unlock()

	c.bus.Emit(EventMessageReceived, msg)
}
