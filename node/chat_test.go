package node

import (
	"testing"
)

func newTestChat(local PeerID) (*ChatChannel, *ConnectionManager) {
	bus := NewBus()
	conns := NewConnectionManager(local, bus)
	chat := NewChatChannel(local, bus, conns)
	conns.AttachChat(chat)
	return chat, conns
}

func TestChatSendRetainsLocalCopyOnFailure(t *testing.T) {
	chat, _ := newTestChat("user-aaaa")

	// The peer IP already carries a port, so the address Send dials (with
	// the chat port appended) is malformed and the dial must fail; the
	// local copy should still land in the send-history bucket.
	msg, err := chat.Send("user-bbbb", "hi", "127.0.0.1:1")
	if err == nil {
		t.Fatalf("expected Send to fail against an unreachable address")
	}
	if msg.Content != "hi" {
		t.Errorf("expected returned message to carry the original content, got %q", msg.Content)
	}

	history := chat.GetForPeer("user-bbbb")
	if len(history) != 1 {
		t.Fatalf("expected 1 message retained locally despite delivery failure, got %d", len(history))
	}
	if history[0].ID != msg.ID {
		t.Errorf("expected retained message to match returned message")
	}
}

func TestChatHandleReceivedAppendsAndIgnoresForeignRecipient(t *testing.T) {
	chat, _ := newTestChat("user-local")

	inbound := Message{ID: "m1", SenderID: "user-remote", RecipientID: "user-local", Content: "yo"}
	chat.handleReceived(inbound)

	all := chat.GetForPeer("user-remote")
	if len(all) != 1 || all[0].Content != "yo" {
		t.Fatalf("expected received message to be recorded, got %+v", all)
	}

	// A message addressed to someone else must be dropped, not recorded.
	misdirected := Message{ID: "m2", SenderID: "user-remote", RecipientID: "user-someone-else", Content: "nope"}
	chat.handleReceived(misdirected)

	if got := chat.GetForPeer("user-remote"); len(got) != 1 {
		t.Fatalf("expected misdirected message to be ignored, bucket now has %d entries", len(got))
	}
}

func TestChatMarkReadOnlyFlipsOwnMessages(t *testing.T) {
	chat, _ := newTestChat("user-local")

	chat.handleReceived(Message{ID: "m1", SenderID: "user-remote", RecipientID: "user-local", Content: "a"})
	chat.handleReceived(Message{ID: "m2", SenderID: "user-remote", RecipientID: "user-other", Content: "b"})

	chat.MarkRead("user-remote")

	bucket := chat.messages["user-remote"]
	var m1Read, m2Read bool
	for _, m := range bucket {
		if m.ID == "m1" {
			m1Read = m.Read
		}
		if m.ID == "m2" {
			m2Read = m.Read
		}
	}
	if !m1Read {
		t.Error("expected message addressed to local user to be marked read")
	}
	if m2Read {
		t.Error("did not expect a message addressed to someone else to be marked read")
	}
}

func TestChatGetAllSortsByTimestamp(t *testing.T) {
	chat, _ := newTestChat("user-local")

	chat.handleReceived(Message{ID: "m1", SenderID: "user-a", RecipientID: "user-local", Timestamp: mustTime(2)})
	chat.handleReceived(Message{ID: "m2", SenderID: "user-a", RecipientID: "user-local", Timestamp: mustTime(1)})

	all := chat.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(all))
	}
	if all[0].ID != "m2" || all[1].ID != "m1" {
		t.Errorf("expected ascending timestamp order m2, m1; got %s, %s", all[0].ID, all[1].ID)
	}
}
