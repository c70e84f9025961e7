package node

import (
	"testing"
	"time"
)

func TestMarshalHeartbeatRoundTrip(t *testing.T) {
	raw, err := marshalHeartbeat()
	if err != nil {
		t.Fatalf("marshalHeartbeat: %v", err)
	}

	typ, err := envelopeType(raw)
	if err != nil {
		t.Fatalf("envelopeType: %v", err)
	}
	if typ != envelopeHeartbeat {
		t.Errorf("expected type %q, got %q", envelopeHeartbeat, typ)
	}
}

func TestMarshalHeartbeatResponseType(t *testing.T) {
	raw, err := marshalHeartbeatResponse()
	if err != nil {
		t.Fatalf("marshalHeartbeatResponse: %v", err)
	}

	typ, err := envelopeType(raw)
	if err != nil {
		t.Fatalf("envelopeType: %v", err)
	}
	if typ != envelopeHeartbeatResponse {
		t.Errorf("expected type %q, got %q", envelopeHeartbeatResponse, typ)
	}
}

func TestMarshalMessageEnvelopeRoundTrip(t *testing.T) {
	msg := Message{
		ID:          "msg-1",
		SenderID:    "user-aaaa",
		RecipientID: "user-bbbb",
		Content:     "hello there",
		Timestamp:   time.Now().Truncate(time.Second),
		Read:        false,
	}

	raw, err := marshalMessageEnvelope(msg)
	if err != nil {
		t.Fatalf("marshalMessageEnvelope: %v", err)
	}

	typ, err := envelopeType(raw)
	if err != nil {
		t.Fatalf("envelopeType: %v", err)
	}
	if typ != envelopeMessage {
		t.Fatalf("expected type %q, got %q", envelopeMessage, typ)
	}

	decoded, err := decodeMessageEnvelope(raw)
	if err != nil {
		t.Fatalf("decodeMessageEnvelope: %v", err)
	}

	if decoded.ID != msg.ID || decoded.SenderID != msg.SenderID ||
		decoded.RecipientID != msg.RecipientID || decoded.Content != msg.Content {
		t.Errorf("decoded message %+v does not match original %+v", decoded, msg)
	}
	if !decoded.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("expected timestamp %v, got %v", msg.Timestamp, decoded.Timestamp)
	}
}

func TestEnvelopeTypeRejectsGarbage(t *testing.T) {
	if _, err := envelopeType([]byte("not json")); err == nil {
		t.Fatal("expected envelopeType to fail on invalid JSON")
	}
}

func TestDecodeMessageEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := decodeMessageEnvelope([]byte("{broken")); err == nil {
		t.Fatal("expected decodeMessageEnvelope to fail on invalid JSON")
	}
}
