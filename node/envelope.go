package node

import (
	"encoding/json"
	"time"
)

const (
	envelopeHeartbeat         = "heartbeat"
	envelopeHeartbeatResponse = "heartbeat_response"
	envelopeMessage           = "message"
)

// marshalHeartbeat builds a {"type":"heartbeat","timestamp":...} envelope.
func marshalHeartbeat() ([]byte, error) {
	return json.Marshal(heartbeatEnvelope{Type: envelopeHeartbeat, Timestamp: time.Now().Unix()})
}

// marshalHeartbeatResponse builds the response envelope for an inbound
// heartbeat.
func marshalHeartbeatResponse() ([]byte, error) {
	return json.Marshal(heartbeatEnvelope{Type: envelopeHeartbeatResponse, Timestamp: time.Now().Unix()})
}

// marshalMessageEnvelope wraps a Message in the {"type":"message",...}
// envelope written over the chat connection.
func marshalMessageEnvelope(msg Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	env := messageEnvelope{Type: envelopeMessage, Data: msg, Length: len(raw)}
	return json.Marshal(env)
}

// envelopeType peeks the `type` discriminator out of a raw JSON envelope
// without fully decoding the payload, matching the dispatch-on-field
// approach the connection manager uses for every inbound read.
func envelopeType(raw []byte) (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", errSerialization(err, "decode envelope")
	}
	return probe.Type, nil
}

func decodeMessageEnvelope(raw []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, errSerialization(err, "decode message envelope")
	}
	return env.Data, nil
}
