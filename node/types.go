package node

import (
	"time"

	"github.com/google/uuid"
)

// PeerID uniquely identifies a peer on the LAN. Stable per device: derived
// from a hash of the hostname at startup.
type PeerID string

// TransferStatus is the state of a file transfer.
type TransferStatus string

const (
	TransferPending    TransferStatus = "Pending"
	TransferInProgress TransferStatus = "InProgress"
	TransferCompleted  TransferStatus = "Completed"
	TransferRejected   TransferStatus = "Rejected"
	TransferCancelled  TransferStatus = "Cancelled"
	TransferFailed     TransferStatus = "Failed"
)

// PeerRecord is an entry in the peer directory.
type PeerRecord struct {
	ID       PeerID    `json:"id"`
	Name     string    `json:"name"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"lastSeen"`
}

// Message is a single chat message between two peers.
type Message struct {
	ID          string    `json:"id"`
	SenderID    PeerID    `json:"senderId"`
	RecipientID PeerID    `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Read        bool      `json:"read"`
}

// FileTransfer is the full record of a file transfer, visible on both
// sides. SourcePath is populated only on the sender; DestinationPath is
// populated once the recipient accepts.
type FileTransfer struct {
	ID               string         `json:"id"`
	SenderID         PeerID         `json:"senderId"`
	RecipientID      PeerID         `json:"recipientId"`
	SenderIP         string         `json:"senderIp,omitempty"`
	RecipientIP      string         `json:"recipientIp,omitempty"`
	FileName         string         `json:"fileName"`
	FileSize         int64          `json:"fileSize"`
	SourcePath       string         `json:"sourcePath,omitempty"`
	DestinationPath  string         `json:"destinationPath,omitempty"`
	Status           TransferStatus `json:"status"`
	BytesTransferred int64          `json:"bytesTransferred"`
	Timestamp        time.Time      `json:"timestamp"`
	Error            string         `json:"error,omitempty"`
}

// heartbeatEnvelope and messageEnvelope are the two discriminated shapes
// that travel over the chat socket on port 8765. Both share the `type`
// field used to dispatch on receipt; see envelope.go for encode/decode.
type heartbeatEnvelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type messageEnvelope struct {
	Type   string  `json:"type"`
	Data   Message `json:"data"`
	Length int     `json:"length"`
}

// newMessageID returns a fresh unique message identifier.
func newMessageID() string {
	return uuid.NewString()
}

// newTransferID returns a fresh unique transfer identifier.
func newTransferID() string {
	return uuid.NewString()
}
