package node

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	transferPort = 8766
	chunkSize    = 64 * 1024

	fileDataPrefix    = "FILE_DATA:"
	requestFilePrefix = "REQUEST_FILE:"
)

// TransferEngine owns port 8766 and the mapping of transfer-id to
// transfer-record. Grounded directly on file_transfer.rs, the largest and
// most detailed file in the original source tree.
type TransferEngine struct {
	local   PeerID
	localIP string
	bus     *Bus

	mu        sync.Mutex
	transfers map[string]*FileTransfer

	listener net.Listener
}

// NewTransferEngine constructs a TransferEngine for the given local
// identity.
func NewTransferEngine(local PeerID, localIP string, bus *Bus) *TransferEngine {
	return &TransferEngine{
		local:     local,
		localIP:   localIP,
		bus:       bus,
		transfers: make(map[string]*FileTransfer),
	}
}

// Listen binds 0.0.0.0:8766 and starts the accept loop.
func (e *TransferEngine) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", transferPort))
	if err != nil {
		return errNetwork(err, "bind transfer listener on port %d", transferPort)
	}
	e.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("transfer: listener closed: %v", err)
				return
			}
			go e.handleConnection(conn)
		}
	}()

	log.Printf("transfer: listening on 0.0.0.0:%d", transferPort)
	return nil
}

// Close stops accepting new transfer connections.
func (e *TransferEngine) Close() error {
	if e.listener != nil {
		return e.listener.Close()
	}
	return nil
}

func (e *TransferEngine) put(t *FileTransfer) {
	e.mu.Lock()
	e.transfers[t.ID] = t
	e.mu.Unlock()
}

func (e *TransferEngine) get(id string) (*FileTransfer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.transfers[id]
	return t, ok
}

// List returns a snapshot of every known transfer record.
func (e *TransferEngine) List() []FileTransfer {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]FileTransfer, 0, len(e.transfers))
	for _, t := range e.transfers {
		out = append(out, *t)
	}
	return out
}

// SendFile initiates an outbound transfer: it stats the source file,
// constructs a Pending record, stores it, and writes the JSON transfer
// request to the recipient's control connection.
func (e *TransferEngine) SendFile(peerID PeerID, path, peerIP string) (*FileTransfer, error) {
	if peerIP == "" {
		return nil, errFileTransfer("missing peer IP for transfer to %s", peerID)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errFileNotFound(path)
		}
		return nil, errIO(err, "stat %s", path)
	}

	t := &FileTransfer{
		ID:               newTransferID(),
		SenderID:         e.local,
		RecipientID:      peerID,
		SenderIP:         e.localIP,
		RecipientIP:      peerIP,
		FileName:         fileBaseName(path),
		FileSize:         info.Size(),
		SourcePath:       path,
		Status:           TransferPending,
		BytesTransferred: 0,
		Timestamp:        time.Now(),
	}
	e.put(t)
	e.bus.Emit(EventFileTransfersUpdate, e.List())

	if err := e.sendTransferRecord(t, peerIP); err != nil {
		return t, err
	}

	e.bus.Emit(EventFileTransferUpdate, *t)
	return t, nil
}

func (e *TransferEngine) sendTransferRecord(t *FileTransfer, peerIP string) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", peerIP, transferPort), connectTimeout)
	if err != nil {
		return errNetwork(err, "dial %s for transfer request", peerIP)
	}
	defer conn.Close()

	data, err := json.Marshal(t)
	if err != nil {
		return errSerialization(err, "marshal transfer record")
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(data); err != nil {
		return errNetwork(err, "write transfer request")
	}
	return nil
}

// Accept marks a Pending transfer InProgress, sets the destination path,
// and spawns the streaming side. The local side is always the recipient
// here, so it dials the sender and issues REQUEST_FILE.
func (e *TransferEngine) Accept(transferID, savePath string) (*FileTransfer, error) {
	t, ok := e.get(transferID)
	if !ok {
		return nil, errTransferNotFound(transferID)
	}
	if t.Status != TransferPending {
		return nil, errInvalidOperation("transfer %s is not pending", transferID)
	}

	e.mu.Lock()
	t.Status = TransferInProgress
	t.DestinationPath = savePath
	e.mu.Unlock()

	e.bus.Emit(EventFileTransferUpdate, *t)

	go e.receiveFileData(t)

	return t, nil
}

// Reject sets a Pending transfer to Rejected and notifies the sender. No
// file data is transmitted.
func (e *TransferEngine) Reject(transferID string) (*FileTransfer, error) {
	return e.setTerminalStatus(transferID, TransferRejected)
}

// Cancel sets a Pending or InProgress transfer to Cancelled and notifies
// the other party. Any other status is an InvalidOperation error.
func (e *TransferEngine) Cancel(transferID string) (*FileTransfer, error) {
	return e.setTerminalStatus(transferID, TransferCancelled)
}

func (e *TransferEngine) setTerminalStatus(transferID string, status TransferStatus) (*FileTransfer, error) {
	t, ok := e.get(transferID)
	if !ok {
		return nil, errTransferNotFound(transferID)
	}

	e.mu.Lock()
	allowed := t.Status == TransferPending ||
		(status == TransferCancelled && t.Status == TransferInProgress)
	if !allowed {
		current := t.Status
		e.mu.Unlock()
		return nil, errInvalidOperation("cannot set transfer %s to %s from %s", transferID, status, current)
	}
	t.Status = status
	e.mu.Unlock()

	peerIP := t.RecipientIP
	if t.RecipientID == e.local {
		peerIP = t.SenderIP
	}
	if peerIP != "" {
		if err := e.sendTransferRecord(t, peerIP); err != nil {
			log.Printf("transfer: failed to notify peer of %s: %v", status, err)
		}
	}

	e.bus.Emit(EventFileTransferUpdate, *t)
	return t, nil
}

// receiveFileData is run by the recipient: it opens a connection to the
// sender, writes the REQUEST_FILE: header, then reads the file in 64KiB
// chunks into the destination path.
func (e *TransferEngine) receiveFileData(t *FileTransfer) {
	peerAddr := fmt.Sprintf("%s:%d", t.SenderIP, transferPort)
	conn, err := net.DialTimeout("tcp", peerAddr, connectTimeout)
	if err != nil {
		e.fail(t, errNetwork(err, "dial %s for file request", peerAddr))
		return
	}
	defer conn.Close()

	header := requestFilePrefix + t.ID + "\n"
	if _, err := conn.Write([]byte(header)); err != nil {
		e.fail(t, errNetwork(err, "write request_file header"))
		return
	}

	f, err := os.Create(t.DestinationPath)
	if err != nil {
		e.fail(t, errIO(err, "create %s", t.DestinationPath))
		return
	}
	defer f.Close()

	e.streamChunks(t, conn, f)
}

// streamChunks copies t.FileSize bytes from src to dst in 64KiB chunks,
// updating BytesTransferred after each chunk and transitioning to
// Completed once bytes_transferred reaches file_size. A zero-byte file
// completes immediately with no chunk copied. A stream that ends before
// file_size bytes marks the transfer Failed, and a transfer whose status
// has become Cancelled stops before its next chunk.
func (e *TransferEngine) streamChunks(t *FileTransfer, src io.Reader, dst io.Writer) {
	buf := make([]byte, chunkSize)
	var total int64

	for total < t.FileSize {
		e.mu.Lock()
		cancelled := t.Status == TransferCancelled
		e.mu.Unlock()
		if cancelled {
			return
		}

		remaining := t.FileSize - total
		readSize := int64(chunkSize)
		if remaining < readSize {
			readSize = remaining
		}

		n, err := io.ReadFull(src, buf[:readSize])
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				e.fail(t, errIO(werr, "write chunk"))
				return
			}
			total += int64(n)

			e.mu.Lock()
			t.BytesTransferred = total
			e.mu.Unlock()
			e.bus.Emit(EventFileTransferUpdate, *t)
		}
		if err != nil && err != io.EOF {
			e.fail(t, errIO(err, "read chunk"))
			return
		}
		if n == 0 {
			e.fail(t, errIO(io.ErrUnexpectedEOF, "stream ended after %d of %d bytes", total, t.FileSize))
			return
		}
	}

	e.mu.Lock()
	t.Status = TransferCompleted
	e.mu.Unlock()
	e.bus.Emit(EventFileTransferUpdate, *t)
}

func (e *TransferEngine) fail(t *FileTransfer, err error) {
	e.mu.Lock()
	t.Status = TransferFailed
	t.Error = err.Error()
	e.mu.Unlock()
	log.Printf("transfer: %s failed: %v", t.ID, err)
	e.bus.Emit(EventFileTransferUpdate, *t)
}

// handleConnection dispatches an accepted transfer-port connection based
// on its first line: FILE_DATA:/REQUEST_FILE: select the chunk-streaming
// path; anything else is re-assembled with the remainder of the stream
// and parsed as a JSON transfer record.
func (e *TransferEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	trimmed := strings.TrimSuffix(line, "\n")

	switch {
	case strings.HasPrefix(trimmed, fileDataPrefix):
		transferID := strings.TrimPrefix(trimmed, fileDataPrefix)
		t, ok := e.get(transferID)
		if !ok || t.RecipientID != e.local {
			return
		}
		f, err := os.Create(t.DestinationPath)
		if err != nil {
			e.fail(t, errIO(err, "create %s", t.DestinationPath))
			return
		}
		defer f.Close()
		e.streamChunks(t, reader, f)

	case strings.HasPrefix(trimmed, requestFilePrefix):
		transferID := strings.TrimPrefix(trimmed, requestFilePrefix)
		t, ok := e.get(transferID)
		if !ok || t.SenderID != e.local {
			return
		}
		f, err := os.Open(t.SourcePath)
		if err != nil {
			e.fail(t, errIO(err, "open %s", t.SourcePath))
			return
		}
		defer f.Close()
		e.streamChunks(t, f, conn)

	default:
		rest, _ := io.ReadAll(reader)
		payload := append([]byte(line), rest...)

		var t FileTransfer
		if err := json.Unmarshal(payload, &t); err != nil {
			log.Printf("transfer: failed to decode transfer record: %v", err)
			return
		}

		if existing, ok := e.get(t.ID); ok {
			e.mu.Lock()
			existing.Status = t.Status
			existing.BytesTransferred = t.BytesTransferred
			existing.Error = t.Error
			e.mu.Unlock()
			e.bus.Emit(EventFileTransferUpdate, *existing)
			return
		}

		if t.RecipientID == e.local {
			mirrored := t
			e.put(&mirrored)
			e.bus.Emit(EventFileTransferUpdate, mirrored)
			e.bus.Emit(EventFileTransfersUpdate, e.List())
		}
	}
}

func fileBaseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
