package node

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestTransferEngine(local PeerID) *TransferEngine {
	return NewTransferEngine(local, "127.0.0.1", NewBus())
}

func TestSendFileFailsOnMissingSource(t *testing.T) {
	e := newTestTransferEngine("user-local")

	_, err := e.SendFile("user-remote", "/no/such/file", "127.0.0.1")
	if err == nil {
		t.Fatal("expected SendFile to fail for a missing source path")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindFileNotFound {
		t.Errorf("expected KindFileNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestAcceptRejectsNonPendingTransfer(t *testing.T) {
	e := newTestTransferEngine("user-local")

	t1 := &FileTransfer{ID: "t1", Status: TransferCompleted}
	e.put(t1)

	if _, err := e.Accept("t1", "/tmp/out"); err == nil {
		t.Fatal("expected Accept to reject a non-pending transfer")
	}
}

func TestAcceptUnknownTransferFails(t *testing.T) {
	e := newTestTransferEngine("user-local")

	_, err := e.Accept("missing", "/tmp/out")
	if err == nil {
		t.Fatal("expected Accept to fail for an unknown transfer id")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindTransferNotFound {
		t.Errorf("expected KindTransferNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestStreamChunksZeroByteFileCompletesImmediately(t *testing.T) {
	e := newTestTransferEngine("user-local")
	tr := &FileTransfer{ID: "zero", FileSize: 0, Status: TransferInProgress}
	e.put(tr)

	var dst bytes.Buffer
	e.streamChunks(tr, bytes.NewReader(nil), &dst)

	if tr.Status != TransferCompleted {
		t.Errorf("expected zero-byte transfer to complete immediately, got status %s", tr.Status)
	}
	if tr.BytesTransferred != 0 {
		t.Errorf("expected 0 bytes transferred, got %d", tr.BytesTransferred)
	}
}

func TestStreamChunksCrossesChunkBoundary(t *testing.T) {
	e := newTestTransferEngine("user-local")

	size := int64(chunkSize) + 1024
	payload := bytes.Repeat([]byte{0xAB}, int(size))

	tr := &FileTransfer{ID: "big", FileSize: size, Status: TransferInProgress}
	e.put(tr)

	var dst bytes.Buffer
	e.streamChunks(tr, bytes.NewReader(payload), &dst)

	if tr.Status != TransferCompleted {
		t.Fatalf("expected transfer to complete, got status %s (err=%s)", tr.Status, tr.Error)
	}
	if tr.BytesTransferred != size {
		t.Errorf("expected %d bytes transferred, got %d", size, tr.BytesTransferred)
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Error("destination content does not match source payload")
	}
}

func TestRejectAndCancelSetTerminalStatus(t *testing.T) {
	e := newTestTransferEngine("user-local")

	tr := &FileTransfer{ID: "rej", Status: TransferPending, RecipientID: "user-local", SenderID: "user-remote"}
	e.put(tr)

	updated, err := e.Reject("rej")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if updated.Status != TransferRejected {
		t.Errorf("expected Rejected, got %s", updated.Status)
	}

	tr2 := &FileTransfer{ID: "cancel", Status: TransferInProgress, RecipientID: "user-local", SenderID: "user-remote"}
	e.put(tr2)

	updated2, err := e.Cancel("cancel")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if updated2.Status != TransferCancelled {
		t.Errorf("expected Cancelled, got %s", updated2.Status)
	}
}

func TestHandleConnectionDispatchesOnRequestFilePrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.bin")
	content := []byte("hello file transfer")
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	e := newTestTransferEngine("user-local")
	tr := &FileTransfer{
		ID:         "xfer-1",
		SenderID:   "user-local",
		SourcePath: srcPath,
		FileSize:   int64(len(content)),
		Status:     TransferPending,
	}
	e.put(tr)

	server, client := net.Pipe()
	go e.handleConnection(server)

	if _, err := client.Write([]byte(requestFilePrefix + "xfer-1\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	buf := make([]byte, len(content))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := readFull(client, buf)
	if err != nil {
		t.Fatalf("read streamed content: %v (n=%d)", err, n)
	}
	if !bytes.Equal(buf, content) {
		t.Errorf("expected streamed content %q, got %q", content, buf)
	}
	client.Close()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestFileBaseName(t *testing.T) {
	cases := map[string]string{
		"/tmp/foo/bar.txt":    "bar.txt",
		"bar.txt":             "bar.txt",
		"C:\\Users\\x\\a.zip": "a.zip",
	}
	for in, want := range cases {
		if got := fileBaseName(in); got != want {
			t.Errorf("fileBaseName(%q) = %q, want %q", in, got, want)
		}
	}
}
