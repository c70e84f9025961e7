package node

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// APIServer exposes the node's operations over HTTP so the CLI (or any
// external client) can drive a running node without linking against this
// package directly. Grounded on the teacher's APIServer: a ServeMux, a
// background http.Server, typed JSON DTOs, and per-route method checks.
type APIServer struct {
	app    *App
	server *http.Server
	wg     sync.WaitGroup
}

// NewAPIServer constructs an APIServer bound to addr (e.g. ":7890").
func NewAPIServer(app *App, addr string) *APIServer {
	mux := http.NewServeMux()
	api := &APIServer{app: app}

	mux.HandleFunc("/health", api.handleHealth)
	mux.HandleFunc("/peers", api.handlePeers)
	mux.HandleFunc("/status", api.handleStatus)
	mux.HandleFunc("/user", api.handleUser)
	mux.HandleFunc("/messages", api.handleMessagesRoot)
	mux.HandleFunc("/messages/", api.handleMessagesPeer)
	mux.HandleFunc("/transfers", api.handleTransfersRoot)
	mux.HandleFunc("/transfers/", api.handleTransferAction)

	api.server = &http.Server{Addr: addr, Handler: mux}
	return api
}

// Start runs the HTTP server on a background goroutine.
func (a *APIServer) Start() error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return
		}
	}()
	return nil
}

// Stop closes the HTTP server and waits for its goroutine to exit.
func (a *APIServer) Stop() error {
	err := a.server.Close()
	a.wg.Wait()
	return err
}

func (a *APIServer) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *APIServer) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := KindOf(err); ok {
		switch kind {
		case KindUserNotFound, KindTransferNotFound, KindFileNotFound:
			status = http.StatusNotFound
		case KindInvalidOperation, KindFileTransferError, KindSerializationError:
			status = http.StatusBadRequest
		}
	}
	a.sendJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *APIServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.sendJSON(w, http.StatusOK, map[string]interface{}{"peers": a.app.Discovery.ListPeers()})
}

func (a *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.sendJSON(w, http.StatusOK, a.app.GetStatus())
}

type renameRequest struct {
	Name string `json:"name"`
}

func (a *APIServer) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.sendError(w, errSerialization(err, "decode request body"))
		return
	}
	if req.Name == "" {
		a.sendError(w, errInvalidOperation("name must not be empty"))
		return
	}

	if err := a.app.Rename(req.Name); err != nil {
		a.sendError(w, err)
		return
	}
	a.sendJSON(w, http.StatusOK, a.app.GetStatus())
}

type sendMessageRequest struct {
	PeerID  PeerID `json:"peerId"`
	Content string `json:"content"`
}

func (a *APIServer) handleMessagesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.sendJSON(w, http.StatusOK, map[string]interface{}{"messages": a.app.Chat.GetAll()})
	case http.MethodPost:
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.sendError(w, errSerialization(err, "decode request body"))
			return
		}
		msg, err := a.app.SendMessage(req.PeerID, req.Content)
		if err != nil {
			a.sendError(w, err)
			return
		}
		a.sendJSON(w, http.StatusOK, msg)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *APIServer) handleMessagesPeer(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/messages/")
	peerID, action, _ := strings.Cut(rest, "/")
	if peerID == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.sendJSON(w, http.StatusOK, map[string]interface{}{"messages": a.app.Chat.GetForPeer(PeerID(peerID))})
	case action == "read" && r.Method == http.MethodPost:
		a.app.Chat.MarkRead(PeerID(peerID))
		a.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		http.NotFound(w, r)
	}
}

type sendFileRequest struct {
	PeerID PeerID `json:"peerId"`
	Path   string `json:"path"`
}

func (a *APIServer) handleTransfersRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.sendJSON(w, http.StatusOK, map[string]interface{}{"transfers": a.app.Transfers.List()})
	case http.MethodPost:
		var req sendFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.sendError(w, errSerialization(err, "decode request body"))
			return
		}
		t, err := a.app.SendFile(req.PeerID, req.Path)
		if err != nil {
			a.sendError(w, err)
			return
		}
		a.sendJSON(w, http.StatusOK, t)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type acceptTransferRequest struct {
	DestinationPath string `json:"destinationPath"`
}

func (a *APIServer) handleTransferAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/transfers/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || action == "" {
		http.NotFound(w, r)
		return
	}

	var (
		t   *FileTransfer
		err error
	)

	switch action {
	case "accept":
		var req acceptTransferRequest
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
			a.sendError(w, errSerialization(decErr, "decode request body"))
			return
		}
		t, err = a.app.Transfers.Accept(id, req.DestinationPath)
	case "reject":
		t, err = a.app.Transfers.Reject(id)
	case "cancel":
		t, err = a.app.Transfers.Cancel(id)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		a.sendError(w, err)
		return
	}
	a.sendJSON(w, http.StatusOK, t)
}
