package node

import (
	"log"
)

// App composes every core component in dependency order: identity and the
// event bus first, then discovery, the connection manager, and finally
// the two listening services that depend on it. Grounded on the
// composition shape of the teacher's BlackTraceApp, with the OTC
// order/negotiation domain logic replaced by chat and file transfer.
type App struct {
	Local PeerRecord
	Bus   *Bus

	Discovery *Discovery
	Conns     *ConnectionManager
	Chat      *ChatChannel
	Transfers *TransferEngine
}

// NewApp constructs every component but does not yet bind any socket or
// start any background goroutine; call Run to do that.
func NewApp() (*App, error) {
	local, err := LocalIdentity()
	if err != nil {
		return nil, err
	}

	bus := NewBus()
	discovery := NewDiscovery(local, bus)
	conns := NewConnectionManager(local.ID, bus)
	chat := NewChatChannel(local.ID, bus, conns)
	conns.AttachChat(chat)
	transfers := NewTransferEngine(local.ID, local.IP, bus)

	return &App{
		Local:     local,
		Bus:       bus,
		Discovery: discovery,
		Conns:     conns,
		Chat:      chat,
		Transfers: transfers,
	}, nil
}

// Run starts discovery, the heartbeat sweeper, and both listening
// sockets.
func (a *App) Run() error {
	if err := a.Discovery.Start(); err != nil {
		return err
	}
	a.Conns.StartHeartbeat()
	if err := a.Chat.Listen(); err != nil {
		return err
	}
	if err := a.Transfers.Listen(); err != nil {
		return err
	}

	log.Printf("app: node %s ready at %s", a.Local.ID, a.Local.IP)
	return nil
}

// Shutdown tears every component down in reverse dependency order.
func (a *App) Shutdown() {
	if err := a.Transfers.Close(); err != nil {
		log.Printf("app: error closing transfer listener: %v", err)
	}
	if err := a.Chat.Close(); err != nil {
		log.Printf("app: error closing chat listener: %v", err)
	}
	a.Conns.Shutdown()
	if err := a.Discovery.Stop(); err != nil {
		log.Printf("app: error stopping discovery: %v", err)
	}
	a.Bus.Close()

	log.Printf("app: node %s shut down", a.Local.ID)
}

// SendMessage resolves peerID via the directory (retrying once via a
// discovery refresh on miss, per the spec's retry budget) and sends
// content through the Chat Channel.
func (a *App) SendMessage(peerID PeerID, content string) (Message, error) {
	peer, ok := a.Discovery.GetPeer(peerID)
	if !ok {
		if err := a.Discovery.Refresh(); err == nil {
			peer, ok = a.Discovery.GetPeer(peerID)
		}
		if !ok {
			return Message{}, errUserNotFound(string(peerID))
		}
	}
	return a.Chat.Send(peerID, content, peer.IP)
}

// SendFile resolves peerID via the directory and initiates a transfer.
func (a *App) SendFile(peerID PeerID, path string) (*FileTransfer, error) {
	peer, ok := a.Discovery.GetPeer(peerID)
	if !ok {
		return nil, errUserNotFound(string(peerID))
	}
	return a.Transfers.SendFile(peerID, path, peer.IP)
}

// Rename updates the local display name and re-broadcasts it over mDNS via
// the Peer Directory's broadcast_user_update operation (spec §4.B). It
// requires discovery to already be running.
func (a *App) Rename(newName string) error {
	if err := a.Discovery.BroadcastUserUpdate(newName); err != nil {
		return err
	}
	a.Local.Name = newName
	return nil
}

// Status is a snapshot of the node used by the control-plane API and CLI.
type Status struct {
	PeerID     PeerID `json:"peerId"`
	Name       string `json:"name"`
	ListenAddr string `json:"listenAddr"`
	PeerCount  int    `json:"peerCount"`
}

// GetStatus returns a snapshot of the node's identity and peer count.
func (a *App) GetStatus() Status {
	return Status{
		PeerID:     a.Local.ID,
		Name:       a.Local.Name,
		ListenAddr: a.Local.IP,
		PeerCount:  len(a.Discovery.ListPeers()),
	}
}
