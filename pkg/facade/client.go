package facade

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wiresync/p2pcore/pkg/client"
	"github.com/wiresync/p2pcore/pkg/downloader"
	"github.com/wiresync/p2pcore/pkg/session"
)

// ClientFacade is the public API of a Client session (spec §4.6): it owns
// exactly one pkg/client.Peer and the most recently observed
// client-in-group IPv4, used to stamp outbound FileInfo.sender_ip.
type ClientFacade struct {
	id       string
	username string
	log      *slog.Logger
	ip       GroupIPSource

	mu   sync.Mutex
	peer *client.Peer

	textCh chan TextEvent
}

// NewClientFacade constructs a Client facade. ip supplies the externally
// observed in-group IPv4 (spec §6); it may be nil if the caller will never
// share files.
func NewClientFacade(id, username string, ip GroupIPSource, log *slog.Logger) *ClientFacade {
	return &ClientFacade{
		id:       id,
		username: username,
		log:      log,
		ip:       ip,
		textCh:   make(chan TextEvent, 32),
	}
}

// Connect starts the peer's own file server and dials the Host's
// signaling WebSocket, per §4.5.1.
func (f *ClientFacade) Connect(ctx context.Context, hostIP string, hostBasePort uint16, hostSearchWidth int, filePortBase uint16, fileSearchWidth int) error {
	f.mu.Lock()
	if f.peer == nil {
		f.peer = client.New(f.id, f.username, f.log, func(e client.TextEvent) {
			select {
			case f.textCh <- TextEvent(e):
			default:
			}
		})
	}
	peer := f.peer
	f.mu.Unlock()

	return peer.Connect(ctx, hostIP, hostBasePort, hostSearchWidth, filePortBase, fileSearchWidth)
}

// Disconnect implements the manual-disconnect path of §4.5.3: no
// reconnection follows.
func (f *ClientFacade) Disconnect() error {
	f.mu.Lock()
	peer := f.peer
	f.mu.Unlock()

	if peer == nil {
		return nil
	}
	return peer.Disconnect()
}

// ID returns the client's own participant id.
func (f *ClientFacade) ID() string { return f.id }

func (f *ClientFacade) activePeer() (*client.Peer, error) {
	f.mu.Lock()
	peer := f.peer
	f.mu.Unlock()

	if peer == nil || peer.State() != client.StateConnected {
		return nil, ErrNotConnected
	}
	return peer, nil
}

func (f *ClientFacade) currentIP() string {
	if f.ip == nil {
		return ""
	}
	return f.ip.CurrentIP()
}

// ShareFile announces localPath to recipients via the Host, stamping
// FileInfo.sender_ip from this client's own observed group IP (§4.5.5).
func (f *ClientFacade) ShareFile(localPath, name string, sizeBytes int64, metadata map[string]string, recipients []session.ParticipantInfo) (session.FileInfo, error) {
	peer, err := f.activePeer()
	if err != nil {
		return session.FileInfo{}, err
	}
	return peer.Share(localPath, name, sizeBytes, f.currentIP(), metadata, recipients)
}

// SendText sends text to targets (the Host relays it).
func (f *ClientFacade) SendText(text string, targets []session.ParticipantInfo) error {
	peer, err := f.activePeer()
	if err != nil {
		return err
	}
	return peer.SendText(text, targets)
}

// DownloadFile fetches fileID from its announced sender.
func (f *ClientFacade) DownloadFile(ctx context.Context, fileID string, opts downloader.Options) (bool, error) {
	peer, err := f.activePeer()
	if err != nil {
		return false, err
	}
	return peer.DownloadFile(ctx, fileID, opts)
}

// Roster streams the current roster as last replaced by a clientList
// broadcast (host first, this client excluded), emitting at least once
// per observed change.
func (f *ClientFacade) Roster(ctx context.Context) <-chan []session.ParticipantInfo {
	out := make(chan []session.ParticipantInfo)
	go poll(ctx, func() []session.ParticipantInfo {
		f.mu.Lock()
		peer := f.peer
		f.mu.Unlock()
		if peer == nil {
			return nil
		}
		return peer.Roster()
	}, out)
	return out
}

// HostedFiles streams a snapshot of every file this client is serving.
// Each emission is a plain value copy (session.HostedFileSnapshot), never
// the live, mutex-guarded object, so the poller's DeepEqual comparison
// can never race the receive-loop/progress-update goroutines that mutate
// it.
func (f *ClientFacade) HostedFiles(ctx context.Context) <-chan map[string]session.HostedFileSnapshot {
	out := make(chan map[string]session.HostedFileSnapshot)
	go poll(ctx, func() map[string]session.HostedFileSnapshot {
		f.mu.Lock()
		peer := f.peer
		f.mu.Unlock()
		if peer == nil {
			return nil
		}
		return peer.HostedFiles()
	}, out)
	return out
}

// ReceivableFiles streams a snapshot of every file known to this client
// that it can download, as plain session.ReceivableFileSnapshot values
// for the same reason as HostedFiles above.
func (f *ClientFacade) ReceivableFiles(ctx context.Context) <-chan map[string]session.ReceivableFileSnapshot {
	out := make(chan map[string]session.ReceivableFileSnapshot)
	go poll(ctx, func() map[string]session.ReceivableFileSnapshot {
		f.mu.Lock()
		peer := f.peer
		f.mu.Unlock()
		if peer == nil {
			return nil
		}
		return peer.ReceivableFiles()
	}, out)
	return out
}

// State returns the underlying peer's connection state, or
// client.StateDisconnected if Connect was never called.
func (f *ClientFacade) State() client.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.peer == nil {
		return client.StateDisconnected
	}
	return f.peer.State()
}

// Texts streams incoming text messages as they arrive; event-driven, not
// polled, per spec §4.6.
func (f *ClientFacade) Texts() <-chan TextEvent { return f.textCh }
