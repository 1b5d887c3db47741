package facade

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wiresync/p2pcore/pkg/downloader"
	"github.com/wiresync/p2pcore/pkg/host"
	"github.com/wiresync/p2pcore/pkg/session"
)

// TextEvent is one incoming text message surfaced on a facade's Texts
// stream, identical in shape to host.TextEvent / client.TextEvent — the
// facade layer doesn't care which side originated it.
type TextEvent struct {
	SenderID string
	Text     string
}

// HostFacade is the public API of a Host session (spec §4.6): it owns
// exactly one pkg/host.Server and the most recently observed host-group
// IPv4, used to stamp outbound FileInfo.sender_ip on every share.
type HostFacade struct {
	id       string
	username string
	log      *slog.Logger
	ip       GroupIPSource

	mu  sync.Mutex
	srv *host.Server

	textCh chan TextEvent
}

// NewHostFacade constructs a Host facade. ip supplies the externally
// observed group IPv4 (spec §6); it may be nil if the caller will never
// share files (download-only / text-only sessions).
func NewHostFacade(id, username string, ip GroupIPSource, log *slog.Logger) *HostFacade {
	return &HostFacade{
		id:       id,
		username: username,
		log:      log,
		ip:       ip,
		textCh:   make(chan TextEvent, 32),
	}
}

// Start binds the signaling/file server on the first free port in
// [basePort, basePort+searchWidth) and begins accepting clients.
func (f *HostFacade) Start(basePort uint16, searchWidth int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.srv != nil {
		return nil
	}

	srv := host.New(f.id, f.username, f.log, func(e host.TextEvent) {
		select {
		case f.textCh <- TextEvent(e):
		default:
		}
	})
	if err := srv.Start(basePort, searchWidth); err != nil {
		return err
	}
	f.srv = srv
	return nil
}

// Stop tears down the Host server; it is a no-op if not started.
func (f *HostFacade) Stop(ctx context.Context) error {
	f.mu.Lock()
	srv := f.srv
	f.srv = nil
	f.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Stop(ctx)
}

// ID returns the host's own participant id.
func (f *HostFacade) ID() string { return f.id }

// Port returns the bound signaling/file port, or 0 before Start succeeds.
func (f *HostFacade) Port() int {
	f.mu.Lock()
	srv := f.srv
	f.mu.Unlock()
	if srv == nil {
		return 0
	}
	return srv.Port()
}

func (f *HostFacade) server() (*host.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.srv == nil {
		return nil, ErrNotActive
	}
	return f.srv, nil
}

func (f *HostFacade) currentIP() string {
	if f.ip == nil {
		return ""
	}
	return f.ip.CurrentIP()
}

// ShareFile announces localPath as a new hosted share to recipients (the
// whole roster if recipients is empty), stamping FileInfo.sender_ip from
// the observed group IP and FileInfo.sender_port from this host's own
// server.
func (f *HostFacade) ShareFile(localPath, name string, sizeBytes int64, metadata map[string]string, recipients []string) (session.FileInfo, error) {
	srv, err := f.server()
	if err != nil {
		return session.FileInfo{}, err
	}
	return srv.Share(localPath, name, sizeBytes, f.currentIP(), srv.Port(), metadata, recipients)
}

// BroadcastText sends text to every client, or just targets if non-empty.
func (f *HostFacade) BroadcastText(text string, targets []string) error {
	srv, err := f.server()
	if err != nil {
		return err
	}
	return srv.BroadcastText(text, targets)
}

// DownloadFile fetches a previously announced file from its serving peer.
func (f *HostFacade) DownloadFile(ctx context.Context, fileID string, opts downloader.Options) (bool, error) {
	srv, err := f.server()
	if err != nil {
		return false, err
	}
	return srv.DownloadFile(ctx, fileID, opts)
}

// Roster streams the current client roster (host excluded, since the
// viewer here is the host itself), emitting at least once per observed
// change, polled every config.FacadePollInterval. The channel closes when
// ctx is canceled.
func (f *HostFacade) Roster(ctx context.Context) <-chan []session.ParticipantInfo {
	out := make(chan []session.ParticipantInfo)
	go poll(ctx, func() []session.ParticipantInfo {
		srv, err := f.server()
		if err != nil {
			return nil
		}
		full := srv.Roster()
		if len(full) == 0 {
			return nil
		}
		return append([]session.ParticipantInfo(nil), full[1:]...)
	}, out)
	return out
}

// HostedFiles streams a snapshot of every file this host is serving. Each
// emission is a plain value copy (session.HostedFileSnapshot), never the
// live, mutex-guarded object, so the poller's DeepEqual comparison can
// never race the routing/progress-update goroutines that mutate it.
func (f *HostFacade) HostedFiles(ctx context.Context) <-chan map[string]session.HostedFileSnapshot {
	out := make(chan map[string]session.HostedFileSnapshot)
	go poll(ctx, func() map[string]session.HostedFileSnapshot {
		srv, err := f.server()
		if err != nil {
			return nil
		}
		return srv.HostedFiles()
	}, out)
	return out
}

// ReceivableFiles streams a snapshot of every file known to this host that
// it can download, as plain session.ReceivableFileSnapshot values for the
// same reason as HostedFiles above.
func (f *HostFacade) ReceivableFiles(ctx context.Context) <-chan map[string]session.ReceivableFileSnapshot {
	out := make(chan map[string]session.ReceivableFileSnapshot)
	go poll(ctx, func() map[string]session.ReceivableFileSnapshot {
		srv, err := f.server()
		if err != nil {
			return nil
		}
		return srv.ReceivableFiles()
	}, out)
	return out
}

// Texts streams incoming text messages as they arrive; event-driven, not
// polled, per spec §4.6.
func (f *HostFacade) Texts() <-chan TextEvent { return f.textCh }
