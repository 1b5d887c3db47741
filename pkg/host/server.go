// Package host implements the Host signaling server: a WebSocket hub at
// /connect co-hosted with the pkg/fileserver mux at /file on the same
// *http.Server, one goroutine pair per connected client coordinated with
// golang.org/x/sync/errgroup, mirroring the teacher's pkg/peer.Peer
// read/write-loop shape but for a star topology instead of a single
// BitTorrent peer connection.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	"github.com/wiresync/p2pcore/pkg/fileserver"
	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/syncmap"
	"github.com/wiresync/p2pcore/pkg/wire"
)

var (
	ErrBindFailed  = errors.New("host: no port available in search range")
	ErrNotActive   = errors.New("host: server not started")
	ErrIPUnknown   = errors.New("host: group ip not yet observed")
	ErrNoRecipient = errors.New("host: no such recipient in roster")
)

const (
	writeTimeout       = 10 * time.Second
	pingInterval       = 5 * time.Second
	mailboxBufferLen   = 64
	pongWaitMultiplier = 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TextEvent is emitted on the Text observable whenever a non-empty text
// payload arrives whose recipient set includes the host. Payloads the
// host only relays to other clients do not produce one.
type TextEvent struct {
	SenderID string
	Text     string
}

// client is one attached WebSocket connection and its outbound mailbox.
type client struct {
	info session.ParticipantInfo
	conn *websocket.Conn
	out  chan wire.Message

	cancel context.CancelFunc
}

// Server is the Host's signaling + file server. The zero value is not
// usable; construct with New.
type Server struct {
	id       string
	username string
	log      *slog.Logger

	roster     *session.Roster
	hosted     *syncmap.Map[string, *session.HostedFile]
	receivable *syncmap.Map[string, *session.ReceivableFile]

	files *fileserver.Server

	mu        sync.Mutex
	started   bool
	listener  net.Listener
	httpSrv   *http.Server
	port      int
	clients   map[string]*client
	clientsMu sync.RWMutex

	onText func(TextEvent)
}

// New constructs a Host identified by id/username. onText, if non-nil, is
// invoked for every non-empty text payload that names the host as a
// recipient.
func New(id, username string, log *slog.Logger, onText func(TextEvent)) *Server {
	if id == "" {
		id = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("src", "host")

	hostInfo := session.ParticipantInfo{ID: id, Username: username, IsHost: true}
	roster := session.NewRoster(hostInfo)
	hosted := syncmap.New[string, *session.HostedFile]()
	receivable := syncmap.New[string, *session.ReceivableFile]()

	s := &Server{
		id:         id,
		username:   username,
		log:        log,
		roster:     roster,
		hosted:     hosted,
		receivable: receivable,
		clients:    make(map[string]*client),
		onText:     onText,
	}
	s.files = fileserver.New(hosted, log)
	return s
}

// ID returns the host's own participant id.
func (s *Server) ID() string { return s.id }

// Port returns the bound signaling port; only meaningful once Start
// succeeds.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Server) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Roster returns the live roster (host first, clients in join order).
func (s *Server) Roster() []session.ParticipantInfo { return s.roster.Full() }

// HostedFiles returns a value snapshot of every share this host owns,
// copied out under each entry's own lock so a caller never observes a
// partially-applied progress update.
func (s *Server) HostedFiles() map[string]session.HostedFileSnapshot {
	out := make(map[string]session.HostedFileSnapshot)
	s.hosted.ForEach(func(id string, h *session.HostedFile) {
		out[id] = h.Snapshot()
	})
	return out
}

// ReceivableFiles returns a value snapshot of every file this host can
// download, copied out under each entry's own lock.
func (s *Server) ReceivableFiles() map[string]session.ReceivableFileSnapshot {
	out := make(map[string]session.ReceivableFileSnapshot)
	s.receivable.ForEach(func(id string, r *session.ReceivableFile) {
		out[id] = r.Snapshot()
	})
	return out
}

// Start binds basePort..basePort+searchWidth-1 (first free wins) and
// begins serving /connect and /file on that listener.
func (s *Server) Start(basePort uint16, searchWidth int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/file", s.files.ServeFile)

	var lastErr error
	for attempt := 0; attempt < searchWidth; attempt++ {
		port := int(basePort) + attempt

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			port = ln.Addr().(*net.TCPAddr).Port
			s.mu.Lock()
			s.listener = ln
			s.port = port
			s.started = true
			s.httpSrv = &http.Server{Handler: mux, IdleTimeout: 0}
			s.mu.Unlock()

			s.log.Info("host.listening", slog.Int("port", port))

			go func() {
				if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Warn("host.serve.error", slog.String("err", err.Error()))
				}
			}()

			return nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("host: bind port %d: %w", port, err)
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrBindFailed, lastErr)
}

// Stop closes every attached client socket, the signaling listener and
// the file server, and clears all session state, per the shutdown
// contract.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.started = false
	s.mu.Unlock()

	var merr *multierror.Error

	s.clientsMu.Lock()
	for id, c := range s.clients {
		c.cancel()
		if err := c.conn.Close(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("close client %s: %w", id, err))
		}
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("shutdown signaling listener: %w", err))
		}
	}

	for _, id := range s.roster.Clients() {
		s.roster.Remove(id.ID)
	}
	s.hosted.Clear()
	s.receivable.Clear()

	s.log.Info("host.stopped")
	return merr.ErrorOrNil()
}
