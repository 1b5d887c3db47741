// Package client implements the Client signaling peer: dials the Host's
// /connect WebSocket, runs a receive loop dispatching the same wire
// vocabulary as pkg/host, and drives the reconnect state machine of
// spec §4.5.3 on top of the teacher's pkg/retry helper.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wiresync/p2pcore/pkg/fileserver"
	"github.com/wiresync/p2pcore/pkg/retry"
	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/syncmap"
	"github.com/wiresync/p2pcore/pkg/wire"
)

var (
	ErrBindFailed   = errors.New("client: file server could not bind")
	ErrDialFailed   = errors.New("client: could not reach host")
	ErrIPUnknown    = errors.New("client: group ip not yet observed")
	ErrNotConnected = errors.New("client: not connected")
)

// maxRetryAttempts is the spec's cap on consecutive reconnect attempts
// after an unexpected disconnect (§4.5.3): 3 attempts, each preceded by
// its (1+attempt)-second wait (2s, 3s, 4s); the 3rd attempt's failure is
// terminal.
const maxRetryAttempts = 3

const (
	dialTimeout  = 10 * time.Second
	pingInterval = 5 * time.Second
)

// ConnState is the peer's current connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateTerminal
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// TextEvent mirrors host.TextEvent for the client side.
type TextEvent struct {
	SenderID string
	Text     string
}

// Peer is one Client's signaling connection plus its own embedded file
// server. The zero value is not usable; construct with New.
type Peer struct {
	id       string
	username string
	log      *slog.Logger

	hostIP          string
	hostBasePort    int
	hostSearchWidth int

	files      *fileserver.Server
	hosted     *syncmap.Map[string, *session.HostedFile]
	receivable *syncmap.Map[string, *session.ReceivableFile]
	roster     *session.Roster

	onText func(TextEvent)

	mu               sync.Mutex
	conn             *websocket.Conn
	state            atomic.Int32
	manualDisconnect bool
	cancel           context.CancelFunc

	// writeMu serializes every WriteMessage call against conn: gorilla's
	// websocket.Conn allows at most one concurrent writer, and both the
	// ping ticker (writeLoop) and application sends (send) write to it.
	writeMu sync.Mutex
}

// New constructs a Client identified by id/username (a fresh uuid is used
// if id is empty).
func New(id, username string, log *slog.Logger, onText func(TextEvent)) *Peer {
	if id == "" {
		id = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("src", "client")

	hosted := syncmap.New[string, *session.HostedFile]()
	receivable := syncmap.New[string, *session.ReceivableFile]()
	roster := session.NewRoster(session.ParticipantInfo{ID: id, Username: username})

	p := &Peer{
		id:         id,
		username:   username,
		log:        log,
		hosted:     hosted,
		receivable: receivable,
		roster:     roster,
		onText:     onText,
	}
	p.files = fileserver.New(hosted, log)
	return p
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) State() ConnState { return ConnState(p.state.Load()) }

func (p *Peer) FilePort() int { return p.files.Port() }

// Roster returns the last clientList broadcast the peer received, host
// first, excluding this peer itself (which Replace never inserts) — the
// "client exposes roster excluding itself" contract of spec §3.
func (p *Peer) Roster() []session.ParticipantInfo { return p.roster.Full() }

// HostedFiles returns a value snapshot of every share this peer owns,
// copied out under each entry's own lock so a caller never observes a
// partially-applied progress update.
func (p *Peer) HostedFiles() map[string]session.HostedFileSnapshot {
	out := make(map[string]session.HostedFileSnapshot)
	p.hosted.ForEach(func(id string, h *session.HostedFile) {
		out[id] = h.Snapshot()
	})
	return out
}

// ReceivableFiles returns a value snapshot of every file this peer can
// download, copied out under each entry's own lock.
func (p *Peer) ReceivableFiles() map[string]session.ReceivableFileSnapshot {
	out := make(map[string]session.ReceivableFileSnapshot)
	p.receivable.ForEach(func(id string, r *session.ReceivableFile) {
		out[id] = r.Snapshot()
	})
	return out
}

// Connect implements §4.5.1: start the file server, then dial the
// signaling WebSocket with sequential port retry.
func (p *Peer) Connect(ctx context.Context, hostIP string, basePort uint16, searchWidth int, filePortBase uint16, fileSearchWidth int) error {
	p.hostIP = hostIP
	p.hostBasePort = int(basePort)
	p.hostSearchWidth = searchWidth

	if err := p.files.Start(filePortBase, fileSearchWidth); err != nil {
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	p.mu.Lock()
	p.manualDisconnect = false
	p.mu.Unlock()
	p.state.Store(int32(StateConnecting))

	conn, err := p.dialSequential(ctx)
	if err != nil {
		p.state.Store(int32(StateDisconnected))
		return fmt.Errorf("%w: %v", ErrDialFailed, err)
	}

	p.onConnected(conn)
	return nil
}

// dialSequential tries p.hostBasePort..+hostSearchWidth-1, each with a
// dialTimeout-bounded attempt, per §4.5.1 step 2.
func (p *Peer) dialSequential(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < p.hostSearchWidth; attempt++ {
		port := p.hostBasePort + attempt
		conn, err := p.dial(ctx, port)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Peer) dial(ctx context.Context, port int) (*websocket.Conn, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", p.hostIP, port),
		Path:   "/connect",
		RawQuery: url.Values{
			"id":       {p.id},
			"username": {p.username},
			"filePort": {fmt.Sprintf("%d", p.files.Port())},
		}.Encode(),
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (p *Peer) onConnected(conn *websocket.Conn) {
	p.mu.Lock()
	p.conn = conn
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.state.Store(int32(StateConnected))
	p.log.Info("client.connected", slog.String("host", p.hostIP))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.readLoop(gctx, conn) })
	g.Go(func() error { return p.writeLoop(gctx, conn) })

	go func() {
		err := g.Wait()
		p.onDisconnected(err)
	}()
}

// onDisconnected implements §4.5.3: manual disconnects tear down fully
// and never reconnect; unexpected disconnects keep the file server alive
// and retry per a (1+attempt)-second schedule, each attempt preceded by
// its wait, terminal after maxRetryAttempts consecutive failures.
func (p *Peer) onDisconnected(cause error) {
	p.mu.Lock()
	manual := p.manualDisconnect
	p.mu.Unlock()

	p.state.Store(int32(StateDisconnected))

	if manual {
		p.teardownManual()
		return
	}

	p.log.Warn("client.disconnected.unexpected", slog.String("err", fmt.Sprint(cause)))
	go p.reconnectLoop()
}

func (p *Peer) reconnectLoop() {
	err := retry.Do(context.Background(), func(ctx context.Context) error {
		p.state.Store(int32(StateConnecting))
		conn, err := p.dialSequential(ctx)
		if err != nil {
			return err
		}
		p.onConnected(conn)
		return nil
	}, retry.WithAttemptDelaySeconds(maxRetryAttempts)...)

	if err != nil {
		p.state.Store(int32(StateTerminal))
		_ = p.files.Stop(context.Background())
		p.log.Warn("client.disconnected.terminal", slog.String("err", err.Error()))
	}
}

func (p *Peer) teardownManual() {
	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()
	_ = p.files.Stop(context.Background())
	for _, c := range p.roster.Clients() {
		p.roster.Remove(c.ID)
	}
	p.log.Info("client.teardown.manual")
}

// Disconnect implements the manual-disconnect path of §4.5.3.
func (p *Peer) Disconnect() error {
	p.mu.Lock()
	p.manualDisconnect = true
	cancel := p.cancel
	conn := p.conn
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// send implements §4.5.4: a write failure transitions to not-connected
// and lets the reconnect path (already running via onDisconnected) take
// over.
func (p *Peer) send(msg wire.Message) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	raw, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		p.state.Store(int32(StateDisconnected))
		return err
	}
	return nil
}
