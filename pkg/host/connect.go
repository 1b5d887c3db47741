package host

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/wire"
)

// handleConnect upgrades GET /connect?id=<id>&username=<name>[&filePort=<p>]
// and attaches the new client per §4.4.1.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	username := q.Get("username")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("host.upgrade.error", slog.String("err", err.Error()))
		return
	}

	info := session.ParticipantInfo{ID: clientID, Username: username, IsHost: false}
	s.roster.Upsert(info)

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		info:   info,
		conn:   conn,
		out:    make(chan wire.Message, mailboxBufferLen),
		cancel: cancel,
	}

	s.clientsMu.Lock()
	s.clients[clientID] = c
	s.clientsMu.Unlock()

	s.log.Info("host.client.attached", slog.String("client_id", clientID), slog.String("username", username))

	s.broadcastRoster()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, c) })
	g.Go(func() error { return s.writeLoop(gctx, c) })

	go func() {
		_ = g.Wait()
		s.detach(clientID)
	}()
}

func (s *Server) detach(clientID string) {
	s.clientsMu.Lock()
	c, ok := s.clients[clientID]
	if ok {
		delete(s.clients, clientID)
	}
	s.clientsMu.Unlock()
	if !ok {
		return
	}

	c.cancel()
	_ = c.conn.Close()

	s.roster.Remove(clientID)
	s.log.Info("host.client.detached", slog.String("client_id", clientID))
	s.broadcastRoster()
}

func (s *Server) broadcastRoster() {
	msg := wire.NewClientList(s.id, s.roster.Full())
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.out <- msg:
		default:
			s.log.Warn("host.mailbox.full", slog.String("client_id", c.info.ID))
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) error {
	l := s.log.With("loop", "read", "client_id", c.info.ID)
	_ = c.conn.SetReadDeadline(time.Time{})
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval * pongWaitMultiplier))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			l.Info("host.client.read.closed", slog.String("err", err.Error()))
			return err
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			l.Warn("host.frame.malformed", slog.String("err", err.Error()))
			continue
		}

		s.route(c.info.ID, msg)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) error {
	l := s.log.With("loop", "write", "client_id", c.info.ID)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-c.out:
			if !ok {
				return nil
			}
			raw, err := wire.Encode(msg)
			if err != nil {
				l.Warn("host.encode.error", slog.String("err", err.Error()))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				l.Warn("host.write.error", slog.String("err", err.Error()))
				return err
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.Warn("host.ping.error", slog.String("err", err.Error()))
				return err
			}
		}
	}
}

// route implements §4.4.2's message routing table for a frame received
// from senderID.
func (s *Server) route(senderID string, msg wire.Message) {
	switch msg.Type {
	case wire.TypePayload:
		s.routePayload(senderID, msg)
	case wire.TypeFileProgressUpdate:
		s.routeProgress(senderID, msg)
	default:
		s.log.Warn("host.message.dropped", slog.String("type", string(msg.Type)), slog.String("sender_id", senderID))
	}
}

func (s *Server) routePayload(senderID string, msg wire.Message) {
	deliverLocal := false
	for _, p := range msg.Clients {
		if p.ID == s.id {
			deliverLocal = true
			break
		}
	}

	if deliverLocal {
		for _, fi := range msg.Payload.Files {
			if _, exists := s.receivable.Get(fi.ID); !exists {
				s.receivable.Put(fi.ID, session.NewReceivableFile(fi))
			}
		}
		if msg.Payload.Text != "" && s.onText != nil {
			s.onText(TextEvent{SenderID: senderID, Text: msg.Payload.Text})
		}
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, p := range msg.Clients {
		if p.ID == s.id {
			continue
		}
		if c, ok := s.clients[p.ID]; ok {
			select {
			case c.out <- msg:
			default:
				s.log.Warn("host.mailbox.full", slog.String("client_id", p.ID))
			}
		}
	}
}

func (s *Server) routeProgress(senderID string, msg wire.Message) {
	if len(msg.Clients) != 1 {
		s.log.Warn("host.progress.malformed", slog.String("sender_id", senderID))
		return
	}
	target := msg.Clients[0].ID

	if target == s.id {
		hf, ok := s.hosted.Get(msg.Progress.FileID)
		if !ok || !hf.HasRecipient(msg.Progress.ReceiverID) {
			return
		}
		hf.UpdateProgress(msg.Progress.ReceiverID, msg.Progress.BytesDownloaded, session.ParseFileState(msg.Progress.FileState))
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if c, ok := s.clients[target]; ok {
		select {
		case c.out <- msg:
		default:
			s.log.Warn("host.mailbox.full", slog.String("client_id", target))
		}
	}
}
