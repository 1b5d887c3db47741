package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/wire"
)

func (p *Peer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	l := p.log.With("loop", "read")
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval * 3))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			l.Info("client.read.closed", slog.String("err", err.Error()))
			return err
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			l.Warn("client.frame.malformed", slog.String("err", err.Error()))
			continue
		}

		p.dispatch(msg)
	}
}

func (p *Peer) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	l := p.log.With("loop", "write")
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.writePing(conn); err != nil {
				l.Warn("client.ping.error", slog.String("err", err.Error()))
				return err
			}
		}
	}
}

func (p *Peer) writePing(conn *websocket.Conn) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// dispatch implements §4.5.2's receive-loop handling of a decoded frame.
func (p *Peer) dispatch(msg wire.Message) {
	switch msg.Type {
	case wire.TypeClientList:
		p.roster.Replace(msg.Clients, p.id)

	case wire.TypePayload:
		for _, fi := range msg.Payload.Files {
			if _, exists := p.receivable.Get(fi.ID); !exists {
				p.receivable.Put(fi.ID, session.NewReceivableFile(fi))
			}
		}
		if msg.Payload.Text != "" && p.onText != nil {
			p.onText(TextEvent{SenderID: msg.SenderID, Text: msg.Payload.Text})
		}

	case wire.TypeFileProgressUpdate:
		hf, ok := p.hosted.Get(msg.Progress.FileID)
		if !ok || !hf.HasRecipient(msg.Progress.ReceiverID) {
			return
		}
		hf.UpdateProgress(msg.Progress.ReceiverID, msg.Progress.BytesDownloaded, session.ParseFileState(msg.Progress.FileState))

	default:
		p.log.Warn("client.message.dropped", slog.String("type", string(msg.Type)))
	}
}
