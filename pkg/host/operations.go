package host

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wiresync/p2pcore/pkg/downloader"
	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/wire"
)

// Share publishes localPath as a new HostedFile to recipients (or, if
// recipients is empty, to every current client) and broadcasts the
// resulting FileInfo in a payload message. groupIP/filePort are the
// Host's own reachable file-server address, stamped into the FileInfo per
// §6.
func (s *Server) Share(localPath, name string, sizeBytes int64, groupIP string, filePort int, metadata map[string]string, recipients []string) (session.FileInfo, error) {
	if !s.isActive() {
		return session.FileInfo{}, ErrNotActive
	}
	if groupIP == "" {
		return session.FileInfo{}, ErrIPUnknown
	}

	if len(recipients) == 0 {
		for _, p := range s.roster.Clients() {
			recipients = append(recipients, p.ID)
		}
	}

	info := session.FileInfo{
		ID:         uuid.NewString(),
		Name:       name,
		SizeBytes:  sizeBytes,
		SenderID:   s.id,
		SenderIP:   groupIP,
		SenderPort: filePort,
		Metadata:   metadata,
	}

	hf := session.NewHostedFile(info, localPath, recipients)
	s.hosted.Put(info.ID, hf)

	clients := make([]session.ParticipantInfo, 0, len(recipients))
	for _, id := range recipients {
		if p, ok := s.roster.Get(id); ok {
			clients = append(clients, p)
		}
	}

	msg := wire.NewPayload(s.id, clients, "", []session.FileInfo{info})
	s.deliverPayload(clients, msg)

	return info, nil
}

// BroadcastText sends text to every current client; targets, if non-empty,
// restricts delivery to that subset.
func (s *Server) BroadcastText(text string, targets []string) error {
	if !s.isActive() {
		return ErrNotActive
	}

	var clients []session.ParticipantInfo
	if len(targets) == 0 {
		clients = s.roster.Clients()
	} else {
		for _, id := range targets {
			p, ok := s.roster.Get(id)
			if !ok {
				return ErrNoRecipient
			}
			clients = append(clients, p)
		}
	}

	msg := wire.NewPayload(s.id, clients, text, nil)
	s.deliverPayload(clients, msg)
	return nil
}

func (s *Server) deliverPayload(clients []session.ParticipantInfo, msg wire.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, p := range clients {
		if c, ok := s.clients[p.ID]; ok {
			select {
			case c.out <- msg:
			default:
				s.log.Warn("host.mailbox.full", slog.String("client_id", p.ID))
			}
		}
	}
}

// DownloadFile fetches fileID, previously learned via a payload message,
// from its announced sender address.
func (s *Server) DownloadFile(ctx context.Context, fileID string, opts downloader.Options) (bool, error) {
	if !s.isActive() {
		return false, ErrNotActive
	}

	rf, ok := s.receivable.Get(fileID)
	if !ok {
		return false, downloader.ErrNotFound
	}

	opts.OnRemoteProgress = func(bytesDownloaded int64, state session.FileState) {
		target, ok := s.roster.Get(rf.Info.SenderID)
		if !ok {
			return
		}
		body := wire.ProgressBody{
			FileID:          fileID,
			ReceiverID:      s.id,
			BytesDownloaded: bytesDownloaded,
			FileState:       state.String(),
		}
		msg := wire.NewFileProgressUpdate(s.id, target, body)
		s.deliverPayload([]session.ParticipantInfo{target}, msg)
	}

	return downloader.Download(ctx, rf, rf.Info.SenderIP, rf.Info.SenderPort, s.id, opts, s.log)
}
