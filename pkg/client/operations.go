package client

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wiresync/p2pcore/pkg/downloader"
	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/wire"
)

// Share implements §4.5.5: send the Host one payload message naming the
// ultimate recipients; the Host relays per §4.4.2. groupIP is the
// client's own observed group IPv4 (§6); without it share fails with
// ip-unknown.
func (p *Peer) Share(localPath, name string, sizeBytes int64, groupIP string, metadata map[string]string, recipients []session.ParticipantInfo) (session.FileInfo, error) {
	if groupIP == "" {
		return session.FileInfo{}, ErrIPUnknown
	}

	info := session.FileInfo{
		ID:         uuid.NewString(),
		Name:       name,
		SizeBytes:  sizeBytes,
		SenderID:   p.id,
		SenderIP:   groupIP,
		SenderPort: p.files.Port(),
		Metadata:   metadata,
	}

	hf := session.NewHostedFile(info, localPath, recipientIDs(recipients))
	p.hosted.Put(info.ID, hf)

	msg := wire.NewPayload(p.id, recipients, "", []session.FileInfo{info})
	if err := p.send(msg); err != nil {
		return session.FileInfo{}, err
	}
	return info, nil
}

// SendText sends a text payload to targets (the Host relays to each).
func (p *Peer) SendText(text string, targets []session.ParticipantInfo) error {
	msg := wire.NewPayload(p.id, targets, text, nil)
	return p.send(msg)
}

// DownloadFile fetches fileID from its announced sender, reporting
// progress back to that sender over the signaling channel (relayed by the
// Host when the sender is another client, per §4.5.5 step 3).
func (p *Peer) DownloadFile(ctx context.Context, fileID string, opts downloader.Options) (bool, error) {
	rf, ok := p.receivable.Get(fileID)
	if !ok {
		return false, downloader.ErrNotFound
	}

	opts.OnRemoteProgress = func(bytesDownloaded int64, state session.FileState) {
		target := session.ParticipantInfo{ID: rf.Info.SenderID}
		body := wire.ProgressBody{
			FileID:          fileID,
			ReceiverID:      p.id,
			BytesDownloaded: bytesDownloaded,
			FileState:       state.String(),
		}
		msg := wire.NewFileProgressUpdate(p.id, target, body)
		if err := p.send(msg); err != nil {
			p.log.Warn("client.progress.send_failed", slog.String("err", err.Error()))
		}
	}

	return downloader.Download(ctx, rf, rf.Info.SenderIP, rf.Info.SenderPort, p.id, opts, p.log)
}

func recipientIDs(recipients []session.ParticipantInfo) []string {
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	return ids
}
