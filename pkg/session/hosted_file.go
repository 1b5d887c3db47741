package session

import "sync"

// HostedFile is the sender-side record of one shared file: its local path
// on disk and the delivery progress of every intended recipient.
//
// Invariants (spec): BytesDelivered is monotonically non-decreasing per
// recipient and never exceeds Info.SizeBytes; a recipient is present in
// the table iff it was in the intended recipient set at share time.
type HostedFile struct {
	Info      FileInfo
	LocalPath string

	mu    sync.Mutex
	byRec map[string]RecipientProgress
}

// NewHostedFile creates a hosted share whose per_recipient table starts
// with every recipient at (0 bytes, idle).
func NewHostedFile(info FileInfo, localPath string, recipients []string) *HostedFile {
	byRec := make(map[string]RecipientProgress, len(recipients))
	for _, r := range recipients {
		byRec[r] = RecipientProgress{State: FileStateIdle}
	}
	return &HostedFile{Info: info, LocalPath: localPath, byRec: byRec}
}

// HasRecipient reports whether id was in the intended recipient set.
func (h *HostedFile) HasRecipient(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.byRec[id]
	return ok
}

// UpdateProgress applies a reported byte count / state for recipient id.
// It silently ignores unknown recipients and non-increasing byte counts,
// per the monotonic-delivery invariant, returning false in either case.
func (h *HostedFile) UpdateProgress(recipientID string, bytesDownloaded int64, state FileState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.byRec[recipientID]
	if !ok {
		return false
	}
	if bytesDownloaded <= cur.BytesDelivered {
		return false
	}

	if bytesDownloaded > h.Info.SizeBytes {
		bytesDownloaded = h.Info.SizeBytes
	}

	h.byRec[recipientID] = RecipientProgress{BytesDelivered: bytesDownloaded, State: state}
	return true
}

// RecipientProgress returns a copy of the per-recipient progress table,
// safe to read without holding any lock.
func (h *HostedFile) RecipientProgress() map[string]RecipientProgress {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]RecipientProgress, len(h.byRec))
	for k, v := range h.byRec {
		out[k] = v
	}
	return out
}

// HostedFileSnapshot is an immutable point-in-time value copy of a
// HostedFile, the shape exposed through the facades' observable streams
// so pollers never walk into the live, mutex-guarded object.
type HostedFileSnapshot struct {
	Info         FileInfo
	LocalPath    string
	PerRecipient map[string]RecipientProgress
}

// Snapshot copies out Info, LocalPath and the per-recipient table under
// lock into a plain value, safe to read and compare (e.g. reflect.DeepEqual
// in a poller) without racing the live object's mutators.
func (h *HostedFile) Snapshot() HostedFileSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	byRec := make(map[string]RecipientProgress, len(h.byRec))
	for k, v := range h.byRec {
		byRec[k] = v
	}
	return HostedFileSnapshot{
		Info:         h.Info,
		LocalPath:    h.LocalPath,
		PerRecipient: byRec,
	}
}

// Recipients returns the intended recipient set.
func (h *HostedFile) Recipients() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.byRec))
	for k := range h.byRec {
		out = append(out, k)
	}
	return out
}
