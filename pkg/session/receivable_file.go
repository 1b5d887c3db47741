package session

import "sync"

// ReceivableFile is the receiver-side view of a file it has been told
// about: its own download progress, independent of what the sender thinks
// happened (the sender's view lives in HostedFile.byRec on the sender's
// own peer).
//
// State transitions: idle -> downloading -> (completed | error); a failed
// download may be restarted, re-entering downloading.
type ReceivableFile struct {
	Info FileInfo

	mu       sync.Mutex
	state    FileState
	progress float64
	savePath string
}

// NewReceivableFile creates a receivable share in the idle state.
func NewReceivableFile(info FileInfo) *ReceivableFile {
	return &ReceivableFile{Info: info, state: FileStateIdle}
}

// Snapshot is an immutable point-in-time view of a ReceivableFile, the
// shape exposed through the facades' observable streams.
type ReceivableFileSnapshot struct {
	Info            FileInfo
	State           FileState
	ProgressPercent float64
	SavePath        string
}

func (r *ReceivableFile) Snapshot() ReceivableFileSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return ReceivableFileSnapshot{
		Info:            r.Info,
		State:           r.state,
		ProgressPercent: r.progress,
		SavePath:        r.savePath,
	}
}

func (r *ReceivableFile) State() FileState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StartDownload transitions idle/error -> downloading and records where
// the bytes will land.
func (r *ReceivableFile) StartDownload(savePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = FileStateDownloading
	r.savePath = savePath
	r.progress = 0
}

// SetProgress records a new completion percentage while downloading; it
// clamps to [0, 100] defensively against a miscomputed caller.
func (r *ReceivableFile) SetProgress(percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.progress = percent
}

func (r *ReceivableFile) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = FileStateCompleted
	r.progress = 100
}

func (r *ReceivableFile) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = FileStateError
}
