// Package fileserver implements the single-endpoint HTTP file server
// embedded in both the host signaling server and the client signaling
// peer: GET /file?id=<file_id>[&receiverId=<id>], serving a hosted
// share's bytes in full or by byte range. File bytes never cross the
// signaling WebSocket; they flow from here directly to pkg/downloader.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/syncmap"
)

var ErrBindFailed = errors.New("fileserver: no port available in search range")

// Server serves GET /file over plain HTTP/1.1. Idle timeouts are disabled
// so a slow or large ranged transfer is never dropped mid-stream.
type Server struct {
	log    *slog.Logger
	shares *syncmap.Map[string, *session.HostedFile]

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	port     int
}

// New creates a file server backed by shares, the same hosted-file table
// the owning Host/Client session mutates on share() calls. The server
// never adds to shares; it only reads and, on a missing backing file,
// deletes.
func New(shares *syncmap.Map[string, *session.HostedFile], log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{shares: shares, log: log.With("src", "fileserver")}
}

// Port returns the bound port; only meaningful after Start succeeds.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Start tries basePort, basePort+1, ... up to searchWidth sequential ports,
// binding the first one free. It returns ErrBindFailed if every attempt in
// the range hit EADDRINUSE, or the first non-EADDRINUSE error immediately.
func (s *Server) Start(basePort uint16, searchWidth int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/file", s.handleFile)

	var lastErr error
	for attempt := 0; attempt < searchWidth; attempt++ {
		port := int(basePort) + attempt

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			port = ln.Addr().(*net.TCPAddr).Port
			s.mu.Lock()
			s.listener = ln
			s.port = port
			s.httpSrv = &http.Server{
				Handler:      mux,
				ReadTimeout:  0,
				WriteTimeout: 0,
				IdleTimeout:  0,
			}
			s.mu.Unlock()

			s.log.Info("fileserver.listening", slog.Int("port", port))

			go func() {
				if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Warn("fileserver.serve.error", slog.String("err", err.Error()))
				}
			}()

			return nil
		}

		if !errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("fileserver: bind port %d: %w", port, err)
		}
		lastErr = err
	}

	s.log.Warn("fileserver.bind_failed",
		slog.Uint64("base_port", uint64(basePort)),
		slog.Int("search_width", searchWidth),
	)
	return fmt.Errorf("%w: %v", ErrBindFailed, lastErr)
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeFile is the exported form of handleFile, used by pkg/host to
// co-host this server's /file endpoint on its own *http.Server/mux rather
// than binding a second listener.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request) {
	s.handleFile(w, r)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "File ID parameter is required.", http.StatusBadRequest)
		return
	}

	share, ok := s.shares.Get(id)
	if !ok {
		http.Error(w, "File not found or access denied.", http.StatusNotFound)
		return
	}

	f, err := os.Open(share.LocalPath)
	if err != nil {
		s.shares.Delete(id)
		s.log.Warn("fileserver.file_missing",
			slog.String("file_id", id),
			slog.String("path", share.LocalPath),
		)
		http.Error(w, "File data is unavailable.", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		s.shares.Delete(id)
		http.Error(w, "File data is unavailable.", http.StatusInternalServerError)
		return
	}
	size := stat.Size()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(
		`attachment; filename="%s"`, mime.QEncoding.Encode("utf-8", share.Info.Name),
	))
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		io.CopyN(w, f, size) //nolint:errcheck // best-effort stream to a client that may disconnect
		return
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if _, err := f.Seek(start, 0); err != nil {
		http.Error(w, "File data is unavailable.", http.StatusInternalServerError)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	io.CopyN(w, f, length) //nolint:errcheck // best-effort stream to a client that may disconnect
}

// parseRange parses a single-range "bytes=start-end" (end optional) header
// value, validating 0 <= start < size and, if present, start <= end < size.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	// A multi-range request or a suffix range ("-500") is not supported;
	// this server serves exactly one contiguous range per request.
	if strings.Contains(spec, ",") || strings.HasPrefix(spec, "-") {
		return 0, 0, false
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	if parts[1] == "" {
		return start, size - 1, true
	}

	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start || end >= size {
		return 0, 0, false
	}

	return start, end, true
}
