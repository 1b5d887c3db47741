package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/wiresync/p2pcore/pkg/session"
)

// testFileHandler is a minimal stand-in for pkg/fileserver good enough to
// exercise the downloader's range/progress/error paths without importing
// across package boundaries.
func testFileHandler(content []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := int64(len(content))
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			w.WriteHeader(http.StatusOK)
			w.Write(content)
			return
		}

		var start int64
		end := size - 1
		fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[start : end+1])
	}
}

func peerFromURL(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return u.Hostname(), port
}

func TestDownload_Full(t *testing.T) {
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i)
	}
	srv := httptest.NewServer(testFileHandler(content))
	defer srv.Close()

	ip, port := peerFromURL(t, srv.URL)
	dir := t.TempDir()

	rf := session.NewReceivableFile(session.FileInfo{ID: "f1", Name: "report.pdf", SizeBytes: int64(len(content))})

	var lastPercent float64
	opts := NewOptions(dir)
	opts.OnLocalProgress = func(bytesDownloaded, totalSize int64, percent float64) {
		lastPercent = percent
	}

	ok, err := Download(context.Background(), rf, ip, port, "receiver-1", opts, nil)
	if err != nil || !ok {
		t.Fatalf("download failed: ok=%v err=%v", ok, err)
	}
	if lastPercent != 100 {
		t.Fatalf("final percent = %v, want 100", lastPercent)
	}
	if rf.State() != session.FileStateCompleted {
		t.Fatalf("state = %s, want completed", rf.State())
	}

	got, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content mismatch")
	}
}

func TestDownload_ZeroByteFile(t *testing.T) {
	srv := httptest.NewServer(testFileHandler([]byte{}))
	defer srv.Close()
	ip, port := peerFromURL(t, srv.URL)
	dir := t.TempDir()

	rf := session.NewReceivableFile(session.FileInfo{ID: "f1", Name: "empty.bin", SizeBytes: 0})

	var events int
	var lastPercent float64
	opts := NewOptions(dir)
	opts.OnLocalProgress = func(bytesDownloaded, totalSize int64, percent float64) {
		events++
		lastPercent = percent
	}

	ok, err := Download(context.Background(), rf, ip, port, "receiver-1", opts, nil)
	if err != nil || !ok {
		t.Fatalf("download failed: ok=%v err=%v", ok, err)
	}
	if events != 1 {
		t.Fatalf("progress events = %d, want exactly 1", events)
	}
	if lastPercent != 100 {
		t.Fatalf("percent = %v, want 100", lastPercent)
	}
}

func TestDownload_RangedResume(t *testing.T) {
	content := make([]byte, 2000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	srv := httptest.NewServer(testFileHandler(content))
	defer srv.Close()
	ip, port := peerFromURL(t, srv.URL)
	dir := t.TempDir()

	rf := session.NewReceivableFile(session.FileInfo{ID: "f1", Name: "img.bin", SizeBytes: int64(len(content))})

	firstEnd := int64(999)
	opts1 := NewOptions(dir)
	opts1.RangeStart = ptr(int64(0))
	opts1.RangeEnd = &firstEnd
	ok, err := Download(context.Background(), rf, ip, port, "receiver-1", opts1, nil)
	if err != nil || !ok {
		t.Fatalf("first range download failed: ok=%v err=%v", ok, err)
	}

	opts2 := NewOptions(dir)
	opts2.RangeStart = ptr(int64(1000))
	rf2 := session.NewReceivableFile(rf.Info)
	ok, err = Download(context.Background(), rf2, ip, port, "receiver-1", opts2, nil)
	if err != nil || !ok {
		t.Fatalf("second range download failed: ok=%v err=%v", ok, err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "img.bin"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("resumed file mismatch: got %d bytes, want %d", len(got), len(content))
	}
}

func TestDownload_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()
	ip, port := peerFromURL(t, srv.URL)
	dir := t.TempDir()

	rf := session.NewReceivableFile(session.FileInfo{ID: "f1", Name: "x.bin", SizeBytes: 10})
	ok, err := Download(context.Background(), rf, ip, port, "receiver-1", NewOptions(dir), nil)
	if ok || err == nil {
		t.Fatalf("expected failure, got ok=%v err=%v", ok, err)
	}
	if rf.State() != session.FileStateError {
		t.Fatalf("state = %s, want error", rf.State())
	}
}

func ptr[T any](v T) *T { return &v }
