package fileserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/wiresync/p2pcore/pkg/session"
	"github.com/wiresync/p2pcore/pkg/syncmap"
)

func newTestServer(t *testing.T, content []byte) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	shares := syncmap.New[string, *session.HostedFile]()
	shares.Put("f1", session.NewHostedFile(
		session.FileInfo{ID: "f1", Name: "report.pdf", SizeBytes: int64(len(content))},
		path,
		nil,
	))

	return New(shares, nil), path
}

func doRequest(s *Server, target string, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	s.handleFile(rec, req)
	return rec
}

func TestHandleFile_MissingID(t *testing.T) {
	s, _ := newTestServer(t, []byte("x"))
	rec := doRequest(s, "/file", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFile_UnknownID(t *testing.T) {
	s, _ := newTestServer(t, []byte("x"))
	rec := doRequest(s, "/file?id=nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleFile_FullDownload(t *testing.T) {
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i)
	}
	s, _ := newTestServer(t, content)

	rec := doRequest(s, "/file?id=f1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Content-Length") != "2048" {
		t.Fatalf("content-length = %s", rec.Header().Get("Content-Length"))
	}
	body, _ := io.ReadAll(rec.Body)
	if len(body) != 2048 || body[0] != content[0] || body[2047] != content[2047] {
		t.Fatalf("body mismatch, len=%d", len(body))
	}
}

func TestHandleFile_RangeFullEquivalence(t *testing.T) {
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 256)
	}
	s, _ := newTestServer(t, content)

	full := doRequest(s, "/file?id=f1", "")
	ranged := doRequest(s, "/file?id=f1", "bytes=0-999")

	if ranged.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", ranged.Code)
	}

	fullBody, _ := io.ReadAll(full.Body)
	rangedBody, _ := io.ReadAll(ranged.Body)
	if string(fullBody) != string(rangedBody) {
		t.Fatalf("range [0,size-1] should byte-equal a full GET")
	}
}

func TestHandleFile_RangeBeyondSize(t *testing.T) {
	s, _ := newTestServer(t, make([]byte, 100))

	rec := doRequest(s, "/file?id=f1", "bytes=5000000-")
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */100" {
		t.Fatalf("content-range = %q, want bytes */100", got)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body written on 416")
	}
}

func TestHandleFile_ZeroByteFile(t *testing.T) {
	s, _ := newTestServer(t, []byte{})

	rec := doRequest(s, "/file?id=f1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Content-Length") != "0" {
		t.Fatalf("content-length = %s, want 0", rec.Header().Get("Content-Length"))
	}
}

func TestHandleFile_BackingFileRemoved(t *testing.T) {
	s, path := newTestServer(t, []byte("data"))
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}

	rec := doRequest(s, "/file?id=f1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	if _, ok := s.shares.Get("f1"); ok {
		t.Fatalf("expected share removed from memory after missing backing file")
	}
}
