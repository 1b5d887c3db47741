package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wiresync/p2pcore/pkg/config"
	"github.com/wiresync/p2pcore/pkg/downloader"
)

func TestMain(m *testing.M) {
	config.Init()
	os.Exit(m.Run())
}

func TestHostFacade_NotActiveBeforeStart(t *testing.T) {
	f := NewHostFacade("host-1", "alice", nil, nil)

	if _, err := f.ShareFile("x", "x.bin", 1, nil, nil); err != ErrNotActive {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
	if err := f.BroadcastText("hi", nil); err != ErrNotActive {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
}

func TestClientFacade_NotConnectedBeforeConnect(t *testing.T) {
	f := NewClientFacade("client-1", "bob", nil, nil)

	if err := f.SendText("hi", nil); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestFacades_TextBroadcastToTwoClients(t *testing.T) {
	hostIP := StaticIPSource("127.0.0.1")

	host := NewHostFacade("host-1", "alice", hostIP, nil)
	if err := host.Start(0, 1); err != nil {
		t.Fatalf("host start: %v", err)
	}
	t.Cleanup(func() { _ = host.Stop(context.Background()) })

	a := NewClientFacade("a", "client-a", hostIP, nil)
	b := NewClientFacade("b", "client-b", hostIP, nil)
	t.Cleanup(func() { _ = a.Disconnect() })
	t.Cleanup(func() { _ = b.Disconnect() })

	if err := a.Connect(context.Background(), "127.0.0.1", uint16(host.Port()), 1, 0, 1); err != nil {
		t.Fatalf("a connect: %v", err)
	}
	if err := b.Connect(context.Background(), "127.0.0.1", uint16(host.Port()), 1, 0, 1); err != nil {
		t.Fatalf("b connect: %v", err)
	}
	waitForConnected(t, a)
	waitForConnected(t, b)

	// Let the roster settle on the host before broadcasting so both
	// clients are resolvable recipients.
	waitForRoster(t, host, 2)

	if err := host.BroadcastText("hello", nil); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	assertTextReceived(t, a, "hello")
	assertTextReceived(t, b, "hello")
}

func TestFacades_ShareAndDownload(t *testing.T) {
	hostIP := StaticIPSource("127.0.0.1")

	host := NewHostFacade("host-1", "alice", hostIP, nil)
	if err := host.Start(0, 1); err != nil {
		t.Fatalf("host start: %v", err)
	}
	t.Cleanup(func() { _ = host.Stop(context.Background()) })

	a := NewClientFacade("a", "client-a", hostIP, nil)
	t.Cleanup(func() { _ = a.Disconnect() })
	if err := a.Connect(context.Background(), "127.0.0.1", uint16(host.Port()), 1, 0, 1); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForConnected(t, a)
	waitForRoster(t, host, 1)

	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "report.pdf")
	content := make([]byte, 2048)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(srcPath, content, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	info, err := host.ShareFile(srcPath, "report.pdf", int64(len(content)), nil, []string{"a"})
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	if !waitForReceivable(t, a, info.ID) {
		t.Fatalf("client never learned about shared file")
	}

	dlDir := t.TempDir()
	var finalPercent float64
	opts := downloader.NewOptions(dlDir)
	opts.OnLocalProgress = func(_, _ int64, percent float64) { finalPercent = percent }

	ok, err := a.DownloadFile(context.Background(), info.ID, opts)
	if err != nil || !ok {
		t.Fatalf("download failed: ok=%v err=%v", ok, err)
	}
	if finalPercent != 100 {
		t.Fatalf("final percent = %v, want 100", finalPercent)
	}

	got, err := os.ReadFile(filepath.Join(dlDir, "report.pdf"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content mismatch")
	}
}

func waitForConnected(t *testing.T, f *ClientFacade) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.State().String() == "connected" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client never reached connected state")
}

func waitForRoster(t *testing.T, f *HostFacade, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for roster := range f.Roster(ctx) {
		if len(roster) >= n {
			cancel()
			return
		}
	}
	t.Fatalf("roster never reached %d entries", n)
}

func waitForReceivable(t *testing.T, f *ClientFacade, fileID string) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for snap := range f.ReceivableFiles(ctx) {
		if _, ok := snap[fileID]; ok {
			cancel()
			return true
		}
	}
	return false
}

func assertTextReceived(t *testing.T, f *ClientFacade, want string) {
	t.Helper()
	select {
	case ev := <-f.Texts():
		if ev.Text != want {
			t.Fatalf("text = %q, want %q", ev.Text, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for text %q", want)
	}
}
