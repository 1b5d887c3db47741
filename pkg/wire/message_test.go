package wire

import (
	"strings"
	"testing"

	"github.com/wiresync/p2pcore/pkg/session"
)

func wantErrContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error = %v, want contains %q", err, substr)
	}
}

func TestRoundTrip_Payload(t *testing.T) {
	clients := []session.ParticipantInfo{{ID: "b", Username: "bob"}}
	files := []session.FileInfo{{ID: "f1", Name: "a.bin", SizeBytes: 10, SenderID: "a"}}
	m := NewPayload("a", clients, "hello", files)

	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.SenderID != m.SenderID || got.Type != TypePayload {
		t.Fatalf("got = %+v, want sender/type preserved", got)
	}
	if got.Payload.Text != "hello" {
		t.Fatalf("text = %q, want hello", got.Payload.Text)
	}
	if len(got.Payload.Files) != 1 || got.Payload.Files[0].ID != "f1" {
		t.Fatalf("files = %+v", got.Payload.Files)
	}
	if len(got.Clients) != 1 || got.Clients[0].ID != "b" {
		t.Fatalf("clients = %+v", got.Clients)
	}
}

func TestRoundTrip_ClientList(t *testing.T) {
	roster := []session.ParticipantInfo{
		{ID: "host", IsHost: true},
		{ID: "a"},
		{ID: "b"},
	}
	m := NewClientList("host", roster)

	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Type != TypeClientList {
		t.Fatalf("type = %s, want clientList", got.Type)
	}
	if len(got.Clients) != 3 || !got.Clients[0].IsHost {
		t.Fatalf("clients = %+v, want host first", got.Clients)
	}
}

func TestRoundTrip_FileProgressUpdate(t *testing.T) {
	target := session.ParticipantInfo{ID: "sender-1"}
	body := ProgressBody{
		FileID:          "f1",
		ReceiverID:      "r1",
		BytesDownloaded: 2048,
		FileState:       "downloading",
	}
	m := NewFileProgressUpdate("r1", target, body)

	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Type != TypeFileProgressUpdate {
		t.Fatalf("type = %s, want fileProgressUpdate", got.Type)
	}
	if len(got.Clients) != 1 || got.Clients[0].ID != "sender-1" {
		t.Fatalf("clients = %+v, want exactly the original sender", got.Clients)
	}
	if got.Progress != body {
		t.Fatalf("progress = %+v, want %+v", got.Progress, body)
	}
}

func TestDecode_MalformedJSONIsNonFatal(t *testing.T) {
	_, err := Decode([]byte(`{"sender_id": "a", "type": `))
	wantErrContains(t, err, "wire:")
}

func TestDecode_UnknownTypeFallsBack(t *testing.T) {
	got, err := Decode([]byte(`{"sender_id":"a","type":"bogus","payload":null,"clients":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeUnknown {
		t.Fatalf("type = %s, want unknown", got.Type)
	}
}

func TestDecode_MissingFieldsDefault(t *testing.T) {
	got, err := Decode([]byte(`{}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SenderID != "" {
		t.Fatalf("sender_id = %q, want empty", got.SenderID)
	}
	if got.Type != TypeUnknown {
		t.Fatalf("type = %s, want unknown default", got.Type)
	}
	if len(got.Clients) != 0 {
		t.Fatalf("clients = %+v, want empty", got.Clients)
	}
}

func TestDecode_BothEmptyPayloadTolerated(t *testing.T) {
	m := NewPayload("a", nil, "", nil)
	raw, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payload.Text != "" || len(got.Payload.Files) != 0 {
		t.Fatalf("expected gracefully empty payload, got %+v", got.Payload)
	}
}
