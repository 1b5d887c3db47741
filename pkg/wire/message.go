// Package wire implements the JSON-encoded tagged-union message that
// crosses the signaling WebSocket between Host and Client: Message, typed
// by its Type field, dispatching to a PayloadBody or ProgressBody. The
// encoding mirrors the teacher's enum-with-typed-constructors idiom
// (internal/protocol.MessageID) adapted from a fixed binary tag to a JSON
// string discriminator, since the core's wire format is JSON rather than
// a length-prefixed binary frame.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/wiresync/p2pcore/pkg/session"
)

// MessageType discriminates the shape of Message.Payload on the wire.
type MessageType string

const (
	TypePayload            MessageType = "payload"
	TypeClientList         MessageType = "clientList"
	TypeFileProgressUpdate MessageType = "fileProgressUpdate"
	// TypeUnknown is never emitted by this core; it is the fallback used
	// when decoding a frame whose type is absent or unrecognized.
	TypeUnknown MessageType = "unknown"
)

func (t MessageType) String() string {
	switch t {
	case TypePayload, TypeClientList, TypeFileProgressUpdate:
		return string(t)
	default:
		return string(TypeUnknown)
	}
}

func parseType(s string) MessageType {
	switch MessageType(s) {
	case TypePayload, TypeClientList, TypeFileProgressUpdate:
		return MessageType(s)
	default:
		return TypeUnknown
	}
}

// PayloadBody carries free text and/or file announcements. The message's
// Clients field lists the intended recipient set.
type PayloadBody struct {
	Text  string             `json:"text"`
	Files []session.FileInfo `json:"files"`
}

// ProgressBody reports one recipient's download progress for a file back
// to that file's original sender. The message's Clients field contains
// exactly that one sender.
type ProgressBody struct {
	FileID          string `json:"file_id"`
	ReceiverID      string `json:"receiver_id"`
	BytesDownloaded int64  `json:"bytes_downloaded"`
	FileState       string `json:"file_state"`
}

// Message is the tagged union exchanged over the signaling connection.
// Only the field matching Type is meaningful; the others are zero.
type Message struct {
	SenderID string
	Type     MessageType
	Clients  []session.ParticipantInfo
	Payload  PayloadBody
	Progress ProgressBody
}

func NewPayload(senderID string, clients []session.ParticipantInfo, text string, files []session.FileInfo) Message {
	return Message{
		SenderID: senderID,
		Type:     TypePayload,
		Clients:  clients,
		Payload:  PayloadBody{Text: text, Files: files},
	}
}

// NewClientList builds the Host's full-roster broadcast. Only the Host
// originates this type.
func NewClientList(hostID string, roster []session.ParticipantInfo) Message {
	return Message{SenderID: hostID, Type: TypeClientList, Clients: roster}
}

// NewFileProgressUpdate builds a progress report addressed to target, the
// original sender of the file in question.
func NewFileProgressUpdate(senderID string, target session.ParticipantInfo, body ProgressBody) Message {
	return Message{
		SenderID: senderID,
		Type:     TypeFileProgressUpdate,
		Clients:  []session.ParticipantInfo{target},
		Progress: body,
	}
}

// wireForm is the literal JSON envelope: field names exactly as specified
// on the wire (sender_id/type/payload/clients).
type wireForm struct {
	SenderID string                    `json:"sender_id"`
	Type     string                    `json:"type"`
	Payload  json.RawMessage           `json:"payload"`
	Clients  []session.ParticipantInfo `json:"clients"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireForm{
		SenderID: m.SenderID,
		Type:     m.Type.String(),
		Clients:  m.Clients,
	}

	var (
		raw []byte
		err error
	)
	switch m.Type {
	case TypePayload:
		raw, err = json.Marshal(m.Payload)
	case TypeFileProgressUpdate:
		raw, err = json.Marshal(m.Progress)
	default:
		raw = []byte("null")
	}
	if err != nil {
		return nil, fmt.Errorf("wire: encode payload for type %s: %w", m.Type, err)
	}
	w.Payload = raw

	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("wire: decode envelope: %w", err)
	}

	m.SenderID = w.SenderID
	m.Clients = w.Clients
	if m.Clients == nil {
		m.Clients = []session.ParticipantInfo{}
	}
	m.Type = parseType(w.Type)
	m.Payload = PayloadBody{Files: []session.FileInfo{}}
	m.Progress = ProgressBody{}

	if len(w.Payload) == 0 || string(w.Payload) == "null" {
		return nil
	}

	switch m.Type {
	case TypePayload:
		if err := json.Unmarshal(w.Payload, &m.Payload); err != nil {
			return fmt.Errorf("wire: decode payload body: %w", err)
		}
		if m.Payload.Files == nil {
			m.Payload.Files = []session.FileInfo{}
		}
	case TypeFileProgressUpdate:
		if err := json.Unmarshal(w.Payload, &m.Progress); err != nil {
			return fmt.Errorf("wire: decode progress body: %w", err)
		}
	}

	return nil
}

// Decode parses one wire frame. On error the caller must log and drop the
// frame, leaving the connection open — malformed input is never fatal to
// a signaling connection.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("wire: malformed frame: %w", err)
	}
	return m, nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
