package relayws

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type MessageType byte

const (
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
	BinaryMessage MessageType = 2
	DataMessage   MessageType = 1
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

func (t MessageType) IsData() bool {
	return t.Is(DataMessage)
}

func (t MessageType) IsPing() bool {
	return t.Is(PingMessage)
}

func (t MessageType) IsPong() bool {
	return t.Is(PongMessage)
}

// Message is an outbound frame handed to a Connection.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%d,data=%s}",
		m.MessageType, m.MessageData)
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewDataMessage(data []byte) Message {
	return NewMessage(DataMessage, data)
}

func NewBinaryMessage(data []byte) Message {
	return NewMessage(BinaryMessage, data)
}

func NewPingMessage(data []byte) Message {
	return NewMessage(PingMessage, data)
}

func NewPongMessage(data []byte) Message {
	return NewMessage(PongMessage, data)
}

// authEvent is the discriminant of the handshake frame.
const authEvent = "auth"

// authFrame is the first frame sent on every open connection.
type authFrame struct {
	E         string `json:"e"`
	UserToken string `json:"userToken"`
	Device    string `json:"device"`
}

func newAuthFrame(token, device string) authFrame {
	return authFrame{E: authEvent, UserToken: token, Device: device}
}

// encodePayload turns a caller payload into wire bytes. Strings and byte slices are
// assumed to be serialized already.
func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// tokens and labels go on the wire as they are, without \u003c style escapes
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrap(err, "cannot encode payload")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodePayload parses an inbound frame into its generic JSON form.
func decodePayload(data []byte) (any, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrapf(err, "cannot decode inbound frame %q", data)
	}
	return payload, nil
}
