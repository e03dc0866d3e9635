// pkg/network/codec.go
package network

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MessageType defines the type of network message
type MessageType byte

const (
	HelloRequest MessageType = iota
	WelcomeResponse
	DisconnectNotification
	StateUpdate
	SetHeadingRequest
	SetInertialRequest
	SpawnRequest
	CommandResult
	PingRequest
	PingResponse
	ErrorResponse
)

var messageTypeNames = map[MessageType]string{
	HelloRequest:           "hello",
	WelcomeResponse:        "welcome",
	DisconnectNotification: "disconnect",
	StateUpdate:            "state_update",
	SetHeadingRequest:      "set_heading",
	SetInertialRequest:     "set_inertial",
	SpawnRequest:           "spawn",
	CommandResult:          "command_result",
	PingRequest:            "ping",
	PingResponse:           "pong",
	ErrorResponse:          "error",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// MaxFrameSize is the largest payload a frame's uint16 length can carry.
const MaxFrameSize = 1<<16 - 1

// ErrMessageTooLarge is returned when a payload does not fit in one frame.
var ErrMessageTooLarge = errors.New("message too large")

// EncodeMessage builds a complete frame: type byte, big-endian uint16
// payload length, JSON payload.
func EncodeMessage(msgType MessageType, msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msgType, err)
	}
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("encode %s: %w (%d bytes)", msgType, ErrMessageTooLarge, len(data))
	}

	var buf bytes.Buffer
	buf.Grow(3 + len(data))
	buf.WriteByte(byte(msgType))
	binary.Write(&buf, binary.BigEndian, uint16(len(data)))
	buf.Write(data)
	return buf.Bytes(), nil
}

// WriteMessage encodes msg and writes it with a single Write call.
func WriteMessage(w io.Writer, msgType MessageType, msg interface{}) error {
	frame, err := EncodeMessage(msgType, msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame.
func ReadMessage(r io.Reader) (MessageType, []byte, error) {
	var header [3]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	msgLen := binary.BigEndian.Uint16(header[1:])
	data := make([]byte, msgLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, fmt.Errorf("read %d byte payload: %w", msgLen, err)
	}
	return MessageType(header[0]), data, nil
}
