// pkg/network/messages.go
package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// Hello is the first message a client sends.
type Hello struct {
	Name string `json:"name"`
}

// Welcome answers a successful Hello.
type Welcome struct {
	ClientID string         `json:"clientID"`
	Tick     uint64         `json:"tick"`
	Limits   physics.Limits `json:"limits"`
}

// SetHeadingMessage asks for a new desired heading.
type SetHeadingMessage struct {
	RequestID uint64 `json:"requestID"`
	FighterID string `json:"fighterID"`
	Heading   int    `json:"heading"`
}

// InertialMessage carries a full inertial state. It is used both for
// SetInertialRequest and SpawnRequest.
type InertialMessage struct {
	RequestID uint64 `json:"requestID"`
	FighterID string `json:"fighterID"`
	Heading   int    `json:"heading"`
	Speed     int    `json:"speed"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

// CommandResultMessage reports whether a command was applied. Error is set
// when the command never reached the engine.
type CommandResultMessage struct {
	RequestID uint64 `json:"requestID"`
	FighterID string `json:"fighterID"`
	Kind      string `json:"kind"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
}

// PingMessage is echoed back unchanged as a PingResponse.
type PingMessage struct {
	RequestID uint64    `json:"requestID"`
	Sent      time.Time `json:"sent"`
}

// ErrorMessage reports a protocol failure.
type ErrorMessage struct {
	Error string `json:"error"`
}

// requestHeader extracts the request ID from any command payload.
type requestHeader struct {
	RequestID uint64 `json:"requestID"`
	FighterID string `json:"fighterID"`
}

func (m SetHeadingMessage) command() engine.Command {
	return engine.Command{Kind: engine.SetHeading, FighterID: m.FighterID, Heading: m.Heading}
}

func (m InertialMessage) command(kind engine.CommandKind) engine.Command {
	return engine.Command{Kind: kind, FighterID: m.FighterID, Heading: m.Heading, Speed: m.Speed, X: m.X, Y: m.Y}
}

func commandKindFor(t MessageType) (engine.CommandKind, bool) {
	switch t {
	case SetHeadingRequest:
		return engine.SetHeading, true
	case SetInertialRequest:
		return engine.SetInertial, true
	case SpawnRequest:
		return engine.Spawn, true
	default:
		return 0, false
	}
}

// decodeCommand builds the engine command carried by a command frame.
func decodeCommand(msgType MessageType, data []byte) (engine.Command, error) {
	kind, ok := commandKindFor(msgType)
	if !ok {
		return engine.Command{}, fmt.Errorf("%s is not a command", msgType)
	}
	if kind == engine.SetHeading {
		var msg SetHeadingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return engine.Command{}, fmt.Errorf("invalid %s payload: %w", kind, err)
		}
		return msg.command(), nil
	}
	var msg InertialMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return engine.Command{}, fmt.Errorf("invalid %s payload: %w", kind, err)
	}
	return msg.command(kind), nil
}
