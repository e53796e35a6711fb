package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/codehive/backend/internal/presence"
)

// Event name constants, client to server.
const (
	EventJoinRoom   = "join_room"
	EventCodeChange = "code_change"
	EventRunCode    = "run_code"
)

// Event name constants, server to client.
const (
	EventLoadCode      = "load_code"
	EventRoomUsers     = "room_users"
	EventUserLeft      = "user_left"
	EventRunCodeOutput = "run_code_output"
	EventError         = "error"
)

// Message is the wire envelope: an event name plus its payload. Inbound
// payloads stay raw until the event name tells us which struct to decode.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LineRange is one edited line span, advisory metadata for remote
// highlighting. Receivers must tolerate absent, empty, or stale ranges.
type LineRange struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// CodeChangePayload carries the full updated text for one or more language
// slots. Code is a partial map: absent languages are untouched.
type CodeChangePayload struct {
	RoomID   string            `json:"roomId,omitempty"`
	Code     map[string]string `json:"code"`
	Username string            `json:"username"`
	Changes  []LineRange       `json:"changes,omitempty"`
}

type LoadCodePayload struct {
	Code map[string]string `json:"code"`
}

type RoomUsersPayload struct {
	Users []presence.User `json:"users"`
}

type UserLeftPayload struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type RunCodePayload struct {
	RoomID string   `json:"roomId,omitempty"`
	Output []string `json:"output"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Decode parses a raw frame into its envelope.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("message missing event")
	}
	return &msg, nil
}

// DecodePayload unmarshals the envelope's data into the payload struct for
// its event type.
func DecodePayload(msg *Message, v interface{}) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("%s: missing payload", msg.Event)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%s: %w", msg.Event, err)
	}
	return nil
}

// Encode builds an outbound frame from an event name and payload.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Message{Event: event, Data: data})
}
