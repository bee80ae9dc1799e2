// Package protocol defines the WebSocket envelope shared by the chat server
// and its clients.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types from client to server
const (
	TypeChatMessageSend  = "chat_message_send"
	TypeChatSessionClose = "chat_session_close"
)

// Message types from server to client
const (
	TypeChatMessageReceive = "chat_message_receive"
	TypeNewChatSession     = "new_chat_session"
	TypeChatClaimed        = "chat_claimed"
	TypeChatSessionUpdated = "chat_session_updated"
	TypeChatSessionRead    = "chat_session_read"
	TypeAdminJoinedChat    = "admin_joined_chat"
	TypeChatClosed         = "chat_closed"
	TypeError              = "error"
)

// TypeAny subscribes to every message type.
const TypeAny = "*"

// Envelope is the frame for every WebSocket message. Clients fill Payload,
// the server fills Data.
type Envelope struct {
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Body returns Data for server frames and Payload for client frames.
func (e Envelope) Body() json.RawMessage {
	if len(e.Data) > 0 {
		return e.Data
	}
	return e.Payload
}

// Decode unmarshals the envelope body into v.
func (e Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Body(), v)
}

// NewEvent builds a server frame carrying v as data.
func NewEvent(msgType string, v interface{}) (Envelope, error) {
	env := Envelope{Type: msgType, Ts: time.Now().UnixMilli()}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}
	return env, nil
}

// NewRequest builds a client frame carrying v as payload.
func NewRequest(msgType string, v interface{}) (Envelope, error) {
	env := Envelope{Type: msgType, Ts: time.Now().UnixMilli()}
	if v != nil {
		payload, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = payload
	}
	return env, nil
}

// WithRef returns a copy of e correlated with a client reference.
func (e Envelope) WithRef(ref string) Envelope {
	e.Ref = ref
	return e
}
