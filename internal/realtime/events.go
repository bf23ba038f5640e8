package realtime

import (
	"encoding/json"
	"fmt"
)

// Kind names a server-to-client push.
type Kind string

const (
	KindMessage        Kind = "message"
	KindTypingStart    Kind = "typing-start"
	KindTypingStop     Kind = "typing-stop"
	KindPresence       Kind = "presence-update"
	KindMessageDeleted Kind = "message-deleted"
)

// Client-to-server event names.
const (
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	EventUserOffline = "user-offline"
)

// Envelope is the frame written to and read from the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Typing is the payload of typing pushes. It is never persisted.
type Typing struct {
	ChatID string `json:"chatId"`
	Typing bool   `json:"typing"`
	From   string `json:"from"`
}

// TypingRequest is what a client sends when it starts or stops typing.
type TypingRequest struct {
	ChatID string `json:"chatId"`
}

// Presence is the payload of presence-update pushes.
type Presence struct {
	Online []string `json:"online"`
}

// encode builds the wire frame for a push.
func encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Event: string(kind), Data: data})
}
