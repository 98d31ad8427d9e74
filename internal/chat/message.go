package chat

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindGroup   Kind = "group"
	KindPrivate Kind = "private"
)

type Chat struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// ReplyRef is a snapshot of the replied-to message taken at post time.
// Later changes to the target never touch the stored copy.
type ReplyRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Text     string    `json:"text"`
	ReplyTo  *ReplyRef `json:"reply_to,omitempty"`

	// ClientToken is generated by the posting client and echoed back
	// verbatim, so the client can match the broker echo against its
	// optimistic copy.
	ClientToken string    `json:"client_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Preview is a chat joined with its latest message, as served by GET /chats.
type Preview struct {
	Chat
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// Live-channel event names.
const (
	EventSendMessage = "send_message" // client -> broker, payload Message
	EventNewMessage  = "new_message"  // broker -> all, payload Message
	EventTyping      = "typing"       // client -> broker, payload TypingPayload
	EventUserTyping  = "user_typing"  // broker -> others, payload TypingPayload
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type TypingPayload struct {
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
	UserID   string `json:"user_id,omitempty"` // filled by the broker on the way out
}

// NewEnvelope marshals a payload into a wire-ready event frame.
func NewEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
