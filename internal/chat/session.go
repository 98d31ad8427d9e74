package chat

import (
	"encoding/json"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sendBuffer = 64

// ConnLike is the connection surface the pumps need; tests substitute fakes.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Session is one user's live connection handle. A reconnect creates a fresh
// Session; a closed one is never reopened.
type Session struct {
	Handle string
	UserID string

	conn   ConnLike
	send   chan []byte
	closed atomic.Bool
	log    zerolog.Logger
}

func NewSession(userID string, conn ConnLike, logger zerolog.Logger) *Session {
	return &Session{
		Handle: uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		log:    logger.With().Str("user_id", userID).Logger(),
	}
}

// Deliver queues a frame for the write pump without blocking. A full queue or
// a closed session drops the frame; live delivery is best-effort.
//
// Deliver and Close are both driven by the broker loop, so they never race.
func (s *Session) Deliver(data []byte) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close is terminal and idempotent. Closing the transport unblocks a read
// pump stuck in ReadMessage on a superseded connection.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.send)
		_ = s.conn.Close()
	}
}

// ReadPump decodes inbound event frames and hands them to the broker. It
// returns when the transport fails or is closed; the caller unregisters.
func (s *Session) ReadPump(b *Broker) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Event {
		case EventSendMessage:
			var msg Message
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				continue
			}
			msg.SenderID = s.UserID
			b.BroadcastMessage(msg)
		case EventTyping:
			var p TypingPayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				continue
			}
			b.BroadcastTyping(p.ChatID, s.UserID, p.IsTyping)
		default:
			s.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
		}
	}
}

func (s *Session) WritePump() {
	for data := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
