package view

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatrelay/internal/chat"
)

// Socket is the live channel: one persistent connection opened with the user
// identity as a handshake parameter, feeding every inbound frame into the
// store. Disconnect is terminal for the handle; resuming live events takes a
// new Dial.
type Socket struct {
	conn  *websocket.Conn
	store *Store
	log   zerolog.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

// Dial opens the live channel and starts the read loop. The store's live flag
// tracks channel health; a read failure flips it off without blocking any
// durable writes.
func Dial(wsURL, userID string, store *Store, logger zerolog.Logger) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?user_id="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %v: %w", err, chat.ErrUnavailable)
	}
	s := &Socket{
		conn:  conn,
		store: store,
		log:   logger.With().Str("component", "socket").Logger(),
		done:  make(chan struct{}),
	}
	store.SetLive(true)
	go s.readLoop()
	return s, nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	defer s.store.SetLive(false)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Msg("live channel closed")
			return
		}
		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if err := s.store.ApplyEvent(env); err != nil {
			s.log.Debug().Err(err).Str("event", env.Event).Msg("dropping malformed event")
		}
	}
}

func (s *Socket) send(event string, payload any) error {
	data, err := chat.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %v: %w", event, err, chat.ErrUnavailable)
	}
	return nil
}

// SendMessage forwards an already-stored message as a live event.
func (s *Socket) SendMessage(m chat.Message) error {
	return s.send(chat.EventSendMessage, m)
}

// SendTyping signals a keystroke (or an explicit stop) for chatID.
func (s *Socket) SendTyping(chatID string, isTyping bool) error {
	return s.send(chat.EventTyping, chat.TypingPayload{ChatID: chatID, IsTyping: isTyping})
}

// Close tears the connection down and waits for the read loop to finish.
func (s *Socket) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}
