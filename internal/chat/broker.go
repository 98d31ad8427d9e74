package chat

import (
	"context"

	"github.com/rs/zerolog"
)

// Broker accepts sessions, keeps the registry current, and fans events out.
// All registry mutation and delivery happens on the single Run loop, so
// events enqueued by one caller reach every session's queue in enqueue order
// and no connection handler lock is held during fan-out.
type Broker struct {
	registry *Registry

	register   chan *Session
	unregister chan *Session
	messages   chan Message
	typing     chan TypingPayload
	done       chan struct{} // closed when Run returns

	log zerolog.Logger
}

func NewBroker(registry *Registry, logger zerolog.Logger) *Broker {
	return &Broker{
		registry:   registry,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		messages:   make(chan Message, 256),
		typing:     make(chan TypingPayload, 256),
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "broker").Logger(),
	}
}

// Register hands a freshly connected session to the loop. After shutdown the
// session is closed instead of registered.
func (b *Broker) Register(s *Session) {
	select {
	case b.register <- s:
	case <-b.done:
		s.Close()
	}
}

// Unregister removes the session if it is still current, and closes it.
func (b *Broker) Unregister(s *Session) {
	select {
	case b.unregister <- s:
	case <-b.done:
		s.Close()
	}
}

// BroadcastMessage enqueues a new_message fan-out to every session, the
// sender's included; echo suppression is the client's job. Never blocks the
// originating request: a full queue drops the event.
func (b *Broker) BroadcastMessage(msg Message) {
	select {
	case b.messages <- msg:
	default:
		b.log.Warn().Str("chat_id", msg.ChatID).Msg("broker queue full, dropping new_message")
	}
}

// BroadcastTyping enqueues a user_typing fan-out to everyone except the
// originating user.
func (b *Broker) BroadcastTyping(chatID, userID string, isTyping bool) {
	select {
	case b.typing <- TypingPayload{ChatID: chatID, UserID: userID, IsTyping: isTyping}:
	default:
		b.log.Warn().Str("chat_id", chatID).Msg("broker queue full, dropping typing event")
	}
}

// Run drives the broker until ctx is canceled, then closes every session and
// returns ctx.Err().
func (b *Broker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(b.done)
			for _, s := range b.registry.Snapshot() {
				b.registry.Unregister(s)
				s.Close()
			}
			b.log.Info().Msg("broker stopped")
			return ctx.Err()

		case s := <-b.register:
			if prev := b.registry.Register(s); prev != nil {
				// superseded handle must not receive further dispatch
				prev.Close()
			}
			b.log.Info().Str("user_id", s.UserID).Int("sessions", b.registry.Len()).Msg("session connected")

		case s := <-b.unregister:
			if b.registry.Unregister(s) {
				b.log.Info().Str("user_id", s.UserID).Int("sessions", b.registry.Len()).Msg("session disconnected")
			}
			s.Close()

		case msg := <-b.messages:
			b.fanOutMessage(msg)

		case p := <-b.typing:
			b.fanOutTyping(p)
		}
	}
}

func (b *Broker) fanOutMessage(msg Message) {
	data, err := NewEnvelope(EventNewMessage, msg)
	if err != nil {
		b.log.Error().Err(err).Msg("encode new_message")
		return
	}
	for _, s := range b.registry.Snapshot() {
		if !s.Deliver(data) {
			b.log.Debug().Str("user_id", s.UserID).Msg("dropped new_message delivery")
		}
	}
}

func (b *Broker) fanOutTyping(p TypingPayload) {
	data, err := NewEnvelope(EventUserTyping, p)
	if err != nil {
		b.log.Error().Err(err).Msg("encode user_typing")
		return
	}
	for _, s := range b.registry.Snapshot() {
		if s.UserID == p.UserID {
			continue // typing is never echoed to its originator
		}
		if !s.Deliver(data) {
			b.log.Debug().Str("user_id", s.UserID).Msg("dropped user_typing delivery")
		}
	}
}
