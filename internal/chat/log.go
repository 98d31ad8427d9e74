package chat

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Log is the append-only per-chat message store. It is volatile: restart
// resets it to empty. Appends to different chats never contend; appends to
// the same chat serialize on that chat's lock so every reader observes one
// total order.
type Log struct {
	dir *Directory

	mu    sync.RWMutex // guards the chats map, not the per-chat state
	chats map[string]*chatLog
}

type chatLog struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
	msgs    []Message
}

func NewLog(dir *Directory) *Log {
	return &Log{dir: dir, chats: map[string]*chatLog{}}
}

func (l *Log) forChat(chatID string) *chatLog {
	l.mu.RLock()
	cl := l.chats[chatID]
	l.mu.RUnlock()
	if cl != nil {
		return cl
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cl = l.chats[chatID]; cl == nil {
		cl = &chatLog{entropy: ulid.Monotonic(rand.Reader, 0)}
		l.chats[chatID] = cl
	}
	return cl
}

// Append stores a new message at the tail of chatID's sequence. The assigned
// ID is a ULID from a per-chat monotonic source, so IDs are unique and
// strictly increasing in append order even within a single clock tick.
func (l *Log) Append(chatID, senderID, text, clientToken string, replyTo *ReplyRef) (Message, error) {
	if !l.dir.Has(chatID) {
		return Message{}, fmt.Errorf("append to chat %q: %w", chatID, ErrNotFound)
	}

	cl := l.forChat(chatID)
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now().UTC()
	ms := ulid.Timestamp(now)
	if ms < cl.lastMs {
		// clock went backwards; keep IDs increasing anyway
		ms = cl.lastMs
	}
	id, err := ulid.New(ms, cl.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		ms++
		id, err = ulid.New(ms, cl.entropy)
	}
	if err != nil {
		return Message{}, fmt.Errorf("assign message id: %w", err)
	}
	cl.lastMs = ms

	msg := Message{
		ID:          id.String(),
		ChatID:      chatID,
		SenderID:    senderID,
		Text:        text,
		ClientToken: clientToken,
		CreatedAt:   now,
	}
	if replyTo != nil {
		ref := *replyTo
		msg.ReplyTo = &ref
	}
	cl.msgs = append(cl.msgs, msg)
	return msg, nil
}

// Messages returns a copy of chatID's full log in append order. A known chat
// with no messages yields an empty slice, not an error.
func (l *Log) Messages(chatID string) ([]Message, error) {
	if !l.dir.Has(chatID) {
		return nil, fmt.Errorf("chat %q: %w", chatID, ErrNotFound)
	}
	cl := l.forChat(chatID)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]Message, len(cl.msgs))
	copy(out, cl.msgs)
	return out, nil
}

// Last returns the most recent message of chatID, if any.
func (l *Log) Last(chatID string) (Message, bool) {
	l.mu.RLock()
	cl := l.chats[chatID]
	l.mu.RUnlock()
	if cl == nil {
		return Message{}, false
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if len(cl.msgs) == 0 {
		return Message{}, false
	}
	return cl.msgs[len(cl.msgs)-1], true
}
