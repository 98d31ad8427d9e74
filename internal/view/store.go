package view

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatrelay/internal/chat"
)

// MessageView is a displayed message. Pending marks an optimistic local post
// that the server has not acknowledged yet.
type MessageView struct {
	chat.Message
	Pending bool `json:"pending,omitempty"`
	Read    bool `json:"read"`
}

// ChatView is one chat-list entry with its derived fields.
type ChatView struct {
	chat.Chat
	Pinned          bool      `json:"pinned"`
	Muted           bool      `json:"muted"`
	Unread          int       `json:"unread"`
	Typing          bool      `json:"typing"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageTime time.Time `json:"last_message_time"`
}

type typist struct {
	timer *time.Timer
	gen   int
}

type chatState struct {
	meta    chat.Chat
	pinned  bool
	muted   bool
	unread  int
	last    string
	lastAt  time.Time
	typists map[string]*typist
}

// Store folds three independent inputs — REST snapshots, live broker events
// and local optimistic actions — into one consistent view. Every mutation
// goes through the store mutex, so application order is the serialization
// order and the de-duplication rules are deterministic.
type Store struct {
	mu sync.Mutex

	selfID string
	window time.Duration
	log    zerolog.Logger

	chats map[string]*chatState
	order []string // chat IDs in first-seen order, tie-break for equal recency
	msgs  map[string][]MessageView
	open  string
	live  bool
}

func NewStore(selfID string, typingWindow time.Duration, logger zerolog.Logger) *Store {
	if typingWindow <= 0 {
		typingWindow = time.Second
	}
	return &Store{
		selfID: selfID,
		window: typingWindow,
		log:    logger.With().Str("component", "view").Logger(),
		chats:  map[string]*chatState{},
		msgs:   map[string][]MessageView{},
	}
}

func (s *Store) ensureChat(chatID string) *chatState {
	st, ok := s.chats[chatID]
	if !ok {
		st = &chatState{meta: chat.Chat{ID: chatID}, typists: map[string]*typist{}}
		s.chats[chatID] = st
		s.order = append(s.order, chatID)
	}
	return st
}

// LoadChats folds a GET /chats snapshot in. Locally-derived state (pin, mute,
// unread, typing) survives a re-fetch; previews only move forward in time.
func (s *Store) LoadChats(snaps []chat.Preview) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		st := s.ensureChat(snap.ID)
		st.meta = snap.Chat
		if snap.LastMessageTime != nil && snap.LastMessageTime.After(st.lastAt) {
			st.last = snap.LastMessage
			st.lastAt = *snap.LastMessageTime
		}
	}
}

// LoadMessages folds a message-history snapshot in. Already-displayed
// messages keep their position (no reordering once displayed); snapshot
// messages not yet displayed are appended in log order; our own pending
// copies collapse onto their stored counterparts by client token.
func (s *Store) LoadMessages(chatID string, history []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureChat(chatID)
	shown := s.msgs[chatID]
	seen := make(map[string]bool, len(shown))
	byToken := map[string]int{}
	for i, mv := range shown {
		if mv.ID != "" {
			seen[mv.ID] = true
		}
		if mv.Pending && mv.ClientToken != "" {
			byToken[mv.ClientToken] = i
		}
	}

	for _, m := range history {
		if seen[m.ID] {
			continue
		}
		if i, ok := byToken[m.ClientToken]; ok && m.ClientToken != "" {
			read := shown[i].Read
			shown[i] = MessageView{Message: m, Read: read}
			seen[m.ID] = true
			if m.CreatedAt.After(st.lastAt) {
				st.last, st.lastAt = m.Text, m.CreatedAt
			}
			continue
		}
		shown = append(shown, MessageView{Message: m, Read: s.open == chatID})
		seen[m.ID] = true
		if m.CreatedAt.After(st.lastAt) {
			st.last, st.lastAt = m.Text, m.CreatedAt
		}
	}
	s.msgs[chatID] = shown
}

// ApplyEvent folds one live-channel frame in. Unknown events are ignored.
func (s *Store) ApplyEvent(env chat.Envelope) error {
	switch env.Event {
	case chat.EventNewMessage:
		var m chat.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return err
		}
		s.mu.Lock()
		s.applyNewMessage(m)
		s.mu.Unlock()
	case chat.EventUserTyping:
		var p chat.TypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		s.mu.Lock()
		s.applyTyping(p)
		s.mu.Unlock()
	default:
		s.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
	return nil
}

func (s *Store) applyNewMessage(m chat.Message) {
	if m.SenderID == s.selfID {
		// broker echo of our own post; only the optimistic copy is kept
		s.confirmLocked(m)
		return
	}
	shown := s.msgs[m.ChatID]
	for _, mv := range shown {
		if mv.ID == m.ID {
			return
		}
	}
	mv := MessageView{Message: m, Read: s.open == m.ChatID}
	s.msgs[m.ChatID] = append(shown, mv)

	st := s.ensureChat(m.ChatID)
	st.last, st.lastAt = m.Text, m.CreatedAt
	if s.open != m.ChatID {
		st.unread++
	}
}

// SendLocal records an optimistic local post and returns it; the caller
// forwards Text, ClientToken and ReplyTo to the durable write and confirms
// with the server's response. A locally-sent message never bumps unread.
func (s *Store) SendLocal(chatID, text string, replyTo *chat.ReplyRef) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := chat.Message{
		ChatID:      chatID,
		SenderID:    s.selfID,
		Text:        text,
		ReplyTo:     replyTo,
		ClientToken: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	s.msgs[chatID] = append(s.msgs[chatID], MessageView{Message: m, Pending: true})

	st := s.ensureChat(chatID)
	st.last, st.lastAt = m.Text, m.CreatedAt
	return m
}

// ConfirmLocal collapses the pending copy onto the stored message the server
// returned, keyed by client token.
func (s *Store) ConfirmLocal(m chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmLocked(m)
}

func (s *Store) confirmLocked(m chat.Message) {
	shown := s.msgs[m.ChatID]
	for i, mv := range shown {
		if mv.ID != "" && mv.ID == m.ID {
			return // already confirmed
		}
		if mv.Pending && mv.ClientToken != "" && mv.ClientToken == m.ClientToken {
			shown[i] = MessageView{Message: m, Read: mv.Read}
			st := s.ensureChat(m.ChatID)
			if m.CreatedAt.After(st.lastAt) {
				st.last, st.lastAt = m.Text, m.CreatedAt
			}
			return
		}
	}
	// no pending counterpart: a self-sender echo is suppressed, not re-shown
}

func (s *Store) applyTyping(p chat.TypingPayload) {
	if p.UserID == s.selfID {
		return
	}
	st := s.ensureChat(p.ChatID)
	cur := st.typists[p.UserID]
	if !p.IsTyping {
		if cur != nil {
			cur.timer.Stop()
			delete(st.typists, p.UserID)
		}
		return
	}

	// restartable quiet-window timer; each keystroke replaces it
	gen := 1
	if cur != nil {
		cur.timer.Stop()
		gen = cur.gen + 1
	}
	chatID, userID := p.ChatID, p.UserID
	st.typists[userID] = &typist{gen: gen, timer: time.AfterFunc(s.window, func() {
		s.expireTyping(chatID, userID, gen)
	})}
}

func (s *Store) expireTyping(chatID, userID string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chatID]
	if st == nil {
		return
	}
	if cur := st.typists[userID]; cur != nil && cur.gen == gen {
		delete(st.typists, userID)
	}
}

// Open marks chatID as the chat in view: unread resets to zero and displayed
// messages are marked read.
func (s *Store) Open(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = chatID
	if st := s.chats[chatID]; st != nil {
		st.unread = 0
	}
	shown := s.msgs[chatID]
	for i := range shown {
		shown[i].Read = true
	}
}

// Close leaves the currently open chat.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = ""
}

func (s *Store) TogglePin(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.chats[chatID]; st != nil {
		st.pinned = !st.pinned
	}
}

func (s *Store) ToggleMute(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.chats[chatID]; st != nil {
		st.muted = !st.muted
	}
}

// Delete removes a chat from the local view only; the server keeps its log.
func (s *Store) Delete(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chatID]
	if st == nil {
		return
	}
	for _, t := range st.typists {
		t.timer.Stop()
	}
	delete(s.chats, chatID)
	delete(s.msgs, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.open == chatID {
		s.open = ""
	}
}

// Chats returns the chat list ordered pinned-first, then by most recent
// message, ties broken by the order chats were first seen.
func (s *Store) Chats() []ChatView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatView, 0, len(s.order))
	for _, id := range s.order {
		st := s.chats[id]
		out = append(out, ChatView{
			Chat:            st.meta,
			Pinned:          st.pinned,
			Muted:           st.muted,
			Unread:          st.unread,
			Typing:          len(st.typists) > 0,
			LastMessage:     st.last,
			LastMessageTime: st.lastAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// Messages returns the displayed sequence for one chat.
func (s *Store) Messages(chatID string) []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	shown := s.msgs[chatID]
	out := make([]MessageView, len(shown))
	copy(out, shown)
	return out
}

// Unread returns the unread counter for one chat.
func (s *Store) Unread(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.chats[chatID]; st != nil {
		return st.unread
	}
	return 0
}

// Typing reports whether anyone is currently typing in chatID.
func (s *Store) Typing(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chats[chatID]
	return st != nil && len(st.typists) > 0
}

// SetLive records live-channel health. Durable writes keep working while the
// channel is down; the flag is a soft signal for the UI.
func (s *Store) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

func (s *Store) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
