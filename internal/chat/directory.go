package chat

import (
	"fmt"
	"sync"
)

// Directory maps chat IDs to chat metadata. It is bootstrapped with a fixed
// seed at construction; the relay core has no create/delete operations, so
// after construction it is effectively read-only.
type Directory struct {
	mu    sync.RWMutex
	order []string
	chats map[string]Chat
}

// Seed returns the bootstrap chat set.
func Seed() []Chat {
	return []Chat{
		{ID: "1", Name: "Общий чат", Kind: KindGroup},
		{ID: "2", Name: "Иван Петров", Kind: KindPrivate},
	}
}

func NewDirectory(seed []Chat) *Directory {
	d := &Directory{chats: map[string]Chat{}}
	for _, c := range seed {
		if _, ok := d.chats[c.ID]; ok {
			continue
		}
		d.chats[c.ID] = c
		d.order = append(d.order, c.ID)
	}
	return d
}

// List returns all chats in seed order. The order is stable across calls.
func (d *Directory) List() []Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Chat, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.chats[id])
	}
	return out
}

func (d *Directory) Get(id string) (Chat, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.chats[id]
	if !ok {
		return Chat{}, fmt.Errorf("chat %q: %w", id, ErrNotFound)
	}
	return c, nil
}

func (d *Directory) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.chats[id]
	return ok
}

// ListWithPreview joins each chat with its latest message from the log.
func (d *Directory) ListWithPreview(log *Log) []Preview {
	chats := d.List()
	out := make([]Preview, 0, len(chats))
	for _, c := range chats {
		p := Preview{Chat: c}
		if last, ok := log.Last(c.ID); ok {
			ts := last.CreatedAt
			p.LastMessage = last.Text
			p.LastMessageTime = &ts
		}
		out = append(out, p)
	}
	return out
}
