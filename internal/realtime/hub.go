package realtime

import (
	"context"
	"log"
	"sync"
)

// Hub is the in-process Transport: topics fan events out to subscriber
// queues, one dispatch goroutine per subscription so per-sender order is
// kept without senders blocking on receiver callbacks.
type Hub struct {
	mu     sync.Mutex
	topics map[string]*hubTopic
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]*hubTopic)}
}

type hubTopic struct {
	subs    map[string]*hubChannel
	members map[string]Member
}

type hubEvent struct {
	presence    []Member
	change      *Envelope
	cursorOwner string
	cursor      *Cursor
}

type hubChannel struct {
	hub      *Hub
	topic    string
	key      string
	handlers Handlers
	events   chan hubEvent
	closed   bool
}

func (h *Hub) Join(ctx context.Context, topic, selfKey string, handlers Handlers) (Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[topic]
	if !ok {
		t = &hubTopic{
			subs:    make(map[string]*hubChannel),
			members: make(map[string]Member),
		}
		h.topics[topic] = t
	}

	// One subscription per key per topic: a rejoin replaces the old one.
	if prev, ok := t.subs[selfKey]; ok {
		prev.closed = true
		close(prev.events)
	}

	ch := &hubChannel{
		hub:      h,
		topic:    topic,
		key:      selfKey,
		handlers: handlers,
		events:   make(chan hubEvent, 256),
	}
	t.subs[selfKey] = ch

	go ch.dispatch()

	return ch, nil
}

func (ch *hubChannel) dispatch() {
	for ev := range ch.events {
		switch {
		case ev.presence != nil:
			if ch.handlers.OnPresence != nil {
				ch.handlers.OnPresence(ev.presence)
			}
		case ev.change != nil:
			if ch.handlers.OnChange != nil {
				ch.handlers.OnChange(*ev.change)
			}
		case ev.cursor != nil:
			if ch.handlers.OnCursor != nil {
				ch.handlers.OnCursor(ev.cursorOwner, *ev.cursor)
			}
		}
	}
}

func (ch *hubChannel) enqueue(ev hubEvent) {
	if ch.closed {
		return
	}
	select {
	case ch.events <- ev:
	default:
		// at-most-once: a slow subscriber drops events
		log.Printf("realtime: dropping event for slow subscriber %s on %s", ch.key, ch.topic)
	}
}

func (ch *hubChannel) Track(ctx context.Context, self Member) error {
	h := ch.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ch.topic]
	if !ok {
		return nil
	}
	t.members[ch.key] = self
	h.fanOutPresenceLocked(t)
	return nil
}

func (ch *hubChannel) BroadcastChange(ctx context.Context, env Envelope) error {
	h := ch.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ch.topic]
	if !ok {
		return nil
	}
	for key, sub := range t.subs {
		if key == ch.key {
			continue // self-delivery suppressed
		}
		e := env
		sub.enqueue(hubEvent{change: &e})
	}
	return nil
}

func (ch *hubChannel) BroadcastCursor(ctx context.Context, participantID string, cursor Cursor) error {
	h := ch.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ch.topic]
	if !ok {
		return nil
	}
	if m, ok := t.members[ch.key]; ok {
		c := cursor
		m.Cursor = &c
		t.members[ch.key] = m
	}
	for key, sub := range t.subs {
		if key == ch.key {
			continue
		}
		c := cursor
		sub.enqueue(hubEvent{cursorOwner: participantID, cursor: &c})
	}
	return nil
}

func (ch *hubChannel) Leave(ctx context.Context) error {
	h := ch.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[ch.topic]
	if !ok {
		return nil
	}
	if t.subs[ch.key] == ch {
		delete(t.subs, ch.key)
		delete(t.members, ch.key)
		if !ch.closed {
			ch.closed = true
			close(ch.events)
		}
		h.fanOutPresenceLocked(t)
	}
	if len(t.subs) == 0 {
		delete(h.topics, ch.topic)
	}
	return nil
}

func (h *Hub) fanOutPresenceLocked(t *hubTopic) {
	snapshot := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		snapshot = append(snapshot, m)
	}
	for _, sub := range t.subs {
		sub.enqueue(hubEvent{presence: snapshot})
	}
}
