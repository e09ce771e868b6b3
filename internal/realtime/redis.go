package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventPresenceJoin  = "presence_join"
	eventPresenceLeave = "presence_leave"
)

// ErrNoTransport is returned when no redis connection is available.
var ErrNoTransport = errors.New("realtime: no transport available")

// RedisTransport implements Transport over redis pub/sub. Broadcast
// events travel on one pub/sub channel per topic; presence records live
// in a hash per topic whose TTL is refreshed on every track, so a dead
// participant is evicted even when Leave was never called.
type RedisTransport struct {
	client      *redis.Client
	presenceTTL time.Duration
}

func NewRedisTransport(client *redis.Client, presenceTTL time.Duration) *RedisTransport {
	if presenceTTL <= 0 {
		presenceTTL = time.Minute
	}
	return &RedisTransport{client: client, presenceTTL: presenceTTL}
}

// wireMessage is the single frame type multiplexed on a topic channel.
type wireMessage struct {
	Event       string    `json:"event"`
	SenderKey   string    `json:"sender_key"`
	Envelope    *Envelope `json:"envelope,omitempty"`
	CursorOwner string    `json:"cursor_owner,omitempty"`
	Cursor      *Cursor   `json:"cursor,omitempty"`
}

type redisChannel struct {
	transport *RedisTransport
	topic     string
	key       string
	handlers  Handlers
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
}

func (t *RedisTransport) Join(ctx context.Context, topic, selfKey string, handlers Handlers) (Channel, error) {
	if t.client == nil {
		return nil, ErrNoTransport
	}

	pubsub := t.client.Subscribe(ctx, channelKey(topic))
	// Force the subscription to be established before we report success.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ch := &redisChannel{
		transport: t,
		topic:     topic,
		key:       selfKey,
		handlers:  handlers,
		pubsub:    pubsub,
		cancel:    cancel,
	}

	go ch.receive(runCtx)

	return ch, nil
}

func (ch *redisChannel) receive(ctx context.Context) {
	msgs := ch.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var frame wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Printf("realtime: malformed frame on %s: %v", ch.topic, err)
				continue
			}
			ch.handleFrame(ctx, frame)
		}
	}
}

func (ch *redisChannel) handleFrame(ctx context.Context, frame wireMessage) {
	switch frame.Event {
	case eventPresenceJoin, eventPresenceLeave:
		// Membership changed: re-read the authoritative hash. Own joins
		// are not suppressed so every subscriber converges on the same
		// snapshot.
		members, err := ch.transport.readMembers(ctx, ch.topic)
		if err != nil {
			log.Printf("realtime: presence read failed on %s: %v", ch.topic, err)
			return
		}
		if ch.handlers.OnPresence != nil {
			ch.handlers.OnPresence(members)
		}
	case EventCanvasChange:
		if frame.SenderKey == ch.key || frame.Envelope == nil {
			return // self-delivery suppressed
		}
		if ch.handlers.OnChange != nil {
			ch.handlers.OnChange(*frame.Envelope)
		}
	case EventCursorMove:
		if frame.SenderKey == ch.key || frame.Cursor == nil {
			return
		}
		if ch.handlers.OnCursor != nil {
			ch.handlers.OnCursor(frame.CursorOwner, *frame.Cursor)
		}
	}
}

func (ch *redisChannel) Track(ctx context.Context, self Member) error {
	raw, err := json.Marshal(self)
	if err != nil {
		return err
	}

	client := ch.transport.client
	key := presenceKey(ch.topic)
	if err := client.HSet(ctx, key, ch.key, raw).Err(); err != nil {
		return err
	}
	client.Expire(ctx, key, ch.transport.presenceTTL)

	if err := ch.publish(ctx, wireMessage{Event: eventPresenceJoin, SenderKey: ch.key}); err != nil {
		return err
	}

	// Deliver the initial snapshot to the joiner without waiting for the
	// pub/sub round trip.
	members, err := ch.transport.readMembers(ctx, ch.topic)
	if err == nil && ch.handlers.OnPresence != nil {
		ch.handlers.OnPresence(members)
	}
	return nil
}

func (ch *redisChannel) BroadcastChange(ctx context.Context, env Envelope) error {
	return ch.publish(ctx, wireMessage{
		Event:     EventCanvasChange,
		SenderKey: ch.key,
		Envelope:  &env,
	})
}

func (ch *redisChannel) BroadcastCursor(ctx context.Context, participantID string, cursor Cursor) error {
	// Keep the stored presence record current so late joiners see the
	// cursor without waiting for the next move.
	client := ch.transport.client
	key := presenceKey(ch.topic)
	if raw, err := client.HGet(ctx, key, ch.key).Bytes(); err == nil {
		var self Member
		if json.Unmarshal(raw, &self) == nil {
			c := cursor
			self.Cursor = &c
			if updated, err := json.Marshal(self); err == nil {
				client.HSet(ctx, key, ch.key, updated)
				client.Expire(ctx, key, ch.transport.presenceTTL)
			}
		}
	}

	return ch.publish(ctx, wireMessage{
		Event:       EventCursorMove,
		SenderKey:   ch.key,
		CursorOwner: participantID,
		Cursor:      &cursor,
	})
}

func (ch *redisChannel) Leave(ctx context.Context) error {
	client := ch.transport.client
	client.HDel(ctx, presenceKey(ch.topic), ch.key)
	err := ch.publish(ctx, wireMessage{Event: eventPresenceLeave, SenderKey: ch.key})

	ch.cancel()
	if closeErr := ch.pubsub.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (ch *redisChannel) publish(ctx context.Context, frame wireMessage) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return ch.transport.client.Publish(ctx, channelKey(ch.topic), raw).Err()
}

func (t *RedisTransport) readMembers(ctx context.Context, topic string) ([]Member, error) {
	entries, err := t.client.HGetAll(ctx, presenceKey(topic)).Result()
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(entries))
	for key, raw := range entries {
		var m Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			log.Printf("realtime: bad presence record %s on %s: %v", key, topic, err)
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func channelKey(topic string) string {
	return "realtime:" + topic
}

func presenceKey(topic string) string {
	return "presence:" + topic
}
