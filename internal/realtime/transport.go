package realtime

import "context"

// Broadcast event names shared by all transport implementations.
const (
	EventCanvasChange = "canvas_change"
	EventCursorMove   = "cursor_move"
)

// Handlers receive events for one subscription. Callbacks are invoked
// from transport goroutines, in send order per sender; implementations
// must not block for long.
type Handlers struct {
	// OnPresence delivers the full membership snapshot of the topic,
	// including the subscriber itself.
	OnPresence func(members []Member)
	OnChange   func(env Envelope)
	OnCursor   func(participantID string, cursor Cursor)
}

// Channel is one participant's handle on a topic.
type Channel interface {
	// Track announces (or re-announces) the participant's presence
	// record to all current and future subscribers.
	Track(ctx context.Context, self Member) error
	BroadcastChange(ctx context.Context, env Envelope) error
	BroadcastCursor(ctx context.Context, participantID string, cursor Cursor) error
	// Leave unsubscribes and removes the presence record. Not calling
	// it leaks a stale entry until the transport's own timeout. Events
	// buffered before Leave may still reach the handlers after it
	// returns; consumers tearing down must tolerate late deliveries.
	Leave(ctx context.Context) error
}

// Transport is a topic-addressed pub/sub channel with membership
// tracking. Delivery is at-most-once with no ordering guarantee across
// distinct senders; events published by selfKey are not delivered back
// to the same subscription.
type Transport interface {
	Join(ctx context.Context, topic, selfKey string, handlers Handlers) (Channel, error)
}
