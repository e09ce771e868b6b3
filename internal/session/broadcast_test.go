package session

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/realtime"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelopeCollector subscribes to a hub topic and records everything it
// receives.
type envelopeCollector struct {
	mu   sync.Mutex
	envs []realtime.Envelope
}

func (c *envelopeCollector) onChange(env realtime.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *envelopeCollector) snapshot() []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Envelope, len(c.envs))
	copy(out, c.envs)
	return out
}

func (c *envelopeCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envs)
}

func joinObserver(t *testing.T, hub *realtime.Hub, canvasID string) *envelopeCollector {
	t.Helper()
	collector := &envelopeCollector{}
	_, err := hub.Join(context.Background(), topicFor(canvasID), "observer", realtime.Handlers{
		OnChange: collector.onChange,
	})
	require.NoError(t, err)
	return collector
}

func newConnectedBroadcaster(t *testing.T, hub *realtime.Hub, clock Clock, identity domain.Identity) *Broadcaster {
	t.Helper()
	presence := NewPresenceChannel(hub)
	require.NoError(t, presence.Join(context.Background(), "c1", identity, func(realtime.Envelope) {}))
	return NewBroadcaster(presence, identity, clock)
}

func TestBroadcasterThrottlesGranularChanges(t *testing.T) {
	hub := realtime.NewHub()
	clock := newFakeClock()
	identity := domain.Identity{UserID: "u1", Name: "Alice"}

	collector := joinObserver(t, hub, "c1")
	b := newConnectedBroadcaster(t, hub, clock, identity)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		b.Publish(ctx, realtime.KindObjectModified, json.RawMessage(`{"i":1}`))
	}
	// A trailing full snapshot acts as a barrier: the hub preserves
	// per-sender order, so once it arrives everything before it did too.
	b.Publish(ctx, realtime.KindFullSnapshot, json.RawMessage(`{"done":true}`))

	assert.Eventually(t, func() bool {
		envs := collector.snapshot()
		return len(envs) > 0 && envs[len(envs)-1].Kind == realtime.KindFullSnapshot
	}, 2*time.Second, 10*time.Millisecond)

	granular := 0
	for _, env := range collector.snapshot() {
		if env.Kind == realtime.KindObjectModified {
			granular++
		}
	}
	assert.Equal(t, 1, granular, "burst within one throttle window should collapse to a single event")
}

func TestBroadcasterPassesSpacedGranularChanges(t *testing.T) {
	hub := realtime.NewHub()
	clock := newFakeClock()
	identity := domain.Identity{UserID: "u1", Name: "Alice"}

	collector := joinObserver(t, hub, "c1")
	b := newConnectedBroadcaster(t, hub, clock, identity)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Publish(ctx, realtime.KindObjectAdded, json.RawMessage(`{}`))
		clock.Advance(broadcastThrottle)
	}

	assert.Eventually(t, func() bool {
		return collector.len() == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterNeverThrottlesFullSnapshots(t *testing.T) {
	hub := realtime.NewHub()
	clock := newFakeClock()
	identity := domain.Identity{UserID: "u1", Name: "Alice"}

	collector := joinObserver(t, hub, "c1")
	b := newConnectedBroadcaster(t, hub, clock, identity)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		b.Publish(ctx, realtime.KindFullSnapshot, json.RawMessage(`{}`))
	}

	assert.Eventually(t, func() bool {
		return collector.len() == 10
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcasterStampsEnvelopes(t *testing.T) {
	hub := realtime.NewHub()
	clock := newFakeClock()
	identity := domain.Identity{UserID: "u1", Name: "Alice"}

	collector := joinObserver(t, hub, "c1")
	b := newConnectedBroadcaster(t, hub, clock, identity)

	b.Publish(context.Background(), realtime.KindFullSnapshot, json.RawMessage(`{"v":1}`))

	assert.Eventually(t, func() bool {
		return collector.len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	env := collector.snapshot()[0]
	assert.Equal(t, "u1", env.OriginatorID)
	assert.Equal(t, clock.Now().UnixMilli(), env.EmittedAt)
	assert.JSONEq(t, `{"v":1}`, string(env.Payload))
}

func TestBroadcasterNoopWhenDisconnected(t *testing.T) {
	hub := realtime.NewHub()
	clock := newFakeClock()

	collector := joinObserver(t, hub, "c1")

	// Never joined: not connected.
	presence := NewPresenceChannel(hub)
	b := NewBroadcaster(presence, domain.Identity{UserID: "u1"}, clock)
	b.Publish(context.Background(), realtime.KindFullSnapshot, json.RawMessage(`{}`))

	// Empty identity: anonymous sessions don't broadcast.
	anon := newConnectedBroadcaster(t, hub, clock, domain.Identity{})
	anon.Publish(context.Background(), realtime.KindFullSnapshot, json.RawMessage(`{}`))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, collector.len())
}
