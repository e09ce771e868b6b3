package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects everything one subscriber receives.
type recorder struct {
	mu       sync.Mutex
	presence [][]Member
	changes  []Envelope
	cursors  map[string]Cursor
}

func newRecorder() *recorder {
	return &recorder{cursors: make(map[string]Cursor)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnPresence: func(members []Member) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.presence = append(r.presence, members)
		},
		OnChange: func(env Envelope) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.changes = append(r.changes, env)
		},
		OnCursor: func(id string, cursor Cursor) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.cursors[id] = cursor
		},
	}
}

func (r *recorder) lastPresence() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.presence) == 0 {
		return nil
	}
	return r.presence[len(r.presence)-1]
}

func (r *recorder) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *recorder) changeAt(i int) Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changes[i]
}

func (r *recorder) cursorFor(id string) (Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cursors[id]
	return c, ok
}

func memberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestHubPresenceFanOut(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	recA := newRecorder()
	chA, err := hub.Join(ctx, "canvas:c1", "a", recA.handlers())
	require.NoError(t, err)
	require.NoError(t, chA.Track(ctx, Member{ID: "a", Name: "Alice"}))

	recB := newRecorder()
	chB, err := hub.Join(ctx, "canvas:c1", "b", recB.handlers())
	require.NoError(t, err)
	require.NoError(t, chB.Track(ctx, Member{ID: "b", Name: "Bob"}))

	// Both ends converge on the same two-member snapshot. Everyone gets
	// the full list, self included; filtering self is the consumer's job.
	assert.Eventually(t, func() bool {
		return len(recA.lastPresence()) == 2 && len(recB.lastPresence()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.ElementsMatch(t, []string{"a", "b"}, memberIDs(recA.lastPresence()))

	require.NoError(t, chB.Leave(ctx))
	assert.Eventually(t, func() bool {
		members := recA.lastPresence()
		return len(members) == 1 && members[0].ID == "a"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubChangeSkipsSender(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	recA := newRecorder()
	chA, err := hub.Join(ctx, "canvas:c1", "a", recA.handlers())
	require.NoError(t, err)

	recB := newRecorder()
	_, err = hub.Join(ctx, "canvas:c1", "b", recB.handlers())
	require.NoError(t, err)

	env := Envelope{Kind: KindFullSnapshot, Payload: json.RawMessage(`{"v":1}`), OriginatorID: "a"}
	require.NoError(t, chA.BroadcastChange(ctx, env))

	assert.Eventually(t, func() bool {
		return recB.changeCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"v":1}`, string(recB.changeAt(0).Payload))

	// The sender never hears its own broadcast.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, recA.changeCount())
}

func TestHubChangeOrderPreserved(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	chA, err := hub.Join(ctx, "canvas:c1", "a", Handlers{})
	require.NoError(t, err)

	recB := newRecorder()
	_, err = hub.Join(ctx, "canvas:c1", "b", recB.handlers())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, chA.BroadcastChange(ctx, Envelope{
			Kind:      KindObjectModified,
			EmittedAt: int64(i),
		}))
	}

	assert.Eventually(t, func() bool {
		return recB.changeCount() == 20
	}, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 20; i++ {
		assert.Equal(t, int64(i), recB.changeAt(i).EmittedAt)
	}
}

func TestHubCursorSkipsSender(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	recA := newRecorder()
	chA, err := hub.Join(ctx, "canvas:c1", "a", recA.handlers())
	require.NoError(t, err)

	recB := newRecorder()
	_, err = hub.Join(ctx, "canvas:c1", "b", recB.handlers())
	require.NoError(t, err)

	require.NoError(t, chA.BroadcastCursor(ctx, "a", Cursor{X: 10, Y: 20}))

	assert.Eventually(t, func() bool {
		c, ok := recB.cursorFor("a")
		return ok && c.X == 10 && c.Y == 20
	}, 2*time.Second, 10*time.Millisecond)

	_, ok := recA.cursorFor("a")
	assert.False(t, ok)
}

func TestHubRejoinReplacesSubscription(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	stale := newRecorder()
	_, err := hub.Join(ctx, "canvas:c1", "a", stale.handlers())
	require.NoError(t, err)

	fresh := newRecorder()
	_, err = hub.Join(ctx, "canvas:c1", "a", fresh.handlers())
	require.NoError(t, err)

	sender, err := hub.Join(ctx, "canvas:c1", "b", Handlers{})
	require.NoError(t, err)
	require.NoError(t, sender.BroadcastChange(ctx, Envelope{Kind: KindFullSnapshot}))

	assert.Eventually(t, func() bool {
		return fresh.changeCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, stale.changeCount())
}

func TestHubLeaveIsolatesTopics(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	recOther := newRecorder()
	_, err := hub.Join(ctx, "canvas:other", "x", recOther.handlers())
	require.NoError(t, err)

	recB := newRecorder()
	chA, err := hub.Join(ctx, "canvas:c1", "a", Handlers{})
	require.NoError(t, err)
	_, err = hub.Join(ctx, "canvas:c1", "b", recB.handlers())
	require.NoError(t, err)

	require.NoError(t, chA.BroadcastChange(ctx, Envelope{Kind: KindFullSnapshot}))

	assert.Eventually(t, func() bool {
		return recB.changeCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Nothing leaks across topics.
	assert.Equal(t, 0, recOther.changeCount())

	// Leaving twice is harmless.
	require.NoError(t, chA.Leave(ctx))
	require.NoError(t, chA.Leave(ctx))
}
