package session

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/realtime"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// broadcastThrottle bounds the outbound event rate during continuous
// drag operations. Full snapshots are exempt: every authoritative
// full-state sync must go through.
const broadcastThrottle = 50 * time.Millisecond

// Broadcaster publishes local canvas mutations to other participants,
// rate-limited, stamped with the caller's identity and current time.
type Broadcaster struct {
	presence *PresenceChannel
	identity domain.Identity
	clock    Clock

	mu       sync.Mutex
	lastSent time.Time
}

func NewBroadcaster(presence *PresenceChannel, identity domain.Identity, clock Clock) *Broadcaster {
	return &Broadcaster{
		presence: presence,
		identity: identity,
		clock:    clock,
	}
}

// Publish stamps and sends one change envelope. No-op when the channel
// is not connected or there is no active local identity. Non-full kinds
// are dropped if fewer than 50ms have elapsed since the last non-full
// envelope from this session.
func (b *Broadcaster) Publish(ctx context.Context, kind realtime.ChangeKind, payload json.RawMessage) {
	if b.identity.UserID == "" || !b.presence.Connected() {
		return
	}

	now := b.clock.Now()

	if kind != realtime.KindFullSnapshot {
		b.mu.Lock()
		if now.Sub(b.lastSent) < broadcastThrottle {
			b.mu.Unlock()
			return
		}
		b.lastSent = now
		b.mu.Unlock()
	}

	env := realtime.Envelope{
		Kind:         kind,
		Payload:      payload,
		OriginatorID: b.identity.UserID,
		EmittedAt:    now.UnixMilli(),
	}

	if err := b.presence.broadcastChange(ctx, env); err != nil {
		log.Printf("broadcast: send failed: %v", err)
	}
}
