package session

import (
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/realtime"
	"context"
	"log"
	"math/rand"
	"sync"
)

// collaboratorColors is the fixed palette a participant's display color
// is picked from, once per session.
var collaboratorColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98D8C8", "#F7DC6F",
}

// PresenceChannel tracks who else is viewing the same canvas right now
// and their cursors.
type PresenceChannel struct {
	transport realtime.Transport

	mu            sync.Mutex
	channel       realtime.Channel
	self          realtime.Member
	collaborators []realtime.Member
	connected     bool
}

func NewPresenceChannel(transport realtime.Transport) *PresenceChannel {
	return &PresenceChannel{
		transport: transport,
		self: realtime.Member{
			Color: collaboratorColors[rand.Intn(len(collaboratorColors))],
		},
	}
}

// Join subscribes to the canvas topic and announces self. Without a
// transport it is a no-op: the participant list stays empty and
// Connected stays false, degrading to local-only editing.
func (p *PresenceChannel) Join(ctx context.Context, canvasID string, identity domain.Identity, onChange func(realtime.Envelope)) error {
	if p.transport == nil {
		return nil
	}

	p.mu.Lock()
	p.self.ID = identity.UserID
	p.self.Name = identity.Name
	self := p.self
	p.mu.Unlock()

	handlers := realtime.Handlers{
		OnPresence: p.handlePresence,
		OnChange:   onChange,
		OnCursor:   p.handleCursor,
	}

	channel, err := p.transport.Join(ctx, topicFor(canvasID), identity.UserID, handlers)
	if err != nil {
		log.Printf("presence: join failed for %s: %v", canvasID, err)
		return err
	}

	if err := channel.Track(ctx, self); err != nil {
		log.Printf("presence: track failed for %s: %v", canvasID, err)
		_ = channel.Leave(ctx)
		return err
	}

	p.mu.Lock()
	p.channel = channel
	p.connected = true
	p.mu.Unlock()

	return nil
}

// Leave unsubscribes and clears local knowledge of participants. Must
// be invoked on session teardown.
func (p *PresenceChannel) Leave(ctx context.Context) {
	p.mu.Lock()
	channel := p.channel
	p.channel = nil
	p.connected = false
	p.collaborators = nil
	p.mu.Unlock()

	if channel != nil {
		if err := channel.Leave(ctx); err != nil {
			log.Printf("presence: leave failed: %v", err)
		}
	}
}

// UpdateOwnCursor publishes an ephemeral cursor-moved event tagged with
// self id. It does not alter membership.
func (p *PresenceChannel) UpdateOwnCursor(ctx context.Context, cursor realtime.Cursor) {
	p.mu.Lock()
	channel := p.channel
	selfID := p.self.ID
	p.mu.Unlock()

	if channel == nil {
		return
	}
	if err := channel.BroadcastCursor(ctx, selfID, cursor); err != nil {
		log.Printf("presence: cursor broadcast failed: %v", err)
	}
}

// handlePresence replaces the local participant list from a full
// membership snapshot, excluding self.
func (p *PresenceChannel) handlePresence(members []realtime.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make([]realtime.Member, 0, len(members))
	for _, m := range members {
		if m.ID == p.self.ID {
			continue
		}
		next = append(next, m)
	}
	p.collaborators = next
}

// handleCursor updates a collaborator's stored cursor position; it does
// not trigger a membership change.
func (p *PresenceChannel) handleCursor(participantID string, cursor realtime.Cursor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.collaborators {
		if p.collaborators[i].ID == participantID {
			c := cursor
			p.collaborators[i].Cursor = &c
			return
		}
	}
}

func (p *PresenceChannel) Collaborators() []realtime.Member {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]realtime.Member, len(p.collaborators))
	copy(out, p.collaborators)
	return out
}

// Connected is true only after the transport confirmed the subscription.
func (p *PresenceChannel) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Color is the display color assigned to this session.
func (p *PresenceChannel) Color() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.self.Color
}

func (p *PresenceChannel) broadcastChange(ctx context.Context, env realtime.Envelope) error {
	p.mu.Lock()
	channel := p.channel
	p.mu.Unlock()

	if channel == nil {
		return nil
	}
	return channel.BroadcastChange(ctx, env)
}

func topicFor(canvasID string) string {
	return "canvas:" + canvasID
}
