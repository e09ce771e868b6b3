package session

import (
	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/realtime"
	"collaborative-canvas/internal/worker"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// LifecycleState tracks one open document: loading -> ready -> closed.
type LifecycleState string

const (
	StateLoading LifecycleState = "loading"
	StateReady   LifecycleState = "ready"
	StateClosed  LifecycleState = "closed"
)

var ErrSessionNotReady = errors.New("session: not ready")

// Store is the narrow persistence contract the session needs: load one
// record and write partial fields. The canvas service implements it,
// which keeps ownership checks on every write.
type Store interface {
	Get(ctx context.Context, caller domain.Identity, id string) (*domain.Canvas, error)
	Update(ctx context.Context, caller domain.Identity, id string, fields canvas.UpdateFields) error
}

// Options configures a Session. Zero values fall back to the system
// clock, the default debounce, no transport (local-only editing) and a
// synchronous teardown flush.
type Options struct {
	Transport realtime.Transport
	Clock     Clock
	Debounce  time.Duration
	// FlushPool, when set, runs the teardown flush fire-and-forget so
	// closing never blocks on the store.
	FlushPool *worker.WorkerPool
	// Thumbnailer renders a downscaled preview of the content for the
	// persistence write. Optional; owned by the drawing surface.
	Thumbnailer func(content json.RawMessage) (string, error)
	// OnRemoteApplied is invoked after a remote change replaced the
	// document, so the owner can re-render. Optional.
	OnRemoteApplied func()
}

// Session owns one open canvas document and wires presence, broadcast,
// history and autosave together. The in-memory document is mutated only
// through ApplyLocalChange (local path) and the remote-change handler
// (remote path); the applyingRemote guard is the sole re-entrancy
// control between them.
type Session struct {
	id       string
	identity domain.Identity
	store    Store
	opts     Options

	presence    *PresenceChannel
	broadcaster *Broadcaster
	history     *History
	autosave    *Autosave

	mu             sync.Mutex
	state          LifecycleState
	name           string
	content        json.RawMessage
	applyingRemote bool
}

// Open loads the canvas, seeds edit history, and joins the presence
// channel when the canvas belongs to an organization (collaboration
// requires an organization context). A transport failure degrades to
// local-only editing; a load failure is fatal.
func Open(ctx context.Context, store Store, identity domain.Identity, canvasID string, opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 1500 * time.Millisecond
	}

	s := &Session{
		id:       canvasID,
		identity: identity,
		store:    store,
		opts:     opts,
		state:    StateLoading,
		history:  NewHistory(),
	}

	record, err := store.Get(ctx, identity, canvasID)
	if err != nil {
		return nil, err
	}

	s.name = record.Name
	s.content = cloneSnapshot(record.Content)
	s.history.Seed(s.content)

	s.autosave = NewAutosave(opts.Clock, opts.Debounce, s.persist)
	s.presence = NewPresenceChannel(opts.Transport)
	s.broadcaster = NewBroadcaster(s.presence, identity, opts.Clock)

	collaborative := record.OrganizationID != nil
	if collaborative {
		if err := s.presence.Join(ctx, canvasID, identity, s.handleRemoteChange); err != nil {
			// Degrade to local-only editing; surfaced via Connected().
			log.Printf("session: collaboration unavailable for %s: %v", canvasID, err)
		}
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	return s, nil
}

// ApplyLocalChange is the single local-mutation entry point. The new
// full content replaces the in-memory document, then history records it,
// the broadcaster publishes it, and autosave schedules a write, in that
// order so history captures exactly what was sent.
func (s *Session) ApplyLocalChange(ctx context.Context, kind realtime.ChangeKind, content json.RawMessage) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrSessionNotReady
	}

	s.content = cloneSnapshot(content)

	if s.applyingRemote {
		s.mu.Unlock()
		return nil
	}

	s.history.Record(s.content)
	payload := s.content
	s.mu.Unlock()

	// Outbound sync always carries the full document; the kind still
	// classifies the edit for throttling.
	s.broadcaster.Publish(ctx, kind, payload)
	s.autosave.MarkDirty()
	return nil
}

// handleRemoteChange applies another participant's envelope without
// rebroadcasting or touching the undo stack.
func (s *Session) handleRemoteChange(env realtime.Envelope) {
	// Echo suppression, belt-and-braces alongside the transport's own
	// self-exclusion.
	if env.OriginatorID == s.identity.UserID {
		return
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}

	applied := false
	s.applyingRemote = true
	switch env.Kind {
	case realtime.KindFullSnapshot:
		if len(env.Payload) > 0 && !json.Valid(env.Payload) {
			log.Printf("session: malformed remote payload from %s, keeping last-good state", env.OriginatorID)
			break
		}
		s.content = cloneSnapshot(env.Payload)
		applied = true
	case realtime.KindClear:
		s.content = nil
		applied = true
	default:
		// Granular kinds are reserved; no sender emits them today.
		log.Printf("session: ignoring remote change kind %q", env.Kind)
	}
	s.mu.Unlock()

	// Re-render while the guard is still up: the drawing surface replays
	// mutation events during a reload, and those must not re-enter
	// history, broadcast or autosave.
	if applied && s.opts.OnRemoteApplied != nil {
		s.opts.OnRemoteApplied()
	}

	s.mu.Lock()
	s.applyingRemote = false
	s.mu.Unlock()
}

// Undo restores the previous snapshot. The restore counts as a local
// mutation downstream: it is broadcast as a full snapshot and marks the
// document unsaved, but is not re-recorded.
func (s *Session) Undo(ctx context.Context) bool {
	return s.restore(ctx, (*History).Undo)
}

// Redo restores the next snapshot; same downstream effects as Undo.
func (s *Session) Redo(ctx context.Context) bool {
	return s.restore(ctx, (*History).Redo)
}

func (s *Session) restore(ctx context.Context, move func(*History) (json.RawMessage, bool)) bool {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return false
	}
	snapshot, ok := move(s.history)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.content = snapshot
	payload := s.content
	s.mu.Unlock()

	s.broadcaster.Publish(ctx, realtime.KindFullSnapshot, payload)
	s.autosave.MarkDirty()
	return true
}

// Rename updates the display name and persists it immediately, bypassing
// the content autosave debounce.
func (s *Session) Rename(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return ErrSessionNotReady
	}
	s.mu.Unlock()

	if err := s.store.Update(ctx, s.identity, s.id, canvas.UpdateFields{Name: &name}); err != nil {
		return err
	}

	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// UpdateCursor publishes the local cursor position.
func (s *Session) UpdateCursor(ctx context.Context, cursor realtime.Cursor) {
	s.presence.UpdateOwnCursor(ctx, cursor)
}

// persist is the autosave callback: one write of the current content
// plus, when a thumbnailer is configured, a downscaled preview.
func (s *Session) persist(ctx context.Context) error {
	s.mu.Lock()
	content := cloneSnapshot(s.content)
	s.mu.Unlock()

	fields := canvas.UpdateFields{Content: content}
	if content == nil {
		// A cleared document still needs to overwrite stored content.
		fields.Content = json.RawMessage("null")
	}
	if s.opts.Thumbnailer != nil {
		thumbnail, err := s.opts.Thumbnailer(content)
		if err != nil {
			log.Printf("session: thumbnail render failed: %v", err)
		} else {
			fields.Thumbnail = &thumbnail
		}
	}

	return s.store.Update(ctx, s.identity, s.id, fields)
}

// Close tears the session down: leaves presence, cancels the debounce
// timer, and issues a best-effort final save when there are unsaved
// changes. In-flight writes are not cancelled.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.presence.Leave(ctx)

	unsaved := s.autosave.Status() == StatusUnsaved
	s.autosave.Stop()
	if !unsaved {
		return
	}

	flush := func(ctx context.Context) error {
		s.mu.Lock()
		content := cloneSnapshot(s.content)
		s.mu.Unlock()

		fields := canvas.UpdateFields{Content: content}
		if content == nil {
			fields.Content = json.RawMessage("null")
		}
		return s.store.Update(ctx, s.identity, s.id, fields)
	}

	if s.opts.FlushPool != nil {
		s.opts.FlushPool.Submit(flush)
		return
	}
	if err := flush(ctx); err != nil {
		log.Printf("session: final save failed for %s: %v", s.id, err)
	}
}

func (s *Session) State() LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Content returns the current serialized document.
func (s *Session) Content() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.content)
}

func (s *Session) SaveStatus() SaveStatus {
	return s.autosave.Status()
}

func (s *Session) Connected() bool {
	return s.presence.Connected()
}

func (s *Session) Collaborators() []realtime.Member {
	return s.presence.Collaborators()
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}
