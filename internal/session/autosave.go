package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// SaveStatus is the small per-session persistence state machine:
// saved -> unsaved -> saving -> saved, or saving -> unsaved on failure.
type SaveStatus string

const (
	StatusSaved   SaveStatus = "saved"
	StatusSaving  SaveStatus = "saving"
	StatusUnsaved SaveStatus = "unsaved"
)

// SaveFunc performs one persistence write of the current document.
type SaveFunc func(ctx context.Context) error

// Autosave debounces local mutations into periodic persistence writes.
// A mutation arriving before the timer fires resets it, so only the
// latest edit within the window is what eventually gets saved.
type Autosave struct {
	clock    Clock
	debounce time.Duration
	save     SaveFunc

	mu          sync.Mutex
	timer       Timer
	status      SaveStatus
	generation  uint64
	lastSavedAt time.Time
	stopped     bool
}

func NewAutosave(clock Clock, debounce time.Duration, save SaveFunc) *Autosave {
	return &Autosave{
		clock:    clock,
		debounce: debounce,
		save:     save,
		status:   StatusSaved,
	}
}

// MarkDirty records a local mutation: status becomes unsaved and the
// debounce timer is (re)started.
func (a *Autosave) MarkDirty() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}

	a.status = StatusUnsaved
	a.generation++

	if a.timer == nil {
		a.timer = a.clock.AfterFunc(a.debounce, a.fire)
	} else {
		a.timer.Reset(a.debounce)
	}
}

func (a *Autosave) fire() {
	if err := a.Flush(context.Background()); err != nil {
		log.Printf("autosave: save failed: %v", err)
	}
}

// Flush performs a save now if there are unsaved changes. On failure the
// status returns to unsaved; the next mutation or explicit flush retries.
func (a *Autosave) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.status != StatusUnsaved {
		a.mu.Unlock()
		return nil
	}
	gen := a.generation
	a.status = StatusSaving
	a.mu.Unlock()

	err := a.save(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.status = StatusUnsaved
		return err
	}

	// A mutation that raced the save already moved status back to
	// unsaved and rearmed the timer; don't mask it.
	if a.generation == gen {
		a.status = StatusSaved
		a.lastSavedAt = a.clock.Now()
	}
	return nil
}

// Stop cancels the pending debounce timer. In-flight saves are allowed
// to complete or fail independently.
func (a *Autosave) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
}

func (a *Autosave) Status() SaveStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Autosave) LastSavedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSavedAt
}
