package session

import "encoding/json"

// History is the local undo/redo stack: an append-only sequence of full
// document snapshots with a current index. Remote changes never enter
// it; only the session's own edits do.
type History struct {
	entries []json.RawMessage
	index   int
	seeded  bool
}

func NewHistory() *History {
	return &History{index: -1}
}

// Seed installs the just-loaded document as entry 0, the floor that
// undo cannot cross.
func (h *History) Seed(snapshot json.RawMessage) {
	h.entries = []json.RawMessage{cloneSnapshot(snapshot)}
	h.index = 0
	h.seeded = true
}

// Record appends a snapshot. If the index is not at the end, everything
// after it is truncated first: a new edit discards the abandoned redo
// branch.
func (h *History) Record(snapshot json.RawMessage) {
	if !h.seeded {
		h.Seed(snapshot)
		return
	}
	if h.index < len(h.entries)-1 {
		h.entries = h.entries[:h.index+1]
	}
	h.entries = append(h.entries, cloneSnapshot(snapshot))
	h.index = len(h.entries) - 1
}

// Undo moves the index back one entry and returns that snapshot.
// Returns false at the floor (index 0) without changing anything.
func (h *History) Undo() (json.RawMessage, bool) {
	if h.index <= 0 {
		return nil, false
	}
	h.index--
	return cloneSnapshot(h.entries[h.index]), true
}

// Redo moves the index forward one entry and returns that snapshot.
// Returns false at the last entry without changing anything.
func (h *History) Redo() (json.RawMessage, bool) {
	if h.index < 0 || h.index >= len(h.entries)-1 {
		return nil, false
	}
	h.index++
	return cloneSnapshot(h.entries[h.index]), true
}

func (h *History) CanUndo() bool {
	return h.index > 0
}

func (h *History) CanRedo() bool {
	return h.index >= 0 && h.index < len(h.entries)-1
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) Index() int {
	return h.index
}

func cloneSnapshot(snapshot json.RawMessage) json.RawMessage {
	if snapshot == nil {
		return nil
	}
	out := make(json.RawMessage, len(snapshot))
	copy(out, snapshot)
	return out
}
