package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func snap(s string) json.RawMessage {
	return json.RawMessage(s)
}

// TestHistoryUndoFloor tests that undo at index 0 changes nothing
func TestHistoryUndoFloor(t *testing.T) {
	h := NewHistory()
	h.Seed(snap(`{"v":0}`))

	restored, ok := h.Undo()
	assert.False(t, ok)
	assert.Nil(t, restored)
	assert.Equal(t, 0, h.Index())
	assert.Equal(t, 1, h.Len())
}

// TestHistoryRedoCeiling tests that redo at the last entry changes nothing
func TestHistoryRedoCeiling(t *testing.T) {
	h := NewHistory()
	h.Seed(snap(`{"v":0}`))
	h.Record(snap(`{"v":1}`))

	restored, ok := h.Redo()
	assert.False(t, ok)
	assert.Nil(t, restored)
	assert.Equal(t, 1, h.Index())
	assert.Equal(t, 2, h.Len())
}

func TestHistoryUndoRedo(t *testing.T) {
	h := NewHistory()
	h.Seed(snap(`{"v":0}`))
	h.Record(snap(`{"v":1}`))
	h.Record(snap(`{"v":2}`))

	restored, ok := h.Undo()
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(restored))
	assert.Equal(t, 1, h.Index())

	restored, ok = h.Redo()
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(restored))
	assert.Equal(t, 2, h.Index())
}

// TestHistoryBranchTruncation tests that recording after an undo
// discards the abandoned redo branch
func TestHistoryBranchTruncation(t *testing.T) {
	h := NewHistory()
	h.Seed(snap(`{"v":0}`)) // S0
	h.Record(snap(`{"v":1}`)) // S1
	h.Record(snap(`{"v":2}`)) // S2
	assert.Equal(t, 2, h.Index())

	_, ok := h.Undo()
	assert.True(t, ok)

	h.Record(snap(`{"v":3}`)) // S3 replaces S2

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Index())
	assert.False(t, h.CanRedo())

	restored, ok := h.Undo()
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(restored))

	restored, ok = h.Redo()
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":3}`, string(restored))
}

func TestHistorySnapshotsAreCopies(t *testing.T) {
	h := NewHistory()
	buf := []byte(`{"v":0}`)
	h.Seed(buf)
	buf[5] = '9' // mutate the caller's buffer

	h.Record(snap(`{"v":1}`))
	restored, ok := h.Undo()
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":0}`, string(restored))
}
