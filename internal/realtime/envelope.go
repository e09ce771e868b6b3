package realtime

import "encoding/json"

// ChangeKind classifies one unit of canvas synchronization. Granular
// kinds are defined on the wire but outbound traffic currently always
// carries KindFullSnapshot; see Envelope.
type ChangeKind string

const (
	KindFullSnapshot   ChangeKind = "full"
	KindObjectAdded    ChangeKind = "object:added"
	KindObjectModified ChangeKind = "object:modified"
	KindObjectRemoved  ChangeKind = "object:removed"
	KindClear          ChangeKind = "clear"
)

// Envelope is one unit of change data sent over the transport. It is
// ephemeral: never persisted, exists only on the wire.
type Envelope struct {
	Kind         ChangeKind      `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	OriginatorID string          `json:"originator_id"`
	EmittedAt    int64           `json:"emitted_at"` // unix milliseconds
}

// Cursor is a live pointer position on the shared canvas.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Member is one participant's presence record on a topic.
type Member struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Cursor *Cursor `json:"cursor,omitempty"`
}
