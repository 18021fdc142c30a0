// Package history keeps a bounded undo/redo list of editor snapshots.
package history

import "github.com/xob0t/MemeStencil/pkg/layer"

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 30

// Snapshot is an immutable copy of the editable state.
type Snapshot struct {
	Layers     []layer.Layer
	Background string
	Filter     string
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Layers = layer.CloneAll(s.Layers)
	return s
}

// History is a cursor over at most Cap snapshots.
type History struct {
	entries []Snapshot
	cursor  int
	cap     int
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{cap: capacity, cursor: -1}
}

// Record drops any redo entries, appends a copy of s and evicts the oldest
// entry past capacity.
func (h *History) Record(s Snapshot) {
	h.entries = append(h.entries[:h.cursor+1], s.Clone())
	if over := len(h.entries) - h.cap; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
	// Release dropped snapshots still held by the backing array.
	clear(h.entries[len(h.entries):cap(h.entries)])
	h.cursor = len(h.entries) - 1
}

// Reset replaces the whole history with a single entry.
func (h *History) Reset(s Snapshot) {
	h.entries = []Snapshot{s.Clone()}
	h.cursor = 0
}

// Undo steps back and returns a copy of the snapshot at the new cursor.
func (h *History) Undo() (Snapshot, bool) {
	if !h.CanUndo() {
		return Snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

// Redo steps forward and returns a copy of the snapshot at the new cursor.
func (h *History) Redo() (Snapshot, bool) {
	if !h.CanRedo() {
		return Snapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor].Clone(), true
}

// Current returns a copy of the snapshot at the cursor.
func (h *History) Current() (Snapshot, bool) {
	if h.cursor < 0 {
		return Snapshot{}, false
	}
	return h.entries[h.cursor].Clone(), true
}

func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }
func (h *History) Len() int      { return len(h.entries) }
func (h *History) Cursor() int   { return h.cursor }
func (h *History) Cap() int      { return h.cap }
