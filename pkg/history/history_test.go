package history

import (
	"fmt"
	"testing"

	"github.com/xob0t/MemeStencil/pkg/layer"
)

func snap(n int) Snapshot {
	t := layer.NewText(fmt.Sprintf("edit %d", n), 50, 50)
	return Snapshot{Layers: []layer.Layer{t}, Background: "bg.png", Filter: "none"}
}

func equalSnap(a, b Snapshot) bool {
	if a.Background != b.Background || a.Filter != b.Filter || len(a.Layers) != len(b.Layers) {
		return false
	}
	for i := range a.Layers {
		if !layer.Equal(a.Layers[i], b.Layers[i]) {
			return false
		}
	}
	return true
}

func TestUndoRedoRoundTrip(t *testing.T) {
	h := New(0)
	h.Record(snap(0))
	h.Record(snap(1))
	before, _ := h.Current()

	if _, ok := h.Undo(); !ok {
		t.Fatal("undo failed")
	}
	got, ok := h.Redo()
	if !ok {
		t.Fatal("redo failed")
	}
	if !equalSnap(got, before) {
		t.Errorf("redo = %+v, want %+v", got, before)
	}
}

func TestBoundaries(t *testing.T) {
	h := New(5)
	if _, ok := h.Undo(); ok {
		t.Error("undo on empty history")
	}
	h.Record(snap(0))
	if _, ok := h.Undo(); ok {
		t.Error("undo at index 0")
	}
	if _, ok := h.Redo(); ok {
		t.Error("redo at last index")
	}
}

func TestEviction(t *testing.T) {
	h := New(30)
	for i := 0; i < 31; i++ {
		h.Record(snap(i))
	}
	if h.Len() != 30 {
		t.Fatalf("len = %d, want 30", h.Len())
	}
	if h.Cursor() != 29 {
		t.Errorf("cursor = %d, want 29", h.Cursor())
	}

	undos := 0
	var last Snapshot
	for {
		s, ok := h.Undo()
		if !ok {
			break
		}
		last = s
		undos++
	}
	if undos != 29 {
		t.Errorf("undo chain = %d, want 29", undos)
	}
	if c := last.Layers[0].(*layer.Text).Content; c != "edit 1" {
		t.Errorf("oldest = %q, want edit 1", c)
	}
}

func TestRecordTruncatesRedo(t *testing.T) {
	h := New(10)
	h.Record(snap(0))
	h.Record(snap(1))
	h.Record(snap(2))
	h.Undo()
	h.Undo()
	h.Record(snap(3))

	if h.Len() != 2 || h.CanRedo() {
		t.Errorf("len = %d canRedo = %v, want 2 false", h.Len(), h.CanRedo())
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	h := New(10)
	live := snap(0)
	h.Record(live)

	layer.Patch{X: layer.F(1)}.Apply(live.Layers[0])

	got, _ := h.Current()
	if got.Layers[0].Common().X != 50 {
		t.Error("mutating live state changed the stored snapshot")
	}

	layer.Patch{X: layer.F(2)}.Apply(got.Layers[0])
	again, _ := h.Current()
	if again.Layers[0].Common().X != 50 {
		t.Error("mutating a returned snapshot changed the stored snapshot")
	}
}

func TestReset(t *testing.T) {
	h := New(10)
	h.Record(snap(0))
	h.Record(snap(1))
	h.Reset(Snapshot{Background: "new.png", Filter: "none"})
	if h.Len() != 1 || h.Cursor() != 0 || h.CanUndo() {
		t.Errorf("after reset len=%d cursor=%d", h.Len(), h.Cursor())
	}
}

func TestDroppedEntriesReleased(t *testing.T) {
	h := New(3)
	for i := range 3 {
		h.Record(snap(i))
	}
	h.Undo()
	h.Undo()
	h.Record(snap(9))

	tail := h.entries[len(h.entries):cap(h.entries)]
	for i, e := range tail {
		if e.Layers != nil || e.Background != "" {
			t.Errorf("truncated slot %d still holds a snapshot", i)
		}
	}

	for i := range 5 {
		h.Record(snap(10 + i))
	}
	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	tail = h.entries[len(h.entries):cap(h.entries)]
	for i, e := range tail {
		if e.Layers != nil || e.Background != "" {
			t.Errorf("evicted slot %d still holds a snapshot", i)
		}
	}
}
