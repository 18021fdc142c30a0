package layer

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("layer not found")
	ErrDuplicateID = errors.New("duplicate layer id")
)

// Direction moves a layer one step in z-order.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Stack is the ordered layer list plus the selected id.
// Index 0 is drawn first (bottom).
type Stack struct {
	layers   []Layer
	selected string
}

// NewStack returns a stack holding copies of layers.
func NewStack(layers ...Layer) (*Stack, error) {
	s := &Stack{}
	for _, l := range layers {
		if err := s.Add(l.Clone()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Layers returns the live layers in z-order. Callers must not mutate them;
// use Update instead.
func (s *Stack) Layers() []Layer {
	return s.layers
}

// Snapshot returns a deep copy of the layers.
func (s *Stack) Snapshot() []Layer {
	return CloneAll(s.layers)
}

func (s *Stack) Len() int { return len(s.layers) }

// Index returns the z-position of id, or -1.
func (s *Stack) Index(id string) int {
	for i, l := range s.layers {
		if l.Common().ID == id {
			return i
		}
	}
	return -1
}

// Get returns the live layer with the given id.
func (s *Stack) Get(id string) (Layer, bool) {
	if i := s.Index(id); i >= 0 {
		return s.layers[i], true
	}
	return nil, false
}

// Add appends l on top of the stack.
func (s *Stack) Add(l Layer) error {
	b := l.Common()
	if b.ID == "" {
		b.ID = NewID()
	}
	if s.Index(b.ID) >= 0 {
		return fmt.Errorf("add %s: %w", b.ID, ErrDuplicateID)
	}
	normalize(l)
	s.layers = append(s.layers, l)
	return nil
}

// Remove deletes the layer and clears the selection if it pointed at it.
func (s *Stack) Remove(id string) error {
	i := s.Index(id)
	if i < 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	s.layers = append(s.layers[:i:i], s.layers[i+1:]...)
	if s.selected == id {
		s.selected = ""
	}
	return nil
}

// Update merges p into the layer with the given id.
func (s *Stack) Update(id string, p Patch) error {
	l, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	p.Apply(l)
	return nil
}

// Move swaps the layer with its neighbour. It reports false when the layer is
// already at that end of the stack.
func (s *Stack) Move(id string, dir Direction) (bool, error) {
	i := s.Index(id)
	if i < 0 {
		return false, fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	j := i
	switch dir {
	case Up:
		j = i + 1
	case Down:
		j = i - 1
	default:
		return false, fmt.Errorf("move %s: unknown direction %q", id, dir)
	}
	if j < 0 || j >= len(s.layers) {
		return false, nil
	}
	s.layers[i], s.layers[j] = s.layers[j], s.layers[i]
	return true, nil
}

// Select sets the selected layer; "" clears it. It reports whether the
// selection changed.
func (s *Stack) Select(id string) (bool, error) {
	if id != "" && s.Index(id) < 0 {
		return false, fmt.Errorf("select %s: %w", id, ErrNotFound)
	}
	changed := s.selected != id
	s.selected = id
	return changed, nil
}

// Selected returns the selected id or "".
func (s *Stack) Selected() string { return s.selected }

// Replace swaps in copies of layers, keeping the selection only if its layer
// is still present.
func (s *Stack) Replace(layers []Layer) {
	s.layers = CloneAll(layers)
	if s.selected != "" && s.Index(s.selected) < 0 {
		s.selected = ""
	}
}

// ResetPosition recentres a layer and removes its rotation. Text layers also
// get their default size back.
func (s *Stack) ResetPosition(id string) error {
	p := Patch{X: F(50), Y: F(50), Rotation: F(0)}
	if l, ok := s.Get(id); ok && l.Kind() == KindText {
		p.FontSize = F(DefaultFontSize)
		p.BoxWidth = F(DefaultBoxWidth)
	}
	return s.Update(id, p)
}

// ResetAll recentres every layer and removes rotations.
func (s *Stack) ResetAll() {
	p := Patch{X: F(50), Y: F(50), Rotation: F(0)}
	for _, l := range s.layers {
		p.Apply(l)
	}
}
