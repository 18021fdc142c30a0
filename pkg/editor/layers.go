package editor

import (
	"context"
	"errors"
	"strings"

	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"github.com/xob0t/MemeStencil/pkg/render"
)

// DefaultTextContent is the content of a text layer added without any.
const DefaultTextContent = "DOUBLE TAP TO EDIT"

// Initial sticker sizing, in reference pixels.
const (
	stickerWidth    = 200.0
	fallbackSticker = 150.0
)

// AddText adds a text layer on top, selects it and records the change. The
// first layer of a document starts near the top edge.
func (s *Session) AddText(content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background == "" {
		return "", ErrNoBackground
	}
	if content == "" {
		content = DefaultTextContent
	}
	y := 50.0
	if s.stack.Len() == 0 {
		y = 15
	}
	t := layer.NewText(content, 50, y)
	if err := s.addLocked(t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// ApplyCaption adds a suggested caption as a new text layer.
func (s *Session) ApplyCaption(caption string) (string, error) {
	return s.AddText(caption)
}

// AddSticker adds a sticker layer for url, sized 200 wide with the image's
// aspect ratio. An image that fails to load gets a square placeholder size
// and is retried on later draws.
func (s *Session) AddSticker(ctx context.Context, url string) (string, error) {
	w, h := fallbackSticker, fallbackSticker
	img, err := s.cache.Await(ctx, url)
	switch {
	case err == nil:
		if b := img.Bounds(); b.Dx() > 0 && b.Dy() > 0 {
			w, h = float64(b.Dx()), float64(b.Dy())
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", err
	default:
		s.log.WithField("url", abbreviate(url)).WithError(err).Warn("sticker dimensions unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background == "" {
		return "", ErrNoBackground
	}
	st := layer.NewSticker(url, stickerWidth, stickerWidth*h/w)
	if err := s.addLocked(st); err != nil {
		return "", err
	}
	return st.ID, nil
}

// EmojiSize is the pixel size emoji stickers are rasterized at.
const EmojiSize = 256

var ErrEmptyEmoji = errors.New("empty emoji")

// AddEmoji adds emoji as a sticker. It is drawn with the registered emoji
// font when that has every glyph, and fetched from the Twemoji CDN
// otherwise.
func (s *Session) AddEmoji(ctx context.Context, emoji string) (string, error) {
	src := catalog.EmojiURL(emoji)
	if src == "" {
		return "", ErrEmptyEmoji
	}
	img, err := s.Fonts().Rasterize(render.EmojiFamily, strings.TrimSpace(emoji), EmojiSize)
	if err == nil {
		data, err := export.Bytes(img, export.PNG, 1)
		if err != nil {
			return "", err
		}
		src = assets.DataURI(export.PNG.MIME(), data)
	} else if !errors.Is(err, render.ErrMissingGlyph) {
		s.log.WithError(err).Warn("emoji rasterize failed, using CDN image")
	}
	return s.AddSticker(ctx, src)
}

func (s *Session) addLocked(l layer.Layer) error {
	if err := s.stack.Add(l); err != nil {
		return err
	}
	s.stack.Select(l.Common().ID)
	s.ensureAssetsLocked()
	s.recordLocked()
	s.redrawLocked()
	return nil
}

// InsertLayers appends copies of layers on top as one history step. The
// selection is left alone.
func (s *Session) InsertLayers(layers []layer.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background == "" {
		return ErrNoBackground
	}
	for _, l := range layers {
		if err := s.stack.Add(l.Clone()); err != nil {
			return err
		}
	}
	s.ensureAssetsLocked()
	s.recordLocked()
	s.redrawLocked()
	return nil
}

// UpdateLayer merges p into a layer. Edits are not recorded; call Commit
// when the edit is finished.
func (s *Session) UpdateLayer(id string, p layer.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stack.Update(id, p); err != nil {
		return err
	}
	if p.URL != nil {
		s.ensureAssetsLocked()
	}
	s.redrawLocked()
	return nil
}

// Commit records the current state, closing a run of UpdateLayer calls.
func (s *Session) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked()
}

// RemoveLayer deletes a layer and records the change.
func (s *Session) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stack.Remove(id); err != nil {
		return err
	}
	s.recordLocked()
	s.redrawLocked()
	return nil
}

// MoveLayer moves a layer one step in z-order. Moving past either end is a
// no-op and records nothing.
func (s *Session) MoveLayer(id string, dir layer.Direction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved, err := s.stack.Move(id, dir)
	if err != nil || !moved {
		return false, err
	}
	s.recordLocked()
	s.redrawLocked()
	return true, nil
}

// ResetLayer recentres one layer and records the change.
func (s *Session) ResetLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stack.ResetPosition(id); err != nil {
		return err
	}
	s.recordLocked()
	s.redrawLocked()
	return nil
}

// ResetAll recentres every layer and records the change.
func (s *Session) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack.ResetAll()
	s.recordLocked()
	s.redrawLocked()
}

// Select selects a layer; "" clears the selection.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.stack.Select(id)
	if err != nil {
		return err
	}
	if changed {
		s.redrawLocked()
	}
	return nil
}

// Selected returns the selected layer id, or "".
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Selected()
}

// Layers returns a copy of the layers in z-order.
func (s *Session) Layers() []layer.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Snapshot()
}

// Layer returns a copy of one layer.
func (s *Session) Layer(id string) (layer.Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.stack.Get(id)
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}
