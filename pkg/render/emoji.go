package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// EmojiFamily is the family emoji stickers are drawn with. It has no
// embedded font; register one (for example Noto Emoji) to enable it.
const EmojiFamily = "emoji"

var ErrMissingGlyph = errors.New("no glyph for character")

// Rasterize draws s centred on a transparent size x size square using only
// the registered family, in black at 80% of the square. It fails with
// ErrMissingGlyph when the family is not registered or lacks a character.
func (fm *FontManager) Rasterize(family, s string, size int) (*image.RGBA, error) {
	fm.lib.mu.RLock()
	f, ok := fm.lib.parsed[resolveFamily(family)]
	fm.lib.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("family %q: %w", family, ErrMissingGlyph)
	}

	var buf sfnt.Buffer
	for _, r := range s {
		if r == '\u200d' || r == '\ufe0e' || r == '\ufe0f' {
			continue
		}
		if idx, err := f.GlyphIndex(&buf, r); err != nil || idx == 0 {
			return nil, fmt.Errorf("%U in %q: %w", r, family, ErrMissingGlyph)
		}
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size) * 0.8,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	defer face.Close()

	half := float64(size) / 2
	surf := newSurface(-half, -half, size, size)
	surf.text(s, 0, float64(size)*0.05, face, "center", color.Black)
	return surf.img, nil
}
