// Package layer holds the editable layer stack of a meme: text and sticker
// layers positioned in percent of the canvas and sized at reference scale.
package layer

import (
	"math"

	"github.com/oklog/ulid/v2"
)

// Kind discriminates the layer variants.
type Kind string

const (
	KindText    Kind = "text"
	KindSticker Kind = "sticker"
)

// Align is the horizontal anchor of wrapped text lines.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// Size floors applied by every update.
const (
	MinFontSize    = 10.0
	MinBoxWidth    = 50.0
	MinStickerSize = 50.0
)

// Size ceilings, in reference-width units (a 600px logical canvas).
const (
	MaxFontSize    = 600.0
	MaxBoxWidth    = 6000.0
	MaxStickerSize = 6000.0
)

// Defaults for newly created layers.
const (
	DefaultFontSize    = 40.0
	DefaultBoxWidth    = 400.0
	DefaultFontFamily  = "Oswald"
	DefaultTextColor   = "#FFFFFF"
	DefaultStickerSize = 200.0
)

// Base carries the fields shared by all layer kinds.
// X and Y are percentages of the canvas and are not clamped.
type Base struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"` // radians
}

// Layer is implemented by *Text and *Sticker only.
type Layer interface {
	Kind() Kind
	Common() *Base
	Clone() Layer
	sealed()
}

// Text is a block of wrapped, outlined caption text.
type Text struct {
	Base
	Content    string  `json:"content"`
	Color      string  `json:"color"`
	FontSize   float64 `json:"fontSize"`
	BoxWidth   float64 `json:"boxWidth"`
	TextAlign  Align   `json:"textAlign"`
	FontFamily string  `json:"fontFamily"`
}

// Sticker is a raster image referenced by URL or data URI.
type Sticker struct {
	Base
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (t *Text) Kind() Kind    { return KindText }
func (t *Text) Common() *Base { return &t.Base }
func (t *Text) Clone() Layer  { c := *t; return &c }
func (t *Text) sealed()       {}

func (s *Sticker) Kind() Kind    { return KindSticker }
func (s *Sticker) Common() *Base { return &s.Base }
func (s *Sticker) Clone() Layer  { c := *s; return &c }
func (s *Sticker) sealed()       {}

// NewID returns a fresh layer id.
func NewID() string {
	return ulid.Make().String()
}

// NewText creates a centred text layer with the editor defaults.
func NewText(content string, x, y float64) *Text {
	return &Text{
		Base:       Base{ID: NewID(), X: x, Y: y},
		Content:    content,
		Color:      DefaultTextColor,
		FontSize:   DefaultFontSize,
		BoxWidth:   DefaultBoxWidth,
		TextAlign:  AlignCenter,
		FontFamily: DefaultFontFamily,
	}
}

// NewSticker creates a sticker centred on the canvas.
func NewSticker(url string, width, height float64) *Sticker {
	return &Sticker{
		Base:   Base{ID: NewID(), X: 50, Y: 50},
		URL:    url,
		Width:  clampSize(width, DefaultStickerSize, MinStickerSize, MaxStickerSize),
		Height: clampSize(height, DefaultStickerSize, MinStickerSize, MaxStickerSize),
	}
}

// Equal reports whether two layers hold identical values.
func Equal(a, b Layer) bool {
	switch at := a.(type) {
	case *Text:
		bt, ok := b.(*Text)
		return ok && *at == *bt
	case *Sticker:
		bs, ok := b.(*Sticker)
		return ok && *at == *bs
	}
	return a == nil && b == nil
}

// CloneAll deep-copies a layer slice.
func CloneAll(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	for i, l := range layers {
		out[i] = l.Clone()
	}
	return out
}

// normalize enforces the size bounds and fills empty text defaults.
// Non-finite numbers fall back to the defaults.
func normalize(l Layer) {
	b := l.Common()
	b.X = finiteOr(b.X, 50)
	b.Y = finiteOr(b.Y, 50)
	b.Rotation = finiteOr(b.Rotation, 0)

	switch v := l.(type) {
	case *Text:
		v.FontSize = clampSize(v.FontSize, DefaultFontSize, MinFontSize, MaxFontSize)
		v.BoxWidth = clampSize(v.BoxWidth, DefaultBoxWidth, MinBoxWidth, MaxBoxWidth)
		switch v.TextAlign {
		case AlignLeft, AlignCenter, AlignRight:
		default:
			v.TextAlign = AlignCenter
		}
		if v.FontFamily == "" {
			v.FontFamily = DefaultFontFamily
		}
		if v.Color == "" {
			v.Color = DefaultTextColor
		}
	case *Sticker:
		v.Width = clampSize(v.Width, DefaultStickerSize, MinStickerSize, MaxStickerSize)
		v.Height = clampSize(v.Height, DefaultStickerSize, MinStickerSize, MaxStickerSize)
	}
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func clampSize(v, def, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return min(max(v, lo), hi)
}
