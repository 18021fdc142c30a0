// Package geometry holds the pure layout math shared by the renderer and the
// pointer hit-testing code, so both always agree on a layer's bounding box.
package geometry

import (
	"math"
	"strings"

	"github.com/xob0t/MemeStencil/pkg/layer"
	"gonum.org/v1/gonum/spatial/r2"
)

// ReferenceWidth is the logical canvas width at which layer sizes are stored.
const ReferenceWidth = 600.0

// LineHeightFactor multiplies the effective font size to get line spacing.
const LineHeightFactor = 1.2

// Selection decoration and hit-test constants, in raster pixels.
const (
	SelectionPadding   = 12.0
	RotateHandleOffset = 35.0
	HandleRadius       = 9.0
	HandleHitSize      = 35.0
	HitPadding         = 15.0
)

// EffectiveSize scales a reference-width value to a canvas of the given width.
func EffectiveSize(value, canvasWidth float64) float64 {
	return value * canvasWidth / ReferenceWidth
}

// MeasureFunc returns the advance width of s in raster pixels.
type MeasureFunc func(s string) float64

// Measurer measures strings for a font family at a pixel size.
type Measurer interface {
	MeasureString(family string, size float64, s string) float64
}

// WrapText breaks text into lines no wider than maxWidth. Explicit newlines
// always start a new line (empty lines included); words are packed greedily
// on single spaces. A word wider than maxWidth is left on its own line.
func WrapText(text string, maxWidth float64, measure MeasureFunc) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Split(para, " ")
		line := words[0]
		for _, w := range words[1:] {
			candidate := line + " " + w
			if measure(candidate) > maxWidth {
				lines = append(lines, line)
				line = w
				continue
			}
			line = candidate
		}
		lines = append(lines, line)
	}
	return lines
}

// TextMetrics is the laid-out form of a text layer in raster pixels.
type TextMetrics struct {
	Lines      []string
	Width      float64
	Height     float64
	LineHeight float64
	FontSize   float64
}

// TextBox wraps t at its effective box width and returns its bounding box.
// Width is never smaller than the effective font size.
func TextBox(t *layer.Text, canvasWidth float64, m Measurer) TextMetrics {
	fs := EffectiveSize(t.FontSize, canvasWidth)
	maxW := max(EffectiveSize(t.BoxWidth, canvasWidth), fs)
	lines := WrapText(t.Content, maxW, func(s string) float64 {
		return m.MeasureString(t.FontFamily, fs, s)
	})
	lh := LineHeightFactor * fs
	return TextMetrics{
		Lines:      lines,
		Width:      maxW,
		Height:     float64(len(lines)) * lh,
		LineHeight: lh,
		FontSize:   fs,
	}
}

// LayerSize returns the unrotated width and height of l on a canvas of the
// given width.
func LayerSize(l layer.Layer, canvasWidth float64, m Measurer) (w, h float64) {
	switch v := l.(type) {
	case *layer.Sticker:
		return EffectiveSize(v.Width, canvasWidth), EffectiveSize(v.Height, canvasWidth)
	case *layer.Text:
		tm := TextBox(v, canvasWidth, m)
		return tm.Width, tm.Height
	}
	return 0, 0
}

// Center returns the raster position of the layer origin.
func Center(l layer.Layer, rasterW, rasterH float64) r2.Vec {
	b := l.Common()
	return r2.Vec{X: b.X / 100 * rasterW, Y: b.Y / 100 * rasterH}
}

// ToLocal maps a raster point into the unrotated frame of a layer centred at c
// and rotated by rot radians.
func ToLocal(p, c r2.Vec, rot float64) r2.Vec {
	d := r2.Sub(p, c)
	sin, cos := math.Sincos(rot)
	return r2.Vec{
		X: d.X*cos + d.Y*sin,
		Y: -d.X*sin + d.Y*cos,
	}
}

// FromLocal is the inverse of ToLocal: it rotates a local point by rot and
// translates it to c.
func FromLocal(p, c r2.Vec, rot float64) r2.Vec {
	sin, cos := math.Sincos(rot)
	return r2.Add(c, r2.Vec{
		X: p.X*cos - p.Y*sin,
		Y: p.X*sin + p.Y*cos,
	})
}

// Angle returns the angle of p around c, in radians.
func Angle(p, c r2.Vec) float64 {
	d := r2.Sub(p, c)
	return math.Atan2(d.Y, d.X)
}

// Handles locates the selection decoration of a layer of size w x h, in the
// layer's local frame.
type Handles struct {
	HalfW, HalfH float64 // padded half extents
	Rotate       r2.Vec
	Resize       r2.Vec
	Width        r2.Vec
}

// SelectionHandles returns the handle layout for a w x h layer.
func SelectionHandles(w, h float64) Handles {
	hw, hh := w/2+SelectionPadding, h/2+SelectionPadding
	return Handles{
		HalfW:  hw,
		HalfH:  hh,
		Rotate: r2.Vec{X: 0, Y: -hh - RotateHandleOffset},
		Resize: r2.Vec{X: hw, Y: hh},
		Width:  r2.Vec{X: hw, Y: 0},
	}
}

// HitRotate reports whether local lies within the rotate handle's hit circle.
func (h Handles) HitRotate(local r2.Vec) bool {
	return r2.Norm(r2.Sub(local, h.Rotate)) < HandleHitSize
}

// HitResize reports whether local lies on the corner resize handle.
func (h Handles) HitResize(local r2.Vec) bool {
	return math.Abs(local.X-h.Resize.X) < HandleHitSize && math.Abs(local.Y-h.Resize.Y) < HandleHitSize
}

// HitWidth reports whether local lies on the right edge width handle.
func (h Handles) HitWidth(local r2.Vec) bool {
	return math.Abs(local.X-h.Width.X) < HandleHitSize && math.Abs(local.Y) < h.HalfH
}

// HitBox reports whether local lies inside a w x h box grown by HitPadding.
func HitBox(local r2.Vec, w, h float64) bool {
	return math.Abs(local.X) <= w/2+HitPadding && math.Abs(local.Y) <= h/2+HitPadding
}
