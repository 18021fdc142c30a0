// renderer.go - Composites a background and a layer stack into one raster.
// Order: background through the filter, then every layer bottom to top,
// each drawn centred in its own frame and placed with a translate+rotate
// transform. Selection decoration shares the layer's frame.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/geometry"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/spatial/r2"
)

// Placeholder canvas size used before a background is loaded.
const (
	DefaultCanvasSize  = 800
	FallbackRasterSize = 300
)

// MaxRasterSize bounds both raster dimensions.
const MaxRasterSize = 4096

// decoration drawing parameters
const (
	selectionLineWidth = 3.0
	stickerLineWidth   = 2.0
	pillHalfW          = 6.0
	pillHalfH          = 16.0
	pillRadius         = 5.0
	surfaceMargin      = 4.0
)

var (
	selectionDash = []float64{8, 6}
	loadingDash   = []float64{5, 5}
)

// StickerSource reports the load state of sticker URLs.
type StickerSource interface {
	Lookup(url string) (image.Image, assets.Status)
}

// Frame is everything one draw depends on.
type Frame struct {
	Background   image.Image // nil draws the loading placeholder
	Layers       []layer.Layer
	SelectedID   string
	Filter       string
	DisplayWidth int
}

// Renderer draws frames. It is not safe for concurrent use.
type Renderer struct {
	fonts    *FontManager
	stickers StickerSource
}

// New creates a renderer. stickers may be nil, in which case every sticker
// draws as loading. The renderer draws through its own View of fonts, so one
// FontManager can back many renderers.
func New(fonts *FontManager, stickers StickerSource) *Renderer {
	return &Renderer{fonts: fonts.View(), stickers: stickers}
}

// Fonts returns the font manager used for drawing and measuring.
func (r *Renderer) Fonts() *FontManager { return r.fonts }

// FitRaster returns the raster size for a background scaled to displayWidth
// with its aspect ratio kept. A nil background is treated as an 800x800
// square; a non-positive displayWidth keeps the native size. The result is
// scaled down further when a side would exceed MaxRasterSize.
func FitRaster(bg image.Image, displayWidth int) (w, h int) {
	bw, bh := DefaultCanvasSize, DefaultCanvasSize
	if bg != nil {
		b := bg.Bounds()
		bw, bh = b.Dx(), b.Dy()
	}
	scale := 1.0
	if bw > 0 && displayWidth > 0 {
		scale = float64(displayWidth) / float64(bw)
	}
	if side := float64(max(bw, bh)) * scale; side > MaxRasterSize {
		scale *= MaxRasterSize / side
	}
	w = int(math.Floor(float64(bw) * scale))
	h = int(math.Floor(float64(bh) * scale))
	if w <= 0 {
		w = FallbackRasterSize
	}
	if h <= 0 {
		h = FallbackRasterSize
	}
	return w, h
}

// Render draws f onto a new raster.
func (r *Renderer) Render(f Frame) *image.RGBA {
	w, h := FitRaster(f.Background, f.DisplayWidth)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	r.drawBackground(dst, f.Background, MustFilter(f.Filter))
	for _, l := range f.Layers {
		r.drawLayer(dst, l, l.Common().ID == f.SelectedID)
	}
	return dst
}

// MeasureString implements geometry.Measurer.
func (r *Renderer) MeasureString(family string, size float64, s string) float64 {
	return r.fonts.MeasureString(family, size, s)
}

func (r *Renderer) drawBackground(dst *image.RGBA, bg image.Image, filter Filter) {
	b := dst.Bounds()
	base := image.NewRGBA(b)
	if bg != nil {
		draw.CatmullRom.Scale(base, b, bg, bg.Bounds(), draw.Src, nil)
	} else {
		draw.Draw(base, b, image.NewUniform(placeholderBg), image.Point{}, draw.Src)
	}
	draw.Draw(dst, b, filter.Apply(base), image.Point{}, draw.Over)

	if bg == nil {
		// The label is drawn after the filter is reset.
		face, err := r.fonts.Face("sans-serif", 14)
		if err != nil {
			return
		}
		s := &surface{img: dst, ox: float64(b.Dx()) / 2, oy: float64(b.Dy()) / 2}
		s.text("Loading Image...", 0, 0, face, "center", placeholderFg)
	}
}

func (r *Renderer) drawLayer(dst *image.RGBA, l layer.Layer, selected bool) {
	cw, ch := float64(dst.Bounds().Dx()), float64(dst.Bounds().Dy())
	c := geometry.Center(l, cw, ch)
	rot := l.Common().Rotation

	switch v := l.(type) {
	case *layer.Sticker:
		w := geometry.EffectiveSize(v.Width, cw)
		h := geometry.EffectiveSize(v.Height, cw)
		var img image.Image
		status := assets.StatusLoading
		if r.stickers != nil {
			img, status = r.stickers.Lookup(v.URL)
		}
		if status == assets.StatusLoaded && img != nil {
			drawSticker(dst, img, c.X, c.Y, rot, w, h)
			if !selected {
				return
			}
		}
		s := newLayerSurface(dst.Bounds(), c, rot, w, h, 0, selected)
		if s == nil {
			return
		}
		switch {
		case status == assets.StatusError:
			r.drawErrorPlaceholder(s, w, h)
		case status != assets.StatusLoaded:
			s.fillRect(-w/2, -h/2, w, h, loadingFill)
			s.strokeRect(-w/2, -h/2, w, h, stickerLineWidth, loadingDash, loadingStroke)
		}
		if selected {
			drawSelection(s, w, h, false)
		}
		composite(dst, s, c.X, c.Y, rot)

	case *layer.Text:
		tm := geometry.TextBox(v, cw, r.fonts)
		face, err := r.fonts.Face(v.FontFamily, tm.FontSize)
		if err != nil {
			return
		}
		lw := math.Max(3, tm.FontSize/12)

		widest := 0.0
		for _, line := range tm.Lines {
			widest = math.Max(widest, r.fonts.MeasureString(v.FontFamily, tm.FontSize, line))
		}
		s := newLayerSurface(dst.Bounds(), c, rot, math.Max(tm.Width, 2*widest), tm.Height, tm.LineHeight+lw, selected)
		if s == nil {
			return
		}

		var x float64
		switch v.TextAlign {
		case layer.AlignLeft:
			x = -tm.Width / 2
		case layer.AlignRight:
			x = tm.Width / 2
		}
		fill := ParseColorOr(v.Color, color.White)
		startY := -tm.Height/2 + tm.LineHeight/2
		for i, line := range tm.Lines {
			y := startY + float64(i)*tm.LineHeight
			s.outlinedText(line, x, y, face, string(v.TextAlign), lw, fill, outlineBlack)
		}
		if selected {
			drawSelection(s, tm.Width, tm.Height, true)
		}
		composite(dst, s, c.X, c.Y, rot)
	}
}

func (r *Renderer) drawErrorPlaceholder(s *surface, w, h float64) {
	s.fillRect(-w/2, -h/2, w, h, errorFill)
	s.strokeRect(-w/2, -h/2, w, h, stickerLineWidth, nil, errorRed)
	face, err := r.fonts.Face("sans-serif-bold", math.Max(14, w/2))
	if err != nil {
		return
	}
	s.text("!", 0, 0, face, "center", errorRed)
}

// newLayerSurface sizes a surface for content of w x h plus overflow pad,
// leaving room for the selection decoration when selected. The surface only
// covers the part of that box that lands on dst once placed at c and rotated
// by rot; it is nil when nothing does.
func newLayerSurface(dst image.Rectangle, c r2.Vec, rot, w, h, pad float64, selected bool) *surface {
	halfW, halfH := w/2+pad, h/2+pad
	if selected {
		hs := geometry.SelectionHandles(w, h)
		halfW = math.Max(halfW, hs.HalfW+geometry.HandleRadius+selectionLineWidth)
		halfH = math.Max(halfH, hs.HalfH+geometry.RotateHandleOffset+geometry.HandleRadius+selectionLineWidth)
	}
	halfW, halfH = math.Ceil(halfW+surfaceMargin), math.Ceil(halfH+surfaceMargin)

	// Bounding box of dst in the layer frame.
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range []r2.Vec{
		{X: float64(dst.Min.X), Y: float64(dst.Min.Y)},
		{X: float64(dst.Max.X), Y: float64(dst.Min.Y)},
		{X: float64(dst.Min.X), Y: float64(dst.Max.Y)},
		{X: float64(dst.Max.X), Y: float64(dst.Max.Y)},
	} {
		l := geometry.ToLocal(p, c, rot)
		minX, maxX = math.Min(minX, l.X), math.Max(maxX, l.X)
		minY, maxY = math.Min(minY, l.Y), math.Max(maxY, l.Y)
	}

	x0 := math.Max(-halfW, math.Floor(minX-surfaceMargin))
	y0 := math.Max(-halfH, math.Floor(minY-surfaceMargin))
	x1 := math.Min(halfW, math.Ceil(maxX+surfaceMargin))
	y1 := math.Min(halfH, math.Ceil(maxY+surfaceMargin))
	if !(x1 > x0 && y1 > y0) {
		return nil
	}
	return newSurface(x0, y0, int(x1-x0), int(y1-y0))
}

func drawSelection(s *surface, w, h float64, widthHandle bool) {
	hs := geometry.SelectionHandles(w, h)
	s.strokeRect(-hs.HalfW, -hs.HalfH, 2*hs.HalfW, 2*hs.HalfH, selectionLineWidth, selectionDash, selectionBlue)

	s.handle(hs.Resize.X, hs.Resize.Y, geometry.HandleRadius, selectionLineWidth, selectionBlue, handleStroke)

	s.line(0, -hs.HalfH, hs.Rotate.X, hs.Rotate.Y, selectionLineWidth, handleStroke)
	s.handle(hs.Rotate.X, hs.Rotate.Y, geometry.HandleRadius, selectionLineWidth, selectionBlue, handleStroke)

	if widthHandle {
		s.pill(hs.HalfW-pillHalfW, -pillHalfH, 2*pillHalfW, 2*pillHalfH, pillRadius, selectionLineWidth, widthOrange, handleStroke)
	}
}

// composite places the surface origin at (cx, cy) rotated by rot.
func composite(dst *image.RGBA, s *surface, cx, cy, rot float64) {
	if rot == 0 {
		off := image.Pt(int(math.Round(cx-s.ox)), int(math.Round(cy-s.oy)))
		draw.Draw(dst, s.img.Bounds().Add(off), s.img, image.Point{}, draw.Over)
		return
	}
	sin, cos := math.Sincos(rot)
	m := f64.Aff3{
		cos, -sin, cx - cos*s.ox + sin*s.oy,
		sin, cos, cy - sin*s.ox - cos*s.oy,
	}
	draw.BiLinear.Transform(dst, m, s.img, s.img.Bounds(), draw.Over, nil)
}

// drawSticker scales img into a w x h box centred on (cx, cy), rotated by rot.
func drawSticker(dst *image.RGBA, img image.Image, cx, cy, rot, w, h float64) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	kx, ky := w/float64(b.Dx()), h/float64(b.Dy())
	sin, cos := math.Sincos(rot)
	// Source pixel (sx, sy) maps to local (-w/2 + kx*sx, -h/2 + ky*sy), then
	// rotates about the centre.
	lx, ly := -w/2-kx*float64(b.Min.X), -h/2-ky*float64(b.Min.Y)
	m := f64.Aff3{
		cos * kx, -sin * ky, cx + cos*lx - sin*ly,
		sin * kx, cos * ky, cy + sin*lx + cos*ly,
	}
	draw.CatmullRom.Transform(dst, m, img, b, draw.Over, nil)
}
