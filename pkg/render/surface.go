// surface.go - Offscreen drawing for one layer. Coordinates passed to the
// drawing methods are relative to the surface origin, which is the layer
// centre in its unrotated frame.
package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

type surface struct {
	img    *image.RGBA
	ox, oy float64
	r      *vector.Rasterizer
}

// newSurface returns a transparent w x h surface whose top-left pixel is at
// (x0, y0) relative to the origin.
func newSurface(x0, y0 float64, w, h int) *surface {
	return &surface{
		img: image.NewRGBA(image.Rect(0, 0, w, h)),
		ox:  -x0,
		oy:  -y0,
		r:   vector.NewRasterizer(w, h),
	}
}

func (s *surface) begin() {
	b := s.img.Bounds()
	s.r.Reset(b.Dx(), b.Dy())
	s.r.DrawOp = draw.Over
}

func (s *surface) fill(c color.Color) {
	s.r.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{})
}

func (s *surface) moveTo(x, y float64) { s.r.MoveTo(float32(x+s.ox), float32(y+s.oy)) }
func (s *surface) lineTo(x, y float64) { s.r.LineTo(float32(x+s.ox), float32(y+s.oy)) }

func (s *surface) cubeTo(x1, y1, x2, y2, x, y float64) {
	s.r.CubeTo(
		float32(x1+s.ox), float32(y1+s.oy),
		float32(x2+s.ox), float32(y2+s.oy),
		float32(x+s.ox), float32(y+s.oy),
	)
}

// rectPath adds a rectangle contour; ccw reverses its winding so it cuts a
// hole in a clockwise contour drawn in the same pass.
func (s *surface) rectPath(x, y, w, h float64, ccw bool) {
	s.moveTo(x, y)
	if ccw {
		s.lineTo(x, y+h)
		s.lineTo(x+w, y+h)
		s.lineTo(x+w, y)
	} else {
		s.lineTo(x+w, y)
		s.lineTo(x+w, y+h)
		s.lineTo(x, y+h)
	}
	s.r.ClosePath()
}

// roundRectPath adds a rounded rectangle contour.
func (s *surface) roundRectPath(x, y, w, h, rad float64, ccw bool) {
	rad = math.Max(0, math.Min(rad, math.Min(w, h)/2))
	k := rad * (1 - kappa)
	if ccw {
		s.moveTo(x+rad, y)
		s.cubeTo(x+k, y, x, y+k, x, y+rad)
		s.lineTo(x, y+h-rad)
		s.cubeTo(x, y+h-k, x+k, y+h, x+rad, y+h)
		s.lineTo(x+w-rad, y+h)
		s.cubeTo(x+w-k, y+h, x+w, y+h-k, x+w, y+h-rad)
		s.lineTo(x+w, y+rad)
		s.cubeTo(x+w, y+k, x+w-k, y, x+w-rad, y)
	} else {
		s.moveTo(x+rad, y)
		s.lineTo(x+w-rad, y)
		s.cubeTo(x+w-k, y, x+w, y+k, x+w, y+rad)
		s.lineTo(x+w, y+h-rad)
		s.cubeTo(x+w, y+h-k, x+w-k, y+h, x+w-rad, y+h)
		s.lineTo(x+rad, y+h)
		s.cubeTo(x+k, y+h, x, y+h-k, x, y+h-rad)
		s.lineTo(x, y+rad)
		s.cubeTo(x, y+k, x+k, y, x+rad, y)
	}
	s.r.ClosePath()
}

func (s *surface) circlePath(cx, cy, rad float64, ccw bool) {
	s.roundRectPath(cx-rad, cy-rad, 2*rad, 2*rad, rad, ccw)
}

func (s *surface) fillRect(x, y, w, h float64, c color.Color) {
	s.begin()
	s.rectPath(x, y, w, h, false)
	s.fill(c)
}

// strokeRect strokes a rectangle centred on its edges. A nil dash draws a
// solid outline with mitred corners.
func (s *surface) strokeRect(x, y, w, h, lw float64, dash []float64, c color.Color) {
	if len(dash) == 0 {
		half := lw / 2
		s.begin()
		s.rectPath(x-half, y-half, w+lw, h+lw, false)
		if w > lw && h > lw {
			s.rectPath(x+half, y+half, w-lw, h-lw, true)
		}
		s.fill(c)
		return
	}
	pts := [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}, {x, y}}
	s.strokePolyline(pts, lw, dash, c)
}

func (s *surface) line(x0, y0, x1, y1, lw float64, c color.Color) {
	s.strokePolyline([][2]float64{{x0, y0}, {x1, y1}}, lw, nil, c)
}

// strokePolyline strokes connected segments with butt caps, carrying the
// dash phase across vertices.
func (s *surface) strokePolyline(pts [][2]float64, lw float64, dash []float64, c color.Color) {
	s.begin()
	idx, remaining, on := 0, math.Inf(1), true
	if len(dash) > 0 {
		remaining = dash[0]
	}
	for i := 0; i+1 < len(pts); i++ {
		ax, ay := pts[i][0], pts[i][1]
		dx, dy := pts[i+1][0]-ax, pts[i+1][1]-ay
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length
		for t := 0.0; t < length; {
			step := math.Min(remaining, length-t)
			if on {
				s.segment(ax+ux*t, ay+uy*t, ax+ux*(t+step), ay+uy*(t+step), lw)
			}
			t += step
			remaining -= step
			if remaining <= 0 && len(dash) > 0 {
				idx = (idx + 1) % len(dash)
				remaining = dash[idx]
				on = !on
			}
		}
	}
	s.fill(c)
}

func (s *surface) segment(x0, y0, x1, y1, lw float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*lw/2, dx/l*lw/2
	s.moveTo(x0+nx, y0+ny)
	s.lineTo(x1+nx, y1+ny)
	s.lineTo(x1-nx, y1-ny)
	s.lineTo(x0-nx, y0-ny)
	s.r.ClosePath()
}

// handle draws a filled circle with an outline, like the canvas
// fill-then-stroke of an arc.
func (s *surface) handle(cx, cy, rad, lw float64, fillC, strokeC color.Color) {
	s.begin()
	s.circlePath(cx, cy, rad, false)
	s.fill(fillC)

	s.begin()
	s.circlePath(cx, cy, rad+lw/2, false)
	s.circlePath(cx, cy, math.Max(rad-lw/2, 0), true)
	s.fill(strokeC)
}

// pill draws a filled rounded rectangle with an outline.
func (s *surface) pill(x, y, w, h, rad, lw float64, fillC, strokeC color.Color) {
	s.begin()
	s.roundRectPath(x, y, w, h, rad, false)
	s.fill(fillC)

	half := lw / 2
	s.begin()
	s.roundRectPath(x-half, y-half, w+lw, h+lw, rad+half, false)
	s.roundRectPath(x+half, y+half, w-lw, h-lw, math.Max(rad-half, 0), true)
	s.fill(strokeC)
}

// text draws s with its horizontal anchor at x (per align) and the middle of
// the em box at y.
func (s *surface) text(str string, x, y float64, face font.Face, align string, c color.Color) {
	s.textAt(str, s.anchor(str, x, face, align), baseline(y, face), face, c)
}

// outlinedText strokes str in outline colour by stamping it around a ring of
// radius lw/2, then fills it.
func (s *surface) outlinedText(str string, x, y float64, face font.Face, align string, lw float64, fillC, outlineC color.Color) {
	left := s.anchor(str, x, face, align)
	by := baseline(y, face)

	r := lw / 2
	steps := max(16, int(math.Ceil(2*math.Pi*r/1.5)))
	for _, rr := range []float64{r, r / 2} {
		for i := 0; i < steps; i++ {
			sin, cos := math.Sincos(2 * math.Pi * float64(i) / float64(steps))
			s.textAt(str, left+rr*cos, by+rr*sin, face, outlineC)
		}
	}
	s.textAt(str, left, by, face, fillC)
}

func (s *surface) anchor(str string, x float64, face font.Face, align string) float64 {
	w := fixedToFloat(font.MeasureString(face, str))
	switch align {
	case "left":
		return x
	case "right":
		return x - w
	}
	return x - w/2
}

func (s *surface) textAt(str string, x, y float64, face font.Face, c color.Color) {
	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(math.Round((x + s.ox) * 64)),
			Y: fixed.Int26_6(math.Round((y + s.oy) * 64)),
		},
	}
	d.DrawString(str)
}

// baseline converts a middle-of-em y to a baseline y.
func baseline(y float64, face font.Face) float64 {
	m := face.Metrics()
	return y + (fixedToFloat(m.Ascent)-fixedToFloat(m.Descent))/2
}
