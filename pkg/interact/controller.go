// Package interact turns pointer events on the raster into layer updates.
//
// A Controller runs at most one gesture at a time. Pointer-down picks the
// gesture (a handle of the selected layer first, then the top-most layer
// under the pointer), pointer-move applies it and pointer-up ends it,
// firing OnInteractionEnd exactly once so the caller can record history.
package interact

import (
	"math"

	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/pkg/geometry"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"gonum.org/v1/gonum/spatial/r2"
)

// MinTextBoxWidth floors the wrap width set by the width handle.
const MinTextBoxWidth = 100.0

// Mode is the active gesture.
type Mode int

const (
	Idle Mode = iota
	Dragging
	Rotating
	Resizing
	ResizingTextBox
)

func (m Mode) String() string {
	switch m {
	case Dragging:
		return "dragging"
	case Rotating:
		return "rotating"
	case Resizing:
		return "resizing"
	case ResizingTextBox:
		return "resizing_text_box"
	}
	return "idle"
}

// Model is the layer state a controller reads and mutates. *layer.Stack
// satisfies it.
type Model interface {
	Layers() []layer.Layer
	Get(id string) (layer.Layer, bool)
	Selected() string
	Select(id string) (bool, error)
	Update(id string, p layer.Patch) error
}

// Surface reports the current raster size in pixels.
type Surface interface {
	RasterSize() (w, h int)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func() (w, h int)

func (f SurfaceFunc) RasterSize() (int, int) { return f() }

// baseline holds the values captured when a gesture starts.
type baseline struct {
	start    r2.Vec
	x, y     float64
	rotation float64
	angle    float64
	distance float64
	width    float64
	height   float64
	fontSize float64
	boxWidth float64
}

// Controller is the pointer gesture state machine.
type Controller struct {
	model   Model
	measure geometry.Measurer
	surface Surface

	mode   Mode
	target string
	base   baseline

	// OnInteractionEnd is called once when an active gesture ends.
	OnInteractionEnd func()
}

// New creates an idle controller.
func New(model Model, measure geometry.Measurer, surface Surface) *Controller {
	return &Controller{model: model, measure: measure, surface: surface}
}

// Mode returns the active gesture.
func (c *Controller) Mode() Mode { return c.mode }

// Target returns the id of the layer the active gesture applies to.
func (c *Controller) Target() string { return c.target }

// Reset drops any active gesture without notifying. Used when the whole
// editable state is replaced.
func (c *Controller) Reset() {
	c.mode, c.target, c.base = Idle, "", baseline{}
}

func (c *Controller) rasterSize() (float64, float64) {
	w, h := c.surface.RasterSize()
	return float64(w), float64(h)
}

// PointerDown resolves what the pointer at p (raster pixels) grabs and
// returns the started mode. A miss clears the selection and returns Idle.
// Calls during an active gesture are ignored.
func (c *Controller) PointerDown(p r2.Vec) Mode {
	if c.mode != Idle {
		return c.mode
	}
	cw, ch := c.rasterSize()

	if sel := c.model.Selected(); sel != "" {
		if l, ok := c.model.Get(sel); ok {
			if mode := c.hitHandles(l, p, cw, ch); mode != Idle {
				c.begin(mode, l, p, cw, ch)
				return mode
			}
		}
	}

	layers := c.model.Layers()
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		local := geometry.ToLocal(p, geometry.Center(l, cw, ch), l.Common().Rotation)
		w, h := geometry.LayerSize(l, cw, c.measure)
		if !geometry.HitBox(local, w, h) {
			continue
		}
		id := l.Common().ID
		if _, err := c.model.Select(id); err != nil {
			logrus.WithField("layer_id", id).WithError(err).Warn("select hit layer")
			return Idle
		}
		c.begin(Dragging, l, p, cw, ch)
		return Dragging
	}

	c.model.Select("")
	return Idle
}

func (c *Controller) hitHandles(l layer.Layer, p r2.Vec, cw, ch float64) Mode {
	local := geometry.ToLocal(p, geometry.Center(l, cw, ch), l.Common().Rotation)
	w, h := geometry.LayerSize(l, cw, c.measure)
	hs := geometry.SelectionHandles(w, h)
	switch {
	case hs.HitRotate(local):
		return Rotating
	case hs.HitResize(local):
		return Resizing
	case l.Kind() == layer.KindText && hs.HitWidth(local):
		return ResizingTextBox
	}
	return Idle
}

func (c *Controller) begin(mode Mode, l layer.Layer, p r2.Vec, cw, ch float64) {
	b := l.Common()
	center := geometry.Center(l, cw, ch)
	c.mode, c.target = mode, b.ID
	c.base = baseline{
		start:    p,
		x:        b.X,
		y:        b.Y,
		rotation: b.Rotation,
		angle:    geometry.Angle(p, center),
		distance: r2.Norm(r2.Sub(p, center)),
	}
	switch v := l.(type) {
	case *layer.Sticker:
		c.base.width, c.base.height = v.Width, v.Height
	case *layer.Text:
		c.base.fontSize, c.base.boxWidth = v.FontSize, v.BoxWidth
	}
	logrus.WithFields(logrus.Fields{"layer_id": b.ID, "mode": mode}).Debug("gesture started")
}

// PointerMove applies the active gesture for pointer position p and reports
// whether the target layer's geometry changed.
func (c *Controller) PointerMove(p r2.Vec) bool {
	if c.mode == Idle {
		return false
	}
	l, ok := c.model.Get(c.target)
	if !ok {
		return false
	}
	cw, ch := c.rasterSize()
	center := geometry.Center(l, cw, ch)

	var patch layer.Patch
	switch c.mode {
	case Dragging:
		patch.X = layer.F(c.base.x + (p.X-c.base.start.X)/cw*100)
		patch.Y = layer.F(c.base.y + (p.Y-c.base.start.Y)/ch*100)

	case Rotating:
		patch.Rotation = layer.F(c.base.rotation + geometry.Angle(p, center) - c.base.angle)

	case Resizing:
		start := c.base.distance
		if start == 0 {
			start = 1
		}
		ratio := r2.Norm(r2.Sub(p, center)) / start
		switch l.Kind() {
		case layer.KindSticker:
			patch.Width = layer.F(math.Max(c.base.width*ratio, layer.MinStickerSize))
			patch.Height = layer.F(math.Max(c.base.height*ratio, layer.MinStickerSize))
		case layer.KindText:
			patch.FontSize = layer.F(math.Max(c.base.fontSize*ratio, layer.MinFontSize))
			patch.BoxWidth = layer.F(math.Max(c.base.boxWidth*ratio, layer.MinBoxWidth))
		}

	case ResizingTextBox:
		local := geometry.ToLocal(p, center, l.Common().Rotation)
		w := 2 * math.Abs(local.X) * geometry.ReferenceWidth / cw
		patch.BoxWidth = layer.F(math.Max(w, MinTextBoxWidth))
	}

	before := l.Clone()
	if err := c.model.Update(c.target, patch); err != nil {
		return false
	}
	after, _ := c.model.Get(c.target)
	return !layer.Equal(before, after)
}

// PointerUp ends the active gesture. It reports whether a gesture was
// active, in which case OnInteractionEnd has been called.
func (c *Controller) PointerUp() bool {
	if c.mode == Idle {
		return false
	}
	logrus.WithFields(logrus.Fields{"layer_id": c.target, "mode": c.mode}).Debug("gesture ended")
	c.mode, c.target = Idle, ""
	if c.OnInteractionEnd != nil {
		c.OnInteractionEnd()
	}
	return true
}
