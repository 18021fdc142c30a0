// Package editor ties the layer stack, asset cache, renderer, gesture
// controller and history into one editing session.
//
// A Session serializes every mutation behind one mutex, the way a UI event
// loop would. Asset loads run on their own goroutines and re-enter through
// the same lock to redraw once when they settle.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/history"
	"github.com/xob0t/MemeStencil/pkg/interact"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"github.com/xob0t/MemeStencil/pkg/render"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultDisplayWidth is the raster width used when Options leaves it unset.
const DefaultDisplayWidth = 600

// FilterNone is the filter a freshly opened image starts with.
const FilterNone = "none"

var (
	ErrNoBackground = errors.New("no background image opened")
	ErrClosed       = errors.New("session closed")
)

// Options configures a Session. The zero value is usable.
type Options struct {
	ID           string
	DisplayWidth int
	HistoryCap   int
	Loader       assets.Loader       // defaults to a SourceLoader rooted at the working directory
	Fonts        *render.FontManager // defaults to the embedded families
}

// Session is one editable meme.
type Session struct {
	mu sync.Mutex

	id       string
	stack    *layer.Stack
	hist     *history.History
	cache    *assets.Cache
	renderer *render.Renderer
	ctrl     *interact.Controller
	log      *logrus.Entry

	background   string
	filter       string
	displayWidth int

	frame   *image.RGBA
	renders int
	closed  bool
}

// New creates an empty session. Nothing is drawn until Open.
func New(opts Options) (*Session, error) {
	if opts.ID == "" {
		opts.ID = ulid.Make().String()
	}
	if opts.DisplayWidth <= 0 {
		opts.DisplayWidth = DefaultDisplayWidth
	}
	if opts.Loader == nil {
		opts.Loader = assets.NewSourceLoader("")
	}
	if opts.Fonts == nil {
		fm, err := render.NewFontManager()
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		opts.Fonts = fm
	}

	stack, _ := layer.NewStack()
	s := &Session{
		id:           opts.ID,
		stack:        stack,
		hist:         history.New(opts.HistoryCap),
		filter:       FilterNone,
		displayWidth: opts.DisplayWidth,
		log:          logrus.WithField("session_id", opts.ID),
	}
	s.cache = assets.NewCache(opts.Loader, s.settled)
	s.renderer = render.New(opts.Fonts, s.cache)
	s.ctrl = interact.New(s.stack, s.renderer, interact.SurfaceFunc(s.rasterSizeLocked))
	s.ctrl.OnInteractionEnd = s.recordLocked
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Fonts returns the session's font manager, for registering custom families.
func (s *Session) Fonts() *render.FontManager { return s.renderer.Fonts() }

// Close cancels pending asset loads. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// Load goroutines re-enter through s.mu, so the cache is closed unlocked.
	s.cache.Close()
	s.log.Info("session closed")
}

// settled runs on a loader goroutine when an asset load finishes.
func (s *Session) settled(url string, status assets.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if url == s.background && status == assets.StatusError {
		s.log.WithField("url", abbreviate(url)).Warn("background failed to load, showing placeholder")
	}
	s.redrawLocked()
}

// Wait blocks until all pending asset loads have settled.
func (s *Session) Wait(ctx context.Context) error {
	return s.cache.Wait(ctx)
}

// ── Background and filter ──────────────────────────────────────────────

// Open sets src as the base image and starts a fresh document: no layers,
// no filter and a history holding only that state. It does not wait for the
// image; the loading placeholder is drawn until the load settles, and stays
// if it fails. Use AwaitBackground when the real dimensions are needed.
func (s *Session) Open(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.background = src
	s.filter = FilterNone
	s.stack.Replace(nil)
	s.stack.Select("")
	s.ctrl.Reset()
	s.hist.Reset(history.Snapshot{Background: src, Filter: FilterNone})
	s.cache.GetOrLoad(src)
	s.redrawLocked()
	s.log.WithField("url", abbreviate(src)).Info("background opened")
	return nil
}

// AwaitBackground blocks until the current base image has loaded and
// returns its load error, if any.
func (s *Session) AwaitBackground(ctx context.Context) error {
	s.mu.Lock()
	src := s.background
	s.mu.Unlock()
	if src == "" {
		return ErrNoBackground
	}
	if _, err := s.cache.Await(ctx, src); err != nil {
		return fmt.Errorf("open background: %w", err)
	}
	return nil
}

// ApplyGeneratedImage swaps the base image for src, keeping layers and
// filter, and records the change.
func (s *Session) ApplyGeneratedImage(ctx context.Context, src string) error {
	if _, err := s.cache.Await(ctx, src); err != nil {
		return fmt.Errorf("apply generated image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background == "" {
		return ErrNoBackground
	}
	s.background = src
	s.recordLocked()
	s.redrawLocked()
	return nil
}

// Background returns the current base image source.
func (s *Session) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// SetFilter sets the background filter and records the change. Unknown
// filters are kept as given and render unfiltered.
func (s *Session) SetFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filter == "" {
		filter = FilterNone
	}
	s.filter = filter
	s.recordLocked()
	s.redrawLocked()
}

// Filter returns the current background filter.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetDisplayWidth changes the raster width, as when the viewport resizes.
func (s *Session) SetDisplayWidth(w int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w <= 0 || w == s.displayWidth {
		return
	}
	s.displayWidth = w
	s.redrawLocked()
}

// ── History ────────────────────────────────────────────────────────────

// Undo restores the previous snapshot. It reports false at the oldest one.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.hist.Undo()
	if ok {
		s.restoreLocked(snap)
	}
	return ok
}

// Redo restores the next snapshot. It reports false at the newest one.
func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.hist.Redo()
	if ok {
		s.restoreLocked(snap)
	}
	return ok
}

func (s *Session) restoreLocked(snap history.Snapshot) {
	s.stack.Replace(snap.Layers)
	s.background = snap.Background
	s.filter = snap.Filter
	s.ensureAssetsLocked()
	s.redrawLocked()
}

func (s *Session) recordLocked() {
	s.hist.Record(history.Snapshot{
		Layers:     s.stack.Snapshot(),
		Background: s.background,
		Filter:     s.filter,
	})
}

// ── Pointer ────────────────────────────────────────────────────────────

// PointerDown starts a gesture at raster position (x, y).
func (s *Session) PointerDown(x, y float64) interact.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return interact.Idle
	}
	before := s.stack.Selected()
	mode := s.ctrl.PointerDown(r2.Vec{X: x, Y: y})
	if mode != interact.Idle || s.stack.Selected() != before {
		s.redrawLocked()
	}
	return mode
}

// PointerMove continues the active gesture and reports whether a layer
// changed.
func (s *Session) PointerMove(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.ctrl.PointerMove(r2.Vec{X: x, Y: y})
	if changed {
		s.redrawLocked()
	}
	return changed
}

// PointerUp ends the active gesture, recording a history entry if one was
// active.
func (s *Session) PointerUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.PointerUp()
}

// Mode returns the active gesture.
func (s *Session) Mode() interact.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Mode()
}

// ── Drawing and export ─────────────────────────────────────────────────

// rasterSizeLocked reports the size the next frame will have.
func (s *Session) rasterSizeLocked() (int, int) {
	return render.FitRaster(s.backgroundImageLocked(), s.displayWidth)
}

func (s *Session) backgroundImageLocked() image.Image {
	if s.background == "" {
		return nil
	}
	img, _ := s.cache.Lookup(s.background)
	return img
}

// ensureAssetsLocked starts loads for every referenced asset that is not
// loaded or loading, retrying earlier failures.
func (s *Session) ensureAssetsLocked() {
	if s.background != "" {
		s.cache.GetOrLoad(s.background)
	}
	for _, l := range s.stack.Layers() {
		if st, ok := l.(*layer.Sticker); ok {
			s.cache.GetOrLoad(st.URL)
		}
	}
}

func (s *Session) redrawLocked() {
	if s.background == "" {
		return
	}
	s.frame = s.renderer.Render(render.Frame{
		Background:   s.backgroundImageLocked(),
		Layers:       s.stack.Layers(),
		SelectedID:   s.stack.Selected(),
		Filter:       s.filter,
		DisplayWidth: s.displayWidth,
	})
	s.renders++
}

// Render redraws now and returns the frame.
func (s *Session) Render() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.background == "" {
		return nil, ErrNoBackground
	}
	s.redrawLocked()
	return s.frame, nil
}

// Frame returns the last drawn frame without redrawing.
func (s *Session) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, ErrNoBackground
	}
	return s.frame, nil
}

// RenderCount returns how many frames have been drawn.
func (s *Session) RenderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Dimensions returns the size of the last frame, or zero before the first.
func (s *Session) Dimensions() (w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

// Export clears the selection, redraws and encodes the frame. Before the
// first frame it returns no data and zero dimensions.
func (s *Session) Export(format export.Format, quality float64) ([]byte, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, 0, 0, nil
	}
	s.stack.Select("")
	s.redrawLocked()

	data, err := export.Bytes(s.frame, format, quality)
	if err != nil {
		return nil, 0, 0, err
	}
	b := s.frame.Bounds()
	s.log.WithFields(logrus.Fields{"format": format, "bytes": len(data)}).Info("exported")
	return data, b.Dx(), b.Dy(), nil
}

// State is a point-in-time summary of the session.
type State struct {
	ID         string        `json:"id"`
	Background string        `json:"background"`
	Filter     string        `json:"filter"`
	Selected   string        `json:"selectedId,omitempty"`
	Layers     []layer.Layer `json:"layers"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Mode       string        `json:"mode"`
	CanUndo    bool          `json:"canUndo"`
	CanRedo    bool          `json:"canRedo"`
	Renders    int           `json:"renders"`
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:         s.id,
		Background: abbreviate(s.background),
		Filter:     s.filter,
		Selected:   s.stack.Selected(),
		Layers:     s.stack.Snapshot(),
		Mode:       s.ctrl.Mode().String(),
		CanUndo:    s.hist.CanUndo(),
		CanRedo:    s.hist.CanRedo(),
		Renders:    s.renders,
	}
	if s.frame != nil {
		st.Width, st.Height = s.frame.Bounds().Dx(), s.frame.Bounds().Dy()
	}
	return st
}

// abbreviate keeps data URIs out of logs and state dumps.
func abbreviate(src string) string {
	if len(src) > 80 {
		return src[:77] + "..."
	}
	return src
}
