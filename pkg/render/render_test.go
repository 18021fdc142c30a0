package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"

	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/geometry"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"golang.org/x/image/font/gofont/gomonobold"
	"gonum.org/v1/gonum/spatial/r2"
)

type stubStickers map[string]assets.Status

func (s stubStickers) Lookup(url string) (image.Image, assets.Status) {
	st, ok := s[url]
	if !ok {
		return nil, assets.StatusNone
	}
	if st != assets.StatusLoaded {
		return nil, st
	}
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	return img, st
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestRenderer(t *testing.T, stickers StickerSource) *Renderer {
	t.Helper()
	fm, err := NewFontManager()
	if err != nil {
		t.Fatal(err)
	}
	return New(fm, stickers)
}

func rgbaAt(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestFitRaster(t *testing.T) {
	tests := []struct {
		name  string
		bg    image.Image
		width int
		wantW int
		wantH int
	}{
		{"landscape", solid(800, 600, color.White), 600, 600, 450},
		{"no background", nil, 500, 500, 500},
		{"native", solid(120, 80, color.White), 0, 120, 80},
		{"floor", solid(3, 7, color.White), 10, 10, 23},
		{"degenerate", solid(1000, 1, color.White), 100, 100, 300},
		{"tall capped", solid(100, 8192, color.White), 100, 50, 4096},
		{"wide capped", solid(1024, 512, color.White), 8192, 4096, 2048},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitRaster(tt.bg, tt.width)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitRaster = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestRenderPlaceholderBackground(t *testing.T) {
	r := newTestRenderer(t, nil)
	img := r.Render(Frame{DisplayWidth: 200})
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("size = %v", b)
	}
	if got := rgbaAt(img, 1, 1); got != placeholderBg {
		t.Errorf("corner = %v, want %v", got, placeholderBg)
	}
}

func TestFilterDoesNotReachLayers(t *testing.T) {
	r := newTestRenderer(t, stubStickers{"red.png": assets.StatusLoaded})
	st := layer.NewSticker("red.png", 300, 300)

	img := r.Render(Frame{
		Background:   solid(400, 400, color.RGBA{0, 0, 255, 255}),
		Layers:       []layer.Layer{st},
		Filter:       "grayscale(100%)",
		DisplayWidth: 400,
	})

	bg := rgbaAt(img, 2, 2)
	if bg.R != bg.G || bg.G != bg.B {
		t.Errorf("background not grayscale: %v", bg)
	}
	if got := rgbaAt(img, 200, 200); got.R < 250 || got.G > 5 || got.B > 5 {
		t.Errorf("sticker centre = %v, want red", got)
	}
}

func TestStickerPlaceholders(t *testing.T) {
	bg := solid(600, 600, color.Black)
	tests := []struct {
		name   string
		status assets.Status
		check  func(c color.RGBA) bool
	}{
		{"loading", assets.StatusLoading, func(c color.RGBA) bool { return c.R == c.G && c.G == c.B && c.R > 0 }},
		{"error", assets.StatusError, func(c color.RGBA) bool { return c.R > c.G && c.R > c.B }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, stubStickers{"s.png": tt.status})
			st := layer.NewSticker("s.png", 200, 200)
			img := r.Render(Frame{Background: bg, Layers: []layer.Layer{st}, DisplayWidth: 600})
			// Inside the box, away from the stroke and the "!" glyph.
			if c := rgbaAt(img, 300-80, 300-80); !tt.check(c) {
				t.Errorf("placeholder pixel = %v", c)
			}
		})
	}
}

func TestSelectionDecorationFollowsRotation(t *testing.T) {
	r := newTestRenderer(t, stubStickers{"red.png": assets.StatusLoaded})
	st := layer.NewSticker("red.png", 100, 100)
	st.Rotation = math.Pi / 2

	img := r.Render(Frame{
		Background:   solid(600, 600, color.Black),
		Layers:       []layer.Layer{st},
		SelectedID:   st.ID,
		DisplayWidth: 600,
	})

	hs := geometry.SelectionHandles(100, 100)
	c := geometry.Center(st, 600, 600)
	p := geometry.FromLocal(hs.Rotate, c, st.Rotation)
	got := rgbaAt(img, int(math.Round(p.X)), int(math.Round(p.Y)))
	if got.B < 200 || got.R > 120 {
		t.Errorf("rotate handle at %v = %v, want blue", p, got)
	}

	// The unrotated handle position must stay background.
	q := pointAt(c.X+hs.Rotate.X, c.Y+hs.Rotate.Y)
	if got := rgbaAt(img, q.X, q.Y); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("unrotated handle position = %v, want background", got)
	}
}

func pointAt(x, y float64) image.Point {
	return image.Pt(int(math.Round(x)), int(math.Round(y)))
}

func TestTextIsDrawn(t *testing.T) {
	r := newTestRenderer(t, nil)
	txt := layer.NewText("HELLO", 50, 50)
	txt.Color = "#ffff00"

	img := r.Render(Frame{Background: solid(600, 600, color.Black), Layers: []layer.Layer{txt}, DisplayWidth: 600})

	var yellow, black int
	for y := 270; y < 330; y++ {
		for x := 200; x < 400; x++ {
			c := rgbaAt(img, x, y)
			switch {
			case c.R > 200 && c.G > 200 && c.B < 60:
				yellow++
			case c.R < 20 && c.G < 20 && c.B < 20:
				black++
			}
		}
	}
	if yellow == 0 {
		t.Error("no fill pixels drawn")
	}
	if black == 0 {
		t.Error("no outline or background pixels")
	}
}

func TestParseFilter(t *testing.T) {
	for _, p := range Presets {
		if _, err := ParseFilter(p.Value); err != nil {
			t.Errorf("preset %s: %v", p.Name, err)
		}
		f, err := ParseFilter(p.Name)
		if err != nil {
			t.Errorf("preset name %s: %v", p.Name, err)
		}
		if f.String() != p.Value {
			t.Errorf("preset name %s resolved to %q", p.Name, f.String())
		}
	}

	for _, bad := range []string{"sparkle(10%)", "grayscale(abc)", "hue-rotate(30)", "junk grayscale(1)"} {
		if _, err := ParseFilter(bad); err == nil {
			t.Errorf("ParseFilter(%q) succeeded", bad)
		}
	}

	if !MustFilter("sparkle(10%)").IsIdentity() {
		t.Error("unknown filter must degrade to identity")
	}
}

func TestFilterMatrices(t *testing.T) {
	src := solid(4, 4, color.RGBA{200, 40, 10, 255})
	px := func(f string) color.NRGBA {
		out := MustFilter(f).Apply(src)
		return color.NRGBAModel.Convert(out.At(1, 1)).(color.NRGBA)
	}

	if c := px("invert(100%)"); c.R != 55 || c.G != 215 || c.B != 245 {
		t.Errorf("invert = %v", c)
	}
	if c := px("grayscale(100%)"); c.R != c.G || c.G != c.B {
		t.Errorf("grayscale = %v", c)
	}
	if c := px("opacity(50%)"); c.A < 127 || c.A > 128 {
		t.Errorf("opacity alpha = %d", c.A)
	}
	if c := px("brightness(0)"); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("brightness(0) = %v", c)
	}
	if c := px("none"); c != (color.NRGBA{200, 40, 10, 255}) {
		t.Errorf("none = %v", c)
	}
	// Composition order: brightness first then invert differs from the reverse.
	if a, b := px("brightness(50%) invert(100%)"), px("invert(100%) brightness(50%)"); a == b {
		t.Errorf("composition order ignored: %v", a)
	}
}

func TestBlurSpreadsEdges(t *testing.T) {
	img := solid(21, 21, color.Black)
	img.Set(10, 10, color.White)
	out := MustFilter("blur(2px)").Apply(img)
	c := color.RGBAModel.Convert(out.At(12, 10)).(color.RGBA)
	if c.R == 0 {
		t.Error("blur did not spread the bright pixel")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FFFFFF", color.NRGBA{255, 255, 255, 255}, false},
		{"#f00", color.NRGBA{255, 0, 0, 255}, false},
		{"00ff0080", color.NRGBA{0, 255, 0, 128}, false},
		{"#12345", color.NRGBA{}, true},
		{"#gggggg", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestFontFallback(t *testing.T) {
	fm, err := NewFontManager()
	if err != nil {
		t.Fatal(err)
	}
	a := fm.MeasureString("Oswald", 40, "MEME")
	b := fm.MeasureString("'Unknown Family', serif", 40, "MEME")
	if a <= 0 || a != b {
		t.Errorf("fallback width = %v, want %v", b, a)
	}
	if fm.MeasureString("Oswald", 80, "MEME") <= a {
		t.Error("larger size must measure wider")
	}
}

func TestLayerSurfaceClipsToRaster(t *testing.T) {
	dst := image.Rect(0, 0, 100, 100)
	c := r2.Vec{X: 50, Y: 50}

	s := newLayerSurface(dst, c, 0, 1e6, 1e6, 0, true)
	if b := s.img.Bounds(); b.Dx() > 100+2*surfaceMargin || b.Dy() > 100+2*surfaceMargin {
		t.Errorf("unrotated surface = %v, want about the raster", b)
	}

	s = newLayerSurface(dst, c, math.Pi/4, 1e6, 1e6, 0, false)
	limit := int(math.Ceil(100*math.Sqrt2 + 2*surfaceMargin + 2))
	if b := s.img.Bounds(); b.Dx() > limit || b.Dy() > limit {
		t.Errorf("rotated surface = %v, want within %d", b, limit)
	}

	small := newLayerSurface(dst, c, 0, 20, 10, 0, false)
	if b := small.img.Bounds(); b.Dx() != 20+2*surfaceMargin || b.Dy() != 10+2*surfaceMargin {
		t.Errorf("small surface = %v, want the layer box", b)
	}

	if s := newLayerSurface(dst, r2.Vec{X: 1000, Y: 1000}, 0, 20, 20, 0, true); s != nil {
		t.Errorf("off-canvas surface = %v, want nil", s.img.Bounds())
	}
}

func TestHugeLayersStayOnRaster(t *testing.T) {
	r := newTestRenderer(t, stubStickers{"red.png": assets.StatusLoaded})

	loaded := layer.NewSticker("red.png", layer.MaxStickerSize, layer.MaxStickerSize)
	loading := layer.NewSticker("slow.png", layer.MaxStickerSize, layer.MaxStickerSize)
	loading.Rotation = 0.3
	txt := layer.NewText("HUGE", 50, 50)
	txt.FontSize = layer.MaxFontSize
	txt.BoxWidth = layer.MaxBoxWidth

	img := r.Render(Frame{
		Background:   solid(300, 300, color.Black),
		Layers:       []layer.Layer{loaded, loading, txt},
		SelectedID:   loaded.ID,
		DisplayWidth: 300,
	})
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Fatalf("size = %v", b)
	}
}

func TestSharedFontsAcrossRenderers(t *testing.T) {
	fm, err := NewFontManager()
	if err != nil {
		t.Fatal(err)
	}
	bg := solid(200, 200, color.Black)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		r := New(fm, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			txt := layer.NewText("SAME FACE", 50, 50)
			for j := 0; j < 10; j++ {
				r.Render(Frame{Background: bg, Layers: []layer.Layer{txt}, DisplayWidth: 200})
			}
		}()
	}
	wg.Wait()

	if r := New(fm, nil); r.Fonts() == fm {
		t.Error("renderer must draw through its own view")
	}
}

func TestViewSeesRegisteredFamilies(t *testing.T) {
	fm, err := NewFontManager()
	if err != nil {
		t.Fatal(err)
	}
	view := fm.View()
	before := view.MeasureString("Custom", 40, "MEME")

	if err := fm.Register("Custom", gomonobold.TTF); err != nil {
		t.Fatal(err)
	}
	if got := view.MeasureString("Custom", 40, "MEME"); got == before {
		t.Errorf("view still measures the fallback face (%v)", got)
	}
}

func TestRasterize(t *testing.T) {
	fm, err := NewFontManager()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fm.Rasterize(EmojiFamily, "A", 64); !errors.Is(err, ErrMissingGlyph) {
		t.Fatalf("unregistered family err = %v, want ErrMissingGlyph", err)
	}
	if err := fm.Register(EmojiFamily, gomonobold.TTF); err != nil {
		t.Fatal(err)
	}
	if _, err := fm.Rasterize(EmojiFamily, "\U0001F600", 64); !errors.Is(err, ErrMissingGlyph) {
		t.Errorf("missing glyph err = %v, want ErrMissingGlyph", err)
	}

	img, err := fm.Rasterize(EmojiFamily, "A", 64)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("size = %v", b)
	}
	if img.RGBAAt(0, 0).A != 0 {
		t.Error("corner is not transparent")
	}
	inked := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 128 {
			inked++
		}
	}
	if inked == 0 {
		t.Error("nothing drawn")
	}
}
