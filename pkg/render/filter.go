// filter.go - CSS-style filter chains applied to the background raster.
// Colour functions are 5x5 homogeneous matrices over non-premultiplied
// [r g b a 1] in the 0..1 range; adjacent matrices are folded into one
// product. blur() is a separable Gaussian.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// Preset is a named filter offered by the editor.
type Preset struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Presets is the fixed filter table, in display order.
var Presets = []Preset{
	{"Normal", "none"},
	{"B&W", "grayscale(100%)"},
	{"Noir", "grayscale(100%) contrast(150%) brightness(90%)"},
	{"Fried", "contrast(200%) saturate(200%)"},
	{"Vintage", "sepia(50%) contrast(80%) brightness(120%)"},
	{"Sepia", "sepia(100%)"},
	{"Warm", "sepia(30%) saturate(140%)"},
	{"Cool", "hue-rotate(30deg) contrast(120%)"},
	{"Cyber", "hue-rotate(190deg) saturate(200%) contrast(120%)"},
	{"Dreamy", "brightness(110%) saturate(120%) blur(0.5px)"},
	{"Invert", "invert(100%)"},
	{"Blur", "blur(3px)"},
	{"Ghost", "opacity(50%) blur(1px)"},
}

// Filter is a parsed filter chain. The zero value is the identity.
type Filter struct {
	source string
	stages []stage
}

type stage struct {
	matrix *mat.Dense // nil for blur stages
	sigma  float64
}

var filterFunc = regexp.MustCompile(`([a-z-]+)\(\s*([^)]*?)\s*\)`)

// ParseFilter parses a CSS filter chain such as
// "grayscale(100%) contrast(150%)", or a preset name such as "Noir".
// "none" and "" give the identity filter.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	for _, p := range Presets {
		if strings.EqualFold(s, p.Name) {
			s = p.Value
			break
		}
	}
	f := Filter{source: s}
	if s == "" || s == "none" {
		return f, nil
	}

	matches := filterFunc.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return Filter{}, fmt.Errorf("invalid filter %q", s)
	}
	covered := 0
	for _, m := range matches {
		if strings.TrimSpace(s[covered:m[0]]) != "" {
			return Filter{}, fmt.Errorf("invalid filter %q: unexpected %q", s, s[covered:m[0]])
		}
		covered = m[1]

		name, arg := s[m[2]:m[3]], s[m[4]:m[5]]
		st, err := parseStage(name, arg)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid filter %q: %w", s, err)
		}
		f.push(st)
	}
	if strings.TrimSpace(s[covered:]) != "" {
		return Filter{}, fmt.Errorf("invalid filter %q: trailing %q", s, s[covered:])
	}
	return f, nil
}

// MustFilter parses s and falls back to the identity filter, logging a
// warning, when s is not a valid chain.
func MustFilter(s string) Filter {
	f, err := ParseFilter(s)
	if err != nil {
		logrus.WithField("filter", s).WithError(err).Warn("unknown filter, rendering unfiltered")
		return Filter{}
	}
	return f
}

// String returns the chain the filter was parsed from.
func (f Filter) String() string {
	if f.source == "" {
		return "none"
	}
	return f.source
}

// IsIdentity reports whether the filter leaves images unchanged.
func (f Filter) IsIdentity() bool { return len(f.stages) == 0 }

func (f *Filter) push(st stage) {
	n := len(f.stages)
	if st.matrix != nil && n > 0 && f.stages[n-1].matrix != nil {
		// Later functions apply after earlier ones: M = next * prev.
		var m mat.Dense
		m.Mul(st.matrix, f.stages[n-1].matrix)
		f.stages[n-1].matrix = &m
		return
	}
	f.stages = append(f.stages, st)
}

func parseStage(name, arg string) (stage, error) {
	switch name {
	case "blur":
		px, err := parseLength(arg)
		if err != nil {
			return stage{}, err
		}
		return stage{sigma: max(px, 0)}, nil
	case "hue-rotate":
		rad, err := parseAngle(arg)
		if err != nil {
			return stage{}, err
		}
		return stage{matrix: hueRotate(rad)}, nil
	}

	amount, err := parseAmount(arg)
	if err != nil {
		return stage{}, err
	}
	clamped := math.Min(math.Max(amount, 0), 1)
	amount = math.Max(amount, 0)

	switch name {
	case "grayscale":
		return stage{matrix: grayscale(clamped)}, nil
	case "sepia":
		return stage{matrix: sepia(clamped)}, nil
	case "saturate":
		return stage{matrix: saturate(amount)}, nil
	case "brightness":
		return stage{matrix: linear(amount, 0)}, nil
	case "contrast":
		return stage{matrix: linear(amount, 0.5-0.5*amount)}, nil
	case "invert":
		return stage{matrix: linear(1-2*clamped, clamped)}, nil
	case "opacity":
		m := identity()
		m.Set(3, 3, clamped)
		return stage{matrix: m}, nil
	}
	return stage{}, fmt.Errorf("unknown function %q", name)
}

// parseAmount accepts "150%", "1.5" and "" (meaning 1).
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 1, nil
	}
	if v, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(v, 64)
		return f / 100, err
	}
	return strconv.ParseFloat(s, 64)
}

func parseAngle(s string) (float64, error) {
	units := []struct {
		suffix string
		scale  float64
	}{
		{"deg", math.Pi / 180},
		{"grad", math.Pi / 200},
		{"rad", 1},
		{"turn", 2 * math.Pi},
	}
	for _, u := range units {
		if v, ok := strings.CutSuffix(s, u.suffix); ok {
			f, err := strconv.ParseFloat(v, 64)
			return f * u.scale, err
		}
	}
	if s == "" || s == "0" {
		return 0, nil
	}
	return 0, fmt.Errorf("angle %q needs a unit", s)
}

func parseLength(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
}

func identity() *mat.Dense {
	m := mat.NewDense(5, 5, nil)
	for i := 0; i < 5; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// rgb embeds a 3x3 colour matrix into the homogeneous form.
func rgb(v [9]float64) *mat.Dense {
	m := identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, v[i*3+j])
		}
	}
	return m
}

func linear(slope, intercept float64) *mat.Dense {
	m := identity()
	for i := 0; i < 3; i++ {
		m.Set(i, i, slope)
		m.Set(i, 4, intercept)
	}
	return m
}

func grayscale(a float64) *mat.Dense {
	k := 1 - a
	return rgb([9]float64{
		0.2126 + 0.7874*k, 0.7152 - 0.7152*k, 0.0722 - 0.0722*k,
		0.2126 - 0.2126*k, 0.7152 + 0.2848*k, 0.0722 - 0.0722*k,
		0.2126 - 0.2126*k, 0.7152 - 0.7152*k, 0.0722 + 0.9278*k,
	})
}

func sepia(a float64) *mat.Dense {
	k := 1 - a
	return rgb([9]float64{
		0.393 + 0.607*k, 0.769 - 0.769*k, 0.189 - 0.189*k,
		0.349 - 0.349*k, 0.686 + 0.314*k, 0.168 - 0.168*k,
		0.272 - 0.272*k, 0.534 - 0.534*k, 0.131 + 0.869*k,
	})
}

func saturate(s float64) *mat.Dense {
	return rgb([9]float64{
		0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s,
		0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s,
	})
}

func hueRotate(rad float64) *mat.Dense {
	sin, cos := math.Sincos(rad)
	return rgb([9]float64{
		0.213 + cos*0.787 - sin*0.213, 0.715 - cos*0.715 - sin*0.715, 0.072 - cos*0.072 + sin*0.928,
		0.213 - cos*0.213 + sin*0.143, 0.715 + cos*0.285 + sin*0.140, 0.072 - cos*0.072 - sin*0.283,
		0.213 - cos*0.213 - sin*0.787, 0.715 - cos*0.715 + sin*0.715, 0.072 + cos*0.928 + sin*0.072,
	})
}

// Apply returns a filtered copy of src. The identity filter returns src.
func (f Filter) Apply(src image.Image) image.Image {
	if f.IsIdentity() {
		return src
	}
	out := toNRGBA(src)
	for _, st := range f.stages {
		if st.matrix != nil {
			applyMatrix(out, st.matrix)
		} else if st.sigma > 0 {
			out = gaussianBlur(out, st.sigma)
		}
	}
	return out
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}

func applyMatrix(img *image.NRGBA, m *mat.Dense) {
	var k [5][5]float64
	for i := range k {
		for j := range k[i] {
			k[i][j] = m.At(i, j)
		}
	}
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		in := [5]float64{
			float64(pix[i]) / 255,
			float64(pix[i+1]) / 255,
			float64(pix[i+2]) / 255,
			float64(pix[i+3]) / 255,
			1,
		}
		for c := 0; c < 4; c++ {
			row := k[c]
			v := row[0]*in[0] + row[1]*in[1] + row[2]*in[2] + row[3]*in[3] + row[4]
			pix[i+c] = clamp8(v * 255)
		}
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// gaussianBlur blurs in premultiplied space so transparent pixels do not
// bleed their colour.
func gaussianBlur(src *image.NRGBA, sigma float64) *image.NRGBA {
	radius := int(math.Ceil(sigma * 3))
	if radius < 1 {
		return src
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := make([][4]float64, w*h)
	for i := range buf {
		p := src.Pix[i*4 : i*4+4]
		a := float64(p[3]) / 255
		buf[i] = [4]float64{float64(p[0]) * a, float64(p[1]) * a, float64(p[2]) * a, float64(p[3])}
	}

	tmp := make([][4]float64, w*h)
	pass := func(dst, in [][4]float64, horizontal bool) {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var acc [4]float64
				for k, wt := range kernel {
					sx, sy := x, y
					if horizontal {
						sx = min(max(x+k-radius, 0), w-1)
					} else {
						sy = min(max(y+k-radius, 0), h-1)
					}
					p := in[sy*w+sx]
					acc[0] += p[0] * wt
					acc[1] += p[1] * wt
					acc[2] += p[2] * wt
					acc[3] += p[3] * wt
				}
				dst[y*w+x] = acc
			}
		}
	}
	pass(tmp, buf, true)
	pass(buf, tmp, false)

	out := image.NewNRGBA(src.Rect)
	for i, p := range buf {
		c := color.NRGBA{A: clamp8(p[3])}
		if a := p[3] / 255; a > 0 {
			c.R, c.G, c.B = clamp8(p[0]/a), clamp8(p[1]/a), clamp8(p[2]/a)
		}
		out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return out
}
