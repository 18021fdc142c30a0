// fonts.go - Font families with custom TTF support and embedded Go fonts.
// Uses golang.org/x/image/font/opentype. Editor family names that have no
// registered TTF fall back to the closest embedded Go face.
package render

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Families offered by the editor, in display order.
var Families = []string{"Oswald", "Anton", "Bangers", "Comic Neue", "Roboto"}

// builtin maps lower-cased family names to embedded fonts.
var builtin = map[string][]byte{
	"oswald":          gobold.TTF,
	"anton":           gobold.TTF,
	"roboto":          gobold.TTF,
	"bangers":         gobolditalic.TTF,
	"comic neue":      gomediumitalic.TTF,
	"sans-serif":      goregular.TTF,
	"sans-serif-bold": gobold.TTF,
	"monospace":       gomonobold.TTF,
}

const maxCachedFaces = 256

type faceKey struct {
	family string
	size   fixed.Int26_6
}

type cachedFace struct {
	face font.Face
	src  *opentype.Font
}

// library holds the parsed fonts shared by every view of a FontManager.
type library struct {
	mu       sync.RWMutex
	parsed   map[string]*opentype.Font
	fallback *opentype.Font
}

func (lib *library) lookup(family string) *opentype.Font {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	if f, ok := lib.parsed[family]; ok {
		return f
	}
	return lib.fallback
}

// FontManager resolves family names to faces and caches them per size.
// Parsed fonts are shared with every View; faces are not, since an
// opentype face may only be used by one goroutine at a time.
type FontManager struct {
	lib   *library
	mu    sync.Mutex
	faces map[faceKey]cachedFace
}

// NewFontManager creates a font manager with the embedded families.
func NewFontManager() (*FontManager, error) {
	fm := &FontManager{
		lib:   &library{parsed: make(map[string]*opentype.Font)},
		faces: make(map[faceKey]cachedFace),
	}
	for name, ttf := range builtin {
		if err := fm.Register(name, ttf); err != nil {
			return nil, err
		}
	}
	fm.lib.fallback = fm.lib.parsed["oswald"]
	return fm, nil
}

// View returns a manager that shares fm's registered families but keeps its
// own face cache. Families registered through either are seen by both.
func (fm *FontManager) View() *FontManager {
	return &FontManager{lib: fm.lib, faces: make(map[faceKey]cachedFace)}
}

// Register adds or replaces a family from TTF/OTF data.
func (fm *FontManager) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse font %q: %w", family, err)
	}
	fm.lib.mu.Lock()
	fm.lib.parsed[resolveFamily(family)] = f
	fm.lib.mu.Unlock()
	return nil
}

// RegisterFile loads a family from a font file.
func (fm *FontManager) RegisterFile(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fm.Register(family, data)
}

// Registered returns the known family names, sorted.
func (fm *FontManager) Registered() []string {
	fm.lib.mu.RLock()
	defer fm.lib.mu.RUnlock()
	out := make([]string, 0, len(fm.lib.parsed))
	for k := range fm.lib.parsed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Face returns a face for family at size pixels (72 DPI). Unknown families
// use the default bold face. The face belongs to this view's cache and must
// not be shared across goroutines.
func (fm *FontManager) Face(family string, size float64) (font.Face, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.faceLocked(family, size)
}

func (fm *FontManager) faceLocked(family string, size float64) (font.Face, error) {
	key := faceKey{family: resolveFamily(family), size: fixed.Int26_6(math.Round(size * 64))}
	src := fm.lib.lookup(key.family)
	// A re-registered family invalidates faces built from the old font.
	if c, ok := fm.faces[key]; ok && c.src == src {
		return c.face, nil
	}

	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    max(size, 1),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}

	if len(fm.faces) >= maxCachedFaces {
		clear(fm.faces)
	}
	fm.faces[key] = cachedFace{face: face, src: src}
	return face, nil
}

// MeasureString returns the advance width of s in pixels.
func (fm *FontManager) MeasureString(family string, size float64, s string) float64 {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	face, err := fm.faceLocked(family, size)
	if err != nil {
		return 0
	}
	return fixedToFloat(font.MeasureString(face, s))
}

// resolveFamily takes the first entry of a CSS font-family list.
func resolveFamily(family string) string {
	first, _, _ := strings.Cut(family, ",")
	return strings.ToLower(strings.Trim(strings.TrimSpace(first), `"'`))
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
