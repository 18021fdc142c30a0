// loader.go - Load .memepack (ZIP) bundles and parse scene.json.
package scene

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xob0t/MemeStencil/pkg/layer"
)

// SceneFile is the scene description inside a bundle.
const SceneFile = "scene.json"

// LoadBundle opens a .memepack ZIP, extracts it to a temp directory,
// parses scene.json, resolves all asset paths, and returns the scene.
// The returned cleanup function removes the temp directory.
func LoadBundle(path string) (*Scene, func(), error) {
	noop := func() {}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, noop, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	tmpDir, err := os.MkdirTemp("", "memepack-*")
	if err != nil {
		return nil, noop, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	if err := extractZip(&r.Reader, tmpDir); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("extract %s: %w", path, err)
	}

	sc, err := ParseFile(filepath.Join(tmpDir, SceneFile))
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return sc, cleanup, nil
}

// Load opens either a bundle or a plain scene.json, by extension.
func Load(path string) (*Scene, func(), error) {
	if strings.EqualFold(filepath.Ext(path), ".memepack") || strings.EqualFold(filepath.Ext(path), ".zip") {
		return LoadBundle(path)
	}
	sc, err := ParseFile(path)
	return sc, func() {}, err
}

// ParseFile loads a standalone scene JSON file. Relative asset paths are
// resolved against the file's directory.
func ParseFile(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve scene dir: %w", err)
	}
	resolveAssetPaths(sc, dir)
	return sc, nil
}

// Parse decodes scene JSON and applies defaults. Asset paths are left as
// written.
func Parse(data []byte) (*Scene, error) {
	var sc Scene
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scene JSON: %w", err)
	}
	applyDefaults(&sc)
	return &sc, nil
}

// LoadData reads and parses a data.json file. Returns warnings for issues.
func LoadData(path string) (*DataSpec, []string, error) {
	var warnings []string

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read data.json: %w", err)
	}

	var spec DataSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		warnings = append(warnings, fmt.Sprintf("malformed data.json: %v, using all defaults", err))
		return &DataSpec{Layers: make(map[string]LayerData)}, warnings, nil
	}
	if spec.Layers == nil {
		spec.Layers = make(map[string]LayerData)
	}
	return &spec, warnings, nil
}

func applyDefaults(sc *Scene) {
	if w, ok := Presets[sc.Canvas.Preset]; ok {
		sc.Canvas.DisplayWidth = w
	}
	if sc.Canvas.DisplayWidth <= 0 {
		sc.Canvas.DisplayWidth = DefaultDisplayWidth
	}
	bg := &sc.Background
	if bg.Color == "" {
		bg.Color = DefaultBackgroundColor
	}
	if bg.Width <= 0 {
		bg.Width = DefaultBackgroundWidth
	}
	if bg.Height <= 0 {
		bg.Height = DefaultBackgroundHeight
	}
	if sc.Filter == "" {
		sc.Filter = "none"
	}
}

// isLocalPath reports whether src names a file rather than a URL or data URI.
func isLocalPath(src string) bool {
	if src == "" || filepath.IsAbs(src) {
		return false
	}
	for _, prefix := range []string{"data:", "http://", "https://"} {
		if strings.HasPrefix(src, prefix) {
			return false
		}
	}
	return true
}

// resolveAssetPaths makes all relative asset paths absolute using baseDir.
func resolveAssetPaths(sc *Scene, baseDir string) {
	resolve := func(p string) string {
		if !isLocalPath(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	sc.Background.Source = resolve(sc.Background.Source)
	for family, p := range sc.Fonts {
		sc.Fonts[family] = resolve(p)
	}
	for _, l := range sc.Layers {
		if st, ok := l.(*layer.Sticker); ok {
			st.URL = resolve(st.URL)
		}
	}
}

// extractZip extracts all files from a zip reader into destDir.
func extractZip(r *zip.Reader, destDir string) error {
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)

		// Guard against zip slip.
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes a single zip entry to disk.
func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
