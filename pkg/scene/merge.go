// merge.go - Merge data.json overrides onto scene layers.
package scene

import (
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/layer"
	"github.com/xob0t/MemeStencil/pkg/render"
	"golang.org/x/image/draw"
)

// Resolve returns copies of the scene layers with data overrides applied,
// in z-order. Layers with visible=false and repeated ids are excluded from
// the result.
func Resolve(sc *Scene, data *DataSpec) []layer.Layer {
	out := make([]layer.Layer, 0, len(sc.Layers))
	for _, l := range Dedupe(sc.Layers) {
		l = l.Clone()
		if data != nil {
			if over, ok := data.Layers[l.Common().ID]; ok {
				if over.Visible != nil && !*over.Visible {
					continue
				}
				over.Patch.Apply(l)
			}
		}
		out = append(out, l)
	}
	return out
}

// FilterFor returns the data override filter, or the scene's.
func FilterFor(sc *Scene, data *DataSpec) string {
	if data != nil && data.Filter != "" {
		return data.Filter
	}
	return sc.Filter
}

// BackgroundSource returns the image source for the scene background. A
// scene without a source gets a solid colour PNG as a data URI.
func BackgroundSource(sc *Scene) (string, error) {
	bg := sc.Background
	if bg.Source != "" {
		return bg.Source, nil
	}
	c, err := render.ParseColor(bg.Color)
	if err != nil {
		return "", fmt.Errorf("background color: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, max(bg.Width, 1), max(bg.Height, 1)))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	data, err := export.Bytes(img, export.PNG, 1)
	if err != nil {
		return "", err
	}
	return assets.DataURI(export.PNG.MIME(), data), nil
}

// Validate checks a scene and its data overrides. It returns warnings
// (never fatal errors) for graceful degradation.
func Validate(sc *Scene, data *DataSpec) []string {
	var warnings []string

	known := make(map[string]struct{}, len(sc.Layers))
	for _, l := range sc.Layers {
		id := l.Common().ID
		if _, dup := known[id]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate layer id %q, later copy ignored", id))
		}
		known[id] = struct{}{}
	}

	if _, err := render.ParseFilter(FilterFor(sc, data)); err != nil {
		warnings = append(warnings, fmt.Sprintf("filter %q: %v, rendering unfiltered", FilterFor(sc, data), err))
	}

	if data != nil {
		ids := make([]string, 0, len(data.Layers))
		for id := range data.Layers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if _, ok := known[id]; !ok {
				warnings = append(warnings, fmt.Sprintf("data references unknown layer %q, ignored", id))
			}
		}
	}
	return warnings
}

// Dedupe drops later layers whose id was already seen.
func Dedupe(layers []layer.Layer) []layer.Layer {
	seen := make(map[string]struct{}, len(layers))
	out := layers[:0:0]
	for _, l := range layers {
		id := l.Common().ID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, l)
	}
	return out
}

// FormatSchema returns a human-readable description of the scene's schema.
func FormatSchema(sc *Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene: %s (v%s) by %s\n", sc.Meta.Name, sc.Meta.Version, sc.Meta.Author)
	if sc.Meta.Description != "" {
		b.WriteString(sc.Meta.Description + "\n")
	}
	fmt.Fprintf(&b, "Width: %dpx  Filter: %s\n", sc.Canvas.DisplayWidth, sc.Filter)

	b.WriteString("\nLayers (bottom to top):\n")
	for _, l := range sc.Layers {
		switch v := l.(type) {
		case *layer.Text:
			fmt.Fprintf(&b, "  [%s] text %q at %.0f%%,%.0f%%\n", v.ID, v.Content, v.X, v.Y)
		case *layer.Sticker:
			fmt.Fprintf(&b, "  [%s] sticker %s at %.0f%%,%.0f%%\n", v.ID, v.URL, v.X, v.Y)
		}
	}

	if sc.Schema.Description == "" && len(sc.Schema.Layers) == 0 {
		b.WriteString("\nThis scene has no schema documentation.\n")
		return b.String()
	}
	if sc.Schema.Description != "" {
		b.WriteString("\n" + sc.Schema.Description + "\n")
	}
	ids := make([]string, 0, len(sc.Schema.Layers))
	for id := range sc.Schema.Layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sl := sc.Schema.Layers[id]
		fmt.Fprintf(&b, "\n  [%s] %s\n", id, sl.Description)
		fields := make([]string, 0, len(sl.Fields))
		for f := range sl.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(&b, "    %-12s %s\n", f+":", sl.Fields[f])
		}
	}
	return b.String()
}
