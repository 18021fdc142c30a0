// Package scene describes memes as JSON: a background, a filter and a layer
// stack, plus data.json overrides merged onto layers by id. Scenes can be
// packed with their assets into .memepack ZIP bundles for batch rendering.
package scene

import "github.com/xob0t/MemeStencil/pkg/layer"

// ── Scene types ──

// Scene is the top-level structure of a scene.json file.
type Scene struct {
	Meta       Meta              `json:"meta"`
	Canvas     Canvas            `json:"canvas"`
	Background Background        `json:"background"`
	Filter     string            `json:"filter"`
	Fonts      map[string]string `json:"fonts"` // family → TTF path (resolved from assets)
	Layers     layer.List        `json:"layers"`
	Schema     Schema            `json:"schema"`
}

// Meta holds scene metadata.
type Meta struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// Canvas sets the output raster width. Preset overrides DisplayWidth.
type Canvas struct {
	DisplayWidth int    `json:"displayWidth"`
	Preset       string `json:"preset"`
}

// Background is the base image. Without a source, a solid Color canvas of
// Width x Height is used.
type Background struct {
	Source string `json:"source"` // path, URL or data URI
	Color  string `json:"color"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ── Data types ──

// DataSpec is the top-level structure of data.json.
type DataSpec struct {
	Layers map[string]LayerData `json:"layers"`
	Filter string               `json:"filter,omitempty"`
}

// LayerData overrides one layer. Visible=false drops the layer; the other
// fields are merged like an editor patch.
type LayerData struct {
	Visible *bool `json:"visible,omitempty"` // nil = inherit (true)
	layer.Patch
}

// ── Schema types (self-documenting scenes) ──

// Schema documents the expected data.json format for this scene.
type Schema struct {
	Description string                 `json:"description"`
	Layers      map[string]SchemaLayer `json:"layers"`
}

// SchemaLayer documents one layer's editable fields.
type SchemaLayer struct {
	Description string            `json:"description"`
	Fields      map[string]string `json:"fields"` // field name → description
}

// ── Presets for common output widths ──

// Presets maps preset names to display widths.
var Presets = map[string]int{
	"small":            400,
	"editor":           600,
	"hd":               1280,
	"1080p":            1920,
	"instagram_square": 1080,
	"twitter":          1200,
}

// Defaults applied to incomplete scenes.
const (
	DefaultDisplayWidth     = 600
	DefaultBackgroundColor  = "#ffffff"
	DefaultBackgroundWidth  = 800
	DefaultBackgroundHeight = 800
)
