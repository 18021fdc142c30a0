package editor

import (
	"context"
	"testing"
	"time"

	"github.com/xob0t/MemeStencil/pkg/layer"
	"github.com/xob0t/MemeStencil/pkg/scene"
)

func TestApplyScene(t *testing.T) {
	sceneJSON, _ := scene.ExampleJSON()
	sc, err := scene.Parse([]byte(sceneJSON))
	if err != nil {
		t.Fatal(err)
	}
	sc.Canvas.DisplayWidth = 300
	sc.Fonts = map[string]string{"Broken": "/does/not/exist.ttf"}
	hidden := false
	data := &scene.DataSpec{
		Filter: "Noir",
		Layers: map[string]scene.LayerData{
			"top":    {Patch: layer.Patch{Content: layer.S("HELLO")}},
			"bottom": {Visible: &hidden},
		},
	}

	s, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	warnings, err := s.ApplyScene(context.Background(), sc, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want the broken font only", warnings)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	img, err := s.Render()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 300 {
		t.Errorf("raster = %v, want 300x300", b)
	}

	layers := s.Layers()
	if len(layers) != 1 || layers[0].(*layer.Text).Content != "HELLO" {
		t.Errorf("layers = %+v", layers)
	}
	if s.Filter() != "Noir" {
		t.Errorf("filter = %q", s.Filter())
	}
	if s.BackgroundImage() == nil {
		t.Error("background not loaded")
	}
}
