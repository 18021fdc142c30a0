package editor

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/xob0t/MemeStencil/pkg/scene"
)

// ApplyScene opens a scene description: custom fonts, background, display
// width, layers with data overrides and filter. Problems that still allow a
// render are returned as warnings.
func (s *Session) ApplyScene(ctx context.Context, sc *scene.Scene, data *scene.DataSpec) ([]string, error) {
	warnings := scene.Validate(sc, data)

	families := make([]string, 0, len(sc.Fonts))
	for family := range sc.Fonts {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		if err := s.Fonts().RegisterFile(family, sc.Fonts[family]); err != nil {
			warnings = append(warnings, fmt.Sprintf("font %q: %v, using fallback", family, err))
		}
	}

	src, err := scene.BackgroundSource(sc)
	if err != nil {
		return warnings, err
	}
	s.SetDisplayWidth(sc.Canvas.DisplayWidth)
	if err := s.Open(src); err != nil {
		return warnings, err
	}
	if err := s.AwaitBackground(ctx); err != nil {
		return warnings, err
	}

	if layers := scene.Resolve(sc, data); len(layers) > 0 {
		if err := s.InsertLayers(layers); err != nil {
			return warnings, err
		}
	}
	if f := scene.FilterFor(sc, data); f != FilterNone {
		s.SetFilter(f)
	}
	return warnings, nil
}

// BackgroundImage returns the decoded base image, or nil while it is not
// loaded.
func (s *Session) BackgroundImage() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backgroundImageLocked()
}
