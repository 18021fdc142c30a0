// color.go - Colour parsing shared by layer drawing and scene backgrounds.
package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Decoration colours.
var (
	selectionBlue = color.RGBA{0x3b, 0x82, 0xf6, 0xff}
	widthOrange   = color.RGBA{0xf9, 0x73, 0x16, 0xff}
	errorRed      = color.RGBA{0xef, 0x44, 0x44, 0xff}
	placeholderBg = color.RGBA{0x17, 0x17, 0x17, 0xff}
	placeholderFg = color.RGBA{0x40, 0x40, 0x40, 0xff}
	loadingFill   = color.NRGBA{0xff, 0xff, 0xff, 0x1a}
	loadingStroke = color.NRGBA{0xff, 0xff, 0xff, 0x80}
	errorFill     = color.NRGBA{0xef, 0x44, 0x44, 0x26}
	outlineBlack  = color.RGBA{0, 0, 0, 0xff}
	handleStroke  = color.RGBA{0xff, 0xff, 0xff, 0xff}
)

// ParseColor converts "#rgb", "#rrggbb" or "#rrggbbaa" to a colour.
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected #rgb, #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ParseColorOr parses s and returns fallback on any error.
func ParseColorOr(s string, fallback color.Color) color.Color {
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}
