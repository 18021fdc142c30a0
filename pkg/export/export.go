// Package export encodes rendered rasters.
//
// Formats are picked by name, MIME type or file extension: PNG, JPEG, BMP
// and TIFF. Quality follows the browser canvas convention of a 0..1 value
// and only affects lossy formats.
package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// DefaultQuality is used when a quality outside [0, 1] is requested.
const DefaultQuality = 0.92

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// ParseFormat accepts "png", "jpg", "image/jpeg", ".tiff" and similar.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "image/")
	s = strings.TrimPrefix(s, ".")
	switch s {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// MIME returns the media type of f.
func (f Format) MIME() string { return "image/" + string(f) }

// Ext returns the usual file extension of f, with the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// Encode writes img to w. quality is in [0, 1].
func Encode(w io.Writer, img image.Image, f Format, quality float64) error {
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality(quality)})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}

// Bytes encodes img into memory.
func Bytes(img image.Image, f Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL encodes img as a base64 data URL.
func DataURL(img image.Image, f Format, quality float64) (string, error) {
	data, err := Bytes(img, f, quality)
	if err != nil {
		return "", err
	}
	return "data:" + f.MIME() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// WriteFile encodes img to path, inferring the format from the extension.
func WriteFile(path string, img image.Image, quality float64) error {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(out, img, f, quality); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func jpegQuality(q float64) int {
	if q < 0 || q > 1 || math.IsNaN(q) {
		q = DefaultQuality
	}
	return max(1, int(math.Round(q*100)))
}
