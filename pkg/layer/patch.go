package layer

import "math"

// Patch is a partial update merged into a layer by id. Nil fields are left
// untouched; fields that do not apply to the target kind are ignored.
type Patch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`

	Content    *string  `json:"content,omitempty"`
	Color      *string  `json:"color,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	BoxWidth   *float64 `json:"boxWidth,omitempty"`
	TextAlign  *Align   `json:"textAlign,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`

	URL    *string  `json:"url,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// F returns a pointer to v, for building patches.
func F(v float64) *float64 { return &v }

// S returns a pointer to v, for building patches.
func S(v string) *string { return &v }

// A returns a pointer to v, for building patches.
func A(v Align) *Align { return &v }

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// Apply merges the patch into l and re-applies the size bounds. NaN and
// infinite numbers are ignored.
func (p Patch) Apply(l Layer) {
	b := l.Common()
	setNum(&b.X, p.X)
	setNum(&b.Y, p.Y)
	setNum(&b.Rotation, p.Rotation)

	switch v := l.(type) {
	case *Text:
		set(&v.Content, p.Content)
		set(&v.Color, p.Color)
		setNum(&v.FontSize, p.FontSize)
		setNum(&v.BoxWidth, p.BoxWidth)
		set(&v.TextAlign, p.TextAlign)
		set(&v.FontFamily, p.FontFamily)
	case *Sticker:
		set(&v.URL, p.URL)
		setNum(&v.Width, p.Width)
		setNum(&v.Height, p.Height)
	}
	normalize(l)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setNum(dst *float64, v *float64) {
	if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
		*dst = *v
	}
}
