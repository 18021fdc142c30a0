package layer

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestPatchFloors(t *testing.T) {
	tests := []struct {
		name  string
		layer Layer
		patch Patch
	}{
		{"text zero", NewText("hi", 50, 50), Patch{FontSize: F(0), BoxWidth: F(0)}},
		{"text negative", NewText("hi", 50, 50), Patch{FontSize: F(-20), BoxWidth: F(-1)}},
		{"sticker zero", NewSticker("a.png", 200, 200), Patch{Width: F(0), Height: F(0)}},
		{"sticker tiny", NewSticker("a.png", 200, 200), Patch{Width: F(3), Height: F(49.9)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.patch.Apply(tt.layer)
			switch v := tt.layer.(type) {
			case *Text:
				if v.FontSize < MinFontSize {
					t.Errorf("fontSize = %v, want >= %v", v.FontSize, MinFontSize)
				}
				if v.BoxWidth < MinBoxWidth {
					t.Errorf("boxWidth = %v, want >= %v", v.BoxWidth, MinBoxWidth)
				}
			case *Sticker:
				if v.Width < MinStickerSize || v.Height < MinStickerSize {
					t.Errorf("size = %vx%v, want >= %v", v.Width, v.Height, MinStickerSize)
				}
			}
		})
	}
}

func TestPatchCeilings(t *testing.T) {
	txt := NewText("hi", 50, 50)
	Patch{FontSize: F(1e9), BoxWidth: F(math.Inf(1))}.Apply(txt)
	if txt.FontSize != MaxFontSize || txt.BoxWidth != MaxBoxWidth {
		t.Errorf("text = %v/%v, want %v/%v", txt.FontSize, txt.BoxWidth, MaxFontSize, MaxBoxWidth)
	}

	st := NewSticker("a.png", 1e6, 1e6)
	if st.Width != MaxStickerSize || st.Height != MaxStickerSize {
		t.Errorf("new sticker = %vx%v, want %v", st.Width, st.Height, MaxStickerSize)
	}
	Patch{Width: F(1e6), Height: F(300)}.Apply(st)
	if st.Width != MaxStickerSize || st.Height != 300 {
		t.Errorf("patched sticker = %vx%v", st.Width, st.Height)
	}
}

func TestPatchIgnoresNonFinite(t *testing.T) {
	nan := math.NaN()
	st := NewSticker("a.png", 200, 120)
	st.X, st.Y, st.Rotation = 30, 40, 0.5
	Patch{X: F(nan), Y: F(math.Inf(-1)), Rotation: F(nan), Width: F(nan), Height: F(math.Inf(1))}.Apply(st)

	if st.X != 30 || st.Y != 40 || st.Rotation != 0.5 {
		t.Errorf("position = %v,%v rot %v, want 30,40 rot 0.5", st.X, st.Y, st.Rotation)
	}
	if st.Width != 200 || st.Height != 120 {
		t.Errorf("size = %vx%v, want 200x120", st.Width, st.Height)
	}

	txt := &Text{Base: Base{ID: "t", X: nan}, FontSize: nan}
	normalize(txt)
	if txt.X != 50 || txt.FontSize != DefaultFontSize {
		t.Errorf("normalized = x %v size %v", txt.X, txt.FontSize)
	}
}

func TestPatchLeavesOtherFields(t *testing.T) {
	txt := NewText("hello", 10, 20)
	txt.Rotation = 1.5
	before := *txt

	Patch{Color: S("#ff0000"), URL: S("ignored.png")}.Apply(txt)

	if txt.Color != "#ff0000" {
		t.Fatalf("color = %q", txt.Color)
	}
	txt.Color = before.Color
	if *txt != before {
		t.Errorf("unrelated fields changed: got %+v, want %+v", *txt, before)
	}
}

func TestPatchUnknownAlignFallsBack(t *testing.T) {
	txt := NewText("x", 0, 0)
	Patch{TextAlign: A("justify")}.Apply(txt)
	if txt.TextAlign != AlignCenter {
		t.Errorf("align = %q, want center", txt.TextAlign)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := List{
		NewText("TOP TEXT", 50, 15),
		NewSticker("https://example.com/cat.gif", 200, 120),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"text"`) || !strings.Contains(string(data), `"type":"sticker"`) {
		t.Fatalf("missing discriminator: %s", data)
	}

	var out List
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if !Equal(in[i], out[i]) {
			t.Errorf("layer %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestUnmarshalDefaults(t *testing.T) {
	l, err := Unmarshal([]byte(`{"type":"text","content":"x","fontSize":2}`))
	if err != nil {
		t.Fatal(err)
	}
	txt := l.(*Text)
	if txt.ID == "" {
		t.Error("expected generated id")
	}
	if txt.FontSize != MinFontSize || txt.FontFamily != DefaultFontFamily || txt.TextAlign != AlignCenter {
		t.Errorf("defaults not applied: %+v", txt)
	}

	if _, err := Unmarshal([]byte(`{"type":"shape"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := []Layer{NewText("a", 1, 2), NewSticker("b", 60, 60)}
	cp := CloneAll(orig)
	Patch{X: F(99)}.Apply(cp[0])
	Patch{Width: F(500)}.Apply(cp[1])

	if orig[0].Common().X != 1 {
		t.Error("text clone shares state")
	}
	if orig[1].(*Sticker).Width != 60 {
		t.Error("sticker clone shares state")
	}
}
