package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/config"
	"github.com/xob0t/MemeStencil/pkg/export"
	memerender "github.com/xob0t/MemeStencil/pkg/render"
	"golang.org/x/image/font/gofont/gobold"
)

type testState struct {
	ID         string            `json:"id"`
	Background string            `json:"background"`
	Filter     string            `json:"filter"`
	Selected   string            `json:"selectedId"`
	Layers     []json.RawMessage `json:"layers"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Mode       string            `json:"mode"`
	CanUndo    bool              `json:"canUndo"`
	CanRedo    bool              `json:"canRedo"`
}

type fakeStickers struct {
	query string
}

func (f *fakeStickers) Search(ctx context.Context, query string) ([]catalog.Sticker, error) {
	f.query = query
	if query == "fail" {
		return nil, errors.New("upstream down")
	}
	return []catalog.Sticker{{ID: "1", URL: "https://example.com/cat.gif", Title: "cat"}}, nil
}

type fakeGenerator struct {
	topic string
	image []byte
}

func (f *fakeGenerator) Captions(ctx context.Context, img image.Image, topic string) ([]string, error) {
	f.topic = topic
	return []string{"ONE", "TWO"}, nil
}

func (f *fakeGenerator) EditImage(ctx context.Context, img image.Image, instruction string) ([]byte, error) {
	return f.image, nil
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return f.image, nil
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	data, err := export.Bytes(img, export.PNG, 1)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s, err := New(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s, s.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

// openSession creates a session with a white w x w background.
func openSession(t *testing.T, h http.Handler, w int) testState {
	t.Helper()
	bg := assets.DataURI("image/png", solidPNG(t, w, w, color.White))
	rr := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]any{"background": bg, "displayWidth": w})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rr.Code, rr.Body.String())
	}
	return decodeBody[testState](t, rr)
}

func TestSessionRoundTrip(t *testing.T) {
	_, h := newTestServer(t)
	st := openSession(t, h, 400)
	if st.Width != 400 || st.Height != 400 {
		t.Fatalf("raster = %dx%d, want 400x400", st.Width, st.Height)
	}
	base := "/api/sessions/" + st.ID

	rr := doJSON(t, h, http.MethodPost, base+"/layers/text", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add text: %d %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[struct {
		ID    string    `json:"id"`
		State testState `json:"state"`
	}](t, rr)
	if created.State.Selected != created.ID || len(created.State.Layers) != 1 {
		t.Errorf("after add: %+v", created.State)
	}

	rr = doJSON(t, h, http.MethodPatch, base+"/layers/"+created.ID+"?commit=true", map[string]any{"content": "HELLO"})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[map[string]any](t, rr); got["content"] != "HELLO" || got["type"] != "text" {
		t.Errorf("patched layer = %v", got)
	}

	rr = doJSON(t, h, http.MethodGet, base+"/export?format=jpg&quality=0.8", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	if rr.Header().Get("X-Image-Width") != "400" {
		t.Errorf("width header = %q", rr.Header().Get("X-Image-Width"))
	}
	if _, err := jpeg.Decode(rr.Body); err != nil {
		t.Errorf("export is not a JPEG: %v", err)
	}

	st = decodeBody[testState](t, doJSON(t, h, http.MethodGet, base, nil))
	if st.Selected != "" {
		t.Errorf("export left %q selected", st.Selected)
	}

	rr = doJSON(t, h, http.MethodPost, base+"/undo", nil)
	undo := decodeBody[struct {
		Applied bool      `json:"applied"`
		State   testState `json:"state"`
	}](t, rr)
	if !undo.Applied || !undo.State.CanRedo {
		t.Errorf("undo = %+v", undo)
	}
	var first map[string]any
	json.Unmarshal(undo.State.Layers[0], &first)
	if first["content"] != "DOUBLE TAP TO EDIT" {
		t.Errorf("undo restored content %v", first["content"])
	}

	rr = doJSON(t, h, http.MethodGet, base+"/frame.png", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("frame: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(rr.Body); err != nil {
		t.Errorf("frame is not a PNG: %v", err)
	}

	rr = doJSON(t, h, http.MethodDelete, base, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("delete: %d", rr.Code)
	}
	if rr = doJSON(t, h, http.MethodGet, base, nil); rr.Code != http.StatusNotFound {
		t.Errorf("deleted session answered %d", rr.Code)
	}
}

func TestExportBeforeBackground(t *testing.T) {
	_, h := newTestServer(t)
	rr := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	id := decodeBody[testState](t, rr).ID

	rr = doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/export", nil)
	if rr.Code != http.StatusNoContent || rr.Header().Get("X-Image-Width") != "0" {
		t.Errorf("export = %d, width %q", rr.Code, rr.Header().Get("X-Image-Width"))
	}
	if rr = doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/frame.png", nil); rr.Code != http.StatusConflict {
		t.Errorf("frame = %d, want 409", rr.Code)
	}
	if rr = doJSON(t, h, http.MethodPost, "/api/sessions/"+id+"/layers/text", nil); rr.Code != http.StatusConflict {
		t.Errorf("add text = %d, want 409", rr.Code)
	}
	if rr = doJSON(t, h, http.MethodGet, "/api/sessions/"+id+"/export?format=gif", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("unsupported format = %d, want 400", rr.Code)
	}
}

func TestPointerDragRecordsHistory(t *testing.T) {
	_, h := newTestServer(t)
	st := openSession(t, h, 400)
	base := "/api/sessions/" + st.ID
	doJSON(t, h, http.MethodPost, base+"/layers/text", nil)

	// The first text layer sits at 50%, 15%: raster (200, 60).
	rr := doJSON(t, h, http.MethodPost, base+"/pointer/down", map[string]float64{"x": 200, "y": 60})
	down := decodeBody[pointerResponse](t, rr)
	if down.Mode != "dragging" {
		t.Fatalf("down = %+v", down)
	}
	move := decodeBody[pointerResponse](t, doJSON(t, h, http.MethodPost, base+"/pointer/move", map[string]float64{"x": 240, "y": 100}))
	if !move.Changed {
		t.Error("move reported no change")
	}
	up := decodeBody[pointerResponse](t, doJSON(t, h, http.MethodPost, base+"/pointer/up", nil))
	if !up.Changed || up.Mode != "idle" {
		t.Errorf("up = %+v", up)
	}

	st = decodeBody[testState](t, doJSON(t, h, http.MethodGet, base, nil))
	var l struct{ X, Y float64 }
	json.Unmarshal(st.Layers[0], &l)
	if l.X != 60 || l.Y != 25 {
		t.Errorf("position = %v,%v, want 60,25", l.X, l.Y)
	}

	if rr := doJSON(t, h, http.MethodPost, base+"/pointer/hover", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown action = %d", rr.Code)
	}
}

func TestLayerRoutesValidate(t *testing.T) {
	_, h := newTestServer(t)
	st := openSession(t, h, 200)
	base := "/api/sessions/" + st.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"patch missing layer", http.MethodPatch, base + "/layers/nope", map[string]any{"x": 1}, http.StatusNotFound},
		{"delete missing layer", http.MethodDelete, base + "/layers/nope", nil, http.StatusNotFound},
		{"bad direction", http.MethodPost, base + "/layers/nope/move", map[string]string{"direction": "sideways"}, http.StatusBadRequest},
		{"sticker without url", http.MethodPost, base + "/layers/sticker", nil, http.StatusBadRequest},
		{"unknown filter", http.MethodPost, base + "/filter", map[string]string{"filter": "sparkle(2)"}, http.StatusBadRequest},
		{"select missing layer", http.MethodPost, base + "/select", map[string]string{"id": "nope"}, http.StatusNotFound},
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := doJSON(t, h, tt.method, tt.path, tt.body); rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestStickerLayerAndMove(t *testing.T) {
	_, h := newTestServer(t)
	st := openSession(t, h, 200)
	base := "/api/sessions/" + st.ID

	doJSON(t, h, http.MethodPost, base+"/layers/text", nil)
	sticker := assets.DataURI("image/png", solidPNG(t, 40, 20, color.Black))
	rr := doJSON(t, h, http.MethodPost, base+"/layers/sticker", map[string]string{"url": sticker})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add sticker: %d %s", rr.Code, rr.Body.String())
	}
	created := decodeBody[struct {
		ID    string         `json:"id"`
		Layer map[string]any `json:"layer"`
	}](t, rr)
	if created.Layer["width"] != 200.0 || created.Layer["height"] != 100.0 {
		t.Errorf("sticker size = %v x %v", created.Layer["width"], created.Layer["height"])
	}

	moved := decodeBody[struct {
		Moved bool `json:"moved"`
	}](t, doJSON(t, h, http.MethodPost, base+"/layers/"+created.ID+"/move", map[string]string{"direction": "up"}))
	if moved.Moved {
		t.Error("topmost layer moved up")
	}
	moved = decodeBody[struct {
		Moved bool `json:"moved"`
	}](t, doJSON(t, h, http.MethodPost, base+"/layers/"+created.ID+"/move", map[string]string{"direction": "down"}))
	if !moved.Moved {
		t.Error("layer did not move down")
	}
}

func TestUploadBackground(t *testing.T) {
	_, h := newTestServer(t)
	rr := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]int{"displayWidth": 300})
	id := decodeBody[testState](t, rr).ID

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "photo.png")
	fw.Write(solidPNG(t, 600, 300, color.White))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/background", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	st := decodeBody[testState](t, rr)
	if !strings.HasPrefix(st.Background, assetPrefix) {
		t.Errorf("background = %q", st.Background)
	}
	if st.Width != 300 || st.Height != 150 {
		t.Errorf("raster = %dx%d, want 300x150", st.Width, st.Height)
	}

	list := decodeBody[[]assetInfo](t, doJSON(t, h, http.MethodGet, "/api/assets", nil))
	if len(list) != 1 || list[0].Name != "photo.png" {
		t.Fatalf("assets = %+v", list)
	}
	rr = doJSON(t, h, http.MethodGet, list[0].URL, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Errorf("get asset: %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if rr = doJSON(t, h, http.MethodDelete, list[0].URL, nil); rr.Code != http.StatusOK {
		t.Errorf("delete asset: %d", rr.Code)
	}
	if rr = doJSON(t, h, http.MethodGet, list[0].URL, nil); rr.Code != http.StatusNotFound {
		t.Errorf("deleted asset: %d", rr.Code)
	}
}

func TestStickerSearch(t *testing.T) {
	s, h := newTestServer(t)
	if rr := doJSON(t, h, http.MethodGet, "/api/stickers?q=cat", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured = %d, want 503", rr.Code)
	}

	fake := &fakeStickers{}
	s.Stickers = fake
	rr := doJSON(t, h, http.MethodGet, "/api/stickers?q=cat", nil)
	got := decodeBody[[]catalog.Sticker](t, rr)
	if len(got) != 1 || fake.query != "cat" {
		t.Errorf("results = %+v, query %q", got, fake.query)
	}
	if rr := doJSON(t, h, http.MethodGet, "/api/stickers?q=fail", nil); rr.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", rr.Code)
	}
}

func TestGeneratorRoutes(t *testing.T) {
	s, h := newTestServer(t)
	st := openSession(t, h, 200)
	base := "/api/sessions/" + st.ID

	if rr := doJSON(t, h, http.MethodPost, base+"/captions", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured captions = %d", rr.Code)
	}

	gen := &fakeGenerator{image: solidPNG(t, 100, 50, color.Black)}
	s.Generator = gen

	rr := doJSON(t, h, http.MethodPost, base+"/captions", map[string]string{"topic": "mondays"})
	caps := decodeBody[map[string][]string](t, rr)
	if len(caps["captions"]) != 2 || gen.topic != "mondays" {
		t.Errorf("captions = %v, topic %q", caps, gen.topic)
	}

	rr = doJSON(t, h, http.MethodPost, base+"/captions", map[string]string{"apply": "TWO"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("apply caption: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, base+"/edit-image", map[string]string{"instruction": "make it dark"})
	if rr.Code != http.StatusOK {
		t.Fatalf("edit image: %d %s", rr.Code, rr.Body.String())
	}
	edited := decodeBody[struct {
		State testState `json:"state"`
	}](t, rr)
	if len(edited.State.Layers) != 1 || edited.State.Height != 100 {
		t.Errorf("after edit: %d layers, %dx%d", len(edited.State.Layers), edited.State.Width, edited.State.Height)
	}

	if rr := doJSON(t, h, http.MethodPost, base+"/generate", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("empty prompt = %d", rr.Code)
	}
}

func TestAllowLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example.com", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		if got := allowLocalOrigin(nil, tt.origin); got != tt.want {
			t.Errorf("allowLocalOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestAssetManagerLocal(t *testing.T) {
	am := newAssetManager()
	info := am.add("a.png", []byte("data"), "image/png")

	for _, src := range []string{info.URL, "http://localhost:8080" + info.URL} {
		if data, ok := am.local(src); !ok || string(data) != "data" {
			t.Errorf("local(%q) = %q, %v", src, data, ok)
		}
	}
	for _, src := range []string{"/api/assets/missing", "images" + info.URL, "photo.png"} {
		if _, ok := am.local(src); ok {
			t.Errorf("local(%q) resolved", src)
		}
	}
}

func TestFileSourcesRefused(t *testing.T) {
	_, h := newTestServer(t)
	path := filepath.Join(t.TempDir(), "private.png")
	if err := os.WriteFile(path, solidPNG(t, 50, 50, color.White), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := doJSON(t, h, http.MethodPost, "/api/sessions", map[string]any{"background": path})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("create with file background = %d, want 422", rr.Code)
	}
	if ids := decodeBody[[]string](t, doJSON(t, h, http.MethodGet, "/api/sessions", nil)); len(ids) != 0 {
		t.Errorf("sessions = %v, want the failed one dropped", ids)
	}

	st := openSession(t, h, 200)
	base := "/api/sessions/" + st.ID
	if rr := doJSON(t, h, http.MethodPost, base+"/background", map[string]string{"source": path}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("file background = %d, want 422", rr.Code)
	}

	// The session stays usable and shows the loading placeholder.
	rr = doJSON(t, h, http.MethodGet, base+"/frame.png", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("frame = %d", rr.Code)
	}
	img, err := png.Decode(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := img.At(1, 1).RGBA(); r>>8 != 0x17 || g>>8 != 0x17 || b>>8 != 0x17 {
		t.Errorf("corner = %v, want placeholder gray", img.At(1, 1))
	}
}

type fakeTemplates struct {
	err error
}

func (f fakeTemplates) Templates(ctx context.Context, query string) ([]catalog.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.Template{{ID: "mg-fry", Name: "Futurama Fry", URL: "https://example.com/fry.png", Source: "memegen"}}, nil
}

func TestTemplateRoute(t *testing.T) {
	s, h := newTestServer(t)

	s.Templates = nil
	if rr := doJSON(t, h, http.MethodGet, "/api/templates", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured = %d, want 503", rr.Code)
	}

	s.Templates = fakeTemplates{}
	rr := doJSON(t, h, http.MethodGet, "/api/templates?q=fry", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("templates = %d %s", rr.Code, rr.Body.String())
	}
	got := decodeBody[[]catalog.Template](t, rr)
	if len(got) != 1 || got[0].ID != "mg-fry" {
		t.Errorf("templates = %+v", got)
	}

	s.Templates = fakeTemplates{err: errors.New("both sources down")}
	if rr := doJSON(t, h, http.MethodGet, "/api/templates", nil); rr.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", rr.Code)
	}
}

func TestAddEmojiRoute(t *testing.T) {
	s, h := newTestServer(t)
	st := openSession(t, h, 200)
	base := "/api/sessions/" + st.ID

	if rr := doJSON(t, h, http.MethodPost, base+"/layers/emoji", map[string]string{"emoji": ""}); rr.Code != http.StatusBadRequest {
		t.Errorf("empty emoji = %d, want 400", rr.Code)
	}

	if err := s.fonts.Register(memerender.EmojiFamily, gobold.TTF); err != nil {
		t.Fatal(err)
	}
	rr := doJSON(t, h, http.MethodPost, base+"/layers/emoji", map[string]string{"emoji": "B"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add emoji = %d %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Layer struct {
			Type   string  `json:"type"`
			URL    string  `json:"url"`
			Height float64 `json:"height"`
		} `json:"layer"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Layer.Type != "sticker" || !strings.HasPrefix(got.Layer.URL, "data:image/png") || got.Layer.Height != 200 {
		t.Errorf("layer = %+v", got.Layer)
	}
}
