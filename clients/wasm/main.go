//go:build js && wasm

// MemeStencil WASM - In-browser editing session.
// Compiled with: GOOS=js GOARCH=wasm go build -o memestencil.wasm ./clients/wasm/
//
// The page owns a <canvas>; it forwards pointer events to goPointerDown/
// goPointerMove/goPointerUp and repaints from goFrame whenever goRenderCount
// changes.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/editor"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/layer"
)

// In-memory asset store (replaces server-side asset manager).
var (
	assetsMu sync.RWMutex
	stored   = make(map[string][]byte)
)

var (
	sess      *editor.Session
	searcher  *catalog.Searcher
	templates = catalog.NewTemplates()
)

func main() {
	loader := assets.NewSourceLoader("")
	loader.Local = resolveAsset

	var err error
	sess, err = editor.New(editor.Options{Loader: loader})
	if err != nil {
		logrus.WithError(err).Fatal("create session")
	}
	fmt.Println("MemeStencil WASM loaded")

	// Register JS-callable functions.
	funcs := map[string]func(js.Value, []js.Value) any{
		"goRegisterAsset":   registerAsset,
		"goRemoveAsset":     removeAsset,
		"goOpen":            open,
		"goSetDisplayWidth": setDisplayWidth,
		"goAddText":         addText,
		"goAddSticker":      addSticker,
		"goAddEmoji":        addEmoji,
		"goUpdateLayer":     updateLayer,
		"goCommit":          commit,
		"goRemoveLayer":     removeLayer,
		"goMoveLayer":       moveLayer,
		"goResetLayer":      resetLayer,
		"goResetAll":        resetAll,
		"goSelect":          selectLayer,
		"goSetFilter":       setFilter,
		"goUndo":            undo,
		"goRedo":            redo,
		"goPointerDown":     pointerDown,
		"goPointerMove":     pointerMove,
		"goPointerUp":       pointerUp,
		"goRenderCount":     renderCount,
		"goFrame":           frame,
		"goState":           state,
		"goExport":          exportImage,
		"goConfigureGiphy":  configureGiphy,
		"goSearchStickers":  searchStickers,
		"goTemplates":       listTemplates,
	}
	for name, fn := range funcs {
		js.Global().Set(name, js.FuncOf(fn))
	}
	js.Global().Set("goReady", js.ValueOf(true))

	// Block forever (WASM must not exit).
	select {}
}

// resolveAsset serves registered asset ids to the image loader.
func resolveAsset(id string) ([]byte, bool) {
	assetsMu.RLock()
	defer assetsMu.RUnlock()
	data, ok := stored[id]
	return data, ok
}

// result wraps an error for JS callers: {error: "..."} or the value.
func result(v any, err error) any {
	if err != nil {
		return js.ValueOf(map[string]any{"error": err.Error()})
	}
	return v
}

// promise runs fn off the JS event loop. Image loads go through fetch, which
// needs the event loop to keep running.
func promise(fn func() (any, error)) any {
	handler := js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve, reject := args[0], args[1]
		go func() {
			v, err := fn()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	defer handler.Release()
	return js.Global().Get("Promise").New(handler)
}

func stateJSON() (any, error) {
	b, err := json.Marshal(sess.State())
	if err != nil {
		return nil, err
	}
	return js.ValueOf(string(b)), nil
}

// goRegisterAsset(id, base64Data) - store an asset in Go memory.
func registerAsset(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return js.ValueOf("error: need id, base64Data")
	}
	data, err := base64.StdEncoding.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid base64: " + err.Error())
	}
	assetsMu.Lock()
	stored[args[0].String()] = data
	assetsMu.Unlock()
	return js.ValueOf("ok")
}

// goRemoveAsset(id) - remove an asset from Go memory.
func removeAsset(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("error: need id")
	}
	assetsMu.Lock()
	delete(stored, args[0].String())
	assetsMu.Unlock()
	return js.ValueOf("ok")
}

// goOpen(src) - Promise<stateJSON>, resolved once the image has loaded. The
// loading placeholder is available from goFrame as soon as this returns.
// src is an asset id, URL or data URI.
func open(this js.Value, args []js.Value) any {
	if err := sess.Open(args[0].String()); err != nil {
		return result(nil, err)
	}
	return promise(func() (any, error) {
		if err := sess.AwaitBackground(context.Background()); err != nil {
			return nil, err
		}
		return stateJSON()
	})
}

func setDisplayWidth(this js.Value, args []js.Value) any {
	sess.SetDisplayWidth(args[0].Int())
	return nil
}

// goAddText(content) - new layer id.
func addText(this js.Value, args []js.Value) any {
	content := ""
	if len(args) > 0 {
		content = args[0].String()
	}
	id, err := sess.AddText(content)
	return result(js.ValueOf(id), err)
}

// goAddSticker(url) - Promise<layer id>.
func addSticker(this js.Value, args []js.Value) any {
	url := args[0].String()
	return promise(func() (any, error) {
		id, err := sess.AddSticker(context.Background(), url)
		return js.ValueOf(id), err
	})
}

func addEmoji(this js.Value, args []js.Value) any {
	emoji := args[0].String()
	return promise(func() (any, error) {
		id, err := sess.AddEmoji(context.Background(), emoji)
		return js.ValueOf(id), err
	})
}

// goUpdateLayer(id, patchJSON) - merge a partial update without recording.
func updateLayer(this js.Value, args []js.Value) any {
	var p layer.Patch
	if err := json.Unmarshal([]byte(args[1].String()), &p); err != nil {
		return result(nil, err)
	}
	return result(nil, sess.UpdateLayer(args[0].String(), p))
}

func commit(this js.Value, args []js.Value) any {
	sess.Commit()
	return nil
}

func removeLayer(this js.Value, args []js.Value) any {
	return result(nil, sess.RemoveLayer(args[0].String()))
}

// goMoveLayer(id, "up"|"down") - whether the layer moved.
func moveLayer(this js.Value, args []js.Value) any {
	moved, err := sess.MoveLayer(args[0].String(), layer.Direction(args[1].String()))
	return result(js.ValueOf(moved), err)
}

func resetLayer(this js.Value, args []js.Value) any {
	return result(nil, sess.ResetLayer(args[0].String()))
}

func resetAll(this js.Value, args []js.Value) any {
	sess.ResetAll()
	return nil
}

func selectLayer(this js.Value, args []js.Value) any {
	return result(nil, sess.Select(args[0].String()))
}

func setFilter(this js.Value, args []js.Value) any {
	sess.SetFilter(args[0].String())
	return nil
}

func undo(this js.Value, args []js.Value) any { return js.ValueOf(sess.Undo()) }
func redo(this js.Value, args []js.Value) any { return js.ValueOf(sess.Redo()) }

// goPointerDown(x, y) - gesture mode name. Coordinates are raster pixels.
func pointerDown(this js.Value, args []js.Value) any {
	return js.ValueOf(sess.PointerDown(args[0].Float(), args[1].Float()).String())
}

func pointerMove(this js.Value, args []js.Value) any {
	return js.ValueOf(sess.PointerMove(args[0].Float(), args[1].Float()))
}

func pointerUp(this js.Value, args []js.Value) any {
	return js.ValueOf(sess.PointerUp())
}

func renderCount(this js.Value, args []js.Value) any {
	return js.ValueOf(sess.RenderCount())
}

// goFrame() - {width, height, pixels: Uint8ClampedArray} for an ImageData.
func frame(this js.Value, args []js.Value) any {
	img, err := sess.Frame()
	if err != nil {
		return result(nil, err)
	}
	b := img.Bounds()
	pixels := js.Global().Get("Uint8ClampedArray").New(len(img.Pix))
	js.CopyBytesToJS(pixels, img.Pix)
	return js.ValueOf(map[string]any{
		"width":  b.Dx(),
		"height": b.Dy(),
		"pixels": pixels,
	})
}

func state(this js.Value, args []js.Value) any {
	return result(stateJSON())
}

// goExport(format, quality) - base64 image, or "" before the first frame.
func exportImage(this js.Value, args []js.Value) any {
	f, err := export.ParseFormat(args[0].String())
	if err != nil {
		return result(nil, err)
	}
	quality := 0.92
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		quality = args[1].Float()
	}
	data, _, _, err := sess.Export(f, quality)
	if err != nil {
		return result(nil, err)
	}
	return js.ValueOf(base64.StdEncoding.EncodeToString(data))
}

// goConfigureGiphy(apiKey, callback) - callback(query, stickersJSON, error)
// receives debounced search results.
func configureGiphy(this js.Value, args []js.Value) any {
	if searcher != nil {
		searcher.Stop()
	}
	cb := args[1]
	searcher = catalog.NewSearcher(catalog.NewGiphy(args[0].String()), catalog.DefaultSearchDelay,
		func(query string, stickers []catalog.Sticker, err error) {
			if err != nil {
				cb.Invoke(query, js.Null(), err.Error())
				return
			}
			b, _ := json.Marshal(stickers)
			cb.Invoke(query, string(b), js.Null())
		})
	return nil
}

// goSearchStickers(query) - feed a keystroke to the debounced search.
func searchStickers(this js.Value, args []js.Value) any {
	if searcher == nil {
		return js.ValueOf("error: " + catalog.ErrNotConfigured.Error())
	}
	searcher.Input(args[0].String())
	return nil
}

// goTemplates(query) - resolves to a JSON array of meme templates.
func listTemplates(this js.Value, args []js.Value) any {
	query := ""
	if len(args) > 0 {
		query = args[0].String()
	}
	return promise(func() (any, error) {
		list, err := templates.Templates(context.Background(), query)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(list)
		return js.ValueOf(string(b)), err
	})
}
