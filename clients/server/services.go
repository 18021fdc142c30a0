package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/editor"
	"github.com/xob0t/MemeStencil/pkg/export"
)

var (
	errBadInstruction = errors.New(`expected {"instruction": ...}`)
	errBadPrompt      = errors.New(`expected {"prompt": ...}`)
)

// serviceStatus maps a collaborator failure. Anything not recognised is
// reported as a bad gateway; the session is never touched.
func serviceStatus(err error) int {
	if st := statusFor(err); st != http.StatusInternalServerError {
		return st
	}
	return http.StatusBadGateway
}

// handleStickerSearch answers GET /api/stickers?q=. An empty query returns
// trending stickers.
func (s *Server) handleStickerSearch(w http.ResponseWriter, r *http.Request) {
	if s.Stickers == nil {
		writeError(w, r, http.StatusServiceUnavailable, catalog.ErrNotConfigured)
		return
	}
	results, err := s.Stickers.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, serviceStatus(err), err)
		return
	}
	if results == nil {
		results = []catalog.Sticker{}
	}
	render.JSON(w, r, results)
}

// handleTemplates answers GET /api/templates?q= with blank meme templates
// whose name contains q.
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if s.Templates == nil {
		writeError(w, r, http.StatusServiceUnavailable, catalog.ErrNotConfigured)
		return
	}
	results, err := s.Templates.Templates(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, serviceStatus(err), err)
		return
	}
	render.JSON(w, r, results)
}

// handleCaptions suggests captions for the current background. With
// "apply" set, the chosen caption is added as a text layer instead.
func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Apply string `json:"apply"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)

	if req.Apply != "" {
		id, err := sess.ApplyCaption(req.Apply)
		if err != nil {
			writeError(w, r, statusFor(err), err)
			return
		}
		s.layerCreated(w, r, sess, id)
		return
	}

	if s.Generator == nil {
		writeError(w, r, http.StatusServiceUnavailable, catalog.ErrNotConfigured)
		return
	}
	img := sess.BackgroundImage()
	if img == nil {
		writeError(w, r, http.StatusConflict, editor.ErrNoBackground)
		return
	}
	captions, err := s.Generator.Captions(r.Context(), img, req.Topic)
	if err != nil {
		writeError(w, r, serviceStatus(err), err)
		return
	}
	render.JSON(w, r, map[string][]string{"captions": captions})
}

// handleEditImage rewrites the background from a text instruction, keeping
// the layers.
func (s *Server) handleEditImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := decode(r, &req); err != nil || req.Instruction == "" {
		writeError(w, r, http.StatusBadRequest, errBadInstruction)
		return
	}
	if s.Generator == nil {
		writeError(w, r, http.StatusServiceUnavailable, catalog.ErrNotConfigured)
		return
	}
	sess := sessionFrom(r)
	img := sess.BackgroundImage()
	if img == nil {
		writeError(w, r, http.StatusConflict, editor.ErrNoBackground)
		return
	}
	data, err := s.Generator.EditImage(r.Context(), img, req.Instruction)
	if err != nil {
		writeError(w, r, serviceStatus(err), err)
		return
	}
	s.applyGenerated(w, r, sess, "edited.png", data)
}

// handleGenerate creates a new background from a prompt.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decode(r, &req); err != nil || req.Prompt == "" {
		writeError(w, r, http.StatusBadRequest, errBadPrompt)
		return
	}
	if s.Generator == nil {
		writeError(w, r, http.StatusServiceUnavailable, catalog.ErrNotConfigured)
		return
	}
	data, err := s.Generator.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, r, serviceStatus(err), err)
		return
	}
	s.applyGenerated(w, r, sessionFrom(r), "generated.png", data)
}

// applyGenerated stores a generated image and swaps it in as the session
// background. An empty session opens it as a new document.
func (s *Server) applyGenerated(w http.ResponseWriter, r *http.Request, sess *editor.Session, name string, data []byte) {
	info := s.assets.add(name, data, export.PNG.MIME())
	apply := sess.ApplyGeneratedImage
	if sess.Background() == "" {
		apply = func(ctx context.Context, src string) error {
			return openBackground(ctx, sess, src)
		}
	}
	if err := apply(r.Context(), info.URL); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, r, status, err)
		return
	}
	render.JSON(w, r, map[string]any{"asset": info, "state": sess.State()})
}
