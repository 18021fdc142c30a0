package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/editor"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/interact"
	"github.com/xob0t/MemeStencil/pkg/layer"
	memerender "github.com/xob0t/MemeStencil/pkg/render"
)

type ctxKey struct{}

// sessionCtx loads the session named in the URL into the request context.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, ok := s.session(id)
		if !ok {
			writeError(w, r, http.StatusNotFound, errors.New("session not found"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *editor.Session {
	return r.Context().Value(ctxKey{}).(*editor.Session)
}

// writeError logs err and answers with a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	entry := logrus.WithFields(logrus.Fields{"path": r.URL.Path, "status": status}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

// statusFor maps package sentinel errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, layer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, layer.ErrDuplicateID), errors.Is(err, editor.ErrNoBackground):
		return http.StatusConflict
	case errors.Is(err, editor.ErrClosed):
		return http.StatusGone
	case errors.Is(err, export.ErrUnsupportedFormat), errors.Is(err, editor.ErrEmptyEmoji):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ── Sessions ──

type createSessionRequest struct {
	DisplayWidth int    `json:"displayWidth"`
	Background   string `json:"background"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess, err := s.newSession(req.DisplayWidth)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if req.Background != "" {
		if err := openBackground(r.Context(), sess, req.Background); err != nil {
			s.dropSession(sess.ID())
			writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess.State())
}

// openBackground opens src and waits for it, so the response carries the
// real raster size. A failed load leaves the session on its placeholder.
func openBackground(ctx context.Context, sess *editor.Session, src string) error {
	if err := sess.Open(src); err != nil {
		return err
	}
	return sess.AwaitBackground(ctx)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.sessionIDs())
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, sessionFrom(r).State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := sessionFrom(r).ID()
	s.dropSession(id)
	render.JSON(w, r, map[string]string{"status": "deleted", "id": id})
}

// handleOpenBackground accepts either a multipart "file" upload or a JSON
// body {"source": "..."} naming a URL, data URI or stored asset.
func (s *Server) handleOpenBackground(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	var src string
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		name, data, mimeType, err := readUpload(w, r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		src = s.assets.add(name, data, mimeType).URL
	} else {
		var req struct {
			Source string `json:"source"`
		}
		if err := decode(r, &req); err != nil || req.Source == "" {
			writeError(w, r, http.StatusBadRequest, errors.New(`expected a file upload or {"source": ...}`))
			return
		}
		src = req.Source
	}

	if err := openBackground(r.Context(), sess, src); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, r, status, err)
		return
	}
	render.JSON(w, r, sess.State())
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, memerender.Presets)
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter string `json:"filter"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Filter == "" {
		req.Filter = editor.FilterNone
	}
	if _, err := memerender.ParseFilter(req.Filter); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)
	sess.SetFilter(req.Filter)
	render.JSON(w, r, sess.State())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)
	if err := sess.Select(req.ID); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, sess.State())
}

type pointerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type pointerResponse struct {
	Mode     string `json:"mode"`
	Changed  bool   `json:"changed"`
	Selected string `json:"selectedId,omitempty"`
}

// handlePointer feeds raster-space pointer events to the gesture controller.
func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)

	var changed bool
	switch chi.URLParam(r, "action") {
	case "down":
		before := sess.Selected()
		changed = sess.PointerDown(req.X, req.Y) != interact.Idle || sess.Selected() != before
	case "move":
		changed = sess.PointerMove(req.X, req.Y)
	case "up":
		changed = sess.PointerUp()
	default:
		writeError(w, r, http.StatusNotFound, errors.New("pointer action must be down, move or up"))
		return
	}
	render.JSON(w, r, pointerResponse{Mode: sess.Mode().String(), Changed: changed, Selected: sess.Selected()})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ok := sess.Undo()
	render.JSON(w, r, map[string]any{"applied": ok, "state": sess.State()})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ok := sess.Redo()
	render.JSON(w, r, map[string]any{"applied": ok, "state": sess.State()})
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	sess.ResetAll()
	render.JSON(w, r, sess.State())
}

// ── Output ──

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	frame, err := sessionFrom(r).Frame()
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	data, err := export.Bytes(frame, export.PNG, 1)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", export.PNG.MIME())
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleExport encodes the meme without selection decoration. Query
// parameters: format (png, jpeg, bmp, tiff) and quality in (0, 1].
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	quality := 0.92
	if q := r.URL.Query().Get("quality"); q != "" {
		quality, err = strconv.ParseFloat(q, 64)
		if err != nil || quality <= 0 || quality > 1 {
			writeError(w, r, http.StatusBadRequest, errors.New("quality must be in (0, 1]"))
			return
		}
	}

	data, width, height, err := sessionFrom(r).Export(format, quality)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("X-Image-Width", strconv.Itoa(width))
	w.Header().Set("X-Image-Height", strconv.Itoa(height))
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", format.MIME())
	w.Header().Set("Content-Disposition", `attachment; filename="meme`+format.Ext()+`"`)
	w.Write(data)
}

// ── Layers ──

type layerResponse struct {
	ID    string       `json:"id"`
	Layer layer.Layer  `json:"layer"`
	State editor.State `json:"state"`
}

func (s *Server) layerCreated(w http.ResponseWriter, r *http.Request, sess *editor.Session, id string) {
	l, _ := sess.Layer(id)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, layerResponse{ID: id, Layer: l, State: sess.State()})
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, sessionFrom(r).Layers())
}

func (s *Server) handleAddText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)
	id, err := sess.AddText(req.Content)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	s.layerCreated(w, r, sess, id)
}

func (s *Server) handleAddSticker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decode(r, &req); err != nil || req.URL == "" {
		writeError(w, r, http.StatusBadRequest, errors.New(`expected {"url": ...}`))
		return
	}
	sess := sessionFrom(r)
	id, err := sess.AddSticker(r.Context(), req.URL)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	s.layerCreated(w, r, sess, id)
}

func (s *Server) handleAddEmoji(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)
	id, err := sess.AddEmoji(r.Context(), req.Emoji)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	s.layerCreated(w, r, sess, id)
}

func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	l, ok := sessionFrom(r).Layer(chi.URLParam(r, "layerID"))
	if !ok {
		writeError(w, r, http.StatusNotFound, layer.ErrNotFound)
		return
	}
	render.JSON(w, r, l)
}

// handleUpdateLayer merges a partial update. Continuous edits are sent
// without ?commit and finished with ?commit=true, which records one undo
// step.
func (s *Server) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	var p layer.Patch
	if err := decode(r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFrom(r)
	id := chi.URLParam(r, "layerID")
	if err := sess.UpdateLayer(id, p); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if commit, _ := strconv.ParseBool(r.URL.Query().Get("commit")); commit {
		sess.Commit()
	}
	l, _ := sess.Layer(id)
	render.JSON(w, r, l)
}

func (s *Server) handleRemoveLayer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.RemoveLayer(chi.URLParam(r, "layerID")); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, sess.State())
}

func (s *Server) handleMoveLayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction layer.Direction `json:"direction"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Direction != layer.Up && req.Direction != layer.Down {
		writeError(w, r, http.StatusBadRequest, errors.New(`direction must be "up" or "down"`))
		return
	}
	sess := sessionFrom(r)
	moved, err := sess.MoveLayer(chi.URLParam(r, "layerID"), req.Direction)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, map[string]any{"moved": moved, "state": sess.State()})
}

func (s *Server) handleResetLayer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if err := sess.ResetLayer(chi.URLParam(r, "layerID")); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	render.JSON(w, r, sess.State())
}
