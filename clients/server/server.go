// Package server exposes MemeStencil editing sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/catalog"
	"github.com/xob0t/MemeStencil/pkg/config"
	"github.com/xob0t/MemeStencil/pkg/editor"
	memerender "github.com/xob0t/MemeStencil/pkg/render"
)

// Server owns the editing sessions and uploaded assets of one process.
type Server struct {
	cfg    config.Config
	assets *assetManager
	fonts  *memerender.FontManager
	loader *assets.SourceLoader

	mu       sync.RWMutex
	sessions map[string]*editor.Session

	// Stickers and Generator are nil when their API keys are unset; the
	// matching routes then answer 503.
	Stickers  catalog.StickerProvider
	Generator catalog.Generator
	Templates catalog.TemplateProvider
}

// New builds a server from cfg.
func New(cfg config.Config) (*Server, error) {
	fonts, err := memerender.NewFontManager()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		assets:   newAssetManager(),
		fonts:    fonts,
		sessions: make(map[string]*editor.Session),
	}
	// Sources come from remote clients: stored assets, data URIs and public
	// URLs only.
	s.loader = assets.NewSourceLoader("")
	s.loader.NoFiles = true
	s.loader.Client = assets.PublicClient(30 * time.Second)
	s.loader.Local = s.assets.local

	s.Templates = catalog.NewTemplates()
	if cfg.GiphyKey != "" {
		s.Stickers = catalog.NewGiphy(cfg.GiphyKey)
	}
	if cfg.OpenAIKey != "" {
		s.Generator = catalog.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	return s, nil
}

// Router returns the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowLocalOrigin,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Image-Width", "X-Image-Height"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/filters", s.handleFilters)
		r.Get("/stickers", s.handleStickerSearch)
		r.Get("/templates", s.handleTemplates)
		r.Post("/fonts", s.handleUploadFont)

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", s.handleListAssets)
			r.Post("/", s.handleUploadAsset)
			r.Get("/{assetID}", s.handleGetAsset)
			r.Delete("/{assetID}", s.handleDeleteAsset)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(s.sessionCtx)
				r.Get("/", s.handleSessionState)
				r.Delete("/", s.handleDeleteSession)

				r.Post("/background", s.handleOpenBackground)
				r.Post("/filter", s.handleSetFilter)
				r.Post("/select", s.handleSelect)
				r.Post("/pointer/{action}", s.handlePointer)
				r.Post("/undo", s.handleUndo)
				r.Post("/redo", s.handleRedo)
				r.Post("/reset", s.handleResetAll)

				r.Get("/frame.png", s.handleFrame)
				r.Get("/export", s.handleExport)

				r.Post("/captions", s.handleCaptions)
				r.Post("/edit-image", s.handleEditImage)
				r.Post("/generate", s.handleGenerate)

				r.Route("/layers", func(r chi.Router) {
					r.Get("/", s.handleListLayers)
					r.Post("/text", s.handleAddText)
					r.Post("/sticker", s.handleAddSticker)
					r.Post("/emoji", s.handleAddEmoji)
					r.Route("/{layerID}", func(r chi.Router) {
						r.Get("/", s.handleGetLayer)
						r.Patch("/", s.handleUpdateLayer)
						r.Delete("/", s.handleRemoveLayer)
						r.Post("/move", s.handleMoveLayer)
						r.Post("/reset", s.handleResetLayer)
					})
				})
			})
		})
	})
	return r
}

// allowLocalOrigin admits browser UIs served from this machine.
func allowLocalOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// newSession creates and registers a session.
func (s *Server) newSession(displayWidth int) (*editor.Session, error) {
	if displayWidth <= 0 {
		displayWidth = s.cfg.DisplayWidth
	}
	sess, err := editor.New(editor.Options{
		DisplayWidth: displayWidth,
		HistoryCap:   s.cfg.HistoryCap,
		Loader:       s.loader,
		Fonts:        s.fonts,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	logrus.WithField("session_id", sess.ID()).Info("session created")
	return sess, nil
}

func (s *Server) session(id string) (*editor.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) dropSession(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
		logrus.WithField("session_id", id).Info("session closed")
	}
	return ok
}

func (s *Server) sessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close ends every session.
func (s *Server) Close() {
	for _, id := range s.sessionIDs() {
		s.dropSession(id)
	}
}

// RunServe listens on cfg's port until ctx is cancelled, then shuts down
// gracefully. With openBrowser set the editor URL is opened locally.
func RunServe(ctx context.Context, cfg config.Config, openBrowser bool) error {
	s, err := New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", cfg.Addr()).Info("starting server")
		errCh <- httpServer.ListenAndServe()
	}()
	if openBrowser {
		go openURL(cfg.BrowserURL() + "/api/sessions")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openURL(target string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	case "darwin":
		cmd = exec.Command("open", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	if err := cmd.Start(); err != nil {
		logrus.WithError(err).Debug("could not open browser")
	}
}
