package server

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// assetPrefix is the URL path uploaded assets are served under. Sessions
// reference uploads by this path and the loader resolves them in memory.
const assetPrefix = "/api/assets/"

// maxUpload caps a single uploaded file.
const maxUpload = 20 << 20

type asset struct {
	Name string
	Data []byte
	Mime string
}

type assetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Mime string `json:"mime"`
	Size int    `json:"size"`
	URL  string `json:"url"`
}

// assetManager keeps uploaded and generated files in memory.
type assetManager struct {
	mu     sync.RWMutex
	assets map[string]*asset
}

func newAssetManager() *assetManager {
	return &assetManager{assets: make(map[string]*asset)}
}

func (am *assetManager) add(name string, data []byte, mimeType string) assetInfo {
	id := ulid.Make().String()
	am.mu.Lock()
	am.assets[id] = &asset{Name: name, Data: data, Mime: mimeType}
	am.mu.Unlock()
	return assetInfo{ID: id, Name: name, Mime: mimeType, Size: len(data), URL: assetPrefix + id}
}

func (am *assetManager) get(id string) (*asset, bool) {
	am.mu.RLock()
	a, ok := am.assets[id]
	am.mu.RUnlock()
	return a, ok
}

func (am *assetManager) listAll() []assetInfo {
	am.mu.RLock()
	defer am.mu.RUnlock()
	result := make([]assetInfo, 0, len(am.assets))
	for id, a := range am.assets {
		result = append(result, assetInfo{ID: id, Name: a.Name, Mime: a.Mime, Size: len(a.Data), URL: assetPrefix + id})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (am *assetManager) remove(id string) bool {
	am.mu.Lock()
	defer am.mu.Unlock()
	if _, ok := am.assets[id]; !ok {
		return false
	}
	delete(am.assets, id)
	return true
}

// local resolves asset URLs for assets.SourceLoader. Both the relative path
// and absolute URLs pointing at this server's asset route are accepted.
func (am *assetManager) local(src string) ([]byte, bool) {
	i := strings.Index(src, assetPrefix)
	if i < 0 || (i > 0 && !strings.HasPrefix(src, "http")) {
		return nil, false
	}
	a, ok := am.get(src[i+len(assetPrefix):])
	if !ok {
		return nil, false
	}
	return a.Data, true
}

// readUpload reads the multipart "file" field of r.
func readUpload(w http.ResponseWriter, r *http.Request) (name string, data []byte, mimeType string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, "", err
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", nil, "", err
	}

	mimeType = header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return header.Filename, data, mimeType, nil
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	name, data, mimeType, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	info := s.assets.add(name, data, mimeType)
	logrus.WithFields(logrus.Fields{"asset_id": info.ID, "name": name, "bytes": len(data)}).Info("asset uploaded")

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.assets.get(chi.URLParam(r, "assetID"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", a.Mime)
	w.Write(a.Data)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.assets.listAll())
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "assetID")
	if !s.assets.remove(id) {
		http.NotFound(w, r)
		return
	}
	render.JSON(w, r, map[string]string{"status": "deleted", "id": id})
}

// handleUploadFont registers an uploaded TrueType/OpenType font under the
// "family" form field, or the file name without extension.
func (s *Server) handleUploadFont(w http.ResponseWriter, r *http.Request) {
	name, data, _, err := readUpload(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	family := strings.TrimSpace(r.FormValue("family"))
	if family == "" {
		family = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if err := s.fonts.Register(family, data); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	logrus.WithField("family", family).Info("font registered")

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]any{"family": family, "registered": s.fonts.Registered()})
}
