package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/quill/internal/contentsource"
	"github.com/starford/quill/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AssetHandler serves asset files at their public URL and accepts uploads.
type AssetHandler struct {
	svc *contentsource.Service
	dir string
}

// NewAssetHandler creates a handler serving files below dir, the absolute
// assets directory.
func NewAssetHandler(svc *contentsource.Service, dir string) *AssetHandler {
	return &AssetHandler{svc: svc, dir: filepath.Clean(dir)}
}

// safePath resolves an asset id to a file under the assets directory.
// Nested ids are allowed; traversal and hidden or temporary files are not.
func (h *AssetHandler) safePath(id string) (string, error) {
	if id == "" {
		return "", errors.New("asset id is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid asset id: %s", id)
	}
	for part := range strings.SplitSeq(filepath.ToSlash(cleaned), "/") {
		if storage.Ignored(part) {
			return "", fmt.Errorf("invalid asset id: %s", id)
		}
	}
	abs := filepath.Join(h.dir, cleaned)
	if !strings.HasPrefix(abs, h.dir+string(os.PathSeparator)) {
		return "", errors.New("path escapes assets directory")
	}
	return abs, nil
}

// ServeFile handles GET <assets URL>/*.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safePath(documentID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
//
//	@Summary		Upload an asset (not supported by file-backed content)
//	@Tags			assets
//	@Accept			mpfd
//	@Param			file	formData	file	true	"Asset file"
//	@Failure		400		{object}	errResponse
//	@Failure		501		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets [post]
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	if _, err := h.safePath(header.Filename); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	asset, err := h.svc.UploadAsset(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, "upload asset", header.Filename, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}
