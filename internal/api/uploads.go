package api

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mediakeep/internal/assetservice"
	"github.com/starford/mediakeep/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadsHandler serves files from the uploads root and accepts author uploads.
type UploadsHandler struct {
	files storage.Provider
	svc   *assetservice.Service
}

// NewUploadsHandler creates a handler over the uploads root.
func NewUploadsHandler(files storage.Provider, svc *assetservice.Service) *UploadsHandler {
	return &UploadsHandler{files: files, svc: svc}
}

// ServeFile handles GET <prefix>/*. Paths are resolved through the storage
// root guard, so traversal and symlink escapes are rejected.
func (h *UploadsHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	rel, err := url.PathUnescape(raw)
	if err != nil || rel == "" || path.Base(rel) == "." {
		http.NotFound(w, r)
		return
	}
	abs, err := h.files.Abs(rel)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	if !h.files.Exists(rel) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if strings.EqualFold(path.Ext(rel), ".svg") {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/assets/upload (multipart/form-data, field "file",
// optional field "folder").
//
//	@Summary		Upload an image into the uploads root
//	@Tags			assets
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Image file"
//	@Param			folder	formData	string	false	"Target folder"
//	@Success		201		{object}	models.InventoryEntry
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/assets/upload [post]
func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	e, err := h.svc.Upload(r.Context(), r.FormValue("folder"), header.Filename, data)
	if err != nil {
		writeError(w, "upload asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}
