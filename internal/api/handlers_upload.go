package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleUpload stores a PDF sent as multipart form data with fields file,
// title (optional) and parentId (optional).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Extra 1MB for form overhead.
	limit := s.maxBody() + 1024*1024
	if r.ContentLength > limit {
		jsonError(w, codeTooLarge, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			writeError(w, s.log, err)
			return
		}
		jsonError(w, codeBadRequest, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, codeBadRequest, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	n, err := s.store.UploadDocument(r.Context(), OwnerFrom(r.Context()), store.UploadRequest{
		Category: doctree.Category(chi.URLParam(r, "category")),
		Title:    r.FormValue("title"),
		Filename: sanitizeFilename(header.Filename),
		ParentID: r.FormValue("parentId"),
		Data:     file,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func sanitizeFilename(name string) string {
	// Normalize Windows separators before taking the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed.pdf"
	}
	return name
}
