package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser"
	"github.com/dgallion1/notetree/internal/store"
	"github.com/go-chi/chi/v5"
)

// TreeResponse is the body of GET /api/categories/{category}/tree.
type TreeResponse struct {
	Category doctree.Category `json:"category"`
	Nodes    []*doctree.Node  `json:"nodes"`
}

// CreateBody is the JSON body for creating folders and notes.
type CreateBody struct {
	Title    string `json:"title"`
	ParentID string `json:"parentId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ContentBody is the JSON body of PUT /api/nodes/{id}/content.
type ContentBody struct {
	Content string `json:"content"`
}

// RenameBody is the JSON body of POST /api/nodes/{id}/rename.
type RenameBody struct {
	Title string `json:"title"`
}

// MoveBody is the JSON body of POST /api/nodes/{id}/move.
type MoveBody struct {
	ParentID string `json:"parentId"`
}

// DeleteResponse reports how many nodes a delete removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// Headers describing the node behind a content response. The title is
// path-escaped.
const (
	HeaderNodeID    = "X-Node-Id"
	HeaderNodeTitle = "X-Node-Title"
	HeaderFileType  = "X-Node-File-Type"
)

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	cat, err := doctree.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	nodes, err := s.store.Tree(r.Context(), OwnerFrom(r.Context()), cat)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if nodes == nil {
		nodes = []*doctree.Node{}
	}
	writeJSON(w, http.StatusOK, TreeResponse{Category: cat, Nodes: nodes})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var body CreateBody
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.CreateFolder(r.Context(), OwnerFrom(r.Context()), store.CreateRequest{
		Category: doctree.Category(chi.URLParam(r, "category")),
		Title:    body.Title,
		ParentID: body.ParentID,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var body CreateBody
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.CreateNote(r.Context(), OwnerFrom(r.Context()), store.CreateRequest{
		Category: doctree.Category(chi.URLParam(r, "category")),
		Title:    body.Title,
		ParentID: body.ParentID,
		Content:  body.Content,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Get(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleGetContent serves markdown as text (or HTML with ?format=html) and
// PDFs inline, byte for byte.
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.Content(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer c.Close()

	w.Header().Set(HeaderNodeID, c.Node.ID)
	w.Header().Set(HeaderNodeTitle, url.PathEscape(c.Node.Title))
	w.Header().Set(HeaderFileType, string(c.Node.FileType))

	if c.Node.IsPDF() {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", c.Node.Title+".pdf"))
		w.Header().Set("Content-Length", strconv.FormatInt(c.Node.Size, 10))
		if _, err := io.Copy(w, c.Data); err != nil {
			s.log.Warn("pdf stream interrupted", "id", c.Node.ID, "error", err)
		}
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := parser.RenderHTML([]byte(c.Text))
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(html)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, c.Text)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	var body ContentBody
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.UpdateContent(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"), body.Content)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.Outline(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var body RenameBody
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.Rename(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"), body.Title)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var body MoveBody
	if !s.decode(w, r, &body) {
		return
	}
	n, err := s.store.Move(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"), body.ParentID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Delete(r.Context(), OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// decode reads a JSON body bounded by the upload limit. It writes the error
// response itself and reports whether decoding succeeded.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if isTooLarge(err) {
			writeError(w, s.log, err)
			return false
		}
		jsonError(w, codeBadRequest, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) maxBody() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return store.DefaultMaxUploadBytes
}
