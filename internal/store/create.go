package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/notetree/internal/blobstore"
	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser"
)

// CreateFolder adds an empty folder.
func (s *Store) CreateFolder(ctx context.Context, owner string, req CreateRequest) (*doctree.Node, error) {
	n := &doctree.Node{Type: doctree.TypeFolder, FileType: doctree.FileNone}
	return s.create(ctx, "create folder", owner, req.Category, req.Title, req.ParentID, n, func(tx *sql.Tx) error { return nil })
}

// CreateNote adds a markdown note with optional initial content.
func (s *Store) CreateNote(ctx context.Context, owner string, req CreateRequest) (*doctree.Node, error) {
	n := &doctree.Node{
		Type:     doctree.TypeFile,
		FileType: doctree.FileMarkdown,
		Size:     int64(len(req.Content)),
	}
	return s.create(ctx, "create note", owner, req.Category, req.Title, req.ParentID, n, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO contents (node_id, text) VALUES (?, ?)", n.ID, req.Content)
		return err
	})
}

// UploadDocument stores a PDF. The bytes are validated and kept unchanged.
func (s *Store) UploadDocument(ctx context.Context, owner string, req UploadRequest) (*doctree.Node, error) {
	const op = "upload document"
	if req.Data == nil {
		return nil, doctree.Validation(op, "file is required")
	}

	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = titleFromFilename(req.Filename)
	}

	// Checks that need no I/O come first so bad requests fail fast.
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	if _, err := doctree.ParseCategory(string(req.Category)); err != nil {
		return nil, err
	}
	if _, err := doctree.NormalizeTitle(title); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(req.Data, s.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read upload: %w", op, err)
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return nil, doctree.Validation(op, "file exceeds %d bytes", s.opts.MaxUploadBytes)
	}
	info, err := parser.InspectPDF(data)
	if err != nil {
		return nil, err
	}

	n := &doctree.Node{
		Type:      doctree.TypeFile,
		FileType:  doctree.FilePDF,
		Size:      int64(len(data)),
		PageCount: info.Pages,
	}
	var ref blobstore.Ref
	return s.create(ctx, op, owner, req.Category, title, req.ParentID, n, func(tx *sql.Tx) error {
		var err error
		ref, _, err = s.blobs.Put(bytes.NewReader(data), 0)
		if err != nil {
			return fmt.Errorf("store blob: %w", err)
		}
		// An orphaned blob left by a failed insert is collected by the sweeper.
		_, err = tx.ExecContext(ctx, "UPDATE nodes SET blob_ref = ? WHERE node_id = ?", string(ref), n.ID)
		return err
	})
}

// create validates and inserts n. extra runs in the same transaction after
// the node row exists.
func (s *Store) create(ctx context.Context, op, owner string, category doctree.Category, title, parentID string,
	n *doctree.Node, extra func(tx *sql.Tx) error) (*doctree.Node, error) {
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	cat, err := doctree.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}
	title, err = doctree.NormalizeTitle(title)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	n.ID = id
	n.Title = title
	n.Category = cat
	n.CreatedAt = now
	n.UpdatedAt = now

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := resolveParent(ctx, tx, op, owner, cat, parentID)
		if err != nil {
			return err
		}
		if parent != nil {
			n.ParentID = parent.ID
			n.FolderPath = parent.Path()
		}
		if err := checkSibling(ctx, tx, op, owner, cat, n.ParentID, title, ""); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (node_id, owner, category, title, type, file_type, parent_id,
				folder_path, size, page_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, owner, string(cat), title, string(n.Type), string(n.FileType), nullable(n.ParentID),
			n.FolderPath, n.Size, n.PageCount, now.UnixNano(), now.UnixNano())
		if err != nil {
			return mapConstraint(op, err)
		}
		if err := extra(tx); err != nil {
			var derr *doctree.Error
			if errors.As(err, &derr) {
				return err
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node created", "op", op, "id", n.ID, "category", cat, "path", n.Path())
	return n, nil
}

// titleFromFilename strips directories and the .pdf extension.
func titleFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
