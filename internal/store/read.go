package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgallion1/notetree/internal/blobstore"
	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser"
)

// Tree returns the category forest of owner. Siblings are ordered by
// creation time, then id.
func (s *Store) Tree(ctx context.Context, owner string, category doctree.Category) ([]*doctree.Node, error) {
	const op = "get tree"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	cat, err := doctree.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE owner = ? AND category = ? ORDER BY created_at, node_id",
		owner, string(cat))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var flat []*doctree.Node
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		flat = append(flat, r.node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doctree.BuildForest(flat), nil
}

// Get returns a single node's metadata.
func (s *Store) Get(ctx context.Context, owner, id string) (*doctree.Node, error) {
	const op = "get node"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := lookup(ctx, s.db, op, owner, id)
	if err != nil {
		return nil, err
	}
	return r.node, nil
}

// Content returns a file's payload: Text for markdown, Data for PDFs.
// Folders have no content and report NotFound.
func (s *Store) Content(ctx context.Context, owner, id string) (*doctree.Content, error) {
	const op = "get content"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := lookup(ctx, s.db, op, owner, id)
	if err != nil {
		return nil, err
	}
	switch {
	case r.node.IsMarkdown():
		var text string
		err := s.db.QueryRowContext(ctx, "SELECT text FROM contents WHERE node_id = ?", id).Scan(&text)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &doctree.Content{Node: r.node, Text: text}, nil
	case r.node.IsPDF():
		data, err := s.blobs.Open(blobstore.Ref(r.blobRef))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &doctree.Content{Node: r.node, Data: data}, nil
	default:
		return nil, doctree.NotFound(op, "folder %s has no content", id)
	}
}

// UpdateContent replaces a markdown note's text.
func (s *Store) UpdateContent(ctx context.Context, owner, id, text string) (*doctree.Node, error) {
	const op = "update content"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var node *doctree.Node
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := lookup(ctx, tx, op, owner, id)
		if err != nil {
			return err
		}
		if !r.node.IsMarkdown() {
			return doctree.Validation(op, "only markdown notes can be edited, %s is %s", id, describeKind(r.node))
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contents (node_id, text) VALUES (?, ?)
			 ON CONFLICT(node_id) DO UPDATE SET text = excluded.text`, id, text); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE nodes SET size = ?, updated_at = ? WHERE node_id = ?",
			len(text), now.UnixNano(), id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		r.node.Size = int64(len(text))
		r.node.UpdatedAt = now
		node = r.node
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("content updated", "id", id, "size", node.Size)
	return node, nil
}

// Outline parses a file into its heading (markdown) or page (PDF) outline.
func (s *Store) Outline(ctx context.Context, owner, id string) (*doctree.Outline, error) {
	c, err := s.Content(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	p, err := parser.ForFileType(c.Node.FileType, s.opts.Parser)
	if err != nil {
		return nil, err
	}
	var r io.Reader = strings.NewReader(c.Text)
	if c.Data != nil {
		r = c.Data
	}
	outline, err := p.Parse(r, c.Node.Title)
	if err != nil {
		return nil, fmt.Errorf("outline %s: %w", id, err)
	}
	return outline, nil
}

// CategoryStats counts the nodes of one category.
type CategoryStats struct {
	Folders   int `json:"folders"`
	Notes     int `json:"notes"`
	Documents int `json:"documents"`
}

// Stats summarizes an owner's store.
type Stats struct {
	Categories    map[doctree.Category]CategoryStats `json:"categories"`
	Nodes         int                                `json:"nodes"`
	NoteBytes     int64                              `json:"noteBytes"`
	DocumentBytes int64                              `json:"documentBytes"`
	DocumentPages int                                `json:"documentPages"`
}

// Stats counts nodes per category and type.
func (s *Store) Stats(ctx context.Context, owner string) (*Stats, error) {
	const op = "stats"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, type, file_type, COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(page_count), 0)
		 FROM nodes WHERE owner = ? GROUP BY category, type, file_type`, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	st := &Stats{Categories: make(map[doctree.Category]CategoryStats, len(doctree.Categories))}
	for _, c := range doctree.Categories {
		st.Categories[c] = CategoryStats{}
	}
	for rows.Next() {
		var (
			cat, typ, fileType string
			count, pages       int
			size               int64
		)
		if err := rows.Scan(&cat, &typ, &fileType, &count, &size, &pages); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		cs := st.Categories[doctree.Category(cat)]
		switch doctree.FileType(fileType) {
		case doctree.FileNone:
			cs.Folders += count
		case doctree.FileMarkdown:
			cs.Notes += count
			st.NoteBytes += size
		case doctree.FilePDF:
			cs.Documents += count
			st.DocumentBytes += size
			st.DocumentPages += pages
		}
		st.Categories[doctree.Category(cat)] = cs
		st.Nodes += count
	}
	return st, rows.Err()
}

func describeKind(n *doctree.Node) string {
	if n.IsFolder() {
		return "a folder"
	}
	return "a " + strings.ToLower(string(n.FileType)) + " file"
}
