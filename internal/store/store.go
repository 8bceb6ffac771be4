// Package store is the document store: folders, markdown notes and PDFs per
// owner and category. Metadata and markdown live in SQLite; PDF bytes live in
// a content-addressed blob directory.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/notetree/internal/blobstore"
	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schemaSQL string

// DefaultMaxUploadBytes bounds PDF uploads when Options leaves it unset.
const DefaultMaxUploadBytes = 50 << 20

// Options configure Open.
type Options struct {
	DataDir        string
	Logger         *slog.Logger
	MaxUploadBytes int64
	Parser         parser.Options
}

// Store implements the document store operations. It is safe for
// concurrent use; writes are serialized.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	blobs  *blobstore.Store
	logger *slog.Logger
	opts   Options
}

// Open creates the data directory if needed and opens the database.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("store: data directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if err := os.MkdirAll(opts.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	blobs, err := blobstore.New(filepath.Join(opts.DataDir, "blobs"))
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		filepath.Join(opts.DataDir, "notetree.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps pragmas stable and writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		blobs:  blobs,
		logger: opts.Logger,
		opts:   opts,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// CreateRequest describes a new folder or note.
type CreateRequest struct {
	Category doctree.Category
	Title    string
	// ParentID is empty for the category root.
	ParentID string
	// Content is the initial markdown; ignored for folders.
	Content string
}

// UploadRequest describes a PDF upload.
type UploadRequest struct {
	Category doctree.Category
	// Title defaults to Filename without its .pdf extension.
	Title    string
	Filename string
	ParentID string
	Data     io.Reader
}

const nodeColumns = `node_id, owner, category, title, type, file_type, parent_id,
	folder_path, blob_ref, size, page_count, created_at, updated_at`

// row is a nodes table row with its storage-only columns.
type row struct {
	node    *doctree.Node
	owner   string
	blobRef string
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (*row, error) {
	var (
		n                  doctree.Node
		owner              string
		parentID, blobRef  sql.NullString
		created, updated   int64
		typ, fileType, cat string
	)
	err := sc.Scan(&n.ID, &owner, &cat, &n.Title, &typ, &fileType, &parentID,
		&n.FolderPath, &blobRef, &n.Size, &n.PageCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	n.Category = doctree.Category(cat)
	n.Type = doctree.NodeType(typ)
	n.FileType = doctree.FileType(fileType)
	n.ParentID = parentID.String
	n.CreatedAt = time.Unix(0, created).UTC()
	n.UpdatedAt = time.Unix(0, updated).UTC()
	return &row{node: &n, owner: owner, blobRef: blobRef.String}, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// lookup loads one node owned by owner. Foreign or missing ids are NotFound.
func lookup(ctx context.Context, q querier, op, owner, id string) (*row, error) {
	if id == "" {
		return nil, doctree.Validation(op, "node id is required")
	}
	r, err := scanRow(q.QueryRowContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE node_id = ? AND owner = ?", id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, doctree.NotFound(op, "node %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load node %s: %w", op, id, err)
	}
	return r, nil
}

// resolveParent checks parentID names a folder of owner in category and
// returns it, or nil for the root. Anything else is NotFound.
func resolveParent(ctx context.Context, q querier, op, owner string, cat doctree.Category, parentID string) (*doctree.Node, error) {
	if parentID == "" {
		return nil, nil
	}
	r, err := lookup(ctx, q, op, owner, parentID)
	if err != nil {
		return nil, err
	}
	if r.node.Category != cat {
		return nil, doctree.NotFound(op, "parent %s not found in category %s", parentID, cat)
	}
	if !r.node.IsFolder() {
		return nil, doctree.NotFound(op, "parent %s is not a folder", parentID)
	}
	return r.node, nil
}

// checkSibling reports a Conflict if a sibling other than self already uses title.
func checkSibling(ctx context.Context, q querier, op, owner string, cat doctree.Category, parentID, title, self string) error {
	var id string
	err := q.QueryRowContext(ctx,
		`SELECT node_id FROM nodes
		 WHERE owner = ? AND category = ? AND COALESCE(parent_id, '') = ? AND title = ? AND node_id != ?`,
		owner, string(cat), parentID, title, self).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: check siblings: %w", op, err)
	}
	return doctree.Conflict(op, "title %q already exists in this folder", title)
}

// mapConstraint turns a unique index violation into a Conflict.
func mapConstraint(op string, err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) && (serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE")) {
		return doctree.Conflict(op, "title already exists in this folder")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func checkOwner(op, owner string) error {
	if owner == "" {
		return doctree.Auth(op, "missing owner")
	}
	return nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
