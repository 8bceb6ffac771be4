package doctree

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
)

// NodeType tells folders from files.
type NodeType string

const (
	TypeFolder NodeType = "FOLDER"
	TypeFile   NodeType = "FILE"
)

// FileType is the content kind of a FILE node. Folders carry FileNone.
type FileType string

const (
	FileMarkdown FileType = "MARKDOWN"
	FilePDF      FileType = "PDF"
	FileNone     FileType = "NONE"
)

// Category is the life-area partition a node lives in.
type Category string

const (
	CategoryPrivate Category = "private"
	CategoryWork    Category = "work"
	CategorySchool  Category = "school"
)

// Categories lists every valid category in display order.
var Categories = []Category{CategoryPrivate, CategoryWork, CategorySchool}

// categoryAliases maps accepted spellings to canonical categories. The German
// names are what older clients send.
var categoryAliases = map[string]Category{
	"private": CategoryPrivate,
	"privat":  CategoryPrivate,
	"work":    CategoryWork,
	"arbeit":  CategoryWork,
	"school":  CategorySchool,
	"schule":  CategorySchool,
}

// ParseCategory resolves a category name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", Validation("parse category", "unknown category %q (valid: private, work, school)", s)
	}
	return c, nil
}

// MaxTitleLen bounds node titles in bytes.
const MaxTitleLen = 255

// NormalizeTitle trims a title and checks it can be used as a path segment.
func NormalizeTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", Validation("validate title", "title must not be empty")
	}
	if len(t) > MaxTitleLen {
		return "", Validation("validate title", "title exceeds %d bytes", MaxTitleLen)
	}
	if t == "." || t == ".." {
		return "", Validation("validate title", "title %q is reserved", t)
	}
	for _, r := range t {
		if r == '/' {
			return "", Validation("validate title", "title must not contain '/'")
		}
		if unicode.IsControl(r) {
			return "", Validation("validate title", "title must not contain control characters")
		}
	}
	return t, nil
}

// Node is one folder or document in a category's forest.
type Node struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Type       NodeType  `json:"type" yaml:"type"`
	FileType   FileType  `json:"fileType" yaml:"fileType"`
	Category   Category  `json:"category" yaml:"category"`
	FolderPath string    `json:"folderPath,omitempty" yaml:"folderPath,omitempty"`
	ParentID   string    `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Size       int64     `json:"size,omitempty" yaml:"size,omitempty"`
	PageCount  int       `json:"pageCount,omitempty" yaml:"pageCount,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"updatedAt"`

	// Children is only populated in tree snapshots, and only for folders.
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsFolder reports whether n is a FOLDER.
func (n *Node) IsFolder() bool { return n.Type == TypeFolder }

// IsMarkdown reports whether n is an editable markdown note.
func (n *Node) IsMarkdown() bool { return n.Type == TypeFile && n.FileType == FileMarkdown }

// IsPDF reports whether n is an uploaded PDF.
func (n *Node) IsPDF() bool { return n.Type == TypeFile && n.FileType == FilePDF }

// Path is the materialized path of n itself, e.g. "/School/Physics".
func (n *Node) Path() string {
	return JoinPath(n.FolderPath, n.Title)
}

// Clone returns a copy of n without children.
func (n *Node) Clone() *Node {
	c := *n
	c.Children = nil
	return &c
}

// Validate checks the type/fileType pairing.
func (n *Node) Validate() error {
	switch n.Type {
	case TypeFolder:
		if n.FileType != FileNone {
			return Validation("validate node", "folder %q must have fileType NONE, got %s", n.Title, n.FileType)
		}
	case TypeFile:
		if n.FileType != FileMarkdown && n.FileType != FilePDF {
			return Validation("validate node", "file %q has invalid fileType %q", n.Title, n.FileType)
		}
	default:
		return Validation("validate node", "invalid node type %q", n.Type)
	}
	return nil
}

// JoinPath appends a title to a folder path. An empty folder path is the
// category root.
func JoinPath(folderPath, title string) string {
	return folderPath + "/" + title
}

// Content is the payload of a FILE node. Exactly one of Text or Data is set.
type Content struct {
	Node *Node
	Text string
	// Data streams PDF bytes; the caller must close it.
	Data io.ReadCloser
}

// Close releases Data if present.
func (c *Content) Close() error {
	if c == nil || c.Data == nil {
		return nil
	}
	return c.Data.Close()
}

// Describe is a one-line summary used in logs and CLI output.
func (n *Node) Describe() string {
	switch {
	case n.IsFolder():
		return fmt.Sprintf("folder %s (%s)", n.Path(), n.ID)
	case n.IsPDF():
		return fmt.Sprintf("pdf %s (%s, %d pages)", n.Path(), n.ID, n.PageCount)
	default:
		return fmt.Sprintf("note %s (%s)", n.Path(), n.ID)
	}
}
