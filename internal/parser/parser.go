package parser

import (
	"fmt"
	"io"

	"github.com/dgallion1/notetree/internal/doctree"
)

// Parser converts stored document content into an Outline.
type Parser interface {
	Parse(r io.Reader, title string) (*doctree.Outline, error)
}

// Options tune parser construction.
type Options struct {
	// FallbackPdftotext retries PDF text extraction with the pdftotext
	// binary when the Go reader fails.
	FallbackPdftotext bool
}

// ForFileType returns the parser for a FILE node's content kind.
func ForFileType(ft doctree.FileType, opts Options) (Parser, error) {
	switch ft {
	case doctree.FileMarkdown:
		return &MarkdownParser{}, nil
	case doctree.FilePDF:
		return &PDFParser{FallbackPdftotext: opts.FallbackPdftotext}, nil
	default:
		return nil, fmt.Errorf("no parser for file type %q", ft)
	}
}
