package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// pdfMagic starts every PDF file.
var pdfMagic = []byte("%PDF-")

// PDFInfo describes an uploaded PDF.
type PDFInfo struct {
	Pages int
}

// InspectPDF checks that data is a readable PDF and counts its pages.
func InspectPDF(data []byte) (info PDFInfo, err error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return PDFInfo{}, doctree.Validation("inspect pdf", "file is not a PDF")
	}
	// The reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			info = PDFInfo{}
			err = doctree.Validation("inspect pdf", "malformed PDF: %v", r)
		}
	}()
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFInfo{}, doctree.Validation("inspect pdf", "malformed PDF: %v", err)
	}
	return PDFInfo{Pages: reader.NumPage()}, nil
}

// PDFParser builds a per-page outline. It tries the Go library first,
// then falls back to pdftotext if enabled.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, title string) (*doctree.Outline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	text, err := extractPDFText(data)
	if err != nil && p.FallbackPdftotext {
		text, err = extractPdftotext(data)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	outline := &doctree.Outline{Title: title}
	for i, page := range splitPages(text) {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		outline.Sections = append(outline.Sections, &doctree.Section{
			Title: fmt.Sprintf("Page %d", i+1),
			Text:  page,
			Page:  i + 1,
		})
	}
	return outline, nil
}

func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()
	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if i > 1 {
			buf.WriteString("\f") // Form feed as page separator.
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(t)
	}
	return buf.String(), nil
}

// extractPdftotext shells out to pdftotext, which needs a real file.
func extractPdftotext(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "notetree-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
