package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/notetree/internal/doctree"
)

func TestMarkdownParser_HeadingHierarchy(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	outline, err := p.Parse(strings.NewReader(input), "Lecture 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outline.Title != "Lecture 1" {
		t.Errorf("expected title %q, got %q", "Lecture 1", outline.Title)
	}

	// Top-level: one h1 ("Title")
	if len(outline.Sections) != 1 {
		t.Fatalf("expected 1 top-level section (h1), got %d", len(outline.Sections))
	}

	h1 := outline.Sections[0]
	if h1.Title != "Title" {
		t.Errorf("expected h1 title %q, got %q", "Title", h1.Title)
	}
	if h1.Text != "Intro text." {
		t.Errorf("expected h1 text %q, got %q", "Intro text.", h1.Text)
	}

	if len(h1.Children) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(h1.Children))
	}

	secA := h1.Children[0]
	if secA.Title != "Section A" {
		t.Errorf("expected %q, got %q", "Section A", secA.Title)
	}
	if secA.Text != "Section A content." {
		t.Errorf("expected section A text %q, got %q", "Section A content.", secA.Text)
	}

	if len(secA.Children) != 1 {
		t.Fatalf("expected 1 h3 child under Section A, got %d", len(secA.Children))
	}
	if sub := secA.Children[0]; sub.Title != "Subsection A1" {
		t.Errorf("expected %q, got %q", "Subsection A1", sub.Title)
	}

	if secB := h1.Children[1]; secB.Title != "Section B" {
		t.Errorf("expected %q, got %q", "Section B", secB.Title)
	}
	if outline.Count() != 4 {
		t.Errorf("expected 4 sections, got %d", outline.Count())
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := `Just some plain text.

Another paragraph here.`

	p := &MarkdownParser{}
	outline, err := p.Parse(strings.NewReader(input), "Todo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// No headings: all text is collected into a single untitled section.
	if len(outline.Sections) != 1 {
		t.Fatalf("expected 1 section for headingless markdown, got %d", len(outline.Sections))
	}

	section := outline.Sections[0]
	if section.Title != "" {
		t.Errorf("expected untitled section, got %q", section.Title)
	}
	want := "Just some plain text.\n\nAnother paragraph here."
	if section.Text != want {
		t.Errorf("expected text %q, got %q", want, section.Text)
	}
}

func TestMarkdownParser_LeadingTextBeforeHeading(t *testing.T) {
	input := "Preamble.\n\n# First\n\nBody.\n"

	outline, err := (&MarkdownParser{}).Parse(strings.NewReader(input), "Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outline.Sections) != 2 {
		t.Fatalf("expected preamble plus one heading, got %d", len(outline.Sections))
	}
	if outline.Sections[0].Title != "" || outline.Sections[0].Text != "Preamble." {
		t.Errorf("unexpected preamble section: %+v", outline.Sections[0])
	}
	if outline.Sections[1].Title != "First" {
		t.Errorf("expected %q, got %q", "First", outline.Sections[1].Title)
	}
}

func TestMarkdownParser_MixedContentWithCodeBlocks(t *testing.T) {
	input := "# API Reference\n\nSome intro.\n\n## Endpoints\n\nList of endpoints:\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	outline, err := p.Parse(strings.NewReader(input), "API")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(outline.Sections) != 1 {
		t.Fatalf("expected 1 top-level section, got %d", len(outline.Sections))
	}

	h1 := outline.Sections[0]
	if h1.Title != "API Reference" {
		t.Errorf("expected title %q, got %q", "API Reference", h1.Title)
	}
	if len(h1.Children) != 1 {
		t.Fatalf("expected 1 h2 child, got %d", len(h1.Children))
	}

	endpoints := h1.Children[0]
	if endpoints.Title != "Endpoints" {
		t.Errorf("expected title %q, got %q", "Endpoints", endpoints.Title)
	}
	if !strings.Contains(endpoints.Text, "GET /api/users") {
		t.Errorf("expected code block content in text, got %q", endpoints.Text)
	}
	if !strings.Contains(endpoints.Text, "More text after code.") {
		t.Errorf("expected post-code text, got %q", endpoints.Text)
	}
	if strings.Count(endpoints.Text, "List of endpoints:") != 1 {
		t.Errorf("expected paragraph text exactly once, got %q", endpoints.Text)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	outline, err := p.Parse(strings.NewReader(""), "Empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outline.Sections) != 0 {
		t.Errorf("expected 0 sections for empty input, got %d", len(outline.Sections))
	}
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML([]byte("# Hello\n\n**bold** and ~~gone~~\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "<h1>Hello</h1>") {
		t.Errorf("expected h1 in output, got %q", html)
	}
	if !strings.Contains(html, "<strong>bold</strong>") {
		t.Errorf("expected strong in output, got %q", html)
	}
	if !strings.Contains(html, "<del>gone</del>") {
		t.Errorf("expected GFM strikethrough in output, got %q", html)
	}
}

func TestPreviewText(t *testing.T) {
	out, err := RenderHTML([]byte("# Physics\n\nNewton's *laws*.\n\n- one\n- two\n\n> quoted\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := PreviewText(out)
	for _, want := range []string{"PHYSICS", "Newton's laws.", "- one", "- two", "> quoted"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected preview to contain %q, got %q", want, got)
		}
	}
}

func TestForFileType(t *testing.T) {
	if _, ok := mustParser(t, doctree.FileMarkdown).(*MarkdownParser); !ok {
		t.Error("expected MarkdownParser for MARKDOWN")
	}
	if p, ok := mustParser(t, doctree.FilePDF).(*PDFParser); !ok || !p.FallbackPdftotext {
		t.Error("expected PDFParser with fallback for PDF")
	}
	if _, err := ForFileType(doctree.FileNone, Options{}); err == nil {
		t.Error("expected error for NONE")
	}
}

func mustParser(t *testing.T, ft doctree.FileType) Parser {
	t.Helper()
	p, err := ForFileType(ft, Options{FallbackPdftotext: true})
	if err != nil {
		t.Fatalf("ForFileType(%s): %v", ft, err)
	}
	return p
}
