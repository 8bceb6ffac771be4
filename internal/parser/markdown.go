package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// md is shared; goldmark instances are safe for concurrent use.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownParser builds a heading outline from a markdown note.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, title string) (*doctree.Outline, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := md.Parser().Parse(text.NewReader(src))
	outline := &doctree.Outline{Title: title}

	// Root is level 0; every heading nests under the nearest lower level.
	type stackEntry struct {
		section *doctree.Section
		level   int
	}
	root := &doctree.Section{Title: title}
	stack := []stackEntry{{section: root, level: 0}}

	var currentText bytes.Buffer

	flushText := func() {
		t := strings.TrimSpace(currentText.String())
		if t != "" {
			top := stack[len(stack)-1].section
			if top.Text != "" {
				top.Text += "\n\n" + t
			} else {
				top.Text = t
			}
		}
		currentText.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			flushText()
			section := &doctree.Section{Title: extractText(node, src)}

			for len(stack) > 1 && stack[len(stack)-1].level >= node.Level {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1].section
			parent.Children = append(parent.Children, section)
			stack = append(stack, stackEntry{section: section, level: node.Level})

		default:
			t := extractText(n, src)
			if t != "" {
				if currentText.Len() > 0 {
					currentText.WriteString("\n\n")
				}
				currentText.WriteString(t)
			}
		}
	}
	flushText()

	outline.Sections = root.Children
	// Text before the first heading becomes a leading untitled section.
	if root.Text != "" {
		outline.Sections = append([]*doctree.Section{{Text: root.Text}}, outline.Sections...)
	}
	return outline, nil
}

// RenderHTML converts markdown to an HTML fragment.
func RenderHTML(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	// Code blocks keep their text in raw lines; everything else in children.
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
