package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// PreviewText flattens rendered HTML into readable plain text for terminal
// previews. Block elements become paragraphs, list items get a bullet and
// headings are upper-cased.
func PreviewText(fragment []byte) string {
	doc, err := html.Parse(bytes.NewReader(fragment))
	if err != nil {
		return string(fragment)
	}

	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				if t := textContent(n); t != "" {
					blocks = append(blocks, strings.ToUpper(t))
				}
				return
			case "li":
				if t := textContent(n); t != "" {
					blocks = append(blocks, "- "+t)
				}
				return
			case "pre":
				if t := rawText(n); t != "" {
					blocks = append(blocks, t)
				}
				return
			case "p", "td", "blockquote":
				if t := textContent(n); t != "" {
					if n.Data == "blockquote" {
						t = "> " + t
					}
					blocks = append(blocks, t)
				}
				return
			case "img":
				if alt := attr(n, "alt"); alt != "" {
					blocks = append(blocks, "["+alt+"]")
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return strings.Join(blocks, "\n\n")
}

// textContent joins descendant text with whitespace collapsed.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// rawText keeps whitespace, for preformatted blocks.
func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimRight(buf.String(), "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
