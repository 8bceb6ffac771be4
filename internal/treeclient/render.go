package treeclient

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
)

// Icon is the row marker for a node: [+]/[-] for collapsed/expanded folders,
// md and pdf for files.
func Icon(n *doctree.Node, expanded bool) string {
	switch {
	case n.IsFolder() && expanded:
		return "[-]"
	case n.IsFolder():
		return "[+]"
	case n.IsPDF():
		return "pdf"
	default:
		return "md"
	}
}

// RenderForest writes one row per visible node. Children of a folder are
// visible only when its id is in expanded. The row of selected is marked
// with '*'.
func RenderForest(w io.Writer, forest []*doctree.Node, expanded map[string]bool, selected string) error {
	var err error
	var render func(nodes []*doctree.Node, depth int)
	render = func(nodes []*doctree.Node, depth int) {
		for _, n := range nodes {
			if err != nil {
				return
			}
			mark := " "
			if n.ID == selected {
				mark = "*"
			}
			open := expanded[n.ID]
			_, err = fmt.Fprintf(w, "%s %s%s %s\n", mark, strings.Repeat("  ", depth), Icon(n, open), n.Title)
			if n.IsFolder() && open {
				render(n.Children, depth+1)
			}
		}
	}
	render(forest, 0)
	return err
}
