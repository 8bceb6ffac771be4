// Package doctree holds the note hierarchy model shared by the store, the
// HTTP API and the tree client.
package doctree

// Outline is the section structure of a single document's content: heading
// hierarchy for markdown notes, one section per page for PDFs.
type Outline struct {
	Title    string     `json:"title"`
	Sections []*Section `json:"sections"`
}

// Section is a recursive block of an Outline.
type Section struct {
	Title    string     `json:"title,omitempty"`    // Heading text (empty for leading text)
	Text     string     `json:"text,omitempty"`     // Body text directly under the heading
	Page     int        `json:"page,omitempty"`     // Source page (0 if N/A)
	Children []*Section `json:"children,omitempty"` // Subsections
}

// Count returns the number of sections in the outline, nested ones included.
func (o *Outline) Count() int {
	var n int
	var walk func([]*Section)
	walk = func(ss []*Section) {
		for _, s := range ss {
			n++
			walk(s.Children)
		}
	}
	walk(o.Sections)
	return n
}
