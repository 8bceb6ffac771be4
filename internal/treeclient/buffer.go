package treeclient

// Format is a markup pair placed around the buffer selection.
type Format struct {
	Name   string
	Before string
	After  string
}

// Toolbar presets for the markdown editor.
var (
	Bold     = Format{"bold", "**", "**"}
	Italic   = Format{"italic", "*", "*"}
	Heading1 = Format{"h1", "# ", ""}
	Heading2 = Format{"h2", "## ", ""}
	Bullet   = Format{"bullet", "- ", ""}
	Numbered = Format{"numbered", "1. ", ""}
	Link     = Format{"link", "[Text](", ")"}
	Image    = Format{"image", "![Alt](", ")"}
	Quote    = Format{"quote", "> ", ""}
	Code     = Format{"code", "```\n", "\n```"}
)

// Toolbar lists the presets in display order.
var Toolbar = []Format{Bold, Italic, Heading1, Heading2, Bullet, Numbered, Link, Image, Quote, Code}

// FormatByName returns the preset called name.
func FormatByName(name string) (Format, bool) {
	for _, f := range Toolbar {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// Buffer is an in-memory markdown text with a selection. Offsets count
// runes. Nothing here talks to the store.
type Buffer struct {
	text       []rune
	start, end int
	dirty      bool
}

// NewBuffer returns a buffer holding text with the cursor at the end.
func NewBuffer(text string) *Buffer {
	r := []rune(text)
	return &Buffer{text: r, start: len(r), end: len(r)}
}

// Text returns the buffer contents.
func (b *Buffer) Text() string { return string(b.text) }

// Len is the buffer length in runes.
func (b *Buffer) Len() int { return len(b.text) }

// Dirty reports whether the buffer changed since it was loaded or last
// marked clean.
func (b *Buffer) Dirty() bool { return b.dirty }

// MarkClean records that the buffer matches the stored content.
func (b *Buffer) MarkClean() { b.dirty = false }

// Selection returns the selected range [start, end).
func (b *Buffer) Selection() (start, end int) { return b.start, b.end }

// Selected returns the selected text.
func (b *Buffer) Selected() string { return string(b.text[b.start:b.end]) }

// Select sets the selection, clamping to the buffer and ordering the ends.
func (b *Buffer) Select(start, end int) {
	start = clamp(start, 0, len(b.text))
	end = clamp(end, 0, len(b.text))
	if start > end {
		start, end = end, start
	}
	b.start, b.end = start, end
}

// SetText replaces the whole buffer and moves the cursor to the end.
func (b *Buffer) SetText(text string) {
	b.text = []rune(text)
	b.start, b.end = len(b.text), len(b.text)
	b.dirty = true
}

// Insert replaces the selection with s and places the cursor after it.
func (b *Buffer) Insert(s string) {
	ins := []rune(s)
	b.splice(ins)
	b.start += len(ins)
	b.end = b.start
}

// Wrap surrounds the selection with before and after and reselects the
// original text, now between the markup.
func (b *Buffer) Wrap(before, after string) {
	bef, aft := []rune(before), []rune(after)
	sel := b.text[b.start:b.end]
	ins := make([]rune, 0, len(bef)+len(sel)+len(aft))
	ins = append(ins, bef...)
	ins = append(ins, sel...)
	ins = append(ins, aft...)

	n := len(sel)
	b.splice(ins)
	b.start += len(bef)
	b.end = b.start + n
}

// Apply wraps the selection with a toolbar preset.
func (b *Buffer) Apply(f Format) { b.Wrap(f.Before, f.After) }

func (b *Buffer) splice(ins []rune) {
	out := make([]rune, 0, len(b.text)-(b.end-b.start)+len(ins))
	out = append(out, b.text[:b.start]...)
	out = append(out, ins...)
	out = append(out, b.text[b.end:]...)
	b.text = out
	b.end = b.start
	b.dirty = true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
