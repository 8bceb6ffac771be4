package doctree

import (
	"errors"
	"fmt"
	"testing"
)

func TestBuildForest_NestsByParent(t *testing.T) {
	flat := []*Node{
		{ID: "a", Title: "School", Type: TypeFolder, FileType: FileNone},
		{ID: "b", Title: "Physics", Type: TypeFile, FileType: FileMarkdown, ParentID: "a", FolderPath: "/School"},
		{ID: "c", Title: "Maths", Type: TypeFolder, FileType: FileNone, ParentID: "a", FolderPath: "/School"},
		{ID: "d", Title: "Algebra", Type: TypeFile, FileType: FilePDF, ParentID: "c", FolderPath: "/School/Maths"},
		{ID: "e", Title: "Todo", Type: TypeFile, FileType: FileMarkdown},
	}

	forest := BuildForest(flat)
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	school := forest[0]
	if school.ID != "a" {
		t.Fatalf("expected first root %q, got %q", "a", school.ID)
	}
	if len(school.Children) != 2 {
		t.Fatalf("expected 2 children under School, got %d", len(school.Children))
	}
	if school.Children[0].ID != "b" || school.Children[1].ID != "c" {
		t.Errorf("expected sibling order b,c; got %s,%s", school.Children[0].ID, school.Children[1].ID)
	}
	if len(school.Children[1].Children) != 1 {
		t.Errorf("expected Maths to hold 1 child, got %d", len(school.Children[1].Children))
	}
	if Count(forest) != 5 {
		t.Errorf("expected 5 nodes in forest, got %d", Count(forest))
	}
	if flat[0].Children != nil {
		t.Error("expected input nodes to stay untouched")
	}
}

func TestBuildForest_OrphanBecomesRoot(t *testing.T) {
	forest := BuildForest([]*Node{
		{ID: "x", Title: "Lost", Type: TypeFile, FileType: FileMarkdown, ParentID: "gone"},
	})
	if len(forest) != 1 || forest[0].ID != "x" {
		t.Fatalf("expected orphan as root, got %+v", forest)
	}
}

func TestBuildForest_FileNeverGetsChildren(t *testing.T) {
	forest := BuildForest([]*Node{
		{ID: "f", Title: "Note", Type: TypeFile, FileType: FileMarkdown},
		{ID: "g", Title: "Inner", Type: TypeFile, FileType: FileMarkdown, ParentID: "f"},
	})
	if len(forest) != 2 {
		t.Fatalf("expected both nodes at root, got %d", len(forest))
	}
	if len(forest[0].Children) != 0 {
		t.Error("file node must not hold children")
	}
}

func TestWalk_DepthAndSkip(t *testing.T) {
	forest := BuildForest([]*Node{
		{ID: "a", Type: TypeFolder, FileType: FileNone},
		{ID: "b", Type: TypeFolder, FileType: FileNone, ParentID: "a"},
		{ID: "c", Type: TypeFile, FileType: FileMarkdown, ParentID: "b"},
	})

	depths := map[string]int{}
	Walk(forest, func(n *Node, depth int) bool {
		depths[n.ID] = depth
		return n.ID != "b"
	})
	if depths["a"] != 0 || depths["b"] != 1 {
		t.Errorf("unexpected depths: %v", depths)
	}
	if _, ok := depths["c"]; ok {
		t.Error("expected children of b to be skipped")
	}
	if !Contains(forest[0], "c") {
		t.Error("expected a to contain c")
	}
	if Find(forest, "missing") != nil {
		t.Error("expected nil for missing id")
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"private", CategoryPrivate, false},
		{"Work", CategoryWork, false},
		{" school ", CategorySchool, false},
		{"schule", CategorySchool, false},
		{"arbeit", CategoryWork, false},
		{"privat", CategoryPrivate, false},
		{"hobby", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ParseCategory(%q): expected validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCategory(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	long := make([]byte, MaxTitleLen+1)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  Physics ", "Physics", false},
		{"Übungen 2024", "Übungen 2024", false},
		{"", "", true},
		{"   ", "", true},
		{"a/b", "", true},
		{"..", "", true},
		{"tab\there", "", true},
		{string(long), "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeTitle(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Errorf("NormalizeTitle(%q): expected validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		node    Node
		wantErr bool
	}{
		{Node{Type: TypeFolder, FileType: FileNone}, false},
		{Node{Type: TypeFile, FileType: FileMarkdown}, false},
		{Node{Type: TypeFile, FileType: FilePDF}, false},
		{Node{Type: TypeFolder, FileType: FilePDF}, true},
		{Node{Type: TypeFile, FileType: FileNone}, true},
		{Node{Type: "LINK", FileType: FileNone}, true},
	}
	for i, tt := range tests {
		err := tt.node.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("case %d: Validate() = %v, wantErr %v", i, err, tt.wantErr)
		}
	}
}

func TestNodePath(t *testing.T) {
	root := &Node{Title: "School"}
	if root.Path() != "/School" {
		t.Errorf("expected /School, got %q", root.Path())
	}
	child := &Node{Title: "Physics", FolderPath: "/School"}
	if child.Path() != "/School/Physics" {
		t.Errorf("expected /School/Physics, got %q", child.Path())
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("create note", "title %q already exists", "Draft"))
	if !errors.Is(err, ErrConflict) {
		t.Error("expected errors.Is to match ErrConflict through wrapping")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict must not match ErrNotFound")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("expected KindConflict, got %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("expected unclassified error to be internal")
	}
	want := `create note: title "Draft" already exists`
	if got := Conflict("create note", "title %q already exists", "Draft").Error(); got != want {
		t.Errorf("expected message %q, got %q", want, got)
	}
}

func TestOutlineCount(t *testing.T) {
	o := &Outline{Sections: []*Section{
		{Title: "A", Children: []*Section{{Title: "A1"}, {Title: "A2"}}},
		{Title: "B"},
	}}
	if o.Count() != 4 {
		t.Errorf("expected 4 sections, got %d", o.Count())
	}
}
