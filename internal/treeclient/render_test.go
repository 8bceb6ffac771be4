package treeclient

import (
	"strings"
	"testing"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleForest() []*doctree.Node {
	return doctree.BuildForest([]*doctree.Node{
		{ID: "f1", Title: "School", Type: doctree.TypeFolder, FileType: doctree.FileNone},
		{ID: "f2", Title: "Physics", Type: doctree.TypeFolder, FileType: doctree.FileNone, ParentID: "f1"},
		{ID: "m1", Title: "Notes", Type: doctree.TypeFile, FileType: doctree.FileMarkdown, ParentID: "f2"},
		{ID: "p1", Title: "Syllabus", Type: doctree.TypeFile, FileType: doctree.FilePDF, ParentID: "f1"},
		{ID: "m2", Title: "Todo", Type: doctree.TypeFile, FileType: doctree.FileMarkdown},
	})
}

func TestRenderForest_Collapsed(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, RenderForest(&sb, sampleForest(), nil, ""))
	assert.Equal(t, "  [+] School\n  md Todo\n", sb.String())
}

func TestRenderForest_ExpandedWithSelection(t *testing.T) {
	var sb strings.Builder
	expanded := map[string]bool{"f1": true, "f2": true}
	require.NoError(t, RenderForest(&sb, sampleForest(), expanded, "m1"))
	want := "" +
		"  [-] School\n" +
		"    [-] Physics\n" +
		"*     md Notes\n" +
		"    pdf Syllabus\n" +
		"  md Todo\n"
	assert.Equal(t, want, sb.String())
}

func TestRenderForest_CollapsedParentHidesExpandedChild(t *testing.T) {
	var sb strings.Builder
	expanded := map[string]bool{"f2": true}
	require.NoError(t, RenderForest(&sb, sampleForest(), expanded, ""))
	assert.NotContains(t, sb.String(), "Physics")
}
