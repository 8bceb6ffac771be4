package treeclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/storeclient"
)

// fakeStore is an in-memory Store. failNext injects one error per method
// before it runs; lostReply applies the call and then returns the error.
// gate, when set, blocks the named method until closed.
type fakeStore struct {
	mu        sync.Mutex
	nodes     []*doctree.Node
	text      map[string]string
	pdf       map[string][]byte
	seq       int
	failNext  map[string]error
	lostReply map[string]error
	gate      map[string]chan struct{}
	calls     map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		text:      make(map[string]string),
		pdf:       make(map[string][]byte),
		failNext:  make(map[string]error),
		lostReply: make(map[string]error),
		gate:      make(map[string]chan struct{}),
		calls:     make(map[string]int),
	}
}

func (f *fakeStore) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	gate := f.gate[method]
	err := f.failNext[method]
	delete(f.failNext, method)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

// reply returns the lost-reply error armed for method, if any. Requires f.mu.
func (f *fakeStore) reply(method string) error {
	err := f.lostReply[method]
	delete(f.lostReply, method)
	return err
}

func (f *fakeStore) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeStore) find(id string) *doctree.Node {
	for _, n := range f.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (f *fakeStore) add(cat doctree.Category, title, parentID string, typ doctree.NodeType, ft doctree.FileType) (*doctree.Node, error) {
	if title == "" {
		return nil, doctree.Validation("create", "title must not be empty")
	}
	if parentID != "" {
		p := f.find(parentID)
		if p == nil || !p.IsFolder() {
			return nil, doctree.NotFound("create", "parent %s not found", parentID)
		}
	}
	for _, n := range f.nodes {
		if n.Category == cat && n.ParentID == parentID && n.Title == title {
			return nil, doctree.Conflict("create", "%q already exists", title)
		}
	}
	f.seq++
	n := &doctree.Node{ID: fmt.Sprintf("n%d", f.seq), Title: title, Type: typ, FileType: ft, Category: cat, ParentID: parentID}
	f.nodes = append(f.nodes, n)
	return n.Clone(), nil
}

func (f *fakeStore) Tree(ctx context.Context, cred storeclient.Credential, cat doctree.Category) ([]*doctree.Node, error) {
	if err := f.enter("Tree"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var flat []*doctree.Node
	for _, n := range f.nodes {
		if n.Category == cat {
			flat = append(flat, n)
		}
	}
	return doctree.BuildForest(flat), nil
}

func (f *fakeStore) CreateFolder(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID string) (*doctree.Node, error) {
	if err := f.enter("CreateFolder"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.add(cat, title, parentID, doctree.TypeFolder, doctree.FileNone)
	if err != nil {
		return nil, err
	}
	if err := f.reply("CreateFolder"); err != nil {
		return nil, err
	}
	return n, nil
}

func (f *fakeStore) CreateNote(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID, content string) (*doctree.Node, error) {
	if err := f.enter("CreateNote"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.add(cat, title, parentID, doctree.TypeFile, doctree.FileMarkdown)
	if err == nil {
		f.text[n.ID] = content
	}
	return n, err
}

func (f *fakeStore) UploadDocument(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID, filename string, data []byte) (*doctree.Node, error) {
	if err := f.enter("UploadDocument"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if title == "" {
		title = filename
	}
	n, err := f.add(cat, title, parentID, doctree.TypeFile, doctree.FilePDF)
	if err == nil {
		f.pdf[n.ID] = bytes.Clone(data)
	}
	return n, err
}

func (f *fakeStore) Content(ctx context.Context, cred storeclient.Credential, id string) (*doctree.Content, error) {
	if err := f.enter("Content"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(id)
	if n == nil || n.IsFolder() {
		return nil, doctree.NotFound("get content", "node %s not found", id)
	}
	if n.IsPDF() {
		return &doctree.Content{Node: n.Clone(), Data: io.NopCloser(bytes.NewReader(f.pdf[id]))}, nil
	}
	return &doctree.Content{Node: n.Clone(), Text: f.text[id]}, nil
}

func (f *fakeStore) UpdateContent(ctx context.Context, cred storeclient.Credential, id, text string) (*doctree.Node, error) {
	if err := f.enter("UpdateContent"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(id)
	if n == nil {
		return nil, doctree.NotFound("update content", "node %s not found", id)
	}
	if !n.IsMarkdown() {
		return nil, doctree.Validation("update content", "not a markdown note")
	}
	f.text[id] = text
	return n.Clone(), nil
}

func (f *fakeStore) Rename(ctx context.Context, cred storeclient.Credential, id, title string) (*doctree.Node, error) {
	if err := f.enter("Rename"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(id)
	if n == nil {
		return nil, doctree.NotFound("rename", "node %s not found", id)
	}
	n.Title = title
	return n.Clone(), nil
}

func (f *fakeStore) Move(ctx context.Context, cred storeclient.Credential, id, parentID string) (*doctree.Node, error) {
	if err := f.enter("Move"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(id)
	if n == nil {
		return nil, doctree.NotFound("move", "node %s not found", id)
	}
	n.ParentID = parentID
	return n.Clone(), nil
}

func (f *fakeStore) Delete(ctx context.Context, cred storeclient.Credential, id string) (int, error) {
	if err := f.enter("Delete"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(id) == nil {
		return 0, doctree.NotFound("delete", "node %s not found", id)
	}
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for _, n := range f.nodes {
			if !doomed[n.ID] && doomed[n.ParentID] {
				doomed[n.ID] = true
				changed = true
			}
		}
	}
	kept := f.nodes[:0]
	for _, n := range f.nodes {
		if !doomed[n.ID] {
			kept = append(kept, n)
		}
	}
	f.nodes = kept
	return len(doomed), nil
}
