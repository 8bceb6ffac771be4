// Package treeclient holds the interaction logic of the tree view: which
// folders are expanded, which file is selected and in what state, the
// markdown edit buffer, and how mutations reach the store.
package treeclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser"
	"github.com/dgallion1/notetree/internal/storeclient"
)

// Store is the document store as seen by the client.
type Store interface {
	Tree(ctx context.Context, cred storeclient.Credential, cat doctree.Category) ([]*doctree.Node, error)
	CreateFolder(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID string) (*doctree.Node, error)
	CreateNote(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID, content string) (*doctree.Node, error)
	UploadDocument(ctx context.Context, cred storeclient.Credential, cat doctree.Category, title, parentID, filename string, data []byte) (*doctree.Node, error)
	Content(ctx context.Context, cred storeclient.Credential, id string) (*doctree.Content, error)
	UpdateContent(ctx context.Context, cred storeclient.Credential, id, text string) (*doctree.Node, error)
	Rename(ctx context.Context, cred storeclient.Credential, id, title string) (*doctree.Node, error)
	Move(ctx context.Context, cred storeclient.Credential, id, parentID string) (*doctree.Node, error)
	Delete(ctx context.Context, cred storeclient.Credential, id string) (int, error)
}

// State is the content state of the selection.
type State int

const (
	Unselected State = iota
	Loading
	Viewing
	Editing
)

func (s State) String() string {
	switch s {
	case Unselected:
		return "unselected"
	case Loading:
		return "loading"
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrSessionExpired is returned by every call once the store has
	// rejected the credential.
	ErrSessionExpired = errors.New("session expired: sign in again")
	// ErrNothingToRetry is returned by Retry when no failed operation is
	// pending.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// ActionError is a failed user action. Its message names the action.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	msg := e.Err.Error()
	// Store errors usually carry the same operation name already.
	if strings.HasPrefix(msg, e.Action+": ") {
		return msg
	}
	return e.Action + ": " + msg
}

func (e *ActionError) Unwrap() error { return e.Err }

// Document is the loaded content of the selected file.
type Document struct {
	Node *doctree.Node
	Text string // markdown
	PDF  []byte
}

// Options configure a Session.
type Options struct {
	Logger *slog.Logger
	Parser parser.Options
}

// Session is one client view of a category. It is safe for concurrent use;
// store calls run without holding the lock.
type Session struct {
	store    Store
	cred     storeclient.Credential
	category doctree.Category
	log      *slog.Logger
	popts    parser.Options

	mu       sync.Mutex
	forest   []*doctree.Node
	expanded map[string]bool
	selected string
	state    State
	doc      *Document
	buf      *Buffer
	gen      int // bumped on every selection change
	inflight map[string]bool
	expired  bool
	retry    *pendingOp
}

type pendingOp struct {
	action string
	run    func(ctx context.Context) error
}

// NewSession returns a session for cat. Call Refresh to load the tree.
func NewSession(st Store, cred storeclient.Credential, cat doctree.Category, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		store:    st,
		cred:     cred,
		category: cat,
		log:      opts.Logger,
		popts:    opts.Parser,
		expanded: make(map[string]bool),
		inflight: make(map[string]bool),
	}
}

// Category returns the category this session shows.
func (s *Session) Category() doctree.Category { return s.category }

// Forest returns the last fetched tree. Callers must not modify it.
func (s *Session) Forest() []*doctree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest
}

// State returns the content state of the selection.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selected returns the selected file, or nil.
func (s *Session) Selected() *doctree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return nil
	}
	return doctree.Find(s.forest, s.selected)
}

// Document returns the loaded content of the selection, or nil.
func (s *Session) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Buffer returns the edit buffer while Editing, or nil.
func (s *Session) Buffer() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return nil
	}
	return s.buf
}

// Expired reports whether the credential was rejected.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// IsExpanded reports whether folder id is expanded.
func (s *Session) IsExpanded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[id]
}

// ExpandedIDs returns the expanded folder ids.
func (s *Session) ExpandedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.expanded))
	for _, n := range s.forestNodes() {
		if s.expanded[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// SetExpanded replaces the expanded set. Ids not in the current tree are
// dropped on the next Refresh.
func (s *Session) SetExpanded(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded = make(map[string]bool, len(ids))
	for _, id := range ids {
		s.expanded[id] = true
	}
}

// Toggle flips the expansion of a folder. It never touches the store.
func (s *Session) Toggle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := doctree.Find(s.forest, id)
	if n == nil {
		return &ActionError{Action: "toggle", Err: doctree.NotFound("toggle", "node %s not in tree", id)}
	}
	if !n.IsFolder() {
		return &ActionError{Action: "toggle", Err: doctree.Validation("toggle", "%q is not a folder", n.Title)}
	}
	s.expanded[id] = !s.expanded[id]
	return nil
}

// Render writes the visible tree.
func (s *Session) Render(w io.Writer) error {
	s.mu.Lock()
	forest, selected := s.forest, s.selected
	expanded := make(map[string]bool, len(s.expanded))
	for id, v := range s.expanded {
		expanded[id] = v
	}
	s.mu.Unlock()
	return RenderForest(w, forest, expanded, selected)
}

// Refresh re-fetches the tree. Expanded ids that no longer exist are
// dropped, and a selection that disappeared is cleared.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.checkExpired(); err != nil {
		return err
	}
	forest, err := s.store.Tree(ctx, s.cred, s.category)
	if err != nil {
		return s.fail(ctx, "refresh", err, s.Refresh)
	}
	s.apply(forest)
	return nil
}

func (s *Session) apply(forest []*doctree.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest = forest
	live := doctree.IDs(forest)
	for id := range s.expanded {
		if !live[id] {
			delete(s.expanded, id)
		}
	}
	if s.selected != "" && !live[s.selected] {
		s.clearSelection()
	}
}

// clearSelection requires s.mu.
func (s *Session) clearSelection() {
	s.selected = ""
	s.state = Unselected
	s.doc = nil
	s.buf = nil
	s.gen++
}

// Select acts on a node of the tree. Folders toggle their expansion and
// leave the content state alone. Files are loaded and shown.
func (s *Session) Select(ctx context.Context, id string) error {
	const action = "open"
	if err := s.checkExpired(); err != nil {
		return err
	}
	s.mu.Lock()
	n := doctree.Find(s.forest, id)
	if n == nil {
		s.mu.Unlock()
		return s.fail(ctx, action, doctree.NotFound(action, "node %s not in tree", id), nil)
	}
	if n.IsFolder() {
		s.expanded[id] = !s.expanded[id]
		s.mu.Unlock()
		return nil
	}
	s.selected = id
	s.state = Loading
	s.doc = nil
	s.buf = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	doc, err := s.load(ctx, id)

	s.mu.Lock()
	if s.gen != gen {
		// Superseded by a newer selection.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.clearSelection()
		s.mu.Unlock()
		return s.fail(ctx, action, err, func(ctx context.Context) error { return s.Select(ctx, id) })
	}
	s.doc = doc
	s.state = Viewing
	s.mu.Unlock()
	return nil
}

func (s *Session) load(ctx context.Context, id string) (*Document, error) {
	c, err := s.store.Content(ctx, s.cred, id)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	doc := &Document{Node: c.Node, Text: c.Text}
	if c.Data != nil {
		if doc.PDF, err = io.ReadAll(c.Data); err != nil {
			return nil, doctree.Transport("get content", err)
		}
	}
	return doc, nil
}

// ToggleEdit switches a markdown selection between Viewing and Editing.
// It is local; the buffer survives switching back to preview.
func (s *Session) ToggleEdit() error {
	const action = "toggle edit"
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Editing:
		s.state = Viewing
	case s.state == Viewing && s.doc != nil && s.doc.Node.IsMarkdown():
		if s.buf == nil {
			s.buf = NewBuffer(s.doc.Text)
		}
		s.state = Editing
	case s.state == Viewing:
		return &ActionError{Action: action, Err: doctree.Validation(action, "only markdown notes can be edited")}
	default:
		return &ActionError{Action: action, Err: doctree.Validation(action, "no note is open")}
	}
	return nil
}

// Edit applies fn to the edit buffer under the session lock.
func (s *Session) Edit(fn func(b *Buffer)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing || s.buf == nil {
		return &ActionError{Action: "edit", Err: doctree.Validation("edit", "not editing")}
	}
	fn(s.buf)
	return nil
}

// Save stores the edit buffer. The session stays in Editing whether or not
// the store accepts it.
func (s *Session) Save(ctx context.Context) error {
	const action = "save"
	if err := s.checkExpired(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.state != Editing || s.buf == nil {
		s.mu.Unlock()
		return &ActionError{Action: action, Err: doctree.Validation(action, "not editing")}
	}
	id, text := s.selected, s.buf.Text()
	s.mu.Unlock()

	return s.mutate(ctx, action, id, func(ctx context.Context) error {
		n, err := s.store.UpdateContent(ctx, s.cred, id, text)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.selected == id && s.doc != nil {
			s.doc.Node = n
			s.doc.Text = text
			if s.buf != nil && s.buf.Text() == text {
				s.buf.MarkClean()
			}
		}
		s.mu.Unlock()
		return nil
	})
}

// Preview renders the selection as terminal text. Markdown uses the edit
// buffer when one exists; PDFs show their extracted page text.
func (s *Session) Preview() (string, error) {
	s.mu.Lock()
	doc, buf, popts := s.doc, s.buf, s.popts
	s.mu.Unlock()
	if doc == nil {
		return "", &ActionError{Action: "preview", Err: doctree.Validation("preview", "nothing selected")}
	}

	if doc.Node.IsPDF() {
		p, err := parser.ForFileType(doctree.FilePDF, popts)
		if err != nil {
			return "", &ActionError{Action: "preview", Err: err}
		}
		o, err := p.Parse(bytes.NewReader(doc.PDF), doc.Node.Title)
		if err != nil {
			return "", &ActionError{Action: "preview", Err: err}
		}
		var sb strings.Builder
		for _, sec := range o.Sections {
			fmt.Fprintf(&sb, "%s\n%s\n\n", sec.Title, sec.Text)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	text := doc.Text
	if buf != nil {
		s.mu.Lock()
		text = buf.Text()
		s.mu.Unlock()
	}
	html, err := parser.RenderHTML([]byte(text))
	if err != nil {
		return "", &ActionError{Action: "preview", Err: err}
	}
	return parser.PreviewText(html), nil
}

// CreateFolder creates a folder under parentID, or at the root.
func (s *Session) CreateFolder(ctx context.Context, title, parentID string) (*doctree.Node, error) {
	var out *doctree.Node
	err := s.mutate(ctx, "create folder", parentKey(parentID), func(ctx context.Context) error {
		n, err := s.store.CreateFolder(ctx, s.cred, s.category, title, parentID)
		out = n
		return err
	})
	return out, err
}

// CreateNote creates a markdown note.
func (s *Session) CreateNote(ctx context.Context, title, parentID, content string) (*doctree.Node, error) {
	var out *doctree.Node
	err := s.mutate(ctx, "create note", parentKey(parentID), func(ctx context.Context) error {
		n, err := s.store.CreateNote(ctx, s.cred, s.category, title, parentID, content)
		out = n
		return err
	})
	return out, err
}

// Upload stores a PDF.
func (s *Session) Upload(ctx context.Context, title, parentID, filename string, data []byte) (*doctree.Node, error) {
	var out *doctree.Node
	err := s.mutate(ctx, "upload document", parentKey(parentID), func(ctx context.Context) error {
		n, err := s.store.UploadDocument(ctx, s.cred, s.category, title, parentID, filename, data)
		out = n
		return err
	})
	return out, err
}

// Rename changes a node's title.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	return s.mutate(ctx, "rename", id, func(ctx context.Context) error {
		_, err := s.store.Rename(ctx, s.cred, id, title)
		return err
	})
}

// Move reparents a node. An empty parentID moves it to the root.
func (s *Session) Move(ctx context.Context, id, parentID string) error {
	return s.mutate(ctx, "move", id, func(ctx context.Context) error {
		_, err := s.store.Move(ctx, s.cred, id, parentID)
		return err
	})
}

// Delete removes a node and its descendants. If the selection was inside
// the removed subtree it is cleared.
func (s *Session) Delete(ctx context.Context, id string) (int, error) {
	var removed int
	err := s.mutate(ctx, "delete", id, func(ctx context.Context) error {
		n, err := s.store.Delete(ctx, s.cred, id)
		if err != nil {
			return err
		}
		removed = n
		s.mu.Lock()
		if root := doctree.Find(s.forest, id); root != nil && s.selected != "" && doctree.Contains(root, s.selected) {
			s.clearSelection()
		}
		s.mu.Unlock()
		return nil
	})
	return removed, err
}

// Retry re-issues the last operation that failed with a transport error.
// Each failure can be retried once.
func (s *Session) Retry(ctx context.Context) error {
	if err := s.checkExpired(); err != nil {
		return err
	}
	s.mu.Lock()
	op := s.retry
	s.retry = nil
	s.mu.Unlock()
	if op == nil {
		return ErrNothingToRetry
	}
	s.log.Info("retrying", "action", op.action)
	err := op.run(ctx)
	if err != nil {
		// A failed retry is not armed again.
		s.mu.Lock()
		s.retry = nil
		s.mu.Unlock()
	}
	return err
}

// PendingRetry names the action Retry would re-issue, or "".
func (s *Session) PendingRetry() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retry == nil {
		return ""
	}
	return s.retry.action
}

// mutate runs op with the in-flight guard on key, then refreshes the tree
// on success. The tree is never patched locally.
func (s *Session) mutate(ctx context.Context, action, key string, op func(ctx context.Context) error) error {
	if err := s.checkExpired(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		return &ActionError{Action: action, Err: doctree.Validation(action, "busy: another change to this node is in progress")}
	}
	s.inflight[key] = true
	s.mu.Unlock()

	err := op(ctx)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()

	if err != nil {
		return s.fail(ctx, action, err, func(ctx context.Context) error {
			return s.mutate(ctx, action, key, op)
		})
	}
	s.log.Debug("mutation applied", "action", action, "key", key)
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after mutation failed", "action", action, "error", err)
	}
	return nil
}

// fail classifies err. Auth expires the session. Every other failure
// re-fetches the tree, since a timed-out or rejected call may still have
// changed the store. Transport also arms a manual retry of again.
func (s *Session) fail(ctx context.Context, action string, err error, again func(ctx context.Context) error) error {
	kind := doctree.KindOf(err)
	if kind == doctree.KindAuth {
		s.mu.Lock()
		s.expired = true
		s.retry = nil
		s.mu.Unlock()
		s.log.Debug("action failed", "action", action, "error", err)
		return &ActionError{Action: action, Err: err}
	}
	if kind == doctree.KindTransport && again != nil {
		s.mu.Lock()
		s.retry = &pendingOp{action: action, run: again}
		s.mu.Unlock()
	}
	if action != "refresh" {
		if ferr := s.refreshQuietly(ctx); ferr != nil {
			s.log.Warn("refresh after failure", "action", action, "error", ferr)
		}
	}
	s.log.Debug("action failed", "action", action, "error", err)
	return &ActionError{Action: action, Err: err}
}

// refreshQuietly fetches the tree without classifying failures.
func (s *Session) refreshQuietly(ctx context.Context) error {
	forest, err := s.store.Tree(ctx, s.cred, s.category)
	if err != nil {
		return err
	}
	s.apply(forest)
	return nil
}

func (s *Session) checkExpired() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		return ErrSessionExpired
	}
	return nil
}

// forestNodes lists every node in depth-first order. Requires s.mu.
func (s *Session) forestNodes() []*doctree.Node {
	var out []*doctree.Node
	doctree.Walk(s.forest, func(n *doctree.Node, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

func parentKey(parentID string) string {
	return "parent:" + parentID
}
