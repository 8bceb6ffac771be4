package storeclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgallion1/notetree/internal/api"
	"github.com/dgallion1/notetree/internal/config"
	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/parser/parsertest"
	"github.com/dgallion1/notetree/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

// setupClient runs a real API server over a temp store.
func setupClient(t *testing.T) (*Client, Credential) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), store.Options{DataDir: t.TempDir(), Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := api.NewServer(st, nil, log, config.Config{
		AuthSecret:        secret,
		MaxUploadBytes:    1 << 20,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		RateLimitBurst:    1000,
	})
	t.Cleanup(srv.Close)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	tok, err := api.IssueToken([]byte(secret), "alice", time.Hour)
	require.NoError(t, err)
	c := NewClient(ts.URL+"/", 5*time.Second)
	t.Cleanup(c.Close)
	return c, Credential{Token: tok}
}

func TestClient_CreateTreeDelete(t *testing.T) {
	c, cred := setupClient(t)
	ctx := context.Background()

	school, err := c.CreateFolder(ctx, cred, doctree.CategorySchool, "School", "")
	require.NoError(t, err)
	physics, err := c.CreateNote(ctx, cred, doctree.CategorySchool, "Physics", school.ID, "# Physics")
	require.NoError(t, err)
	assert.Equal(t, "/School", physics.FolderPath)

	forest, err := c.Tree(ctx, cred, doctree.CategorySchool)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, doctree.FileMarkdown, forest[0].Children[0].FileType)

	n, err := c.Delete(ctx, cred, school.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	forest, err = c.Tree(ctx, cred, doctree.CategorySchool)
	require.NoError(t, err)
	assert.Empty(t, forest)
}

func TestClient_ErrorKinds(t *testing.T) {
	c, cred := setupClient(t)
	ctx := context.Background()

	_, err := c.CreateNote(ctx, cred, doctree.CategoryPrivate, "Draft", "", "")
	require.NoError(t, err)

	_, err = c.CreateNote(ctx, cred, doctree.CategoryPrivate, "Draft", "", "")
	assert.ErrorIs(t, err, doctree.ErrConflict)

	_, err = c.CreateFolder(ctx, cred, doctree.CategoryPrivate, "  ", "")
	assert.ErrorIs(t, err, doctree.ErrValidation)

	_, err = c.Content(ctx, cred, "missing")
	assert.ErrorIs(t, err, doctree.ErrNotFound)

	_, err = c.Tree(ctx, Credential{Token: "bogus"}, doctree.CategoryPrivate)
	assert.ErrorIs(t, err, doctree.ErrAuth)
}

func TestClient_ContentRoundTrip(t *testing.T) {
	c, cred := setupClient(t)
	ctx := context.Background()

	n, err := c.CreateNote(ctx, cred, doctree.CategoryWork, "Übersicht", "", "# A")
	require.NoError(t, err)
	_, err = c.UpdateContent(ctx, cred, n.ID, "# A\n\n**bold**")
	require.NoError(t, err)

	content, err := c.Content(ctx, cred, n.ID)
	require.NoError(t, err)
	defer content.Close()
	assert.Equal(t, "# A\n\n**bold**", content.Text)
	assert.Equal(t, "Übersicht", content.Node.Title)
	assert.True(t, content.Node.IsMarkdown())

	html, err := c.RenderHTML(ctx, cred, n.ID)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<strong>bold</strong>")

	o, err := c.Outline(ctx, cred, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", o.Sections[0].Title)
}

func TestClient_UploadPDFByteExact(t *testing.T) {
	c, cred := setupClient(t)
	ctx := context.Background()
	pdf := parsertest.PDF("page one")

	n, err := c.UploadDocument(ctx, cred, doctree.CategorySchool, "", "", "Syllabus.pdf", pdf)
	require.NoError(t, err)
	assert.Equal(t, "Syllabus", n.Title)

	content, err := c.Content(ctx, cred, n.ID)
	require.NoError(t, err)
	defer content.Close()
	require.True(t, content.Node.IsPDF())
	got, err := io.ReadAll(content.Data)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)

	_, err = c.UpdateContent(ctx, cred, n.ID, "nope")
	assert.ErrorIs(t, err, doctree.ErrValidation)
}

func TestClient_RenameMoveStats(t *testing.T) {
	c, cred := setupClient(t)
	ctx := context.Background()

	a, err := c.CreateFolder(ctx, cred, doctree.CategoryWork, "A", "")
	require.NoError(t, err)
	n, err := c.CreateNote(ctx, cred, doctree.CategoryWork, "N", "", "")
	require.NoError(t, err)

	moved, err := c.Move(ctx, cred, n.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ParentID)

	renamed, err := c.Rename(ctx, cred, n.ID, "Notes")
	require.NoError(t, err)
	assert.Equal(t, "/A/Notes", renamed.Path())

	got, err := c.Get(ctx, cred, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)

	st, err := c.Stats(ctx, cred)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Nodes)
	assert.Equal(t, CategoryStats{Folders: 1, Notes: 1}, st.Categories[doctree.CategoryWork])
	assert.Nil(t, st.Sweeper)
}

func TestClient_TransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    *doctree.Error
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`, http.StatusTooManyRequests)
		}, doctree.ErrTransport},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}, doctree.ErrTransport},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}, doctree.ErrAuth},
		{"too large", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}, doctree.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()
			c := NewClient(ts.URL, time.Second)
			_, err := c.Tree(context.Background(), Credential{Token: "t"}, doctree.CategoryPrivate)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_InternalErrorIsNotTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"internal error"}}`, http.StatusInternalServerError)
	}))
	defer ts.Close()
	_, err := NewClient(ts.URL, time.Second).Tree(context.Background(), Credential{}, doctree.CategoryWork)
	assert.Equal(t, doctree.KindInternal, doctree.KindOf(err))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := NewClient(ts.URL, 50*time.Millisecond)
	_, err := c.CreateFolder(context.Background(), Credential{}, doctree.CategoryWork, "X", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, doctree.ErrTransport)
	var derr *doctree.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "create folder", derr.Op)
}

func TestClient_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := NewClient(url, time.Second).Health(context.Background())
	assert.ErrorIs(t, err, doctree.ErrTransport)
}
