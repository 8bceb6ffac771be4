// Package storeclient is a typed HTTP client for the notetree server.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/notetree/internal/doctree"
)

// Credential is the bearer token sent with a request. It is passed to every
// call rather than held by the client.
type Credential struct {
	Token string
}

// Client communicates with the notetree HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL. A non-positive timeout defaults to
// 30 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Stats is the body of GET /api/stats.
type Stats struct {
	Categories    map[doctree.Category]CategoryStats `json:"categories"`
	Nodes         int                                `json:"nodes"`
	NoteBytes     int64                              `json:"noteBytes"`
	DocumentBytes int64                              `json:"documentBytes"`
	DocumentPages int                                `json:"documentPages"`
	Sweeper       *SweepStats                        `json:"sweeper,omitempty"`
}

// CategoryStats counts the nodes of one category.
type CategoryStats struct {
	Folders   int `json:"folders"`
	Notes     int `json:"notes"`
	Documents int `json:"documents"`
}

// SweepStats reports server-side blob sweeping.
type SweepStats struct {
	Runs    int       `json:"runs"`
	Removed int       `json:"removed"`
	LastRun time.Time `json:"lastRun"`
}

// Tree fetches the forest of a category.
func (c *Client) Tree(ctx context.Context, cred Credential, cat doctree.Category) ([]*doctree.Node, error) {
	var out struct {
		Nodes []*doctree.Node `json:"nodes"`
	}
	path := "/api/categories/" + url.PathEscape(string(cat)) + "/tree"
	if err := c.doJSON(ctx, cred, "get tree", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

type createBody struct {
	Title    string `json:"title"`
	ParentID string `json:"parentId,omitempty"`
	Content  string `json:"content,omitempty"`
}

// CreateFolder creates a folder under parentID, or at the root if empty.
func (c *Client) CreateFolder(ctx context.Context, cred Credential, cat doctree.Category, title, parentID string) (*doctree.Node, error) {
	var n doctree.Node
	path := "/api/categories/" + url.PathEscape(string(cat)) + "/folders"
	if err := c.doJSON(ctx, cred, "create folder", http.MethodPost, path, createBody{Title: title, ParentID: parentID}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNote creates a markdown note.
func (c *Client) CreateNote(ctx context.Context, cred Credential, cat doctree.Category, title, parentID, content string) (*doctree.Node, error) {
	var n doctree.Node
	path := "/api/categories/" + url.PathEscape(string(cat)) + "/notes"
	body := createBody{Title: title, ParentID: parentID, Content: content}
	if err := c.doJSON(ctx, cred, "create note", http.MethodPost, path, body, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UploadDocument uploads a PDF. An empty title lets the server derive one
// from filename.
func (c *Client) UploadDocument(ctx context.Context, cred Credential, cat doctree.Category, title, parentID, filename string, data []byte) (*doctree.Node, error) {
	const op = "upload document"
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if title != "" {
		mw.WriteField("title", title)
	}
	if parentID != "" {
		mw.WriteField("parentId", parentID)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	path := "/api/categories/" + url.PathEscape(string(cat)) + "/documents"
	resp, err := c.do(ctx, cred, op, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var n doctree.Node
	if err := decode(op, resp, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Get fetches a single node's metadata.
func (c *Client) Get(ctx context.Context, cred Credential, id string) (*doctree.Node, error) {
	var n doctree.Node
	if err := c.doJSON(ctx, cred, "get node", http.MethodGet, nodePath(id, ""), nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Content fetches a file's content. For PDFs Data streams the body and the
// caller must Close the result.
func (c *Client) Content(ctx context.Context, cred Credential, id string) (*doctree.Content, error) {
	const op = "get content"
	resp, err := c.do(ctx, cred, op, http.MethodGet, nodePath(id, "/content"), nil, "")
	if err != nil {
		return nil, err
	}

	title, err := url.PathUnescape(resp.Header.Get("X-Node-Title"))
	if err != nil {
		title = resp.Header.Get("X-Node-Title")
	}
	n := &doctree.Node{
		ID:       resp.Header.Get("X-Node-Id"),
		Title:    title,
		Type:     doctree.TypeFile,
		FileType: doctree.FileType(resp.Header.Get("X-Node-File-Type")),
		Size:     resp.ContentLength,
	}
	if n.IsPDF() {
		return &doctree.Content{Node: n, Data: resp.Body}, nil
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, doctree.Transport(op, err)
	}
	n.Size = int64(len(text))
	return &doctree.Content{Node: n, Text: string(text)}, nil
}

// RenderHTML fetches a markdown note rendered to HTML by the server.
func (c *Client) RenderHTML(ctx context.Context, cred Credential, id string) ([]byte, error) {
	const op = "render note"
	resp, err := c.do(ctx, cred, op, http.MethodGet, nodePath(id, "/content")+"?format=html", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, doctree.Transport(op, err)
	}
	return b, nil
}

// UpdateContent replaces a note's markdown.
func (c *Client) UpdateContent(ctx context.Context, cred Credential, id, text string) (*doctree.Node, error) {
	var n doctree.Node
	body := struct {
		Content string `json:"content"`
	}{text}
	if err := c.doJSON(ctx, cred, "update content", http.MethodPut, nodePath(id, "/content"), body, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Outline fetches the heading (markdown) or page (PDF) outline of a file.
func (c *Client) Outline(ctx context.Context, cred Credential, id string) (*doctree.Outline, error) {
	var o doctree.Outline
	if err := c.doJSON(ctx, cred, "get outline", http.MethodGet, nodePath(id, "/outline"), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Rename changes a node's title.
func (c *Client) Rename(ctx context.Context, cred Credential, id, title string) (*doctree.Node, error) {
	var n doctree.Node
	body := struct {
		Title string `json:"title"`
	}{title}
	if err := c.doJSON(ctx, cred, "rename", http.MethodPost, nodePath(id, "/rename"), body, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Move reparents a node. An empty parentID moves it to the category root.
func (c *Client) Move(ctx context.Context, cred Credential, id, parentID string) (*doctree.Node, error) {
	var n doctree.Node
	body := struct {
		ParentID string `json:"parentId"`
	}{parentID}
	if err := c.doJSON(ctx, cred, "move", http.MethodPost, nodePath(id, "/move"), body, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Delete removes a node and its descendants and returns how many were removed.
func (c *Client) Delete(ctx context.Context, cred Credential, id string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.doJSON(ctx, cred, "delete", http.MethodDelete, nodePath(id, ""), nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Stats fetches the owner's store statistics.
func (c *Client) Stats(ctx context.Context, cred Credential) (*Stats, error) {
	var st Stats
	if err := c.doJSON(ctx, cred, "stats", http.MethodGet, "/api/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, Credential{}, "health", http.MethodGet, "/health", nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func nodePath(id, suffix string) string {
	return "/api/nodes/" + url.PathEscape(id) + suffix
}

func (c *Client) doJSON(ctx context.Context, cred Credential, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, cred, op, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(op, resp, out)
}

// do sends a request and returns the response if its status is 2xx. Any
// other outcome is returned as a *doctree.Error and the body is closed.
func (c *Client) do(ctx context.Context, cred Credential, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, doctree.Transport(op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(op, resp)
}

func decode(op string, resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return doctree.Transport(op, err)
		}
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError maps a non-2xx response to a classified error. The server's
// message already names the failing operation.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var env errorEnvelope
	msg := strings.TrimSpace(string(raw))
	code := ""
	if json.Unmarshal(raw, &env) == nil && env.Error.Code != "" {
		code, msg = env.Error.Code, env.Error.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	kind := kindFor(resp.StatusCode, code)
	if kind == doctree.KindTransport || kind == doctree.KindInternal {
		return &doctree.Error{Kind: kind, Op: op, Msg: fmt.Sprintf("status %d: %s", resp.StatusCode, msg)}
	}
	return &doctree.Error{Kind: kind, Msg: msg}
}

func kindFor(status int, code string) doctree.Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return doctree.KindAuth
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return doctree.KindTransport
	case http.StatusRequestEntityTooLarge:
		return doctree.KindValidation
	}
	switch k := doctree.Kind(code); k {
	case doctree.KindValidation, doctree.KindNotFound, doctree.KindConflict:
		return k
	}
	switch {
	case status == http.StatusNotFound:
		return doctree.KindNotFound
	case status == http.StatusConflict:
		return doctree.KindConflict
	case status >= 400 && status < 500:
		return doctree.KindValidation
	default:
		return doctree.KindInternal
	}
}
