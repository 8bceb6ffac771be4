package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/storeclient"
	"github.com/dgallion1/notetree/internal/treeclient"
	"github.com/mattn/go-isatty"
)

// app bundles a loaded session with the persisted CLI state.
type app struct {
	client  *storeclient.Client
	session *treeclient.Session
	state   *cliState
}

// openApp connects to the server, restores the expanded folders and loads
// the tree of the configured category.
func openApp(ctx context.Context) (*app, error) {
	if settings.Token == "" {
		return nil, usagef("no token configured: set token in the config file or NOTETREE_TOKEN")
	}
	st, err := loadState(settings.StateFile)
	if err != nil {
		return nil, err
	}
	client := storeclient.NewClient(settings.Server, settings.Timeout)
	sess := treeclient.NewSession(client, storeclient.Credential{Token: settings.Token}, settings.Category,
		treeclient.Options{Logger: log})
	sess.SetExpanded(st.Expanded[settings.Category])

	a := &app{client: client, session: sess, state: st}
	if err := a.run(ctx, sess.Refresh); err != nil {
		client.Close()
		return nil, err
	}
	return a, nil
}

// close persists the expanded set and releases the client.
func (a *app) close() error {
	defer a.client.Close()
	a.state.setExpanded(settings.Category, a.session.ExpandedIDs())
	return a.state.save(settings.StateFile)
}

// run executes op and, if it failed with a transport error, offers the user
// one manual retry when stdin is a terminal.
func (a *app) run(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !errors.Is(err, doctree.ErrTransport) || a.session.PendingRetry() == "" {
		return err
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return err
	}
	fmt.Fprintf(os.Stderr, "%v\nretry %s? [y/N] ", err, a.session.PendingRetry())
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
		return err
	}
	return a.session.Retry(ctx)
}

// resolve finds a node by id or by path such as "/School/Physics".
func (a *app) resolve(ref string) (*doctree.Node, error) {
	forest := a.session.Forest()
	if n := doctree.Find(forest, ref); n != nil {
		return n, nil
	}
	path := ref
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var found *doctree.Node
	doctree.Walk(forest, func(n *doctree.Node, _ int) bool {
		if found == nil && n.Path() == path {
			found = n
		}
		return found == nil
	})
	if found == nil {
		return nil, doctree.NotFound("resolve", "no node %q in %s", ref, settings.Category)
	}
	return found, nil
}

// resolveParent resolves an optional parent folder reference.
func (a *app) resolveParent(ref string) (string, error) {
	if ref == "" || ref == "/" {
		return "", nil
	}
	n, err := a.resolve(ref)
	if err != nil {
		return "", err
	}
	if !n.IsFolder() {
		return "", doctree.Validation("resolve", "%s is not a folder", n.Path())
	}
	return n.ID, nil
}

// openNote selects a file and waits until its content is loaded.
func (a *app) openNote(ctx context.Context, ref string) (*doctree.Node, error) {
	n, err := a.resolve(ref)
	if err != nil {
		return nil, err
	}
	if n.IsFolder() {
		return nil, doctree.Validation("open", "%s is a folder", n.Path())
	}
	if err := a.run(ctx, func(ctx context.Context) error { return a.session.Select(ctx, n.ID) }); err != nil {
		return nil, err
	}
	return n, nil
}
