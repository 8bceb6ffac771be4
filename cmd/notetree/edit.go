package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/treeclient"
	"github.com/spf13/cobra"
)

var (
	flagDraft   bool
	flagSelect  string
	flagFormats []string
	flagDiscard bool
)

var editCmd = &cobra.Command{
	Use:   "edit <id|path>",
	Short: "Edit a note in $EDITOR and save it",
	Long: `Edit opens the note (or its pending draft) in $EDITOR. When the editor
exits the text is saved, or kept as a draft with --draft.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.startEditing(ctx, args[0])
			if err != nil {
				return err
			}
			text := a.session.Buffer().Text()
			edited, err := runEditor(text)
			if err != nil {
				return err
			}
			if err := a.session.Edit(func(b *treeclient.Buffer) { b.SetText(edited) }); err != nil {
				return err
			}
			if flagDraft {
				a.state.setDraft(n.ID, edited)
				fmt.Println("draft kept for", n.Path())
				return nil
			}
			return a.saveBuffer(ctx, n.ID)
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <id|path>",
	Short: "Save a note, applying toolbar formatting",
	Long: `Save stores a note's pending draft (or the text of --file). Toolbar
formats given with --format wrap the range chosen by --select, in rune offsets
START:END; without --select they wrap the whole text.

Formats: bold, italic, h1, h2, bullet, numbered, link, image, quote, code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var formats []treeclient.Format
		for _, name := range flagFormats {
			f, ok := treeclient.FormatByName(name)
			if !ok {
				return usagef("unknown format %q", name)
			}
			formats = append(formats, f)
		}
		selStart, selEnd := 0, -1
		if flagSelect != "" {
			var err error
			if selStart, selEnd, err = parseRange(flagSelect); err != nil {
				return err
			}
		}
		var fromFile *string
		if flagFile != "" {
			b, err := os.ReadFile(flagFile)
			if err != nil {
				return usagef("read %s: %v", flagFile, err)
			}
			s := string(b)
			fromFile = &s
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if flagDiscard {
				delete(a.state.Drafts, n.ID)
				fmt.Println("draft discarded for", n.Path())
				return nil
			}
			if _, err := a.startEditing(ctx, args[0]); err != nil {
				return err
			}
			err = a.session.Edit(func(b *treeclient.Buffer) {
				if fromFile != nil {
					b.SetText(*fromFile)
				}
				end := selEnd
				if end < 0 {
					end = b.Len()
				}
				b.Select(selStart, end)
				for _, f := range formats {
					b.Apply(f)
				}
			})
			if err != nil {
				return err
			}
			return a.saveBuffer(ctx, n.ID)
		})
	},
}

func init() {
	editCmd.Flags().BoolVar(&flagDraft, "draft", false, "keep the edit as a draft instead of saving")
	saveCmd.Flags().StringVarP(&flagFile, "file", "f", "", "replace the text with this file's contents")
	saveCmd.Flags().StringVar(&flagSelect, "select", "", "selection START:END for --format")
	saveCmd.Flags().StringSliceVar(&flagFormats, "format", nil, "toolbar format to apply (repeatable)")
	saveCmd.Flags().BoolVar(&flagDiscard, "discard", false, "drop the pending draft without saving")
}

// startEditing opens a note and switches to the edit buffer, restoring a
// pending draft if one exists.
func (a *app) startEditing(ctx context.Context, ref string) (*doctree.Node, error) {
	n, err := a.openNote(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := a.session.ToggleEdit(); err != nil {
		return nil, err
	}
	if draft, ok := a.state.Drafts[n.ID]; ok {
		a.session.Edit(func(b *treeclient.Buffer) { b.SetText(draft) })
	}
	return n, nil
}

// saveBuffer saves the edit buffer and drops the draft on success. On
// failure the buffer is kept as a draft so no text is lost.
func (a *app) saveBuffer(ctx context.Context, id string) error {
	if err := a.run(ctx, a.session.Save); err != nil {
		a.state.setDraft(id, a.session.Buffer().Text())
		return fmt.Errorf("%w (kept as draft)", err)
	}
	delete(a.state.Drafts, id)
	fmt.Println("saved")
	return nil
}

func parseRange(s string) (start, end int, err error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, usagef("invalid selection %q, want START:END", s)
	}
	if start, err = strconv.Atoi(a); err != nil {
		return 0, 0, usagef("invalid selection start %q", a)
	}
	if end, err = strconv.Atoi(b); err != nil {
		return 0, 0, usagef("invalid selection end %q", b)
	}
	return start, end, nil
}

// runEditor opens text in the configured editor and returns the result.
func runEditor(text string) (string, error) {
	f, err := os.CreateTemp("", "notetree-*.md")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	f.Close()

	parts := strings.Fields(settings.Editor)
	cmd := exec.Command(parts[0], append(parts[1:], f.Name())...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run editor %s: %w", parts[0], err)
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("read edited file: %w", err)
	}
	return string(b), nil
}
