package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/storeclient"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	flagParent  string
	flagContent string
	flagFile    string
	flagTitle   string
	flagFormat  string
	flagRaw     bool
	flagOut     string
)

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// withApp opens the session, runs fn and persists CLI state afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func printNode(n *doctree.Node) error {
	if flagJSON {
		return printJSON(n)
	}
	fmt.Println(n.Describe())
	return nil
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the folder tree of a category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := flagFormat
		if flagJSON {
			format = "json"
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			forest := a.session.Forest()
			switch format {
			case "", "text":
				if len(forest) == 0 {
					fmt.Printf("(%s is empty)\n", settings.Category)
					return nil
				}
				return a.session.Render(os.Stdout)
			case "json":
				return printJSON(forest)
			case "yaml":
				return yaml.NewEncoder(os.Stdout).Encode(forest)
			default:
				return usagef("unknown format %q (text, json, yaml)", format)
			}
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <title>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			parent, err := a.resolveParent(flagParent)
			if err != nil {
				return err
			}
			var n *doctree.Node
			err = a.run(ctx, func(ctx context.Context) error {
				n, err = a.session.CreateFolder(ctx, args[0], parent)
				return err
			})
			if err != nil {
				return err
			}
			return printNode(n)
		})
	},
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a markdown note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := flagContent
		if flagFile != "" {
			b, err := os.ReadFile(flagFile)
			if err != nil {
				return usagef("read %s: %v", flagFile, err)
			}
			content = string(b)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			parent, err := a.resolveParent(flagParent)
			if err != nil {
				return err
			}
			var n *doctree.Node
			err = a.run(ctx, func(ctx context.Context) error {
				n, err = a.session.CreateNote(ctx, args[0], parent, content)
				return err
			})
			if err != nil {
				return err
			}
			return printNode(n)
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return usagef("read %s: %v", args[0], err)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			parent, err := a.resolveParent(flagParent)
			if err != nil {
				return err
			}
			var n *doctree.Node
			err = a.run(ctx, func(ctx context.Context) error {
				n, err = a.session.Upload(ctx, flagTitle, parent, filepath.Base(args[0]), data)
				return err
			})
			if err != nil {
				return err
			}
			return printNode(n)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id|path>",
	Short: "Show a note or PDF",
	Long: `Show prints a rendered preview of a note, or the extracted text of a PDF.
With --raw a note is printed as markdown. With --out a PDF is written to a file
byte for byte.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.openNote(ctx, args[0]); err != nil {
				return err
			}
			doc := a.session.Document()
			switch {
			case flagOut != "" && doc.Node.IsPDF():
				if err := os.WriteFile(flagOut, doc.PDF, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", flagOut, err)
				}
				fmt.Printf("wrote %d bytes to %s\n", len(doc.PDF), flagOut)
				return nil
			case flagRaw && doc.Node.IsMarkdown():
				fmt.Print(doc.Text)
				return nil
			}
			preview, err := a.session.Preview()
			if err != nil {
				return err
			}
			fmt.Println(preview)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id|path> <title>",
	Short: "Rename a folder or file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.run(ctx, func(ctx context.Context) error { return a.session.Rename(ctx, n.ID, args[1]) }); err != nil {
				return err
			}
			return printNode(doctree.Find(a.session.Forest(), n.ID))
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <id|path> <folder|/>",
	Short: "Move a folder or file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			parent, err := a.resolveParent(args[1])
			if err != nil {
				return err
			}
			if err := a.run(ctx, func(ctx context.Context) error { return a.session.Move(ctx, n.ID, parent) }); err != nil {
				return err
			}
			return printNode(doctree.Find(a.session.Forest(), n.ID))
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id|path>",
	Short: "Delete a file, or a folder with everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			var removed int
			err = a.run(ctx, func(ctx context.Context) error {
				removed, err = a.session.Delete(ctx, n.ID)
				return err
			})
			if err != nil {
				return err
			}
			delete(a.state.Drafts, n.ID)
			if flagJSON {
				return printJSON(map[string]int{"deleted": removed})
			}
			fmt.Printf("deleted %d node(s)\n", removed)
			return nil
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id|path>",
	Short: "Expand or collapse a folder in the tree view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			if err := a.session.Toggle(n.ID); err != nil {
				return err
			}
			return a.session.Render(os.Stdout)
		})
	},
}

var outlineCmd = &cobra.Command{
	Use:   "outline <id|path>",
	Short: "Show the heading or page outline of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.resolve(args[0])
			if err != nil {
				return err
			}
			o, err := a.client.Outline(ctx, storeclient.Credential{Token: settings.Token}, n.ID)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(o)
			}
			fmt.Println(o.Title)
			printSections(o.Sections, 1)
			return nil
		})
	},
}

func printSections(secs []*doctree.Section, depth int) {
	for _, s := range secs {
		title := s.Title
		if title == "" {
			title = "(text)"
		}
		fmt.Printf("%s%s\n", strings.Repeat("  ", depth), title)
		printSections(s.Children, depth+1)
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node counts per category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if settings.Token == "" {
			return usagef("no token configured: set token in the config file or NOTETREE_TOKEN")
		}
		client := storeclient.NewClient(settings.Server, settings.Timeout)
		defer client.Close()
		st, err := client.Stats(cmd.Context(), storeclient.Credential{Token: settings.Token})
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(st)
		}
		cats := make([]string, 0, len(st.Categories))
		for c := range st.Categories {
			cats = append(cats, string(c))
		}
		sort.Strings(cats)
		fmt.Printf("%-10s %8s %8s %10s\n", "CATEGORY", "FOLDERS", "NOTES", "DOCUMENTS")
		for _, c := range cats {
			cs := st.Categories[doctree.Category(c)]
			fmt.Printf("%-10s %8d %8d %10d\n", c, cs.Folders, cs.Notes, cs.Documents)
		}
		fmt.Printf("\n%d nodes, %d bytes of notes, %d bytes in %d PDF pages\n",
			st.Nodes, st.NoteBytes, st.DocumentBytes, st.DocumentPages)
		return nil
	},
}

func init() {
	treeCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, json or yaml")
	for _, c := range []*cobra.Command{mkdirCmd, newCmd, uploadCmd} {
		c.Flags().StringVarP(&flagParent, "parent", "p", "", "parent folder id or path")
	}
	newCmd.Flags().StringVar(&flagContent, "content", "", "initial markdown")
	newCmd.Flags().StringVarP(&flagFile, "file", "f", "", "read initial markdown from a file")
	uploadCmd.Flags().StringVarP(&flagTitle, "title", "t", "", "title (default: file name without .pdf)")
	showCmd.Flags().BoolVar(&flagRaw, "raw", false, "print markdown source")
	showCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write PDF bytes to this file")
}
