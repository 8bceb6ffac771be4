// Command notetree is the terminal front end for a notetree server.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/dgallion1/notetree/internal/logging"
	"github.com/dgallion1/notetree/internal/treeclient"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

var version = "dev"

// Global flag values.
var (
	flagConfig   string
	flagServer   string
	flagCategory string
	flagJSON     bool
	flagVerbose  bool
)

// Set by PersistentPreRunE.
var (
	settings *Settings
	log      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "notetree",
	Short:         "Browse and edit notes and PDFs on a notetree server",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if flagVerbose {
			level = "debug"
		}
		log = logging.New("text", logging.ParseLevel(level), os.Stderr)

		if cmd.Name() == "version" {
			return nil
		}
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		settings = s
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $XDG_CONFIG_HOME/notetree/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "server URL")
	rootCmd.PersistentFlags().StringVarP(&flagCategory, "category", "c", "", "category: private, work or school")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(statsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("notetree " + version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status: 1 for problems the
// user can fix, 2 for everything else.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var usage *usageError
	if errors.As(err, &usage) || errors.Is(err, treeclient.ErrNothingToRetry) {
		return exitUserError
	}
	if errors.Is(err, treeclient.ErrSessionExpired) {
		return exitSysError
	}
	var derr *doctree.Error
	if !errors.As(err, &derr) {
		return exitSysError
	}
	switch derr.Kind {
	case doctree.KindValidation, doctree.KindNotFound, doctree.KindConflict:
		return exitUserError
	default:
		return exitSysError
	}
}

// usageError is a bad invocation detected before any request.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
