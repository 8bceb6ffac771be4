package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/notetree/internal/doctree"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	cfgKeyServer   = "server"
	cfgKeyToken    = "token"
	cfgKeyCategory = "category"
	cfgKeyTimeout  = "timeout"
	cfgKeyState    = "state_file"
	cfgKeyEditor   = "editor"
)

const defaultConfigYAML = `# notetree CLI configuration

# Server base URL
server: http://localhost:8090

# Bearer token, e.g. from "notetree-server token <owner>"
# token:

# Category used when --category is not given: private, work or school
category: private

# Per-request timeout
timeout: 30s
`

// Settings is the resolved CLI configuration.
type Settings struct {
	Server    string
	Token     string
	Category  doctree.Category
	Timeout   time.Duration
	StateFile string
	Editor    string
}

func configDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "notetree"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "notetree"), nil
}

// loadSettings reads the config file, NOTETREE_* environment variables and
// flags, in increasing precedence. A default config file is written on first
// run.
func loadSettings(cmd *cobra.Command) (*Settings, error) {
	v := viper.New()
	v.SetDefault(cfgKeyServer, "http://localhost:8090")
	v.SetDefault(cfgKeyCategory, string(doctree.CategoryPrivate))
	v.SetDefault(cfgKeyTimeout, 30*time.Second)
	v.SetEnvPrefix("NOTETREE")
	v.AutomaticEnv()

	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	v.SetDefault(cfgKeyState, filepath.Join(dir, "state.yaml"))

	if flagConfig != "" {
		v.SetConfigFile(flagConfig)
	} else {
		if err := ensureDefaultConfig(dir); err != nil {
			return nil, fmt.Errorf("ensure default config: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("server"); f != nil && f.Changed {
		v.Set(cfgKeyServer, flagServer)
	}
	if f := cmd.Flags().Lookup("category"); f != nil && f.Changed {
		v.Set(cfgKeyCategory, flagCategory)
	}

	cat, err := doctree.ParseCategory(v.GetString(cfgKeyCategory))
	if err != nil {
		return nil, usagef("%v", err)
	}
	editor := v.GetString(cfgKeyEditor)
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	return &Settings{
		Server:    strings.TrimRight(v.GetString(cfgKeyServer), "/"),
		Token:     v.GetString(cfgKeyToken),
		Category:  cat,
		Timeout:   v.GetDuration(cfgKeyTimeout),
		StateFile: v.GetString(cfgKeyState),
		Editor:    editor,
	}, nil
}

func ensureDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "config.yaml")
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}
