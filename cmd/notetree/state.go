package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dgallion1/notetree/internal/doctree"
	"gopkg.in/yaml.v3"
)

// cliState is what the CLI remembers between invocations.
type cliState struct {
	// Expanded folder ids per category.
	Expanded map[doctree.Category][]string `yaml:"expanded,omitempty"`
	// Drafts holds unsaved edit buffers by node id.
	Drafts map[string]string `yaml:"drafts,omitempty"`
}

func loadState(path string) (*cliState, error) {
	st := &cliState{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	return st, nil
}

func (st *cliState) save(path string) error {
	for cat, ids := range st.Expanded {
		if len(ids) == 0 {
			delete(st.Expanded, cat)
			continue
		}
		slices.Sort(ids)
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

func (st *cliState) setExpanded(cat doctree.Category, ids []string) {
	if st.Expanded == nil {
		st.Expanded = make(map[doctree.Category][]string)
	}
	st.Expanded[cat] = ids
}

func (st *cliState) setDraft(id, text string) {
	if st.Drafts == nil {
		st.Drafts = make(map[string]string)
	}
	st.Drafts[id] = text
}
