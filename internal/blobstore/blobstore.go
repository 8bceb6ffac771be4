// Package blobstore keeps uploaded document bytes in a content-addressed
// directory. Identical uploads share one file.
package blobstore

import (
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// base32Enc uses the "Extended Hex" alphabet (0-9A-V): ASCII-sorted and safe
// on case-insensitive filesystems.
var base32Enc = base32.HexEncoding.WithPadding(base32.NoPadding)

const (
	refPrefix  = "sha256:"
	tmpDirName = "tmp"
	hashLen    = 52 // base32 length of a SHA-256 digest without padding
)

// Ref identifies a blob: "sha256:<base32 digest>-<size>".
type Ref string

// Validate checks the ref shape without touching the filesystem.
func (r Ref) Validate() error {
	s, ok := strings.CutPrefix(string(r), refPrefix)
	if !ok {
		return fmt.Errorf("invalid blob ref %q: missing %s prefix", r, refPrefix)
	}
	hash, size, ok := strings.Cut(s, "-")
	if !ok || len(hash) != hashLen {
		return fmt.Errorf("invalid blob ref %q", r)
	}
	for i := 0; i < len(hash); i++ {
		if !isBase32HexChar(hash[i]) {
			return fmt.Errorf("invalid blob ref %q", r)
		}
	}
	if _, err := strconv.ParseInt(size, 10, 64); err != nil {
		return fmt.Errorf("invalid blob ref %q: bad size", r)
	}
	return nil
}

// ErrTooLarge is returned by Put when the data exceeds the size limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

// Store manages blobs under a directory.
//
// Files fan out by the first two digest characters: <dir>/<h[:2]>/<h[2:]>-<size>.
// Writes land in <dir>/tmp first and are renamed into place.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put streams r into the store. A limit of zero or less means unbounded.
// It returns the blob's ref and size.
func (s *Store) Put(r io.Reader, limit int64) (Ref, int64, error) {
	f, err := os.CreateTemp(filepath.Join(s.dir, tmpDirName), "*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	abort := func(err error) (Ref, int64, error) {
		f.Close()
		return "", 0, errors.Join(err, os.Remove(tmpPath))
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), src)
	if err != nil {
		return abort(fmt.Errorf("write blob: %w", err))
	}
	if limit > 0 && size > limit {
		return abort(ErrTooLarge)
	}
	if err := f.Close(); err != nil {
		return "", 0, errors.Join(fmt.Errorf("close temp file: %w", err), os.Remove(tmpPath))
	}

	ref := Ref(refPrefix + base32Enc.EncodeToString(hasher.Sum(nil)) + "-" + strconv.FormatInt(size, 10))
	target := s.pathForRef(ref)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", 0, errors.Join(fmt.Errorf("create blob subdirectory: %w", err), os.Remove(tmpPath))
	}
	// Same content already stored.
	if _, err := os.Stat(target); err == nil {
		return ref, size, os.Remove(tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", 0, errors.Join(fmt.Errorf("move blob into place: %w", err), os.Remove(tmpPath))
	}
	return ref, size, nil
}

// Open returns a reader for the blob. The caller must close it.
func (s *Store) Open(ref Ref) (io.ReadCloser, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.pathForRef(ref))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Remove deletes a blob. Missing blobs are not an error.
func (s *Store) Remove(ref Ref) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := os.Remove(s.pathForRef(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// GC removes blobs absent from used, stray temp files and unknown entries.
// It returns how many blobs were removed. Callers must hold off writes
// while it runs.
func (s *Store) GC(used map[Ref]bool) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read blob directory: %w", err)
	}

	var removed int
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if name == tmpDirName {
			errs = append(errs, s.cleanupTmp())
			continue
		}
		if !entry.IsDir() || !isValidPrefix(name) {
			if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
				errs = append(errs, fmt.Errorf("remove unknown entry %s: %w", name, err))
			}
			continue
		}

		files, err := os.ReadDir(filepath.Join(s.dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("read subdir %s: %w", name, err))
			continue
		}
		for _, file := range files {
			path := filepath.Join(s.dir, name, file.Name())
			ref := Ref(refPrefix + name + file.Name())
			if file.IsDir() || ref.Validate() != nil {
				if err := os.RemoveAll(path); err != nil {
					errs = append(errs, fmt.Errorf("remove unknown entry %s: %w", path, err))
				}
				continue
			}
			if used[ref] {
				continue
			}
			if err := os.Remove(path); err != nil {
				errs = append(errs, fmt.Errorf("remove orphan blob %s: %w", ref, err))
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

func (s *Store) cleanupTmp() error {
	dir := filepath.Join(s.dir, tmpDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read tmp directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmp") {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, fmt.Errorf("remove temp file %s: %w", entry.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) pathForRef(ref Ref) string {
	h := strings.TrimPrefix(string(ref), refPrefix)
	return filepath.Join(s.dir, h[:2], h[2:])
}

func isValidPrefix(s string) bool {
	return len(s) == 2 && isBase32HexChar(s[0]) && isBase32HexChar(s[1])
}

func isBase32HexChar(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'V')
}
