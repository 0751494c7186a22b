// Package vault defines the note store interface and its filesystem
// implementation. Paths are vault-relative and slash-separated.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sentinel errors for note store operations.
var (
	ErrNotFound = errors.New("note not found")
	ErrExists   = errors.New("note already exists")
)

// Store is the interface for all persisted-note operations.
type Store interface {
	Exists(path string) (bool, error)
	EnsureFolder(path string) error
	CreateText(path, content string) error
	ReadText(path string) (string, error)
	ModifyText(path, content string) error
	CreateBinary(path string, data []byte) error

	// FreePath returns p if unused, otherwise the first variant with a
	// numeric suffix before the extension that is free.
	FreePath(p string) (string, error)
}

// FS implements Store on a local directory tree.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &FS{root: dir}, nil
}

// Exists reports whether a file or folder is present at p.
func (f *FS) Exists(p string) (bool, error) {
	_, err := os.Stat(f.abs(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p, err)
}

// EnsureFolder creates a folder (and parents) if it does not exist.
func (f *FS) EnsureFolder(p string) error {
	if err := os.MkdirAll(f.abs(p), 0o750); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	return nil
}

// CreateText writes a new text file, failing with ErrExists if present.
func (f *FS) CreateText(p, content string) error {
	abs := f.abs(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	fh, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // path is vault-relative
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", p, ErrExists)
		}
		return fmt.Errorf("create %s: %w", p, err)
	}
	defer func() { _ = fh.Close() }()

	if _, err := fh.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// ReadText returns the content of a text file.
func (f *FS) ReadText(p string) (string, error) {
	data, err := os.ReadFile(f.abs(p)) //nolint:gosec // path is vault-relative
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

// ModifyText overwrites an existing text file.
func (f *FS) ModifyText(p, content string) error {
	if err := os.WriteFile(f.abs(p), []byte(content), 0o644); err != nil { //nolint:gosec // path is vault-relative
		return fmt.Errorf("modify %s: %w", p, err)
	}
	return nil
}

// CreateBinary writes a binary file, creating parent folders as needed.
func (f *FS) CreateBinary(p string, data []byte) error {
	abs := f.abs(p)
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil { //nolint:gosec // path is vault-relative
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// FreePath probes " 1", " 2", ... suffixes before the extension until an
// unused path is found.
func (f *FS) FreePath(p string) (string, error) {
	used, err := f.Exists(p)
	if err != nil {
		return "", err
	}
	if !used {
		return p, nil
	}

	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s %d%s", base, i, ext)
		used, err := f.Exists(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
}

func (f *FS) abs(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}
