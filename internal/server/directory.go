package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrFileExists  = errors.New("file already exists")
	ErrInvalidName = errors.New("invalid file name")
)

// Directory is the storage root shared by every connection. Listings,
// create-and-acknowledge steps and completion announcements are serialized
// through one mutex; raw byte streaming happens outside of it.
type Directory struct {
	mu   sync.Mutex
	root string
}

func OpenDirectory(path string) (*Directory, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}

	return &Directory{root: root}, nil
}

func (d *Directory) Root() string {
	return d.root
}

// List returns the names of the regular files in the storage root, sorted.
func (d *Directory) List() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Create exclusively creates name in the storage root and calls accept while
// still holding the lock. If accept fails the new file is removed again.
// An existing file yields ErrFileExists and accept is not called.
func (d *Directory) Create(name string, accept func() error) (*os.File, error) {
	path, err := d.resolve(name)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %q", ErrFileExists, name)
		}
		return nil, err
	}

	if err := accept(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, err
	}

	return file, nil
}

// Locked runs fn while holding the directory lock.
func (d *Directory) Locked(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// BaseName strips any directory components a client put into a file name.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return filepath.Base(filepath.Clean("/" + name))
}

func (d *Directory) resolve(name string) (string, error) {
	base := BaseName(name)
	if base == "/" || base == "." || base == ".." || strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	file := filepath.Join(d.root, base)
	matched, err := filepath.Match(filepath.Join(escapeGlob(d.root), "*"), file)
	if err != nil || !matched {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return file, nil
}

func escapeGlob(path string) string {
	replacer := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return replacer.Replace(path)
}
