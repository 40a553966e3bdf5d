package objectstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFS stores each key as a file below root. Directories are created
// implicitly and idempotently.
type LocalFS struct {
	root string
}

// NewLocalFS constructs a filesystem backend rooted at root, creating it if needed.
func NewLocalFS(root string) (*LocalFS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: %w", err)
	}
	return &LocalFS{root: root}, nil
}

func (l *LocalFS) pathFor(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *LocalFS) Read(key string) ([]byte, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("localfs: read %s: %w", key, err)
	}
	return b, nil
}

// Create writes the data to a temp file and hard-links it into place, so the
// key appears complete or not at all and an existing key is never touched.
func (l *LocalFS) Create(key string, data []byte) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}
	tmpName, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return fmt.Errorf("localfs: create %s: %w", key, err)
	}
	defer os.Remove(tmpName)

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("localfs: create %s: %w", key, err)
	}
	return nil
}

// Replace writes to a temp file in the same directory and renames it over the key.
func (l *LocalFS) Replace(key string, data []byte) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}
	tmpName, err := writeTemp(filepath.Dir(path), data)
	if err != nil {
		return fmt.Errorf("localfs: replace %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("localfs: replace %s: %w", key, err)
	}
	return nil
}

// writeTemp writes data to a synced dot-file in dir and returns its name.
// List skips dot-files, so a leftover temp never shows up as a key.
func writeTemp(dir string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (l *LocalFS) List(dir string) ([]string, error) {
	path, err := l.pathFor(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("localfs: list %s: %w", dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, dir+"/"+e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalFS) Close() error { return nil }
