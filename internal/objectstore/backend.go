package objectstore

import (
	"fmt"
	"strings"
)

// Backend is the raw key/value layer under Store.
//
// Contract:
//   - Create MUST fail with ErrExists if the key is present.
//   - Replace MUST be atomic: readers see the old or the new bytes, never a mix.
//   - Read MUST return ErrNotFound when the key is absent.
//   - List returns the keys directly inside dir (one level), sorted.
type Backend interface {
	Read(key string) ([]byte, error)
	Create(key string, data []byte) error
	Replace(key string, data []byte) error
	List(dir string) ([]string, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendLocalFS = "localfs"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// OpenBackend constructs a backend by name.
func OpenBackend(name, path string) (Backend, error) {
	switch name {
	case BackendLocalFS:
		return NewLocalFS(path)
	case BackendLevelDB:
		return NewLevelDB(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("objectstore: unknown backend %q", name)
	}
}

// validateKey accepts slash-separated components of [a-z0-9_-].
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		for _, c := range part {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
				return fmt.Errorf("%w: %q", ErrInvalidKey, key)
			}
		}
	}
	return nil
}
