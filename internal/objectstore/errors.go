package objectstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record exists at the requested key.
	ErrNotFound = errors.New("objectstore: not found")

	// ErrExists is returned by Backend.Create when the key is already taken.
	ErrExists = errors.New("objectstore: key exists")

	// ErrImmutable is returned when a write would change the identity stored at a key.
	ErrImmutable = errors.New("objectstore: immutable record mismatch")

	// ErrDigestMismatch is wrapped by DecodeError when stored content does not hash to its key.
	ErrDigestMismatch = errors.New("objectstore: digest mismatch")

	// ErrInvalidKey is returned for keys that cannot be mapped to storage.
	ErrInvalidKey = errors.New("objectstore: invalid key")
)

// DecodeError reports stored bytes that do not match the expected schema or
// digest. Outside of tampering this should not happen; treat it as corruption.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("objectstore: decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCorrupt reports whether err is a decode or digest failure.
func IsCorrupt(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
