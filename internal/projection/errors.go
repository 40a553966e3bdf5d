package projection

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("projection: not found")

	// ErrUsernameTaken is returned when a credential for the username exists.
	ErrUsernameTaken = errors.New("projection: username taken")

	// ErrSecretUsed is returned when the registration transaction finds the
	// secret row already marked used.
	ErrSecretUsed = errors.New("projection: secret already used")

	// ErrRootConflict is returned when a different root row already exists.
	ErrRootConflict = errors.New("projection: a different root exists")

	// ErrPoolTimeout is returned when an operation exceeds the pool timeout.
	ErrPoolTimeout = errors.New("projection: pool timeout")
)

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure on the given table.column.
func isUniqueViolation(err error, column string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.ExtendedCode != sqlite3.ErrConstraintUnique && se.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(se.Error(), column)
}
