// Package fault defines the error taxonomy reported to callers of the
// registration core. Every failure that crosses the core boundary carries a
// stable Code and a human-readable message.
package fault

import (
	"errors"
	"fmt"
)

// Code is a stable symbolic error code.
type Code string

const (
	// InvalidRequest: bad input shape or length. Not retryable as-is.
	InvalidRequest Code = "INVALID_REQUEST"

	// InvalidSecret: the secret is missing, malformed or unknown.
	InvalidSecret Code = "INVALID_SECRET"

	// UsedSecret: the secret was already consumed.
	UsedSecret Code = "USED_SECRET"

	// AncestorNotFound: the ledger and the projection disagree about an ancestor.
	AncestorNotFound Code = "ANCESTOR_NOT_FOUND"

	// UsernameExists: the username is already registered.
	UsernameExists Code = "USERNAME_EXISTS"

	// EntityMintFailed: the ledger could not mint the entity.
	EntityMintFailed Code = "ENTITY_MINT_FAILED"

	// DatabaseError: a storage failure in either store, including corruption.
	DatabaseError Code = "DATABASE_ERROR"

	// NotFound: the requested entity does not exist.
	NotFound Code = "NOT_FOUND"

	// InvalidCredentials: unknown username or wrong password.
	InvalidCredentials Code = "INVALID_CREDENTIALS"

	// CredentialsUnavailable: the password hasher or token issuer is not configured.
	CredentialsUnavailable Code = "CREDENTIALS_UNAVAILABLE"
)

// Error is a classified failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// DatabaseError for unclassified failures. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return DatabaseError
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether a client may retry the same request. Only
// server-side faults qualify, and even then a mint may already have happened.
func (c Code) Retryable() bool {
	return c == EntityMintFailed || c == DatabaseError
}
