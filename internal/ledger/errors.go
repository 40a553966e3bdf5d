package ledger

import "errors"

var (
	// ErrSecretAlreadyUsed is returned by MintEntity for a consumed secret.
	// Repeated calls keep failing; minting is never idempotent.
	ErrSecretAlreadyUsed = errors.New("ledger: secret already used")

	// ErrNotFound is returned when an address does not resolve to a record.
	// It is distinct from "exists but unused".
	ErrNotFound = errors.New("ledger: record not found")

	// ErrNoRoot is returned by Root before BootstrapRoot has run.
	ErrNoRoot = errors.New("ledger: no root entity")

	// ErrWrongKind is returned when an address names a different record kind
	// than the operation expects.
	ErrWrongKind = errors.New("ledger: wrong record kind")
)
