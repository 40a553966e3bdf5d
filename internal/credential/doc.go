// Package credential holds the collaborators the registration core treats
// as opaque: password hashing and capability token issuance.
//
// Both are interfaces with an explicit Unavailable implementation, so a
// deployment without a signing key (or a test that must not hash) wires
// Unavailable instead of probing for a library at runtime. Calls on an
// Unavailable collaborator fail with ErrUnavailable.
package credential

import "errors"

// ErrUnavailable is returned by the Unavailable hasher and issuer.
var ErrUnavailable = errors.New("credential: capability unavailable")
