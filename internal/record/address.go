package record

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Kind names a record type.
type Kind string

const (
	KindMoment Kind = "moment"
	KindEntity Kind = "entity"
	KindSecret Kind = "secret"
)

// Kinds lists every record kind.
var Kinds = []Kind{KindMoment, KindEntity, KindSecret}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMoment, KindEntity, KindSecret:
		return true
	}
	return false
}

// Collection is the address prefix for the kind ("moments", "entitys", "secrets").
func (k Kind) Collection() string {
	return string(k) + "s"
}

// ErrInvalidAddress is returned for strings that are not record addresses.
var ErrInvalidAddress = errors.New("record: invalid address")

// Address is a content-derived record identifier of the form "{kind}s/{digest}".
type Address string

// NewAddress builds the address of a record of the given kind and digest.
func NewAddress(kind Kind, digest string) Address {
	return Address(kind.Collection() + "/" + digest)
}

// Kind returns the record kind named by the address prefix.
func (a Address) Kind() Kind {
	collection, _, _ := strings.Cut(string(a), "/")
	return Kind(strings.TrimSuffix(collection, "s"))
}

// Digest returns the digest part of the address.
func (a Address) Digest() string {
	_, digest, _ := strings.Cut(string(a), "/")
	return digest
}

// Valid reports whether a is a well-formed unscoped address.
func (a Address) Valid() bool {
	collection, digest, ok := strings.Cut(string(a), "/")
	if !ok || !strings.HasSuffix(collection, "s") {
		return false
	}
	return Kind(strings.TrimSuffix(collection, "s")).Valid() && IsDigest(digest)
}

// Scoped returns the author-scoped form "{authorDigest}/{kind}s/{digest}".
func (a Address) Scoped(authorDigest string) string {
	return authorDigest + "/" + string(a)
}

// CID returns the CIDv1 (raw codec, sha2-256) form of the address digest,
// for display next to external content-addressed systems.
func (a Address) CID() (cid.Cid, error) {
	raw, err := hex.DecodeString(a.Digest())
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %q", ErrInvalidAddress, a)
	}
	mh, err := multihash.Encode(raw, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

func (a Address) String() string { return string(a) }

// ParseAddress accepts "{kind}s/{digest}" or "{authorDigest}/{kind}s/{digest}"
// and returns the unscoped address plus the author digest (empty if unscoped).
func ParseAddress(s string) (addr Address, author string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	switch len(parts) {
	case 2:
		addr = Address(parts[0] + "/" + parts[1])
	case 3:
		if !IsDigest(parts[0]) {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		author = parts[0]
		addr = Address(parts[1] + "/" + parts[2])
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if !addr.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return addr, author, nil
}

// NormalizeSecret turns user input into a secret address. It accepts a bare
// digest or a fully-qualified (optionally author-scoped) secret address.
func NormalizeSecret(input string) (Address, error) {
	s := strings.TrimSpace(input)
	if IsDigest(strings.ToLower(s)) {
		return NewAddress(KindSecret, strings.ToLower(s)), nil
	}
	addr, _, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	if addr.Kind() != KindSecret {
		return "", fmt.Errorf("%w: %q is not a secret", ErrInvalidAddress, s)
	}
	return addr, nil
}
