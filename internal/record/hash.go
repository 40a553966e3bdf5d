package record

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/multiformats/go-multihash"
)

// DigestLen is the length of a hex-encoded record digest.
const DigestLen = 64

// domain returns the hashing domain for a record kind.
// The version suffix leaves room for an algorithm migration.
func (k Kind) domain() string {
	return "pathchain/" + string(k) + "/v1"
}

// preimage builds domain || 0x00 || canonical(identity).
// The null separator removes any ambiguity at the domain/data boundary.
func preimage(kind Kind, identity Object) ([]byte, error) {
	canonical, err := MarshalCanonical(identity)
	if err != nil {
		return nil, fmt.Errorf("%s identity: %w", kind, err)
	}
	var buf bytes.Buffer
	buf.WriteString(kind.domain())
	buf.WriteByte(0x00)
	buf.Write(canonical)
	return buf.Bytes(), nil
}

// Digest computes the hex SHA2-256 digest of a record's identity fields.
func Digest(kind Kind, identity Object) (string, error) {
	data, err := preimage(kind, identity)
	if err != nil {
		return "", err
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", kind, err)
	}
	decoded, err := multihash.Decode(mh)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", kind, err)
	}
	return hex.EncodeToString(decoded.Digest), nil
}

// IsDigest reports whether s has the exact shape of a record digest:
// 64 lowercase hex characters. Nothing that merely contains a digest passes.
func IsDigest(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
